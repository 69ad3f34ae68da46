package core

import (
	"container/list"
	"time"
)

// ttlIndex is an insertion-ordered map with per-entry expiry. Callers hold
// their own lock around every method.
type ttlIndex[V any] struct {
	maxEntries int
	order      *list.List
	items      map[string]*list.Element
}

type ttlEntry[V any] struct {
	key       string
	value     V
	expiresAt time.Time
}

func newTTLIndex[V any](maxEntries int) *ttlIndex[V] {
	return &ttlIndex[V]{
		maxEntries: maxEntries,
		order:      list.New(),
		items:      map[string]*list.Element{},
	}
}

func (x *ttlIndex[V]) lookup(key string, now time.Time) (V, bool) {
	var zero V
	element, ok := x.items[key]
	if !ok {
		return zero, false
	}
	entry := element.Value.(*ttlEntry[V])
	if !now.Before(entry.expiresAt) {
		x.remove(element)
		return zero, false
	}
	return entry.value, true
}

// take removes key and reports whether it was still live.
func (x *ttlIndex[V]) take(key string, now time.Time) (V, bool) {
	var zero V
	element, ok := x.items[key]
	if !ok {
		return zero, false
	}
	entry := element.Value.(*ttlEntry[V])
	x.remove(element)
	if !now.Before(entry.expiresAt) {
		return zero, false
	}
	return entry.value, true
}

func (x *ttlIndex[V]) put(key string, value V, expiresAt time.Time, now time.Time) (evicted int) {
	if element, ok := x.items[key]; ok {
		x.remove(element)
	}
	x.prune(now)
	for x.maxEntries > 0 && len(x.items) >= x.maxEntries {
		front := x.order.Front()
		if front == nil {
			break
		}
		x.remove(front)
		evicted++
	}
	x.items[key] = x.order.PushBack(&ttlEntry[V]{key: key, value: value, expiresAt: expiresAt})
	return evicted
}

// prune drops expired entries from the front of the insertion order. Entries
// that share a TTL expire in insertion order, so the scan stops at the first
// live entry.
func (x *ttlIndex[V]) prune(now time.Time) int {
	pruned := 0
	for element := x.order.Front(); element != nil; {
		next := element.Next()
		if now.Before(element.Value.(*ttlEntry[V]).expiresAt) {
			break
		}
		x.remove(element)
		pruned++
		element = next
	}
	return pruned
}

// sweep removes every expired entry regardless of position.
func (x *ttlIndex[V]) sweep(now time.Time) int {
	pruned := 0
	for element := x.order.Front(); element != nil; {
		next := element.Next()
		if !now.Before(element.Value.(*ttlEntry[V]).expiresAt) {
			x.remove(element)
			pruned++
		}
		element = next
	}
	return pruned
}

func (x *ttlIndex[V]) len() int {
	return len(x.items)
}

func (x *ttlIndex[V]) remove(element *list.Element) {
	entry := x.order.Remove(element).(*ttlEntry[V])
	delete(x.items, entry.key)
}
