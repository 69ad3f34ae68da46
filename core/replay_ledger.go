package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

const (
	defaultEventReplayTTL        = 10 * time.Minute
	defaultEventReplayMaxEntries = 8192
)

// MemoryReplayLedger remembers delivered event ids so upstream retries are
// acknowledged without running handlers twice.
type MemoryReplayLedger struct {
	mu         sync.Mutex
	defaultTTL time.Duration
	seen       *ttlIndex[struct{}]
	Now        func() time.Time
}

func NewMemoryReplayLedger(defaultTTL time.Duration, maxEntries int) *MemoryReplayLedger {
	if defaultTTL <= 0 {
		defaultTTL = defaultEventReplayTTL
	}
	if maxEntries <= 0 {
		maxEntries = defaultEventReplayMaxEntries
	}
	return &MemoryReplayLedger{
		defaultTTL: defaultTTL,
		seen:       newTTLIndex[struct{}](maxEntries),
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Claim returns true the first time key is presented within its TTL.
func (l *MemoryReplayLedger) Claim(_ context.Context, key string, ttl time.Duration) (bool, error) {
	if l == nil {
		return false, fmt.Errorf("core: replay ledger is not configured")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return false, fmt.Errorf("core: replay key is required")
	}
	if ttl <= 0 {
		ttl = l.defaultTTL
	}
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.seen.lookup(key, now); ok {
		return false, nil
	}
	l.seen.put(key, struct{}{}, now.Add(ttl), now)
	return true, nil
}

func (l *MemoryReplayLedger) Release(_ context.Context, key string) error {
	if l == nil {
		return fmt.Errorf("core: replay ledger is not configured")
	}
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seen.take(strings.TrimSpace(key), now)
	return nil
}

func (l *MemoryReplayLedger) PurgeExpired(_ context.Context) (int, error) {
	if l == nil {
		return 0, fmt.Errorf("core: replay ledger is not configured")
	}
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.seen.sweep(now), nil
}

func (l *MemoryReplayLedger) now() time.Time {
	if l != nil && l.Now != nil {
		return l.Now().UTC()
	}
	return time.Now().UTC()
}

// EventReplayKey scopes an upstream event id to its tenant.
func EventReplayKey(tenantID string, eventID string) string {
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return ""
	}
	return "event::" + strings.TrimSpace(tenantID) + "::" + eventID
}

// FileReplayKey identifies one file within a tenant. A snippet file raises
// both file_created and file_shared; the key lets only one of them prompt.
func FileReplayKey(tenantID string, fileID string) string {
	fileID = strings.TrimSpace(fileID)
	if fileID == "" {
		return ""
	}
	return "file::" + strings.TrimSpace(tenantID) + "::" + fileID
}

var _ ReplayLedger = (*MemoryReplayLedger)(nil)
