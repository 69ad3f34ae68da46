package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	defaultCorrelationTTL        = 5 * time.Minute
	defaultCorrelationMaxEntries = 4096
)

// MemoryCorrelationStore holds pending snippets between the prompt and the
// user's answer. Entries expire after the TTL and the oldest are evicted once
// the capacity is reached.
type MemoryCorrelationStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	pending *ttlIndex[PendingSnippet]
	Now     func() time.Time
	NewID   func() string
}

func NewMemoryCorrelationStore(ttl time.Duration, maxEntries int) *MemoryCorrelationStore {
	if ttl <= 0 {
		ttl = defaultCorrelationTTL
	}
	if maxEntries <= 0 {
		maxEntries = defaultCorrelationMaxEntries
	}
	return &MemoryCorrelationStore{
		ttl:     ttl,
		pending: newTTLIndex[PendingSnippet](maxEntries),
		Now: func() time.Time {
			return time.Now().UTC()
		},
		NewID: uuid.NewString,
	}
}

func (s *MemoryCorrelationStore) Store(_ context.Context, snippet PendingSnippet) (PendingSnippet, error) {
	if s == nil {
		return PendingSnippet{}, fmt.Errorf("core: correlation store is not configured")
	}
	if strings.TrimSpace(snippet.TenantID) == "" {
		return PendingSnippet{}, BadInput("core: pending snippet requires a tenant id", nil)
	}
	now := s.now()
	snippet.CorrelationToken = s.newToken()
	if snippet.CreatedAt.IsZero() {
		snippet.CreatedAt = now
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending.put(snippet.CorrelationToken, snippet, now.Add(s.ttl), now)
	return snippet, nil
}

// Redeem hands out the pending snippet once. Expired, unknown and already
// redeemed tokens are indistinguishable to the caller.
func (s *MemoryCorrelationStore) Redeem(_ context.Context, token string) (PendingSnippet, error) {
	if s == nil {
		return PendingSnippet{}, fmt.Errorf("core: correlation store is not configured")
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return PendingSnippet{}, CorrelationUnavailable(token)
	}
	now := s.now()

	s.mu.Lock()
	snippet, ok := s.pending.take(token, now)
	s.mu.Unlock()
	if !ok {
		return PendingSnippet{}, CorrelationUnavailable(token)
	}
	return snippet, nil
}

func (s *MemoryCorrelationStore) Len() int {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending.len()
}

func (s *MemoryCorrelationStore) PurgeExpired(_ context.Context) (int, error) {
	if s == nil {
		return 0, fmt.Errorf("core: correlation store is not configured")
	}
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending.sweep(now), nil
}

func (s *MemoryCorrelationStore) newToken() string {
	if s.NewID != nil {
		if token := strings.TrimSpace(s.NewID()); token != "" {
			return token
		}
	}
	return uuid.NewString()
}

func (s *MemoryCorrelationStore) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

var _ CorrelationStore = (*MemoryCorrelationStore)(nil)
