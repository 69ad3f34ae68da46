package core

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestMemoryCorrelationStore_RedeemOnce(t *testing.T) {
	store := NewMemoryCorrelationStore(time.Minute, 10)
	stored, err := store.Store(context.Background(), PendingSnippet{
		TenantID:   "TA",
		ChannelID:  "C1",
		AuthorID:   "U1",
		SourceText: "fmt.Println(1)",
		SourceKind: SnippetKindMessage,
	})
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	if stored.CorrelationToken == "" {
		t.Fatalf("expected a correlation token")
	}

	redeemed, err := store.Redeem(context.Background(), stored.CorrelationToken)
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if redeemed.SourceText != "fmt.Println(1)" || redeemed.TenantID != "TA" {
		t.Fatalf("expected stored snippet back, got %+v", redeemed)
	}

	if _, err := store.Redeem(context.Background(), stored.CorrelationToken); !IsCorrelationUnavailable(err) {
		t.Fatalf("expected second redeem to fail with correlation unavailable, got %v", err)
	}
}

func TestMemoryCorrelationStore_TokensAreDistinct(t *testing.T) {
	store := NewMemoryCorrelationStore(time.Minute, 100)
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		stored, err := store.Store(context.Background(), PendingSnippet{TenantID: "TA"})
		if err != nil {
			t.Fatalf("store: %v", err)
		}
		if seen[stored.CorrelationToken] {
			t.Fatalf("expected unique tokens, got duplicate %q", stored.CorrelationToken)
		}
		seen[stored.CorrelationToken] = true
	}
}

func TestMemoryCorrelationStore_ExpiredTokenUnavailable(t *testing.T) {
	store := NewMemoryCorrelationStore(time.Minute, 10)
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	store.Now = func() time.Time { return now }

	stored, err := store.Store(context.Background(), PendingSnippet{TenantID: "TA"})
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	now = now.Add(time.Minute)
	if _, err := store.Redeem(context.Background(), stored.CorrelationToken); !IsCorrelationUnavailable(err) {
		t.Fatalf("expected expired token to be unavailable, got %v", err)
	}
	if store.Len() != 0 {
		t.Fatalf("expected expired entry to be removed")
	}
}

func TestMemoryCorrelationStore_UnknownTokenUnavailable(t *testing.T) {
	store := NewMemoryCorrelationStore(time.Minute, 10)
	for _, token := range []string{"", "nope", "fmt.Println(1)"} {
		if _, err := store.Redeem(context.Background(), token); !IsCorrelationUnavailable(err) {
			t.Fatalf("expected token %q to be unavailable, got %v", token, err)
		}
	}
}

func TestMemoryCorrelationStore_EvictsOldestAtCapacity(t *testing.T) {
	store := NewMemoryCorrelationStore(time.Hour, 2)
	counter := 0
	store.NewID = func() string {
		counter++
		return fmt.Sprintf("tok-%d", counter)
	}
	for i := 0; i < 3; i++ {
		if _, err := store.Store(context.Background(), PendingSnippet{TenantID: "TA"}); err != nil {
			t.Fatalf("store %d: %v", i, err)
		}
	}
	if store.Len() != 2 {
		t.Fatalf("expected capacity to hold at 2, got %d", store.Len())
	}
	if _, err := store.Redeem(context.Background(), "tok-1"); !IsCorrelationUnavailable(err) {
		t.Fatalf("expected oldest token to be evicted, got %v", err)
	}
	if _, err := store.Redeem(context.Background(), "tok-3"); err != nil {
		t.Fatalf("expected newest token to survive, got %v", err)
	}
}

func TestMemoryCorrelationStore_ConcurrentRedeemSingleWinner(t *testing.T) {
	store := NewMemoryCorrelationStore(time.Minute, 10)
	stored, err := store.Store(context.Background(), PendingSnippet{TenantID: "TA"})
	if err != nil {
		t.Fatalf("store: %v", err)
	}

	const callers = 32
	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.Redeem(context.Background(), stored.CorrelationToken); err == nil {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if winners != 1 {
		t.Fatalf("expected exactly one successful redeem, got %d", winners)
	}
}

func TestMemoryCorrelationStore_RequiresTenant(t *testing.T) {
	store := NewMemoryCorrelationStore(time.Minute, 10)
	if _, err := store.Store(context.Background(), PendingSnippet{}); err == nil {
		t.Fatalf("expected missing tenant to be rejected")
	}
}
