package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"
)

// ClientResolver lazily builds one chat client per tenant and caches it until
// the tenant's credential changes.
type ClientResolver struct {
	store   CredentialStore
	factory ClientFactory

	mu          sync.RWMutex
	clients     map[string]ChatClient
	generations map[string]uint64
	group       singleflight.Group
}

func NewClientResolver(store CredentialStore, factory ClientFactory) (*ClientResolver, error) {
	if store == nil {
		return nil, fmt.Errorf("core: credential store is required")
	}
	if factory == nil {
		return nil, fmt.Errorf("core: client factory is required")
	}
	return &ClientResolver{
		store:       store,
		factory:     factory,
		clients:     map[string]ChatClient{},
		generations: map[string]uint64{},
	}, nil
}

// Resolve returns the cached client for tenantID, building it on first use.
// A tenant without a stored credential yields an UnknownTenant error.
func (r *ClientResolver) Resolve(ctx context.Context, tenantID string) (ChatClient, error) {
	if r == nil {
		return nil, fmt.Errorf("core: client resolver is not configured")
	}
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return nil, UnknownTenant(tenantID)
	}
	client, generation := r.cached(tenantID)
	if client != nil {
		return client, nil
	}
	value, err, _ := r.group.Do(tenantID, func() (any, error) {
		return r.build(ctx, tenantID, generation)
	})
	if err != nil {
		return nil, err
	}
	client, ok := value.(ChatClient)
	if !ok || client == nil {
		return nil, UnknownTenant(tenantID)
	}
	return client, nil
}

// Invalidate drops the cached client so the next Resolve rereads the credential.
func (r *ClientResolver) Invalidate(tenantID string) {
	if r == nil {
		return
	}
	tenantID = strings.TrimSpace(tenantID)
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.clients, tenantID)
	r.generations[tenantID]++
	r.group.Forget(tenantID)
}

func (r *ClientResolver) cached(tenantID string) (ChatClient, uint64) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.clients[tenantID], r.generations[tenantID]
}

func (r *ClientResolver) build(ctx context.Context, tenantID string, generation uint64) (ChatClient, error) {
	if client, _ := r.cached(tenantID); client != nil {
		return client, nil
	}
	credential, err := r.store.Get(ctx, tenantID)
	if err != nil {
		if errors.Is(err, ErrCredentialNotFound) || IsUnknownTenant(err) {
			return nil, UnknownTenant(tenantID)
		}
		return nil, fmt.Errorf("core: load credential for tenant %q: %w", tenantID, err)
	}
	if strings.TrimSpace(credential.AccessToken) == "" {
		return nil, UnknownTenant(tenantID)
	}
	credential.TenantID = tenantID
	client, err := r.factory(ctx, credential)
	if err != nil {
		return nil, fmt.Errorf("core: build client for tenant %q: %w", tenantID, err)
	}
	if client == nil {
		return nil, fmt.Errorf("core: client factory returned nil for tenant %q", tenantID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.generations[tenantID] == generation {
		r.clients[tenantID] = client
	}
	return client, nil
}
