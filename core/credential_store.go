package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// MemoryCredentialStore keeps one credential per tenant for the process lifetime.
// Reads are lock-free so a write for one tenant never stalls lookups for another.
type MemoryCredentialStore struct {
	entries sync.Map
	Now     func() time.Time
}

func NewMemoryCredentialStore() *MemoryCredentialStore {
	return &MemoryCredentialStore{
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (s *MemoryCredentialStore) Put(_ context.Context, tenantID string, accessToken string) error {
	if s == nil {
		return fmt.Errorf("core: credential store is not configured")
	}
	tenantID = strings.TrimSpace(tenantID)
	accessToken = strings.TrimSpace(accessToken)
	if tenantID == "" {
		return BadInput("core: tenant id is required", nil)
	}
	if accessToken == "" {
		return BadInput("core: access token is required", map[string]any{"tenant_id": tenantID})
	}
	s.entries.Store(tenantID, TenantCredential{
		TenantID:    tenantID,
		AccessToken: accessToken,
		UpdatedAt:   s.now(),
	})
	return nil
}

func (s *MemoryCredentialStore) Get(_ context.Context, tenantID string) (TenantCredential, error) {
	if s == nil {
		return TenantCredential{}, fmt.Errorf("core: credential store is not configured")
	}
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return TenantCredential{}, ErrCredentialNotFound
	}
	value, ok := s.entries.Load(tenantID)
	if !ok {
		return TenantCredential{}, ErrCredentialNotFound
	}
	credential, ok := value.(TenantCredential)
	if !ok {
		return TenantCredential{}, ErrCredentialNotFound
	}
	return credential, nil
}

func (s *MemoryCredentialStore) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

var _ CredentialStore = (*MemoryCredentialStore)(nil)
