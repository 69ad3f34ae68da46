package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/slack-lackey/maid-server/core"
)

const tenantCredentialCacheKeyPrefix = "maid::tenant_credential::v1"

// CachedTenantCredentialStore reads through a cache service and drops the
// cached entry whenever a tenant's token is replaced.
type CachedTenantCredentialStore struct {
	base  core.CredentialStore
	cache repositorycache.CacheService
}

func NewCachedTenantCredentialStore(
	base core.CredentialStore,
	cacheService repositorycache.CacheService,
) (*CachedTenantCredentialStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base credential store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: credential cache service is required")
	}
	return &CachedTenantCredentialStore{base: base, cache: cacheService}, nil
}

// TenantCredentialCacheKey returns maid::tenant_credential::v1::<tenant_id>
// with the tenant segment URL-path escaped.
func TenantCredentialCacheKey(tenantID string) (string, error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return "", fmt.Errorf("sqlstore: tenant id is required")
	}
	return tenantCredentialCacheKeyPrefix + "::" + url.PathEscape(tenantID), nil
}

func (s *CachedTenantCredentialStore) Get(ctx context.Context, tenantID string) (core.TenantCredential, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.TenantCredential{}, fmt.Errorf("sqlstore: cached credential store is not configured")
	}
	cacheKey, err := TenantCredentialCacheKey(tenantID)
	if err != nil {
		return core.TenantCredential{}, core.ErrCredentialNotFound
	}
	return repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) (core.TenantCredential, error) {
		return s.base.Get(ctx, strings.TrimSpace(tenantID))
	})
}

func (s *CachedTenantCredentialStore) Put(ctx context.Context, tenantID string, accessToken string) error {
	if s == nil || s.base == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached credential store is not configured")
	}
	if err := s.base.Put(ctx, tenantID, accessToken); err != nil {
		return err
	}
	cacheKey, err := TenantCredentialCacheKey(tenantID)
	if err != nil {
		return err
	}
	return s.cache.Delete(ctx, cacheKey)
}

// NewCacheService builds the default in-process cache with the given TTL.
func NewCacheService(cfg core.PersistenceConfig) (repositorycache.CacheService, error) {
	config := repositorycache.DefaultConfig()
	if cfg.CacheTTL > 0 {
		config.TTL = cfg.CacheTTL
	}
	return repositorycache.NewCacheService(config)
}
