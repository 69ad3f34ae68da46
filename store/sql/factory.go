package sqlstore

import (
	"fmt"

	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/slack-lackey/maid-server/core"
	"github.com/uptrace/bun"
)

// RepositoryFactory builds the durable stores from a bun db or a
// go-persistence-bun client.
type RepositoryFactory struct {
	db      *bun.DB
	secrets core.SecretProvider
	cache   repositorycache.CacheService

	credentialStore core.CredentialStore
}

type FactoryOption func(*RepositoryFactory)

// WithSecretProvider seals access tokens at rest.
func WithSecretProvider(secrets core.SecretProvider) FactoryOption {
	return func(f *RepositoryFactory) {
		f.secrets = secrets
	}
}

// WithCache wraps the credential store in a read-through cache.
func WithCache(cacheService repositorycache.CacheService) FactoryOption {
	return func(f *RepositoryFactory) {
		f.cache = cacheService
	}
}

func NewRepositoryFactory(opts ...FactoryOption) *RepositoryFactory {
	factory := &RepositoryFactory{}
	for _, opt := range opts {
		if opt != nil {
			opt(factory)
		}
	}
	return factory
}

func NewRepositoryFactoryFromPersistence(client *persistence.Client, opts ...FactoryOption) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory(opts...)
	if _, err := factory.BuildStores(client); err != nil {
		return nil, err
	}
	return factory, nil
}

func NewRepositoryFactoryFromDB(db *bun.DB, opts ...FactoryOption) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory(opts...)
	if _, err := factory.BuildStores(db); err != nil {
		return nil, err
	}
	return factory, nil
}

func (f *RepositoryFactory) BuildStores(persistenceClient any) (core.StoreProvider, error) {
	if f == nil {
		return nil, fmt.Errorf("sqlstore: repository factory is nil")
	}
	if f.db == nil {
		db, err := resolveBunDB(persistenceClient)
		if err != nil {
			return nil, err
		}
		f.db = db
	}
	if f.credentialStore != nil {
		return f, nil
	}

	store, err := NewTenantCredentialStore(f.db, f.secrets)
	if err != nil {
		return nil, err
	}
	f.credentialStore = store
	if f.cache != nil {
		cached, err := NewCachedTenantCredentialStore(store, f.cache)
		if err != nil {
			return nil, err
		}
		f.credentialStore = cached
	}
	return f, nil
}

func (f *RepositoryFactory) CredentialStore() core.CredentialStore {
	if f == nil {
		return nil
	}
	return f.credentialStore
}

func (f *RepositoryFactory) DB() *bun.DB {
	if f == nil {
		return nil
	}
	return f.db
}

func resolveBunDB(candidate any) (*bun.DB, error) {
	switch typed := candidate.(type) {
	case nil:
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	case *bun.DB:
		return typed, nil
	case interface{ DB() *bun.DB }:
		db := typed.DB()
		if db == nil {
			return nil, fmt.Errorf("sqlstore: persistence client returned nil bun db")
		}
		return db, nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported persistence client type %T", candidate)
	}
}
