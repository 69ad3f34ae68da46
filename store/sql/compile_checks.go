package sqlstore

import "github.com/slack-lackey/maid-server/core"

var (
	_ core.CredentialStore        = (*TenantCredentialStore)(nil)
	_ core.CredentialStore        = (*CachedTenantCredentialStore)(nil)
	_ core.StoreProvider          = (*RepositoryFactory)(nil)
	_ core.RepositoryStoreFactory = (*RepositoryFactory)(nil)
)
