package query

import gocmd "github.com/goliatone/go-command"

var _ gocmd.Querier[GetTenantCredentialMessage, TenantCredentialView] = (*GetTenantCredentialQuery)(nil)
