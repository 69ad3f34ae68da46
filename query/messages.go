package query

import (
	"strings"

	"github.com/slack-lackey/maid-server/core"
)

const TypeGetTenantCredential = "maid.query.tenant_credential.get"

type GetTenantCredentialMessage struct {
	TenantID string
}

func (GetTenantCredentialMessage) Type() string { return TypeGetTenantCredential }

func (m GetTenantCredentialMessage) Validate() error {
	if strings.TrimSpace(m.TenantID) == "" {
		return core.FieldInvalid("query", "tenant_id", "tenant id is required")
	}
	return nil
}
