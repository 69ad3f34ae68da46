package command

import (
	"strings"

	"github.com/slack-lackey/maid-server/core"
)

const TypeInstallTenant = "maid.command.tenant.install"

// InstallTenantMessage records the access token granted by one workspace.
type InstallTenantMessage struct {
	TenantID    string
	TeamName    string
	AccessToken string
	Source      string
}

func (InstallTenantMessage) Type() string { return TypeInstallTenant }

func (m InstallTenantMessage) Validate() error {
	if strings.TrimSpace(m.TenantID) == "" {
		return core.FieldInvalid("command", "tenant_id", "tenant id is required")
	}
	if strings.TrimSpace(m.AccessToken) == "" {
		return core.FieldInvalid("command", "access_token", "access token is required")
	}
	return nil
}
