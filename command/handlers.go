package command

import (
	"context"
	"strings"
	"time"

	gocmd "github.com/goliatone/go-command"
	"github.com/slack-lackey/maid-server/core"
)

// TenantInstaller stores a workspace token and drops any cached client for it.
type TenantInstaller interface {
	InstallTenant(ctx context.Context, tenantID string, accessToken string) error
}

type InstallTenantResult struct {
	TenantID    string
	TeamName    string
	InstalledAt time.Time
}

type InstallTenantCommand struct {
	installer TenantInstaller
	logger    core.Logger
	now       func() time.Time
}

func NewInstallTenantCommand(installer TenantInstaller, logger core.Logger) *InstallTenantCommand {
	return &InstallTenantCommand{
		installer: installer,
		logger:    core.ResolveLogger("command.install_tenant", nil, logger),
		now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (c *InstallTenantCommand) Execute(ctx context.Context, msg InstallTenantMessage) error {
	if c == nil || c.installer == nil {
		return core.Internal("command: tenant installer is required", nil)
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	tenantID := strings.TrimSpace(msg.TenantID)
	if err := c.installer.InstallTenant(ctx, tenantID, strings.TrimSpace(msg.AccessToken)); err != nil {
		return err
	}

	result := InstallTenantResult{
		TenantID:    tenantID,
		TeamName:    strings.TrimSpace(msg.TeamName),
		InstalledAt: c.now(),
	}
	core.LogInfo(ctx, c.logger, "tenant installed", map[string]any{
		"tenant_id": result.TenantID,
		"team_name": result.TeamName,
		"source":    msg.Source,
	})
	storeResult(ctx, result)
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
