package gocommand

import (
	"context"
	"fmt"
	"strings"

	gocmd "github.com/goliatone/go-command"
	maidcommand "github.com/slack-lackey/maid-server/command"
	"github.com/slack-lackey/maid-server/core"
	maidquery "github.com/slack-lackey/maid-server/query"
)

// TenantBus routes tenant install commands and credential queries through
// the go-command dispatcher.
type TenantBus struct {
	*Bus
}

func NewTenantBus(
	installer maidcommand.TenantInstaller,
	reader maidquery.CredentialReader,
	logger core.Logger,
) (*TenantBus, error) {
	if installer == nil {
		return nil, fmt.Errorf("gocommand: tenant installer is required")
	}
	if reader == nil {
		return nil, fmt.Errorf("gocommand: credential reader is required")
	}
	bus := &TenantBus{Bus: NewBus()}

	if err := HandleCommand[maidcommand.InstallTenantMessage](
		bus.Bus,
		maidcommand.NewInstallTenantCommand(installer, logger),
	); err != nil {
		return nil, fmt.Errorf("gocommand: register install command: %w", err)
	}
	if err := HandleQuery[maidquery.GetTenantCredentialMessage, maidquery.TenantCredentialView](
		bus.Bus,
		maidquery.NewGetTenantCredentialQuery(reader),
	); err != nil {
		bus.Close()
		return nil, fmt.Errorf("gocommand: register credential query: %w", err)
	}
	if err := bus.Start(); err != nil {
		bus.Close()
		return nil, fmt.Errorf("gocommand: start bus: %w", err)
	}
	return bus, nil
}

func (b *TenantBus) InstallTenant(
	ctx context.Context,
	msg maidcommand.InstallTenantMessage,
) (maidcommand.InstallTenantResult, error) {
	if b == nil {
		return maidcommand.InstallTenantResult{}, fmt.Errorf("gocommand: tenant bus is nil")
	}
	collector := gocmd.NewResult[maidcommand.InstallTenantResult]()
	if err := Send(gocmd.ContextWithResult(ctx, collector), msg); err != nil {
		return maidcommand.InstallTenantResult{}, err
	}
	result, ok := collector.Load()
	if !ok {
		result = maidcommand.InstallTenantResult{TenantID: strings.TrimSpace(msg.TenantID)}
	}
	return result, nil
}

func (b *TenantBus) TenantCredential(ctx context.Context, tenantID string) (maidquery.TenantCredentialView, error) {
	if b == nil {
		return maidquery.TenantCredentialView{}, fmt.Errorf("gocommand: tenant bus is nil")
	}
	return Ask[maidquery.GetTenantCredentialMessage, maidquery.TenantCredentialView](
		ctx,
		maidquery.GetTenantCredentialMessage{TenantID: tenantID},
	)
}
