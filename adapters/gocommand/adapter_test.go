package gocommand

import (
	"context"
	"errors"
	"testing"

	"github.com/goliatone/go-command"
	maidcommand "github.com/slack-lackey/maid-server/command"
	"github.com/slack-lackey/maid-server/core"
)

type okMessage struct{}

func (okMessage) Type() string { return "maid.command.ok" }

type invalidMessage struct{}

func (invalidMessage) Type() string { return "" }

type failingMessage struct{}

func (failingMessage) Type() string { return "maid.command.fail" }

func (failingMessage) Validate() error { return errors.New("invalid payload") }

type dispatchMessage struct {
	ID string
}

func (dispatchMessage) Type() string { return "maid.command.test" }

func TestValidateMessageContract(t *testing.T) {
	if err := ValidateMessageContract(okMessage{}); err != nil {
		t.Fatalf("expected valid message, got %v", err)
	}
	if err := ValidateMessageContract(invalidMessage{}); err == nil {
		t.Fatalf("expected empty type to fail contract validation")
	}
	if err := ValidateMessageContract(failingMessage{}); err == nil {
		t.Fatalf("expected Validate() failure to bubble")
	}
}

func TestBusDispatchesAndCloseUnsubscribes(t *testing.T) {
	bus := NewBus()
	executed := 0
	cmd := command.CommandFunc[dispatchMessage](func(context.Context, dispatchMessage) error {
		executed++
		return nil
	})
	if err := HandleCommand[dispatchMessage](bus, cmd); err != nil {
		t.Fatalf("handle command: %v", err)
	}
	if err := bus.Start(); err != nil {
		t.Fatalf("start bus: %v", err)
	}
	if err := bus.Start(); err != nil {
		t.Fatalf("expected second start to be a no-op, got %v", err)
	}

	if err := Send(context.Background(), dispatchMessage{ID: "m1"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if executed != 1 {
		t.Fatalf("expected command execution count=1, got %d", executed)
	}

	bus.Close()
	_ = Send(context.Background(), dispatchMessage{ID: "m2"})
	if executed != 1 {
		t.Fatalf("expected no execution after close, got %d", executed)
	}
}

func TestSendRejectsInvalidMessage(t *testing.T) {
	if err := Send(context.Background(), invalidMessage{}); err == nil {
		t.Fatalf("expected empty message type to be rejected")
	}
}

func TestHandleCommandRequiresBus(t *testing.T) {
	var bus *Bus
	cmd := command.CommandFunc[okMessage](func(context.Context, okMessage) error { return nil })
	if err := HandleCommand[okMessage](bus, cmd); err == nil {
		t.Fatalf("expected nil bus to fail")
	}
}

func TestTenantBus_InstallThenQuery(t *testing.T) {
	store := core.NewMemoryCredentialStore()
	bus, err := NewTenantBus(storeInstaller{store: store}, store, nil)
	if err != nil {
		t.Fatalf("new tenant bus: %v", err)
	}
	defer bus.Close()

	result, err := bus.InstallTenant(context.Background(), maidcommand.InstallTenantMessage{
		TenantID:    "T1",
		TeamName:    "Lackeys",
		AccessToken: "xoxb-123456789",
	})
	if err != nil {
		t.Fatalf("install tenant: %v", err)
	}
	if result.TenantID != "T1" || result.TeamName != "Lackeys" {
		t.Fatalf("unexpected install result %#v", result)
	}

	view, err := bus.TenantCredential(context.Background(), "T1")
	if err != nil {
		t.Fatalf("query tenant credential: %v", err)
	}
	if view.TenantID != "T1" || view.TokenHint != "xoxb-****6789" {
		t.Fatalf("unexpected credential view %#v", view)
	}
}

func TestTenantBus_RejectsInvalidInstall(t *testing.T) {
	store := core.NewMemoryCredentialStore()
	bus, err := NewTenantBus(storeInstaller{store: store}, store, nil)
	if err != nil {
		t.Fatalf("new tenant bus: %v", err)
	}
	defer bus.Close()

	if _, err := bus.InstallTenant(context.Background(), maidcommand.InstallTenantMessage{TenantID: "T1"}); err == nil {
		t.Fatalf("expected missing token to be rejected")
	}
	if _, err := store.Get(context.Background(), "T1"); !errors.Is(err, core.ErrCredentialNotFound) {
		t.Fatalf("expected nothing stored, got %v", err)
	}
}

type storeInstaller struct {
	store core.CredentialStore
}

func (s storeInstaller) InstallTenant(ctx context.Context, tenantID string, accessToken string) error {
	return s.store.Put(ctx, tenantID, accessToken)
}
