package reply

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/slack-lackey/maid-server/core"
)

// Responder answers an interaction through its response URL.
type Responder interface {
	Respond(ctx context.Context, reply core.Reply) error
}

type Emitter struct {
	Logger  core.Logger
	Timeout time.Duration
}

func NewEmitter(logger core.Logger, timeout time.Duration) *Emitter {
	return &Emitter{
		Logger:  core.ResolveLogger("reply", nil, logger),
		Timeout: timeout,
	}
}

// Ephemeral posts a reply only userID can see.
func (e *Emitter) Ephemeral(ctx context.Context, client core.ChatClient, channelID string, userID string, reply core.Reply) error {
	if client == nil {
		return fmt.Errorf("reply: chat client is nil")
	}
	if strings.TrimSpace(channelID) == "" || strings.TrimSpace(userID) == "" {
		return core.BadInput("reply: channel and user are required for an ephemeral reply", map[string]any{
			"channel_id": channelID,
			"user_id":    userID,
		})
	}
	ctx, cancel := e.bound(ctx)
	defer cancel()
	err := client.PostEphemeral(ctx, channelID, userID, reply)
	e.observe(ctx, "ephemeral", client.TenantID(), channelID, err)
	return err
}

// Channel posts a reply visible to everyone in channelID.
func (e *Emitter) Channel(ctx context.Context, client core.ChatClient, channelID string, reply core.Reply) error {
	if client == nil {
		return fmt.Errorf("reply: chat client is nil")
	}
	if strings.TrimSpace(channelID) == "" {
		return core.BadInput("reply: channel is required", nil)
	}
	ctx, cancel := e.bound(ctx)
	defer cancel()
	err := client.PostMessage(ctx, channelID, reply)
	e.observe(ctx, "channel", client.TenantID(), channelID, err)
	return err
}

// Response answers an interaction through its responder.
func (e *Emitter) Response(ctx context.Context, responder Responder, reply core.Reply) error {
	if responder == nil {
		return fmt.Errorf("reply: responder is nil")
	}
	ctx, cancel := e.bound(ctx)
	defer cancel()
	err := responder.Respond(ctx, reply)
	e.observe(ctx, "response", "", "", err)
	return err
}

func (e *Emitter) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if e == nil || e.Timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, e.Timeout)
}

func (e *Emitter) observe(ctx context.Context, mode string, tenantID string, channelID string, err error) {
	if e == nil {
		return
	}
	fields := map[string]any{"mode": mode}
	if tenantID != "" {
		fields["tenant_id"] = tenantID
	}
	if channelID != "" {
		fields["channel_id"] = channelID
	}
	if err != nil {
		core.LogWarn(ctx, e.Logger, "reply delivery failed", core.ErrorFields(fields, err))
		return
	}
	core.LogDebug(ctx, e.Logger, "reply delivered", fields)
}
