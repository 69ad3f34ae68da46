package inbound

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/slack-lackey/maid-server/core"
)

var ErrAlreadyResponded = errors.New("inbound: interaction already answered")

// Responder answers one interaction. Only the first Respond call is delivered.
type Responder interface {
	Respond(ctx context.Context, reply core.Reply) error
}

type ActionHandlerFunc func(ctx context.Context, action core.ActionPayload, respond Responder) error

type ActionRouter struct {
	Poster  core.ResponsePoster
	Logger  core.Logger
	Metrics core.MetricsRecorder
	Timeout time.Duration

	mu       sync.RWMutex
	handlers map[string]ActionHandlerFunc
}

func NewActionRouter(poster core.ResponsePoster, logger core.Logger) *ActionRouter {
	return &ActionRouter{
		Poster:   poster,
		Logger:   core.ResolveLogger("inbound.actions", nil, logger),
		Metrics:  core.NopMetricsRecorder{},
		Timeout:  30 * time.Second,
		handlers: map[string]ActionHandlerFunc{},
	}
}

func (r *ActionRouter) Handle(actionID string, handler ActionHandlerFunc) error {
	if r == nil {
		return inboundInternal("inbound: action router is nil", nil)
	}
	actionID = strings.TrimSpace(actionID)
	if actionID == "" {
		return inboundBadInput("inbound: action id is required", nil)
	}
	if handler == nil {
		return inboundBadInput("inbound: action handler is nil", map[string]any{"action_id": actionID})
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.handlers == nil {
		r.handlers = map[string]ActionHandlerFunc{}
	}
	if _, exists := r.handlers[actionID]; exists {
		return inboundConflict(
			fmt.Sprintf("inbound: handler already registered for action %q", actionID),
			map[string]any{"action_id": actionID},
		)
	}
	r.handlers[actionID] = handler
	return nil
}

// Route runs the handler registered for the action id. Unknown ids are
// ignored and reported with handled=false.
func (r *ActionRouter) Route(ctx context.Context, action core.ActionPayload) (handled bool, err error) {
	if r == nil {
		return false, inboundInternal("inbound: action router is nil", nil)
	}
	fields := map[string]any{
		"tenant_id": action.TenantID,
		"action_id": action.ActionID,
		"user_id":   action.UserID,
	}
	r.metrics().IncCounter(ctx, core.MetricActionsReceived, 1, map[string]string{"action_id": action.ActionID})

	r.mu.RLock()
	handler := r.handlers[strings.TrimSpace(action.ActionID)]
	r.mu.RUnlock()
	if handler == nil {
		core.LogDebug(ctx, r.Logger, "ignoring unknown action", fields)
		return false, nil
	}

	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("inbound: action %q panicked: %v\n%s", action.ActionID, recovered, debug.Stack())
		}
		if err != nil {
			r.metrics().IncCounter(ctx, core.MetricHandlerFailures, 1, map[string]string{"action_id": action.ActionID})
			core.LogError(ctx, r.Logger, "action handler failed", core.ErrorFields(fields, err))
		}
	}()
	return true, handler(ctx, action, NewResponder(r.Poster, action.ResponseURL))
}

func (r *ActionRouter) metrics() core.MetricsRecorder {
	if r.Metrics == nil {
		return core.NopMetricsRecorder{}
	}
	return r.Metrics
}

type responseURLResponder struct {
	poster      core.ResponsePoster
	responseURL string
	used        atomic.Bool
}

// NewResponder binds a Responder to an interaction's response URL.
func NewResponder(poster core.ResponsePoster, responseURL string) Responder {
	return &responseURLResponder{poster: poster, responseURL: strings.TrimSpace(responseURL)}
}

func (r *responseURLResponder) Respond(ctx context.Context, reply core.Reply) error {
	if !r.used.CompareAndSwap(false, true) {
		return ErrAlreadyResponded
	}
	if r.poster == nil {
		return fmt.Errorf("inbound: response poster is not configured")
	}
	if r.responseURL == "" {
		return fmt.Errorf("inbound: interaction has no response url")
	}
	return r.poster.PostResponse(ctx, r.responseURL, reply)
}
