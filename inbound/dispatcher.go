package inbound

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/slack-lackey/maid-server/core"
)

const (
	SurfaceEvents  = "events"
	SurfaceActions = "actions"
)

const (
	EnvelopeURLVerification = "url_verification"
	EnvelopeEventCallback   = "event_callback"
)

type Verifier interface {
	Verify(ctx context.Context, req core.InboundRequest) error
}

// DecodedEvent is a verified events request body in provider-neutral form.
type DecodedEvent struct {
	Kind      string
	Challenge string
	Envelope  core.InboundEnvelope
}

type PayloadDecoder interface {
	DecodeEvent(body []byte) (DecodedEvent, error)
	// DecodeAction returns ok=false for interactions that carry no button action.
	DecodeAction(body []byte) (action core.ActionPayload, ok bool, err error)
}

// Dispatcher is the single entry point for signed inbound requests. It
// verifies before anything else, acknowledges every verified request, and
// hands routing to a background task.
type Dispatcher struct {
	Verifier  Verifier
	Decoder   PayloadDecoder
	Events    *EventRouter
	Actions   *ActionRouter
	Replays   core.ReplayLedger
	ReplayTTL time.Duration
	Logger    core.Logger

	wg         sync.WaitGroup
	baseOnce   sync.Once
	base       context.Context
	cancelBase context.CancelFunc
}

func NewDispatcher(verifier Verifier, decoder PayloadDecoder, events *EventRouter, actions *ActionRouter) *Dispatcher {
	return &Dispatcher{
		Verifier:  verifier,
		Decoder:   decoder,
		Events:    events,
		Actions:   actions,
		ReplayTTL: 10 * time.Minute,
		Logger:    core.ResolveLogger("inbound.dispatcher", nil, nil),
	}
}

func (d *Dispatcher) Dispatch(ctx context.Context, req core.InboundRequest) (core.InboundResult, error) {
	if d == nil {
		return core.InboundResult{}, inboundInternal("inbound: dispatcher is nil", nil)
	}
	req.Surface = strings.ToLower(strings.TrimSpace(req.Surface))
	if d.Verifier == nil {
		return rejected(req), core.SignatureInvalid(nil, map[string]any{"surface": req.Surface, "reason": "no verifier"})
	}
	if err := d.Verifier.Verify(ctx, req); err != nil {
		return rejected(req), core.SignatureInvalid(err, map[string]any{"surface": req.Surface})
	}
	if d.Decoder == nil {
		return core.InboundResult{}, inboundInternal("inbound: payload decoder is not configured", nil)
	}

	switch req.Surface {
	case SurfaceEvents:
		return d.dispatchEvent(ctx, req)
	case SurfaceActions:
		return d.dispatchAction(ctx, req)
	default:
		return core.InboundResult{}, inboundBadInput("inbound: unsupported surface", map[string]any{"surface": req.Surface})
	}
}

func (d *Dispatcher) dispatchEvent(ctx context.Context, req core.InboundRequest) (core.InboundResult, error) {
	decoded, err := d.Decoder.DecodeEvent(req.Body)
	if err != nil {
		return malformed(req), core.MalformedPayload(err, "inbound: decode event payload", map[string]any{"surface": req.Surface})
	}

	switch decoded.Kind {
	case EnvelopeURLVerification:
		return core.InboundResult{
			Accepted:    true,
			StatusCode:  http.StatusOK,
			Body:        []byte(decoded.Challenge),
			ContentType: "text/plain",
			Metadata:    map[string]any{"surface": req.Surface, "challenge": true},
		}, nil
	case EnvelopeEventCallback:
	default:
		return acknowledged(req, map[string]any{"ignored": decoded.Kind}), nil
	}

	env := decoded.Envelope
	env.RawBody = req.Body
	env.Headers = req.Headers
	if d.isReplay(ctx, env) {
		return acknowledged(req, map[string]any{"deduped": true, "event_id": env.EventID}), nil
	}
	if d.Events != nil {
		d.background(ctx, func(ctx context.Context) {
			if _, err := d.Events.Route(ctx, env); err != nil {
				core.LogError(ctx, d.Logger, "event routing failed", core.ErrorFields(map[string]any{
					"tenant_id": env.TenantID,
					"event_id":  env.EventID,
				}, err))
			}
		})
	}
	return acknowledged(req, map[string]any{"event_id": env.EventID, "tenant_id": env.TenantID}), nil
}

func (d *Dispatcher) dispatchAction(ctx context.Context, req core.InboundRequest) (core.InboundResult, error) {
	action, ok, err := d.Decoder.DecodeAction(req.Body)
	if err != nil {
		return malformed(req), core.MalformedPayload(err, "inbound: decode interaction payload", map[string]any{"surface": req.Surface})
	}
	if !ok {
		return acknowledged(req, map[string]any{"ignored": true}), nil
	}
	if d.Actions != nil {
		d.background(ctx, func(ctx context.Context) {
			_, _ = d.Actions.Route(ctx, action)
		})
	}
	return acknowledged(req, map[string]any{"action_id": action.ActionID, "tenant_id": action.TenantID}), nil
}

// Wait blocks until every background routing task has finished.
func (d *Dispatcher) Wait() {
	if d == nil {
		return
	}
	d.wg.Wait()
}

// Cancel abandons in-flight background routing. Tasks started afterwards
// begin with a cancelled context.
func (d *Dispatcher) Cancel() {
	if d == nil {
		return
	}
	d.baseOnce.Do(d.initBase)
	d.cancelBase()
}

// Shutdown waits for background routing until ctx is done, then cancels
// whatever is still running and returns ctx's error.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	if d == nil {
		return nil
	}
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		d.Cancel()
		return ctx.Err()
	}
}

func (d *Dispatcher) initBase() {
	d.base, d.cancelBase = context.WithCancel(context.Background())
}

func (d *Dispatcher) isReplay(ctx context.Context, env core.InboundEnvelope) bool {
	if d.Replays == nil {
		return false
	}
	key := core.EventReplayKey(env.TenantID, env.EventID)
	if key == "" {
		return false
	}
	accepted, err := d.Replays.Claim(ctx, key, d.ReplayTTL)
	if err != nil {
		core.LogWarn(ctx, d.Logger, "event replay check failed", core.ErrorFields(map[string]any{"event_id": env.EventID}, err))
		return false
	}
	return !accepted
}

// background runs fn after the acknowledgement on a context that outlives the
// request, keeps its values and ends when the dispatcher is cancelled.
func (d *Dispatcher) background(ctx context.Context, fn func(ctx context.Context)) {
	d.baseOnce.Do(d.initBase)
	detached, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stop := context.AfterFunc(d.base, cancel)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer cancel()
		defer stop()
		defer func() {
			if recovered := recover(); recovered != nil {
				core.LogError(detached, d.Logger, "background routing panicked", map[string]any{"panic": recovered})
			}
		}()
		fn(detached)
	}()
}

func rejected(req core.InboundRequest) core.InboundResult {
	return core.InboundResult{
		Accepted:   false,
		StatusCode: http.StatusUnauthorized,
		Metadata:   map[string]any{"surface": req.Surface, "rejected": true},
	}
}

func malformed(req core.InboundRequest) core.InboundResult {
	return core.InboundResult{
		Accepted:   false,
		StatusCode: http.StatusBadRequest,
		Metadata:   map[string]any{"surface": req.Surface, "malformed": true},
	}
}

func acknowledged(req core.InboundRequest, metadata map[string]any) core.InboundResult {
	out := map[string]any{"surface": req.Surface}
	for key, value := range metadata {
		out[key] = value
	}
	return core.InboundResult{Accepted: true, StatusCode: http.StatusOK, Metadata: out}
}
