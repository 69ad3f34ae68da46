package inbound

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/slack-lackey/maid-server/core"
)

type Policy string

const (
	PolicyFanOut     Policy = core.RouterPolicyFanOut
	PolicyFirstMatch Policy = core.RouterPolicyFirstMatch
)

// ClientSource hands out the chat client bound to one tenant.
type ClientSource interface {
	Resolve(ctx context.Context, tenantID string) (core.ChatClient, error)
}

type EventPredicate func(env core.InboundEnvelope) bool

// EventContext is what a matched handler receives: the envelope and the
// client bound to the envelope's own tenant.
type EventContext struct {
	Envelope core.InboundEnvelope
	Client   core.ChatClient
}

type EventHandlerFunc func(ctx context.Context, evt EventContext) error

type eventRoute struct {
	eventType string
	name      string
	match     EventPredicate
	handle    EventHandlerFunc
}

// RouteReport summarizes one Route call.
type RouteReport struct {
	Matched []string
	Failed  []string
	Dropped bool
}

type EventRouter struct {
	Clients        ClientSource
	Logger         core.Logger
	Metrics        core.MetricsRecorder
	HandlerTimeout time.Duration

	mu       sync.RWMutex
	routes   []eventRoute
	policies map[string]Policy
}

func NewEventRouter(clients ClientSource, logger core.Logger) *EventRouter {
	return &EventRouter{
		Clients:        clients,
		Logger:         core.ResolveLogger("inbound.events", nil, logger),
		Metrics:        core.NopMetricsRecorder{},
		HandlerTimeout: 10 * time.Second,
		policies:       map[string]Policy{},
	}
}

// On appends a route. Routes for the same event type run in registration order.
func (r *EventRouter) On(eventType string, name string, match EventPredicate, handle EventHandlerFunc) error {
	if r == nil {
		return inboundInternal("inbound: event router is nil", nil)
	}
	eventType = strings.TrimSpace(eventType)
	name = strings.TrimSpace(name)
	if eventType == "" {
		return inboundBadInput("inbound: event type is required", map[string]any{"route": name})
	}
	if handle == nil {
		return inboundBadInput("inbound: event handler is nil", map[string]any{"event_type": eventType, "route": name})
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if name == "" {
		name = fmt.Sprintf("%s#%d", eventType, len(r.routes))
	}
	for _, existing := range r.routes {
		if existing.eventType == eventType && existing.name == name {
			return inboundConflict(
				fmt.Sprintf("inbound: route %q already registered for %q", name, eventType),
				map[string]any{"event_type": eventType, "route": name},
			)
		}
	}
	r.routes = append(r.routes, eventRoute{eventType: eventType, name: name, match: match, handle: handle})
	return nil
}

func (r *EventRouter) SetPolicy(eventType string, policy Policy) error {
	if r == nil {
		return inboundInternal("inbound: event router is nil", nil)
	}
	switch policy {
	case PolicyFanOut, PolicyFirstMatch:
	default:
		return inboundBadInput(fmt.Sprintf("inbound: unsupported routing policy %q", policy), map[string]any{
			"event_type": eventType,
		})
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.policies == nil {
		r.policies = map[string]Policy{}
	}
	r.policies[strings.TrimSpace(eventType)] = policy
	return nil
}

// SetPolicies applies a config map of event type to policy name.
func (r *EventRouter) SetPolicies(policies map[string]string) error {
	for eventType, policy := range policies {
		if err := r.SetPolicy(eventType, Policy(strings.ToLower(strings.TrimSpace(policy)))); err != nil {
			return err
		}
	}
	return nil
}

// Route runs the handlers matching env. Handler failures and panics are
// logged and reported, never returned. The only error is a client resolution
// failure other than an unknown tenant.
func (r *EventRouter) Route(ctx context.Context, env core.InboundEnvelope) (RouteReport, error) {
	report := RouteReport{}
	if r == nil {
		return report, inboundInternal("inbound: event router is nil", nil)
	}
	fields := map[string]any{
		"tenant_id":  env.TenantID,
		"event_id":   env.EventID,
		"event_type": env.EventType,
	}
	r.metrics().IncCounter(ctx, core.MetricEventsReceived, 1, map[string]string{"event_type": env.EventType})

	matched := r.matching(env)
	if len(matched) == 0 {
		core.LogDebug(ctx, r.Logger, "no route matched event", fields)
		return report, nil
	}

	client, err := r.resolve(ctx, env.TenantID)
	if err != nil {
		if core.IsUnknownTenant(err) {
			report.Dropped = true
			r.metrics().IncCounter(ctx, core.MetricEventsDropped, 1, map[string]string{"reason": "unknown_tenant"})
			core.LogWarn(ctx, r.Logger, "dropping event for unknown tenant", fields)
			return report, nil
		}
		core.LogError(ctx, r.Logger, "client resolution failed", core.ErrorFields(fields, err))
		return report, err
	}

	evt := EventContext{Envelope: env, Client: client}
	for _, route := range matched {
		report.Matched = append(report.Matched, route.name)
		if err := r.invoke(ctx, route, evt); err != nil {
			report.Failed = append(report.Failed, route.name)
			r.metrics().IncCounter(ctx, core.MetricHandlerFailures, 1, map[string]string{"route": route.name})
			routeFields := core.ErrorFields(fields, err)
			routeFields["route"] = route.name
			core.LogError(ctx, r.Logger, "event handler failed", routeFields)
		}
	}
	return report, nil
}

// matching evaluates predicates under the routing policy for the event type.
func (r *EventRouter) matching(env core.InboundEnvelope) []eventRoute {
	r.mu.RLock()
	routes := append([]eventRoute(nil), r.routes...)
	policy := r.policies[env.EventType]
	r.mu.RUnlock()

	var matched []eventRoute
	for _, route := range routes {
		if route.eventType != env.EventType {
			continue
		}
		if !safeMatch(route.match, env) {
			continue
		}
		matched = append(matched, route)
		if policy == PolicyFirstMatch {
			break
		}
	}
	return matched
}

func (r *EventRouter) resolve(ctx context.Context, tenantID string) (core.ChatClient, error) {
	if r.Clients == nil {
		return nil, core.UnknownTenant(tenantID)
	}
	return r.Clients.Resolve(ctx, tenantID)
}

func (r *EventRouter) invoke(ctx context.Context, route eventRoute, evt EventContext) (err error) {
	if r.HandlerTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.HandlerTimeout)
		defer cancel()
	}
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("inbound: handler %q panicked: %v\n%s", route.name, recovered, debug.Stack())
		}
	}()
	return route.handle(ctx, evt)
}

func (r *EventRouter) metrics() core.MetricsRecorder {
	if r.Metrics == nil {
		return core.NopMetricsRecorder{}
	}
	return r.Metrics
}

func safeMatch(match EventPredicate, env core.InboundEnvelope) (ok bool) {
	if match == nil {
		return true
	}
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	return match(env)
}
