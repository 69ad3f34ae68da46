package inbound

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/slack-lackey/maid-server/core"
)

type callLog struct {
	mu    sync.Mutex
	names []string
}

func (l *callLog) handler(name string, err error) EventHandlerFunc {
	return func(context.Context, EventContext) error {
		l.mu.Lock()
		l.names = append(l.names, name)
		l.mu.Unlock()
		return err
	}
}

func (l *callLog) calls() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.names...)
}

func messageEnvelope(tenantID string, text string) core.InboundEnvelope {
	return core.InboundEnvelope{
		TenantID:  tenantID,
		EventID:   "Ev1",
		EventType: core.EventTypeMessage,
		Event:     core.InnerEvent{Type: core.EventTypeMessage, Text: text, User: "U1", Channel: "C1"},
	}
}

func containing(fragment string) EventPredicate {
	return func(env core.InboundEnvelope) bool { return strings.Contains(env.Event.Text, fragment) }
}

func TestEventRouter_FanOutRunsEveryMatchInOrder(t *testing.T) {
	router := NewEventRouter(&stubClients{tenants: map[string]bool{"TA": true}}, nil)
	log := &callLog{}
	_ = router.On(core.EventTypeMessage, "fence", containing("```"), log.handler("fence", nil))
	_ = router.On(core.EventTypeMessage, "keyword", containing("get gists"), log.handler("keyword", nil))
	_ = router.On(core.EventTypeMessage, "all", nil, log.handler("all", nil))
	_ = router.On(core.EventTypeFileCreated, "file", nil, log.handler("file", nil))

	report, err := router.Route(context.Background(), messageEnvelope("TA", "```x``` get gists"))
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	got := strings.Join(log.calls(), ",")
	if got != "fence,keyword,all" {
		t.Fatalf("expected fan-out in registration order, got %q", got)
	}
	if len(report.Matched) != 3 {
		t.Fatalf("expected three matches, got %v", report.Matched)
	}
}

func TestEventRouter_FirstMatchStopsAfterFirstHandler(t *testing.T) {
	router := NewEventRouter(&stubClients{tenants: map[string]bool{"TA": true}}, nil)
	if err := router.SetPolicies(map[string]string{core.EventTypeMessage: "first_match"}); err != nil {
		t.Fatalf("set policy: %v", err)
	}
	log := &callLog{}
	_ = router.On(core.EventTypeMessage, "miss", containing("nope"), log.handler("miss", nil))
	_ = router.On(core.EventTypeMessage, "first", nil, log.handler("first", nil))
	_ = router.On(core.EventTypeMessage, "second", nil, log.handler("second", nil))

	if _, err := router.Route(context.Background(), messageEnvelope("TA", "hello")); err != nil {
		t.Fatalf("route: %v", err)
	}
	if got := strings.Join(log.calls(), ","); got != "first" {
		t.Fatalf("expected only the first matching handler, got %q", got)
	}
}

func TestEventRouter_HandlerFailureIsolated(t *testing.T) {
	router := NewEventRouter(&stubClients{tenants: map[string]bool{"TA": true}}, nil)
	log := &callLog{}
	_ = router.On(core.EventTypeMessage, "fails", nil, log.handler("fails", errBoom))
	_ = router.On(core.EventTypeMessage, "panics", nil, func(context.Context, EventContext) error {
		panic("handler exploded")
	})
	_ = router.On(core.EventTypeMessage, "after", nil, log.handler("after", nil))

	report, err := router.Route(context.Background(), messageEnvelope("TA", "hi"))
	if err != nil {
		t.Fatalf("expected handler failures not to surface, got %v", err)
	}
	if got := strings.Join(log.calls(), ","); got != "fails,after" {
		t.Fatalf("expected later handlers to run, got %q", got)
	}
	if strings.Join(report.Failed, ",") != "fails,panics" {
		t.Fatalf("expected failures to be reported, got %v", report.Failed)
	}
}

func TestEventRouter_UnknownTenantDropsBeforeHandlers(t *testing.T) {
	clients := &stubClients{tenants: map[string]bool{}}
	router := NewEventRouter(clients, nil)
	metrics := core.NewMemoryMetricsRecorder()
	router.Metrics = metrics
	log := &callLog{}
	_ = router.On(core.EventTypeMessage, "any", nil, log.handler("any", nil))

	report, err := router.Route(context.Background(), messageEnvelope("T404", "```x```"))
	if err != nil {
		t.Fatalf("expected unknown tenant to be dropped quietly, got %v", err)
	}
	if !report.Dropped {
		t.Fatalf("expected dropped report")
	}
	if len(log.calls()) != 0 {
		t.Fatalf("expected no handler to run for unknown tenant")
	}
	if metrics.Counter(core.MetricEventsDropped) != 1 {
		t.Fatalf("expected drop to be counted")
	}
}

func TestEventRouter_NoMatchSkipsClientResolution(t *testing.T) {
	clients := &stubClients{tenants: map[string]bool{"TA": true}}
	router := NewEventRouter(clients, nil)
	_ = router.On(core.EventTypeMessage, "fence", containing("```"), func(context.Context, EventContext) error { return nil })

	if _, err := router.Route(context.Background(), messageEnvelope("TA", "plain text")); err != nil {
		t.Fatalf("route: %v", err)
	}
	if clients.calls != 0 {
		t.Fatalf("expected no client resolution without a match")
	}
}

func TestEventRouter_HandlerReceivesOwnTenantClient(t *testing.T) {
	router := NewEventRouter(&stubClients{tenants: map[string]bool{"TA": true, "TB": true}}, nil)
	var mu sync.Mutex
	seen := map[string]string{}
	_ = router.On(core.EventTypeMessage, "record", nil, func(_ context.Context, evt EventContext) error {
		mu.Lock()
		seen[evt.Envelope.TenantID] = evt.Client.TenantID()
		mu.Unlock()
		return nil
	})
	var wg sync.WaitGroup
	for _, tenantID := range []string{"TA", "TB"} {
		wg.Add(1)
		go func(tenantID string) {
			defer wg.Done()
			_, _ = router.Route(context.Background(), messageEnvelope(tenantID, "x"))
		}(tenantID)
	}
	wg.Wait()
	for tenantID, clientTenant := range seen {
		if tenantID != clientTenant {
			t.Fatalf("expected tenant %s to get its own client, got %s", tenantID, clientTenant)
		}
	}
}

func TestEventRouter_ResolutionErrorSurfaces(t *testing.T) {
	router := NewEventRouter(&stubClients{err: errBoom}, nil)
	_ = router.On(core.EventTypeMessage, "any", nil, func(context.Context, EventContext) error { return nil })
	if _, err := router.Route(context.Background(), messageEnvelope("TA", "x")); !errors.Is(err, errBoom) {
		t.Fatalf("expected resolution error, got %v", err)
	}
}

func TestEventRouter_RegistrationValidation(t *testing.T) {
	router := NewEventRouter(nil, nil)
	if err := router.On("", "x", nil, func(context.Context, EventContext) error { return nil }); err == nil {
		t.Fatalf("expected missing event type to fail")
	}
	if err := router.On(core.EventTypeMessage, "x", nil, nil); err == nil {
		t.Fatalf("expected nil handler to fail")
	}
	_ = router.On(core.EventTypeMessage, "dup", nil, func(context.Context, EventContext) error { return nil })
	if err := router.On(core.EventTypeMessage, "dup", nil, func(context.Context, EventContext) error { return nil }); err == nil {
		t.Fatalf("expected duplicate route name to fail")
	}
	if err := router.SetPolicy(core.EventTypeMessage, Policy("random")); err == nil {
		t.Fatalf("expected unknown policy to fail")
	}
}
