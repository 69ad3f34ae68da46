package snippet

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/slack-lackey/maid-server/core"
	"github.com/slack-lackey/maid-server/inbound"
	"github.com/slack-lackey/maid-server/reply"
)

func TestPipeline_MessageRoundTripExtractsContentExactly(t *testing.T) {
	client := newFakeClient("T1", "tok-1")
	client.users["U1"] = core.User{ID: "U1", DisplayName: "Ada Lovelace"}
	exporter := &spyExporter{url: "https://gist.github.com/abc"}
	pipeline, _ := newTestPipeline(map[string]core.ChatClient{"T1": client}, exporter)
	ctx := context.Background()

	env := messageEnvelope("T1", "U1", "```const x=1;```")
	if err := pipeline.OnCodeBlock(ctx, inbound.EventContext{Envelope: env, Client: client}); err != nil {
		t.Fatalf("expected prompt, got %v", err)
	}
	prompts := client.prompts()
	if len(prompts) != 1 || prompts[0].user != "U1" || prompts[0].channel != "C1" {
		t.Fatalf("expected one ephemeral prompt to the author, got %+v", prompts)
	}
	token := client.lastToken()
	if token == "" || strings.Contains(token, "const") {
		t.Fatalf("expected buttons to carry only an opaque token, got %q", token)
	}

	responder := &recordingResponder{}
	action := core.ActionPayload{ActionID: reply.ActionSaveGist, Value: token, TenantID: "T1", UserID: "U1"}
	if err := pipeline.OnSave(ctx, action, responder); err != nil {
		t.Fatalf("expected save to succeed, got %v", err)
	}
	if exporter.calls() != 1 {
		t.Fatalf("expected one export, got %d", exporter.calls())
	}
	req := exporter.requests[0]
	if req.Content != "const x=1;" {
		t.Fatalf("expected content %q, got %q", "const x=1;", req.Content)
	}
	if req.Title != "ada-lovelace-1772463845000.js" {
		t.Fatalf("unexpected title %q", req.Title)
	}
	if req.Description != "Created by Ada Lovelace on Monday, March 2nd 2026, 3:04:05 pm" {
		t.Fatalf("unexpected description %q", req.Description)
	}
	if responder.last().Text != "I saved it as a gist for you. You can find it here:\nhttps://gist.github.com/abc" {
		t.Fatalf("unexpected reply %q", responder.last().Text)
	}
}

func TestPipeline_DoubleRedeemExportsOnce(t *testing.T) {
	client := newFakeClient("T1", "tok-1")
	exporter := &spyExporter{url: "https://gist.github.com/abc"}
	pipeline, store := newTestPipeline(map[string]core.ChatClient{"T1": client}, exporter)
	ctx := context.Background()

	_ = pipeline.OnCodeBlock(ctx, inbound.EventContext{Envelope: messageEnvelope("T1", "U1", "```x```"), Client: client})
	token := client.lastToken()
	action := core.ActionPayload{ActionID: reply.ActionSaveGist, Value: token, TenantID: "T1"}

	first, second := &recordingResponder{}, &recordingResponder{}
	_ = pipeline.OnSave(ctx, action, first)
	_ = pipeline.OnSave(ctx, action, second)

	if exporter.calls() != 1 {
		t.Fatalf("expected exactly one export, got %d", exporter.calls())
	}
	if second.last().Text != reply.TextNoLongerValid {
		t.Fatalf("expected second click to be told the request is no longer valid, got %q", second.last().Text)
	}
	if _, err := store.Redeem(ctx, token); !core.IsCorrelationUnavailable(err) {
		t.Fatalf("expected token to stay consumed, got %v", err)
	}
}

func TestPipeline_DeclineThenConfirm(t *testing.T) {
	client := newFakeClient("T1", "tok-1")
	exporter := &spyExporter{url: "https://gist.github.com/abc"}
	pipeline, _ := newTestPipeline(map[string]core.ChatClient{"T1": client}, exporter)
	metrics := core.NewMemoryMetricsRecorder()
	pipeline.Metrics = metrics
	ctx := context.Background()

	_ = pipeline.OnCodeBlock(ctx, inbound.EventContext{Envelope: messageEnvelope("T1", "U1", "```x```"), Client: client})
	token := client.lastToken()

	declined := &recordingResponder{}
	if err := pipeline.OnDiscard(ctx, core.ActionPayload{ActionID: reply.ActionDiscardGist, Value: token, TenantID: "T1"}, declined); err != nil {
		t.Fatalf("expected discard to succeed, got %v", err)
	}
	if declined.last().Text != "No problem, I won't save it." {
		t.Fatalf("unexpected decline reply %q", declined.last().Text)
	}

	late := &recordingResponder{}
	_ = pipeline.OnSave(ctx, core.ActionPayload{ActionID: reply.ActionSaveGist, Value: token, TenantID: "T1"}, late)
	if exporter.calls() != 0 {
		t.Fatalf("expected no export after decline")
	}
	if late.last().Text != reply.TextNoLongerValid {
		t.Fatalf("expected no longer valid reply, got %q", late.last().Text)
	}
	if metrics.Counter(core.MetricSnippetsPrompted) != 1 || metrics.Counter(core.MetricSnippetsDiscarded) != 1 {
		t.Fatalf("expected prompted and discarded counters")
	}
}

func TestPipeline_ExpiredTokenIsNoLongerValid(t *testing.T) {
	client := newFakeClient("T1", "tok-1")
	exporter := &spyExporter{url: "https://gist.github.com/abc"}
	pipeline, store := newTestPipeline(map[string]core.ChatClient{"T1": client}, exporter)
	ctx := context.Background()

	_ = pipeline.OnCodeBlock(ctx, inbound.EventContext{Envelope: messageEnvelope("T1", "U1", "```x```"), Client: client})
	store.Now = func() time.Time { return fixedNow.Add(6 * time.Minute) }

	responder := &recordingResponder{}
	_ = pipeline.OnSave(ctx, core.ActionPayload{ActionID: reply.ActionSaveGist, Value: client.lastToken(), TenantID: "T1"}, responder)
	if exporter.calls() != 0 || responder.last().Text != reply.TextNoLongerValid {
		t.Fatalf("expected expired token to be rejected without export, got %d %q", exporter.calls(), responder.last().Text)
	}
}

func TestPipeline_ExportFailureRepliesAndDoesNotRetry(t *testing.T) {
	client := newFakeClient("T1", "tok-1")
	exporter := &spyExporter{err: core.ExternalAPIError(errors.New("503"), "hosting", nil)}
	pipeline, _ := newTestPipeline(map[string]core.ChatClient{"T1": client}, exporter)
	publisher := &recordingPublisher{}
	pipeline.Publisher = publisher
	ctx := context.Background()

	_ = pipeline.OnCodeBlock(ctx, inbound.EventContext{Envelope: messageEnvelope("T1", "U1", "```x```"), Client: client})
	responder := &recordingResponder{}
	_ = pipeline.OnSave(ctx, core.ActionPayload{ActionID: reply.ActionSaveGist, Value: client.lastToken(), TenantID: "T1"}, responder)

	if exporter.calls() != 1 {
		t.Fatalf("expected a single export attempt, got %d", exporter.calls())
	}
	got := responder.last()
	if got.Text != "Sorry, there's been an error. Try again later." || !got.ReplaceOriginal {
		t.Fatalf("expected replace_original error reply, got %+v", got)
	}
	if len(publisher.published) != 0 {
		t.Fatalf("expected no export event on failure")
	}
}

func TestPipeline_SuccessPublishesEvent(t *testing.T) {
	client := newFakeClient("T1", "tok-1")
	exporter := &spyExporter{url: "https://gist.github.com/abc"}
	pipeline, _ := newTestPipeline(map[string]core.ChatClient{"T1": client}, exporter)
	publisher := &recordingPublisher{}
	pipeline.Publisher = publisher
	ctx := context.Background()

	_ = pipeline.OnCodeBlock(ctx, inbound.EventContext{Envelope: messageEnvelope("T1", "U1", "```x```"), Client: client})
	token := client.lastToken()
	_ = pipeline.OnSave(ctx, core.ActionPayload{ActionID: reply.ActionSaveGist, Value: token, TenantID: "T1"}, &recordingResponder{})

	if len(publisher.published) != 1 {
		t.Fatalf("expected one export event, got %d", len(publisher.published))
	}
	evt := publisher.published[0]
	if evt.TenantID != "T1" || evt.CorrelationToken != token || evt.URL != "https://gist.github.com/abc" {
		t.Fatalf("unexpected export event %+v", evt)
	}
}

func TestPipeline_AuthorFallsBackToUserID(t *testing.T) {
	client := newFakeClient("T1", "tok-1")
	exporter := &spyExporter{url: "https://gist.github.com/abc"}
	pipeline, _ := newTestPipeline(map[string]core.ChatClient{"T1": client}, exporter)
	ctx := context.Background()

	_ = pipeline.OnCodeBlock(ctx, inbound.EventContext{Envelope: messageEnvelope("T1", "U9", "```x```"), Client: client})
	_ = pipeline.OnSave(ctx, core.ActionPayload{ActionID: reply.ActionSaveGist, Value: client.lastToken(), TenantID: "T1"}, &recordingResponder{})

	if got := exporter.requests[0].Description; !strings.HasPrefix(got, "Created by U9 on ") {
		t.Fatalf("expected user id fallback in description, got %q", got)
	}
}

func TestPipeline_TokenFromAnotherTenantRejected(t *testing.T) {
	client := newFakeClient("T1", "tok-1")
	exporter := &spyExporter{url: "https://gist.github.com/abc"}
	pipeline, _ := newTestPipeline(map[string]core.ChatClient{"T1": client}, exporter)
	ctx := context.Background()

	_ = pipeline.OnCodeBlock(ctx, inbound.EventContext{Envelope: messageEnvelope("T1", "U1", "```x```"), Client: client})
	responder := &recordingResponder{}
	_ = pipeline.OnSave(ctx, core.ActionPayload{ActionID: reply.ActionSaveGist, Value: client.lastToken(), TenantID: "T2"}, responder)

	if exporter.calls() != 0 || responder.last().Text != reply.TextNoLongerValid {
		t.Fatalf("expected cross-tenant token to be rejected")
	}
}

func TestPipeline_FailedPromptReleasesToken(t *testing.T) {
	client := newFakeClient("T1", "tok-1")
	client.postErr = errors.New("channel_not_found")
	pipeline, store := newTestPipeline(map[string]core.ChatClient{"T1": client}, &spyExporter{})

	err := pipeline.OnCodeBlock(context.Background(), inbound.EventContext{Envelope: messageEnvelope("T1", "U1", "```x```"), Client: client})
	if err == nil {
		t.Fatalf("expected prompt failure to surface to the router")
	}
	if store.Len() != 0 {
		t.Fatalf("expected pending snippet to be released, got %d", store.Len())
	}
}

func TestPipeline_GetGistsPostsToChannel(t *testing.T) {
	client := newFakeClient("T1", "tok-1")
	pipeline, _ := newTestPipeline(map[string]core.ChatClient{"T1": client}, &spyExporter{})
	pipeline.Lister = fakeLister{url: "https://api.github.com/gists/1"}

	env := messageEnvelope("T1", "U1", "hey maid, get gists please")
	if err := pipeline.OnGetGists(context.Background(), inbound.EventContext{Envelope: env, Client: client}); err != nil {
		t.Fatalf("expected gists reply, got %v", err)
	}
	if len(client.messages) != 1 || client.messages[0].reply.Text != "Your gists are here:\nhttps://api.github.com/gists/1" {
		t.Fatalf("unexpected channel messages %+v", client.messages)
	}
	if client.messages[0].channel != "C1" {
		t.Fatalf("expected reply in the originating channel, got %q", client.messages[0].channel)
	}
}

func TestPipeline_UnknownTenantMakesNoOutboundCalls(t *testing.T) {
	factory := &tokenFactory{clients: map[string]*fakeClient{}}
	resolver, err := core.NewClientResolver(core.NewMemoryCredentialStore(), factory.Build)
	if err != nil {
		t.Fatalf("expected resolver, got %v", err)
	}
	exporter := &spyExporter{}
	pipeline, _ := newTestPipeline(nil, exporter)
	pipeline.Clients = resolver

	events := inbound.NewEventRouter(resolver, nil)
	actions := inbound.NewActionRouter(&recordingPoster{}, nil)
	if err := pipeline.Register(events, actions); err != nil {
		t.Fatalf("expected registration, got %v", err)
	}

	report, err := events.Route(context.Background(), messageEnvelope("T-missing", "U1", "```x```"))
	if err != nil {
		t.Fatalf("expected unknown tenant to be dropped quietly, got %v", err)
	}
	if !report.Dropped {
		t.Fatalf("expected event to be dropped")
	}
	if len(factory.built()) != 0 || exporter.calls() != 0 {
		t.Fatalf("expected zero outbound calls")
	}
}
