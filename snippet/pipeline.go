package snippet

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/slack-lackey/maid-server/core"
	"github.com/slack-lackey/maid-server/events"
	"github.com/slack-lackey/maid-server/gist"
	"github.com/slack-lackey/maid-server/inbound"
	"github.com/slack-lackey/maid-server/reply"
)

const (
	RouteCodeBlock = "snippet.code_block"
	RouteFile      = "snippet.file"
	RouteGetGists  = "snippet.get_gists"
)

type Exporter interface {
	Export(ctx context.Context, req core.GistRequest) (string, error)
}

type GistLister interface {
	Latest(ctx context.Context) (string, error)
}

type Pipeline struct {
	Correlations core.CorrelationStore
	Clients      inbound.ClientSource
	Exporter     Exporter
	Lister       GistLister
	Emitter      *reply.Emitter
	Publisher    events.Publisher
	Seen         core.ReplayLedger
	SeenTTL      time.Duration
	Logger       core.Logger
	Metrics      core.MetricsRecorder
	Now          func() time.Time
}

func NewPipeline(correlations core.CorrelationStore, clients inbound.ClientSource, exporter Exporter, logger core.Logger) *Pipeline {
	logger = core.ResolveLogger("snippet", nil, logger)
	return &Pipeline{
		Correlations: correlations,
		Clients:      clients,
		Exporter:     exporter,
		Emitter:      reply.NewEmitter(logger, 0),
		Publisher:    events.NopPublisher{},
		SeenTTL:      10 * time.Minute,
		Logger:       logger,
		Metrics:      core.NopMetricsRecorder{},
		Now:          time.Now,
	}
}

// Register wires the detection handlers and the prompt buttons.
func (p *Pipeline) Register(eventRouter *inbound.EventRouter, actionRouter *inbound.ActionRouter) error {
	if p == nil {
		return fmt.Errorf("snippet: pipeline is nil")
	}
	if p.Correlations == nil || p.Exporter == nil {
		return fmt.Errorf("snippet: correlation store and exporter are required")
	}
	if eventRouter != nil {
		if err := eventRouter.On(core.EventTypeMessage, RouteCodeBlock, IsCodeBlockMessage, p.OnCodeBlock); err != nil {
			return err
		}
		if p.Lister != nil {
			if err := eventRouter.On(core.EventTypeMessage, RouteGetGists, IsGetGistsMessage, p.OnGetGists); err != nil {
				return err
			}
		}
		for _, eventType := range []string{core.EventTypeFileCreated, core.EventTypeFileShared} {
			if err := eventRouter.On(eventType, RouteFile, IsFileEvent, p.OnFile); err != nil {
				return err
			}
		}
	}
	if actionRouter != nil {
		if err := actionRouter.Handle(reply.ActionSaveGist, p.OnSave); err != nil {
			return err
		}
		if err := actionRouter.Handle(reply.ActionDiscardGist, p.OnDiscard); err != nil {
			return err
		}
	}
	return nil
}

// OnCodeBlock prompts the author of a message containing a fenced block.
func (p *Pipeline) OnCodeBlock(ctx context.Context, evt inbound.EventContext) error {
	content, ok := ExtractCodeBlock(evt.Envelope.Event.Text)
	if !ok {
		return nil
	}
	return p.prompt(ctx, evt.Client, core.PendingSnippet{
		TenantID:   evt.Envelope.TenantID,
		ChannelID:  evt.Envelope.Event.Channel,
		AuthorID:   evt.Envelope.Event.User,
		SourceText: content,
		SourceKind: core.SnippetKindMessage,
	})
}

// OnFile prompts the owner of a file whose mode is snippet.
func (p *Pipeline) OnFile(ctx context.Context, evt inbound.EventContext) (err error) {
	env := evt.Envelope
	file, err := evt.Client.GetFile(ctx, env.Event.FileID)
	if err != nil {
		return err
	}
	if !file.IsSnippet() {
		return nil
	}
	if !p.firstSighting(ctx, env.TenantID, file.ID) {
		return nil
	}
	defer func() {
		if err != nil {
			p.forgetSighting(ctx, env.TenantID, file.ID)
		}
	}()
	channel := firstNonEmpty(file.PrimaryChannel(), env.Event.Channel)
	author := firstNonEmpty(file.UserID, env.Event.User)
	if channel == "" || author == "" {
		core.LogDebug(ctx, p.Logger, "snippet file has no channel or owner", map[string]any{
			"tenant_id": env.TenantID,
			"file_id":   file.ID,
		})
		p.forgetSighting(ctx, env.TenantID, file.ID)
		return nil
	}
	content, err := evt.Client.GetFileContent(ctx, file)
	if err != nil {
		return err
	}
	return p.prompt(ctx, evt.Client, core.PendingSnippet{
		TenantID:   env.TenantID,
		ChannelID:  channel,
		AuthorID:   author,
		SourceText: content,
		SourceKind: core.SnippetKindFile,
		FileID:     file.ID,
		Filename:   file.Name,
		Filetype:   file.Filetype,
	})
}

// OnGetGists posts the latest gist of the configured account to the channel.
func (p *Pipeline) OnGetGists(ctx context.Context, evt inbound.EventContext) error {
	if p.Lister == nil {
		return nil
	}
	url, err := p.Lister.Latest(ctx)
	if errors.Is(err, gist.ErrNoGists) {
		core.LogInfo(ctx, p.Logger, "no gists to list", map[string]any{"tenant_id": evt.Envelope.TenantID})
		return nil
	}
	if err != nil {
		return err
	}
	return p.emitter().Channel(ctx, evt.Client, evt.Envelope.Event.Channel, reply.GistsListed(url))
}

func (p *Pipeline) prompt(ctx context.Context, client core.ChatClient, pending core.PendingSnippet) error {
	stored, err := p.Correlations.Store(ctx, pending)
	if err != nil {
		return err
	}
	prompt := reply.SavePrompt(stored.SourceKind, stored.AuthorID, stored.CorrelationToken)
	if err := p.emitter().Ephemeral(ctx, client, stored.ChannelID, stored.AuthorID, prompt); err != nil {
		_, _ = p.Correlations.Redeem(ctx, stored.CorrelationToken)
		return err
	}
	p.metrics().IncCounter(ctx, core.MetricSnippetsPrompted, 1, map[string]string{"kind": string(stored.SourceKind)})
	core.LogDebug(ctx, p.Logger, "snippet prompt sent", snippetFields(stored))
	return nil
}

// OnSave redeems the token and exports the snippet. Export failures are
// answered with an error reply and not retried.
func (p *Pipeline) OnSave(ctx context.Context, action core.ActionPayload, respond inbound.Responder) error {
	pending, ok := p.redeem(ctx, action, respond)
	if !ok {
		return nil
	}
	fields := snippetFields(pending)

	author := p.authorName(ctx, pending)
	req := gist.BuildRequest(gist.Source{
		Kind:     pending.SourceKind,
		Author:   author,
		Filename: pending.Filename,
		Filetype: pending.Filetype,
		Content:  pending.SourceText,
	}, p.now())

	url, err := p.Exporter.Export(ctx, req)
	if err != nil {
		p.metrics().IncCounter(ctx, core.MetricSnippetsFailed, 1, map[string]string{"kind": string(pending.SourceKind)})
		core.LogError(ctx, p.Logger, "snippet export failed", core.ErrorFields(fields, err))
		return p.emitter().Response(ctx, respond, reply.ExportFailed())
	}

	p.metrics().IncCounter(ctx, core.MetricSnippetsExported, 1, map[string]string{"kind": string(pending.SourceKind)})
	fields["title"] = req.Title
	core.LogInfo(ctx, p.Logger, "snippet exported", fields)
	respondErr := p.emitter().Response(ctx, respond, reply.Saved(url))
	p.publish(ctx, pending, req.Title, url)
	return respondErr
}

// OnDiscard redeems and drops the snippet.
func (p *Pipeline) OnDiscard(ctx context.Context, action core.ActionPayload, respond inbound.Responder) error {
	pending, ok := p.redeem(ctx, action, respond)
	if !ok {
		return nil
	}
	p.metrics().IncCounter(ctx, core.MetricSnippetsDiscarded, 1, map[string]string{"kind": string(pending.SourceKind)})
	core.LogDebug(ctx, p.Logger, "snippet discarded", snippetFields(pending))
	return p.emitter().Response(ctx, respond, reply.Declined())
}

// redeem consumes the token carried by the action. When the token cannot be
// redeemed the user is told the request is no longer valid.
func (p *Pipeline) redeem(ctx context.Context, action core.ActionPayload, respond inbound.Responder) (core.PendingSnippet, bool) {
	token := strings.TrimSpace(action.Value)
	pending, err := p.Correlations.Redeem(ctx, token)
	if err == nil && action.TenantID != "" && pending.TenantID != action.TenantID {
		core.LogWarn(ctx, p.Logger, "correlation token used from another tenant", map[string]any{
			"tenant_id":         action.TenantID,
			"owner_tenant_id":   pending.TenantID,
			"correlation_token": token,
		})
		err = core.CorrelationUnavailable(token)
	}
	if err != nil {
		if !core.IsCorrelationUnavailable(err) {
			core.LogError(ctx, p.Logger, "correlation redeem failed", core.ErrorFields(map[string]any{
				"tenant_id":         action.TenantID,
				"correlation_token": token,
			}, err))
		}
		if replyErr := p.emitter().Response(ctx, respond, reply.NoLongerValid()); replyErr != nil {
			core.LogWarn(ctx, p.Logger, "no longer valid reply failed", core.ErrorFields(nil, replyErr))
		}
		return core.PendingSnippet{}, false
	}
	return pending, true
}

// authorName resolves the display name, falling back to the raw user id.
func (p *Pipeline) authorName(ctx context.Context, pending core.PendingSnippet) string {
	fallback := core.User{ID: pending.AuthorID}.Name()
	if p.Clients == nil {
		return fallback
	}
	client, err := p.Clients.Resolve(ctx, pending.TenantID)
	if err != nil {
		core.LogWarn(ctx, p.Logger, "author lookup skipped", core.ErrorFields(snippetFields(pending), err))
		return fallback
	}
	user, err := client.GetUser(ctx, pending.AuthorID)
	if err != nil {
		core.LogWarn(ctx, p.Logger, "author lookup failed", core.ErrorFields(snippetFields(pending), err))
		return fallback
	}
	if name := user.Name(); name != "" {
		return name
	}
	return fallback
}

func (p *Pipeline) publish(ctx context.Context, pending core.PendingSnippet, title string, url string) {
	if p.Publisher == nil {
		return
	}
	err := p.Publisher.Publish(ctx, events.SnippetExported{
		TenantID:         pending.TenantID,
		CorrelationToken: pending.CorrelationToken,
		ChannelID:        pending.ChannelID,
		AuthorID:         pending.AuthorID,
		Kind:             pending.SourceKind,
		Title:            title,
		URL:              url,
		ExportedAt:       p.now().UTC(),
	})
	if err != nil {
		core.LogWarn(ctx, p.Logger, "export event publish failed", core.ErrorFields(snippetFields(pending), err))
	}
}

func (p *Pipeline) firstSighting(ctx context.Context, tenantID string, fileID string) bool {
	if p.Seen == nil {
		return true
	}
	key := core.FileReplayKey(tenantID, fileID)
	if key == "" {
		return true
	}
	accepted, err := p.Seen.Claim(ctx, key, p.SeenTTL)
	if err != nil {
		core.LogWarn(ctx, p.Logger, "file replay check failed", core.ErrorFields(map[string]any{"file_id": fileID}, err))
		return true
	}
	return accepted
}

// forgetSighting lets the sibling file event prompt when this one could not.
func (p *Pipeline) forgetSighting(ctx context.Context, tenantID string, fileID string) {
	key := core.FileReplayKey(tenantID, fileID)
	if p.Seen == nil || key == "" {
		return
	}
	if err := p.Seen.Release(context.WithoutCancel(ctx), key); err != nil {
		core.LogWarn(ctx, p.Logger, "file replay release failed", core.ErrorFields(map[string]any{"file_id": fileID}, err))
	}
}

func (p *Pipeline) emitter() *reply.Emitter {
	if p.Emitter == nil {
		return reply.NewEmitter(p.Logger, 0)
	}
	return p.Emitter
}

func (p *Pipeline) metrics() core.MetricsRecorder {
	if p.Metrics == nil {
		return core.NopMetricsRecorder{}
	}
	return p.Metrics
}

func (p *Pipeline) now() time.Time {
	if p.Now == nil {
		return time.Now()
	}
	return p.Now()
}

func snippetFields(pending core.PendingSnippet) map[string]any {
	fields := map[string]any{
		"tenant_id":         pending.TenantID,
		"correlation_token": pending.CorrelationToken,
		"kind":              string(pending.SourceKind),
	}
	if pending.FileID != "" {
		fields["file_id"] = pending.FileID
	}
	return fields
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value = strings.TrimSpace(value); value != "" {
			return value
		}
	}
	return ""
}
