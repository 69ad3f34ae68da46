package snippet

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/slack-lackey/maid-server/core"
	"github.com/slack-lackey/maid-server/events"
)

var fixedNow = time.Date(2026, time.March, 2, 15, 4, 5, 0, time.UTC)

type sentReply struct {
	channel string
	user    string
	reply   core.Reply
}

type fakeClient struct {
	tenantID string
	token    string
	users    map[string]core.User
	files    map[string]core.File
	contents map[string]string
	postErr  error
	fetchErr error

	mu         sync.Mutex
	ephemerals []sentReply
	messages   []sentReply
	calls      int
}

func newFakeClient(tenantID string, token string) *fakeClient {
	return &fakeClient{
		tenantID: tenantID,
		token:    token,
		users:    map[string]core.User{},
		files:    map[string]core.File{},
		contents: map[string]string{},
	}
}

func (c *fakeClient) TenantID() string { return c.tenantID }

func (c *fakeClient) GetUser(_ context.Context, userID string) (core.User, error) {
	c.count()
	user, ok := c.users[userID]
	if !ok {
		return core.User{}, errors.New("user_not_found")
	}
	return user, nil
}

func (c *fakeClient) GetFile(_ context.Context, fileID string) (core.File, error) {
	c.count()
	file, ok := c.files[fileID]
	if !ok {
		return core.File{}, errors.New("file_not_found")
	}
	return file, nil
}

func (c *fakeClient) GetFileContent(_ context.Context, file core.File) (string, error) {
	c.count()
	if c.fetchErr != nil {
		return "", c.fetchErr
	}
	return c.contents[file.ID], nil
}

func (c *fakeClient) PostMessage(_ context.Context, channelID string, reply core.Reply) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	c.messages = append(c.messages, sentReply{channel: channelID, reply: reply})
	return c.postErr
}

func (c *fakeClient) PostEphemeral(_ context.Context, channelID string, userID string, reply core.Reply) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	c.ephemerals = append(c.ephemerals, sentReply{channel: channelID, user: userID, reply: reply})
	return c.postErr
}

func (c *fakeClient) count() {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
}

func (c *fakeClient) prompts() []sentReply {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]sentReply(nil), c.ephemerals...)
}

// lastToken returns the correlation token carried by the latest prompt.
func (c *fakeClient) lastToken() string {
	prompts := c.prompts()
	if len(prompts) == 0 || len(prompts[len(prompts)-1].reply.Actions) == 0 {
		return ""
	}
	return prompts[len(prompts)-1].reply.Actions[0].Value
}

type staticClients struct {
	clients map[string]core.ChatClient
}

func (s staticClients) Resolve(_ context.Context, tenantID string) (core.ChatClient, error) {
	client, ok := s.clients[tenantID]
	if !ok {
		return nil, core.UnknownTenant(tenantID)
	}
	return client, nil
}

type spyExporter struct {
	mu       sync.Mutex
	requests []core.GistRequest
	url      string
	err      error
}

func (e *spyExporter) Export(_ context.Context, req core.GistRequest) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.requests = append(e.requests, req)
	return e.url, e.err
}

func (e *spyExporter) calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.requests)
}

type recordingResponder struct {
	replies []core.Reply
}

func (r *recordingResponder) Respond(_ context.Context, reply core.Reply) error {
	r.replies = append(r.replies, reply)
	return nil
}

func (r *recordingResponder) last() core.Reply {
	if len(r.replies) == 0 {
		return core.Reply{}
	}
	return r.replies[len(r.replies)-1]
}

type recordingPoster struct {
	mu      sync.Mutex
	urls    []string
	replies []core.Reply
}

func (p *recordingPoster) PostResponse(_ context.Context, responseURL string, reply core.Reply) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.urls = append(p.urls, responseURL)
	p.replies = append(p.replies, reply)
	return nil
}

type recordingPublisher struct {
	published []events.SnippetExported
}

func (p *recordingPublisher) Publish(_ context.Context, evt events.SnippetExported) error {
	p.published = append(p.published, evt)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

type fakeLister struct {
	url string
	err error
}

func (l fakeLister) Latest(context.Context) (string, error) {
	return l.url, l.err
}

type tokenFactory struct {
	mu      sync.Mutex
	tokens  []string
	clients map[string]*fakeClient
}

func (f *tokenFactory) Build(_ context.Context, credential core.TenantCredential) (core.ChatClient, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens = append(f.tokens, credential.AccessToken)
	client, ok := f.clients[credential.TenantID]
	if !ok {
		return nil, errors.New("no fake client for tenant")
	}
	client.token = credential.AccessToken
	return client, nil
}

func (f *tokenFactory) built() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.tokens...)
}

func newTestPipeline(clients map[string]core.ChatClient, exporter *spyExporter) (*Pipeline, *core.MemoryCorrelationStore) {
	store := core.NewMemoryCorrelationStore(5*time.Minute, 0)
	store.Now = func() time.Time { return fixedNow }
	pipeline := NewPipeline(store, staticClients{clients: clients}, exporter, nil)
	pipeline.Now = func() time.Time { return fixedNow }
	return pipeline, store
}

func messageEnvelope(tenantID string, user string, text string) core.InboundEnvelope {
	return core.InboundEnvelope{
		TenantID:  tenantID,
		EventID:   "Ev-" + user,
		EventType: core.EventTypeMessage,
		Event: core.InnerEvent{
			Type:    core.EventTypeMessage,
			User:    user,
			Channel: "C1",
			Text:    text,
		},
	}
}
