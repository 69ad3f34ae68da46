package inbound

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/slack-lackey/maid-server/core"
)

type stubClient struct {
	tenantID string
}

func (c *stubClient) TenantID() string { return c.tenantID }

func (c *stubClient) GetUser(_ context.Context, userID string) (core.User, error) {
	return core.User{ID: userID}, nil
}

func (c *stubClient) GetFile(_ context.Context, fileID string) (core.File, error) {
	return core.File{ID: fileID}, nil
}

func (c *stubClient) GetFileContent(context.Context, core.File) (string, error) { return "", nil }

func (c *stubClient) PostMessage(context.Context, string, core.Reply) error { return nil }

func (c *stubClient) PostEphemeral(context.Context, string, string, core.Reply) error { return nil }

type stubClients struct {
	mu      sync.Mutex
	tenants map[string]bool
	calls   int
	err     error
}

func (s *stubClients) Resolve(_ context.Context, tenantID string) (core.ChatClient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if !s.tenants[tenantID] {
		return nil, core.UnknownTenant(tenantID)
	}
	return &stubClient{tenantID: tenantID}, nil
}

type recordingPoster struct {
	mu      sync.Mutex
	replies []core.Reply
	urls    []string
}

func (p *recordingPoster) PostResponse(_ context.Context, url string, reply core.Reply) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.urls = append(p.urls, url)
	p.replies = append(p.replies, reply)
	return nil
}

func (p *recordingPoster) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.replies)
}

// jsonDecoder decodes a minimal test wire format.
type jsonDecoder struct{}

type testEventBody struct {
	Type      string `json:"type"`
	Challenge string `json:"challenge"`
	TeamID    string `json:"team_id"`
	EventID   string `json:"event_id"`
	Event     struct {
		Type string `json:"type"`
		Text string `json:"text"`
		User string `json:"user"`
	} `json:"event"`
}

func (jsonDecoder) DecodeEvent(body []byte) (DecodedEvent, error) {
	var parsed testEventBody
	if err := json.Unmarshal(body, &parsed); err != nil {
		return DecodedEvent{}, err
	}
	return DecodedEvent{
		Kind:      parsed.Type,
		Challenge: parsed.Challenge,
		Envelope: core.InboundEnvelope{
			TenantID:  parsed.TeamID,
			EventID:   parsed.EventID,
			EventType: parsed.Event.Type,
			Event:     core.InnerEvent{Type: parsed.Event.Type, Text: parsed.Event.Text, User: parsed.Event.User},
		},
	}, nil
}

func (jsonDecoder) DecodeAction(body []byte) (core.ActionPayload, bool, error) {
	var action core.ActionPayload
	if err := json.Unmarshal(body, &action); err != nil {
		return core.ActionPayload{}, false, err
	}
	if action.ActionID == "" {
		return core.ActionPayload{}, false, nil
	}
	return action, true, nil
}

type stubVerifier struct {
	err error
}

func (v stubVerifier) Verify(context.Context, core.InboundRequest) error { return v.err }

var errBoom = errors.New("boom")
