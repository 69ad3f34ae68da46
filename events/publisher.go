package events

import (
	"context"
	"time"

	"github.com/slack-lackey/maid-server/core"
)

const TypeSnippetExported = "snippet.exported"

// SnippetExported is emitted after a gist was stored for a confirmed snippet.
type SnippetExported struct {
	ID               string           `json:"id"`
	Type             string           `json:"type"`
	TenantID         string           `json:"tenant_id"`
	CorrelationToken string           `json:"correlation_token"`
	ChannelID        string           `json:"channel_id"`
	AuthorID         string           `json:"author_id"`
	Kind             core.SnippetKind `json:"kind"`
	Title            string           `json:"title"`
	URL              string           `json:"url"`
	ExportedAt       time.Time        `json:"exported_at"`
}

type Publisher interface {
	Publish(ctx context.Context, evt SnippetExported) error
	Close() error
}

// NopPublisher drops every event. It is used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, SnippetExported) error { return nil }

func (NopPublisher) Close() error { return nil }

var _ Publisher = NopPublisher{}
