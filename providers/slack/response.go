package slack

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	slackapi "github.com/slack-go/slack"
	"github.com/slack-lackey/maid-server/core"
)

// ResponsePoster delivers replies to interaction response URLs. Response
// URLs carry their own authorization, so one poster serves every tenant.
type ResponsePoster struct {
	HTTPClient *http.Client
	Timeout    time.Duration
}

func NewResponsePoster(cfg Config) *ResponsePoster {
	cfg = cfg.normalized()
	return &ResponsePoster{HTTPClient: cfg.HTTPClient, Timeout: cfg.CallTimeout}
}

func (p *ResponsePoster) PostResponse(ctx context.Context, responseURL string, reply core.Reply) error {
	responseURL = strings.TrimSpace(responseURL)
	if responseURL == "" {
		return core.BadInput("slack: response url is required", nil)
	}
	client := http.DefaultClient
	if p != nil && p.HTTPClient != nil {
		client = p.HTTPClient
	}
	if p != nil && p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}
	if err := slackapi.PostWebhookCustomHTTPContext(ctx, responseURL, client, WebhookMessage(reply)); err != nil {
		return core.ExternalAPIError(fmt.Errorf("post response: %w", err), "slack", map[string]any{"method": "response_url"})
	}
	return nil
}

var _ core.ResponsePoster = (*ResponsePoster)(nil)
