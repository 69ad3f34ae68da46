package gist

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/slack-lackey/maid-server/core"
	"github.com/slack-lackey/maid-server/transport"
)

const createPath = "/createGist"

// Exporter posts gist requests to the hosting API. The API answers with the
// gist URL as plain text.
type Exporter struct {
	Client           *transport.RESTAdapter
	BaseURL          string
	Timeout          time.Duration
	MaxResponseBytes int64
}

func NewExporter(cfg core.HostingConfig, client transport.HTTPDoer) *Exporter {
	return &Exporter{
		Client:           transport.NewRESTAdapter(client),
		BaseURL:          strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		Timeout:          cfg.Timeout,
		MaxResponseBytes: cfg.MaxResponseBytes,
	}
}

// Export makes a single attempt. Non-2xx statuses, transport failures and
// empty bodies are ExternalAPIError.
func (e *Exporter) Export(ctx context.Context, req core.GistRequest) (string, error) {
	if e == nil || e.Client == nil {
		return "", core.Internal("gist: exporter is not configured", nil)
	}
	if e.BaseURL == "" {
		return "", core.Internal("gist: hosting base url is not configured", nil)
	}
	outbound, err := transport.JSONRequest(http.MethodPost, e.BaseURL+createPath, req)
	if err != nil {
		return "", err
	}
	outbound.Timeout = e.Timeout
	outbound.MaxResponseBodyBytes = e.MaxResponseBytes

	fields := map[string]any{"title": req.Title}
	res, err := e.Client.Do(ctx, outbound)
	if err != nil {
		return "", core.ExternalAPIError(err, "hosting", fields)
	}
	if !res.Success() {
		fields["status_code"] = res.StatusCode
		return "", core.ExternalAPIError(fmt.Errorf("gist: hosting returned status %d", res.StatusCode), "hosting", fields)
	}
	gistURL := res.Text()
	if gistURL == "" {
		return "", core.ExternalAPIError(fmt.Errorf("gist: hosting returned an empty body"), "hosting", fields)
	}
	return gistURL, nil
}
