package gist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/slack-lackey/maid-server/core"
	"github.com/slack-lackey/maid-server/transport"
)

var ErrNoGists = errors.New("gist: user has no gists")

// Lister reads the public gists of one GitHub account.
type Lister struct {
	Client  *transport.RESTAdapter
	APIURL  string
	User    string
	Timeout time.Duration
}

func NewLister(cfg core.GitHubConfig, client transport.HTTPDoer, timeout time.Duration) *Lister {
	adapter := transport.NewRESTAdapter(client)
	adapter.DefaultHeaders["Accept"] = "application/vnd.github+json"
	adapter.DefaultHeaders["User-Agent"] = "maid-server"
	return &Lister{
		Client:  adapter,
		APIURL:  strings.TrimRight(strings.TrimSpace(cfg.APIURL), "/"),
		User:    strings.TrimSpace(cfg.User),
		Timeout: timeout,
	}
}

type gistSummary struct {
	URL     string `json:"url"`
	HTMLURL string `json:"html_url"`
}

// Latest returns the API url of the most recent gist.
func (l *Lister) Latest(ctx context.Context) (string, error) {
	if l == nil || l.Client == nil || l.APIURL == "" || l.User == "" {
		return "", core.Internal("gist: lister is not configured", nil)
	}
	fields := map[string]any{"user": l.User}
	res, err := l.Client.Do(ctx, transport.Request{
		Method:  http.MethodGet,
		URL:     l.APIURL + "/users/" + url.PathEscape(l.User) + "/gists",
		Timeout: l.Timeout,
	})
	if err != nil {
		return "", core.ExternalAPIError(err, "github", fields)
	}
	if !res.Success() {
		fields["status_code"] = res.StatusCode
		return "", core.ExternalAPIError(fmt.Errorf("gist: github returned status %d", res.StatusCode), "github", fields)
	}
	var gists []gistSummary
	if err := json.Unmarshal(res.Body, &gists); err != nil {
		return "", core.ExternalAPIError(fmt.Errorf("gist: decode gists: %w", err), "github", fields)
	}
	if len(gists) == 0 {
		return "", ErrNoGists
	}
	return firstNonEmpty(gists[0].URL, gists[0].HTMLURL), nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value = strings.TrimSpace(value); value != "" {
			return value
		}
	}
	return ""
}
