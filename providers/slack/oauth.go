package slack

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	slackapi "github.com/slack-go/slack"
	"github.com/slack-lackey/maid-server/core"
)

// Installation is the outcome of a completed OAuth install.
type Installation struct {
	TenantID    string
	TeamName    string
	AccessToken string
	BotUserID   string
	Scope       string
}

type Exchanger interface {
	Exchange(ctx context.Context, code string) (Installation, error)
}

type exchangeFunc func(ctx context.Context, client *http.Client, clientID, clientSecret, code, redirectURI string) (*slackapi.OAuthV2Response, error)

// OAuth drives the "Add to Slack" flow: it builds the authorize redirect and
// exchanges the callback code for a bot token.
type OAuth struct {
	cfg      Config
	exchange exchangeFunc
}

func NewOAuth(cfg Config) *OAuth {
	return &OAuth{
		cfg: cfg.normalized(),
		exchange: func(ctx context.Context, client *http.Client, clientID, clientSecret, code, redirectURI string) (*slackapi.OAuthV2Response, error) {
			return slackapi.GetOAuthV2ResponseContext(ctx, client, clientID, clientSecret, code, redirectURI)
		},
	}
}

// AuthorizeURL returns the consent page URL carrying the configured scopes
// and the caller supplied state.
func (o *OAuth) AuthorizeURL(state string) (string, error) {
	if strings.TrimSpace(o.cfg.ClientID) == "" {
		return "", core.BadInput("slack: oauth client id is not configured", nil)
	}
	target, err := url.Parse(o.cfg.AuthorizeURL)
	if err != nil {
		return "", fmt.Errorf("slack: parse authorize url: %w", err)
	}
	query := target.Query()
	query.Set("client_id", o.cfg.ClientID)
	if len(o.cfg.Scopes) > 0 {
		query.Set("scope", strings.Join(o.cfg.Scopes, ","))
	}
	if redirect := strings.TrimSpace(o.cfg.RedirectURL); redirect != "" {
		query.Set("redirect_uri", redirect)
	}
	if state = strings.TrimSpace(state); state != "" {
		query.Set("state", state)
	}
	target.RawQuery = query.Encode()
	return target.String(), nil
}

func (o *OAuth) Exchange(ctx context.Context, code string) (Installation, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return Installation{}, core.BadInput("slack: oauth code is required", nil)
	}
	if o.exchange == nil {
		return Installation{}, core.Internal("slack: oauth exchange is not configured", nil)
	}
	resp, err := o.exchange(ctx, o.cfg.HTTPClient, o.cfg.ClientID, o.cfg.ClientSecret, code, o.cfg.RedirectURL)
	if err != nil {
		return Installation{}, core.ExternalAPIError(err, "slack", map[string]any{"method": "oauth.v2.access"})
	}
	if resp == nil || strings.TrimSpace(resp.Team.ID) == "" || strings.TrimSpace(resp.AccessToken) == "" {
		return Installation{}, core.ExternalAPIError(
			fmt.Errorf("slack: oauth response is missing team or token"),
			"slack",
			map[string]any{"method": "oauth.v2.access"},
		)
	}
	return Installation{
		TenantID:    resp.Team.ID,
		TeamName:    resp.Team.Name,
		AccessToken: resp.AccessToken,
		BotUserID:   resp.BotUserID,
		Scope:       resp.Scope,
	}, nil
}

var _ Exchanger = (*OAuth)(nil)
