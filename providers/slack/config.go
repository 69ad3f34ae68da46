package slack

import (
	"net/http"
	"strings"
	"time"

	slackapi "github.com/slack-go/slack"
	"github.com/slack-lackey/maid-server/core"
)

const (
	DefaultAuthorizeURL = "https://slack.com/oauth/v2/authorize"
	defaultCallTimeout  = 10 * time.Second
)

type Config struct {
	APIURL       string
	AuthorizeURL string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
	CallTimeout  time.Duration
	HTTPClient   *http.Client
}

// ConfigFromCore maps the service configuration onto the provider config.
func ConfigFromCore(cfg core.Config) Config {
	return Config{
		APIURL:       cfg.Slack.APIURL,
		ClientID:     cfg.Slack.ClientID,
		ClientSecret: cfg.Slack.ClientSecret,
		RedirectURL:  cfg.Slack.RedirectURL,
		Scopes:       append([]string(nil), cfg.Slack.Scopes...),
		CallTimeout:  cfg.Clients.CallTimeout,
	}
}

func (c Config) normalized() Config {
	c.APIURL = strings.TrimSpace(c.APIURL)
	if c.APIURL != "" && !strings.HasSuffix(c.APIURL, "/") {
		c.APIURL += "/"
	}
	if strings.TrimSpace(c.AuthorizeURL) == "" {
		c.AuthorizeURL = DefaultAuthorizeURL
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = defaultCallTimeout
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.CallTimeout}
	}
	return c
}

func (c Config) apiOptions() []slackapi.Option {
	options := []slackapi.Option{slackapi.OptionHTTPClient(c.HTTPClient)}
	if c.APIURL != "" {
		options = append(options, slackapi.OptionAPIURL(c.APIURL))
	}
	return options
}
