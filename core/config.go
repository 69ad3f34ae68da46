package core

import (
	"fmt"
	"strings"
	"time"
)

const (
	PersistenceDriverMemory   = "memory"
	PersistenceDriverSQLite   = "sqlite3"
	PersistenceDriverPostgres = "postgres"

	RouterPolicyFanOut     = "fan_out"
	RouterPolicyFirstMatch = "first_match"
)

type ServerConfig struct {
	Addr            string        `koanf:"addr" mapstructure:"addr"`
	ReadTimeout     time.Duration `koanf:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout" mapstructure:"write_timeout"`
	RequestTimeout  time.Duration `koanf:"request_timeout" mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" mapstructure:"shutdown_timeout"`
	MaxBodyBytes    int64         `koanf:"max_body_bytes" mapstructure:"max_body_bytes"`
}

type SlackConfig struct {
	AppName        string        `koanf:"app_name" mapstructure:"app_name"`
	SigningSecret  string        `koanf:"signing_secret" mapstructure:"signing_secret"`
	SignatureSkew  time.Duration `koanf:"signature_skew" mapstructure:"signature_skew"`
	ClientID       string        `koanf:"client_id" mapstructure:"client_id"`
	ClientSecret   string        `koanf:"client_secret" mapstructure:"client_secret"`
	RedirectURL    string        `koanf:"redirect_url" mapstructure:"redirect_url"`
	Scopes         []string      `koanf:"scopes" mapstructure:"scopes"`
	APIURL         string        `koanf:"api_url" mapstructure:"api_url"`
	FallbackToken  string        `koanf:"fallback_token" mapstructure:"fallback_token"`
	FallbackTeamID string        `koanf:"fallback_team_id" mapstructure:"fallback_team_id"`
}

type HostingConfig struct {
	BaseURL          string        `koanf:"base_url" mapstructure:"base_url"`
	Timeout          time.Duration `koanf:"timeout" mapstructure:"timeout"`
	MaxResponseBytes int64         `koanf:"max_response_bytes" mapstructure:"max_response_bytes"`
}

type GitHubConfig struct {
	APIURL string `koanf:"api_url" mapstructure:"api_url"`
	User   string `koanf:"user" mapstructure:"user"`
}

type CorrelationConfig struct {
	TTL        time.Duration `koanf:"ttl" mapstructure:"ttl"`
	MaxEntries int           `koanf:"max_entries" mapstructure:"max_entries"`
}

type RouterConfig struct {
	Policies       map[string]string `koanf:"policies" mapstructure:"policies"`
	HandlerTimeout time.Duration     `koanf:"handler_timeout" mapstructure:"handler_timeout"`
	ActionTimeout  time.Duration     `koanf:"action_timeout" mapstructure:"action_timeout"`
	EventReplayTTL time.Duration     `koanf:"event_replay_ttl" mapstructure:"event_replay_ttl"`
}

type ClientsConfig struct {
	CallTimeout time.Duration `koanf:"call_timeout" mapstructure:"call_timeout"`
}

type PersistenceConfig struct {
	Driver      string        `koanf:"driver" mapstructure:"driver"`
	DSN         string        `koanf:"dsn" mapstructure:"dsn"`
	Debug       bool          `koanf:"debug" mapstructure:"debug"`
	PingTimeout time.Duration `koanf:"ping_timeout" mapstructure:"ping_timeout"`
	CacheTTL    time.Duration `koanf:"cache_ttl" mapstructure:"cache_ttl"`
}

type CredentialsConfig struct {
	EncryptionKey string `koanf:"encryption_key" mapstructure:"encryption_key"`
	KeyID         string `koanf:"key_id" mapstructure:"key_id"`
}

type BrokerConfig struct {
	URL        string `koanf:"url" mapstructure:"url"`
	Exchange   string `koanf:"exchange" mapstructure:"exchange"`
	RoutingKey string `koanf:"routing_key" mapstructure:"routing_key"`
}

type TelemetryConfig struct {
	Tracing bool `koanf:"tracing" mapstructure:"tracing"`
}

type LogConfig struct {
	Level string `koanf:"level" mapstructure:"level"`
}

type Config struct {
	ServiceName string            `koanf:"service_name" mapstructure:"service_name"`
	Server      ServerConfig      `koanf:"server" mapstructure:"server"`
	Slack       SlackConfig       `koanf:"slack" mapstructure:"slack"`
	Hosting     HostingConfig     `koanf:"hosting" mapstructure:"hosting"`
	GitHub      GitHubConfig      `koanf:"github" mapstructure:"github"`
	Correlation CorrelationConfig `koanf:"correlation" mapstructure:"correlation"`
	Router      RouterConfig      `koanf:"router" mapstructure:"router"`
	Clients     ClientsConfig     `koanf:"clients" mapstructure:"clients"`
	Persistence PersistenceConfig `koanf:"persistence" mapstructure:"persistence"`
	Credentials CredentialsConfig `koanf:"credentials" mapstructure:"credentials"`
	Broker      BrokerConfig      `koanf:"broker" mapstructure:"broker"`
	Telemetry   TelemetryConfig   `koanf:"telemetry" mapstructure:"telemetry"`
	Log         LogConfig         `koanf:"log" mapstructure:"log"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "maid-server",
		Server: ServerConfig{
			Addr:            ":3000",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    30 * time.Second,
			RequestTimeout:  30 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			MaxBodyBytes:    1 << 20,
		},
		Slack: SlackConfig{
			AppName:       "Maid",
			SignatureSkew: 5 * time.Minute,
			Scopes:        []string{"channels:history", "chat:write", "files:read", "users:read"},
		},
		Hosting: HostingConfig{
			Timeout:          10 * time.Second,
			MaxResponseBytes: 64 << 10,
		},
		GitHub: GitHubConfig{
			APIURL: "https://api.github.com",
			User:   "SlackLackey",
		},
		Correlation: CorrelationConfig{
			TTL:        5 * time.Minute,
			MaxEntries: 4096,
		},
		Router: RouterConfig{
			Policies: map[string]string{
				EventTypeMessage:     RouterPolicyFanOut,
				EventTypeFileCreated: RouterPolicyFirstMatch,
				EventTypeFileShared:  RouterPolicyFirstMatch,
			},
			HandlerTimeout: 10 * time.Second,
			ActionTimeout:  30 * time.Second,
			EventReplayTTL: 10 * time.Minute,
		},
		Clients: ClientsConfig{
			CallTimeout: 10 * time.Second,
		},
		Persistence: PersistenceConfig{
			Driver:      PersistenceDriverMemory,
			PingTimeout: 5 * time.Second,
			CacheTTL:    time.Minute,
		},
		Broker: BrokerConfig{
			Exchange:   "maid.events",
			RoutingKey: "snippet.exported",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if c.Slack.SignatureSkew < 0 {
		return fmt.Errorf("core: slack.signature_skew must not be negative")
	}
	if c.Correlation.TTL < 0 {
		return fmt.Errorf("core: correlation.ttl must not be negative")
	}
	switch strings.ToLower(strings.TrimSpace(c.Persistence.Driver)) {
	case "", PersistenceDriverMemory:
	case PersistenceDriverSQLite, PersistenceDriverPostgres:
		if strings.TrimSpace(c.Persistence.DSN) == "" {
			return fmt.Errorf("core: persistence.dsn is required for driver %q", c.Persistence.Driver)
		}
	default:
		return fmt.Errorf("core: unsupported persistence.driver %q", c.Persistence.Driver)
	}
	for eventType, policy := range c.Router.Policies {
		switch strings.ToLower(strings.TrimSpace(policy)) {
		case RouterPolicyFanOut, RouterPolicyFirstMatch:
		default:
			return fmt.Errorf("core: invalid router policy %q for event type %q", policy, eventType)
		}
	}
	if strings.TrimSpace(c.Slack.FallbackToken) != "" && strings.TrimSpace(c.Slack.FallbackTeamID) == "" {
		return fmt.Errorf("core: slack.fallback_team_id is required when slack.fallback_token is set")
	}
	return nil
}

// ServeValidate applies the stricter checks needed before accepting traffic.
func (c Config) ServeValidate() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(c.Slack.SigningSecret) == "" {
		return fmt.Errorf("core: slack.signing_secret is required")
	}
	if strings.TrimSpace(c.Hosting.BaseURL) == "" {
		return fmt.Errorf("core: hosting.base_url is required")
	}
	return nil
}
