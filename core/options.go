package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-config/cfgx"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	opts "github.com/goliatone/go-options"
)

type ErrorMapper func(err error) *goerrors.Error

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

// StoreProvider exposes durable stores built from a persistence client.
type StoreProvider interface {
	CredentialStore() CredentialStore
}

type RepositoryStoreFactory interface {
	BuildStores(persistenceClient any) (StoreProvider, error)
}

type serviceBuilder struct {
	runtimeConfig     Config
	logger            Logger
	loggerProvider    LoggerProvider
	metricsRecorder   MetricsRecorder
	errorMapper       ErrorMapper
	secretProvider    SecretProvider
	persistenceClient any
	repositoryFactory any
	configProvider    ConfigProvider
	optionsResolver   OptionsResolver
	credentialStore   CredentialStore
	clientFactory     ClientFactory
	correlationStore  CorrelationStore
	replayLedger      ReplayLedger
}

type Option func(*serviceBuilder)

func WithLogger(logger Logger) Option {
	return func(b *serviceBuilder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider LoggerProvider) Option {
	return func(b *serviceBuilder) {
		b.loggerProvider = provider
	}
}

func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(b *serviceBuilder) {
		b.metricsRecorder = recorder
	}
}

func WithErrorMapper(mapper ErrorMapper) Option {
	return func(b *serviceBuilder) {
		b.errorMapper = mapper
	}
}

func WithSecretProvider(provider SecretProvider) Option {
	return func(b *serviceBuilder) {
		b.secretProvider = provider
	}
}

func WithPersistenceClient(client any) Option {
	return func(b *serviceBuilder) {
		b.persistenceClient = client
	}
}

func WithRepositoryFactory(factory any) Option {
	return func(b *serviceBuilder) {
		b.repositoryFactory = factory
	}
}

func WithConfigProvider(provider ConfigProvider) Option {
	return func(b *serviceBuilder) {
		b.configProvider = provider
	}
}

func WithOptionsResolver(resolver OptionsResolver) Option {
	return func(b *serviceBuilder) {
		b.optionsResolver = resolver
	}
}

func WithCredentialStore(store CredentialStore) Option {
	return func(b *serviceBuilder) {
		b.credentialStore = store
	}
}

func WithClientFactory(factory ClientFactory) Option {
	return func(b *serviceBuilder) {
		b.clientFactory = factory
	}
}

func WithCorrelationStore(store CorrelationStore) Option {
	return func(b *serviceBuilder) {
		b.correlationStore = store
	}
}

func WithReplayLedger(ledger ReplayLedger) Option {
	return func(b *serviceBuilder) {
		b.replayLedger = ledger
	}
}

func defaultServiceBuilder(runtime Config) serviceBuilder {
	loggerProvider, logger := glog.Resolve("maid", nil, nil)
	return serviceBuilder{
		runtimeConfig:   runtime,
		loggerProvider:  loggerProvider,
		logger:          logger,
		metricsRecorder: NopMetricsRecorder{},
		errorMapper:     MapError,
		configProvider:  StaticConfigProvider{},
		optionsResolver: GoOptionsResolver{},
	}
}

// StaticConfigProvider returns the defaults untouched. Runtime overrides are
// layered on top by the options resolver.
type StaticConfigProvider struct{}

func (StaticConfigProvider) Load(_ context.Context, defaults Config) (Config, error) {
	return defaults, nil
}

type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			configToLayerMap(defaults, true),
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			configToLayerMap(loaded, false),
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			configToLayerMap(runtime, false),
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

// configToLayerMap flattens cfg into an options layer. Zero values are left
// out of non-default layers so they never mask a lower scope.
func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	setString(layer, "service_name", cfg.ServiceName, includeZero)

	server := map[string]any{}
	setString(server, "addr", cfg.Server.Addr, includeZero)
	setDuration(server, "read_timeout", cfg.Server.ReadTimeout, includeZero)
	setDuration(server, "write_timeout", cfg.Server.WriteTimeout, includeZero)
	setDuration(server, "request_timeout", cfg.Server.RequestTimeout, includeZero)
	setDuration(server, "shutdown_timeout", cfg.Server.ShutdownTimeout, includeZero)
	setInt64(server, "max_body_bytes", cfg.Server.MaxBodyBytes, includeZero)
	setSection(layer, "server", server)

	slack := map[string]any{}
	setString(slack, "app_name", cfg.Slack.AppName, includeZero)
	setString(slack, "signing_secret", cfg.Slack.SigningSecret, includeZero)
	setDuration(slack, "signature_skew", cfg.Slack.SignatureSkew, includeZero)
	setString(slack, "client_id", cfg.Slack.ClientID, includeZero)
	setString(slack, "client_secret", cfg.Slack.ClientSecret, includeZero)
	setString(slack, "redirect_url", cfg.Slack.RedirectURL, includeZero)
	if includeZero || len(cfg.Slack.Scopes) > 0 {
		slack["scopes"] = append([]string(nil), cfg.Slack.Scopes...)
	}
	setString(slack, "api_url", cfg.Slack.APIURL, includeZero)
	setString(slack, "fallback_token", cfg.Slack.FallbackToken, includeZero)
	setString(slack, "fallback_team_id", cfg.Slack.FallbackTeamID, includeZero)
	setSection(layer, "slack", slack)

	hosting := map[string]any{}
	setString(hosting, "base_url", cfg.Hosting.BaseURL, includeZero)
	setDuration(hosting, "timeout", cfg.Hosting.Timeout, includeZero)
	setInt64(hosting, "max_response_bytes", cfg.Hosting.MaxResponseBytes, includeZero)
	setSection(layer, "hosting", hosting)

	github := map[string]any{}
	setString(github, "api_url", cfg.GitHub.APIURL, includeZero)
	setString(github, "user", cfg.GitHub.User, includeZero)
	setSection(layer, "github", github)

	correlation := map[string]any{}
	setDuration(correlation, "ttl", cfg.Correlation.TTL, includeZero)
	setInt64(correlation, "max_entries", int64(cfg.Correlation.MaxEntries), includeZero)
	setSection(layer, "correlation", correlation)

	router := map[string]any{}
	if includeZero || len(cfg.Router.Policies) > 0 {
		policies := make(map[string]any, len(cfg.Router.Policies))
		for eventType, policy := range cfg.Router.Policies {
			policies[eventType] = policy
		}
		router["policies"] = policies
	}
	setDuration(router, "handler_timeout", cfg.Router.HandlerTimeout, includeZero)
	setDuration(router, "action_timeout", cfg.Router.ActionTimeout, includeZero)
	setDuration(router, "event_replay_ttl", cfg.Router.EventReplayTTL, includeZero)
	setSection(layer, "router", router)

	clients := map[string]any{}
	setDuration(clients, "call_timeout", cfg.Clients.CallTimeout, includeZero)
	setSection(layer, "clients", clients)

	persistence := map[string]any{}
	setString(persistence, "driver", cfg.Persistence.Driver, includeZero)
	setString(persistence, "dsn", cfg.Persistence.DSN, includeZero)
	if includeZero || cfg.Persistence.Debug {
		persistence["debug"] = cfg.Persistence.Debug
	}
	setDuration(persistence, "ping_timeout", cfg.Persistence.PingTimeout, includeZero)
	setDuration(persistence, "cache_ttl", cfg.Persistence.CacheTTL, includeZero)
	setSection(layer, "persistence", persistence)

	credentials := map[string]any{}
	setString(credentials, "encryption_key", cfg.Credentials.EncryptionKey, includeZero)
	setString(credentials, "key_id", cfg.Credentials.KeyID, includeZero)
	setSection(layer, "credentials", credentials)

	broker := map[string]any{}
	setString(broker, "url", cfg.Broker.URL, includeZero)
	setString(broker, "exchange", cfg.Broker.Exchange, includeZero)
	setString(broker, "routing_key", cfg.Broker.RoutingKey, includeZero)
	setSection(layer, "broker", broker)

	if includeZero || cfg.Telemetry.Tracing {
		layer["telemetry"] = map[string]any{"tracing": cfg.Telemetry.Tracing}
	}

	logSection := map[string]any{}
	setString(logSection, "level", cfg.Log.Level, includeZero)
	setSection(layer, "log", logSection)
	return layer
}

func setString(target map[string]any, key string, value string, includeZero bool) {
	if includeZero || strings.TrimSpace(value) != "" {
		target[key] = value
	}
}

func setDuration(target map[string]any, key string, value time.Duration, includeZero bool) {
	if includeZero || value != 0 {
		target[key] = value
	}
}

func setInt64(target map[string]any, key string, value int64, includeZero bool) {
	if includeZero || value != 0 {
		target[key] = value
	}
}

func setSection(layer map[string]any, key string, section map[string]any) {
	if len(section) > 0 {
		layer[key] = section
	}
}
