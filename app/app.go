// Package app composes the maid-server runtime: configuration, the tenant
// service, credential storage, the Slack provider, the snippet pipeline and
// the HTTP server.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	persistence "github.com/goliatone/go-persistence-bun"
	"github.com/slack-lackey/maid-server/adapters/gocommand"
	"github.com/slack-lackey/maid-server/adapters/gologger"
	"github.com/slack-lackey/maid-server/core"
	"github.com/slack-lackey/maid-server/events"
	"github.com/slack-lackey/maid-server/gist"
	"github.com/slack-lackey/maid-server/inbound"
	"github.com/slack-lackey/maid-server/migrations"
	"github.com/slack-lackey/maid-server/providers/slack"
	"github.com/slack-lackey/maid-server/reply"
	"github.com/slack-lackey/maid-server/security"
	"github.com/slack-lackey/maid-server/server"
	"github.com/slack-lackey/maid-server/snippet"
	sqlstore "github.com/slack-lackey/maid-server/store/sql"
	"github.com/slack-lackey/maid-server/telemetry"
	"github.com/slack-lackey/maid-server/transport"
	"github.com/slack-lackey/maid-server/webhooks"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type Options struct {
	// ConfigPath is an optional YAML file layered under MAID_* variables.
	// Ignored when Config is set.
	ConfigPath string
	Config     *core.Config

	// AutoMigrate applies pending migrations after opening the database.
	AutoMigrate bool

	LogOutput   io.Writer
	TraceOutput io.Writer

	HTTPClient     transport.HTTPDoer
	Publisher      events.Publisher
	ServiceOptions []core.Option
}

type App struct {
	Config      core.Config
	Service     *core.Service
	Persistence *persistence.Client
	Events      *inbound.EventRouter
	Actions     *inbound.ActionRouter
	Dispatcher  *inbound.Dispatcher
	Pipeline    *snippet.Pipeline
	Tenants     *gocommand.TenantBus
	Server      *server.Server

	logger         core.Logger
	publisher      events.Publisher
	shutdownTracer telemetry.ShutdownFunc
}

// LoadConfig reads defaults, the optional YAML file and the environment.
func LoadConfig(ctx context.Context, path string) (core.Config, error) {
	return core.NewKoanfConfigProvider(path).Load(ctx, core.DefaultConfig())
}

func New(ctx context.Context, opts Options) (_ *App, err error) {
	cfg, err := resolveConfig(ctx, opts)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, core.BadInput(err.Error(), nil)
	}

	logOutput := opts.LogOutput
	if logOutput == nil {
		logOutput = os.Stderr
	}
	loggers := gologger.NewJSONProvider(logOutput, cfg.Log.Level)

	a := &App{Config: cfg, publisher: events.NopPublisher{}}
	defer func() {
		if err != nil {
			_ = a.Close(context.Background())
		}
	}()

	serviceOpts := []core.Option{core.WithLoggerProvider(loggers)}
	factoryOpts := []sqlstore.FactoryOption{}

	sealer, err := security.NewKeySealerFromConfig(cfg.Credentials)
	if err != nil {
		return nil, err
	}
	if sealer != nil {
		serviceOpts = append(serviceOpts, core.WithSecretProvider(sealer))
		factoryOpts = append(factoryOpts, sqlstore.WithSecretProvider(sealer))
	}

	if usesDatabase(cfg.Persistence.Driver) {
		clientCfg := sqlstore.ClientConfig{Persistence: cfg.Persistence, ServiceName: cfg.ServiceName}
		a.Persistence, err = sqlstore.OpenClient(clientCfg)
		if err != nil {
			return nil, err
		}
		if opts.AutoMigrate {
			dialect, dialectErr := migrations.DialectFor(cfg.Persistence.Driver)
			if dialectErr != nil {
				return nil, dialectErr
			}
			if err = Migrate(ctx, a.Persistence, dialect); err != nil {
				return nil, err
			}
		}
		cache, cacheErr := sqlstore.NewCacheService(cfg.Persistence)
		if cacheErr != nil {
			return nil, cacheErr
		}
		factory, factoryErr := sqlstore.NewRepositoryFactoryFromPersistence(a.Persistence, append(factoryOpts, sqlstore.WithCache(cache))...)
		if factoryErr != nil {
			return nil, factoryErr
		}
		serviceOpts = append(serviceOpts,
			core.WithPersistenceClient(a.Persistence),
			core.WithRepositoryFactory(factory),
		)
	}

	slackCfg := slack.ConfigFromCore(cfg)
	serviceOpts = append(serviceOpts, core.WithClientFactory(slack.NewClientFactory(slackCfg)))
	serviceOpts = append(serviceOpts, opts.ServiceOptions...)

	a.Service, err = core.NewService(cfg, serviceOpts...)
	if err != nil {
		return nil, err
	}
	a.Config = a.Service.Config()
	cfg = a.Config
	a.logger = a.Service.Logger("app")

	a.shutdownTracer, err = telemetry.InitTracer(cfg, opts.TraceOutput, a.Service.Logger("telemetry"))
	if err != nil {
		return nil, fmt.Errorf("app: init tracer: %w", err)
	}

	a.publisher, err = resolvePublisher(cfg, opts.Publisher, a.Service.Logger("events"))
	if err != nil {
		return nil, err
	}

	deps := a.Service.Dependencies()
	a.Events = inbound.NewEventRouter(deps.Clients, a.Service.Logger("inbound.events"))
	a.Events.HandlerTimeout = cfg.Router.HandlerTimeout
	a.Events.Metrics = a.Service.Metrics()
	if err = a.Events.SetPolicies(cfg.Router.Policies); err != nil {
		return nil, err
	}

	a.Actions = inbound.NewActionRouter(slack.NewResponsePoster(slackCfg), a.Service.Logger("inbound.actions"))
	a.Actions.Timeout = cfg.Router.ActionTimeout
	a.Actions.Metrics = a.Service.Metrics()

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}
	a.Pipeline = snippet.NewPipeline(
		a.Service.Correlations(),
		deps.Clients,
		gist.NewExporter(cfg.Hosting, httpClient),
		a.Service.Logger("snippet"),
	)
	if strings.TrimSpace(cfg.GitHub.User) != "" {
		a.Pipeline.Lister = gist.NewLister(cfg.GitHub, httpClient, cfg.Hosting.Timeout)
	}
	a.Pipeline.Emitter = reply.NewEmitter(a.Service.Logger("reply"), cfg.Clients.CallTimeout)
	a.Pipeline.Publisher = a.publisher
	a.Pipeline.Seen = a.Service.Replays()
	a.Pipeline.SeenTTL = cfg.Router.EventReplayTTL
	a.Pipeline.Metrics = a.Service.Metrics()
	if err = a.Pipeline.Register(a.Events, a.Actions); err != nil {
		return nil, err
	}

	a.Dispatcher = inbound.NewDispatcher(
		webhooks.NewSigningSecretVerifier(cfg.Slack.SigningSecret, cfg.Slack.SignatureSkew),
		slack.NewDecoder(),
		a.Events,
		a.Actions,
	)
	a.Dispatcher.Replays = a.Service.Replays()
	a.Dispatcher.ReplayTTL = cfg.Router.EventReplayTTL
	a.Dispatcher.Logger = a.Service.Logger("inbound.dispatcher")

	a.Tenants, err = gocommand.NewTenantBus(a.Service, deps.CredentialStore, a.Service.Logger("tenants"))
	if err != nil {
		return nil, err
	}

	a.Server = server.New(cfg, server.Dependencies{
		Dispatcher: a.Dispatcher,
		Installer:  a.Tenants,
		OAuth:      slack.NewOAuth(slackCfg),
		Logger:     a.Service.Logger("server"),
	})

	core.LogInfo(ctx, a.logger, "maid-server composed", map[string]any{
		"persistence": cfg.Persistence.Driver,
		"sealed":      sealer != nil,
		"broker":      strings.TrimSpace(cfg.Broker.URL) != "",
		"tracing":     cfg.Telemetry.Tracing,
	})
	return a, nil
}

// Run serves HTTP until ctx is done. Background routing is drained before
// it returns.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.Server == nil {
		return fmt.Errorf("app: app is not initialized")
	}
	if err := a.Config.ServeValidate(); err != nil {
		return core.BadInput(err.Error(), nil)
	}
	return a.Server.ListenAndServe(ctx)
}

// Close releases the command bus, broker connection, tracer and database.
// Background routing still running when ctx is done is cancelled.
func (a *App) Close(ctx context.Context) error {
	if a == nil {
		return nil
	}
	var errs []error
	if a.Tenants != nil {
		a.Tenants.Close()
		a.Tenants = nil
	}
	if a.Dispatcher != nil {
		if err := a.Dispatcher.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("app: drain background routing: %w", err))
		}
	}
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("app: close publisher: %w", err))
		}
		a.publisher = nil
	}
	if a.shutdownTracer != nil {
		if err := a.shutdownTracer(ctx); err != nil {
			errs = append(errs, fmt.Errorf("app: shutdown tracer: %w", err))
		}
		a.shutdownTracer = nil
	}
	if a.Persistence != nil {
		if err := a.Persistence.Close(); err != nil {
			errs = append(errs, fmt.Errorf("app: close database: %w", err))
		}
		a.Persistence = nil
	}
	return errors.Join(errs...)
}

// Migrate registers the embedded migrations for dialect and applies them.
func Migrate(ctx context.Context, client *persistence.Client, dialect string) error {
	if client == nil {
		return fmt.Errorf("app: persistence client is required")
	}
	_, err := migrations.Register(ctx, func(_ context.Context, src migrations.Source) error {
		client.RegisterSQLMigrations(src.FS)
		return nil
	}, dialect)
	if err != nil {
		return fmt.Errorf("app: register migrations: %w", err)
	}
	if err := client.Migrate(ctx); err != nil {
		return fmt.Errorf("app: migrate: %w", err)
	}
	return nil
}

func resolveConfig(ctx context.Context, opts Options) (core.Config, error) {
	if opts.Config != nil {
		return *opts.Config, nil
	}
	cfg, err := LoadConfig(ctx, opts.ConfigPath)
	if err != nil {
		return core.Config{}, fmt.Errorf("app: load config: %w", err)
	}
	return cfg, nil
}

func resolvePublisher(cfg core.Config, override events.Publisher, logger core.Logger) (events.Publisher, error) {
	if override != nil {
		return override, nil
	}
	if strings.TrimSpace(cfg.Broker.URL) == "" {
		return events.NopPublisher{}, nil
	}
	publisher, err := events.DialAMQP(cfg.Broker, logger)
	if err != nil {
		return nil, err
	}
	return publisher, nil
}

func usesDatabase(driver string) bool {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case core.PersistenceDriverSQLite, core.PersistenceDriverPostgres:
		return true
	default:
		return false
	}
}
