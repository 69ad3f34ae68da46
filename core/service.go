package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

// Service is the tenant runtime shared by every inbound surface.
type Service struct {
	config            Config
	logger            Logger
	loggerProvider    LoggerProvider
	metricsRecorder   MetricsRecorder
	errorMapper       ErrorMapper
	secretProvider    SecretProvider
	persistenceClient any
	credentialStore   CredentialStore
	clients           *ClientResolver
	correlationStore  CorrelationStore
	replayLedger      ReplayLedger
}

type ServiceDependencies struct {
	Logger            Logger
	LoggerProvider    LoggerProvider
	MetricsRecorder   MetricsRecorder
	ErrorMapper       ErrorMapper
	SecretProvider    SecretProvider
	PersistenceClient any
	CredentialStore   CredentialStore
	Clients           *ClientResolver
	CorrelationStore  CorrelationStore
	ReplayLedger      ReplayLedger
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	builder := defaultServiceBuilder(cfg)
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("maid", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)

	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = MapError
	}
	if builder.configProvider == nil {
		builder.configProvider = StaticConfigProvider{}
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	if builder.credentialStore == nil && builder.repositoryFactory != nil {
		if storeFactory, ok := builder.repositoryFactory.(RepositoryStoreFactory); ok {
			stores, buildErr := storeFactory.BuildStores(builder.persistenceClient)
			if buildErr != nil {
				return nil, mapBuildError(builder.errorMapper, buildErr)
			}
			if stores != nil {
				builder.credentialStore = stores.CredentialStore()
			}
		} else if stores, ok := builder.repositoryFactory.(StoreProvider); ok {
			builder.credentialStore = stores.CredentialStore()
		}
	}
	if builder.credentialStore == nil {
		builder.credentialStore = NewMemoryCredentialStore()
	}
	if builder.correlationStore == nil {
		builder.correlationStore = NewMemoryCorrelationStore(finalConfig.Correlation.TTL, finalConfig.Correlation.MaxEntries)
	}
	if builder.replayLedger == nil {
		builder.replayLedger = NewMemoryReplayLedger(finalConfig.Router.EventReplayTTL, 0)
	}
	factory := builder.clientFactory
	if factory == nil {
		factory = func(context.Context, TenantCredential) (ChatClient, error) {
			return nil, fmt.Errorf("core: no chat client factory configured")
		}
	}
	clients, err := NewClientResolver(builder.credentialStore, factory)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	svc := &Service{
		config:            finalConfig,
		logger:            logger,
		loggerProvider:    provider,
		metricsRecorder:   builder.metricsRecorder,
		errorMapper:       builder.errorMapper,
		secretProvider:    builder.secretProvider,
		persistenceClient: builder.persistenceClient,
		credentialStore:   builder.credentialStore,
		clients:           clients,
		correlationStore:  builder.correlationStore,
		replayLedger:      builder.replayLedger,
	}

	if token := strings.TrimSpace(finalConfig.Slack.FallbackToken); token != "" {
		if err := svc.InstallTenant(context.Background(), finalConfig.Slack.FallbackTeamID, token); err != nil {
			return nil, err
		}
	}
	return svc, nil
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	mapped := mapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

// Logger returns a named child logger, or the service logger when no provider is set.
func (s *Service) Logger(name string) Logger {
	if s == nil {
		return glog.Nop()
	}
	return ResolveLogger(name, s.loggerProvider, s.logger)
}

func (s *Service) Dependencies() ServiceDependencies {
	if s == nil {
		return ServiceDependencies{}
	}
	return ServiceDependencies{
		Logger:            s.logger,
		LoggerProvider:    s.loggerProvider,
		MetricsRecorder:   s.metricsRecorder,
		ErrorMapper:       s.errorMapper,
		SecretProvider:    s.secretProvider,
		PersistenceClient: s.persistenceClient,
		CredentialStore:   s.credentialStore,
		Clients:           s.clients,
		CorrelationStore:  s.correlationStore,
		ReplayLedger:      s.replayLedger,
	}
}

// InstallTenant stores the access credential for a workspace and drops any
// client built from the previous one.
func (s *Service) InstallTenant(ctx context.Context, tenantID string, accessToken string) (err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"tenant_id": tenantID}
	defer func() {
		s.observeOperation(ctx, startedAt, "install_tenant", err, fields)
	}()

	if s == nil || s.credentialStore == nil {
		return fmt.Errorf("core: credential store is not configured")
	}
	if err = s.credentialStore.Put(ctx, tenantID, accessToken); err != nil {
		err = s.mapError(err)
		return err
	}
	s.clients.Invalidate(tenantID)
	return nil
}

// Client resolves the chat client bound to tenantID.
func (s *Service) Client(ctx context.Context, tenantID string) (ChatClient, error) {
	if s == nil || s.clients == nil {
		return nil, fmt.Errorf("core: client resolver is not configured")
	}
	return s.clients.Resolve(ctx, tenantID)
}

func (s *Service) Correlations() CorrelationStore {
	if s == nil {
		return nil
	}
	return s.correlationStore
}

func (s *Service) Replays() ReplayLedger {
	if s == nil {
		return nil
	}
	return s.replayLedger
}

func (s *Service) Metrics() MetricsRecorder {
	if s == nil || s.metricsRecorder == nil {
		return NopMetricsRecorder{}
	}
	return s.metricsRecorder
}

func (s *Service) mapError(err error) error {
	if err == nil {
		return nil
	}
	if s == nil || s.errorMapper == nil {
		return err
	}
	mapped := s.errorMapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}
