package core

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

type fixedConfigProvider struct {
	cfg Config
	err error
}

func (p *fixedConfigProvider) Load(context.Context, Config) (Config, error) {
	return p.cfg, p.err
}

type fixedStoreFactory struct {
	store CredentialStore
}

func (f fixedStoreFactory) BuildStores(any) (StoreProvider, error) {
	return f, nil
}

func (f fixedStoreFactory) CredentialStore() CredentialStore {
	return f.store
}

func TestNewService_DefaultDependencies(t *testing.T) {
	svc, err := NewService(Config{})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	deps := svc.Dependencies()
	if deps.Logger == nil || deps.LoggerProvider == nil {
		t.Fatalf("expected default logger and provider")
	}
	if deps.CredentialStore == nil || deps.CorrelationStore == nil || deps.ReplayLedger == nil {
		t.Fatalf("expected default stores")
	}
	if deps.Clients == nil {
		t.Fatalf("expected client resolver")
	}
	if got := svc.Config().ServiceName; got != "maid-server" {
		t.Fatalf("expected default service name, got %q", got)
	}
	if got := svc.Config().Correlation.TTL; got != 5*time.Minute {
		t.Fatalf("expected default correlation ttl, got %s", got)
	}
}

func TestNewService_RuntimeOverridesLoadedConfig(t *testing.T) {
	loaded := DefaultConfig()
	loaded.ServiceName = "from-file"
	loaded.Hosting.BaseURL = "https://hosting.example"

	svc, err := NewService(Config{ServiceName: "runtime", Correlation: CorrelationConfig{TTL: time.Minute}},
		WithConfigProvider(&fixedConfigProvider{cfg: loaded}),
		WithLoggerProvider(stubLoggerProvider{logger: stubLogger{}}),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	cfg := svc.Config()
	if cfg.ServiceName != "runtime" {
		t.Fatalf("expected runtime service name to win, got %q", cfg.ServiceName)
	}
	if cfg.Hosting.BaseURL != "https://hosting.example" {
		t.Fatalf("expected loaded hosting url to survive, got %q", cfg.Hosting.BaseURL)
	}
	if cfg.Correlation.TTL != time.Minute {
		t.Fatalf("expected runtime ttl override, got %s", cfg.Correlation.TTL)
	}
	if cfg.Router.Policies[EventTypeMessage] != RouterPolicyFanOut {
		t.Fatalf("expected default router policy to survive, got %#v", cfg.Router.Policies)
	}
}

func TestNewService_ConfigProviderError(t *testing.T) {
	sentinel := errors.New("config unavailable")
	_, err := NewService(Config{}, WithConfigProvider(&fixedConfigProvider{err: sentinel}))
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected provider error to surface, got %v", err)
	}
}

func TestNewService_InvalidConfigRejected(t *testing.T) {
	_, err := NewService(Config{Persistence: PersistenceConfig{Driver: "oracle"}})
	if err == nil {
		t.Fatalf("expected unsupported driver to be rejected")
	}
}

func TestNewService_SeedsFallbackTenant(t *testing.T) {
	spy := newFactorySpy()
	svc, err := NewService(Config{Slack: SlackConfig{FallbackToken: "xoxb-fallback", FallbackTeamID: "T0"}},
		WithClientFactory(spy.Build),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	client, err := svc.Client(context.Background(), "T0")
	if err != nil {
		t.Fatalf("resolve fallback tenant: %v", err)
	}
	if client.TenantID() != "T0" {
		t.Fatalf("expected fallback tenant client, got %q", client.TenantID())
	}
	if _, err := svc.Client(context.Background(), "T1"); !IsUnknownTenant(err) {
		t.Fatalf("expected other tenants to stay unknown, got %v", err)
	}
}

func TestNewService_UsesRepositoryFactoryStores(t *testing.T) {
	store := NewMemoryCredentialStore()
	svc, err := NewService(Config{}, WithRepositoryFactory(fixedStoreFactory{store: store}))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if svc.Dependencies().CredentialStore != store {
		t.Fatalf("expected credential store from repository factory")
	}
}

func TestService_InstallTenantInvalidatesClient(t *testing.T) {
	spy := newFactorySpy()
	metrics := NewMemoryMetricsRecorder()
	svc, err := NewService(Config{}, WithClientFactory(spy.Build), WithMetricsRecorder(metrics))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if err := svc.InstallTenant(context.Background(), "TA", "xoxb-1"); err != nil {
		t.Fatalf("install: %v", err)
	}
	first, err := svc.Client(context.Background(), "TA")
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	if err := svc.InstallTenant(context.Background(), "TA", "xoxb-2"); err != nil {
		t.Fatalf("reinstall: %v", err)
	}
	second, err := svc.Client(context.Background(), "TA")
	if err != nil {
		t.Fatalf("client after reinstall: %v", err)
	}
	if first == second {
		t.Fatalf("expected reinstall to rebuild the client")
	}
	if got := metrics.Counter("maid.install_tenant.total"); got != 2 {
		t.Fatalf("expected two install operations recorded, got %d", got)
	}
}

func TestKoanfConfigProvider_FileAndEnvironment(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte("service_name: from-yaml\nhosting:\n  base_url: https://yaml.example\ncorrelation:\n  ttl: 2m\n")
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("MAID_SLACK__SIGNING_SECRET", "env-secret")
	t.Setenv("MAID_HOSTING__BASE_URL", "https://env.example")

	provider := NewKoanfConfigProvider(path)
	provider.DotEnv = []string{filepath.Join(dir, "missing.env")}
	cfg, err := provider.Load(context.Background(), DefaultConfig())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ServiceName != "from-yaml" {
		t.Fatalf("expected yaml service name, got %q", cfg.ServiceName)
	}
	if cfg.Hosting.BaseURL != "https://env.example" {
		t.Fatalf("expected environment to override file, got %q", cfg.Hosting.BaseURL)
	}
	if cfg.Slack.SigningSecret != "env-secret" {
		t.Fatalf("expected signing secret from environment, got %q", cfg.Slack.SigningSecret)
	}
	if cfg.Correlation.TTL != 2*time.Minute {
		t.Fatalf("expected ttl from yaml, got %s", cfg.Correlation.TTL)
	}
	if cfg.Server.Addr != ":3000" {
		t.Fatalf("expected defaults to survive, got %q", cfg.Server.Addr)
	}
}

func TestKoanfConfigProvider_MissingFileIsOptional(t *testing.T) {
	provider := NewKoanfConfigProvider(filepath.Join(t.TempDir(), "absent.yaml"))
	provider.DotEnv = []string{filepath.Join(t.TempDir(), "absent.env")}
	cfg, err := provider.Load(context.Background(), DefaultConfig())
	if err != nil {
		t.Fatalf("expected missing file to be ignored, got %v", err)
	}
	if cfg.ServiceName != "maid-server" {
		t.Fatalf("expected defaults, got %q", cfg.ServiceName)
	}
}

func TestConfig_ServeValidate(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.ServeValidate(); err == nil {
		t.Fatalf("expected missing signing secret to fail")
	}
	cfg.Slack.SigningSecret = "secret"
	cfg.Hosting.BaseURL = "https://hosting.example"
	if err := cfg.ServeValidate(); err != nil {
		t.Fatalf("expected valid serve config, got %v", err)
	}
	cfg.Slack.FallbackToken = "xoxb"
	if err := cfg.ServeValidate(); err == nil {
		t.Fatalf("expected fallback token without team id to fail")
	}
}
