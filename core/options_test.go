package core

import (
	"context"
	"errors"
	"testing"

	goerrors "github.com/goliatone/go-errors"
)

type fixedConfigProvider struct {
	cfg Config
}

func (p *fixedConfigProvider) Load(context.Context, Config) (Config, error) {
	return p.cfg, nil
}

type fixedOptionsResolver struct {
	cfg Config
}

func (r *fixedOptionsResolver) Resolve(Config, Config, Config) (Config, error) {
	return r.cfg, nil
}

type failingConfigProvider struct{}

func (failingConfigProvider) Load(context.Context, Config) (Config, error) {
	return Config{}, errors.New("config source unavailable")
}

func TestNewService_DefaultDependencies(t *testing.T) {
	svc, err := NewService(Config{})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	deps := svc.Dependencies()
	if deps.Logger == nil {
		t.Fatalf("expected default logger")
	}
	if deps.LoggerProvider == nil {
		t.Fatalf("expected default logger provider")
	}
	if deps.ErrorMapper == nil {
		t.Fatalf("expected default error mapper")
	}
	if deps.ConfigProvider == nil || deps.OptionsResolver == nil {
		t.Fatalf("expected default config provider and options resolver")
	}
	if deps.OAuthFlowStore == nil || deps.SessionCodec == nil {
		t.Fatalf("expected default flow store and session codec")
	}
	cfg := svc.Config()
	if cfg.ServiceName != "accounts" {
		t.Fatalf("expected default service_name=accounts, got %q", cfg.ServiceName)
	}
	if cfg.OAuth.FlowTTLSeconds != 900 || cfg.Sync.MaxAttempts != 3 {
		t.Fatalf("expected defaults, got %+v", cfg)
	}
}

func TestNewService_WithXOverrides(t *testing.T) {
	customLogger := stubLogger{}
	customProvider := stubLoggerProvider{logger: customLogger}
	sentinel := errors.New("sentinel")
	customMapper := func(error) *goerrors.Error {
		return goerrors.Wrap(sentinel, goerrors.CategoryOperation, "mapped")
	}
	client := newFakeIdentityClient()
	store := NewMemoryOAuthFlowStore(0)
	codec := SealedSessionCodec{Secrets: testSecretProvider{}}

	svc, err := NewService(Config{ServiceName: "runtime"},
		WithLogger(customLogger),
		WithLoggerProvider(customProvider),
		WithErrorMapper(customMapper),
		WithConfigProvider(&fixedConfigProvider{cfg: Config{ServiceName: "from-provider"}}),
		WithOptionsResolver(&fixedOptionsResolver{cfg: DefaultConfig()}),
		WithIdentityClient(client),
		WithOAuthFlowStore(store),
		WithSessionCodec(codec),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	deps := svc.Dependencies()
	if deps.IdentityClient != client {
		t.Fatalf("expected identity client override")
	}
	if deps.OAuthFlowStore != store {
		t.Fatalf("expected flow store override")
	}
	if _, ok := deps.SessionCodec.(SealedSessionCodec); !ok {
		t.Fatalf("expected sealed codec override, got %T", deps.SessionCodec)
	}
	mapped := deps.ErrorMapper(errors.New("anything"))
	if !errors.Is(mapped, sentinel) {
		t.Fatalf("expected custom mapper to be used")
	}
}

func TestNewService_LayersRuntimeOverConfig(t *testing.T) {
	svc, err := NewService(
		Config{Sync: SyncConfig{MaxAttempts: 5}},
		WithConfigProvider(NewCfgxConfigProvider(mapRawLoader{values: map[string]any{
			"service_name": "from-file",
			"sync": map[string]any{
				"max_attempts":       2,
				"initial_backoff_ms": 10,
			},
		}})),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	cfg := svc.Config()
	if cfg.ServiceName != "from-file" {
		t.Fatalf("expected loaded service name, got %q", cfg.ServiceName)
	}
	if cfg.Sync.MaxAttempts != 5 {
		t.Fatalf("expected runtime override, got %d", cfg.Sync.MaxAttempts)
	}
	if cfg.Sync.InitialBackoffMS != 10 {
		t.Fatalf("expected loaded backoff, got %d", cfg.Sync.InitialBackoffMS)
	}
	if cfg.Tokens.ExpiryLeewaySeconds != 30 {
		t.Fatalf("expected default leeway kept, got %d", cfg.Tokens.ExpiryLeewaySeconds)
	}
}

func TestNewService_ConfigLoadErrorIsMapped(t *testing.T) {
	_, err := NewService(Config{}, WithConfigProvider(failingConfigProvider{}))
	if err == nil {
		t.Fatalf("expected config load failure")
	}
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		t.Fatalf("expected mapped rich error, got %T", err)
	}
}

func TestConfig_ValidateRejectsBadValues(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Sync.MaxAttempts = 0
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected max attempts validation error")
	}
	cfg = DefaultConfig()
	cfg.OAuth.FlowTTLSeconds = -1
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected flow ttl validation error")
	}
}
