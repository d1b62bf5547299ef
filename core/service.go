package core

import (
	"context"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

// Service builds account sessions that share one identity client, flow store
// and ambient stack.
type Service struct {
	operationObserver

	config           Config
	loggerProvider   LoggerProvider
	errorMapper      ErrorMapper
	configProvider   ConfigProvider
	optionsResolver  OptionsResolver
	identityClient   IdentityClient
	configDiscoverer ConfigDiscoverer
	flowStore        OAuthFlowStore
	sessionCodec     SessionCodec
	clock            Clock
}

type ServiceDependencies struct {
	Logger           Logger
	LoggerProvider   LoggerProvider
	MetricsRecorder  MetricsRecorder
	ErrorMapper      ErrorMapper
	ConfigProvider   ConfigProvider
	OptionsResolver  OptionsResolver
	IdentityClient   IdentityClient
	ConfigDiscoverer ConfigDiscoverer
	OAuthFlowStore   OAuthFlowStore
	SessionCodec     SessionCodec
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	builder := defaultServiceBuilder(cfg)
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("accounts", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("accounts"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = defaultErrorMapper
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.sessionCodec == nil {
		builder.sessionCodec = JSONSessionCodec{}
	}
	if builder.clock == nil {
		builder.clock = func() time.Time { return time.Now().UTC() }
	}
	if builder.configDiscoverer == nil {
		if discoverer, ok := builder.identityClient.(ConfigDiscoverer); ok {
			builder.configDiscoverer = discoverer
		}
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

	if builder.flowStore == nil {
		builder.flowStore = NewMemoryOAuthFlowStoreWithRetention(
			finalConfig.OAuth.FlowTTL(),
			finalConfig.OAuth.ConsumedRetention(),
			builder.clock,
		)
	}

	return &Service{
		operationObserver: operationObserver{
			logger:          logger,
			metricsRecorder: builder.metricsRecorder,
			metricPrefix:    finalConfig.ServiceName,
		},
		config:           finalConfig,
		loggerProvider:   provider,
		errorMapper:      builder.errorMapper,
		configProvider:   builder.configProvider,
		optionsResolver:  builder.optionsResolver,
		identityClient:   builder.identityClient,
		configDiscoverer: builder.configDiscoverer,
		flowStore:        builder.flowStore,
		sessionCodec:     builder.sessionCodec,
		clock:            builder.clock,
	}, nil
}

func Setup(cfg Config, opts ...Option) (*Service, error) {
	return NewService(cfg, opts...)
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

func (s *Service) Dependencies() ServiceDependencies {
	if s == nil {
		return ServiceDependencies{}
	}
	return ServiceDependencies{
		Logger:           s.logger,
		LoggerProvider:   s.loggerProvider,
		MetricsRecorder:  s.metricsRecorder,
		ErrorMapper:      s.errorMapper,
		ConfigProvider:   s.configProvider,
		OptionsResolver:  s.optionsResolver,
		IdentityClient:   s.identityClient,
		ConfigDiscoverer: s.configDiscoverer,
		OAuthFlowStore:   s.flowStore,
		SessionCodec:     s.sessionCodec,
	}
}

// DiscoverConfig fetches the endpoint set published under contentBase.
func (s *Service) DiscoverConfig(ctx context.Context, contentBase string) (handle *ConfigHandle, err error) {
	startedAt := time.Now()
	fields := map[string]any{"content_base": contentBase}
	defer func() {
		s.observeOperation(ctx, startedAt, "discover_config", err, fields)
	}()

	if _, err = DiscoveryURL(contentBase); err != nil {
		return nil, s.mapError(err)
	}
	if s.configDiscoverer == nil {
		err = NewError(ErrorInternal, "core: config discoverer is not configured")
		return nil, err
	}
	endpoints, err := s.configDiscoverer.Discover(ctx, contentBase)
	if err != nil {
		err = s.mapError(err)
		return nil, err
	}
	if err = endpoints.Validate(); err != nil {
		return nil, err
	}
	return NewConfigHandle(endpoints), nil
}

// NewAccount consumes cfg and returns a fresh session. cfg is invalid
// afterwards.
func (s *Service) NewAccount(ctx context.Context, cfg *ConfigHandle, clientID string) (account *AccountSession, err error) {
	startedAt := time.Now()
	fields := map[string]any{"client_id": clientID}
	defer func() {
		s.observeOperation(ctx, startedAt, "new_account", err, fields)
	}()

	if strings.TrimSpace(clientID) == "" {
		err = NewError(ErrorBadInput, "core: client id is required")
		return nil, err
	}
	endpoints, err := cfg.Take()
	if err != nil {
		return nil, err
	}
	return s.buildAccount(endpoints, clientID), nil
}

// AccountFromCredentials consumes cfg and seeds the session with the session
// token from a web channel login response.
func (s *Service) AccountFromCredentials(ctx context.Context, cfg *ConfigHandle, clientID, webChannelResponse string) (account *AccountSession, err error) {
	startedAt := time.Now()
	fields := map[string]any{"client_id": clientID}
	defer func() {
		s.observeOperation(ctx, startedAt, "account_from_credentials", err, fields)
	}()

	if strings.TrimSpace(clientID) == "" {
		err = NewError(ErrorBadInput, "core: client id is required")
		return nil, err
	}
	creds, err := ParseWebChannelCredentials(webChannelResponse)
	if err != nil {
		return nil, err
	}
	endpoints, err := cfg.Take()
	if err != nil {
		return nil, err
	}
	account = s.buildAccount(endpoints, clientID)
	account.uid = strings.TrimSpace(creds.UID)
	account.sessionToken = strings.TrimSpace(creds.SessionToken)
	return account, nil
}

// RestoreAccount rebuilds a session from Serialize output.
func (s *Service) RestoreAccount(ctx context.Context, state string) (account *AccountSession, err error) {
	startedAt := time.Now()
	defer func() {
		s.observeOperation(ctx, startedAt, "restore_account", err, nil)
	}()

	decoded, err := s.sessionCodec.Decode(ctx, state)
	if err != nil {
		err = s.mapError(err)
		return nil, err
	}
	account = s.buildAccount(decoded.Endpoints, decoded.ClientID)
	account.restoreState(decoded)
	return account, nil
}

func (s *Service) buildAccount(endpoints Endpoints, clientID string) *AccountSession {
	return newAccountSession(accountParams{
		endpoints:    endpoints,
		clientID:     clientID,
		client:       s.identityClient,
		codec:        s.sessionCodec,
		flowStore:    s.flowStore,
		flowTTL:      s.config.OAuth.FlowTTL(),
		now:          s.clock,
		leeway:       s.config.Tokens.ExpiryLeeway(),
		assertionTTL: s.config.Tokens.AssertionTTL(),
		observer:     s.operationObserver,
	})
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

// Observer returns the service's logger and metrics as an OperationObserver.
func (s *Service) Observer() *OperationObserver {
	if s == nil {
		return NewOperationObserver(nil, NopMetricsRecorder{}, "")
	}
	return &OperationObserver{s.operationObserver}
}
