// Package bridge exposes accounts and password sync to foreign hosts through
// integer handles, string and JSON arguments and an ExternError slot.
//
// Init must run once before any other call. It is idempotent: later calls
// return the outcome of the first one. There is no teardown.
package bridge

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"

	accounts "github.com/goliatone/go-accounts"
	"github.com/goliatone/go-accounts/adapters/gologger"
	"github.com/goliatone/go-accounts/core"
	"github.com/goliatone/go-accounts/ratelimit"
	"github.com/goliatone/go-accounts/security"
	"github.com/goliatone/go-accounts/transport"
	glog "github.com/goliatone/go-logger/glog"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

type InitOption func(*initOptions)

type initOptions struct {
	config         core.Config
	httpClient     transport.HTTPDoer
	logger         glog.Logger
	loggerProvider glog.LoggerProvider
	discoveryCache repositorycache.CacheService
	keySource      security.KeySource
	serviceOpts    []core.Option
	loginsOpts     []accounts.LoginsOption
}

func WithConfig(cfg core.Config) InitOption {
	return func(o *initOptions) {
		o.config = cfg
	}
}

// WithHTTPClient sets the client used for identity, token server and
// storage requests.
func WithHTTPClient(client transport.HTTPDoer) InitOption {
	return func(o *initOptions) {
		o.httpClient = client
	}
}

func WithLogger(logger glog.Logger) InitOption {
	return func(o *initOptions) {
		o.logger = logger
	}
}

func WithLoggerProvider(provider glog.LoggerProvider) InitOption {
	return func(o *initOptions) {
		o.loggerProvider = provider
	}
}

// WithDiscoveryCache memoizes ConfigCustom discovery documents.
func WithDiscoveryCache(cache repositorycache.CacheService) InitOption {
	return func(o *initOptions) {
		o.discoveryCache = cache
	}
}

// WithKeySource resolves the local logins key for credentials that omit one.
func WithKeySource(source security.KeySource) InitOption {
	return func(o *initOptions) {
		o.keySource = source
	}
}

// WithServiceOptions appends service options after the bridge defaults.
func WithServiceOptions(opts ...core.Option) InitOption {
	return func(o *initOptions) {
		o.serviceOpts = append(o.serviceOpts, opts...)
	}
}

// WithLoginsOptions appends options used by every PasswordsStateNew call.
func WithLoginsOptions(opts ...accounts.LoginsOption) InitOption {
	return func(o *initOptions) {
		o.loginsOpts = append(o.loginsOpts, opts...)
	}
}

type runtime struct {
	logger   glog.Logger
	registry *accounts.Registry
	configs  *handleMap[*core.ConfigHandle]
}

var (
	initOnce  sync.Once
	initErr   ExternError
	current   atomic.Pointer[runtime]
	noRuntime = ExternError{Code: CodeInternal, Message: "bridge: Init has not been called"}
)

// Init builds the process-wide service and handle tables.
func Init(opts ...InitOption) ExternError {
	initOnce.Do(func() {
		defer func() {
			if recovered := recover(); recovered != nil {
				initErr = panicError("init", recovered)
			}
		}()
		rt, err := newRuntime(opts...)
		if err != nil {
			initErr = externError(err)
			return
		}
		current.Store(rt)
	})
	return initErr
}

func newRuntime(opts ...InitOption) (*runtime, error) {
	options := initOptions{config: core.DefaultConfig()}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	logger := gologger.Component("bridge", options.loggerProvider, options.logger)
	adapter := transport.NewRESTAdapterFromConfig(options.httpClient, options.config.Transport)
	client := transport.NewFxAClient(adapter)

	var discoverer core.ConfigDiscoverer = client
	if options.discoveryCache != nil {
		cached, err := transport.NewCachedDiscoverer(client, options.discoveryCache)
		if err != nil {
			return nil, err
		}
		discoverer = cached
	}
	serviceOpts := []core.Option{
		core.WithIdentityClient(client),
		core.WithConfigDiscoverer(discoverer),
	}
	if options.loggerProvider != nil {
		serviceOpts = append(serviceOpts, core.WithLoggerProvider(options.loggerProvider))
	}
	if options.logger != nil {
		serviceOpts = append(serviceOpts, core.WithLogger(options.logger))
	}
	serviceOpts = append(serviceOpts, options.serviceOpts...)

	service, err := accounts.NewService(options.config, serviceOpts...)
	if err != nil {
		return nil, err
	}

	next := &atomic.Uint64{}
	loginsOpts := []accounts.LoginsOption{
		accounts.WithHTTPClient(options.httpClient),
		accounts.WithTransportConfig(options.config.Transport),
		accounts.WithSyncConfig(options.config.Sync),
		accounts.WithBackoffPolicy(ratelimit.NewBackoffPolicy(ratelimit.NewMemoryStateStore())),
	}
	if options.keySource != nil {
		loginsOpts = append(loginsOpts, accounts.WithKeySource(options.keySource))
	}
	loginsOpts = append(loginsOpts, options.loginsOpts...)
	registry, err := accounts.NewRegistry(service,
		accounts.WithIDGenerator(func() string {
			return strconv.FormatUint(next.Add(1), 10)
		}),
		accounts.WithLoginsOptions(loginsOpts...),
	)
	if err != nil {
		return nil, err
	}

	logger.Info("bridge initialized", "service", options.config.ServiceName)
	return &runtime{
		logger:   logger,
		registry: registry,
		configs:  newHandleMap[*core.ConfigHandle](next),
	}, nil
}

// call runs fn against the initialized runtime. Errors become ExternError
// values and panics are recovered as CodeInternal.
func call[T any](op string, fn func(ctx context.Context, rt *runtime) (T, error)) (out T, ext ExternError) {
	var zero T
	rt := current.Load()
	defer func() {
		if recovered := recover(); recovered != nil {
			if rt != nil {
				rt.logger.Error("bridge call panicked", "operation", op, "panic", recovered)
			}
			out = zero
			ext = panicError(op, recovered)
		}
	}()
	if rt == nil {
		return zero, noRuntime
	}
	value, err := fn(context.Background(), rt)
	if err != nil {
		rt.logger.Debug("bridge call failed", "operation", op, "code", CodeFor(err))
		return zero, externError(err)
	}
	return value, ExternError{}
}

func callVoid(op string, fn func(ctx context.Context, rt *runtime) error) ExternError {
	_, ext := call(op, func(ctx context.Context, rt *runtime) (struct{}, error) {
		return struct{}{}, fn(ctx, rt)
	})
	return ext
}

func handleID(handle uint64) string {
	return strconv.FormatUint(handle, 10)
}

func parseHandle(id string) (uint64, error) {
	handle, err := strconv.ParseUint(id, 10, 64)
	if err != nil || handle == 0 {
		return 0, core.NewError(core.ErrorInternal, "bridge: registry produced a non numeric handle")
	}
	return handle, nil
}
