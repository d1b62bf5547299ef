package accounts

import "github.com/goliatone/go-accounts/core"

type Config = core.Config

type Option = core.Option

type Service = core.Service

type ServiceDependencies = core.ServiceDependencies

type AccountSession = core.AccountSession
type ConfigHandle = core.ConfigHandle
type Endpoints = core.Endpoints
type OAuthInfo = core.OAuthInfo
type AccessTokenInfo = core.AccessTokenInfo
type ScopedKey = core.ScopedKey
type Profile = core.Profile
type SyncKeys = core.SyncKeys

type SyncCredentials = core.SyncCredentials
type Login = core.Login

type ErrorKind = core.ErrorKind

var (
	WithLogger           = core.WithLogger
	WithLoggerProvider   = core.WithLoggerProvider
	WithMetricsRecorder  = core.WithMetricsRecorder
	WithErrorMapper      = core.WithErrorMapper
	WithConfigProvider   = core.WithConfigProvider
	WithOptionsResolver  = core.WithOptionsResolver
	WithIdentityClient   = core.WithIdentityClient
	WithConfigDiscoverer = core.WithConfigDiscoverer
	WithOAuthFlowStore   = core.WithOAuthFlowStore
	WithSessionCodec     = core.WithSessionCodec
	WithClock            = core.WithClock
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	return core.NewService(cfg, opts...)
}

func Setup(cfg Config, opts ...Option) (*Service, error) {
	return core.Setup(cfg, opts...)
}

// ReleaseConfig returns a config handle for the production endpoints.
func ReleaseConfig() *ConfigHandle {
	return core.ReleaseConfig()
}
