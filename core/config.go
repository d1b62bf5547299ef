package core

import (
	"fmt"
	"strings"
	"time"
)

type OAuthConfig struct {
	FlowTTLSeconds           int `koanf:"flow_ttl_seconds" mapstructure:"flow_ttl_seconds"`
	ConsumedRetentionSeconds int `koanf:"consumed_retention_seconds" mapstructure:"consumed_retention_seconds"`
}

type TokensConfig struct {
	ExpiryLeewaySeconds int `koanf:"expiry_leeway_seconds" mapstructure:"expiry_leeway_seconds"`
	AssertionTTLSeconds int `koanf:"assertion_ttl_seconds" mapstructure:"assertion_ttl_seconds"`
}

type SyncConfig struct {
	MaxAttempts      int `koanf:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMS int `koanf:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMS     int `koanf:"max_backoff_ms" mapstructure:"max_backoff_ms"`
}

type TransportConfig struct {
	TimeoutSeconds       int   `koanf:"timeout_seconds" mapstructure:"timeout_seconds"`
	MaxResponseBodyBytes int64 `koanf:"max_response_body_bytes" mapstructure:"max_response_body_bytes"`
}

type Config struct {
	ServiceName string          `koanf:"service_name" mapstructure:"service_name"`
	OAuth       OAuthConfig     `koanf:"oauth" mapstructure:"oauth"`
	Tokens      TokensConfig    `koanf:"tokens" mapstructure:"tokens"`
	Sync        SyncConfig      `koanf:"sync" mapstructure:"sync"`
	Transport   TransportConfig `koanf:"transport" mapstructure:"transport"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "accounts",
		OAuth: OAuthConfig{
			FlowTTLSeconds:           900,
			ConsumedRetentionSeconds: 3600,
		},
		Tokens: TokensConfig{
			ExpiryLeewaySeconds: 30,
			AssertionTTLSeconds: 300,
		},
		Sync: SyncConfig{
			MaxAttempts:      3,
			InitialBackoffMS: 250,
			MaxBackoffMS:     5000,
		},
		Transport: TransportConfig{
			TimeoutSeconds:       30,
			MaxResponseBodyBytes: 10 << 20,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if c.OAuth.FlowTTLSeconds <= 0 {
		return fmt.Errorf("core: oauth.flow_ttl_seconds must be positive")
	}
	if c.OAuth.ConsumedRetentionSeconds < 0 {
		return fmt.Errorf("core: oauth.consumed_retention_seconds must not be negative")
	}
	if c.Tokens.ExpiryLeewaySeconds < 0 {
		return fmt.Errorf("core: tokens.expiry_leeway_seconds must not be negative")
	}
	if c.Tokens.AssertionTTLSeconds <= 0 {
		return fmt.Errorf("core: tokens.assertion_ttl_seconds must be positive")
	}
	if c.Sync.MaxAttempts < 1 {
		return fmt.Errorf("core: sync.max_attempts must be at least 1")
	}
	if c.Sync.InitialBackoffMS < 0 || c.Sync.MaxBackoffMS < 0 {
		return fmt.Errorf("core: sync backoff must not be negative")
	}
	if c.Transport.TimeoutSeconds < 0 {
		return fmt.Errorf("core: transport.timeout_seconds must not be negative")
	}
	return nil
}

func (c OAuthConfig) FlowTTL() time.Duration {
	return time.Duration(c.FlowTTLSeconds) * time.Second
}

func (c OAuthConfig) ConsumedRetention() time.Duration {
	return time.Duration(c.ConsumedRetentionSeconds) * time.Second
}

func (c TokensConfig) ExpiryLeeway() time.Duration {
	return time.Duration(c.ExpiryLeewaySeconds) * time.Second
}

func (c TokensConfig) AssertionTTL() time.Duration {
	return time.Duration(c.AssertionTTLSeconds) * time.Second
}

// RetryPolicy builds the bounded retry policy used by sync.
func (c SyncConfig) RetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: c.MaxAttempts,
		Scheduler: ExponentialBackoffScheduler{
			Initial: time.Duration(c.InitialBackoffMS) * time.Millisecond,
			Max:     time.Duration(c.MaxBackoffMS) * time.Millisecond,
		},
	}
}

func (c TransportConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}
