package logins

import (
	"context"
	"time"

	"github.com/goliatone/go-accounts/core"
	"github.com/goliatone/go-accounts/security"
	"github.com/google/uuid"
)

// StoreOpener opens the local store for creds. sealer protects secret
// columns at rest and is bound to the session's local encryption key.
type StoreOpener func(ctx context.Context, creds core.SyncCredentials, sealer core.FieldSealer) (core.LoginStore, error)

// CollectionFactory builds the remote collection for creds. keys encrypt
// and decrypt record payloads.
type CollectionFactory func(ctx context.Context, creds core.SyncCredentials, keys security.KeyBundle) (core.LoginCollection, error)

type Option func(*sessionBuilder)

type sessionBuilder struct {
	openStore       StoreOpener
	newCollection   CollectionFactory
	retryPolicy     core.RetryPolicy
	observer        *core.OperationObserver
	logger          core.Logger
	metricsRecorder core.MetricsRecorder
	clock           core.Clock
	newID           func() string
}

func defaultSessionBuilder() sessionBuilder {
	return sessionBuilder{
		openStore: func(context.Context, core.SyncCredentials, core.FieldSealer) (core.LoginStore, error) {
			return NewMemoryLoginStore(), nil
		},
		retryPolicy: core.DefaultRetryPolicy(),
		clock:       func() time.Time { return time.Now().UTC() },
		newID:       uuid.NewString,
	}
}

// WithStore uses store as the local store. The session closes it on Close.
func WithStore(store core.LoginStore) Option {
	return func(b *sessionBuilder) {
		if store == nil {
			return
		}
		b.openStore = func(context.Context, core.SyncCredentials, core.FieldSealer) (core.LoginStore, error) {
			return store, nil
		}
	}
}

func WithStoreOpener(opener StoreOpener) Option {
	return func(b *sessionBuilder) {
		if opener != nil {
			b.openStore = opener
		}
	}
}

func WithCollection(collection core.LoginCollection) Option {
	return func(b *sessionBuilder) {
		if collection == nil {
			return
		}
		b.newCollection = func(context.Context, core.SyncCredentials, security.KeyBundle) (core.LoginCollection, error) {
			return collection, nil
		}
	}
}

func WithCollectionFactory(factory CollectionFactory) Option {
	return func(b *sessionBuilder) {
		if factory != nil {
			b.newCollection = factory
		}
	}
}

func WithRetryPolicy(policy core.RetryPolicy) Option {
	return func(b *sessionBuilder) {
		b.retryPolicy = policy
	}
}

// WithSyncConfig takes the retry budget from cfg.
func WithSyncConfig(cfg core.SyncConfig) Option {
	return func(b *sessionBuilder) {
		b.retryPolicy = cfg.RetryPolicy()
	}
}

// WithObserver reports operations through an existing observer, usually
// core.Service.Observer.
func WithObserver(observer *core.OperationObserver) Option {
	return func(b *sessionBuilder) {
		b.observer = observer
	}
}

func WithLogger(logger core.Logger) Option {
	return func(b *sessionBuilder) {
		b.logger = logger
	}
}

func WithMetricsRecorder(recorder core.MetricsRecorder) Option {
	return func(b *sessionBuilder) {
		b.metricsRecorder = recorder
	}
}

func WithClock(clock core.Clock) Option {
	return func(b *sessionBuilder) {
		if clock != nil {
			b.clock = clock
		}
	}
}

func WithIDGenerator(newID func() string) Option {
	return func(b *sessionBuilder) {
		if newID != nil {
			b.newID = newID
		}
	}
}
