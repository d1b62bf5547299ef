package accounts

import (
	"context"
	"io/fs"
	"strings"

	"github.com/goliatone/go-accounts/core"
	"github.com/goliatone/go-accounts/logins"
	"github.com/goliatone/go-accounts/ratelimit"
	"github.com/goliatone/go-accounts/security"
	sqlstore "github.com/goliatone/go-accounts/store/sql"
	"github.com/goliatone/go-accounts/transport"
)

type LoginsOption func(*loginsOptions)

type loginsOptions struct {
	httpClient  transport.HTTPDoer
	transport   core.TransportConfig
	sync        core.SyncConfig
	keySource   security.KeySource
	backoff     core.BackoffPolicy
	migrations  fs.FS
	offline     bool
	sessionOpts []logins.Option
}

// WithHTTPClient sets the client used for token server and storage calls.
func WithHTTPClient(client transport.HTTPDoer) LoginsOption {
	return func(o *loginsOptions) {
		o.httpClient = client
	}
}

func WithTransportConfig(cfg core.TransportConfig) LoginsOption {
	return func(o *loginsOptions) {
		o.transport = cfg
	}
}

func WithSyncConfig(cfg core.SyncConfig) LoginsOption {
	return func(o *loginsOptions) {
		o.sync = cfg
	}
}

// WithKeySource resolves the local encryption key when the credentials do
// not carry one.
func WithKeySource(source security.KeySource) LoginsOption {
	return func(o *loginsOptions) {
		o.keySource = source
	}
}

// WithBackoffPolicy replaces the policy that honors storage server backoff
// hints. Sessions sharing a policy share backoff windows.
func WithBackoffPolicy(policy core.BackoffPolicy) LoginsOption {
	return func(o *loginsOptions) {
		o.backoff = policy
	}
}

// WithLoginMigrations replaces the embedded schema used for the local store.
func WithLoginMigrations(migrations fs.FS) LoginsOption {
	return func(o *loginsOptions) {
		o.migrations = migrations
	}
}

// WithoutRemote opens a session that only touches the local store. Sync
// and wipe then fail with ErrorInternal.
func WithoutRemote() LoginsOption {
	return func(o *loginsOptions) {
		o.offline = true
	}
}

// WithSessionOptions passes extra options to logins.Open. They are applied
// after the defaults, so they can replace the store or collection.
func WithSessionOptions(opts ...logins.Option) LoginsOption {
	return func(o *loginsOptions) {
		o.sessionOpts = append(o.sessionOpts, opts...)
	}
}

// OpenLogins opens a sync session backed by a sqlite store at
// creds.DatabasePath and the remote passwords collection reached through
// creds.TokenServerURL.
func OpenLogins(ctx context.Context, creds SyncCredentials, opts ...LoginsOption) (*logins.Session, error) {
	cfg := DefaultConfig()
	options := loginsOptions{
		transport: cfg.Transport,
		sync:      cfg.Sync,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	if options.keySource != nil && strings.TrimSpace(creds.EncryptionKey) == "" {
		key, keyID, err := options.keySource.ResolveKey(ctx)
		if err != nil {
			return nil, err
		}
		creds.EncryptionKey = key
		if strings.TrimSpace(creds.KeyID) == "" {
			creds.KeyID = keyID
		}
	}

	migrations := options.migrations
	if migrations == nil {
		sub, err := LoginMigrationsFS()
		if err != nil {
			return nil, core.WrapError(err, core.ErrorInternal, "accounts: load login migrations")
		}
		migrations = sub
	}

	sessionOpts := []logins.Option{
		logins.WithSyncConfig(options.sync),
		logins.WithStoreOpener(func(ctx context.Context, creds core.SyncCredentials, sealer core.FieldSealer) (core.LoginStore, error) {
			return sqlstore.OpenSQLite(ctx, creds.DatabasePath, migrations, sealer)
		}),
	}
	if !options.offline {
		adapter := transport.NewRESTAdapterFromConfig(options.httpClient, options.transport)
		backoff := options.backoff
		if backoff == nil {
			backoff = ratelimit.NewBackoffPolicy(ratelimit.NewMemoryStateStore())
		}
		sessionOpts = append(sessionOpts, logins.WithCollectionFactory(
			func(_ context.Context, creds core.SyncCredentials, keys security.KeyBundle) (core.LoginCollection, error) {
				client := transport.NewStorageClient(adapter, creds, keys)
				client.Backoff = backoff
				return client, nil
			},
		))
	}
	sessionOpts = append(sessionOpts, options.sessionOpts...)
	return logins.Open(ctx, creds, sessionOpts...)
}
