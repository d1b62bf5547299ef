package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/goliatone/go-accounts/core"
	"github.com/goliatone/go-accounts/migrations"
	persistence "github.com/goliatone/go-persistence-bun"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"

	memoryPath = ":memory:"
)

// OpenConfig describes one local database. Migrations is the embedded
// schema tree; the driver picks the dialect set inside it.
type OpenConfig struct {
	Driver      string
	DSN         string
	Migrations  fs.FS
	PingTimeout time.Duration
	Debug       bool
}

type persistenceConfig struct {
	driver      string
	server      string
	pingTimeout time.Duration
	debug       bool
}

func (c persistenceConfig) GetDebug() bool {
	return c.debug
}

func (c persistenceConfig) GetDriver() string {
	return c.driver
}

func (c persistenceConfig) GetServer() string {
	return c.server
}

func (c persistenceConfig) GetPingTimeout() time.Duration {
	return c.pingTimeout
}

func (c persistenceConfig) GetOtelIdentifier() string {
	return "go-accounts"
}

// SQLiteDSN turns a database path into a sqlite3 DSN. ":memory:" gets a
// private shared-cache database so every connection sees the same tables.
func SQLiteDSN(path string) string {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" || trimmed == memoryPath {
		return fmt.Sprintf("file:accounts-%d?mode=memory&cache=shared&_foreign_keys=on", time.Now().UnixNano())
	}
	if strings.HasPrefix(trimmed, "file:") {
		return trimmed
	}
	return "file:" + trimmed + "?_foreign_keys=on&_busy_timeout=5000"
}

// OpenSQLite opens (and migrates) a sqlite login store at path.
func OpenSQLite(ctx context.Context, path string, schema fs.FS, sealer core.FieldSealer) (*LoginStore, error) {
	return Open(ctx, OpenConfig{
		Driver:     DriverSQLite,
		DSN:        SQLiteDSN(path),
		Migrations: schema,
	}, sealer)
}

// OpenPostgres opens (and migrates) a postgres login store.
func OpenPostgres(ctx context.Context, dsn string, schema fs.FS, sealer core.FieldSealer) (*LoginStore, error) {
	return Open(ctx, OpenConfig{
		Driver:     DriverPostgres,
		DSN:        dsn,
		Migrations: schema,
	}, sealer)
}

// Open builds a persistence client for cfg, applies the migrations for its
// dialect and returns a store that closes the client on Close.
func Open(ctx context.Context, cfg OpenConfig, sealer core.FieldSealer) (*LoginStore, error) {
	driver := strings.TrimSpace(strings.ToLower(cfg.Driver))
	if driver == "" {
		driver = DriverSQLite
	}
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, core.NewError(core.ErrorBadInput, "sqlstore: dsn is required")
	}
	if cfg.PingTimeout <= 0 {
		cfg.PingTimeout = 5 * time.Second
	}

	sqlDB, err := sql.Open(driver, cfg.DSN)
	if err != nil {
		return nil, core.WrapError(err, core.ErrorInternal, "sqlstore: open database")
	}
	var client *persistence.Client
	switch driver {
	case DriverSQLite:
		sqlDB.SetMaxOpenConns(1)
		client, err = persistence.New(persistenceConfig{
			driver:      driver,
			server:      cfg.DSN,
			pingTimeout: cfg.PingTimeout,
			debug:       cfg.Debug,
		}, sqlDB, sqlitedialect.New())
	case DriverPostgres:
		client, err = persistence.New(persistenceConfig{
			driver:      driver,
			server:      cfg.DSN,
			pingTimeout: cfg.PingTimeout,
			debug:       cfg.Debug,
		}, sqlDB, pgdialect.New())
	default:
		_ = sqlDB.Close()
		return nil, core.NewError(core.ErrorBadInput, fmt.Sprintf("sqlstore: unsupported driver %q", cfg.Driver))
	}
	if err != nil {
		_ = sqlDB.Close()
		return nil, core.WrapError(err, core.ErrorInternal, "sqlstore: build persistence client")
	}
	if cfg.Migrations != nil {
		set, err := migrations.ForDialect(cfg.Migrations, driver)
		if err != nil {
			_ = client.Close()
			return nil, core.WrapError(err, core.ErrorInternal, "sqlstore: resolve login schema")
		}
		client.RegisterSQLMigrations(set.FS)
		if err := client.Migrate(ctx); err != nil {
			_ = client.Close()
			return nil, core.WrapError(err, core.ErrorInternal, "sqlstore: migrate login tables")
		}
	}

	store, err := NewLoginStoreFromPersistence(client, sealer)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	store.state.closer = client.Close
	return store, nil
}

// NewLoginStoreFromPersistence builds a store over a host-owned client. The
// store never closes the client.
func NewLoginStoreFromPersistence(client any, sealer core.FieldSealer) (*LoginStore, error) {
	db, err := resolveBunDB(client)
	if err != nil {
		return nil, err
	}
	return NewLoginStore(db, sealer)
}

func resolveBunDB(candidate any) (*bun.DB, error) {
	switch typed := candidate.(type) {
	case nil:
		return nil, core.NewError(core.ErrorInternal, "sqlstore: persistence client is required")
	case *bun.DB:
		return typed, nil
	case interface{ DB() *bun.DB }:
		db := typed.DB()
		if db == nil {
			return nil, core.NewError(core.ErrorInternal, "sqlstore: persistence client returned nil bun db")
		}
		return db, nil
	default:
		return nil, core.NewError(core.ErrorInternal, fmt.Sprintf("sqlstore: unsupported persistence client type %T", candidate))
	}
}
