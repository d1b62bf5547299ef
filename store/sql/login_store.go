package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-accounts/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

var loginColumns = []string{
	"hostname",
	"username",
	"password",
	"http_realm",
	"form_submit_url",
	"username_field",
	"password_field",
	"times_used",
	"time_created",
	"time_last_used",
	"time_password_changed",
}

// LoginStore keeps the local and mirror login tables and the sync meta table
// in one SQL database. Usernames and passwords are sealed before they reach
// the database.
type LoginStore struct {
	db     *bun.DB
	idb    bun.IDB
	inTx   bool
	sealer core.FieldSealer

	local  repository.Repository[*loginLocalRecord]
	mirror repository.Repository[*loginMirrorRecord]
	meta   repository.Repository[*syncMetaRecord]

	state *storeState
}

type storeState struct {
	mu     sync.Mutex
	closed bool
	closer func() error
}

func NewLoginStore(db *bun.DB, sealer core.FieldSealer) (*LoginStore, error) {
	if db == nil {
		return nil, core.NewError(core.ErrorInternal, "sqlstore: bun db is required")
	}
	if sealer == nil {
		return nil, core.NewError(core.ErrorInternal, "sqlstore: field sealer is required")
	}

	local := repository.NewRepository[*loginLocalRecord](db, loginLocalHandlers())
	if err := validateRepository(local, "local login"); err != nil {
		return nil, err
	}
	mirror := repository.NewRepository[*loginMirrorRecord](db, loginMirrorHandlers())
	if err := validateRepository(mirror, "mirror login"); err != nil {
		return nil, err
	}
	meta := repository.NewRepository[*syncMetaRecord](db, syncMetaHandlers())
	if err := validateRepository(meta, "sync meta"); err != nil {
		return nil, err
	}

	return &LoginStore{
		db:     db,
		idb:    db,
		sealer: sealer,
		local:  local,
		mirror: mirror,
		meta:   meta,
		state:  &storeState{},
	}, nil
}

func validateRepository(repo any, name string) error {
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return core.WrapError(err, core.ErrorInternal, "sqlstore: invalid "+name+" repository wiring")
		}
	}
	return nil
}

func (s *LoginStore) GetLocal(ctx context.Context, id string) (core.LocalLogin, bool, error) {
	if err := s.check(); err != nil {
		return core.LocalLogin{}, false, err
	}
	record, err := s.local.GetByIdentifierTx(ctx, s.idb, strings.TrimSpace(id))
	if err != nil {
		if isNotFound(err) {
			return core.LocalLogin{}, false, nil
		}
		return core.LocalLogin{}, false, storeError(err, "get local login")
	}
	login, err := record.toDomain(ctx, s.sealer)
	if err != nil {
		return core.LocalLogin{}, false, err
	}
	return login, true, nil
}

func (s *LoginStore) GetMirror(ctx context.Context, id string) (core.MirrorLogin, bool, error) {
	if err := s.check(); err != nil {
		return core.MirrorLogin{}, false, err
	}
	record, err := s.mirror.GetByIdentifierTx(ctx, s.idb, strings.TrimSpace(id))
	if err != nil {
		if isNotFound(err) {
			return core.MirrorLogin{}, false, nil
		}
		return core.MirrorLogin{}, false, storeError(err, "get mirror login")
	}
	login, err := record.toDomain(ctx, s.sealer)
	if err != nil {
		return core.MirrorLogin{}, false, err
	}
	return login, true, nil
}

func (s *LoginStore) ListLocal(ctx context.Context) ([]core.LocalLogin, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	var records []*loginLocalRecord
	err := s.idb.NewSelect().
		Model(&records).
		OrderExpr("?TableAlias.id ASC").
		Scan(ctx)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, storeError(err, "list local logins")
	}
	out := make([]core.LocalLogin, 0, len(records))
	for _, record := range records {
		login, err := record.toDomain(ctx, s.sealer)
		if err != nil {
			return nil, err
		}
		out = append(out, login)
	}
	return out, nil
}

func (s *LoginStore) ListMirror(ctx context.Context) ([]core.MirrorLogin, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	var records []*loginMirrorRecord
	err := s.idb.NewSelect().
		Model(&records).
		OrderExpr("?TableAlias.id ASC").
		Scan(ctx)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, storeError(err, "list mirror logins")
	}
	out := make([]core.MirrorLogin, 0, len(records))
	for _, record := range records {
		login, err := record.toDomain(ctx, s.sealer)
		if err != nil {
			return nil, err
		}
		out = append(out, login)
	}
	return out, nil
}

func (s *LoginStore) PutLocal(ctx context.Context, login core.LocalLogin) error {
	if err := s.check(); err != nil {
		return err
	}
	if strings.TrimSpace(login.ID) == "" {
		return core.NewError(core.ErrorBadInput, "sqlstore: login id is required")
	}
	record, err := newLocalRecord(ctx, s.sealer, login)
	if err != nil {
		return err
	}
	query := s.idb.NewInsert().
		Model(record).
		On("CONFLICT (id) DO UPDATE")
	query = setExcluded(query, append(loginColumns, "sync_status", "is_deleted", "local_modified_ms")...)
	if _, err := query.Exec(ctx); err != nil {
		return storeError(err, "put local login")
	}
	return nil
}

func (s *LoginStore) PutMirror(ctx context.Context, login core.MirrorLogin) error {
	if err := s.check(); err != nil {
		return err
	}
	if strings.TrimSpace(login.ID) == "" {
		return core.NewError(core.ErrorBadInput, "sqlstore: login id is required")
	}
	record, err := newMirrorRecord(ctx, s.sealer, login)
	if err != nil {
		return err
	}
	query := s.idb.NewInsert().
		Model(record).
		On("CONFLICT (id) DO UPDATE")
	query = setExcluded(query, append(loginColumns, "server_modified_ms", "is_overridden")...)
	if _, err := query.Exec(ctx); err != nil {
		return storeError(err, "put mirror login")
	}
	return nil
}

func (s *LoginStore) DeleteLocal(ctx context.Context, id string) error {
	if err := s.check(); err != nil {
		return err
	}
	_, err := s.idb.NewDelete().
		Model((*loginLocalRecord)(nil)).
		Where("id = ?", strings.TrimSpace(id)).
		Exec(ctx)
	if err != nil {
		return storeError(err, "delete local login")
	}
	return nil
}

func (s *LoginStore) DeleteMirror(ctx context.Context, id string) error {
	if err := s.check(); err != nil {
		return err
	}
	_, err := s.idb.NewDelete().
		Model((*loginMirrorRecord)(nil)).
		Where("id = ?", strings.TrimSpace(id)).
		Exec(ctx)
	if err != nil {
		return storeError(err, "delete mirror login")
	}
	return nil
}

func (s *LoginStore) GetMeta(ctx context.Context, key string) (string, bool, error) {
	if err := s.check(); err != nil {
		return "", false, err
	}
	record, err := s.meta.GetByIdentifierTx(ctx, s.idb, key)
	if err != nil {
		if isNotFound(err) {
			return "", false, nil
		}
		return "", false, storeError(err, "get sync meta")
	}
	return record.Value, true, nil
}

func (s *LoginStore) PutMeta(ctx context.Context, key, value string) error {
	if err := s.check(); err != nil {
		return err
	}
	if strings.TrimSpace(key) == "" {
		return core.NewError(core.ErrorBadInput, "sqlstore: meta key is required")
	}
	record := &syncMetaRecord{Key: key, Value: value, UpdatedAt: time.Now().UTC()}
	_, err := s.idb.NewInsert().
		Model(record).
		On("CONFLICT (meta_key) DO UPDATE").
		Set("meta_value = EXCLUDED.meta_value").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return storeError(err, "put sync meta")
	}
	return nil
}

func (s *LoginStore) DeleteMeta(ctx context.Context, key string) error {
	if err := s.check(); err != nil {
		return err
	}
	_, err := s.idb.NewDelete().
		Model((*syncMetaRecord)(nil)).
		Where("meta_key = ?", key).
		Exec(ctx)
	if err != nil {
		return storeError(err, "delete sync meta")
	}
	return nil
}

// WithTx runs fn in one database transaction. Nested calls join the
// enclosing transaction.
func (s *LoginStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx core.LoginStore) error) error {
	if fn == nil {
		return nil
	}
	if err := s.check(); err != nil {
		return err
	}
	if s.inTx {
		return fn(ctx, s)
	}
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, s.bind(tx))
	})
}

// Clear drops every local, mirror and meta row.
func (s *LoginStore) Clear(ctx context.Context) error {
	return s.WithTx(ctx, func(ctx context.Context, txStore core.LoginStore) error {
		bound := txStore.(*LoginStore)
		for _, model := range []any{
			(*loginLocalRecord)(nil),
			(*loginMirrorRecord)(nil),
			(*syncMetaRecord)(nil),
		} {
			if _, err := bound.idb.NewDelete().Model(model).Where("1 = 1").Exec(ctx); err != nil {
				return storeError(err, "clear login tables")
			}
		}
		return nil
	})
}

// Close marks the store closed and runs the close hook of the opener, if
// any. A second Close is a no-op.
func (s *LoginStore) Close() error {
	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	if s.state.closed {
		return nil
	}
	s.state.closed = true
	if s.state.closer != nil {
		return s.state.closer()
	}
	return nil
}

func (s *LoginStore) bind(tx bun.IDB) *LoginStore {
	bound := *s
	bound.idb = tx
	bound.inTx = true
	return &bound
}

func (s *LoginStore) check() error {
	if s == nil || s.db == nil || s.state == nil {
		return core.NewError(core.ErrorInternal, "sqlstore: login store is not configured")
	}
	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	if s.state.closed {
		return core.NewError(core.ErrorInvalidHandle, "sqlstore: login store is closed")
	}
	return nil
}

func setExcluded(query *bun.InsertQuery, columns ...string) *bun.InsertQuery {
	sorted := append([]string(nil), columns...)
	sort.Strings(sorted)
	for _, column := range sorted {
		query = query.Set(column + " = EXCLUDED." + column)
	}
	return query
}

func isNotFound(err error) bool {
	return repository.IsRecordNotFound(err) || errors.Is(err, sql.ErrNoRows)
}

func storeError(err error, operation string) error {
	return core.WrapError(err, core.ErrorInternal, "sqlstore: "+operation)
}

var _ core.LoginStore = (*LoginStore)(nil)
