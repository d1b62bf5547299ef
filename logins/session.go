// Package logins syncs saved credentials between a local store and the
// remote collection of one account.
package logins

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-accounts/core"
	"github.com/goliatone/go-accounts/security"
	glog "github.com/goliatone/go-logger/glog"
)

const (
	keyCheckPurpose = "key_check"
	keyCheckValue   = "accounts.logins.v1"
)

// Session is the sync adapter for one account's login collection. It owns
// the local store and releases it on Close. Callers serialize access.
type Session struct {
	res        core.Resource
	observer   *core.OperationObserver
	store      core.LoginStore
	collection core.LoginCollection
	sealer     core.FieldSealer
	keyID      string
	retry      core.RetryPolicy
	now        core.Clock
	newID      func() string
}

// SyncResult summarizes one completed Sync call.
type SyncResult struct {
	Attempts int
	Incoming int
	Skipped  int
	Outgoing int
	LastSync time.Time
}

// Open validates creds, opens the local store and binds a session to it.
// Malformed keys and a local store sealed under another key fail with
// ErrorInvalidCredentials.
func Open(ctx context.Context, creds core.SyncCredentials, opts ...Option) (*Session, error) {
	builder := defaultSessionBuilder()
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}
	observer := builder.observer
	if observer == nil {
		metrics := builder.metricsRecorder
		if metrics == nil {
			metrics = core.NopMetricsRecorder{}
		}
		_, logger := glog.Resolve("accounts.logins", nil, builder.logger)
		observer = core.NewOperationObserver(glog.Ensure(logger), metrics, "accounts")
	}

	startedAt := time.Now()
	var session *Session
	var err error
	defer func() {
		observer.ObserveOperation(ctx, startedAt, "logins_open", err, map[string]any{"key_id": creds.KeyID})
	}()

	session, err = openSession(ctx, creds, builder, observer)
	return session, err
}

func openSession(ctx context.Context, creds core.SyncCredentials, builder sessionBuilder, observer *core.OperationObserver) (*Session, error) {
	if err := creds.Validate(); err != nil {
		return nil, err
	}
	rawKey, err := creds.EncryptionKeyBytes()
	if err != nil {
		return nil, core.WrapError(err, core.ErrorInvalidCredentials, "logins: encryption key is not valid hex")
	}
	sealer, err := security.NewAppKeySecretProviderFromHex(creds.EncryptionKey, security.WithKeyID(security.KeyFingerprint(rawKey)))
	if err != nil {
		return nil, err
	}
	bundle, err := security.KeyBundleFromSyncKey(creds.SyncKey)
	if err != nil {
		return nil, err
	}

	store, err := builder.openStore(ctx, creds, sealer)
	if err != nil {
		return nil, err
	}
	if store == nil {
		return nil, core.NewError(core.ErrorInternal, "logins: store opener returned no store")
	}
	if err := prepareStore(ctx, store, sealer, creds.KeyID); err != nil {
		_ = store.Close()
		return nil, err
	}

	var collection core.LoginCollection
	if builder.newCollection != nil {
		collection, err = builder.newCollection(ctx, creds, bundle)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
	}

	session := &Session{
		observer:   observer,
		store:      store,
		collection: collection,
		sealer:     sealer,
		keyID:      strings.TrimSpace(creds.KeyID),
		retry:      builder.retryPolicy,
		now:        builder.clock,
		newID:      builder.newID,
	}
	if err := session.res.Assign("sync session", store.Close); err != nil {
		_ = store.Close()
		return nil, err
	}
	return session, nil
}

// prepareStore checks the local key against the store and drops the sync
// cursor when the account's sync key changed since the last session.
func prepareStore(ctx context.Context, store core.LoginStore, sealer core.FieldSealer, keyID string) error {
	check, found, err := store.GetMeta(ctx, core.MetaKeyCheck)
	if err != nil {
		return err
	}
	if found {
		value, err := sealer.OpenString(ctx, keyCheckPurpose, check)
		if err != nil || value != keyCheckValue {
			return core.WrapError(err, core.ErrorInvalidCredentials, "logins: local store was written with a different encryption key")
		}
	} else if err := writeKeyCheck(ctx, store, sealer); err != nil {
		return err
	}

	previous, found, err := store.GetMeta(ctx, core.MetaGlobalState)
	if err != nil {
		return err
	}
	if found && previous == keyID {
		return nil
	}
	if err := store.DeleteMeta(ctx, core.MetaLastSync); err != nil {
		return err
	}
	return store.PutMeta(ctx, core.MetaGlobalState, keyID)
}

func writeKeyCheck(ctx context.Context, store core.LoginStore, sealer core.FieldSealer) error {
	sealed, err := sealer.SealString(ctx, keyCheckPurpose, keyCheckValue)
	if err != nil {
		return err
	}
	return store.PutMeta(ctx, core.MetaKeyCheck, sealed)
}

func (s *Session) check() error {
	if s == nil {
		return core.NewError(core.ErrorInvalidHandle, "logins: session is nil")
	}
	return s.res.Check()
}

// Close releases the local store. A second Close fails with
// ErrorInvalidHandle.
func (s *Session) Close() error {
	if s == nil {
		return core.NewError(core.ErrorInvalidHandle, "logins: session is nil")
	}
	return s.res.Release()
}

func (s *Session) State() core.ResourceState {
	if s == nil {
		return core.ResourceUnassigned
	}
	return s.res.State()
}

// GetByID returns the live record for id, or None when it does not exist
// or is pending deletion.
func (s *Session) GetByID(ctx context.Context, id string) core.Result[core.Login] {
	if err := s.check(); err != nil {
		return core.Failed[core.Login](err)
	}
	startedAt := time.Now()
	var err error
	defer func() {
		s.observer.ObserveOperation(ctx, startedAt, "logins_get_by_id", err, map[string]any{"login_id": id})
	}()

	login, found, err := s.lookup(ctx, s.store, id)
	if err != nil {
		return core.Failed[core.Login](err)
	}
	if !found {
		return core.None[core.Login]()
	}
	return core.Found(login)
}

// GetAll returns every live record ordered by id.
func (s *Session) GetAll(ctx context.Context) (logins []core.Login, err error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	startedAt := time.Now()
	defer func() {
		s.observer.ObserveOperation(ctx, startedAt, "logins_get_all", err, map[string]any{"count": len(logins)})
	}()

	local, err := s.store.ListLocal(ctx)
	if err != nil {
		return nil, err
	}
	mirror, err := s.store.ListMirror(ctx)
	if err != nil {
		return nil, err
	}
	shadowed := make(map[string]struct{}, len(local))
	logins = make([]core.Login, 0, len(local)+len(mirror))
	for _, row := range local {
		shadowed[row.ID] = struct{}{}
		if row.IsDeleted {
			continue
		}
		logins = append(logins, row.Login)
	}
	for _, row := range mirror {
		if _, ok := shadowed[row.ID]; ok {
			continue
		}
		logins = append(logins, row.Login)
	}
	sort.Slice(logins, func(i, j int) bool { return logins[i].ID < logins[j].ID })
	return logins, nil
}

// Add validates and inserts a new record. A missing id is generated; the
// stored record is returned.
func (s *Session) Add(ctx context.Context, login core.Login) (added core.Login, err error) {
	if err := s.check(); err != nil {
		return core.Login{}, err
	}
	startedAt := time.Now()
	defer func() {
		s.observer.ObserveOperation(ctx, startedAt, "logins_add", err, map[string]any{"login_id": added.ID, "hostname": login.Hostname})
	}()

	if err = login.Validate(); err != nil {
		return core.Login{}, err
	}
	login = core.CloneLogin(login)
	if strings.TrimSpace(login.ID) == "" {
		login.ID = s.newID()
	}
	now := s.now()
	nowMS := now.UnixMilli()
	if login.TimesUsed < 1 {
		login.TimesUsed = 1
	}
	if login.TimeCreated == 0 {
		login.TimeCreated = nowMS
	}
	if login.TimeLastUsed == 0 {
		login.TimeLastUsed = nowMS
	}
	if login.TimePasswordChanged == 0 {
		login.TimePasswordChanged = nowMS
	}

	err = s.store.WithTx(ctx, func(ctx context.Context, tx core.LoginStore) error {
		_, exists, err := s.lookup(ctx, tx, login.ID)
		if err != nil {
			return err
		}
		if exists {
			return core.NewError(core.ErrorBadInput, "logins: a login with id "+login.ID+" already exists")
		}
		dupe, found, err := s.findDupe(ctx, tx, login)
		if err != nil {
			return err
		}
		if found {
			return core.NewError(core.ErrorBadInput, "logins: login already exists for this origin and username as "+dupe.ID)
		}
		return tx.PutLocal(ctx, core.LocalLogin{
			Login:         login,
			SyncStatus:    core.SyncStatusNew,
			LocalModified: now,
		})
	})
	if err != nil {
		return core.Login{}, err
	}
	return login, nil
}

// Update replaces a record's fields. Usage counters and the creation time
// are kept from the stored record.
func (s *Session) Update(ctx context.Context, login core.Login) (err error) {
	if err := s.check(); err != nil {
		return err
	}
	startedAt := time.Now()
	defer func() {
		s.observer.ObserveOperation(ctx, startedAt, "logins_update", err, map[string]any{"login_id": login.ID})
	}()

	if err = login.Validate(); err != nil {
		return err
	}
	err = s.mutate(ctx, login.ID, func(current core.Login, now time.Time) core.Login {
		updated := core.CloneLogin(login)
		updated.TimesUsed = current.TimesUsed
		updated.TimeCreated = current.TimeCreated
		updated.TimeLastUsed = current.TimeLastUsed
		updated.TimePasswordChanged = current.TimePasswordChanged
		if updated.Password != current.Password {
			updated.TimePasswordChanged = now.UnixMilli()
		}
		return updated
	})
	return err
}

// Touch records one use of the login.
func (s *Session) Touch(ctx context.Context, id string) (err error) {
	if err := s.check(); err != nil {
		return err
	}
	startedAt := time.Now()
	defer func() {
		s.observer.ObserveOperation(ctx, startedAt, "logins_touch", err, map[string]any{"login_id": id})
	}()

	err = s.mutate(ctx, id, func(current core.Login, now time.Time) core.Login {
		current.TimesUsed++
		current.TimeLastUsed = now.UnixMilli()
		return current
	})
	return err
}

// Delete marks the login for deletion and reports whether it existed.
// Records that were never synced are removed outright.
func (s *Session) Delete(ctx context.Context, id string) (deleted bool, err error) {
	if err := s.check(); err != nil {
		return false, err
	}
	startedAt := time.Now()
	defer func() {
		s.observer.ObserveOperation(ctx, startedAt, "logins_delete", err, map[string]any{"login_id": id, "deleted": deleted})
	}()

	err = s.store.WithTx(ctx, func(ctx context.Context, tx core.LoginStore) error {
		local, hasLocal, err := tx.GetLocal(ctx, id)
		if err != nil {
			return err
		}
		mirror, hasMirror, err := tx.GetMirror(ctx, id)
		if err != nil {
			return err
		}
		switch {
		case hasLocal && local.IsDeleted:
			return nil
		case !hasLocal && !hasMirror:
			return nil
		case hasLocal && !hasMirror && local.SyncStatus == core.SyncStatusNew:
			deleted = true
			return tx.DeleteLocal(ctx, id)
		}

		base := mirror.Login
		if hasLocal {
			base = local.Login
		}
		deleted = true
		if hasMirror {
			mirror.IsOverridden = true
			if err := tx.PutMirror(ctx, mirror); err != nil {
				return err
			}
		}
		return tx.PutLocal(ctx, core.LocalLogin{
			Login:         base,
			SyncStatus:    core.SyncStatusChanged,
			IsDeleted:     true,
			LocalModified: s.now(),
		})
	})
	if err != nil {
		return false, err
	}
	return deleted, nil
}

// Sync reconciles the local store with the remote collection. Network
// failures are retried within the configured budget; running out of
// attempts fails with ErrorSyncFailed.
func (s *Session) Sync(ctx context.Context) (result SyncResult, err error) {
	if err := s.check(); err != nil {
		return SyncResult{}, err
	}
	startedAt := time.Now()
	defer func() {
		s.observer.ObserveOperation(ctx, startedAt, "logins_sync", err, map[string]any{
			"attempts": result.Attempts,
			"incoming": result.Incoming,
			"outgoing": result.Outgoing,
			"skipped":  result.Skipped,
		})
	}()

	if s.collection == nil {
		return SyncResult{}, core.NewError(core.ErrorInternal, "logins: remote collection is not configured")
	}

	var last SyncResult
	retried, err := core.RunWithRetry(ctx, s.retry, func(ctx context.Context, attempt int) error {
		outcome, err := s.syncOnce(ctx)
		if err != nil {
			return err
		}
		last = outcome
		return nil
	})
	last.Attempts = retried.Attempts
	if err != nil {
		if retried.Exhausted {
			return last, core.WrapError(err, core.ErrorSyncFailed,
				"logins: sync failed after "+strconv.Itoa(retried.Attempts)+" attempts").
				WithMetadata(map[string]any{"attempts": retried.Attempts})
		}
		return last, err
	}
	return last, nil
}

// Wipe deletes every record of the collection, remotely and then locally.
// The local part runs in one transaction.
func (s *Session) Wipe(ctx context.Context) (err error) {
	if err := s.check(); err != nil {
		return err
	}
	startedAt := time.Now()
	defer func() {
		s.observer.ObserveOperation(ctx, startedAt, "logins_wipe", err, nil)
	}()

	if s.collection == nil {
		return core.NewError(core.ErrorInternal, "logins: remote collection is not configured")
	}
	if err = s.collection.Wipe(ctx); err != nil {
		return err
	}
	err = s.store.WithTx(ctx, func(ctx context.Context, tx core.LoginStore) error {
		if err := tx.Clear(ctx); err != nil {
			return err
		}
		if err := writeKeyCheck(ctx, tx, s.sealer); err != nil {
			return err
		}
		return tx.PutMeta(ctx, core.MetaGlobalState, s.keyID)
	})
	if err != nil {
		// The remote collection is already gone; rerunning Wipe clears the
		// local store.
		err = core.WrapError(err, core.KindOf(err), "logins: remote collection wiped but local store was not cleared").
			WithMetadata(map[string]any{"remote_wiped": true})
	}
	return err
}

// Reset forgets the sync cursor so the next Sync refetches the whole
// collection. Records are kept.
func (s *Session) Reset(ctx context.Context) (err error) {
	if err := s.check(); err != nil {
		return err
	}
	startedAt := time.Now()
	defer func() {
		s.observer.ObserveOperation(ctx, startedAt, "logins_reset", err, nil)
	}()

	err = s.store.DeleteMeta(ctx, core.MetaLastSync)
	return err
}

// LastSync reports when the collection was last reconciled.
func (s *Session) LastSync(ctx context.Context) (time.Time, error) {
	if err := s.check(); err != nil {
		return time.Time{}, err
	}
	return readLastSync(ctx, s.store)
}

func (s *Session) lookup(ctx context.Context, store core.LoginStore, id string) (core.Login, bool, error) {
	local, found, err := store.GetLocal(ctx, id)
	if err != nil {
		return core.Login{}, false, err
	}
	if found {
		if local.IsDeleted {
			return core.Login{}, false, nil
		}
		return local.Login, true, nil
	}
	mirror, found, err := store.GetMirror(ctx, id)
	if err != nil || !found {
		return core.Login{}, false, err
	}
	return mirror.Login, true, nil
}

// mutate applies change to the live record id and stages it as a local
// change.
func (s *Session) mutate(ctx context.Context, id string, change func(current core.Login, now time.Time) core.Login) error {
	return s.store.WithTx(ctx, func(ctx context.Context, tx core.LoginStore) error {
		local, hasLocal, err := tx.GetLocal(ctx, id)
		if err != nil {
			return err
		}
		mirror, hasMirror, err := tx.GetMirror(ctx, id)
		if err != nil {
			return err
		}
		if (hasLocal && local.IsDeleted) || (!hasLocal && !hasMirror) {
			return core.NewError(core.ErrorNotFound, "logins: no login with id "+id)
		}

		current := mirror.Login
		status := core.SyncStatusChanged
		if hasLocal {
			current = local.Login
			if local.SyncStatus == core.SyncStatusNew {
				status = core.SyncStatusNew
			}
		}
		now := s.now()
		updated := change(core.CloneLogin(current), now)
		updated.ID = id

		if hasMirror && !mirror.IsOverridden {
			mirror.IsOverridden = true
			if err := tx.PutMirror(ctx, mirror); err != nil {
				return err
			}
		}
		return tx.PutLocal(ctx, core.LocalLogin{
			Login:         updated,
			SyncStatus:    status,
			LocalModified: now,
		})
	})
}

func (s *Session) findDupe(ctx context.Context, store core.LoginStore, login core.Login) (core.Login, bool, error) {
	key := login.DupeKey()
	local, err := store.ListLocal(ctx)
	if err != nil {
		return core.Login{}, false, err
	}
	shadowed := map[string]struct{}{}
	for _, row := range local {
		shadowed[row.ID] = struct{}{}
		if !row.IsDeleted && row.ID != login.ID && row.DupeKey() == key {
			return row.Login, true, nil
		}
	}
	mirror, err := store.ListMirror(ctx)
	if err != nil {
		return core.Login{}, false, err
	}
	for _, row := range mirror {
		if _, ok := shadowed[row.ID]; ok {
			continue
		}
		if row.ID != login.ID && row.DupeKey() == key {
			return row.Login, true, nil
		}
	}
	return core.Login{}, false, nil
}

func readLastSync(ctx context.Context, store core.LoginStore) (time.Time, error) {
	value, found, err := store.GetMeta(ctx, core.MetaLastSync)
	if err != nil || !found {
		return time.Time{}, err
	}
	millis, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return time.Time{}, core.WrapError(err, core.ErrorInternal, "logins: stored sync cursor is not a timestamp; reset clears it").
			WithMetadata(map[string]any{"value": value})
	}
	return time.UnixMilli(millis).UTC(), nil
}

func writeLastSync(ctx context.Context, store core.LoginStore, at time.Time) error {
	if at.IsZero() {
		return nil
	}
	return store.PutMeta(ctx, core.MetaLastSync, strconv.FormatInt(at.UnixMilli(), 10))
}
