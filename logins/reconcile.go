package logins

import (
	"context"
	"time"

	"github.com/goliatone/go-accounts/core"
)

// syncOnce runs one full reconciliation: fetch, merge, upload, commit.
// Every step is safe to repeat, so a failed attempt can simply be rerun.
func (s *Session) syncOnce(ctx context.Context) (SyncResult, error) {
	since, err := readLastSync(ctx, s.store)
	if err != nil {
		return SyncResult{}, err
	}
	incoming, fetchedAt, err := s.collection.Fetch(ctx, since)
	if err != nil {
		return SyncResult{}, err
	}

	result := SyncResult{Incoming: len(incoming)}
	err = s.store.WithTx(ctx, func(ctx context.Context, tx core.LoginStore) error {
		skipped, err := s.applyIncoming(ctx, tx, incoming)
		result.Skipped = skipped
		return err
	})
	if err != nil {
		return SyncResult{}, err
	}

	outgoing, err := s.collectOutgoing(ctx)
	if err != nil {
		return SyncResult{}, err
	}
	uploadedAt := time.Time{}
	if len(outgoing) > 0 {
		uploadedAt, err = s.collection.Upload(ctx, outgoing)
		if err != nil {
			return SyncResult{}, err
		}
	}
	result.Outgoing = len(outgoing)

	// The cursor stops at the fetch time. Records another client writes
	// between fetch and upload are newer than it, and the next sync pulls them
	// together with this upload, which merges as a no-op.
	lastSync := latest(since, fetchedAt)
	err = s.store.WithTx(ctx, func(ctx context.Context, tx core.LoginStore) error {
		if err := s.commitOutgoing(ctx, tx, outgoing, uploadedAt); err != nil {
			return err
		}
		return writeLastSync(ctx, tx, lastSync)
	})
	if err != nil {
		return SyncResult{}, err
	}
	result.LastSync = lastSync
	return result, nil
}

// applyIncoming merges remote records into the store. Tombstones always
// delete. A record with pending local changes is resolved by comparing the
// local change time to the server time; ties go to the server. Records
// with no local history are matched against unsynced local records by
// origin and username before being inserted.
func (s *Session) applyIncoming(ctx context.Context, tx core.LoginStore, records []core.RemoteLogin) (int, error) {
	dupes, err := newLocalDupes(ctx, tx)
	if err != nil {
		return 0, err
	}

	skipped := 0
	for _, record := range records {
		if record.ID == "" {
			skipped++
			continue
		}
		dupes.forget(record.ID)
		if record.Deleted {
			if err := tx.DeleteLocal(ctx, record.ID); err != nil {
				return skipped, err
			}
			if err := tx.DeleteMirror(ctx, record.ID); err != nil {
				return skipped, err
			}
			continue
		}
		if err := record.Login.Validate(); err != nil {
			s.observer.ObserveOperation(ctx, time.Now(), "logins_skip_incoming", err, map[string]any{"login_id": record.ID})
			skipped++
			continue
		}

		local, hasLocal, err := tx.GetLocal(ctx, record.ID)
		if err != nil {
			return skipped, err
		}
		_, hasMirror, err := tx.GetMirror(ctx, record.ID)
		if err != nil {
			return skipped, err
		}

		switch {
		case hasLocal && local.SyncStatus != core.SyncStatusSynced:
			if err := s.resolveConflict(ctx, tx, local, record); err != nil {
				return skipped, err
			}
		case !hasLocal && !hasMirror:
			if dupe, ok := dupes.take(record.Login); ok {
				if err := tx.DeleteLocal(ctx, dupe.ID); err != nil {
					return skipped, err
				}
				dupe.ID = record.ID
				dupe.SyncStatus = core.SyncStatusChanged
				if err := s.resolveConflict(ctx, tx, dupe, record); err != nil {
					return skipped, err
				}
				continue
			}
			if err := acceptRemote(ctx, tx, record); err != nil {
				return skipped, err
			}
		default:
			if err := acceptRemote(ctx, tx, record); err != nil {
				return skipped, err
			}
		}
	}
	return skipped, nil
}

func (s *Session) resolveConflict(ctx context.Context, tx core.LoginStore, local core.LocalLogin, record core.RemoteLogin) error {
	if !local.LocalModified.After(record.Modified) {
		return acceptRemote(ctx, tx, record)
	}
	if err := tx.PutMirror(ctx, core.MirrorLogin{
		Login:          record.Login,
		ServerModified: record.Modified,
		IsOverridden:   true,
	}); err != nil {
		return err
	}
	return tx.PutLocal(ctx, local)
}

func acceptRemote(ctx context.Context, tx core.LoginStore, record core.RemoteLogin) error {
	if err := tx.DeleteLocal(ctx, record.ID); err != nil {
		return err
	}
	return tx.PutMirror(ctx, core.MirrorLogin{
		Login:          record.Login,
		ServerModified: record.Modified,
	})
}

func (s *Session) collectOutgoing(ctx context.Context) ([]core.RemoteLogin, error) {
	local, err := s.store.ListLocal(ctx)
	if err != nil {
		return nil, err
	}
	outgoing := make([]core.RemoteLogin, 0, len(local))
	for _, row := range local {
		if row.SyncStatus == core.SyncStatusSynced && !row.IsDeleted {
			continue
		}
		record := core.RemoteLogin{
			Login:    row.Login,
			Deleted:  row.IsDeleted,
			Modified: row.LocalModified,
		}
		if row.IsDeleted {
			record.Login = core.Login{ID: row.ID}
		}
		outgoing = append(outgoing, record)
	}
	return outgoing, nil
}

func (s *Session) commitOutgoing(ctx context.Context, tx core.LoginStore, outgoing []core.RemoteLogin, uploadedAt time.Time) error {
	for _, record := range outgoing {
		if err := tx.DeleteLocal(ctx, record.ID); err != nil {
			return err
		}
		if record.Deleted {
			if err := tx.DeleteMirror(ctx, record.ID); err != nil {
				return err
			}
			continue
		}
		if err := tx.PutMirror(ctx, core.MirrorLogin{
			Login:          record.Login,
			ServerModified: uploadedAt,
		}); err != nil {
			return err
		}
	}
	return nil
}

// localDupes indexes unsynced, live local records by DupeKey.
type localDupes struct {
	byKey map[string]core.LocalLogin
}

func newLocalDupes(ctx context.Context, tx core.LoginStore) (*localDupes, error) {
	rows, err := tx.ListLocal(ctx)
	if err != nil {
		return nil, err
	}
	index := &localDupes{byKey: map[string]core.LocalLogin{}}
	for _, row := range rows {
		if row.IsDeleted || row.SyncStatus != core.SyncStatusNew {
			continue
		}
		key := row.DupeKey()
		if _, exists := index.byKey[key]; !exists {
			index.byKey[key] = row
		}
	}
	return index, nil
}

func (d *localDupes) take(login core.Login) (core.LocalLogin, bool) {
	key := login.DupeKey()
	row, ok := d.byKey[key]
	if ok {
		delete(d.byKey, key)
	}
	return row, ok
}

func (d *localDupes) forget(id string) {
	for key, row := range d.byKey {
		if row.ID == id {
			delete(d.byKey, key)
		}
	}
}

func latest(values ...time.Time) time.Time {
	var out time.Time
	for _, value := range values {
		if value.After(out) {
			out = value
		}
	}
	return out
}
