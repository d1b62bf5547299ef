package bridge

import (
	"context"

	"github.com/goliatone/go-accounts/core"
	"github.com/goliatone/go-accounts/logins"
)

// PasswordsStateNew opens a password sync state. Every argument is
// required; none is defaulted.
func PasswordsStateNew(databasePath, encryptionKey, keyID, accessToken, syncKey, tokenServerURL string) (uint64, ExternError) {
	return call("passwords_state_new", func(ctx context.Context, rt *runtime) (uint64, error) {
		id, err := rt.registry.OpenLogins(ctx, core.SyncCredentials{
			DatabasePath:   databasePath,
			EncryptionKey:  encryptionKey,
			KeyID:          keyID,
			AccessToken:    accessToken,
			SyncKey:        syncKey,
			TokenServerURL: tokenServerURL,
		})
		if err != nil {
			return 0, err
		}
		return parseHandle(id)
	})
}

// PasswordsStateDestroy closes the state. A second call reports
// CodeInvalidHandle.
func PasswordsStateDestroy(state uint64) ExternError {
	return callVoid("passwords_state_destroy", func(ctx context.Context, rt *runtime) error {
		return rt.registry.CloseLogins(ctx, handleID(state))
	})
}

// PasswordsGetByID returns the login as JSON. CodeNotFound means no live
// record has that id.
func PasswordsGetByID(state uint64, id string) (string, ExternError) {
	return call("passwords_get_by_id", func(ctx context.Context, rt *runtime) (string, error) {
		login, err := rt.registry.GetLogin(ctx, handleID(state), id).OrNotFound("bridge: no login with id " + id)
		if err != nil {
			return "", err
		}
		return encodeJSON(login)
	})
}

// PasswordsGetAll returns every live login as a JSON array.
func PasswordsGetAll(state uint64) (string, ExternError) {
	return call("passwords_get_all", func(ctx context.Context, rt *runtime) (string, error) {
		all, err := rt.registry.ListLogins(ctx, handleID(state))
		if err != nil {
			return "", err
		}
		if all == nil {
			all = []core.Login{}
		}
		return encodeJSON(all)
	})
}

// PasswordsAdd inserts the JSON login and returns it with its assigned id.
func PasswordsAdd(state uint64, loginJSON string) (string, ExternError) {
	return call("passwords_add", func(ctx context.Context, rt *runtime) (string, error) {
		var login core.Login
		if err := decodeJSON(loginJSON, &login); err != nil {
			return "", err
		}
		added, err := rt.registry.AddLogin(ctx, handleID(state), login)
		if err != nil {
			return "", err
		}
		return encodeJSON(added)
	})
}

func PasswordsUpdate(state uint64, loginJSON string) ExternError {
	return callVoid("passwords_update", func(ctx context.Context, rt *runtime) error {
		var login core.Login
		if err := decodeJSON(loginJSON, &login); err != nil {
			return err
		}
		return rt.registry.UpdateLogin(ctx, handleID(state), login)
	})
}

func PasswordsTouch(state uint64, id string) ExternError {
	return callVoid("passwords_touch", func(ctx context.Context, rt *runtime) error {
		return rt.registry.TouchLogin(ctx, handleID(state), id)
	})
}

// PasswordsDelete reports whether a live record was deleted.
func PasswordsDelete(state uint64, id string) (bool, ExternError) {
	return call("passwords_delete", func(ctx context.Context, rt *runtime) (bool, error) {
		return rt.registry.DeleteLogin(ctx, handleID(state), id)
	})
}

// PasswordsSync reconciles with the remote collection and returns the
// sync summary as JSON.
func PasswordsSync(state uint64) (string, ExternError) {
	return call("passwords_sync", func(ctx context.Context, rt *runtime) (string, error) {
		result, err := rt.registry.SyncLogins(ctx, handleID(state))
		if err != nil {
			return "", err
		}
		return encodeJSON(syncSummary(result))
	})
}

func PasswordsWipe(state uint64) ExternError {
	return callVoid("passwords_wipe", func(ctx context.Context, rt *runtime) error {
		return rt.registry.WipeLogins(ctx, handleID(state))
	})
}

func PasswordsReset(state uint64) ExternError {
	return callVoid("passwords_reset", func(ctx context.Context, rt *runtime) error {
		return rt.registry.ResetLogins(ctx, handleID(state))
	})
}

type syncSummaryJSON struct {
	Attempts int   `json:"attempts"`
	Incoming int   `json:"incoming"`
	Skipped  int   `json:"skipped"`
	Outgoing int   `json:"outgoing"`
	LastSync int64 `json:"last_sync_ms"`
}

func syncSummary(result logins.SyncResult) syncSummaryJSON {
	summary := syncSummaryJSON{
		Attempts: result.Attempts,
		Incoming: result.Incoming,
		Skipped:  result.Skipped,
		Outgoing: result.Outgoing,
	}
	if !result.LastSync.IsZero() {
		summary.LastSync = result.LastSync.UnixMilli()
	}
	return summary
}
