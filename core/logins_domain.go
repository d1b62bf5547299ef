package core

import (
	"context"
	"encoding/hex"
	"sort"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

const (
	msgLoginHostnameEmpty  = "invalid login: origin is empty"
	msgLoginPasswordEmpty  = "invalid login: password is empty"
	msgLoginBothTargets    = "invalid login: both formSubmitURL and httpRealm are present"
	msgLoginNeitherTargets = "invalid login: neither formSubmitURL nor httpRealm are present"
)

// Login is a saved credential record. Exactly one of HTTPRealm and
// FormSubmitURL is set.
type Login struct {
	ID                  string  `json:"id"`
	Hostname            string  `json:"hostname"`
	Username            string  `json:"username"`
	Password            string  `json:"password"`
	HTTPRealm           *string `json:"httpRealm,omitempty"`
	FormSubmitURL       *string `json:"formSubmitURL,omitempty"`
	UsernameField       string  `json:"usernameField"`
	PasswordField       string  `json:"passwordField"`
	TimesUsed           int64   `json:"timesUsed"`
	TimeCreated         int64   `json:"timeCreated"`
	TimeLastUsed        int64   `json:"timeLastUsed"`
	TimePasswordChanged int64   `json:"timePasswordChanged"`
}

func (l Login) Validate() error {
	err := validation.ValidateStruct(&l,
		validation.Field(&l.Hostname, validation.By(notBlank(msgLoginHostnameEmpty))),
		validation.Field(&l.Password, validation.By(notBlank(msgLoginPasswordEmpty))),
		validation.Field(&l.FormSubmitURL, validation.By(func(any) error {
			switch {
			case l.HTTPRealm != nil && l.FormSubmitURL != nil:
				return validation.NewError("validation_login_targets", msgLoginBothTargets)
			case l.HTTPRealm == nil && l.FormSubmitURL == nil:
				return validation.NewError("validation_login_targets", msgLoginNeitherTargets)
			}
			return nil
		})),
	)
	if err == nil {
		return nil
	}
	return validationError(ErrorBadInput, err)
}

// DupeKey identifies records that describe the same site credential.
func (l Login) DupeKey() string {
	parts := []string{l.Hostname, l.Username, stringOrEmpty(l.HTTPRealm), stringOrEmpty(l.FormSubmitURL)}
	return strings.Join(parts, "\x00")
}

func CloneLogin(l Login) Login {
	cloned := l
	cloned.HTTPRealm = cloneStringPointer(l.HTTPRealm)
	cloned.FormSubmitURL = cloneStringPointer(l.FormSubmitURL)
	return cloned
}

// SyncCredentials binds a sync session to one account and one local store.
// Every field is caller supplied; nothing is defaulted.
type SyncCredentials struct {
	DatabasePath   string `json:"database_path"`
	EncryptionKey  string `json:"encryption_key"`
	KeyID          string `json:"key_id"`
	AccessToken    string `json:"access_token"`
	SyncKey        string `json:"sync_key"`
	TokenServerURL string `json:"token_server_url"`
}

// Validate reports malformed credentials as ErrorInvalidCredentials.
func (c SyncCredentials) Validate() error {
	err := validation.ValidateStruct(&c,
		validation.Field(&c.DatabasePath, validation.Required),
		validation.Field(&c.EncryptionKey, validation.Required, validation.By(hexKey(32))),
		validation.Field(&c.KeyID, validation.Required),
		validation.Field(&c.AccessToken, validation.Required),
		validation.Field(&c.SyncKey, validation.Required, validation.By(hexKeyAtLeast(32))),
		validation.Field(&c.TokenServerURL, validation.Required),
	)
	if err == nil {
		return nil
	}
	return validationError(ErrorInvalidCredentials, err)
}

func (c SyncCredentials) EncryptionKeyBytes() ([]byte, error) {
	return hex.DecodeString(strings.TrimSpace(c.EncryptionKey))
}

func (c SyncCredentials) SyncKeyBytes() ([]byte, error) {
	return hex.DecodeString(strings.TrimSpace(c.SyncKey))
}

type SyncStatus int

const (
	SyncStatusSynced SyncStatus = iota
	SyncStatusChanged
	SyncStatusNew
)

func (s SyncStatus) String() string {
	switch s {
	case SyncStatusChanged:
		return "changed"
	case SyncStatusNew:
		return "new"
	default:
		return "synced"
	}
}

// LocalLogin is the local copy of a record with its pending-change state.
type LocalLogin struct {
	Login
	SyncStatus    SyncStatus
	IsDeleted     bool
	LocalModified time.Time
}

// MirrorLogin is the last record seen from the server.
type MirrorLogin struct {
	Login
	ServerModified time.Time
	IsOverridden   bool
}

// RemoteLogin is one record of the remote collection. Deleted records carry
// only the id.
type RemoteLogin struct {
	Login
	Deleted  bool
	Modified time.Time
}

const (
	MetaLastSync    = "last_sync_time"
	MetaGlobalState = "global_state"
	MetaKeyCheck    = "key_check"
)

// LoginStore is the local storage engine behind a sync session. Reads never
// return deleted local rows unless asked for them through ListLocal.
type LoginStore interface {
	GetLocal(ctx context.Context, id string) (LocalLogin, bool, error)
	GetMirror(ctx context.Context, id string) (MirrorLogin, bool, error)
	ListLocal(ctx context.Context) ([]LocalLogin, error)
	ListMirror(ctx context.Context) ([]MirrorLogin, error)
	PutLocal(ctx context.Context, login LocalLogin) error
	PutMirror(ctx context.Context, login MirrorLogin) error
	DeleteLocal(ctx context.Context, id string) error
	DeleteMirror(ctx context.Context, id string) error
	GetMeta(ctx context.Context, key string) (string, bool, error)
	PutMeta(ctx context.Context, key, value string) error
	DeleteMeta(ctx context.Context, key string) error
	WithTx(ctx context.Context, fn func(ctx context.Context, tx LoginStore) error) error
	Clear(ctx context.Context) error
	Close() error
}

// LoginCollection is the remote collection a sync session reconciles with.
type LoginCollection interface {
	Fetch(ctx context.Context, since time.Time) ([]RemoteLogin, time.Time, error)
	Upload(ctx context.Context, records []RemoteLogin) (time.Time, error)
	Wipe(ctx context.Context) error
}

func validationError(kind ErrorKind, err error) error {
	errs, ok := err.(validation.Errors)
	if !ok || len(errs) == 0 {
		return WrapError(err, kind, err.Error())
	}
	keys := sortedErrorKeys(errs)
	fields := make(map[string]any, len(keys))
	for _, key := range keys {
		fields[key] = errs[key].Error()
	}
	return WrapError(err, kind, errs[keys[0]].Error()).
		WithMetadata(map[string]any{"fields": fields})
}

func sortedErrorKeys(errs validation.Errors) []string {
	keys := make([]string, 0, len(errs))
	for key := range errs {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func notBlank(message string) validation.RuleFunc {
	return func(value any) error {
		text, _ := value.(string)
		if strings.TrimSpace(text) == "" {
			return validation.NewError("validation_required", message)
		}
		return nil
	}
}

func hexKey(size int) validation.RuleFunc {
	return func(value any) error {
		text, _ := value.(string)
		raw, err := hex.DecodeString(strings.TrimSpace(text))
		if err != nil || len(raw) != size {
			return validation.NewError("validation_key_format", "must be a hex encoded key")
		}
		return nil
	}
}

func hexKeyAtLeast(size int) validation.RuleFunc {
	return func(value any) error {
		text, _ := value.(string)
		raw, err := hex.DecodeString(strings.TrimSpace(text))
		if err != nil || len(raw) < size {
			return validation.NewError("validation_key_format", "must be a hex encoded key")
		}
		return nil
	}
}

func stringOrEmpty(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

func cloneStringPointer(value *string) *string {
	if value == nil {
		return nil
	}
	cloned := *value
	return &cloned
}
