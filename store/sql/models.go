package sqlstore

import (
	"context"
	"time"

	"github.com/goliatone/go-accounts/core"
	"github.com/uptrace/bun"
)

const (
	purposeUsername = "logins.username"
	purposePassword = "logins.password"
)

// loginFields are the record columns shared by the local and mirror tables.
// Username and password hold sealed values.
type loginFields struct {
	Hostname            string  `bun:"hostname,notnull"`
	Username            string  `bun:"username,notnull"`
	Password            string  `bun:"password,notnull"`
	HTTPRealm           *string `bun:"http_realm"`
	FormSubmitURL       *string `bun:"form_submit_url"`
	UsernameField       string  `bun:"username_field,notnull"`
	PasswordField       string  `bun:"password_field,notnull"`
	TimesUsed           int64   `bun:"times_used,notnull"`
	TimeCreated         int64   `bun:"time_created,notnull"`
	TimeLastUsed        int64   `bun:"time_last_used,notnull"`
	TimePasswordChanged int64   `bun:"time_password_changed,notnull"`
}

type loginLocalRecord struct {
	bun.BaseModel `bun:"table:logins_local,alias:ll"`

	ID string `bun:"id,pk"`
	loginFields
	SyncStatus      int   `bun:"sync_status,notnull"`
	IsDeleted       bool  `bun:"is_deleted,notnull"`
	LocalModifiedMS int64 `bun:"local_modified_ms,notnull"`
}

type loginMirrorRecord struct {
	bun.BaseModel `bun:"table:logins_mirror,alias:lm"`

	ID string `bun:"id,pk"`
	loginFields
	ServerModifiedMS int64 `bun:"server_modified_ms,notnull"`
	IsOverridden     bool  `bun:"is_overridden,notnull"`
}

type syncMetaRecord struct {
	bun.BaseModel `bun:"table:logins_sync_meta,alias:lsm"`

	Key       string    `bun:"meta_key,pk"`
	Value     string    `bun:"meta_value,notnull"`
	UpdatedAt time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

func sealLogin(ctx context.Context, sealer core.FieldSealer, login core.Login) (loginFields, error) {
	username, err := sealer.SealString(ctx, purposeUsername, login.Username)
	if err != nil {
		return loginFields{}, err
	}
	password, err := sealer.SealString(ctx, purposePassword, login.Password)
	if err != nil {
		return loginFields{}, err
	}
	return loginFields{
		Hostname:            login.Hostname,
		Username:            username,
		Password:            password,
		HTTPRealm:           copyString(login.HTTPRealm),
		FormSubmitURL:       copyString(login.FormSubmitURL),
		UsernameField:       login.UsernameField,
		PasswordField:       login.PasswordField,
		TimesUsed:           login.TimesUsed,
		TimeCreated:         login.TimeCreated,
		TimeLastUsed:        login.TimeLastUsed,
		TimePasswordChanged: login.TimePasswordChanged,
	}, nil
}

func (f loginFields) open(ctx context.Context, sealer core.FieldSealer, id string) (core.Login, error) {
	username, err := sealer.OpenString(ctx, purposeUsername, f.Username)
	if err != nil {
		return core.Login{}, err
	}
	password, err := sealer.OpenString(ctx, purposePassword, f.Password)
	if err != nil {
		return core.Login{}, err
	}
	return core.Login{
		ID:                  id,
		Hostname:            f.Hostname,
		Username:            username,
		Password:            password,
		HTTPRealm:           copyString(f.HTTPRealm),
		FormSubmitURL:       copyString(f.FormSubmitURL),
		UsernameField:       f.UsernameField,
		PasswordField:       f.PasswordField,
		TimesUsed:           f.TimesUsed,
		TimeCreated:         f.TimeCreated,
		TimeLastUsed:        f.TimeLastUsed,
		TimePasswordChanged: f.TimePasswordChanged,
	}, nil
}

func newLocalRecord(ctx context.Context, sealer core.FieldSealer, login core.LocalLogin) (*loginLocalRecord, error) {
	fields, err := sealLogin(ctx, sealer, login.Login)
	if err != nil {
		return nil, err
	}
	return &loginLocalRecord{
		ID:              login.ID,
		loginFields:     fields,
		SyncStatus:      int(login.SyncStatus),
		IsDeleted:       login.IsDeleted,
		LocalModifiedMS: toMillis(login.LocalModified),
	}, nil
}

func (r *loginLocalRecord) toDomain(ctx context.Context, sealer core.FieldSealer) (core.LocalLogin, error) {
	login, err := r.loginFields.open(ctx, sealer, r.ID)
	if err != nil {
		return core.LocalLogin{}, err
	}
	return core.LocalLogin{
		Login:         login,
		SyncStatus:    core.SyncStatus(r.SyncStatus),
		IsDeleted:     r.IsDeleted,
		LocalModified: fromMillis(r.LocalModifiedMS),
	}, nil
}

func newMirrorRecord(ctx context.Context, sealer core.FieldSealer, login core.MirrorLogin) (*loginMirrorRecord, error) {
	fields, err := sealLogin(ctx, sealer, login.Login)
	if err != nil {
		return nil, err
	}
	return &loginMirrorRecord{
		ID:               login.ID,
		loginFields:      fields,
		ServerModifiedMS: toMillis(login.ServerModified),
		IsOverridden:     login.IsOverridden,
	}, nil
}

func (r *loginMirrorRecord) toDomain(ctx context.Context, sealer core.FieldSealer) (core.MirrorLogin, error) {
	login, err := r.loginFields.open(ctx, sealer, r.ID)
	if err != nil {
		return core.MirrorLogin{}, err
	}
	return core.MirrorLogin{
		Login:          login,
		ServerModified: fromMillis(r.ServerModifiedMS),
		IsOverridden:   r.IsOverridden,
	}, nil
}

func toMillis(at time.Time) int64 {
	if at.IsZero() {
		return 0
	}
	return at.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func copyString(value *string) *string {
	if value == nil {
		return nil
	}
	copied := *value
	return &copied
}
