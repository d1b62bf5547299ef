package query

import "github.com/goliatone/go-accounts/core"

const (
	TypeGetToken         = "accounts.query.token.get"
	TypeGetProfile       = "accounts.query.profile.get"
	TypeSerializeAccount = "accounts.query.account.serialize"
	TypeAccountStatus    = "accounts.query.account.status"
	TypeGetLogin         = "accounts.query.logins.get"
	TypeListLogins       = "accounts.query.logins.list"
	TypeLastSync         = "accounts.query.logins.last_sync"
)

type GetTokenMessage struct {
	AccountID string
	Scopes    []string
}

func (GetTokenMessage) Type() string { return TypeGetToken }

func (m GetTokenMessage) Validate() error {
	if err := requireField("account_id", m.AccountID, "account id is required"); err != nil {
		return err
	}
	if len(core.NormalizeScopes(m.Scopes)) == 0 {
		return core.NewFieldError("query", "scopes", "at least one scope is required")
	}
	return nil
}

type GetProfileMessage struct {
	AccountID string
}

func (GetProfileMessage) Type() string { return TypeGetProfile }

func (m GetProfileMessage) Validate() error {
	return requireField("account_id", m.AccountID, "account id is required")
}

type SerializeAccountMessage struct {
	AccountID string
}

func (SerializeAccountMessage) Type() string { return TypeSerializeAccount }

func (m SerializeAccountMessage) Validate() error {
	return requireField("account_id", m.AccountID, "account id is required")
}

type AccountStatusMessage struct {
	AccountID string
}

func (AccountStatusMessage) Type() string { return TypeAccountStatus }

func (m AccountStatusMessage) Validate() error {
	return requireField("account_id", m.AccountID, "account id is required")
}

type GetLoginMessage struct {
	StoreID string
	ID      string
}

func (GetLoginMessage) Type() string { return TypeGetLogin }

func (m GetLoginMessage) Validate() error {
	if err := requireField("store_id", m.StoreID, "logins store id is required"); err != nil {
		return err
	}
	return requireField("id", m.ID, "login id is required")
}

type ListLoginsMessage struct {
	StoreID string
}

func (ListLoginsMessage) Type() string { return TypeListLogins }

func (m ListLoginsMessage) Validate() error {
	return requireField("store_id", m.StoreID, "logins store id is required")
}

type LastSyncMessage struct {
	StoreID string
}

func (LastSyncMessage) Type() string { return TypeLastSync }

func (m LastSyncMessage) Validate() error {
	return requireField("store_id", m.StoreID, "logins store id is required")
}
