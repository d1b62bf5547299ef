package command

import "github.com/goliatone/go-accounts/core"

const (
	TypeBeginOAuthFlow        = "accounts.command.oauth.begin"
	TypeCompleteOAuthFlow     = "accounts.command.oauth.complete"
	TypeClearAccessTokenCache = "accounts.command.token_cache.clear"
	TypeReleaseAccount        = "accounts.command.account.release"
	TypeAddLogin              = "accounts.command.logins.add"
	TypeUpdateLogin           = "accounts.command.logins.update"
	TypeTouchLogin            = "accounts.command.logins.touch"
	TypeDeleteLogin           = "accounts.command.logins.delete"
	TypeSyncLogins            = "accounts.command.logins.sync"
	TypeWipeLogins            = "accounts.command.logins.wipe"
	TypeResetLogins           = "accounts.command.logins.reset"
	TypeCloseLogins           = "accounts.command.logins.close"
)

type BeginOAuthFlowMessage struct {
	AccountID   string
	RedirectURI string
	Scopes      []string
	WantsKeys   bool
}

func (BeginOAuthFlowMessage) Type() string { return TypeBeginOAuthFlow }

func (m BeginOAuthFlowMessage) Validate() error {
	if err := requireField("account_id", m.AccountID, "account id is required"); err != nil {
		return err
	}
	if err := requireField("redirect_uri", m.RedirectURI, "redirect uri is required"); err != nil {
		return err
	}
	if len(core.NormalizeScopes(m.Scopes)) == 0 {
		return core.NewFieldError("command", "scopes", "at least one scope is required")
	}
	return nil
}

type CompleteOAuthFlowMessage struct {
	AccountID string
	Code      string
	State     string
}

func (CompleteOAuthFlowMessage) Type() string { return TypeCompleteOAuthFlow }

func (m CompleteOAuthFlowMessage) Validate() error {
	if err := requireField("account_id", m.AccountID, "account id is required"); err != nil {
		return err
	}
	if err := requireField("code", m.Code, "authorization code is required"); err != nil {
		return err
	}
	return requireField("state", m.State, "state is required")
}

type ClearAccessTokenCacheMessage struct {
	AccountID string
}

func (ClearAccessTokenCacheMessage) Type() string { return TypeClearAccessTokenCache }

func (m ClearAccessTokenCacheMessage) Validate() error {
	return requireField("account_id", m.AccountID, "account id is required")
}

type ReleaseAccountMessage struct {
	AccountID string
}

func (ReleaseAccountMessage) Type() string { return TypeReleaseAccount }

func (m ReleaseAccountMessage) Validate() error {
	return requireField("account_id", m.AccountID, "account id is required")
}

type AddLoginMessage struct {
	StoreID string
	Login   core.Login
}

func (AddLoginMessage) Type() string { return TypeAddLogin }

func (m AddLoginMessage) Validate() error {
	if err := requireField("store_id", m.StoreID, "logins store id is required"); err != nil {
		return err
	}
	return requireValidLogin(m.Login)
}

type UpdateLoginMessage struct {
	StoreID string
	Login   core.Login
}

func (UpdateLoginMessage) Type() string { return TypeUpdateLogin }

func (m UpdateLoginMessage) Validate() error {
	if err := requireField("store_id", m.StoreID, "logins store id is required"); err != nil {
		return err
	}
	if err := requireField("login.id", m.Login.ID, "login id is required"); err != nil {
		return err
	}
	return requireValidLogin(m.Login)
}

type TouchLoginMessage struct {
	StoreID string
	ID      string
}

func (TouchLoginMessage) Type() string { return TypeTouchLogin }

func (m TouchLoginMessage) Validate() error {
	return validateLoginRef(m.StoreID, m.ID)
}

type DeleteLoginMessage struct {
	StoreID string
	ID      string
}

func (DeleteLoginMessage) Type() string { return TypeDeleteLogin }

func (m DeleteLoginMessage) Validate() error {
	return validateLoginRef(m.StoreID, m.ID)
}

type SyncLoginsMessage struct {
	StoreID string
}

func (SyncLoginsMessage) Type() string { return TypeSyncLogins }

func (m SyncLoginsMessage) Validate() error {
	return requireField("store_id", m.StoreID, "logins store id is required")
}

type WipeLoginsMessage struct {
	StoreID string
}

func (WipeLoginsMessage) Type() string { return TypeWipeLogins }

func (m WipeLoginsMessage) Validate() error {
	return requireField("store_id", m.StoreID, "logins store id is required")
}

type ResetLoginsMessage struct {
	StoreID string
}

func (ResetLoginsMessage) Type() string { return TypeResetLogins }

func (m ResetLoginsMessage) Validate() error {
	return requireField("store_id", m.StoreID, "logins store id is required")
}

type CloseLoginsMessage struct {
	StoreID string
}

func (CloseLoginsMessage) Type() string { return TypeCloseLogins }

func (m CloseLoginsMessage) Validate() error {
	return requireField("store_id", m.StoreID, "logins store id is required")
}

func validateLoginRef(storeID, id string) error {
	if err := requireField("store_id", storeID, "logins store id is required"); err != nil {
		return err
	}
	return requireField("id", id, "login id is required")
}
