package command

import (
	"context"

	"github.com/goliatone/go-accounts/core"
	"github.com/goliatone/go-accounts/logins"
	gocmd "github.com/goliatone/go-command"
)

// AccountService resolves account sessions by id and runs the mutating
// account operations on them.
type AccountService interface {
	BeginOAuthFlow(ctx context.Context, accountID, redirectURI string, scopes []string, wantsKeys bool) (string, error)
	CompleteOAuthFlow(ctx context.Context, accountID, code, state string) (core.OAuthInfo, error)
	ClearAccessTokenCache(ctx context.Context, accountID string) error
	ReleaseAccount(ctx context.Context, accountID string) error
}

// LoginsService resolves logins sessions by id and runs the mutating
// logins operations on them.
type LoginsService interface {
	AddLogin(ctx context.Context, storeID string, login core.Login) (core.Login, error)
	UpdateLogin(ctx context.Context, storeID string, login core.Login) error
	TouchLogin(ctx context.Context, storeID, id string) error
	DeleteLogin(ctx context.Context, storeID, id string) (bool, error)
	SyncLogins(ctx context.Context, storeID string) (logins.SyncResult, error)
	WipeLogins(ctx context.Context, storeID string) error
	ResetLogins(ctx context.Context, storeID string) error
	CloseLogins(ctx context.Context, storeID string) error
}

type BeginOAuthFlowCommand struct {
	service AccountService
}

func NewBeginOAuthFlowCommand(service AccountService) *BeginOAuthFlowCommand {
	return &BeginOAuthFlowCommand{service: service}
}

// Execute stores the authorization URL in the result collector.
func (c *BeginOAuthFlowCommand) Execute(ctx context.Context, msg BeginOAuthFlowMessage) error {
	if c == nil || c.service == nil {
		return errMissingService(accountService)
	}
	out, err := c.service.BeginOAuthFlow(ctx, msg.AccountID, msg.RedirectURI, msg.Scopes, msg.WantsKeys)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type CompleteOAuthFlowCommand struct {
	service AccountService
}

func NewCompleteOAuthFlowCommand(service AccountService) *CompleteOAuthFlowCommand {
	return &CompleteOAuthFlowCommand{service: service}
}

func (c *CompleteOAuthFlowCommand) Execute(ctx context.Context, msg CompleteOAuthFlowMessage) error {
	if c == nil || c.service == nil {
		return errMissingService(accountService)
	}
	out, err := c.service.CompleteOAuthFlow(ctx, msg.AccountID, msg.Code, msg.State)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type ClearAccessTokenCacheCommand struct {
	service AccountService
}

func NewClearAccessTokenCacheCommand(service AccountService) *ClearAccessTokenCacheCommand {
	return &ClearAccessTokenCacheCommand{service: service}
}

func (c *ClearAccessTokenCacheCommand) Execute(ctx context.Context, msg ClearAccessTokenCacheMessage) error {
	if c == nil || c.service == nil {
		return errMissingService(accountService)
	}
	return c.service.ClearAccessTokenCache(ctx, msg.AccountID)
}

type ReleaseAccountCommand struct {
	service AccountService
}

func NewReleaseAccountCommand(service AccountService) *ReleaseAccountCommand {
	return &ReleaseAccountCommand{service: service}
}

func (c *ReleaseAccountCommand) Execute(ctx context.Context, msg ReleaseAccountMessage) error {
	if c == nil || c.service == nil {
		return errMissingService(accountService)
	}
	return c.service.ReleaseAccount(ctx, msg.AccountID)
}

type AddLoginCommand struct {
	service LoginsService
}

func NewAddLoginCommand(service LoginsService) *AddLoginCommand {
	return &AddLoginCommand{service: service}
}

// Execute stores the added login, with its assigned id, in the result
// collector.
func (c *AddLoginCommand) Execute(ctx context.Context, msg AddLoginMessage) error {
	if c == nil || c.service == nil {
		return errMissingService(loginsService)
	}
	out, err := c.service.AddLogin(ctx, msg.StoreID, msg.Login)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type UpdateLoginCommand struct {
	service LoginsService
}

func NewUpdateLoginCommand(service LoginsService) *UpdateLoginCommand {
	return &UpdateLoginCommand{service: service}
}

func (c *UpdateLoginCommand) Execute(ctx context.Context, msg UpdateLoginMessage) error {
	if c == nil || c.service == nil {
		return errMissingService(loginsService)
	}
	return c.service.UpdateLogin(ctx, msg.StoreID, msg.Login)
}

type TouchLoginCommand struct {
	service LoginsService
}

func NewTouchLoginCommand(service LoginsService) *TouchLoginCommand {
	return &TouchLoginCommand{service: service}
}

func (c *TouchLoginCommand) Execute(ctx context.Context, msg TouchLoginMessage) error {
	if c == nil || c.service == nil {
		return errMissingService(loginsService)
	}
	return c.service.TouchLogin(ctx, msg.StoreID, msg.ID)
}

type DeleteLoginCommand struct {
	service LoginsService
}

func NewDeleteLoginCommand(service LoginsService) *DeleteLoginCommand {
	return &DeleteLoginCommand{service: service}
}

// Execute stores whether a live record was deleted.
func (c *DeleteLoginCommand) Execute(ctx context.Context, msg DeleteLoginMessage) error {
	if c == nil || c.service == nil {
		return errMissingService(loginsService)
	}
	out, err := c.service.DeleteLogin(ctx, msg.StoreID, msg.ID)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type SyncLoginsCommand struct {
	service LoginsService
}

func NewSyncLoginsCommand(service LoginsService) *SyncLoginsCommand {
	return &SyncLoginsCommand{service: service}
}

func (c *SyncLoginsCommand) Execute(ctx context.Context, msg SyncLoginsMessage) error {
	if c == nil || c.service == nil {
		return errMissingService(loginsService)
	}
	out, err := c.service.SyncLogins(ctx, msg.StoreID)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type WipeLoginsCommand struct {
	service LoginsService
}

func NewWipeLoginsCommand(service LoginsService) *WipeLoginsCommand {
	return &WipeLoginsCommand{service: service}
}

func (c *WipeLoginsCommand) Execute(ctx context.Context, msg WipeLoginsMessage) error {
	if c == nil || c.service == nil {
		return errMissingService(loginsService)
	}
	return c.service.WipeLogins(ctx, msg.StoreID)
}

type ResetLoginsCommand struct {
	service LoginsService
}

func NewResetLoginsCommand(service LoginsService) *ResetLoginsCommand {
	return &ResetLoginsCommand{service: service}
}

func (c *ResetLoginsCommand) Execute(ctx context.Context, msg ResetLoginsMessage) error {
	if c == nil || c.service == nil {
		return errMissingService(loginsService)
	}
	return c.service.ResetLogins(ctx, msg.StoreID)
}

type CloseLoginsCommand struct {
	service LoginsService
}

func NewCloseLoginsCommand(service LoginsService) *CloseLoginsCommand {
	return &CloseLoginsCommand{service: service}
}

func (c *CloseLoginsCommand) Execute(ctx context.Context, msg CloseLoginsMessage) error {
	if c == nil || c.service == nil {
		return errMissingService(loginsService)
	}
	return c.service.CloseLogins(ctx, msg.StoreID)
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
