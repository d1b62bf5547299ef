package accounts

import (
	"github.com/goliatone/go-accounts/adapters/gocommand"
	"github.com/goliatone/go-accounts/command"
	"github.com/goliatone/go-accounts/core"
	"github.com/goliatone/go-accounts/query"
	"github.com/goliatone/go-command/runner"
)

type CommandQueryService interface {
	command.AccountService
	command.LoginsService
	query.AccountReader
	query.LoginsReader
}

type Commands struct {
	BeginOAuthFlow        *command.BeginOAuthFlowCommand
	CompleteOAuthFlow     *command.CompleteOAuthFlowCommand
	ClearAccessTokenCache *command.ClearAccessTokenCacheCommand
	ReleaseAccount        *command.ReleaseAccountCommand
	AddLogin              *command.AddLoginCommand
	UpdateLogin           *command.UpdateLoginCommand
	TouchLogin            *command.TouchLoginCommand
	DeleteLogin           *command.DeleteLoginCommand
	SyncLogins            *command.SyncLoginsCommand
	WipeLogins            *command.WipeLoginsCommand
	ResetLogins           *command.ResetLoginsCommand
	CloseLogins           *command.CloseLoginsCommand
}

type Queries struct {
	GetToken         *query.GetTokenQuery
	GetProfile       *query.GetProfileQuery
	SerializeAccount *query.SerializeAccountQuery
	AccountStatus    *query.AccountStatusQuery
	GetLogin         *query.GetLoginQuery
	ListLogins       *query.ListLoginsQuery
	LastSync         *query.LastSyncQuery
}

type Facade struct {
	service  CommandQueryService
	commands Commands
	queries  Queries
}

// NewFacade wires every accounts command and query to service, usually a
// *Registry.
func NewFacade(service CommandQueryService) (*Facade, error) {
	if service == nil {
		return nil, core.NewError(core.ErrorInternal, "accounts: command/query service is required")
	}

	facade := &Facade{service: service}
	facade.commands = Commands{
		BeginOAuthFlow:        command.NewBeginOAuthFlowCommand(service),
		CompleteOAuthFlow:     command.NewCompleteOAuthFlowCommand(service),
		ClearAccessTokenCache: command.NewClearAccessTokenCacheCommand(service),
		ReleaseAccount:        command.NewReleaseAccountCommand(service),
		AddLogin:              command.NewAddLoginCommand(service),
		UpdateLogin:           command.NewUpdateLoginCommand(service),
		TouchLogin:            command.NewTouchLoginCommand(service),
		DeleteLogin:           command.NewDeleteLoginCommand(service),
		SyncLogins:            command.NewSyncLoginsCommand(service),
		WipeLogins:            command.NewWipeLoginsCommand(service),
		ResetLogins:           command.NewResetLoginsCommand(service),
		CloseLogins:           command.NewCloseLoginsCommand(service),
	}
	facade.queries = Queries{
		GetToken:         query.NewGetTokenQuery(service),
		GetProfile:       query.NewGetProfileQuery(service),
		SerializeAccount: query.NewSerializeAccountQuery(service),
		AccountStatus:    query.NewAccountStatusQuery(service),
		GetLogin:         query.NewGetLoginQuery(service),
		ListLogins:       query.NewListLoginsQuery(service),
		LastSync:         query.NewLastSyncQuery(service),
	}

	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() CommandQueryService {
	if f == nil {
		return nil
	}
	return f.service
}

// Subscribe registers the facade's service with a go-command registry and
// the global dispatcher.
func (f *Facade) Subscribe(adapter *gocommand.RegistryAdapter, runnerOpts ...runner.Option) (*gocommand.Subscriptions, error) {
	if f == nil || f.service == nil {
		return nil, core.NewError(core.ErrorInternal, "accounts: facade is not configured")
	}
	return gocommand.RegisterHandlers(adapter, gocommand.Handlers{
		Accounts:     f.service,
		Logins:       f.service,
		AccountsRead: f.service,
		LoginsRead:   f.service,
	}, runnerOpts...)
}
