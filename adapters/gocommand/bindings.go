package gocommand

import (
	"github.com/goliatone/go-accounts/command"
	"github.com/goliatone/go-accounts/core"
	"github.com/goliatone/go-accounts/query"
	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-command/runner"
)

// Handlers is the set of services the accounts commands and queries run
// against. Nil members skip their handlers.
type Handlers struct {
	Accounts     command.AccountService
	Logins       command.LoginsService
	AccountsRead query.AccountReader
	LoginsRead   query.LoginsReader
}

// Subscriptions tracks dispatcher subscriptions created by RegisterHandlers.
type Subscriptions struct {
	subs []commanddispatcher.Subscription
}

func (s *Subscriptions) Len() int {
	if s == nil {
		return 0
	}
	return len(s.subs)
}

// Unsubscribe removes every subscription. It is safe to call twice.
func (s *Subscriptions) Unsubscribe() {
	if s == nil {
		return
	}
	for _, sub := range s.subs {
		if sub != nil {
			sub.Unsubscribe()
		}
	}
	s.subs = nil
}

func (s *Subscriptions) add(sub commanddispatcher.Subscription, err error) error {
	if err != nil {
		return err
	}
	s.subs = append(s.subs, sub)
	return nil
}

// RegisterHandlers registers and subscribes every accounts command and
// query backed by h. On failure the subscriptions made so far are undone.
func RegisterHandlers(adapter *RegistryAdapter, h Handlers, runnerOpts ...runner.Option) (*Subscriptions, error) {
	if adapter == nil || adapter.registry == nil {
		return nil, errRegistryNotConfigured()
	}
	if h.Accounts == nil && h.Logins == nil && h.AccountsRead == nil && h.LoginsRead == nil {
		return nil, core.NewError(core.ErrorInternal, "gocommand: at least one accounts service is required")
	}

	subs := &Subscriptions{}
	var steps []func() error
	if svc := h.Accounts; svc != nil {
		steps = append(steps,
			func() error {
				return subs.add(RegisterAndSubscribe(adapter, command.NewBeginOAuthFlowCommand(svc), runnerOpts...))
			},
			func() error {
				return subs.add(RegisterAndSubscribe(adapter, command.NewCompleteOAuthFlowCommand(svc), runnerOpts...))
			},
			func() error {
				return subs.add(RegisterAndSubscribe(adapter, command.NewClearAccessTokenCacheCommand(svc), runnerOpts...))
			},
			func() error {
				return subs.add(RegisterAndSubscribe(adapter, command.NewReleaseAccountCommand(svc), runnerOpts...))
			},
		)
	}
	if svc := h.Logins; svc != nil {
		steps = append(steps,
			func() error {
				return subs.add(RegisterAndSubscribe(adapter, command.NewAddLoginCommand(svc), runnerOpts...))
			},
			func() error {
				return subs.add(RegisterAndSubscribe(adapter, command.NewUpdateLoginCommand(svc), runnerOpts...))
			},
			func() error {
				return subs.add(RegisterAndSubscribe(adapter, command.NewTouchLoginCommand(svc), runnerOpts...))
			},
			func() error {
				return subs.add(RegisterAndSubscribe(adapter, command.NewDeleteLoginCommand(svc), runnerOpts...))
			},
			func() error {
				return subs.add(RegisterAndSubscribe(adapter, command.NewSyncLoginsCommand(svc), runnerOpts...))
			},
			func() error {
				return subs.add(RegisterAndSubscribe(adapter, command.NewWipeLoginsCommand(svc), runnerOpts...))
			},
			func() error {
				return subs.add(RegisterAndSubscribe(adapter, command.NewResetLoginsCommand(svc), runnerOpts...))
			},
			func() error {
				return subs.add(RegisterAndSubscribe(adapter, command.NewCloseLoginsCommand(svc), runnerOpts...))
			},
		)
	}
	if reader := h.AccountsRead; reader != nil {
		steps = append(steps,
			func() error {
				return subs.add(RegisterAndSubscribeQuery(adapter, query.NewGetTokenQuery(reader), runnerOpts...))
			},
			func() error {
				return subs.add(RegisterAndSubscribeQuery(adapter, query.NewGetProfileQuery(reader), runnerOpts...))
			},
			func() error {
				return subs.add(RegisterAndSubscribeQuery(adapter, query.NewSerializeAccountQuery(reader), runnerOpts...))
			},
			func() error {
				return subs.add(RegisterAndSubscribeQuery(adapter, query.NewAccountStatusQuery(reader), runnerOpts...))
			},
		)
	}
	if reader := h.LoginsRead; reader != nil {
		steps = append(steps,
			func() error {
				return subs.add(RegisterAndSubscribeQuery(adapter, query.NewGetLoginQuery(reader), runnerOpts...))
			},
			func() error {
				return subs.add(RegisterAndSubscribeQuery(adapter, query.NewListLoginsQuery(reader), runnerOpts...))
			},
			func() error {
				return subs.add(RegisterAndSubscribeQuery(adapter, query.NewLastSyncQuery(reader), runnerOpts...))
			},
		)
	}

	for _, step := range steps {
		if err := step(); err != nil {
			subs.Unsubscribe()
			return nil, err
		}
	}
	return subs, nil
}
