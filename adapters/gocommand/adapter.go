package gocommand

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/goliatone/go-accounts/core"
	"github.com/goliatone/go-command"
	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-command/runner"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"
)

// MessageNamespace prefixes every accounts command and query type.
const MessageNamespace = "accounts."

// ValidateMessageContract checks that msg has a type inside the accounts
// namespace and, when it implements Validate(), that validation passes.
func ValidateMessageContract(msg any) error {
	if _, err := messageType(msg); err != nil {
		return err
	}
	if err := command.ValidateMessage(msg); err != nil {
		return core.WrapError(err, core.ErrorBadInput, "gocommand: invalid message")
	}
	return nil
}

func messageType(msg any) (string, error) {
	m, ok := msg.(command.Message)
	if !ok {
		return "", core.NewError(core.ErrorBadInput, "gocommand: message must implement Type() string")
	}
	name := strings.TrimSpace(m.Type())
	if name == "" {
		return "", core.NewError(core.ErrorBadInput, "gocommand: message type is required")
	}
	if !strings.HasPrefix(name, MessageNamespace) {
		return "", core.NewError(core.ErrorBadInput, fmt.Sprintf("gocommand: message type %q is outside the %q namespace", name, MessageNamespace))
	}
	return name, nil
}

// RegistryAdapter registers accounts handlers in a go-command registry and
// remembers which message types it bound, so a type is never bound twice.
type RegistryAdapter struct {
	registry *command.Registry

	mu    sync.Mutex
	types map[string]struct{}
}

func NewRegistryAdapter(registry *command.Registry) *RegistryAdapter {
	if registry == nil {
		registry = command.NewRegistry()
	}
	return &RegistryAdapter{registry: registry, types: map[string]struct{}{}}
}

func (a *RegistryAdapter) Registry() *command.Registry {
	if a == nil {
		return nil
	}
	return a.registry
}

// Types lists the bound message types in sorted order.
func (a *RegistryAdapter) Types() []string {
	if a == nil {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.types))
	for name := range a.types {
		out = append(out, name)
	}
	slices.Sort(out)
	return out
}

// RegisterCommand adds a handler for one accounts message type.
func (a *RegistryAdapter) RegisterCommand(messageType string, handler any) error {
	if a == nil || a.registry == nil {
		return errRegistryNotConfigured()
	}
	name := strings.TrimSpace(messageType)
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, exists := a.types[name]; exists {
		return core.NewError(core.ErrorBadInput, fmt.Sprintf("gocommand: %q is already registered", name))
	}
	if err := a.registry.RegisterCommand(handler); err != nil {
		return err
	}
	a.types[name] = struct{}{}
	return nil
}

func (a *RegistryAdapter) AddResolver(key string, resolver command.Resolver) error {
	if a == nil || a.registry == nil {
		return errRegistryNotConfigured()
	}
	return a.registry.AddResolver(strings.TrimSpace(key), resolver)
}

// AddQueueResolver mirrors every registered handler into queueRegistry on
// Initialize, so logins sync can also run from a job queue.
func (a *RegistryAdapter) AddQueueResolver(key string, queueRegistry *jobqueuecommand.Registry) error {
	if queueRegistry == nil {
		return core.NewError(core.ErrorInternal, "gocommand: queue registry is required")
	}
	return a.AddResolver(key, jobqueuecommand.QueueResolver(queueRegistry))
}

func (a *RegistryAdapter) HasResolver(key string) bool {
	if a == nil || a.registry == nil {
		return false
	}
	return a.registry.HasResolver(strings.TrimSpace(key))
}

func (a *RegistryAdapter) Initialize() error {
	if a == nil || a.registry == nil {
		return errRegistryNotConfigured()
	}
	return a.registry.Initialize()
}

func Dispatch[T any](ctx context.Context, msg T) error {
	return commanddispatcher.Dispatch(ctx, msg)
}

func Query[T any, R any](ctx context.Context, msg T) (R, error) {
	return commanddispatcher.Query[T, R](ctx, msg)
}

// RegisterAndSubscribe validates the command's message, registers the
// handler and subscribes it to the global dispatcher.
func RegisterAndSubscribe[T any](
	adapter *RegistryAdapter,
	cmd command.Commander[T],
	runnerOpts ...runner.Option,
) (commanddispatcher.Subscription, error) {
	if cmd == nil {
		return nil, core.NewError(core.ErrorInternal, "gocommand: command is required")
	}
	return bind[T](adapter, cmd, func() commanddispatcher.Subscription {
		return commanddispatcher.SubscribeCommand(cmd, runnerOpts...)
	})
}

func RegisterAndSubscribeQuery[T any, R any](
	adapter *RegistryAdapter,
	qry command.Querier[T, R],
	runnerOpts ...runner.Option,
) (commanddispatcher.Subscription, error) {
	if qry == nil {
		return nil, core.NewError(core.ErrorInternal, "gocommand: query is required")
	}
	return bind[T](adapter, qry, func() commanddispatcher.Subscription {
		return commanddispatcher.SubscribeQuery(qry, runnerOpts...)
	})
}

func bind[T any](adapter *RegistryAdapter, handler any, subscribe func() commanddispatcher.Subscription) (commanddispatcher.Subscription, error) {
	if adapter == nil || adapter.registry == nil {
		return nil, errRegistryNotConfigured()
	}
	var msg T
	name, err := messageType(msg)
	if err != nil {
		return nil, err
	}
	if err := adapter.RegisterCommand(name, handler); err != nil {
		return nil, err
	}
	return subscribe(), nil
}

func errRegistryNotConfigured() error {
	return core.NewError(core.ErrorInternal, "gocommand: registry is not configured")
}
