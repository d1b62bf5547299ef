package gocommand

import (
	"context"
	"errors"
	"testing"

	"github.com/goliatone/go-accounts/core"
	"github.com/goliatone/go-command"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"
)

type okMessage struct{}

func (okMessage) Type() string { return "accounts.command.ok" }

type invalidMessage struct{}

func (invalidMessage) Type() string { return "" }

type failingMessage struct{}

func (failingMessage) Type() string { return "accounts.command.fail" }

func (failingMessage) Validate() error { return errors.New("invalid payload") }

type dispatchMessage struct {
	ID string
}

func (dispatchMessage) Type() string { return "accounts.command.adapter_test" }

type queueMessage struct{}

func (queueMessage) Type() string { return "accounts.command.queue_test" }

type foreignMessage struct{}

func (foreignMessage) Type() string { return "billing.command.charge" }

func TestValidateMessageContract(t *testing.T) {
	if err := ValidateMessageContract(okMessage{}); err != nil {
		t.Fatalf("expected valid message, got %v", err)
	}
	if err := ValidateMessageContract(invalidMessage{}); !core.IsKind(err, core.ErrorBadInput) {
		t.Fatalf("expected empty type to fail contract validation, got %v", err)
	}
	if err := ValidateMessageContract(foreignMessage{}); !core.IsKind(err, core.ErrorBadInput) {
		t.Fatalf("expected foreign namespace to be rejected, got %v", err)
	}
	if err := ValidateMessageContract(failingMessage{}); !core.IsKind(err, core.ErrorBadInput) {
		t.Fatalf("expected Validate() failure to bubble as bad input, got %v", err)
	}
	if err := ValidateMessageContract("plain"); !core.IsKind(err, core.ErrorBadInput) {
		t.Fatalf("expected non message to be rejected, got %v", err)
	}
}

func TestRegisterAndSubscribe_RejectsDuplicatesAndForeignTypes(t *testing.T) {
	adapter := NewRegistryAdapter(command.NewRegistry())
	first := command.CommandFunc[failingMessage](func(context.Context, failingMessage) error { return nil })
	sub, err := RegisterAndSubscribe(adapter, first)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	defer sub.Unsubscribe()

	second := command.CommandFunc[failingMessage](func(context.Context, failingMessage) error { return nil })
	if _, err := RegisterAndSubscribe(adapter, second); !core.IsKind(err, core.ErrorBadInput) {
		t.Fatalf("expected duplicate registration error, got %v", err)
	}

	foreign := command.CommandFunc[foreignMessage](func(context.Context, foreignMessage) error { return nil })
	if _, err := RegisterAndSubscribe(adapter, foreign); !core.IsKind(err, core.ErrorBadInput) {
		t.Fatalf("expected namespace error, got %v", err)
	}

	types := adapter.Types()
	if len(types) != 1 || types[0] != "accounts.command.fail" {
		t.Fatalf("unexpected bound types %v", types)
	}
}

func TestRegistryAndDispatchWiring(t *testing.T) {
	adapter := NewRegistryAdapter(command.NewRegistry())
	var executed []string
	customResolverCalled := 0

	cmd := command.CommandFunc[dispatchMessage](func(_ context.Context, msg dispatchMessage) error {
		executed = append(executed, msg.ID)
		return nil
	})

	sub, err := RegisterAndSubscribe(adapter, cmd)
	if err != nil {
		t.Fatalf("register and subscribe: %v", err)
	}
	defer sub.Unsubscribe()

	if err := adapter.AddResolver(" custom ", func(any, command.CommandMeta, *command.Registry) error {
		customResolverCalled++
		return nil
	}); err != nil {
		t.Fatalf("add resolver: %v", err)
	}
	if !adapter.HasResolver("custom") {
		t.Fatalf("expected custom resolver to be registered")
	}
	if err := adapter.Initialize(); err != nil {
		t.Fatalf("initialize registry: %v", err)
	}
	if customResolverCalled == 0 {
		t.Fatalf("expected resolver hook to run during initialization")
	}

	if err := Dispatch(context.Background(), dispatchMessage{ID: "m1"}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if len(executed) != 1 || executed[0] != "m1" {
		t.Fatalf("expected one execution of m1, got %v", executed)
	}
}

func TestQueueResolverMirrorsCommands(t *testing.T) {
	adapter := NewRegistryAdapter(nil)
	queueRegistry := jobqueuecommand.NewRegistry()

	cmd := command.CommandFunc[queueMessage](func(context.Context, queueMessage) error { return nil })

	if err := adapter.AddQueueResolver("queue", queueRegistry); err != nil {
		t.Fatalf("add queue resolver: %v", err)
	}
	if err := adapter.RegisterCommand(queueMessage{}.Type(), cmd); err != nil {
		t.Fatalf("register command: %v", err)
	}
	if err := adapter.Initialize(); err != nil {
		t.Fatalf("initialize registry: %v", err)
	}

	if _, ok := queueRegistry.Get("accounts.command.queue_test"); !ok {
		t.Fatalf("expected command to be mirrored into queue registry")
	}
	if err := adapter.AddQueueResolver("other", nil); !core.IsKind(err, core.ErrorInternal) {
		t.Fatalf("expected missing queue registry error, got %v", err)
	}
}

func TestNilRegistryAdapter(t *testing.T) {
	var adapter *RegistryAdapter
	if adapter.Registry() != nil {
		t.Fatalf("expected nil registry")
	}
	if adapter.HasResolver("x") || adapter.Types() != nil {
		t.Fatalf("expected no resolvers")
	}
	if err := adapter.Initialize(); !core.IsKind(err, core.ErrorInternal) {
		t.Fatalf("expected internal error, got %v", err)
	}
	if _, err := RegisterAndSubscribe[okMessage](adapter, nil); err == nil {
		t.Fatalf("expected registry error")
	}
}
