package gologger

import (
	"context"
	"testing"

	glog "github.com/goliatone/go-logger/glog"
)

func TestResolvePrefersProviderOverLogger(t *testing.T) {
	loggerOnly := &capturingLogger{id: "logger"}
	provider := &capturingProvider{logger: &capturingLogger{id: "provider"}}

	_, resolved := Resolve("logins", provider, loggerOnly)
	if got := resolved.(*capturingLogger); got.id != "provider" {
		t.Fatalf("expected provider logger precedence, got %q", got.id)
	}

	resolvedProvider, resolved := Resolve("logins", nil, loggerOnly)
	if got := resolved.(*capturingLogger); got.id != "logger" {
		t.Fatalf("expected direct logger when provider is nil, got %q", got.id)
	}
	if resolvedProvider == nil {
		t.Fatalf("expected provider wrapper from logger")
	}

	if _, resolved = Resolve("", nil, nil); resolved == nil {
		t.Fatalf("expected nop logger fallback")
	}
}

func TestComponentNeverReturnsNil(t *testing.T) {
	if Component("jobs", nil, nil) == nil {
		t.Fatalf("expected nop logger")
	}

	provider := &capturingProvider{logger: &capturingLogger{id: "provider"}}
	logger := Component("jobs", provider, nil)
	if got := logger.(*capturingLogger); got.id != "provider" {
		t.Fatalf("expected provider logger, got %q", got.id)
	}
	if provider.lastName != "accounts.jobs" {
		t.Fatalf("expected accounts.jobs lookup, got %q", provider.lastName)
	}
}

func TestComponentName(t *testing.T) {
	cases := map[string]string{
		"":                "accounts",
		"accounts":        "accounts",
		"logins":          "accounts.logins",
		" .jobs. ":        "accounts.jobs",
		"accounts.oauth":  "accounts.oauth",
		"accountsvc.misc": "accounts.accountsvc.misc",
	}
	for in, want := range cases {
		if got := componentName(in); got != want {
			t.Fatalf("componentName(%q): expected %q, got %q", in, want, got)
		}
	}
}

func TestResolveForJobBridgesToGoJob(t *testing.T) {
	providerLogger := &capturingLogger{id: "provider"}
	provider := &capturingProvider{logger: providerLogger}

	_, _, jobProvider, jobLogger := ResolveForJob("jobs", provider, nil)
	if jobProvider == nil {
		t.Fatalf("expected go-job provider bridge")
	}
	if jobLogger == nil {
		t.Fatalf("expected go-job logger bridge")
	}

	bridged := jobProvider.GetLogger("accounts.jobs")
	bridged.Info("logins sync queued", "store_id", "store-1")

	captured := providerLogger.lastInfo
	if captured.msg != "logins sync queued" {
		t.Fatalf("expected bridged message, got %q", captured.msg)
	}
	if len(captured.args) != 2 || captured.args[0] != "store_id" || captured.args[1] != "store-1" {
		t.Fatalf("expected bridged args, got %#v", captured.args)
	}
}

func TestToJobAdaptersNilSafe(t *testing.T) {
	if ToJobProvider(nil) != nil {
		t.Fatalf("expected nil provider")
	}
	if ToJobLogger(nil) != nil {
		t.Fatalf("expected nil logger")
	}
}

var (
	_ glog.Logger         = (*capturingLogger)(nil)
	_ glog.LoggerProvider = (*capturingProvider)(nil)
)

type capturingProvider struct {
	logger   *capturingLogger
	lastName string
}

func (p *capturingProvider) GetLogger(name string) glog.Logger {
	if p == nil || p.logger == nil {
		return glog.Nop()
	}
	p.lastName = name
	return p.logger
}

type infoCall struct {
	msg  string
	args []any
}

type capturingLogger struct {
	id       string
	lastInfo infoCall
}

func (l *capturingLogger) Trace(string, ...any) {}
func (l *capturingLogger) Debug(string, ...any) {}
func (l *capturingLogger) Warn(string, ...any)  {}
func (l *capturingLogger) Error(string, ...any) {}
func (l *capturingLogger) Fatal(string, ...any) {}

func (l *capturingLogger) Info(msg string, args ...any) {
	l.lastInfo = infoCall{
		msg:  msg,
		args: append([]any(nil), args...),
	}
}

func (l *capturingLogger) WithContext(context.Context) glog.Logger {
	return l
}
