package core

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"testing"
)

type capturedCounter struct {
	name  string
	value int64
	tags  map[string]string
}

type captureMetricsRecorder struct {
	mu         sync.Mutex
	counters   []capturedCounter
	histograms int
}

func (m *captureMetricsRecorder) IncCounter(_ context.Context, name string, value int64, tags map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters = append(m.counters, capturedCounter{name: name, value: value, tags: cloneTags(tags)})
}

func (m *captureMetricsRecorder) ObserveHistogram(context.Context, string, float64, map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.histograms++
}

type capturedLog struct {
	level  string
	msg    string
	fields map[string]any
}

type captureLogger struct {
	mu       *sync.Mutex
	records  *[]capturedLog
	defaults map[string]any
}

func newCaptureLogger() *captureLogger {
	records := []capturedLog{}
	return &captureLogger{mu: &sync.Mutex{}, records: &records, defaults: map[string]any{}}
}

func (l *captureLogger) WithFields(fields map[string]any) Logger {
	merged := cloneFields(l.defaults)
	for key, value := range fields {
		merged[key] = value
	}
	return &captureLogger{mu: l.mu, records: l.records, defaults: merged}
}

func (l *captureLogger) Trace(msg string, args ...any) { l.record("trace", msg, args...) }
func (l *captureLogger) Debug(msg string, args ...any) { l.record("debug", msg, args...) }
func (l *captureLogger) Info(msg string, args ...any)  { l.record("info", msg, args...) }
func (l *captureLogger) Warn(msg string, args ...any)  { l.record("warn", msg, args...) }
func (l *captureLogger) Error(msg string, args ...any) { l.record("error", msg, args...) }
func (l *captureLogger) Fatal(msg string, args ...any) { l.record("fatal", msg, args...) }

func (l *captureLogger) WithContext(context.Context) Logger {
	return &captureLogger{mu: l.mu, records: l.records, defaults: cloneFields(l.defaults)}
}

func (l *captureLogger) record(level string, msg string, args ...any) {
	fields := cloneFields(l.defaults)
	for index := 0; index+1 < len(args); index += 2 {
		key, ok := args[index].(string)
		if !ok {
			continue
		}
		fields[key] = args[index+1]
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	*l.records = append(*l.records, capturedLog{level: level, msg: msg, fields: fields})
}

func (l *captureLogger) snapshot() []capturedLog {
	l.mu.Lock()
	defer l.mu.Unlock()
	items := *l.records
	out := make([]capturedLog, len(items))
	copy(out, items)
	return out
}

func TestAccountSession_ObservesOperations(t *testing.T) {
	ctx := context.Background()
	logger := newCaptureLogger()
	metrics := &captureMetricsRecorder{}
	svc, err := NewService(Config{},
		WithLogger(logger),
		WithLoggerProvider(stubLoggerProvider{logger: logger}),
		WithMetricsRecorder(metrics),
		WithIdentityClient(newFakeIdentityClient()),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	account, err := svc.NewAccount(ctx, ReleaseConfig(), "client-1")
	if err != nil {
		t.Fatalf("new account: %v", err)
	}
	defer account.Release()

	authURL, err := account.BeginOAuthFlow(ctx, "app://cb", []string{"profile"}, false)
	if err != nil {
		t.Fatalf("begin flow: %v", err)
	}
	parsed, _ := url.Parse(authURL)
	if _, err := account.CompleteOAuthFlow(ctx, "code-1", parsed.Query().Get("state")); err != nil {
		t.Fatalf("complete flow: %v", err)
	}
	_, _ = account.CompleteOAuthFlow(ctx, "code-1", "bogus")

	var sawSuccess, sawFailure bool
	for _, record := range logger.snapshot() {
		if record.msg == "complete_oauth_flow succeeded" {
			sawSuccess = true
			if record.fields["scope_key"] != "profile" {
				t.Fatalf("expected scope key field, got %v", record.fields)
			}
		}
		if record.msg == "complete_oauth_flow failed" {
			sawFailure = true
			if record.level != "error" {
				t.Fatalf("expected error level, got %q", record.level)
			}
			if record.fields["error_kind"] != string(ErrorOAuthStateMismatch) {
				t.Fatalf("expected error kind field, got %v", record.fields)
			}
		}
		for key, value := range record.fields {
			if text, ok := value.(string); ok && strings.Contains(text, "access-") {
				t.Fatalf("token leaked into log field %q", key)
			}
		}
	}
	if !sawSuccess || !sawFailure {
		t.Fatalf("expected success and failure logs, got %+v", logger.snapshot())
	}

	metrics.mu.Lock()
	defer metrics.mu.Unlock()
	found := false
	for _, counter := range metrics.counters {
		if counter.name == "accounts.complete_oauth_flow.total" && counter.tags["status"] == "failure" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected failure counter, got %+v", metrics.counters)
	}
	if metrics.histograms == 0 {
		t.Fatalf("expected duration histograms")
	}
}
