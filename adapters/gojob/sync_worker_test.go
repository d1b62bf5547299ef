package gojob

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-accounts/core"
	"github.com/goliatone/go-accounts/logins"

	"github.com/goliatone/go-job/queue"
)

func TestSyncWorkerAcksSuccessfulSync(t *testing.T) {
	ctx := context.Background()
	msg, _ := NewSyncJobMessage("store-1")
	delivery := &stubCoreDelivery{msg: msg}
	syncer := &stubSyncer{results: []syncOutcome{{result: logins.SyncResult{Attempts: 1, Incoming: 2}}}}
	hook := &capturingHook{}

	w := newTestWorker(t, &stubCoreDequeuer{deliveries: []core.JobDelivery{delivery}}, syncer, WithHook(hook))
	processed, err := w.ProcessNext(ctx)
	if err != nil || !processed {
		t.Fatalf("expected processed delivery, got %v %v", processed, err)
	}
	if !delivery.acked || delivery.nacked {
		t.Fatalf("expected ack only")
	}
	if got := syncer.storeIDs(); len(got) != 1 || got[0] != "store-1" {
		t.Fatalf("expected sync of store-1, got %v", got)
	}
	if len(hook.starts) != 1 || len(hook.successes) != 1 || len(hook.failures) != 0 {
		t.Fatalf("unexpected hook events %+v", hook)
	}
	if hook.successes[0].Attempt != 1 {
		t.Fatalf("expected first attempt, got %d", hook.successes[0].Attempt)
	}
}

func TestSyncWorkerReportsToWorkerHooks(t *testing.T) {
	ctx := context.Background()
	msg, _ := NewSyncJobMessage("store-1")
	delivery := &stubCoreDelivery{msg: msg}
	syncer := &stubSyncer{results: []syncOutcome{{result: logins.SyncResult{Attempts: 1}}}}
	coreHook := &capturingHook{}
	jobHook := &capturingWorkerHook{}

	w := newTestWorker(t, &stubCoreDequeuer{deliveries: []core.JobDelivery{delivery}}, syncer,
		WithHook(coreHook),
		WithWorkerHook(jobHook),
	)
	if _, err := w.ProcessNext(ctx); err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(coreHook.starts) != 1 || len(coreHook.successes) != 1 {
		t.Fatalf("expected core hook events, got %+v", coreHook)
	}
	if len(jobHook.starts) != 1 || len(jobHook.successes) != 1 || len(jobHook.failures) != 0 {
		t.Fatalf("expected worker hook events, got %+v", jobHook)
	}
	got := jobHook.successes[0]
	if got.Message == nil || got.Message.JobID != JobIDLoginsSync || got.Attempt != 1 {
		t.Fatalf("unexpected worker event %#v", got)
	}
	if got.Message.Parameters[ParamStoreID] != "store-1" {
		t.Fatalf("expected store id parameter, got %v", got.Message.Parameters)
	}
}

func TestSyncWorkerRequeuesTransientFailureUntilExhausted(t *testing.T) {
	ctx := context.Background()
	transient := core.NewError(core.ErrorNetwork, "storage unreachable")
	syncer := &stubSyncer{results: []syncOutcome{{err: transient}, {err: transient}, {err: transient}}}
	hook := &capturingHook{}

	msg, _ := NewSyncJobMessage("store-1")
	deliveries := []*stubCoreDelivery{{msg: msg}, {msg: msg}, {msg: msg}}
	queueDeliveries := make([]core.JobDelivery, 0, len(deliveries))
	for _, d := range deliveries {
		queueDeliveries = append(queueDeliveries, d)
	}

	w := newTestWorker(t, &stubCoreDequeuer{deliveries: queueDeliveries}, syncer,
		WithHook(hook),
		WithRetryPolicy(RetryPolicy{MaxAttempts: 3}),
		WithBackoff(core.ExponentialBackoffScheduler{Initial: 100 * time.Millisecond, Max: time.Second}),
	)
	for i := range deliveries {
		if _, err := w.ProcessNext(ctx); err != nil {
			t.Fatalf("process %d: %v", i, err)
		}
	}

	for i, d := range deliveries[:2] {
		if !d.nackOpts.Requeue || d.nackOpts.DeadLetter {
			t.Fatalf("delivery %d: expected requeue, got %+v", i, d.nackOpts)
		}
	}
	if deliveries[0].nackOpts.Delay != 100*time.Millisecond || deliveries[1].nackOpts.Delay != 200*time.Millisecond {
		t.Fatalf("expected exponential backoff, got %s and %s", deliveries[0].nackOpts.Delay, deliveries[1].nackOpts.Delay)
	}
	last := deliveries[2].nackOpts
	if last.Requeue || !last.DeadLetter {
		t.Fatalf("expected dead letter after max attempts, got %+v", last)
	}
	if len(hook.retries) != 2 || len(hook.failures) != 1 {
		t.Fatalf("expected 2 retries and 1 failure, got %d and %d", len(hook.retries), len(hook.failures))
	}
	if hook.failures[0].Attempt != 3 || !errors.Is(hook.failures[0].Err, transient) {
		t.Fatalf("unexpected failure event %+v", hook.failures[0])
	}
	if len(w.attempts) != 0 {
		t.Fatalf("expected attempt counter to be cleared")
	}
}

func TestSyncWorkerDeadLettersTerminalFailure(t *testing.T) {
	ctx := context.Background()
	msg, _ := NewSyncJobMessage("store-1")
	delivery := &stubCoreDelivery{msg: msg}
	syncer := &stubSyncer{results: []syncOutcome{{err: core.NewError(core.ErrorUnauthorized, "token rejected")}}}

	w := newTestWorker(t, &stubCoreDequeuer{deliveries: []core.JobDelivery{delivery}}, syncer)
	if _, err := w.ProcessNext(ctx); err != nil {
		t.Fatalf("process: %v", err)
	}
	if delivery.nackOpts.Requeue || !delivery.nackOpts.DeadLetter {
		t.Fatalf("expected dead letter, got %+v", delivery.nackOpts)
	}
	if delivery.nackOpts.Reason == "" {
		t.Fatalf("expected failure reason")
	}
}

func TestSyncWorkerDeadLettersUnsupportedJobs(t *testing.T) {
	ctx := context.Background()
	foreign := &stubCoreDelivery{msg: &core.JobExecutionMessage{JobID: "accounts.other"}}
	missingStore := &stubCoreDelivery{msg: &core.JobExecutionMessage{JobID: JobIDLoginsSync}}
	syncer := &stubSyncer{}

	w := newTestWorker(t, &stubCoreDequeuer{deliveries: []core.JobDelivery{foreign, missingStore}}, syncer)
	for i := 0; i < 2; i++ {
		if _, err := w.ProcessNext(ctx); err != nil {
			t.Fatalf("process %d: %v", i, err)
		}
	}
	if !foreign.nackOpts.DeadLetter || !missingStore.nackOpts.DeadLetter {
		t.Fatalf("expected both deliveries dead-lettered")
	}
	if len(syncer.storeIDs()) != 0 {
		t.Fatalf("expected syncer not to run")
	}
}

func TestSyncWorkerUsesAttemptAwareNack(t *testing.T) {
	ctx := context.Background()
	msg, _ := NewSyncJobMessage("store-1")
	raw := &stubQueueDelivery{msg: ToExecutionMessage(msg)}
	dequeuer := NewDequeuerAdapter(&stubQueueDequeuer{deliveries: []queue.Delivery{raw}}, RetryPolicy{MaxAttempts: 1})
	syncer := &stubSyncer{results: []syncOutcome{{err: core.NewError(core.ErrorSyncFailed, "upload rejected")}}}

	w := newTestWorker(t, dequeuer, syncer, WithRetryPolicy(RetryPolicy{MaxAttempts: 5}))
	if _, err := w.ProcessNext(ctx); err != nil {
		t.Fatalf("process: %v", err)
	}
	if !raw.nacked {
		t.Fatalf("expected nack on queue delivery")
	}
	if raw.nackOpts.Requeue || !raw.nackOpts.DeadLetter {
		t.Fatalf("expected queue policy to dead-letter at its own max, got %+v", raw.nackOpts)
	}
}

func TestSyncWorkerEmptyQueue(t *testing.T) {
	w := newTestWorker(t, &stubCoreDequeuer{}, &stubSyncer{})
	processed, err := w.ProcessNext(context.Background())
	if err != nil || processed {
		t.Fatalf("expected idle result, got %v %v", processed, err)
	}
}

func TestSyncWorkerRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	msg, _ := NewSyncJobMessage("store-1")
	syncer := &stubSyncer{
		results: []syncOutcome{{}},
		onSync:  cancel,
	}
	w := newTestWorker(t, &stubCoreDequeuer{deliveries: []core.JobDelivery{&stubCoreDelivery{msg: msg}}}, syncer,
		WithIdleDelay(time.Millisecond),
	)

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("worker did not stop")
	}
	if len(syncer.storeIDs()) != 1 {
		t.Fatalf("expected one sync before stopping")
	}
}

func TestNewSyncWorkerRequiresDependencies(t *testing.T) {
	if _, err := NewSyncWorker(nil, &stubSyncer{}); err == nil {
		t.Fatalf("expected dequeuer error")
	}
	if _, err := NewSyncWorker(&stubCoreDequeuer{}, nil); err == nil {
		t.Fatalf("expected syncer error")
	}
}

func newTestWorker(t *testing.T, dequeuer core.JobDequeuer, syncer LoginsSyncer, opts ...SyncWorkerOption) *SyncWorker {
	t.Helper()
	w, err := NewSyncWorker(dequeuer, syncer, opts...)
	if err != nil {
		t.Fatalf("new sync worker: %v", err)
	}
	return w
}

type syncOutcome struct {
	result logins.SyncResult
	err    error
}

type stubSyncer struct {
	mu      sync.Mutex
	results []syncOutcome
	calls   []string
	onSync  func()
}

func (s *stubSyncer) SyncLogins(_ context.Context, storeID string) (logins.SyncResult, error) {
	s.mu.Lock()
	s.calls = append(s.calls, storeID)
	var out syncOutcome
	if len(s.results) > 0 {
		out = s.results[0]
		s.results = s.results[1:]
	}
	onSync := s.onSync
	s.mu.Unlock()
	if onSync != nil {
		onSync()
	}
	return out.result, out.err
}

func (s *stubSyncer) storeIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

type stubCoreDequeuer struct {
	mu         sync.Mutex
	deliveries []core.JobDelivery
}

func (s *stubCoreDequeuer) Dequeue(context.Context) (core.JobDelivery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.deliveries) == 0 {
		return nil, nil
	}
	next := s.deliveries[0]
	s.deliveries = s.deliveries[1:]
	return next, nil
}

type stubCoreDelivery struct {
	msg      *core.JobExecutionMessage
	acked    bool
	nacked   bool
	nackOpts core.JobNackOptions
}

func (d *stubCoreDelivery) Message() *core.JobExecutionMessage { return d.msg }

func (d *stubCoreDelivery) Ack(context.Context) error {
	d.acked = true
	return nil
}

func (d *stubCoreDelivery) Nack(_ context.Context, opts core.JobNackOptions) error {
	d.nacked = true
	d.nackOpts = opts
	return nil
}
