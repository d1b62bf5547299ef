package gojob

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-accounts/adapters/gologger"
	"github.com/goliatone/go-accounts/core"
	"github.com/goliatone/go-accounts/logins"
	"github.com/goliatone/go-job/queue/worker"
)

const (
	JobIDLoginsSync = "accounts.logins.sync"

	ParamStoreID = "store_id"

	dedupPolicyDrop       = "drop"
	defaultIdleDelay      = 500 * time.Millisecond
	syncIdempotencyPrefix = "logins-sync:"
)

// LoginsSyncer runs one sync of the logins store bound to storeID.
type LoginsSyncer interface {
	SyncLogins(ctx context.Context, storeID string) (logins.SyncResult, error)
}

// NewSyncJobMessage builds the queued sync job for storeID. Pending jobs
// for the same store collapse into one.
func NewSyncJobMessage(storeID string) (*core.JobExecutionMessage, error) {
	storeID = strings.TrimSpace(storeID)
	if storeID == "" {
		return nil, core.NewError(core.ErrorBadInput, "gojob: store id is required")
	}
	return &core.JobExecutionMessage{
		JobID:          JobIDLoginsSync,
		ScriptPath:     JobIDLoginsSync,
		Parameters:     map[string]any{ParamStoreID: storeID},
		IdempotencyKey: syncIdempotencyPrefix + storeID,
		DedupPolicy:    dedupPolicyDrop,
	}, nil
}

func EnqueueSync(ctx context.Context, enqueuer core.JobEnqueuer, storeID string) error {
	if enqueuer == nil {
		return core.NewError(core.ErrorInternal, "gojob: enqueuer is not configured")
	}
	msg, err := NewSyncJobMessage(storeID)
	if err != nil {
		return err
	}
	return enqueuer.Enqueue(ctx, msg)
}

type attemptNacker interface {
	NackForAttempt(ctx context.Context, opts core.JobNackOptions, attempt int) error
}

type SyncWorkerOption func(*SyncWorker)

func WithRetryPolicy(policy RetryPolicy) SyncWorkerOption {
	return func(w *SyncWorker) {
		w.policy = policy
	}
}

func WithBackoff(scheduler core.BackoffScheduler) SyncWorkerOption {
	return func(w *SyncWorker) {
		if scheduler != nil {
			w.backoff = scheduler
		}
	}
}

// WithHook adds an observer of job runs. Hooks run in the order added.
func WithHook(hook core.JobWorkerHook) SyncWorkerOption {
	return func(w *SyncWorker) {
		if hook != nil {
			w.hooks = append(w.hooks, hook)
		}
	}
}

// WithWorkerHook adds a go-job worker hook as an observer of job runs.
func WithWorkerHook(hook worker.Hook) SyncWorkerOption {
	return func(w *SyncWorker) {
		if hook != nil {
			w.hooks = append(w.hooks, NewWorkerHookAdapter(hook))
		}
	}
}

func WithLogger(logger core.Logger) SyncWorkerOption {
	return func(w *SyncWorker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

func WithClock(now func() time.Time) SyncWorkerOption {
	return func(w *SyncWorker) {
		if now != nil {
			w.now = now
		}
	}
}

// WithIdleDelay sets how long Run sleeps when the queue is empty.
func WithIdleDelay(delay time.Duration) SyncWorkerOption {
	return func(w *SyncWorker) {
		if delay > 0 {
			w.idle = delay
		}
	}
}

// SyncWorker drains queued logins sync jobs. Transient failures are nacked
// back onto the queue with backoff; anything else, or a job out of
// attempts, is dead-lettered.
type SyncWorker struct {
	dequeuer core.JobDequeuer
	syncer   LoginsSyncer
	policy   RetryPolicy
	backoff  core.BackoffScheduler
	hooks    []core.JobWorkerHook
	logger   core.Logger
	now      func() time.Time
	idle     time.Duration

	mu       sync.Mutex
	attempts map[string]int
}

func NewSyncWorker(dequeuer core.JobDequeuer, syncer LoginsSyncer, opts ...SyncWorkerOption) (*SyncWorker, error) {
	if dequeuer == nil {
		return nil, core.NewError(core.ErrorInternal, "gojob: dequeuer is required")
	}
	if syncer == nil {
		return nil, core.NewError(core.ErrorInternal, "gojob: logins syncer is required")
	}
	defaults := core.DefaultConfig().Sync
	w := &SyncWorker{
		dequeuer: dequeuer,
		syncer:   syncer,
		policy:   RetryPolicyFromSync(defaults),
		backoff:  defaults.RetryPolicy().Scheduler,
		logger:   gologger.Component("jobs", nil, nil),
		now:      time.Now,
		idle:     defaultIdleDelay,
		attempts: map[string]int{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(w)
		}
	}
	return w, nil
}

// Run processes jobs until ctx is cancelled.
func (w *SyncWorker) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		processed, err := w.ProcessNext(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.logger.Error("logins sync worker iteration failed", "error", err)
		}
		if processed && err == nil {
			continue
		}
		timer := time.NewTimer(w.idle)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// ProcessNext handles at most one delivery. It reports false when the
// queue had nothing to hand out.
func (w *SyncWorker) ProcessNext(ctx context.Context) (bool, error) {
	delivery, err := w.dequeuer.Dequeue(ctx)
	if err != nil {
		return false, err
	}
	if delivery == nil {
		return false, nil
	}

	msg := delivery.Message()
	storeID := storeIDFrom(msg)
	if msg == nil || msg.JobID != JobIDLoginsSync || storeID == "" {
		reason := "unsupported job"
		if msg != nil {
			reason = "unsupported job " + msg.JobID
		}
		w.logger.Warn("dead-lettering logins sync delivery", "reason", reason)
		return true, w.nack(ctx, delivery, core.JobNackOptions{DeadLetter: true, Reason: reason}, 0)
	}

	key := msg.IdempotencyKey
	if key == "" {
		key = syncIdempotencyPrefix + storeID
	}
	attempt := w.nextAttempt(key)
	started := w.now()
	event := core.JobWorkerEvent{Message: msg, Attempt: attempt, StartedAt: started}
	w.observe(ctx, event, core.JobWorkerHook.OnStart)

	result, syncErr := w.syncer.SyncLogins(ctx, storeID)
	event.Duration = w.now().Sub(started)
	if syncErr == nil {
		w.forget(key)
		w.logger.Info("logins sync completed",
			"store_id", storeID,
			"attempt", attempt,
			"incoming", result.Incoming,
			"outgoing", result.Outgoing,
		)
		w.observe(ctx, event, core.JobWorkerHook.OnSuccess)
		return true, delivery.Ack(ctx)
	}

	event.Err = syncErr
	if w.retryable(syncErr) && (w.policy.MaxAttempts <= 0 || attempt < w.policy.MaxAttempts) {
		event.Delay = w.backoff.NextDelay(attempt)
		w.logger.Warn("logins sync failed, requeueing",
			"store_id", storeID,
			"attempt", attempt,
			"delay", event.Delay,
			"error", syncErr,
		)
		w.observe(ctx, event, core.JobWorkerHook.OnRetry)
		return true, w.nack(ctx, delivery, core.JobNackOptions{
			Delay:   event.Delay,
			Requeue: true,
			Reason:  syncErr.Error(),
		}, attempt)
	}

	w.forget(key)
	w.logger.Error("logins sync failed",
		"store_id", storeID,
		"attempt", attempt,
		"error", syncErr,
	)
	w.observe(ctx, event, core.JobWorkerHook.OnFailure)
	return true, w.nack(ctx, delivery, core.JobNackOptions{
		DeadLetter: true,
		Reason:     syncErr.Error(),
	}, attempt)
}

func (w *SyncWorker) retryable(err error) bool {
	return core.IsTransient(err) || core.IsKind(err, core.ErrorSyncFailed)
}

func (w *SyncWorker) nack(ctx context.Context, delivery core.JobDelivery, opts core.JobNackOptions, attempt int) error {
	if nacker, ok := delivery.(attemptNacker); ok {
		return nacker.NackForAttempt(ctx, opts, attempt)
	}
	return delivery.Nack(ctx, w.policy.NormalizeAttempt(opts, attempt))
}

func (w *SyncWorker) nextAttempt(key string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.attempts[key]++
	return w.attempts[key]
}

func (w *SyncWorker) forget(key string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.attempts, key)
}

func (w *SyncWorker) observe(ctx context.Context, event core.JobWorkerEvent, emit func(core.JobWorkerHook, context.Context, core.JobWorkerEvent)) {
	for _, hook := range w.hooks {
		emit(hook, ctx, event)
	}
}

func storeIDFrom(msg *core.JobExecutionMessage) string {
	if msg == nil || msg.Parameters == nil {
		return ""
	}
	value, _ := msg.Parameters[ParamStoreID].(string)
	return strings.TrimSpace(value)
}
