package gojob

import (
	"context"
	"maps"
	"strings"
	"time"

	"github.com/goliatone/go-accounts/core"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"
)

// RetryPolicy bounds how often a queued sync job is redelivered. A job that
// reaches MaxAttempts is dead-lettered.
type RetryPolicy struct {
	MaxAttempts int
	MinDelay    time.Duration
	MaxDelay    time.Duration
}

// RetryPolicyFromSync maps the sync retry settings onto queue redelivery.
func RetryPolicyFromSync(cfg core.SyncConfig) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: cfg.RetryPolicy().MaxAttempts,
		MinDelay:    time.Duration(cfg.InitialBackoffMS) * time.Millisecond,
		MaxDelay:    time.Duration(cfg.MaxBackoffMS) * time.Millisecond,
	}
}

// NormalizeAttempt clamps a nack for the given attempt. Requeues wait at
// least MinDelay and at most MaxDelay; the last allowed attempt and any
// explicit dead letter are never requeued.
func (p RetryPolicy) NormalizeAttempt(opts core.JobNackOptions, attempt int) core.JobNackOptions {
	out := opts
	out.Reason = strings.TrimSpace(out.Reason)
	if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
		out.DeadLetter = true
	}
	if out.DeadLetter {
		out.Requeue = false
		out.Delay = 0
		return out
	}
	out.Requeue = true
	out.Delay = max(out.Delay, p.MinDelay, 0)
	if p.MaxDelay > 0 {
		out.Delay = min(out.Delay, p.MaxDelay)
	}
	return out
}

// ToExecutionMessage maps a sync job to go-job. Parameters are copied.
func ToExecutionMessage(msg *core.JobExecutionMessage) *job.ExecutionMessage {
	if msg == nil {
		return nil
	}
	return &job.ExecutionMessage{
		JobID:          strings.TrimSpace(msg.JobID),
		ScriptPath:     strings.TrimSpace(msg.ScriptPath),
		Parameters:     cloneParameters(msg.Parameters),
		IdempotencyKey: strings.TrimSpace(msg.IdempotencyKey),
		DedupPolicy:    job.DeduplicationPolicy(strings.TrimSpace(msg.DedupPolicy)),
	}
}

// FromExecutionMessage maps a go-job message back to a sync job.
func FromExecutionMessage(msg *job.ExecutionMessage) *core.JobExecutionMessage {
	if msg == nil {
		return nil
	}
	return &core.JobExecutionMessage{
		JobID:          strings.TrimSpace(msg.JobID),
		ScriptPath:     strings.TrimSpace(msg.ScriptPath),
		Parameters:     cloneParameters(msg.Parameters),
		IdempotencyKey: strings.TrimSpace(msg.IdempotencyKey),
		DedupPolicy:    strings.TrimSpace(string(msg.DedupPolicy)),
	}
}

type EnqueuerAdapter struct {
	enqueuer queue.Enqueuer
}

func NewEnqueuerAdapter(enqueuer queue.Enqueuer) *EnqueuerAdapter {
	return &EnqueuerAdapter{enqueuer: enqueuer}
}

// Enqueue hands msg to the broker. Broker failures are reported as network
// errors so callers may retry the enqueue.
func (a *EnqueuerAdapter) Enqueue(ctx context.Context, msg *core.JobExecutionMessage) error {
	if a == nil || a.enqueuer == nil {
		return core.NewError(core.ErrorInternal, "gojob: enqueuer is not configured")
	}
	if msg == nil || strings.TrimSpace(msg.JobID) == "" {
		return core.NewError(core.ErrorBadInput, "gojob: execution message with a job id is required")
	}
	if err := a.enqueuer.Enqueue(ctx, ToExecutionMessage(msg)); err != nil {
		return core.WrapError(err, core.ErrorNetwork, "gojob: enqueue "+strings.TrimSpace(msg.JobID))
	}
	return nil
}

type DeliveryAdapter struct {
	delivery queue.Delivery
	policy   RetryPolicy
}

func NewDeliveryAdapter(delivery queue.Delivery, policy RetryPolicy) *DeliveryAdapter {
	return &DeliveryAdapter{delivery: delivery, policy: policy}
}

func (d *DeliveryAdapter) Message() *core.JobExecutionMessage {
	if d == nil || d.delivery == nil {
		return nil
	}
	return FromExecutionMessage(d.delivery.Message())
}

func (d *DeliveryAdapter) Ack(ctx context.Context) error {
	if d == nil || d.delivery == nil {
		return errDeliveryNotConfigured()
	}
	return d.delivery.Ack(ctx)
}

func (d *DeliveryAdapter) Nack(ctx context.Context, opts core.JobNackOptions) error {
	return d.NackForAttempt(ctx, opts, 0)
}

// NackForAttempt applies the retry policy before handing the nack to the
// queue.
func (d *DeliveryAdapter) NackForAttempt(ctx context.Context, opts core.JobNackOptions, attempt int) error {
	if d == nil || d.delivery == nil {
		return errDeliveryNotConfigured()
	}
	normalized := d.policy.NormalizeAttempt(opts, attempt)
	return d.delivery.Nack(ctx, queue.NackOptions{
		Delay:      normalized.Delay,
		Requeue:    normalized.Requeue,
		DeadLetter: normalized.DeadLetter,
		Reason:     normalized.Reason,
	})
}

type DequeuerAdapter struct {
	dequeuer queue.Dequeuer
	policy   RetryPolicy
}

func NewDequeuerAdapter(dequeuer queue.Dequeuer, policy RetryPolicy) *DequeuerAdapter {
	return &DequeuerAdapter{dequeuer: dequeuer, policy: policy}
}

// Dequeue returns nil, nil when the broker has nothing to hand out.
func (a *DequeuerAdapter) Dequeue(ctx context.Context) (core.JobDelivery, error) {
	if a == nil || a.dequeuer == nil {
		return nil, core.NewError(core.ErrorInternal, "gojob: dequeuer is not configured")
	}
	delivery, err := a.dequeuer.Dequeue(ctx)
	if err != nil || delivery == nil {
		return nil, err
	}
	return NewDeliveryAdapter(delivery, a.policy), nil
}

// WorkerHookAdapter reports sync worker events to a go-job worker hook, so
// hooks written for go-job workers also observe queued logins syncs.
type WorkerHookAdapter struct {
	hook worker.Hook
}

func NewWorkerHookAdapter(hook worker.Hook) *WorkerHookAdapter {
	return &WorkerHookAdapter{hook: hook}
}

func (a *WorkerHookAdapter) OnStart(ctx context.Context, event core.JobWorkerEvent) {
	a.emit(ctx, event, worker.Hook.OnStart)
}

func (a *WorkerHookAdapter) OnSuccess(ctx context.Context, event core.JobWorkerEvent) {
	a.emit(ctx, event, worker.Hook.OnSuccess)
}

func (a *WorkerHookAdapter) OnFailure(ctx context.Context, event core.JobWorkerEvent) {
	a.emit(ctx, event, worker.Hook.OnFailure)
}

func (a *WorkerHookAdapter) OnRetry(ctx context.Context, event core.JobWorkerEvent) {
	a.emit(ctx, event, worker.Hook.OnRetry)
}

func (a *WorkerHookAdapter) emit(ctx context.Context, event core.JobWorkerEvent, fn func(worker.Hook, context.Context, worker.Event)) {
	if a == nil || a.hook == nil {
		return
	}
	fn(a.hook, ctx, worker.Event{
		Message:   ToExecutionMessage(event.Message),
		Attempt:   event.Attempt,
		Delay:     event.Delay,
		Err:       event.Err,
		StartedAt: event.StartedAt,
		Duration:  event.Duration,
	})
}

func cloneParameters(in map[string]any) map[string]any {
	if len(in) == 0 {
		return map[string]any{}
	}
	return maps.Clone(in)
}

func errDeliveryNotConfigured() error {
	return core.NewError(core.ErrorInternal, "gojob: delivery is not configured")
}

var (
	_ core.JobEnqueuer   = (*EnqueuerAdapter)(nil)
	_ core.JobDelivery   = (*DeliveryAdapter)(nil)
	_ core.JobDequeuer   = (*DequeuerAdapter)(nil)
	_ core.JobWorkerHook = (*WorkerHookAdapter)(nil)
)
