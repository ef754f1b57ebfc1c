package gojob

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goliatone/go-pushsync/core"
)

// ProcessFunc handles one dequeued job message; core.Service.ProcessJobMessage
// satisfies it.
type ProcessFunc func(ctx context.Context, msg *core.JobExecutionMessage) error

// Worker drains a queue and feeds each message through the processor,
// acking on success and nacking with the retry policy otherwise.
type Worker struct {
	dequeuer   core.JobDequeuer
	process    ProcessFunc
	hook       core.JobWorkerHook
	policy     RetryPolicy
	retryDelay time.Duration
	now        func() time.Time
}

type WorkerOption func(*Worker)

func WithWorkerHook(hook core.JobWorkerHook) WorkerOption {
	return func(w *Worker) {
		if hook != nil {
			w.hook = hook
		}
	}
}

func WithRetryPolicy(policy RetryPolicy) WorkerOption {
	return func(w *Worker) {
		w.policy = policy
	}
}

func WithRetryDelay(delay time.Duration) WorkerOption {
	return func(w *Worker) {
		if delay > 0 {
			w.retryDelay = delay
		}
	}
}

func WithWorkerNow(now func() time.Time) WorkerOption {
	return func(w *Worker) {
		if now != nil {
			w.now = now
		}
	}
}

func NewWorker(dequeuer core.JobDequeuer, process ProcessFunc, opts ...WorkerOption) (*Worker, error) {
	if dequeuer == nil {
		return nil, fmt.Errorf("gojob: dequeuer is required")
	}
	if process == nil {
		return nil, fmt.Errorf("gojob: process func is required")
	}

	workerInstance := &Worker{
		dequeuer:   dequeuer,
		process:    process,
		policy:     RetryPolicy{MaxAttempts: 5, MaxDelay: 5 * time.Minute, DeadLetterOnMax: true},
		retryDelay: 30 * time.Second,
		now:        time.Now,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(workerInstance)
	}
	return workerInstance, nil
}

// Run drains the queue until the context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	if w == nil {
		return fmt.Errorf("gojob: worker is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		delivery, err := w.dequeuer.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			continue
		}
		if delivery == nil {
			continue
		}
		w.ProcessDelivery(ctx, delivery)
	}
}

// ProcessDelivery runs one delivery through the processor. Exported so hosts
// that own their worker loop can still reuse the ack/nack discipline.
func (w *Worker) ProcessDelivery(ctx context.Context, delivery core.JobDelivery) {
	if w == nil || delivery == nil {
		return
	}
	msg := delivery.Message()
	startedAt := w.now()
	w.emit(ctx, core.JobWorkerHook.OnStart, core.JobWorkerEvent{
		Message:   msg,
		Attempt:   1,
		StartedAt: startedAt,
	})

	err := w.process(ctx, msg)
	event := core.JobWorkerEvent{
		Message:   msg,
		Attempt:   1,
		Err:       err,
		StartedAt: startedAt,
		Duration:  w.now().Sub(startedAt),
	}

	if err == nil {
		if ackErr := delivery.Ack(ctx); ackErr != nil {
			event.Err = ackErr
			w.emit(ctx, core.JobWorkerHook.OnFailure, event)
			return
		}
		w.emit(ctx, core.JobWorkerHook.OnSuccess, event)
		return
	}

	nackOpts := w.policy.NormalizeAttempt(core.JobNackOptions{
		Delay:   w.retryDelay,
		Requeue: true,
		Reason:  err.Error(),
	}, event.Attempt)
	event.Delay = nackOpts.Delay
	_ = delivery.Nack(ctx, nackOpts)
	if nackOpts.Requeue {
		w.emit(ctx, core.JobWorkerHook.OnRetry, event)
		return
	}
	w.emit(ctx, core.JobWorkerHook.OnFailure, event)
}

func (w *Worker) emit(ctx context.Context, fn func(core.JobWorkerHook, context.Context, core.JobWorkerEvent), event core.JobWorkerEvent) {
	if w.hook == nil {
		return
	}
	fn(w.hook, ctx, event)
}
