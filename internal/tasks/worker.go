package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"remnashop/internal/metrics"
)

var ErrUnknownTask = errors.New("unknown task")

const (
	DefaultMaxAttempts  = 3
	DefaultRetryBackoff = 30 * time.Second
)

type Handler func(ctx context.Context, args []string) error

type OperatorNotifier interface {
	NotifyOperator(ctx context.Context, text string)
}

type Worker struct {
	queue    *Queue
	handlers map[string]Handler
	log      *zap.Logger
	metrics  *metrics.Metrics
	notifier OperatorNotifier

	MaxAttempts  int
	BlockTimeout time.Duration
	// RetryBackoff is the delay before the second attempt; it doubles with
	// every further attempt.
	RetryBackoff time.Duration
}

func NewWorker(queue *Queue, log *zap.Logger, m *metrics.Metrics, notifier OperatorNotifier) *Worker {
	return &Worker{
		queue:        queue,
		handlers:     make(map[string]Handler),
		log:          log,
		metrics:      m,
		notifier:     notifier,
		MaxAttempts:  DefaultMaxAttempts,
		BlockTimeout: 5 * time.Second,
		RetryBackoff: DefaultRetryBackoff,
	}
}

func (w *Worker) Register(name string, h Handler) {
	w.handlers[name] = h
}

// Run consumes tasks until ctx is canceled.
func (w *Worker) Run(ctx context.Context) {
	if n, err := w.queue.RequeueStale(ctx); err != nil {
		w.log.Error("requeue stale tasks", zap.Error(err))
	} else if n > 0 {
		w.log.Info("requeued stale tasks", zap.Int("count", n))
	}
	for ctx.Err() == nil {
		if _, err := w.ProcessNext(ctx); err != nil && ctx.Err() == nil {
			w.log.Error("task queue", zap.Error(err))
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
		}
	}
}

// ProcessNext runs at most one task and reports whether one was taken.
func (w *Worker) ProcessNext(ctx context.Context) (bool, error) {
	if _, err := w.queue.PromoteDue(ctx); err != nil {
		return false, err
	}
	client := w.queue.client
	raw, err := client.BRPopLPush(ctx, w.queue.key, w.queue.ProcessingKey(), w.BlockTimeout).Result()
	if err == goredis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	defer func() {
		if err := client.LRem(context.WithoutCancel(ctx), w.queue.ProcessingKey(), 1, raw).Err(); err != nil {
			w.log.Error("ack task", zap.Error(err))
		}
	}()

	var task Task
	if err := json.Unmarshal([]byte(raw), &task); err != nil {
		w.log.Error("malformed task", zap.Error(err), zap.String("raw", raw))
		return true, w.bury(ctx, raw, "malformed task: "+err.Error())
	}

	log := w.log.With(zap.String("task", task.Name), zap.String("task_id", task.ID), zap.Int("attempt", task.Attempt))
	runErr := w.run(ctx, task)
	if runErr == nil {
		log.Debug("task done")
		return true, nil
	}

	w.metrics.TaskErrors.WithLabelValues(w.label(task.Name)).Inc()
	log.Error("task failed", zap.Error(runErr))
	if errors.Is(runErr, ErrUnknownTask) || task.Attempt >= w.MaxAttempts {
		summary := fmt.Sprintf("Task %s (%s) failed after %d attempt(s): %v", task.Name, task.ID, task.Attempt, runErr)
		w.notifier.NotifyOperator(ctx, truncate(summary, 512))
		return true, w.bury(ctx, raw, runErr.Error())
	}
	delay := w.backoff(task.Attempt)
	task.Attempt++
	log.Info("task retry scheduled", zap.Duration("delay", delay))
	return true, w.queue.Retry(ctx, task, delay)
}

// backoff returns the delay after the given failed attempt.
func (w *Worker) backoff(attempt int) time.Duration {
	return w.RetryBackoff << (attempt - 1)
}

func (w *Worker) run(ctx context.Context, task Task) (err error) {
	h, ok := w.handlers[task.Name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTask, task.Name)
	}
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
		w.metrics.TaskDuration.WithLabelValues(task.Name).Observe(time.Since(start).Seconds())
	}()
	return h(ctx, task.Args)
}

func (w *Worker) bury(ctx context.Context, raw, reason string) error {
	w.log.Warn("task moved to dead letter list", zap.String("reason", reason))
	if err := w.queue.client.LPush(ctx, w.queue.DeadKey(), raw).Err(); err != nil {
		return fmt.Errorf("bury task: %w", err)
	}
	return nil
}

// label keeps metric cardinality bounded to registered task names.
func (w *Worker) label(name string) string {
	if _, ok := w.handlers[name]; ok {
		return name
	}
	return "unknown"
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
