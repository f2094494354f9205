package services

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"remnashop/internal/db"
	"remnashop/internal/metrics"
)

// ExpiringWindow is how long before expiry users are reminded.
const ExpiringWindow = 72 * time.Hour

// Jobs are the periodic maintenance runs.
type Jobs struct {
	subs     *db.SubscriptionRepo
	notifier Notifier
	log      *zap.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

func NewJobs(subs *db.SubscriptionRepo, notifier Notifier, log *zap.Logger, m *metrics.Metrics) *Jobs {
	return &Jobs{
		subs:     subs,
		notifier: notifier,
		log:      log,
		metrics:  m,
		now:      time.Now,
	}
}

// NotifyExpiring reminds users whose subscription ends within ExpiringWindow.
// Each subscription is announced once per expiry; extending it resets the flag.
func (j *Jobs) NotifyExpiring(ctx context.Context) error {
	subs, err := j.subs.ListExpiring(ctx, j.now(), ExpiringWindow)
	if err != nil {
		return err
	}
	for _, sub := range subs {
		text := fmt.Sprintf("Ваша подписка истекает %s. Продлить: /buy", sub.ExpireAt.Format("02.01.2006 15:04"))
		if err := j.notifier.NotifyUser(ctx, sub.UserTelegramID, text, ""); err != nil {
			j.log.Warn("expiry reminder failed", zap.Int64("telegram_id", sub.UserTelegramID), zap.Error(err))
			continue
		}
		if err := j.subs.MarkNotified(ctx, sub.ID); err != nil {
			return err
		}
	}
	if len(subs) > 0 {
		j.log.Info("expiry reminders sent", zap.Int("count", len(subs)))
	}
	return nil
}

// ExpireOverdue marks lapsed subscriptions expired and tells their owners.
func (j *Jobs) ExpireOverdue(ctx context.Context) error {
	subs, err := j.subs.ListOverdue(ctx, j.now())
	if err != nil {
		return err
	}
	for _, sub := range subs {
		if err := j.subs.SetStatus(ctx, sub.ID, db.SubscriptionExpired); err != nil {
			return err
		}
		bestEffort(ctx, j.log, j.metrics, "notify_expired", func(ctx context.Context) error {
			return j.notifier.NotifyUser(ctx, sub.UserTelegramID, "Ваша подписка завершена, для продления воспользуйтесь /buy", "")
		})
	}
	if len(subs) > 0 {
		j.log.Info("subscriptions expired", zap.Int("count", len(subs)))
	}
	return nil
}

type jobEntry struct {
	spec string
	name string
	run  func(context.Context) error
}

func (j *Jobs) entries() []jobEntry {
	return []jobEntry{
		{"30 3 * * *", "expire_overdue", j.ExpireOverdue},
		{"0 10 * * *", "notify_expiring", j.NotifyExpiring},
	}
}

// Schedule registers the jobs on c. Each run gets its own timeout.
func (j *Jobs) Schedule(ctx context.Context, c *cron.Cron) error {
	for _, e := range j.entries() {
		e := e
		_, err := c.AddFunc(e.spec, func() {
			j.run(ctx, e.name, e.run)
		})
		if err != nil {
			return fmt.Errorf("schedule %s: %w", e.name, err)
		}
	}
	return nil
}

func (j *Jobs) run(ctx context.Context, name string, job func(context.Context) error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Minute)
	defer cancel()
	start := time.Now()
	err := job(ctx)
	j.metrics.TaskDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	if err != nil {
		j.metrics.TaskErrors.WithLabelValues(name).Inc()
		j.log.Error("scheduled job failed", zap.String("job", name), zap.Error(err))
		j.notifier.NotifyOperator(context.WithoutCancel(ctx), fmt.Sprintf("Ошибка задачи %s: %v", name, err))
	}
}
