package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"remnashop/internal/db"
	"remnashop/internal/metrics"
)

// Notifier is implemented by *logger.Notifier.
type Notifier interface {
	NotifyOperator(ctx context.Context, text string)
	NotifyUser(ctx context.Context, telegramID int64, text, url string) error
}

// TaskQueue is implemented by *tasks.Queue.
type TaskQueue interface {
	Enqueue(ctx context.Context, name string, args ...string) error
}

// ProvisionedUser is the panel account backing a subscription.
type ProvisionedUser struct {
	UUID     uuid.UUID
	Status   db.SubscriptionStatus
	ExpireAt time.Time
	URL      string
}

// Provisioner manages the user's account on the VPN panel. Every failure
// is returned as an error.
type Provisioner interface {
	CreateUser(ctx context.Context, user *db.User, plan db.PlanSnapshot) (*ProvisionedUser, error)
	UpdateUser(ctx context.Context, user *db.User, sub *db.Subscription) error
	DeleteUser(ctx context.Context, sub *db.Subscription) error
}

// bestEffort runs op on a context that outlives the caller's cancellation.
// A failure is logged and counted but never returned.
func bestEffort(ctx context.Context, log *zap.Logger, m *metrics.Metrics, name string, op func(context.Context) error) bool {
	if err := op(context.WithoutCancel(ctx)); err != nil {
		if m != nil {
			m.BestEffortFailures.WithLabelValues(name).Inc()
		}
		log.Error("best-effort operation failed", zap.String("operation", name), zap.Error(err))
		return false
	}
	return true
}

// extendExpiry adds days to whichever is later: the current expiry or now.
// A lapsed subscription is extended from now, a live one is never shortened.
func extendExpiry(current, now time.Time, days int) time.Time {
	base := current
	if now.After(base) {
		base = now
	}
	return base.Add(time.Duration(days) * 24 * time.Hour)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
