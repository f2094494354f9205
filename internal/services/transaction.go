package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"remnashop/internal/db"
	"remnashop/internal/metrics"
)

// TaskProcessTransaction is queued by the webhook pipeline with the payment
// id and the status reported by the gateway.
const TaskProcessTransaction = "process_transaction"

var ErrMalformedTask = errors.New("malformed task arguments")

// TransactionService applies gateway status changes to transactions and
// provisions what was bought. Every call is idempotent per payment id.
type TransactionService struct {
	txs         *db.TransactionRepo
	users       *db.UserRepo
	subs        *db.SubscriptionRepo
	provisioner Provisioner
	notifier    Notifier
	log         *zap.Logger
	metrics     *metrics.Metrics
	now         func() time.Time
}

func NewTransactionService(
	txs *db.TransactionRepo,
	users *db.UserRepo,
	subs *db.SubscriptionRepo,
	provisioner Provisioner,
	notifier Notifier,
	log *zap.Logger,
	m *metrics.Metrics,
) *TransactionService {
	return &TransactionService{
		txs:         txs,
		users:       users,
		subs:        subs,
		provisioner: provisioner,
		notifier:    notifier,
		log:         log,
		metrics:     m,
		now:         time.Now,
	}
}

// HandleTask is the queue handler for TaskProcessTransaction.
func (s *TransactionService) HandleTask(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("%w: got %d", ErrMalformedTask, len(args))
	}
	paymentID, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedTask, err)
	}
	return s.Process(ctx, paymentID, db.TransactionStatus(args[1]))
}

// Process moves the transaction to status. A completed payment is claimed
// by its status change first and handed back to pending if the purchase
// could not be provisioned, so a retry picks it up again.
func (s *TransactionService) Process(ctx context.Context, paymentID uuid.UUID, status db.TransactionStatus) error {
	log := s.log.With(zap.String("payment_id", paymentID.String()), zap.String("status", string(status)))
	tx, err := s.txs.GetByPaymentID(ctx, paymentID)
	if err != nil {
		return fmt.Errorf("load transaction %s: %w", paymentID, err)
	}
	if !tx.Status.CanTransition(status) {
		log.Info("transaction status unchanged", zap.String("current", string(tx.Status)))
		return nil
	}

	moved, err := s.txs.Transition(ctx, paymentID, tx.Status, status)
	if err != nil {
		return err
	}
	if !moved {
		log.Info("transaction changed concurrently")
		return nil
	}

	switch status {
	case db.TransactionCompleted:
		if err := s.purchase(ctx, tx); err != nil {
			bestEffort(ctx, s.log, s.metrics, "revert_transaction", func(ctx context.Context) error {
				_, err := s.txs.Transition(ctx, paymentID, status, tx.Status)
				return err
			})
			return fmt.Errorf("provision payment %s: %w", paymentID, err)
		}
		log.Info("payment completed", zap.Int64("telegram_id", tx.UserTelegramID))
	case db.TransactionRefunded:
		log.Warn("payment refunded", zap.Int64("telegram_id", tx.UserTelegramID))
		s.notifier.NotifyOperator(ctx, fmt.Sprintf("Возврат платежа %s пользователя %d (%s %s)",
			paymentID, tx.UserTelegramID, tx.Amount.String(), tx.Currency))
	default:
		log.Info("transaction closed")
	}
	return nil
}

func (s *TransactionService) purchase(ctx context.Context, tx *db.Transaction) error {
	user, err := s.users.GetByTelegramID(ctx, tx.UserTelegramID)
	if err != nil {
		return fmt.Errorf("load user %d: %w", tx.UserTelegramID, err)
	}
	plan := tx.Plan.Data()

	current, err := s.subs.GetCurrent(ctx, user.TelegramID)
	var sub *db.Subscription
	switch {
	case errors.Is(err, db.ErrNotFound):
		remna, err := s.provisioner.CreateUser(ctx, user, plan)
		if err != nil {
			return err
		}
		sub = newSubscription(user.TelegramID, remna, plan)
		if err := s.subs.Create(ctx, sub); err != nil {
			return err
		}
	case err != nil:
		return err
	default:
		sub = renewSubscription(current, plan, s.now(), tx.DurationDays)
		if err := s.provisioner.UpdateUser(ctx, user, sub); err != nil {
			return err
		}
		if err := s.subs.Update(ctx, sub); err != nil {
			return err
		}
	}

	if user.PurchaseDiscount > 0 {
		bestEffort(ctx, s.log, s.metrics, "reset_purchase_discount", func(ctx context.Context) error {
			return s.users.UpdateFields(ctx, user.TelegramID, map[string]any{
				"purchase_discount":          0,
				"purchase_discount_max_days": 0,
			})
		})
	}
	bestEffort(ctx, s.log, s.metrics, "notify_purchase", func(ctx context.Context) error {
		text := fmt.Sprintf("Оплата получена! Подписка «%s» активна до %s.", plan.Name, sub.ExpireAt.Format("02.01.2006"))
		return s.notifier.NotifyUser(ctx, user.TelegramID, text, sub.URL)
	})
	return nil
}

// renewSubscription extends the current subscription by the bought days and
// moves it onto the limits of the bought plan.
func renewSubscription(current *db.Subscription, plan db.PlanSnapshot, now time.Time, days int) *db.Subscription {
	renewed := *newSubscription(current.UserTelegramID, &ProvisionedUser{
		UUID: current.UserRemnaID,
		URL:  current.URL,
	}, plan)
	renewed.ID = current.ID
	renewed.CreatedAt = current.CreatedAt
	renewed.Status = db.SubscriptionActive
	renewed.ExpireAt = extendExpiry(current.ExpireAt, now, days)
	return &renewed
}
