package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"remnashop/internal/db"
	"remnashop/internal/gateways"
)

var (
	ErrGatewayUnavailable  = errors.New("payment gateway is unavailable")
	ErrPlanUnavailable     = errors.New("plan is unavailable")
	ErrDurationUnavailable = errors.New("plan has no such duration")
	ErrPriceUnavailable    = errors.New("plan has no price in gateway currency")
)

// GatewayFactory builds a gateway from its configuration row.
type GatewayFactory func(cfg *db.PaymentGateway) (gateways.Gateway, error)

type PaymentService struct {
	gateways *db.GatewayRepo
	plans    *db.PlanRepo
	txs      *db.TransactionRepo
	queue    TaskQueue
	factory  GatewayFactory
	log      *zap.Logger
}

func NewPaymentService(gws *db.GatewayRepo, plans *db.PlanRepo, txs *db.TransactionRepo, queue TaskQueue, factory GatewayFactory, log *zap.Logger) *PaymentService {
	return &PaymentService{gateways: gws, plans: plans, txs: txs, queue: queue, factory: factory, log: log}
}

func (s *PaymentService) ActiveGateways(ctx context.Context) ([]db.PaymentGateway, error) {
	return s.gateways.ListActive(ctx)
}

// Resolve returns the configured gateway for t. Missing and disabled rows
// both yield ErrGatewayUnavailable.
func (s *PaymentService) Resolve(ctx context.Context, t db.PaymentGatewayType) (gateways.Gateway, error) {
	cfg, err := s.gateways.GetByType(ctx, t)
	if errors.Is(err, db.ErrNotFound) {
		return nil, ErrGatewayUnavailable
	}
	if err != nil {
		return nil, err
	}
	if !cfg.IsActive {
		return nil, ErrGatewayUnavailable
	}
	return s.factory(cfg)
}

// Checkout is a created payment waiting for the user.
type Checkout struct {
	Transaction *db.Transaction
	URL         string
}

// CreatePayment prices the plan duration for the user and opens a payment
// with the gateway. A fully discounted purchase skips the gateway and is
// completed straight away.
func (s *PaymentService) CreatePayment(ctx context.Context, user *db.User, planID uint, days int, gatewayType db.PaymentGatewayType) (*Checkout, error) {
	plan, err := s.plans.Get(ctx, planID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, ErrPlanUnavailable
	}
	if err != nil {
		return nil, err
	}
	if !plan.IsActive {
		return nil, ErrPlanUnavailable
	}
	snapshot, ok := plan.Snapshot().WithDuration(days)
	if !ok {
		return nil, ErrDurationUnavailable
	}

	gw, err := s.Resolve(ctx, gatewayType)
	if err != nil {
		return nil, err
	}
	price, ok := snapshot.Durations[0].Price(gw.Currency())
	if !ok {
		return nil, ErrPriceUnavailable
	}
	amount := ApplyDiscount(price, Discount(user, days), gw.Currency())

	tx := &db.Transaction{
		UserTelegramID: user.TelegramID,
		GatewayType:    gw.Type(),
		Status:         db.TransactionPending,
		Amount:         amount,
		Currency:       gw.Currency(),
		Plan:           datatypes.NewJSONType(snapshot),
		DurationDays:   days,
	}
	log := s.log.With(zap.Int64("telegram_id", user.TelegramID), zap.String("gateway_type", string(gw.Type())))

	if amount.IsZero() {
		tx.PaymentID = uuid.New()
		if err := s.txs.Create(ctx, tx); err != nil {
			return nil, err
		}
		if err := s.queue.Enqueue(ctx, TaskProcessTransaction, tx.PaymentID.String(), string(db.TransactionCompleted)); err != nil {
			return nil, err
		}
		log.Info("free purchase", zap.String("payment_id", tx.PaymentID.String()))
		return &Checkout{Transaction: tx}, nil
	}

	details := fmt.Sprintf("%s, %d дн.", snapshot.Name, days)
	result, err := gw.CreatePayment(ctx, amount, details)
	if err != nil {
		return nil, fmt.Errorf("create %s payment: %w", gw.Type(), err)
	}
	tx.PaymentID = result.ID
	if err := s.txs.Create(ctx, tx); err != nil {
		return nil, err
	}
	log.Info("payment created", zap.String("payment_id", tx.PaymentID.String()), zap.String("amount", amount.String()))
	return &Checkout{Transaction: tx, URL: result.URL}, nil
}

// Discount is the larger of the user's personal and purchase discounts. The
// purchase discount only covers purchases up to its max days, 0 meaning any.
func Discount(user *db.User, days int) int {
	discount := user.PersonalDiscount
	if user.PurchaseDiscountMaxDays == 0 || days <= user.PurchaseDiscountMaxDays {
		discount = max(discount, user.PurchaseDiscount)
	}
	return min(max(discount, 0), 100)
}

// ApplyDiscount rounds to cents, or up to whole stars for XTR.
func ApplyDiscount(price decimal.Decimal, percent int, currency db.Currency) decimal.Decimal {
	factor := decimal.NewFromInt(int64(100 - percent)).Div(decimal.NewFromInt(100))
	amount := price.Mul(factor)
	if currency == db.CurrencyXTR {
		return amount.Ceil()
	}
	return amount.Round(2)
}
