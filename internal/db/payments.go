package db

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// IsFinal reports whether no further status change is expected. A completed
// transaction may still be refunded.
func (s TransactionStatus) IsFinal() bool {
	switch s {
	case TransactionCanceled, TransactionRefunded, TransactionFailed:
		return true
	}
	return false
}

// CanTransition guards transaction state changes: nothing moves back to
// pending and a completed payment only ever becomes refunded.
func (s TransactionStatus) CanTransition(to TransactionStatus) bool {
	if s == to || s.IsFinal() || to == TransactionPending {
		return false
	}
	if s == TransactionCompleted {
		return to == TransactionRefunded
	}
	return true
}

type TransactionRepo struct {
	db *gorm.DB
}

func NewTransactionRepo(conn *gorm.DB) *TransactionRepo {
	return &TransactionRepo{db: conn}
}

func (r *TransactionRepo) Create(ctx context.Context, tx *Transaction) error {
	return r.db.WithContext(ctx).Create(tx).Error
}

func (r *TransactionRepo) GetByPaymentID(ctx context.Context, paymentID uuid.UUID) (*Transaction, error) {
	var tx Transaction
	if err := r.db.WithContext(ctx).Where("payment_id = ?", paymentID).First(&tx).Error; err != nil {
		return nil, notFound(err)
	}
	return &tx, nil
}

// Transition moves the transaction from one status to another and reports
// whether this call performed the change.
func (r *TransactionRepo) Transition(ctx context.Context, paymentID uuid.UUID, from, to TransactionStatus) (bool, error) {
	res := r.db.WithContext(ctx).Model(&Transaction{}).
		Where("payment_id = ? AND status = ?", paymentID, from).
		Update("status", to)
	return res.RowsAffected == 1, res.Error
}

func (r *TransactionRepo) CountCompleted(ctx context.Context, since time.Time) ([]CurrencyTotal, error) {
	var totals []CurrencyTotal
	err := r.db.WithContext(ctx).Model(&Transaction{}).
		Select("currency, count(*) as count").
		Where("status = ? AND created_at >= ?", TransactionCompleted, since).
		Group("currency").
		Scan(&totals).Error
	return totals, err
}

type CurrencyTotal struct {
	Currency Currency
	Count    int64
}

type GatewayRepo struct {
	db *gorm.DB
}

func NewGatewayRepo(conn *gorm.DB) *GatewayRepo {
	return &GatewayRepo{db: conn}
}

// Seed makes sure every known gateway type has a row; new rows start inactive.
func (r *GatewayRepo) Seed(ctx context.Context) error {
	for _, t := range GatewayTypes {
		gw := PaymentGateway{
			Type:     t,
			Currency: t.DefaultCurrency(),
			Settings: datatypes.NewJSONType(DefaultSettings(t)),
		}
		err := r.db.WithContext(ctx).Where(PaymentGateway{Type: t}).FirstOrCreate(&gw).Error
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *GatewayRepo) GetByType(ctx context.Context, t PaymentGatewayType) (*PaymentGateway, error) {
	var gw PaymentGateway
	if err := r.db.WithContext(ctx).Where("type = ?", t).First(&gw).Error; err != nil {
		return nil, notFound(err)
	}
	return &gw, nil
}

func (r *GatewayRepo) List(ctx context.Context) ([]PaymentGateway, error) {
	var gws []PaymentGateway
	err := r.db.WithContext(ctx).Order("id").Find(&gws).Error
	return gws, err
}

func (r *GatewayRepo) ListActive(ctx context.Context) ([]PaymentGateway, error) {
	var gws []PaymentGateway
	err := r.db.WithContext(ctx).Where("is_active = ?", true).Order("id").Find(&gws).Error
	return gws, err
}

func (r *GatewayRepo) SetActive(ctx context.Context, t PaymentGatewayType, active bool) error {
	res := r.db.WithContext(ctx).Model(&PaymentGateway{}).Where("type = ?", t).Update("is_active", active)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *GatewayRepo) UpdateSettings(ctx context.Context, t PaymentGatewayType, settings GatewaySettings) error {
	return r.db.WithContext(ctx).Model(&PaymentGateway{}).Where("type = ?", t).
		Update("settings", datatypes.NewJSONType(settings)).Error
}
