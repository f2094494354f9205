package db

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type WebhookLogRepo struct {
	db *gorm.DB
}

func NewWebhookLogRepo(conn *gorm.DB) *WebhookLogRepo {
	return &WebhookLogRepo{db: conn}
}

// WebhookLogUpdate carries the outcome written after processing.
type WebhookLogUpdate struct {
	StatusCode int
	PaymentID  *uuid.UUID
	Error      *string
}

func (r *WebhookLogRepo) Create(ctx context.Context, entry *WebhookLog) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *WebhookLogRepo) Update(ctx context.Context, id uint, upd WebhookLogUpdate) error {
	fields := map[string]any{"status_code": upd.StatusCode}
	if upd.PaymentID != nil {
		fields["payment_id"] = *upd.PaymentID
	}
	if upd.Error != nil {
		fields["error"] = *upd.Error
	}
	res := r.db.WithContext(ctx).Model(&WebhookLog{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *WebhookLogRepo) Get(ctx context.Context, id uint) (*WebhookLog, error) {
	var entry WebhookLog
	if err := r.db.WithContext(ctx).First(&entry, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &entry, nil
}

func (r *WebhookLogRepo) Recent(ctx context.Context, limit int) ([]WebhookLog, error) {
	var entries []WebhookLog
	err := r.db.WithContext(ctx).Order("id desc").Limit(limit).Find(&entries).Error
	return entries, err
}
