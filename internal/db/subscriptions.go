package db

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type SubscriptionRepo struct {
	db *gorm.DB
}

func NewSubscriptionRepo(conn *gorm.DB) *SubscriptionRepo {
	return &SubscriptionRepo{db: conn}
}

// GetCurrent returns the user's most recent subscription that was not
// deleted. A subscription past its expiry is still current: it can be
// extended back to life.
func (r *SubscriptionRepo) GetCurrent(ctx context.Context, telegramID int64) (*Subscription, error) {
	var sub Subscription
	err := r.db.WithContext(ctx).
		Where("user_telegram_id = ? AND status <> ?", telegramID, SubscriptionDeleted).
		Order("id desc").
		First(&sub).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &sub, nil
}

func (r *SubscriptionRepo) Create(ctx context.Context, sub *Subscription) error {
	return r.db.WithContext(ctx).Create(sub).Error
}

func (r *SubscriptionRepo) Update(ctx context.Context, sub *Subscription) error {
	return r.db.WithContext(ctx).Save(sub).Error
}

// ListExpiring returns live subscriptions ending within the window that
// were not yet announced.
func (r *SubscriptionRepo) ListExpiring(ctx context.Context, now time.Time, within time.Duration) ([]Subscription, error) {
	var subs []Subscription
	err := r.db.WithContext(ctx).
		Where("status = ? AND notified_expiring = ? AND expire_at > ? AND expire_at <= ?",
			SubscriptionActive, false, now, now.Add(within)).
		Find(&subs).Error
	return subs, err
}

func (r *SubscriptionRepo) MarkNotified(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Model(&Subscription{}).Where("id = ?", id).Update("notified_expiring", true).Error
}

// ListOverdue returns subscriptions still marked active although expired.
func (r *SubscriptionRepo) ListOverdue(ctx context.Context, now time.Time) ([]Subscription, error) {
	var subs []Subscription
	err := r.db.WithContext(ctx).
		Where("status = ? AND expire_at < ?", SubscriptionActive, now).
		Find(&subs).Error
	return subs, err
}

func (r *SubscriptionRepo) SetStatus(ctx context.Context, id uint, status SubscriptionStatus) error {
	return r.db.WithContext(ctx).Model(&Subscription{}).Where("id = ?", id).Update("status", status).Error
}

func (r *SubscriptionRepo) CountActive(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&Subscription{}).Where("status = ?", SubscriptionActive).Count(&count).Error
	return count, err
}
