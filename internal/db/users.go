package db

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type UserRepo struct {
	db *gorm.DB
}

func NewUserRepo(conn *gorm.DB) *UserRepo {
	return &UserRepo{db: conn}
}

// GetByTelegramID loads the user and derives HasAnySubscription.
func (r *UserRepo) GetByTelegramID(ctx context.Context, telegramID int64) (*User, error) {
	var user User
	if err := r.db.WithContext(ctx).Where("telegram_id = ?", telegramID).First(&user).Error; err != nil {
		return nil, notFound(err)
	}
	var subs int64
	err := r.db.WithContext(ctx).Model(&Subscription{}).
		Where("user_telegram_id = ? AND status <> ?", telegramID, SubscriptionDeleted).
		Count(&subs).Error
	if err != nil {
		return nil, err
	}
	user.HasAnySubscription = subs > 0
	return &user, nil
}

// Register inserts the user if absent. The referrer is only recorded on
// first registration. It reports whether a new row was created.
func (r *UserRepo) Register(ctx context.Context, user *User) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "telegram_id"}}, DoNothing: true}).
		Create(user)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// UpdateFields writes only the given columns.
func (r *UserRepo) UpdateFields(ctx context.Context, telegramID int64, fields map[string]any) error {
	res := r.db.WithContext(ctx).Model(&User{}).Where("telegram_id = ?", telegramID).Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *UserRepo) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&User{}).Count(&count).Error
	return count, err
}
