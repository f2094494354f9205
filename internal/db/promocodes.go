package db

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ClaimResult int

const (
	ClaimGranted ClaimResult = iota
	ClaimDepleted
	ClaimDuplicate
)

var (
	errClaimDepleted  = errors.New("promocode depleted")
	errClaimDuplicate = errors.New("promocode already activated")
)

type PromocodeRepo struct {
	db *gorm.DB
}

func NewPromocodeRepo(conn *gorm.DB) *PromocodeRepo {
	return &PromocodeRepo{db: conn}
}

func (r *PromocodeRepo) Create(ctx context.Context, promo *Promocode) error {
	return r.db.WithContext(ctx).Omit("Activations").Create(promo).Error
}

func (r *PromocodeRepo) Get(ctx context.Context, id uint) (*Promocode, error) {
	var promo Promocode
	if err := r.withActivations(ctx).First(&promo, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &promo, nil
}

// GetByCode expects an already normalized code.
func (r *PromocodeRepo) GetByCode(ctx context.Context, code string) (*Promocode, error) {
	var promo Promocode
	if err := r.withActivations(ctx).Where("code = ?", code).First(&promo).Error; err != nil {
		return nil, notFound(err)
	}
	return &promo, nil
}

func (r *PromocodeRepo) List(ctx context.Context) ([]Promocode, error) {
	var promos []Promocode
	err := r.withActivations(ctx).Order("id").Find(&promos).Error
	return promos, err
}

func (r *PromocodeRepo) FilterByType(ctx context.Context, rewardType PromocodeRewardType) ([]Promocode, error) {
	var promos []Promocode
	err := r.withActivations(ctx).Where("reward_type = ?", rewardType).Order("id").Find(&promos).Error
	return promos, err
}

func (r *PromocodeRepo) FilterActive(ctx context.Context, active bool) ([]Promocode, error) {
	var promos []Promocode
	err := r.withActivations(ctx).Where("is_active = ?", active).Order("id").Find(&promos).Error
	return promos, err
}

func (r *PromocodeRepo) Update(ctx context.Context, id uint, fields map[string]any) error {
	res := r.db.WithContext(ctx).Model(&Promocode{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes the promocode with its activations and reports whether it existed.
func (r *PromocodeRepo) Delete(ctx context.Context, id uint) (bool, error) {
	var deleted bool
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("promocode_id = ?", id).Delete(&PromocodeActivation{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&Promocode{}, id)
		deleted = res.RowsAffected > 0
		return res.Error
	})
	return deleted, err
}

// ClaimActivation records an activation for the user if the promocode still
// has room and the user has not activated it yet. On postgres the promocode
// row is locked so concurrent claims serialize on it; the unique index on
// (promocode_id, user_telegram_id) backs the duplicate check everywhere.
func (r *PromocodeRepo) ClaimActivation(ctx context.Context, promocodeID uint, telegramID int64) (ClaimResult, error) {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.Model(&Promocode{})
		if isPostgres(tx) {
			q = q.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		var promo Promocode
		if err := q.First(&promo, promocodeID).Error; err != nil {
			return notFound(err)
		}

		var existing int64
		err := tx.Model(&PromocodeActivation{}).
			Where("promocode_id = ? AND user_telegram_id = ?", promocodeID, telegramID).
			Count(&existing).Error
		if err != nil {
			return err
		}
		if existing > 0 {
			return errClaimDuplicate
		}

		if promo.MaxActivations != Unlimited {
			var used int64
			if err := tx.Model(&PromocodeActivation{}).Where("promocode_id = ?", promocodeID).Count(&used).Error; err != nil {
				return err
			}
			if used >= int64(promo.MaxActivations) {
				return errClaimDepleted
			}
		}

		activation := PromocodeActivation{PromocodeID: promocodeID, UserTelegramID: telegramID}
		if err := tx.Create(&activation).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return errClaimDuplicate
			}
			return err
		}
		return nil
	})

	switch {
	case err == nil:
		return ClaimGranted, nil
	case errors.Is(err, errClaimDuplicate):
		return ClaimDuplicate, nil
	case errors.Is(err, errClaimDepleted):
		return ClaimDepleted, nil
	}
	return ClaimGranted, err
}

// ReleaseActivation drops a claim whose reward was never granted.
func (r *PromocodeRepo) ReleaseActivation(ctx context.Context, promocodeID uint, telegramID int64) error {
	return r.db.WithContext(ctx).
		Where("promocode_id = ? AND user_telegram_id = ?", promocodeID, telegramID).
		Delete(&PromocodeActivation{}).Error
}

func (r *PromocodeRepo) withActivations(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Preload("Activations", func(tx *gorm.DB) *gorm.DB {
		return tx.Order("id")
	})
}
