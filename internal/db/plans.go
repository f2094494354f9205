package db

import (
	"context"

	"gorm.io/gorm"
)

type PlanRepo struct {
	db *gorm.DB
}

func NewPlanRepo(conn *gorm.DB) *PlanRepo {
	return &PlanRepo{db: conn}
}

func (r *PlanRepo) Create(ctx context.Context, plan *Plan) error {
	return r.db.WithContext(ctx).Create(plan).Error
}

func (r *PlanRepo) Get(ctx context.Context, id uint) (*Plan, error) {
	var plan Plan
	if err := r.db.WithContext(ctx).First(&plan, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &plan, nil
}

func (r *PlanRepo) Update(ctx context.Context, plan *Plan) error {
	return r.db.WithContext(ctx).Save(plan).Error
}

func (r *PlanRepo) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Delete(&Plan{}, id).Error
}

func (r *PlanRepo) ListActive(ctx context.Context) ([]Plan, error) {
	var plans []Plan
	err := r.db.WithContext(ctx).Where("is_active = ?", true).Order("id").Find(&plans).Error
	return plans, err
}
