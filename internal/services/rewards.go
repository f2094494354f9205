package services

import (
	"context"
	"errors"
	"time"

	"gorm.io/datatypes"

	"remnashop/internal/db"
)

// RewardOutcome tells the activation engine whether the reward was granted.
// A denied outcome carries the notification key shown to the user.
type RewardOutcome struct {
	Granted         bool
	NotificationKey string
}

func granted() RewardOutcome { return RewardOutcome{Granted: true} }

func denied(key string) RewardOutcome { return RewardOutcome{NotificationKey: key} }

// RewardApplier grants one reward type. Collaborator failures are returned
// as errors, expected denials as outcomes.
type RewardApplier interface {
	Apply(ctx context.Context, user *db.User, promo *db.Promocode) (RewardOutcome, error)
}

// newRewardAppliers returns an applier for every reward type the data model knows.
func newRewardAppliers(users *db.UserRepo, subs *db.SubscriptionRepo, provisioner Provisioner, now func() time.Time) map[db.PromocodeRewardType]RewardApplier {
	return map[db.PromocodeRewardType]RewardApplier{
		db.RewardPersonalDiscount: personalDiscountApplier{users: users},
		db.RewardPurchaseDiscount: purchaseDiscountApplier{users: users},
		db.RewardDuration:         durationApplier{subs: subs, provisioner: provisioner, now: now},
		db.RewardSubscription:     subscriptionApplier{subs: subs, provisioner: provisioner},
		db.RewardTraffic:          unsupportedApplier{},
		db.RewardDevices:          unsupportedApplier{},
	}
}

type personalDiscountApplier struct {
	users *db.UserRepo
}

func (a personalDiscountApplier) Apply(ctx context.Context, user *db.User, promo *db.Promocode) (RewardOutcome, error) {
	if err := a.users.UpdateFields(ctx, user.TelegramID, map[string]any{"personal_discount": promo.Reward}); err != nil {
		return RewardOutcome{}, err
	}
	user.PersonalDiscount = promo.Reward
	return granted(), nil
}

type purchaseDiscountApplier struct {
	users *db.UserRepo
}

func (a purchaseDiscountApplier) Apply(ctx context.Context, user *db.User, promo *db.Promocode) (RewardOutcome, error) {
	maxDays := 0
	if promo.PurchaseDiscountMaxDays != nil {
		maxDays = *promo.PurchaseDiscountMaxDays
	}
	err := a.users.UpdateFields(ctx, user.TelegramID, map[string]any{
		"purchase_discount":          promo.Reward,
		"purchase_discount_max_days": maxDays,
	})
	if err != nil {
		return RewardOutcome{}, err
	}
	user.PurchaseDiscount = promo.Reward
	user.PurchaseDiscountMaxDays = maxDays
	return granted(), nil
}

type durationApplier struct {
	subs        *db.SubscriptionRepo
	provisioner Provisioner
	now         func() time.Time
}

func (a durationApplier) Apply(ctx context.Context, user *db.User, promo *db.Promocode) (RewardOutcome, error) {
	current, err := a.subs.GetCurrent(ctx, user.TelegramID)
	if errors.Is(err, db.ErrNotFound) {
		return denied(NtfPromocodeNoSubscription), nil
	}
	if err != nil {
		return RewardOutcome{}, err
	}

	extended := *current
	extended.ExpireAt = extendExpiry(current.ExpireAt, a.now(), promo.Reward)
	if extended.Status == db.SubscriptionExpired {
		extended.Status = db.SubscriptionActive
	}
	extended.NotifiedExpiring = false

	if err := a.provisioner.UpdateUser(ctx, user, &extended); err != nil {
		return RewardOutcome{}, err
	}
	if err := a.subs.Update(ctx, &extended); err != nil {
		return RewardOutcome{}, err
	}
	*current = extended
	return granted(), nil
}

type subscriptionApplier struct {
	subs        *db.SubscriptionRepo
	provisioner Provisioner
}

// Apply grants a new subscription only to users without one. A lapsed
// subscription still counts and can be revived with a DURATION code.
func (a subscriptionApplier) Apply(ctx context.Context, user *db.User, promo *db.Promocode) (RewardOutcome, error) {
	plan := promo.PlanSnapshot()
	if plan == nil {
		return denied(NtfPromocodePlanMissing), nil
	}

	_, err := a.subs.GetCurrent(ctx, user.TelegramID)
	switch {
	case err == nil:
		return denied(NtfPromocodeAlreadyHasSubscription), nil
	case !errors.Is(err, db.ErrNotFound):
		return RewardOutcome{}, err
	}

	remna, err := a.provisioner.CreateUser(ctx, user, *plan)
	if err != nil {
		return RewardOutcome{}, err
	}
	sub := newSubscription(user.TelegramID, remna, *plan)
	if err := a.subs.Create(ctx, sub); err != nil {
		return RewardOutcome{}, err
	}
	user.HasAnySubscription = true
	return granted(), nil
}

func newSubscription(telegramID int64, remna *ProvisionedUser, plan db.PlanSnapshot) *db.Subscription {
	return &db.Subscription{
		UserTelegramID:       telegramID,
		UserRemnaID:          remna.UUID,
		Status:               remna.Status,
		ExpireAt:             remna.ExpireAt,
		TrafficLimit:         plan.TrafficLimit,
		DeviceLimit:          plan.DeviceLimit,
		TrafficLimitStrategy: plan.TrafficLimitStrategy,
		Tag:                  plan.Tag,
		InternalSquads:       datatypes.JSONSlice[string](plan.InternalSquads),
		ExternalSquad:        plan.ExternalSquad,
		URL:                  remna.URL,
		Plan:                 datatypes.NewJSONType(plan),
	}
}

// unsupportedApplier covers reward types that can be configured but are
// never granted.
type unsupportedApplier struct{}

func (unsupportedApplier) Apply(context.Context, *db.User, *db.Promocode) (RewardOutcome, error) {
	return denied(NtfPromocodeTypeNotSupported), nil
}
