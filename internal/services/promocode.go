package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"remnashop/internal/db"
	"remnashop/internal/metrics"
)

// Notification keys returned to the bot layer.
const (
	NtfPromocodeNotFound               = "ntf-promocode-not-found"
	NtfPromocodeInactive               = "ntf-promocode-inactive"
	NtfPromocodeExpired                = "ntf-promocode-expired"
	NtfPromocodeDepleted               = "ntf-promocode-depleted"
	NtfPromocodeAlreadyActivated       = "ntf-promocode-already-activated"
	NtfPromocodeNotAvailable           = "ntf-promocode-not-available"
	NtfPromocodeNoSubscription         = "ntf-promocode-no-subscription"
	NtfPromocodeTypeNotSupported       = "ntf-promocode-type-not-supported"
	NtfPromocodeAlreadyHasSubscription = "ntf-promocode-already-has-subscription"
	NtfPromocodePlanMissing            = "ntf-promocode-plan-missing"
	NtfPromocodeActivated              = "ntf-promocode-activated"
)

// ActivationResult is the outcome of a code activation. Denials are results,
// not errors.
type ActivationResult struct {
	Success          bool
	NotificationKey  string
	NotificationArgs map[string]any
	RewardType       db.PromocodeRewardType
}

// HasSubscription reports whether the reward touched the user's subscription.
func (r ActivationResult) HasSubscription() bool {
	return r.RewardType == db.RewardSubscription || r.RewardType == db.RewardDuration
}

func deny(key string) ActivationResult {
	return ActivationResult{NotificationKey: key}
}

type PromocodeService struct {
	promos   *db.PromocodeRepo
	appliers map[db.PromocodeRewardType]RewardApplier
	log      *zap.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

func NewPromocodeService(
	promos *db.PromocodeRepo,
	users *db.UserRepo,
	subs *db.SubscriptionRepo,
	provisioner Provisioner,
	log *zap.Logger,
	m *metrics.Metrics,
) *PromocodeService {
	s := &PromocodeService{promos: promos, log: log, metrics: m, now: time.Now}
	now := func() time.Time { return s.now() }
	s.appliers = newRewardAppliers(users, subs, provisioner, now)
	return s
}

func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Activate runs the validation gates in order and grants the reward. The
// activation is claimed before the reward is applied and released again if
// the reward is not granted, so a user can never receive it twice.
func (s *PromocodeService) Activate(ctx context.Context, user *db.User, code string) (ActivationResult, error) {
	code = NormalizeCode(code)
	log := s.log.With(zap.Int64("telegram_id", user.TelegramID), zap.String("code", code))
	if code == "" {
		return deny(NtfPromocodeNotFound), nil
	}

	promo, err := s.promos.GetByCode(ctx, code)
	if errors.Is(err, db.ErrNotFound) {
		return deny(NtfPromocodeNotFound), nil
	}
	if err != nil {
		return ActivationResult{}, err
	}

	switch {
	case !promo.IsActive:
		return deny(NtfPromocodeInactive), nil
	case promo.IsExpired(s.now()):
		return deny(NtfPromocodeExpired), nil
	case promo.IsDepleted():
		return deny(NtfPromocodeDepleted), nil
	case promo.ActivatedBy(user.TelegramID):
		return deny(NtfPromocodeAlreadyActivated), nil
	case !checkAvailability(user, promo):
		return deny(NtfPromocodeNotAvailable), nil
	}

	claim, err := s.promos.ClaimActivation(ctx, promo.ID, user.TelegramID)
	if err != nil {
		return ActivationResult{}, err
	}
	switch claim {
	case db.ClaimDuplicate:
		return deny(NtfPromocodeAlreadyActivated), nil
	case db.ClaimDepleted:
		return deny(NtfPromocodeDepleted), nil
	}

	applier, ok := s.appliers[promo.RewardType]
	if !ok {
		applier = unsupportedApplier{}
	}
	outcome, err := applier.Apply(ctx, user, promo)
	if err != nil || !outcome.Granted {
		s.release(ctx, promo.ID, user.TelegramID)
	}
	if err != nil {
		log.Error("promocode reward failed", zap.String("reward_type", string(promo.RewardType)), zap.Error(err))
		return ActivationResult{}, fmt.Errorf("apply %s reward: %w", promo.RewardType, err)
	}
	if !outcome.Granted {
		log.Info("promocode reward denied", zap.String("reason", outcome.NotificationKey))
		return deny(outcome.NotificationKey), nil
	}

	log.Info("promocode activated", zap.String("reward_type", string(promo.RewardType)))
	return ActivationResult{
		Success:         true,
		NotificationKey: NtfPromocodeActivated,
		NotificationArgs: map[string]any{
			"code":        promo.Code,
			"reward_type": string(promo.RewardType),
			"reward":      promo.Reward,
		},
		RewardType: promo.RewardType,
	}, nil
}

func (s *PromocodeService) release(ctx context.Context, promocodeID uint, telegramID int64) {
	bestEffort(ctx, s.log, s.metrics, "release_promocode_activation", func(ctx context.Context) error {
		return s.promos.ReleaseActivation(ctx, promocodeID, telegramID)
	})
}

// checkAvailability fails closed: unknown availability values and an empty
// allow list deny everyone.
func checkAvailability(user *db.User, promo *db.Promocode) bool {
	switch promo.Availability {
	case db.AvailabilityAll:
		return true
	case db.AvailabilityNew:
		return !user.HasAnySubscription
	case db.AvailabilityExisting:
		return user.HasAnySubscription
	case db.AvailabilityInvited:
		return user.IsInvitedUser()
	case db.AvailabilityAllowed:
		return len(promo.AllowedTelegramIDs) > 0 && slices.Contains(promo.AllowedTelegramIDs, user.TelegramID)
	}
	return false
}

// ValidationError rejects an administrative promocode change.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

var codePattern = regexp.MustCompile(`^[A-Z0-9_-]+$`)

var rewardRanges = map[db.PromocodeRewardType][2]int{
	db.RewardPersonalDiscount: {1, 100},
	db.RewardPurchaseDiscount: {1, 100},
	db.RewardDuration:         {1, 3650},
	db.RewardTraffic:          {1, 99999},
	db.RewardDevices:          {1, 100},
}

// Validate normalizes the code and checks every field.
func (s *PromocodeService) Validate(promo *db.Promocode) error {
	promo.Code = NormalizeCode(promo.Code)
	if promo.Code == "" || len(promo.Code) > 32 || !codePattern.MatchString(promo.Code) {
		return &ValidationError{Field: "code", Reason: "use 1-32 latin letters, digits, '-' or '_'"}
	}
	if !promo.RewardType.Valid() {
		return &ValidationError{Field: "reward_type", Reason: fmt.Sprintf("unknown type %q", promo.RewardType)}
	}
	if r, ok := rewardRanges[promo.RewardType]; ok && (promo.Reward < r[0] || promo.Reward > r[1]) {
		return &ValidationError{Field: "reward", Reason: fmt.Sprintf("must be between %d and %d", r[0], r[1])}
	}
	if promo.RewardType == db.RewardSubscription {
		plan := promo.PlanSnapshot()
		if plan == nil || len(plan.Durations) == 0 {
			return &ValidationError{Field: "plan", Reason: "subscription reward needs a plan with a duration"}
		}
	}
	if !unlimitedOrPositive(promo.Lifetime) {
		return &ValidationError{Field: "lifetime", Reason: "must be -1 or positive"}
	}
	if !unlimitedOrPositive(promo.MaxActivations) {
		return &ValidationError{Field: "max_activations", Reason: "must be -1 or positive"}
	}
	switch promo.Availability {
	case db.AvailabilityAll, db.AvailabilityNew, db.AvailabilityExisting, db.AvailabilityInvited:
	case db.AvailabilityAllowed:
		if len(promo.AllowedTelegramIDs) == 0 {
			return &ValidationError{Field: "allowed_telegram_ids", Reason: "required for ALLOWED availability"}
		}
	default:
		return &ValidationError{Field: "availability", Reason: fmt.Sprintf("unknown value %q", promo.Availability)}
	}
	if d := promo.PurchaseDiscountMaxDays; d != nil && *d <= 0 {
		return &ValidationError{Field: "purchase_discount_max_days", Reason: "must be positive"}
	}
	return nil
}

func unlimitedOrPositive(v int) bool {
	return v == db.Unlimited || v > 0
}

// Create validates and stores a new promocode. An empty code is generated.
func (s *PromocodeService) Create(ctx context.Context, promo *db.Promocode) error {
	if strings.TrimSpace(promo.Code) == "" {
		code, err := GenerateCode(8)
		if err != nil {
			return err
		}
		promo.Code = code
	}
	if err := s.Validate(promo); err != nil {
		return err
	}
	if err := s.promos.Create(ctx, promo); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return &ValidationError{Field: "code", Reason: "already exists"}
		}
		return err
	}
	s.log.Info("promocode created", zap.String("code", promo.Code), zap.String("reward_type", string(promo.RewardType)))
	return nil
}

const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// GenerateCode returns a random uppercase code without look-alike characters.
func GenerateCode(length int) (string, error) {
	var b strings.Builder
	max := big.NewInt(int64(len(codeAlphabet)))
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(codeAlphabet[n.Int64()])
	}
	return b.String(), nil
}

func (s *PromocodeService) Get(ctx context.Context, id uint) (*db.Promocode, error) {
	return s.promos.Get(ctx, id)
}

func (s *PromocodeService) GetByCode(ctx context.Context, code string) (*db.Promocode, error) {
	return s.promos.GetByCode(ctx, NormalizeCode(code))
}

func (s *PromocodeService) List(ctx context.Context) ([]db.Promocode, error) {
	return s.promos.List(ctx)
}

func (s *PromocodeService) FilterByType(ctx context.Context, rewardType db.PromocodeRewardType) ([]db.Promocode, error) {
	return s.promos.FilterByType(ctx, rewardType)
}

func (s *PromocodeService) FilterActive(ctx context.Context, active bool) ([]db.Promocode, error) {
	return s.promos.FilterActive(ctx, active)
}

// ToggleActive flips is_active and returns the new value.
func (s *PromocodeService) ToggleActive(ctx context.Context, id uint) (bool, error) {
	promo, err := s.promos.Get(ctx, id)
	if err != nil {
		return false, err
	}
	active := !promo.IsActive
	if err := s.promos.Update(ctx, id, map[string]any{"is_active": active}); err != nil {
		return false, err
	}
	return active, nil
}

// SetAllowed switches the promocode to ALLOWED availability for the given users.
func (s *PromocodeService) SetAllowed(ctx context.Context, id uint, telegramIDs []int64) error {
	if len(telegramIDs) == 0 {
		return &ValidationError{Field: "allowed_telegram_ids", Reason: "required for ALLOWED availability"}
	}
	return s.promos.Update(ctx, id, map[string]any{
		"availability":         db.AvailabilityAllowed,
		"allowed_telegram_ids": datatypes.JSONSlice[int64](telegramIDs),
	})
}

// SetAvailability changes who may activate the promocode. ALLOWED is only
// accepted when the promocode already has allowed users; use SetAllowed to
// provide them.
func (s *PromocodeService) SetAvailability(ctx context.Context, id uint, availability db.PromocodeAvailability) error {
	promo, err := s.promos.Get(ctx, id)
	if err != nil {
		return err
	}
	switch availability {
	case db.AvailabilityAll, db.AvailabilityNew, db.AvailabilityExisting, db.AvailabilityInvited:
	case db.AvailabilityAllowed:
		if len(promo.AllowedTelegramIDs) == 0 {
			return &ValidationError{Field: "allowed_telegram_ids", Reason: "required for ALLOWED availability"}
		}
	default:
		return &ValidationError{Field: "availability", Reason: fmt.Sprintf("unknown value %q", availability)}
	}
	return s.promos.Update(ctx, id, map[string]any{"availability": availability})
}

// SetPurchaseDiscountMaxDays limits a PURCHASE_DISCOUNT reward to purchases
// of at most days. Nil removes the limit.
func (s *PromocodeService) SetPurchaseDiscountMaxDays(ctx context.Context, id uint, days *int) error {
	if days != nil && *days <= 0 {
		return &ValidationError{Field: "purchase_discount_max_days", Reason: "must be positive"}
	}
	promo, err := s.promos.Get(ctx, id)
	if err != nil {
		return err
	}
	if promo.RewardType != db.RewardPurchaseDiscount {
		return &ValidationError{Field: "purchase_discount_max_days", Reason: "only for PURCHASE_DISCOUNT promocodes"}
	}
	var value any
	if days != nil {
		value = *days
	}
	return s.promos.Update(ctx, id, map[string]any{"purchase_discount_max_days": value})
}

func (s *PromocodeService) Delete(ctx context.Context, id uint) (bool, error) {
	return s.promos.Delete(ctx, id)
}
