package db

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Unlimited marks a promocode lifetime or activation limit without a bound.
const Unlimited = -1

type PromocodeRewardType string

const (
	RewardPersonalDiscount PromocodeRewardType = "PERSONAL_DISCOUNT"
	RewardPurchaseDiscount PromocodeRewardType = "PURCHASE_DISCOUNT"
	RewardDuration         PromocodeRewardType = "DURATION"
	RewardTraffic          PromocodeRewardType = "TRAFFIC"
	RewardDevices          PromocodeRewardType = "DEVICES"
	RewardSubscription     PromocodeRewardType = "SUBSCRIPTION"
)

// RewardTypes lists every reward type the data model accepts.
var RewardTypes = []PromocodeRewardType{
	RewardPersonalDiscount,
	RewardPurchaseDiscount,
	RewardDuration,
	RewardTraffic,
	RewardDevices,
	RewardSubscription,
}

func (t PromocodeRewardType) Valid() bool {
	for _, known := range RewardTypes {
		if t == known {
			return true
		}
	}
	return false
}

type PromocodeAvailability string

const (
	AvailabilityAll      PromocodeAvailability = "ALL"
	AvailabilityNew      PromocodeAvailability = "NEW"
	AvailabilityExisting PromocodeAvailability = "EXISTING"
	AvailabilityInvited  PromocodeAvailability = "INVITED"
	AvailabilityAllowed  PromocodeAvailability = "ALLOWED"
)

type PlanType string

const (
	PlanTraffic   PlanType = "TRAFFIC"
	PlanDevices   PlanType = "DEVICES"
	PlanBoth      PlanType = "BOTH"
	PlanUnlimited PlanType = "UNLIMITED"
)

type Currency string

const (
	CurrencyRUB Currency = "RUB"
	CurrencyUSD Currency = "USD"
	CurrencyEUR Currency = "EUR"
	CurrencyXTR Currency = "XTR"
)

type SubscriptionStatus string

const (
	SubscriptionActive   SubscriptionStatus = "ACTIVE"
	SubscriptionDisabled SubscriptionStatus = "DISABLED"
	SubscriptionLimited  SubscriptionStatus = "LIMITED"
	SubscriptionExpired  SubscriptionStatus = "EXPIRED"
	SubscriptionDeleted  SubscriptionStatus = "DELETED"
)

type TransactionStatus string

const (
	TransactionPending   TransactionStatus = "PENDING"
	TransactionCompleted TransactionStatus = "COMPLETED"
	TransactionCanceled  TransactionStatus = "CANCELED"
	TransactionRefunded  TransactionStatus = "REFUNDED"
	TransactionFailed    TransactionStatus = "FAILED"
)

// User holds the Telegram customer. HasAnySubscription is filled on load.
type User struct {
	ID                      uint  `gorm:"primaryKey"`
	TelegramID              int64 `gorm:"uniqueIndex;not null"`
	Name                    string
	Language                string
	ReferrerTelegramID      *int64
	PersonalDiscount        int `gorm:"not null"`
	PurchaseDiscount        int `gorm:"not null"`
	PurchaseDiscountMaxDays int `gorm:"not null"`
	IsBlocked               bool
	CreatedAt               time.Time
	UpdatedAt               time.Time

	HasAnySubscription bool `gorm:"-"`
}

func (u *User) IsInvitedUser() bool {
	return u.ReferrerTelegramID != nil
}

type PlanPrice struct {
	Currency Currency        `json:"currency"`
	Price    decimal.Decimal `json:"price"`
}

type PlanDuration struct {
	Days   int         `json:"days"`
	Prices []PlanPrice `json:"prices"`
}

func (d PlanDuration) Price(currency Currency) (decimal.Decimal, bool) {
	for _, p := range d.Prices {
		if p.Currency == currency {
			return p.Price, true
		}
	}
	return decimal.Zero, false
}

// PlanSnapshot is an immutable copy of a Plan taken at the moment it was
// attached to a promocode, transaction or subscription.
type PlanSnapshot struct {
	ID                   uint           `json:"id"`
	Name                 string         `json:"name"`
	Type                 PlanType       `json:"type"`
	TrafficLimit         int            `json:"traffic_limit"`
	DeviceLimit          int            `json:"device_limit"`
	TrafficLimitStrategy string         `json:"traffic_limit_strategy"`
	Tag                  string         `json:"tag,omitempty"`
	InternalSquads       []string       `json:"internal_squads,omitempty"`
	ExternalSquad        string         `json:"external_squad,omitempty"`
	Durations            []PlanDuration `json:"durations"`
}

func (p PlanSnapshot) Duration(days int) (PlanDuration, bool) {
	for _, d := range p.Durations {
		if d.Days == days {
			return d, true
		}
	}
	return PlanDuration{}, false
}

// GrantDays is the period a new subscription gets from this snapshot: its
// first duration, or 0 for an open-ended one.
func (p PlanSnapshot) GrantDays() int {
	if len(p.Durations) == 0 {
		return 0
	}
	return p.Durations[0].Days
}

// WithDuration narrows the snapshot to the single duration that was bought.
func (p PlanSnapshot) WithDuration(days int) (PlanSnapshot, bool) {
	d, ok := p.Duration(days)
	if !ok {
		return PlanSnapshot{}, false
	}
	out := p.clone()
	out.Durations = []PlanDuration{d.clone()}
	return out, true
}

func (p PlanSnapshot) clone() PlanSnapshot {
	out := p
	out.InternalSquads = append([]string(nil), p.InternalSquads...)
	out.Durations = make([]PlanDuration, 0, len(p.Durations))
	for _, d := range p.Durations {
		out.Durations = append(out.Durations, d.clone())
	}
	return out
}

func (d PlanDuration) clone() PlanDuration {
	return PlanDuration{Days: d.Days, Prices: append([]PlanPrice(nil), d.Prices...)}
}

// Plan is the live, editable product.
type Plan struct {
	ID                   uint     `gorm:"primaryKey"`
	Name                 string   `gorm:"not null"`
	Type                 PlanType `gorm:"not null"`
	IsActive             bool
	TrafficLimit         int
	DeviceLimit          int
	TrafficLimitStrategy string
	Tag                  string
	InternalSquads       datatypes.JSONSlice[string]
	ExternalSquad        string
	Durations            datatypes.JSONSlice[PlanDuration]
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

func (p Plan) Snapshot() PlanSnapshot {
	return PlanSnapshot{
		ID:                   p.ID,
		Name:                 p.Name,
		Type:                 p.Type,
		TrafficLimit:         p.TrafficLimit,
		DeviceLimit:          p.DeviceLimit,
		TrafficLimitStrategy: p.TrafficLimitStrategy,
		Tag:                  p.Tag,
		InternalSquads:       []string(p.InternalSquads),
		ExternalSquad:        p.ExternalSquad,
		Durations:            []PlanDuration(p.Durations),
	}.clone()
}

type Promocode struct {
	ID                      uint                  `gorm:"primaryKey"`
	Code                    string                `gorm:"uniqueIndex;not null"`
	RewardType              PromocodeRewardType   `gorm:"not null"`
	Reward                  int                   `gorm:"not null"`
	Availability            PromocodeAvailability `gorm:"not null"`
	AllowedTelegramIDs      datatypes.JSONSlice[int64]
	Lifetime                int `gorm:"not null"`
	MaxActivations          int `gorm:"not null"`
	PurchaseDiscountMaxDays *int
	IsActive                bool
	Plan                    datatypes.JSONType[*PlanSnapshot]
	Activations             []PromocodeActivation `gorm:"constraint:OnDelete:CASCADE"`
	CreatedAt               time.Time
	UpdatedAt               time.Time
}

func (p *Promocode) PlanSnapshot() *PlanSnapshot {
	return p.Plan.Data()
}

func (p *Promocode) IsExpired(now time.Time) bool {
	if p.Lifetime == Unlimited {
		return false
	}
	return now.After(p.CreatedAt.Add(time.Duration(p.Lifetime) * 24 * time.Hour))
}

func (p *Promocode) IsDepleted() bool {
	if p.MaxActivations == Unlimited {
		return false
	}
	return len(p.Activations) >= p.MaxActivations
}

func (p *Promocode) ActivatedBy(telegramID int64) bool {
	for _, a := range p.Activations {
		if a.UserTelegramID == telegramID {
			return true
		}
	}
	return false
}

// PromocodeActivation is unique per (promocode, user).
type PromocodeActivation struct {
	ID             uint  `gorm:"primaryKey"`
	PromocodeID    uint  `gorm:"not null;uniqueIndex:idx_promocode_activation_user"`
	UserTelegramID int64 `gorm:"not null;uniqueIndex:idx_promocode_activation_user"`
	CreatedAt      time.Time

	User *User `gorm:"foreignKey:UserTelegramID;references:TelegramID;constraint:OnDelete:CASCADE"`
}

type Subscription struct {
	ID                   uint               `gorm:"primaryKey"`
	UserTelegramID       int64              `gorm:"not null;index"`
	UserRemnaID          uuid.UUID          `gorm:"type:uuid;not null"`
	Status               SubscriptionStatus `gorm:"not null"`
	ExpireAt             time.Time          `gorm:"not null"`
	TrafficLimit         int
	DeviceLimit          int
	TrafficLimitStrategy string
	Tag                  string
	InternalSquads       datatypes.JSONSlice[string]
	ExternalSquad        string
	URL                  string
	Plan                 datatypes.JSONType[PlanSnapshot]
	NotifiedExpiring     bool
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

func (s *Subscription) IsExpired(now time.Time) bool {
	return now.After(s.ExpireAt)
}

// WebhookLog is written before a payment webhook is processed and updated
// once its outcome is known.
type WebhookLog struct {
	ID          uint   `gorm:"primaryKey"`
	GatewayType string `gorm:"not null"`
	Payload     datatypes.JSON
	PaymentID   *uuid.UUID `gorm:"type:uuid"`
	StatusCode  int        `gorm:"not null"`
	Error       *string
	CreatedAt   time.Time `gorm:"index"`
}

type Transaction struct {
	ID             uint               `gorm:"primaryKey"`
	PaymentID      uuid.UUID          `gorm:"type:uuid;uniqueIndex;not null"`
	UserTelegramID int64              `gorm:"not null;index"`
	GatewayType    PaymentGatewayType `gorm:"not null"`
	Status         TransactionStatus  `gorm:"not null"`
	Amount         decimal.Decimal    `gorm:"type:numeric(12,2);not null"`
	Currency       Currency           `gorm:"not null"`
	Plan           datatypes.JSONType[PlanSnapshot]
	DurationDays   int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type PaymentGateway struct {
	ID        uint               `gorm:"primaryKey"`
	Type      PaymentGatewayType `gorm:"uniqueIndex;not null"`
	Currency  Currency           `gorm:"not null"`
	IsActive  bool
	Settings  datatypes.JSONType[GatewaySettings]
	CreatedAt time.Time
	UpdatedAt time.Time
}
