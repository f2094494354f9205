package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"remnashop/internal/db"
	"remnashop/internal/db/dbtest"
	"remnashop/internal/metrics"
)

type fakeProvisioner struct {
	created []db.PlanSnapshot
	updated []db.Subscription
	deleted []uuid.UUID
	err     error
}

func (f *fakeProvisioner) CreateUser(_ context.Context, _ *db.User, plan db.PlanSnapshot) (*ProvisionedUser, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.created = append(f.created, plan)
	return &ProvisionedUser{
		UUID:     uuid.New(),
		Status:   db.SubscriptionActive,
		ExpireAt: time.Now().Add(time.Duration(plan.GrantDays()) * 24 * time.Hour),
		URL:      "https://panel.example/sub/abc",
	}, nil
}

func (f *fakeProvisioner) UpdateUser(_ context.Context, _ *db.User, sub *db.Subscription) error {
	if f.err != nil {
		return f.err
	}
	f.updated = append(f.updated, *sub)
	return nil
}

func (f *fakeProvisioner) DeleteUser(_ context.Context, sub *db.Subscription) error {
	if f.err != nil {
		return f.err
	}
	f.deleted = append(f.deleted, sub.UserRemnaID)
	return nil
}

type promoEnv struct {
	svc    *PromocodeService
	users  *db.UserRepo
	subs   *db.SubscriptionRepo
	promos *db.PromocodeRepo
	prov   *fakeProvisioner
	conn   *gorm.DB
}

func newPromoEnv(t *testing.T) *promoEnv {
	t.Helper()
	conn := dbtest.Open(t)
	env := &promoEnv{
		users:  db.NewUserRepo(conn),
		subs:   db.NewSubscriptionRepo(conn),
		promos: db.NewPromocodeRepo(conn),
		prov:   &fakeProvisioner{},
		conn:   conn,
	}
	env.svc = NewPromocodeService(env.promos, env.users, env.subs, env.prov, zap.NewNop(), metrics.New(nil))
	return env
}

func (e *promoEnv) user(t *testing.T, telegramID int64) *db.User {
	t.Helper()
	ctx := context.Background()
	if _, err := e.users.Register(ctx, &db.User{TelegramID: telegramID, Name: fmt.Sprint(telegramID)}); err != nil {
		t.Fatalf("register %d: %v", telegramID, err)
	}
	u, err := e.users.GetByTelegramID(ctx, telegramID)
	if err != nil {
		t.Fatalf("load %d: %v", telegramID, err)
	}
	return u
}

func (e *promoEnv) promo(t *testing.T, p db.Promocode) *db.Promocode {
	t.Helper()
	if p.Availability == "" {
		p.Availability = db.AvailabilityAll
	}
	if p.Lifetime == 0 {
		p.Lifetime = db.Unlimited
	}
	if p.MaxActivations == 0 {
		p.MaxActivations = db.Unlimited
	}
	if err := e.promos.Create(context.Background(), &p); err != nil {
		t.Fatalf("create promocode: %v", err)
	}
	return &p
}

func (e *promoEnv) subscription(t *testing.T, telegramID int64, expireAt time.Time) *db.Subscription {
	t.Helper()
	sub := &db.Subscription{
		UserTelegramID: telegramID,
		UserRemnaID:    uuid.New(),
		Status:         db.SubscriptionActive,
		ExpireAt:       expireAt,
	}
	if err := e.subs.Create(context.Background(), sub); err != nil {
		t.Fatalf("create subscription: %v", err)
	}
	return sub
}

func testPlan() db.PlanSnapshot {
	return db.PlanSnapshot{
		ID:           1,
		Name:         "Basic",
		Type:         db.PlanTraffic,
		TrafficLimit: 50,
		DeviceLimit:  2,
		Durations: []db.PlanDuration{
			{Days: 30, Prices: []db.PlanPrice{{Currency: db.CurrencyRUB, Price: decimal.NewFromInt(150)}}},
		},
	}
}

func TestActivateGates(t *testing.T) {
	ctx := context.Background()
	env := newPromoEnv(t)
	user := env.user(t, 10)

	env.promo(t, db.Promocode{Code: "OFF", RewardType: db.RewardPersonalDiscount, Reward: 5})
	expired := env.promo(t, db.Promocode{Code: "OLD", RewardType: db.RewardPersonalDiscount, Reward: 5, Lifetime: 1, IsActive: true})
	if err := env.conn.Model(&db.Promocode{}).Where("id = ?", expired.ID).
		Update("created_at", time.Now().AddDate(0, 0, -3)).Error; err != nil {
		t.Fatalf("age promocode: %v", err)
	}
	env.promo(t, db.Promocode{Code: "NEWBIE", RewardType: db.RewardPersonalDiscount, Reward: 5, IsActive: true, Availability: db.AvailabilityExisting})
	env.promo(t, db.Promocode{Code: "TRAFFIC", RewardType: db.RewardTraffic, Reward: 5, IsActive: true})

	tests := []struct {
		code string
		want string
	}{
		{"missing", NtfPromocodeNotFound},
		{"   ", NtfPromocodeNotFound},
		{"off", NtfPromocodeInactive},
		{"old", NtfPromocodeExpired},
		{"newbie", NtfPromocodeNotAvailable},
		{"traffic", NtfPromocodeTypeNotSupported},
	}
	for _, tt := range tests {
		res, err := env.svc.Activate(ctx, user, tt.code)
		if err != nil {
			t.Fatalf("%q: %v", tt.code, err)
		}
		if res.Success || res.NotificationKey != tt.want {
			t.Errorf("%q: got %+v, want %s", tt.code, res, tt.want)
		}
	}

	traffic, err := env.promos.GetByCode(ctx, "TRAFFIC")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(traffic.Activations) != 0 {
		t.Errorf("unsupported reward left %d activations", len(traffic.Activations))
	}
}

func TestActivateDepletes(t *testing.T) {
	ctx := context.Background()
	env := newPromoEnv(t)
	const limit = 3
	env.promo(t, db.Promocode{Code: "THREE", RewardType: db.RewardPurchaseDiscount, Reward: 15, IsActive: true, MaxActivations: limit})

	for i := int64(1); i <= limit; i++ {
		res, err := env.svc.Activate(ctx, env.user(t, i), "three")
		if err != nil || !res.Success {
			t.Fatalf("activation %d: %+v %v", i, res, err)
		}
	}
	res, err := env.svc.Activate(ctx, env.user(t, 99), "THREE")
	if err != nil {
		t.Fatal(err)
	}
	if res.NotificationKey != NtfPromocodeDepleted {
		t.Errorf("got %s, want depleted", res.NotificationKey)
	}
}

func TestActivateTwiceGrantsOnce(t *testing.T) {
	ctx := context.Background()
	env := newPromoEnv(t)
	user := env.user(t, 5)
	maxDays := 30
	env.promo(t, db.Promocode{Code: "BUY20", RewardType: db.RewardPurchaseDiscount, Reward: 20, IsActive: true, PurchaseDiscountMaxDays: &maxDays})

	res, err := env.svc.Activate(ctx, user, "buy20")
	if err != nil || !res.Success || res.NotificationKey != NtfPromocodeActivated {
		t.Fatalf("first activation: %+v %v", res, err)
	}
	if res.HasSubscription() {
		t.Error("discount reward reported a subscription")
	}

	if err := env.users.UpdateFields(ctx, 5, map[string]any{"purchase_discount": 3}); err != nil {
		t.Fatalf("reset discount: %v", err)
	}
	res, err = env.svc.Activate(ctx, user, "BUY20")
	if err != nil {
		t.Fatal(err)
	}
	if res.Success || res.NotificationKey != NtfPromocodeAlreadyActivated {
		t.Errorf("second activation: %+v", res)
	}

	got, err := env.users.GetByTelegramID(ctx, 5)
	if err != nil {
		t.Fatal(err)
	}
	if got.PurchaseDiscount != 3 || got.PurchaseDiscountMaxDays != maxDays {
		t.Errorf("reward granted twice: %+v", got)
	}
}

func TestAvailabilityFailsClosed(t *testing.T) {
	referrer := int64(1)
	invited := &db.User{TelegramID: 7, ReferrerTelegramID: &referrer}
	plain := &db.User{TelegramID: 8, HasAnySubscription: true}

	tests := []struct {
		desc  string
		user  *db.User
		promo db.Promocode
		want  bool
	}{
		{"all", plain, db.Promocode{Availability: db.AvailabilityAll}, true},
		{"new with subscription", plain, db.Promocode{Availability: db.AvailabilityNew}, false},
		{"new without subscription", invited, db.Promocode{Availability: db.AvailabilityNew}, true},
		{"existing", plain, db.Promocode{Availability: db.AvailabilityExisting}, true},
		{"invited", invited, db.Promocode{Availability: db.AvailabilityInvited}, true},
		{"not invited", plain, db.Promocode{Availability: db.AvailabilityInvited}, false},
		{"allowed nil list", plain, db.Promocode{Availability: db.AvailabilityAllowed}, false},
		{"allowed empty list", plain, db.Promocode{Availability: db.AvailabilityAllowed, AllowedTelegramIDs: datatypes.JSONSlice[int64]{}}, false},
		{"allowed listed", plain, db.Promocode{Availability: db.AvailabilityAllowed, AllowedTelegramIDs: datatypes.JSONSlice[int64]{8}}, true},
		{"allowed other", invited, db.Promocode{Availability: db.AvailabilityAllowed, AllowedTelegramIDs: datatypes.JSONSlice[int64]{8}}, false},
		{"unknown value", plain, db.Promocode{Availability: "VIP"}, false},
	}
	for _, tt := range tests {
		if got := checkAvailability(tt.user, &tt.promo); got != tt.want {
			t.Errorf("%s: got %v, want %v", tt.desc, got, tt.want)
		}
	}
}

func TestExtendExpiry(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	day := 24 * time.Hour
	tests := []struct {
		desc    string
		current time.Time
		want    time.Time
	}{
		{"lapsed counts from now", now.Add(-5 * day), now.Add(10 * day)},
		{"live keeps its remainder", now.Add(20 * day), now.Add(30 * day)},
	}
	for _, tt := range tests {
		if got := extendExpiry(tt.current, now, 10); !got.Equal(tt.want) {
			t.Errorf("%s: got %v, want %v", tt.desc, got, tt.want)
		}
	}
}

func TestActivateDuration(t *testing.T) {
	ctx := context.Background()
	env := newPromoEnv(t)
	now := time.Now().Truncate(time.Second)
	env.svc.now = func() time.Time { return now }
	env.promo(t, db.Promocode{Code: "PLUS10", RewardType: db.RewardDuration, Reward: 10, IsActive: true})

	user := env.user(t, 1)
	res, err := env.svc.Activate(ctx, user, "PLUS10")
	if err != nil || res.NotificationKey != NtfPromocodeNoSubscription {
		t.Fatalf("without subscription: %+v %v", res, err)
	}

	sub := env.subscription(t, 1, now.AddDate(0, 0, -5))
	if err := env.subs.SetStatus(ctx, sub.ID, db.SubscriptionExpired); err != nil {
		t.Fatal(err)
	}
	res, err = env.svc.Activate(ctx, user, "PLUS10")
	if err != nil || !res.Success || !res.HasSubscription() {
		t.Fatalf("lapsed subscription: %+v %v", res, err)
	}

	got, err := env.subs.GetCurrent(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if want := now.Add(10 * 24 * time.Hour); !got.ExpireAt.Equal(want) {
		t.Errorf("expire_at: got %v, want %v", got.ExpireAt, want)
	}
	if got.Status != db.SubscriptionActive {
		t.Errorf("status: got %s", got.Status)
	}
	if len(env.prov.updated) != 1 || env.prov.updated[0].UserRemnaID != sub.UserRemnaID {
		t.Errorf("panel updates: %+v", env.prov.updated)
	}
}

func TestActivatePanelFailureReleasesClaim(t *testing.T) {
	ctx := context.Background()
	env := newPromoEnv(t)
	user := env.user(t, 1)
	expireAt := time.Now().Add(48 * time.Hour).Truncate(time.Second)
	env.subscription(t, 1, expireAt)
	env.promo(t, db.Promocode{Code: "PLUS5", RewardType: db.RewardDuration, Reward: 5, IsActive: true})

	panelDown := errors.New("panel down")
	env.prov.err = panelDown
	if _, err := env.svc.Activate(ctx, user, "PLUS5"); !errors.Is(err, panelDown) {
		t.Fatalf("got %v, want panel error", err)
	}
	sub, err := env.subs.GetCurrent(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if !sub.ExpireAt.Equal(expireAt) {
		t.Errorf("local subscription changed: %v", sub.ExpireAt)
	}

	env.prov.err = nil
	res, err := env.svc.Activate(ctx, user, "PLUS5")
	if err != nil || !res.Success {
		t.Errorf("retry after failure: %+v %v", res, err)
	}
}

func TestActivateSubscription(t *testing.T) {
	ctx := context.Background()
	env := newPromoEnv(t)
	plan := testPlan()
	env.promo(t, db.Promocode{Code: "GIFT", RewardType: db.RewardSubscription, IsActive: true, Plan: datatypes.NewJSONType(&plan)})
	env.promo(t, db.Promocode{Code: "EMPTY", RewardType: db.RewardSubscription, IsActive: true})

	fresh := env.user(t, 1)
	res, err := env.svc.Activate(ctx, fresh, "EMPTY")
	if err != nil || res.NotificationKey != NtfPromocodePlanMissing {
		t.Errorf("no plan: %+v %v", res, err)
	}
	res, err = env.svc.Activate(ctx, fresh, "GIFT")
	if err != nil || !res.Success || !res.HasSubscription() {
		t.Fatalf("fresh user: %+v %v", res, err)
	}
	sub, err := env.subs.GetCurrent(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if sub.URL == "" || sub.TrafficLimit != plan.TrafficLimit || sub.Plan.Data().Name != "Basic" {
		t.Errorf("unexpected subscription: %+v", sub)
	}

	active := env.user(t, 2)
	env.subscription(t, 2, time.Now().Add(24*time.Hour))
	res, err = env.svc.Activate(ctx, active, "GIFT")
	if err != nil || res.NotificationKey != NtfPromocodeAlreadyHasSubscription {
		t.Errorf("active subscriber: %+v %v", res, err)
	}

	lapsed := env.user(t, 3)
	old := env.subscription(t, 3, time.Now().Add(-24*time.Hour))
	res, err = env.svc.Activate(ctx, lapsed, "GIFT")
	if err != nil || res.NotificationKey != NtfPromocodeAlreadyHasSubscription {
		t.Fatalf("lapsed subscriber: %+v %v", res, err)
	}
	current, err := env.subs.GetCurrent(ctx, 3)
	if err != nil || current.ID != old.ID {
		t.Errorf("lapsed subscription replaced: %+v %v", current, err)
	}
	if len(env.prov.deleted) != 0 {
		t.Errorf("panel deletes: %v", env.prov.deleted)
	}

	if len(env.prov.created) != 1 {
		t.Errorf("panel creates: got %d, want 1", len(env.prov.created))
	}
}

func TestActivateSubscriptionPanelFailure(t *testing.T) {
	ctx := context.Background()
	env := newPromoEnv(t)
	plan := testPlan()
	env.promo(t, db.Promocode{Code: "GIFT", RewardType: db.RewardSubscription, IsActive: true, Plan: datatypes.NewJSONType(&plan)})
	user := env.user(t, 1)

	panelDown := errors.New("panel down")
	env.prov.err = panelDown
	if _, err := env.svc.Activate(ctx, user, "GIFT"); !errors.Is(err, panelDown) {
		t.Fatalf("got %v, want panel error", err)
	}
	if _, err := env.subs.GetCurrent(ctx, 1); !errors.Is(err, db.ErrNotFound) {
		t.Errorf("subscription stored after failed provisioning: %v", err)
	}

	env.prov.err = nil
	res, err := env.svc.Activate(ctx, user, "GIFT")
	if err != nil || !res.Success {
		t.Fatalf("retry after failure: %+v %v", res, err)
	}
	if _, err := env.subs.GetCurrent(ctx, 1); err != nil {
		t.Errorf("subscription after retry: %v", err)
	}
}

func TestCreatePromocodeValidation(t *testing.T) {
	ctx := context.Background()
	env := newPromoEnv(t)
	plan := testPlan()
	zero := 0

	tests := []struct {
		desc  string
		promo db.Promocode
		field string
	}{
		{"bad code", db.Promocode{Code: "hi there", RewardType: db.RewardDuration, Reward: 1, Availability: db.AvailabilityAll, Lifetime: -1, MaxActivations: -1}, "code"},
		{"unknown type", db.Promocode{Code: "X", RewardType: "CASH", Reward: 1, Availability: db.AvailabilityAll, Lifetime: -1, MaxActivations: -1}, "reward_type"},
		{"discount over 100", db.Promocode{Code: "X", RewardType: db.RewardPersonalDiscount, Reward: 101, Availability: db.AvailabilityAll, Lifetime: -1, MaxActivations: -1}, "reward"},
		{"subscription without plan", db.Promocode{Code: "X", RewardType: db.RewardSubscription, Availability: db.AvailabilityAll, Lifetime: -1, MaxActivations: -1}, "plan"},
		{"zero lifetime", db.Promocode{Code: "X", RewardType: db.RewardDuration, Reward: 1, Availability: db.AvailabilityAll, Lifetime: 0, MaxActivations: -1}, "lifetime"},
		{"zero max", db.Promocode{Code: "X", RewardType: db.RewardDuration, Reward: 1, Availability: db.AvailabilityAll, Lifetime: -1, MaxActivations: 0}, "max_activations"},
		{"allowed without ids", db.Promocode{Code: "X", RewardType: db.RewardDuration, Reward: 1, Availability: db.AvailabilityAllowed, Lifetime: -1, MaxActivations: -1}, "allowed_telegram_ids"},
		{"zero max days", db.Promocode{Code: "X", RewardType: db.RewardPurchaseDiscount, Reward: 5, Availability: db.AvailabilityAll, Lifetime: -1, MaxActivations: -1, PurchaseDiscountMaxDays: &zero}, "purchase_discount_max_days"},
	}
	for _, tt := range tests {
		promo := tt.promo
		var verr *ValidationError
		if err := env.svc.Create(ctx, &promo); !errors.As(err, &verr) || verr.Field != tt.field {
			t.Errorf("%s: got %v, want invalid %s", tt.desc, err, tt.field)
		}
	}

	ok := db.Promocode{Code: " gift-1 ", RewardType: db.RewardSubscription, Availability: db.AvailabilityAll, Lifetime: -1, MaxActivations: -1, Plan: datatypes.NewJSONType(&plan)}
	if err := env.svc.Create(ctx, &ok); err != nil {
		t.Fatalf("valid promocode: %v", err)
	}
	if ok.Code != "GIFT-1" {
		t.Errorf("code not normalized: %q", ok.Code)
	}
	dup := ok
	dup.ID = 0
	var verr *ValidationError
	if err := env.svc.Create(ctx, &dup); !errors.As(err, &verr) || verr.Field != "code" {
		t.Errorf("duplicate code: got %v", err)
	}

	generated := db.Promocode{RewardType: db.RewardDuration, Reward: 3, Availability: db.AvailabilityAll, Lifetime: -1, MaxActivations: -1}
	if err := env.svc.Create(ctx, &generated); err != nil {
		t.Fatalf("generated code: %v", err)
	}
	if len(generated.Code) != 8 || !codePattern.MatchString(generated.Code) {
		t.Errorf("unexpected generated code %q", generated.Code)
	}
}

func TestPromocodeAdminOperations(t *testing.T) {
	ctx := context.Background()
	env := newPromoEnv(t)
	promo := env.promo(t, db.Promocode{Code: "ADM", RewardType: db.RewardDuration, Reward: 7, IsActive: true})

	active, err := env.svc.ToggleActive(ctx, promo.ID)
	if err != nil || active {
		t.Fatalf("toggle: %v %v", active, err)
	}
	inactive, err := env.svc.FilterActive(ctx, false)
	if err != nil || len(inactive) != 1 {
		t.Errorf("filter inactive: %d %v", len(inactive), err)
	}

	if err := env.svc.SetAllowed(ctx, promo.ID, []int64{11, 12}); err != nil {
		t.Fatalf("set allowed: %v", err)
	}
	got, err := env.svc.GetByCode(ctx, "adm")
	if err != nil {
		t.Fatal(err)
	}
	if got.Availability != db.AvailabilityAllowed || len(got.AllowedTelegramIDs) != 2 {
		t.Errorf("allow list not stored: %+v", got)
	}

	byType, err := env.svc.FilterByType(ctx, db.RewardDuration)
	if err != nil || len(byType) != 1 {
		t.Errorf("filter by type: %d %v", len(byType), err)
	}

	deleted, err := env.svc.Delete(ctx, promo.ID)
	if err != nil || !deleted {
		t.Fatalf("delete: %v %v", deleted, err)
	}
	if _, err := env.svc.Get(ctx, promo.ID); !errors.Is(err, db.ErrNotFound) {
		t.Errorf("after delete: got %v", err)
	}
	if _, err := env.svc.ToggleActive(ctx, promo.ID); !errors.Is(err, db.ErrNotFound) {
		t.Errorf("toggle deleted: got %v", err)
	}
}

func TestSetAvailability(t *testing.T) {
	ctx := context.Background()
	env := newPromoEnv(t)
	promo := env.promo(t, db.Promocode{Code: "AVAIL", RewardType: db.RewardPurchaseDiscount, Reward: 10, IsActive: true})

	tests := []struct {
		name         string
		availability db.PromocodeAvailability
		wantField    string
	}{
		{"new", db.AvailabilityNew, ""},
		{"existing", db.AvailabilityExisting, ""},
		{"invited", db.AvailabilityInvited, ""},
		{"allowed without ids", db.AvailabilityAllowed, "allowed_telegram_ids"},
		{"unknown", db.PromocodeAvailability("EVERYONE"), "availability"},
		{"all", db.AvailabilityAll, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := env.svc.SetAvailability(ctx, promo.ID, tt.availability)
			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				got, err := env.svc.Get(ctx, promo.ID)
				if err != nil || got.Availability != tt.availability {
					t.Errorf("stored %+v %v", got, err)
				}
				return
			}
			var invalid *ValidationError
			if !errors.As(err, &invalid) || invalid.Field != tt.wantField {
				t.Errorf("got %v, want validation error on %s", err, tt.wantField)
			}
		})
	}

	if err := env.svc.SetAvailability(ctx, promo.ID+100, db.AvailabilityAll); !errors.Is(err, db.ErrNotFound) {
		t.Errorf("missing promocode: got %v", err)
	}
}

func TestSetPurchaseDiscountMaxDays(t *testing.T) {
	ctx := context.Background()
	env := newPromoEnv(t)
	discount := env.promo(t, db.Promocode{Code: "CAP", RewardType: db.RewardPurchaseDiscount, Reward: 15, IsActive: true})
	duration := env.promo(t, db.Promocode{Code: "DAYS", RewardType: db.RewardDuration, Reward: 7, IsActive: true})

	days := 30
	if err := env.svc.SetPurchaseDiscountMaxDays(ctx, discount.ID, &days); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err := env.svc.Get(ctx, discount.ID)
	if err != nil || got.PurchaseDiscountMaxDays == nil || *got.PurchaseDiscountMaxDays != 30 {
		t.Fatalf("stored %+v %v", got, err)
	}

	var invalid *ValidationError
	zero := 0
	if err := env.svc.SetPurchaseDiscountMaxDays(ctx, discount.ID, &zero); !errors.As(err, &invalid) {
		t.Errorf("zero days: got %v", err)
	}
	if err := env.svc.SetPurchaseDiscountMaxDays(ctx, duration.ID, &days); !errors.As(err, &invalid) {
		t.Errorf("duration code: got %v", err)
	}

	if err := env.svc.SetPurchaseDiscountMaxDays(ctx, discount.ID, nil); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if got, err := env.svc.Get(ctx, discount.ID); err != nil || got.PurchaseDiscountMaxDays != nil {
		t.Errorf("not cleared: %+v %v", got, err)
	}
}
