package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"remnashop/internal/db"
	"remnashop/internal/remnawave"
)

// openEndedExpiry is what the panel gets for plans without a duration.
var openEndedExpiry = time.Date(2099, 12, 31, 0, 0, 0, 0, time.UTC)

// RemnawaveService maps shop entities onto panel API calls.
type RemnawaveService struct {
	client *remnawave.Client
	now    func() time.Time
}

func NewRemnawaveService(client *remnawave.Client) *RemnawaveService {
	return &RemnawaveService{client: client, now: time.Now}
}

func panelUsername(telegramID int64) string {
	return fmt.Sprintf("rs_%d", telegramID)
}

func (s *RemnawaveService) CreateUser(ctx context.Context, user *db.User, plan db.PlanSnapshot) (*ProvisionedUser, error) {
	expireAt := openEndedExpiry
	if days := plan.GrantDays(); days > 0 {
		expireAt = s.now().Add(time.Duration(days) * 24 * time.Hour)
	}
	created, err := s.client.CreateUser(ctx, remnawave.CreateUserRequest{
		Username:             panelUsername(user.TelegramID),
		Status:               string(db.SubscriptionActive),
		ExpireAt:             expireAt.UTC(),
		TrafficLimitBytes:    remnawave.GBToBytes(plan.TrafficLimit),
		TrafficLimitStrategy: plan.TrafficLimitStrategy,
		HwidDeviceLimit:      plan.DeviceLimit,
		TelegramID:           user.TelegramID,
		Tag:                  plan.Tag,
		ActiveInternalSquads: plan.InternalSquads,
		ExternalSquadUUID:    plan.ExternalSquad,
	})
	if err != nil {
		return nil, err
	}
	return &ProvisionedUser{
		UUID:     created.UUID,
		Status:   subscriptionStatus(created.Status),
		ExpireAt: created.ExpireAt,
		URL:      created.SubscriptionURL,
	}, nil
}

func (s *RemnawaveService) UpdateUser(ctx context.Context, _ *db.User, sub *db.Subscription) error {
	_, err := s.client.UpdateUser(ctx, remnawave.UpdateUserRequest{
		UUID:                 sub.UserRemnaID,
		Status:               string(sub.Status),
		ExpireAt:             sub.ExpireAt.UTC(),
		TrafficLimitBytes:    remnawave.GBToBytes(sub.TrafficLimit),
		TrafficLimitStrategy: sub.TrafficLimitStrategy,
		HwidDeviceLimit:      sub.DeviceLimit,
		Tag:                  sub.Tag,
		ActiveInternalSquads: sub.InternalSquads,
		ExternalSquadUUID:    sub.ExternalSquad,
	})
	return err
}

func (s *RemnawaveService) DeleteUser(ctx context.Context, sub *db.Subscription) error {
	return s.client.DeleteUser(ctx, sub.UserRemnaID)
}

func subscriptionStatus(panel string) db.SubscriptionStatus {
	switch st := db.SubscriptionStatus(strings.ToUpper(panel)); st {
	case db.SubscriptionActive, db.SubscriptionDisabled, db.SubscriptionLimited, db.SubscriptionExpired:
		return st
	}
	return db.SubscriptionActive
}
