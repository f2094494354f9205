package services

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"remnashop/internal/db"
)

type UserService struct {
	users *db.UserRepo
	log   *zap.Logger
}

func NewUserService(users *db.UserRepo, log *zap.Logger) *UserService {
	return &UserService{users: users, log: log}
}

// Register creates the user on first contact and returns the stored row.
// A referrer is kept only if it is another known user.
func (s *UserService) Register(ctx context.Context, telegramID int64, name, language string, referrerID *int64) (*db.User, error) {
	if referrerID != nil && !s.validReferrer(ctx, telegramID, *referrerID) {
		referrerID = nil
	}
	created, err := s.users.Register(ctx, &db.User{
		TelegramID:         telegramID,
		Name:               name,
		Language:           language,
		ReferrerTelegramID: referrerID,
	})
	if err != nil {
		return nil, err
	}
	if created {
		fields := []zap.Field{zap.Int64("telegram_id", telegramID)}
		if referrerID != nil {
			fields = append(fields, zap.Int64("referrer", *referrerID))
		}
		s.log.Info("user registered", fields...)
	}
	return s.users.GetByTelegramID(ctx, telegramID)
}

func (s *UserService) validReferrer(ctx context.Context, telegramID, referrerID int64) bool {
	if referrerID == telegramID {
		return false
	}
	_, err := s.users.GetByTelegramID(ctx, referrerID)
	if err != nil && !errors.Is(err, db.ErrNotFound) {
		s.log.Warn("referrer lookup failed", zap.Int64("referrer", referrerID), zap.Error(err))
	}
	return err == nil
}

func (s *UserService) Get(ctx context.Context, telegramID int64) (*db.User, error) {
	return s.users.GetByTelegramID(ctx, telegramID)
}
