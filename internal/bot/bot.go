package bot

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"remnashop/internal/admin"
	"remnashop/internal/db"
	"remnashop/internal/logger"
	"remnashop/internal/services"
)

// API is the part of *tgbotapi.BotAPI the handlers use.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

type Dependencies struct {
	Users      *services.UserService
	Promocodes *services.PromocodeService
	Payments   *services.PaymentService
	Plans      *db.PlanRepo
	Subs       *db.SubscriptionRepo
	Admin      *admin.Handler
	Limiter    *RateLimiter
	PromoGuard *PromoGuard
	Notifier   *logger.Notifier
	Logger     *zap.Logger
}

type Bot struct {
	api  API
	deps Dependencies
	log  *zap.Logger
}

func New(api API, deps Dependencies) *Bot {
	if deps.Limiter == nil {
		deps.Limiter = NewRateLimiter()
	}
	return &Bot{api: api, deps: deps, log: deps.Logger}
}

// Run polls updates until ctx is canceled.
func Run(ctx context.Context, api *tgbotapi.BotAPI, b *Bot) {
	b.log.Info("bot authorized", zap.String("username", api.Self.UserName))

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := api.GetUpdatesChan(u)
	defer api.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			b.HandleUpdate(ctx, update)
		}
	}
}

func (b *Bot) send(c tgbotapi.Chattable) {
	if _, err := b.api.Send(c); err != nil {
		b.log.Warn("send message", zap.Error(err))
	}
}

func (b *Bot) answer(callbackID, text string) {
	if _, err := b.api.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		b.log.Warn("answer callback", zap.Error(err))
	}
}
