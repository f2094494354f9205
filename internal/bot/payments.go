package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"remnashop/internal/db"
	"remnashop/internal/services"
)

const (
	callbackPlan     = "plan"
	callbackDuration = "dur"
	callbackPay      = "pay"
)

type callbackData struct {
	kind    string
	planID  uint
	days    int
	gateway db.PaymentGatewayType
}

func planCallback(planID uint) string {
	return fmt.Sprintf("%s_%d", callbackPlan, planID)
}

func durationCallback(planID uint, days int) string {
	return fmt.Sprintf("%s_%d_%d", callbackDuration, planID, days)
}

func payCallback(planID uint, days int, t db.PaymentGatewayType) string {
	return fmt.Sprintf("%s_%d_%d_%s", callbackPay, planID, days, t)
}

// parseCallback reads the inline button payloads of the purchase flow.
// Gateway types contain underscores, so they always come last.
func parseCallback(data string) (callbackData, error) {
	parts := strings.SplitN(data, "_", 4)
	want := map[string]int{callbackPlan: 2, callbackDuration: 3, callbackPay: 4}[parts[0]]
	if want == 0 || len(parts) != want {
		return callbackData{}, fmt.Errorf("unexpected callback %q", data)
	}
	cb := callbackData{kind: parts[0]}
	id, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		return callbackData{}, fmt.Errorf("callback plan id: %w", err)
	}
	cb.planID = uint(id)
	if want >= 3 {
		if cb.days, err = strconv.Atoi(parts[2]); err != nil || cb.days <= 0 {
			return callbackData{}, fmt.Errorf("callback days %q", parts[2])
		}
	}
	if want == 4 {
		if cb.gateway, err = db.ParseGatewayType(parts[3]); err != nil {
			return callbackData{}, err
		}
	}
	return cb, nil
}

func (b *Bot) handleCallback(ctx context.Context, q *tgbotapi.CallbackQuery) {
	if q.Message == nil || q.From == nil {
		return
	}
	cb, err := parseCallback(q.Data)
	if err != nil {
		b.log.Warn("bad callback", zap.String("data", q.Data), zap.Error(err))
		b.answer(q.ID, "Ошибка выбора")
		return
	}
	chatID := q.Message.Chat.ID
	switch cb.kind {
	case callbackPlan:
		b.showDurations(ctx, chatID, cb.planID)
		b.answer(q.ID, "План выбран")
	case callbackDuration:
		b.showGateways(ctx, chatID, cb.planID, cb.days)
		b.answer(q.ID, "Срок выбран")
	case callbackPay:
		b.pay(ctx, chatID, q.From.ID, cb)
		b.answer(q.ID, "")
	}
}

func (b *Bot) showPlans(ctx context.Context, chatID int64) {
	plans, err := b.deps.Plans.ListActive(ctx)
	if err != nil {
		b.log.Error("list plans", zap.Error(err))
		b.send(tgbotapi.NewMessage(chatID, textTryLater))
		return
	}
	if len(plans) == 0 {
		b.send(tgbotapi.NewMessage(chatID, "Извините, сейчас нет доступных тарифов. Попробуйте позже."))
		return
	}
	msg := tgbotapi.NewMessage(chatID, "Выберите тариф:")
	msg.ReplyMarkup = plansKeyboard(plans)
	b.send(msg)
}

func (b *Bot) showDurations(ctx context.Context, chatID int64, planID uint) {
	plan, err := b.deps.Plans.Get(ctx, planID)
	if err != nil || !plan.IsActive || len(plan.Durations) == 0 {
		b.send(tgbotapi.NewMessage(chatID, "Тариф недоступен."))
		return
	}
	msg := tgbotapi.NewMessage(chatID, "Выберите срок подписки:")
	msg.ReplyMarkup = durationsKeyboard(plan)
	b.send(msg)
}

func (b *Bot) showGateways(ctx context.Context, chatID int64, planID uint, days int) {
	gws, err := b.deps.Payments.ActiveGateways(ctx)
	if err != nil {
		b.log.Error("list gateways", zap.Error(err))
		b.send(tgbotapi.NewMessage(chatID, textTryLater))
		return
	}
	if len(gws) == 0 {
		b.send(tgbotapi.NewMessage(chatID, "Оплата временно недоступна."))
		return
	}
	msg := tgbotapi.NewMessage(chatID, "Выберите способ оплаты:")
	msg.ReplyMarkup = gatewaysKeyboard(planID, days, gws)
	b.send(msg)
}

func (b *Bot) pay(ctx context.Context, chatID, userID int64, cb callbackData) {
	user, err := b.deps.Users.Get(ctx, userID)
	if err != nil {
		b.log.Error("load user", zap.Int64("telegram_id", userID), zap.Error(err))
		b.send(tgbotapi.NewMessage(chatID, "Сначала отправьте /start"))
		return
	}
	checkout, err := b.deps.Payments.CreatePayment(ctx, user, cb.planID, cb.days, cb.gateway)
	if err != nil {
		text := paymentErrorText(err)
		if text == textTryLater {
			b.log.Error("create payment", zap.Int64("telegram_id", userID), zap.Error(err))
		}
		b.send(tgbotapi.NewMessage(chatID, text))
		return
	}
	if checkout.URL == "" {
		b.send(tgbotapi.NewMessage(chatID, "Покупка оформлена бесплатно, подписка скоро будет активна."))
		return
	}
	tx := checkout.Transaction
	msg := tgbotapi.NewMessage(chatID, fmt.Sprintf("К оплате: %s %s", tx.Amount.String(), tx.Currency))
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonURL("Оплатить", checkout.URL),
	))
	b.send(msg)
}

func paymentErrorText(err error) string {
	switch {
	case errors.Is(err, services.ErrPlanUnavailable), errors.Is(err, services.ErrDurationUnavailable):
		return "Тариф недоступен."
	case errors.Is(err, services.ErrGatewayUnavailable):
		return "Этот способ оплаты сейчас недоступен."
	case errors.Is(err, services.ErrPriceUnavailable):
		return "Для этого способа оплаты нет цены, выберите другой."
	}
	return textTryLater
}
