package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"remnashop/internal/services"
)

const textTryLater = "Что-то пошло не так, попробуйте позже."

const helpText = `Доступные команды:
/buy — Купить или продлить подписку
/subscription — Моя подписка
/promo <код> — Активировать промокод
/help — Показать эту справку

Покупка: /buy → выберите тариф, срок и способ оплаты → оплатите по ссылке.
После оплаты бот автоматически выдаст или продлит подписку.`

// promoTexts maps activation notification keys to user messages.
var promoTexts = map[string]string{
	services.NtfPromocodeNotFound:               "Промокод не найден.",
	services.NtfPromocodeInactive:               "Промокод отключён.",
	services.NtfPromocodeExpired:                "Срок действия промокода истёк.",
	services.NtfPromocodeDepleted:               "Промокод больше недоступен: лимит активаций исчерпан.",
	services.NtfPromocodeAlreadyActivated:       "Вы уже активировали этот промокод.",
	services.NtfPromocodeNotAvailable:           "Этот промокод вам недоступен.",
	services.NtfPromocodeNoSubscription:         "Для этого промокода нужна подписка. Оформите её через /buy.",
	services.NtfPromocodeTypeNotSupported:       "Этот тип промокода пока не поддерживается.",
	services.NtfPromocodeAlreadyHasSubscription: "У вас уже есть действующая подписка.",
	services.NtfPromocodePlanMissing:            "Промокод настроен неверно, обратитесь в поддержку.",
	services.NtfPromocodeActivated:              "Промокод %s активирован!",
}

func promoText(res services.ActivationResult) string {
	text, ok := promoTexts[res.NotificationKey]
	if !ok {
		return textTryLater
	}
	if res.Success {
		return fmt.Sprintf(text, res.NotificationArgs["code"])
	}
	return text
}

func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	defer b.deps.Notifier.Recover("HandleUpdate")

	if update.CallbackQuery != nil {
		b.handleCallback(ctx, update.CallbackQuery)
		return
	}
	msg := update.Message
	if msg == nil || msg.From == nil || msg.Text == "" {
		return
	}
	userID := msg.From.ID
	isAdmin := b.deps.Admin != nil && b.deps.Admin.IsAdmin(userID)

	cmd := strings.Fields(msg.Text)[0]
	if !isAdmin && b.deps.Limiter.IsLimited(userID, cmd) {
		reply := tgbotapi.NewMessage(msg.Chat.ID, "Пожалуйста, не так быстро! Подождите пару секунд...")
		reply.ReplyMarkup = b.replyKeyboard(userID)
		b.send(reply)
		return
	}
	// Вызов обработчика админ-команд
	if isAdmin && strings.HasPrefix(msg.Text, "/admin_") {
		b.deps.Admin.HandleCommand(ctx, b.api, msg)
		return
	}

	switch msg.Command() {
	case "start":
		b.handleStart(ctx, msg)
	case "buy":
		b.handleBuy(ctx, msg)
	case "promo":
		b.handlePromo(ctx, msg)
	case "subscription":
		b.handleSubscription(ctx, msg)
	case "help":
		reply := tgbotapi.NewMessage(msg.Chat.ID, helpText)
		reply.ReplyMarkup = b.replyKeyboard(userID)
		b.send(reply)
	default:
		reply := tgbotapi.NewMessage(msg.Chat.ID, "Неизвестная команда. Используйте /help для списка всех возможностей.")
		reply.ReplyMarkup = b.replyKeyboard(userID)
		b.send(reply)
	}
}

// referrerFromStart reads the "ref_<telegram id>" deep link payload.
func referrerFromStart(payload string) *int64 {
	raw, ok := strings.CutPrefix(strings.TrimSpace(payload), "ref_")
	if !ok {
		return nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return nil
	}
	return &id
}

func (b *Bot) handleStart(ctx context.Context, msg *tgbotapi.Message) {
	from := msg.From
	_, err := b.deps.Users.Register(ctx, from.ID, strings.TrimSpace(from.FirstName+" "+from.LastName), from.LanguageCode, referrerFromStart(msg.CommandArguments()))
	if err != nil {
		b.log.Error("register user", zap.Int64("telegram_id", from.ID), zap.Error(err))
		b.send(tgbotapi.NewMessage(msg.Chat.ID, textTryLater))
		return
	}
	reply := tgbotapi.NewMessage(msg.Chat.ID, "Добро пожаловать! Для покупки VPN используйте /buy, промокод — /promo <код>.")
	reply.ReplyMarkup = b.replyKeyboard(from.ID)
	b.send(reply)
}

func (b *Bot) handleBuy(ctx context.Context, msg *tgbotapi.Message) {
	args := strings.Fields(msg.CommandArguments())
	if len(args) != 2 {
		b.showPlans(ctx, msg.Chat.ID)
		return
	}
	planID, err1 := strconv.ParseUint(args[0], 10, 64)
	days, err2 := strconv.Atoi(args[1])
	if err1 != nil || err2 != nil || days <= 0 {
		b.send(tgbotapi.NewMessage(msg.Chat.ID, "Использование: /buy [plan_id дни]"))
		return
	}
	b.showGateways(ctx, msg.Chat.ID, uint(planID), days)
}

func (b *Bot) handlePromo(ctx context.Context, msg *tgbotapi.Message) {
	code := strings.TrimSpace(msg.CommandArguments())
	if code == "" {
		b.send(tgbotapi.NewMessage(msg.Chat.ID, "Использование: /promo <код>"))
		return
	}
	userID := msg.From.ID
	if b.deps.PromoGuard != nil {
		allowed, wait, err := b.deps.PromoGuard.Allow(ctx, userID)
		if err != nil {
			b.log.Warn("promo guard", zap.Error(err))
		} else if !allowed {
			b.send(tgbotapi.NewMessage(msg.Chat.ID, fmt.Sprintf("Слишком много попыток. Повторите через %d мин.", int(wait.Minutes())+1)))
			return
		}
	}

	user, err := b.deps.Users.Get(ctx, userID)
	if err != nil {
		b.send(tgbotapi.NewMessage(msg.Chat.ID, "Сначала отправьте /start"))
		return
	}
	res, err := b.deps.Promocodes.Activate(ctx, user, code)
	if err != nil {
		b.log.Error("activate promocode", zap.Int64("telegram_id", userID), zap.Error(err))
		b.send(tgbotapi.NewMessage(msg.Chat.ID, textTryLater))
		return
	}
	reply := tgbotapi.NewMessage(msg.Chat.ID, promoText(res))
	if res.HasSubscription() {
		if sub, err := b.deps.Subs.GetCurrent(ctx, userID); err == nil && sub.URL != "" {
			reply.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonURL("Подключиться", sub.URL),
			))
		}
	}
	b.send(reply)
}

func (b *Bot) handleSubscription(ctx context.Context, msg *tgbotapi.Message) {
	sub, err := b.deps.Subs.GetCurrent(ctx, msg.From.ID)
	if err != nil {
		reply := tgbotapi.NewMessage(msg.Chat.ID, "У вас нет подписки. Для покупки используйте /buy.")
		reply.ReplyMarkup = b.replyKeyboard(msg.From.ID)
		b.send(reply)
		return
	}
	text := fmt.Sprintf("Подписка: %s\nСтатус: %s\nДействует до: %s",
		sub.Plan.Data().Name, sub.Status, sub.ExpireAt.Format("02.01.2006 15:04"))
	reply := tgbotapi.NewMessage(msg.Chat.ID, text)
	if sub.URL != "" {
		reply.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonURL("Подключиться", sub.URL),
		))
	}
	b.send(reply)
}
