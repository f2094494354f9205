package bot

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"remnashop/internal/db"
)

func (b *Bot) replyKeyboard(userID int64) tgbotapi.ReplyKeyboardMarkup {
	if b.deps.Admin != nil && b.deps.Admin.IsAdmin(userID) {
		return tgbotapi.NewReplyKeyboard(
			tgbotapi.NewKeyboardButtonRow(
				tgbotapi.NewKeyboardButton("/admin_stats"),
				tgbotapi.NewKeyboardButton("/admin_promo_list"),
				tgbotapi.NewKeyboardButton("/admin_webhooks"),
			),
			tgbotapi.NewKeyboardButtonRow(
				tgbotapi.NewKeyboardButton("/admin_plans"),
				tgbotapi.NewKeyboardButton("/admin_help"),
			),
		)
	}
	return tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton("/buy"),
			tgbotapi.NewKeyboardButton("/subscription"),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton("/help"),
		),
	)
}

func plansKeyboard(plans []db.Plan) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, p := range plans {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(p.Name, planCallback(p.ID)),
		))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func durationsKeyboard(plan *db.Plan) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, d := range plan.Durations {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("%d дн.", d.Days), durationCallback(plan.ID, d.Days)),
		))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func gatewaysKeyboard(planID uint, days int, gws []db.PaymentGateway) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, gw := range gws {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(gatewayTitle(gw.Type), payCallback(planID, days, gw.Type)),
		))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func gatewayTitle(t db.PaymentGatewayType) string {
	switch t {
	case db.GatewayTelegramStars:
		return "Telegram Stars"
	case db.GatewayYooKassa:
		return "ЮKassa"
	case db.GatewayYooMoney:
		return "ЮMoney"
	case db.GatewayCryptomus:
		return "Cryptomus"
	case db.GatewayHeleket:
		return "Heleket"
	case db.GatewayPlatega:
		return "Platega"
	}
	return string(t)
}
