package logger

import (
	"context"
	"fmt"
	"html"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// Sender is the part of *tgbotapi.BotAPI the notifier needs.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Notifier delivers operator alerts and user messages through the bot.
// A Notifier without a bot silently drops everything.
type Notifier struct {
	bot        Sender
	operatorID int64
	log        *zap.Logger
}

func NewNotifier(bot Sender, operatorID int64, log *zap.Logger) *Notifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &Notifier{bot: bot, operatorID: operatorID, log: log}
}

// NotifyOperator sends an HTML-escaped alert to the operator chat.
func (n *Notifier) NotifyOperator(ctx context.Context, text string) {
	if n == nil || n.bot == nil || n.operatorID == 0 || ctx.Err() != nil {
		return
	}
	msg := tgbotapi.NewMessage(n.operatorID, "[ALERT] "+html.EscapeString(text))
	msg.ParseMode = tgbotapi.ModeHTML
	if _, err := n.bot.Send(msg); err != nil {
		n.log.Warn("operator notification failed", zap.Error(err))
	}
}

// NotifyUser sends a plain text message to the user. Links are rendered as
// an inline button when url is not empty.
func (n *Notifier) NotifyUser(ctx context.Context, telegramID int64, text, url string) error {
	if n == nil || n.bot == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(telegramID, text)
	if url != "" {
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonURL("Подключиться", url)),
		)
	}
	if _, err := n.bot.Send(msg); err != nil {
		return fmt.Errorf("notify user %d: %w", telegramID, err)
	}
	return nil
}

// Recover must be deferred directly. It logs the panic and alerts the operator.
func (n *Notifier) Recover(where string) {
	r := recover()
	if r == nil {
		return
	}
	n.log.Error("panic recovered", zap.String("where", where), zap.Any("panic", r), zap.Stack("stack"))
	n.NotifyOperator(context.Background(), fmt.Sprintf("Panic in %s: %v", where, r))
}
