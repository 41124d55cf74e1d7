package telegram

import (
	"context"
	"log/slog"

	"remna-shop/internal/config"
	tgclient "remna-shop/internal/infra/telegram"
	"remna-shop/internal/stories/cart"
	"remna-shop/internal/stories/payment"
	"remna-shop/internal/stories/users"
	"remna-shop/internal/telegram/messages"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Notifier delivers top-up notifications. Failures are logged and swallowed:
// a lost message must never affect the credited balance.
type Notifier struct {
	client *tgclient.Client
	cfg    config.TelegramConfig
	logger *slog.Logger
}

func NewNotifier(client *tgclient.Client, cfg config.TelegramConfig, logger *slog.Logger) *Notifier {
	return &Notifier{client: client, cfg: cfg, logger: logger}
}

func (n *Notifier) NotifyUserCredited(_ context.Context, user *users.User, p *payment.Payment, oldBalance, newBalance int64) {
	keyboard := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(messages.ButtonMainMenu, "main_menu"),
		),
	)
	if err := n.client.SendKeyboard(user.TelegramID, messages.TopupCredited(newBalance-oldBalance, newBalance), keyboard); err != nil {
		n.logger.Error("failed to notify user about topup",
			"user_id", user.ID, "payment_id", p.ID, "error", err)
	}
}

func (n *Notifier) NotifyAdminTopup(_ context.Context, user *users.User, p *payment.Payment) {
	if n.cfg.AdminChatID == 0 {
		return
	}
	msg := tgbotapi.NewMessage(n.cfg.AdminChatID, messages.AdminTopup(user.TelegramID, p.Amount, p.Provider))
	if n.cfg.AdminThreadID != 0 {
		// Форум-топики не поддержаны клиентской библиотекой, отвечаем в
		// топик через reply
		msg.ReplyToMessageID = n.cfg.AdminThreadID
	}
	if _, err := n.client.Send(msg); err != nil {
		n.logger.Error("failed to notify admin chat about topup",
			"payment_id", p.ID, "error", err)
	}
}

func (n *Notifier) NotifyResumeCheckout(_ context.Context, user *users.User, c *cart.Cart) {
	keyboard := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(messages.ButtonResumeCart, "cart_resume"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(messages.ButtonCancel, "cart_drop"),
		),
	)
	if err := n.client.SendKeyboard(user.TelegramID, messages.ResumeCheckout(c.Price), keyboard); err != nil {
		n.logger.Error("failed to send resume-checkout prompt",
			"user_id", user.ID, "error", err)
	}
}
