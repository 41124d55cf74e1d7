package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"remna-shop/internal/gateways"
	"remna-shop/internal/stories/payment"
	"remna-shop/internal/stories/users"
	"remna-shop/internal/telegram/messages"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Предустановленные суммы пополнения в копейках
var topupAmounts = []int64{10000, 30000, 50000, 100000}

// starsPayloadPrefix marks invoice payloads issued by the top-up flow.
const starsPayloadPrefix = "topup:"

func (r *Router) sendProviderKeyboard(chatID int64) error {
	adapters := r.registry.Enabled()
	if len(adapters) == 0 {
		return r.client.SendMessage(chatID, messages.TopupProviderOff)
	}

	var rows [][]tgbotapi.InlineKeyboardButton
	for _, a := range adapters {
		title := messages.ProviderTitles[a.Name()]
		if title == "" {
			title = a.Name()
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(title, "tpv_"+a.Name()),
		))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData(messages.ButtonCancel, "cancel"),
	))

	return r.client.SendKeyboard(chatID, messages.TopupChooseProvider, tgbotapi.NewInlineKeyboardMarkup(rows...))
}

func (r *Router) sendAmountKeyboard(chatID int64, provider string) error {
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, amount := range topupAmounts {
		label := messages.FormatAmount(amount) + " ₽"
		data := fmt.Sprintf("tpa_%s_%d", provider, amount)
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(label, data),
		))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData(messages.ButtonCancel, "cancel"),
	))

	return r.client.SendKeyboard(chatID, messages.TopupChooseAmount, tgbotapi.NewInlineKeyboardMarkup(rows...))
}

// startTopup парсит callback вида "<provider>_<amount>" и создает платеж
func (r *Router) startTopup(ctx context.Context, user *users.User, chatID int64, data string) error {
	idx := strings.LastIndex(data, "_")
	if idx <= 0 {
		return nil
	}
	provider := data[:idx]
	amount, err := strconv.ParseInt(data[idx+1:], 10, 64)
	if err != nil || amount <= 0 {
		return r.client.SendMessage(chatID, messages.TopupAmountInvalid)
	}

	handle, err := r.topupService.CreateTopup(ctx, user.ID, chatID, provider, amount, "RUB", messages.TopupDescription)
	if err != nil {
		switch {
		case errors.Is(err, gateways.ErrAmountOutOfBounds):
			return r.client.SendMessage(chatID, messages.TopupAmountInvalid)
		case errors.Is(err, gateways.ErrNotConfigured):
			return r.client.SendMessage(chatID, messages.TopupProviderOff)
		}
		r.logger.Error("failed to create topup",
			"user_id", user.ID, "provider", provider, "amount", amount, "error", err)
		return r.client.SendMessage(chatID, messages.TopupCreateFailed)
	}

	// In-app провайдеры (Stars) сами присылают инвойс, ссылки нет
	if handle.PaymentURL == "" {
		return nil
	}

	keyboard := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonURL(messages.ButtonPay, handle.PaymentURL),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(messages.ButtonCheckStatus, fmt.Sprintf("pay_check_%d", handle.Payment.ID)),
		),
	)
	return r.client.SendKeyboard(chatID, messages.TopupLink(amount, handle.PaymentURL), keyboard)
}

// handlePreCheckout подтверждает инвойс Stars. Telegram ждет ответ не дольше
// 10 секунд, иначе платеж отклоняется.
func (r *Router) handlePreCheckout(query *tgbotapi.PreCheckoutQuery) error {
	if !strings.HasPrefix(query.InvoicePayload, starsPayloadPrefix) {
		return r.client.AnswerPreCheckoutQuery(query.ID, false, messages.Error)
	}
	return r.client.AnswerPreCheckoutQuery(query.ID, true, "")
}

// handleSuccessfulPayment сводит оплату Stars через общий механизм
// подтверждения. Сумма пересчитывается из количества звезд, payload из
// инвойса дает id локального платежа.
func (r *Router) handleSuccessfulPayment(ctx context.Context, msg *tgbotapi.Message) error {
	sp := msg.SuccessfulPayment

	rawID := strings.TrimPrefix(sp.InvoicePayload, starsPayloadPrefix)
	paymentID, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		r.logger.Error("successful_payment with foreign payload", "payload", sp.InvoicePayload)
		return nil
	}

	p, err := r.payments.GetPayment(ctx, payment.GetCriteria{ID: &paymentID})
	if err != nil {
		return fmt.Errorf("load stars payment %d: %w", paymentID, err)
	}
	if p == nil {
		r.logger.Error("successful_payment for unknown intent", "payment_id", paymentID)
		return nil
	}

	amount := r.stars.AmountForStars(int64(sp.TotalAmount))
	result, err := r.topupService.Confirm(ctx, p, sp.TelegramPaymentChargeID, amount)
	if err != nil {
		return fmt.Errorf("confirm stars payment %d: %w", paymentID, err)
	}

	r.logger.Info("stars payment reconciled",
		"payment_id", paymentID, "stars", sp.TotalAmount, "amount", amount, "result", result)
	return nil
}
