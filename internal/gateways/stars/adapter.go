// Package stars implements Telegram Stars payments. Stars have no webhook
// surface: the invoice goes out through the bot API and the confirmation comes
// back as a successful_payment message keyed by the Telegram-issued charge id.
package stars

import (
	"context"
	"fmt"
	"log/slog"

	"remna-shop/internal/config"
	"remna-shop/internal/gateways"
	"remna-shop/internal/stories/payment"
)

// InvoiceSender is the slice of the bot client this adapter needs.
type InvoiceSender interface {
	SendStarsInvoice(chatID int64, title, description, payload string, stars int64) error
}

type Adapter struct {
	cfg    config.StarsConfig
	sender InvoiceSender
	logger *slog.Logger
}

func New(cfg config.StarsConfig, sender InvoiceSender, logger *slog.Logger) *Adapter {
	return &Adapter{cfg: cfg, sender: sender, logger: logger}
}

func (a *Adapter) Name() string { return gateways.ProviderStars }

// Enabled requires a positive conversion rate: both conversions divide or
// multiply by it, and a zero rate would turn the first invoice into a panic.
func (a *Adapter) Enabled() bool {
	return a.cfg.Enabled && a.sender != nil && a.cfg.RatePerStar > 0
}

// StarsForAmount converts minor units to a star count, rounding up so the
// user never pays fewer stars than the top-up is worth.
func (a *Adapter) StarsForAmount(amountMinor int64) int64 {
	rate := a.cfg.RatePerStar
	return (amountMinor + rate - 1) / rate
}

// AmountForStars is the documented trusted recomputation: the credited amount
// is re-derived from the star count Telegram reports, at the configured rate.
func (a *Adapter) AmountForStars(stars int64) int64 {
	return stars * a.cfg.RatePerStar
}

func (a *Adapter) CreatePayment(ctx context.Context, req gateways.CreateRequest) (*gateways.PaymentHandle, error) {
	if !a.Enabled() {
		return nil, gateways.ErrNotConfigured
	}
	if err := gateways.CheckBounds(req.Amount, a.cfg.MinAmount, a.cfg.MaxAmount); err != nil {
		return nil, err
	}

	stars := a.StarsForAmount(req.Amount)
	payload := fmt.Sprintf("topup:%d", req.PaymentID)

	if err := a.sender.SendStarsInvoice(req.ChatID, "Balance top-up", req.Description, payload, stars); err != nil {
		return nil, fmt.Errorf("send stars invoice: %w", err)
	}

	a.logger.Info("stars invoice sent",
		"payment_id", req.PaymentID, "chat_id", req.ChatID, "stars", stars)

	// The external id (telegram_payment_charge_id) only exists after the
	// user pays; the successful_payment handler fills it in.
	return &gateways.PaymentHandle{}, nil
}

func (a *Adapter) NormalizeStatus(raw string) gateways.Status {
	// Telegram only ever reports success; everything else stays pending
	// until the invoice silently expires.
	if raw == "successful_payment" {
		return gateways.StatusPaid
	}
	return gateways.StatusPending
}

// PaidEvent builds the canonical event for a successful_payment message.
// The amount is re-derived from the star total, never taken from elsewhere.
func (a *Adapter) PaidEvent(chargeID string, totalStars int64) *gateways.WebhookEvent {
	return &gateways.WebhookEvent{
		ExternalID:    chargeID,
		Status:        gateways.StatusPaid,
		Amount:        a.AmountForStars(totalStars),
		AmountTrusted: true,
	}
}

func (a *Adapter) ParseWebhook(body []byte) (*gateways.WebhookEvent, error) {
	// Stars confirmations arrive as bot updates, not HTTP callbacks.
	return nil, gateways.ErrUnparseable
}

func (a *Adapter) VerifyWebhook(body []byte, signature string) bool { return false }

func (a *Adapter) SignatureHeader() string { return "" }

func (a *Adapter) PollStatus(ctx context.Context, p *payment.Payment) (gateways.Status, error) {
	return "", gateways.ErrPollingUnsupported
}
