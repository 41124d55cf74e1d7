// Package tribute implements the Tribute donation gateway. Tribute payments
// start out-of-band (the user follows a static donate link), so the first
// thing this system hears about a payment may be the webhook itself; the
// reconciliation engine creates the intent opportunistically in that case.
package tribute

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"remna-shop/internal/config"
	"remna-shop/internal/gateways"
	"remna-shop/internal/stories/payment"
)

type Adapter struct {
	cfg    config.TributeConfig
	logger *slog.Logger
}

func New(cfg config.TributeConfig, logger *slog.Logger) *Adapter {
	return &Adapter{cfg: cfg, logger: logger}
}

func (a *Adapter) Name() string  { return gateways.ProviderTribute }
func (a *Adapter) Enabled() bool { return a.cfg.Enabled && a.cfg.DonateLink != "" }

// OutOfBand marks this provider as one whose charges may be initiated
// outside the bot; the engine keys opportunistic intent creation off it.
func (a *Adapter) OutOfBand() bool { return true }

func (a *Adapter) CreatePayment(ctx context.Context, req gateways.CreateRequest) (*gateways.PaymentHandle, error) {
	if !a.Enabled() {
		return nil, gateways.ErrNotConfigured
	}
	if err := gateways.CheckBounds(req.Amount, a.cfg.MinAmount, a.cfg.MaxAmount); err != nil {
		return nil, err
	}

	// Tribute assigns identifiers only when the donation lands; until then
	// the intent is correlated by telegram user id from the webhook.
	return &gateways.PaymentHandle{PaymentURL: a.cfg.DonateLink}, nil
}

func (a *Adapter) NormalizeStatus(raw string) gateways.Status {
	switch raw {
	case "new_donation", "paid":
		return gateways.StatusPaid
	case "canceled":
		return gateways.StatusFailed
	default:
		return gateways.StatusPending
	}
}

// webhookEvent is Tribute's event envelope.
type webhookEvent struct {
	Name    string `json:"name"`
	Payload struct {
		DonationRequestID int64  `json:"donation_request_id"`
		Amount            int64  `json:"amount"` // minor units already
		Currency          string `json:"currency"`
		TelegramUserID    int64  `json:"telegram_user_id"`
	} `json:"payload"`
}

func (a *Adapter) ParseWebhook(body []byte) (*gateways.WebhookEvent, error) {
	var e webhookEvent
	if err := json.Unmarshal(body, &e); err != nil {
		return nil, fmt.Errorf("%w: %v", gateways.ErrUnparseable, err)
	}
	if e.Payload.DonationRequestID == 0 {
		return nil, fmt.Errorf("%w: missing donation_request_id", gateways.ErrUnparseable)
	}

	// With no pre-created intent to fall back on, the webhook amount is the
	// only source. Normally the signature check before parsing is what makes
	// it trustworthy; when ALLOW_UNVERIFIED is set that trust extends to the
	// payer identity and the credited amount of an unsigned request.
	return &gateways.WebhookEvent{
		ExternalID:     strconv.FormatInt(e.Payload.DonationRequestID, 10),
		Status:         a.NormalizeStatus(e.Name),
		Amount:         e.Payload.Amount,
		AmountTrusted:  true,
		TelegramUserID: e.Payload.TelegramUserID,
		Raw:            json.RawMessage(body),
	}, nil
}

func (a *Adapter) VerifyWebhook(body []byte, signature string) bool {
	if a.cfg.APIKey == "" {
		if a.cfg.AllowUnverified {
			a.logger.Warn("tribute webhook accepted without verification",
				"reason", "ALLOW_UNVERIFIED is set")
			return true
		}
		return false
	}
	return gateways.VerifyHMACSHA256Hex([]byte(a.cfg.APIKey), body, signature)
}

func (a *Adapter) SignatureHeader() string { return "trbt-signature" }

func (a *Adapter) PollStatus(ctx context.Context, p *payment.Payment) (gateways.Status, error) {
	return "", gateways.ErrPollingUnsupported
}
