// Package cryptobot implements the Crypto Pay (CryptoBot) gateway adapter.
// Webhooks are signed with HMAC-SHA256 over the raw body, keyed by the
// SHA-256 of the API token, in the crypto-pay-api-signature header.
package cryptobot

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"remna-shop/internal/config"
	"remna-shop/internal/gateways"
	"remna-shop/internal/infra/httpclient"
	"remna-shop/internal/stories/payment"
)

type Adapter struct {
	cfg    config.CryptoBotConfig
	client *client
	logger *slog.Logger
}

func New(cfg config.CryptoBotConfig, httpc *httpclient.Client, logger *slog.Logger) *Adapter {
	return &Adapter{
		cfg:    cfg,
		client: &client{http: httpc, baseURL: cfg.BaseURL, apiToken: cfg.APIToken},
		logger: logger,
	}
}

func (a *Adapter) Name() string  { return gateways.ProviderCryptoBot }
func (a *Adapter) Enabled() bool { return a.cfg.Enabled && a.cfg.APIToken != "" }

func (a *Adapter) CreatePayment(ctx context.Context, req gateways.CreateRequest) (*gateways.PaymentHandle, error) {
	if !a.Enabled() {
		return nil, gateways.ErrNotConfigured
	}
	if err := gateways.CheckBounds(req.Amount, a.cfg.MinAmount, a.cfg.MaxAmount); err != nil {
		return nil, err
	}

	inv, err := a.client.createInvoice(ctx,
		req.Currency,
		gateways.MinorToDecimal(req.Amount),
		req.Description,
		fmt.Sprintf("topup:%d", req.PaymentID),
	)
	if err != nil {
		return nil, err
	}

	a.logger.Info("cryptobot invoice created",
		"payment_id", req.PaymentID, "invoice_id", inv.InvoiceID)

	return &gateways.PaymentHandle{
		ExternalID: strconv.FormatInt(inv.InvoiceID, 10),
		PaymentURL: inv.BotInvoiceURL,
	}, nil
}

func (a *Adapter) NormalizeStatus(raw string) gateways.Status {
	switch raw {
	case "paid":
		return gateways.StatusPaid
	case "expired":
		return gateways.StatusFailed
	case "active":
		return gateways.StatusPending
	default:
		return gateways.StatusPending
	}
}

// webhookUpdate is the Crypto Pay update envelope.
type webhookUpdate struct {
	UpdateType string `json:"update_type"`
	Payload    struct {
		InvoiceID int64  `json:"invoice_id"`
		Status    string `json:"status"`
		Amount    string `json:"amount"`
	} `json:"payload"`
}

func (a *Adapter) ParseWebhook(body []byte) (*gateways.WebhookEvent, error) {
	var u webhookUpdate
	if err := json.Unmarshal(body, &u); err != nil {
		return nil, fmt.Errorf("%w: %v", gateways.ErrUnparseable, err)
	}
	if u.Payload.InvoiceID == 0 {
		return nil, fmt.Errorf("%w: missing invoice_id", gateways.ErrUnparseable)
	}

	status := a.NormalizeStatus(u.Payload.Status)
	if u.UpdateType == "invoice_paid" {
		status = gateways.StatusPaid
	}

	amount, err := gateways.DecimalToMinor(u.Payload.Amount)
	if err != nil {
		amount = 0
	}

	return &gateways.WebhookEvent{
		ExternalID: strconv.FormatInt(u.Payload.InvoiceID, 10),
		Status:     status,
		Amount:     amount,
		Raw:        json.RawMessage(body),
	}, nil
}

func (a *Adapter) VerifyWebhook(body []byte, signature string) bool {
	if a.cfg.APIToken == "" {
		return false
	}
	key := sha256.Sum256([]byte(a.cfg.APIToken))
	return gateways.VerifyHMACSHA256Hex(key[:], body, signature)
}

func (a *Adapter) SignatureHeader() string { return "crypto-pay-api-signature" }

func (a *Adapter) PollStatus(ctx context.Context, p *payment.Payment) (gateways.Status, error) {
	if !a.Enabled() {
		return "", gateways.ErrNotConfigured
	}
	if p.ExternalID == nil {
		return "", fmt.Errorf("payment %d has no invoice id", p.ID)
	}

	inv, err := a.client.getInvoice(ctx, *p.ExternalID)
	if err != nil {
		return "", err
	}
	if inv == nil {
		return "", gateways.ErrNotFoundYet
	}

	return a.NormalizeStatus(inv.Status), nil
}
