// Package yookassa implements the YooKassa gateway adapter on top of the
// official-style SDK. YooKassa does not sign webhook bodies (trust is an IP
// allowlist on their side), so the weaker inbound trust boundary is logged.
package yookassa

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	yoopayment "github.com/rvinnie/yookassa-sdk-go/yookassa/payment"

	"remna-shop/internal/config"
	"remna-shop/internal/gateways"
	"remna-shop/internal/stories/payment"
)

type Adapter struct {
	cfg    config.YooKassaConfig
	client *client
	logger *slog.Logger
}

func New(cfg config.YooKassaConfig, logger *slog.Logger) *Adapter {
	a := &Adapter{cfg: cfg, logger: logger}
	if cfg.Enabled {
		a.client = newClient(cfg.ShopID, cfg.SecretKey, cfg.ReturnURL, logger)
	}
	return a
}

func (a *Adapter) Name() string  { return gateways.ProviderYooKassa }
func (a *Adapter) Enabled() bool { return a.cfg.Enabled && a.cfg.ShopID != "" && a.cfg.SecretKey != "" }

func (a *Adapter) CreatePayment(ctx context.Context, req gateways.CreateRequest) (*gateways.PaymentHandle, error) {
	if !a.Enabled() {
		return nil, gateways.ErrNotConfigured
	}
	if err := gateways.CheckBounds(req.Amount, a.cfg.MinAmount, a.cfg.MaxAmount); err != nil {
		return nil, err
	}

	metadata := map[string]string{
		"internal_payment_id": fmt.Sprintf("%d", req.PaymentID),
		"user_id":             fmt.Sprintf("%d", req.UserID),
	}

	created, err := a.client.createPayment(req.Amount, req.Currency, req.Description, metadata)
	if err != nil {
		return nil, err
	}

	url := confirmationURL(created)
	if url == "" {
		a.logger.Warn("no confirmation URL in yookassa response", "payment_id", req.PaymentID)
	}

	return &gateways.PaymentHandle{
		ExternalID: created.ID,
		PaymentURL: url,
	}, nil
}

func (a *Adapter) NormalizeStatus(raw string) gateways.Status {
	switch yoopayment.Status(raw) {
	case yoopayment.Succeeded:
		return gateways.StatusPaid
	case yoopayment.Canceled:
		return gateways.StatusFailed
	case yoopayment.Pending, yoopayment.WaitingForCapture:
		return gateways.StatusPending
	default:
		return gateways.StatusPending
	}
}

// webhookNotification is the YooKassa event envelope.
type webhookNotification struct {
	Event  string `json:"event"`
	Object struct {
		ID     string `json:"id"`
		Status string `json:"status"`
		Amount struct {
			Value    string `json:"value"`
			Currency string `json:"currency"`
		} `json:"amount"`
	} `json:"object"`
}

func (a *Adapter) ParseWebhook(body []byte) (*gateways.WebhookEvent, error) {
	var n webhookNotification
	if err := json.Unmarshal(body, &n); err != nil {
		return nil, fmt.Errorf("%w: %v", gateways.ErrUnparseable, err)
	}
	if n.Object.ID == "" {
		return nil, fmt.Errorf("%w: missing payment id", gateways.ErrUnparseable)
	}

	status := a.NormalizeStatus(n.Object.Status)
	// The event name is authoritative when the object status is absent.
	if n.Object.Status == "" {
		switch n.Event {
		case "payment.succeeded":
			status = gateways.StatusPaid
		case "payment.canceled":
			status = gateways.StatusFailed
		}
	}

	amount, err := gateways.DecimalToMinor(n.Object.Amount.Value)
	if err != nil {
		amount = 0 // informational only; the engine credits the stored amount
	}

	return &gateways.WebhookEvent{
		ExternalID: n.Object.ID,
		Status:     status,
		Amount:     amount,
		Raw:        json.RawMessage(body),
	}, nil
}

func (a *Adapter) VerifyWebhook(body []byte, signature string) bool {
	a.logger.Warn("yookassa webhook accepted without signature verification",
		"trust_boundary", "ip_allowlist_only")
	return true
}

func (a *Adapter) SignatureHeader() string { return "" }

func (a *Adapter) PollStatus(ctx context.Context, p *payment.Payment) (gateways.Status, error) {
	if !a.Enabled() {
		return "", gateways.ErrNotConfigured
	}
	if p.ExternalID == nil {
		return "", fmt.Errorf("payment %d has no yookassa id", p.ID)
	}

	remote, err := a.client.findPayment(*p.ExternalID)
	if err != nil {
		return "", err
	}

	return a.NormalizeStatus(string(remote.Status)), nil
}
