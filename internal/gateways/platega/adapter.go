// Package platega implements the Platega gateway adapter. Platega does not
// sign webhook bodies; it replays the merchant credential headers instead.
// Verification compares those headers in constant time, and running without
// a secret is an explicit opt-in (default deny).
package platega

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"remna-shop/internal/config"
	"remna-shop/internal/gateways"
	"remna-shop/internal/infra/httpclient"
	"remna-shop/internal/stories/payment"
)

type Adapter struct {
	cfg    config.PlategaConfig
	http   *httpclient.Client
	logger *slog.Logger
}

func New(cfg config.PlategaConfig, httpc *httpclient.Client, logger *slog.Logger) *Adapter {
	return &Adapter{cfg: cfg, http: httpc, logger: logger}
}

func (a *Adapter) Name() string  { return gateways.ProviderPlatega }
func (a *Adapter) Enabled() bool { return a.cfg.Enabled && a.cfg.MerchantID != "" && a.cfg.Secret != "" }

func (a *Adapter) headers() map[string]string {
	return map[string]string{
		"Content-Type": "application/json",
		"X-MerchantId": a.cfg.MerchantID,
		"X-Secret":     a.cfg.Secret,
	}
}

type createResponse struct {
	TransactionID string `json:"transactionId"`
	Redirect      string `json:"redirect"`
}

func (a *Adapter) CreatePayment(ctx context.Context, req gateways.CreateRequest) (*gateways.PaymentHandle, error) {
	if !a.Enabled() {
		return nil, gateways.ErrNotConfigured
	}
	if err := gateways.CheckBounds(req.Amount, a.cfg.MinAmount, a.cfg.MaxAmount); err != nil {
		return nil, err
	}

	body, err := json.Marshal(map[string]any{
		"paymentMethod": 2,
		"paymentDetails": map[string]any{
			"amount":   gateways.MinorToDecimal(req.Amount),
			"currency": req.Currency,
		},
		"description": req.Description,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	status, respBody, err := a.http.Do(ctx, http.MethodPost,
		a.cfg.BaseURL+"/transaction/process", body, a.headers())
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("platega returned %d: %s", status, respBody)
	}

	var resp createResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("decode platega response: %w", err)
	}
	if resp.TransactionID == "" {
		return nil, fmt.Errorf("platega response has no transaction id")
	}

	a.logger.Info("platega transaction created",
		"payment_id", req.PaymentID, "transaction_id", resp.TransactionID)

	return &gateways.PaymentHandle{
		ExternalID: resp.TransactionID,
		PaymentURL: resp.Redirect,
	}, nil
}

func (a *Adapter) NormalizeStatus(raw string) gateways.Status {
	switch raw {
	case "CONFIRMED":
		return gateways.StatusPaid
	case "CANCELED", "EXPIRED", "DECLINED":
		return gateways.StatusFailed
	case "CREATED", "PENDING", "IN_PROGRESS":
		return gateways.StatusPending
	default:
		return gateways.StatusPending
	}
}

// webhookPayload accepts both the current and the earlier id field name.
type webhookPayload struct {
	TransactionID string `json:"transactionId"`
	ID            string `json:"id"`
	Status        string `json:"status"`
	Amount        json.Number `json:"amount"`
	Currency      string `json:"currency"`
}

func (a *Adapter) ParseWebhook(body []byte) (*gateways.WebhookEvent, error) {
	var p webhookPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", gateways.ErrUnparseable, err)
	}

	externalID := p.TransactionID
	if externalID == "" {
		externalID = p.ID
	}
	if externalID == "" {
		return nil, fmt.Errorf("%w: missing transaction id", gateways.ErrUnparseable)
	}

	amount, err := gateways.DecimalToMinor(p.Amount.String())
	if err != nil {
		amount = 0
	}

	return &gateways.WebhookEvent{
		ExternalID: externalID,
		Status:     a.NormalizeStatus(p.Status),
		Amount:     amount,
		Raw:        json.RawMessage(body),
	}, nil
}

func (a *Adapter) VerifyWebhook(body []byte, signature string) bool {
	if a.cfg.Secret == "" {
		if a.cfg.AllowUnverified {
			a.logger.Warn("platega webhook accepted without verification",
				"reason", "ALLOW_UNVERIFIED is set")
			return true
		}
		return false
	}
	return gateways.EqualConstantTime(a.cfg.Secret, signature)
}

func (a *Adapter) SignatureHeader() string { return "X-Secret" }

type statusResponse struct {
	Status string `json:"status"`
}

func (a *Adapter) PollStatus(ctx context.Context, p *payment.Payment) (gateways.Status, error) {
	if !a.Enabled() {
		return "", gateways.ErrNotConfigured
	}
	if p.ExternalID == nil {
		return "", fmt.Errorf("payment %d has no platega id", p.ID)
	}

	status, respBody, err := a.http.Do(ctx, http.MethodGet,
		a.cfg.BaseURL+"/transaction/"+*p.ExternalID, nil, a.headers())
	if err != nil {
		return "", err
	}
	if status == http.StatusNotFound {
		return "", gateways.ErrNotFoundYet
	}
	if status != http.StatusOK {
		return "", fmt.Errorf("platega returned %d: %s", status, respBody)
	}

	var resp statusResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", fmt.Errorf("decode platega response: %w", err)
	}

	return a.NormalizeStatus(resp.Status), nil
}
