// Package mulenpay implements the MulenPay gateway adapter. Create requests
// carry a computed HMAC sign; webhooks are signed over the raw body in the
// X-Mulen-Signature header. The webhook payload has drifted across MulenPay
// versions, so the parser accepts the historical field names for the same
// logical identifier.
package mulenpay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"remna-shop/internal/config"
	"remna-shop/internal/gateways"
	"remna-shop/internal/infra/httpclient"
	"remna-shop/internal/stories/payment"
)

type Adapter struct {
	cfg    config.MulenPayConfig
	http   *httpclient.Client
	logger *slog.Logger
}

func New(cfg config.MulenPayConfig, httpc *httpclient.Client, logger *slog.Logger) *Adapter {
	return &Adapter{cfg: cfg, http: httpc, logger: logger}
}

func (a *Adapter) Name() string  { return gateways.ProviderMulenPay }
func (a *Adapter) Enabled() bool { return a.cfg.Enabled && a.cfg.APIKey != "" && a.cfg.SecretKey != "" }

type createResponse struct {
	Success    bool   `json:"success"`
	PaymentURL string `json:"paymentUrl"`
	ID         int64  `json:"id"`
}

func (a *Adapter) CreatePayment(ctx context.Context, req gateways.CreateRequest) (*gateways.PaymentHandle, error) {
	if !a.Enabled() {
		return nil, gateways.ErrNotConfigured
	}
	if err := gateways.CheckBounds(req.Amount, a.cfg.MinAmount, a.cfg.MaxAmount); err != nil {
		return nil, err
	}

	amount := gateways.MinorToDecimal(req.Amount)
	uuidStr := fmt.Sprintf("topup-%d", req.PaymentID)
	sign := gateways.HMACSHA256Hex(
		[]byte(a.cfg.SecretKey),
		[]byte(fmt.Sprintf("%s%s%d%s", req.Currency, amount, a.cfg.ShopID, uuidStr)),
	)

	body, err := json.Marshal(map[string]any{
		"currency":    req.Currency,
		"amount":      amount,
		"uuid":        uuidStr,
		"shopId":      a.cfg.ShopID,
		"description": req.Description,
		"sign":        sign,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	headers := map[string]string{
		"Content-Type":  "application/json",
		"Authorization": "Bearer " + a.cfg.APIKey,
	}

	status, respBody, err := a.http.Do(ctx, http.MethodPost, a.cfg.BaseURL+"/v2/payments", body, headers)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return nil, fmt.Errorf("mulenpay returned %d: %s", status, respBody)
	}

	var resp createResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("decode mulenpay response: %w", err)
	}
	if !resp.Success {
		return nil, fmt.Errorf("mulenpay rejected payment creation")
	}

	a.logger.Info("mulenpay payment created", "payment_id", req.PaymentID, "mulen_id", resp.ID)

	return &gateways.PaymentHandle{
		ExternalID: strconv.FormatInt(resp.ID, 10),
		PaymentURL: resp.PaymentURL,
	}, nil
}

func (a *Adapter) NormalizeStatus(raw string) gateways.Status {
	switch raw {
	case "paid", "success", "3":
		return gateways.StatusPaid
	case "canceled", "error", "refund", "4", "5":
		return gateways.StatusFailed
	case "created", "processing", "holded", "0", "1", "2":
		return gateways.StatusPending
	default:
		return gateways.StatusPending
	}
}

// webhookPayload tolerates the three historical shapes of the id field.
type webhookPayload struct {
	PaymentID   *int64          `json:"paymentId"`
	PaymentIDv1 *int64          `json:"payment_id"`
	ID          *int64          `json:"id"`
	Status      json.RawMessage `json:"status"`
	Amount      string          `json:"amount"`
}

func (p webhookPayload) externalID() (string, bool) {
	for _, id := range []*int64{p.PaymentID, p.PaymentIDv1, p.ID} {
		if id != nil {
			return strconv.FormatInt(*id, 10), true
		}
	}
	return "", false
}

// status may arrive as a string name or a bare numeric code.
func (p webhookPayload) statusString() string {
	var s string
	if err := json.Unmarshal(p.Status, &s); err == nil {
		return s
	}
	var n int64
	if err := json.Unmarshal(p.Status, &n); err == nil {
		return strconv.FormatInt(n, 10)
	}
	return ""
}

func (a *Adapter) ParseWebhook(body []byte) (*gateways.WebhookEvent, error) {
	var p webhookPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", gateways.ErrUnparseable, err)
	}

	externalID, ok := p.externalID()
	if !ok {
		return nil, fmt.Errorf("%w: missing payment id", gateways.ErrUnparseable)
	}

	amount, err := gateways.DecimalToMinor(p.Amount)
	if err != nil {
		amount = 0
	}

	return &gateways.WebhookEvent{
		ExternalID: externalID,
		Status:     a.NormalizeStatus(p.statusString()),
		Amount:     amount,
		Raw:        json.RawMessage(body),
	}, nil
}

func (a *Adapter) VerifyWebhook(body []byte, signature string) bool {
	if a.cfg.SecretKey == "" {
		return false
	}
	return gateways.VerifyHMACSHA256Hex([]byte(a.cfg.SecretKey), body, signature)
}

func (a *Adapter) SignatureHeader() string { return "X-Mulen-Signature" }

type getResponse struct {
	Payment struct {
		Status json.RawMessage `json:"status"`
	} `json:"payment"`
}

func (a *Adapter) PollStatus(ctx context.Context, p *payment.Payment) (gateways.Status, error) {
	if !a.Enabled() {
		return "", gateways.ErrNotConfigured
	}
	if p.ExternalID == nil {
		return "", fmt.Errorf("payment %d has no mulenpay id", p.ID)
	}

	headers := map[string]string{"Authorization": "Bearer " + a.cfg.APIKey}
	status, respBody, err := a.http.Do(ctx, http.MethodGet, a.cfg.BaseURL+"/v2/payments/"+*p.ExternalID, nil, headers)
	if err != nil {
		return "", err
	}
	if status == http.StatusNotFound {
		return "", gateways.ErrNotFoundYet
	}
	if status != http.StatusOK {
		return "", fmt.Errorf("mulenpay returned %d: %s", status, respBody)
	}

	var resp getResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", fmt.Errorf("decode mulenpay response: %w", err)
	}

	return a.NormalizeStatus(webhookPayload{Status: resp.Payment.Status}.statusString()), nil
}
