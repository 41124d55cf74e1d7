// Package wata implements the Wata gateway adapter. Payment links are created
// over the h2h API; webhooks carry an HMAC-SHA256 base64 signature of the raw
// body in X-Signature.
package wata

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"remna-shop/internal/config"
	"remna-shop/internal/gateways"
	"remna-shop/internal/infra/httpclient"
	"remna-shop/internal/stories/payment"
)

type Adapter struct {
	cfg    config.WataConfig
	http   *httpclient.Client
	logger *slog.Logger
}

func New(cfg config.WataConfig, httpc *httpclient.Client, logger *slog.Logger) *Adapter {
	return &Adapter{cfg: cfg, http: httpc, logger: logger}
}

func (a *Adapter) Name() string  { return gateways.ProviderWata }
func (a *Adapter) Enabled() bool { return a.cfg.Enabled && a.cfg.APIToken != "" }

type createResponse struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

func (a *Adapter) CreatePayment(ctx context.Context, req gateways.CreateRequest) (*gateways.PaymentHandle, error) {
	if !a.Enabled() {
		return nil, gateways.ErrNotConfigured
	}
	if err := gateways.CheckBounds(req.Amount, a.cfg.MinAmount, a.cfg.MaxAmount); err != nil {
		return nil, err
	}

	body, err := json.Marshal(map[string]any{
		"amount":      gateways.MinorToDecimal(req.Amount),
		"currency":    req.Currency,
		"description": req.Description,
		"orderId":     fmt.Sprintf("%d", req.PaymentID),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	headers := map[string]string{
		"Content-Type":  "application/json",
		"Authorization": "Bearer " + a.cfg.APIToken,
	}

	status, respBody, err := a.http.Do(ctx, http.MethodPost, a.cfg.BaseURL+"/api/h2h/links", body, headers)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return nil, fmt.Errorf("wata returned %d: %s", status, respBody)
	}

	var resp createResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("decode wata response: %w", err)
	}
	if resp.ID == "" {
		return nil, fmt.Errorf("wata response has no link id")
	}

	a.logger.Info("wata payment link created", "payment_id", req.PaymentID, "link_id", resp.ID)

	return &gateways.PaymentHandle{
		ExternalID: resp.ID,
		PaymentURL: resp.URL,
	}, nil
}

func (a *Adapter) NormalizeStatus(raw string) gateways.Status {
	switch raw {
	case "Paid", "Closed":
		return gateways.StatusPaid
	case "Declined", "Expired":
		return gateways.StatusFailed
	case "Opened", "Pending":
		return gateways.StatusPending
	default:
		return gateways.StatusPending
	}
}

// webhookPayload accepts both orderId generations and both status names.
type webhookPayload struct {
	OrderID           string      `json:"orderId"`
	OrderIDLegacy     string      `json:"order_id"`
	TransactionStatus string      `json:"transactionStatus"`
	Status            string      `json:"status"`
	Amount            json.Number `json:"amount"`
}

// ParseWebhook correlates on the orderId the link was created with, which is
// the local payment id. The webhook's transactionId identifies the gateway's
// own transaction and is kept only in the raw snapshot.
func (a *Adapter) ParseWebhook(body []byte) (*gateways.WebhookEvent, error) {
	var p webhookPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", gateways.ErrUnparseable, err)
	}

	orderID := p.OrderID
	if orderID == "" {
		orderID = p.OrderIDLegacy
	}
	paymentID, err := strconv.ParseInt(orderID, 10, 64)
	if err != nil || paymentID <= 0 {
		return nil, fmt.Errorf("%w: missing or non-numeric orderId", gateways.ErrUnparseable)
	}

	rawStatus := p.TransactionStatus
	if rawStatus == "" {
		rawStatus = p.Status
	}

	amount, err := gateways.DecimalToMinor(p.Amount.String())
	if err != nil {
		amount = 0
	}

	return &gateways.WebhookEvent{
		PaymentID: paymentID,
		Status:    a.NormalizeStatus(rawStatus),
		Amount:    amount,
		Raw:       json.RawMessage(body),
	}, nil
}

func (a *Adapter) VerifyWebhook(body []byte, signature string) bool {
	if a.cfg.SigningKey == "" {
		return false
	}
	return gateways.VerifyHMACSHA256Base64([]byte(a.cfg.SigningKey), body, signature)
}

func (a *Adapter) SignatureHeader() string { return "X-Signature" }

type searchResponse struct {
	Items []struct {
		Status string `json:"status"`
	} `json:"items"`
}

func (a *Adapter) PollStatus(ctx context.Context, p *payment.Payment) (gateways.Status, error) {
	if !a.Enabled() {
		return "", gateways.ErrNotConfigured
	}

	headers := map[string]string{"Authorization": "Bearer " + a.cfg.APIToken}
	endpoint := a.cfg.BaseURL + "/api/h2h/transactions?orderId=" + url.QueryEscape(fmt.Sprintf("%d", p.ID))

	status, respBody, err := a.http.Do(ctx, http.MethodGet, endpoint, nil, headers)
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return "", fmt.Errorf("wata returned %d: %s", status, respBody)
	}

	var resp searchResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", fmt.Errorf("decode wata response: %w", err)
	}
	if len(resp.Items) == 0 {
		// The transaction only materializes after the user opens the link.
		return "", gateways.ErrNotFoundYet
	}

	return a.NormalizeStatus(resp.Items[0].Status), nil
}
