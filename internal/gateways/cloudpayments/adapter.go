// Package cloudpayments implements the CloudPayments gateway adapter.
// Payment links go through the orders API; Pay notifications arrive
// form-encoded with an HMAC-SHA256 base64 digest of the raw body in the
// Content-HMAC header. CloudPayments expects its own {"code":N} ack format,
// which the webhook surface honors for this route.
package cloudpayments

import (
	"context"
	"encoding/base64"
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
	cfg    config.CloudPaymentsConfig
	http   *httpclient.Client
	logger *slog.Logger
}

func New(cfg config.CloudPaymentsConfig, httpc *httpclient.Client, logger *slog.Logger) *Adapter {
	return &Adapter{cfg: cfg, http: httpc, logger: logger}
}

func (a *Adapter) Name() string  { return gateways.ProviderCloudPayments }
func (a *Adapter) Enabled() bool { return a.cfg.Enabled && a.cfg.PublicID != "" && a.cfg.APISecret != "" }

func (a *Adapter) headers() map[string]string {
	auth := base64.StdEncoding.EncodeToString([]byte(a.cfg.PublicID + ":" + a.cfg.APISecret))
	return map[string]string{
		"Content-Type":  "application/json",
		"Authorization": "Basic " + auth,
	}
}

type orderResponse struct {
	Success bool `json:"Success"`
	Model   struct {
		ID  string `json:"Id"`
		URL string `json:"Url"`
	} `json:"Model"`
	Message string `json:"Message"`
}

func (a *Adapter) CreatePayment(ctx context.Context, req gateways.CreateRequest) (*gateways.PaymentHandle, error) {
	if !a.Enabled() {
		return nil, gateways.ErrNotConfigured
	}
	if err := gateways.CheckBounds(req.Amount, a.cfg.MinAmount, a.cfg.MaxAmount); err != nil {
		return nil, err
	}

	body, err := json.Marshal(map[string]any{
		"Amount":      gateways.MinorToDecimal(req.Amount),
		"Currency":    req.Currency,
		"Description": req.Description,
		"AccountId":   fmt.Sprintf("%d", req.UserID),
		"InvoiceId":   fmt.Sprintf("%d", req.PaymentID),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	status, respBody, err := a.http.Do(ctx, http.MethodPost, a.cfg.BaseURL+"/orders/create", body, a.headers())
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("cloudpayments returned %d: %s", status, respBody)
	}

	var resp orderResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("decode cloudpayments response: %w", err)
	}
	if !resp.Success {
		return nil, fmt.Errorf("cloudpayments rejected order: %s", resp.Message)
	}

	a.logger.Info("cloudpayments order created",
		"payment_id", req.PaymentID, "order_id", resp.Model.ID)

	return &gateways.PaymentHandle{
		ExternalID: resp.Model.ID,
		PaymentURL: resp.Model.URL,
	}, nil
}

func (a *Adapter) NormalizeStatus(raw string) gateways.Status {
	switch raw {
	case "Completed", "Authorized":
		return gateways.StatusPaid
	case "Declined", "Cancelled":
		return gateways.StatusFailed
	case "AwaitingAuthentication", "Created", "Pending":
		return gateways.StatusPending
	default:
		return gateways.StatusPending
	}
}

// ParseWebhook handles the form-encoded Pay/Fail notification. Notifications
// echo the InvoiceId we sent at creation, which is the local payment id; the
// gateway's own TransactionId stays in the raw snapshot for audit.
func (a *Adapter) ParseWebhook(body []byte) (*gateways.WebhookEvent, error) {
	values, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", gateways.ErrUnparseable, err)
	}

	paymentID, err := strconv.ParseInt(values.Get("InvoiceId"), 10, 64)
	if err != nil || paymentID <= 0 {
		return nil, fmt.Errorf("%w: missing or non-numeric InvoiceId", gateways.ErrUnparseable)
	}

	status := values.Get("Status")
	if status == "" {
		// Pay notifications omit Status; the notification kind implies it.
		status = "Completed"
	}

	amount, err := gateways.DecimalToMinor(values.Get("Amount"))
	if err != nil {
		amount = 0
	}

	raw, _ := json.Marshal(values)

	return &gateways.WebhookEvent{
		PaymentID: paymentID,
		Status:    a.NormalizeStatus(status),
		Amount:    amount,
		Raw:       raw,
	}, nil
}

func (a *Adapter) VerifyWebhook(body []byte, signature string) bool {
	if a.cfg.APISecret == "" {
		return false
	}
	return gateways.VerifyHMACSHA256Base64([]byte(a.cfg.APISecret), body, signature)
}

func (a *Adapter) SignatureHeader() string { return "Content-HMAC" }

type findResponse struct {
	Success bool `json:"Success"`
	Model   struct {
		Status string `json:"Status"`
	} `json:"Model"`
}

func (a *Adapter) PollStatus(ctx context.Context, p *payment.Payment) (gateways.Status, error) {
	if !a.Enabled() {
		return "", gateways.ErrNotConfigured
	}

	body, err := json.Marshal(map[string]any{
		"InvoiceId": fmt.Sprintf("%d", p.ID),
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	status, respBody, err := a.http.Do(ctx, http.MethodPost, a.cfg.BaseURL+"/payments/find", body, a.headers())
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return "", fmt.Errorf("cloudpayments returned %d: %s", status, respBody)
	}

	var resp findResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", fmt.Errorf("decode cloudpayments response: %w", err)
	}
	if !resp.Success {
		// Not-found until the user actually pays through the widget.
		return "", gateways.ErrNotFoundYet
	}

	return a.NormalizeStatus(resp.Model.Status), nil
}

// Refund issues a refund for a captured transaction.
func (a *Adapter) Refund(ctx context.Context, transactionID string, amountMinor int64) error {
	if !a.Enabled() {
		return gateways.ErrNotConfigured
	}

	body, err := json.Marshal(map[string]any{
		"TransactionId": transactionID,
		"Amount":        gateways.MinorToDecimal(amountMinor),
	})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	status, respBody, err := a.http.Do(ctx, http.MethodPost, a.cfg.BaseURL+"/payments/refund", body, a.headers())
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("cloudpayments returned %d: %s", status, respBody)
	}

	var resp struct {
		Success bool   `json:"Success"`
		Message string `json:"Message"`
	}
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return fmt.Errorf("decode cloudpayments response: %w", err)
	}
	if !resp.Success {
		return fmt.Errorf("cloudpayments refund rejected: %s", resp.Message)
	}

	return nil
}
