// Package pal24 implements the Pal24 (Cardlink lineage) gateway adapter.
// Postbacks are form-encoded with an MD5 SignatureValue computed over
// OutSum:InvId:token, the legacy Robokassa-style scheme this family of
// gateways still uses. Field names vary across postback generations, so the
// parser accepts the known variants.
package pal24

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"remna-shop/internal/config"
	"remna-shop/internal/gateways"
	"remna-shop/internal/infra/httpclient"
	"remna-shop/internal/stories/payment"
)

type Adapter struct {
	cfg    config.Pal24Config
	http   *httpclient.Client
	logger *slog.Logger
}

func New(cfg config.Pal24Config, httpc *httpclient.Client, logger *slog.Logger) *Adapter {
	return &Adapter{cfg: cfg, http: httpc, logger: logger}
}

func (a *Adapter) Name() string  { return gateways.ProviderPal24 }
func (a *Adapter) Enabled() bool { return a.cfg.Enabled && a.cfg.APIToken != "" && a.cfg.ShopID != "" }

type createResponse struct {
	Success     string `json:"success"`
	LinkURL     string `json:"link_url"`
	LinkPageURL string `json:"link_page_url"`
	BillID      string `json:"bill_id"`
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
		"order_id":    fmt.Sprintf("%d", req.PaymentID),
		"shop_id":     a.cfg.ShopID,
		"currency_in": req.Currency,
		"name":        req.Description,
		"type":        "normal",
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	headers := map[string]string{
		"Content-Type":  "application/json",
		"Accept":        "application/json",
		"Authorization": "Bearer " + a.cfg.APIToken,
	}

	status, respBody, err := a.http.Do(ctx, http.MethodPost, a.cfg.BaseURL+"/bill/create", body, headers)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("pal24 returned %d: %s", status, respBody)
	}

	var resp createResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("decode pal24 response: %w", err)
	}
	if resp.Success != "true" || resp.BillID == "" {
		return nil, fmt.Errorf("pal24 rejected bill creation")
	}

	link := resp.LinkPageURL
	if link == "" {
		link = resp.LinkURL
	}

	a.logger.Info("pal24 bill created", "payment_id", req.PaymentID, "bill_id", resp.BillID)

	return &gateways.PaymentHandle{
		ExternalID: resp.BillID,
		PaymentURL: link,
	}, nil
}

func (a *Adapter) NormalizeStatus(raw string) gateways.Status {
	switch raw {
	case "SUCCESS", "OVERPAID":
		return gateways.StatusPaid
	case "FAIL", "UNDERPAID":
		return gateways.StatusFailed
	case "NEW", "PROCESS":
		return gateways.StatusPending
	default:
		return gateways.StatusPending
	}
}

// firstOf returns the first non-empty value among the historical names of
// one logical postback field.
func firstOf(values url.Values, names ...string) string {
	for _, name := range names {
		if v := values.Get(name); v != "" {
			return v
		}
	}
	return ""
}

func (a *Adapter) ParseWebhook(body []byte) (*gateways.WebhookEvent, error) {
	values, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", gateways.ErrUnparseable, err)
	}

	billID := firstOf(values, "InvId", "inv_id", "bill_id")
	if billID == "" {
		return nil, fmt.Errorf("%w: missing InvId", gateways.ErrUnparseable)
	}

	status := firstOf(values, "Status", "status")
	outSum := firstOf(values, "OutSum", "out_summ", "amount")

	amount, err := gateways.DecimalToMinor(outSum)
	if err != nil {
		amount = 0
	}

	raw, _ := json.Marshal(values)

	return &gateways.WebhookEvent{
		ExternalID: billID,
		Status:     a.NormalizeStatus(status),
		Amount:     amount,
		Raw:        raw,
	}, nil
}

// VerifyWebhook recomputes the Cardlink-style MD5 over OutSum:InvId:token.
// The signature travels in the postback body, not a header.
func (a *Adapter) VerifyWebhook(body []byte, signature string) bool {
	if a.cfg.APIToken == "" {
		return false
	}

	values, err := url.ParseQuery(string(body))
	if err != nil {
		return false
	}

	got := firstOf(values, "SignatureValue", "signature_value", "Signature")
	if got == "" {
		return false
	}

	outSum := firstOf(values, "OutSum", "out_summ", "amount")
	invID := firstOf(values, "InvId", "inv_id", "bill_id")
	expected := gateways.MD5UpperHex(outSum, invID, a.cfg.APIToken)

	return gateways.EqualConstantTime(expected, got)
}

func (a *Adapter) SignatureHeader() string { return "" }

type statusResponse struct {
	Status string `json:"status"`
}

func (a *Adapter) PollStatus(ctx context.Context, p *payment.Payment) (gateways.Status, error) {
	if !a.Enabled() {
		return "", gateways.ErrNotConfigured
	}
	if p.ExternalID == nil {
		return "", fmt.Errorf("payment %d has no bill id", p.ID)
	}

	headers := map[string]string{
		"Accept":        "application/json",
		"Authorization": "Bearer " + a.cfg.APIToken,
	}

	status, respBody, err := a.http.Do(ctx, http.MethodGet,
		a.cfg.BaseURL+"/bill/status?id="+url.QueryEscape(*p.ExternalID), nil, headers)
	if err != nil {
		return "", err
	}
	if status == http.StatusNotFound {
		return "", gateways.ErrNotFoundYet
	}
	if status != http.StatusOK {
		return "", fmt.Errorf("pal24 returned %d: %s", status, respBody)
	}

	var resp statusResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", fmt.Errorf("decode pal24 response: %w", err)
	}

	return a.NormalizeStatus(resp.Status), nil
}
