package pal24

import (
	"errors"
	"log/slog"
	"net/url"
	"testing"

	"remna-shop/internal/config"
	"remna-shop/internal/gateways"
)

func testAdapter() *Adapter {
	cfg := config.Pal24Config{Enabled: true, APIToken: "api-token", ShopID: "shop-1"}
	return New(cfg, nil, slog.Default())
}

func TestNormalizeStatus(t *testing.T) {
	tests := []struct {
		raw      string
		expected gateways.Status
	}{
		{raw: "SUCCESS", expected: gateways.StatusPaid},
		{raw: "OVERPAID", expected: gateways.StatusPaid},
		{raw: "FAIL", expected: gateways.StatusFailed},
		{raw: "UNDERPAID", expected: gateways.StatusFailed},
		{raw: "NEW", expected: gateways.StatusPending},
		{raw: "PROCESS", expected: gateways.StatusPending},
		{raw: "unknown", expected: gateways.StatusPending},
	}

	a := testAdapter()
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			if got := a.NormalizeStatus(tt.raw); got != tt.expected {
				t.Errorf("NormalizeStatus(%q) = %q, want %q", tt.raw, got, tt.expected)
			}
		})
	}
}

func TestParseWebhookFieldVariants(t *testing.T) {
	a := testAdapter()

	tests := []struct {
		name     string
		body     string
		billID   string
		status   gateways.Status
		amount   int64
	}{
		{
			name:   "modern fields",
			body:   "InvId=bill-1&Status=SUCCESS&OutSum=100.00",
			billID: "bill-1",
			status: gateways.StatusPaid,
			amount: 10000,
		},
		{
			name:   "snake case generation",
			body:   "inv_id=bill-2&status=FAIL&out_summ=50.00",
			billID: "bill-2",
			status: gateways.StatusFailed,
			amount: 5000,
		},
		{
			name:   "bill_id with amount",
			body:   "bill_id=bill-3&status=PROCESS&amount=25.50",
			billID: "bill-3",
			status: gateways.StatusPending,
			amount: 2550,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := a.ParseWebhook([]byte(tt.body))
			if err != nil {
				t.Fatalf("ParseWebhook: %v", err)
			}
			if ev.ExternalID != tt.billID {
				t.Errorf("ExternalID = %q, want %q", ev.ExternalID, tt.billID)
			}
			if ev.Status != tt.status {
				t.Errorf("Status = %q, want %q", ev.Status, tt.status)
			}
			if ev.Amount != tt.amount {
				t.Errorf("Amount = %d, want %d", ev.Amount, tt.amount)
			}
		})
	}
}

func TestParseWebhookMissingInvID(t *testing.T) {
	a := testAdapter()
	_, err := a.ParseWebhook([]byte("Status=SUCCESS&OutSum=100.00"))
	if !errors.Is(err, gateways.ErrUnparseable) {
		t.Errorf("expected ErrUnparseable, got %v", err)
	}
}

func TestVerifyWebhook(t *testing.T) {
	a := testAdapter()

	sign := gateways.MD5UpperHex("100.00", "bill-1", "api-token")
	body := url.Values{
		"InvId":          {"bill-1"},
		"OutSum":         {"100.00"},
		"Status":         {"SUCCESS"},
		"SignatureValue": {sign},
	}.Encode()

	if !a.VerifyWebhook([]byte(body), "") {
		t.Error("valid body signature rejected")
	}

	tampered := url.Values{
		"InvId":          {"bill-1"},
		"OutSum":         {"999.00"},
		"Status":         {"SUCCESS"},
		"SignatureValue": {sign},
	}.Encode()
	if a.VerifyWebhook([]byte(tampered), "") {
		t.Error("tampered amount accepted")
	}

	unsigned := "InvId=bill-1&OutSum=100.00&Status=SUCCESS"
	if a.VerifyWebhook([]byte(unsigned), "") {
		t.Error("postback without signature accepted")
	}
}
