package yookassa

import (
	"errors"
	"log/slog"
	"testing"

	"remna-shop/internal/config"
	"remna-shop/internal/gateways"
)

func testAdapter() *Adapter {
	cfg := config.YooKassaConfig{Enabled: true, ShopID: "shop", SecretKey: "sk"}
	return New(cfg, slog.Default())
}

func TestNormalizeStatus(t *testing.T) {
	tests := []struct {
		raw      string
		expected gateways.Status
	}{
		{raw: "succeeded", expected: gateways.StatusPaid},
		{raw: "canceled", expected: gateways.StatusFailed},
		{raw: "pending", expected: gateways.StatusPending},
		{raw: "waiting_for_capture", expected: gateways.StatusPending},
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

func TestParseWebhook(t *testing.T) {
	a := testAdapter()

	body := []byte(`{"event":"payment.succeeded","object":{"id":"2d8efa6b-0001","status":"succeeded","amount":{"value":"100.00","currency":"RUB"}}}`)
	ev, err := a.ParseWebhook(body)
	if err != nil {
		t.Fatalf("ParseWebhook: %v", err)
	}
	if ev.ExternalID != "2d8efa6b-0001" {
		t.Errorf("ExternalID = %q", ev.ExternalID)
	}
	if ev.Status != gateways.StatusPaid {
		t.Errorf("Status = %q, want paid", ev.Status)
	}
	if ev.Amount != 10000 {
		t.Errorf("Amount = %d, want 10000", ev.Amount)
	}
}

func TestParseWebhookEventNameFallback(t *testing.T) {
	a := testAdapter()

	// Статус объекта отсутствует - решает имя события
	body := []byte(`{"event":"payment.canceled","object":{"id":"p-1","amount":{"value":"50.00"}}}`)
	ev, err := a.ParseWebhook(body)
	if err != nil {
		t.Fatalf("ParseWebhook: %v", err)
	}
	if ev.Status != gateways.StatusFailed {
		t.Errorf("Status = %q, want failed", ev.Status)
	}
}

func TestParseWebhookMissingID(t *testing.T) {
	a := testAdapter()
	_, err := a.ParseWebhook([]byte(`{"event":"payment.succeeded","object":{"status":"succeeded"}}`))
	if !errors.Is(err, gateways.ErrUnparseable) {
		t.Errorf("expected ErrUnparseable, got %v", err)
	}
}
