// Package gateways defines the uniform contract every payment gateway adapter
// implements, plus the registry the reconciliation engine resolves adapters
// through. Gateway-specific status vocabularies never leak past this boundary:
// adapters normalize everything to the three canonical states.
package gateways

import (
	"context"
	"encoding/json"
	"errors"

	"remna-shop/internal/stories/payment"
)

// Provider names. Used as the payment method tag on ledger transactions and
// as webhook route segments, so they are part of the persisted vocabulary.
const (
	ProviderStars         = "stars"
	ProviderYooKassa      = "yookassa"
	ProviderCryptoBot     = "cryptobot"
	ProviderTribute       = "tribute"
	ProviderMulenPay      = "mulenpay"
	ProviderPal24         = "pal24"
	ProviderPlatega       = "platega"
	ProviderWata          = "wata"
	ProviderCloudPayments = "cloudpayments"
)

var (
	ErrNotConfigured      = errors.New("gateway is not configured")
	ErrAmountOutOfBounds  = errors.New("amount is outside gateway bounds")
	ErrUnparseable        = errors.New("unparseable webhook payload")
	ErrPollingUnsupported = errors.New("gateway does not support status polling")
	// ErrNotFoundYet means the remote side does not know the payment yet.
	// Eventual consistency, not a failure: the intent stays pending.
	ErrNotFoundYet = errors.New("payment not found on gateway yet")
)

// Status is the canonical three-state vocabulary.
type Status string

const (
	StatusPending Status = "pending"
	StatusPaid    Status = "paid"
	StatusFailed  Status = "failed"
)

type CreateRequest struct {
	PaymentID   int64 // local intent id, used as correlation id / invoice payload
	UserID      int64
	ChatID      int64 // needed by in-app providers (Stars invoices)
	Amount      int64 // minor currency units
	Currency    string
	Description string
}

// PaymentHandle is what a user needs to complete the payment. PaymentURL is
// empty for in-app providers that push the invoice themselves.
type PaymentHandle struct {
	ExternalID string
	PaymentURL string
}

// WebhookEvent is the canonical result of parsing one gateway callback.
// Amount is whatever the gateway claims and is informational: the engine
// credits the stored intent amount unless AmountTrusted is set by an adapter
// that re-derives the amount from its own computation.
type WebhookEvent struct {
	// PaymentID is the local intent id, set by adapters whose callbacks
	// echo the correlation id we sent at creation instead of the gateway's
	// own resource id.
	PaymentID     int64
	ExternalID    string
	Status        Status
	Amount        int64
	AmountTrusted bool
	// TelegramUserID is set by out-of-band providers whose webhooks carry
	// the payer identity instead of a pre-created intent id.
	TelegramUserID int64
	Raw            json.RawMessage
}

// Adapter translates between the generic payment vocabulary and one external
// gateway's API and webhook format.
type Adapter interface {
	Name() string
	Enabled() bool

	// CreatePayment calls the gateway's create-invoice API. Amount bounds are
	// checked locally before any network call.
	CreatePayment(ctx context.Context, req CreateRequest) (*PaymentHandle, error)

	// NormalizeStatus is the pure mapping from the gateway's own status
	// vocabulary to the canonical states.
	NormalizeStatus(raw string) Status

	// ParseWebhook parses a raw callback body into a canonical event or
	// returns ErrUnparseable. Legacy payload shapes are handled here.
	ParseWebhook(body []byte) (*WebhookEvent, error)

	// VerifyWebhook checks the callback's authenticity. Signature comparison
	// is constant-time. Gateways without a verifiable signature return the
	// configured trust decision (default deny).
	VerifyWebhook(body []byte, signature string) bool

	// SignatureHeader names the HTTP header carrying the signature. Empty
	// means the signature travels in the body or the gateway does not sign.
	SignatureHeader() string

	// PollStatus actively asks the gateway for the payment's current state.
	PollStatus(ctx context.Context, p *payment.Payment) (Status, error)
}

// CheckBounds validates an amount against configured min/max minor units.
func CheckBounds(amount, min, max int64) error {
	if amount < min {
		return ErrAmountOutOfBounds
	}
	if max > 0 && amount > max {
		return ErrAmountOutOfBounds
	}
	return nil
}
