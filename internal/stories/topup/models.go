package topup

import (
	"errors"

	"remna-shop/internal/stories/payment"
	"remna-shop/internal/stories/users"
)

// Result tells the inbound surface how a webhook event ended up, so it can
// pick the right acknowledgement.
type Result string

const (
	// ResultProcessed means this call performed the credit.
	ResultProcessed Result = "processed"
	// ResultDuplicate means the payment was already credited earlier.
	ResultDuplicate Result = "duplicate"
	// ResultIgnored means the event required no state change (unknown
	// payment, non-final status, gateway noise). Still acknowledged.
	ResultIgnored Result = "ignored"
)

var (
	ErrIntentNotFound = errors.New("payment intent not found")
	ErrUnknownUser    = errors.New("payer is not a known user")
)

// Handle is what the caller presents to the user after creating a top-up.
// PaymentURL is empty for in-app providers that deliver the invoice
// themselves.
type Handle struct {
	Payment    *payment.Payment
	PaymentURL string
}

// CreditedEvent is emitted exactly once per credited top-up, after the
// crediting transaction commits.
type CreditedEvent struct {
	User       *users.User
	Payment    *payment.Payment
	OldBalance int64
	NewBalance int64
}
