package ledger

import "time"

// Type classifies a balance movement.
type Type string

const (
	TypeDeposit             Type = "deposit"
	TypeSubscriptionPayment Type = "subscription_payment"
	TypeRefund              Type = "refund"
	TypeReferralCommission  Type = "referral_commission"
)

// Transaction is the append-only record of a balance movement. Positive
// amounts are deposits, negative are charges. For completed deposits the
// (ExternalID, PaymentMethod) pair is unique: this is the idempotency anchor
// every provider reconciles through.
type Transaction struct {
	ID            int64
	UserID        int64
	Amount        int64
	Type          Type
	PaymentMethod string
	ExternalID    *string
	Completed     bool
	CreatedAt     time.Time
	CompletedAt   *time.Time
}
