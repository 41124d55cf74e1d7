package topup

import (
	"context"
	"database/sql"

	"remna-shop/internal/gateways"
	"remna-shop/internal/stories/cart"
	"remna-shop/internal/stories/ledger"
	"remna-shop/internal/stories/payment"
	"remna-shop/internal/stories/users"
)

// Storage is the persistence surface the reconciliation engine needs. The
// Tx variants run inside the engine's unit of work.
type Storage interface {
	CreatePayment(ctx context.Context, params payment.CreateParams) (*payment.Payment, error)
	GetPayment(ctx context.Context, criteria payment.GetCriteria) (*payment.Payment, error)
	UpdatePayment(ctx context.Context, criteria payment.GetCriteria, params payment.UpdateParams) (*payment.Payment, error)
	ListPayments(ctx context.Context, criteria payment.ListCriteria) ([]*payment.Payment, error)
	MarkPaymentPaidTx(ctx context.Context, tx *sql.Tx, paymentID, transactionID int64) error

	CreateTransactionTx(ctx context.Context, tx *sql.Tx, t ledger.Transaction) (int64, error)
	GetCompletedDeposit(ctx context.Context, externalID, paymentMethod string) (*ledger.Transaction, error)
	IncrementBalanceTx(ctx context.Context, tx *sql.Tx, userID, delta int64) error

	GetUser(ctx context.Context, id int64) (*users.User, error)
	GetUserByTelegramID(ctx context.Context, telegramID int64) (*users.User, error)
	SetFirstTopup(ctx context.Context, userID int64) error
}

// Gateways resolves provider names to adapters.
type Gateways interface {
	Get(name string) (gateways.Adapter, error)
}

// Effects receives credited events for asynchronous post-credit processing.
type Effects interface {
	Enqueue(ev CreditedEvent)
}

// Referrals credits referrer commissions. Called from the effects pipeline.
type Referrals interface {
	CreditCommission(ctx context.Context, user *users.User, topup *payment.Payment) error
}

// Notifier delivers top-up messages to the user and the admin chat.
type Notifier interface {
	NotifyUserCredited(ctx context.Context, user *users.User, p *payment.Payment, oldBalance, newBalance int64)
	NotifyAdminTopup(ctx context.Context, user *users.User, p *payment.Payment)
	NotifyResumeCheckout(ctx context.Context, user *users.User, c *cart.Cart)
}

// Carts reads and clears saved carts for the auto-purchase effect.
type Carts interface {
	Get(ctx context.Context, userID int64) (*cart.Cart, error)
	Delete(ctx context.Context, userID int64) error
}

// Checkout completes a saved cart purchase from the user's balance.
type Checkout interface {
	PurchaseFromCart(ctx context.Context, user *users.User, c *cart.Cart) error
}
