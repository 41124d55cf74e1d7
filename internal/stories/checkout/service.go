// Package checkout charges a saved cart from the user's balance. The actual
// subscription provisioning lives behind the Provisioner interface; this
// package owns only the money movement.
package checkout

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"remna-shop/internal/infra/sqlite3"
	"remna-shop/internal/stories/cart"
	"remna-shop/internal/stories/ledger"
	"remna-shop/internal/stories/users"
	"remna-shop/internal/storage"
)

var ErrInsufficientBalance = errors.New("insufficient balance for purchase")

type Service struct {
	storage     Storage
	txm         sqlite3.TxManager
	provisioner Provisioner
	logger      *slog.Logger
}

func NewService(st Storage, txm sqlite3.TxManager, provisioner Provisioner, logger *slog.Logger) *Service {
	return &Service{storage: st, txm: txm, provisioner: provisioner, logger: logger}
}

// PurchaseFromCart debits the cart price and records the charge in the
// ledger. Provisioning runs after the commit: a provisioning failure is an
// operational incident to resolve, not a reason to silently re-credit.
func (s *Service) PurchaseFromCart(ctx context.Context, user *users.User, c *cart.Cart) error {
	if user.Balance < c.Price {
		return ErrInsufficientBalance
	}

	err := s.txm(ctx, func(tx *sql.Tx) error {
		if err := s.storage.DebitBalanceTx(ctx, tx, user.ID, c.Price); err != nil {
			return err
		}
		_, err := s.storage.CreateTransactionTx(ctx, tx, ledger.Transaction{
			UserID:        user.ID,
			Amount:        -c.Price,
			Type:          ledger.TypeSubscriptionPayment,
			PaymentMethod: "balance",
		})
		return err
	})
	if err != nil {
		if errors.Is(err, storage.ErrInsufficientBalance) {
			return ErrInsufficientBalance
		}
		return fmt.Errorf("charge cart purchase: %w", err)
	}

	if s.provisioner != nil {
		if err := s.provisioner.Provision(ctx, user.ID, c.PlanID, c.Months, c.Devices); err != nil {
			s.logger.Error("provisioning failed after charge",
				"user_id", user.ID, "plan_id", c.PlanID, "error", err)
			return fmt.Errorf("provision plan %s: %w", c.PlanID, err)
		}
	}

	s.logger.Info("cart purchased",
		"user_id", user.ID, "plan_id", c.PlanID, "price", c.Price)
	return nil
}
