package checkout

import (
	"context"
	"database/sql"

	"remna-shop/internal/stories/ledger"
)

type Storage interface {
	CreateTransactionTx(ctx context.Context, tx *sql.Tx, t ledger.Transaction) (int64, error)
	DebitBalanceTx(ctx context.Context, tx *sql.Tx, userID, amount int64) error
}

// Provisioner activates the purchased plan after the balance charge commits.
type Provisioner interface {
	Provision(ctx context.Context, userID int64, planID string, months, devices int) error
}
