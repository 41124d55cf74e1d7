package referral

import (
	"context"
	"database/sql"

	"remna-shop/internal/stories/ledger"
)

type Storage interface {
	CreateTransactionTx(ctx context.Context, tx *sql.Tx, t ledger.Transaction) (int64, error)
	IncrementBalanceTx(ctx context.Context, tx *sql.Tx, userID, delta int64) error
}
