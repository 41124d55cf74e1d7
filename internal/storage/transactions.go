package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"remna-shop/internal/stories/ledger"
)

const transactionsTable = "transactions"

var transactionRowFields = fields(transactionRow{})

type transactionRow struct {
	ID            int64      `db:"id"`
	UserID        int64      `db:"user_id"`
	Amount        int64      `db:"amount"`
	Type          string     `db:"type"`
	PaymentMethod string     `db:"payment_method"`
	ExternalID    *string    `db:"external_id"`
	Completed     bool       `db:"completed"`
	CreatedAt     time.Time  `db:"created_at"`
	CompletedAt   *time.Time `db:"completed_at"`
}

func (t transactionRow) ToModel() *ledger.Transaction {
	return &ledger.Transaction{
		ID:            t.ID,
		UserID:        t.UserID,
		Amount:        t.Amount,
		Type:          ledger.Type(t.Type),
		PaymentMethod: t.PaymentMethod,
		ExternalID:    t.ExternalID,
		Completed:     t.Completed,
		CreatedAt:     t.CreatedAt,
		CompletedAt:   t.CompletedAt,
	}
}

// CreateTransactionTx inserts a completed transaction inside the caller's
// transaction. A unique violation here means another handler already credited
// the same (external_id, payment_method): callers must treat it as "already
// done", not as failure.
func (s *storageImpl) CreateTransactionTx(ctx context.Context, tx *sql.Tx, t ledger.Transaction) (int64, error) {
	now := s.now()

	q, args, err := s.stmpBuilder().
		Insert(transactionsTable).
		SetMap(map[string]interface{}{
			"user_id":        t.UserID,
			"amount":         t.Amount,
			"type":           string(t.Type),
			"payment_method": t.PaymentMethod,
			"external_id":    t.ExternalID,
			"completed":      true,
			"created_at":     now,
			"completed_at":   now,
		}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build sql query: %w", err)
	}

	result, err := tx.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, fmt.Errorf("tx.ExecContext: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("result.LastInsertId: %w", err)
	}

	return id, nil
}

// GetCompletedDeposit looks up the idempotency anchor.
func (s *storageImpl) GetCompletedDeposit(ctx context.Context, externalID, paymentMethod string) (*ledger.Transaction, error) {
	q, args, err := s.stmpBuilder().
		Select(transactionRowFields).
		From(transactionsTable).
		Where(sq.Eq{
			"external_id":    externalID,
			"payment_method": paymentMethod,
			"completed":      true,
		}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build sql query: %w", err)
	}

	row := s.db.QueryRowContext(ctx, q, args...)

	var t transactionRow
	err = row.Scan(&t.ID, &t.UserID, &t.Amount, &t.Type, &t.PaymentMethod,
		&t.ExternalID, &t.Completed, &t.CreatedAt, &t.CompletedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("row.Scan: %w", err)
	}

	return t.ToModel(), nil
}

func (s *storageImpl) ListTransactions(ctx context.Context, userID int64, limit, offset int) ([]*ledger.Transaction, error) {
	query := s.stmpBuilder().
		Select(transactionRowFields).
		From(transactionsTable).
		Where(sq.Eq{"user_id": userID}).
		OrderBy("created_at DESC")

	if limit > 0 {
		query = query.Limit(uint64(limit))
	}
	if offset > 0 {
		query = query.Offset(uint64(offset))
	}

	q, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build sql query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("db.QueryContext: %w", err)
	}
	defer rows.Close()

	var result []*ledger.Transaction
	for rows.Next() {
		var t transactionRow
		err = rows.Scan(&t.ID, &t.UserID, &t.Amount, &t.Type, &t.PaymentMethod,
			&t.ExternalID, &t.Completed, &t.CreatedAt, &t.CompletedAt)
		if err != nil {
			return nil, fmt.Errorf("rows.Scan: %w", err)
		}
		result = append(result, t.ToModel())
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("rows.Err: %w", err)
	}

	return result, nil
}

// SumCompletedAmounts returns the ledger-derived balance for one user. Used
// by reconciliation checks: the balance column must always equal this sum.
func (s *storageImpl) SumCompletedAmounts(ctx context.Context, userID int64) (int64, error) {
	q, args, err := s.stmpBuilder().
		Select("COALESCE(SUM(amount), 0)").
		From(transactionsTable).
		Where(sq.Eq{"user_id": userID, "completed": true}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build sql query: %w", err)
	}

	var sum int64
	if err := s.db.QueryRowContext(ctx, q, args...).Scan(&sum); err != nil {
		return 0, fmt.Errorf("row.Scan: %w", err)
	}

	return sum, nil
}
