package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"remna-shop/internal/stories/payment"
)

const paymentsTable = "payments"

var paymentRowFields = fields(paymentRow{})

type paymentRow struct {
	ID            int64      `db:"id"`
	UserID        int64      `db:"user_id"`
	Provider      string     `db:"provider"`
	ExternalID    *string    `db:"external_id"`
	Amount        int64      `db:"amount"`
	Currency      string     `db:"currency"`
	Description   string     `db:"description"`
	Status        string     `db:"status"`
	Paid          bool       `db:"paid"`
	TransactionID *int64     `db:"transaction_id"`
	Payload       *string    `db:"payload"`
	CreatedAt     time.Time  `db:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at"`
	PaidAt        *time.Time `db:"paid_at"`
}

func (p paymentRow) ToModel() *payment.Payment {
	return &payment.Payment{
		ID:            p.ID,
		UserID:        p.UserID,
		Provider:      p.Provider,
		ExternalID:    p.ExternalID,
		Amount:        p.Amount,
		Currency:      p.Currency,
		Description:   p.Description,
		Status:        payment.Status(p.Status),
		Paid:          p.Paid,
		TransactionID: p.TransactionID,
		Payload:       p.Payload,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
		PaidAt:        p.PaidAt,
	}
}

func scanPaymentRow(scan func(...any) error) (*paymentRow, error) {
	var p paymentRow
	err := scan(&p.ID, &p.UserID, &p.Provider, &p.ExternalID, &p.Amount, &p.Currency,
		&p.Description, &p.Status, &p.Paid, &p.TransactionID, &p.Payload,
		&p.CreatedAt, &p.UpdatedAt, &p.PaidAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *storageImpl) CreatePayment(ctx context.Context, params payment.CreateParams) (*payment.Payment, error) {
	values := map[string]interface{}{
		"user_id":     params.UserID,
		"provider":    params.Provider,
		"external_id": params.ExternalID,
		"amount":      params.Amount,
		"currency":    params.Currency,
		"description": params.Description,
		"status":      string(payment.StatusPending),
		"paid":        false,
		"created_at":  s.now(),
		"updated_at":  s.now(),
	}

	q, args, err := s.stmpBuilder().
		Insert(paymentsTable).
		SetMap(values).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build sql query: %w", err)
	}

	result, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("db.ExecContext: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("result.LastInsertId: %w", err)
	}

	return s.GetPayment(ctx, payment.GetCriteria{ID: &id})
}

func applyPaymentCriteria(query sq.SelectBuilder, criteria payment.GetCriteria) sq.SelectBuilder {
	if criteria.ID != nil {
		query = query.Where(sq.Eq{"id": *criteria.ID})
	}
	if criteria.Provider != nil {
		query = query.Where(sq.Eq{"provider": *criteria.Provider})
	}
	if criteria.ExternalID != nil {
		query = query.Where(sq.Eq{"external_id": *criteria.ExternalID})
	}
	return query
}

func (s *storageImpl) GetPayment(ctx context.Context, criteria payment.GetCriteria) (*payment.Payment, error) {
	query := applyPaymentCriteria(
		s.stmpBuilder().Select(paymentRowFields).From(paymentsTable).Limit(1),
		criteria,
	)

	q, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build sql query: %w", err)
	}

	row := s.db.QueryRowContext(ctx, q, args...)
	p, err := scanPaymentRow(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("row.Scan: %w", err)
	}

	return p.ToModel(), nil
}

func (s *storageImpl) UpdatePayment(ctx context.Context, criteria payment.GetCriteria, params payment.UpdateParams) (*payment.Payment, error) {
	query := s.stmpBuilder().
		Update(paymentsTable).
		Set("updated_at", s.now())

	if criteria.ID != nil {
		query = query.Where(sq.Eq{"id": *criteria.ID})
	}
	if criteria.Provider != nil {
		query = query.Where(sq.Eq{"provider": *criteria.Provider})
	}
	if criteria.ExternalID != nil {
		query = query.Where(sq.Eq{"external_id": *criteria.ExternalID})
	}

	if params.Status != nil {
		query = query.Set("status", string(*params.Status))
		// paid is monotonic: status writes never touch a paid intent.
		query = query.Where(sq.Eq{"paid": false})
	}
	if params.ExternalID != nil {
		query = query.Set("external_id", *params.ExternalID)
	}
	if params.Payload != nil {
		query = query.Set("payload", *params.Payload)
	}

	q, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build sql query: %w", err)
	}

	if _, err = s.db.ExecContext(ctx, q, args...); err != nil {
		return nil, fmt.Errorf("db.ExecContext: %w", err)
	}

	return s.GetPayment(ctx, criteria)
}

// MarkPaymentPaidTx flips paid inside the credit transaction. The paid=false
// guard makes the flip itself idempotent at the SQL level.
func (s *storageImpl) MarkPaymentPaidTx(ctx context.Context, tx *sql.Tx, paymentID, transactionID int64) error {
	now := s.now()

	q, args, err := s.stmpBuilder().
		Update(paymentsTable).
		Set("status", string(payment.StatusPaid)).
		Set("paid", true).
		Set("transaction_id", transactionID).
		Set("paid_at", now).
		Set("updated_at", now).
		Where(sq.Eq{"id": paymentID, "paid": false}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build sql query: %w", err)
	}

	result, err := tx.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("tx.ExecContext: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("result.RowsAffected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("payment %d: %w", paymentID, ErrAlreadyPaid)
	}

	return nil
}

func (s *storageImpl) ListPayments(ctx context.Context, criteria payment.ListCriteria) ([]*payment.Payment, error) {
	query := s.stmpBuilder().
		Select(paymentRowFields).
		From(paymentsTable)

	if criteria.UserID != nil {
		query = query.Where(sq.Eq{"user_id": *criteria.UserID})
	}
	if criteria.Provider != nil {
		query = query.Where(sq.Eq{"provider": *criteria.Provider})
	}
	if criteria.Status != nil {
		query = query.Where(sq.Eq{"status": string(*criteria.Status)})
	}
	if criteria.CreatedAfter != nil {
		query = query.Where(sq.GtOrEq{"created_at": *criteria.CreatedAfter})
	}
	if criteria.OlderThan != nil {
		query = query.Where(sq.Lt{"created_at": *criteria.OlderThan})
	}

	if criteria.Limit > 0 {
		query = query.Limit(uint64(criteria.Limit))
	}
	if criteria.Offset > 0 {
		query = query.Offset(uint64(criteria.Offset))
	}

	query = query.OrderBy("created_at ASC")

	q, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build sql query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("db.QueryContext: %w", err)
	}
	defer rows.Close()

	var result []*payment.Payment
	for rows.Next() {
		p, err := scanPaymentRow(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("rows.Scan: %w", err)
		}
		result = append(result, p.ToModel())
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("rows.Err: %w", err)
	}

	return result, nil
}
