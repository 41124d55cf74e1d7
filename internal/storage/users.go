package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"remna-shop/internal/stories/users"
)

const usersTable = "users"

var userRowFields = fields(userRow{})

type userRow struct {
	ID           int64      `db:"id"`
	TelegramID   int64      `db:"telegram_id"`
	Balance      int64      `db:"balance"`
	ReferrerID   *int64     `db:"referrer_id"`
	FirstTopupAt *time.Time `db:"first_topup_at"`
	Language     string     `db:"language"`
	CreatedAt    time.Time  `db:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at"`
}

func (u userRow) ToModel() *users.User {
	return &users.User{
		ID:           u.ID,
		TelegramID:   u.TelegramID,
		Balance:      u.Balance,
		ReferrerID:   u.ReferrerID,
		FirstTopupAt: u.FirstTopupAt,
		Language:     u.Language,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

func (s *storageImpl) getUserWhere(ctx context.Context, pred any) (*users.User, error) {
	q, args, err := s.stmpBuilder().
		Select(userRowFields).
		From(usersTable).
		Where(pred).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build sql query: %w", err)
	}

	row := s.db.QueryRowContext(ctx, q, args...)

	var u userRow
	err = row.Scan(&u.ID, &u.TelegramID, &u.Balance, &u.ReferrerID,
		&u.FirstTopupAt, &u.Language, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("row.Scan: %w", err)
	}

	return u.ToModel(), nil
}

func (s *storageImpl) GetUser(ctx context.Context, id int64) (*users.User, error) {
	return s.getUserWhere(ctx, sq.Eq{"id": id})
}

func (s *storageImpl) GetUserByTelegramID(ctx context.Context, telegramID int64) (*users.User, error) {
	return s.getUserWhere(ctx, sq.Eq{"telegram_id": telegramID})
}

func (s *storageImpl) CreateUser(ctx context.Context, telegramID int64, referrerID *int64) (*users.User, error) {
	q, args, err := s.stmpBuilder().
		Insert(usersTable).
		SetMap(map[string]interface{}{
			"telegram_id": telegramID,
			"balance":     0,
			"referrer_id": referrerID,
			"created_at":  s.now(),
			"updated_at":  s.now(),
		}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build sql query: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		if IsUniqueViolation(err) {
			// Concurrent /start: somebody else created the row first.
			return s.GetUserByTelegramID(ctx, telegramID)
		}
		return nil, fmt.Errorf("db.ExecContext: %w", err)
	}

	return s.GetUserByTelegramID(ctx, telegramID)
}

// IncrementBalanceTx moves the balance inside the caller's transaction,
// always paired with a ledger transaction insert.
func (s *storageImpl) IncrementBalanceTx(ctx context.Context, tx *sql.Tx, userID, delta int64) error {
	q, args, err := s.stmpBuilder().
		Update(usersTable).
		Set("balance", sq.Expr("balance + ?", delta)).
		Set("updated_at", s.now()).
		Where(sq.Eq{"id": userID}).
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
		return fmt.Errorf("user %d not found", userID)
	}

	return nil
}

// DebitBalanceTx charges the balance inside the caller's transaction. The
// balance guard makes overdrafts impossible regardless of what the caller
// checked beforehand.
func (s *storageImpl) DebitBalanceTx(ctx context.Context, tx *sql.Tx, userID, amount int64) error {
	q, args, err := s.stmpBuilder().
		Update(usersTable).
		Set("balance", sq.Expr("balance - ?", amount)).
		Set("updated_at", s.now()).
		Where(sq.Eq{"id": userID}).
		Where("balance >= ?", amount).
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
		return ErrInsufficientBalance
	}

	return nil
}

// SetFirstTopup stamps the flag once; later top-ups leave it untouched.
func (s *storageImpl) SetFirstTopup(ctx context.Context, userID int64) error {
	q, args, err := s.stmpBuilder().
		Update(usersTable).
		Set("first_topup_at", s.now()).
		Set("updated_at", s.now()).
		Where(sq.Eq{"id": userID}).
		Where("first_topup_at IS NULL").
		ToSql()
	if err != nil {
		return fmt.Errorf("build sql query: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("db.ExecContext: %w", err)
	}

	return nil
}
