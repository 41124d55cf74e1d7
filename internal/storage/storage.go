package storage

import (
	"errors"
	"reflect"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	sqlite3 "github.com/mattn/go-sqlite3"
)

// ErrAlreadyPaid is returned by MarkPaymentPaidTx when the paid flag was
// already set. Callers repairing state after a crash treat it as success.
var ErrAlreadyPaid = errors.New("payment already paid")

// ErrInsufficientBalance is returned by DebitBalanceTx when the guarded
// update matches no row.
var ErrInsufficientBalance = errors.New("insufficient balance")

type storageImpl struct {
	db  *sqlx.DB
	now func() time.Time
}

func New(db *sqlx.DB) *storageImpl {
	return &storageImpl{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (s *storageImpl) stmpBuilder() sq.StatementBuilderType {
	return sq.StatementBuilder.PlaceholderFormat(sq.Question)
}

// IsUniqueViolation reports whether err is a unique-constraint failure. The
// reconciliation engine relies on it: the loser of a concurrent credit race
// sees this error and re-reads instead of crediting twice.
func IsUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}

// fields returns the comma-joined db tags of a row struct.
func fields(data any) string {
	var s string
	r := reflect.TypeOf(data)
	for i := 0; i < r.NumField(); i++ {
		tag := r.Field(i).Tag.Get("db")
		if tag != "" {
			s += tag + ","
		}
	}
	return s[:len(s)-1]
}
