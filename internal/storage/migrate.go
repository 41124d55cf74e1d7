package storage

import (
	"context"
	"fmt"
)

// schema carries the full DDL. The partial unique index on transactions is
// the idempotency anchor: one completed row per (external_id, payment_method).
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		telegram_id INTEGER NOT NULL UNIQUE,
		balance INTEGER NOT NULL DEFAULT 0,
		referrer_id INTEGER REFERENCES users(id),
		first_topup_at TIMESTAMP,
		language TEXT NOT NULL DEFAULT 'ru',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS transactions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL REFERENCES users(id),
		amount INTEGER NOT NULL,
		type TEXT NOT NULL,
		payment_method TEXT NOT NULL,
		external_id TEXT,
		completed INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL,
		completed_at TIMESTAMP
	)`,

	`CREATE UNIQUE INDEX IF NOT EXISTS idx_transactions_external
		ON transactions (external_id, payment_method)
		WHERE completed = 1 AND external_id IS NOT NULL`,

	`CREATE INDEX IF NOT EXISTS idx_transactions_user ON transactions (user_id)`,

	`CREATE TABLE IF NOT EXISTS payments (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL REFERENCES users(id),
		provider TEXT NOT NULL,
		external_id TEXT,
		amount INTEGER NOT NULL,
		currency TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		paid INTEGER NOT NULL DEFAULT 0,
		transaction_id INTEGER REFERENCES transactions(id),
		payload TEXT,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		paid_at TIMESTAMP
	)`,

	`CREATE UNIQUE INDEX IF NOT EXISTS idx_payments_provider_external
		ON payments (provider, external_id)
		WHERE external_id IS NOT NULL`,

	`CREATE INDEX IF NOT EXISTS idx_payments_status ON payments (status, created_at)`,
}

// Migrate bootstraps the schema. Statements are idempotent, so this runs on
// every startup.
func (s *storageImpl) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema statement: %w", err)
		}
	}
	return nil
}
