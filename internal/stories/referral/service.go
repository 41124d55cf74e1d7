package referral

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"remna-shop/internal/config"
	"remna-shop/internal/infra/sqlite3"
	"remna-shop/internal/stories/ledger"
	"remna-shop/internal/stories/payment"
	"remna-shop/internal/stories/users"
	"remna-shop/internal/storage"
)

// exclusionKeywords mark top-ups that must not earn a commission, so that
// commissions and bonuses never compound through referral chains.
var exclusionKeywords = []string{"commission", "bonus", "комисси", "бонус"}

// Service credits referrers a percentage of their referees' top-ups.
type Service struct {
	storage Storage
	txm     sqlite3.TxManager
	cfg     config.ReferralConfig
	logger  *slog.Logger
}

func NewService(st Storage, txm sqlite3.TxManager, cfg config.ReferralConfig, logger *slog.Logger) *Service {
	return &Service{storage: st, txm: txm, cfg: cfg, logger: logger}
}

func excluded(description string) bool {
	lower := strings.ToLower(description)
	for _, kw := range exclusionKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// CommissionFor computes the commission in minor units. Integer math,
// truncating: the platform keeps the sub-unit remainder.
func (s *Service) CommissionFor(amount int64) int64 {
	return amount * int64(s.cfg.CommissionPercent) / 100
}

// CreditCommission credits the user's referrer for one completed top-up.
// The commission transaction is anchored on the top-up's payment id, so a
// repeated call for the same top-up is a no-op.
func (s *Service) CreditCommission(ctx context.Context, user *users.User, topup *payment.Payment) error {
	if user.ReferrerID == nil {
		return nil
	}
	if excluded(topup.Description) {
		s.logger.Debug("commission excluded by description",
			"payment_id", topup.ID, "description", topup.Description)
		return nil
	}
	if topup.Amount < s.cfg.MinTopupAmount {
		return nil
	}

	commission := s.CommissionFor(topup.Amount)
	if commission <= 0 {
		return nil
	}

	externalID := fmt.Sprintf("commission:%d", topup.ID)

	err := s.txm(ctx, func(tx *sql.Tx) error {
		_, err := s.storage.CreateTransactionTx(ctx, tx, ledger.Transaction{
			UserID:        *user.ReferrerID,
			Amount:        commission,
			Type:          ledger.TypeReferralCommission,
			PaymentMethod: "referral",
			ExternalID:    &externalID,
		})
		if err != nil {
			return err
		}
		return s.storage.IncrementBalanceTx(ctx, tx, *user.ReferrerID, commission)
	})
	if err != nil {
		if storage.IsUniqueViolation(err) {
			s.logger.Debug("commission already credited", "payment_id", topup.ID)
			return nil
		}
		return fmt.Errorf("credit commission: %w", err)
	}

	s.logger.Info("referral commission credited",
		"referrer_id", *user.ReferrerID,
		"referee_id", user.ID,
		"payment_id", topup.ID,
		"commission", commission)

	return nil
}
