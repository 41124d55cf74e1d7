package topup

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"remna-shop/internal/gateways"
	"remna-shop/internal/infra/sqlite3"
	"remna-shop/internal/metrics"
	"remna-shop/internal/stories/ledger"
	"remna-shop/internal/stories/payment"
	"remna-shop/internal/storage"
)

// Service is the reconciliation engine: the single path through which any
// confirmation signal (webhook, in-app callback, poll) turns into a credited
// balance. Every signal is treated as at-least-once delivery; the engine
// makes the credit exactly-once.
type Service struct {
	storage  Storage
	gateways Gateways
	txm      sqlite3.TxManager
	effects  Effects
	logger   *slog.Logger
}

func NewService(st Storage, gw Gateways, txm sqlite3.TxManager, effects Effects, logger *slog.Logger) *Service {
	return &Service{
		storage:  st,
		gateways: gw,
		txm:      txm,
		effects:  effects,
		logger:   logger,
	}
}

// CreateTopup records a pending intent and asks the gateway for an invoice.
// The intent is persisted before the network call so a crash between the two
// leaves a reconcilable record, never an orphan invoice.
func (s *Service) CreateTopup(ctx context.Context, userID, chatID int64, provider string, amount int64, currency, description string) (*Handle, error) {
	adapter, err := s.gateways.Get(provider)
	if err != nil {
		return nil, err
	}
	if !adapter.Enabled() {
		return nil, gateways.ErrNotConfigured
	}

	p, err := s.storage.CreatePayment(ctx, payment.CreateParams{
		UserID:      userID,
		Provider:    provider,
		Amount:      amount,
		Currency:    currency,
		Description: description,
	})
	if err != nil {
		return nil, fmt.Errorf("create payment intent: %w", err)
	}

	handle, err := adapter.CreatePayment(ctx, gateways.CreateRequest{
		PaymentID:   p.ID,
		UserID:      userID,
		ChatID:      chatID,
		Amount:      amount,
		Currency:    currency,
		Description: description,
	})
	if err != nil {
		failed := payment.StatusFailed
		if _, uerr := s.storage.UpdatePayment(ctx, payment.GetCriteria{ID: &p.ID}, payment.UpdateParams{Status: &failed}); uerr != nil {
			s.logger.Error("failed to mark intent failed after gateway error",
				"payment_id", p.ID, "error", uerr)
		}
		return nil, fmt.Errorf("gateway %s create payment: %w", provider, err)
	}

	if handle.ExternalID != "" {
		p, err = s.storage.UpdatePayment(ctx, payment.GetCriteria{ID: &p.ID}, payment.UpdateParams{ExternalID: &handle.ExternalID})
		if err != nil {
			return nil, fmt.Errorf("store external id: %w", err)
		}
	}

	s.logger.Info("top-up created",
		"payment_id", p.ID, "user_id", userID, "provider", provider, "amount", amount)

	return &Handle{Payment: p, PaymentURL: handle.PaymentURL}, nil
}

// HandleWebhookEvent reconciles one parsed, verified gateway callback.
func (s *Service) HandleWebhookEvent(ctx context.Context, provider string, ev *gateways.WebhookEvent) (Result, error) {
	p, err := s.locateIntent(ctx, provider, ev)
	if err != nil {
		return ResultIgnored, err
	}
	if p == nil {
		s.logger.Warn("webhook for unknown payment",
			"provider", provider, "external_id", ev.ExternalID)
		return ResultIgnored, nil
	}

	switch ev.Status {
	case gateways.StatusPaid:
		amount := p.Amount
		if ev.AmountTrusted {
			amount = ev.Amount
		} else if ev.Amount != 0 && ev.Amount != p.Amount {
			// Credit what the user was invoiced for; the gateway figure is
			// advisory and may be in a different unit or net of fees.
			s.logger.Warn("webhook amount differs from intent",
				"payment_id", p.ID, "intent_amount", p.Amount, "webhook_amount", ev.Amount)
		}
		return s.Confirm(ctx, p, ev.ExternalID, amount)
	case gateways.StatusFailed:
		return s.Fail(ctx, p, payment.StatusFailed)
	default:
		return ResultIgnored, nil
	}
}

// locateIntent finds the local payment a webhook refers to. For out-of-band
// providers that start charges on their own side, an intent is created on
// the fly from the payer identity the signed payload carries.
func (s *Service) locateIntent(ctx context.Context, provider string, ev *gateways.WebhookEvent) (*payment.Payment, error) {
	if ev.PaymentID != 0 {
		p, err := s.storage.GetPayment(ctx, payment.GetCriteria{ID: &ev.PaymentID})
		if err != nil {
			return nil, fmt.Errorf("lookup payment: %w", err)
		}
		if p != nil && p.Provider == provider {
			return p, nil
		}
		return nil, nil
	}

	if ev.ExternalID != "" {
		p, err := s.storage.GetPayment(ctx, payment.GetCriteria{Provider: &provider, ExternalID: &ev.ExternalID})
		if err != nil {
			return nil, fmt.Errorf("lookup payment: %w", err)
		}
		if p != nil {
			return p, nil
		}
	}

	if ev.TelegramUserID == 0 || !ev.AmountTrusted || ev.Status != gateways.StatusPaid {
		return nil, nil
	}

	user, err := s.storage.GetUserByTelegramID(ctx, ev.TelegramUserID)
	if err != nil {
		return nil, fmt.Errorf("lookup payer: %w", err)
	}
	if user == nil {
		s.logger.Warn("out-of-band payment from unknown user",
			"provider", provider, "telegram_id", ev.TelegramUserID)
		return nil, ErrUnknownUser
	}

	externalID := ev.ExternalID
	p, err := s.storage.CreatePayment(ctx, payment.CreateParams{
		UserID:      user.ID,
		Provider:    provider,
		ExternalID:  &externalID,
		Amount:      ev.Amount,
		Currency:    "RUB",
		Description: "Пополнение баланса",
	})
	if err != nil {
		// A concurrent delivery may have created it first.
		if storage.IsUniqueViolation(err) {
			return s.storage.GetPayment(ctx, payment.GetCriteria{Provider: &provider, ExternalID: &externalID})
		}
		return nil, fmt.Errorf("create out-of-band intent: %w", err)
	}
	return p, nil
}

// Confirm credits a payment exactly once. The ledger's unique completed
// deposit index is the arbiter: whichever concurrent caller commits first
// wins, everyone else observes a duplicate.
func (s *Service) Confirm(ctx context.Context, p *payment.Payment, externalID string, amount int64) (Result, error) {
	if p.Paid {
		return ResultDuplicate, nil
	}

	extID := externalID
	if extID == "" && p.ExternalID != nil {
		extID = *p.ExternalID
	}
	if extID == "" {
		// Providers without a usable remote id still need a stable anchor.
		extID = fmt.Sprintf("payment-%d", p.ID)
	}

	for attempt := 0; attempt < 2; attempt++ {
		existing, err := s.storage.GetCompletedDeposit(ctx, extID, p.Provider)
		if err != nil {
			return ResultIgnored, fmt.Errorf("check completed deposit: %w", err)
		}
		if existing != nil {
			// Credited earlier but the intent flag never landed (crash or a
			// lost race). Repair the flag without re-running effects.
			if err := s.repairPaidFlag(ctx, p.ID, existing.ID); err != nil {
				return ResultIgnored, err
			}
			return ResultDuplicate, nil
		}

		var txID int64
		err = s.txm(ctx, func(tx *sql.Tx) error {
			var txErr error
			txID, txErr = s.storage.CreateTransactionTx(ctx, tx, ledger.Transaction{
				UserID:        p.UserID,
				Amount:        amount,
				Type:          ledger.TypeDeposit,
				PaymentMethod: p.Provider,
				ExternalID:    &extID,
			})
			if txErr != nil {
				return txErr
			}
			if txErr = s.storage.IncrementBalanceTx(ctx, tx, p.UserID, amount); txErr != nil {
				return txErr
			}
			return s.storage.MarkPaymentPaidTx(ctx, tx, p.ID, txID)
		})
		if err != nil {
			if storage.IsUniqueViolation(err) {
				// Lost the race; re-read and converge on the winner's result.
				continue
			}
			return ResultIgnored, fmt.Errorf("credit payment %d: %w", p.ID, err)
		}

		s.dispatchEffects(ctx, p.ID, amount)

		metrics.CreditsTotal.WithLabelValues(p.Provider).Inc()
		metrics.CreditedAmount.WithLabelValues(p.Provider).Add(float64(amount))

		s.logger.Info("payment credited",
			"payment_id", p.ID, "user_id", p.UserID, "provider", p.Provider,
			"amount", amount, "external_id", extID, "transaction_id", txID)
		return ResultProcessed, nil
	}

	return ResultIgnored, fmt.Errorf("payment %d: could not converge on completed deposit", p.ID)
}

func (s *Service) repairPaidFlag(ctx context.Context, paymentID, transactionID int64) error {
	err := s.txm(ctx, func(tx *sql.Tx) error {
		return s.storage.MarkPaymentPaidTx(ctx, tx, paymentID, transactionID)
	})
	if err != nil && !errors.Is(err, storage.ErrAlreadyPaid) {
		return fmt.Errorf("repair paid flag: %w", err)
	}
	return nil
}

func (s *Service) dispatchEffects(ctx context.Context, paymentID, amount int64) {
	p, err := s.storage.GetPayment(ctx, payment.GetCriteria{ID: &paymentID})
	if err != nil || p == nil {
		s.logger.Error("cannot reload credited payment for effects",
			"payment_id", paymentID, "error", err)
		return
	}
	user, err := s.storage.GetUser(ctx, p.UserID)
	if err != nil || user == nil {
		s.logger.Error("cannot load user for effects",
			"payment_id", paymentID, "user_id", p.UserID, "error", err)
		return
	}
	s.effects.Enqueue(CreditedEvent{
		User:       user,
		Payment:    p,
		OldBalance: user.Balance - amount,
		NewBalance: user.Balance,
	})
}

// Fail moves an unpaid intent into a failure state. Paid stays paid: the
// status guard in storage makes late failure signals no-ops.
func (s *Service) Fail(ctx context.Context, p *payment.Payment, status payment.Status) (Result, error) {
	if p.Paid {
		return ResultDuplicate, nil
	}
	if _, err := s.storage.UpdatePayment(ctx, payment.GetCriteria{ID: &p.ID}, payment.UpdateParams{Status: &status}); err != nil {
		return ResultIgnored, fmt.Errorf("mark payment %s: %w", status, err)
	}
	s.logger.Info("payment closed", "payment_id", p.ID, "status", status)
	return ResultProcessed, nil
}

// CheckStatus polls the gateway for one pending intent and reconciles the
// answer through the same path webhooks take.
func (s *Service) CheckStatus(ctx context.Context, p *payment.Payment) error {
	adapter, err := s.gateways.Get(p.Provider)
	if err != nil {
		return err
	}

	status, err := adapter.PollStatus(ctx, p)
	if err != nil {
		if errors.Is(err, gateways.ErrPollingUnsupported) || errors.Is(err, gateways.ErrNotFoundYet) {
			return nil
		}
		return fmt.Errorf("poll %s payment %d: %w", p.Provider, p.ID, err)
	}

	switch status {
	case gateways.StatusPaid:
		_, err = s.Confirm(ctx, p, "", p.Amount)
		return err
	case gateways.StatusFailed:
		_, err = s.Fail(ctx, p, payment.StatusFailed)
		return err
	default:
		return nil
	}
}

// PendingOlderThan lists pending intents created before cutoff, oldest first.
func (s *Service) PendingOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]*payment.Payment, error) {
	status := payment.StatusPending
	return s.storage.ListPayments(ctx, payment.ListCriteria{
		Status:    &status,
		OlderThan: &cutoff,
		Limit:     limit,
	})
}

// Expire marks pending intents older than cutoff as expired.
func (s *Service) Expire(ctx context.Context, cutoff time.Time, limit int) (int, error) {
	pending, err := s.PendingOlderThan(ctx, cutoff, limit)
	if err != nil {
		return 0, err
	}
	expired := 0
	for _, p := range pending {
		if _, err := s.Fail(ctx, p, payment.StatusExpired); err != nil {
			s.logger.Error("failed to expire payment", "payment_id", p.ID, "error", err)
			continue
		}
		expired++
	}
	return expired, nil
}
