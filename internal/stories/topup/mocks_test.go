package topup

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	sqlite3driver "github.com/mattn/go-sqlite3"

	"remna-shop/internal/gateways"
	"remna-shop/internal/storage"
	"remna-shop/internal/stories/ledger"
	"remna-shop/internal/stories/payment"
	"remna-shop/internal/stories/users"
)

// fakeStorage is an in-memory Storage that mirrors the real store's
// semantics: the completed-deposit unique index, the paid guard, the
// balance counter. Returns the driver's own unique-violation error so the
// engine's race handling sees exactly what production would produce.
type fakeStorage struct {
	mu       sync.Mutex
	nextID   int64
	payments map[int64]*payment.Payment
	deposits map[string]*ledger.Transaction
	users    map[int64]*users.User
	now      time.Time
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{
		nextID:   1,
		payments: make(map[int64]*payment.Payment),
		deposits: make(map[string]*ledger.Transaction),
		users:    make(map[int64]*users.User),
		now:      time.Now().UTC(),
	}
}

func uniqueViolation() error {
	return sqlite3driver.Error{
		Code:         sqlite3driver.ErrConstraint,
		ExtendedCode: sqlite3driver.ErrConstraintUnique,
	}
}

func depositKey(externalID, method string) string {
	return externalID + "|" + method
}

func (f *fakeStorage) addUser(telegramID, balance int64) *users.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := &users.User{ID: f.nextID, TelegramID: telegramID, Balance: balance}
	f.nextID++
	f.users[u.ID] = u
	return u
}

func (f *fakeStorage) CreatePayment(_ context.Context, params payment.CreateParams) (*payment.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := &payment.Payment{
		ID:          f.nextID,
		UserID:      params.UserID,
		Provider:    params.Provider,
		ExternalID:  params.ExternalID,
		Amount:      params.Amount,
		Currency:    params.Currency,
		Description: params.Description,
		Status:      payment.StatusPending,
		CreatedAt:   f.now,
	}
	f.nextID++
	f.payments[p.ID] = p
	cp := *p
	return &cp, nil
}

func (f *fakeStorage) GetPayment(_ context.Context, criteria payment.GetCriteria) (*payment.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.payments {
		if criteria.ID != nil && p.ID != *criteria.ID {
			continue
		}
		if criteria.Provider != nil && p.Provider != *criteria.Provider {
			continue
		}
		if criteria.ExternalID != nil && (p.ExternalID == nil || *p.ExternalID != *criteria.ExternalID) {
			continue
		}
		cp := *p
		return &cp, nil
	}
	return nil, nil
}

func (f *fakeStorage) UpdatePayment(_ context.Context, criteria payment.GetCriteria, params payment.UpdateParams) (*payment.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if criteria.ID == nil {
		return nil, fmt.Errorf("update requires id")
	}
	p, ok := f.payments[*criteria.ID]
	if !ok {
		return nil, nil
	}
	// mirror the SQL paid guard on status transitions
	if params.Status != nil && !p.Paid {
		p.Status = *params.Status
	}
	if params.ExternalID != nil {
		p.ExternalID = params.ExternalID
	}
	if params.Payload != nil {
		p.Payload = params.Payload
	}
	cp := *p
	return &cp, nil
}

func (f *fakeStorage) ListPayments(_ context.Context, criteria payment.ListCriteria) ([]*payment.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*payment.Payment
	for _, p := range f.payments {
		if criteria.Status != nil && p.Status != *criteria.Status {
			continue
		}
		if criteria.OlderThan != nil && !p.CreatedAt.Before(*criteria.OlderThan) {
			continue
		}
		cp := *p
		out = append(out, &cp)
	}
	return out, nil
}

func (f *fakeStorage) MarkPaymentPaidTx(_ context.Context, _ *sql.Tx, paymentID, transactionID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.payments[paymentID]
	if !ok || p.Paid {
		return fmt.Errorf("payment %d: %w", paymentID, storage.ErrAlreadyPaid)
	}
	p.Paid = true
	p.Status = payment.StatusPaid
	p.TransactionID = &transactionID
	return nil
}

func (f *fakeStorage) CreateTransactionTx(_ context.Context, _ *sql.Tx, t ledger.Transaction) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if t.ExternalID != nil {
		if _, exists := f.deposits[depositKey(*t.ExternalID, t.PaymentMethod)]; exists {
			return 0, uniqueViolation()
		}
	}
	t.ID = f.nextID
	f.nextID++
	t.Completed = true
	if t.ExternalID != nil {
		f.deposits[depositKey(*t.ExternalID, t.PaymentMethod)] = &t
	}
	return t.ID, nil
}

func (f *fakeStorage) GetCompletedDeposit(_ context.Context, externalID, paymentMethod string) (*ledger.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.deposits[depositKey(externalID, paymentMethod)]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (f *fakeStorage) IncrementBalanceTx(_ context.Context, _ *sql.Tx, userID, delta int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return fmt.Errorf("user %d not found", userID)
	}
	u.Balance += delta
	return nil
}

func (f *fakeStorage) GetUser(_ context.Context, id int64) (*users.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (f *fakeStorage) GetUserByTelegramID(_ context.Context, telegramID int64) (*users.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.TelegramID == telegramID {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeStorage) SetFirstTopup(_ context.Context, userID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return fmt.Errorf("user %d not found", userID)
	}
	if u.FirstTopupAt == nil {
		now := f.now
		u.FirstTopupAt = &now
	}
	return nil
}

// noTx runs the callback without a real transaction; the fake storage is its
// own consistency domain.
func noTx(_ context.Context, fn func(*sql.Tx) error) error {
	return fn(nil)
}

// collectEffects records enqueued credited events.
type collectEffects struct {
	mu     sync.Mutex
	events []CreditedEvent
}

func (c *collectEffects) Enqueue(ev CreditedEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func (c *collectEffects) all() []CreditedEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]CreditedEvent(nil), c.events...)
}

// fakeAdapter is a scriptable gateway adapter.
type fakeAdapter struct {
	name       string
	enabled    bool
	handle     *gateways.PaymentHandle
	createErr  error
	pollStatus gateways.Status
	pollErr    error
}

func (a *fakeAdapter) Name() string  { return a.name }
func (a *fakeAdapter) Enabled() bool { return a.enabled }

func (a *fakeAdapter) CreatePayment(context.Context, gateways.CreateRequest) (*gateways.PaymentHandle, error) {
	if a.createErr != nil {
		return nil, a.createErr
	}
	return a.handle, nil
}

func (a *fakeAdapter) NormalizeStatus(raw string) gateways.Status { return gateways.Status(raw) }

func (a *fakeAdapter) ParseWebhook([]byte) (*gateways.WebhookEvent, error) {
	return nil, gateways.ErrUnparseable
}

func (a *fakeAdapter) VerifyWebhook([]byte, string) bool { return true }
func (a *fakeAdapter) SignatureHeader() string           { return "" }

func (a *fakeAdapter) PollStatus(context.Context, *payment.Payment) (gateways.Status, error) {
	if a.pollErr != nil {
		return "", a.pollErr
	}
	return a.pollStatus, nil
}

// racingStorage makes the first deposit insert collide with a concurrent
// winner: the winner's credit lands between the caller's lookup and insert.
type racingStorage struct {
	*fakeStorage
	winnerUserID int64
	winnerAmount int64
	raced        bool
}

func (r *racingStorage) CreateTransactionTx(ctx context.Context, tx *sql.Tx, t ledger.Transaction) (int64, error) {
	if !r.raced {
		r.raced = true
		if _, err := r.fakeStorage.CreateTransactionTx(ctx, tx, ledger.Transaction{
			UserID:        r.winnerUserID,
			Amount:        r.winnerAmount,
			Type:          ledger.TypeDeposit,
			PaymentMethod: t.PaymentMethod,
			ExternalID:    t.ExternalID,
		}); err != nil {
			return 0, err
		}
		if err := r.fakeStorage.IncrementBalanceTx(ctx, tx, r.winnerUserID, r.winnerAmount); err != nil {
			return 0, err
		}
		return 0, uniqueViolation()
	}
	return r.fakeStorage.CreateTransactionTx(ctx, tx, t)
}

type fakeGateways struct {
	adapters map[string]gateways.Adapter
}

func (g *fakeGateways) Get(name string) (gateways.Adapter, error) {
	a, ok := g.adapters[name]
	if !ok {
		return nil, gateways.ErrNotConfigured
	}
	return a, nil
}
