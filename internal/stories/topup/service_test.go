package topup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"remna-shop/internal/gateways"
	"remna-shop/internal/stories/payment"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService(st *fakeStorage, gw Gateways) (*Service, *collectEffects) {
	effects := &collectEffects{}
	if gw == nil {
		gw = &fakeGateways{adapters: map[string]gateways.Adapter{}}
	}
	return NewService(st, gw, noTx, effects, testLogger()), effects
}

func pendingIntent(t *testing.T, st *fakeStorage, userID int64, provider, externalID string, amount int64) *payment.Payment {
	t.Helper()
	var extID *string
	if externalID != "" {
		extID = &externalID
	}
	p, err := st.CreatePayment(context.Background(), payment.CreateParams{
		UserID:     userID,
		Provider:   provider,
		ExternalID: extID,
		Amount:     amount,
		Currency:   "RUB",
	})
	if err != nil {
		t.Fatalf("create intent: %v", err)
	}
	return p
}

func TestConfirmCreditsOnce(t *testing.T) {
	ctx := context.Background()
	st := newFakeStorage()
	user := st.addUser(100, 5000)
	svc, effects := newTestService(st, nil)

	p := pendingIntent(t, st, user.ID, "yookassa", "inv-1", 30000)

	res, err := svc.Confirm(ctx, p, "", p.Amount)
	if err != nil {
		t.Fatalf("first confirm: %v", err)
	}
	if res != ResultProcessed {
		t.Fatalf("first confirm result = %v, want %v", res, ResultProcessed)
	}

	u, _ := st.GetUser(ctx, user.ID)
	if u.Balance != 35000 {
		t.Errorf("balance = %d, want 35000", u.Balance)
	}
	got, _ := st.GetPayment(ctx, payment.GetCriteria{ID: &p.ID})
	if !got.Paid || got.Status != payment.StatusPaid {
		t.Errorf("payment not marked paid: paid=%v status=%s", got.Paid, got.Status)
	}
	if got.TransactionID == nil {
		t.Error("transaction id not linked to payment")
	}

	evs := effects.all()
	if len(evs) != 1 {
		t.Fatalf("effects enqueued = %d, want 1", len(evs))
	}
	if evs[0].OldBalance != 5000 || evs[0].NewBalance != 35000 {
		t.Errorf("effect balances = %d -> %d, want 5000 -> 35000", evs[0].OldBalance, evs[0].NewBalance)
	}

	// redelivery with the fresh paid flag
	res, err = svc.Confirm(ctx, got, "", got.Amount)
	if err != nil {
		t.Fatalf("second confirm: %v", err)
	}
	if res != ResultDuplicate {
		t.Errorf("second confirm result = %v, want %v", res, ResultDuplicate)
	}
	if u, _ := st.GetUser(ctx, user.ID); u.Balance != 35000 {
		t.Errorf("balance after duplicate = %d, want 35000", u.Balance)
	}
	if len(effects.all()) != 1 {
		t.Error("duplicate confirm dispatched effects again")
	}
}

func TestConfirmStaleCopyConverges(t *testing.T) {
	// A second delivery arriving with a payment snapshot read before the
	// first credit committed must see the existing deposit and repair the
	// flag instead of double-crediting.
	ctx := context.Background()
	st := newFakeStorage()
	user := st.addUser(100, 0)
	svc, effects := newTestService(st, nil)

	p := pendingIntent(t, st, user.ID, "cryptobot", "inv-7", 10000)
	stale := *p // snapshot with Paid=false

	if res, err := svc.Confirm(ctx, p, "", p.Amount); err != nil || res != ResultProcessed {
		t.Fatalf("first confirm: res=%v err=%v", res, err)
	}

	res, err := svc.Confirm(ctx, &stale, "", stale.Amount)
	if err != nil {
		t.Fatalf("stale confirm: %v", err)
	}
	if res != ResultDuplicate {
		t.Errorf("stale confirm result = %v, want %v", res, ResultDuplicate)
	}
	if u, _ := st.GetUser(ctx, user.ID); u.Balance != 10000 {
		t.Errorf("balance = %d, want 10000", u.Balance)
	}
	if len(effects.all()) != 1 {
		t.Errorf("effects enqueued = %d, want 1", len(effects.all()))
	}
}

func TestConfirmCrashRecovery(t *testing.T) {
	// Deposit committed but the paid flag never landed (crash between the
	// transaction and anything after it never happens with the single unit
	// of work, but a flag lost to a partial historical migration is the same
	// shape). Re-confirming must repair the flag without a second credit.
	ctx := context.Background()
	st := newFakeStorage()
	user := st.addUser(100, 0)
	svc, effects := newTestService(st, nil)

	p := pendingIntent(t, st, user.ID, "wata", "wata-55", 20000)

	if res, err := svc.Confirm(ctx, p, "", p.Amount); err != nil || res != ResultProcessed {
		t.Fatalf("confirm: res=%v err=%v", res, err)
	}

	// lose the flag
	st.mu.Lock()
	st.payments[p.ID].Paid = false
	st.payments[p.ID].Status = payment.StatusPending
	st.mu.Unlock()

	stale, _ := st.GetPayment(ctx, payment.GetCriteria{ID: &p.ID})
	res, err := svc.Confirm(ctx, stale, "", stale.Amount)
	if err != nil {
		t.Fatalf("recovery confirm: %v", err)
	}
	if res != ResultDuplicate {
		t.Errorf("recovery result = %v, want %v", res, ResultDuplicate)
	}
	repaired, _ := st.GetPayment(ctx, payment.GetCriteria{ID: &p.ID})
	if !repaired.Paid {
		t.Error("paid flag not repaired")
	}
	if u, _ := st.GetUser(ctx, user.ID); u.Balance != 20000 {
		t.Errorf("balance = %d, want 20000", u.Balance)
	}
	if len(effects.all()) != 1 {
		t.Errorf("effects enqueued = %d, want 1 (no re-dispatch on recovery)", len(effects.all()))
	}
}

func TestConfirmSynthesizesExternalID(t *testing.T) {
	ctx := context.Background()
	st := newFakeStorage()
	user := st.addUser(100, 0)
	svc, _ := newTestService(st, nil)

	p := pendingIntent(t, st, user.ID, "stars", "", 15000)

	if res, err := svc.Confirm(ctx, p, "", p.Amount); err != nil || res != ResultProcessed {
		t.Fatalf("confirm: res=%v err=%v", res, err)
	}

	dep, err := st.GetCompletedDeposit(ctx, fmt.Sprintf("payment-%d", p.ID), "stars")
	if err != nil || dep == nil {
		t.Fatalf("synthetic anchor deposit not found: dep=%v err=%v", dep, err)
	}
}

func TestConfirmLosesRaceAndConverges(t *testing.T) {
	// The loser of the unique-index race: its first deposit lookup misses,
	// the insert collides with the winner's commit, the retry observes the
	// winner's deposit and settles on duplicate.
	ctx := context.Background()
	st := newFakeStorage()
	user := st.addUser(100, 0)

	racy := &racingStorage{fakeStorage: st, winnerUserID: user.ID, winnerAmount: 10000}
	effects := &collectEffects{}
	svc := NewService(racy, &fakeGateways{adapters: map[string]gateways.Adapter{}}, noTx, effects, testLogger())

	p := pendingIntent(t, st, user.ID, "cloudpayments", "cp-1", 10000)

	res, err := svc.Confirm(ctx, p, "", p.Amount)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if res != ResultDuplicate {
		t.Errorf("result = %v, want %v", res, ResultDuplicate)
	}
	if u, _ := st.GetUser(ctx, user.ID); u.Balance != 10000 {
		t.Errorf("balance = %d, want the winner's single credit of 10000", u.Balance)
	}
	if len(effects.all()) != 0 {
		t.Errorf("loser dispatched %d effects, want 0", len(effects.all()))
	}
	got, _ := st.GetPayment(ctx, payment.GetCriteria{ID: &p.ID})
	if !got.Paid {
		t.Error("loser did not repair the paid flag")
	}
}

func TestFailIsMonotonic(t *testing.T) {
	ctx := context.Background()
	st := newFakeStorage()
	user := st.addUser(100, 0)
	svc, _ := newTestService(st, nil)

	p := pendingIntent(t, st, user.ID, "mulenpay", "m-1", 10000)
	if _, err := svc.Confirm(ctx, p, "", p.Amount); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	paid, _ := st.GetPayment(ctx, payment.GetCriteria{ID: &p.ID})
	res, err := svc.Fail(ctx, paid, payment.StatusFailed)
	if err != nil {
		t.Fatalf("fail after paid: %v", err)
	}
	if res != ResultDuplicate {
		t.Errorf("fail result = %v, want %v", res, ResultDuplicate)
	}
	got, _ := st.GetPayment(ctx, payment.GetCriteria{ID: &p.ID})
	if got.Status != payment.StatusPaid || !got.Paid {
		t.Errorf("paid state overridden: paid=%v status=%s", got.Paid, got.Status)
	}
}

func TestFailMarksUnpaid(t *testing.T) {
	ctx := context.Background()
	st := newFakeStorage()
	user := st.addUser(100, 0)
	svc, _ := newTestService(st, nil)

	p := pendingIntent(t, st, user.ID, "pal24", "b-9", 10000)
	res, err := svc.Fail(ctx, p, payment.StatusExpired)
	if err != nil {
		t.Fatalf("fail: %v", err)
	}
	if res != ResultProcessed {
		t.Errorf("fail result = %v, want %v", res, ResultProcessed)
	}
	got, _ := st.GetPayment(ctx, payment.GetCriteria{ID: &p.ID})
	if got.Status != payment.StatusExpired {
		t.Errorf("status = %s, want %s", got.Status, payment.StatusExpired)
	}
}

func TestHandleWebhookEvent(t *testing.T) {
	tests := []struct {
		name        string
		ev          *gateways.WebhookEvent
		wantResult  Result
		wantBalance int64
	}{
		{
			name:        "paid credits intent amount",
			ev:          &gateways.WebhookEvent{ExternalID: "inv-1", Status: gateways.StatusPaid},
			wantResult:  ResultProcessed,
			wantBalance: 30000,
		},
		{
			name: "untrusted amount mismatch credits intent amount",
			ev:   &gateways.WebhookEvent{ExternalID: "inv-1", Status: gateways.StatusPaid, Amount: 300},
			// the gateway reported major units; intent amount wins
			wantResult:  ResultProcessed,
			wantBalance: 30000,
		},
		{
			name:        "trusted amount overrides intent",
			ev:          &gateways.WebhookEvent{ExternalID: "inv-1", Status: gateways.StatusPaid, Amount: 29000, AmountTrusted: true},
			wantResult:  ResultProcessed,
			wantBalance: 29000,
		},
		{
			name:        "failed closes intent",
			ev:          &gateways.WebhookEvent{ExternalID: "inv-1", Status: gateways.StatusFailed},
			wantResult:  ResultProcessed,
			wantBalance: 0,
		},
		{
			name:        "pending is ignored",
			ev:          &gateways.WebhookEvent{ExternalID: "inv-1", Status: gateways.StatusPending},
			wantResult:  ResultIgnored,
			wantBalance: 0,
		},
		{
			name:        "unknown external id is ignored",
			ev:          &gateways.WebhookEvent{ExternalID: "no-such", Status: gateways.StatusPaid},
			wantResult:  ResultIgnored,
			wantBalance: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			st := newFakeStorage()
			user := st.addUser(100, 0)
			svc, _ := newTestService(st, nil)
			pendingIntent(t, st, user.ID, "yookassa", "inv-1", 30000)

			res, err := svc.HandleWebhookEvent(ctx, "yookassa", tt.ev)
			if err != nil {
				t.Fatalf("handle webhook: %v", err)
			}
			if res != tt.wantResult {
				t.Errorf("result = %v, want %v", res, tt.wantResult)
			}
			if u, _ := st.GetUser(ctx, user.ID); u.Balance != tt.wantBalance {
				t.Errorf("balance = %d, want %d", u.Balance, tt.wantBalance)
			}
		})
	}
}

func TestHandleWebhookOutOfBand(t *testing.T) {
	// Tribute-style delivery: no pre-existing intent, signed payload carries
	// the payer's telegram id and a trusted amount.
	ctx := context.Background()
	st := newFakeStorage()
	user := st.addUser(777, 0)
	svc, effects := newTestService(st, nil)

	ev := &gateways.WebhookEvent{
		ExternalID:     "don-42",
		Status:         gateways.StatusPaid,
		Amount:         50000,
		AmountTrusted:  true,
		TelegramUserID: 777,
	}
	res, err := svc.HandleWebhookEvent(ctx, "tribute", ev)
	if err != nil {
		t.Fatalf("handle webhook: %v", err)
	}
	if res != ResultProcessed {
		t.Fatalf("result = %v, want %v", res, ResultProcessed)
	}
	if u, _ := st.GetUser(ctx, user.ID); u.Balance != 50000 {
		t.Errorf("balance = %d, want 50000", u.Balance)
	}
	extID := "don-42"
	provider := "tribute"
	p, _ := st.GetPayment(ctx, payment.GetCriteria{Provider: &provider, ExternalID: &extID})
	if p == nil {
		t.Fatal("out-of-band intent not created")
	}
	if !p.Paid || p.UserID != user.ID {
		t.Errorf("intent paid=%v user=%d, want paid user %d", p.Paid, p.UserID, user.ID)
	}
	if len(effects.all()) != 1 {
		t.Errorf("effects enqueued = %d, want 1", len(effects.all()))
	}

	// redelivery of the same signed payload
	res, err = svc.HandleWebhookEvent(ctx, "tribute", ev)
	if err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	if res != ResultDuplicate {
		t.Errorf("redelivery result = %v, want %v", res, ResultDuplicate)
	}
	if u, _ := st.GetUser(ctx, user.ID); u.Balance != 50000 {
		t.Errorf("balance after redelivery = %d, want 50000", u.Balance)
	}
}

func TestHandleWebhookUnknownUser(t *testing.T) {
	ctx := context.Background()
	st := newFakeStorage()
	svc, _ := newTestService(st, nil)

	ev := &gateways.WebhookEvent{
		Status:         gateways.StatusPaid,
		Amount:         50000,
		AmountTrusted:  true,
		TelegramUserID: 999,
	}
	_, err := svc.HandleWebhookEvent(ctx, "tribute", ev)
	if !errors.Is(err, ErrUnknownUser) {
		t.Fatalf("err = %v, want ErrUnknownUser", err)
	}
}

func TestCreateTopup(t *testing.T) {
	ctx := context.Background()
	st := newFakeStorage()
	user := st.addUser(100, 0)

	adapter := &fakeAdapter{
		name:    "yookassa",
		enabled: true,
		handle:  &gateways.PaymentHandle{ExternalID: "yk-1", PaymentURL: "https://pay.example/yk-1"},
	}
	gw := &fakeGateways{adapters: map[string]gateways.Adapter{"yookassa": adapter}}
	svc, _ := newTestService(st, gw)

	h, err := svc.CreateTopup(ctx, user.ID, 500, "yookassa", 30000, "RUB", "Пополнение баланса")
	if err != nil {
		t.Fatalf("create topup: %v", err)
	}
	if h.PaymentURL != "https://pay.example/yk-1" {
		t.Errorf("payment url = %q", h.PaymentURL)
	}
	if h.Payment.ExternalID == nil || *h.Payment.ExternalID != "yk-1" {
		t.Errorf("external id not stored on intent: %v", h.Payment.ExternalID)
	}
	if h.Payment.Status != payment.StatusPending {
		t.Errorf("status = %s, want pending", h.Payment.Status)
	}
}

func TestCreateTopupGatewayFailure(t *testing.T) {
	ctx := context.Background()
	st := newFakeStorage()
	user := st.addUser(100, 0)

	adapter := &fakeAdapter{name: "platega", enabled: true, createErr: errors.New("upstream 502")}
	gw := &fakeGateways{adapters: map[string]gateways.Adapter{"platega": adapter}}
	svc, _ := newTestService(st, gw)

	if _, err := svc.CreateTopup(ctx, user.ID, 500, "platega", 30000, "RUB", ""); err == nil {
		t.Fatal("expected error from gateway failure")
	}

	// the intent must survive as failed, not vanish
	ps, _ := st.ListPayments(ctx, payment.ListCriteria{})
	if len(ps) != 1 {
		t.Fatalf("payments = %d, want 1", len(ps))
	}
	if ps[0].Status != payment.StatusFailed {
		t.Errorf("intent status = %s, want failed", ps[0].Status)
	}
}

func TestCreateTopupDisabledGateway(t *testing.T) {
	st := newFakeStorage()
	user := st.addUser(100, 0)
	adapter := &fakeAdapter{name: "wata", enabled: false}
	gw := &fakeGateways{adapters: map[string]gateways.Adapter{"wata": adapter}}
	svc, _ := newTestService(st, gw)

	_, err := svc.CreateTopup(context.Background(), user.ID, 500, "wata", 30000, "RUB", "")
	if !errors.Is(err, gateways.ErrNotConfigured) {
		t.Fatalf("err = %v, want ErrNotConfigured", err)
	}
}

func TestCheckStatus(t *testing.T) {
	tests := []struct {
		name        string
		pollStatus  gateways.Status
		pollErr     error
		wantErr     bool
		wantBalance int64
		wantStatus  payment.Status
	}{
		{name: "paid reconciles", pollStatus: gateways.StatusPaid, wantBalance: 10000, wantStatus: payment.StatusPaid},
		{name: "failed closes", pollStatus: gateways.StatusFailed, wantStatus: payment.StatusFailed},
		{name: "pending is a no-op", pollStatus: gateways.StatusPending, wantStatus: payment.StatusPending},
		{name: "not found yet is a no-op", pollErr: gateways.ErrNotFoundYet, wantStatus: payment.StatusPending},
		{name: "polling unsupported is a no-op", pollErr: gateways.ErrPollingUnsupported, wantStatus: payment.StatusPending},
		{name: "transport error surfaces", pollErr: errors.New("timeout"), wantErr: true, wantStatus: payment.StatusPending},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			st := newFakeStorage()
			user := st.addUser(100, 0)
			adapter := &fakeAdapter{name: "mulenpay", enabled: true, pollStatus: tt.pollStatus, pollErr: tt.pollErr}
			gw := &fakeGateways{adapters: map[string]gateways.Adapter{"mulenpay": adapter}}
			svc, _ := newTestService(st, gw)

			p := pendingIntent(t, st, user.ID, "mulenpay", "m-3", 10000)

			err := svc.CheckStatus(ctx, p)
			if tt.wantErr != (err != nil) {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if u, _ := st.GetUser(ctx, user.ID); u.Balance != tt.wantBalance {
				t.Errorf("balance = %d, want %d", u.Balance, tt.wantBalance)
			}
			got, _ := st.GetPayment(ctx, payment.GetCriteria{ID: &p.ID})
			if got.Status != tt.wantStatus {
				t.Errorf("status = %s, want %s", got.Status, tt.wantStatus)
			}
		})
	}
}

func TestCheckStatusStaleSignalAfterPaid(t *testing.T) {
	// A poll answer that raced with the webhook: the intent is already paid
	// and the late failure signal must change nothing.
	ctx := context.Background()
	st := newFakeStorage()
	user := st.addUser(100, 0)
	adapter := &fakeAdapter{name: "wata", enabled: true, pollStatus: gateways.StatusFailed}
	gw := &fakeGateways{adapters: map[string]gateways.Adapter{"wata": adapter}}
	svc, _ := newTestService(st, gw)

	p := pendingIntent(t, st, user.ID, "wata", "w-1", 10000)
	if _, err := svc.Confirm(ctx, p, "", p.Amount); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	paid, _ := st.GetPayment(ctx, payment.GetCriteria{ID: &p.ID})
	if err := svc.CheckStatus(ctx, paid); err != nil {
		t.Fatalf("check status: %v", err)
	}

	got, _ := st.GetPayment(ctx, payment.GetCriteria{ID: &p.ID})
	if got.Status != payment.StatusPaid || !got.Paid {
		t.Errorf("stale poll overrode paid state: paid=%v status=%s", got.Paid, got.Status)
	}
	if u, _ := st.GetUser(ctx, user.ID); u.Balance != 10000 {
		t.Errorf("balance = %d, want 10000", u.Balance)
	}
}

func TestExpire(t *testing.T) {
	ctx := context.Background()
	st := newFakeStorage()
	user := st.addUser(100, 0)
	svc, _ := newTestService(st, nil)

	old := pendingIntent(t, st, user.ID, "pal24", "b-1", 10000)
	st.mu.Lock()
	st.payments[old.ID].CreatedAt = st.now.Add(-48 * time.Hour)
	st.mu.Unlock()

	fresh := pendingIntent(t, st, user.ID, "pal24", "b-2", 10000)

	paidOld := pendingIntent(t, st, user.ID, "pal24", "b-3", 10000)
	st.mu.Lock()
	st.payments[paidOld.ID].CreatedAt = st.now.Add(-48 * time.Hour)
	st.mu.Unlock()
	if _, err := svc.Confirm(ctx, paidOld, "", paidOld.Amount); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	n, err := svc.Expire(ctx, st.now.Add(-24*time.Hour), 100)
	if err != nil {
		t.Fatalf("expire: %v", err)
	}
	if n != 1 {
		t.Errorf("expired = %d, want 1", n)
	}
	gotOld, _ := st.GetPayment(ctx, payment.GetCriteria{ID: &old.ID})
	if gotOld.Status != payment.StatusExpired {
		t.Errorf("old status = %s, want expired", gotOld.Status)
	}
	gotFresh, _ := st.GetPayment(ctx, payment.GetCriteria{ID: &fresh.ID})
	if gotFresh.Status != payment.StatusPending {
		t.Errorf("fresh status = %s, want pending", gotFresh.Status)
	}
	gotPaid, _ := st.GetPayment(ctx, payment.GetCriteria{ID: &paidOld.ID})
	if gotPaid.Status != payment.StatusPaid {
		t.Errorf("paid status = %s, want paid", gotPaid.Status)
	}
}
