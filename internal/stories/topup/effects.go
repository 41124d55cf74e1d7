package topup

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// FirstTopupMarker sets the user's first-topup flag.
type FirstTopupMarker interface {
	SetFirstTopup(ctx context.Context, userID int64) error
}

// EffectsRunner consumes credited events and runs the post-credit pipeline
// in order: referral commission, first-topup flag, admin notification, user
// notification, cart auto-purchase. Steps are best-effort and independent;
// a failed step is logged and never blocks the ones after it, and nothing
// here can undo the credit itself.
type EffectsRunner struct {
	referrals Referrals
	marker    FirstTopupMarker
	notifier  Notifier
	carts     Carts
	checkout  Checkout
	logger    *slog.Logger

	autoPurchase bool

	queue  chan CreditedEvent
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewEffectsRunner(
	referrals Referrals,
	marker FirstTopupMarker,
	notifier Notifier,
	carts Carts,
	checkout Checkout,
	autoPurchase bool,
	logger *slog.Logger,
) *EffectsRunner {
	return &EffectsRunner{
		referrals:    referrals,
		marker:       marker,
		notifier:     notifier,
		carts:        carts,
		checkout:     checkout,
		autoPurchase: autoPurchase,
		logger:       logger,
		queue:        make(chan CreditedEvent, 128),
	}
}

// Name returns the worker name
func (r *EffectsRunner) Name() string {
	return "topup-effects"
}

// Enqueue hands a credited event to the pipeline. Never blocks the caller:
// if the queue is full the event is dropped with an error log, since the
// credit is already durable and only the follow-ups are lost.
func (r *EffectsRunner) Enqueue(ev CreditedEvent) {
	select {
	case r.queue <- ev:
	default:
		r.logger.Error("effects queue full, dropping event",
			"payment_id", ev.Payment.ID, "user_id", ev.User.ID)
	}
}

// Start starts the effects consumer
func (r *EffectsRunner) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-r.queue:
				r.run(ctx, ev)
			}
		}
	}()

	r.logger.Info("Topup effects runner started")
	return nil
}

// Stop drains nothing: pending events are abandoned, which is acceptable
// since every step is best-effort.
func (r *EffectsRunner) Stop() {
	r.logger.Info("Stopping topup effects runner")
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
}

func (r *EffectsRunner) run(ctx context.Context, ev CreditedEvent) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("Panic in topup effects pipeline",
				"payment_id", ev.Payment.ID, "panic", rec)
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := r.referrals.CreditCommission(ctx, ev.User, ev.Payment); err != nil {
		r.logger.Error("referral commission failed",
			"payment_id", ev.Payment.ID, "error", err)
	}

	if !ev.User.HasToppedUp() {
		if err := r.marker.SetFirstTopup(ctx, ev.User.ID); err != nil {
			r.logger.Error("failed to set first-topup flag",
				"user_id", ev.User.ID, "error", err)
		}
	}

	r.notifier.NotifyAdminTopup(ctx, ev.User, ev.Payment)
	r.notifier.NotifyUserCredited(ctx, ev.User, ev.Payment, ev.OldBalance, ev.NewBalance)

	r.resumeCart(ctx, ev)
}

// resumeCart checks for a saved cart and either completes the purchase from
// the fresh balance or nudges the user back into checkout.
func (r *EffectsRunner) resumeCart(ctx context.Context, ev CreditedEvent) {
	c, err := r.carts.Get(ctx, ev.User.ID)
	if err != nil {
		r.logger.Error("failed to load cart", "user_id", ev.User.ID, "error", err)
		return
	}
	if c == nil {
		return
	}

	if r.autoPurchase && ev.NewBalance >= c.Price {
		user := *ev.User
		user.Balance = ev.NewBalance
		if err := r.checkout.PurchaseFromCart(ctx, &user, c); err != nil {
			r.logger.Error("cart auto-purchase failed",
				"user_id", ev.User.ID, "plan_id", c.PlanID, "error", err)
			r.notifier.NotifyResumeCheckout(ctx, ev.User, c)
			return
		}
		if err := r.carts.Delete(ctx, ev.User.ID); err != nil {
			r.logger.Error("failed to clear cart after purchase",
				"user_id", ev.User.ID, "error", err)
		}
		r.logger.Info("cart auto-purchased after top-up",
			"user_id", ev.User.ID, "plan_id", c.PlanID, "price", c.Price)
		return
	}

	r.notifier.NotifyResumeCheckout(ctx, ev.User, c)
}
