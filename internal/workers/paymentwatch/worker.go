// Package paymentwatch polls gateways for pending payment intents whose
// webhook never arrived. Polling goes through the same reconciliation path
// as webhooks, so a poll can never produce a second credit.
package paymentwatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"remna-shop/internal/metrics"
	"remna-shop/internal/stories/payment"

	"github.com/robfig/cron/v3"
)

const batchSize = 100

// Engine is the reconciliation surface the watcher drives.
type Engine interface {
	PendingOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]*payment.Payment, error)
	CheckStatus(ctx context.Context, p *payment.Payment) error
}

// Worker handles automatic payment status checking
type Worker struct {
	engine   Engine
	logger   *slog.Logger
	cron     *cron.Cron
	interval time.Duration
	// pollAfter keeps freshly created intents out of the poll: the webhook
	// usually lands first.
	pollAfter time.Duration

	// Track payments being processed to prevent race conditions
	processing sync.Map
}

// NewWorker creates a new payment watch worker
func NewWorker(engine Engine, interval, pollAfter time.Duration, logger *slog.Logger) *Worker {
	return &Worker{
		engine:    engine,
		logger:    logger,
		cron:      cron.New(),
		interval:  interval,
		pollAfter: pollAfter,
	}
}

// Name returns the worker name
func (w *Worker) Name() string {
	return "payment-watch"
}

// Start starts the payment watch worker
func (w *Worker) Start() error {
	spec := fmt.Sprintf("@every %s", w.interval)
	_, err := w.cron.AddFunc(spec, func() {
		defer func() {
			if r := recover(); r != nil {
				w.logger.Error("Panic in payment watch worker", "panic", r)
			}
		}()
		ctx := context.Background()
		if err := w.run(ctx); err != nil {
			w.logger.Error("Payment watch worker failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule payment watch worker: %w", err)
	}

	w.cron.Start()
	w.logger.Info("Payment watch worker started", "interval", w.interval)
	return nil
}

// Stop stops the worker
func (w *Worker) Stop() {
	w.logger.Info("Stopping payment watch worker")
	w.cron.Stop()
}

// run checks every pending intent old enough to poll
func (w *Worker) run(ctx context.Context) error {
	cutoff := time.Now().Add(-w.pollAfter)
	pending, err := w.engine.PendingOlderThan(ctx, cutoff, batchSize)
	if err != nil {
		return fmt.Errorf("list pending payments: %w", err)
	}

	for _, p := range pending {
		if _, busy := w.processing.LoadOrStore(p.ID, struct{}{}); busy {
			continue
		}
		go func(p *payment.Payment) {
			defer w.processing.Delete(p.ID)

			checkCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			defer cancel()

			if err := w.engine.CheckStatus(checkCtx, p); err != nil {
				metrics.PollChecksTotal.WithLabelValues(p.Provider, "error").Inc()
				w.logger.Error("Payment status check failed",
					"payment_id", p.ID, "provider", p.Provider, "error", err)
				return
			}
			metrics.PollChecksTotal.WithLabelValues(p.Provider, "ok").Inc()
		}(p)
	}

	return nil
}
