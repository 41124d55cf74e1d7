// Package paymentexpire closes pending intents nobody paid. An expired
// intent can still be rescued: a late webhook or poll for it goes through
// the normal confirmation path, and paid always wins over expired.
package paymentexpire

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"remna-shop/internal/metrics"

	"github.com/robfig/cron/v3"
)

const batchSize = 500

type Engine interface {
	Expire(ctx context.Context, cutoff time.Time, limit int) (int, error)
}

// Worker expires stale pending payment intents
type Worker struct {
	engine      Engine
	logger      *slog.Logger
	cron        *cron.Cron
	expireAfter time.Duration
}

// NewWorker creates a new payment expire worker
func NewWorker(engine Engine, expireAfter time.Duration, logger *slog.Logger) *Worker {
	return &Worker{
		engine:      engine,
		logger:      logger,
		cron:        cron.New(),
		expireAfter: expireAfter,
	}
}

// Name returns the worker name
func (w *Worker) Name() string {
	return "payment-expire"
}

// Start starts the payment expire worker
func (w *Worker) Start() error {
	_, err := w.cron.AddFunc("@every 10m", func() {
		defer func() {
			if r := recover(); r != nil {
				w.logger.Error("Panic in payment expire worker", "panic", r)
			}
		}()
		ctx := context.Background()
		if err := w.run(ctx); err != nil {
			w.logger.Error("Payment expire worker failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule payment expire worker: %w", err)
	}

	w.cron.Start()
	w.logger.Info("Payment expire worker started", "expire_after", w.expireAfter)
	return nil
}

// Stop stops the worker
func (w *Worker) Stop() {
	w.logger.Info("Stopping payment expire worker")
	w.cron.Stop()
}

func (w *Worker) run(ctx context.Context) error {
	cutoff := time.Now().Add(-w.expireAfter)

	expired, err := w.engine.Expire(ctx, cutoff, batchSize)
	if err != nil {
		return fmt.Errorf("expire stale payments: %w", err)
	}
	if expired > 0 {
		metrics.ExpiredTotal.Add(float64(expired))
		w.logger.Info("Expired stale payments", "count", expired)
	}
	return nil
}
