// Package metrics holds the Prometheus instruments for the payment
// subsystem. Everything is registered through promauto on the default
// registry and exposed by the observability server's /metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// WebhooksTotal counts inbound gateway callbacks by provider and
	// outcome: processed, duplicate, ignored, malformed, unauthorized,
	// error.
	WebhooksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payments_webhooks_total",
		Help: "Inbound payment webhooks by provider and outcome",
	}, []string{"provider", "outcome"})

	// CreditsTotal counts credited top-ups by provider.
	CreditsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payments_credits_total",
		Help: "Successfully credited top-ups by provider",
	}, []string{"provider"})

	// CreditedAmount accumulates credited minor units by provider.
	CreditedAmount = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payments_credited_amount_minor_total",
		Help: "Credited amount in minor currency units by provider",
	}, []string{"provider"})

	// PollChecksTotal counts poll reconciliation attempts by provider and
	// result: paid, failed, pending, error.
	PollChecksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payments_poll_checks_total",
		Help: "Gateway status poll attempts by provider and result",
	}, []string{"provider", "result"})

	// ExpiredTotal counts intents closed by the expiry worker.
	ExpiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payments_expired_total",
		Help: "Pending payment intents expired by the cleanup worker",
	})
)
