// Package webhooks is the inbound HTTP surface for gateway callbacks. One
// POST route per registered gateway; verification and parsing belong to the
// adapters, reconciliation to the engine. Handlers acknowledge duplicates
// exactly like first deliveries so gateways stop retrying.
package webhooks

import (
	"context"
	"log/slog"
	"net/http"

	"remna-shop/internal/config"
	"remna-shop/internal/gateways"
	"remna-shop/internal/stories/topup"
)

// Engine is the reconciliation entry point handlers feed parsed events into.
type Engine interface {
	HandleWebhookEvent(ctx context.Context, provider string, ev *gateways.WebhookEvent) (topup.Result, error)
}

type Server struct {
	engine   Engine
	registry *gateways.Registry
	logger   *slog.Logger
}

func NewServer(engine Engine, registry *gateways.Registry, logger *slog.Logger) *Server {
	return &Server{engine: engine, registry: registry, logger: logger}
}

// Handler builds the mux with one route per gateway, e.g.
// POST /webhooks/yookassa.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	for _, adapter := range s.registry.All() {
		mux.HandleFunc("/webhooks/"+adapter.Name(), s.handle(adapter))
	}
	return mux
}

// HTTPServer wraps the handler in a configured http.Server.
func (s *Server) HTTPServer(cfg config.WebhookServerConfig) *http.Server {
	return &http.Server{
		Handler:           s.Handler(),
		Addr:              cfg.ADDR(),
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		ReadHeaderTimeout: cfg.ReadTimeout,
	}
}
