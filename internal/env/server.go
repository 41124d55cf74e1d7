package environment

import (
	"context"
	"log/slog"
	"net/http"

	"remna-shop/internal/config"
)

type Servers struct {
	HTTP struct {
		Observability *http.Server
		Webhooks      *http.Server
	}
}

func newServers(ctx context.Context, cfg config.Config, logger *slog.Logger, clients *Clients, services *Services) *Servers {
	var servers Servers

	servers.HTTP.Webhooks = services.WebhookServer.HTTPServer(cfg.Webhook)
	servers.HTTP.Observability = initObservability(ctx, logger.WithGroup("http"), clients, cfg)

	return &servers
}
