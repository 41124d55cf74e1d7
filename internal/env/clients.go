package environment

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"remna-shop/internal/config"
	"remna-shop/internal/infra/httpclient"
	"remna-shop/internal/infra/redis"
	"remna-shop/internal/infra/sqlite3"
	"remna-shop/internal/infra/telegram"
	"remna-shop/internal/storage"
)

type Clients struct {
	SQLiteDB    *sqlite3.DB
	Redis       *redis.Client
	TelegramBot *telegram.Client
	HTTP        *httpclient.Client
}

func newClients(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Clients, error) {
	sqliteDB, err := provideSQLiteDB(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("provide sqlite: %w", err)
	}

	// Схема накатывается на старте, до любого трафика
	if err := storage.New(sqliteDB.DB).Migrate(ctx); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	redisClient, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return nil, fmt.Errorf("provide redis: %w", err)
	}

	telegramBot, err := telegram.NewClient(cfg.Telegram.BotToken, logger)
	if err != nil {
		return nil, fmt.Errorf("provide telegram bot: %w", err)
	}

	httpClient := httpclient.New(logger.WithGroup("gateway_http"),
		httpclient.WithTimeout(cfg.HTTPClient.Timeout),
		httpclient.WithMaxRetries(cfg.HTTPClient.MaxRetries),
		httpclient.WithRetryInterval(cfg.HTTPClient.RetryInterval),
	)

	return &Clients{
		SQLiteDB:    sqliteDB,
		Redis:       redisClient,
		TelegramBot: telegramBot,
		HTTP:        httpClient,
	}, nil
}

func provideSQLiteDB(ctx context.Context, cfg config.Config) (*sqlite3.DB, error) {
	maxLifetimeStr := cfg.DB.MaxLifetime
	if maxLifetimeStr == "" {
		maxLifetimeStr = "5m" // default value
	}
	maxLifetime, err := time.ParseDuration(maxLifetimeStr)
	if err != nil {
		return nil, err
	}

	opts := []sqlite3.Option{
		sqlite3.WithPath(cfg.DB.Path),
		sqlite3.WithMaxOpenConns(cfg.DB.MaxOpenConns),
		sqlite3.WithMaxIdleConns(cfg.DB.MaxIdleConns),
		sqlite3.WithConnMaxLifetime(maxLifetime),
	}

	return sqlite3.New(ctx, opts...)
}
