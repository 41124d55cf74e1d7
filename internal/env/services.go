package environment

import (
	"context"
	"database/sql"
	"log/slog"

	"remna-shop/internal/config"
	"remna-shop/internal/gateways"
	"remna-shop/internal/gateways/cloudpayments"
	"remna-shop/internal/gateways/cryptobot"
	"remna-shop/internal/gateways/mulenpay"
	"remna-shop/internal/gateways/pal24"
	"remna-shop/internal/gateways/platega"
	"remna-shop/internal/gateways/stars"
	"remna-shop/internal/gateways/tribute"
	"remna-shop/internal/gateways/wata"
	"remna-shop/internal/gateways/yookassa"
	"remna-shop/internal/infra/sqlite3"
	"remna-shop/internal/storage"
	"remna-shop/internal/stories/cart"
	"remna-shop/internal/stories/checkout"
	"remna-shop/internal/stories/referral"
	"remna-shop/internal/stories/topup"
	"remna-shop/internal/stories/users"
	"remna-shop/internal/telegram"
	"remna-shop/internal/webhooks"
	"remna-shop/internal/workers"
	"remna-shop/internal/workers/paymentexpire"
	"remna-shop/internal/workers/paymentwatch"

	"github.com/pkg/errors"
)

type Services struct {
	TelegramRouter *telegram.Router
	WebhookServer  *webhooks.Server
	TopupService   *topup.Service
	Registry       *gateways.Registry
	Workers        *workers.Manager
}

func newServices(_ context.Context, clients *Clients, cfg *config.Config, logger *slog.Logger) (*Services, error) {
	var s Services

	if clients.TelegramBot == nil {
		return nil, errors.New("telegram bot не инициализирован")
	}

	// Создаем реальный storage
	storageImpl := storage.New(clients.SQLiteDB.DB)
	txManager := sqlite3.WithTx(clients.SQLiteDB, &sql.TxOptions{})

	// Создаем сервисы историй
	userService := users.NewService(storageImpl)
	cartService := cart.NewService(clients.Redis, cfg.Cart.TTL, logger)
	referralService := referral.NewService(storageImpl, txManager, cfg.Referral, logger)
	checkoutService := checkout.NewService(storageImpl, txManager, nil, logger)

	// Создаем адаптеры всех шлюзов. Реестр держит и выключенные: старые
	// платежи должны досводиться после отключения шлюза
	starsAdapter := stars.New(cfg.Payments.Stars, clients.TelegramBot, logger)
	registry := gateways.NewRegistry(
		starsAdapter,
		yookassa.New(cfg.Payments.YooKassa, logger),
		cryptobot.New(cfg.Payments.CryptoBot, clients.HTTP, logger),
		tribute.New(cfg.Payments.Tribute, logger),
		mulenpay.New(cfg.Payments.MulenPay, clients.HTTP, logger),
		pal24.New(cfg.Payments.Pal24, clients.HTTP, logger),
		platega.New(cfg.Payments.Platega, clients.HTTP, logger),
		wata.New(cfg.Payments.Wata, clients.HTTP, logger),
		cloudpayments.New(cfg.Payments.CloudPayments, clients.HTTP, logger),
	)
	s.Registry = registry

	// Создаем нотификатор и пайплайн эффектов
	notifier := telegram.NewNotifier(clients.TelegramBot, cfg.Telegram, logger)
	effectsRunner := topup.NewEffectsRunner(
		referralService,
		storageImpl,
		notifier,
		cartService,
		checkoutService,
		cfg.Cart.AutoPurchase,
		logger,
	)

	// Создаем движок сверки платежей
	topupService := topup.NewService(storageImpl, registry, txManager, effectsRunner, logger)
	s.TopupService = topupService

	// Создаем AdminChecker и роутер
	adminChecker := telegram.NewAdminChecker(cfg.Telegram)
	s.TelegramRouter = telegram.NewRouter(
		clients.TelegramBot,
		userService,
		topupService,
		storageImpl,
		registry,
		starsAdapter,
		cartService,
		checkoutService,
		adminChecker,
		logger,
	)

	// Создаем вебхук-сервер
	s.WebhookServer = webhooks.NewServer(topupService, registry, logger)

	// Создаем воркеры
	s.Workers = workers.NewManager(logger,
		effectsRunner,
		paymentwatch.NewWorker(topupService, cfg.Payments.PollInterval, cfg.Payments.PollAfter, logger),
		paymentexpire.NewWorker(topupService, cfg.Payments.ExpireAfter, logger),
	)

	return &s, nil
}
