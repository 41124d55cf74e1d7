package config

import (
	"fmt"
	"time"
)

type Config struct {
	Env              string                  `env:"ENV,default=local"`
	Logger           LoggerConfig            `env:",prefix=LOGGER_"`
	Observability    ObservabilityHTTPConfig `env:",prefix=OBSERVABILITY_"`
	Webhook          WebhookServerConfig     `env:",prefix=WEBHOOK_"`
	ShutdownDuration time.Duration           `env:"SHUTDOWN_DURATION,default=30s"`
	DB               SQLiteConfig            `env:",prefix=DB_"`
	Redis            RedisConfig             `env:",prefix=REDIS_"`
	Telegram         TelegramConfig          `env:",prefix=TELEGRAM_"`
	HTTPClient       HTTPClientConfig        `env:",prefix=HTTP_CLIENT_"`
	Referral         ReferralConfig          `env:",prefix=REFERRAL_"`
	Cart             CartConfig              `env:",prefix=CART_"`
	Payments         PaymentsConfig          `env:",prefix=PAYMENTS_"`
}

type TelegramConfig struct {
	BotToken      string        `env:"BOT_TOKEN,required"`
	Timeout       time.Duration `env:"TIMEOUT,default=30s"`
	AdminIDs      []int64       `env:"ADMIN_IDS"`
	AdminChatID   int64         `env:"ADMIN_CHAT_ID"`
	AdminThreadID int           `env:"ADMIN_THREAD_ID"`
}

type ReferralConfig struct {
	CommissionPercent int   `env:"COMMISSION_PERCENT,default=10"`
	MinTopupAmount    int64 `env:"MIN_TOPUP_AMOUNT,default=10000"`
}

type CartConfig struct {
	TTL          time.Duration `env:"TTL,default=1h"`
	AutoPurchase bool          `env:"AUTO_PURCHASE,default=true"`
}

// PaymentsConfig aggregates per-gateway settings. A gateway with Enabled=false
// refuses to create payments and its webhook route is not registered.
type PaymentsConfig struct {
	PollInterval time.Duration `env:"POLL_INTERVAL,default=30s"`
	PollAfter    time.Duration `env:"POLL_AFTER,default=1m"`
	ExpireAfter  time.Duration `env:"EXPIRE_AFTER,default=24h"`

	Stars         StarsConfig         `env:",prefix=STARS_"`
	YooKassa      YooKassaConfig      `env:",prefix=YOOKASSA_"`
	CryptoBot     CryptoBotConfig     `env:",prefix=CRYPTOBOT_"`
	Tribute       TributeConfig       `env:",prefix=TRIBUTE_"`
	MulenPay      MulenPayConfig      `env:",prefix=MULENPAY_"`
	Pal24         Pal24Config         `env:",prefix=PAL24_"`
	Platega       PlategaConfig       `env:",prefix=PLATEGA_"`
	Wata          WataConfig          `env:",prefix=WATA_"`
	CloudPayments CloudPaymentsConfig `env:",prefix=CLOUDPAYMENTS_"`
}

// AmountBounds are checked locally before any network call.
// Amounts are minor currency units throughout.
type AmountBounds struct {
	MinAmount int64 `env:"MIN_AMOUNT,default=5000"`
	MaxAmount int64 `env:"MAX_AMOUNT,default=10000000"`
}

type StarsConfig struct {
	Enabled bool `env:"ENABLED,default=false"`
	AmountBounds
	// RatePerStar is how many minor currency units one star is worth.
	// The unit is explicit: no amount-size heuristics.
	RatePerStar int64 `env:"RATE_PER_STAR,default=150"`
}

type YooKassaConfig struct {
	Enabled   bool   `env:"ENABLED,default=false"`
	ShopID    string `env:"SHOP_ID"`
	SecretKey string `env:"SECRET_KEY"`
	ReturnURL string `env:"RETURN_URL,default=https://t.me"`
	AmountBounds
}

type CryptoBotConfig struct {
	Enabled  bool   `env:"ENABLED,default=false"`
	APIToken string `env:"API_TOKEN"`
	BaseURL  string `env:"BASE_URL,default=https://pay.crypt.bot"`
	Asset    string `env:"ASSET,default=USDT"`
	AmountBounds
}

type TributeConfig struct {
	Enabled         bool   `env:"ENABLED,default=false"`
	APIKey          string `env:"API_KEY"`
	DonateLink      string `env:"DONATE_LINK"`
	AllowUnverified bool   `env:"ALLOW_UNVERIFIED,default=false"`
	AmountBounds
}

type MulenPayConfig struct {
	Enabled   bool   `env:"ENABLED,default=false"`
	APIKey    string `env:"API_KEY"`
	SecretKey string `env:"SECRET_KEY"`
	ShopID    int64  `env:"SHOP_ID"`
	BaseURL   string `env:"BASE_URL,default=https://mulenpay.ru/api"`
	AmountBounds
}

type Pal24Config struct {
	Enabled  bool   `env:"ENABLED,default=false"`
	APIToken string `env:"API_TOKEN"`
	ShopID   string `env:"SHOP_ID"`
	BaseURL  string `env:"BASE_URL,default=https://pal24.pro/api/v1"`
	AmountBounds
}

type PlategaConfig struct {
	Enabled         bool   `env:"ENABLED,default=false"`
	MerchantID      string `env:"MERCHANT_ID"`
	Secret          string `env:"SECRET"`
	BaseURL         string `env:"BASE_URL,default=https://app.platega.io"`
	AllowUnverified bool   `env:"ALLOW_UNVERIFIED,default=false"`
	AmountBounds
}

type WataConfig struct {
	Enabled    bool   `env:"ENABLED,default=false"`
	APIToken   string `env:"API_TOKEN"`
	SigningKey string `env:"SIGNING_KEY"`
	BaseURL    string `env:"BASE_URL,default=https://api.wata.pro"`
	AmountBounds
}

type CloudPaymentsConfig struct {
	Enabled   bool   `env:"ENABLED,default=false"`
	PublicID  string `env:"PUBLIC_ID"`
	APISecret string `env:"API_SECRET"`
	BaseURL   string `env:"BASE_URL,default=https://api.cloudpayments.ru"`
	AmountBounds
}

type HTTPClientConfig struct {
	Timeout       time.Duration `env:"TIMEOUT,default=30s"`
	MaxRetries    int           `env:"MAX_RETRIES,default=3"`
	RetryInterval time.Duration `env:"RETRY_INTERVAL,default=2s"`
}

type LoggerConfig struct {
	Level string `env:"LEVEL,default=debug"`
}

type ObservabilityHTTPConfig struct {
	Host         string        `env:"HOST,default=127.0.0.1"`
	Port         uint16        `env:"PORT,default=8383"`
	ReadTimeout  time.Duration `env:"READ_TIMEOUT,default=30s"`
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT,default=30s"`
	IdleTimeout  time.Duration `env:"IDLE_TIMEOUT,default=1m"`
}

func (a ObservabilityHTTPConfig) ADDR() string {
	return fmt.Sprintf("%s:%d", a.Host, a.Port)
}

// WebhookServerConfig is the public-facing server that receives gateway
// callbacks. Handlers must answer within the gateways' ack timeouts, so the
// write timeout stays tight.
type WebhookServerConfig struct {
	Host         string        `env:"HOST,default=0.0.0.0"`
	Port         uint16        `env:"PORT,default=8080"`
	ReadTimeout  time.Duration `env:"READ_TIMEOUT,default=10s"`
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT,default=10s"`
	IdleTimeout  time.Duration `env:"IDLE_TIMEOUT,default=1m"`
}

func (a WebhookServerConfig) ADDR() string {
	return fmt.Sprintf("%s:%d", a.Host, a.Port)
}

type SQLiteConfig struct {
	Path         string `env:"PATH,default=./data/remna-shop.db"`
	MaxOpenConns int    `env:"MAX_OPEN_CONNS,default=25"`
	MaxIdleConns int    `env:"MAX_IDLE_CONNS,default=5"`
	MaxLifetime  string `env:"MAX_LIFETIME,default=5m"`
}

type RedisConfig struct {
	Addr     string `env:"ADDR,default=127.0.0.1:6379"`
	Password string `env:"PASSWORD"`
	DB       int    `env:"DB,default=0"`
}
