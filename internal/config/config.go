package config

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config is loaded once at startup and passed by pointer; nothing re-reads the
// environment per request.
type Config struct {
	Env                 string
	Port                string
	LogLevel            string
	SessionSecret       string
	DatabaseURL         string
	AutoMigrate         bool
	LockTimeout         time.Duration
	RedisURL            string
	FrontendURLEndsWith string
	DevPassword         string
	AllowCrossSiteDev   bool
	HealthAdminKey      string

	// Bots authenticate with X-User-Secret, checked against this bcrypt hash.
	ExtUserSecretHash string

	StripeSecretKey           string
	StripeWebhookSecret       string
	PlatformFeePercent        decimal.Decimal
	CheckoutIdempotencyWindow time.Duration
	CheckoutSuccessURL        string
	CheckoutCancelURL         string
	OnboardReturnURL          string
	DefaultCurrency           string

	KafkaBrokers    []string
	KafkaTradeTopic string
}

// Load reads .env (optional) and the environment.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig()

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("PORT", "8080")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOCK_TIMEOUT_MS", 5000)
	v.SetDefault("PLATFORM_FEE_PERCENT", "0.02")
	v.SetDefault("CHECKOUT_IDEMPOTENCY_WINDOW", "5m")
	v.SetDefault("DEFAULT_CURRENCY", "PLN")
	v.SetDefault("KAFKA_TRADE_TOPIC", "trades.settled")
	v.SetDefault("CHECKOUT_SUCCESS_URL", "http://localhost:3000/checkout/success?session_id={CHECKOUT_SESSION_ID}")
	v.SetDefault("CHECKOUT_CANCEL_URL", "http://localhost:3000/checkout/cancel")
	v.SetDefault("ONBOARD_RETURN_URL", "http://localhost:3000/account/payments")

	fee, err := decimal.NewFromString(v.GetString("PLATFORM_FEE_PERCENT"))
	if err != nil {
		return nil, err
	}

	return &Config{
		Env:                       v.GetString("APP_ENV"),
		Port:                      v.GetString("PORT"),
		LogLevel:                  v.GetString("LOG_LEVEL"),
		SessionSecret:             v.GetString("SESSION_SECRET"),
		DatabaseURL:               v.GetString("DATABASE_URL"),
		AutoMigrate:               v.GetBool("AUTO_MIGRATE"),
		LockTimeout:               time.Duration(v.GetInt("LOCK_TIMEOUT_MS")) * time.Millisecond,
		RedisURL:                  v.GetString("REDIS_URL"),
		FrontendURLEndsWith:       v.GetString("FRONTEND_URL_ENDS_WITH"),
		DevPassword:               v.GetString("DEV_PASSWORD"),
		AllowCrossSiteDev:         v.GetBool("ALLOW_CROSS_SITE_DEV"),
		HealthAdminKey:            v.GetString("HEALTH_ADMIN_KEY"),
		ExtUserSecretHash:         v.GetString("EXT_USER_API_SECRET_HASH"),
		StripeSecretKey:           v.GetString("STRIPE_SECRET_KEY"),
		StripeWebhookSecret:       v.GetString("STRIPE_WEBHOOK_SECRET"),
		PlatformFeePercent:        fee,
		CheckoutIdempotencyWindow: v.GetDuration("CHECKOUT_IDEMPOTENCY_WINDOW"),
		CheckoutSuccessURL:        v.GetString("CHECKOUT_SUCCESS_URL"),
		CheckoutCancelURL:         v.GetString("CHECKOUT_CANCEL_URL"),
		OnboardReturnURL:          v.GetString("ONBOARD_RETURN_URL"),
		DefaultCurrency:           strings.ToUpper(v.GetString("DEFAULT_CURRENCY")),
		KafkaBrokers:              splitList(v.GetString("KAFKA_BROKERS")),
		KafkaTradeTopic:           v.GetString("KAFKA_TRADE_TOPIC"),
	}, nil
}

// IsProduction reports whether APP_ENV is production.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
