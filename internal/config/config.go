package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Хранилища заявок, выбираемые через DB_DRIVER.
const (
	DBDriverPostgres = "postgres"
	DBDriverPgx      = "pgx"
	DBDriverSQLite   = "sqlite"
)

// Config хранит конфигурацию времени выполнения бота регистрации водителей.
type Config struct {
	BotToken    string `env:"TELEGRAM_BOT_TOKEN"`
	BotUsername string `env:"BOT_USERNAME"`

	ReviewChatID         int64  `env:"REVIEW_CHAT_ID"`
	ReviewLanguage       string `env:"REVIEW_LANGUAGE" envDefault:"ru"`
	ReviewStrictClaimant bool   `env:"REVIEW_STRICT_CLAIMANT" envDefault:"false"`

	TelegramWebhookURL         string        `env:"TELEGRAM_WEBHOOK_URL"`
	TelegramWebhookDropPending bool          `env:"TELEGRAM_WEBHOOK_DROP_PENDING" envDefault:"false"`
	WebhookSecret              string        `env:"TELEGRAM_WEBHOOK_SECRET"`
	TelegramTimeout            time.Duration `env:"TELEGRAM_TIMEOUT" envDefault:"5s"`
	TelegramPollingEnabled     bool          `env:"TELEGRAM_POLLING_ENABLED" envDefault:"false"`
	TelegramPollingTimeout     time.Duration `env:"TELEGRAM_POLLING_TIMEOUT" envDefault:"25s"`
	TelegramPollingInterval    time.Duration `env:"TELEGRAM_POLLING_INTERVAL" envDefault:"1s"`
	TelegramPollingLimit       int           `env:"TELEGRAM_POLLING_LIMIT" envDefault:"50"`
	TelegramPollingDropPending bool          `env:"TELEGRAM_POLLING_DROP_PENDING" envDefault:"true"`
	TelegramPollingDropWebhook bool          `env:"TELEGRAM_POLLING_DROP_WEBHOOK" envDefault:"true"`
	TelegramInboundRateLimit   int           `env:"TELEGRAM_INBOUND_RATE_LIMIT_PER_MIN" envDefault:"30"`

	DatabaseURL string `env:"DATABASE_URL"`
	DBDriver    string `env:"DB_DRIVER" envDefault:"postgres"`
	RedisURL    string `env:"REDIS_URL"`

	SessionIdleTTL time.Duration `env:"SESSION_IDLE_TTL" envDefault:"24h"`
	FormMode       string        `env:"FORM_MODE" envDefault:"text"`

	Port     string `env:"PORT" envDefault:"8080"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// Load читает конфигурацию из переменных окружения.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	cfg.BotToken = strings.TrimSpace(cfg.BotToken)
	cfg.BotUsername = strings.TrimPrefix(strings.TrimSpace(cfg.BotUsername), "@")
	cfg.WebhookSecret = strings.TrimSpace(cfg.WebhookSecret)
	cfg.DatabaseURL = strings.TrimSpace(cfg.DatabaseURL)
	cfg.RedisURL = strings.TrimSpace(cfg.RedisURL)
	cfg.ReviewLanguage = strings.ToLower(strings.TrimSpace(cfg.ReviewLanguage))
	cfg.FormMode = strings.ToLower(strings.TrimSpace(cfg.FormMode))
	cfg.DBDriver = strings.ToLower(strings.TrimSpace(cfg.DBDriver))
	switch cfg.DBDriver {
	case "pq", "postgresql":
		cfg.DBDriver = DBDriverPostgres
	case "sqlite3":
		cfg.DBDriver = DBDriverSQLite
	}

	missing := make([]string, 0, 2)
	if cfg.BotToken == "" {
		missing = append(missing, "TELEGRAM_BOT_TOKEN")
	}
	if cfg.ReviewChatID == 0 {
		missing = append(missing, "REVIEW_CHAT_ID")
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required env vars: %s", strings.Join(missing, ", "))
	}

	switch cfg.DBDriver {
	case DBDriverPostgres, DBDriverPgx, DBDriverSQLite:
	default:
		return Config{}, fmt.Errorf("DB_DRIVER must be one of postgres, pgx, sqlite")
	}
	switch cfg.FormMode {
	case "text", "photo":
	default:
		return Config{}, fmt.Errorf("FORM_MODE must be text or photo")
	}
	if cfg.SessionIdleTTL < 0 {
		return Config{}, fmt.Errorf("SESSION_IDLE_TTL must not be negative")
	}
	invalidLimits := make([]string, 0, 2)
	if cfg.TelegramInboundRateLimit < 0 {
		invalidLimits = append(invalidLimits, "TELEGRAM_INBOUND_RATE_LIMIT_PER_MIN")
	}
	if cfg.TelegramPollingLimit <= 0 || cfg.TelegramPollingLimit > 100 {
		invalidLimits = append(invalidLimits, "TELEGRAM_POLLING_LIMIT")
	}
	if len(invalidLimits) > 0 {
		return Config{}, fmt.Errorf("limit values out of range: %s", strings.Join(invalidLimits, ", "))
	}

	return cfg, nil
}
