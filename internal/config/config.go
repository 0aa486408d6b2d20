package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

var ErrMissingAPIBaseURL = errors.New("API_BASE_URL is required")

type Config struct {
	AppEnv     string `env:"APP_ENV" envDefault:"development"`
	APIBaseURL string `env:"API_BASE_URL"`
	KioskToken string `env:"KIOSK_TOKEN"`
	JournalDSN string `env:"JOURNAL_DSN"`

	HTTPTimeout  time.Duration `env:"HTTP_TIMEOUT" envDefault:"15s"`
	APIRateLimit float64       `env:"API_RATE_LIMIT" envDefault:"5"`
	APIRateBurst int           `env:"API_RATE_BURST" envDefault:"10"`

	NotifyDuration time.Duration `env:"NOTIFY_DURATION" envDefault:"3s"`
	Reconnect      Reconnect
}

type Reconnect struct {
	BaseDelay   time.Duration `env:"RECONNECT_BASE_DELAY" envDefault:"3s"`
	MaxDelay    time.Duration `env:"RECONNECT_MAX_DELAY" envDefault:"10s"`
	MaxAttempts int           `env:"RECONNECT_MAX_ATTEMPTS" envDefault:"3"`
}

// LoadConfig reads .env (if present) and the process environment.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	if cfg.APIBaseURL == "" {
		return nil, ErrMissingAPIBaseURL
	}

	return cfg, nil
}
