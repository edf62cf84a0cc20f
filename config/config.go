package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

type Config struct {
	Port      string `env:"PORT" default:"8080"`
	DBDriver  string `env:"DB_DRIVER" default:"sqlite"`
	DBDSN     string `env:"DB_DSN" default:"mergington.db"`
	StaticDir string `env:"STATIC_DIR" default:"static"`

	// Redis is optional; without it responses are not cached and the
	// signup quota is off.
	RedisAddr        string        `env:"REDIS_ADDR"`
	CacheTTL         time.Duration `env:"CACHE_TTL" default:"30s"`
	SignupDailyQuota int           `env:"SIGNUP_DAILY_QUOTA" default:"20"`

	RateLimitRPS   float64 `env:"RATE_LIMIT_RPS" default:"20"`
	RateLimitBurst int     `env:"RATE_LIMIT_BURST" default:"40"`

	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"json"`
}

// Load reads an optional .env file, then the environment. It reports
// whether a .env file was found so the caller can log it once a logger
// exists.
func Load() (*Config, bool, error) {
	dotenv := godotenv.Load() == nil

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, dotenv, fmt.Errorf("failed to load environment variables: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, dotenv, err
	}
	return &cfg, dotenv, nil
}

func (cfg *Config) Validate() error {
	switch cfg.DBDriver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("DB_DRIVER must be sqlite or postgres, got %q", cfg.DBDriver)
	}
	if cfg.DBDSN == "" {
		return errors.New("DB_DSN is required")
	}
	if cfg.Port == "" {
		return errors.New("PORT is required")
	}
	if cfg.SignupDailyQuota < 0 {
		return errors.New("SIGNUP_DAILY_QUOTA must not be negative")
	}
	if cfg.RateLimitRPS <= 0 || cfg.RateLimitBurst <= 0 {
		return errors.New("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive")
	}
	if cfg.CacheTTL <= 0 {
		return errors.New("CACHE_TTL must be positive")
	}
	switch cfg.LogFormat {
	case "json", "console":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or console, got %q", cfg.LogFormat)
	}
	return nil
}
