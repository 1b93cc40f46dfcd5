// Package config loads process configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the full runtime configuration of the API process.
type Config struct {
	HTTPAddr    string `env:"EASYVET_HTTP_ADDR" envDefault:":8080"`
	PostgresDSN string `env:"EASYVET_PG_DSN"`

	// Token signing material. Access and refresh tokens each have their
	// own secret; verification and reset tokens share a third one.
	ATSecret           string        `env:"EASYVET_AT_SECRET"`
	ATExpiry           time.Duration `env:"EASYVET_AT_EXPIRY" envDefault:"15m"`
	RTSecret           string        `env:"EASYVET_RT_SECRET"`
	RTExpiry           time.Duration `env:"EASYVET_RT_EXPIRY" envDefault:"168h"`
	SharedTokenSecret  string        `env:"EASYVET_TOKEN_SECRET"`
	VerificationExpiry time.Duration `env:"EASYVET_VERIFICATION_EXPIRY" envDefault:"24h"`

	// FrontendBaseURL is prepended to verification/reset paths in mail.
	FrontendBaseURL string `env:"EASYVET_FRONTEND_URL" envDefault:"http://localhost:3000"`

	SMTP SMTPConfig `envPrefix:"EASYVET_SMTP_"`

	// Per-IP request budget enforced by the HTTP boundary.
	RatePerSecond float64 `env:"EASYVET_RATE_PER_SECOND" envDefault:"20"`
	RateBurst     int     `env:"EASYVET_RATE_BURST" envDefault:"40"`
}

// SMTPConfig configures outbound transactional mail.
type SMTPConfig struct {
	Host     string `env:"HOST"`
	Port     int    `env:"PORT" envDefault:"587"`
	Username string `env:"USER"`
	Password string `env:"PASSWORD"`
	From     string `env:"FROM" envDefault:"no-reply@easyvet.app"`
}

// Load parses the environment and validates required secrets.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch {
	case c.ATSecret == "":
		return errors.New("config: EASYVET_AT_SECRET is required")
	case c.RTSecret == "":
		return errors.New("config: EASYVET_RT_SECRET is required")
	case c.SharedTokenSecret == "":
		return errors.New("config: EASYVET_TOKEN_SECRET is required")
	}
	return nil
}
