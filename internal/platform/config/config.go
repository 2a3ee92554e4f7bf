package config

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
)

type HTTPConfig struct {
	Addr string `env:"HTTP_ADDR" envDefault:":8080"`
}

// AppConfig carries the settings every service shares.
type AppConfig struct {
	ServiceName        string `env:"SERVICE_NAME,required"`
	Env                string `env:"ENV" envDefault:"development"`
	LogLevel           string `env:"LOG_LEVEL" envDefault:"info"`
	CORSAllowedOrigins string `env:"CORS_ALLOWED_ORIGINS"`
	OTELEndpoint       string `env:"OTEL_ENDPOINT"`
	HTTP               HTTPConfig
}

func Load() (AppConfig, error) {
	var cfg AppConfig
	if err := ParseEnv(&cfg); err != nil {
		return AppConfig{}, err
	}
	cfg.ServiceName = strings.TrimSpace(cfg.ServiceName)
	if cfg.ServiceName == "" {
		return AppConfig{}, fmt.Errorf("SERVICE_NAME is required")
	}
	return cfg, nil
}

// IsProduction reports whether dev-only fallbacks must be refused.
func (c AppConfig) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Env), "production")
}

// ParseEnv loads configuration from environment variables into target.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}
