package config

import (
	"fmt"
	"strings"
	"time"

	platformconfig "github.com/example/pagemark/internal/platform/config"
)

type Config struct {
	platformconfig.AppConfig

	Backend     string        `env:"PROGRESS_BACKEND" envDefault:"postgres"`
	DatabaseURL string        `env:"DATABASE_URL"`
	SQLitePath  string        `env:"SQLITE_PATH" envDefault:"progress.db"`
	RedisURL    string        `env:"REDIS_URL"`
	CacheTTL    time.Duration `env:"PROGRESS_CACHE_TTL" envDefault:"10m"`

	JWTSecret string `env:"JWT_SECRET,required"`
	JWTIssuer string `env:"JWT_ISSUER"`

	// NATSURL enables the event consumers; AsyncWrites additionally routes
	// PUT requests through JetStream.
	NATSURL     string `env:"NATS_URL"`
	AsyncWrites bool   `env:"PROGRESS_ASYNC_WRITES" envDefault:"false"`
}

func Load() (Config, error) {
	var cfg Config
	if err := platformconfig.ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	cfg.Backend = strings.ToLower(strings.TrimSpace(cfg.Backend))
	if cfg.Backend == "postgres" && strings.TrimSpace(cfg.DatabaseURL) == "" {
		return Config{}, fmt.Errorf("DATABASE_URL is required for the postgres backend")
	}
	if cfg.AsyncWrites && strings.TrimSpace(cfg.NATSURL) == "" {
		return Config{}, fmt.Errorf("PROGRESS_ASYNC_WRITES requires NATS_URL")
	}
	return cfg, nil
}
