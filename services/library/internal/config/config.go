package config

import (
	"fmt"
	"strings"
	"time"

	platformconfig "github.com/example/pagemark/internal/platform/config"
)

type Config struct {
	platformconfig.AppConfig

	// Backend is postgres or memory; memory is refused in production.
	Backend     string `env:"LIBRARY_BACKEND" envDefault:"postgres"`
	DatabaseURL string `env:"DATABASE_URL"`

	JWTSecret string `env:"JWT_SECRET,required"`
	JWTIssuer string `env:"JWT_ISSUER"`

	SigningSecret  string        `env:"SIGNING_SECRET,required"`
	ObjectRoot     string        `env:"OBJECT_ROOT" envDefault:"./data/objects"`
	PublicBaseURL  string        `env:"PUBLIC_BASE_URL" envDefault:"http://localhost:8080"`
	SignedURLTTL   time.Duration `env:"SIGNED_URL_TTL" envDefault:"1h"`
	MaxUploadBytes int64         `env:"MAX_UPLOAD_BYTES" envDefault:"209715200"`

	NATSURL string `env:"NATS_URL"`
}

func Load() (Config, error) {
	var cfg Config
	if err := platformconfig.ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	cfg.Backend = strings.ToLower(strings.TrimSpace(cfg.Backend))
	switch cfg.Backend {
	case "postgres":
		if strings.TrimSpace(cfg.DatabaseURL) == "" {
			return Config{}, fmt.Errorf("DATABASE_URL is required for the postgres backend")
		}
	case "memory":
		if cfg.IsProduction() {
			return Config{}, fmt.Errorf("LIBRARY_BACKEND=memory is not allowed in production")
		}
	default:
		return Config{}, fmt.Errorf("unknown LIBRARY_BACKEND %q", cfg.Backend)
	}
	if cfg.SignedURLTTL <= 0 {
		return Config{}, fmt.Errorf("SIGNED_URL_TTL must be positive")
	}
	return cfg, nil
}
