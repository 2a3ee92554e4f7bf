// Package config loads reader settings from flags, PAGEMARK_* environment
// variables and an optional YAML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	LibraryURL       string        `mapstructure:"library_url"`
	ProgressURL      string        `mapstructure:"progress_url"`
	Token            string        `mapstructure:"token"`
	Debounce         time.Duration `mapstructure:"debounce"`
	PrefsPath        string        `mapstructure:"prefs_path"`
	LogFile          string        `mapstructure:"log_file"`
	LogLevel         string        `mapstructure:"log_level"`
	BreakerThreshold uint32        `mapstructure:"breaker_threshold"`
	BreakerCooldown  time.Duration `mapstructure:"breaker_cooldown"`
	MaxDocumentBytes int64         `mapstructure:"max_document_bytes"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("library_url", "http://localhost:8081")
	v.SetDefault("progress_url", "http://localhost:8082")
	v.SetDefault("token", "")
	v.SetDefault("prefs_path", "")
	v.SetDefault("log_file", "")
	v.SetDefault("debounce", 750*time.Millisecond)
	v.SetDefault("log_level", "info")
	v.SetDefault("breaker_threshold", 5)
	v.SetDefault("breaker_cooldown", 30*time.Second)
	v.SetDefault("max_document_bytes", int64(200<<20))
}

// Load reads configuration into v. cfgFile overrides the search for
// config.yaml in ./ and the user config directory.
func Load(v *viper.Viper, cfgFile string) (Config, error) {
	setDefaults(v)
	v.SetEnvPrefix("PAGEMARK")
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "pagemark"))
		}
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if cfg.Debounce < 100*time.Millisecond || cfg.Debounce > 5*time.Second {
		return Config{}, fmt.Errorf("debounce %s out of range [100ms, 5s]", cfg.Debounce)
	}
	return cfg, nil
}
