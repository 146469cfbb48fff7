package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Load reads configuration from environment variables and an optional
// config.yaml in the working directory. Environment variables take
// precedence over file values. Returns a populated Config or an error when
// loading or validation fails.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("TASKWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// No config file is fine; defaults plus environment apply.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")

	v.SetDefault("remote.base_url", "http://localhost:8000")
	v.SetDefault("remote.request_timeout", 15*time.Second)

	v.SetDefault("tracker.max_concurrent_pollers", 32)
	v.SetDefault("tracker.poll_interval", 5*time.Second)
	v.SetDefault("tracker.max_attempts", 120)
	v.SetDefault("tracker.timeout_message", "task did not finish in the allotted time")

	v.SetDefault("snapshot.backend", "memory")
	v.SetDefault("snapshot.ttl", 30*time.Minute)
	v.SetDefault("snapshot.key", "taskwatch:snapshot:v1")
	v.SetDefault("snapshot.pebble_path", "")
	v.SetDefault("snapshot.redis_addr", "")
	v.SetDefault("snapshot.redis_password", "")
	v.SetDefault("snapshot.redis_db", 0)
	v.SetDefault("snapshot.postgres_url", "")
}
