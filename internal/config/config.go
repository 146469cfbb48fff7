package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server   ServerConfig   `mapstructure:"server" validate:"required"`
	Remote   RemoteConfig   `mapstructure:"remote" validate:"required"`
	Tracker  TrackerConfig  `mapstructure:"tracker" validate:"required"`
	Snapshot SnapshotConfig `mapstructure:"snapshot" validate:"required"`
}

// ServerConfig contains the local HTTP surface settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// RemoteConfig points at the content service whose jobs are tracked.
type RemoteConfig struct {
	BaseURL        string        `mapstructure:"base_url" validate:"required,url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" validate:"required"`
}

// TrackerConfig carries the polling budgets and the resource policy.
type TrackerConfig struct {
	MaxConcurrentPollers int           `mapstructure:"max_concurrent_pollers" validate:"required,gt=0"`
	PollInterval         time.Duration `mapstructure:"poll_interval" validate:"required"`
	MaxAttempts          int           `mapstructure:"max_attempts" validate:"required,gt=0"`
	TimeoutMessage       string        `mapstructure:"timeout_message"`
}

// SnapshotConfig selects and configures the persistence backend.
type SnapshotConfig struct {
	Backend string        `mapstructure:"backend" validate:"required,oneof=memory pebble redis postgres"`
	TTL     time.Duration `mapstructure:"ttl" validate:"required"`
	Key     string        `mapstructure:"key" validate:"required"`

	// PebblePath is the directory of the embedded store; required when
	// Backend is pebble.
	PebblePath string `mapstructure:"pebble_path" validate:"required_if=Backend pebble"`

	// Redis settings; Addr required when Backend is redis.
	RedisAddr     string `mapstructure:"redis_addr" validate:"required_if=Backend redis"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`

	// PostgresURL required when Backend is postgres.
	PostgresURL string `mapstructure:"postgres_url" validate:"required_if=Backend postgres"`
}
