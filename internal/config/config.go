package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Port          string
	DatabaseURL   string
	RedisURL      string
	ServiceName   string
	Prefetch      int
	ConsumerName  string
	MigrationsDir string
	BlockTimeout  time.Duration
	ClaimMinIdle  time.Duration
	MaxDeliveries int

	// Mutations admitted per user within RateWindow; 0 disables limiting.
	RateLimit  int
	RateWindow time.Duration
}

// Load reads configuration from an optional config.yaml in dir, overridden
// by environment variables of the same name in upper case (PORT,
// DATABASE_URL, ...).
func Load(dir string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if dir != "" {
		v.AddConfigPath(dir)
	}
	v.AutomaticEnv()

	v.SetDefault("port", "8080")
	v.SetDefault("database_url", "")
	v.SetDefault("redis_url", "")
	v.SetDefault("service_name", "task-event-pipeline")
	v.SetDefault("prefetch", 10)
	v.SetDefault("consumer_name", defaultConsumerName())
	v.SetDefault("migrations_dir", "migrations")
	v.SetDefault("block_timeout", 2*time.Second)
	v.SetDefault("claim_min_idle", 30*time.Second)
	v.SetDefault("max_deliveries", 5)
	v.SetDefault("rate_limit", 30)
	v.SetDefault("rate_window", time.Second)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	cfg := &Config{
		Port:          v.GetString("port"),
		DatabaseURL:   v.GetString("database_url"),
		RedisURL:      v.GetString("redis_url"),
		ServiceName:   v.GetString("service_name"),
		Prefetch:      v.GetInt("prefetch"),
		ConsumerName:  v.GetString("consumer_name"),
		MigrationsDir: v.GetString("migrations_dir"),
		BlockTimeout:  v.GetDuration("block_timeout"),
		ClaimMinIdle:  v.GetDuration("claim_min_idle"),
		MaxDeliveries: v.GetInt("max_deliveries"),
		RateLimit:     v.GetInt("rate_limit"),
		RateWindow:    v.GetDuration("rate_window"),
	}

	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("REDIS_URL is required")
	}
	if cfg.Prefetch < 1 {
		return nil, fmt.Errorf("PREFETCH must be at least 1, got %d", cfg.Prefetch)
	}
	if cfg.BlockTimeout <= 0 {
		return nil, fmt.Errorf("BLOCK_TIMEOUT must be positive, got %s", cfg.BlockTimeout)
	}
	if cfg.ClaimMinIdle <= 0 {
		return nil, fmt.Errorf("CLAIM_MIN_IDLE must be positive, got %s", cfg.ClaimMinIdle)
	}
	if cfg.MaxDeliveries < 1 {
		return nil, fmt.Errorf("MAX_DELIVERIES must be at least 1, got %d", cfg.MaxDeliveries)
	}
	return cfg, nil
}

// RequireDatabase reports an error when no database is configured.
func (c *Config) RequireDatabase() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	return nil
}

func defaultConsumerName() string {
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "consumer-" + uuid.NewString()[:8]
}
