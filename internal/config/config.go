package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

type Config struct {
	// Server
	Port        int    `envconfig:"PORT" default:"3000"`
	Environment string `envconfig:"ENV" default:"development"`

	// Storage
	StorageBackend string        `envconfig:"STORAGE_BACKEND" default:"memory"`
	DatabaseURL    string        `envconfig:"DATABASE_URL"`
	RedisURL       string        `envconfig:"REDIS_URL"`
	StorageTimeout time.Duration `envconfig:"STORAGE_TIMEOUT" default:"2s"`
	AutoMigrate    bool          `envconfig:"AUTO_MIGRATE" default:"false"`

	// Challenges
	MaxAttempts        int           `envconfig:"MAX_ATTEMPTS" default:"3"`
	TicketTTL          time.Duration `envconfig:"TICKET_TTL" default:"5m"`
	CleanupInterval    time.Duration `envconfig:"CLEANUP_INTERVAL" default:"1m"`
	ChallengeRateLimit int           `envconfig:"CHALLENGE_RATE_LIMIT" default:"30"`
	ImageWidth         int           `envconfig:"IMAGE_WIDTH" default:"320"`
	ImageHeight        int           `envconfig:"IMAGE_HEIGHT" default:"160"`

	// Abuse protection
	BlockThreshold int           `envconfig:"BLOCK_THRESHOLD" default:"5"`
	BlockWindow    time.Duration `envconfig:"BLOCK_WINDOW" default:"15m"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return &cfg, nil
}

// Validate checks the settings that depend on each other.
func (c *Config) Validate() error {
	switch c.StorageBackend {
	case BackendMemory:
	case BackendRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required for the redis backend")
		}
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND %q", c.StorageBackend)
	}

	if c.MaxAttempts <= 0 {
		return fmt.Errorf("MAX_ATTEMPTS must be positive")
	}
	if c.TicketTTL <= 0 {
		return fmt.Errorf("TICKET_TTL must be positive")
	}
	if c.BlockThreshold <= 0 {
		return fmt.Errorf("BLOCK_THRESHOLD must be positive")
	}
	if c.ImageWidth < 100 || c.ImageHeight < 60 {
		return fmt.Errorf("image size %dx%d is too small", c.ImageWidth, c.ImageHeight)
	}
	return nil
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
