package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/scentmatch/scentmatch/internal/cache"
	"github.com/scentmatch/scentmatch/internal/database"
)

// Config holds runtime settings loaded from env vars.
type Config struct {
	HTTPAddr    string
	Environment string
	LogLevel    string
	LogFormat   string
	LogFile     string

	Database database.Config
	Redis    cache.RedisConfig

	// EncryptionKey is the hex-encoded AES-256 message key. Empty means an
	// ephemeral key is generated at startup.
	EncryptionKey string

	// MatchTTL is how long a pending like waits for reciprocation.
	MatchTTL time.Duration

	// ExpirySweepInterval controls the background pass that expires stale
	// pending matches.
	ExpirySweepInterval time.Duration

	// TelegramBotToken and TelegramChatID configure the ops notification
	// feed. Empty disables notifications.
	TelegramBotToken string
	TelegramChatID   string
}

// Load loads configuration from environment variables.
// Required variables: DB_PASSWORD (in production), ENCRYPTION_KEY (in production)
// Everything else has a development default.
func Load() Config {
	return Config{
		HTTPAddr:    envOr("HTTP_ADDR", ":8080"),
		Environment: envOr("ENVIRONMENT", "development"),
		LogLevel:    envOr("LOG_LEVEL", "info"),
		LogFormat:   envOr("LOG_FORMAT", "json"),
		LogFile:     os.Getenv("LOG_FILE"),
		Database: database.Config{
			Host:     envOr("DB_HOST", "localhost"),
			Port:     envOr("DB_PORT", "5432"),
			User:     envOr("DB_USER", "scentmatch"),
			Password: os.Getenv("DB_PASSWORD"),
			DBName:   envOr("DB_NAME", "scentmatch"),
			SSLMode:  envOr("DB_SSLMODE", "disable"),
		},
		Redis: cache.RedisConfig{
			Addr:     envOr("REDIS_ADDR", "localhost:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       envOrInt("REDIS_DB", 0),
			PoolSize: envOrInt("REDIS_POOL_SIZE", 10),
		},
		EncryptionKey:       os.Getenv("ENCRYPTION_KEY"),
		MatchTTL:            envOrDuration("MATCH_TTL", 72*time.Hour),
		ExpirySweepInterval: envOrDuration("EXPIRY_SWEEP_INTERVAL", 10*time.Minute),
		TelegramBotToken:    os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramChatID:      os.Getenv("TELEGRAM_CHAT_ID"),
	}
}

// Validate checks that all required configuration is present and valid.
func (c Config) Validate() error {
	if c.MatchTTL <= 0 {
		return fmt.Errorf("MATCH_TTL must be positive")
	}
	if !c.IsDevelopment() {
		if c.Database.Password == "" {
			return fmt.Errorf("DB_PASSWORD is required in production")
		}
		if c.EncryptionKey == "" {
			return fmt.Errorf("ENCRYPTION_KEY is required in production")
		}
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

func envOr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func envOrInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func envOrDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return fallback
}
