package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestLoad_Defaults tests the development defaults with a clean environment
func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg := Load()

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, "5432", cfg.Database.Port)
	assert.Equal(t, "disable", cfg.Database.SSLMode)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 72*time.Hour, cfg.MatchTTL)
	assert.Equal(t, 10*time.Minute, cfg.ExpirySweepInterval)
}

// TestLoad_Overrides tests environment variable overrides
func TestLoad_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("MATCH_TTL", "24h")
	t.Setenv("REDIS_ADDR", "redis.internal:6380")
	t.Setenv("ENCRYPTION_KEY", "abc123")

	cfg := Load()

	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 24*time.Hour, cfg.MatchTTL)
	assert.Equal(t, "redis.internal:6380", cfg.Redis.Addr)
	assert.Equal(t, "abc123", cfg.EncryptionKey)
}

// TestLoad_InvalidDuration falls back to the default on a malformed value
func TestLoad_InvalidDuration(t *testing.T) {
	clearEnv(t)
	t.Setenv("MATCH_TTL", "three days")

	cfg := Load()
	assert.Equal(t, 72*time.Hour, cfg.MatchTTL)
}

// TestValidate tests production requirements
func TestValidate(t *testing.T) {
	t.Run("Development allows missing secrets", func(t *testing.T) {
		clearEnv(t)
		cfg := Load()
		assert.NoError(t, cfg.Validate())
	})

	t.Run("Production requires database password", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("ENVIRONMENT", "production")
		t.Setenv("ENCRYPTION_KEY", "abc123")

		cfg := Load()
		require.Error(t, cfg.Validate())
	})

	t.Run("Production requires encryption key", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("ENVIRONMENT", "production")
		t.Setenv("DB_PASSWORD", "secret")

		cfg := Load()
		require.Error(t, cfg.Validate())
	})

	t.Run("Production with all secrets", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("ENVIRONMENT", "production")
		t.Setenv("DB_PASSWORD", "secret")
		t.Setenv("ENCRYPTION_KEY", "abc123")

		cfg := Load()
		assert.NoError(t, cfg.Validate())
	})

	t.Run("Non-positive TTL is rejected", func(t *testing.T) {
		cfg := Config{MatchTTL: 0}
		require.Error(t, cfg.Validate())
	})
}

// TestIsDevelopment tests environment classification
func TestIsDevelopment(t *testing.T) {
	assert.True(t, Config{Environment: "development"}.IsDevelopment())
	assert.True(t, Config{Environment: "dev"}.IsDevelopment())
	assert.False(t, Config{Environment: "production"}.IsDevelopment())
	assert.False(t, Config{Environment: "staging"}.IsDevelopment())
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"HTTP_ADDR", "ENVIRONMENT", "LOG_LEVEL", "LOG_FORMAT", "LOG_FILE",
		"DB_HOST", "DB_PORT", "DB_USER", "DB_PASSWORD", "DB_NAME", "DB_SSLMODE",
		"REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB", "REDIS_POOL_SIZE",
		"ENCRYPTION_KEY", "MATCH_TTL", "EXPIRY_SWEEP_INTERVAL",
		"TELEGRAM_BOT_TOKEN", "TELEGRAM_CHAT_ID",
	} {
		t.Setenv(key, "")
	}
}
