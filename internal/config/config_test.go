package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("TGRELAY_BOT_TOKENS", "111:AAA")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"111:AAA"}, cfg.BotTokens)
	assert.Equal(t, 20, cfg.WindowLimit)
	assert.Equal(t, 60*time.Second, cfg.WindowLength)
	assert.Equal(t, time.Second, cfg.MinSpacing)
	assert.Equal(t, 3, cfg.MaxAttempts)
	assert.Equal(t, 2*time.Second, cfg.RetryDelay)
	assert.Equal(t, 5*time.Second, cfg.RateLimitWait)
	assert.Equal(t, 3, cfg.CooldownAfter)
	assert.Equal(t, 10*time.Minute, cfg.CacheTTL)
	assert.Equal(t, CacheBackendMemory, cfg.CacheBackend)
	assert.Equal(t, "127.0.0.1:6379", cfg.RedisAddr)
	assert.Equal(t, 30*time.Second, cfg.SnapshotInterval)
	assert.Equal(t, "127.0.0.1:8080", cfg.ListenAddr)
	assert.Equal(t, "tgrelay.db", cfg.DBPath)
}

func TestLoad_TokenListTrimsWhitespaceAndEmptyEntries(t *testing.T) {
	t.Setenv("TGRELAY_BOT_TOKENS", " 111:AAA , 222:BBB ,, ")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"111:AAA", "222:BBB"}, cfg.BotTokens)
}

func TestLoad_MissingTokensFails(t *testing.T) {
	t.Setenv("TGRELAY_BOT_TOKENS", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TGRELAY_BOT_TOKENS")
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("TGRELAY_BOT_TOKENS", "111:AAA")
	t.Setenv("TGRELAY_WINDOW_LIMIT", "5")
	t.Setenv("TGRELAY_WINDOW_LENGTH", "30s")
	t.Setenv("TGRELAY_MIN_SPACING", "0s")
	t.Setenv("TGRELAY_MAX_ATTEMPTS", "1")
	t.Setenv("TGRELAY_CACHE_TTL", "1h")
	t.Setenv("TGRELAY_CACHE_BACKEND", "SQLite")
	t.Setenv("TGRELAY_LISTEN_ADDR", "0.0.0.0:9090")
	t.Setenv("TGRELAY_DB_PATH", "/var/lib/tgrelay/state.db")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.WindowLimit)
	assert.Equal(t, 30*time.Second, cfg.WindowLength)
	assert.Zero(t, cfg.MinSpacing)
	assert.Equal(t, 1, cfg.MaxAttempts)
	assert.Equal(t, time.Hour, cfg.CacheTTL)
	assert.Equal(t, CacheBackendSQLite, cfg.CacheBackend, "backend selector is case-insensitive")
	assert.Equal(t, "0.0.0.0:9090", cfg.ListenAddr)
	assert.Equal(t, "/var/lib/tgrelay/state.db", cfg.DBPath)
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"non-numeric window limit", "TGRELAY_WINDOW_LIMIT", "many"},
		{"zero window limit", "TGRELAY_WINDOW_LIMIT", "0"},
		{"zero max attempts", "TGRELAY_MAX_ATTEMPTS", "0"},
		{"negative cooldown", "TGRELAY_COOLDOWN_AFTER", "-1"},
		{"malformed duration", "TGRELAY_WINDOW_LENGTH", "60"},
		{"negative duration", "TGRELAY_CACHE_TTL", "-5m"},
		{"unknown backend", "TGRELAY_CACHE_BACKEND", "memcached"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TGRELAY_BOT_TOKENS", "111:AAA")
			t.Setenv(tt.key, tt.value)

			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.key)
		})
	}
}
