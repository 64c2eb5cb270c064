// Package config loads application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Cache backend selectors accepted by TGRELAY_CACHE_BACKEND.
const (
	CacheBackendMemory = "memory"
	CacheBackendSQLite = "sqlite"
	CacheBackendRedis  = "redis"
)

// Config holds the application configuration loaded from environment variables.
type Config struct {
	BotTokens []string

	WindowLimit   int
	WindowLength  time.Duration
	MinSpacing    time.Duration
	MaxAttempts   int
	RetryDelay    time.Duration
	RateLimitWait time.Duration
	CooldownAfter int

	CacheTTL     time.Duration
	CacheBackend string
	RedisAddr    string

	SnapshotInterval time.Duration
	ListenAddr       string
	DBPath           string
}

// Load reads configuration from environment variables and returns a
// validated Config. TGRELAY_BOT_TOKENS is required (comma-separated);
// everything else has a default. Invalid values fail fast rather than
// falling back silently.
func Load() (*Config, error) {
	cfg := &Config{
		WindowLimit:      20,
		WindowLength:     60 * time.Second,
		MinSpacing:       time.Second,
		MaxAttempts:      3,
		RetryDelay:       2 * time.Second,
		RateLimitWait:    5 * time.Second,
		CooldownAfter:    3,
		CacheTTL:         10 * time.Minute,
		CacheBackend:     CacheBackendMemory,
		RedisAddr:        "127.0.0.1:6379",
		SnapshotInterval: 30 * time.Second,
		ListenAddr:       "127.0.0.1:8080",
		DBPath:           "tgrelay.db",
	}

	for _, token := range strings.Split(os.Getenv("TGRELAY_BOT_TOKENS"), ",") {
		token = strings.TrimSpace(token)
		if token != "" {
			cfg.BotTokens = append(cfg.BotTokens, token)
		}
	}
	if len(cfg.BotTokens) == 0 {
		return nil, fmt.Errorf("TGRELAY_BOT_TOKENS is required (comma-separated bot tokens)")
	}

	intVars := []struct {
		name string
		dst  *int
		min  int
	}{
		{"TGRELAY_WINDOW_LIMIT", &cfg.WindowLimit, 1},
		{"TGRELAY_MAX_ATTEMPTS", &cfg.MaxAttempts, 1},
		{"TGRELAY_COOLDOWN_AFTER", &cfg.CooldownAfter, 0},
	}
	for _, v := range intVars {
		raw, ok := os.LookupEnv(v.name)
		if !ok {
			continue
		}
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("%s has invalid integer %q: %w", v.name, raw, err)
		}
		if parsed < v.min {
			return nil, fmt.Errorf("%s must be at least %d, got %d", v.name, v.min, parsed)
		}
		*v.dst = parsed
	}

	durationVars := []struct {
		name string
		dst  *time.Duration
	}{
		{"TGRELAY_WINDOW_LENGTH", &cfg.WindowLength},
		{"TGRELAY_MIN_SPACING", &cfg.MinSpacing},
		{"TGRELAY_RETRY_DELAY", &cfg.RetryDelay},
		{"TGRELAY_RATE_LIMIT_WAIT", &cfg.RateLimitWait},
		{"TGRELAY_CACHE_TTL", &cfg.CacheTTL},
		{"TGRELAY_SNAPSHOT_INTERVAL", &cfg.SnapshotInterval},
	}
	for _, v := range durationVars {
		raw, ok := os.LookupEnv(v.name)
		if !ok {
			continue
		}
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("%s has invalid duration %q: %w", v.name, raw, err)
		}
		if parsed < 0 {
			return nil, fmt.Errorf("%s must not be negative, got %s", v.name, parsed)
		}
		*v.dst = parsed
	}

	if v, ok := os.LookupEnv("TGRELAY_CACHE_BACKEND"); ok {
		backend := strings.ToLower(strings.TrimSpace(v))
		switch backend {
		case CacheBackendMemory, CacheBackendSQLite, CacheBackendRedis:
			cfg.CacheBackend = backend
		default:
			return nil, fmt.Errorf("TGRELAY_CACHE_BACKEND must be one of memory, sqlite, redis; got %q", v)
		}
	}

	if v, ok := os.LookupEnv("TGRELAY_REDIS_ADDR"); ok {
		cfg.RedisAddr = v
	}
	if v, ok := os.LookupEnv("TGRELAY_LISTEN_ADDR"); ok {
		cfg.ListenAddr = v
	}
	if v, ok := os.LookupEnv("TGRELAY_DB_PATH"); ok {
		cfg.DBPath = v
	}

	return cfg, nil
}
