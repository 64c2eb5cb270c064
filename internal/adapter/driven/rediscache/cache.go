// Package rediscache implements the ByteCache port on Redis, for deployments
// that want the response cache shared across restarts without a local disk.
package rediscache

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tgrelay/tgrelay/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.ByteCache = (*Cache)(nil)

// Cache is a Redis-backed ByteCache. Entries are written with a server-side
// expiry slightly past the logical TTL; the result cache layer still
// enforces the logical TTL itself, the Redis expiry only bounds memory.
// Operations are best-effort per the port contract: errors are logged and
// reported as misses.
type Cache struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
	logger *slog.Logger
}

// opTimeout bounds each Redis round trip. The ByteCache port is context-free
// so the adapter supplies its own deadline.
const opTimeout = 2 * time.Second

// New creates a Cache. ttl is the logical result TTL; entries expire
// server-side at twice that to leave room for lazy expiry reads.
func New(rdb *redis.Client, ttl time.Duration, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		rdb:    rdb,
		prefix: "tgrelay:cache:",
		ttl:    2 * ttl,
		logger: logger,
	}
}

// Get returns the stored bytes for key, or ok=false on a miss.
func (c *Cache) Get(key string) ([]byte, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	data, err := c.rdb.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		c.logger.Warn("redis cache read failed", "key", key, "error", err)
		return nil, false
	}
	return data, true
}

// Set stores data under key, replacing any previous value.
func (c *Cache) Set(key string, data []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if err := c.rdb.Set(ctx, c.prefix+key, data, c.ttl).Err(); err != nil {
		c.logger.Warn("redis cache write failed", "key", key, "error", err)
	}
}

// Delete removes the entry for key if present.
func (c *Cache) Delete(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if err := c.rdb.Del(ctx, c.prefix+key).Err(); err != nil {
		c.logger.Warn("redis cache delete failed", "key", key, "error", err)
	}
}
