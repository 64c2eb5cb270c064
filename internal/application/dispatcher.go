package application

import (
	"context"
	"log/slog"

	"github.com/tgrelay/tgrelay/internal/domain/model"
	"github.com/tgrelay/tgrelay/internal/domain/port/driven"
)

// Dispatcher is the single entry point callers use to run an operation
// against the upstream. It hides credential selection, retries, and result
// caching behind one call.
type Dispatcher struct {
	pool   *Pool
	exec   *Executor
	cache  *ResultCache
	logger *slog.Logger
}

// NewDispatcher wires the pool, executor, and cache into a Dispatcher.
func NewDispatcher(pool *Pool, exec *Executor, cache *ResultCache, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{pool: pool, exec: exec, cache: cache, logger: logger}
}

// Do runs op identified by key. A fresh cached result for key returns
// immediately without touching the pool. Otherwise Do blocks for an
// available credential, executes op with retries, stores the result under
// key, and returns it. An empty key bypasses the cache entirely, for
// operations that are not idempotent reads.
//
// Failures propagate: callers get the executor's terminal error rather than
// stale or empty data, and decide fallback behavior themselves. An
// already-cancelled ctx returns its error before any upstream work.
func (d *Dispatcher) Do(ctx context.Context, key string, op driven.Operation) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if key != "" {
		if payload, ok := d.cache.Get(key); ok {
			d.logger.Debug("cache hit", "key", key)
			return payload, nil
		}
	}

	cred, err := d.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	payload, err := d.exec.Execute(ctx, cred, op)
	if err != nil {
		return nil, err
	}

	if key != "" {
		d.cache.Put(key, payload)
	}
	return payload, nil
}

// Status returns a read-only snapshot of per-credential usage and the cache
// entry count, for health and diagnostic reporting.
func (d *Dispatcher) Status() model.PoolStatus {
	return model.PoolStatus{
		Credentials:  d.pool.Snapshot(),
		CacheEntries: d.cache.Len(),
	}
}
