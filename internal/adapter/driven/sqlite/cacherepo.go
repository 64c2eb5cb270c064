package sqlite

import (
	"database/sql"
	"errors"
	"log/slog"

	"github.com/tgrelay/tgrelay/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.ByteCache = (*CacheRepo)(nil)

// CacheRepo is the SQLite implementation of the ByteCache port, keeping
// memoized response payloads across restarts. Operations are best-effort
// per the port contract: storage errors are logged and reported as misses,
// never propagated.
type CacheRepo struct {
	db     *DB
	logger *slog.Logger
}

// NewCacheRepo creates a new CacheRepo.
func NewCacheRepo(db *DB, logger *slog.Logger) *CacheRepo {
	if logger == nil {
		logger = slog.Default()
	}
	return &CacheRepo{db: db, logger: logger}
}

// Get returns the stored bytes for key, or ok=false on a miss.
func (r *CacheRepo) Get(key string) ([]byte, bool) {
	var data []byte
	err := r.db.Reader.QueryRow(`SELECT data FROM cache_entries WHERE key = ?`, key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false
	}
	if err != nil {
		r.logger.Warn("cache read failed", "key", key, "error", err)
		return nil, false
	}
	return data, true
}

// Set stores data under key, replacing any previous value.
func (r *CacheRepo) Set(key string, data []byte) {
	const query = `
		INSERT OR REPLACE INTO cache_entries (key, data, updated_at)
		VALUES (?, ?, strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
	`
	if _, err := r.db.Writer.Exec(query, key, data); err != nil {
		r.logger.Warn("cache write failed", "key", key, "error", err)
	}
}

// Delete removes the entry for key if present.
func (r *CacheRepo) Delete(key string) {
	if _, err := r.db.Writer.Exec(`DELETE FROM cache_entries WHERE key = ?`, key); err != nil {
		r.logger.Warn("cache delete failed", "key", key, "error", err)
	}
}
