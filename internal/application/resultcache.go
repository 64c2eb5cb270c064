package application

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/tgrelay/tgrelay/internal/domain/port/driven"
)

// entryEnvelope is the stored form of one cache entry. The payload is kept
// opaque; only the stored-at timestamp is interpreted, for TTL checks.
type entryEnvelope struct {
	StoredAt time.Time `json:"stored_at"`
	Payload  []byte    `json:"payload"`
}

// ResultCache memoizes completed operation results by idempotency key on top
// of a pluggable byte store. An entry is valid while now - storedAt < TTL;
// expired entries are logically absent and lazily deleted on read.
//
// Concurrent callers that miss the same key may both fetch upstream. That is
// deliberate: operations are idempotent and the quota accounting already
// bounds the extra cost, so no single-flight de-duplication is done here.
type ResultCache struct {
	backend driven.ByteCache
	ttl     time.Duration

	// index tracks stored-at times for the keys this process has seen, for
	// entry counting and expiry sweeps. Durable backends may hold entries
	// the index does not know about after a restart; those are picked up
	// on first read.
	mu    sync.Mutex
	index map[string]time.Time
}

// NewResultCache creates a ResultCache with the given backend and TTL.
func NewResultCache(backend driven.ByteCache, ttl time.Duration) *ResultCache {
	return &ResultCache{
		backend: backend,
		ttl:     ttl,
		index:   make(map[string]time.Time),
	}
}

// Get returns the unexpired payload stored under key, or ok=false on a miss.
// Expired or undecodable entries are deleted from the backend.
func (c *ResultCache) Get(key string) ([]byte, bool) {
	data, ok := c.backend.Get(key)
	if !ok {
		c.forget(key)
		return nil, false
	}

	var env entryEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.backend.Delete(key)
		c.forget(key)
		return nil, false
	}

	if time.Since(env.StoredAt) >= c.ttl {
		c.backend.Delete(key)
		c.forget(key)
		return nil, false
	}

	c.mu.Lock()
	c.index[key] = env.StoredAt
	c.mu.Unlock()

	return env.Payload, true
}

// Put stores payload under key, overwriting any previous entry. Concurrent
// writes to the same key are last-write-wins.
func (c *ResultCache) Put(key string, payload []byte) {
	env := entryEnvelope{StoredAt: time.Now(), Payload: payload}
	data, err := json.Marshal(env)
	if err != nil {
		return
	}

	c.backend.Set(key, data)

	c.mu.Lock()
	c.index[key] = env.StoredAt
	c.mu.Unlock()
}

// Len returns the number of entries this process knows about, expired or
// not. Introspection only.
func (c *ResultCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.index)
}

// EvictExpired removes every known-expired entry from the backend and
// returns how many were evicted. Expiry is already enforced lazily on read;
// this hook only bounds memory when run periodically.
func (c *ResultCache) EvictExpired() int {
	now := time.Now()

	c.mu.Lock()
	var expired []string
	for key, storedAt := range c.index {
		if now.Sub(storedAt) >= c.ttl {
			expired = append(expired, key)
			delete(c.index, key)
		}
	}
	c.mu.Unlock()

	for _, key := range expired {
		c.backend.Delete(key)
	}
	return len(expired)
}

func (c *ResultCache) forget(key string) {
	c.mu.Lock()
	delete(c.index, key)
	c.mu.Unlock()
}
