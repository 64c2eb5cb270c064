// Package model holds the domain value types shared across layers.
package model

import "time"

// CredentialStatus is a read-only snapshot of one credential's quota
// accounting. It is what the diagnostics API reports and what the state
// store persists across restarts; mutating it has no effect on the pool.
type CredentialStatus struct {
	Index             int
	WindowCount       int
	WindowResetAt     time.Time
	LastUsedAt        time.Time
	ConsecutiveErrors int
}

// PoolStatus is the aggregate snapshot exposed for health and diagnostic
// reporting: every credential's current usage plus the cache entry count.
type PoolStatus struct {
	Credentials  []CredentialStatus
	CacheEntries int
}
