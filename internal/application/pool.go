// Package application contains the coordination core: the credential pool
// and scheduler, the retry executor, the result cache, and the dispatcher
// facade that external callers use.
package application

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/tgrelay/tgrelay/internal/domain/model"
)

// ErrNoCredentials is returned by NewPool when zero bot tokens are
// configured. The pool refuses to start rather than silently blocking every
// caller against an empty credential set.
var ErrNoCredentials = errors.New("no credentials configured")

// minScanInterval is the floor for the saturation re-scan interval, so a
// zero-spacing pool parks on a timer instead of spinning.
const minScanInterval = 10 * time.Millisecond

// PoolOptions configures quota enforcement for every credential in the pool.
type PoolOptions struct {
	// WindowLimit is the number of requests one credential may serve per window.
	WindowLimit int
	// WindowLength is the fixed quota window length.
	WindowLength time.Duration
	// MinSpacing is the minimum gap between two uses of the same credential.
	MinSpacing time.Duration
	// CooldownAfter is the consecutive-error count past which a credential is
	// deprioritized. Deprioritization is advisory: a saturated pool still
	// cycles back to a cooling credential rather than deadlocking.
	CooldownAfter int
}

// Credential is one bot token together with its mutable quota accounting.
// The pool owns all credentials; the executor only reads the token and
// updates the consecutive-error count through noteSuccess/noteFailure.
type Credential struct {
	index int
	token string

	// spacing is a one-token bucket refilled every MinSpacing, giving the
	// minimum inter-request gap without tracking timestamps by hand.
	spacing *rate.Limiter

	mu                sync.Mutex
	windowCount       int
	windowResetAt     time.Time
	lastUsedAt        time.Time
	consecutiveErrors int
}

// Token returns the credential's opaque access token.
func (c *Credential) Token() string { return c.token }

// Index returns the credential's ordinal position in the pool.
func (c *Credential) Index() int { return c.index }

func (c *Credential) noteSuccess() {
	c.mu.Lock()
	c.consecutiveErrors = 0
	c.mu.Unlock()
}

func (c *Credential) noteFailure() {
	c.mu.Lock()
	c.consecutiveErrors++
	c.mu.Unlock()
}

func (c *Credential) status() model.CredentialStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return model.CredentialStatus{
		Index:             c.index,
		WindowCount:       c.windowCount,
		WindowResetAt:     c.windowResetAt,
		LastUsedAt:        c.lastUsedAt,
		ConsecutiveErrors: c.consecutiveErrors,
	}
}

// Pool owns the fixed set of credentials and schedules which one serves the
// next outbound call. Credentials are configured at startup and never added
// or removed at runtime.
type Pool struct {
	opts PoolOptions

	mu    sync.Mutex
	creds []*Credential
	next  int // round-robin scan start
}

// NewPool builds a pool from the configured bot tokens. It returns
// ErrNoCredentials when tokens is empty.
func NewPool(tokens []string, opts PoolOptions) (*Pool, error) {
	if len(tokens) == 0 {
		return nil, ErrNoCredentials
	}
	if opts.WindowLimit < 1 {
		opts.WindowLimit = 1
	}

	now := time.Now()
	creds := make([]*Credential, len(tokens))
	for i, token := range tokens {
		creds[i] = &Credential{
			index:         i,
			token:         token,
			spacing:       rate.NewLimiter(rate.Every(opts.MinSpacing), 1),
			windowResetAt: now.Add(opts.WindowLength),
		}
	}

	return &Pool{opts: opts, creds: creds}, nil
}

// Size returns the number of configured credentials.
func (p *Pool) Size() int { return len(p.creds) }

// Acquire blocks until some credential has both window quota and spacing
// headroom, then consumes one request from it and returns it. When the whole
// pool is saturated the caller parks on a timer and re-scans; this is the
// intended backpressure point. Cancelling ctx aborts the wait.
func (p *Pool) Acquire(ctx context.Context) (*Credential, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	wait := p.opts.MinSpacing
	if wait < minScanInterval {
		wait = minScanInterval
	}

	for {
		if c := p.tryAcquire(time.Now()); c != nil {
			return c, nil
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

// candidate carries an eligible credential and the snapshot values its
// priority is judged by.
type candidate struct {
	cred     *Credential
	cooling  bool
	count    int
	lastUsed time.Time
}

// preferredOver reports whether c should be selected instead of other.
// Healthy credentials beat cooling ones, then lowest current usage, then
// least recently used. Full ties keep the earlier round-robin position.
func (c candidate) preferredOver(other candidate) bool {
	if c.cooling != other.cooling {
		return !c.cooling
	}
	if c.count != other.count {
		return c.count < other.count
	}
	return c.lastUsed.Before(other.lastUsed)
}

// tryAcquire scans all credentials in round-robin order starting after the
// last selection, resetting any expired quota windows along the way, and
// consumes one request from the best eligible credential. It returns nil
// when the whole pool is saturated.
func (p *Pool) tryAcquire(now time.Time) *Credential {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := len(p.creds)
	var best candidate
	found := false

	for i := range n {
		c := p.creds[(p.next+i)%n]

		c.mu.Lock()
		if !now.Before(c.windowResetAt) {
			c.windowCount = 0
			c.windowResetAt = now.Add(p.opts.WindowLength)
		}
		eligible := c.windowCount < p.opts.WindowLimit && c.spacing.TokensAt(now) >= 1
		cand := candidate{
			cred:     c,
			cooling:  p.opts.CooldownAfter > 0 && c.consecutiveErrors >= p.opts.CooldownAfter,
			count:    c.windowCount,
			lastUsed: c.lastUsedAt,
		}
		c.mu.Unlock()

		if eligible && (!found || cand.preferredOver(best)) {
			best = cand
			found = true
		}
	}

	if !found {
		return nil
	}

	c := best.cred
	c.mu.Lock()
	c.windowCount++
	c.lastUsedAt = now
	c.spacing.AllowN(now, 1)
	c.mu.Unlock()

	p.next = (c.index + 1) % n
	return c
}

// Snapshot returns a point-in-time copy of every credential's usage,
// ordered by index. Read-only; taking a snapshot consumes nothing.
func (p *Pool) Snapshot() []model.CredentialStatus {
	p.mu.Lock()
	defer p.mu.Unlock()

	snaps := make([]model.CredentialStatus, len(p.creds))
	for i, c := range p.creds {
		snaps[i] = c.status()
	}
	return snaps
}

// RestoreUsage seeds quota counters from a persisted snapshot, so a restart
// mid-window does not grant a fresh request budget. Snapshots whose window
// has already passed, or whose index does not match a configured credential,
// are ignored.
func (p *Pool) RestoreUsage(snaps []model.CredentialStatus) {
	now := time.Now()

	p.mu.Lock()
	defer p.mu.Unlock()

	for _, s := range snaps {
		if s.Index < 0 || s.Index >= len(p.creds) {
			continue
		}
		if !now.Before(s.WindowResetAt) {
			continue
		}
		c := p.creds[s.Index]
		c.mu.Lock()
		c.windowCount = s.WindowCount
		c.windowResetAt = s.WindowResetAt
		c.lastUsedAt = s.LastUsedAt
		c.consecutiveErrors = s.ConsecutiveErrors
		c.mu.Unlock()
	}
}
