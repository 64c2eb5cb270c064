// Package driven defines secondary port interfaces for external adapters.
package driven

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Operation performs one unit of upstream work using the given credential
// token and returns the raw result payload. Operations must be idempotent:
// the executor may run the same operation several times before it succeeds.
type Operation func(ctx context.Context, token string) ([]byte, error)

// RateLimitError is the upstream's explicit "too many requests" signal.
// RetryAfter carries the upstream-suggested wait, or zero when the response
// gave no hint.
type RateLimitError struct {
	RetryAfter  time.Duration
	Description string
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("upstream rate limited, retry after %s", e.RetryAfter)
	}
	return "upstream rate limited"
}

// PermanentError marks an upstream failure that retrying cannot fix, such as
// a malformed request, an unknown method, or a revoked token. The executor
// fails immediately instead of burning its attempt budget.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }

func (e *PermanentError) Unwrap() error { return e.Err }

// IsPermanent reports whether err is or wraps a PermanentError.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}
