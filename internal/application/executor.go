package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/tgrelay/tgrelay/internal/domain/port/driven"
)

// ErrAttemptsExhausted is returned when an operation keeps failing after the
// configured number of attempts. It always wraps the last upstream error.
var ErrAttemptsExhausted = errors.New("request attempts exhausted")

// ExecutorOptions configures the retry policy for upstream operations.
type ExecutorOptions struct {
	// MaxAttempts is the total attempt budget per operation, shared between
	// rate-limit retries and generic transient-failure retries.
	MaxAttempts int
	// RetryDelay is the fixed wait after a generic transient failure.
	RetryDelay time.Duration
	// RateLimitWait is the wait after a rate-limit signal that carried no
	// suggested duration.
	RateLimitWait time.Duration
}

// Executor runs one logical operation against the upstream with bounded
// retries. Rate-limit signals are honored with the upstream-suggested wait;
// other transient failures back off by the fixed delay. Permanent upstream
// errors fail immediately.
type Executor struct {
	opts   ExecutorOptions
	logger *slog.Logger
}

// NewExecutor creates an Executor. A MaxAttempts below 1 is clamped to 1.
func NewExecutor(opts ExecutorOptions, logger *slog.Logger) *Executor {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{opts: opts, logger: logger}
}

// Execute performs op with the given credential until it succeeds, the
// attempt budget runs out (ErrAttemptsExhausted wrapping the last error), a
// permanent upstream error occurs, or ctx is cancelled during a backoff
// sleep (the context error is returned as-is). Success resets the
// credential's consecutive-error count; generic transient failures increment
// it; rate-limit signals leave it untouched.
func (e *Executor) Execute(ctx context.Context, cred *Credential, op driven.Operation) ([]byte, error) {
	var result []byte
	delay := &retryDelay{fixed: e.opts.RetryDelay}

	attempt := func() error {
		payload, err := op(ctx, cred.Token())
		if err == nil {
			cred.noteSuccess()
			result = payload
			return nil
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return backoff.Permanent(err)
		}

		var rl *driven.RateLimitError
		switch {
		case errors.As(err, &rl):
			wait := rl.RetryAfter
			if wait <= 0 {
				wait = e.opts.RateLimitWait
			}
			delay.hint = wait
			e.logger.Warn("upstream rate limit",
				"credential", cred.Index(),
				"retry_after", wait,
			)
		case driven.IsPermanent(err):
			cred.noteFailure()
			return backoff.Permanent(err)
		default:
			cred.noteFailure()
			e.logger.Warn("transient upstream failure",
				"credential", cred.Index(),
				"error", err,
			)
		}
		return err
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(delay, uint64(e.opts.MaxAttempts-1)),
		ctx,
	)
	if err := backoff.Retry(attempt, policy); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		if driven.IsPermanent(err) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrAttemptsExhausted, err)
	}
	return result, nil
}

// retryDelay implements backoff.BackOff: a fixed delay, overridden once by
// the most recent upstream retry-after hint.
type retryDelay struct {
	fixed time.Duration
	hint  time.Duration
}

func (d *retryDelay) NextBackOff() time.Duration {
	if d.hint > 0 {
		next := d.hint
		d.hint = 0
		return next
	}
	return d.fixed
}

func (d *retryDelay) Reset() {
	d.hint = 0
}
