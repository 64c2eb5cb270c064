package application_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tgrelay/tgrelay/internal/application"
	"github.com/tgrelay/tgrelay/internal/domain/port/driven"
)

// acquireCredential hands out a credential from a fresh unconstrained pool.
func acquireCredential(t *testing.T) (*application.Pool, *application.Credential) {
	t.Helper()

	pool := newTestPool(t, 1, application.PoolOptions{
		WindowLimit:  1000,
		WindowLength: time.Hour,
	})
	cred, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	return pool, cred
}

func TestExecutor_SuccessFirstAttempt(t *testing.T) {
	_, cred := acquireCredential(t)
	exec := application.NewExecutor(application.ExecutorOptions{MaxAttempts: 3, RetryDelay: time.Second}, nil)

	attempts := 0
	op := func(_ context.Context, token string) ([]byte, error) {
		attempts++
		assert.Equal(t, cred.Token(), token)
		return []byte(`{"id":1}`), nil
	}

	payload, err := exec.Execute(context.Background(), cred, op)
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"id":1}`), payload)
	assert.Equal(t, 1, attempts)
}

func TestExecutor_RetryBoundIsExact(t *testing.T) {
	pool, cred := acquireCredential(t)
	exec := application.NewExecutor(application.ExecutorOptions{
		MaxAttempts: 3,
		RetryDelay:  5 * time.Millisecond,
	}, nil)

	attempts := 0
	op := func(_ context.Context, _ string) ([]byte, error) {
		attempts++
		return nil, errors.New("connection reset")
	}

	_, err := exec.Execute(context.Background(), cred, op)
	require.ErrorIs(t, err, application.ErrAttemptsExhausted)
	assert.Equal(t, 3, attempts, "an always-failing operation runs exactly MaxAttempts times")

	snaps := pool.Snapshot()
	assert.Equal(t, 3, snaps[0].ConsecutiveErrors)
}

func TestExecutor_SuccessResetsErrorCount(t *testing.T) {
	pool, cred := acquireCredential(t)
	exec := application.NewExecutor(application.ExecutorOptions{
		MaxAttempts: 3,
		RetryDelay:  5 * time.Millisecond,
	}, nil)

	attempts := 0
	op := func(_ context.Context, _ string) ([]byte, error) {
		attempts++
		if attempts == 1 {
			return nil, errors.New("connection reset")
		}
		return []byte(`{}`), nil
	}

	_, err := exec.Execute(context.Background(), cred, op)
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
	assert.Equal(t, 0, pool.Snapshot()[0].ConsecutiveErrors)
}

func TestExecutor_HonorsRetryAfterHint(t *testing.T) {
	pool, cred := acquireCredential(t)
	exec := application.NewExecutor(application.ExecutorOptions{
		MaxAttempts: 3,
		RetryDelay:  time.Millisecond,
	}, nil)

	attempts := 0
	op := func(_ context.Context, _ string) ([]byte, error) {
		attempts++
		if attempts == 1 {
			return nil, &driven.RateLimitError{RetryAfter: 80 * time.Millisecond}
		}
		return []byte(`{}`), nil
	}

	start := time.Now()
	_, err := exec.Execute(context.Background(), cred, op)
	require.NoError(t, err)

	assert.Equal(t, 2, attempts)
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond,
		"executor must sleep at least the suggested wait")
	assert.Equal(t, 0, pool.Snapshot()[0].ConsecutiveErrors,
		"rate-limit signals do not count as credential errors")
}

func TestExecutor_RateLimitWithoutHintUsesDefaultWait(t *testing.T) {
	_, cred := acquireCredential(t)
	exec := application.NewExecutor(application.ExecutorOptions{
		MaxAttempts:   2,
		RetryDelay:    time.Millisecond,
		RateLimitWait: 60 * time.Millisecond,
	}, nil)

	attempts := 0
	op := func(_ context.Context, _ string) ([]byte, error) {
		attempts++
		if attempts == 1 {
			return nil, &driven.RateLimitError{}
		}
		return []byte(`{}`), nil
	}

	start := time.Now()
	_, err := exec.Execute(context.Background(), cred, op)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 60*time.Millisecond)
}

func TestExecutor_PermanentErrorFailsFast(t *testing.T) {
	_, cred := acquireCredential(t)
	exec := application.NewExecutor(application.ExecutorOptions{
		MaxAttempts: 5,
		RetryDelay:  time.Second,
	}, nil)

	attempts := 0
	op := func(_ context.Context, _ string) ([]byte, error) {
		attempts++
		return nil, &driven.PermanentError{Err: errors.New("chat not found")}
	}

	_, err := exec.Execute(context.Background(), cred, op)
	require.Error(t, err)
	assert.True(t, driven.IsPermanent(err))
	assert.NotErrorIs(t, err, application.ErrAttemptsExhausted)
	assert.Equal(t, 1, attempts, "permanent errors must not burn the attempt budget")
}

func TestExecutor_CancelDuringBackoff(t *testing.T) {
	_, cred := acquireCredential(t)
	exec := application.NewExecutor(application.ExecutorOptions{
		MaxAttempts: 5,
		RetryDelay:  time.Second,
	}, nil)

	op := func(_ context.Context, _ string) ([]byte, error) {
		return nil, errors.New("connection reset")
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := exec.Execute(ctx, cred, op)
	require.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 500*time.Millisecond,
		"cancellation must abort the backoff sleep")
}
