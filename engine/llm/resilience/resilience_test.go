package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDo_SucceedsOnFirstAttempt(t *testing.T) {
	w := New("test", Config{MaxAttempts: 3, RetryDelayStart: time.Millisecond, RetryDelayMax: 10 * time.Millisecond})
	calls := 0
	err := w.Do(context.Background(), func(context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_RetriesRetryableErrorsThenSucceeds(t *testing.T) {
	w := New("test", Config{MaxAttempts: 5, RetryDelayStart: time.Millisecond, RetryDelayMax: 5 * time.Millisecond})
	calls := 0
	err := w.Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return MarkRetryable(errors.New("transient"))
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_DoesNotRetryNonRetryableErrors(t *testing.T) {
	w := New("test", Config{MaxAttempts: 5, RetryDelayStart: time.Millisecond, RetryDelayMax: 5 * time.Millisecond})
	calls := 0
	sentinel := errors.New("permanent")
	err := w.Do(context.Background(), func(context.Context) error {
		calls++
		return sentinel
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_ExhaustsRetriesAndWrapsError(t *testing.T) {
	w := New("test", Config{MaxAttempts: 3, RetryDelayStart: time.Millisecond, RetryDelayMax: 5 * time.Millisecond})
	calls := 0
	err := w.Do(context.Background(), func(context.Context) error {
		calls++
		return MarkRetryable(errors.New("always fails"))
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Contains(t, err.Error(), "retry_exhausted")
}

func TestDo_ZeroRateLimitSkipsLimiter(t *testing.T) {
	w := New("test", Config{RateLimitPerSecond: 0, MaxAttempts: 1})
	err := w.Do(context.Background(), func(context.Context) error { return nil })
	assert.NoError(t, err)
}

func TestDo_RateLimiterBlocksBeyondBurst(t *testing.T) {
	w := New("test", Config{RateLimitPerSecond: 1, RateLimitBurst: 1, MaxAttempts: 1})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_ = w.Do(context.Background(), func(context.Context) error { return nil })
	err := w.Do(ctx, func(context.Context) error { return nil })
	assert.Error(t, err)
}

func TestMarkRetryable_NilReturnsNil(t *testing.T) {
	assert.NoError(t, MarkRetryable(nil))
}

func TestIsRetryable_PlainErrorIsFalse(t *testing.T) {
	assert.False(t, isRetryable(errors.New("plain")))
}

func TestIsRetryable_MarkedErrorIsTrue(t *testing.T) {
	assert.True(t, isRetryable(MarkRetryable(errors.New("x"))))
}
