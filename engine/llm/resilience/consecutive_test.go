package resilience

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConsecutiveBreaker_AllowsExactlyThresholdFailuresThenRefuses(t *testing.T) {
	b := newConsecutiveBreaker(3, time.Hour)
	for i := 0; i < 3; i++ {
		assert.True(t, b.Allow(), "call %d should be allowed", i+1)
		b.RecordResult(assert.AnError)
	}
	assert.False(t, b.Allow(), "4th call should be refused without invoking")
}

func TestConsecutiveBreaker_SuccessResetsCount(t *testing.T) {
	b := newConsecutiveBreaker(2, time.Hour)
	b.RecordResult(assert.AnError)
	b.RecordResult(nil)
	b.RecordResult(assert.AnError)
	assert.True(t, b.Allow(), "count reset by the intervening success")
}

func TestConsecutiveBreaker_ProbesAfterCooldown(t *testing.T) {
	b := newConsecutiveBreaker(1, time.Millisecond)
	b.RecordResult(assert.AnError)
	assert.False(t, b.Allow())
	time.Sleep(5 * time.Millisecond)
	assert.True(t, b.Allow(), "half-open probe should be allowed after cooldown")
}

func TestConsecutiveBreaker_ZeroThresholdNeverRefuses(t *testing.T) {
	b := newConsecutiveBreaker(0, time.Hour)
	for i := 0; i < 10; i++ {
		b.RecordResult(assert.AnError)
	}
	assert.True(t, b.Allow())
}

func TestWrapper_TripsAfterExactlyNConsecutiveFailures(t *testing.T) {
	w := New("test", Config{
		MaxAttempts:             1,
		RetryDelayStart:         time.Millisecond,
		RetryDelayMax:           time.Hour,
		BreakerSuccessiveErrors: 3,
	})
	calls := 0
	failing := func(context.Context) error {
		calls++
		return assert.AnError
	}

	for i := 0; i < 3; i++ {
		err := w.Do(context.Background(), failing)
		assert.Error(t, err)
	}
	assert.Equal(t, 3, calls, "first three calls should reach fn")

	err := w.Do(context.Background(), failing)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "circuit_open")
	assert.Equal(t, 3, calls, "fourth call must short-circuit without invoking fn")
}
