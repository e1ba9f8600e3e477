// Package resilience implements the engine's resilience wrapper (nika spec
// §4.6, component C6): every provider call passes through a rate limiter,
// then a retry loop, then a circuit breaker, in that nesting order — retry
// re-attempts a call the breaker itself may refuse, so a tripped breaker is
// what finally turns repeated upstream failures into a single fast error.
package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/slok/goresilience/circuitbreaker"
	"golang.org/x/time/rate"

	"github.com/supernovae-st/nika-sub001/engine/errs"
)

// Config tunes the three layers. Zero values disable that layer entirely:
// RateLimitPerSecond <= 0 skips the limiter, MaxAttempts <= 1 skips retry,
// and BreakerErrorPercentThreshold <= 0 skips the breaker.
type Config struct {
	RateLimitPerSecond float64
	RateLimitBurst     int

	MaxAttempts      uint64
	RetryDelayStart  time.Duration
	RetryDelayMax    time.Duration

	BreakerErrorPercentThreshold int
	BreakerMinimumRequests       int
	BreakerSuccessiveErrors      int
}

// DefaultConfig matches spec.md §4.6's suggested defaults.
func DefaultConfig() Config {
	return Config{
		RateLimitPerSecond:           10,
		RateLimitBurst:               10,
		MaxAttempts:                  3,
		RetryDelayStart:              200 * time.Millisecond,
		RetryDelayMax:                5 * time.Second,
		BreakerErrorPercentThreshold: 50,
		BreakerMinimumRequests:       20,
		BreakerSuccessiveErrors:      5,
	}
}

// Wrapper guards calls to a single named upstream (one per provider, or one
// per MCP server). It is safe for concurrent use.
type Wrapper struct {
	name        string
	cfg         Config
	limiter     *rate.Limiter
	breaker     *circuitbreaker.Runner
	consecutive *consecutiveBreaker
	metrics     *Metrics
}

// New creates a Wrapper for name ("provider:openai", "mcp:fs", ...), used in
// error messages and metrics labels.
func New(name string, cfg Config) *Wrapper {
	w := &Wrapper{name: name, cfg: cfg}
	if cfg.RateLimitPerSecond > 0 {
		burst := cfg.RateLimitBurst
		if burst <= 0 {
			burst = 1
		}
		w.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitPerSecond), burst)
	}
	if cfg.BreakerErrorPercentThreshold > 0 {
		w.breaker = circuitbreaker.NewRunner(circuitbreaker.Config{
			ErrorPercentThresholdToOpen:        cfg.BreakerErrorPercentThreshold,
			MinimumRequestToOpen:               cfg.BreakerMinimumRequests,
			SuccessfulRequiredOnHalfOpen:       1,
			WaitDurationInOpenState:            cfg.RetryDelayMax,
			MetricsSlidingWindowBucketQuantity: 10,
			MetricsBucketDuration:              time.Second,
		})
	}
	if cfg.BreakerSuccessiveErrors > 0 {
		w.consecutive = newConsecutiveBreaker(cfg.BreakerSuccessiveErrors, cfg.RetryDelayMax)
	}
	return w
}

// WithMetrics attaches m, returning the receiver for chaining at
// construction time.
func (w *Wrapper) WithMetrics(m *Metrics) *Wrapper {
	w.metrics = m
	return w
}

// Do runs fn under the rate limiter, retry loop, and circuit breaker, in
// that order. fn should return a RetryableError-wrapped error (via
// errors.Is-compatible markers set by the caller, see Retryable) for
// failures worth re-attempting; anything else aborts the retry loop
// immediately.
func (w *Wrapper) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if w.limiter != nil {
		if err := w.limiter.Wait(ctx); err != nil {
			return errs.RateLimited(w.name)
		}
	}

	var attempts int
	backoff := w.backoff()
	retryErr := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempts++
		w.metrics.recordAttempt(ctx, w.name)
		err := w.runBreaker(ctx, fn)
		if err == nil {
			return nil
		}
		w.metrics.recordFailure(ctx, w.name)
		if errors.Is(err, errCircuitOpen) {
			return err // never retry past an open breaker
		}
		if isRetryable(err) {
			return retry.RetryableError(err)
		}
		return err
	})

	if retryErr != nil {
		if errors.Is(retryErr, errCircuitOpen) {
			return errs.CircuitOpen(w.name)
		}
		if attempts > 1 {
			return errs.RetryExhausted(w.name, attempts, retryErr)
		}
		return retryErr
	}
	return nil
}

func (w *Wrapper) backoff() retry.Backoff {
	if w.cfg.MaxAttempts <= 1 {
		return retry.WithMaxRetries(0, retry.NewConstant(0))
	}
	b := retry.NewExponential(w.cfg.RetryDelayStart)
	b = retry.WithCappedDuration(w.cfg.RetryDelayMax, b)
	b = retry.WithJitter(100*time.Millisecond, b)
	return retry.WithMaxRetries(w.cfg.MaxAttempts-1, b)
}

var errCircuitOpen = errors.New("circuit open")

func (w *Wrapper) runBreaker(ctx context.Context, fn func(ctx context.Context) error) error {
	if w.consecutive != nil && !w.consecutive.Allow() {
		return errCircuitOpen
	}

	var err error
	if w.breaker == nil {
		err = fn(ctx)
	} else {
		err = w.breaker.Run(ctx, func(ctx context.Context) error {
			return fn(ctx)
		})
	}

	if errors.Is(err, circuitbreaker.ErrCircuitOpen) {
		// The goresilience breaker refused the call itself, so fn never ran;
		// that isn't a fresh consecutive failure of fn to count.
		return errCircuitOpen
	}
	if w.consecutive != nil {
		w.consecutive.RecordResult(err)
	}
	return err
}

// retryable is implemented by errors the wrapper should re-attempt; a plain
// error (including validation/internal *errs.Error of other kinds) is
// treated as non-retryable.
type retryable interface{ Retryable() bool }

// isRetryable reports whether err asks to be retried. Transport-level
// failures from the provider/mcp client layers implement retryable;
// anything else (including a nil error, already handled by the caller) is
// treated conservatively as non-retryable.
func isRetryable(err error) bool {
	var r retryable
	if errors.As(err, &r) {
		return r.Retryable()
	}
	return false
}
