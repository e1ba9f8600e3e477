package resilience

import (
	"sync"
	"time"
)

// consecutiveBreaker trips after exactly threshold consecutive failures,
// independent of the goresilience breaker layered behind it: goresilience's
// circuitbreaker.Config only expresses an error-percentage-over-a-window
// model (ErrorPercentThresholdToOpen/MinimumRequestToOpen), which can't
// represent "the Nth call in a row fails" (spec.md §4.5/§8 property 5: with
// failure_threshold = 3, the first three calls invoke the provider and the
// fourth returns CircuitOpen without invoking it). This counts consecutive
// failures directly and gates calls ahead of the goresilience breaker.
//
// A threshold <= 0 disables the gate (Allow always true, RecordResult a
// no-op).
type consecutiveBreaker struct {
	mu        sync.Mutex
	threshold int
	cooldown  time.Duration
	fails     int
	openedAt  time.Time
}

func newConsecutiveBreaker(threshold int, cooldown time.Duration) *consecutiveBreaker {
	return &consecutiveBreaker{threshold: threshold, cooldown: cooldown}
}

// Allow reports whether a call may proceed. Once threshold consecutive
// failures have accumulated, every call is refused until cooldown has
// elapsed since the trip; the first call after cooldown is let through as a
// half-open probe and RecordResult resolves it.
func (b *consecutiveBreaker) Allow() bool {
	if b.threshold <= 0 {
		return true
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fails < b.threshold {
		return true
	}
	return b.cooldown > 0 && time.Since(b.openedAt) >= b.cooldown
}

// RecordResult updates the consecutive-failure count: a nil err resets it,
// a non-nil err increments it and, on crossing threshold, starts the
// cooldown clock.
func (b *consecutiveBreaker) RecordResult(err error) {
	if b.threshold <= 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if err == nil {
		b.fails = 0
		return
	}
	b.fails++
	if b.fails >= b.threshold {
		b.openedAt = time.Now()
	}
}
