package resilience

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

func nameAttr(name string) attribute.KeyValue {
	return attribute.String("upstream", name)
}

// Metrics records call outcomes for observability; a nil *Metrics is valid
// and records nothing, so wiring it is optional.
type Metrics struct {
	attempts metric.Int64Counter
	failures metric.Int64Counter
}

// NewMetrics creates counters under meter. Returns nil, err if instrument
// creation fails; callers typically log and continue with a nil *Metrics
// rather than fail the engine over observability.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	attempts, err := meter.Int64Counter("nika_resilience_attempts_total")
	if err != nil {
		return nil, err
	}
	failures, err := meter.Int64Counter("nika_resilience_failures_total")
	if err != nil {
		return nil, err
	}
	return &Metrics{attempts: attempts, failures: failures}, nil
}

func (m *Metrics) recordAttempt(ctx context.Context, name string) {
	if m == nil {
		return
	}
	m.attempts.Add(ctx, 1, metric.WithAttributes(nameAttr(name)))
}

func (m *Metrics) recordFailure(ctx context.Context, name string) {
	if m == nil {
		return
	}
	m.failures.Add(ctx, 1, metric.WithAttributes(nameAttr(name)))
}
