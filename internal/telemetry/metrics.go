package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the counters the token and session code paths record.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	tokensIssued    metric.Int64Counter
	verifyFailures  metric.Int64Counter
	sessionsCreated metric.Int64Counter
	sessionsEvicted metric.Int64Counter
	sessionsSwept   metric.Int64Counter
}

// NewMetrics registers the instrument set on the given provider's meter.
func NewMetrics(provider metric.MeterProvider) (*Metrics, error) {
	meter := provider.Meter("comicguess.authcore")
	m := &Metrics{}
	var err error
	if m.tokensIssued, err = meter.Int64Counter("auth.tokens.issued",
		metric.WithDescription("Tokens issued, by type")); err != nil {
		return nil, err
	}
	if m.verifyFailures, err = meter.Int64Counter("auth.verify.failures",
		metric.WithDescription("Token verification failures, by kind")); err != nil {
		return nil, err
	}
	if m.sessionsCreated, err = meter.Int64Counter("auth.sessions.created",
		metric.WithDescription("Sessions created")); err != nil {
		return nil, err
	}
	if m.sessionsEvicted, err = meter.Int64Counter("auth.sessions.evicted",
		metric.WithDescription("Sessions evicted by the concurrency cap")); err != nil {
		return nil, err
	}
	if m.sessionsSwept, err = meter.Int64Counter("auth.sessions.swept",
		metric.WithDescription("Expired sessions removed by the cleanup sweep")); err != nil {
		return nil, err
	}
	return m, nil
}

// TokenIssued records one issued token of the given type.
func (m *Metrics) TokenIssued(ctx context.Context, tokenType string) {
	if m == nil {
		return
	}
	m.tokensIssued.Add(ctx, 1, metric.WithAttributes(attribute.String("type", tokenType)))
}

// VerifyFailed records one verification failure of the given kind.
func (m *Metrics) VerifyFailed(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	m.verifyFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// SessionCreated records one created session.
func (m *Metrics) SessionCreated(ctx context.Context) {
	if m == nil {
		return
	}
	m.sessionsCreated.Add(ctx, 1)
}

// SessionEvicted records one session evicted by the concurrency cap.
func (m *Metrics) SessionEvicted(ctx context.Context) {
	if m == nil {
		return
	}
	m.sessionsEvicted.Add(ctx, 1)
}

// SessionsSwept records n sessions removed by a cleanup sweep.
func (m *Metrics) SessionsSwept(ctx context.Context, n int64) {
	if m == nil || n == 0 {
		return
	}
	m.sessionsSwept.Add(ctx, n)
}
