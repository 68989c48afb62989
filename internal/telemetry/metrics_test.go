package telemetry

import (
	"context"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

func TestNewMetrics(t *testing.T) {
	provider := sdkmetric.NewMeterProvider()
	defer func() { _ = provider.Shutdown(context.Background()) }()

	m, err := NewMetrics(provider)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	ctx := context.Background()
	m.TokenIssued(ctx, "access")
	m.VerifyFailed(ctx, "expired")
	m.SessionCreated(ctx)
	m.SessionEvicted(ctx)
	m.SessionsSwept(ctx, 3)
}

func TestMetrics_NilReceiver(t *testing.T) {
	var m *Metrics
	ctx := context.Background()
	m.TokenIssued(ctx, "access")
	m.VerifyFailed(ctx, "expired")
	m.SessionCreated(ctx)
	m.SessionEvicted(ctx)
	m.SessionsSwept(ctx, 1)
}
