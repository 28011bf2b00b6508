package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// OrderMetrics counts order lifecycle outcomes. A nil *OrderMetrics is a
// no-op, so tests and wiring without a meter provider stay quiet.
type OrderMetrics struct {
	placed    metric.Int64Counter
	cancelled metric.Int64Counter
	conflicts metric.Int64Counter
}

func NewOrderMetrics() (*OrderMetrics, error) {
	meter := otel.Meter("sweetshop/orders")

	placed, err := meter.Int64Counter("orders.placed",
		metric.WithDescription("Orders successfully placed"))
	if err != nil {
		return nil, err
	}

	cancelled, err := meter.Int64Counter("orders.cancelled",
		metric.WithDescription("Orders cancelled by their owner"))
	if err != nil {
		return nil, err
	}

	conflicts, err := meter.Int64Counter("orders.stock_conflicts",
		metric.WithDescription("Placements lost to a concurrent stock decrement"))
	if err != nil {
		return nil, err
	}

	return &OrderMetrics{placed: placed, cancelled: cancelled, conflicts: conflicts}, nil
}

func (m *OrderMetrics) OrderPlaced(ctx context.Context) {
	if m == nil {
		return
	}
	m.placed.Add(ctx, 1)
}

func (m *OrderMetrics) OrderCancelled(ctx context.Context) {
	if m == nil {
		return
	}
	m.cancelled.Add(ctx, 1)
}

func (m *OrderMetrics) StockConflict(ctx context.Context) {
	if m == nil {
		return
	}
	m.conflicts.Add(ctx, 1)
}
