package service

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// engineMetrics are the engine's OpenTelemetry counters. Without a
// configured SDK they resolve to the global no-op meter, so the engine
// records unconditionally.
type engineMetrics struct {
	generations metric.Int64Counter
	evaluations metric.Int64Counter
	spendUSD    metric.Float64Counter
}

func newEngineMetrics(logger Logger) engineMetrics {
	meter := otel.Meter("github.com/eenlars/evoflow/pkg/service")
	var m engineMetrics
	var err error
	if m.generations, err = meter.Int64Counter("evoflow.generations.completed",
		metric.WithDescription("Generations completed across all runs")); err != nil {
		logger.Errorf("Failed to create generations counter: %v", err)
	}
	if m.evaluations, err = meter.Int64Counter("evoflow.evaluations",
		metric.WithDescription("Genome evaluations performed")); err != nil {
		logger.Errorf("Failed to create evaluations counter: %v", err)
	}
	if m.spendUSD, err = meter.Float64Counter("evoflow.spend.usd",
		metric.WithDescription("Cumulative evaluation and generation spend in USD")); err != nil {
		logger.Errorf("Failed to create spend counter: %v", err)
	}
	return m
}

func (m engineMetrics) recordGeneration(ctx context.Context, runID string, evaluations int, costUSD float64) {
	attrs := metric.WithAttributes(attribute.String("run_id", runID))
	if m.generations != nil {
		m.generations.Add(ctx, 1, attrs)
	}
	if m.evaluations != nil {
		m.evaluations.Add(ctx, int64(evaluations), attrs)
	}
	if m.spendUSD != nil {
		m.spendUSD.Add(ctx, costUSD, attrs)
	}
}
