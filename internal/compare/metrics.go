package compare

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	tracer = otel.Tracer("merkle-index.compare")
	meter  = otel.Meter("merkle-index.compare")
)

var (
	changesTotal metric.Int64Counter
	prunedTotal  metric.Int64Counter
	diffLatency  metric.Float64Histogram

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		changesTotal, err = meter.Int64Counter(
			"diff_changes_total",
			metric.WithDescription("Changes emitted by the diff engine, by type"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		prunedTotal, err = meter.Int64Counter(
			"diff_pruned_directories_total",
			metric.WithDescription("Directory subtrees skipped because their hash was unchanged"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		diffLatency, err = meter.Float64Histogram(
			"diff_duration_seconds",
			metric.WithDescription("Duration of a diff pass"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func recordDiff(ctx context.Context, s Summary, pruned int, d time.Duration) {
	if err := initMetrics(); err != nil {
		return
	}
	changesTotal.Add(ctx, int64(s.Added), metric.WithAttributes(attribute.String("type", string(Added))))
	changesTotal.Add(ctx, int64(s.Updated), metric.WithAttributes(attribute.String("type", string(Updated))))
	changesTotal.Add(ctx, int64(s.Removed), metric.WithAttributes(attribute.String("type", string(Removed))))
	prunedTotal.Add(ctx, int64(pruned))
	diffLatency.Record(ctx, d.Seconds())
}

func startDiffSpan(ctx context.Context, operation string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Engine."+operation)
}

func setDiffSpanResult(span trace.Span, s Summary, pruned int) {
	span.SetAttributes(
		attribute.Int("diff.added", s.Added),
		attribute.Int("diff.updated", s.Updated),
		attribute.Int("diff.removed", s.Removed),
		attribute.Int("diff.pruned", pruned),
	)
}
