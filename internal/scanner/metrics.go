package scanner

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	tracer = otel.Tracer("merkle-index.scanner")
	meter  = otel.Meter("merkle-index.scanner")
)

var (
	ticksTotal      metric.Int64Counter
	entriesTotal    metric.Int64Counter
	extractFailures metric.Int64Counter
	duplicatesTotal metric.Int64Counter
	tickLatency     metric.Float64Histogram
	scansTotal      metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		ticksTotal, err = meter.Int64Counter(
			"scanner_ticks_total",
			metric.WithDescription("Total number of scanner ticks"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		entriesTotal, err = meter.Int64Counter(
			"scanner_entries_total",
			metric.WithDescription("Entries processed, by phase"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		extractFailures, err = meter.Int64Counter(
			"scanner_extract_failures_total",
			metric.WithDescription("Entries whose content could not be extracted"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		duplicatesTotal, err = meter.Int64Counter(
			"scanner_duplicate_identities_total",
			metric.WithDescription("Entries skipped because their identity was already processed"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		tickLatency, err = meter.Float64Histogram(
			"scanner_tick_duration_seconds",
			metric.WithDescription("Duration of a single scanner tick"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		scansTotal, err = meter.Int64Counter(
			"scanner_scans_total",
			metric.WithDescription("Finished scans, by outcome"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func recordTick(ctx context.Context, phase Phase, processed int, d time.Duration) {
	if err := initMetrics(); err != nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("phase", phase.String()))
	ticksTotal.Add(ctx, 1, attrs)
	entriesTotal.Add(ctx, int64(processed), attrs)
	tickLatency.Record(ctx, d.Seconds(), attrs)
}

func recordExtractFailure(ctx context.Context) {
	if err := initMetrics(); err != nil {
		return
	}
	extractFailures.Add(ctx, 1)
}

func recordDuplicate(ctx context.Context) {
	if err := initMetrics(); err != nil {
		return
	}
	duplicatesTotal.Add(ctx, 1)
}

func recordScan(ctx context.Context, outcome Phase) {
	if err := initMetrics(); err != nil {
		return
	}
	scansTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome.String())))
}

// startScanSpan opens the span that covers a whole scan session. It is
// ended when the session resolves.
func startScanSpan(ctx context.Context, session, root string) trace.Span {
	_, span := tracer.Start(ctx, "Scanner.Scan",
		trace.WithAttributes(
			attribute.String("scan.session", session),
			attribute.String("scan.root", root),
		),
	)
	return span
}

func endScanSpan(span trace.Span, stats Stats, err error) {
	span.SetAttributes(
		attribute.Int("scan.ticks", stats.Ticks),
		attribute.Int("scan.nodes", stats.Nodes),
		attribute.Int64("scan.processed_identities", int64(stats.ProcessedIdentities)),
		attribute.Int("scan.extract_failures", stats.ExtractFailures),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
