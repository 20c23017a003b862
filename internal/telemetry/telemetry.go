// Package telemetry installs the global OpenTelemetry providers that the
// scanner and diff engine report to. With both exporters set to "none" the
// global no-op providers stay in place.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
)

// ErrUnknownExporter is returned for exporter names other than "none" and
// "stdout".
var ErrUnknownExporter = errors.New("unknown exporter")

const (
	ExporterNone   = "none"
	ExporterStdout = "stdout"
)

type Config struct {
	// Traces selects the span exporter: "none" or "stdout".
	Traces string `yaml:"traces"`

	// Metrics selects the metric exporter: "none" or "stdout".
	Metrics string `yaml:"metrics"`

	// Output is the file exporters write to. Empty means stderr.
	Output string `yaml:"output"`
}

func DefaultConfig() Config {
	return Config{
		Traces:  ExporterNone,
		Metrics: ExporterNone,
	}
}

// Validate checks the exporter names.
func (c Config) Validate() error {
	for _, name := range []string{c.Traces, c.Metrics} {
		switch name {
		case "", ExporterNone, ExporterStdout:
		default:
			return fmt.Errorf("%w: %s", ErrUnknownExporter, name)
		}
	}
	return nil
}

// Enabled reports whether any exporter is configured.
func (c Config) Enabled() bool {
	return c.Traces == ExporterStdout || c.Metrics == ExporterStdout
}

// Init installs providers for the configured exporters, writing to w. The
// returned shutdown flushes and stops them.
func Init(ctx context.Context, cfg Config, w io.Writer, serviceVersion string) (shutdown func(context.Context) error, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var shutdownFuncs []func(context.Context) error
	shutdown = func(ctx context.Context) error {
		var errs []error
		for _, fn := range shutdownFuncs {
			if err := fn(ctx); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}

	res := resource.NewWithAttributes(
		"",
		attribute.String("service.name", "merkle-index"),
		attribute.String("service.version", serviceVersion),
	)

	if cfg.Traces == ExporterStdout {
		exporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
		if err != nil {
			return nil, fmt.Errorf("create stdout trace exporter: %w", err)
		}
		tp := trace.NewTracerProvider(
			trace.WithBatcher(exporter),
			trace.WithResource(res),
		)
		otel.SetTracerProvider(tp)
		shutdownFuncs = append(shutdownFuncs, tp.Shutdown)
	}

	if cfg.Metrics == ExporterStdout {
		exporter, err := stdoutmetric.New(stdoutmetric.WithWriter(w))
		if err != nil {
			_ = shutdown(ctx)
			return nil, fmt.Errorf("create stdout metric exporter: %w", err)
		}
		mp := metric.NewMeterProvider(
			metric.WithResource(res),
			metric.WithReader(metric.NewPeriodicReader(exporter)),
		)
		otel.SetMeterProvider(mp)
		shutdownFuncs = append(shutdownFuncs, mp.Shutdown)
	}

	return shutdown, nil
}
