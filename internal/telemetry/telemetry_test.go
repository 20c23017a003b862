package telemetry

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel"
)

func TestValidate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("Default config should be valid: %v", err)
	}
	if err := (Config{Traces: "stdout", Metrics: ""}).Validate(); err != nil {
		t.Errorf("stdout traces should be valid: %v", err)
	}
	err := (Config{Metrics: "prometheus"}).Validate()
	if !errors.Is(err, ErrUnknownExporter) {
		t.Errorf("Expected ErrUnknownExporter, got %v", err)
	}
}

func TestInit_NoneInstallsNothing(t *testing.T) {
	shutdown, err := Init(context.Background(), DefaultConfig(), &bytes.Buffer{}, "test")
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown failed: %v", err)
	}
}

func TestInit_StdoutExportsSpans(t *testing.T) {
	var buf bytes.Buffer
	shutdown, err := Init(context.Background(), Config{Traces: ExporterStdout, Metrics: ExporterStdout}, &buf, "test")
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	_, span := otel.Tracer("telemetry-test").Start(context.Background(), "unit")
	span.End()

	counter, err := otel.Meter("telemetry-test").Int64Counter("unit_total")
	if err != nil {
		t.Fatalf("Int64Counter failed: %v", err)
	}
	counter.Add(context.Background(), 1)

	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown failed: %v", err)
	}
	if !bytes.Contains(buf.Bytes(), []byte(`"unit"`)) {
		t.Error("Span should have been exported")
	}
	if !bytes.Contains(buf.Bytes(), []byte("unit_total")) {
		t.Error("Metric should have been exported")
	}
}
