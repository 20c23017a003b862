package compare

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
)

// Consumer applies change sets to a downstream index.
type Consumer interface {
	Apply(ctx context.Context, changes []NodeChange) error
}

// JSONLinesConsumer writes one JSON object per change.
type JSONLinesConsumer struct {
	enc *json.Encoder
}

func NewJSONLinesConsumer(w io.Writer) *JSONLinesConsumer {
	return &JSONLinesConsumer{enc: json.NewEncoder(w)}
}

func (c *JSONLinesConsumer) Apply(ctx context.Context, changes []NodeChange) error {
	for _, change := range changes {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := c.enc.Encode(change); err != nil {
			return fmt.Errorf("failed to write change for %s: %w", change.Path, err)
		}
	}
	return nil
}

// ReportConsumer writes a FormatReport rendering of each change set.
type ReportConsumer struct {
	w io.Writer
}

func NewReportConsumer(w io.Writer) *ReportConsumer {
	return &ReportConsumer{w: w}
}

func (c *ReportConsumer) Apply(_ context.Context, changes []NodeChange) error {
	if _, err := fmt.Fprintln(c.w, FormatReport(changes)); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}
