package scanner

import (
	"context"
	"time"
)

// Run ticks s until its scan finishes or ctx ends, pausing interval between
// ticks. A non-positive interval ticks back to back. When ctx ends first the
// scan is canceled and Run returns ctx.Err().
func Run(ctx context.Context, s *Scanner, interval time.Duration) error {
	if interval <= 0 {
		for s.Tick(ctx) {
		}
		return ctx.Err()
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for s.Tick(ctx) {
		select {
		case <-ctx.Done():
			s.Cancel()
			s.Tick(ctx)
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return ctx.Err()
}
