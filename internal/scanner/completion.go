package scanner

import (
	"context"
	"sync"

	"merkle-index/internal/tree"
)

// Result is the outcome of a finished scan.
type Result struct {
	Session  string
	Tree     *tree.Tree
	Snapshot *tree.SnapshotNode
	Stats    Stats
}

// Completion resolves exactly once when a scan finishes. Any number of
// goroutines may wait on it.
type Completion struct {
	once   sync.Once
	done   chan struct{}
	result *Result
	err    error
}

func newCompletion() *Completion {
	return &Completion{done: make(chan struct{})}
}

// resolve settles the completion. Later calls are ignored and report false.
func (c *Completion) resolve(r *Result, err error) bool {
	resolved := false
	c.once.Do(func() {
		c.result = r
		c.err = err
		close(c.done)
		resolved = true
	})
	return resolved
}

// Done is closed once the scan has finished.
func (c *Completion) Done() <-chan struct{} {
	return c.done
}

// Wait blocks until the scan finishes or ctx ends.
func (c *Completion) Wait(ctx context.Context) (*Result, error) {
	select {
	case <-c.done:
		return c.result, c.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
