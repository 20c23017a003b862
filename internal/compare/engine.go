// Package compare turns successive states of a content tree into minimal
// change sets for a downstream index.
package compare

import (
	"context"
	"log/slog"
	"time"

	"merkle-index/internal/tree"
)

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. A nil logger falls back to slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// Engine diffs trees against the state it last published. It owns its
// stable map; callers only read copies of it.
//
// An Engine is not safe for concurrent use.
type Engine struct {
	stable *StableMap
	dirs   map[string]string // directory hashes seen by the last diff
	logger *slog.Logger
}

// NewEngine starts from a previously published state. A nil map starts
// empty, so the first diff reports every content node as added.
func NewEngine(stable *StableMap, opts ...Option) *Engine {
	if stable == nil {
		stable = NewStableMap()
	} else {
		stable = stable.Clone()
	}
	e := &Engine{
		stable: stable,
		dirs:   make(map[string]string),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Stable returns a copy of the published state.
func (e *Engine) Stable() *StableMap {
	return e.stable.Clone()
}

// Diff reports what changed in t since the previous diff and adopts t's
// state. Running it twice without touching t yields no changes the second
// time.
//
// Content nodes that lost their metadata keep their published id, so they
// report UPDATED once content comes back. Directories whose hash matches
// the previous diff are skipped along with their subtree.
func (e *Engine) Diff(ctx context.Context, t *tree.Tree) []NodeChange {
	ctx, span := startDiffSpan(ctx, "Diff")
	defer span.End()
	start := time.Now()

	t.RootHash()

	var changes []NodeChange
	pruned := 0
	next := e.stable.Clone()

	t.Walk(func(n *tree.Node) bool {
		if n.IsDirectory {
			h := n.Hash()
			if e.dirs[n.Path] == h {
				pruned++
				return false
			}
			e.dirs[n.Path] = h
			return true
		}
		if !n.HasContent() {
			return true
		}

		id := n.Hash()
		old, ok := next.ID(n.Path)
		switch {
		case !ok:
			changes = append(changes, NodeChange{Type: Added, Path: n.Path, NewID: id})
		case old != id:
			changes = append(changes, NodeChange{Type: Updated, Path: n.Path, OldID: old, NewID: id})
		default:
			return true
		}
		next.Put(id, n.Path)
		return true
	})

	for _, entry := range e.stable.Entries() {
		n := t.GetNode(entry.Path)
		if n != nil && !n.IsDirectory {
			continue
		}
		changes = append(changes, NodeChange{Type: Removed, Path: entry.Path, OldID: entry.ID})
		next.Delete(entry.Path)
	}

	for p := range e.dirs {
		if n := t.GetNode(p); n == nil || !n.IsDirectory {
			delete(e.dirs, p)
		}
	}

	e.stable = next
	order(changes)

	summary := Summarize(changes)
	recordDiff(ctx, summary, pruned, time.Since(start))
	setDiffSpanResult(span, summary, pruned)
	e.logger.Debug("diff complete",
		slog.Int("added", summary.Added),
		slog.Int("updated", summary.Updated),
		slog.Int("removed", summary.Removed),
		slog.Int("pruned_directories", pruned),
	)
	return changes
}
