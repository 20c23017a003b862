// Package scanner builds a content tree from a repository in small,
// bounded steps so a host can interleave the work with other duties.
//
// A scan moves through a fixed sequence of phases. Each call to Tick
// performs one batch of the current phase; the phase only advances once its
// queue is empty at the start of a tick. The tree is touched only from the
// goroutine calling Tick.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"merkle-index/internal/hash"
	"merkle-index/internal/tree"
	"merkle-index/internal/walker"
)

var (
	// ErrScanInProgress is returned by Start while another scan is active.
	ErrScanInProgress = errors.New("scan already in progress")

	// ErrScanCanceled resolves the completion of a canceled scan.
	ErrScanCanceled = errors.New("scan canceled")
)

// Extractor produces node metadata for a content reference.
type Extractor interface {
	Extract(ctx context.Context, ref walker.ContentRef) (tree.Document, error)
}

// Progress is reported to the observer after every tick that did work.
type Progress struct {
	Session   string
	Phase     Phase
	Processed int // entries handled in this tick
	Pending   int // entries left across all queues
	Nodes     int // nodes in the tree so far
}

// Observer receives scan progress. It is called on the ticking goroutine.
type Observer interface {
	OnProgress(p Progress)
	OnFinish(phase Phase, stats Stats)
}

// Stats summarises a finished scan.
type Stats struct {
	Ticks               int
	Directories         int
	Paths               int
	SimpleEntries       int
	HierarchicalEntries int
	Objects             int
	Nodes               int
	DuplicateIdentities int
	ResolveFailures     int
	ExtractFailures     int
	ProcessedIdentities uint64
	Duration            time.Duration
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithBatchSizes overrides the per-phase batch sizes.
func WithBatchSizes(b BatchSizes) Option {
	return func(s *Scanner) {
		s.batch = b
	}
}

// WithAlgorithm selects the digest for trees built by the scanner.
func WithAlgorithm(alg hash.Algorithm) Option {
	return func(s *Scanner) {
		s.algorithm = alg
	}
}

// WithLogger sets the logger. A nil logger falls back to slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scanner) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithObserver registers a progress observer.
func WithObserver(o Observer) Option {
	return func(s *Scanner) {
		s.observer = o
	}
}

// Scanner drives scan sessions over one repository.
type Scanner struct {
	repo      walker.Repository
	extractor Extractor
	batch     BatchSizes
	algorithm hash.Algorithm
	logger    *slog.Logger
	observer  Observer

	active   atomic.Bool
	canceled atomic.Bool
	sess     atomic.Pointer[session]
}

// New creates a scanner reading from repo and describing content with
// extractor.
func New(repo walker.Repository, extractor Extractor, opts ...Option) *Scanner {
	s := &Scanner{
		repo:      repo,
		extractor: extractor,
		batch:     DefaultBatchSizes(),
		algorithm: hash.SHA256,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type pendingEntry struct {
	path  string
	entry *walker.Entry // nil when the path could not be resolved
}

type session struct {
	id         string
	phase      Phase
	tree       *tree.Tree
	visited    *identitySet
	completion *Completion
	span       trace.Span
	started    time.Time
	stats      Stats

	dirs         []string
	paths        []string
	simple       []pendingEntry
	hierarchical []pendingEntry
}

func (ss *session) queueLen(p Phase) int {
	switch p {
	case PhaseEnumerateDirectories:
		return len(ss.dirs)
	case PhaseEnumeratePaths:
		return len(ss.paths)
	case PhaseProcessSimpleEntries:
		return len(ss.simple)
	case PhaseProcessHierarchicalEntries:
		return len(ss.hierarchical)
	}
	return 0
}

func (ss *session) pending() int {
	return len(ss.dirs) + len(ss.paths) + len(ss.simple) + len(ss.hierarchical)
}

// Start begins a new scan and returns its completion handle. The scan
// makes progress only through Tick.
func (s *Scanner) Start(ctx context.Context) (*Completion, error) {
	if !s.active.CompareAndSwap(false, true) {
		return nil, ErrScanInProgress
	}
	s.canceled.Store(false)

	root := s.repo.Root()
	id := uuid.NewString()
	ss := &session{
		id:         id,
		phase:      PhaseEnumerateDirectories,
		tree:       tree.New(root, tree.WithAlgorithm(s.algorithm)),
		visited:    newIdentitySet(),
		completion: newCompletion(),
		span:       startScanSpan(ctx, id, root),
		started:    time.Now(),
		dirs:       []string{root},
	}
	s.sess.Store(ss)

	s.logger.Info("scan started",
		slog.String("session", id),
		slog.String("root", root),
		slog.String("algorithm", string(s.algorithm)),
	)
	return ss.completion, nil
}

// Active reports whether a scan is running.
func (s *Scanner) Active() bool {
	return s.active.Load()
}

// Phase returns the phase of the current or last scan. Like Tick, it must
// be called from the ticking goroutine.
func (s *Scanner) Phase() Phase {
	ss := s.sess.Load()
	if ss == nil {
		return PhaseIdle
	}
	return ss.phase
}

// Cancel asks the running scan to stop. The scan fails with
// ErrScanCanceled on its next tick.
func (s *Scanner) Cancel() {
	if s.active.Load() {
		s.canceled.Store(true)
	}
}

// Tick performs one batch of work and reports whether the scan needs more
// ticks. It returns false when no scan is active.
func (s *Scanner) Tick(ctx context.Context) bool {
	ss := s.sess.Load()
	if ss == nil || ss.phase.Terminal() {
		return false
	}
	if s.canceled.Load() {
		s.fail(ctx, ss, ErrScanCanceled)
		return false
	}
	if err := ctx.Err(); err != nil {
		s.fail(ctx, ss, fmt.Errorf("%w: %v", ErrScanCanceled, err))
		return false
	}

	start := time.Now()
	ss.stats.Ticks++

	for ss.queueLen(ss.phase) == 0 {
		next := ss.phase + 1
		s.logger.Debug("scan phase finished",
			slog.String("session", ss.id),
			slog.String("phase", ss.phase.String()),
			slog.String("next", next.String()),
		)
		ss.phase = next
		if next == PhaseComplete {
			s.complete(ctx, ss)
			return false
		}
	}

	phase := ss.phase
	processed, err := s.runBatch(ctx, ss, s.batch.forPhase(phase))
	recordTick(ctx, phase, processed, time.Since(start))
	if err != nil {
		s.fail(ctx, ss, err)
		return false
	}

	if s.observer != nil {
		s.observer.OnProgress(Progress{
			Session:   ss.id,
			Phase:     phase,
			Processed: processed,
			Pending:   ss.pending(),
			Nodes:     ss.tree.Len(),
		})
	}
	return true
}

func (s *Scanner) runBatch(ctx context.Context, ss *session, limit int) (int, error) {
	switch ss.phase {
	case PhaseEnumerateDirectories:
		n := min(limit, len(ss.dirs))
		batch := ss.dirs[:n]
		ss.dirs = ss.dirs[n:]
		for _, dir := range batch {
			if err := s.enumerateDirectory(ctx, ss, dir); err != nil {
				return 0, err
			}
		}
		return n, nil

	case PhaseEnumeratePaths:
		n := min(limit, len(ss.paths))
		batch := ss.paths[:n]
		ss.paths = ss.paths[n:]
		for _, p := range batch {
			s.resolvePath(ctx, ss, p)
		}
		return n, nil

	case PhaseProcessSimpleEntries:
		n := min(limit, len(ss.simple))
		batch := ss.simple[:n]
		ss.simple = ss.simple[n:]
		for _, pe := range batch {
			if err := s.processSimple(ctx, ss, pe); err != nil {
				return 0, err
			}
		}
		return n, nil

	case PhaseProcessHierarchicalEntries:
		n := min(limit, len(ss.hierarchical))
		batch := ss.hierarchical[:n]
		ss.hierarchical = ss.hierarchical[n:]
		for _, pe := range batch {
			if err := s.processHierarchical(ctx, ss, pe); err != nil {
				return 0, err
			}
		}
		return n, nil
	}
	return 0, nil
}

// enumerateDirectory registers the structural node for dir and queues what
// it contains. Directories are visited breadth first, so a parent is always
// indexed before its children.
func (s *Scanner) enumerateDirectory(ctx context.Context, ss *session, dir string) error {
	if dir != ss.tree.Root().Path {
		if _, err := ss.tree.AddNode(dir, true); err != nil {
			return fmt.Errorf("failed to add directory %s: %w", dir, err)
		}
	}
	ss.stats.Directories++

	dirs, files, err := s.repo.ReadDir(ctx, dir)
	if err != nil {
		s.logger.Warn("failed to read directory",
			slog.String("session", ss.id),
			slog.String("path", dir),
			slog.Any("error", err),
		)
		return nil
	}
	ss.dirs = append(ss.dirs, dirs...)
	ss.paths = append(ss.paths, files...)
	return nil
}

func (s *Scanner) resolvePath(ctx context.Context, ss *session, p string) {
	ss.stats.Paths++

	entry, err := s.repo.Resolve(ctx, p)
	if err != nil {
		ss.stats.ResolveFailures++
		s.logger.Warn("failed to resolve path",
			slog.String("session", ss.id),
			slog.String("path", p),
			slog.Any("error", err),
		)
		ss.simple = append(ss.simple, pendingEntry{path: p})
		return
	}

	if entry.Hierarchical() {
		ss.hierarchical = append(ss.hierarchical, pendingEntry{path: p, entry: entry})
		return
	}
	ss.simple = append(ss.simple, pendingEntry{path: p, entry: entry})
}

func (s *Scanner) processSimple(ctx context.Context, ss *session, pe pendingEntry) error {
	ss.stats.SimpleEntries++
	_, err := s.addEntryNode(ctx, ss, pe)
	return err
}

func (s *Scanner) processHierarchical(ctx context.Context, ss *session, pe pendingEntry) error {
	ss.stats.HierarchicalEntries++
	n, err := s.addEntryNode(ctx, ss, pe)
	if err != nil || n == nil {
		return err
	}
	for _, child := range pe.entry.Children {
		if err := s.addObject(ctx, ss, n, child); err != nil {
			return err
		}
	}
	return nil
}

// addEntryNode creates the node for a top-level path. It returns nil
// without error when the entry's identity was already processed.
func (s *Scanner) addEntryNode(ctx context.Context, ss *session, pe pendingEntry) (*tree.Node, error) {
	if pe.entry != nil && !s.visit(ctx, ss, pe.entry) {
		return nil, nil
	}

	n, err := ss.tree.AddNode(pe.path, false)
	if err != nil {
		return nil, fmt.Errorf("failed to add %s: %w", pe.path, err)
	}
	if pe.entry != nil {
		s.describe(ctx, ss, n, pe.entry.Ref)
	}
	return n, nil
}

// addObject links an object of a hierarchical entry under parent and
// recurses into its children. Aliased and cyclic objects stop at the
// identity check.
func (s *Scanner) addObject(ctx context.Context, ss *session, parent *tree.Node, e *walker.Entry) error {
	if e == nil || !s.visit(ctx, ss, e) {
		return nil
	}

	n := tree.CreateNode(s.childPath(ss, parent, e.Name), false)
	if err := ss.tree.AddChild(parent, n); err != nil {
		return fmt.Errorf("failed to add object %s: %w", n.Path, err)
	}
	ss.stats.Objects++
	s.describe(ctx, ss, n, e.Ref)

	for _, child := range e.Children {
		if err := s.addObject(ctx, ss, n, child); err != nil {
			return err
		}
	}
	return nil
}

// childPath joins name under parent, suffixing "~N" when a sibling already
// holds the name.
func (s *Scanner) childPath(ss *session, parent *tree.Node, name string) string {
	base := parent.Path + "/" + name
	p := base
	for i := 1; ss.tree.GetNode(p) != nil; i++ {
		p = fmt.Sprintf("%s~%d", base, i)
	}
	return p
}

func (s *Scanner) visit(ctx context.Context, ss *session, e *walker.Entry) bool {
	if ss.visited.visit(e.Ref.Identity) {
		return true
	}
	ss.stats.DuplicateIdentities++
	recordDuplicate(ctx)
	s.logger.Debug("skipping already processed identity",
		slog.String("session", ss.id),
		slog.String("path", e.Path),
		slog.String("identity", e.Ref.Identity),
	)
	return false
}

// describe extracts and attaches metadata. Failures leave the node without
// content.
func (s *Scanner) describe(ctx context.Context, ss *session, n *tree.Node, ref walker.ContentRef) {
	doc, err := s.extractor.Extract(ctx, ref)
	if err == nil {
		err = ss.tree.SetMetadata(n, doc)
	}
	if err != nil {
		ss.stats.ExtractFailures++
		recordExtractFailure(ctx)
		s.logger.Warn("failed to extract content",
			slog.String("session", ss.id),
			slog.String("path", n.Path),
			slog.String("kind", ref.Kind.String()),
			slog.Any("error", err),
		)
	}
}

func (s *Scanner) complete(ctx context.Context, ss *session) {
	ss.phase = PhaseComplete

	rootHash := ss.tree.RootHash()
	ss.stats.Nodes = ss.tree.Len()
	ss.stats.ProcessedIdentities = ss.visited.processed()
	ss.stats.Duration = time.Since(ss.started)
	ss.visited = nil

	result := &Result{
		Session:  ss.id,
		Tree:     ss.tree,
		Snapshot: ss.tree.Snapshot(),
		Stats:    ss.stats,
	}

	s.logger.Info("scan complete",
		slog.String("session", ss.id),
		slog.String("root_hash", rootHash),
		slog.Int("nodes", ss.stats.Nodes),
		slog.Int("ticks", ss.stats.Ticks),
		slog.Int("extract_failures", ss.stats.ExtractFailures),
		slog.Duration("duration", ss.stats.Duration),
	)
	s.finish(ctx, ss, result, nil)
}

func (s *Scanner) fail(ctx context.Context, ss *session, err error) {
	ss.phase = PhaseError
	ss.stats.Nodes = ss.tree.Len()
	ss.stats.ProcessedIdentities = ss.visited.processed()
	ss.stats.Duration = time.Since(ss.started)
	ss.visited = nil
	ss.dirs, ss.paths, ss.simple, ss.hierarchical = nil, nil, nil, nil

	s.logger.Error("scan failed",
		slog.String("session", ss.id),
		slog.Any("error", err),
	)
	s.finish(ctx, ss, nil, err)
}

func (s *Scanner) finish(ctx context.Context, ss *session, result *Result, err error) {
	recordScan(ctx, ss.phase)
	endScanSpan(ss.span, ss.stats, err)
	if s.observer != nil {
		s.observer.OnFinish(ss.phase, ss.stats)
	}
	s.active.Store(false)
	ss.completion.resolve(result, err)
}
