package progress

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-isatty"

	"merkle-index/internal/scanner"
)

// Bar renders scan progress on a single terminal line. It implements
// scanner.Observer.
type Bar struct {
	width      int
	writer     io.Writer
	mu         sync.Mutex
	enabled    bool
	done       int64
	pending    int64
	nodes      int
	phase      scanner.Phase
	lastUpdate time.Time
	interval   time.Duration
}

// New creates a bar writing to w. A disabled bar ignores every call.
func New(w io.Writer, enabled bool) *Bar {
	return &Bar{
		width:    40,
		writer:   w,
		enabled:  enabled,
		interval: 100 * time.Millisecond,
	}
}

// ForTerminal creates a bar on f that is enabled only when f is a terminal.
func ForTerminal(f *os.File) *Bar {
	return New(f, isTerminal(f))
}

func isTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func (b *Bar) OnProgress(p scanner.Progress) {
	if !b.enabled {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	phaseChanged := p.Phase != b.phase
	b.done += int64(p.Processed)
	b.pending = int64(p.Pending)
	b.nodes = p.Nodes
	b.phase = p.Phase

	// Update at most every interval to reduce flickering
	now := time.Now()
	if phaseChanged || now.Sub(b.lastUpdate) > b.interval {
		b.lastUpdate = now
		b.render()
	}
}

func (b *Bar) OnFinish(phase scanner.Phase, stats scanner.Stats) {
	if !b.enabled {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.phase = phase
	b.pending = 0
	b.nodes = stats.Nodes
	b.render()
	fmt.Fprintf(b.writer, "\n")
}

// render must be called with mu already locked
func (b *Bar) render() {
	total := b.done + b.pending
	filledWidth := b.width
	percent := 100
	if total > 0 {
		filledWidth = int(float64(b.width) * float64(b.done) / float64(total))
		percent = int(float64(b.done) / float64(total) * 100)
	}
	if filledWidth > b.width {
		filledWidth = b.width
	}

	bar := strings.Repeat("█", filledWidth) + strings.Repeat("░", b.width-filledWidth)

	// Clear the line and write progress
	fmt.Fprintf(b.writer, "\r\033[K[%s] %3d%% %-22s %d nodes",
		bar, percent, b.phase, b.nodes)
}
