package scanner

// Phase is a stage of the scan state machine. Phases run strictly in
// declaration order; Complete and Error are terminal.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseEnumerateDirectories
	PhaseEnumeratePaths
	PhaseProcessSimpleEntries
	PhaseProcessHierarchicalEntries
	PhaseComplete
	PhaseError
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseEnumerateDirectories:
		return "enumerate-directories"
	case PhaseEnumeratePaths:
		return "enumerate-paths"
	case PhaseProcessSimpleEntries:
		return "process-simple"
	case PhaseProcessHierarchicalEntries:
		return "process-hierarchical"
	case PhaseComplete:
		return "complete"
	case PhaseError:
		return "error"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further ticks will do work.
func (p Phase) Terminal() bool {
	return p == PhaseComplete || p == PhaseError
}

// BatchSizes bounds the work done per tick in each phase.
type BatchSizes struct {
	Directories  int
	Paths        int
	Simple       int
	Hierarchical int
}

// DefaultBatchSizes favours cheap phases; hierarchical entries expand into
// many nodes each, so they get the smallest batch.
func DefaultBatchSizes() BatchSizes {
	return BatchSizes{
		Directories:  256,
		Paths:        128,
		Simple:       64,
		Hierarchical: 8,
	}
}

func (b BatchSizes) forPhase(p Phase) int {
	var n int
	switch p {
	case PhaseEnumerateDirectories:
		n = b.Directories
	case PhaseEnumeratePaths:
		n = b.Paths
	case PhaseProcessSimpleEntries:
		n = b.Simple
	case PhaseProcessHierarchicalEntries:
		n = b.Hierarchical
	}
	if n <= 0 {
		n = 1
	}
	return n
}
