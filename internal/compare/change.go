package compare

import (
	"sort"
)

type ChangeType string

const (
	Added   ChangeType = "ADDED"
	Updated ChangeType = "UPDATED"
	Removed ChangeType = "REMOVED"
)

// NodeChange is one instruction for a downstream index. It carries the path
// so consumers never need history to apply it.
type NodeChange struct {
	Type  ChangeType `json:"type"`
	Path  string     `json:"path"`
	OldID string     `json:"old_id,omitempty"`
	NewID string     `json:"new_id,omitempty"`
}

// Summary counts changes by type.
type Summary struct {
	Added   int
	Updated int
	Removed int
}

func (s Summary) Total() int {
	return s.Added + s.Updated + s.Removed
}

// Summarize counts changes by type.
func Summarize(changes []NodeChange) Summary {
	var s Summary
	for _, c := range changes {
		switch c.Type {
		case Added:
			s.Added++
		case Updated:
			s.Updated++
		case Removed:
			s.Removed++
		}
	}
	return s
}

// order puts additions and updates first, then removals, each by path.
func order(changes []NodeChange) {
	sort.SliceStable(changes, func(i, j int) bool {
		ri, rj := changes[i].Type == Removed, changes[j].Type == Removed
		if ri != rj {
			return rj
		}
		return changes[i].Path < changes[j].Path
	})
}
