package compare

import (
	"merkle-index/internal/tree"
)

// Compare diffs two saved snapshots with the same rules as Engine.Diff,
// treating old as the published state. Either side may be nil.
func Compare(oldSnap, newSnap *tree.SnapshotNode) []NodeChange {
	oldContent := make(map[string]string)
	collect(oldSnap, oldContent, nil)

	newContent := make(map[string]string)
	newDirs := make(map[string]bool)
	collect(newSnap, newContent, newDirs)

	var changes []NodeChange
	for p, id := range newContent {
		old, ok := oldContent[p]
		switch {
		case !ok:
			changes = append(changes, NodeChange{Type: Added, Path: p, NewID: id})
		case old != id:
			changes = append(changes, NodeChange{Type: Updated, Path: p, OldID: old, NewID: id})
		}
	}

	present := make(map[string]bool)
	if newSnap != nil {
		newSnap.Walk(func(s *tree.SnapshotNode) {
			present[s.Path] = true
		})
	}
	for p, id := range oldContent {
		if _, ok := newContent[p]; ok {
			continue
		}
		if present[p] && !newDirs[p] {
			continue
		}
		changes = append(changes, NodeChange{Type: Removed, Path: p, OldID: id})
	}

	order(changes)
	return changes
}

// collect gathers the hashes of content nodes by path and, when dirs is
// non-nil, the directory paths.
func collect(snap *tree.SnapshotNode, content map[string]string, dirs map[string]bool) {
	if snap == nil {
		return
	}
	snap.Walk(func(s *tree.SnapshotNode) {
		switch {
		case s.IsDirectory:
			if dirs != nil {
				dirs[s.Path] = true
			}
		case s.Document != nil:
			content[s.Path] = s.Hash
		}
	})
}
