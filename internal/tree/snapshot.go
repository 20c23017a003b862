package tree

import (
	"fmt"

	"merkle-index/internal/hash"
)

// SnapshotNode is the serialisable form of a node and its subtree.
type SnapshotNode struct {
	Hash        string          `json:"hash"`
	Path        string          `json:"path"`
	IsDirectory bool            `json:"isDirectory"`
	Document    Document        `json:"document,omitempty"`
	Children    []*SnapshotNode `json:"children,omitempty"`
}

// Snapshot recomputes pending hashes and returns a detached copy of the tree.
func (t *Tree) Snapshot() *SnapshotNode {
	t.RootHash()
	return snapshotOf(t.root)
}

func snapshotOf(n *Node) *SnapshotNode {
	s := &SnapshotNode{
		Hash:        n.hash,
		Path:        n.Path,
		IsDirectory: n.IsDirectory,
		Document:    n.Metadata.Clone(),
	}
	if len(n.Children) > 0 {
		s.Children = make([]*SnapshotNode, 0, len(n.Children))
		for _, child := range n.Children {
			s.Children = append(s.Children, snapshotOf(child))
		}
	}
	return s
}

// Walk visits s and its descendants depth first.
func (s *SnapshotNode) Walk(fn func(*SnapshotNode)) {
	fn(s)
	for _, child := range s.Children {
		child.Walk(fn)
	}
}

// FromSnapshot rebuilds a live tree from a snapshot. The recorded hashes are
// not trusted; they are recomputed with alg.
func FromSnapshot(snap *SnapshotNode, alg hash.Algorithm) (*Tree, error) {
	if snap == nil {
		return nil, fmt.Errorf("empty snapshot")
	}
	if _, err := hash.New(alg); err != nil {
		return nil, err
	}

	t := New(snap.Path, WithAlgorithm(alg))
	var build func(parent *Node, s *SnapshotNode) error
	build = func(parent *Node, s *SnapshotNode) error {
		for _, cs := range s.Children {
			child := CreateNode(cs.Path, cs.IsDirectory)
			if err := t.AddChild(parent, child); err != nil {
				return err
			}
			if cs.Document != nil {
				if err := t.SetMetadata(child, cs.Document.Clone()); err != nil {
					return err
				}
			}
			if err := build(child, cs); err != nil {
				return err
			}
		}
		return nil
	}
	if err := build(t.root, snap); err != nil {
		return nil, fmt.Errorf("rebuild snapshot: %w", err)
	}
	t.RootHash()
	return t, nil
}

// VerifySnapshot recomputes every hash of snap and returns the paths whose
// recorded hash disagrees, in path order.
func VerifySnapshot(snap *SnapshotNode, alg hash.Algorithm) ([]string, error) {
	t, err := FromSnapshot(snap, alg)
	if err != nil {
		return nil, err
	}

	var mismatched []string
	snap.Walk(func(s *SnapshotNode) {
		n := t.GetNode(s.Path)
		if n == nil || n.hash != s.Hash {
			mismatched = append(mismatched, s.Path)
		}
	})
	return mismatched, nil
}

// Lookup finds the snapshot node at p, or nil.
func (s *SnapshotNode) Lookup(p string) *SnapshotNode {
	var found *SnapshotNode
	s.Walk(func(n *SnapshotNode) {
		if found == nil && n.Path == p {
			found = n
		}
	})
	return found
}
