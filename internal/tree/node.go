package tree

import (
	"sort"
)

// Document is the metadata attached to a node by a content extractor.
// Key order carries no meaning; hashing sorts keys.
type Document map[string]any

// Clone returns a shallow copy of d.
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// Node is a single addressable entry of the tree.
type Node struct {
	Path        string
	IsDirectory bool
	Metadata    Document

	Children []*Node // sorted by Path
	Parent   *Node   // back link, not owning

	hash      string
	hashValid bool
	dirty     bool
}

// CreateNode builds a detached node. It has no effect on any tree.
func CreateNode(path string, isDirectory bool) *Node {
	return &Node{
		Path:        path,
		IsDirectory: isDirectory,
		dirty:       true,
	}
}

// Hash returns the cached digest. It may be stale while Dirty reports true.
func (n *Node) Hash() string {
	return n.hash
}

// Dirty reports whether the cached hash no longer reflects the node.
func (n *Node) Dirty() bool {
	return n.dirty || !n.hashValid
}

// HasContent reports whether the node takes part in change diffs.
func (n *Node) HasContent() bool {
	return !n.IsDirectory && n.Metadata != nil
}

// markDirty flags n and every ancestor. A dirty node always has dirty
// ancestors, so the walk stops at the first one already flagged.
func (n *Node) markDirty() {
	for cur := n; cur != nil; cur = cur.Parent {
		if cur.dirty && cur != n {
			return
		}
		cur.dirty = true
	}
}

func (n *Node) insertChild(child *Node) {
	i := sort.Search(len(n.Children), func(i int) bool {
		return n.Children[i].Path >= child.Path
	})
	n.Children = append(n.Children, nil)
	copy(n.Children[i+1:], n.Children[i:])
	n.Children[i] = child
	child.Parent = n
}

func (n *Node) detachChild(child *Node) {
	i := sort.Search(len(n.Children), func(i int) bool {
		return n.Children[i].Path >= child.Path
	})
	if i < len(n.Children) && n.Children[i] == child {
		n.Children = append(n.Children[:i], n.Children[i+1:]...)
	}
	child.Parent = nil
}
