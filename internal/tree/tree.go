package tree

import (
	"encoding/json"
	"errors"
	"fmt"
	"path"

	"merkle-index/internal/hash"
)

// Sentinel errors for tree mutations.
var (
	// ErrParentNotFound means a node was linked before its parent was
	// indexed. This is an ordering bug in the caller, not a data error.
	ErrParentNotFound = errors.New("parent not found")

	// ErrDuplicatePath is returned when a path is already indexed.
	ErrDuplicatePath = errors.New("path already indexed")

	// ErrNotFound is returned by mutations addressed at an unknown path.
	ErrNotFound = errors.New("node not found")

	// ErrDirectoryMetadata is returned when metadata is set on a directory.
	ErrDirectoryMetadata = errors.New("directories carry no metadata")

	// ErrInvalidMetadata is returned for documents that cannot be encoded
	// as JSON, such as NaN values or maps with non-string keys.
	ErrInvalidMetadata = errors.New("metadata is not JSON-encodable")

	// ErrNodeAttached is returned when AddChild is given a node that is
	// already linked or has children of its own.
	ErrNodeAttached = errors.New("node is already attached")
)

// Option configures a Tree.
type Option func(*Tree)

// WithAlgorithm selects the digest used for node hashes.
// It panics on unknown algorithms; validate configuration first.
func WithAlgorithm(alg hash.Algorithm) Option {
	return func(t *Tree) {
		t.algorithm = alg
		t.newHash = hash.MustNew(alg)
	}
}

// Tree owns the node graph and the path index.
//
// A Tree is not safe for concurrent use. Every exported method leaves the
// index and the parent/child links consistent.
type Tree struct {
	root      *Node
	index     map[string]*Node
	algorithm hash.Algorithm
	newHash   hash.Func
}

// New creates a tree holding only a root directory at rootPath.
func New(rootPath string, opts ...Option) *Tree {
	t := &Tree{
		index:     make(map[string]*Node),
		algorithm: hash.SHA256,
		newHash:   hash.MustNew(hash.SHA256),
	}
	for _, opt := range opts {
		opt(t)
	}

	t.root = CreateNode(rootPath, true)
	t.index[rootPath] = t.root
	return t
}

// Root returns the root node.
func (t *Tree) Root() *Node {
	return t.root
}

// Algorithm returns the digest algorithm in use.
func (t *Tree) Algorithm() hash.Algorithm {
	return t.algorithm
}

// Len returns the number of indexed nodes, root included.
func (t *Tree) Len() int {
	return len(t.index)
}

// GetNode returns the node at p, or nil.
func (t *Tree) GetNode(p string) *Node {
	return t.index[p]
}

// AddChild links child under parent and marks the chain up to the root
// dirty.
func (t *Tree) AddChild(parent, child *Node) error {
	if parent == nil || t.index[parent.Path] != parent {
		name := "<nil>"
		if parent != nil {
			name = parent.Path
		}
		return fmt.Errorf("%w: %s (adding %s)", ErrParentNotFound, name, child.Path)
	}
	if child.Parent != nil || len(child.Children) > 0 {
		return fmt.Errorf("%w: %s", ErrNodeAttached, child.Path)
	}
	if _, exists := t.index[child.Path]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicatePath, child.Path)
	}

	parent.insertChild(child)
	t.index[child.Path] = child
	child.markDirty()
	return nil
}

// AddNode creates a node at p and links it under path.Dir(p).
func (t *Tree) AddNode(p string, isDirectory bool) (*Node, error) {
	parent := t.index[path.Dir(p)]
	if parent == nil {
		return nil, fmt.Errorf("%w: %s (adding %s)", ErrParentNotFound, path.Dir(p), p)
	}

	n := CreateNode(p, isDirectory)
	if err := t.AddChild(parent, n); err != nil {
		return nil, err
	}
	return n, nil
}

// SetMetadata replaces the node's document and marks it dirty. Hashes of the
// node and its ancestors are stale until recomputed. Documents must survive
// a snapshot round trip, so anything encoding/json rejects is refused.
func (t *Tree) SetMetadata(n *Node, doc Document) error {
	if n.IsDirectory && doc != nil {
		return fmt.Errorf("%w: %s", ErrDirectoryMetadata, n.Path)
	}
	if doc != nil {
		if _, err := json.Marshal(doc); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidMetadata, n.Path, err)
		}
	}
	n.Metadata = doc
	n.markDirty()
	return nil
}

// UpdateNodeMetadata replaces the document at p and recomputes hashes up to
// the root before returning.
func (t *Tree) UpdateNodeMetadata(p string, doc Document) error {
	n := t.index[p]
	if n == nil {
		return fmt.Errorf("%w: %s", ErrNotFound, p)
	}
	if err := t.SetMetadata(n, doc); err != nil {
		return err
	}
	t.RecalculateHashesUpToRoot(n)
	return nil
}

// RemoveNode detaches the node at p, drops it and all its descendants from
// the index and recomputes hashes from the former parent upward. Unknown
// paths and the root are ignored. It reports whether anything was removed.
func (t *Tree) RemoveNode(p string) bool {
	n := t.index[p]
	if n == nil || n == t.root {
		return false
	}

	parent := n.Parent
	parent.detachChild(n)
	t.unindex(n)

	parent.markDirty()
	t.RecalculateHashesUpToRoot(parent)
	return true
}

func (t *Tree) unindex(n *Node) {
	delete(t.index, n.Path)
	for _, child := range n.Children {
		t.unindex(child)
	}
}

// Walk visits every node depth first in path order. Returning false from fn
// skips the node's children.
func (t *Tree) Walk(fn func(n *Node) bool) {
	walk(t.root, fn)
}

func walk(n *Node, fn func(n *Node) bool) {
	if !fn(n) {
		return
	}
	for _, child := range n.Children {
		walk(child, fn)
	}
}
