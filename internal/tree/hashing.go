package tree

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

// Field separators keep adjacent values from running into each other.
var (
	sepField  = []byte{0x1f}
	sepRecord = []byte{0x1e}
	sepGroup  = []byte{0x1d}
)

// computeHash refreshes n and any dirty descendants. Clean nodes with a
// valid cached hash are returned as is, which bounds the work to the
// changed subtrees.
func (t *Tree) computeHash(n *Node) string {
	if !n.dirty && n.hashValid {
		return n.hash
	}

	for _, child := range n.Children {
		t.computeHash(child)
	}

	h := t.newHash()
	h.Write([]byte(n.Path))
	h.Write(sepField)
	if n.IsDirectory {
		h.Write([]byte{'d'})
	} else {
		h.Write([]byte{'f'})
	}
	h.Write(sepGroup)

	keys := make([]string, 0, len(n.Metadata))
	for k := range n.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		h.Write([]byte(k))
		h.Write(sepField)
		h.Write(encodeValue(n.Metadata[k]))
		h.Write(sepRecord)
	}
	h.Write(sepGroup)

	// Children are kept sorted by path, so this is path order.
	for _, child := range n.Children {
		h.Write([]byte(child.hash))
		h.Write(sepRecord)
	}

	n.hash = hex.EncodeToString(h.Sum(nil))
	n.hashValid = true
	n.dirty = false
	return n.hash
}

// encodeValue renders a metadata value canonically. encoding/json sorts map
// keys, so nested documents hash the same regardless of construction order.
func encodeValue(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		return []byte(fmt.Sprintf("%T:%v", v, v))
	}
	return b
}

// RecalculateHashesUpToRoot recomputes n and each ancestor in turn. At every
// ancestor, other dirty children are refreshed too so the root reflects all
// pending changes.
func (t *Tree) RecalculateHashesUpToRoot(n *Node) {
	for cur := n; cur != nil; cur = cur.Parent {
		t.computeHash(cur)
	}
}

// RootHash brings the whole tree up to date and returns the root digest.
func (t *Tree) RootHash() string {
	return t.computeHash(t.root)
}
