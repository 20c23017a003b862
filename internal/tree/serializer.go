package tree

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"merkle-index/internal/hash"
)

const generator = "merkle-index"

// SerializedTree is the on-disk envelope of a snapshot.
type SerializedTree struct {
	Generator string         `json:"generator"`
	Created   time.Time      `json:"created"`
	Algorithm hash.Algorithm `json:"algorithm"`
	RootHash  string         `json:"root_hash"`

	// ContentRoot anchors inclusion proofs. Empty with fewer than two
	// content nodes.
	ContentRoot string `json:"content_root,omitempty"`

	Nodes int           `json:"nodes"`
	Tree  *SnapshotNode `json:"tree"`
}

// Save writes a snapshot of t to path, creating parent directories.
func Save(t *Tree, path string) error {
	snap := t.Snapshot()
	contentRoot, err := ContentRoot(snap, t.Algorithm())
	if err != nil && !errors.Is(err, ErrTooFewLeaves) {
		return fmt.Errorf("failed to compute content root: %w", err)
	}
	serialized := SerializedTree{
		Generator:   generator,
		Created:     time.Now().UTC(),
		Algorithm:   t.Algorithm(),
		RootHash:    snap.Hash,
		ContentRoot: contentRoot,
		Nodes:       t.Len(),
		Tree:        snap,
	}

	data, err := json.MarshalIndent(serialized, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal tree: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	return nil
}

// Load reads a snapshot envelope written by Save.
func Load(path string) (*SerializedTree, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var serialized SerializedTree
	if err := json.Unmarshal(data, &serialized); err != nil {
		return nil, fmt.Errorf("failed to unmarshal tree: %w", err)
	}
	if serialized.Tree == nil {
		return nil, fmt.Errorf("failed to unmarshal tree: %s has no tree", path)
	}
	if serialized.Algorithm == "" {
		serialized.Algorithm = hash.SHA256
	}

	return &serialized, nil
}
