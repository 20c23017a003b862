package tree

import (
	"encoding/hex"
	"errors"
	"fmt"
	"sort"

	mt "github.com/txaty/go-merkletree"

	"merkle-index/internal/hash"
)

// ErrTooFewLeaves is returned when fewer than two content nodes exist.
// go-merkletree needs at least two blocks to build a tree.
var ErrTooFewLeaves = errors.New("at least two content nodes are required for a proof")

// ErrNoContentRoot is returned when a snapshot has no published content root
// to check a proof against.
var ErrNoContentRoot = errors.New("snapshot has no content root")

// leaf binds a content node's path to its hash so a proof pins both.
type leaf struct {
	path string
	hash string
}

func (l leaf) Serialize() ([]byte, error) {
	return []byte(l.path + "\x00" + l.hash), nil
}

// Proof shows that a path with a given hash belongs to a published snapshot.
type Proof struct {
	Path     string   `json:"path"`
	Hash     string   `json:"hash"`
	Root     string   `json:"root"`
	Siblings []string `json:"siblings"`
	Index    uint32   `json:"index"`
}

func proofConfig(alg hash.Algorithm) (*mt.Config, error) {
	fn, err := hash.LeafFunc(alg)
	if err != nil {
		return nil, err
	}
	return &mt.Config{
		HashFunc: fn,
		Mode:     mt.ModeProofGenAndTreeBuild,
	}, nil
}

func contentLeaves(snap *SnapshotNode) []leaf {
	var leaves []leaf
	snap.Walk(func(s *SnapshotNode) {
		if !s.IsDirectory && s.Document != nil {
			leaves = append(leaves, leaf{path: s.Path, hash: s.Hash})
		}
	})
	sort.Slice(leaves, func(i, j int) bool { return leaves[i].path < leaves[j].path })
	return leaves
}

func contentTree(snap *SnapshotNode, alg hash.Algorithm) (*mt.MerkleTree, []leaf, error) {
	leaves := contentLeaves(snap)
	if len(leaves) < 2 {
		return nil, nil, ErrTooFewLeaves
	}
	blocks := make([]mt.DataBlock, 0, len(leaves))
	for _, l := range leaves {
		blocks = append(blocks, l)
	}

	cfg, err := proofConfig(alg)
	if err != nil {
		return nil, nil, err
	}
	mtree, err := mt.New(cfg, blocks)
	if err != nil {
		return nil, nil, fmt.Errorf("build merkle tree: %w", err)
	}
	return mtree, leaves, nil
}

// ContentRoot returns the root of the flat Merkle tree over the content
// nodes of snap, in path order. Save records it so proofs can be checked
// against a published value.
func ContentRoot(snap *SnapshotNode, alg hash.Algorithm) (string, error) {
	mtree, _, err := contentTree(snap, alg)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(mtree.Root), nil
}

// BuildProof returns the inclusion proof for p in the content tree of snap.
func BuildProof(snap *SnapshotNode, alg hash.Algorithm, p string) (*Proof, error) {
	mtree, leaves, err := contentTree(snap, alg)
	if err != nil {
		return nil, err
	}

	var target *leaf
	for i := range leaves {
		if leaves[i].path == p {
			target = &leaves[i]
			break
		}
	}
	if target == nil {
		return nil, fmt.Errorf("%w: %s has no content", ErrNotFound, p)
	}

	proof, err := mtree.Proof(*target)
	if err != nil {
		return nil, fmt.Errorf("generate proof for %s: %w", p, err)
	}

	siblings := make([]string, 0, len(proof.Siblings))
	for _, s := range proof.Siblings {
		siblings = append(siblings, hex.EncodeToString(s))
	}
	return &Proof{
		Path:     target.path,
		Hash:     target.hash,
		Root:     hex.EncodeToString(mtree.Root),
		Siblings: siblings,
		Index:    proof.Path,
	}, nil
}

// VerifyProof checks p against contentRoot, the content root published with
// a snapshot. A proof carrying any other root is rejected without hashing.
func VerifyProof(p *Proof, alg hash.Algorithm, contentRoot string) (bool, error) {
	if contentRoot == "" {
		return false, ErrNoContentRoot
	}
	if p.Root != contentRoot {
		return false, nil
	}

	cfg, err := proofConfig(alg)
	if err != nil {
		return false, err
	}
	root, err := hex.DecodeString(contentRoot)
	if err != nil {
		return false, fmt.Errorf("decode root: %w", err)
	}
	siblings := make([][]byte, 0, len(p.Siblings))
	for _, s := range p.Siblings {
		b, err := hex.DecodeString(s)
		if err != nil {
			return false, fmt.Errorf("decode sibling: %w", err)
		}
		siblings = append(siblings, b)
	}

	return mt.Verify(leaf{path: p.Path, hash: p.Hash}, &mt.Proof{
		Siblings: siblings,
		Path:     p.Index,
	}, root, cfg)
}
