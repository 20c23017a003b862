package hash

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	stdhash "hash"
	"io"
	"os"

	"github.com/cespare/xxhash/v2"
)

const bufferSize = 32 * 1024 // 32KB buffer for streaming

// Algorithm names a digest used for node hashes.
type Algorithm string

const (
	SHA256 Algorithm = "sha256"
	XXHash Algorithm = "xxhash"
)

// ErrUnknownAlgorithm is returned for algorithm names that are not supported.
var ErrUnknownAlgorithm = errors.New("unknown hash algorithm")

// Func constructs a fresh digest state.
type Func func() stdhash.Hash

// New returns the constructor for the named algorithm.
func New(alg Algorithm) (Func, error) {
	switch alg {
	case SHA256, "":
		return sha256.New, nil
	case XXHash:
		return func() stdhash.Hash { return xxhash.New() }, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, alg)
	}
}

// MustNew is like New but panics on unknown algorithms.
// A missing digest primitive is unrecoverable for the index.
func MustNew(alg Algorithm) Func {
	fn, err := New(alg)
	if err != nil {
		panic(err)
	}
	return fn
}

// HashFile computes the xxHash of a file using streaming for large files
func HashFile(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	return HashReader(file)
}

// HashReader streams r through xxHash and returns the hex digest.
func HashReader(r io.Reader) (string, error) {
	h := xxhash.New()
	buf := make([]byte, bufferSize)

	for {
		n, err := r.Read(buf)
		if n > 0 {
			h.Write(buf[:n])
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("failed to read content: %w", err)
		}
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// XXHashFunc is a custom hash function adapter for go-merkletree
// It converts []byte input to xxHash []byte output
func XXHashFunc(data []byte) ([]byte, error) {
	h := xxhash.New()
	h.Write(data)
	sum := h.Sum64()

	// Convert uint64 to []byte in big-endian format
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, sum)
	return buf, nil
}

// SHA256Func is the sha256 adapter for go-merkletree.
func SHA256Func(data []byte) ([]byte, error) {
	sum := sha256.Sum256(data)
	return sum[:], nil
}

// LeafFunc returns the go-merkletree hash adapter matching alg.
func LeafFunc(alg Algorithm) (func([]byte) ([]byte, error), error) {
	switch alg {
	case SHA256, "":
		return SHA256Func, nil
	case XXHash:
		return XXHashFunc, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, alg)
	}
}
