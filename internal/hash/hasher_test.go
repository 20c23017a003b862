package hash

import (
	"bytes"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/cespare/xxhash/v2"
)

func xxhashHex(data []byte) string {
	sum := xxhash.Sum64(data)
	buf := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		buf[i] = byte(sum)
		sum >>= 8
	}
	return hex.EncodeToString(buf)
}

func TestHashFile_Contents(t *testing.T) {
	large := make([]byte, 3*bufferSize+17)
	for i := range large {
		large[i] = byte(i * 7)
	}

	tests := []struct {
		name    string
		content []byte
	}{
		{"empty", nil},
		{"text asset", []byte("material: stone")},
		{"spans several reads", large},
	}

	dir := t.TempDir()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := filepath.Join(dir, tt.name+".bin")
			if err := os.WriteFile(p, tt.content, 0644); err != nil {
				t.Fatalf("Failed to write asset: %v", err)
			}

			got, err := HashFile(p)
			if err != nil {
				t.Fatalf("HashFile failed: %v", err)
			}
			if want := xxhashHex(tt.content); got != want {
				t.Errorf("HashFile = %s, want %s", got, want)
			}

			fromReader, err := HashReader(bytes.NewReader(tt.content))
			if err != nil {
				t.Fatalf("HashReader failed: %v", err)
			}
			if fromReader != got {
				t.Errorf("HashReader %s differs from HashFile %s", fromReader, got)
			}
		})
	}
}

func TestHashFile_Missing(t *testing.T) {
	if _, err := HashFile(filepath.Join(t.TempDir(), "gone.png")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Expected os.ErrNotExist, got %v", err)
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		alg  Algorithm
		size int
	}{
		{SHA256, 32},
		{"", 32},
		{XXHash, 8},
	}

	for _, tt := range tests {
		fn, err := New(tt.alg)
		if err != nil {
			t.Fatalf("New(%q) failed: %v", tt.alg, err)
		}

		a, b := fn(), fn()
		a.Write([]byte("node"))
		b.Write([]byte("node"))
		if !bytes.Equal(a.Sum(nil), b.Sum(nil)) {
			t.Errorf("%q: fresh digests disagree on the same input", tt.alg)
		}
		if a.Size() != tt.size {
			t.Errorf("%q: expected %d byte digest, got %d", tt.alg, tt.size, a.Size())
		}
	}

	if _, err := New("md4"); !errors.Is(err, ErrUnknownAlgorithm) {
		t.Errorf("Expected ErrUnknownAlgorithm, got %v", err)
	}
}

func TestMustNew_PanicsOnUnknown(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("MustNew should panic for an unknown algorithm")
		}
	}()
	MustNew("crc7")
}

func TestLeafFunc(t *testing.T) {
	tests := []struct {
		alg  Algorithm
		want func([]byte) string
	}{
		{SHA256, func(b []byte) string {
			fn, _ := New(SHA256)
			h := fn()
			h.Write(b)
			return hex.EncodeToString(h.Sum(nil))
		}},
		{XXHash, xxhashHex},
	}

	for _, tt := range tests {
		fn, err := LeafFunc(tt.alg)
		if err != nil {
			t.Fatalf("LeafFunc(%q) failed: %v", tt.alg, err)
		}
		for _, input := range [][]byte{{}, []byte("leaf")} {
			out, err := fn(input)
			if err != nil {
				t.Fatalf("%q leaf func failed: %v", tt.alg, err)
			}
			if got, want := hex.EncodeToString(out), tt.want(input); got != want {
				t.Errorf("%q(%q) = %s, want %s", tt.alg, input, got, want)
			}
		}
	}

	if _, err := LeafFunc("blake9"); !errors.Is(err, ErrUnknownAlgorithm) {
		t.Errorf("Expected ErrUnknownAlgorithm, got %v", err)
	}
}
