// Package extract turns repository content references into node metadata.
//
// Each entity kind has its own Extractor; a Registry dispatches on the
// reference's kind tag instead of inspecting values at runtime.
package extract

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"merkle-index/internal/hash"
	"merkle-index/internal/tree"
	"merkle-index/internal/walker"
)

// ErrNoExtractor is returned for kinds without a registered extractor.
var ErrNoExtractor = errors.New("no extractor for kind")

// Extractor produces the metadata document for one content reference.
// Implementations may be slow and may fail per reference.
type Extractor interface {
	Extract(ctx context.Context, ref walker.ContentRef) (tree.Document, error)
}

// ExtractorFunc adapts a function to Extractor.
type ExtractorFunc func(ctx context.Context, ref walker.ContentRef) (tree.Document, error)

func (f ExtractorFunc) Extract(ctx context.Context, ref walker.ContentRef) (tree.Document, error) {
	return f(ctx, ref)
}

// Registry dispatches extraction by kind.
type Registry struct {
	byKind map[walker.Kind]Extractor
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byKind: make(map[walker.Kind]Extractor)}
}

// DefaultRegistry wires the filesystem extractors for every content kind.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(walker.KindFile, FileExtractor{})
	r.Register(walker.KindComposite, CompositeExtractor{})
	r.Register(walker.KindObject, ObjectExtractor{})
	return r
}

// Register binds e to kind, replacing any previous binding.
func (r *Registry) Register(kind walker.Kind, e Extractor) {
	r.byKind[kind] = e
}

// Extract runs the extractor registered for ref.Kind.
func (r *Registry) Extract(ctx context.Context, ref walker.ContentRef) (tree.Document, error) {
	e, ok := r.byKind[ref.Kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoExtractor, ref.Kind)
	}
	return e.Extract(ctx, ref)
}

// FileExtractor describes a plain file by size, extension and content digest.
type FileExtractor struct{}

func (FileExtractor) Extract(ctx context.Context, ref walker.ContentRef) (tree.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return fileDocument(ref.Location)
}

func fileDocument(location string) (tree.Document, error) {
	info, err := os.Stat(location)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", location, err)
	}
	digest, err := hash.HashFile(location)
	if err != nil {
		return nil, fmt.Errorf("failed to hash %s: %w", location, err)
	}

	return tree.Document{
		"size":    info.Size(),
		"ext":     strings.ToLower(filepath.Ext(location)),
		"content": digest,
	}, nil
}

// CompositeExtractor describes a composite asset file. Its objects become
// child nodes with their own documents.
type CompositeExtractor struct{}

func (CompositeExtractor) Extract(ctx context.Context, ref walker.ContentRef) (tree.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	doc, err := fileDocument(ref.Location)
	if err != nil {
		return nil, err
	}
	for k, v := range ref.Attrs {
		doc[k] = v
	}
	return doc, nil
}

// ObjectExtractor copies an object's inline attributes.
type ObjectExtractor struct{}

func (ObjectExtractor) Extract(_ context.Context, ref walker.ContentRef) (tree.Document, error) {
	doc := make(tree.Document, len(ref.Attrs)+1)
	for k, v := range ref.Attrs {
		doc[k] = v
	}
	doc["kind"] = walker.KindObject.String()
	return doc, nil
}
