package walker

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"
)

// ErrInvalidRoot is returned when the repository root is not a directory.
var ErrInvalidRoot = errors.New("invalid repository root")

// Kind tags the entity behind a content reference. The set is closed;
// extractors are registered per kind.
type Kind uint8

const (
	KindDirectory Kind = iota
	KindFile
	KindComposite
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindDirectory:
		return "directory"
	case KindFile:
		return "file"
	case KindComposite:
		return "composite"
	case KindObject:
		return "object"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// ContentRef is an opaque handle a content extractor turns into metadata.
type ContentRef struct {
	Kind     Kind
	Identity string         // object identity; equal for aliases of one entity
	Location string         // backing file on disk
	Attrs    map[string]any // inline attributes, if any
}

// Entry is a discovered repository entry. Hierarchical entries carry
// children; a child may alias an entry reachable elsewhere, including an
// ancestor, so consumers must track identities to terminate.
type Entry struct {
	Name     string
	Path     string
	Ref      ContentRef
	Children []*Entry
}

// Hierarchical reports whether e has nested entries to process.
func (e *Entry) Hierarchical() bool {
	return e.Ref.Kind == KindComposite
}

// Repository is the source of entries for a scan. Paths are slash
// separated and relative to Root.
type Repository interface {
	Root() string
	ReadDir(ctx context.Context, dir string) (dirs, files []string, err error)
	Resolve(ctx context.Context, p string) (*Entry, error)
}

// Option configures an FS repository.
type Option func(*FS)

// WithExclusions sets exclusion patterns. Patterns ending in "/" match
// directory names anywhere in the path; others are globs on the base name,
// or on the whole relative path if they contain "/".
func WithExclusions(patterns ...string) Option {
	return func(f *FS) {
		f.exclusions = patterns
	}
}

// WithCompositeExtensions sets the file extensions parsed as composite
// YAML assets.
func WithCompositeExtensions(exts ...string) Option {
	return func(f *FS) {
		f.composite = make(map[string]bool, len(exts))
		for _, ext := range exts {
			f.composite[strings.ToLower(ext)] = true
		}
	}
}

// WithLogger sets the logger for skipped entries. A nil logger falls back
// to slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(f *FS) {
		if l != nil {
			f.logger = l
		}
	}
}

// FS is a Repository over a directory on disk.
type FS struct {
	root       string
	exclusions []string
	composite  map[string]bool
	logger     *slog.Logger
}

// DefaultCompositeExtensions lists the extensions parsed as composites
// when none are configured.
var DefaultCompositeExtensions = []string{".prefab", ".scene"}

// NewFS opens a repository rooted at dir.
func NewFS(dir string, opts ...Option) (*FS, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRoot, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRoot, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrInvalidRoot, abs)
	}

	f := &FS{root: abs, logger: slog.Default()}
	WithCompositeExtensions(DefaultCompositeExtensions...)(f)
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Root returns the tree path of the repository root.
func (f *FS) Root() string {
	return "."
}

func (f *FS) abs(p string) string {
	return filepath.Join(f.root, filepath.FromSlash(p))
}

// ReadDir lists one directory. Excluded entries and symlinked directories
// are skipped; the latter would let the walk escape or loop. Names that are
// not valid UTF-8 are skipped too, since snapshots could not record their
// paths faithfully.
func (f *FS) ReadDir(ctx context.Context, dir string) ([]string, []string, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	entries, err := os.ReadDir(f.abs(dir))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read directory %s: %w", dir, err)
	}

	var dirs, files []string
	for _, d := range entries {
		if !utf8.ValidString(d.Name()) {
			f.logger.Warn("skipping entry with non UTF-8 name",
				slog.String("dir", dir),
				slog.String("name", fmt.Sprintf("%q", d.Name())),
			)
			continue
		}
		rel := path.Join(dir, d.Name())
		isDir := d.IsDir()

		if d.Type()&fs.ModeSymlink != 0 {
			info, err := os.Stat(f.abs(rel))
			if err != nil || info.IsDir() {
				continue
			}
		}

		if shouldExclude(rel, isDir, f.exclusions) {
			continue
		}
		if isDir {
			dirs = append(dirs, rel)
		} else if d.Type().IsRegular() || d.Type()&fs.ModeSymlink != 0 {
			files = append(files, rel)
		}
	}

	sort.Strings(dirs)
	sort.Strings(files)
	return dirs, files, nil
}

// Resolve classifies the file at p and, for composites, parses its objects.
func (f *FS) Resolve(ctx context.Context, p string) (*Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	location := f.abs(p)
	// A symlink keeps the identity of the link itself, so it never shadows
	// the file it points to.
	info, err := os.Lstat(location)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", p, err)
	}
	if info.Mode()&fs.ModeSymlink != 0 {
		if _, err := os.Stat(location); err != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", p, err)
		}
	}

	entry := &Entry{
		Name: path.Base(p),
		Path: p,
		Ref: ContentRef{
			Kind:     KindFile,
			Identity: fileIdentity(p, info),
			Location: location,
		},
	}

	if !f.composite[strings.ToLower(path.Ext(p))] {
		return entry, nil
	}

	data, err := os.ReadFile(location)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", p, err)
	}
	children, err := parseComposite(data, location)
	if err != nil {
		return nil, fmt.Errorf("failed to parse composite %s: %w", p, err)
	}

	entry.Ref.Kind = KindComposite
	entry.Ref.Attrs = map[string]any{
		"format":  "yaml",
		"objects": len(children),
	}
	entry.Children = children
	return entry, nil
}

func shouldExclude(relPath string, isDir bool, exclusions []string) bool {
	for _, pattern := range exclusions {
		// Handle directory exclusions (patterns ending with /)
		if strings.HasSuffix(pattern, "/") {
			dirPattern := strings.TrimSuffix(pattern, "/")
			parts := strings.Split(relPath, "/")
			if !isDir {
				parts = parts[:len(parts)-1]
			}
			for _, part := range parts {
				if matched, _ := path.Match(dirPattern, part); matched || part == dirPattern {
					return true
				}
			}
			continue
		}

		// Handle file pattern exclusions
		if matched, err := path.Match(pattern, path.Base(relPath)); err == nil && matched {
			return true
		}
		// Also try matching against the full relative path for patterns with /
		if strings.Contains(pattern, "/") {
			if matched, err := path.Match(pattern, relPath); err == nil && matched {
				return true
			}
		}
	}
	return false
}
