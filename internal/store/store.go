// Package store persists the published state of a diff engine between
// process runs, keyed by namespace.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"

	"github.com/dgraph-io/badger/v4"

	"merkle-index/internal/compare"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("store is closed")

const (
	stablePrefix = "stable/"
	rootPrefix   = "root/"
)

// Config configures the underlying database.
type Config struct {
	// Path is the database directory. Ignored when InMemory is true.
	Path string

	// InMemory keeps everything in memory. Useful for testing.
	InMemory bool

	// SyncWrites fsyncs every write.
	SyncWrites bool

	// Logger receives badger's own log output. Nil silences it.
	Logger *slog.Logger
}

func DefaultConfig(path string) Config {
	return Config{
		Path:       path,
		SyncWrites: true,
	}
}

func InMemoryConfig() Config {
	return Config{InMemory: true}
}

type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

// Store holds stable maps and root hashes per namespace.
type Store struct {
	db *badger.DB
}

// Open opens or creates the database described by cfg.
func Open(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent store")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create store directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)

	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	return &Store{db: db}, nil
}

// OpenInMemory opens a store that lives only as long as the process.
func OpenInMemory() (*Store, error) {
	return Open(InMemoryConfig())
}

// Close releases the database. It is safe to call more than once.
func (s *Store) Close() error {
	if s.db == nil || s.db.IsClosed() {
		return nil
	}
	return s.db.Close()
}

// Namespaces are escaped so one cannot prefix another.
func stableKey(namespace, p string) []byte {
	return []byte(stablePrefix + url.PathEscape(namespace) + "/" + p)
}

func rootKey(namespace string) []byte {
	return []byte(rootPrefix + url.PathEscape(namespace))
}

func (s *Store) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.db.IsClosed() {
		return ErrClosed
	}
	return nil
}

// Load returns the stable map saved under namespace. An unknown namespace
// yields an empty map.
func (s *Store) Load(ctx context.Context, namespace string) (*compare.StableMap, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}

	m := compare.NewStableMap()
	prefix := stableKey(namespace, "")
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			p := string(item.Key()[len(prefix):])
			if err := item.Value(func(val []byte) error {
				m.Put(string(val), p)
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load stable map %s: %w", namespace, err)
	}
	return m, nil
}

// Save replaces the stable map stored under namespace with m. Large maps
// are written in several batches, so a crash mid-save can leave a mix of
// old and new entries; the next diff corrects it.
func (s *Store) Save(ctx context.Context, namespace string, m *compare.StableMap) error {
	if err := s.check(ctx); err != nil {
		return err
	}

	prefix := stableKey(namespace, "")
	var stale [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			p := string(it.Item().Key()[len(prefix):])
			if _, ok := m.ID(p); !ok {
				stale = append(stale, it.Item().KeyCopy(nil))
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("scan stable map %s: %w", namespace, err)
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()

	for _, key := range stale {
		if err := wb.Delete(key); err != nil {
			return fmt.Errorf("delete stale entry: %w", err)
		}
	}
	for _, entry := range m.Entries() {
		if err := wb.Set(stableKey(namespace, entry.Path), []byte(entry.ID)); err != nil {
			return fmt.Errorf("write entry %s: %w", entry.Path, err)
		}
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("save stable map %s: %w", namespace, err)
	}
	return nil
}

// SetRoot records the root hash of the last published tree.
func (s *Store) SetRoot(ctx context.Context, namespace, rootHash string) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(rootKey(namespace), []byte(rootHash))
	})
}

// Root returns the root hash recorded for namespace, or "" if none.
func (s *Store) Root(ctx context.Context, namespace string) (string, error) {
	if err := s.check(ctx); err != nil {
		return "", err
	}

	var root string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(rootKey(namespace))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		val, err := item.ValueCopy(nil)
		root = string(val)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("load root %s: %w", namespace, err)
	}
	return root, nil
}
