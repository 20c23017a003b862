package compare

import (
	"sort"
)

// StableEntry is one published (id, path) pair.
type StableEntry struct {
	ID   string
	Path string
}

// StableMap records, for every content node last published downstream, the
// hash it was published under. Ids and paths are both unique.
type StableMap struct {
	byID   map[string]string
	byPath map[string]string
}

// NewStableMap returns an empty map.
func NewStableMap() *StableMap {
	return &StableMap{
		byID:   make(map[string]string),
		byPath: make(map[string]string),
	}
}

// Put maps id to p, dropping any previous pairing of either.
func (m *StableMap) Put(id, p string) {
	if old, ok := m.byPath[p]; ok {
		delete(m.byID, old)
	}
	if old, ok := m.byID[id]; ok {
		delete(m.byPath, old)
	}
	m.byID[id] = p
	m.byPath[p] = id
}

// Delete removes the entry for p.
func (m *StableMap) Delete(p string) {
	if id, ok := m.byPath[p]; ok {
		delete(m.byID, id)
		delete(m.byPath, p)
	}
}

// ID returns the id last published for p.
func (m *StableMap) ID(p string) (string, bool) {
	id, ok := m.byPath[p]
	return id, ok
}

// Path returns the path published under id.
func (m *StableMap) Path(id string) (string, bool) {
	p, ok := m.byID[id]
	return p, ok
}

// Len returns the number of entries.
func (m *StableMap) Len() int {
	return len(m.byID)
}

// Entries returns all pairs sorted by path.
func (m *StableMap) Entries() []StableEntry {
	entries := make([]StableEntry, 0, len(m.byID))
	for id, p := range m.byID {
		entries = append(entries, StableEntry{ID: id, Path: p})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Path < entries[j].Path
	})
	return entries
}

// Clone returns an independent copy.
func (m *StableMap) Clone() *StableMap {
	c := &StableMap{
		byID:   make(map[string]string, len(m.byID)),
		byPath: make(map[string]string, len(m.byPath)),
	}
	for id, p := range m.byID {
		c.byID[id] = p
		c.byPath[p] = id
	}
	return c
}
