package scanner

import (
	"github.com/RoaringBitmap/roaring"
)

// identitySet records which entities a scan has processed. Identities are
// interned into dense slots so the processed set is a compact bitmap.
type identitySet struct {
	slots map[string]uint32
	seen  *roaring.Bitmap
}

func newIdentitySet() *identitySet {
	return &identitySet{
		slots: make(map[string]uint32),
		seen:  roaring.New(),
	}
}

func (s *identitySet) slot(id string) uint32 {
	if slot, ok := s.slots[id]; ok {
		return slot
	}
	slot := uint32(len(s.slots))
	s.slots[id] = slot
	return slot
}

// visit marks id processed and reports whether this was the first visit.
// An empty identity is never deduplicated.
func (s *identitySet) visit(id string) bool {
	if id == "" {
		return true
	}
	return s.seen.CheckedAdd(s.slot(id))
}

// processed returns how many distinct identities were visited.
func (s *identitySet) processed() uint64 {
	return s.seen.GetCardinality()
}
