package hexdex

import (
	"github.com/RoaringBitmap/roaring/v2"
)

// itemSet is the compact, run-length-compressed item-id set backing every
// Cell and InnerShape value. It is read from the store, mutated locally,
// and written back whole — no aliasing between the in-memory value and the
// bytes on disk.
type itemSet struct {
	bm *roaring.Bitmap
}

func newItemSet() *itemSet {
	return &itemSet{bm: roaring.New()}
}

func (s *itemSet) Add(id ItemID) {
	s.bm.Add(uint32(id))
}

func (s *itemSet) Contains(id ItemID) bool {
	return s.bm.Contains(uint32(id))
}

func (s *itemSet) Len() uint64 {
	return s.bm.GetCardinality()
}

// Iterate calls yield for every item id in ascending order, stopping early
// if yield returns false.
func (s *itemSet) Iterate(yield func(ItemID) bool) {
	it := s.bm.Iterator()
	for it.HasNext() {
		if !yield(ItemID(it.Next())) {
			return
		}
	}
}

// ToSlice returns all item ids in ascending order.
func (s *itemSet) ToSlice() []ItemID {
	raw := s.bm.ToArray()
	out := make([]ItemID, len(raw))
	for i, v := range raw {
		out[i] = ItemID(v)
	}
	return out
}

// Or unions other into s, in place.
func (s *itemSet) Or(other *itemSet) {
	s.bm.Or(other.bm)
}

// AndNot removes every id present in other from s, in place.
func (s *itemSet) AndNot(other *itemSet) {
	s.bm.AndNot(other.bm)
}

func encodeItemSet(s *itemSet) ([]byte, error) {
	return s.bm.ToBytes()
}

func decodeItemSet(data []byte) (*itemSet, error) {
	bm := roaring.New()
	if len(data) > 0 {
		if _, err := bm.FromBuffer(data); err != nil {
			return nil, err
		}
		// FromBuffer aliases data; clone so the set owns independent memory
		// once the caller's buffer (a bbolt value, valid only within its
		// transaction) goes away.
		bm = bm.Clone()
	}
	return &itemSet{bm: bm}, nil
}
