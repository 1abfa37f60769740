package hexdex

import (
	"bytes"

	h3 "github.com/uber/h3-go/v4"
	bolt "go.etcd.io/bbolt"
)

// Stats reports coarse index diagnostics (§6, §9: "supplement dropped
// features" — kept from the original source's Stats struct).
type Stats struct {
	TotalItems        int
	TotalCells        int
	CellsByResolution map[int]int
}

// Stats scans every Cell entry and reports totals by resolution. It is a
// diagnostic operation, not on any query hot path.
func (w *Writer) Stats(rtxn *bolt.Tx) (Stats, error) {
	bucket, err := w.bucketOf(rtxn)
	if err != nil {
		return Stats{}, err
	}

	stats := Stats{CellsByResolution: make(map[int]int)}

	c := bucket.Cursor()
	prefix := itemPrefix()
	for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
		stats.TotalItems++
	}

	prefix = cellPrefix()
	for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
		cell, err := decodeCellFromKey(k)
		if err != nil {
			return Stats{}, err
		}
		stats.TotalCells++
		stats.CellsByResolution[cell.Resolution()]++
	}

	return stats, nil
}

// Item returns the geometry stored for id, and false if no such item
// exists.
func (w *Writer) Item(rtxn *bolt.Tx, id ItemID) ([]byte, bool, error) {
	bucket, err := w.bucketOf(rtxn)
	if err != nil {
		return nil, false, err
	}
	return w.getItem(bucket, id)
}

// Items iterates over every (id, geometry) pair in the store, in ascending
// id order. Iteration stops early if yield returns false.
func (w *Writer) Items(rtxn *bolt.Tx, yield func(ItemID, []byte) bool) error {
	bucket, err := w.bucketOf(rtxn)
	if err != nil {
		return err
	}
	c := bucket.Cursor()
	prefix := itemPrefix()
	for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
		id, err := decodeItemIDFromKey(k)
		if err != nil {
			return err
		}
		geoJSON := make([]byte, len(v))
		copy(geoJSON, v)
		if !yield(id, geoJSON) {
			return nil
		}
	}
	return nil
}

// InnerDBCells iterates over every Cell entry (diagnostics).
func (w *Writer) InnerDBCells(rtxn *bolt.Tx, yield func(h3.Cell, []ItemID) bool) error {
	return w.iterateNamespace(rtxn, cellPrefix(), yield)
}

// InnerShapeCells iterates over every InnerShape entry (diagnostics).
func (w *Writer) InnerShapeCells(rtxn *bolt.Tx, yield func(h3.Cell, []ItemID) bool) error {
	return w.iterateNamespace(rtxn, innerShapePrefix(), yield)
}

func (w *Writer) iterateNamespace(rtxn *bolt.Tx, prefix []byte, yield func(h3.Cell, []ItemID) bool) error {
	bucket, err := w.bucketOf(rtxn)
	if err != nil {
		return err
	}
	c := bucket.Cursor()
	for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
		cell, err := decodeCellFromKey(k)
		if err != nil {
			return err
		}
		set, err := decodeItemSet(v)
		if err != nil {
			return err
		}
		if !yield(cell, set.ToSlice()) {
			return nil
		}
	}
	return nil
}
