package hexdex

import (
	"fmt"

	geom "github.com/peterstace/simplefeatures/geom"
	h3 "github.com/uber/h3-go/v4"
	bolt "go.etcd.io/bbolt"
)

// DefaultThreshold is T, the maximum number of items a Cell set holds
// before the indexer refines that cell into its children on the next
// insert.
const DefaultThreshold = 200

// DefaultBucket is the bbolt bucket name hexdex creates and operates
// within when the caller does not name one explicitly.
const DefaultBucket = "hexdex"

// Options configures a Writer at construction time. Threshold is fixed for
// the Writer's lifetime once Create returns.
type Options struct {
	// Bucket is the bbolt bucket hexdex stores all three namespaces in.
	// Defaults to DefaultBucket.
	Bucket string
	// Threshold is T. Defaults to DefaultThreshold.
	Threshold uint64
}

func (o Options) withDefaults() Options {
	if o.Bucket == "" {
		o.Bucket = DefaultBucket
	}
	if o.Threshold == 0 {
		o.Threshold = DefaultThreshold
	}
	return o
}

// Writer is the core's single piece of mutable-looking state, and it holds
// none: just configuration. The caller owns the *bolt.DB and every
// transaction passed into AddItem/InShape; Writer holds no connection and
// no process-wide state (§5).
type Writer struct {
	bucket    []byte
	threshold uint64
}

// Create initializes hexdex's bucket idempotently within wtxn and returns a
// Writer bound to opts. Call it once per process against a fresh or
// existing store; Writer values are cheap and stateless beyond opts.
func Create(wtxn *bolt.Tx, opts Options) (*Writer, error) {
	opts = opts.withDefaults()
	if _, err := wtxn.CreateBucketIfNotExists([]byte(opts.Bucket)); err != nil {
		return nil, storageErr("create bucket", err)
	}
	return &Writer{bucket: []byte(opts.Bucket), threshold: opts.Threshold}, nil
}

// Open binds a Writer to opts against an already-initialized store, without
// attempting to create the bucket. Use this from a read-only transaction;
// Create requires a writable one.
func Open(rtxn *bolt.Tx, opts Options) (*Writer, error) {
	opts = opts.withDefaults()
	if rtxn.Bucket([]byte(opts.Bucket)) == nil {
		return nil, storageErr("lookup bucket", fmt.Errorf("bucket %q not found: call Create first", opts.Bucket))
	}
	return &Writer{bucket: []byte(opts.Bucket), threshold: opts.Threshold}, nil
}

func (w *Writer) bucketOf(tx *bolt.Tx) (*bolt.Bucket, error) {
	b := tx.Bucket(w.bucket)
	if b == nil {
		return nil, storageErr("lookup bucket", fmt.Errorf("bucket %q not found: call Create first", w.bucket))
	}
	return b, nil
}

// queueEntry is one pending (re-)insertion: an item id, the geometry to
// place (always Point or Polygon — MultiPoint/MultiPolygon are exploded
// before anything reaches the queue), and the cell to place it in.
type queueEntry struct {
	item  ItemID
	shape geom.Geometry
	cell  h3.Cell
}

// AddItem decomposes geo at the coarsest resolution, places the item in
// cells, and drives adaptive refinement when a cell's population crosses
// the threshold (§4.3).
func (w *Writer) AddItem(wtxn *bolt.Tx, id ItemID, geoJSON []byte) error {
	shape, err := decodeGeometry(geoJSON)
	if err != nil {
		return err
	}

	bucket, err := w.bucketOf(wtxn)
	if err != nil {
		return err
	}

	// Persist the item first: authoritative even if refinement later fails
	// midway, since any query that later touches this id via the
	// double-check path re-reads the geometry from here.
	if err := bucket.Put(encodeItemKey(id), geoJSON); err != nil {
		return storageErr("put item", err)
	}

	queue, err := w.explodeLevelZero(bucket, id, shape)
	if err != nil {
		return err
	}

	for len(queue) > 0 {
		entry := queue[0]
		queue = queue[1:]

		cellPoly, err := dissolve(entry.cell)
		if err != nil {
			return err
		}

		contains, err := containsPolygon(entry.shape, cellPoly)
		if err != nil {
			return invalidGeometryErr("contains test", err)
		}
		if contains {
			if err := w.addToInnerShape(bucket, entry.cell, entry.item); err != nil {
				return err
			}
			continue
		}

		set, err := w.getCellSet(bucket, entry.cell)
		if err != nil {
			return err
		}
		alreadySplit := set.Len() >= w.threshold
		set.Add(entry.item)
		if err := w.putCellSet(bucket, entry.cell, set); err != nil {
			return err
		}
		if set.Len() < w.threshold {
			continue
		}

		nextRes, ok := succResolution(entry.cell.Resolution())
		if !ok {
			// Max resolution reached: terminal bucket regardless of
			// population (I6).
			continue
		}

		more, err := w.reinsertAtNextResolution(entry.item, entry.shape, nextRes)
		if err != nil {
			return err
		}
		queue = append(queue, more...)

		if !alreadySplit {
			// This insertion is the one that tripped the threshold: split
			// every other current occupant of the cell exactly once.
			split, err := w.splitOccupants(bucket, entry.item, set, cellPoly, nextRes)
			if err != nil {
				return err
			}
			queue = append(queue, split...)
		}
	}

	return nil
}

// explodeLevelZero produces the initial work list at resolution 0,
// recording every level-zero cell that a polygon already fully contains
// directly in InnerShape without enqueueing it.
func (w *Writer) explodeLevelZero(bucket *bolt.Bucket, item ItemID, shape geom.Geometry) ([]queueEntry, error) {
	switch shape.Type() {
	case geom.TypePoint:
		pt := asPoint(shape)
		lat, lng, ok := pointLatLng(pt)
		if !ok {
			return nil, nil // empty point: nothing to index
		}
		cell, err := cellFromLatLng(lat, lng, 0)
		if err != nil {
			return nil, err
		}
		return []queueEntry{{item: item, shape: shape, cell: cell}}, nil

	case geom.TypeMultiPoint:
		mp := asMultiPoint(shape)
		n := mp.NumPoints()
		entries := make([]queueEntry, 0, n)
		for i := 0; i < n; i++ {
			pt := mp.PointN(i)
			lat, lng, ok := pointLatLng(pt)
			if !ok {
				continue
			}
			cell, err := cellFromLatLng(lat, lng, 0)
			if err != nil {
				return nil, err
			}
			entries = append(entries, queueEntry{item: item, shape: pt.AsGeometry(), cell: cell})
		}
		return entries, nil

	case geom.TypePolygon:
		return w.explodePolygonLevelZero(bucket, item, asPolygon(shape))

	case geom.TypeMultiPolygon:
		mp := asMultiPolygon(shape)
		n := mp.NumPolygons()
		var entries []queueEntry
		for i := 0; i < n; i++ {
			more, err := w.explodePolygonLevelZero(bucket, item, mp.PolygonN(i))
			if err != nil {
				return nil, err
			}
			entries = append(entries, more...)
		}
		return entries, nil

	default:
		return nil, ErrUnsupportedGeometry
	}
}

func (w *Writer) explodePolygonLevelZero(bucket *bolt.Bucket, item ItemID, poly geom.Polygon) ([]queueEntry, error) {
	cells, err := tile(poly, 0)
	if err != nil {
		return nil, err
	}
	shape := poly.AsGeometry()
	var entries []queueEntry
	for _, cell := range cells {
		cellPoly, err := dissolve(cell)
		if err != nil {
			return nil, err
		}
		contains, err := polygonContainsPolygon(poly, cellPoly)
		if err != nil {
			return nil, invalidGeometryErr("contains test", err)
		}
		if contains {
			if err := w.addToInnerShape(bucket, cell, item); err != nil {
				return nil, err
			}
			continue
		}
		entries = append(entries, queueEntry{item: item, shape: shape, cell: cell})
	}
	return entries, nil
}

// reinsertAtNextResolution re-enqueues the triggering item's own geometry
// at the next finer resolution (§4.3.e).
func (w *Writer) reinsertAtNextResolution(item ItemID, shape geom.Geometry, nextRes int) ([]queueEntry, error) {
	switch shape.Type() {
	case geom.TypePoint:
		lat, lng, ok := pointLatLng(asPoint(shape))
		if !ok {
			return nil, nil
		}
		cell, err := cellFromLatLng(lat, lng, nextRes)
		if err != nil {
			return nil, err
		}
		return []queueEntry{{item: item, shape: shape, cell: cell}}, nil

	case geom.TypePolygon:
		cells, err := tile(asPolygon(shape), nextRes)
		if err != nil {
			return nil, err
		}
		entries := make([]queueEntry, 0, len(cells))
		for _, c := range cells {
			entries = append(entries, queueEntry{item: item, shape: shape, cell: c})
		}
		return entries, nil

	default:
		// MultiPoint/MultiPolygon never reach the refinement queue:
		// level-zero decomposition already exploded them.
		return nil, fmt.Errorf("hexdex: unexpected geometry kind %s in refinement queue", shape.Type())
	}
}

// splitOccupants re-enqueues the portion of every other occupant's
// geometry that falls inside cellPoly, the one-time split triggered when
// an insertion first crosses the threshold (§4.3.f).
func (w *Writer) splitOccupants(bucket *bolt.Bucket, triggering ItemID, occupants *itemSet, cellPoly geom.Polygon, nextRes int) ([]queueEntry, error) {
	var entries []queueEntry
	var splitErr error
	occupants.Iterate(func(other ItemID) bool {
		if other == triggering {
			return true
		}
		geoJSON, ok, err := w.getItem(bucket, other)
		if err != nil {
			splitErr = err
			return false
		}
		if !ok {
			splitErr = fmt.Errorf("hexdex: item %d referenced by cell but missing from store", other)
			return false
		}
		shape, err := decodeGeometry(geoJSON)
		if err != nil {
			splitErr = err
			return false
		}
		more, err := w.splitOneOccupant(other, shape, cellPoly, nextRes)
		if err != nil {
			splitErr = err
			return false
		}
		entries = append(entries, more...)
		return true
	})
	if splitErr != nil {
		return nil, splitErr
	}
	return entries, nil
}

func (w *Writer) splitOneOccupant(item ItemID, shape geom.Geometry, cellPoly geom.Polygon, nextRes int) ([]queueEntry, error) {
	switch shape.Type() {
	case geom.TypePoint:
		lat, lng, ok := pointLatLng(asPoint(shape))
		if !ok {
			return nil, nil
		}
		cell, err := cellFromLatLng(lat, lng, nextRes)
		if err != nil {
			return nil, err
		}
		return []queueEntry{{item: item, shape: shape, cell: cell}}, nil

	case geom.TypeMultiPoint:
		mp := asMultiPoint(shape)
		n := mp.NumPoints()
		var entries []queueEntry
		for i := 0; i < n; i++ {
			pt := mp.PointN(i)
			lat, lng, ok := pointLatLng(pt)
			if !ok {
				continue
			}
			inside, err := containsPoint(cellPoly, pt)
			if err != nil {
				return nil, invalidGeometryErr("contains test", err)
			}
			if !inside {
				continue
			}
			cell, err := cellFromLatLng(lat, lng, nextRes)
			if err != nil {
				return nil, err
			}
			entries = append(entries, queueEntry{item: item, shape: pt.AsGeometry(), cell: cell})
		}
		return entries, nil

	case geom.TypePolygon:
		return w.splitOnePolygon(item, asPolygon(shape), cellPoly, nextRes)

	case geom.TypeMultiPolygon:
		mp := asMultiPolygon(shape)
		n := mp.NumPolygons()
		var entries []queueEntry
		for i := 0; i < n; i++ {
			more, err := w.splitOnePolygon(item, mp.PolygonN(i), cellPoly, nextRes)
			if err != nil {
				return nil, err
			}
			entries = append(entries, more...)
		}
		return entries, nil

	default:
		return nil, ErrUnsupportedGeometry
	}
}

// splitOnePolygon clips poly to cellPoly and re-tiles the pieces, but
// carries the full, unclipped polygon as the queue entry's shape so the
// inner-shape test at the next resolution keeps evaluating against the
// original geometry (clipping is a pruning device, not a semantic change).
func (w *Writer) splitOnePolygon(item ItemID, poly geom.Polygon, cellPoly geom.Polygon, nextRes int) ([]queueEntry, error) {
	pieces, err := clipToCell(poly, cellPoly)
	if err != nil {
		return nil, err
	}
	if len(pieces) == 0 {
		return nil, nil
	}
	shape := poly.AsGeometry()
	var entries []queueEntry
	for _, piece := range pieces {
		cells, err := tile(piece, nextRes)
		if err != nil {
			return nil, err
		}
		for _, c := range cells {
			entries = append(entries, queueEntry{item: item, shape: shape, cell: c})
		}
	}
	return entries, nil
}

func (w *Writer) addToInnerShape(bucket *bolt.Bucket, cell h3.Cell, item ItemID) error {
	set, err := w.getInnerShapeSet(bucket, cell)
	if err != nil {
		return err
	}
	set.Add(item)
	return w.putInnerShapeSet(bucket, cell, set)
}

func (w *Writer) getCellSet(bucket *bolt.Bucket, cell h3.Cell) (*itemSet, error) {
	data := bucket.Get(encodeCellKey(cell))
	if data == nil {
		return newItemSet(), nil
	}
	return decodeItemSet(data)
}

func (w *Writer) putCellSet(bucket *bolt.Bucket, cell h3.Cell, set *itemSet) error {
	data, err := encodeItemSet(set)
	if err != nil {
		return fmt.Errorf("hexdex: encode cell set: %w", err)
	}
	if err := bucket.Put(encodeCellKey(cell), data); err != nil {
		return storageErr("put cell", err)
	}
	return nil
}

func (w *Writer) getInnerShapeSet(bucket *bolt.Bucket, cell h3.Cell) (*itemSet, error) {
	data := bucket.Get(encodeInnerShapeKey(cell))
	if data == nil {
		return newItemSet(), nil
	}
	return decodeItemSet(data)
}

func (w *Writer) putInnerShapeSet(bucket *bolt.Bucket, cell h3.Cell, set *itemSet) error {
	data, err := encodeItemSet(set)
	if err != nil {
		return fmt.Errorf("hexdex: encode inner-shape set: %w", err)
	}
	if err := bucket.Put(encodeInnerShapeKey(cell), data); err != nil {
		return storageErr("put inner shape", err)
	}
	return nil
}

func (w *Writer) getItem(bucket *bolt.Bucket, id ItemID) ([]byte, bool, error) {
	data := bucket.Get(encodeItemKey(id))
	if data == nil {
		return nil, false, nil
	}
	// bbolt values are only valid for the lifetime of the transaction;
	// copy before returning past this call.
	out := make([]byte, len(data))
	copy(out, data)
	return out, true, nil
}
