package hexdex

import (
	"fmt"

	"github.com/RoaringBitmap/roaring/v2"
	geom "github.com/peterstace/simplefeatures/geom"
	h3 "github.com/uber/h3-go/v4"
	bolt "go.etcd.io/bbolt"
)

// FilteringStep tags an event delivered to an Inspector during InShape, for
// observability only; it carries no semantic weight.
type FilteringStep int

const (
	// NotPresentInDB: the cell has no Cell entry (absent from the index).
	NotPresentInDB FilteringStep = iota
	// OutsideOfShape: the cell's dissolved polygon does not intersect the
	// query polygon at all.
	OutsideOfShape
	// Returned: the query polygon fully contains the cell; all of its
	// items are accepted unconditionally.
	Returned
	// RequireDoubleCheck: the cell intersects but is not contained by the
	// query polygon, and is too small (or at maximum resolution) to
	// refine further; its items go into the double-check set.
	RequireDoubleCheck
	// DeepDive: the cell intersects but is not contained, and is large
	// enough to refine; its children are enqueued.
	DeepDive
)

func (s FilteringStep) String() string {
	switch s {
	case NotPresentInDB:
		return "not-present"
	case OutsideOfShape:
		return "outside"
	case Returned:
		return "returned"
	case RequireDoubleCheck:
		return "double-check"
	case DeepDive:
		return "deep-dive"
	default:
		return "unknown"
	}
}

// Inspector observes query traversal; it must not mutate store state and is
// invoked synchronously on the calling goroutine. A nil Inspector is a
// no-op.
type Inspector func(step FilteringStep, cell h3.Cell)

// tooLargeChildThreshold is the "more than 3 children" heuristic: once a
// descent step yields more than 3 children (fewer than a hexagonal cell's
// natural fan-out of 7, so the cutoff is deliberately loose), subsequent
// descents re-tile against the cell boundary instead of
// the (much larger) query polygon, bounding per-step work. This is a
// pragmatic cutoff, not a proven bound (§9); it must never compromise
// completeness (P2), only the cost of reaching it.
const tooLargeChildThreshold = 3

// InShape returns the set of item ids whose geometry intersects or is
// contained in polygon (§4.4): hierarchical descent of the cell grid
// bounded by polygon, followed by a per-item geometric verification pass
// over every cell that could only be conservatively matched.
func (w *Writer) InShape(rtxn *bolt.Tx, polygon geom.Polygon, inspector Inspector) (*roaring.Bitmap, error) {
	if inspector == nil {
		inspector = func(FilteringStep, h3.Cell) {}
	}

	bucket, err := w.bucketOf(rtxn)
	if err != nil {
		return nil, err
	}

	seed, err := tile(polygon, 0)
	if err != nil {
		return nil, err
	}

	result := newItemSet()
	doubleCheck := newItemSet()
	toExplore := append([]h3.Cell(nil), seed...)
	alreadyExplored := make(map[h3.Cell]struct{}, len(seed))
	for _, c := range seed {
		alreadyExplored[c] = struct{}{}
	}
	tooLarge := false

	for len(toExplore) > 0 {
		cell := toExplore[0]
		toExplore = toExplore[1:]

		cellPoly, err := dissolve(cell)
		if err != nil {
			return nil, err
		}

		// InnerShape membership is gated on the same intersects test as the
		// Cell path: once too_large switches tiling to the cell boundary
		// instead of the query polygon, a child cell can lie inside its
		// parent yet outside the query polygon, and its InnerShape items
		// must not be accepted.
		if !polygonIntersectsPolygon(polygon, cellPoly) {
			inspector(OutsideOfShape, cell)
			continue
		}

		innerSet, err := w.getInnerShapeSet(bucket, cell)
		if err != nil {
			return nil, err
		}
		result.Or(innerSet)

		cellSet, err := w.getCellSetIfPresent(bucket, cell)
		if err != nil {
			return nil, err
		}
		if cellSet == nil {
			inspector(NotPresentInDB, cell)
			continue
		}

		polyContainsCell, err := polygonContainsPolygon(polygon, cellPoly)
		if err != nil {
			return nil, invalidGeometryErr("contains test", err)
		}
		if polyContainsCell {
			inspector(Returned, cell)
			result.Or(cellSet)
			continue
		}

		if cellSet.Len() < w.threshold || cell.Resolution() == maxResolution {
			inspector(RequireDoubleCheck, cell)
			doubleCheck.Or(cellSet)
			continue
		}

		inspector(DeepDive, cell)
		nextRes, ok := succResolution(cell.Resolution())
		if !ok {
			// Unreachable: Resolution() == maxResolution was already
			// handled above, but keep the check explicit and safe.
			continue
		}
		source := polygon
		if tooLarge {
			source = cellPoly
		}
		children, err := tile(source, nextRes)
		if err != nil {
			return nil, err
		}
		for _, child := range children {
			if _, seen := alreadyExplored[child]; !seen {
				alreadyExplored[child] = struct{}{}
				toExplore = append(toExplore, child)
			}
		}
		if len(children) > tooLargeChildThreshold {
			tooLarge = true
		}
	}

	// Items already accepted via a fully-contained cell don't need a
	// redundant per-item test.
	doubleCheck.AndNot(result)

	var verifyErr error
	doubleCheck.Iterate(func(id ItemID) bool {
		geoJSON, ok, err := w.getItem(bucket, id)
		if err != nil {
			verifyErr = err
			return false
		}
		if !ok {
			verifyErr = fmt.Errorf("hexdex: item %d referenced by cell but missing from store", id)
			return false
		}
		shape, err := decodeGeometry(geoJSON)
		if err != nil {
			verifyErr = err
			return false
		}
		ok, err = verifyAgainstQuery(polygon, shape)
		if err != nil {
			verifyErr = err
			return false
		}
		if ok {
			result.Add(id)
		}
		return true
	})
	if verifyErr != nil {
		return nil, verifyErr
	}

	return result.bm, nil
}

// verifyAgainstQuery is the post-descent double-check predicate (§4.4):
// Point accepted iff contained, MultiPoint iff any constituent is
// contained, Polygon/MultiPolygon iff contained or intersecting.
func verifyAgainstQuery(query geom.Polygon, shape geom.Geometry) (bool, error) {
	switch shape.Type() {
	case geom.TypePoint:
		return containsPoint(query, asPoint(shape))

	case geom.TypeMultiPoint:
		mp := asMultiPoint(shape)
		n := mp.NumPoints()
		for i := 0; i < n; i++ {
			inside, err := containsPoint(query, mp.PointN(i))
			if err != nil {
				return false, invalidGeometryErr("contains test", err)
			}
			if inside {
				return true, nil
			}
		}
		return false, nil

	case geom.TypePolygon:
		return polygonMatchesQuery(query, asPolygon(shape))

	case geom.TypeMultiPolygon:
		mp := asMultiPolygon(shape)
		n := mp.NumPolygons()
		for i := 0; i < n; i++ {
			ok, err := polygonMatchesQuery(query, mp.PolygonN(i))
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil

	default:
		return false, ErrUnsupportedGeometry
	}
}

func polygonMatchesQuery(query, poly geom.Polygon) (bool, error) {
	contains, err := polygonContainsPolygon(query, poly)
	if err != nil {
		return false, invalidGeometryErr("contains test", err)
	}
	if contains {
		return true, nil
	}
	return polygonIntersectsPolygon(query, poly), nil
}

func (w *Writer) getCellSetIfPresent(bucket *bolt.Bucket, cell h3.Cell) (*itemSet, error) {
	data := bucket.Get(encodeCellKey(cell))
	if data == nil {
		return nil, nil
	}
	return decodeItemSet(data)
}
