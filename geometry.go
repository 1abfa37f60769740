package hexdex

import (
	"fmt"

	geom "github.com/peterstace/simplefeatures/geom"
)

// decodeGeometry unmarshals a stored or caller-supplied GeoJSON geometry
// and rejects anything outside {Point, MultiPoint, Polygon, MultiPolygon}
// before the indexer ever sees it.
func decodeGeometry(geoJSON []byte) (geom.Geometry, error) {
	var g geom.Geometry
	if err := g.UnmarshalJSON(geoJSON); err != nil {
		return geom.Geometry{}, fmt.Errorf("hexdex: invalid geojson: %w", err)
	}
	if err := checkSupportedKind(g); err != nil {
		return geom.Geometry{}, err
	}
	return g, nil
}

func checkSupportedKind(g geom.Geometry) error {
	switch g.Type() {
	case geom.TypePoint, geom.TypeMultiPoint, geom.TypePolygon, geom.TypeMultiPolygon:
		return nil
	case geom.TypeLineString, geom.TypeMultiLineString:
		return ErrLineUnsupported
	default:
		// GeometryCollection (and anything else simplefeatures can parse
		// from GeoJSON) is accepted by the public API but not yet
		// indexable, matching the spec's Rect/Triangle/GeometryCollection
		// "todo" treatment.
		return ErrUnsupportedGeometry
	}
}

// containsPolygon reports whether g fully contains cellPoly (used for the
// refinement loop's inner-shape short-circuit, §4.3.b).
func containsPolygon(g geom.Geometry, cellPoly geom.Polygon) (bool, error) {
	return geom.Contains(g, cellPoly.AsGeometry())
}

// polygonContainsPolygon is containsPolygon specialised to two polygons
// (used for the level-zero inner-shape test, the query engine's
// fully-inside disposition, §4.4 step 3, and its double-check pass against
// a stored Polygon/MultiPolygon constituent).
func polygonContainsPolygon(outer, inner geom.Polygon) (bool, error) {
	return geom.Contains(outer.AsGeometry(), inner.AsGeometry())
}

func polygonIntersectsPolygon(a, b geom.Polygon) bool {
	return geom.Intersects(a.AsGeometry(), b.AsGeometry())
}

// containsPoint reports whether poly contains pt, used by the query
// engine's double-check pass for Point/MultiPoint items.
func containsPoint(poly geom.Polygon, pt geom.Point) (bool, error) {
	return geom.Contains(poly.AsGeometry(), pt.AsGeometry())
}

// clipToCell intersects g' with cellPoly, returning the pieces of g' that
// fall inside the cell boundary (§4.3.f, "Split existing occupants").
// Clipping is a pruning device, not a semantic change: callers must keep
// testing the inner-shape short-circuit against the original, unclipped
// geometry.
func clipToCell(g geom.Polygon, cellPoly geom.Polygon) ([]geom.Polygon, error) {
	clipped, err := geom.Intersection(g.AsGeometry(), cellPoly.AsGeometry())
	if err != nil {
		return nil, invalidGeometryErr("clip", err)
	}
	if clipped.IsEmpty() {
		return nil, nil
	}
	return flattenToPolygons(clipped), nil
}

// flattenToPolygons decomposes the result of a boolean operation (which may
// be a Polygon, MultiPolygon, GeometryCollection, or a lower-dimension
// geometry from a boundary-only intersection) into its polygonal pieces.
func flattenToPolygons(g geom.Geometry) []geom.Polygon {
	switch g.Type() {
	case geom.TypePolygon:
		p := g.MustAsPolygon()
		if p.IsEmpty() {
			return nil
		}
		return []geom.Polygon{p}
	case geom.TypeMultiPolygon:
		mp := g.MustAsMultiPolygon()
		n := mp.NumPolygons()
		out := make([]geom.Polygon, 0, n)
		for i := 0; i < n; i++ {
			p := mp.PolygonN(i)
			if !p.IsEmpty() {
				out = append(out, p)
			}
		}
		return out
	case geom.TypeGeometryCollection:
		gc := g.MustAsGeometryCollection()
		n := gc.NumGeometries()
		var out []geom.Polygon
		for i := 0; i < n; i++ {
			out = append(out, flattenToPolygons(gc.GeometryN(i))...)
		}
		return out
	default:
		// Points/lines can appear as a degenerate intersection result
		// (e.g. a polygon touching the cell boundary along a single
		// edge); they contribute no polygonal area to re-tile.
		return nil
	}
}

// asPoint/asMultiPoint/asPolygon/asMultiPolygon extract the typed payload
// the refinement queue needs; callers have already checked g.Type().
func asPoint(g geom.Geometry) geom.Point { return g.MustAsPoint() }
func asMultiPoint(g geom.Geometry) geom.MultiPoint { return g.MustAsMultiPoint() }
func asPolygon(g geom.Geometry) geom.Polygon { return g.MustAsPolygon() }
func asMultiPolygon(g geom.Geometry) geom.MultiPolygon { return g.MustAsMultiPolygon() }

func pointLatLng(pt geom.Point) (lat, lng float64, ok bool) {
	xy, ok := pt.XY()
	if !ok {
		return 0, 0, false
	}
	return xy.Y, xy.X, true
}
