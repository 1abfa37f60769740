package hexdex

import (
	geom "github.com/peterstace/simplefeatures/geom"
	h3 "github.com/uber/h3-go/v4"
)

// maxResolution is H3's finest resolution. A cell at this resolution is a
// terminal bucket regardless of population (I6).
const maxResolution = 15

// succResolution returns the next finer resolution, or false if res is
// already the grid's maximum.
func succResolution(res int) (int, bool) {
	if res >= maxResolution {
		return 0, false
	}
	return res + 1, true
}

// cellFromLatLng maps a coordinate to the H3 cell containing it at the
// given resolution. Latitudes outside [-90, 90] and longitudes outside
// [-180, 180] (including NaN) are rejected as ErrInvalidLatLng.
func cellFromLatLng(lat, lng float64, res int) (h3.Cell, error) {
	if !(lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180) {
		return 0, ErrInvalidLatLng
	}
	cell, err := h3.LatLngToCell(h3.LatLng{Lat: lat, Lng: lng}, res)
	if err != nil {
		return 0, ErrInvalidLatLng
	}
	return cell, nil
}

// dissolve returns the cell's boundary as a simple planar polygon, the way
// the core spec's Dissolve operation is defined: a single cell's outline,
// suitable for the geometric predicates in geometry.go.
func dissolve(cell h3.Cell) (geom.Polygon, error) {
	boundary, err := cell.Boundary()
	if err != nil {
		return geom.Polygon{}, invalidGeometryErr("dissolve", err)
	}
	return polygonFromLoop(boundary)
}

func polygonFromLoop(loop []h3.LatLng) (geom.Polygon, error) {
	n := len(loop)
	if n < 3 {
		return geom.Polygon{}, invalidGeometryErr("dissolve", errDegenerateBoundary)
	}
	coords := make([]float64, 0, (n+1)*2)
	for _, ll := range loop {
		coords = append(coords, ll.Lng, ll.Lat)
	}
	// Close the ring: simplefeatures requires the first and last points of
	// a LineString ring to coincide.
	coords = append(coords, loop[0].Lng, loop[0].Lat)
	seq := geom.NewSequence(coords, geom.DimXY)
	ring := geom.NewLineString(seq)
	return geom.NewPolygon([]geom.LineString{ring}), nil
}

// tile returns every cell at res whose boundary touches or contains any
// part of poly ("Covers" tiling, §4.2): the contract used both for
// insertion (ensuring every grid cell a shape touches is enumerated) and
// for query descent (ensuring no matching child cell is skipped).
func tile(poly geom.Polygon, res int) ([]h3.Cell, error) {
	h3poly, err := polygonToGeoPolygon(poly)
	if err != nil {
		return nil, err
	}
	cells, err := h3.PolygonToCellsExperimental(h3poly, res, h3.ContainmentOverlapping)
	if err != nil {
		return nil, invalidGeometryErr("tile", err)
	}
	return cells, nil
}

func polygonToGeoPolygon(poly geom.Polygon) (h3.GeoPolygon, error) {
	ext := poly.ExteriorRing()
	loop, err := ringToGeoLoop(ext)
	if err != nil {
		return h3.GeoPolygon{}, err
	}

	n := poly.NumInteriorRings()
	holes := make([]h3.GeoLoop, 0, n)
	for i := 0; i < n; i++ {
		hole, err := ringToGeoLoop(poly.InteriorRingN(i))
		if err != nil {
			return h3.GeoPolygon{}, err
		}
		holes = append(holes, hole)
	}

	return h3.GeoPolygon{GeoLoop: loop, Holes: holes}, nil
}

func ringToGeoLoop(ls geom.LineString) (h3.GeoLoop, error) {
	seq := ls.Coordinates()
	n := seq.Length()
	if n > 0 {
		first := seq.GetXY(0)
		last := seq.GetXY(n - 1)
		if first == last {
			n--
		}
	}
	if n < 3 {
		return nil, invalidGeometryErr("tile", errDegenerateBoundary)
	}
	loop := make(h3.GeoLoop, n)
	for i := 0; i < n; i++ {
		xy := seq.GetXY(i)
		loop[i] = h3.LatLng{Lat: xy.Y, Lng: xy.X}
	}
	return loop, nil
}
