package hexdex

import "errors"

// Sentinel errors surfaced by AddItem and InShape. Callers compare with
// errors.Is; none of these are retried or swallowed internally.
var (
	// ErrInvalidLatLng is returned when a coordinate falls outside the
	// valid geodesic domain (latitude outside [-90, 90], longitude outside
	// [-180, 180], or otherwise rejected by H3).
	ErrInvalidLatLng = errors.New("hexdex: invalid latitude/longitude")

	// ErrLineUnsupported is returned for Line, LineString or
	// MultiLineString geometries, which this index never supports.
	ErrLineUnsupported = errors.New("hexdex: line geometries are not supported")

	// ErrUnsupportedGeometry is returned for geometry kinds the public API
	// accepts syntactically but cannot yet index (Rect, Triangle,
	// GeometryCollection).
	ErrUnsupportedGeometry = errors.New("hexdex: unsupported geometry kind")
)

// StorageError wraps any fault returned by the underlying bbolt
// transaction. It also reports a missing hexdex bucket (Open, or any
// operation on a store that Create never initialized); no other fault
// originating in this package's own logic is reported as a StorageError.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return "hexdex: storage error during " + e.Op + ": " + e.Err.Error()
}

func (e *StorageError) Unwrap() error { return e.Err }

func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}

// InvalidGeometryError wraps a fault raised by the H3 tiling/dissolve
// library for a self-intersecting, empty, or otherwise malformed polygon.
type InvalidGeometryError struct {
	Op  string
	Err error
}

func (e *InvalidGeometryError) Error() string {
	return "hexdex: invalid geometry during " + e.Op + ": " + e.Err.Error()
}

func (e *InvalidGeometryError) Unwrap() error { return e.Err }

func invalidGeometryErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &InvalidGeometryError{Op: op, Err: err}
}

// errDegenerateBoundary marks a cell or ring whose boundary has fewer than
// three distinct vertices, which cannot form a polygon.
var errDegenerateBoundary = errors.New("degenerate boundary")
