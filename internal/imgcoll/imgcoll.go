// Package imgcoll defines the query boundary between the cube DAG and an
// external image collection. The core consumes exactly two methods; the
// ingestion/indexing schema that populates a collection is out of scope.
package imgcoll

import (
	"context"
	"time"
)

// Record describes one (file, band) reference returned by a collection
// query: the opaque descriptor the raster backend can open, the band's
// name and 1-based index within that file, the image's datetime, and its
// spatial footprint.
type Record struct {
	Descriptor string
	BandName   string
	BandNum    int
	Datetime   time.Time
	Left       float64
	Right      float64
	Bottom     float64
	Top        float64
	SRS        string
}

// Bounds is a spatiotemporal query window: a spatial box in SRS plus a
// half-open [From, To) temporal range.
type Bounds struct {
	Left, Right, Bottom, Top float64
	SRS                      string
	From, To                 time.Time
}

// Collection is the only interface the cube DAG depends on. Implementations
// (a SQLite-backed index, a directory-glob scan, a test fake) are free to
// expose more, but the core never calls anything beyond these two methods.
type Collection interface {
	// GetBands returns the collection's declared bands, in the order new
	// output cubes should adopt them.
	GetBands(ctx context.Context) ([]CollectionBand, error)

	// FindRangeST returns every record overlapping bounds, ordered by
	// Descriptor ascending so that all bands of one file cluster
	// contiguously — the ordering the source cube's grouping step depends
	// on. orderBy is currently always "descriptor"; it is accepted as a
	// parameter to keep the interface shape explicit about that contract
	// rather than implying a fixed internal sort.
	FindRangeST(ctx context.Context, bounds Bounds, orderBy string) ([]Record, error)
}

// CollectionBand is the band shape returned by GetBands: it carries the
// input-side type and nodata declaration, before any cube operator
// converts a value to the core's uniform float64/NaN representation.
type CollectionBand struct {
	Name   string
	Unit   string
	Nodata string
	Type   string
	Scale  float64
	Offset float64
}

// OrderByDescriptor is the only ordering the core ever requests.
const OrderByDescriptor = "descriptor"
