// Package cube implements the operator DAG: every node exposes read_chunk,
// a JSON reconstructor, and the spatiotemporal/chunk-geometry accessors
// defined in the data model. Concrete operators (image-collection source,
// apply-pixel, filter-predicate, fill-time) live alongside this file.
package cube

import (
	"context"
	"encoding/json"
	"fmt"

	"cubed/internal/bandspec"
	"cubed/internal/chunkbuf"
	"cubed/internal/stref"
)

// Cube is the interface every operator node implements. ReadChunk may
// block on I/O; it must be pure with respect to DAG topology — two
// successive calls with unchanged external inputs yield pixel-equal
// buffers.
type Cube interface {
	ReadChunk(ctx context.Context, id int) (chunkbuf.Buffer, error)
	ToJSON() (json.RawMessage, error)
	SetSTReference(ref stref.STRef)
	CountChunks() int
	Bands() []bandspec.Band
	ChunkSize() stref.ChunkSize
	View() View

	// AddParent and AddChild are the wiring primitives create() functions
	// use; direct construction that skips them is a bug (see Wire).
	AddParent(p Cube)
	AddChild(c Cube)
	Parents() []Cube
	Children() []Cube
}

// View is a cube's STRef augmented with the aggregation and resampling
// method choices that give an image-collection source cube its per-chunk
// warp parameters. Operators downstream of the source carry an empty
// Aggregation/Resampling — they inherit whatever the leaf already applied.
type View struct {
	Ref         stref.STRef
	Aggregation string
	Resampling  string
}

// Base implements the bookkeeping shared by every operator: the owned
// STRef and band list, the declared chunk-size triple, and the DAG links.
// Concrete operators embed Base and implement ReadChunk/ToJSON themselves.
type Base struct {
	ref       stref.STRef
	bands     []bandspec.Band
	chunkSize stref.ChunkSize
	view      View

	// parents are weak/non-owning back-references used only for
	// traversal; children are the owned forward references (typically
	// exactly one: the operator's in_cube).
	parents  []Cube
	children []Cube
}

// NewBase constructs a Base that duplicates ref and bands — never aliases
// the caller's slice or struct — per the construction invariant that
// downstream mutation must not reach upstream cubes.
func NewBase(ref stref.STRef, bands []bandspec.Band, chunkSize stref.ChunkSize) Base {
	owned := make([]bandspec.Band, len(bands))
	copy(owned, bands)
	return Base{
		ref:       ref.Clone(),
		bands:     owned,
		chunkSize: chunkSize,
		view:      View{Ref: ref.Clone()},
	}
}

func (b *Base) STRef() stref.STRef { return b.ref }

// SetSTReference copy-assigns window/SRS/extent/time fields into the
// node's owned reference. It never replaces the reference itself.
func (b *Base) SetSTReference(ref stref.STRef) {
	b.ref.Set(ref)
	b.view.Ref.Set(ref)
}

func (b *Base) CountChunks() int {
	return stref.Grid{Ref: b.ref, Chunk: b.chunkSize}.CountChunks()
}

func (b *Base) Bands() []bandspec.Band { return b.bands }

func (b *Base) ChunkSize() stref.ChunkSize { return b.chunkSize }

func (b *Base) View() View { return b.view }

// SetAggregation and SetResampling let the image-collection source cube
// record its view's non-STRef parameters; other operators never call
// these.
func (b *Base) SetAggregation(a string) { b.view.Aggregation = a }
func (b *Base) SetResampling(r string)  { b.view.Resampling = r }

func (b *Base) AddParent(p Cube) { b.parents = append(b.parents, p) }
func (b *Base) AddChild(c Cube)  { b.children = append(b.children, c) }
func (b *Base) Parents() []Cube  { return b.parents }
func (b *Base) Children() []Cube { return b.children }

// Wire registers the owning forward link from parent to child and the
// weak backward link from child to parent. Every operator constructor
// must call Wire on its input cube(s) instead of assigning fields
// directly — this is the "create(...) wires parent/child links" rule from
// the data model; direct construction that skips it is a bug.
func Wire(parent, child Cube) {
	parent.AddChild(child)
	child.AddParent(parent)
}

// bandsToJSON/bandsFromJSON are the shared band-list encoding used by
// every operator's ToJSON/factory pair.
type bandJSON struct {
	Name   string  `json:"name"`
	Unit   string  `json:"unit,omitempty"`
	Nodata string  `json:"nodata,omitempty"`
	Type   string  `json:"type,omitempty"`
	Scale  float64 `json:"scale"`
	Offset float64 `json:"offset"`
}

func bandsToJSON(bands []bandspec.Band) []bandJSON {
	out := make([]bandJSON, len(bands))
	for i, b := range bands {
		out[i] = bandJSON{Name: b.Name, Unit: b.Unit, Nodata: b.Nodata, Type: b.Type, Scale: b.Scale, Offset: b.Offset}
	}
	return out
}

func bandsFromJSON(in []bandJSON) []bandspec.Band {
	out := make([]bandspec.Band, len(in))
	for i, b := range in {
		out[i] = bandspec.Band{Name: b.Name, Unit: b.Unit, Nodata: b.Nodata, Type: b.Type, Scale: b.Scale, Offset: b.Offset}
	}
	return out
}

// chunkRangeError is returned by ReadChunk implementations when id is
// outside [0, CountChunks()).
func chunkRangeError(id, n int) error {
	return fmt.Errorf("cube: chunk id %d out of range [0,%d)", id, n)
}
