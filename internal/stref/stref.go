// Package stref defines the spatiotemporal reference that fixes a cube's
// 4-D output grid, and the chunk geometry derived from it.
//
// Values here are immutable by convention: every operation except Set
// returns a new STRef rather than mutating one in place, so duplicating a reference on
// cube construction (required so that downstream mutation never reaches an
// upstream cube) is simply Go's ordinary value-copy semantics.
package stref

import (
	"fmt"
	"time"
)

// JSON is the wire shape of an STRef inside a cube descriptor's "view"
// field, used by the factory's round-trip property.
type JSON struct {
	Left   float64 `json:"left"`
	Right  float64 `json:"right"`
	Bottom float64 `json:"bottom"`
	Top    float64 `json:"top"`
	SRS    string  `json:"srs"`
	NX     int     `json:"nx"`
	NY     int     `json:"ny"`
	NT     int     `json:"nt"`
	T0     string  `json:"t0"`
	T1     string  `json:"t1"`
	DTN    int64   `json:"dt_n"`
	DTUnit string  `json:"dt_unit"`
}

// ToJSON renders r in its wire shape, using RFC 3339 for timestamps.
func (r STRef) ToJSON() JSON {
	return JSON{
		Left: r.Left, Right: r.Right, Bottom: r.Bottom, Top: r.Top, SRS: r.SRS,
		NX: r.NX, NY: r.NY, NT: r.NT,
		T0: r.T0.UTC().Format(time.RFC3339), T1: r.T1.UTC().Format(time.RFC3339),
		DTN: r.DT.N, DTUnit: r.DT.Unit.String(),
	}
}

// FromJSON reconstructs an STRef from its wire shape, validating the same
// invariants as New.
func FromJSON(j JSON) (STRef, error) {
	t0, err := time.Parse(time.RFC3339, j.T0)
	if err != nil {
		return STRef{}, fmt.Errorf("stref: parse t0: %w", err)
	}
	t1, err := time.Parse(time.RFC3339, j.T1)
	if err != nil {
		return STRef{}, fmt.Errorf("stref: parse t1: %w", err)
	}
	unit, err := ParseTemporalUnit(j.DTUnit)
	if err != nil {
		return STRef{}, err
	}
	win := Window{Left: j.Left, Right: j.Right, Bottom: j.Bottom, Top: j.Top, SRS: j.SRS}
	return New(win, j.NX, j.NY, j.NT, t0, t1, Duration{N: j.DTN, Unit: unit})
}

// TemporalUnit names the unit a Duration's step is measured in.
type TemporalUnit int

const (
	Seconds TemporalUnit = iota
	Days
	Months
	Years
)

func (u TemporalUnit) String() string {
	switch u {
	case Seconds:
		return "seconds"
	case Days:
		return "days"
	case Months:
		return "months"
	case Years:
		return "years"
	default:
		return "unknown"
	}
}

// ParseTemporalUnit parses the canonical unit names used in JSON cube
// descriptors. An unrecognized string is an error; callers at the API
// boundary turn that into an invalid-configuration response.
func ParseTemporalUnit(s string) (TemporalUnit, error) {
	switch s {
	case "seconds":
		return Seconds, nil
	case "days":
		return Days, nil
	case "months":
		return Months, nil
	case "years":
		return Years, nil
	default:
		return 0, fmt.Errorf("stref: unknown temporal unit %q", s)
	}
}

// Duration is a temporal step of N units.
type Duration struct {
	N    int64
	Unit TemporalUnit
}

// Window is the spatial extent of a cube's grid in a named SRS.
type Window struct {
	Left, Right, Bottom, Top float64
	SRS                      string
}

// Width and Height return the window's extent along x and y.
func (w Window) Width() float64  { return w.Right - w.Left }
func (w Window) Height() float64 { return w.Top - w.Bottom }

// STRef is the spatiotemporal reference of a cube node: a spatial window,
// integer grid extents, and a temporal range stepped by Duration. It is a
// plain value type; callers duplicate it by assignment.
type STRef struct {
	Window
	NX, NY, NT int
	T0, T1     time.Time
	DT         Duration
}

// New validates and constructs an STRef. It checks that the grid extents,
// the window's width and height, and dt are positive, that t1 is after t0,
// and that nt*dt approximates t1-t0 within one step. nx*dx == right-left
// and ny*dy == top-bottom hold by construction, since dx and dy are
// derived from the window; they are not checked separately.
func New(win Window, nx, ny, nt int, t0, t1 time.Time, dt Duration) (STRef, error) {
	if nx <= 0 || ny <= 0 || nt <= 0 {
		return STRef{}, fmt.Errorf("stref: grid extents must be positive, got (nx=%d, ny=%d, nt=%d)", nx, ny, nt)
	}
	if win.Width() <= 0 || win.Height() <= 0 {
		return STRef{}, fmt.Errorf("stref: window must have positive width and height")
	}
	if !t1.After(t0) {
		return STRef{}, fmt.Errorf("stref: t1 must be after t0")
	}
	if dt.N <= 0 {
		return STRef{}, fmt.Errorf("stref: dt step must be positive")
	}
	r := STRef{Window: win, NX: nx, NY: ny, NT: nt, T0: t0, T1: t1, DT: dt}
	wantSteps := r.timeSpanSteps(t0, t1)
	if d := wantSteps - int64(nt); d > 1 || d < -1 {
		return STRef{}, fmt.Errorf("stref: nt=%d does not approximate (t1-t0)/dt (~%d steps)", nt, wantSteps)
	}
	return r, nil
}

// Set copy-assigns the window, extent, and time fields of other into r. It
// never redirects r itself — callers hold r by value or by pointer to a
// field they own; Set exists so a cube node with an *STRef field can honor
// set_st_reference's "copy in place" contract without exposing the whole
// struct as replaceable.
func (r *STRef) Set(other STRef) {
	r.Window = other.Window
	r.NX, r.NY, r.NT = other.NX, other.NY, other.NT
	r.T0, r.T1, r.DT = other.T0, other.T1, other.DT
}

// Clone returns an independent copy. Since STRef holds no pointers, this is
// equivalent to an ordinary assignment; the method exists to make the
// duplication explicit at call sites that care about the invariant.
func (r STRef) Clone() STRef { return r }

// dx, dy are the per-cell spatial resolutions.
func (r STRef) dx() float64 { return r.Width() / float64(r.NX) }
func (r STRef) dy() float64 { return r.Height() / float64(r.NY) }

// timeSpanSteps returns how many DT steps separate t0 and t1, rounded to
// the nearest integer. Coarser units truncate finer fields before
// differencing, per the calendar semantics described in the data model.
func (r STRef) timeSpanSteps(t0, t1 time.Time) int64 {
	return stepsBetween(t0, t1, r.DT)
}

// TimeIndex returns the integer step offset of t from the reference's t0,
// i.e. (t - t0) / dt cast to the reference's time unit. This is the
// `t_index` used by the image-collection source cube to place a record's
// datetime into the chunked time axis.
func (r STRef) TimeIndex(t time.Time) int64 {
	return stepsBetween(r.T0, t, r.DT)
}

// StepsBetween returns how many Duration steps separate a and b, rounded
// to the nearest integer step. Used to place an arbitrary datetime (e.g. a
// source record's timestamp) on a chunk's own time axis via
// StepsBetween(chunkT0, recordDatetime, ref.DT).
func StepsBetween(a, b time.Time, step Duration) int64 {
	return stepsBetween(a, b, step)
}

func stepsBetween(a, b time.Time, step Duration) int64 {
	if step.N <= 0 {
		return 0
	}
	switch step.Unit {
	case Seconds:
		return roundDiv(int64(b.Sub(a).Seconds()), step.N)
	case Days:
		return roundDiv(int64(b.Sub(a).Hours()/24), step.N)
	case Months:
		months := int64(b.Year()-a.Year())*12 + int64(b.Month()-a.Month())
		return roundDiv(months, step.N)
	case Years:
		return roundDiv(int64(b.Year()-a.Year()), step.N)
	default:
		return 0
	}
}

func roundDiv(num, den int64) int64 {
	if den == 0 {
		return 0
	}
	if (num < 0) != (den < 0) {
		return -((-num + den/2) / den)
	}
	return (num + den/2) / den
}

// ChunkSize is a declared (t, y, x) chunk-size triple, a cube node
// attribute inherited from its input (see the cube data model); it is not
// itself part of STRef.
type ChunkSize struct {
	T, Y, X int
}

// Bounds is the spatiotemporal extent of a single chunk.
type Bounds struct {
	T0, T1                   time.Time
	Left, Right, Bottom, Top float64
}

// Grid pairs an STRef with the chunk size that partitions it, and answers
// the chunk-geometry operations of the component: chunk_size(id),
// bounds_from_chunk(id), and count_chunks().
type Grid struct {
	Ref   STRef
	Chunk ChunkSize
}

// chunkCounts returns the number of chunks along each axis, ceil(extent/chunk).
func (g Grid) chunkCounts() (nct, ncy, ncx int) {
	nct = ceilDiv(g.Ref.NT, g.Chunk.T)
	ncy = ceilDiv(g.Ref.NY, g.Chunk.Y)
	ncx = ceilDiv(g.Ref.NX, g.Chunk.X)
	return
}

func ceilDiv(a, b int) int {
	if b <= 0 {
		return 0
	}
	return (a + b - 1) / b
}

// CountChunks returns the total number of chunks. A cube whose grid has any
// zero extent has zero chunks.
func (g Grid) CountChunks() int {
	if g.Ref.NT == 0 || g.Ref.NY == 0 || g.Ref.NX == 0 {
		return 0
	}
	nct, ncy, ncx := g.chunkCounts()
	return nct * ncy * ncx
}

// coords linearizes/delinearizes chunk ids in t-major, y-middle, x-minor
// order, per the data model's chunk identity.
func (g Grid) coords(id int) (it, iy, ix int, ncy, ncx int) {
	_, ncy, ncx = g.chunkCounts()
	it = id / (ncy * ncx)
	rem := id % (ncy * ncx)
	iy = rem / ncx
	ix = rem % ncx
	return
}

// ChunkSizeAt returns the (ct', cy', cx') actual size of chunk id, clamped
// to the remaining extent at the high-index edge. Returns an error if id is
// out of range.
func (g Grid) ChunkSizeAt(id int) (ct, cy, cx int, err error) {
	n := g.CountChunks()
	if id < 0 || id >= n {
		return 0, 0, 0, fmt.Errorf("stref: chunk id %d out of range [0,%d)", id, n)
	}
	it, iy, ix, _, _ := g.coords(id)

	ct = clampRemaining(g.Ref.NT, g.Chunk.T, it)
	cy = clampRemaining(g.Ref.NY, g.Chunk.Y, iy)
	cx = clampRemaining(g.Ref.NX, g.Chunk.X, ix)
	return ct, cy, cx, nil
}

func clampRemaining(extent, chunk, idx int) int {
	remaining := extent - idx*chunk
	if remaining > chunk {
		return chunk
	}
	if remaining < 0 {
		return 0
	}
	return remaining
}

// BoundsFromChunk returns the spatiotemporal bounds covered by chunk id.
func (g Grid) BoundsFromChunk(id int) (Bounds, error) {
	n := g.CountChunks()
	if id < 0 || id >= n {
		return Bounds{}, fmt.Errorf("stref: chunk id %d out of range [0,%d)", id, n)
	}
	it, iy, ix, _, _ := g.coords(id)

	ct, cy, cx, err := g.ChunkSizeAt(id)
	if err != nil {
		return Bounds{}, err
	}

	dx, dy := g.Ref.dx(), g.Ref.dy()
	left := g.Ref.Left + float64(ix*g.Chunk.X)*dx
	right := left + float64(cx)*dx
	top := g.Ref.Top - float64(iy*g.Chunk.Y)*dy
	bottom := top - float64(cy)*dy

	t0 := addSteps(g.Ref.T0, g.Ref.DT, int64(it*g.Chunk.T))
	t1 := addSteps(g.Ref.T0, g.Ref.DT, int64(it*g.Chunk.T+ct))

	return Bounds{T0: t0, T1: t1, Left: left, Right: right, Bottom: bottom, Top: top}, nil
}

func addSteps(t0 time.Time, step Duration, n int64) time.Time {
	switch step.Unit {
	case Seconds:
		return t0.Add(time.Duration(n*step.N) * time.Second)
	case Days:
		return t0.AddDate(0, 0, int(n*step.N))
	case Months:
		return t0.AddDate(0, int(n*step.N), 0)
	case Years:
		return t0.AddDate(int(n*step.N), 0, 0)
	default:
		return t0
	}
}
