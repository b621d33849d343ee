// Package chunkbuf holds the dense 4-D tile every cube operator reads and
// writes: a (bands, t, y, x) array of float64 with NaN as nodata.
package chunkbuf

import "math"

// Size is a (bands, t, y, x) dimension tuple.
type Size struct {
	B, T, Y, X int
}

// Empty reports whether any dimension is zero.
func (s Size) Empty() bool {
	return s.B == 0 || s.T == 0 || s.Y == 0 || s.X == 0
}

// Cells returns the total element count B*T*Y*X.
func (s Size) Cells() int {
	return s.B * s.T * s.Y * s.X
}

// Buffer owns a dense [bands][t][y][x] tile, stored as one contiguous
// row-major slice (band-major, then t, then y, then x minor) so that a
// caller can hand the backing slice straight to an encoder without a
// gather step. Buffer is a value type at the interface level: pass by
// value or take an explicit copy; nothing here aliases another Buffer's
// backing array except through Clone.
type Buffer struct {
	size Size
	data []float64
}

// New allocates a buffer of the given size filled with NaN (nodata).
func New(size Size) Buffer {
	data := make([]float64, size.Cells())
	for i := range data {
		data[i] = math.NaN()
	}
	return Buffer{size: size, data: data}
}

// Empty returns a zero-sized, empty buffer — the result of an
// image-collection query with no overlapping records.
func Empty(bands int) Buffer {
	return Buffer{size: Size{B: bands}}
}

// Size returns the buffer's (bands, t, y, x) tuple.
func (b Buffer) Size() Size { return b.size }

// Empty reports whether the buffer has any zero dimension.
func (b Buffer) Empty() bool { return b.size.Empty() }

// TotalSizeBytes returns the buffer's payload size in bytes (8 bytes per
// float64 cell). An empty buffer reports 0.
func (b Buffer) TotalSizeBytes() int64 {
	return int64(b.size.Cells()) * 8
}

// index computes the flat offset of (band, t, y, x) in band-major order.
func (b Buffer) index(band, t, y, x int) int {
	return ((band*b.size.T+t)*b.size.Y+y)*b.size.X + x
}

// LocalIndex computes the offset of (t, y, x) within a single band's
// T*Y*X slice, as returned by BandSlice. Reducers and raster backends
// address cells through this rather than the band-major global index.
func (s Size) LocalIndex(t, y, x int) int {
	return (t*s.Y+y)*s.X + x
}

// At returns the value at (band, t, y, x).
func (b Buffer) At(band, t, y, x int) float64 {
	return b.data[b.index(band, t, y, x)]
}

// Set writes the value at (band, t, y, x).
func (b Buffer) Set(band, t, y, x int, v float64) {
	b.data[b.index(band, t, y, x)] = v
}

// BandSlice returns the contiguous T*Y*X slice for one band, for bulk
// reads/writes (e.g. a raster backend warping directly into it).
func (b Buffer) BandSlice(band int) []float64 {
	n := b.size.T * b.size.Y * b.size.X
	start := band * n
	return b.data[start : start+n]
}

// Raw returns the full backing slice in band-major order, e.g. for
// encoding onto the wire. Callers must not retain it past the buffer's
// own lifetime expectations implied by the chunk cache.
func (b Buffer) Raw() []float64 { return b.data }

// Clone returns an independent copy with its own backing array.
func (b Buffer) Clone() Buffer {
	cp := make([]float64, len(b.data))
	copy(cp, b.data)
	return Buffer{size: b.size, data: cp}
}
