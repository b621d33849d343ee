package chunkbuf

import (
	"math"
	"testing"
)

func TestNewFillsNaN(t *testing.T) {
	b := New(Size{B: 1, T: 2, Y: 2, X: 2})
	for _, v := range b.Raw() {
		if !math.IsNaN(v) {
			t.Fatalf("New buffer cell = %v, want NaN", v)
		}
	}
	if b.TotalSizeBytes() != 8*8 {
		t.Errorf("TotalSizeBytes() = %d, want %d", b.TotalSizeBytes(), 8*8)
	}
}

func TestEmptyBuffer(t *testing.T) {
	b := Empty(3)
	if !b.Empty() {
		t.Error("Empty(3).Empty() = false, want true")
	}
	if got := b.TotalSizeBytes(); got != 0 {
		t.Errorf("TotalSizeBytes() = %d, want 0", got)
	}
	if b.Size().B != 3 {
		t.Errorf("Size().B = %d, want 3", b.Size().B)
	}
}

func TestAtSetRoundTrip(t *testing.T) {
	b := New(Size{B: 2, T: 2, Y: 3, X: 4})
	b.Set(1, 1, 2, 3, 42.5)
	if got := b.At(1, 1, 2, 3); got != 42.5 {
		t.Errorf("At(1,1,2,3) = %v, want 42.5", got)
	}
	if got := b.At(0, 0, 0, 0); !math.IsNaN(got) {
		t.Errorf("untouched cell = %v, want NaN", got)
	}
}

func TestBandSliceIsolatesBands(t *testing.T) {
	b := New(Size{B: 2, T: 1, Y: 1, X: 2})
	band0 := b.BandSlice(0)
	band1 := b.BandSlice(1)
	band0[0] = 1
	band1[0] = 2
	if b.At(0, 0, 0, 0) != 1 || b.At(1, 0, 0, 0) != 2 {
		t.Error("BandSlice does not alias the right region of the backing array")
	}
}

func TestCloneIsIndependent(t *testing.T) {
	a := New(Size{B: 1, T: 1, Y: 1, X: 1})
	a.Set(0, 0, 0, 0, 1)
	b := a.Clone()
	b.Set(0, 0, 0, 0, 2)
	if a.At(0, 0, 0, 0) != 1 {
		t.Error("mutating the clone affected the original")
	}
}
