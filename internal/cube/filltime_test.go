package cube

import (
	"context"
	"math"
	"testing"

	"cubed/internal/chunkbuf"
	"cubed/internal/logging"
)

func bufFromTimeSeries(vals []float64) chunkbuf.Buffer {
	buf := chunkbuf.New(chunkbuf.Size{B: 1, T: len(vals), Y: 1, X: 1})
	for t, v := range vals {
		buf.Set(0, t, 0, 0, v)
	}
	return buf
}

func nan() float64 { var z float64; return z / z }

func TestFillTimeCubeLOCF(t *testing.T) {
	in := newFakeCube(testBands("b1"), bufFromTimeSeries([]float64{nan(), 1.0, nan(), nan(), 2.0, nan()}))
	fc := NewFillTimeCube(in, "locf", logging.Discard())
	buf, err := fc.ReadChunk(context.Background(), 0)
	if err != nil {
		t.Fatalf("ReadChunk: %v", err)
	}
	if v := buf.At(0, 0, 0, 0); !math.IsNaN(v) {
		t.Errorf("t0 = %v, want NaN (no prior value to carry forward)", v)
	}
	want := map[int]float64{1: 1.0, 2: 1.0, 3: 1.0, 4: 2.0, 5: 2.0}
	for tIdx, w := range want {
		if got := buf.At(0, tIdx, 0, 0); got != w {
			t.Errorf("t%d = %v, want %v", tIdx, got, w)
		}
	}
}

func TestFillTimeCubeNear(t *testing.T) {
	in := newFakeCube(testBands("b1"), bufFromTimeSeries([]float64{nan(), 1.0, nan(), nan(), 2.0, nan()}))
	fc := NewFillTimeCube(in, "near", logging.Discard())
	buf, err := fc.ReadChunk(context.Background(), 0)
	if err != nil {
		t.Fatalf("ReadChunk: %v", err)
	}
	want := []float64{1.0, 1.0, 1.0, 2.0, 2.0, 2.0}
	for tIdx, w := range want {
		if got := buf.At(0, tIdx, 0, 0); got != w {
			t.Errorf("t%d = %v, want %v", tIdx, got, w)
		}
	}
}

func TestFillTimeCubeLinear(t *testing.T) {
	in := newFakeCube(testBands("b1"), bufFromTimeSeries([]float64{nan(), 1.0, nan(), nan(), 2.0, nan()}))
	fc := NewFillTimeCube(in, "linear", logging.Discard())
	buf, err := fc.ReadChunk(context.Background(), 0)
	if err != nil {
		t.Fatalf("ReadChunk: %v", err)
	}
	want := []float64{1.0, 1.0, 4.0 / 3.0, 5.0 / 3.0, 2.0, 2.0}
	for tIdx, w := range want {
		if got := buf.At(0, tIdx, 0, 0); math.Abs(got-w) > 1e-9 {
			t.Errorf("t%d = %v, want %v", tIdx, got, w)
		}
	}
}

func TestFillTimeCubeUnknownMethodDowngradesToNear(t *testing.T) {
	in := newFakeCube(testBands("b1"), bufFromTimeSeries([]float64{nan(), 1.0, nan(), 2.0}))
	fc := NewFillTimeCube(in, "bogus", logging.Discard())
	if fc.method != "near" {
		t.Errorf("method = %q, want downgraded to near", fc.method)
	}
}
