package warpexec

import (
	"context"
	"encoding/binary"
	"math"
	"testing"

	"cubed/internal/logging"
	"cubed/internal/rastersource"
)

func TestDecodeRaw64SplitsBandsInOrder(t *testing.T) {
	width, height, numBands := 2, 1, 2
	values := [][]float64{{1, 2}, {3, 4}}

	buf := make([]byte, 0, numBands*width*height*8)
	for _, band := range values {
		for _, v := range band {
			b := make([]byte, 8)
			binary.LittleEndian.PutUint64(b, math.Float64bits(v))
			buf = append(buf, b...)
		}
	}

	result, err := decodeRaw64(buf, numBands, width, height)
	if err != nil {
		t.Fatalf("decodeRaw64: %v", err)
	}
	if len(result.Bands) != numBands {
		t.Fatalf("got %d bands, want %d", len(result.Bands), numBands)
	}
	for i, band := range values {
		for j, want := range band {
			if got := result.Bands[i][j]; got != want {
				t.Errorf("band %d[%d] = %v, want %v", i, j, got, want)
			}
		}
	}
}

func TestDecodeRaw64RejectsShortBuffer(t *testing.T) {
	if _, err := decodeRaw64([]byte{1, 2, 3}, 1, 2, 2); err == nil {
		t.Fatal("expected error for undersized buffer")
	}
}

func TestOpenFailsWhenBinaryMissing(t *testing.T) {
	resolver := rastersource.New(t.TempDir(), logging.Discard())
	backend := New("definitely-not-a-real-binary-xyz", resolver, logging.Discard())

	if _, err := backend.Open(context.Background(), "file:///tmp/does-not-matter.tif"); err == nil {
		t.Fatal("expected error when warp binary is not in PATH")
	}
}
