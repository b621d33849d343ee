package cube

import (
	"context"
	"encoding/json"
	"time"

	"cubed/internal/bandspec"
	"cubed/internal/chunkbuf"
	"cubed/internal/stref"
)

// fakeCube is a minimal Cube that always returns a fixed buffer,
// regardless of chunk id, used to exercise downstream operators in
// isolation from the image-collection source cube.
type fakeCube struct {
	Base
	buf chunkbuf.Buffer
}

func newFakeCube(bands []bandspec.Band, buf chunkbuf.Buffer) *fakeCube {
	t0 := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	t1 := t0.AddDate(0, 0, buf.Size().T)
	ref, err := stref.New(
		stref.Window{Left: 0, Right: float64(buf.Size().X), Bottom: 0, Top: float64(buf.Size().Y), SRS: "EPSG:4326"},
		buf.Size().X, buf.Size().Y, buf.Size().T,
		t0, t1, stref.Duration{N: 1, Unit: stref.Days},
	)
	if err != nil {
		panic(err)
	}
	return &fakeCube{
		Base: NewBase(ref, bands, stref.ChunkSize{T: buf.Size().T, Y: buf.Size().Y, X: buf.Size().X}),
		buf:  buf,
	}
}

func (f *fakeCube) ReadChunk(ctx context.Context, id int) (chunkbuf.Buffer, error) {
	return f.buf, nil
}

func (f *fakeCube) ToJSON() (json.RawMessage, error) {
	return json.Marshal(map[string]string{"cube_type": "fake"})
}

// bufFromSeries builds a single-(t=1,y=1) buffer with one band per series,
// laid out along x — convenient for the apply/filter scenarios, which are
// specified as flat per-band value lists.
func bufFromSeries(series ...[]float64) chunkbuf.Buffer {
	n := len(series[0])
	buf := chunkbuf.New(chunkbuf.Size{B: len(series), T: 1, Y: 1, X: n})
	for b, vals := range series {
		for x, v := range vals {
			buf.Set(b, 0, 0, x, v)
		}
	}
	return buf
}
