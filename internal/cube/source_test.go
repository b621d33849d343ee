package cube

import (
	"context"
	"math"
	"testing"
	"time"

	"cubed/internal/imgcoll"
	"cubed/internal/logging"
	"cubed/internal/rasterio"
	"cubed/internal/stref"
)

// fakeCollection serves a fixed band list and record set, ignoring the
// query bounds — sufficient to drive the grouping/aggregation logic under
// test without a real spatial index.
type fakeCollection struct {
	bands   []imgcoll.CollectionBand
	records []imgcoll.Record
}

func (f *fakeCollection) GetBands(ctx context.Context) ([]imgcoll.CollectionBand, error) {
	return f.bands, nil
}

func (f *fakeCollection) FindRangeST(ctx context.Context, bounds imgcoll.Bounds, orderBy string) ([]imgcoll.Record, error) {
	return f.records, nil
}

type emptyCollection struct {
	bands []imgcoll.CollectionBand
}

func (e *emptyCollection) GetBands(ctx context.Context) ([]imgcoll.CollectionBand, error) {
	return e.bands, nil
}

func (e *emptyCollection) FindRangeST(ctx context.Context, bounds imgcoll.Bounds, orderBy string) ([]imgcoll.Record, error) {
	return nil, nil
}

// fakeBackend opens a fakeSource that returns one fixed pixel value
// regardless of the warp request, keyed by descriptor.
type fakeBackend struct {
	values map[string]float64
}

func (f *fakeBackend) Open(ctx context.Context, descriptor string) (rasterio.Source, error) {
	return &fakeSource{value: f.values[descriptor]}, nil
}

type fakeSource struct {
	value float64
}

func (s *fakeSource) Warp(ctx context.Context, req rasterio.WarpRequest) (rasterio.WarpResult, error) {
	n := req.Width * req.Height
	bands := make([][]float64, len(req.Bands))
	for i := range bands {
		px := make([]float64, n)
		for j := range px {
			px[j] = s.value
		}
		bands[i] = px
	}
	return rasterio.WarpResult{Bands: bands}, nil
}

func (s *fakeSource) Close() error { return nil }

func testRef(t *testing.T) stref.STRef {
	t0 := time.Date(2021, 6, 1, 0, 0, 0, 0, time.UTC)
	t1 := t0.AddDate(0, 0, 1)
	ref, err := stref.New(
		stref.Window{Left: 0, Right: 1, Bottom: 0, Top: 1, SRS: "EPSG:4326"},
		1, 1, 1, t0, t1, stref.Duration{N: 1, Unit: stref.Days},
	)
	if err != nil {
		t.Fatalf("stref.New: %v", err)
	}
	return ref
}

func TestSourceCubeEmptyQueryReturnsEmptyBuffer(t *testing.T) {
	ref := testRef(t)
	coll := &emptyCollection{bands: []imgcoll.CollectionBand{{Name: "b1", Type: "float64"}}}
	backend := &fakeBackend{values: map[string]float64{}}

	sc, err := NewSourceCube(context.Background(), coll, backend, ref, stref.ChunkSize{T: 1, Y: 1, X: 1}, AggNone, "near", 1, logging.Discard())
	if err != nil {
		t.Fatalf("NewSourceCube: %v", err)
	}
	buf, err := sc.ReadChunk(context.Background(), 0)
	if err != nil {
		t.Fatalf("ReadChunk: %v", err)
	}
	if !buf.Empty() {
		t.Fatalf("expected empty buffer for a query with no matching records")
	}
}

func TestSourceCubeMeanAggregatesTwoImages(t *testing.T) {
	ref := testRef(t)
	t0 := ref.T0

	coll := &fakeCollection{
		bands: []imgcoll.CollectionBand{{Name: "b1", Type: "float64"}},
		records: []imgcoll.Record{
			{Descriptor: "img1.tif", BandName: "b1", BandNum: 1, Datetime: t0, Left: 0, Right: 1, Bottom: 0, Top: 1, SRS: "EPSG:4326"},
			{Descriptor: "img2.tif", BandName: "b1", BandNum: 1, Datetime: t0, Left: 0, Right: 1, Bottom: 0, Top: 1, SRS: "EPSG:4326"},
		},
	}
	backend := &fakeBackend{values: map[string]float64{"img1.tif": 2.0, "img2.tif": 4.0}}

	sc, err := NewSourceCube(context.Background(), coll, backend, ref, stref.ChunkSize{T: 1, Y: 1, X: 1}, AggMean, "near", 1, logging.Discard())
	if err != nil {
		t.Fatalf("NewSourceCube: %v", err)
	}
	buf, err := sc.ReadChunk(context.Background(), 0)
	if err != nil {
		t.Fatalf("ReadChunk: %v", err)
	}
	if got := buf.At(0, 0, 0, 0); got != 3.0 {
		t.Errorf("mean = %v, want 3.0", got)
	}
}

func TestSourceCubeNoneOverwritesLastWriterWins(t *testing.T) {
	ref := testRef(t)
	t0 := ref.T0

	coll := &fakeCollection{
		bands: []imgcoll.CollectionBand{{Name: "b1", Type: "float64"}},
		records: []imgcoll.Record{
			{Descriptor: "img1.tif", BandName: "b1", BandNum: 1, Datetime: t0, Left: 0, Right: 1, Bottom: 0, Top: 1, SRS: "EPSG:4326"},
			{Descriptor: "img2.tif", BandName: "b1", BandNum: 1, Datetime: t0, Left: 0, Right: 1, Bottom: 0, Top: 1, SRS: "EPSG:4326"},
		},
	}
	backend := &fakeBackend{values: map[string]float64{"img1.tif": 2.0, "img2.tif": 4.0}}

	sc, err := NewSourceCube(context.Background(), coll, backend, ref, stref.ChunkSize{T: 1, Y: 1, X: 1}, AggNone, "near", 1, logging.Discard())
	if err != nil {
		t.Fatalf("NewSourceCube: %v", err)
	}
	buf, err := sc.ReadChunk(context.Background(), 0)
	if err != nil {
		t.Fatalf("ReadChunk: %v", err)
	}
	// img2.tif sorts after img1.tif by descriptor, so it is the last writer.
	if got := buf.At(0, 0, 0, 0); got != 4.0 {
		t.Errorf("got %v, want 4.0 (last writer by descriptor order)", got)
	}
}

func TestSourceCubeRejectsOutOfRangeChunk(t *testing.T) {
	ref := testRef(t)
	coll := &emptyCollection{bands: []imgcoll.CollectionBand{{Name: "b1", Type: "float64"}}}
	backend := &fakeBackend{values: map[string]float64{}}

	sc, err := NewSourceCube(context.Background(), coll, backend, ref, stref.ChunkSize{T: 1, Y: 1, X: 1}, AggNone, "near", 1, logging.Discard())
	if err != nil {
		t.Fatalf("NewSourceCube: %v", err)
	}
	if _, err := sc.ReadChunk(context.Background(), 5); err == nil {
		t.Fatal("expected error for out-of-range chunk id")
	}
}

func TestSourceCubeIgnoresUnmappedBand(t *testing.T) {
	ref := testRef(t)
	t0 := ref.T0

	coll := &fakeCollection{
		bands: []imgcoll.CollectionBand{{Name: "b1", Type: "float64"}},
		records: []imgcoll.Record{
			{Descriptor: "img1.tif", BandName: "unmapped", BandNum: 1, Datetime: t0, Left: 0, Right: 1, Bottom: 0, Top: 1, SRS: "EPSG:4326"},
		},
	}
	backend := &fakeBackend{values: map[string]float64{"img1.tif": 9.0}}

	sc, err := NewSourceCube(context.Background(), coll, backend, ref, stref.ChunkSize{T: 1, Y: 1, X: 1}, AggNone, "near", 1, logging.Discard())
	if err != nil {
		t.Fatalf("NewSourceCube: %v", err)
	}
	buf, err := sc.ReadChunk(context.Background(), 0)
	if err != nil {
		t.Fatalf("ReadChunk: %v", err)
	}
	if got := buf.At(0, 0, 0, 0); !math.IsNaN(got) {
		t.Errorf("got %v, want NaN (record for unmapped band must be skipped)", got)
	}
}
