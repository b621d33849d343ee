package cube

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"cubed/internal/bandspec"
	"cubed/internal/chunkbuf"
	"cubed/internal/imgcoll"
	"cubed/internal/logging"
	"cubed/internal/rasterio"
	"cubed/internal/stref"
)

// SourceCube is the leaf operator: given a chunk of the output grid, it
// locates overlapping source rasters via an imgcoll.Collection, warps them
// through a rasterio.Backend, and aggregates multiple observations mapping
// to the same output cell under the chosen reducer. This is the heaviest
// component in the DAG.
type SourceCube struct {
	Base

	collection imgcoll.Collection
	backend    rasterio.Backend
	collBands  []imgcoll.CollectionBand
	aggregate  AggMethod
	numThreads int
	logger     *slog.Logger
}

// NewSourceCube constructs a source cube. It queries the collection's
// declared bands once, at construction, to establish the cube's output
// band list and to resolve per-band nodata declarations used later during
// warping.
func NewSourceCube(ctx context.Context, collection imgcoll.Collection, backend rasterio.Backend, ref stref.STRef, chunkSize stref.ChunkSize, agg AggMethod, resampling string, numThreads int, logger *slog.Logger) (*SourceCube, error) {
	collBands, err := collection.GetBands(ctx)
	if err != nil {
		return nil, fmt.Errorf("cube: get_bands: %w", err)
	}
	bands := make([]bandspec.Band, len(collBands))
	for i, cb := range collBands {
		bands[i] = bandspec.Band{Name: cb.Name, Unit: cb.Unit, Nodata: cb.Nodata, Type: cb.Type, Scale: cb.Scale, Offset: cb.Offset}
	}

	sc := &SourceCube{
		Base:       NewBase(ref, bands, chunkSize),
		collection: collection,
		backend:    backend,
		collBands:  collBands,
		aggregate:  agg,
		numThreads: numThreads,
		logger:     logging.Default(logger).With("component", "source_cube"),
	}
	sc.SetAggregation(agg.String())
	sc.SetResampling(resampling)
	return sc, nil
}

// group is one run of consecutive records sharing a descriptor.
type group struct {
	descriptor string
	records    []imgcoll.Record
}

func groupByDescriptor(records []imgcoll.Record) []group {
	var groups []group
	for _, r := range records {
		if len(groups) > 0 && groups[len(groups)-1].descriptor == r.Descriptor {
			g := &groups[len(groups)-1]
			g.records = append(g.records, r)
			continue
		}
		groups = append(groups, group{descriptor: r.Descriptor, records: []imgcoll.Record{r}})
	}
	return groups
}

// ReadChunk groups the chunk's intersecting records by descriptor, opens
// and warps each group through the raster backend, and composites the
// results into a single chunk buffer.
func (s *SourceCube) ReadChunk(ctx context.Context, id int) (chunkbuf.Buffer, error) {
	ref := s.STRef()
	chunkSize := s.ChunkSize()
	grid := stref.Grid{Ref: ref, Chunk: chunkSize}

	n := grid.CountChunks()
	if id < 0 || id >= n {
		return chunkbuf.Buffer{}, chunkRangeError(id, n)
	}

	bounds, err := grid.BoundsFromChunk(id)
	if err != nil {
		return chunkbuf.Buffer{}, err
	}
	ct, cy, cx, err := grid.ChunkSizeAt(id)
	if err != nil {
		return chunkbuf.Buffer{}, err
	}

	bands := s.Bands()

	query := imgcoll.Bounds{
		Left: bounds.Left, Right: bounds.Right, Bottom: bounds.Bottom, Top: bounds.Top,
		SRS: ref.SRS, From: bounds.T0, To: bounds.T1,
	}
	records, err := s.collection.FindRangeST(ctx, query, imgcoll.OrderByDescriptor)
	if err != nil {
		return chunkbuf.Buffer{}, fmt.Errorf("cube: find_range_st: %w", err)
	}
	if len(records) == 0 {
		return chunkbuf.Empty(len(bands)), nil
	}

	out := chunkbuf.New(chunkbuf.Size{B: len(bands), T: ct, Y: cy, X: cx})

	var reducers []reducer
	if s.aggregate != AggNone {
		reducers = make([]reducer, len(bands))
		for i := range bands {
			reducers[i] = newReducer(s.aggregate)
		}
	}

	for _, g := range groupByDescriptor(records) {
		if err := s.readGroup(ctx, g, ref, bounds, bands, out, reducers); err != nil {
			return chunkbuf.Buffer{}, err
		}
	}

	if reducers != nil {
		for i, r := range reducers {
			r.finalize(out.BandSlice(i))
		}
	}

	return out, nil
}

// sourcePlan pairs a source record with the output band index it fills.
type sourcePlan struct {
	rec     imgcoll.Record
	bandIdx int
}

func (s *SourceCube) readGroup(ctx context.Context, g group, ref stref.STRef, bounds stref.Bounds, bands []bandspec.Band, out chunkbuf.Buffer, reducers []reducer) error {
	size := out.Size()

	// Resolve which group records map to a declared output band, and
	// collect their nodata declarations for the complete/partial check.
	var plan []sourcePlan
	for _, rec := range g.records {
		bi := bandspec.Index(bands, rec.BandName)
		if bi < 0 {
			continue // source band not in this cube's declared output
		}
		plan = append(plan, sourcePlan{rec: rec, bandIdx: bi})
	}
	if len(plan) == 0 {
		return nil
	}

	srcNodata, ok := s.resolveSrcNodata(plan)
	if !ok {
		s.logger.Warn("partial nodata metadata for file group, omitting srcnodata", "descriptor", g.descriptor)
	}

	src, err := s.backend.Open(ctx, g.descriptor)
	if err != nil {
		return fmt.Errorf("cube: open %q: %w", g.descriptor, err)
	}
	defer src.Close()

	req := rasterio.WarpRequest{
		DstSRS:     ref.SRS,
		Left:       bounds.Left,
		Bottom:     bounds.Bottom,
		Right:      bounds.Right,
		Top:        bounds.Top,
		Width:      size.X,
		Height:     size.Y,
		Resampling: s.View().Resampling,
		NumThreads: s.numThreads,
	}
	for _, p := range plan {
		req.Bands = append(req.Bands, p.rec.BandNum)
	}
	if ok {
		req.SrcNodata = srcNodata
	}

	res, err := src.Warp(ctx, req)
	if err != nil {
		return fmt.Errorf("cube: warp %q: %w", g.descriptor, err)
	}
	if len(res.Bands) != len(plan) {
		return fmt.Errorf("cube: warp %q returned %d bands, want %d", g.descriptor, len(res.Bands), len(plan))
	}

	for i, p := range plan {
		tIndex := stref.StepsBetween(bounds.T0, p.rec.Datetime, ref.DT)
		if tIndex < 0 || tIndex >= int64(size.T) {
			continue
		}
		warped := res.Bands[i]
		bandSlice := out.BandSlice(p.bandIdx)

		for y := 0; y < size.Y; y++ {
			for x := 0; x < size.X; x++ {
				v := warped[y*size.X+x]
				idx := size.LocalIndex(int(tIndex), y, x)
				if s.aggregate == AggNone {
					bandSlice[idx] = v
					continue
				}
				if math.IsNaN(v) {
					continue
				}
				reducers[p.bandIdx].update(bandSlice, idx, v)
			}
		}
	}
	return nil
}

// resolveSrcNodata returns, for the bands in plan (in order), the nodata
// value to pass to the raster backend, and whether the declaration was
// usable at all (complete, or a single shared value across all bands).
// A partial declaration returns ok=false and the caller omits srcnodata.
func (s *SourceCube) resolveSrcNodata(plan []sourcePlan) ([]float64, bool) {
	values := make([]float64, len(plan))
	declared := make([]bool, len(plan))
	for i, p := range plan {
		nd := s.lookupNodata(p.rec.BandName)
		if nd == "" {
			continue
		}
		v, err := strconv.ParseFloat(nd, 64)
		if err != nil {
			continue
		}
		values[i] = v
		declared[i] = true
	}

	nDeclared := 0
	for _, d := range declared {
		if d {
			nDeclared++
		}
	}
	if nDeclared == len(plan) {
		return values, true
	}
	if nDeclared == 0 {
		return nil, true // nothing declared at all is not "partial"; just pass nothing
	}
	// Check for a single shared value among the declared ones.
	var shared float64
	sharedSet := false
	allShared := true
	for i, d := range declared {
		if !d {
			continue
		}
		if !sharedSet {
			shared = values[i]
			sharedSet = true
			continue
		}
		if values[i] != shared {
			allShared = false
			break
		}
	}
	if allShared && sharedSet {
		filled := make([]float64, len(plan))
		for i := range filled {
			filled[i] = shared
		}
		return filled, true
	}
	return nil, false
}

func (s *SourceCube) lookupNodata(bandName string) string {
	for _, b := range s.collBands {
		if strings.EqualFold(b.Name, bandName) {
			return b.Nodata
		}
	}
	return ""
}

// sourceCubeJSON is the wire shape for ToJSON/the factory.
type sourceCubeJSON struct {
	CubeType    string     `json:"cube_type"`
	View        viewJSON   `json:"view"`
	Bands       []bandJSON `json:"bands"`
	ChunkSize   [3]int     `json:"chunk_size"`
	Aggregation string     `json:"aggregation"`
	Resampling  string     `json:"resampling"`
}

type viewJSON struct {
	stref.JSON
}

func (s *SourceCube) ToJSON() (json.RawMessage, error) {
	cs := s.ChunkSize()
	return json.Marshal(sourceCubeJSON{
		CubeType:    "image_collection",
		View:        viewJSON{s.STRef().ToJSON()},
		Bands:       bandsToJSON(s.Bands()),
		ChunkSize:   [3]int{cs.T, cs.Y, cs.X},
		Aggregation: s.aggregate.String(),
		Resampling:  s.View().Resampling,
	})
}
