// Package cubefactory materializes a cube DAG from its JSON description,
// dispatching on the cube_type tag and constructing children before
// parents.
package cubefactory

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"cubed/internal/cube"
	"cubed/internal/imgcoll"
	"cubed/internal/logging"
	"cubed/internal/rasterio"
	"cubed/internal/stref"
)

// Factory holds the external collaborators an image_collection leaf needs
// that are never carried in the JSON descriptor itself: the server runs
// against a single collection and backend, injected once at startup, so
// "image_collection" descriptors only ever need to carry their inline view.
type Factory struct {
	Collection imgcoll.Collection
	Backend    rasterio.Backend
	NumThreads int
	Logger     *slog.Logger
}

type envelope struct {
	CubeType string `json:"cube_type"`
}

// ErrUnknownCubeType is wrapped into every unrecognized-tag failure so
// callers at the API boundary can recognize it as invalid-configuration.
type ErrUnknownCubeType string

func (e ErrUnknownCubeType) Error() string { return fmt.Sprintf("cubefactory: unknown cube_type %q", string(e)) }

// Build recursively constructs the DAG described by raw, wiring each
// operator to its already-built in_cube before returning.
func (f *Factory) Build(ctx context.Context, raw json.RawMessage) (cube.Cube, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("cubefactory: decode envelope: %w", err)
	}

	switch env.CubeType {
	case "image_collection":
		return f.buildSource(ctx, raw)
	case "apply_pixel":
		return f.buildApply(ctx, raw)
	case "filter_predicate":
		return f.buildFilter(ctx, raw)
	case "fill_time":
		return f.buildFillTime(ctx, raw)
	case "":
		return nil, fmt.Errorf("cubefactory: missing cube_type")
	default:
		return nil, ErrUnknownCubeType(env.CubeType)
	}
}

// sourceWire mirrors cube.SourceCube.ToJSON's shape. The view's STRef
// fields are flattened directly into the "view" object (stref.JSON is
// embedded without a tag on the producing side), so they're decoded the
// same way here.
type sourceWire struct {
	CubeType string `json:"cube_type"`
	View     struct {
		stref.JSON
	} `json:"view"`
	ChunkSize   [3]int `json:"chunk_size"`
	Aggregation string `json:"aggregation"`
	Resampling  string `json:"resampling"`
}

func (f *Factory) buildSource(ctx context.Context, raw json.RawMessage) (cube.Cube, error) {
	var w sourceWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("cubefactory: decode image_collection: %w", err)
	}
	ref, err := stref.FromJSON(w.View.JSON)
	if err != nil {
		return nil, fmt.Errorf("cubefactory: image_collection view: %w", err)
	}
	agg, err := cube.ParseAggMethod(w.Aggregation)
	if err != nil {
		return nil, fmt.Errorf("cubefactory: image_collection: %w", err)
	}
	chunkSize := stref.ChunkSize{T: w.ChunkSize[0], Y: w.ChunkSize[1], X: w.ChunkSize[2]}

	sc, err := cube.NewSourceCube(ctx, f.Collection, f.Backend, ref, chunkSize, agg, w.Resampling, f.NumThreads, logging.Default(f.Logger))
	if err != nil {
		return nil, fmt.Errorf("cubefactory: image_collection: %w", err)
	}
	return sc, nil
}

type applyWire struct {
	CubeType  string          `json:"cube_type"`
	Expr      []string        `json:"expr"`
	BandNames []string        `json:"band_names,omitempty"`
	InCube    json.RawMessage `json:"in_cube"`
}

func (f *Factory) buildApply(ctx context.Context, raw json.RawMessage) (cube.Cube, error) {
	var w applyWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("cubefactory: decode apply_pixel: %w", err)
	}
	in, err := f.buildInCube(ctx, w.InCube, "apply_pixel")
	if err != nil {
		return nil, err
	}
	ac, err := cube.NewApplyCube(in, w.Expr, w.BandNames)
	if err != nil {
		return nil, fmt.Errorf("cubefactory: apply_pixel: %w", err)
	}
	return ac, nil
}

type filterWire struct {
	CubeType  string          `json:"cube_type"`
	Predicate string          `json:"predicate"`
	InCube    json.RawMessage `json:"in_cube"`
}

func (f *Factory) buildFilter(ctx context.Context, raw json.RawMessage) (cube.Cube, error) {
	var w filterWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("cubefactory: decode filter_predicate: %w", err)
	}
	in, err := f.buildInCube(ctx, w.InCube, "filter_predicate")
	if err != nil {
		return nil, err
	}
	fc, err := cube.NewFilterCube(in, w.Predicate)
	if err != nil {
		return nil, fmt.Errorf("cubefactory: filter_predicate: %w", err)
	}
	return fc, nil
}

type fillTimeWire struct {
	CubeType string          `json:"cube_type"`
	Method   string          `json:"method"`
	InCube   json.RawMessage `json:"in_cube"`
}

func (f *Factory) buildFillTime(ctx context.Context, raw json.RawMessage) (cube.Cube, error) {
	var w fillTimeWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("cubefactory: decode fill_time: %w", err)
	}
	in, err := f.buildInCube(ctx, w.InCube, "fill_time")
	if err != nil {
		return nil, err
	}
	return cube.NewFillTimeCube(in, w.Method, logging.Default(f.Logger)), nil
}

func (f *Factory) buildInCube(ctx context.Context, raw json.RawMessage, tag string) (cube.Cube, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("cubefactory: %s: missing in_cube", tag)
	}
	in, err := f.Build(ctx, raw)
	if err != nil {
		return nil, fmt.Errorf("cubefactory: %s: in_cube: %w", tag, err)
	}
	return in, nil
}
