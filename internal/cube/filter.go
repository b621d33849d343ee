package cube

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"cubed/internal/chunkbuf"
	"cubed/internal/pixelexpr"
)

// FilterCube produces a chunk with the same bands as its input, evaluating
// a single boolean expression per cell: true copies all input-band values
// through, false writes NaN to every output band at that cell.
type FilterCube struct {
	Base

	in         Cube
	predicate  *pixelexpr.Expr
	predicateSrc string
}

// NewFilterCube compiles predicate against in's declared bands and wires
// in as this cube's owned child.
func NewFilterCube(in Cube, predicate string) (*FilterCube, error) {
	e, err := pixelexpr.Compile(predicate, bandNames(in.Bands()))
	if err != nil {
		return nil, fmt.Errorf("cube: filter_predicate: compile predicate %q: %w", predicate, err)
	}

	fc := &FilterCube{
		Base:         NewBase(in.View().Ref, in.Bands(), in.ChunkSize()),
		in:           in,
		predicate:    e,
		predicateSrc: predicate,
	}
	Wire(fc, in)
	return fc, nil
}

func (f *FilterCube) ReadChunk(ctx context.Context, id int) (chunkbuf.Buffer, error) {
	in, err := f.in.ReadChunk(ctx, id)
	if err != nil {
		return chunkbuf.Buffer{}, err
	}
	if in.Empty() {
		return chunkbuf.Empty(len(f.Bands())), nil
	}

	size := in.Size()
	out := chunkbuf.New(size)
	pctx := f.predicate.NewContext()

	for t := 0; t < size.T; t++ {
		for y := 0; y < size.Y; y++ {
			for x := 0; x < size.X; x++ {
				for b := 0; b < size.B && b < len(pctx.Values); b++ {
					pctx.Values[b] = in.At(b, t, y, x)
				}
				keep := f.predicate.Eval(pctx) != 0 && !f.predicate.AnyReferencedNaN(pctx)
				for b := 0; b < size.B; b++ {
					if keep {
						out.Set(b, t, y, x, in.At(b, t, y, x))
					} else {
						out.Set(b, t, y, x, math.NaN())
					}
				}
			}
		}
	}
	return out, nil
}

type filterCubeJSON struct {
	CubeType  string          `json:"cube_type"`
	Predicate string          `json:"predicate"`
	InCube    json.RawMessage `json:"in_cube"`
}

func (f *FilterCube) ToJSON() (json.RawMessage, error) {
	inJSON, err := f.in.ToJSON()
	if err != nil {
		return nil, err
	}
	return json.Marshal(filterCubeJSON{
		CubeType:  "filter_predicate",
		Predicate: f.predicateSrc,
		InCube:    inJSON,
	})
}
