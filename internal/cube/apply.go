package cube

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"cubed/internal/bandspec"
	"cubed/internal/chunkbuf"
	"cubed/internal/pixelexpr"
)

// ApplyCube produces one output band per compiled expression, evaluated
// per cell against its input cube's current band values.
type ApplyCube struct {
	Base

	in      Cube
	exprs   []*pixelexpr.Expr
	exprSrc []string
}

// NewApplyCube compiles exprs against in's declared bands and wires in as
// this cube's owned child. A parse error in any expression is returned
// before any chunk reads begin (construction-time validation).
func NewApplyCube(in Cube, exprs []string, outNames []string) (*ApplyCube, error) {
	inBandNames := bandNames(in.Bands())

	compiled := make([]*pixelexpr.Expr, len(exprs))
	for i, src := range exprs {
		e, err := pixelexpr.Compile(src, inBandNames)
		if err != nil {
			return nil, fmt.Errorf("cube: apply_pixel: compile expression %d (%q): %w", i, src, err)
		}
		compiled[i] = e
	}

	outBands := make([]bandspec.Band, len(exprs))
	for i := range exprs {
		name := fmt.Sprintf("band%d", i+1)
		if i < len(outNames) && outNames[i] != "" {
			name = outNames[i]
		}
		outBands[i] = bandspec.Band{Name: name, Unit: "", Nodata: "nan", Type: "float64", Scale: 1, Offset: 0}
	}

	ac := &ApplyCube{
		Base:    NewBase(in.View().Ref, outBands, in.ChunkSize()),
		in:      in,
		exprs:   compiled,
		exprSrc: append([]string(nil), exprs...),
	}
	Wire(ac, in)
	return ac, nil
}

func bandNames(bands []bandspec.Band) []string {
	names := make([]string, len(bands))
	for i, b := range bands {
		names[i] = b.Name
	}
	return names
}

func (a *ApplyCube) ReadChunk(ctx context.Context, id int) (chunkbuf.Buffer, error) {
	in, err := a.in.ReadChunk(ctx, id)
	if err != nil {
		return chunkbuf.Buffer{}, err
	}
	if in.Empty() {
		return chunkbuf.Empty(len(a.exprs)), nil
	}

	size := in.Size()
	out := chunkbuf.New(chunkbuf.Size{B: len(a.exprs), T: size.T, Y: size.Y, X: size.X})

	ctxs := make([]pixelexpr.Context, len(a.exprs))
	for i, e := range a.exprs {
		ctxs[i] = e.NewContext()
	}

	nIn := len(a.in.Bands())
	for t := 0; t < size.T; t++ {
		for y := 0; y < size.Y; y++ {
			for x := 0; x < size.X; x++ {
				for _, c := range ctxs {
					for b := 0; b < nIn && b < len(c.Values); b++ {
						c.Values[b] = in.At(b, t, y, x)
					}
				}
				for i, e := range a.exprs {
					v := e.Eval(ctxs[i])
					if e.AnyReferencedNaN(ctxs[i]) {
						v = math.NaN()
					}
					out.Set(i, t, y, x, v)
				}
			}
		}
	}
	return out, nil
}

type applyCubeJSON struct {
	CubeType  string          `json:"cube_type"`
	Expr      []string        `json:"expr"`
	BandNames []string        `json:"band_names,omitempty"`
	InCube    json.RawMessage `json:"in_cube"`
}

func (a *ApplyCube) ToJSON() (json.RawMessage, error) {
	inJSON, err := a.in.ToJSON()
	if err != nil {
		return nil, err
	}
	return json.Marshal(applyCubeJSON{
		CubeType:  "apply_pixel",
		Expr:      a.exprSrc,
		BandNames: bandNames(a.Bands()),
		InCube:    inJSON,
	})
}
