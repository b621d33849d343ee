package cube

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"

	"cubed/internal/chunkbuf"
	"cubed/internal/logging"
)

// FillTimeCube fills NaN values along the time axis per (band, y, x)
// pixel series. Output bands are copied from input; the operator does not
// change band metadata.
type FillTimeCube struct {
	Base

	in     Cube
	method string
	logger *slog.Logger
}

var validFillMethods = map[string]bool{"near": true, "linear": true, "locf": true, "nocb": true}

// NewFillTimeCube wires in as this cube's owned child. An unrecognized
// method is downgraded to "near" with a logged warning rather than
// rejected — fill-time methods are not part of the invalid-configuration
// taxonomy.
func NewFillTimeCube(in Cube, method string, logger *slog.Logger) *FillTimeCube {
	logger = logging.Default(logger).With("component", "fill_time_cube")
	if !validFillMethods[method] {
		logger.Warn("unknown fill-time method, downgrading to near", "method", method)
		method = "near"
	}
	fc := &FillTimeCube{
		Base:   NewBase(in.View().Ref, in.Bands(), in.ChunkSize()),
		in:     in,
		method: method,
		logger: logger,
	}
	Wire(fc, in)
	return fc
}

func (f *FillTimeCube) ReadChunk(ctx context.Context, id int) (chunkbuf.Buffer, error) {
	in, err := f.in.ReadChunk(ctx, id)
	if err != nil {
		return chunkbuf.Buffer{}, err
	}
	if in.Empty() {
		return chunkbuf.Empty(len(f.Bands())), nil
	}

	size := in.Size()
	out := chunkbuf.New(size)
	series := make([]float64, size.T)

	for b := 0; b < size.B; b++ {
		for y := 0; y < size.Y; y++ {
			for x := 0; x < size.X; x++ {
				for t := 0; t < size.T; t++ {
					series[t] = in.At(b, t, y, x)
				}
				filled := fillSeries(series, f.method)
				for t := 0; t < size.T; t++ {
					out.Set(b, t, y, x, filled[t])
				}
			}
		}
	}
	return out, nil
}

// fillSeries returns a new slice; it never mutates vals.
func fillSeries(vals []float64, method string) []float64 {
	out := make([]float64, len(vals))
	copy(out, vals)

	switch method {
	case "locf":
		var last float64 = math.NaN()
		haveLast := false
		for t := range out {
			if !math.IsNaN(out[t]) {
				last = out[t]
				haveLast = true
				continue
			}
			if haveLast {
				out[t] = last
			}
		}
	case "nocb":
		var next float64 = math.NaN()
		haveNext := false
		for t := len(out) - 1; t >= 0; t-- {
			if !math.IsNaN(out[t]) {
				next = out[t]
				haveNext = true
				continue
			}
			if haveNext {
				out[t] = next
			}
		}
	case "linear":
		fillLinear(out)
	default: // "near"
		fillNear(out)
	}
	return out
}

func fillNear(out []float64) {
	n := len(out)
	known := knownIndices(out)
	if len(known) == 0 {
		return
	}
	for t := 0; t < n; t++ {
		if !math.IsNaN(out[t]) {
			continue
		}
		best := known[0]
		bestDist := absInt(t - best)
		for _, k := range known[1:] {
			d := absInt(t - k)
			if d < bestDist || (d == bestDist && k < best) {
				best = k
				bestDist = d
			}
		}
		out[t] = out[best]
	}
}

func fillLinear(out []float64) {
	n := len(out)
	known := knownIndices(out)
	if len(known) == 0 {
		return
	}
	if len(known) == 1 {
		k := known[0]
		for t := 0; t < n; t++ {
			out[t] = out[k]
		}
		return
	}
	for t := 0; t < n; t++ {
		if !math.IsNaN(out[t]) {
			continue
		}
		// Find the nearest known index before and after t.
		var before, after int
		haveBefore, haveAfter := false, false
		for _, k := range known {
			if k < t {
				before = k
				haveBefore = true
			}
			if k > t && !haveAfter {
				after = k
				haveAfter = true
			}
		}
		switch {
		case haveBefore && haveAfter:
			frac := float64(t-before) / float64(after-before)
			out[t] = out[before] + frac*(out[after]-out[before])
		case haveBefore:
			out[t] = out[before]
		case haveAfter:
			out[t] = out[after]
		}
	}
}

func knownIndices(vals []float64) []int {
	var known []int
	for i, v := range vals {
		if !math.IsNaN(v) {
			known = append(known, i)
		}
	}
	return known
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

type fillTimeCubeJSON struct {
	CubeType string          `json:"cube_type"`
	Method   string          `json:"method"`
	InCube   json.RawMessage `json:"in_cube"`
}

func (f *FillTimeCube) ToJSON() (json.RawMessage, error) {
	inJSON, err := f.in.ToJSON()
	if err != nil {
		return nil, err
	}
	return json.Marshal(fillTimeCubeJSON{
		CubeType: "fill_time",
		Method:   f.method,
		InCube:   inJSON,
	})
}
