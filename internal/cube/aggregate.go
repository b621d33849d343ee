package cube

import (
	"math"
	"sort"
)

// AggMethod is the per-cell reducer an image-collection source cube
// applies when multiple source observations map to the same output cell.
type AggMethod int

const (
	AggNone AggMethod = iota
	AggFirst
	AggLast
	AggMin
	AggMax
	AggMean
	AggMedian
)

func (m AggMethod) String() string {
	switch m {
	case AggNone:
		return "none"
	case AggFirst:
		return "first"
	case AggLast:
		return "last"
	case AggMin:
		return "min"
	case AggMax:
		return "max"
	case AggMean:
		return "mean"
	case AggMedian:
		return "median"
	default:
		return "unknown"
	}
}

// ParseAggMethod parses the JSON-level aggregation method name.
func ParseAggMethod(s string) (AggMethod, error) {
	switch s {
	case "none":
		return AggNone, nil
	case "first":
		return AggFirst, nil
	case "last":
		return AggLast, nil
	case "min":
		return AggMin, nil
	case "max":
		return AggMax, nil
	case "mean":
		return AggMean, nil
	case "median":
		return AggMedian, nil
	default:
		return 0, errInvalidAggMethod(s)
	}
}

type invalidAggMethodError string

func (e invalidAggMethodError) Error() string { return "cube: unknown aggregation method " + string(e) }

func errInvalidAggMethod(s string) error { return invalidAggMethodError(s) }

// reducer folds non-NaN source samples for one output band into that
// band's output slice. update is never called with a NaN v — callers
// filter NaN source samples before calling it, per the data model's
// "inputs are the set of source samples S with NaN filtered out".
//
// AggNone has no reducer: the source cube copies warped values straight
// into the output slice, unconditionally overwriting on every group (see
// DESIGN.md's resolution of the NONE aggregation open question).
type reducer interface {
	update(out []float64, idx int, v float64)
	finalize(out []float64)
}

func newReducer(m AggMethod) reducer {
	switch m {
	case AggFirst:
		return &firstLastReducer{overwrite: false}
	case AggLast:
		return &firstLastReducer{overwrite: true}
	case AggMin:
		return &minMaxReducer{pickMin: true}
	case AggMax:
		return &minMaxReducer{pickMin: false}
	case AggMean:
		return &meanReducer{counts: make(map[int]int32)}
	case AggMedian:
		return &medianReducer{samples: make(map[int][]float64)}
	default:
		return noopReducer{}
	}
}

type noopReducer struct{}

func (noopReducer) update(out []float64, idx int, v float64) {}
func (noopReducer) finalize(out []float64)                   {}

// firstLastReducer implements both FIRST (overwrite=false: earliest
// non-NaN sample in encounter order wins) and LAST (overwrite=true: every
// sample overwrites, so the final encountered value wins).
type firstLastReducer struct {
	overwrite bool
}

func (r *firstLastReducer) update(out []float64, idx int, v float64) {
	if r.overwrite || math.IsNaN(out[idx]) {
		out[idx] = v
	}
}

func (r *firstLastReducer) finalize(out []float64) {}

type minMaxReducer struct {
	pickMin bool
}

func (r *minMaxReducer) update(out []float64, idx int, v float64) {
	if math.IsNaN(out[idx]) {
		out[idx] = v
		return
	}
	if r.pickMin {
		if v < out[idx] {
			out[idx] = v
		}
	} else {
		if v > out[idx] {
			out[idx] = v
		}
	}
}

func (r *minMaxReducer) finalize(out []float64) {}

// meanReducer keeps a running mean per cell. The per-cell count is only
// materialized in the map starting from the second contribution — the
// first contribution just becomes the running value with an implicit
// count of one. Each update folds in the incoming sample against the
// running mean, not the other way around.
type meanReducer struct {
	counts map[int]int32
}

func (r *meanReducer) update(out []float64, idx int, v float64) {
	if math.IsNaN(out[idx]) {
		out[idx] = v
		return
	}
	c, ok := r.counts[idx]
	if !ok {
		c = 1
	}
	out[idx] = (out[idx]*float64(c) + v) / float64(c+1)
	r.counts[idx] = c + 1
}

func (r *meanReducer) finalize(out []float64) {}

// medianReducer collects every sample per cell (sparse: only cells with
// at least one contribution get a map entry) and sorts at finalize.
type medianReducer struct {
	samples map[int][]float64
}

func (r *medianReducer) update(out []float64, idx int, v float64) {
	r.samples[idx] = append(r.samples[idx], v)
}

func (r *medianReducer) finalize(out []float64) {
	for idx, vals := range r.samples {
		sort.Float64s(vals)
		n := len(vals)
		if n%2 == 1 {
			out[idx] = vals[n/2]
		} else {
			out[idx] = (vals[n/2-1] + vals[n/2]) / 2
		}
	}
}
