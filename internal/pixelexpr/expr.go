package pixelexpr

import "strings"

// Expr is a compiled scalar expression bound to a fixed band symbol
// table. Evaluation binds symbols through a caller-owned values slice
// (see Context), so symbol lookups do not allocate per cell; each function
// call in the expression does allocate its argument slice per evaluation.
type Expr struct {
	root  node
	bands []string // lower-cased, index-aligned with Context.Values
	used  []bool   // bands actually referenced, same indexing
}

// Compile parses expr against the given input band names (compared
// case-insensitively) plus the standard function set. A parse error or
// unknown identifier is returned verbatim — callers at the API boundary
// wrap it as an invalid-configuration error before any chunk reads begin.
//
// expr is lower-cased before parsing and bands are lower-cased for
// lookup, per the data model's case-insensitivity rule.
func Compile(expr string, bandNames []string) (*Expr, error) {
	lowered := strings.ToLower(expr)

	symbols := make(map[string]int, len(bandNames))
	lcBands := make([]string, len(bandNames))
	for i, n := range bandNames {
		lc := strings.ToLower(n)
		lcBands[i] = lc
		symbols[lc] = i
	}

	p, err := newParser(lowered, symbols)
	if err != nil {
		return nil, err
	}
	root, err := p.parse()
	if err != nil {
		return nil, err
	}

	used := make([]bool, len(bandNames))
	for idx := range p.used {
		used[idx] = true
	}

	return &Expr{root: root, bands: lcBands, used: used}, nil
}

// UsedBands returns the subset of the compile-time band names this
// expression actually references, in their original declared order. This
// is the band-usage set the data model describes as an optimization: it
// lets a caller skip materializing bands no expression touches.
func (e *Expr) UsedBands(bandNames []string) []string {
	var out []string
	for i, used := range e.used {
		if used && i < len(bandNames) {
			out = append(out, bandNames[i])
		}
	}
	return out
}

// Context is a reusable per-cell evaluation buffer: Values[i] holds the
// current cell's value for the i-th band in the Expr's symbol table.
// Callers overwrite Values in place between evaluations instead of
// allocating a new Context per cell.
type Context struct {
	Values []float64
}

// NewContext allocates a Context sized for e's symbol table.
func (e *Expr) NewContext() Context {
	return Context{Values: make([]float64, len(e.bands))}
}

// Eval evaluates the expression against ctx's current values.
func (e *Expr) Eval(ctx Context) float64 {
	return e.root.eval(ctx.Values)
}

// AnyReferencedNaN reports whether any band this expression actually
// references holds NaN in ctx. Apply-pixel uses this to force a NaN
// result even for sub-expressions (e.g. comparisons) whose arithmetic
// wouldn't otherwise propagate a NaN operand.
func (e *Expr) AnyReferencedNaN(ctx Context) bool {
	for i, used := range e.used {
		if used && isNaN(ctx.Values[i]) {
			return true
		}
	}
	return false
}

func isNaN(f float64) bool { return f != f }
