package pixelexpr

import (
	"fmt"
	"math"
)

// Func evaluates a call's already-evaluated arguments to a result. NaN
// propagates through every function the same way it does through
// arithmetic: no function special-cases a NaN argument.
type Func func(args []float64) float64

// FuncNames lists the standard numeric functions available to both
// apply-pixel and filter-predicate expressions, the same set as the
// functions table below. The parser validates calls against that table,
// not against this list.
var FuncNames = []string{
	"abs", "ceil", "floor", "sqrt", "log", "log10", "log2", "exp",
	"pow", "min", "max", "round",
}

type funcDef struct {
	arity func(n int) error
	eval  Func
}

func exactArity(want int) func(int) error {
	return func(n int) error {
		if n != want {
			return fmt.Errorf("requires exactly %d argument(s), got %d", want, n)
		}
		return nil
	}
}

var functions = map[string]funcDef{
	"abs":   {arity: exactArity(1), eval: unary(math.Abs)},
	"ceil":  {arity: exactArity(1), eval: unary(math.Ceil)},
	"floor": {arity: exactArity(1), eval: unary(math.Floor)},
	"sqrt":  {arity: exactArity(1), eval: unary(math.Sqrt)},
	"log":   {arity: exactArity(1), eval: unary(math.Log)},
	"log10": {arity: exactArity(1), eval: unary(math.Log10)},
	"log2":  {arity: exactArity(1), eval: unary(math.Log2)},
	"exp":   {arity: exactArity(1), eval: unary(math.Exp)},
	"pow":   {arity: exactArity(2), eval: binary(math.Pow)},
	"min":   {arity: exactArity(2), eval: binary(math.Min)},
	"max":   {arity: exactArity(2), eval: binary(math.Max)},
	"round": {arity: exactArity(1), eval: unary(math.Round)},
}

func unary(fn func(float64) float64) Func {
	return func(args []float64) float64 { return fn(args[0]) }
}

func binary(fn func(float64, float64) float64) Func {
	return func(args []float64) float64 { return fn(args[0], args[1]) }
}
