package kernel

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/compute"

	"github.com/blazingsql/engine/pkg/engine/internal/planner/physical"
)

// vectorFunction is an Arrow compute function evaluating an operator a
// column at a time.
type vectorFunction struct {
	name string
	// arity is the number of operands, or 0 for two or more operands folded
	// from left to right.
	arity   int
	accepts func(arrow.Type) bool
}

func (f vectorFunction) takes(n int) bool {
	if f.arity == 0 {
		return n >= 2
	}
	return n == f.arity
}

// Floats are compared row by row: compareValues orders NaN, the compute
// kernels do not.
func isOrdered(id arrow.Type) bool   { return id == arrow.INT64 || id == arrow.STRING }
func isArithmetic(id arrow.Type) bool { return id == arrow.INT64 || id == arrow.FLOAT64 }
func isBoolean(id arrow.Type) bool    { return id == arrow.BOOL }
func anyType(arrow.Type) bool         { return true }

// Division and modulo are missing since they must fail on a zero divisor.
var vectorFunctions = map[string]vectorFunction{
	"=":  {name: "equal", arity: 2, accepts: isOrdered},
	"<>": {name: "not_equal", arity: 2, accepts: isOrdered},
	"<":  {name: "less", arity: 2, accepts: isOrdered},
	"<=": {name: "less_equal", arity: 2, accepts: isOrdered},
	">":  {name: "greater", arity: 2, accepts: isOrdered},
	">=": {name: "greater_equal", arity: 2, accepts: isOrdered},

	"+": {name: "add_unchecked", arity: 2, accepts: isArithmetic},
	"-": {name: "subtract_unchecked", arity: 2, accepts: isArithmetic},
	"*": {name: "multiply_unchecked", arity: 2, accepts: isArithmetic},

	"AND": {name: "and_kleene", accepts: isBoolean},
	"OR":  {name: "or_kleene", accepts: isBoolean},
	"NOT": {name: "not", arity: 1, accepts: isBoolean},

	"IS NULL":     {name: "is_null", arity: 1, accepts: anyType},
	"IS NOT NULL": {name: "is_not_null", arity: 1, accepts: anyType},
}

// evalVector evaluates expr with Arrow compute functions. It returns false
// when a part of expr has no function for its operand types or only reads
// literals, in which case nothing was evaluated. All operands of a function
// must have the same type.
func (e *evaluator) evalVector(expr physical.Expression, rec arrow.Record) (compute.Datum, bool, error) {
	switch expr := expr.(type) {
	case *physical.ColumnRef:
		if expr.Index < 0 || expr.Index >= int(rec.NumCols()) {
			return nil, false, nil
		}
		return compute.NewDatum(rec.Column(expr.Index)), true, nil

	case *physical.Literal:
		v := expr.Value
		if v != nil && expr.TypeName != "" {
			var err error
			if v, err = castValue(v, castKind(expr.TypeName)); err != nil {
				return nil, false, nil
			}
		}
		switch v.(type) {
		case int64, float64, string, bool:
			return compute.NewDatum(v), true, nil
		}
		return nil, false, nil

	case *physical.Call:
		fn, ok := vectorFunctions[expr.Op]
		if !ok || !fn.takes(len(expr.Args)) {
			return nil, false, nil
		}

		var columnar bool
		args := make([]compute.Datum, 0, len(expr.Args))
		defer func() {
			for _, arg := range args {
				arg.Release()
			}
		}()
		for _, argExpr := range expr.Args {
			arg, ok, err := e.evalVector(argExpr, rec)
			if err != nil || !ok {
				return nil, false, err
			}
			args = append(args, arg)
			if _, isArray := arg.(*compute.ArrayDatum); isArray {
				columnar = true
			}

			id := datumType(arg).ID()
			if !fn.accepts(id) || id != datumType(args[0]).ID() {
				return nil, false, nil
			}
		}
		if !columnar {
			return nil, false, nil
		}

		if fn.arity == 1 {
			res, err := compute.CallFunction(e.ctx, fn.name, nil, args[0])
			if err != nil {
				return nil, false, fmt.Errorf("evaluating %s: %w", expr, err)
			}
			return res, true, nil
		}

		res, err := compute.CallFunction(e.ctx, fn.name, nil, args[0], args[1])
		for _, next := range args[2:] {
			if err != nil {
				break
			}
			prev := res
			res, err = compute.CallFunction(e.ctx, fn.name, nil, prev, next)
			prev.Release()
		}
		if err != nil {
			return nil, false, fmt.Errorf("evaluating %s: %w", expr, err)
		}
		return res, true, nil

	default:
		return nil, false, nil
	}
}

func datumType(d compute.Datum) arrow.DataType {
	if d, ok := d.(compute.ArrayLikeDatum); ok {
		return d.Type()
	}
	return arrow.Null
}
