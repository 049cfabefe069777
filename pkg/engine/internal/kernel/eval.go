package kernel

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/compute"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/grafana/regexp"

	"github.com/blazingsql/engine/pkg/engine/internal/planner/physical"
)

var errDivisionByZero = errors.New("division by zero")

// evaluator computes expressions over records. It is not safe for
// concurrent use.
type evaluator struct {
	mem      memory.Allocator
	ctx      context.Context // Carries mem to compute functions.
	patterns map[string]*regexp.Regexp
}

func newEvaluator(mem memory.Allocator) *evaluator {
	return &evaluator{
		mem:      mem,
		ctx:      compute.WithAllocator(context.Background(), mem),
		patterns: make(map[string]*regexp.Regexp),
	}
}

// eval evaluates expr for every row of rec. The caller owns the returned
// array.
func (e *evaluator) eval(expr physical.Expression, rec arrow.Record) (arrow.Array, error) {
	if ref, ok := expr.(*physical.ColumnRef); ok {
		if ref.Index < 0 || ref.Index >= int(rec.NumCols()) {
			return nil, fmt.Errorf("column $%d out of range [0, %d)", ref.Index, rec.NumCols())
		}
		col := rec.Column(ref.Index)
		col.Retain()
		return col, nil
	}

	kind, err := resultKind(expr, rec.Schema())
	if err != nil {
		return nil, err
	}

	d, ok, err := e.evalVector(expr, rec)
	if err != nil {
		return nil, err
	} else if ok {
		defer d.Release()
		if ad, isArray := d.(*compute.ArrayDatum); isArray && arrow.TypeEqual(ad.Type(), kind.dataType()) {
			return ad.MakeArray(), nil
		}
	}
	return e.evalRows(expr, rec, kind)
}

// evalRows evaluates expr one row at a time into an array of kind.
func (e *evaluator) evalRows(expr physical.Expression, rec arrow.Record, kind valueKind) (arrow.Array, error) {
	b := newBuilder(e.mem, kind)
	defer b.Release()
	b.Reserve(int(rec.NumRows()))

	for i := 0; i < int(rec.NumRows()); i++ {
		v, err := e.evalRow(expr, rec, i)
		if err != nil {
			return nil, err
		}
		if err := appendValue(b, v); err != nil {
			return nil, fmt.Errorf("evaluating %s: %w", expr, err)
		}
	}
	return b.NewArray(), nil
}

// evalMask evaluates a predicate. Nulls in the result are treated as false
// by callers.
func (e *evaluator) evalMask(expr physical.Expression, rec arrow.Record) (*array.Boolean, error) {
	arr, err := e.eval(expr, rec)
	if err != nil {
		return nil, err
	}
	mask, ok := arr.(*array.Boolean)
	if !ok {
		err := fmt.Errorf("predicate %s evaluates to %s, not boolean", expr, arr.DataType())
		arr.Release()
		return nil, err
	}
	return mask, nil
}

func (e *evaluator) evalRow(expr physical.Expression, rec arrow.Record, row int) (any, error) {
	switch expr := expr.(type) {
	case *physical.ColumnRef:
		if expr.Index < 0 || expr.Index >= int(rec.NumCols()) {
			return nil, fmt.Errorf("column $%d out of range [0, %d)", expr.Index, rec.NumCols())
		}
		return valueAt(rec.Column(expr.Index), row), nil
	case *physical.Literal:
		if expr.TypeName != "" && expr.Value != nil {
			return castValue(expr.Value, castKind(expr.TypeName))
		}
		return expr.Value, nil
	case *physical.Call:
		return e.evalCall(expr, rec, row)
	default:
		return nil, fmt.Errorf("unsupported expression %T", expr)
	}
}

func (e *evaluator) evalArgs(call *physical.Call, rec arrow.Record, row int) ([]any, error) {
	args := make([]any, len(call.Args))
	for i, arg := range call.Args {
		v, err := e.evalRow(arg, rec, row)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	return args, nil
}

func (e *evaluator) evalCall(call *physical.Call, rec arrow.Record, row int) (any, error) {
	// CASE evaluates its branches lazily.
	if call.Op == "CASE" {
		return e.evalCase(call, rec, row)
	}

	args, err := e.evalArgs(call, rec, row)
	if err != nil {
		return nil, err
	}

	switch call.Op {
	case "AND":
		result := any(true)
		for _, v := range args {
			switch v {
			case false:
				return false, nil
			case nil:
				result = nil
			}
		}
		return result, nil
	case "OR":
		result := any(false)
		for _, v := range args {
			switch v {
			case true:
				return true, nil
			case nil:
				result = nil
			}
		}
		return result, nil
	case "NOT":
		if err := arity(call, 1); err != nil {
			return nil, err
		}
		if args[0] == nil {
			return nil, nil
		}
		b, ok := args[0].(bool)
		if !ok {
			return nil, fmt.Errorf("NOT expects a boolean, got %T", args[0])
		}
		return !b, nil
	case "IS NULL", "IS NOT NULL", "IS TRUE", "IS FALSE", "IS NOT TRUE", "IS NOT FALSE":
		if err := arity(call, 1); err != nil {
			return nil, err
		}
		return isPredicate(call.Op, args[0]), nil
	default:
		return e.evalScalarCall(call, args)
	}
}

func isPredicate(op string, v any) bool {
	switch op {
	case "IS NULL":
		return v == nil
	case "IS NOT NULL":
		return v != nil
	case "IS TRUE":
		return v == true
	case "IS FALSE":
		return v == false
	case "IS NOT TRUE":
		return v != true
	default:
		return v != false
	}
}

func (e *evaluator) evalScalarCall(call *physical.Call, args []any) (any, error) {
	switch call.Op {
	case "=", "<>", "<", "<=", ">", ">=":
		if err := arity(call, 2); err != nil {
			return nil, err
		}
		if args[0] == nil || args[1] == nil {
			return nil, nil
		}
		return compareOp(call.Op, compareValues(args[0], args[1])), nil
	case "+", "-", "*", "/", "%", "MOD":
		if call.Op == "-" && len(args) == 1 {
			return negate(args[0])
		}
		if err := arity(call, 2); err != nil {
			return nil, err
		}
		return arithmetic(call.Op, args[0], args[1])
	case "CAST":
		if err := arity(call, 1); err != nil {
			return nil, err
		}
		return castValue(args[0], castKind(call.TypeName))
	case "COALESCE":
		for _, v := range args {
			if v != nil {
				return v, nil
			}
		}
		return nil, nil
	case "LIKE", "NOT LIKE":
		if err := arity(call, 2); err != nil {
			return nil, err
		}
		if args[0] == nil || args[1] == nil {
			return nil, nil
		}
		re, err := e.likePattern(toString(args[1]))
		if err != nil {
			return nil, err
		}
		matched := re.MatchString(toString(args[0]))
		return matched == (call.Op == "LIKE"), nil
	case "||":
		var sb strings.Builder
		for _, v := range args {
			if v == nil {
				return nil, nil
			}
			sb.WriteString(toString(v))
		}
		return sb.String(), nil
	case "UPPER", "LOWER", "CHAR_LENGTH", "CHARACTER_LENGTH", "TRIM":
		if args[len(args)-1] == nil {
			return nil, nil
		}
		s := toString(args[len(args)-1])
		switch call.Op {
		case "UPPER":
			return strings.ToUpper(s), nil
		case "LOWER":
			return strings.ToLower(s), nil
		case "TRIM":
			return strings.TrimSpace(s), nil
		default:
			return int64(len([]rune(s))), nil
		}
	case "ABS":
		if err := arity(call, 1); err != nil {
			return nil, err
		}
		switch v := args[0].(type) {
		case nil:
			return nil, nil
		case int64:
			if v < 0 {
				return -v, nil
			}
			return v, nil
		case float64:
			return math.Abs(v), nil
		}
		return nil, fmt.Errorf("ABS expects a number, got %T", args[0])
	default:
		return nil, fmt.Errorf("unsupported function %s", call.Op)
	}
}

// evalCase evaluates CASE(cond1, value1, ..., condN, valueN, else).
func (e *evaluator) evalCase(call *physical.Call, rec arrow.Record, row int) (any, error) {
	n := len(call.Args)
	for i := 0; i+1 < n; i += 2 {
		cond, err := e.evalRow(call.Args[i], rec, row)
		if err != nil {
			return nil, err
		}
		if cond == true {
			return e.evalRow(call.Args[i+1], rec, row)
		}
	}
	if n%2 == 1 {
		return e.evalRow(call.Args[n-1], rec, row)
	}
	return nil, nil
}

// likePattern converts a SQL LIKE pattern into an anchored regular
// expression.
func (e *evaluator) likePattern(pattern string) (*regexp.Regexp, error) {
	if re, ok := e.patterns[pattern]; ok {
		return re, nil
	}

	var sb strings.Builder
	sb.WriteString("(?s)^")
	for _, r := range pattern {
		switch r {
		case '%':
			sb.WriteString(".*")
		case '_':
			sb.WriteString(".")
		default:
			sb.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	sb.WriteString("$")

	re, err := regexp.Compile(sb.String())
	if err != nil {
		return nil, err
	}
	e.patterns[pattern] = re
	return re, nil
}

func arity(call *physical.Call, n int) error {
	if len(call.Args) != n {
		return fmt.Errorf("%s expects %d arguments, got %d", call.Op, n, len(call.Args))
	}
	return nil
}

func compareOp(op string, c int) bool {
	switch op {
	case "=":
		return c == 0
	case "<>":
		return c != 0
	case "<":
		return c < 0
	case "<=":
		return c <= 0
	case ">":
		return c > 0
	default:
		return c >= 0
	}
}

func negate(v any) (any, error) {
	switch v := v.(type) {
	case nil:
		return nil, nil
	case int64:
		return -v, nil
	case float64:
		return -v, nil
	}
	return nil, fmt.Errorf("cannot negate %T", v)
}

func arithmetic(op string, a, b any) (any, error) {
	if a == nil || b == nil {
		return nil, nil
	}

	ai, aIsInt := a.(int64)
	bi, bIsInt := b.(int64)
	if aIsInt && bIsInt {
		switch op {
		case "+":
			return ai + bi, nil
		case "-":
			return ai - bi, nil
		case "*":
			return ai * bi, nil
		case "/":
			if bi == 0 {
				return nil, errDivisionByZero
			}
			return ai / bi, nil
		default:
			if bi == 0 {
				return nil, errDivisionByZero
			}
			return ai % bi, nil
		}
	}

	af, ok := toFloat(a)
	if !ok {
		return nil, fmt.Errorf("%s expects numbers, got %T", op, a)
	}
	bf, ok := toFloat(b)
	if !ok {
		return nil, fmt.Errorf("%s expects numbers, got %T", op, b)
	}
	switch op {
	case "+":
		return af + bf, nil
	case "-":
		return af - bf, nil
	case "*":
		return af * bf, nil
	case "/":
		if bf == 0 {
			return nil, errDivisionByZero
		}
		return af / bf, nil
	default:
		if bf == 0 {
			return nil, errDivisionByZero
		}
		return math.Mod(af, bf), nil
	}
}

// castKind maps an SQL type name such as `DECIMAL(10, 2) NOT NULL` to a
// value kind.
func castKind(typeName string) valueKind {
	name := strings.ToUpper(strings.TrimSpace(typeName))
	if i := strings.IndexAny(name, "( "); i >= 0 {
		name = name[:i]
	}
	switch name {
	case "TINYINT", "SMALLINT", "INTEGER", "INT", "BIGINT", "DATE", "TIMESTAMP":
		return kindInt
	case "FLOAT", "REAL", "DOUBLE", "DECIMAL", "NUMERIC":
		return kindFloat
	case "BOOLEAN":
		return kindBool
	default:
		return kindString
	}
}

func castValue(v any, k valueKind) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch k {
	case kindInt:
		if n, ok := toInt(v); ok {
			return n, nil
		}
	case kindFloat:
		if f, ok := toFloat(v); ok {
			return f, nil
		}
	case kindBool:
		switch v := v.(type) {
		case bool:
			return v, nil
		case int64:
			return v != 0, nil
		case string:
			switch strings.ToLower(strings.TrimSpace(v)) {
			case "true":
				return true, nil
			case "false":
				return false, nil
			}
		}
	case kindString:
		return toString(v), nil
	}
	return nil, fmt.Errorf("cannot cast %v (%T) to %s", v, v, k)
}

// resultKind infers the kind an expression evaluates to over schema.
func resultKind(expr physical.Expression, schema *arrow.Schema) (valueKind, error) {
	switch expr := expr.(type) {
	case *physical.ColumnRef:
		if expr.Index < 0 || expr.Index >= schema.NumFields() {
			return kindNull, fmt.Errorf("column $%d out of range [0, %d)", expr.Index, schema.NumFields())
		}
		return kindOf(schema.Field(expr.Index).Type), nil
	case *physical.Literal:
		if expr.TypeName != "" {
			return castKind(expr.TypeName), nil
		}
		return literalKind(expr.Value), nil
	case *physical.Call:
		return callKind(expr, schema)
	default:
		return kindNull, fmt.Errorf("unsupported expression %T", expr)
	}
}

func literalKind(v any) valueKind {
	switch v.(type) {
	case int64:
		return kindInt
	case float64:
		return kindFloat
	case string:
		return kindString
	case bool:
		return kindBool
	default:
		return kindNull
	}
}

func callKind(call *physical.Call, schema *arrow.Schema) (valueKind, error) {
	argKinds := make([]valueKind, len(call.Args))
	for i, arg := range call.Args {
		k, err := resultKind(arg, schema)
		if err != nil {
			return kindNull, err
		}
		argKinds[i] = k
	}

	switch call.Op {
	case "AND", "OR", "NOT", "IS NULL", "IS NOT NULL", "IS TRUE", "IS FALSE", "IS NOT TRUE", "IS NOT FALSE",
		"=", "<>", "<", "<=", ">", ">=", "LIKE", "NOT LIKE":
		return kindBool, nil
	case "+", "-", "*", "/", "%", "MOD", "ABS":
		kind := kindNull
		for _, k := range argKinds {
			if k != kindNull && !k.numeric() {
				return kindNull, fmt.Errorf("%s expects numbers, got %s", call.Op, k)
			}
			kind = unifyKinds(kind, k)
		}
		if kind == kindNull {
			kind = kindInt
		}
		return kind, nil
	case "CAST":
		return castKind(call.TypeName), nil
	case "COALESCE":
		kind := kindNull
		for _, k := range argKinds {
			kind = unifyKinds(kind, k)
		}
		return kind, nil
	case "CASE":
		kind := kindNull
		for i, k := range argKinds {
			if i%2 == 1 || i == len(argKinds)-1 {
				kind = unifyKinds(kind, k)
			}
		}
		return kind, nil
	case "||", "UPPER", "LOWER", "TRIM":
		return kindString, nil
	case "CHAR_LENGTH", "CHARACTER_LENGTH":
		return kindInt, nil
	default:
		return kindNull, fmt.Errorf("unsupported function %s", call.Op)
	}
}
