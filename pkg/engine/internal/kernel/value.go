package kernel

import (
	"cmp"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/cespare/xxhash/v2"
)

// valueKind is the class of a scalar value. Every value read from a column
// is normalized to int64, float64, string, bool or nil.
type valueKind uint8

const (
	kindNull valueKind = iota
	kindInt
	kindFloat
	kindString
	kindBool
)

func (k valueKind) String() string {
	switch k {
	case kindNull:
		return "null"
	case kindInt:
		return "int"
	case kindFloat:
		return "float"
	case kindString:
		return "string"
	case kindBool:
		return "bool"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

func (k valueKind) numeric() bool { return k == kindInt || k == kindFloat }

// kindOf returns the value class of an Arrow type. Types without a native
// class are read as their string representation.
func kindOf(dt arrow.DataType) valueKind {
	switch dt.ID() {
	case arrow.NULL:
		return kindNull
	case arrow.INT8, arrow.INT16, arrow.INT32, arrow.INT64,
		arrow.UINT8, arrow.UINT16, arrow.UINT32, arrow.UINT64,
		arrow.DATE32, arrow.DATE64, arrow.TIMESTAMP:
		return kindInt
	case arrow.FLOAT16, arrow.FLOAT32, arrow.FLOAT64, arrow.DECIMAL128:
		return kindFloat
	case arrow.BOOL:
		return kindBool
	default:
		return kindString
	}
}

// dataType returns the Arrow type used for computed values of kind k.
func (k valueKind) dataType() arrow.DataType {
	switch k {
	case kindInt:
		return arrow.PrimitiveTypes.Int64
	case kindFloat:
		return arrow.PrimitiveTypes.Float64
	case kindString:
		return arrow.BinaryTypes.String
	case kindBool:
		return arrow.FixedWidthTypes.Boolean
	default:
		return arrow.Null
	}
}

// unifyKinds returns the kind able to hold values of both a and b.
func unifyKinds(a, b valueKind) valueKind {
	switch {
	case a == b:
		return a
	case a == kindNull:
		return b
	case b == kindNull:
		return a
	case a.numeric() && b.numeric():
		return kindFloat
	default:
		return kindString
	}
}

// valueAt returns the normalized value of arr at row i.
func valueAt(arr arrow.Array, i int) any {
	if arr.IsNull(i) {
		return nil
	}
	switch arr := arr.(type) {
	case *array.Int8:
		return int64(arr.Value(i))
	case *array.Int16:
		return int64(arr.Value(i))
	case *array.Int32:
		return int64(arr.Value(i))
	case *array.Int64:
		return arr.Value(i)
	case *array.Uint8:
		return int64(arr.Value(i))
	case *array.Uint16:
		return int64(arr.Value(i))
	case *array.Uint32:
		return int64(arr.Value(i))
	case *array.Uint64:
		return int64(arr.Value(i))
	case *array.Date32:
		return int64(arr.Value(i))
	case *array.Date64:
		return int64(arr.Value(i))
	case *array.Timestamp:
		return int64(arr.Value(i))
	case *array.Float16:
		return float64(arr.Value(i).Float32())
	case *array.Float32:
		return float64(arr.Value(i))
	case *array.Float64:
		return arr.Value(i)
	case *array.Decimal128:
		scale := arr.DataType().(*arrow.Decimal128Type).Scale
		return arr.Value(i).ToFloat64(scale)
	case *array.Boolean:
		return arr.Value(i)
	case *array.String:
		return arr.Value(i)
	case *array.LargeString:
		return arr.Value(i)
	default:
		return arr.ValueStr(i)
	}
}

// newBuilder returns a builder for computed values of kind k.
func newBuilder(mem memory.Allocator, k valueKind) array.Builder {
	return array.NewBuilder(mem, k.dataType())
}

// appendValue appends a normalized value to a builder created by
// [newBuilder], converting between numeric kinds.
func appendValue(b array.Builder, v any) error {
	if v == nil {
		b.AppendNull()
		return nil
	}

	switch b := b.(type) {
	case *array.Int64Builder:
		n, ok := toInt(v)
		if !ok {
			return fmt.Errorf("cannot store %v (%T) as an integer", v, v)
		}
		b.Append(n)
	case *array.Float64Builder:
		f, ok := toFloat(v)
		if !ok {
			return fmt.Errorf("cannot store %v (%T) as a float", v, v)
		}
		b.Append(f)
	case *array.StringBuilder:
		b.Append(toString(v))
	case *array.BooleanBuilder:
		t, ok := v.(bool)
		if !ok {
			return fmt.Errorf("cannot store %v (%T) as a boolean", v, v)
		}
		b.Append(t)
	case *array.NullBuilder:
		b.AppendNull()
	default:
		return fmt.Errorf("unsupported builder %T", b)
	}
	return nil
}

func toInt(v any) (int64, bool) {
	switch v := v.(type) {
	case int64:
		return v, true
	case float64:
		return int64(v), true
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		return n, err == nil
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch v := v.(type) {
	case int64:
		return float64(v), true
	case float64:
		return v, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	}
	return 0, false
}

func toString(v any) string {
	switch v := v.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

// compareValues orders two non-null values. Numbers compare numerically
// across int and float; other mismatched kinds compare by their string form.
func compareValues(a, b any) int {
	switch a := a.(type) {
	case int64:
		switch b := b.(type) {
		case int64:
			return cmp.Compare(a, b)
		case float64:
			return cmp.Compare(float64(a), b)
		}
	case float64:
		if f, ok := toFloat(b); ok {
			if _, isString := b.(string); !isString {
				return cmp.Compare(a, f)
			}
		}
	case string:
		if b, ok := b.(string); ok {
			return strings.Compare(a, b)
		}
	case bool:
		if b, ok := b.(bool); ok {
			switch {
			case a == b:
				return 0
			case !a:
				return -1
			default:
				return 1
			}
		}
	}
	return strings.Compare(toString(a), toString(b))
}

// equalValues reports whether two values are equal. Nulls are never equal.
func equalValues(a, b any) bool {
	if a == nil || b == nil {
		return false
	}
	return compareValues(a, b) == 0
}

// hashValues hashes a tuple of values so that tuples comparing equal with
// [equalValues] hash equally.
func hashValues(d *xxhash.Digest, values []any) uint64 {
	d.Reset()
	var buf [9]byte
	for _, v := range values {
		switch v := v.(type) {
		case nil:
			buf[0] = 0
			_, _ = d.Write(buf[:1])
		case int64:
			buf[0] = 1
			putUint64(buf[1:], math.Float64bits(float64(v)))
			_, _ = d.Write(buf[:])
		case float64:
			buf[0] = 1
			putUint64(buf[1:], math.Float64bits(v))
			_, _ = d.Write(buf[:])
		case bool:
			buf[0] = 2
			buf[1] = 0
			if v {
				buf[1] = 1
			}
			_, _ = d.Write(buf[:2])
		default:
			buf[0] = 3
			_, _ = d.Write(buf[:1])
			_, _ = d.WriteString(toString(v))
			_, _ = d.Write([]byte{0})
		}
	}
	return d.Sum64()
}

func putUint64(b []byte, v uint64) {
	for i := range 8 {
		b[i] = byte(v >> (8 * i))
	}
}

// rowValues reads the values of the given columns at row i into dst.
func rowValues(dst []any, rec arrow.Record, columns []int, i int) []any {
	dst = dst[:0]
	for _, c := range columns {
		dst = append(dst, valueAt(rec.Column(c), i))
	}
	return dst
}
