package kernel

import (
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/compute"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/require"

	"github.com/blazingsql/engine/pkg/engine/internal/arrowtest"
	"github.com/blazingsql/engine/pkg/engine/internal/planner/physical"
)

func TestEvalVector(t *testing.T) {
	alloc := memory.NewCheckedAllocator(memory.DefaultAllocator)
	defer alloc.AssertSize(t, 0)

	rec, err := arrowtest.CSVToArrowWithAllocator(alloc, ordersFields, ordersCSV)
	require.NoError(t, err)
	defer rec.Release()

	t.Run("matches row evaluation", func(t *testing.T) {
		for _, input := range []string{
			"+($0, 1)",
			"-($0, $0)",
			"*($2, 2.5)",
			"=($1, 'alice')",
			"<>($0, 2)",
			"<=($1, 'bob')",
			"AND(>($0, 1), <($0, 4), <>($1, 'carol'))",
			"OR(IS NULL($2), =($0, 1))",
			"NOT(>($0, 2))",
			"IS NOT NULL($2)",
		} {
			t.Run(input, func(t *testing.T) {
				expr, err := physical.ParseExpression(input)
				require.NoError(t, err)
				e := newEvaluator(alloc)

				d, ok, err := e.evalVector(expr, rec)
				require.NoError(t, err)
				require.True(t, ok)
				defer d.Release()
				ad, isArray := d.(*compute.ArrayDatum)
				require.True(t, isArray)
				vec := ad.MakeArray()
				defer vec.Release()

				kind, err := resultKind(expr, rec.Schema())
				require.NoError(t, err)
				rows, err := e.evalRows(expr, rec, kind)
				require.NoError(t, err)
				defer rows.Release()

				require.True(t, arrow.TypeEqual(rows.DataType(), vec.DataType()), "%s != %s", rows.DataType(), vec.DataType())
				require.Equal(t, values(rows), values(vec))
			})
		}
	})

	t.Run("falls back to rows", func(t *testing.T) {
		for _, input := range []string{
			"/($0, 2)",          // zero divisors must fail
			"*($2, 2)",          // float64 and int64 operands
			">($2, 5)",          // float ordering
			"+($1, 1)",          // strings are not numbers
			"LIKE($1, 'a%')",    // no column-wise function
			"AND(=($1, 'a'))",   // one operand
			"=($0, NULL)",       // null literal
			"IS NULL($0, $1)",   // wrong arity
			"-($0)",             // unary minus
			"AND(>($0, 1), $1)", // string operand
		} {
			t.Run(input, func(t *testing.T) {
				expr, err := physical.ParseExpression(input)
				require.NoError(t, err)

				d, ok, err := newEvaluator(alloc).evalVector(expr, rec)
				require.NoError(t, err)
				require.False(t, ok)
				require.Nil(t, d)
			})
		}
	})

	t.Run("literals only", func(t *testing.T) {
		expr, err := physical.ParseExpression("+(1, 2)")
		require.NoError(t, err)

		arr, err := newEvaluator(alloc).eval(expr, rec)
		require.NoError(t, err)
		defer arr.Release()
		require.Equal(t, []string{"3", "3", "3", "3"}, values(arr))
	})
}

func values(arr arrow.Array) []string {
	out := make([]string, arr.Len())
	for i := range out {
		out[i] = arr.ValueStr(i)
	}
	return out
}
