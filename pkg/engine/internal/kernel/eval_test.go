package kernel

import (
	"testing"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/require"

	"github.com/blazingsql/engine/pkg/engine/internal/arrowtest"
	"github.com/blazingsql/engine/pkg/engine/internal/planner/physical"
)

const ordersCSV = `
1,alice,10.5
2,bob,3
3,alice,20
4,carol,NULL`

func TestEvaluator(t *testing.T) {
	alloc := memory.NewCheckedAllocator(memory.DefaultAllocator)
	defer alloc.AssertSize(t, 0)

	rec, err := arrowtest.CSVToArrowWithAllocator(alloc, ordersFields, ordersCSV)
	require.NoError(t, err)
	defer rec.Release()

	tests := []struct {
		expr string
		want []string
	}{
		{expr: "$1", want: []string{"alice", "bob", "alice", "carol"}},
		{expr: "+($0, 1)", want: []string{"2", "3", "4", "5"}},
		{expr: "*($2, 2)", want: []string{"21", "6", "40", "(null)"}},
		{expr: "-($0)", want: []string{"-1", "-2", "-3", "-4"}},
		{expr: "/($0, 2)", want: []string{"0", "1", "1", "2"}},
		{expr: ">($2, 5)", want: []string{"true", "false", "true", "(null)"}},
		{expr: "AND(>($0, 1), <($0, 4))", want: []string{"false", "true", "true", "false"}},
		{expr: "OR(>($2, 15), =($1, 'bob'))", want: []string{"false", "true", "true", "(null)"}},
		{expr: "IS NULL($2)", want: []string{"false", "false", "false", "true"}},
		{expr: "NOT(=($1, 'alice'))", want: []string{"false", "true", "false", "true"}},
		{expr: "LIKE($1, 'a%')", want: []string{"true", "false", "true", "false"}},
		{expr: "LIKE($1, '_ob')", want: []string{"false", "true", "false", "false"}},
		{expr: "CASE(>($2, 10), 'big', 'small')", want: []string{"big", "small", "big", "small"}},
		{expr: "COALESCE($2, 0)", want: []string{"10.5", "3", "20", "0"}},
		{expr: "CAST($2):INTEGER", want: []string{"10", "3", "20", "(null)"}},
		{expr: "CAST($0):VARCHAR", want: []string{"1", "2", "3", "4"}},
		{expr: "||($1, '!')", want: []string{"alice!", "bob!", "alice!", "carol!"}},
		{expr: "UPPER($1)", want: []string{"ALICE", "BOB", "ALICE", "CAROL"}},
		{expr: "CHAR_LENGTH($1)", want: []string{"5", "3", "5", "5"}},
		{expr: "ABS(-($2))", want: []string{"10.5", "3", "20", "(null)"}},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			expr, err := physical.ParseExpression(tt.expr)
			require.NoError(t, err)

			arr, err := newEvaluator(alloc).eval(expr, rec)
			require.NoError(t, err)
			defer arr.Release()

			got := make([]string, arr.Len())
			for i := range got {
				got[i] = arr.ValueStr(i)
			}
			require.Equal(t, tt.want, got)
		})
	}
}

func TestEvaluator_Errors(t *testing.T) {
	rec, err := arrowtest.CSVToArrow(ordersFields, ordersCSV)
	require.NoError(t, err)
	defer rec.Release()

	tests := map[string]string{
		"/($0, 0)":        "division by zero",
		"+($1, 1)":        "expects numbers",
		"$7":              "column $7 out of range",
		"FROBNICATE($0)":  "unsupported function FROBNICATE",
		"IS NULL($0, $1)": "expects 1 arguments",
	}
	for input, want := range tests {
		t.Run(input, func(t *testing.T) {
			expr, err := physical.ParseExpression(input)
			require.NoError(t, err)

			_, err = newEvaluator(memory.DefaultAllocator).eval(expr, rec)
			require.ErrorContains(t, err, want)
		})
	}

	t.Run("non-boolean predicate", func(t *testing.T) {
		expr, err := physical.ParseExpression("+($0, 1)")
		require.NoError(t, err)

		require.NotPanics(t, func() {
			_, err = newEvaluator(memory.DefaultAllocator).evalMask(expr, rec)
		})
		require.ErrorContains(t, err, "not boolean")
	})
}

func TestCompareValues(t *testing.T) {
	require.Equal(t, 0, compareValues(int64(2), 2.0))
	require.Equal(t, -1, compareValues(int64(1), 1.5))
	require.Equal(t, 1, compareValues("b", "a"))
	require.Equal(t, -1, compareValues(false, true))
	require.False(t, equalValues(nil, nil))
}
