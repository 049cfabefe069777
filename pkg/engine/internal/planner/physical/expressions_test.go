package physical

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseExpression(t *testing.T) {
	for _, tt := range []struct {
		input  string
		expect Expression
	}{
		{"$3", &ColumnRef{Index: 3}},
		{"42", &Literal{Value: int64(42)}},
		{"-7", &Literal{Value: int64(-7)}},
		{"1.5:DECIMAL(2, 1)", &Literal{Value: 1.5, TypeName: "DECIMAL(2, 1)"}},
		{"'it''s'", &Literal{Value: "it's"}},
		{"_UTF-16LE'abc'", &Literal{Value: "abc"}},
		{"true", &Literal{Value: true}},
		{"null:INTEGER", &Literal{Value: nil, TypeName: "INTEGER"}},
		{
			"=($0, $2)",
			&Call{Op: "=", Args: []Expression{&ColumnRef{Index: 0}, &ColumnRef{Index: 2}}},
		},
		{
			"AND(>($1, 10), IS NOT NULL($2))",
			&Call{Op: "AND", Args: []Expression{
				&Call{Op: ">", Args: []Expression{&ColumnRef{Index: 1}, &Literal{Value: int64(10)}}},
				&Call{Op: "IS NOT NULL", Args: []Expression{&ColumnRef{Index: 2}}},
			}},
		},
		{
			"-($1, 1)",
			&Call{Op: "-", Args: []Expression{&ColumnRef{Index: 1}, &Literal{Value: int64(1)}}},
		},
		{
			"CAST($0):DOUBLE NOT NULL",
			&Call{Op: "CAST", Args: []Expression{&ColumnRef{Index: 0}}, TypeName: "DOUBLE NOT NULL"},
		},
	} {
		t.Run(tt.input, func(t *testing.T) {
			expr, err := ParseExpression(tt.input)
			require.NoError(t, err)
			require.Equal(t, tt.expect, expr)
		})
	}
}

func TestParseExpression_Errors(t *testing.T) {
	for _, input := range []string{
		"",
		"=($0, $1",
		"'unterminated",
		"foo",
		"$0 $1",
	} {
		t.Run(input, func(t *testing.T) {
			_, err := ParseExpression(input)
			require.ErrorIs(t, err, ErrParse)
		})
	}
}

func TestExpression_String(t *testing.T) {
	expr, err := ParseExpression("AND(>($1, 10), =($2, 'x'))")
	require.NoError(t, err)
	require.Equal(t, "AND(>($1, 10), =($2, 'x'))", expr.String())
}

func TestColumns(t *testing.T) {
	expr, err := ParseExpression("OR(=($2, $0), >($2, +($5, 1)))")
	require.NoError(t, err)
	require.Equal(t, []int{2, 0, 5}, Columns(expr))
}
