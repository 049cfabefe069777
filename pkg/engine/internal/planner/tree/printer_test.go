package tree

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPrinter(t *testing.T) {
	root := NewNode("Project", "0", NewProperty("columns", true, "$0", "$2"))
	join := root.AddChild("Join", "1", []Property{NewProperty("type", false, "inner")})
	join.AddChild("TableScan", "2", []Property{NewProperty("table", false, "orders")})
	right := join.AddChild("TableScan", "3", []Property{NewProperty("table", false, "customers")})
	right.AddChild("Values", "4", nil)

	expect := strings.TrimSpace(`
Project columns=($0, $2)
└── Join type=inner
    ├── TableScan table=orders
    └── TableScan table=customers
        └── Values
`)
	require.Equal(t, expect, strings.TrimSpace(Sprint(root)))
}

func TestFormatProperty(t *testing.T) {
	require.Equal(t, "limit=10", formatProperty(NewProperty("limit", false, 10)))
	require.Equal(t, "group=()", formatProperty(NewProperty("group", true)))
	require.Equal(t, "empty=", formatProperty(NewProperty("empty", false)))
}
