package dag

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type vertex struct{ name string }

func TestGraph(t *testing.T) {
	t.Run("zero value is usable", func(t *testing.T) {
		var g Graph[*vertex]
		require.Equal(t, 0, g.Len())
		_, err := g.Root()
		require.ErrorContains(t, err, "no root node")
	})

	t.Run("roots and leaves", func(t *testing.T) {
		var g Graph[*vertex]
		var (
			join  = g.Add(&vertex{"join"})
			left  = g.Add(&vertex{"left"})
			right = g.Add(&vertex{"right"})
		)
		require.NoError(t, g.AddEdge(Edge[*vertex]{Parent: join, Child: left}))
		require.NoError(t, g.AddEdge(Edge[*vertex]{Parent: join, Child: right}))

		root, err := g.Root()
		require.NoError(t, err)
		require.Equal(t, join, root)
		require.Equal(t, []*vertex{left, right}, g.Leaves())
		require.Equal(t, []*vertex{left, right}, g.Children(join))
		require.Equal(t, []*vertex{join}, g.Parents(right))
	})

	t.Run("multiple roots", func(t *testing.T) {
		var g Graph[*vertex]
		g.Add(&vertex{"a"})
		g.Add(&vertex{"b"})
		_, err := g.Root()
		require.ErrorContains(t, err, "2 root nodes")
	})

	t.Run("cycles are rejected", func(t *testing.T) {
		var g Graph[*vertex]
		var (
			a = g.Add(&vertex{"a"})
			b = g.Add(&vertex{"b"})
			c = g.Add(&vertex{"c"})
		)
		require.NoError(t, g.AddEdge(Edge[*vertex]{Parent: a, Child: b}))
		require.NoError(t, g.AddEdge(Edge[*vertex]{Parent: b, Child: c}))
		require.ErrorContains(t, g.AddEdge(Edge[*vertex]{Parent: c, Child: a}), "cycle")
		require.ErrorContains(t, g.AddEdge(Edge[*vertex]{Parent: a, Child: a}), "self-loop")
	})

	t.Run("unknown nodes are rejected", func(t *testing.T) {
		var g Graph[*vertex]
		a := g.Add(&vertex{"a"})
		require.Error(t, g.AddEdge(Edge[*vertex]{Parent: a, Child: &vertex{"b"}}))
	})
}

func TestGraph_Walk(t *testing.T) {
	var g Graph[*vertex]
	var (
		project = g.Add(&vertex{"project"})
		join    = g.Add(&vertex{"join"})
		left    = g.Add(&vertex{"left"})
		right   = g.Add(&vertex{"right"})
	)
	require.NoError(t, g.AddEdge(Edge[*vertex]{Parent: project, Child: join}))
	require.NoError(t, g.AddEdge(Edge[*vertex]{Parent: join, Child: left}))
	require.NoError(t, g.AddEdge(Edge[*vertex]{Parent: join, Child: right}))

	collect := func(order WalkOrder) []string {
		var names []string
		err := g.Walk(project, func(v *vertex) error {
			names = append(names, v.name)
			return nil
		}, order)
		require.NoError(t, err)
		return names
	}

	require.Equal(t, []string{"project", "join", "left", "right"}, collect(PreOrderWalk))
	require.Equal(t, []string{"left", "right", "join", "project"}, collect(PostOrderWalk))

	var count int
	require.NoError(t, g.WalkAll(func(*vertex) error { count++; return nil }, PostOrderWalk))
	require.Equal(t, 4, count)

	require.Error(t, g.Walk(project, func(*vertex) error { return nil }, WalkOrder(9)))
}

func TestGraph_Eliminate(t *testing.T) {
	var g Graph[*vertex]
	var (
		join   = g.Add(&vertex{"join"})
		filter = g.Add(&vertex{"filter"})
		left   = g.Add(&vertex{"left"})
		right  = g.Add(&vertex{"right"})
	)
	require.NoError(t, g.AddEdge(Edge[*vertex]{Parent: join, Child: filter}))
	require.NoError(t, g.AddEdge(Edge[*vertex]{Parent: join, Child: right}))
	require.NoError(t, g.AddEdge(Edge[*vertex]{Parent: filter, Child: left}))

	g.Eliminate(filter)

	require.Equal(t, 3, g.Len())
	require.Equal(t, []*vertex{left, right}, g.Children(join))
	require.Equal(t, []*vertex{join}, g.Parents(left))

	g.Eliminate(filter) // no-op for unknown nodes
	require.Equal(t, 3, g.Len())
}
