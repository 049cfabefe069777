// Package dag provides a generic directed acyclic graph used to represent
// parsed plans. Edges point from a parent (the consumer) to its children (the
// producers feeding it), and the order in which children are added is kept.
package dag

import (
	"errors"
	"fmt"
	"iter"
	"slices"
)

// Node is the constraint for vertices of a [Graph].
type Node interface {
	comparable
}

// Edge is a directed connection from Parent to Child.
type Edge[NodeType Node] struct {
	Parent NodeType
	Child  NodeType
}

type nodeSet[NodeType Node] map[NodeType]struct{}

func (s nodeSet[NodeType]) Add(n NodeType) { s[n] = struct{}{} }

func (s nodeSet[NodeType]) Contains(n NodeType) bool {
	_, ok := s[n]
	return ok
}

// Graph is a directed acyclic graph. The zero value is ready for use.
type Graph[NodeType Node] struct {
	nodes    []NodeType
	index    nodeSet[NodeType]
	parents  map[NodeType][]NodeType
	children map[NodeType][]NodeType
}

func (g *Graph[NodeType]) init() {
	if g.index == nil {
		g.index = make(nodeSet[NodeType])
		g.parents = make(map[NodeType][]NodeType)
		g.children = make(map[NodeType][]NodeType)
	}
}

// Add adds n to the graph and returns it. Adding a node twice is a no-op.
func (g *Graph[NodeType]) Add(n NodeType) NodeType {
	g.init()
	if g.index.Contains(n) {
		return n
	}
	g.index.Add(n)
	g.nodes = append(g.nodes, n)
	return n
}

// AddEdge adds a new edge to the graph. Both ends must already be part of the
// graph, and the edge must not introduce a cycle.
func (g *Graph[NodeType]) AddEdge(e Edge[NodeType]) error {
	g.init()
	if !g.index.Contains(e.Parent) {
		return fmt.Errorf("parent %v is not part of the graph", e.Parent)
	}
	if !g.index.Contains(e.Child) {
		return fmt.Errorf("child %v is not part of the graph", e.Child)
	}
	if e.Parent == e.Child {
		return errors.New("edge would introduce a self-loop")
	}
	if g.reachable(e.Child, e.Parent) {
		return errors.New("edge would introduce a cycle")
	}
	if slices.Contains(g.children[e.Parent], e.Child) {
		return nil
	}

	g.children[e.Parent] = append(g.children[e.Parent], e.Child)
	g.parents[e.Child] = append(g.parents[e.Child], e.Parent)
	return nil
}

// reachable reports whether to can be reached from from by following
// parent→child edges.
func (g *Graph[NodeType]) reachable(from, to NodeType) bool {
	found := false
	_ = g.preOrderWalk(from, func(n NodeType) error {
		if n == to {
			found = true
			return errStopWalk
		}
		return nil
	}, make(nodeSet[NodeType]))
	return found
}

var errStopWalk = errors.New("stop walk")

// Len returns the number of nodes in the graph.
func (g *Graph[NodeType]) Len() int { return len(g.nodes) }

// Nodes iterates over all nodes in insertion order.
func (g *Graph[NodeType]) Nodes() iter.Seq[NodeType] {
	return slices.Values(g.nodes)
}

// Children returns the children of n in the order they were added.
func (g *Graph[NodeType]) Children(n NodeType) []NodeType { return g.children[n] }

// Parents returns the parents of n.
func (g *Graph[NodeType]) Parents(n NodeType) []NodeType { return g.parents[n] }

// Roots returns all nodes without parents, in insertion order.
func (g *Graph[NodeType]) Roots() []NodeType {
	var roots []NodeType
	for _, n := range g.nodes {
		if len(g.parents[n]) == 0 {
			roots = append(roots, n)
		}
	}
	return roots
}

// Leaves returns all nodes without children, in insertion order.
func (g *Graph[NodeType]) Leaves() []NodeType {
	var leaves []NodeType
	for _, n := range g.nodes {
		if len(g.children[n]) == 0 {
			leaves = append(leaves, n)
		}
	}
	return leaves
}

// Root returns the single root of the graph. It returns an error if the graph
// is empty or has more than one root.
func (g *Graph[NodeType]) Root() (NodeType, error) {
	var zero NodeType

	roots := g.Roots()
	switch len(roots) {
	case 0:
		return zero, errors.New("graph has no root node")
	case 1:
		return roots[0], nil
	default:
		return zero, fmt.Errorf("graph has %d root nodes, expected exactly one", len(roots))
	}
}

// Eliminate removes n from the graph and connects each of its parents to its
// children. The children take the position n had in each parent's child
// list.
func (g *Graph[NodeType]) Eliminate(n NodeType) {
	if !g.index.Contains(n) {
		return
	}

	children := g.children[n]
	for _, parent := range g.parents[n] {
		var replaced []NodeType
		for _, c := range g.children[parent] {
			if c != n {
				replaced = append(replaced, c)
				continue
			}
			for _, child := range children {
				if !slices.Contains(replaced, child) {
					replaced = append(replaced, child)
				}
			}
		}
		g.children[parent] = replaced
	}
	for _, child := range children {
		parents := slices.DeleteFunc(slices.Clone(g.parents[child]), func(p NodeType) bool { return p == n })
		for _, parent := range g.parents[n] {
			if !slices.Contains(parents, parent) {
				parents = append(parents, parent)
			}
		}
		g.parents[child] = parents
	}

	delete(g.children, n)
	delete(g.parents, n)
	delete(g.index, n)
	g.nodes = slices.DeleteFunc(g.nodes, func(m NodeType) bool { return m == n })
}
