package dag

import "fmt"

// WalkOrder defines whether a vertex is visited before or after its children.
type WalkOrder uint8

const (
	// PreOrderWalk visits a vertex before any of its children.
	PreOrderWalk WalkOrder = iota

	// PostOrderWalk visits a vertex after all of its children. Walking a plan
	// in post-order visits every producer before its consumer.
	PostOrderWalk
)

func (o WalkOrder) String() string {
	switch o {
	case PreOrderWalk:
		return "pre-order"
	case PostOrderWalk:
		return "post-order"
	default:
		return fmt.Sprintf("WalkOrder(%d)", o)
	}
}

// WalkFunc is invoked for every vertex visited by [Graph.Walk]. Walking stops
// at the first non-nil error, which is returned to the caller.
type WalkFunc[NodeType Node] func(n NodeType) error

// Walk performs a depth-first walk starting at n, following parent→child
// edges. Every reachable vertex is passed to f exactly once.
func (g *Graph[NodeType]) Walk(n NodeType, f WalkFunc[NodeType], order WalkOrder) error {
	visited := make(nodeSet[NodeType])
	switch order {
	case PreOrderWalk:
		return g.preOrderWalk(n, f, visited)
	case PostOrderWalk:
		return g.postOrderWalk(n, f, visited)
	default:
		return fmt.Errorf("unsupported walk order %s", order)
	}
}

// WalkAll walks every root of the graph in insertion order, sharing the set
// of visited vertices across roots.
func (g *Graph[NodeType]) WalkAll(f WalkFunc[NodeType], order WalkOrder) error {
	visited := make(nodeSet[NodeType])
	for _, root := range g.Roots() {
		var err error
		switch order {
		case PreOrderWalk:
			err = g.preOrderWalk(root, f, visited)
		case PostOrderWalk:
			err = g.postOrderWalk(root, f, visited)
		default:
			err = fmt.Errorf("unsupported walk order %s", order)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (g *Graph[NodeType]) preOrderWalk(n NodeType, f WalkFunc[NodeType], visited nodeSet[NodeType]) error {
	if visited.Contains(n) {
		return nil
	}
	visited.Add(n)

	if err := f(n); err != nil {
		return err
	}
	for _, child := range g.children[n] {
		if err := g.preOrderWalk(child, f, visited); err != nil {
			return err
		}
	}
	return nil
}

func (g *Graph[NodeType]) postOrderWalk(n NodeType, f WalkFunc[NodeType], visited nodeSet[NodeType]) error {
	if visited.Contains(n) {
		return nil
	}
	visited.Add(n)

	for _, child := range g.children[n] {
		if err := g.postOrderWalk(child, f, visited); err != nil {
			return err
		}
	}
	return f(n)
}
