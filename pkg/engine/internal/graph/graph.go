// Package graph runs kernels as a pipelined execution graph. Kernels are
// connected by caches; every kernel runs in its own goroutine.
package graph

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/go-kit/log"
	"go.uber.org/atomic"

	"github.com/blazingsql/engine/pkg/engine/internal/cache"
	"github.com/blazingsql/engine/pkg/engine/internal/kernel"
	"github.com/blazingsql/engine/pkg/engine/internal/planner/tree"
	"github.com/blazingsql/engine/pkg/engine/internal/util/dag"
)

// ErrPrecondition is returned when a graph or its inputs are not in the
// shape an operation requires.
var ErrPrecondition = errors.New("precondition failed")

// State is the lifecycle state of a kernel in a graph.
type State uint32

const (
	StateNotStarted State = iota
	StateRunning
	StateDone
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not_started"
	case StateRunning:
		return "running"
	case StateDone:
		return "done"
	case StateErrored:
		return "errored"
	default:
		return "State(" + strconv.Itoa(int(s)) + ")"
	}
}

// Terminal reports whether s is a final state.
func (s State) Terminal() bool { return s == StateDone || s == StateErrored }

// Edge connects the output of From to an input of To through a cache
// created with Settings.
type Edge struct {
	From     kernel.Kernel
	To       kernel.Kernel
	Settings cache.Settings
}

// Link describes an edge from one kernel to another. Add it to a graph with
// [Graph.AddEdge].
func Link(from, to kernel.Kernel, settings cache.Settings) Edge {
	return Edge{From: from, To: to, Settings: settings}
}

type node struct {
	id      int
	kernel  kernel.Kernel
	state   atomic.Uint32
	inputs  []*cache.Machine
	outputs []*cache.Machine
}

func (n *node) State() State { return State(n.state.Load()) }

type edge struct {
	from, to *node
	cache    *cache.Machine
}

// Options configures a [Graph].
type Options struct {
	Logger       log.Logger
	CacheMetrics *cache.Metrics
	Metrics      *Metrics

	// MaxConcurrentScans caps the number of scan kernels running at once.
	// Zero means no cap. Edges leaving scans must be unbounded when set, so
	// admitted scans can always finish.
	MaxConcurrentScans int
}

// Graph is an execution graph. Kernels are kept in an arena; a kernel's ID
// is its index in the arena. Edges point from producers to consumers.
type Graph struct {
	opts Options

	nodes []*node
	index map[kernel.Kernel]*node
	edges []edge

	// dag tracks consumer→producer relations to reject cycles.
	dag dag.Graph[kernel.Kernel]

	executed atomic.Bool
}

// New creates an empty graph.
func New(opts Options) *Graph {
	if opts.Logger == nil {
		opts.Logger = log.NewNopLogger()
	}
	return &Graph{
		opts:  opts,
		index: make(map[kernel.Kernel]*node),
	}
}

// AddKernel adds k to the graph if it is not part of it yet, and returns its
// ID.
func (g *Graph) AddKernel(k kernel.Kernel) int {
	if n, ok := g.index[k]; ok {
		return n.id
	}
	n := &node{id: len(g.nodes), kernel: k}
	g.nodes = append(g.nodes, n)
	g.index[k] = n
	g.dag.Add(k)
	return n.id
}

// ID returns the ID of k in the graph.
func (g *Graph) ID(k kernel.Kernel) (int, bool) {
	n, ok := g.index[k]
	if !ok {
		return -1, false
	}
	return n.id, true
}

// AddEdge adds e to the graph, adding its kernels if they are new. The cache
// of the edge becomes the next input of e.To and an output of e.From.
func (g *Graph) AddEdge(e Edge) error {
	if e.From == nil || e.To == nil {
		return fmt.Errorf("%w: edge with a nil kernel", ErrPrecondition)
	}

	g.AddKernel(e.From)
	g.AddKernel(e.To)
	if slices.Contains(g.dag.Children(e.To), e.From) {
		return fmt.Errorf("%w: duplicate edge %s -> %s", ErrPrecondition, e.From.Label(), e.To.Label())
	}
	if err := g.dag.AddEdge(dag.Edge[kernel.Kernel]{Parent: e.To, Child: e.From}); err != nil {
		return fmt.Errorf("%w: %w", ErrPrecondition, err)
	}

	from, to := g.index[e.From], g.index[e.To]
	if e.Settings.Name == "" {
		e.Settings.Name = fmt.Sprintf("%d->%d", from.id, to.id)
	}
	m := cache.New(e.Settings, g.opts.CacheMetrics)

	from.outputs = append(from.outputs, m)
	to.inputs = append(to.inputs, m)
	g.edges = append(g.edges, edge{from: from, to: to, cache: m})
	return nil
}

// NumNodes returns the number of kernels in the graph.
func (g *Graph) NumNodes() int { return len(g.nodes) }

// Kernels returns the kernels of the graph in ID order.
func (g *Graph) Kernels() []kernel.Kernel {
	kernels := make([]kernel.Kernel, len(g.nodes))
	for i, n := range g.nodes {
		kernels[i] = n.kernel
	}
	return kernels
}

// Inputs returns the kernels feeding k, in input order.
func (g *Graph) Inputs(k kernel.Kernel) []kernel.Kernel { return g.dag.Children(k) }

// States returns the state of every kernel, indexed by ID.
func (g *Graph) States() []State {
	states := make([]State, len(g.nodes))
	for i, n := range g.nodes {
		states[i] = n.State()
	}
	return states
}

// LastKernel returns the only kernel without consumers.
func (g *Graph) LastKernel() (kernel.Kernel, error) {
	var last []*node
	for _, n := range g.nodes {
		if len(n.outputs) == 0 {
			last = append(last, n)
		}
	}

	switch len(last) {
	case 0:
		return nil, fmt.Errorf("%w: graph has no terminal kernel", ErrPrecondition)
	case 1:
		return last[0].kernel, nil
	default:
		return nil, fmt.Errorf("%w: graph has %d terminal kernels", ErrPrecondition, len(last))
	}
}

// limitKernel is implemented by kernels that trim their input to a window.
type limitKernel interface {
	Offset() int64
	Fetch() int64
}

// CheckForSimpleScanWithLimitQuery looks for a graph made only of a scan
// feeding a limit, optionally followed by an output kernel. When found, the
// scan is told to stop after offset+fetch rows and true is returned. The
// limit kernel still applies, so results do not change.
func (g *Graph) CheckForSimpleScanWithLimitQuery() bool {
	if len(g.nodes) < 2 || len(g.nodes) > 3 {
		return false
	}

	var scan, limit *node
	for _, n := range g.nodes {
		switch kind := n.kernel.Kind(); {
		case kind.IsScan() && scan == nil:
			scan = n
		case kind == kernel.KindLimit && limit == nil:
			limit = n
		case kind == kernel.KindOutput:
		default:
			return false
		}
	}
	if scan == nil || limit == nil {
		return false
	}

	inputs := g.dag.Children(limit.kernel)
	if len(inputs) != 1 || inputs[0] != scan.kernel {
		return false
	}

	limiter, ok := scan.kernel.(kernel.RowLimiter)
	if !ok {
		return false
	}
	window, ok := limit.kernel.(limitKernel)
	if !ok || window.Fetch() < 0 {
		return false
	}

	limiter.SetRowLimit(window.Offset() + window.Fetch())
	return true
}

// Tree renders the graph from its terminal kernels down to the scans.
func (g *Graph) Tree() string {
	var sb strings.Builder
	for _, root := range g.dag.Roots() {
		sb.WriteString(tree.Sprint(g.treeNode(root)))
	}
	return sb.String()
}

func (g *Graph) treeNode(k kernel.Kernel) *tree.Node {
	n := g.index[k]
	props := []tree.Property{tree.NewProperty("id", false, n.id)}
	if n.State() != StateNotStarted {
		props = append(props, tree.NewProperty("state", false, n.State()))
	}

	tn := tree.NewNode(k.Kind().String(), strconv.Itoa(n.id), props...)
	for _, child := range g.dag.Children(k) {
		tn.Children = append(tn.Children, g.treeNode(child))
	}
	return tn
}
