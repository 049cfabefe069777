package graph

import (
	"context"
	"fmt"
	"strings"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/go-kit/log"

	"github.com/blazingsql/engine/pkg/engine/internal/cache"
	"github.com/blazingsql/engine/pkg/engine/internal/kernel"
	"github.com/blazingsql/engine/pkg/engine/internal/planner/physical"
	"github.com/blazingsql/engine/pkg/engine/internal/util/dag"
	"github.com/blazingsql/engine/pkg/engine/querycontext"
	"github.com/blazingsql/engine/pkg/engine/source"
)

// Builder turns a plan into an execution graph with one kernel per plan
// node. A Builder builds a single graph.
type Builder struct {
	// Context is the query context of the graph. Every kernel and cache
	// gets its own clone.
	Context *querycontext.Context

	// Loaders, Schemas and TableNames describe the tables scans can read,
	// by position. Schemas is optional.
	Loaders    []source.Loader
	Schemas    []source.Schema
	TableNames []string

	// TransformOperatorsBiggerThanGPU makes edges into blocking kernels
	// plain caches. When unset they concatenate their fragments. The query
	// option of the same name takes precedence.
	TransformOperatorsBiggerThanGPU bool

	Factory   kernel.Factory
	Logger    log.Logger
	Allocator memory.Allocator

	CacheMetrics *cache.Metrics
	Metrics      *Metrics

	CacheCapacity      int
	ConcatBytes        int64
	MaxConcurrentScans int

	plan *physical.Plan
}

// Build parses text and builds its graph.
func (b *Builder) Build(ctx context.Context, text string) (*Graph, error) {
	if err := b.validate(); err != nil {
		return nil, err
	}

	plan, err := physical.ParsePlan(text)
	if err != nil {
		return nil, err
	}
	physical.Optimize(plan)
	return b.BuildFromPlan(ctx, plan)
}

// BuildFromPlan builds the graph of an already parsed and optimized plan.
// Kernels keep references to the plan's nodes, which must not change while
// the graph runs. An empty plan yields an empty graph.
func (b *Builder) BuildFromPlan(ctx context.Context, plan *physical.Plan) (*Graph, error) {
	if err := b.validate(); err != nil {
		return nil, err
	}
	_, span := tracer.Start(ctx, "Builder.BuildFromPlan")
	defer span.End()

	b.plan = plan

	qc := b.Context
	if qc == nil {
		qc = querycontext.New("", nil, querycontext.Membership{})
	}
	maxScans := int(qc.OptionInt(querycontext.OptionMaxConcurrentScans, int64(b.MaxConcurrentScans)))

	g := New(Options{
		Logger:             b.Logger,
		CacheMetrics:       b.CacheMetrics,
		Metrics:            b.Metrics,
		MaxConcurrentScans: maxScans,
	})
	if plan.Len() == 0 {
		return g, nil
	}

	root, err := plan.Root()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPrecondition, err)
	}

	var (
		factory = b.Factory
		tables  = b.tableIndex()
		kernels = make(map[physical.Node]kernel.Kernel, plan.Len())
	)
	if factory == nil {
		factory = kernel.DefaultFactory
	}

	err = plan.Walk(root, func(n physical.Node) error {
		env := kernel.Env{
			Context:   qc.Clone(),
			Logger:    b.Logger,
			Allocator: b.Allocator,
		}
		if scan, ok := n.(*physical.Scan); ok {
			if i, found := tables[normalizeTableName(scan.Table)]; found {
				env.Loader = b.Loaders[i]
				if i < len(b.Schemas) {
					env.Schema = b.Schemas[i]
				}
			}
		}

		k, err := factory.NewKernel(n, env)
		if err != nil {
			return fmt.Errorf("building kernel for %q: %w", n.Step(), err)
		}
		kernels[n] = k
		g.AddKernel(k)

		for _, child := range plan.Children(n) {
			from := kernels[child]
			if err := g.AddEdge(Link(from, k, b.edgeSettings(qc, from, k, maxScans))); err != nil {
				return err
			}
		}
		return nil
	}, dag.PostOrderWalk)
	if err != nil {
		return nil, err
	}
	return g, nil
}

func (b *Builder) validate() error {
	if len(b.Loaders) != len(b.TableNames) {
		return fmt.Errorf("%w: %d loaders for %d tables", ErrPrecondition, len(b.Loaders), len(b.TableNames))
	}
	if len(b.Schemas) > 0 && len(b.Schemas) != len(b.TableNames) {
		return fmt.Errorf("%w: %d schemas for %d tables", ErrPrecondition, len(b.Schemas), len(b.TableNames))
	}
	return nil
}

func (b *Builder) tableIndex() map[string]int {
	index := make(map[string]int, len(b.TableNames))
	for i, name := range b.TableNames {
		name = normalizeTableName(name)
		if _, exists := index[name]; !exists {
			index[name] = i
		}
	}
	return index
}

func normalizeTableName(name string) string {
	return strings.TrimPrefix(name, "main.")
}

// edgeSettings returns the cache settings for an edge from one kernel to
// another.
func (b *Builder) edgeSettings(qc *querycontext.Context, from, to kernel.Kernel, maxScans int) cache.Settings {
	settings := cache.Settings{
		Type:      cache.TypePlain,
		Context:   qc.Clone(),
		Capacity:  int(qc.OptionInt(querycontext.OptionCacheMaxFragments, int64(b.CacheCapacity))),
		Allocator: b.Allocator,
	}

	transform := qc.OptionBool(querycontext.OptionTransformOperatorsBiggerThanGPU, b.TransformOperatorsBiggerThanGPU)
	if !transform && to.Kind().Blocking() {
		settings.Type = cache.TypeConcatenating
		settings.ConcatBytes = int64(qc.OptionBytes(querycontext.OptionConcatenatingCacheNumBytes, uint64(max(b.ConcatBytes, 0))))
	}
	if maxScans > 0 && from.Kind().IsScan() {
		// Admitted scans must never block on their consumers.
		settings.Capacity = 0
	}
	return settings
}

// String renders the plan of the last build.
func (b *Builder) String() string {
	if b.plan == nil {
		return ""
	}
	return physical.PrintAsTree(b.plan)
}
