// Package engine runs physical query plans over Arrow tables.
package engine

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/blazingsql/engine/pkg/engine/internal/cache"
	"github.com/blazingsql/engine/pkg/engine/internal/graph"
	"github.com/blazingsql/engine/pkg/engine/internal/kernel"
	"github.com/blazingsql/engine/pkg/engine/internal/planner/physical"
	"github.com/blazingsql/engine/pkg/engine/querycontext"
	"github.com/blazingsql/engine/pkg/engine/source"
)

var tracer = otel.Tracer("pkg/engine")

// TableScanInfo lists the scans of a plan, see [GetTableScanInfo].
type TableScanInfo = physical.TableScanInfo

// GetTableScanInfo returns the scan steps of a plan along with the tables
// they read and the columns they project, in plan order. Table names have
// the default schema prefix removed.
func GetTableScanInfo(plan string) (TableScanInfo, error) {
	return physical.GetTableScanInfo(plan)
}

// Params holds parameters for constructing a new [Engine].
type Params struct {
	Logger     log.Logger            // Logger for optional log messages.
	Registerer prometheus.Registerer // Registerer for optional metrics.

	Config    Config           // Config for the Engine.
	Allocator memory.Allocator // Allocator for intermediate and result tables.
}

// validate validates p and applies defaults.
func (p *Params) validate() error {
	if p.Logger == nil {
		p.Logger = log.NewNopLogger()
	}
	if p.Registerer == nil {
		p.Registerer = prometheus.NewRegistry()
	}
	if p.Allocator == nil {
		p.Allocator = memory.DefaultAllocator
	}
	return p.Config.Validate()
}

// Request describes a single plan execution.
type Request struct {
	// Context identifies the query. A new context is created when nil.
	Context *querycontext.Context

	// Loaders, Schemas and TableNames describe the input tables by
	// position. The three lists must have the same length.
	Loaders    []source.Loader
	Schemas    []source.Schema
	TableNames []string

	// Plan is the text of the physical plan, one operator per line.
	Plan string

	// Connection identifies the client connection the query came from.
	Connection int64
}

func (r *Request) validate() error {
	if len(r.Loaders) != len(r.TableNames) || len(r.Schemas) != len(r.TableNames) {
		return fmt.Errorf("%w: got %d loaders and %d schemas for %d tables", ErrPrecondition, len(r.Loaders), len(r.Schemas), len(r.TableNames))
	}
	return nil
}

// Engine executes physical plans.
type Engine struct {
	logger     log.Logger
	registerer prometheus.Registerer
	cfg        Config
	allocator  memory.Allocator

	metrics      *metrics
	cacheMetrics *cache.Metrics
	graphMetrics *graph.Metrics

	plans   *lru.Cache[string, *physical.Plan] // Nil when plans are not cached.
	factory kernel.Factory
}

// New creates a new Engine.
func New(params Params) (*Engine, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}

	graphMetrics := graph.NewMetrics()
	if err := graphMetrics.Register(params.Registerer); err != nil {
		return nil, fmt.Errorf("registering graph metrics: %w", err)
	}

	e := &Engine{
		logger:     params.Logger,
		registerer: params.Registerer,
		cfg:        params.Config,
		allocator:  params.Allocator,

		metrics:      newMetrics(params.Registerer),
		cacheMetrics: cache.NewMetrics(params.Registerer),
		graphMetrics: graphMetrics,

		factory: kernel.DefaultFactory,
	}

	if size := params.Config.PlanCacheSize; size > 0 {
		plans, err := lru.New[string, *physical.Plan](size)
		if err != nil {
			return nil, err
		}
		e.plans = plans
	}
	return e, nil
}

// Close unregisters the graph metrics of e.
func (e *Engine) Close() {
	e.graphMetrics.Unregister(e.registerer)
}

// ExecutePlan builds the execution graph of req.Plan, runs it and returns
// its result. The caller owns the returned record.
//
// A plan without operators returns [ErrEmptyPlan]. Any other failure is
// logged with the query identity and returned unchanged.
func (e *Engine) ExecutePlan(ctx context.Context, req Request) (result arrow.Record, err error) {
	start := time.Now()

	qc := req.Context
	if qc == nil {
		qc = querycontext.New("", nil, querycontext.Membership{})
	}
	logger := qc.Logger(e.logger)

	ctx, span := tracer.Start(ctx, "Engine.ExecutePlan", trace.WithAttributes(
		attribute.String("query_id", qc.Token()),
		attribute.Int64("connection", req.Connection),
		attribute.StringSlice("tables", req.TableNames),
	))
	defer span.End()
	ctx = querycontext.Inject(ctx, qc)

	defer func() {
		if err == nil {
			e.metrics.queries.WithLabelValues(statusSuccess).Inc()
			span.SetStatus(codes.Ok, "")
			return
		}

		status := statusFailure
		if errors.Is(err, ErrEmptyPlan) {
			status = statusEmpty
		}
		e.metrics.queries.WithLabelValues(status).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to execute plan")
		level.Error(logger).Log("info", "In ExecutePlan. What: "+err.Error(), "duration", time.Since(start))
	}()

	if err := req.validate(); err != nil {
		return nil, err
	}

	g, tree, err := e.buildGraph(ctx, qc, req)
	if err != nil {
		return nil, err
	}
	output := kernel.NewOutput(qc.Clone(), e.allocator)

	qc.IncrementSubstep()
	level.Info(logger).Log("info", "Query Start\n"+tree)

	qc.IncrementSubstep()
	level.Info(logger).Log("info", tablesSummary(req))

	qc.IncrementSubstep()
	level.Info(logger).Log("info", optionsSummary(qc.ConfigOptions()))

	if g.NumNodes() == 0 {
		return nil, ErrEmptyPlan
	}

	last, err := g.LastKernel()
	if err != nil {
		return nil, err
	}
	err = g.AddEdge(graph.Link(last, output, cache.Settings{
		Type:      cache.TypeConcatenating,
		Context:   qc.Clone(),
		Name:      "output",
		Allocator: e.allocator,
	}))
	if err != nil {
		return nil, err
	}

	if g.CheckForSimpleScanWithLimitQuery() {
		level.Debug(logger).Log("info", "limit applied while scanning")
	}

	result, err = e.execute(ctx, qc, g, output)
	if err != nil {
		return nil, err
	}

	qc.IncrementSubstep()
	level.Info(logger).Log("info", "Query Execution Done", "duration", time.Since(start))
	return result, nil
}

// buildGraph builds the graph of req and returns it along with the
// rendering of its plan.
func (e *Engine) buildGraph(ctx context.Context, qc *querycontext.Context, req Request) (*graph.Graph, string, error) {
	timer := prometheus.NewTimer(e.metrics.planning)
	defer timer.ObserveDuration()

	plan, err := e.parsePlan(req.Plan)
	if err != nil {
		return nil, "", err
	}

	b := &graph.Builder{
		Context:    qc.Clone(),
		Loaders:    req.Loaders,
		Schemas:    req.Schemas,
		TableNames: req.TableNames,

		TransformOperatorsBiggerThanGPU: e.cfg.TransformOperatorsBiggerThanGPU,

		Factory:   e.factory,
		Logger:    e.logger,
		Allocator: e.allocator,

		CacheMetrics: e.cacheMetrics,
		Metrics:      e.graphMetrics,

		CacheCapacity:      e.cfg.CacheCapacity,
		ConcatBytes:        int64(e.cfg.ConcatBytes),
		MaxConcurrentScans: e.cfg.MaxConcurrentScans,
	}
	g, err := b.BuildFromPlan(ctx, plan)
	if err != nil {
		return nil, "", err
	}
	return g, b.String(), nil
}

// parsePlan parses and optimizes text, reusing a cached plan when possible.
// Cached plans are shared between queries and never modified.
func (e *Engine) parsePlan(text string) (*physical.Plan, error) {
	if e.plans != nil {
		if plan, ok := e.plans.Get(text); ok {
			e.metrics.planCacheHits.Inc()
			return plan, nil
		}
		e.metrics.planCacheMisses.Inc()
	}

	plan, err := physical.ParsePlan(text)
	if err != nil {
		return nil, err
	}
	physical.Optimize(plan)

	if e.plans != nil {
		e.plans.Add(text, plan)
	}
	return plan, nil
}

// execute runs g to completion and takes the result out of output.
func (e *Engine) execute(ctx context.Context, qc *querycontext.Context, g *graph.Graph, output *kernel.Output) (arrow.Record, error) {
	timer := prometheus.NewTimer(e.metrics.execution)
	defer timer.ObserveDuration()

	qc.IncrementStep()
	e.metrics.kernelsStarted.Add(float64(g.NumNodes()))

	if err := g.Execute(ctx); err != nil {
		output.Discard()
		return nil, err
	}

	result, err := output.Release()
	if err != nil {
		return nil, err
	} else if result == nil {
		return nil, ErrPostcondition
	}
	return result, nil
}

func tablesSummary(req Request) string {
	var sb strings.Builder
	for i, name := range req.TableNames {
		fmt.Fprintf(&sb, "Table %s: ", name)

		files := len(req.Schemas[i].Files)
		partitions := req.Loaders[i].NumPartitions()
		switch {
		case files > 0:
			fmt.Fprintf(&sb, "num files = %d; ", files)
		case partitions > 0:
			fmt.Fprintf(&sb, "num partitions = %d; ", partitions)
		default:
			sb.WriteString("empty table; ")
		}
	}
	return sb.String()
}

func optionsSummary(options map[string]string) string {
	var sb strings.Builder
	sb.WriteString("Config Options: ")
	for _, key := range slices.Sorted(maps.Keys(options)) {
		fmt.Fprintf(&sb, "%s: %s; ", key, options[key])
	}
	return sb.String()
}
