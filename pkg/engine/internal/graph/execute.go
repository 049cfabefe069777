package graph

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/blazingsql/engine/pkg/engine/internal/cache"
)

var tracer = otel.Tracer("pkg/engine/internal/graph")

// Execute runs every kernel of the graph concurrently and waits for all of
// them to finish. A graph can be executed once.
//
// When a kernel finishes, its outputs are closed and its inputs detached, so
// producers still pushing into them stop. When a kernel fails, every cache of
// the graph is aborted with its error, which is returned wrapped with the
// kernel's ID and label.
func (g *Graph) Execute(ctx context.Context) error {
	if !g.executed.CompareAndSwap(false, true) {
		return fmt.Errorf("%w: graph already executed", ErrPrecondition)
	}
	if len(g.nodes) == 0 {
		return nil
	}

	ctx, span := tracer.Start(ctx, "Graph.Execute", trace.WithAttributes(
		attribute.Int("kernels", len(g.nodes)),
		attribute.Int("edges", len(g.edges)),
	))
	defer span.End()

	var (
		admission = newAdmissionControl(int64(g.opts.MaxConcurrentScans))

		failOnce sync.Once
		failErr  error
	)
	fail := func(err error) {
		failOnce.Do(func() {
			failErr = err
			for _, e := range g.edges {
				e.cache.Abort(err)
			}
		})
	}

	eg, ctx := errgroup.WithContext(ctx)
	for _, n := range g.nodes {
		eg.Go(func() error {
			if err := g.run(ctx, n, admission); err != nil {
				fail(err)
				return err
			}
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		span.RecordError(failErr)
		span.SetStatus(codes.Error, failErr.Error())
		return failErr
	}
	return nil
}

func (g *Graph) run(ctx context.Context, n *node, admission *admissionControl) (err error) {
	kind := n.kernel.Kind().String()
	logger := g.opts.Logger
	if qc := n.kernel.Context(); qc != nil {
		logger = qc.Logger(logger)
	}
	logger = log.With(logger, "kernel", n.id, "kind", kind)

	defer func() {
		if err != nil {
			g.setState(n, StateErrored)
			err = fmt.Errorf("kernel %d (%s): %w", n.id, n.kernel.Label(), err)
			level.Debug(logger).Log("msg", "kernel failed", "err", err)
		}
	}()

	lane := admission.laneFor(n.kernel)
	if lane.limited() {
		start := time.Now()
		if err := lane.Acquire(ctx, 1); err != nil {
			return err
		}
		defer lane.Release(1)
		g.opts.Metrics.observeAdmission(time.Since(start))
	}

	ctx, span := tracer.Start(ctx, "Kernel.Run", trace.WithAttributes(
		attribute.Int("id", n.id),
		attribute.String("kind", kind),
		attribute.Int("inputs", len(n.inputs)),
		attribute.Int("outputs", len(n.outputs)),
	))
	defer span.End()

	g.setState(n, StateRunning)
	level.Debug(logger).Log("msg", "kernel started")
	start := time.Now()

	err = n.kernel.Run(ctx, n.inputs, n.outputs)
	if errors.Is(err, cache.ErrDetached) {
		// Every consumer stopped reading; nothing more is needed from this
		// kernel.
		err = nil
	}
	g.opts.Metrics.observeExec(kind, time.Since(start))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	for _, out := range n.outputs {
		out.Close()
	}
	for _, in := range n.inputs {
		in.Detach()
	}
	g.setState(n, StateDone)
	level.Debug(logger).Log("msg", "kernel finished", "duration", time.Since(start))
	return nil
}

func (g *Graph) setState(n *node, s State) {
	n.state.Store(uint32(s))
	g.opts.Metrics.observeState(n.kernel.Kind().String(), s)
}
