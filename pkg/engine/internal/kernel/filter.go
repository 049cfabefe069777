package kernel

import (
	"context"

	"github.com/apache/arrow-go/v18/arrow"

	"github.com/blazingsql/engine/pkg/engine/internal/arrowutil"
	"github.com/blazingsql/engine/pkg/engine/internal/cache"
	"github.com/blazingsql/engine/pkg/engine/internal/planner/physical"
)

// Filter keeps the rows matching a predicate.
type Filter struct {
	base
	node *physical.Filter
	eval *evaluator
}

var _ Kernel = (*Filter)(nil)

// NewFilter creates a filter kernel.
func NewFilter(node *physical.Filter, env Env) *Filter {
	f := &Filter{base: newBase(KindFilter, node.Step(), env), node: node}
	f.eval = newEvaluator(f.mem)
	return f
}

// Run implements [Kernel].
func (f *Filter) Run(ctx context.Context, inputs []*cache.Machine, out Outputs) error {
	if err := expectInputs(f, inputs, 1); err != nil {
		return err
	}

	em := &emitter{out: out, mem: f.mem}
	err := forEach(ctx, inputs[0], func(rec arrow.Record) error {
		mask, err := f.eval.evalMask(f.node.Condition, rec)
		if err != nil {
			return err
		}
		defer mask.Release()

		filtered, err := arrowutil.Filter(ctx, f.mem, rec, mask)
		if err != nil {
			return err
		}
		return em.emit(ctx, filtered)
	})
	if err != nil {
		return err
	}
	return em.finish(ctx, nil)
}
