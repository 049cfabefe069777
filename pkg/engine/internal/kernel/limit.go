package kernel

import (
	"context"

	"github.com/apache/arrow-go/v18/arrow"

	"github.com/blazingsql/engine/pkg/engine/internal/cache"
	"github.com/blazingsql/engine/pkg/engine/internal/planner/physical"
)

// Limit skips Offset rows and passes at most Fetch rows.
type Limit struct {
	base
	node *physical.Limit
}

var _ Kernel = (*Limit)(nil)

// NewLimit creates a limit kernel.
func NewLimit(node *physical.Limit, env Env) *Limit {
	return &Limit{base: newBase(KindLimit, node.Step(), env), node: node}
}

// Offset returns the number of rows skipped.
func (l *Limit) Offset() int64 { return l.node.Offset }

// Fetch returns the maximum number of rows passed, or -1.
func (l *Limit) Fetch() int64 { return l.node.Fetch }

// Run implements [Kernel]. Once the limit is reached it stops pulling; the
// graph then detaches its input so producers stop early.
func (l *Limit) Run(ctx context.Context, inputs []*cache.Machine, out Outputs) error {
	if err := expectInputs(l, inputs, 1); err != nil {
		return err
	}

	// offsetRemaining and limitRemaining shrink as records are processed,
	// as both may cross record boundaries.
	var (
		offsetRemaining = l.node.Offset
		limitRemaining  = l.node.Fetch
		unlimited       = l.node.Fetch < 0
	)

	em := &emitter{out: out, mem: l.mem}
	err := forEach(ctx, inputs[0], func(rec arrow.Record) error {
		if !unlimited && limitRemaining <= 0 {
			em.schema = rec.Schema()
			return errStop
		}

		start := min(offsetRemaining, rec.NumRows())
		end := rec.NumRows()
		if !unlimited {
			end = min(start+limitRemaining, rec.NumRows())
			limitRemaining -= end - start
		}
		offsetRemaining -= start

		if err := em.emit(ctx, rec.NewSlice(start, end)); err != nil {
			return err
		}
		if !unlimited && limitRemaining <= 0 {
			return errStop
		}
		return nil
	})
	if err != nil {
		return err
	}
	return em.finish(ctx, nil)
}
