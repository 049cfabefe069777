package kernel

import (
	"context"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"

	"github.com/blazingsql/engine/pkg/engine/internal/cache"
	"github.com/blazingsql/engine/pkg/engine/internal/planner/physical"
)

// Project computes one output column per expression.
type Project struct {
	base
	node *physical.Project
	eval *evaluator
}

var _ Kernel = (*Project)(nil)

// NewProject creates a projection kernel.
func NewProject(node *physical.Project, env Env) *Project {
	p := &Project{base: newBase(KindProject, node.Step(), env), node: node}
	p.eval = newEvaluator(p.mem)
	return p
}

// Run implements [Kernel].
func (p *Project) Run(ctx context.Context, inputs []*cache.Machine, out Outputs) error {
	if err := expectInputs(p, inputs, 1); err != nil {
		return err
	}

	em := &emitter{out: out, mem: p.mem}
	err := forEach(ctx, inputs[0], func(rec arrow.Record) error {
		projected, err := p.project(rec)
		if err != nil {
			return err
		}
		return em.emit(ctx, projected)
	})
	if err != nil {
		return err
	}
	return em.finish(ctx, nil)
}

func (p *Project) project(rec arrow.Record) (arrow.Record, error) {
	fields := make([]arrow.Field, len(p.node.Expressions))
	columns := make([]arrow.Array, 0, len(p.node.Expressions))
	defer func() {
		for _, col := range columns {
			col.Release()
		}
	}()

	for i, expr := range p.node.Expressions {
		col, err := p.eval.eval(expr, rec)
		if err != nil {
			return nil, err
		}
		columns = append(columns, col)
		fields[i] = arrow.Field{Name: p.node.Names[i], Type: col.DataType(), Nullable: true}
	}
	return array.NewRecord(arrow.NewSchema(fields, nil), columns, rec.NumRows()), nil
}
