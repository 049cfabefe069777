package kernel

import (
	"context"
	"errors"
	"slices"

	"github.com/apache/arrow-go/v18/arrow"
	"go.uber.org/atomic"

	"github.com/blazingsql/engine/pkg/engine/internal/arrowutil"
	"github.com/blazingsql/engine/pkg/engine/internal/cache"
	"github.com/blazingsql/engine/pkg/engine/internal/planner/physical"
	"github.com/blazingsql/engine/pkg/engine/source"
)

// Scan reads a table from its loader. Bindable scans read only their
// projected columns and apply their filters while reading.
type Scan struct {
	base
	node     *physical.Scan
	loader   source.Loader
	schema   source.Schema
	eval     *evaluator
	rowLimit atomic.Int64
}

var (
	_ Kernel     = (*Scan)(nil)
	_ RowLimiter = (*Scan)(nil)
)

// NewScan creates a scan kernel reading env.Loader.
func NewScan(node *physical.Scan, env Env) *Scan {
	kind := KindTableScan
	if node.Bindable {
		kind = KindBindableScan
	}
	s := &Scan{
		base:   newBase(kind, node.Step(), env),
		node:   node,
		loader: env.Loader,
		schema: env.Schema,
	}
	s.eval = newEvaluator(s.mem)
	s.rowLimit.Store(-1)
	return s
}

// Table returns the name of the scanned table.
func (s *Scan) Table() string { return s.node.Table }

// SetRowLimit implements [RowLimiter].
func (s *Scan) SetRowLimit(n int64) { s.rowLimit.Store(n) }

// RowLimit returns the current row cap, or -1.
func (s *Scan) RowLimit() int64 { return s.rowLimit.Load() }

// Run implements [Kernel].
func (s *Scan) Run(ctx context.Context, inputs []*cache.Machine, out Outputs) error {
	if err := expectInputs(s, inputs, 0); err != nil {
		return err
	}

	reader, err := s.loader.Open(ctx, s.node.Columns)
	if err != nil {
		return err
	}
	defer reader.Close()

	em := &emitter{out: out, mem: s.mem}
	limit := s.rowLimit.Load()

	for limit < 0 || em.rows < limit {
		rec, err := reader.Read(ctx)
		if errors.Is(err, source.EOF) {
			break
		} else if err != nil {
			return err
		}

		rec, err = s.transform(ctx, rec)
		if err != nil {
			return err
		}
		if limit >= 0 && em.rows+rec.NumRows() > limit {
			sliced := rec.NewSlice(0, limit-em.rows)
			rec.Release()
			rec = sliced
		}
		if err := em.emit(ctx, rec); err != nil {
			return err
		}
	}

	fallback, _ := s.outputSchema()
	return em.finish(ctx, fallback)
}

// transform applies the filters and aliases of a bindable scan. It consumes
// rec.
func (s *Scan) transform(ctx context.Context, rec arrow.Record) (arrow.Record, error) {
	for _, filter := range s.node.Filters {
		mask, err := s.eval.evalMask(filter, rec)
		if err != nil {
			rec.Release()
			return nil, err
		}
		filtered, err := arrowutil.Filter(ctx, s.mem, rec, mask)
		mask.Release()
		rec.Release()
		if err != nil {
			return nil, err
		}
		rec = filtered
	}

	if len(s.node.Aliases) == int(rec.NumCols()) {
		renamed, err := arrowutil.Rename(rec, s.node.Aliases)
		rec.Release()
		if err != nil {
			return nil, err
		}
		rec = renamed
	}
	return rec, nil
}

func (s *Scan) outputSchema() (*arrow.Schema, error) {
	schema, err := s.schema.Project(s.node.Columns)
	if err != nil {
		return nil, err
	}
	if len(s.node.Aliases) != schema.NumFields() {
		return schema, nil
	}
	fields := slices.Clone(schema.Fields())
	for i := range fields {
		fields[i].Name = s.node.Aliases[i]
	}
	return arrow.NewSchema(fields, nil), nil
}
