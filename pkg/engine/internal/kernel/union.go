package kernel

import (
	"context"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/cespare/xxhash/v2"
	"github.com/dolthub/swiss"

	"github.com/blazingsql/engine/pkg/engine/internal/arrowutil"
	"github.com/blazingsql/engine/pkg/engine/internal/cache"
	"github.com/blazingsql/engine/pkg/engine/internal/planner/physical"
)

// Union reads its inputs one after another. All inputs take the column names
// of the first one. Without All, duplicate rows are dropped.
type Union struct {
	base
	node *physical.Union

	schema *arrow.Schema
	digest *xxhash.Digest
	seen   *swiss.Map[uint64, [][]any]
}

var _ Kernel = (*Union)(nil)

// NewUnion creates a union kernel.
func NewUnion(node *physical.Union, env Env) *Union {
	u := &Union{base: newBase(KindUnion, node.Step(), env), node: node}
	if !node.All {
		u.digest = xxhash.New()
		u.seen = swiss.NewMap[uint64, [][]any](64)
	}
	return u
}

// Run implements [Kernel].
func (u *Union) Run(ctx context.Context, inputs []*cache.Machine, out Outputs) error {
	if len(inputs) == 0 {
		return fmt.Errorf("%s expects at least 1 input", u.Kind())
	}

	em := &emitter{out: out, mem: u.mem}
	for i, in := range inputs {
		err := forEach(ctx, in, func(rec arrow.Record) error {
			conformed, err := u.conform(i, rec)
			if err != nil {
				return err
			}
			if !u.node.All {
				conformed, err = u.distinct(ctx, conformed)
				if err != nil {
					return err
				}
			}
			return em.emit(ctx, conformed)
		})
		if err != nil {
			return err
		}
	}
	return em.finish(ctx, u.schema)
}

// conform returns rec with the union's schema. The first record seen sets
// the schema.
func (u *Union) conform(input int, rec arrow.Record) (arrow.Record, error) {
	if u.schema == nil {
		fields := make([]arrow.Field, rec.NumCols())
		for i, f := range rec.Schema().Fields() {
			fields[i] = arrow.Field{Name: f.Name, Type: f.Type, Nullable: true}
		}
		u.schema = arrow.NewSchema(fields, nil)
	}

	if int(rec.NumCols()) != u.schema.NumFields() {
		return nil, fmt.Errorf("union input %d has %d columns, want %d", input, rec.NumCols(), u.schema.NumFields())
	}
	for i, f := range rec.Schema().Fields() {
		if want := u.schema.Field(i).Type; !arrow.TypeEqual(f.Type, want) {
			return nil, fmt.Errorf("union input %d: column %d has type %s, want %s", input, i, f.Type, want)
		}
	}
	return array.NewRecord(u.schema, rec.Columns(), rec.NumRows()), nil
}

// distinct drops the rows of rec seen before. It consumes rec.
func (u *Union) distinct(ctx context.Context, rec arrow.Record) (arrow.Record, error) {
	defer rec.Release()

	columns := make([]int, rec.NumCols())
	for i := range columns {
		columns[i] = i
	}

	var (
		keep   []int
		values []any
	)
	for row := range int(rec.NumRows()) {
		values = rowValues(values, rec, columns, row)
		h := hashValues(u.digest, values)
		previous, _ := u.seen.Get(h)
		if containsRow(previous, values) {
			continue
		}
		u.seen.Put(h, append(previous, append([]any(nil), values...)))
		keep = append(keep, row)
	}
	return arrowutil.TakeIndices(ctx, u.mem, rec, keep)
}

func containsRow(rows [][]any, values []any) bool {
	for _, row := range rows {
		if sameKeys(row, values) {
			return true
		}
	}
	return false
}
