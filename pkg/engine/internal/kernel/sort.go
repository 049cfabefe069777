package kernel

import (
	"context"
	"fmt"
	"slices"

	"github.com/apache/arrow-go/v18/arrow"

	"github.com/blazingsql/engine/pkg/engine/internal/arrowutil"
	"github.com/blazingsql/engine/pkg/engine/internal/cache"
	"github.com/blazingsql/engine/pkg/engine/internal/planner/physical"
)

// Sort orders its whole input by the sort keys and optionally trims the
// sorted rows.
type Sort struct {
	base
	node *physical.Sort
}

var _ Kernel = (*Sort)(nil)

// NewSort creates a sort kernel.
func NewSort(node *physical.Sort, env Env) *Sort {
	return &Sort{base: newBase(KindSort, node.Step(), env), node: node}
}

// Run implements [Kernel].
func (s *Sort) Run(ctx context.Context, inputs []*cache.Machine, out Outputs) error {
	if err := expectInputs(s, inputs, 1); err != nil {
		return err
	}

	records, err := collect(ctx, inputs[0])
	if err != nil {
		return err
	}
	merged, err := concatAll(s.mem, records)
	releaseAll(records)
	if err != nil {
		return err
	}
	if merged == nil {
		return nil
	}
	defer merged.Release()

	indices, err := s.order(merged)
	if err != nil {
		return err
	}

	sorted, err := arrowutil.TakeIndices(ctx, s.mem, merged, indices)
	if err != nil {
		return err
	}
	em := &emitter{out: out, mem: s.mem}
	if err := em.emit(ctx, sorted); err != nil {
		return err
	}
	return em.finish(ctx, merged.Schema())
}

// order returns the row positions of rec in sorted order, trimmed by the
// offset and fetch of the node.
func (s *Sort) order(rec arrow.Record) ([]int, error) {
	for _, key := range s.node.Keys {
		if key.Column < 0 || key.Column >= int(rec.NumCols()) {
			return nil, fmt.Errorf("sort column %d out of range [0, %d)", key.Column, rec.NumCols())
		}
	}

	n := int(rec.NumRows())
	keys := make([][]any, len(s.node.Keys))
	for k, key := range s.node.Keys {
		col := rec.Column(key.Column)
		keys[k] = make([]any, n)
		for i := range n {
			keys[k][i] = valueAt(col, i)
		}
	}

	indices := make([]int, n)
	for i := range indices {
		indices[i] = i
	}
	slices.SortStableFunc(indices, func(a, b int) int {
		for k, key := range s.node.Keys {
			if c := compareKey(keys[k][a], keys[k][b], key); c != 0 {
				return c
			}
		}
		return 0
	})

	start := min(int(s.node.Offset), n)
	end := n
	if s.node.Fetch >= 0 {
		end = min(start+int(s.node.Fetch), n)
	}
	return indices[start:end], nil
}

func compareKey(a, b any, key physical.SortKey) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		if key.NullsFirst {
			return -1
		}
		return 1
	case b == nil:
		if key.NullsFirst {
			return 1
		}
		return -1
	}

	c := compareValues(a, b)
	if !key.Ascending {
		c = -c
	}
	return c
}
