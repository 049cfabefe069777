package kernel

import (
	"context"
	"fmt"
	"slices"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/cespare/xxhash/v2"
	"github.com/dolthub/swiss"

	"github.com/blazingsql/engine/pkg/engine/internal/arrowutil"
	"github.com/blazingsql/engine/pkg/engine/internal/cache"
	"github.com/blazingsql/engine/pkg/engine/internal/planner/physical"
)

// Join is a hash join. The right input is read completely into a hash table
// keyed by the equality conjuncts of the condition; the left input is then
// streamed against it. Remaining conjuncts are evaluated on the joined rows.
type Join struct {
	base
	node *physical.Join
	eval *evaluator

	leftKeys  []int
	rightKeys []int
	residual  physical.Expression
}

var _ Kernel = (*Join)(nil)

// NewJoin creates a join kernel.
func NewJoin(node *physical.Join, env Env) *Join {
	j := &Join{base: newBase(KindJoin, node.Step(), env), node: node}
	j.eval = newEvaluator(j.mem)
	return j
}

// Run implements [Kernel]. inputs are the left and right sides.
func (j *Join) Run(ctx context.Context, inputs []*cache.Machine, out Outputs) error {
	if err := expectInputs(j, inputs, 2); err != nil {
		return err
	}

	records, err := collect(ctx, inputs[1])
	if err != nil {
		return err
	}
	right, err := concatAll(j.mem, records)
	releaseAll(records)
	if err != nil {
		return err
	}
	if right == nil {
		right = array.NewRecord(arrow.NewSchema(nil, nil), nil, 0)
	}
	defer right.Release()

	var (
		table *swiss.Map[uint64, []int]
		em    = &emitter{out: out, mem: j.mem}
	)
	err = forEach(ctx, inputs[0], func(left arrow.Record) error {
		if table == nil {
			if err := j.splitCondition(int(left.NumCols()), int(right.NumCols())); err != nil {
				return err
			}
			table = j.build(right)
		}

		joined, err := j.probe(ctx, table, left, right)
		if err != nil {
			return err
		}
		return em.emit(ctx, joined)
	})
	if err != nil {
		return err
	}
	return em.finish(ctx, nil)
}

// splitCondition separates the equality conjuncts between a left and a
// right column from the rest of the condition.
func (j *Join) splitCondition(nLeft, nRight int) error {
	j.leftKeys, j.rightKeys, j.residual = nil, nil, nil

	var rest []physical.Expression
	for _, conjunct := range conjuncts(j.node.Condition) {
		l, r, ok := equiKey(conjunct, nLeft)
		if !ok {
			if lit, isLit := conjunct.(*physical.Literal); isLit && lit.Value == true {
				continue
			}
			rest = append(rest, conjunct)
			continue
		}
		if r-nLeft >= nRight {
			return fmt.Errorf("join column $%d out of range [0, %d)", r, nLeft+nRight)
		}
		j.leftKeys = append(j.leftKeys, l)
		j.rightKeys = append(j.rightKeys, r-nLeft)
	}

	switch len(rest) {
	case 0:
	case 1:
		j.residual = rest[0]
	default:
		j.residual = &physical.Call{Op: "AND", Args: rest, TypeName: "BOOLEAN"}
	}
	return nil
}

func conjuncts(expr physical.Expression) []physical.Expression {
	if expr == nil {
		return nil
	}
	if call, ok := expr.(*physical.Call); ok && call.Op == "AND" {
		var all []physical.Expression
		for _, arg := range call.Args {
			all = append(all, conjuncts(arg)...)
		}
		return all
	}
	return []physical.Expression{expr}
}

// equiKey matches =($l, $r) with $l on the left and $r on the right, in
// either order.
func equiKey(expr physical.Expression, nLeft int) (l, r int, ok bool) {
	call, isCall := expr.(*physical.Call)
	if !isCall || call.Op != "=" || len(call.Args) != 2 {
		return 0, 0, false
	}
	a, aok := call.Args[0].(*physical.ColumnRef)
	b, bok := call.Args[1].(*physical.ColumnRef)
	if !aok || !bok {
		return 0, 0, false
	}
	switch {
	case a.Index < nLeft && b.Index >= nLeft:
		return a.Index, b.Index, true
	case b.Index < nLeft && a.Index >= nLeft:
		return b.Index, a.Index, true
	}
	return 0, 0, false
}

// build hashes the key columns of right. Rows with a null key never match
// and are left out.
func (j *Join) build(right arrow.Record) *swiss.Map[uint64, []int] {
	table := swiss.NewMap[uint64, []int](uint32(max(right.NumRows(), 1)))
	if len(j.leftKeys) == 0 {
		return table
	}

	digest := xxhash.New()
	var keys []any
	for row := range int(right.NumRows()) {
		keys = rowValues(keys, right, j.rightKeys, row)
		if slices.Contains(keys, nil) {
			continue
		}
		h := hashValues(digest, keys)
		rows, _ := table.Get(h)
		table.Put(h, append(rows, row))
	}
	return table
}

// probe joins one left record against the build side.
func (j *Join) probe(ctx context.Context, table *swiss.Map[uint64, []int], left, right arrow.Record) (arrow.Record, error) {
	var (
		digest        = xxhash.New()
		leftIdx       []int
		rightIdx      []int
		keys, matches []any
	)
	for row := range int(left.NumRows()) {
		if len(j.leftKeys) == 0 {
			for r := range int(right.NumRows()) {
				leftIdx, rightIdx = append(leftIdx, row), append(rightIdx, r)
			}
			continue
		}

		keys = rowValues(keys, left, j.leftKeys, row)
		if slices.Contains(keys, nil) {
			continue
		}
		candidates, _ := table.Get(hashValues(digest, keys))
		for _, r := range candidates {
			matches = rowValues(matches, right, j.rightKeys, r)
			if sameKeys(keys, matches) {
				leftIdx, rightIdx = append(leftIdx, row), append(rightIdx, r)
			}
		}
	}

	if j.residual != nil && len(leftIdx) > 0 {
		var err error
		leftIdx, rightIdx, err = j.applyResidual(ctx, left, right, leftIdx, rightIdx)
		if err != nil {
			return nil, err
		}
	}
	if j.node.JoinType == physical.JoinTypeLeft {
		leftIdx, rightIdx = addUnmatched(int(left.NumRows()), leftIdx, rightIdx)
	}
	return j.gather(ctx, left, right, leftIdx, rightIdx)
}

// applyResidual keeps the candidate pairs for which the residual condition
// is true.
func (j *Join) applyResidual(ctx context.Context, left, right arrow.Record, leftIdx, rightIdx []int) ([]int, []int, error) {
	joined, err := j.gather(ctx, left, right, leftIdx, rightIdx)
	if err != nil {
		return nil, nil, err
	}
	defer joined.Release()

	mask, err := j.eval.evalMask(j.residual, joined)
	if err != nil {
		return nil, nil, err
	}
	defer mask.Release()

	keptLeft, keptRight := leftIdx[:0], rightIdx[:0]
	for i := range leftIdx {
		if mask.IsValid(i) && mask.Value(i) {
			keptLeft = append(keptLeft, leftIdx[i])
			keptRight = append(keptRight, rightIdx[i])
		}
	}
	return keptLeft, keptRight, nil
}

// addUnmatched inserts a pair with a null right row for every left row
// without a match, keeping pairs ordered by left row.
func addUnmatched(nLeft int, leftIdx, rightIdx []int) ([]int, []int) {
	outLeft := make([]int, 0, max(len(leftIdx), nLeft))
	outRight := make([]int, 0, cap(outLeft))

	i := 0
	for row := range nLeft {
		matched := false
		for i < len(leftIdx) && leftIdx[i] == row {
			outLeft, outRight = append(outLeft, row), append(outRight, rightIdx[i])
			matched = true
			i++
		}
		if !matched {
			outLeft, outRight = append(outLeft, row), append(outRight, -1)
		}
	}
	return outLeft, outRight
}

// gather builds the joined record of the given row pairs: the left columns
// followed by the right columns.
func (j *Join) gather(ctx context.Context, left, right arrow.Record, leftIdx, rightIdx []int) (arrow.Record, error) {
	l, err := arrowutil.TakeIndices(ctx, j.mem, left, leftIdx)
	if err != nil {
		return nil, err
	}
	defer l.Release()

	r, err := arrowutil.TakeIndices(ctx, j.mem, right, rightIdx)
	if err != nil {
		return nil, err
	}
	defer r.Release()

	fields := make([]arrow.Field, 0, l.NumCols()+r.NumCols())
	fields = append(fields, l.Schema().Fields()...)
	for _, f := range r.Schema().Fields() {
		if j.node.JoinType == physical.JoinTypeLeft {
			f.Nullable = true
		}
		fields = append(fields, f)
	}
	columns := append(slices.Clone(l.Columns()), r.Columns()...)
	return array.NewRecord(arrow.NewSchema(fields, nil), columns, int64(len(leftIdx))), nil
}
