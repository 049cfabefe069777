package kernel

import (
	"context"
	"fmt"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/cespare/xxhash/v2"
	"github.com/dolthub/swiss"

	"github.com/blazingsql/engine/pkg/engine/internal/cache"
	"github.com/blazingsql/engine/pkg/engine/internal/planner/physical"
)

// Aggregate groups its input by the group columns and computes the
// aggregation calls per group. Groups are emitted in the order they were
// first seen.
type Aggregate struct {
	base
	node *physical.Aggregate

	digest *xxhash.Digest
	index  *swiss.Map[uint64, []int]
	groups []*group
	kinds  []valueKind
	schema *arrow.Schema
}

type group struct {
	keys   []any
	states []accumulator
}

var _ Kernel = (*Aggregate)(nil)

// NewAggregate creates an aggregation kernel.
func NewAggregate(node *physical.Aggregate, env Env) *Aggregate {
	return &Aggregate{
		base:   newBase(KindAggregate, node.Step(), env),
		node:   node,
		digest: xxhash.New(),
		index:  swiss.NewMap[uint64, []int](64),
	}
}

// Run implements [Kernel].
func (a *Aggregate) Run(ctx context.Context, inputs []*cache.Machine, out Outputs) error {
	if err := expectInputs(a, inputs, 1); err != nil {
		return err
	}
	for _, call := range a.node.Calls {
		if _, err := newAccumulator(call); err != nil {
			return err
		}
	}

	err := forEach(ctx, inputs[0], func(rec arrow.Record) error {
		if a.schema == nil {
			if err := a.init(rec.Schema()); err != nil {
				return err
			}
		}
		return a.consume(rec)
	})
	if err != nil {
		return err
	}

	if a.schema == nil {
		// No input at all; argument types are unknown.
		a.kinds = make([]valueKind, len(a.node.GroupBy))
		a.schema = a.outputSchema(nil)
	}
	if len(a.groups) == 0 && len(a.node.GroupBy) == 0 {
		a.newGroup(nil)
	}

	rec, err := a.build()
	if err != nil {
		return err
	}
	em := &emitter{out: out, mem: a.mem}
	if err := em.emit(ctx, rec); err != nil {
		return err
	}
	return em.finish(ctx, a.schema)
}

func (a *Aggregate) init(schema *arrow.Schema) error {
	check := func(c int) error {
		if c < 0 || c >= schema.NumFields() {
			return fmt.Errorf("aggregate column %d out of range [0, %d)", c, schema.NumFields())
		}
		return nil
	}

	a.kinds = make([]valueKind, len(a.node.GroupBy))
	for i, c := range a.node.GroupBy {
		if err := check(c); err != nil {
			return err
		}
		a.kinds[i] = kindOf(schema.Field(c).Type)
	}
	for _, call := range a.node.Calls {
		for _, c := range call.Args {
			if err := check(c); err != nil {
				return err
			}
		}
	}
	a.schema = a.outputSchema(schema)
	return nil
}

func (a *Aggregate) outputSchema(input *arrow.Schema) *arrow.Schema {
	fields := make([]arrow.Field, 0, len(a.node.GroupBy)+len(a.node.Calls))
	for i, c := range a.node.GroupBy {
		name := fmt.Sprintf("$f%d", i)
		if input != nil {
			name = input.Field(c).Name
		}
		fields = append(fields, arrow.Field{Name: name, Type: a.kinds[i].dataType(), Nullable: true})
	}
	for i, call := range a.node.Calls {
		name := call.Name
		if name == "" {
			name = fmt.Sprintf("EXPR$%d", i)
		}
		fields = append(fields, arrow.Field{Name: name, Type: callResultKind(call, input).dataType(), Nullable: true})
	}
	return arrow.NewSchema(fields, nil)
}

func (a *Aggregate) consume(rec arrow.Record) error {
	var (
		keys []any
		args []any
	)
	for row := range int(rec.NumRows()) {
		keys = rowValues(keys, rec, a.node.GroupBy, row)
		g := a.lookup(keys)

		for i, call := range a.node.Calls {
			args = rowValues(args, rec, call.Args, row)
			if err := g.states[i].add(args); err != nil {
				return fmt.Errorf("%s: %w", call.Func, err)
			}
		}
	}
	return nil
}

// lookup returns the group of keys, creating it if needed. Nulls group
// together.
func (a *Aggregate) lookup(keys []any) *group {
	h := hashValues(a.digest, keys)
	candidates, _ := a.index.Get(h)
	for _, idx := range candidates {
		if sameKeys(a.groups[idx].keys, keys) {
			return a.groups[idx]
		}
	}

	g := a.newGroup(append([]any(nil), keys...))
	a.index.Put(h, append(candidates, len(a.groups)-1))
	return g
}

func (a *Aggregate) newGroup(keys []any) *group {
	g := &group{keys: keys, states: make([]accumulator, len(a.node.Calls))}
	for i, call := range a.node.Calls {
		g.states[i], _ = newAccumulator(call)
	}
	a.groups = append(a.groups, g)
	return g
}

func (a *Aggregate) build() (arrow.Record, error) {
	builders := make([]array.Builder, a.schema.NumFields())
	for i, field := range a.schema.Fields() {
		builders[i] = array.NewBuilder(a.mem, field.Type)
	}
	defer func() {
		for _, b := range builders {
			b.Release()
		}
	}()

	for _, g := range a.groups {
		for i, key := range g.keys {
			if err := appendValue(builders[i], key); err != nil {
				return nil, err
			}
		}
		for i, state := range g.states {
			if err := appendValue(builders[len(g.keys)+i], state.result()); err != nil {
				return nil, err
			}
		}
	}

	columns := make([]arrow.Array, len(builders))
	for i, b := range builders {
		columns[i] = b.NewArray()
	}
	defer func() {
		for _, col := range columns {
			col.Release()
		}
	}()
	return array.NewRecord(a.schema, columns, int64(len(a.groups))), nil
}

func sameKeys(a, b []any) bool {
	for i := range a {
		if a[i] == nil && b[i] == nil {
			continue
		}
		if !equalValues(a[i], b[i]) {
			return false
		}
	}
	return true
}

// callResultKind returns the kind of values produced by call over input.
// input is nil when the input schema is unknown.
func callResultKind(call physical.AggregateCall, input *arrow.Schema) valueKind {
	argKind := kindNull
	if input != nil && len(call.Args) > 0 {
		argKind = kindOf(input.Field(call.Args[0]).Type)
	}

	switch strings.ToUpper(call.Func) {
	case "COUNT":
		return kindInt
	case "AVG":
		return kindFloat
	case "SUM", "$SUM0":
		if argKind == kindNull {
			return kindInt
		}
		return argKind
	default:
		return argKind
	}
}

// accumulator folds the argument values of one group.
type accumulator interface {
	add(args []any) error
	result() any
}

func newAccumulator(call physical.AggregateCall) (accumulator, error) {
	fn := strings.ToUpper(call.Func)

	var acc accumulator
	switch fn {
	case "COUNT":
		acc = &countAccumulator{}
	case "SUM":
		acc = &sumAccumulator{}
	case "$SUM0":
		acc = &sumAccumulator{zero: true}
	case "AVG":
		acc = &avgAccumulator{}
	case "MIN":
		acc = &extremeAccumulator{want: -1}
	case "MAX":
		acc = &extremeAccumulator{want: 1}
	case "ANY_VALUE", "SINGLE_VALUE":
		acc = &anyAccumulator{}
	default:
		return nil, fmt.Errorf("unsupported aggregation %s", call.Func)
	}

	if fn != "COUNT" && len(call.Args) != 1 {
		return nil, fmt.Errorf("%s expects 1 argument, got %d", call.Func, len(call.Args))
	}
	if call.Distinct {
		acc = &distinctAccumulator{inner: acc, digest: xxhash.New(), seen: swiss.NewMap[uint64, [][]any](8)}
	}
	return acc, nil
}

// countAccumulator counts rows, or rows where every argument is non-null.
type countAccumulator struct{ n int64 }

func (c *countAccumulator) add(args []any) error {
	for _, v := range args {
		if v == nil {
			return nil
		}
	}
	c.n++
	return nil
}

func (c *countAccumulator) result() any { return c.n }

// sumAccumulator sums non-null values. Integer sums stay integers until a
// float is added. Without zero, the sum of no values is null.
type sumAccumulator struct {
	zero    bool
	seen    bool
	isFloat bool
	i       int64
	f       float64
}

func (s *sumAccumulator) add(args []any) error {
	switch v := args[0].(type) {
	case nil:
		return nil
	case int64:
		s.i += v
	case float64:
		s.isFloat = true
		s.f += v
	default:
		return fmt.Errorf("cannot sum %v (%T)", v, v)
	}
	s.seen = true
	return nil
}

func (s *sumAccumulator) result() any {
	switch {
	case !s.seen && !s.zero:
		return nil
	case s.isFloat:
		return s.f + float64(s.i)
	default:
		return s.i
	}
}

type avgAccumulator struct {
	sum sumAccumulator
	n   int64
}

func (a *avgAccumulator) add(args []any) error {
	if args[0] == nil {
		return nil
	}
	if err := a.sum.add(args); err != nil {
		return err
	}
	a.n++
	return nil
}

func (a *avgAccumulator) result() any {
	if a.n == 0 {
		return nil
	}
	total, _ := toFloat(a.sum.result())
	return total / float64(a.n)
}

// extremeAccumulator keeps the smallest (want -1) or largest (want 1)
// non-null value.
type extremeAccumulator struct {
	want int
	v    any
}

func (e *extremeAccumulator) add(args []any) error {
	v := args[0]
	if v == nil {
		return nil
	}
	if e.v == nil || compareValues(v, e.v) == e.want {
		e.v = v
	}
	return nil
}

func (e *extremeAccumulator) result() any { return e.v }

type anyAccumulator struct {
	v    any
	seen bool
}

func (a *anyAccumulator) add(args []any) error {
	if !a.seen {
		a.v, a.seen = args[0], true
	}
	return nil
}

func (a *anyAccumulator) result() any { return a.v }

// distinctAccumulator passes each distinct argument tuple to inner once.
type distinctAccumulator struct {
	inner  accumulator
	digest *xxhash.Digest
	seen   *swiss.Map[uint64, [][]any]
}

func (d *distinctAccumulator) add(args []any) error {
	h := hashValues(d.digest, args)
	previous, _ := d.seen.Get(h)
	for _, p := range previous {
		if sameKeys(p, args) {
			return nil
		}
	}
	tuple := append([]any(nil), args...)
	d.seen.Put(h, append(previous, tuple))
	return d.inner.add(tuple)
}

func (d *distinctAccumulator) result() any { return d.inner.result() }
