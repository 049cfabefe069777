// Package kernel implements the operators of an execution graph. A kernel
// pulls record fragments from its input caches and pushes results into its
// output caches.
package kernel

import (
	"context"
	"errors"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/go-kit/log"

	"github.com/blazingsql/engine/pkg/engine/internal/arrowutil"
	"github.com/blazingsql/engine/pkg/engine/internal/cache"
	"github.com/blazingsql/engine/pkg/engine/querycontext"
)

// Kind identifies the operator a kernel implements.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindTableScan
	KindBindableScan
	KindFilter
	KindProject
	KindJoin
	KindAggregate
	KindSort
	KindLimit
	KindUnion
	KindOutput
)

var kindNames = [...]string{
	KindInvalid:      "Invalid",
	KindTableScan:    "TableScan",
	KindBindableScan: "BindableScan",
	KindFilter:       "Filter",
	KindProject:      "Project",
	KindJoin:         "Join",
	KindAggregate:    "Aggregate",
	KindSort:         "Sort",
	KindLimit:        "Limit",
	KindUnion:        "Union",
	KindOutput:       "Output",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", k)
}

// Blocking reports whether kernels of kind k need their whole input before
// producing output.
func (k Kind) Blocking() bool {
	switch k {
	case KindJoin, KindAggregate, KindSort:
		return true
	}
	return false
}

// IsScan reports whether k reads a table.
func (k Kind) IsScan() bool { return k == KindTableScan || k == KindBindableScan }

// Kernel is a unit of execution in the graph.
type Kernel interface {
	// Kind returns the operator of the kernel.
	Kind() Kind
	// Label describes the kernel, usually with the plan step it was built
	// from.
	Label() string
	// Context returns the kernel's own query context.
	Context() *querycontext.Context
	// Run processes the inputs until they are exhausted and pushes results
	// to out. Run must not close the output caches; the graph does.
	Run(ctx context.Context, inputs []*cache.Machine, out Outputs) error
}

// RowLimiter is implemented by kernels that can stop producing rows early.
type RowLimiter interface {
	// SetRowLimit caps the number of rows produced. A negative value removes
	// the cap.
	SetRowLimit(n int64)
}

// Outputs are the caches a kernel pushes into. Every record is pushed to
// every output.
type Outputs []*cache.Machine

// Push pushes rec to all outputs. It returns [cache.ErrDetached] only when
// every output has been detached.
func (o Outputs) Push(ctx context.Context, rec arrow.Record) error {
	detached := 0
	for _, m := range o {
		err := m.Push(ctx, rec)
		switch {
		case errors.Is(err, cache.ErrDetached):
			detached++
		case err != nil:
			return err
		}
	}
	if len(o) > 0 && detached == len(o) {
		return cache.ErrDetached
	}
	return nil
}

type base struct {
	kind   Kind
	label  string
	qc     *querycontext.Context
	logger log.Logger
	mem    memory.Allocator
}

func newBase(kind Kind, label string, env Env) base {
	if env.Logger == nil {
		env.Logger = log.NewNopLogger()
	}
	if env.Allocator == nil {
		env.Allocator = memory.DefaultAllocator
	}
	if env.Context == nil {
		env.Context = querycontext.New("", nil, querycontext.Membership{})
	}
	return base{
		kind:   kind,
		label:  label,
		qc:     env.Context,
		logger: env.Logger,
		mem:    env.Allocator,
	}
}

func (b *base) Kind() Kind                     { return b.kind }
func (b *base) Label() string                  { return b.label }
func (b *base) Context() *querycontext.Context { return b.qc }

func expectInputs(k Kernel, inputs []*cache.Machine, n int) error {
	if len(inputs) != n {
		return fmt.Errorf("%s expects %d inputs, got %d", k.Kind(), n, len(inputs))
	}
	return nil
}

// errStop ends a [forEach] loop early without an error.
var errStop = errors.New("stop")

// forEach pulls every record of in and passes it to f. The record is
// released after f returns.
func forEach(ctx context.Context, in *cache.Machine, f func(arrow.Record) error) error {
	for {
		rec, err := in.Pull(ctx)
		if errors.Is(err, cache.EOF) {
			return nil
		} else if err != nil {
			return err
		}

		err = f(rec)
		rec.Release()
		if errors.Is(err, errStop) {
			return nil
		} else if err != nil {
			return err
		}
	}
}

// collect pulls every record of in. The caller owns the returned records.
func collect(ctx context.Context, in *cache.Machine) ([]arrow.Record, error) {
	var records []arrow.Record
	err := forEach(ctx, in, func(rec arrow.Record) error {
		rec.Retain()
		records = append(records, rec)
		return nil
	})
	if err != nil {
		releaseAll(records)
		return nil, err
	}
	return records, nil
}

// concatAll merges records into one. It returns nil when there are no
// records.
func concatAll(mem memory.Allocator, records []arrow.Record) (arrow.Record, error) {
	if len(records) == 0 {
		return nil, nil
	}
	return arrowutil.Concatenate(mem, records)
}

func releaseAll(records []arrow.Record) {
	for _, rec := range records {
		rec.Release()
	}
}

// emitter pushes results to the outputs, skipping empty records. If a
// kernel produced no rows at all, finish pushes one empty record so the
// consumers still learn the schema.
type emitter struct {
	out    Outputs
	mem    memory.Allocator
	schema *arrow.Schema
	pushed bool
	rows   int64
}

// emit pushes rec and releases it.
func (e *emitter) emit(ctx context.Context, rec arrow.Record) error {
	defer rec.Release()

	e.schema = rec.Schema()
	if rec.NumRows() == 0 {
		return nil
	}
	e.pushed = true
	e.rows += rec.NumRows()
	return e.out.Push(ctx, rec)
}

// finish pushes an empty record if nothing was pushed. fallback is used
// when no record was emitted at all.
func (e *emitter) finish(ctx context.Context, fallback *arrow.Schema) error {
	if e.pushed {
		return nil
	}
	schema := e.schema
	if schema == nil {
		schema = fallback
	}
	if schema == nil {
		return nil
	}

	empty := arrowutil.Empty(e.mem, schema)
	defer empty.Release()
	e.pushed = true
	return e.out.Push(ctx, empty)
}
