package kernel

import (
	"context"
	"errors"
	"sync"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/blazingsql/engine/pkg/engine/internal/arrowutil"
	"github.com/blazingsql/engine/pkg/engine/internal/cache"
	"github.com/blazingsql/engine/pkg/engine/querycontext"
)

var (
	// ErrNotFinished is returned by [Output.Release] before the output has
	// received its whole input.
	ErrNotFinished = errors.New("output not finished")
	// ErrReleased is returned by [Output.Release] when the result was already
	// taken.
	ErrReleased = errors.New("output already released")
)

// Output is the terminal kernel of a graph. It gathers every fragment it
// receives into one table, taken with [Output.Release].
type Output struct {
	base

	mu       sync.Mutex
	records  []arrow.Record
	finished bool
	released bool
}

var _ Kernel = (*Output)(nil)

// NewOutput creates an output kernel for the query of qc.
func NewOutput(qc *querycontext.Context, mem memory.Allocator) *Output {
	return &Output{base: newBase(KindOutput, "Output", Env{Context: qc, Allocator: mem})}
}

// Run implements [Kernel]. It pushes nothing.
func (o *Output) Run(ctx context.Context, inputs []*cache.Machine, _ Outputs) error {
	if err := expectInputs(o, inputs, 1); err != nil {
		return err
	}

	records, err := collect(ctx, inputs[0])
	if err != nil {
		return err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.records = records
	o.finished = true
	return nil
}

// Finished reports whether the output received its whole input.
func (o *Output) Finished() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.finished
}

// Release returns the gathered table and hands its ownership to the caller.
// An input of only empty fragments yields an empty table with their schema;
// no fragments at all yield a table without columns.
func (o *Output) Release() (arrow.Record, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch {
	case o.released:
		return nil, ErrReleased
	case !o.finished:
		return nil, ErrNotFinished
	}
	o.released = true

	records := o.records
	o.records = nil
	defer releaseAll(records)

	if len(records) == 0 {
		return array.NewRecord(arrow.NewSchema(nil, nil), nil, 0), nil
	}

	nonEmpty := make([]arrow.Record, 0, len(records))
	for _, rec := range records {
		if rec.NumRows() > 0 {
			nonEmpty = append(nonEmpty, rec)
		}
	}
	if len(nonEmpty) == 0 {
		return arrowutil.Empty(o.mem, records[0].Schema()), nil
	}
	return arrowutil.Concatenate(o.mem, nonEmpty)
}

// Discard drops the gathered fragments without building a table.
func (o *Output) Discard() {
	o.mu.Lock()
	defer o.mu.Unlock()
	releaseAll(o.records)
	o.records = nil
}
