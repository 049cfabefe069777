package graph

import (
	"context"
	"errors"

	"github.com/blazingsql/engine/pkg/engine/internal/arrowtest"
	"github.com/blazingsql/engine/pkg/engine/internal/cache"
	"github.com/blazingsql/engine/pkg/engine/internal/kernel"
	"github.com/blazingsql/engine/pkg/engine/querycontext"
)

type runFunc func(ctx context.Context, inputs []*cache.Machine, out kernel.Outputs) error

// fakeKernel runs a function in place of an operator.
type fakeKernel struct {
	kind  kernel.Kind
	label string
	qc    *querycontext.Context
	run   runFunc
}

func newFake(kind kernel.Kind, label string, run runFunc) *fakeKernel {
	if run == nil {
		run = drain
	}
	return &fakeKernel{kind: kind, label: label, qc: newQueryContext(nil), run: run}
}

func (k *fakeKernel) Kind() kernel.Kind              { return k.kind }
func (k *fakeKernel) Label() string                  { return k.label }
func (k *fakeKernel) Context() *querycontext.Context { return k.qc }

func (k *fakeKernel) Run(ctx context.Context, inputs []*cache.Machine, out kernel.Outputs) error {
	return k.run(ctx, inputs, out)
}

func pushOne(ctx context.Context, out kernel.Outputs) error {
	rec, err := arrowtest.CSVToArrow(ordersFields, "1,alice,1")
	if err != nil {
		return err
	}
	defer rec.Release()
	return out.Push(ctx, rec)
}

func produceForever(ctx context.Context, _ []*cache.Machine, out kernel.Outputs) error {
	for {
		if err := pushOne(ctx, out); err != nil {
			return err
		}
	}
}

func drain(ctx context.Context, inputs []*cache.Machine, _ kernel.Outputs) error {
	for _, in := range inputs {
		for {
			rec, err := in.Pull(ctx)
			if errors.Is(err, cache.EOF) {
				break
			} else if err != nil {
				return err
			}
			rec.Release()
		}
	}
	return nil
}
