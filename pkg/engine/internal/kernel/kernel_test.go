package kernel

import (
	"errors"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/blazingsql/engine/pkg/engine/internal/arrowtest"
	"github.com/blazingsql/engine/pkg/engine/internal/cache"
	"github.com/blazingsql/engine/pkg/engine/internal/planner/physical"
	"github.com/blazingsql/engine/pkg/engine/querycontext"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var (
	ordersFields = []arrow.Field{
		{Name: "id", Type: arrow.PrimitiveTypes.Int64, Nullable: true},
		{Name: "customer", Type: arrow.BinaryTypes.String, Nullable: true},
		{Name: "amount", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
	}
	customersFields = []arrow.Field{
		{Name: "name", Type: arrow.BinaryTypes.String, Nullable: true},
		{Name: "country", Type: arrow.BinaryTypes.String, Nullable: true},
	}
)

func testEnv(alloc memory.Allocator) Env {
	return Env{
		Context:   querycontext.New("test", nil, querycontext.Membership{}),
		Allocator: alloc,
	}
}

func records(t *testing.T, alloc memory.Allocator, fields []arrow.Field, csvs ...string) []arrow.Record {
	t.Helper()
	recs := make([]arrow.Record, 0, len(csvs))
	for _, csv := range csvs {
		rec, err := arrowtest.CSVToArrowWithAllocator(alloc, fields, csv)
		require.NoError(t, err)
		recs = append(recs, rec)
	}
	return recs
}

// input returns a closed cache holding recs. It releases recs.
func input(t *testing.T, recs []arrow.Record) *cache.Machine {
	t.Helper()
	m := cache.New(cache.Settings{Type: cache.TypePlain}, nil)
	for _, rec := range recs {
		require.NoError(t, m.Push(t.Context(), rec))
		rec.Release()
	}
	m.Close()
	return m
}

type result struct {
	names   []string
	rows    [][]string
	records int
}

// run runs k over inputs and gathers what it pushed.
func run(t *testing.T, k Kernel, inputs ...*cache.Machine) (result, error) {
	t.Helper()
	out := cache.New(cache.Settings{Type: cache.TypePlain}, nil)
	runErr := k.Run(t.Context(), inputs, Outputs{out})
	out.Close()

	var res result
	for {
		rec, err := out.Pull(t.Context())
		if errors.Is(err, cache.EOF) {
			break
		}
		require.NoError(t, err)
		res.records++
		res.names = arrowtest.Names(rec)
		res.rows = append(res.rows, arrowtest.Rows(rec)...)
		rec.Release()
	}
	for _, in := range inputs {
		in.Detach()
	}
	return res, runErr
}

func TestKind(t *testing.T) {
	require.Equal(t, "BindableScan", KindBindableScan.String())
	require.Equal(t, "Kind(42)", Kind(42).String())
	require.True(t, KindSort.Blocking())
	require.False(t, KindFilter.Blocking())
	require.True(t, KindTableScan.IsScan())
	require.False(t, KindOutput.IsScan())
}

func TestOutputs_Push(t *testing.T) {
	rec, err := arrowtest.CSVToArrow(ordersFields, "1,a,1.5")
	require.NoError(t, err)
	defer rec.Release()

	t.Run("broadcasts", func(t *testing.T) {
		a := cache.New(cache.Settings{}, nil)
		b := cache.New(cache.Settings{}, nil)
		defer a.Detach()
		defer b.Detach()

		require.NoError(t, Outputs{a, b}.Push(t.Context(), rec))
		require.Equal(t, 1, a.Len())
		require.Equal(t, 1, b.Len())
	})

	t.Run("partially detached", func(t *testing.T) {
		a := cache.New(cache.Settings{}, nil)
		b := cache.New(cache.Settings{}, nil)
		defer b.Detach()
		a.Detach()

		require.NoError(t, Outputs{a, b}.Push(t.Context(), rec))
		require.Equal(t, 1, b.Len())
	})

	t.Run("all detached", func(t *testing.T) {
		a := cache.New(cache.Settings{}, nil)
		a.Detach()
		require.ErrorIs(t, Outputs{a}.Push(t.Context(), rec), cache.ErrDetached)
	})
}

func TestDefaultFactory(t *testing.T) {
	env := testEnv(memory.DefaultAllocator)

	k, err := DefaultFactory.NewKernel(&physical.Limit{Fetch: 1}, env)
	require.NoError(t, err)
	require.Equal(t, KindLimit, k.Kind())

	_, err = DefaultFactory.NewKernel(&physical.Scan{Table: "orders"}, env)
	require.ErrorContains(t, err, "no loader bound to table orders")
}
