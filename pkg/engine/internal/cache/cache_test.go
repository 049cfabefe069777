package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/blazingsql/engine/pkg/engine/internal/arrowtest"
	"github.com/blazingsql/engine/pkg/engine/internal/arrowutil"
	"github.com/blazingsql/engine/pkg/engine/querycontext"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var fields = []arrow.Field{
	{Name: "id", Type: arrow.PrimitiveTypes.Int64, Nullable: true},
}

func record(t *testing.T, alloc memory.Allocator, csv string) arrow.Record {
	t.Helper()
	rec, err := arrowtest.CSVToArrowWithAllocator(alloc, fields, csv)
	require.NoError(t, err)
	return rec
}

func settings(typ Type) Settings {
	return Settings{Type: typ, Context: querycontext.New("test", nil, querycontext.Membership{})}
}

func TestMachine_Plain(t *testing.T) {
	alloc := memory.NewCheckedAllocator(memory.DefaultAllocator)
	defer alloc.AssertSize(t, 0)

	ctx := t.Context()
	m := New(settings(TypePlain), nil)

	for _, csv := range []string{"1", "2\n3", "4"} {
		rec := record(t, alloc, csv)
		require.NoError(t, m.Push(ctx, rec))
		rec.Release()
	}
	require.Equal(t, 3, m.Len())
	m.Close()

	var got [][]string
	for {
		rec, err := m.Pull(ctx)
		if errors.Is(err, EOF) {
			break
		}
		require.NoError(t, err)
		got = append(got, arrowtest.Rows(rec)...)
		rec.Release()
	}
	require.Equal(t, [][]string{{"1"}, {"2"}, {"3"}, {"4"}}, got)

	rec := record(t, alloc, "5")
	defer rec.Release()
	require.ErrorIs(t, m.Push(ctx, rec), ErrClosed)
}

func TestMachine_Concatenating(t *testing.T) {
	t.Run("merges everything queued", func(t *testing.T) {
		alloc := memory.NewCheckedAllocator(memory.DefaultAllocator)
		defer alloc.AssertSize(t, 0)

		ctx := t.Context()
		s := settings(TypeConcatenating)
		s.Allocator = alloc
		m := New(s, nil)

		for _, csv := range []string{"1", "2\n3", "4"} {
			rec := record(t, alloc, csv)
			require.NoError(t, m.Push(ctx, rec))
			rec.Release()
		}
		m.Close()

		rec, err := m.Pull(ctx)
		require.NoError(t, err)
		require.Equal(t, [][]string{{"1"}, {"2"}, {"3"}, {"4"}}, arrowtest.Rows(rec))
		rec.Release()

		_, err = m.Pull(ctx)
		require.ErrorIs(t, err, EOF)
	})

	t.Run("respects the byte threshold", func(t *testing.T) {
		alloc := memory.NewCheckedAllocator(memory.DefaultAllocator)
		defer alloc.AssertSize(t, 0)

		ctx := t.Context()
		one := record(t, alloc, "1")
		size := arrowutil.Size(one)
		one.Release()

		s := settings(TypeConcatenating)
		s.Allocator = alloc
		s.ConcatBytes = 2 * size
		m := New(s, nil)

		for _, csv := range []string{"1", "2", "3"} {
			rec := record(t, alloc, csv)
			require.NoError(t, m.Push(ctx, rec))
			rec.Release()
		}
		m.Close()

		first, err := m.Pull(ctx)
		require.NoError(t, err)
		require.Equal(t, int64(2), first.NumRows())
		first.Release()

		second, err := m.Pull(ctx)
		require.NoError(t, err)
		require.Equal(t, int64(1), second.NumRows())
		second.Release()
	})

	t.Run("waits for the threshold", func(t *testing.T) {
		alloc := memory.NewCheckedAllocator(memory.DefaultAllocator)
		defer alloc.AssertSize(t, 0)

		s := settings(TypeConcatenating)
		s.Allocator = alloc
		s.ConcatBytes = 1 << 30
		m := New(s, nil)

		rec := record(t, alloc, "1")
		require.NoError(t, m.Push(t.Context(), rec))
		rec.Release()

		ctx, cancel := context.WithTimeout(t.Context(), 50*time.Millisecond)
		defer cancel()
		_, err := m.Pull(ctx)
		require.ErrorIs(t, err, context.DeadlineExceeded)

		m.Close()
		got, err := m.Pull(t.Context())
		require.NoError(t, err)
		require.Equal(t, int64(1), got.NumRows())
		got.Release()
	})
}

func TestMachine_Backpressure(t *testing.T) {
	ctx := t.Context()
	s := settings(TypePlain)
	s.Capacity = 1
	m := New(s, nil)

	rec := record(t, memory.DefaultAllocator, "1")
	defer rec.Release()
	require.NoError(t, m.Push(ctx, rec))

	pushed := make(chan error, 1)
	go func() { pushed <- m.Push(ctx, rec) }()

	select {
	case <-pushed:
		t.Fatal("push into a full cache must block")
	case <-time.After(50 * time.Millisecond):
	}

	got, err := m.Pull(ctx)
	require.NoError(t, err)
	got.Release()
	require.NoError(t, <-pushed)
	require.Equal(t, 1, m.Len())

	m.Close()
	got, err = m.Pull(ctx)
	require.NoError(t, err)
	got.Release()
}

func TestMachine_Abort(t *testing.T) {
	alloc := memory.NewCheckedAllocator(memory.DefaultAllocator)
	defer alloc.AssertSize(t, 0)

	ctx := t.Context()
	cause := errors.New("kernel failed")

	t.Run("unblocks pulls", func(t *testing.T) {
		m := New(settings(TypePlain), nil)
		pulled := make(chan error, 1)
		go func() {
			_, err := m.Pull(ctx)
			pulled <- err
		}()

		time.Sleep(10 * time.Millisecond)
		m.Abort(cause)
		require.ErrorIs(t, <-pulled, cause)
	})

	t.Run("unblocks pushes and releases the queue", func(t *testing.T) {
		s := settings(TypePlain)
		s.Capacity = 1
		m := New(s, nil)

		rec := record(t, alloc, "1")
		defer rec.Release()
		require.NoError(t, m.Push(ctx, rec))

		pushed := make(chan error, 1)
		go func() { pushed <- m.Push(ctx, rec) }()

		time.Sleep(10 * time.Millisecond)
		m.Abort(cause)
		m.Abort(errors.New("second cause is ignored"))

		require.ErrorIs(t, <-pushed, cause)
		require.Equal(t, 0, m.Len())
		_, err := m.Pull(ctx)
		require.ErrorIs(t, err, cause)
	})
}

func TestMachine_Detach(t *testing.T) {
	alloc := memory.NewCheckedAllocator(memory.DefaultAllocator)
	defer alloc.AssertSize(t, 0)

	ctx := t.Context()
	m := New(settings(TypePlain), nil)

	rec := record(t, alloc, "1")
	defer rec.Release()
	require.NoError(t, m.Push(ctx, rec))

	m.Detach()
	require.Equal(t, 0, m.Len())
	require.ErrorIs(t, m.Push(ctx, rec), ErrDetached)
}

func TestMachine_ContextCancellation(t *testing.T) {
	m := New(settings(TypePlain), nil)

	ctx, cancel := context.WithCancel(t.Context())
	pulled := make(chan error, 1)
	go func() {
		_, err := m.Pull(ctx)
		pulled <- err
	}()

	cancel()
	require.ErrorIs(t, <-pulled, context.Canceled)
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)

	ctx := t.Context()
	m := New(settings(TypePlain), metrics)

	rec := record(t, memory.DefaultAllocator, "1\n2")
	defer rec.Release()
	require.NoError(t, m.Push(ctx, rec))
	got, err := m.Pull(ctx)
	require.NoError(t, err)
	got.Release()

	require.Equal(t, 1.0, testutil.ToFloat64(metrics.fragmentsPushed.WithLabelValues("plain")))
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.fragmentsPulled.WithLabelValues("plain")))
	require.Positive(t, testutil.ToFloat64(metrics.bytesPushed.WithLabelValues("plain")))
}
