package arrowutil

import (
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/require"

	"github.com/blazingsql/engine/pkg/engine/internal/arrowtest"
)

var fields = []arrow.Field{
	{Name: "id", Type: arrow.PrimitiveTypes.Int64, Nullable: true},
	{Name: "name", Type: arrow.BinaryTypes.String, Nullable: true},
}

func TestConcatenate(t *testing.T) {
	alloc := memory.NewCheckedAllocator(memory.DefaultAllocator)
	defer alloc.AssertSize(t, 0)

	a, err := arrowtest.CSVToArrowWithAllocator(alloc, fields, "1,a\n2,b")
	require.NoError(t, err)
	defer a.Release()
	b, err := arrowtest.CSVToArrowWithAllocator(alloc, fields, "3,c")
	require.NoError(t, err)
	defer b.Release()

	t.Run("preserves order", func(t *testing.T) {
		rec, err := Concatenate(alloc, []arrow.Record{a, b})
		require.NoError(t, err)
		defer rec.Release()
		require.Equal(t, [][]string{{"1", "a"}, {"2", "b"}, {"3", "c"}}, arrowtest.Rows(rec))
	})

	t.Run("single record", func(t *testing.T) {
		rec, err := Concatenate(alloc, []arrow.Record{b})
		require.NoError(t, err)
		defer rec.Release()
		require.Equal(t, int64(1), rec.NumRows())
	})

	t.Run("schema mismatch", func(t *testing.T) {
		other, err := arrowtest.CSVToArrowWithAllocator(alloc, fields[:1], "4")
		require.NoError(t, err)
		defer other.Release()

		_, err = Concatenate(alloc, []arrow.Record{a, other})
		require.ErrorContains(t, err, "different schemas")
	})

	t.Run("no records", func(t *testing.T) {
		_, err := Concatenate(alloc, nil)
		require.Error(t, err)
	})
}

func TestSize(t *testing.T) {
	small, err := arrowtest.CSVToArrow(fields, "1,a")
	require.NoError(t, err)
	defer small.Release()
	large, err := arrowtest.CSVToArrow(fields, "1,a\n2,bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb\n3,c")
	require.NoError(t, err)
	defer large.Release()

	require.Positive(t, Size(small))
	require.Greater(t, Size(large), Size(small))
}

func TestSize_Dictionary(t *testing.T) {
	alloc := memory.NewCheckedAllocator(memory.DefaultAllocator)
	defer alloc.AssertSize(t, 0)

	dictType := &arrow.DictionaryType{IndexType: arrow.PrimitiveTypes.Int32, ValueType: arrow.BinaryTypes.String}
	schema := arrow.NewSchema([]arrow.Field{
		{Name: "id", Type: arrow.PrimitiveTypes.Int64},
		{Name: "country", Type: dictType},
	}, nil)

	build := func(country string) arrow.Record {
		rb := array.NewRecordBuilder(alloc, schema)
		defer rb.Release()
		ids := rb.Field(0).(*array.Int64Builder)
		countries := rb.Field(1).(*array.BinaryDictionaryBuilder)
		for i := range 4 {
			ids.Append(int64(i))
			require.NoError(t, countries.AppendString(country))
		}
		return rb.NewRecord()
	}

	short := build("FR")
	defer short.Release()
	long := build("a country name long enough to dominate the dictionary buffers")
	defer long.Release()

	var shortSize, longSize int64
	require.NotPanics(t, func() {
		shortSize = Size(short)
		longSize = Size(long)
	})
	require.Positive(t, shortSize)
	require.Greater(t, longSize, shortSize)
}

func TestTakeIndices(t *testing.T) {
	alloc := memory.NewCheckedAllocator(memory.DefaultAllocator)
	defer alloc.AssertSize(t, 0)

	rec, err := arrowtest.CSVToArrowWithAllocator(alloc, fields, "1,a\n2,b\n3,c")
	require.NoError(t, err)
	defer rec.Release()

	taken, err := TakeIndices(t.Context(), alloc, rec, []int{2, -1, 0, 0})
	require.NoError(t, err)
	defer taken.Release()

	require.Equal(t, [][]string{{"3", "c"}, {"NULL", "NULL"}, {"1", "a"}, {"1", "a"}}, arrowtest.Rows(taken))
}

func TestFilter(t *testing.T) {
	alloc := memory.NewCheckedAllocator(memory.DefaultAllocator)
	defer alloc.AssertSize(t, 0)

	rec, err := arrowtest.CSVToArrowWithAllocator(alloc, fields, "1,a\n2,b\n3,c")
	require.NoError(t, err)
	defer rec.Release()

	mb := array.NewBooleanBuilder(alloc)
	mb.AppendValues([]bool{true, false, true}, []bool{true, true, true})
	mask := mb.NewBooleanArray()
	mb.Release()
	defer mask.Release()

	filtered, err := Filter(t.Context(), alloc, rec, mask)
	require.NoError(t, err)
	defer filtered.Release()

	require.Equal(t, [][]string{{"1", "a"}, {"3", "c"}}, arrowtest.Rows(filtered))
}

func TestSelectColumns(t *testing.T) {
	rec, err := arrowtest.CSVToArrow(fields, "1,a")
	require.NoError(t, err)
	defer rec.Release()

	selected, err := SelectColumns(rec, []int{1, 0}, []string{"n"})
	require.NoError(t, err)
	defer selected.Release()
	require.Equal(t, []string{"n", "id"}, arrowtest.Names(selected))
	require.Equal(t, [][]string{{"a", "1"}}, arrowtest.Rows(selected))

	_, err = SelectColumns(rec, []int{5}, nil)
	require.ErrorContains(t, err, "out of range")

	renamed, err := Rename(rec, []string{"x", "y"})
	require.NoError(t, err)
	defer renamed.Release()
	require.Equal(t, []string{"x", "y"}, arrowtest.Names(renamed))
}

func TestEmpty(t *testing.T) {
	rec := Empty(memory.DefaultAllocator, arrow.NewSchema(fields, nil))
	defer rec.Release()
	require.Equal(t, int64(0), rec.NumRows())
	require.Equal(t, int64(2), rec.NumCols())
}
