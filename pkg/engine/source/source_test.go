package source

import (
	"bytes"
	"strings"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/require"
	"github.com/thanos-io/objstore"

	"github.com/blazingsql/engine/pkg/engine/internal/arrowtest"
)

var fields = []arrow.Field{
	{Name: "id", Type: arrow.PrimitiveTypes.Int64, Nullable: true},
	{Name: "name", Type: arrow.BinaryTypes.String, Nullable: true},
	{Name: "score", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
}

func readRows(t *testing.T, l Loader, columns []int) [][]string {
	t.Helper()

	r, err := l.Open(t.Context(), columns)
	require.NoError(t, err)
	defer r.Close()

	records, err := ReadAll(t.Context(), r)
	require.NoError(t, err)

	var rows [][]string
	for _, rec := range records {
		rows = append(rows, arrowtest.Rows(rec)...)
		rec.Release()
	}
	return rows
}

func TestRecordLoader(t *testing.T) {
	alloc := memory.NewCheckedAllocator(memory.DefaultAllocator)
	defer alloc.AssertSize(t, 0)

	a, err := arrowtest.CSVToArrowWithAllocator(alloc, fields, "1,a,0.5\n2,b,1.5")
	require.NoError(t, err)
	b, err := arrowtest.CSVToArrowWithAllocator(alloc, fields, "3,c,2.5")
	require.NoError(t, err)

	l := NewRecordLoader(a, b)
	a.Release()
	b.Release()
	defer l.Release()

	require.Equal(t, 2, l.NumPartitions())
	require.Equal(t, [][]string{{"1", "a", "0.5"}, {"2", "b", "1.5"}, {"3", "c", "2.5"}}, readRows(t, l, nil))
	require.Equal(t, [][]string{{"a", "1"}, {"b", "2"}, {"c", "3"}}, readRows(t, l, []int{1, 0}))
}

func TestCSVLoader(t *testing.T) {
	ctx := t.Context()
	bucket := objstore.NewInMemBucket()

	require.NoError(t, bucket.Upload(ctx, "t/part-0.csv", strings.NewReader("id,name,score\n1,a,0.5\n2,,1.5\n")))

	var gz bytes.Buffer
	gw := gzip.NewWriter(&gz)
	_, err := gw.Write([]byte("id,name,score\n3,c,NULL\n"))
	require.NoError(t, err)
	require.NoError(t, gw.Close())
	require.NoError(t, bucket.Upload(ctx, "t/part-1.csv.gz", &gz))

	var zs bytes.Buffer
	zw, err := zstd.NewWriter(&zs)
	require.NoError(t, err)
	_, err = zw.Write([]byte("id,name,score\n4,d,4.5\n"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, bucket.Upload(ctx, "t/part-2.csv.zst", &zs))

	schema := Schema{
		Arrow: arrow.NewSchema(fields, nil),
		Files: []string{"t/part-0.csv", "t/part-1.csv.gz", "t/part-2.csv.zst"},
	}
	l := NewCSVLoader(bucket, schema, CSVOptions{Header: true, NullValues: []string{"NULL"}, BatchSize: 1})
	require.Equal(t, 0, l.NumPartitions())

	t.Run("all columns", func(t *testing.T) {
		require.Equal(t, [][]string{
			{"1", "a", "0.5"},
			{"2", "NULL", "1.5"},
			{"3", "c", "NULL"},
			{"4", "d", "4.5"},
		}, readRows(t, l, nil))
	})

	t.Run("projection", func(t *testing.T) {
		require.Equal(t, [][]string{{"0.5"}, {"1.5"}, {"NULL"}, {"4.5"}}, readRows(t, l, []int{2}))
	})

	t.Run("invalid projection", func(t *testing.T) {
		_, err := l.Open(ctx, []int{7})
		require.ErrorContains(t, err, "out of range")
	})

	t.Run("missing file", func(t *testing.T) {
		missing := NewCSVLoader(bucket, Schema{Arrow: schema.Arrow, Files: []string{"t/missing.csv"}}, CSVOptions{})
		r, err := missing.Open(ctx, nil)
		require.NoError(t, err)
		defer r.Close()

		_, err = r.Read(ctx)
		require.ErrorContains(t, err, "opening t/missing.csv")
	})
}

func TestParquetLoader(t *testing.T) {
	ctx := t.Context()
	bucket := objstore.NewInMemBucket()
	schema := arrow.NewSchema(fields, nil)

	for i, data := range []string{"1,a,0.5\n2,b,1.5", "3,c,2.5"} {
		rec, err := arrowtest.CSVToArrow(fields, data)
		require.NoError(t, err)

		var buf bytes.Buffer
		fw, err := pqarrow.NewFileWriter(schema, &buf, parquet.NewWriterProperties(), pqarrow.DefaultWriterProps())
		require.NoError(t, err)
		require.NoError(t, fw.Write(rec))
		require.NoError(t, fw.Close())
		rec.Release()

		require.NoError(t, bucket.Upload(ctx, "t/part-"+string(rune('0'+i))+".parquet", &buf))
	}

	l := NewParquetLoader(bucket, Schema{Files: []string{"t/part-0.parquet", "t/part-1.parquet"}}, ParquetOptions{})

	t.Run("schema", func(t *testing.T) {
		got, err := l.ReadSchema(ctx, "t/part-0.parquet")
		require.NoError(t, err)
		require.Equal(t, 3, got.NumFields())
		require.Equal(t, "name", got.Field(1).Name)
	})

	t.Run("all columns", func(t *testing.T) {
		require.Equal(t, [][]string{{"1", "a", "0.5"}, {"2", "b", "1.5"}, {"3", "c", "2.5"}}, readRows(t, l, nil))
	})

	t.Run("projection keeps the requested order", func(t *testing.T) {
		require.Equal(t, [][]string{{"0.5", "1"}, {"1.5", "2"}, {"2.5", "3"}}, readRows(t, l, []int{2, 0}))
	})
}

func TestSchema_Project(t *testing.T) {
	s := Schema{Arrow: arrow.NewSchema(fields, nil)}

	got, err := s.Project([]int{2, 0})
	require.NoError(t, err)
	require.Equal(t, "score", got.Field(0).Name)
	require.Equal(t, "id", got.Field(1).Name)

	full, err := s.Project(nil)
	require.NoError(t, err)
	require.Same(t, s.Arrow, full)

	_, err = Schema{}.Project(nil)
	require.Error(t, err)
}
