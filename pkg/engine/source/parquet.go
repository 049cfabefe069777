package source

import (
	"bytes"
	"context"
	"io"
	"slices"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet/file"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
	"github.com/thanos-io/objstore"
)

// ParquetOptions configures a Parquet loader.
type ParquetOptions struct {
	// BatchSize is the number of rows per record. Defaults to 8192.
	BatchSize int64
	Allocator memory.Allocator
}

// ParquetLoader reads Parquet files from a bucket.
type ParquetLoader struct {
	bucket objstore.Bucket
	schema Schema
	opts   ParquetOptions
}

var _ Loader = (*ParquetLoader)(nil)

// NewParquetLoader creates a loader for the files of schema. The files must
// share a flat schema.
func NewParquetLoader(bucket objstore.Bucket, schema Schema, opts ParquetOptions) *ParquetLoader {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 8192
	}
	if opts.Allocator == nil {
		opts.Allocator = memory.DefaultAllocator
	}
	return &ParquetLoader{bucket: bucket, schema: schema, opts: opts}
}

// NumPartitions implements [Loader].
func (l *ParquetLoader) NumPartitions() int { return 0 }

// Open implements [Loader].
func (l *ParquetLoader) Open(_ context.Context, columns []int) (RecordReader, error) {
	return &fileReader{
		files: l.schema.Files,
		open: func(ctx context.Context, name string) (RecordReader, error) {
			return l.openFile(ctx, name, columns)
		},
	}, nil
}

// ReadSchema returns the Arrow schema of a Parquet file.
func (l *ParquetLoader) ReadSchema(ctx context.Context, name string) (*arrow.Schema, error) {
	pf, err := l.parquetFile(ctx, name)
	if err != nil {
		return nil, err
	}
	defer pf.Close()

	fr, err := pqarrow.NewFileReader(pf, pqarrow.ArrowReadProperties{}, l.opts.Allocator)
	if err != nil {
		return nil, err
	}
	return fr.Schema()
}

func (l *ParquetLoader) parquetFile(ctx context.Context, name string) (*file.Reader, error) {
	rc, err := l.bucket.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, err
	}
	return file.NewParquetReader(bytes.NewReader(data))
}

func (l *ParquetLoader) openFile(ctx context.Context, name string, columns []int) (RecordReader, error) {
	pf, err := l.parquetFile(ctx, name)
	if err != nil {
		return nil, err
	}

	fr, err := pqarrow.NewFileReader(pf, pqarrow.ArrowReadProperties{BatchSize: l.opts.BatchSize}, l.opts.Allocator)
	if err != nil {
		pf.Close()
		return nil, err
	}

	// The reader returns columns in file order. Read each requested column
	// once and restore the requested order afterwards.
	var (
		indices   []int
		positions []int
	)
	if len(columns) > 0 {
		indices = slices.Clone(columns)
		slices.Sort(indices)
		indices = slices.Compact(indices)
		for _, c := range columns {
			pos, _ := slices.BinarySearch(indices, c)
			positions = append(positions, pos)
		}
	}

	rr, err := fr.GetRecordReader(ctx, indices, nil)
	if err != nil {
		pf.Close()
		return nil, err
	}
	return &parquetReader{file: pf, reader: rr, positions: positions}, nil
}

type parquetReader struct {
	file      *file.Reader
	reader    pqarrow.RecordReader
	positions []int
}

func (r *parquetReader) Read(ctx context.Context) (arrow.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !r.reader.Next() {
		if err := r.reader.Err(); err != nil && err != io.EOF {
			return nil, err
		}
		return nil, EOF
	}

	rec := r.reader.Record()
	rec.Retain()
	return project(rec, r.positions)
}

func (r *parquetReader) Close() {
	r.reader.Release()
	_ = r.file.Close()
}
