package source

import (
	"context"
	"io"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/csv"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/thanos-io/objstore"
)

// CSVOptions configures a CSV loader.
type CSVOptions struct {
	// Header indicates that the first line of every file holds column names.
	Header bool
	// Comma is the field delimiter. Defaults to ','.
	Comma rune
	// BatchSize is the number of rows per record. Defaults to 8192.
	BatchSize int
	// NullValues are the strings read as null, in addition to the empty
	// string.
	NullValues []string
	Allocator  memory.Allocator
}

// CSVLoader reads CSV files, optionally gzip or zstd compressed, from a
// bucket.
type CSVLoader struct {
	bucket objstore.Bucket
	schema Schema
	opts   CSVOptions
}

var _ Loader = (*CSVLoader)(nil)

// NewCSVLoader creates a loader for the files of schema. schema.Arrow is
// required.
func NewCSVLoader(bucket objstore.Bucket, schema Schema, opts CSVOptions) *CSVLoader {
	if opts.Comma == 0 {
		opts.Comma = ','
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 8192
	}
	if opts.Allocator == nil {
		opts.Allocator = memory.DefaultAllocator
	}
	return &CSVLoader{bucket: bucket, schema: schema, opts: opts}
}

// NumPartitions implements [Loader].
func (l *CSVLoader) NumPartitions() int { return 0 }

// Open implements [Loader].
func (l *CSVLoader) Open(_ context.Context, columns []int) (RecordReader, error) {
	// Validate the projection up front.
	if _, err := l.schema.Project(columns); err != nil {
		return nil, err
	}
	return &fileReader{
		files: l.schema.Files,
		open: func(ctx context.Context, file string) (RecordReader, error) {
			rc, err := openObject(ctx, l.bucket, file)
			if err != nil {
				return nil, err
			}
			return l.newReader(rc, columns), nil
		},
	}, nil
}

func (l *CSVLoader) newReader(rc io.ReadCloser, columns []int) *csvReader {
	nulls := append([]string{""}, l.opts.NullValues...)
	return &csvReader{
		rc:      rc,
		columns: columns,
		reader: csv.NewReader(rc, l.schema.Arrow,
			csv.WithAllocator(l.opts.Allocator),
			csv.WithHeader(l.opts.Header),
			csv.WithComma(l.opts.Comma),
			csv.WithChunk(l.opts.BatchSize),
			csv.WithNullReader(true, nulls...),
		),
	}
}

type csvReader struct {
	rc      io.ReadCloser
	reader  *csv.Reader
	columns []int
}

func (r *csvReader) Read(ctx context.Context) (arrow.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !r.reader.Next() {
		if err := r.reader.Err(); err != nil {
			return nil, err
		}
		return nil, EOF
	}

	rec := r.reader.Record()
	rec.Retain()
	return project(rec, r.columns)
}

func (r *csvReader) Close() {
	r.reader.Release()
	_ = r.rc.Close()
}
