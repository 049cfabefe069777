// Package source defines the data loaders that feed table scans.
package source

import (
	"context"
	"errors"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"

	"github.com/blazingsql/engine/pkg/engine/internal/arrowutil"
)

// EOF is returned by [RecordReader.Read] when a reader is exhausted.
var EOF = errors.New("source exhausted") //nolint:revive,staticcheck

// Loader opens readers over one input table.
type Loader interface {
	// Open returns a reader producing the given columns of the table, in the
	// given order. An empty list reads every column.
	Open(ctx context.Context, columns []int) (RecordReader, error)
	// NumPartitions returns the number of in-memory partitions the table is
	// made of. File-backed tables report zero; their files are listed in
	// their [Schema].
	NumPartitions() int
}

// RecordReader reads the records of a table.
type RecordReader interface {
	// Read returns the next record, or [EOF]. The caller owns the record.
	Read(ctx context.Context) (arrow.Record, error)
	// Close releases the resources of the reader.
	Close()
}

// Schema describes an input table.
type Schema struct {
	// Arrow is the schema of the full table. It may be nil for self-describing
	// formats such as Parquet.
	Arrow *arrow.Schema
	// Files lists the objects the table is read from.
	Files []string
}

// Project returns the schema of the given columns of s. An empty list
// returns the full schema.
func (s Schema) Project(columns []int) (*arrow.Schema, error) {
	if s.Arrow == nil {
		return nil, errors.New("table has no schema")
	}
	if len(columns) == 0 {
		return s.Arrow, nil
	}
	fields := make([]arrow.Field, len(columns))
	for i, idx := range columns {
		if idx < 0 || idx >= s.Arrow.NumFields() {
			return nil, fmt.Errorf("column %d out of range [0, %d)", idx, s.Arrow.NumFields())
		}
		fields[i] = s.Arrow.Field(idx)
	}
	return arrow.NewSchema(fields, nil), nil
}

// project applies a column selection to a record read with the full schema.
// It consumes rec.
func project(rec arrow.Record, columns []int) (arrow.Record, error) {
	if len(columns) == 0 {
		return rec, nil
	}
	defer rec.Release()
	return arrowutil.SelectColumns(rec, columns, nil)
}

// ReadAll reads every record of r. The caller owns the returned records.
func ReadAll(ctx context.Context, r RecordReader) ([]arrow.Record, error) {
	var records []arrow.Record
	for {
		rec, err := r.Read(ctx)
		if errors.Is(err, EOF) {
			return records, nil
		} else if err != nil {
			for _, rec := range records {
				rec.Release()
			}
			return nil, err
		}
		records = append(records, rec)
	}
}
