// Package arrowutil provides operations on whole Arrow records.
package arrowutil

import (
	"context"
	"errors"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/compute"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// Concatenate merges records with identical schemas into a single record,
// preserving row order. A single record is returned retained as-is.
func Concatenate(mem memory.Allocator, records []arrow.Record) (arrow.Record, error) {
	switch len(records) {
	case 0:
		return nil, errors.New("no records to concatenate")
	case 1:
		records[0].Retain()
		return records[0], nil
	}

	schema := records[0].Schema()
	var rows int64
	for _, rec := range records {
		if !rec.Schema().Equal(schema) {
			return nil, fmt.Errorf("cannot concatenate records with different schemas: %s and %s", schema, rec.Schema())
		}
		rows += rec.NumRows()
	}

	columns := make([]arrow.Array, schema.NumFields())
	defer func() {
		for _, col := range columns {
			if col != nil {
				col.Release()
			}
		}
	}()

	parts := make([]arrow.Array, len(records))
	for i := range columns {
		for j, rec := range records {
			parts[j] = rec.Column(i)
		}
		col, err := array.Concatenate(parts, mem)
		if err != nil {
			return nil, fmt.Errorf("concatenating column %s: %w", schema.Field(i).Name, err)
		}
		columns[i] = col
	}
	return array.NewRecord(schema, columns, rows), nil
}

// Size returns the number of bytes held by the buffers of rec.
func Size(rec arrow.Record) int64 {
	var size int64
	for _, col := range rec.Columns() {
		size += dataSize(col.Data())
	}
	return size
}

func dataSize(data arrow.ArrayData) int64 {
	var size int64
	for _, buf := range data.Buffers() {
		if buf != nil {
			size += int64(buf.Len())
		}
	}
	for _, child := range data.Children() {
		size += dataSize(child)
	}
	if data.DataType().ID() == arrow.DICTIONARY {
		if dict, ok := data.Dictionary().(*array.Data); ok && dict != nil {
			size += dataSize(dict)
		}
	}
	return size
}

// Empty returns a record with the given schema and no rows.
func Empty(mem memory.Allocator, schema *arrow.Schema) arrow.Record {
	rb := array.NewRecordBuilder(mem, schema)
	defer rb.Release()
	return rb.NewRecord()
}

// Take returns the rows of rec at the given indices, in index order. A null
// index produces a row of nulls.
func Take(ctx context.Context, mem memory.Allocator, rec arrow.Record, indices arrow.Array) (arrow.Record, error) {
	ctx = compute.WithAllocator(ctx, mem)

	columns := make([]arrow.Array, 0, rec.NumCols())
	defer func() {
		for _, col := range columns {
			col.Release()
		}
	}()

	for i, col := range rec.Columns() {
		taken, err := compute.TakeArray(ctx, col, indices)
		if err != nil {
			return nil, fmt.Errorf("taking column %s: %w", rec.ColumnName(i), err)
		}
		columns = append(columns, taken)
	}
	return array.NewRecord(rec.Schema(), columns, int64(indices.Len())), nil
}

// TakeIndices is like [Take] with indices given as a slice. Negative indices
// produce rows of nulls.
func TakeIndices(ctx context.Context, mem memory.Allocator, rec arrow.Record, indices []int) (arrow.Record, error) {
	b := array.NewInt64Builder(mem)
	defer b.Release()

	b.Reserve(len(indices))
	for _, idx := range indices {
		if idx < 0 {
			b.AppendNull()
			continue
		}
		b.Append(int64(idx))
	}
	arr := b.NewInt64Array()
	defer arr.Release()

	return Take(ctx, mem, rec, arr)
}

// Filter returns the rows of rec for which mask is true. Null mask entries
// drop the row.
func Filter(ctx context.Context, mem memory.Allocator, rec arrow.Record, mask *array.Boolean) (arrow.Record, error) {
	ctx = compute.WithAllocator(ctx, mem)
	return compute.FilterRecordBatch(ctx, rec, mask, compute.DefaultFilterOptions())
}

// SelectColumns returns a record with the columns of rec at the given
// positions. Names optionally renames the selected columns.
func SelectColumns(rec arrow.Record, indices []int, names []string) (arrow.Record, error) {
	fields := make([]arrow.Field, len(indices))
	columns := make([]arrow.Array, len(indices))
	for i, idx := range indices {
		if idx < 0 || idx >= int(rec.NumCols()) {
			return nil, fmt.Errorf("column %d out of range [0, %d)", idx, rec.NumCols())
		}
		fields[i] = rec.Schema().Field(idx)
		if i < len(names) && names[i] != "" {
			fields[i].Name = names[i]
		}
		columns[i] = rec.Column(idx)
	}
	return array.NewRecord(arrow.NewSchema(fields, nil), columns, rec.NumRows()), nil
}

// Rename returns rec with its columns renamed, keeping the data.
func Rename(rec arrow.Record, names []string) (arrow.Record, error) {
	if len(names) != int(rec.NumCols()) {
		return nil, fmt.Errorf("got %d names for %d columns", len(names), rec.NumCols())
	}
	fields := make([]arrow.Field, len(names))
	for i, name := range names {
		fields[i] = rec.Schema().Field(i)
		fields[i].Name = name
	}
	return array.NewRecord(arrow.NewSchema(fields, nil), rec.Columns(), rec.NumRows()), nil
}
