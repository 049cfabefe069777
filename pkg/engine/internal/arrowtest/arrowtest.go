// Package arrowtest provides helpers to build and inspect Arrow records in
// tests.
package arrowtest

import (
	"errors"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/csv"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// CSVToArrow converts a CSV string to an Arrow record based on the provided
// fields. Empty values and "NULL" are read as nulls.
func CSVToArrow(fields []arrow.Field, csvData string) (arrow.Record, error) {
	return CSVToArrowWithAllocator(memory.NewGoAllocator(), fields, csvData)
}

// CSVToArrowWithAllocator is like [CSVToArrow] but allocates with the given
// allocator. All rows are read into a single record.
func CSVToArrowWithAllocator(allocator memory.Allocator, fields []arrow.Field, csvData string) (arrow.Record, error) {
	csvData = strings.TrimSpace(csvData)
	schema := arrow.NewSchema(fields, nil)

	reader := csv.NewReader(
		strings.NewReader(csvData),
		schema,
		csv.WithAllocator(allocator),
		csv.WithNullReader(true, "", "NULL"),
		csv.WithComma(','),
		csv.WithChunk(-1),
	)
	defer reader.Release()

	if !reader.Next() {
		if err := reader.Err(); err != nil {
			return nil, err
		}
		return nil, errors.New("failed to read CSV data")
	}

	rec := reader.Record()
	rec.Retain()
	return rec, nil
}

// Rows renders every row of rec as its column values, using "NULL" for null
// values.
func Rows(rec arrow.Record) [][]string {
	rows := make([][]string, rec.NumRows())
	for i := range rows {
		row := make([]string, rec.NumCols())
		for j, col := range rec.Columns() {
			if col.IsNull(i) {
				row[j] = "NULL"
				continue
			}
			row[j] = col.ValueStr(i)
		}
		rows[i] = row
	}
	return rows
}

// Names returns the column names of rec.
func Names(rec arrow.Record) []string {
	names := make([]string, rec.NumCols())
	for i := range names {
		names[i] = rec.ColumnName(i)
	}
	return names
}
