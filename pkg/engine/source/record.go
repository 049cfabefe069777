package source

import (
	"context"

	"github.com/apache/arrow-go/v18/arrow"
)

// RecordLoader serves a table held in memory as a list of records, one per
// partition.
type RecordLoader struct {
	records []arrow.Record
}

var _ Loader = (*RecordLoader)(nil)

// NewRecordLoader creates a loader over records. The loader retains the
// records until [RecordLoader.Release] is called.
func NewRecordLoader(records ...arrow.Record) *RecordLoader {
	for _, rec := range records {
		rec.Retain()
	}
	return &RecordLoader{records: records}
}

// NumPartitions implements [Loader].
func (l *RecordLoader) NumPartitions() int { return len(l.records) }

// Open implements [Loader].
func (l *RecordLoader) Open(_ context.Context, columns []int) (RecordReader, error) {
	return &recordReader{records: l.records, columns: columns}, nil
}

// Release releases the records held by the loader.
func (l *RecordLoader) Release() {
	for _, rec := range l.records {
		rec.Release()
	}
	l.records = nil
}

type recordReader struct {
	records []arrow.Record
	columns []int
	pos     int
}

func (r *recordReader) Read(ctx context.Context) (arrow.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r.pos >= len(r.records) {
		return nil, EOF
	}
	rec := r.records[r.pos]
	r.pos++

	rec.Retain()
	return project(rec, r.columns)
}

func (r *recordReader) Close() {}
