package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/thanos-io/objstore"
)

// fileReader reads a list of files one after another.
type fileReader struct {
	files []string
	open  func(ctx context.Context, file string) (RecordReader, error)

	current RecordReader
	pos     int
}

func (r *fileReader) Read(ctx context.Context) (arrow.Record, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if r.current == nil {
			if r.pos >= len(r.files) {
				return nil, EOF
			}
			file := r.files[r.pos]
			r.pos++

			current, err := r.open(ctx, file)
			if err != nil {
				return nil, fmt.Errorf("opening %s: %w", file, err)
			}
			r.current = current
		}

		rec, err := r.current.Read(ctx)
		if errors.Is(err, EOF) {
			r.current.Close()
			r.current = nil
			continue
		} else if err != nil {
			return nil, err
		}
		return rec, nil
	}
}

func (r *fileReader) Close() {
	if r.current != nil {
		r.current.Close()
		r.current = nil
	}
	r.pos = len(r.files)
}

// openObject opens a file of bucket, decompressing it according to its
// extension.
func openObject(ctx context.Context, bucket objstore.Bucket, name string) (io.ReadCloser, error) {
	rc, err := bucket.Get(ctx, name)
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(path.Ext(name)) {
	case ".gz", ".gzip":
		zr, err := gzip.NewReader(rc)
		if err != nil {
			rc.Close()
			return nil, err
		}
		return &stackedReadCloser{Reader: zr, closers: []io.Closer{zr, rc}}, nil
	case ".zst", ".zstd":
		zr, err := zstd.NewReader(rc)
		if err != nil {
			rc.Close()
			return nil, err
		}
		return &stackedReadCloser{Reader: zr, closers: []io.Closer{zr.IOReadCloser(), rc}}, nil
	default:
		return rc, nil
	}
}

type stackedReadCloser struct {
	io.Reader
	closers []io.Closer
}

func (s *stackedReadCloser) Close() error {
	var errs []error
	for _, c := range s.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}
