// Package cache implements the flow-controlled queues that connect kernels of
// an execution graph.
package cache

import (
	"context"
	"errors"
	"sync"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/blazingsql/engine/pkg/engine/internal/arrowutil"
)

var (
	// EOF is returned by [Machine.Pull] once the cache is closed and drained.
	EOF = errors.New("cache exhausted") //nolint:revive,staticcheck
	// ErrClosed is returned when pushing into a closed cache.
	ErrClosed = errors.New("cache closed")
	// ErrDetached is returned when pushing into a cache whose consumer no
	// longer reads from it.
	ErrDetached = errors.New("cache consumer detached")
)

type fragment struct {
	rec  arrow.Record
	size int64
}

// Machine is an ordered queue of record fragments between one producer
// kernel and one consumer kernel. Fragments are delivered in push order.
// Pushes block while the cache holds Capacity fragments.
type Machine struct {
	settings Settings
	metrics  *Metrics

	mu       sync.Mutex
	cond     *sync.Cond
	queue    []fragment
	bytes    int64
	closed   bool
	detached bool
	err      error
}

// New creates a cache. metrics may be nil.
func New(settings Settings, metrics *Metrics) *Machine {
	if settings.Allocator == nil {
		settings.Allocator = memory.DefaultAllocator
	}
	m := &Machine{settings: settings, metrics: metrics}
	m.cond = sync.NewCond(&m.mu)
	return m
}

// Settings returns the settings the cache was created with.
func (m *Machine) Settings() Settings { return m.settings }

// Len returns the number of queued fragments.
func (m *Machine) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

// Bytes returns the buffer size of the queued fragments.
func (m *Machine) Bytes() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bytes
}

// Push appends rec to the cache. The cache takes its own reference to rec;
// the caller keeps ownership of the reference it passed in.
func (m *Machine) Push(ctx context.Context, rec arrow.Record) error {
	size := arrowutil.Size(rec)

	m.mu.Lock()
	defer m.mu.Unlock()

	blocked := false
	for {
		switch {
		case m.err != nil:
			return m.err
		case m.detached:
			return ErrDetached
		case m.closed:
			return ErrClosed
		}
		if m.settings.Capacity <= 0 || len(m.queue) < m.settings.Capacity {
			break
		}
		if !blocked {
			blocked = true
			m.metrics.observeBlocked(m.settings.Type)
		}
		if err := m.wait(ctx); err != nil {
			return err
		}
	}

	rec.Retain()
	m.queue = append(m.queue, fragment{rec: rec, size: size})
	m.bytes += size
	m.metrics.observePush(m.settings.Type, size)
	m.cond.Broadcast()
	return nil
}

// Pull removes the next fragment from the cache, blocking until one is
// available. Concatenating caches merge queued fragments into one record.
// Pull returns [EOF] once the cache is closed and drained. The caller owns
// the returned record.
func (m *Machine) Pull(ctx context.Context) (arrow.Record, error) {
	m.mu.Lock()
	for {
		if err := m.pullErrLocked(); err != nil {
			m.mu.Unlock()
			return nil, err
		}
		if m.readyLocked() {
			break
		}
		if m.closed {
			m.mu.Unlock()
			return nil, EOF
		}
		if err := m.wait(ctx); err != nil {
			m.mu.Unlock()
			return nil, err
		}
	}

	if m.settings.Type != TypeConcatenating {
		f := m.popLocked()
		m.mu.Unlock()
		m.metrics.observePull(m.settings.Type)
		return f.rec, nil
	}

	records := m.popConcatLocked()
	m.mu.Unlock()
	defer func() {
		for _, rec := range records {
			rec.Release()
		}
	}()

	m.metrics.observePull(m.settings.Type)
	return arrowutil.Concatenate(m.settings.Allocator, records)
}

func (m *Machine) pullErrLocked() error {
	switch {
	case m.err != nil:
		return m.err
	case m.detached:
		return ErrDetached
	}
	return nil
}

// readyLocked reports whether a pull can proceed. A concatenating cache with
// a byte threshold waits for the threshold to be reached, the cache to fill
// up or the producer to finish.
func (m *Machine) readyLocked() bool {
	if len(m.queue) == 0 {
		return false
	}
	if m.settings.Type != TypeConcatenating || m.settings.ConcatBytes <= 0 || m.closed {
		return true
	}
	if m.settings.Capacity > 0 && len(m.queue) >= m.settings.Capacity {
		return true
	}
	return m.bytes >= m.settings.ConcatBytes
}

func (m *Machine) popLocked() fragment {
	f := m.queue[0]
	m.queue[0] = fragment{}
	m.queue = m.queue[1:]
	m.bytes -= f.size
	m.cond.Broadcast()
	return f
}

// popConcatLocked removes the fragments merged by one concatenating pull:
// at least one, then as many as fit within ConcatBytes.
func (m *Machine) popConcatLocked() []arrow.Record {
	var (
		records []arrow.Record
		taken   int64
	)
	for len(m.queue) > 0 {
		next := m.queue[0]
		if len(records) > 0 {
			if !next.rec.Schema().Equal(records[0].Schema()) {
				break
			}
			if m.settings.ConcatBytes > 0 && taken+next.size > m.settings.ConcatBytes {
				break
			}
		}
		f := m.popLocked()
		records = append(records, f.rec)
		taken += f.size
	}
	return records
}

// Close marks the end of the stream. Queued fragments can still be pulled.
func (m *Machine) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.cond.Broadcast()
}

// Abort fails the cache with cause. Blocked and future pushes and pulls
// return cause, and queued fragments are released. Only the first cause is
// kept.
func (m *Machine) Abort(cause error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return
	}
	m.err = cause
	m.releaseLocked()
	m.cond.Broadcast()
}

// Detach tells the producer that the consumer stopped reading. Queued
// fragments are released and further pushes return [ErrDetached].
func (m *Machine) Detach() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.detached = true
	m.releaseLocked()
	m.cond.Broadcast()
}

func (m *Machine) releaseLocked() {
	for _, f := range m.queue {
		f.rec.Release()
	}
	m.queue = nil
	m.bytes = 0
}

// wait blocks until the cache changes or ctx is done. It must be called with
// m.mu held.
func (m *Machine) wait(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.cond.Broadcast()
	})
	defer stop()

	m.cond.Wait()
	return ctx.Err()
}
