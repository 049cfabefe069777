// Package querycontext holds the per-query execution context shared by the
// execution graph, its kernels and its caches.
package querycontext

import (
	"context"
	"maps"
	"slices"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/go-kit/log"
	"github.com/oklog/ulid/v2"
	"go.uber.org/atomic"
)

// Well-known configuration options.
const (
	// OptionTransformOperatorsBiggerThanGPU overrides whether blocking
	// operators stream their inputs instead of concatenating them eagerly.
	OptionTransformOperatorsBiggerThanGPU = "TRANSFORM_OPERATORS_BIGGER_THAN_GPU"
	// OptionConcatenatingCacheNumBytes is the size threshold of a
	// concatenating cache pull, for example "64MB".
	OptionConcatenatingCacheNumBytes = "CONCATENATING_CACHE_NUM_BYTES"
	// OptionCacheMaxFragments is the number of fragments a cache holds before
	// producers block.
	OptionCacheMaxFragments = "CACHE_MAX_FRAGMENTS"
	// OptionMaxConcurrentScans limits the number of scans reading at once.
	OptionMaxConcurrentScans = "MAX_CONCURRENT_SCANS"
)

// Node is a member of the distributed execution.
type Node struct {
	ID   string
	Addr string
}

// Membership lists the nodes taking part in a query and the position of the
// local node among them.
type Membership struct {
	Nodes []Node
	Self  int
}

// Local returns the local node, or false if the membership is empty.
func (m Membership) Local() (Node, bool) {
	if m.Self < 0 || m.Self >= len(m.Nodes) {
		return Node{}, false
	}
	return m.Nodes[m.Self], true
}

// Context describes a single query. The token, configuration options and
// membership never change once created; the step counters are owned by
// each clone.
type Context struct {
	token      string
	options    map[string]string
	membership Membership

	step    atomic.Int64
	substep atomic.Int64
}

// New creates a Context. A new unique token is generated when token is
// empty. options and membership are copied.
func New(token string, options map[string]string, membership Membership) *Context {
	if token == "" {
		token = ulid.Make().String()
	}
	return &Context{
		token:   token,
		options: maps.Clone(options),
		membership: Membership{
			Nodes: slices.Clone(membership.Nodes),
			Self:  membership.Self,
		},
	}
}

// Clone returns an independent copy of c. The copy shares the token,
// options and membership, and starts its counters at the current values of
// c's counters. Advancing the counters of either context does not affect
// the other.
func (c *Context) Clone() *Context {
	clone := &Context{
		token:      c.token,
		options:    c.options,
		membership: c.membership,
	}
	clone.step.Store(c.step.Load())
	clone.substep.Store(c.substep.Load())
	return clone
}

// Token returns the opaque unique identifier of the query.
func (c *Context) Token() string { return c.token }

// Step returns the current step counter.
func (c *Context) Step() int64 { return c.step.Load() }

// Substep returns the current substep counter.
func (c *Context) Substep() int64 { return c.substep.Load() }

// IncrementStep advances the step counter and resets the substep counter.
func (c *Context) IncrementStep() int64 {
	c.substep.Store(0)
	return c.step.Inc()
}

// IncrementSubstep advances the substep counter.
func (c *Context) IncrementSubstep() int64 { return c.substep.Inc() }

// ConfigOptions returns a copy of the configuration options.
func (c *Context) ConfigOptions() map[string]string { return maps.Clone(c.options) }

// Option returns the value of a configuration option.
func (c *Context) Option(key string) (string, bool) {
	v, ok := c.options[key]
	return v, ok
}

// OptionBool returns the boolean value of an option, or def if it is unset
// or not a boolean.
func (c *Context) OptionBool(key string, def bool) bool {
	v, ok := c.options[key]
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

// OptionInt returns the integer value of an option, or def if it is unset or
// not an integer.
func (c *Context) OptionInt(key string, def int64) int64 {
	v, ok := c.options[key]
	if !ok {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}

// OptionBytes returns the byte size of an option such as "64MB" or
// "1048576", or def if it is unset or invalid.
func (c *Context) OptionBytes(key string, def uint64) uint64 {
	v, ok := c.options[key]
	if !ok {
		return def
	}
	n, err := humanize.ParseBytes(v)
	if err != nil {
		return def
	}
	return n
}

// Membership returns the nodes taking part in the query.
func (c *Context) Membership() Membership {
	return Membership{Nodes: slices.Clone(c.membership.Nodes), Self: c.membership.Self}
}

// Logger decorates base with the query id and the current step and substep
// of c. Step values are read at the time each record is logged.
func (c *Context) Logger(base log.Logger) log.Logger {
	return log.With(base,
		"query_id", c.token,
		"step", log.Valuer(func() any { return c.Step() }),
		"substep", log.Valuer(func() any { return c.Substep() }),
	)
}

type contextKey struct{}

// Inject returns a copy of ctx carrying qc.
func Inject(ctx context.Context, qc *Context) context.Context {
	return context.WithValue(ctx, contextKey{}, qc)
}

// FromContext returns the query context carried by ctx, if any.
func FromContext(ctx context.Context) (*Context, bool) {
	qc, ok := ctx.Value(contextKey{}).(*Context)
	return qc, ok
}
