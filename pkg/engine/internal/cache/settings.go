package cache

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/blazingsql/engine/pkg/engine/querycontext"
)

// Type selects how a [Machine] hands fragments to its consumer.
type Type uint8

const (
	// TypePlain delivers every fragment as it was pushed.
	TypePlain Type = iota
	// TypeConcatenating merges queued fragments into larger ones on pull.
	TypeConcatenating
)

func (t Type) String() string {
	switch t {
	case TypePlain:
		return "plain"
	case TypeConcatenating:
		return "concatenating"
	default:
		return fmt.Sprintf("Type(%d)", t)
	}
}

// Settings configures a [Machine].
type Settings struct {
	Type Type
	// Context is the query context the cache belongs to.
	Context *querycontext.Context
	// Capacity is the number of queued fragments at which pushes block. Zero
	// means unbounded.
	Capacity int
	// ConcatBytes is the size a concatenating pull waits for before merging.
	// Zero merges whatever is queued.
	ConcatBytes int64
	// Name identifies the cache in diagnostics.
	Name string
	// Allocator is used to merge fragments. Defaults to
	// [memory.DefaultAllocator].
	Allocator memory.Allocator
}
