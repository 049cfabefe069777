package kernel

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/go-kit/log"

	"github.com/blazingsql/engine/pkg/engine/internal/planner/physical"
	"github.com/blazingsql/engine/pkg/engine/querycontext"
	"github.com/blazingsql/engine/pkg/engine/source"
)

// Env carries what a kernel needs besides its plan node.
type Env struct {
	// Context is the kernel's own query context.
	Context *querycontext.Context
	// Loader and Schema describe the table of a scan. They are unset for
	// other kernels.
	Loader source.Loader
	Schema source.Schema

	Logger    log.Logger
	Allocator memory.Allocator
}

// Factory creates the kernel of a plan node.
type Factory interface {
	NewKernel(node physical.Node, env Env) (Kernel, error)
}

// FactoryFunc adapts a function to a [Factory].
type FactoryFunc func(node physical.Node, env Env) (Kernel, error)

// NewKernel implements [Factory].
func (f FactoryFunc) NewKernel(node physical.Node, env Env) (Kernel, error) { return f(node, env) }

// DefaultFactory creates the kernels of this package.
var DefaultFactory Factory = FactoryFunc(newKernel)

func newKernel(node physical.Node, env Env) (Kernel, error) {
	switch node := node.(type) {
	case *physical.Scan:
		if env.Loader == nil {
			return nil, fmt.Errorf("no loader bound to table %s", node.Table)
		}
		return NewScan(node, env), nil
	case *physical.Filter:
		return NewFilter(node, env), nil
	case *physical.Project:
		return NewProject(node, env), nil
	case *physical.Join:
		return NewJoin(node, env), nil
	case *physical.Aggregate:
		return NewAggregate(node, env), nil
	case *physical.Sort:
		return NewSort(node, env), nil
	case *physical.Limit:
		return NewLimit(node, env), nil
	case *physical.Union:
		return NewUnion(node, env), nil
	default:
		return nil, fmt.Errorf("no kernel for %s", node.Type())
	}
}
