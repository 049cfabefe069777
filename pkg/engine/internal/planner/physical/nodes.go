package physical

import (
	"fmt"
	"strconv"
)

// NodeType identifies the relational operator of a [Node].
type NodeType uint8

const (
	NodeTypeInvalid NodeType = iota
	NodeTypeTableScan
	NodeTypeBindableScan
	NodeTypeFilter
	NodeTypeProject
	NodeTypeJoin
	NodeTypeAggregate
	NodeTypeSort
	NodeTypeLimit
	NodeTypeUnion
)

var nodeTypeNames = [...]string{
	NodeTypeInvalid:      "Invalid",
	NodeTypeTableScan:    "TableScan",
	NodeTypeBindableScan: "BindableScan",
	NodeTypeFilter:       "Filter",
	NodeTypeProject:      "Project",
	NodeTypeJoin:         "Join",
	NodeTypeAggregate:    "Aggregate",
	NodeTypeSort:         "Sort",
	NodeTypeLimit:        "Limit",
	NodeTypeUnion:        "Union",
}

func (t NodeType) String() string {
	if int(t) < len(nodeTypeNames) {
		return nodeTypeNames[t]
	}
	return "NodeType(" + strconv.Itoa(int(t)) + ")"
}

// Node is a single step of a physical plan.
type Node interface {
	// ID returns the position of the step in the plan text, starting at 0.
	ID() int
	// Type returns the operator of the step.
	Type() NodeType
	// Step returns the plan line the node was parsed from, without
	// indentation.
	Step() string

	isNode()
}

type node struct {
	id   int
	step string
}

func (n *node) ID() int      { return n.id }
func (n *node) Step() string { return n.step }
func (*node) isNode()        {}

// Scan reads a table. It represents both plain and bindable table scans.
type Scan struct {
	node

	// Table is the normalized table name, without the default schema prefix.
	Table string
	// Bindable scans carry their projection and filters.
	Bindable bool
	// Columns holds the projected column indices of a bindable scan. It is
	// empty for plain scans, which read every column.
	Columns []int
	// Filters are predicates over the projected columns.
	Filters []Expression
	// Aliases optionally renames the projected columns.
	Aliases []string
}

func (s *Scan) Type() NodeType {
	if s.Bindable {
		return NodeTypeBindableScan
	}
	return NodeTypeTableScan
}

// Filter keeps the rows for which Condition evaluates to true.
type Filter struct {
	node
	Condition Expression
}

func (*Filter) Type() NodeType { return NodeTypeFilter }

// Project computes one output column per expression.
type Project struct {
	node
	Names       []string
	Expressions []Expression
}

func (*Project) Type() NodeType { return NodeTypeProject }

// JoinType is the kind of a join.
type JoinType uint8

const (
	JoinTypeInner JoinType = iota
	JoinTypeLeft
)

func (t JoinType) String() string {
	switch t {
	case JoinTypeInner:
		return "inner"
	case JoinTypeLeft:
		return "left"
	default:
		return fmt.Sprintf("JoinType(%d)", t)
	}
}

// Join combines its two inputs. The output has the left columns followed by
// the right columns, and Condition references them in that order.
type Join struct {
	node
	Condition Expression
	JoinType  JoinType
}

func (*Join) Type() NodeType { return NodeTypeJoin }

// AggregateCall is one aggregation function of an [Aggregate].
type AggregateCall struct {
	Name     string
	Func     string
	Args     []int
	Distinct bool
}

// Aggregate groups rows by the GroupBy columns and computes Calls per group.
// The output has the group columns followed by one column per call.
type Aggregate struct {
	node
	GroupBy []int
	Calls   []AggregateCall
}

func (*Aggregate) Type() NodeType { return NodeTypeAggregate }

// SortKey orders rows by a column.
type SortKey struct {
	Column     int
	Ascending  bool
	NullsFirst bool
}

// Sort orders its input. Offset and Fetch optionally trim the sorted output;
// a negative Fetch means no limit.
type Sort struct {
	node
	Keys   []SortKey
	Offset int64
	Fetch  int64
}

func (*Sort) Type() NodeType { return NodeTypeSort }

// Limit skips Offset rows and then passes at most Fetch rows. A negative
// Fetch means no limit.
type Limit struct {
	node
	Offset int64
	Fetch  int64
}

func (*Limit) Type() NodeType { return NodeTypeLimit }

// Union concatenates its inputs. Unless All is set, duplicate rows are
// removed.
type Union struct {
	node
	All bool
}

func (*Union) Type() NodeType { return NodeTypeUnion }

var (
	_ Node = (*Scan)(nil)
	_ Node = (*Filter)(nil)
	_ Node = (*Project)(nil)
	_ Node = (*Join)(nil)
	_ Node = (*Aggregate)(nil)
	_ Node = (*Sort)(nil)
	_ Node = (*Limit)(nil)
	_ Node = (*Union)(nil)
)
