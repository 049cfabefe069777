package physical

import (
	"strconv"
	"strings"

	"github.com/blazingsql/engine/pkg/engine/internal/planner/tree"
)

// BuildTree converts the plan below n into a printable tree.
func BuildTree(p *Plan, n Node) *tree.Node {
	root := toTreeNode(n)
	for _, child := range p.Children(n) {
		root.Children = append(root.Children, BuildTree(p, child))
	}
	return root
}

func toTreeNode(n Node) *tree.Node {
	id := strconv.Itoa(n.ID())
	name := n.Type().String()

	switch n := n.(type) {
	case *Scan:
		props := []tree.Property{tree.NewProperty("table", false, n.Table)}
		if n.Bindable {
			props = append(props, tree.NewProperty("columns", true, toAny(n.Columns)...))
		}
		if len(n.Filters) > 0 {
			props = append(props, tree.NewProperty("filters", true, toAny(n.Filters)...))
		}
		return tree.NewNode(name, id, props...)
	case *Filter:
		return tree.NewNode(name, id, tree.NewProperty("condition", false, n.Condition))
	case *Project:
		exprs := make([]any, len(n.Names))
		for i := range n.Names {
			exprs[i] = n.Names[i] + "=" + n.Expressions[i].String()
		}
		return tree.NewNode(name, id, tree.NewProperty("expressions", true, exprs...))
	case *Join:
		return tree.NewNode(name, id,
			tree.NewProperty("type", false, n.JoinType),
			tree.NewProperty("condition", false, n.Condition),
		)
	case *Aggregate:
		calls := make([]any, len(n.Calls))
		for i, c := range n.Calls {
			calls[i] = formatAggregateCall(c)
		}
		return tree.NewNode(name, id,
			tree.NewProperty("group", true, toAny(n.GroupBy)...),
			tree.NewProperty("aggregates", true, calls...),
		)
	case *Sort:
		keys := make([]any, len(n.Keys))
		for i, k := range n.Keys {
			dir := "ASC"
			if !k.Ascending {
				dir = "DESC"
			}
			keys[i] = "$" + strconv.Itoa(k.Column) + " " + dir
		}
		props := []tree.Property{tree.NewProperty("keys", true, keys...)}
		return tree.NewNode(name, id, append(props, offsetFetchProperties(n.Offset, n.Fetch)...)...)
	case *Limit:
		return tree.NewNode(name, id, offsetFetchProperties(n.Offset, n.Fetch)...)
	case *Union:
		return tree.NewNode(name, id, tree.NewProperty("all", false, n.All))
	}
	return tree.NewNode(name, id)
}

func offsetFetchProperties(offset, fetch int64) []tree.Property {
	var props []tree.Property
	if offset > 0 {
		props = append(props, tree.NewProperty("offset", false, offset))
	}
	if fetch >= 0 {
		props = append(props, tree.NewProperty("fetch", false, fetch))
	}
	return props
}

func formatAggregateCall(c AggregateCall) string {
	args := make([]string, len(c.Args))
	for i, a := range c.Args {
		args[i] = "$" + strconv.Itoa(a)
	}
	prefix := ""
	if c.Distinct {
		prefix = "DISTINCT "
	}
	return c.Name + "=" + c.Func + "(" + prefix + strings.Join(args, ", ") + ")"
}

func toAny[T any](values []T) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

// PrintAsTree renders every root of the plan as a tree, one after another.
func PrintAsTree(p *Plan) string {
	var sb strings.Builder
	printer := tree.NewPrinter(&sb)
	for _, root := range p.Roots() {
		printer.Print(BuildTree(p, root))
	}
	return sb.String()
}
