package physical

import (
	"fmt"
	"iter"
	"strconv"
	"strings"

	"github.com/blazingsql/engine/pkg/engine/internal/util/dag"
)

// Plan is a parsed physical plan. Edges point from a consumer to the
// producers feeding it, in input order.
type Plan struct {
	graph dag.Graph[Node]
}

// Len returns the number of steps in the plan.
func (p *Plan) Len() int { return p.graph.Len() }

// Nodes iterates over all steps in plan text order.
func (p *Plan) Nodes() iter.Seq[Node] { return p.graph.Nodes() }

// Roots returns all steps without a consumer.
func (p *Plan) Roots() []Node { return p.graph.Roots() }

// Root returns the single root of the plan.
func (p *Plan) Root() (Node, error) { return p.graph.Root() }

// Children returns the inputs of n in order.
func (p *Plan) Children(n Node) []Node { return p.graph.Children(n) }

// Parents returns the consumers of n.
func (p *Plan) Parents(n Node) []Node { return p.graph.Parents(n) }

// Leaves returns all steps without inputs.
func (p *Plan) Leaves() []Node { return p.graph.Leaves() }

// Walk walks the plan below n in the given order.
func (p *Plan) Walk(n Node, f dag.WalkFunc[Node], order dag.WalkOrder) error {
	return p.graph.Walk(n, f, order)
}

// Eliminate removes n and connects its consumers to its inputs.
func (p *Plan) Eliminate(n Node) { p.graph.Eliminate(n) }

// ParsePlan parses the textual plan emitted by the optimizer. Each line holds
// one step; a step's inputs are the lines that follow it with a deeper
// indentation. Blank lines are ignored.
func ParsePlan(text string) (*Plan, error) {
	type frame struct {
		indent int
		node   Node
	}

	var (
		plan  = &Plan{}
		stack []frame
		id    int
	)

	for _, line := range splitLines(text) {
		if strings.TrimSpace(line) == "" {
			continue
		}
		indent := len(line) - len(strings.TrimLeft(line, " \t"))

		n, err := parseNode(id, line)
		if err != nil {
			return nil, err
		}
		id++
		plan.graph.Add(n)

		for len(stack) > 0 && stack[len(stack)-1].indent >= indent {
			stack = stack[:len(stack)-1]
		}
		if len(stack) > 0 {
			parent := stack[len(stack)-1].node
			if err := plan.graph.AddEdge(dag.Edge[Node]{Parent: parent, Child: n}); err != nil {
				return nil, fmt.Errorf("%w: %w", ErrParse, err)
			}
		}
		stack = append(stack, frame{indent: indent, node: n})
	}

	return plan, nil
}

// splitLines splits text into lines, dropping a trailing empty line.
func splitLines(text string) []string {
	lines := strings.Split(text, "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

func parseNode(id int, line string) (Node, error) {
	step, err := parseStep(line)
	if err != nil {
		return nil, err
	}
	base := node{id: id, step: step.text}

	switch normalizeOperator(step.operator) {
	case "TableScan", "Scan":
		return parseScan(base, step)
	case "Filter":
		return parseFilter(base, step)
	case "Project":
		return parseProject(base, step)
	case "Join":
		return parseJoin(base, step)
	case "Aggregate":
		return parseAggregate(base, step)
	case "Sort":
		return parseSort(base, step)
	case "Limit":
		offset, fetch, err := parseOffsetFetch(step)
		if err != nil {
			return nil, err
		}
		return &Limit{node: base, Offset: offset, Fetch: fetch}, nil
	case "Union":
		all, _ := step.get("all")
		return &Union{node: base, All: all == "true"}, nil
	default:
		return nil, fmt.Errorf("%w: unsupported operator %s", ErrParse, step.operator)
	}
}

// normalizeOperator strips the convention prefix of an operator name.
func normalizeOperator(op string) string {
	for _, prefix := range []string{"Logical", "Enumerable", "Bindable"} {
		if rest, ok := strings.CutPrefix(op, prefix); ok {
			return rest
		}
	}
	return op
}

func isScanOperator(op string) bool { return strings.HasSuffix(op, "Scan") }

func isBindableScan(step *parsedStep) bool {
	if strings.HasPrefix(step.operator, "Bindable") {
		return true
	}
	_, ok := step.get("projects")
	return ok
}

func parseScan(base node, step *parsedStep) (*Scan, error) {
	table, err := tableName(step)
	if err != nil {
		return nil, err
	}
	scan := &Scan{node: base, Table: table, Bindable: isBindableScan(step)}
	if !scan.Bindable {
		return scan, nil
	}

	if scan.Columns, err = projectedColumns(step); err != nil {
		return nil, err
	}
	if filters, ok := step.get("filters"); ok {
		for _, text := range expressionList(filters) {
			expr, err := ParseExpression(text)
			if err != nil {
				return nil, err
			}
			scan.Filters = append(scan.Filters, expr)
		}
	}
	if aliases, ok := step.get("aliases"); ok {
		scan.Aliases = expressionList(aliases)
	}
	return scan, nil
}

// tableName returns the table referenced by a scan step, with the default
// `main` schema removed.
func tableName(step *parsedStep) (string, error) {
	ref, ok := step.get("table")
	if !ok {
		return "", fmt.Errorf("%w: scan %q has no table", ErrParse, step.text)
	}
	name := strings.Join(expressionList(ref), ".")
	if name == "" {
		return "", fmt.Errorf("%w: scan %q has an empty table name", ErrParse, step.text)
	}
	return strings.TrimPrefix(name, "main."), nil
}

// projectedColumns returns the column indices of the `projects` argument. A
// missing argument yields an empty list.
func projectedColumns(step *parsedStep) ([]int, error) {
	columns := []int{}
	projects, ok := step.get("projects")
	if !ok {
		return columns, nil
	}
	for _, entry := range expressionList(projects) {
		idx, err := strconv.Atoi(entry)
		if err != nil {
			return nil, fmt.Errorf("%w: scan %q: invalid projected column %q", ErrParse, step.text, entry)
		}
		columns = append(columns, idx)
	}
	return columns, nil
}

func parseFilter(base node, step *parsedStep) (*Filter, error) {
	cond, err := requiredExpression(step, "condition")
	if err != nil {
		return nil, err
	}
	return &Filter{node: base, Condition: cond}, nil
}

func parseProject(base node, step *parsedStep) (*Project, error) {
	project := &Project{node: base}
	for _, arg := range step.args {
		expr, err := ParseExpression(arg.value)
		if err != nil {
			return nil, err
		}
		project.Names = append(project.Names, arg.key)
		project.Expressions = append(project.Expressions, expr)
	}
	return project, nil
}

func parseJoin(base node, step *parsedStep) (*Join, error) {
	cond, err := requiredExpression(step, "condition")
	if err != nil {
		return nil, err
	}
	join := &Join{node: base, Condition: cond}

	joinType, _ := step.get("joinType")
	switch strings.ToLower(joinType) {
	case "", "inner":
		join.JoinType = JoinTypeInner
	case "left":
		join.JoinType = JoinTypeLeft
	default:
		return nil, fmt.Errorf("%w: unsupported join type %q", ErrParse, joinType)
	}
	return join, nil
}

func parseAggregate(base node, step *parsedStep) (*Aggregate, error) {
	agg := &Aggregate{node: base}
	for _, arg := range step.args {
		switch arg.key {
		case "group":
			for _, entry := range expressionList(arg.value) {
				idx, err := strconv.Atoi(entry)
				if err != nil {
					return nil, fmt.Errorf("%w: invalid group column %q", ErrParse, entry)
				}
				agg.GroupBy = append(agg.GroupBy, idx)
			}
		case "groups":
			if sets := expressionList(arg.value); len(sets) > 1 {
				return nil, fmt.Errorf("%w: grouping sets are not supported", ErrParse)
			}
		default:
			call, err := parseAggregateCall(arg.key, arg.value)
			if err != nil {
				return nil, err
			}
			agg.Calls = append(agg.Calls, call)
		}
	}
	return agg, nil
}

// parseAggregateCall parses calls such as `COUNT()`, `SUM($1)` or
// `COUNT(DISTINCT $0)`.
func parseAggregateCall(name, text string) (AggregateCall, error) {
	call := AggregateCall{Name: name}

	open := strings.IndexByte(text, '(')
	if open <= 0 {
		return call, fmt.Errorf("%w: invalid aggregate call %q", ErrParse, text)
	}
	end := matchingClose(text, open)
	if end < 0 {
		return call, fmt.Errorf("%w: invalid aggregate call %q", ErrParse, text)
	}
	call.Func = strings.ToUpper(strings.TrimSpace(text[:open]))

	args := strings.TrimSpace(text[open+1 : end])
	if rest, ok := strings.CutPrefix(args, "DISTINCT "); ok {
		call.Distinct = true
		args = rest
	}
	for _, entry := range expressionList(args) {
		expr, err := ParseExpression(entry)
		if err != nil {
			return call, err
		}
		ref, ok := expr.(*ColumnRef)
		if !ok {
			return call, fmt.Errorf("%w: aggregate %s expects column arguments, got %s", ErrParse, call.Func, expr)
		}
		call.Args = append(call.Args, ref.Index)
	}
	return call, nil
}

func parseSort(base node, step *parsedStep) (Node, error) {
	offset, fetch, err := parseOffsetFetch(step)
	if err != nil {
		return nil, err
	}

	var keys []SortKey
	for i := 0; ; i++ {
		text, ok := step.get("sort" + strconv.Itoa(i))
		if !ok {
			break
		}
		expr, err := ParseExpression(text)
		if err != nil {
			return nil, err
		}
		ref, ok := expr.(*ColumnRef)
		if !ok {
			return nil, fmt.Errorf("%w: sort key %s is not a column", ErrParse, expr)
		}

		key := SortKey{Column: ref.Index, Ascending: true}
		dir, _ := step.get("dir" + strconv.Itoa(i))
		switch strings.ToUpper(dir) {
		case "", "ASC", "ASC-NULLS-LAST":
		case "ASC-NULLS-FIRST":
			key.NullsFirst = true
		case "DESC", "DESC-NULLS-FIRST":
			key.Ascending, key.NullsFirst = false, true
		case "DESC-NULLS-LAST":
			key.Ascending = false
		default:
			return nil, fmt.Errorf("%w: invalid sort direction %q", ErrParse, dir)
		}
		keys = append(keys, key)
	}

	// A sort without keys only trims its input.
	if len(keys) == 0 {
		return &Limit{node: base, Offset: offset, Fetch: fetch}, nil
	}
	return &Sort{node: base, Keys: keys, Offset: offset, Fetch: fetch}, nil
}

func parseOffsetFetch(step *parsedStep) (offset, fetch int64, err error) {
	fetch = -1
	if text, ok := step.get("offset"); ok {
		if offset, err = strconv.ParseInt(text, 10, 64); err != nil || offset < 0 {
			return 0, 0, fmt.Errorf("%w: invalid offset %q", ErrParse, text)
		}
	}
	if text, ok := step.get("fetch"); ok {
		if fetch, err = strconv.ParseInt(text, 10, 64); err != nil || fetch < 0 {
			return 0, 0, fmt.Errorf("%w: invalid fetch %q", ErrParse, text)
		}
	}
	return offset, fetch, nil
}

func requiredExpression(step *parsedStep, key string) (Expression, error) {
	text, ok := step.get(key)
	if !ok {
		return nil, fmt.Errorf("%w: step %q has no %s", ErrParse, step.text, key)
	}
	return ParseExpression(text)
}
