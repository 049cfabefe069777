package physical

import "github.com/blazingsql/engine/pkg/engine/internal/util/dag"

// A rule is a transformation that can be applied on a Node.
type rule interface {
	// apply tries to apply the transformation on the node. It returns whether
	// the plan changed.
	apply(Node) bool
}

// removeNoopFilter removes Filter nodes whose condition is the literal true.
type removeNoopFilter struct {
	plan *Plan
}

// apply implements rule.
func (r *removeNoopFilter) apply(n Node) bool {
	filter, ok := n.(*Filter)
	if !ok {
		return false
	}
	lit, ok := filter.Condition.(*Literal)
	if !ok || lit.Value != true {
		return false
	}
	r.plan.Eliminate(filter)
	return true
}

var _ rule = (*removeNoopFilter)(nil)

// mergeLimits folds a Limit into a Limit or Sort directly below it.
type mergeLimits struct {
	plan *Plan
}

// apply implements rule.
func (r *mergeLimits) apply(n Node) bool {
	limit, ok := n.(*Limit)
	if !ok {
		return false
	}
	children := r.plan.Children(limit)
	if len(children) != 1 || len(r.plan.Parents(children[0])) != 1 {
		return false
	}

	switch child := children[0].(type) {
	case *Limit:
		child.Offset, child.Fetch = composeLimits(child.Offset, child.Fetch, limit.Offset, limit.Fetch)
	case *Sort:
		child.Offset, child.Fetch = composeLimits(child.Offset, child.Fetch, limit.Offset, limit.Fetch)
	default:
		return false
	}
	r.plan.Eliminate(limit)
	return true
}

var _ rule = (*mergeLimits)(nil)

// composeLimits returns the offset and fetch equivalent to applying the outer
// limit to the output of the inner one.
func composeLimits(innerOffset, innerFetch, outerOffset, outerFetch int64) (int64, int64) {
	offset := innerOffset + outerOffset
	fetch := outerFetch
	if innerFetch >= 0 {
		remaining := max(innerFetch-outerOffset, 0)
		if fetch < 0 || remaining < fetch {
			fetch = remaining
		}
	}
	return offset, fetch
}

// optimization represents a single optimization pass and can hold multiple
// rules.
type optimization struct {
	plan  *Plan
	name  string
	rules []rule
}

func newOptimization(name string, plan *Plan) *optimization {
	return &optimization{name: name, plan: plan}
}

func (o *optimization) withRules(rules ...rule) *optimization {
	o.rules = append(o.rules, rules...)
	return o
}

func (o *optimization) optimize() {
	iterations, maxIterations := 0, 3
	for iterations < maxIterations {
		iterations++
		if !o.applyRules() {
			break
		}
	}
}

// applyRules applies every rule to every node, producers first. Rules may
// eliminate nodes, so the node list is collected before applying them.
func (o *optimization) applyRules() bool {
	var nodes []Node
	_ = o.plan.graph.WalkAll(func(n Node) error {
		nodes = append(nodes, n)
		return nil
	}, dag.PostOrderWalk)

	anyChanged := false
	for _, n := range nodes {
		for _, r := range o.rules {
			if r.apply(n) {
				anyChanged = true
				break
			}
		}
	}
	return anyChanged
}

// Optimize rewrites the plan in place with rules that never change the result
// of the query.
func Optimize(p *Plan) {
	passes := []*optimization{
		newOptimization("RemoveNoopFilter", p).withRules(&removeNoopFilter{plan: p}),
		newOptimization("MergeLimits", p).withRules(&mergeLimits{plan: p}),
	}
	for _, pass := range passes {
		pass.optimize()
	}
}
