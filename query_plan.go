package graphview

import (
	"fmt"
	"sort"
	"strings"
)

// ---------------------------------------------------------------------------
// Plan rendering: EXPLAIN-style tree of a TraversalPlan.
// ---------------------------------------------------------------------------

// PlanOperator identifies the kind of a rendered plan node.
type PlanOperator string

const (
	OpNodeScan       PlanOperator = "NodeScan"
	OpExpand         PlanOperator = "Expand"
	OpExpandInto     PlanOperator = "ExpandInto"
	OpCartesian      PlanOperator = "CartesianProduct"
	OpProduceResults PlanOperator = "ProduceResults"
)

// PlanNode is a single operator in the rendered plan tree.
type PlanNode struct {
	Operator PlanOperator
	Details  string
	EstRows  float64
	Children []*PlanNode
}

// Tree converts the step list into an operator tree whose root is the last
// step. Each edge step consumes the operators before it; a new scan after
// the first becomes a cartesian product with what precedes it.
func (tp *TraversalPlan) Tree() *PlanNode {
	var top *PlanNode
	seen := make(map[string]bool, len(tp.Steps))
	for _, st := range tp.Steps {
		var n *PlanNode
		switch {
		case st.Edge == nil:
			n = &PlanNode{Operator: OpNodeScan, Details: st.Node.ID, EstRows: st.EstRows}
			if top != nil {
				n = &PlanNode{Operator: OpCartesian, EstRows: st.EstRows, Children: []*PlanNode{top, n}}
			}
		case seen[st.Node.ID]:
			n = &PlanNode{
				Operator: OpExpandInto,
				Details:  fmt.Sprintf("(%s)-[%s]->(%s)", st.Edge.Source, st.Edge.ID, st.Edge.Sink),
				EstRows:  st.EstRows,
			}
		default:
			n = &PlanNode{
				Operator: OpExpand,
				Details:  fmt.Sprintf("(%s)-[%s]->(%s)", st.Edge.Source, st.Edge.ID, st.Edge.Sink),
				EstRows:  st.EstRows,
			}
		}
		if n.Operator != OpNodeScan && n.Operator != OpCartesian && top != nil {
			n.Children = []*PlanNode{top}
		}
		seen[st.Node.ID] = true
		top = n
	}
	return &PlanNode{Operator: OpProduceResults, Details: tp.materializedDetails(), Children: childOf(top)}
}

func childOf(n *PlanNode) []*PlanNode {
	if n == nil {
		return nil
	}
	return []*PlanNode{n}
}

// materializedDetails renders Materialized as "a:[e1,e2] b:[e3]" sorted by
// node id.
func (tp *TraversalPlan) materializedDetails() string {
	nodes := make([]string, 0, len(tp.Materialized))
	for id := range tp.Materialized {
		nodes = append(nodes, id)
	}
	sort.Strings(nodes)

	parts := make([]string, 0, len(nodes))
	for _, id := range nodes {
		ids := make([]string, 0, len(tp.Materialized[id]))
		for _, e := range tp.Materialized[id] {
			ids = append(ids, e.ID)
		}
		parts = append(parts, id+":["+strings.Join(ids, ",")+"]")
	}
	return strings.Join(parts, " ")
}

// String returns a human-readable multi-line representation of the plan.
func (tp *TraversalPlan) String() string {
	var sb strings.Builder
	mode := "exhaustive"
	if !tp.Exhaustive {
		mode = "greedy"
	}
	fmt.Fprintf(&sb, "PLAN (%s, cost=%g):\n", mode, tp.Cost)
	tp.Tree().format(&sb, "", true)
	return sb.String()
}

func (n *PlanNode) format(sb *strings.Builder, prefix string, isLast bool) {
	connector := "├── "
	if isLast {
		connector = "└── "
	}
	if prefix == "" {
		connector = ""
	}

	sb.WriteString(prefix)
	sb.WriteString(connector)
	sb.WriteString(string(n.Operator))
	if n.Details != "" {
		sb.WriteString(" (")
		sb.WriteString(n.Details)
		sb.WriteString(")")
	}
	if n.EstRows > 0 {
		sb.WriteString(fmt.Sprintf(" [est. rows=%g]", n.EstRows))
	}
	sb.WriteString("\n")

	childPrefix := prefix
	if prefix != "" {
		if isLast {
			childPrefix += "    "
		} else {
			childPrefix += "│   "
		}
	} else {
		childPrefix = " "
	}

	for i, child := range n.Children {
		child.format(sb, childPrefix, i == len(n.Children)-1)
	}
}
