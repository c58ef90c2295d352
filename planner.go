package graphview

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
)

// ---------------------------------------------------------------------------
// Traversal-order planner.
//
// A connected component of the pattern graph is turned into an ordered list
// of steps (the join order) and the set of edges each node must keep
// materialized in its meta segment. Edges are traversed from their source
// node, whose adjacency list carries them, so an edge can only be expanded
// once its source has been visited.
// ---------------------------------------------------------------------------

var (
	// ErrPlanSearchSpaceExceeded is returned by a planner configured with
	// FallbackReject when the component has more plan states than MaxStates.
	ErrPlanSearchSpaceExceeded = errors.New("graphview: plan search space exceeds MaxStates")

	// ErrInvalidComponent is returned for malformed pattern components.
	ErrInvalidComponent = errors.New("graphview: invalid connected component")

	// ErrInvalidPlan is returned by ValidatePlan.
	ErrInvalidPlan = errors.New("graphview: invalid traversal plan")
)

// PatternNode is one node of the pattern graph.
type PatternNode struct {
	ID string `yaml:"id" json:"id"`
	// Cardinality estimates how many entities match the node.
	Cardinality float64 `yaml:"cardinality" json:"cardinality"`
}

// PatternEdge is one directed edge of the pattern graph. Its adjacency list
// lives on the Source node.
type PatternEdge struct {
	ID     string `yaml:"id" json:"id"`
	Source string `yaml:"source" json:"source"`
	Sink   string `yaml:"sink" json:"sink"`
	// Fanout estimates edges per source entity.
	Fanout float64 `yaml:"fanout" json:"fanout"`
}

// ConnectedComponent is a connected piece of the pattern graph.
type ConnectedComponent struct {
	Nodes []*PatternNode `yaml:"nodes" json:"nodes"`
	Edges []*PatternEdge `yaml:"edges" json:"edges"`
	// Projected lists, per node id, the ids of edges whose adjacency the
	// final projection reads from that node.
	Projected map[string][]string `yaml:"projected" json:"projected"`
}

// Step is one entry of the join order. A step with a nil Edge starts a new
// scan of Node; otherwise Edge is traversed from its source into Node.
type Step struct {
	Node *PatternNode
	Edge *PatternEdge
	// EstRows is the estimated intermediate row count after the step.
	EstRows float64
}

// TraversalPlan is the planner's output for one component.
type TraversalPlan struct {
	Steps []Step
	// Materialized maps a node id to the edges its meta segment must keep.
	Materialized map[string][]*PatternEdge
	// Cost is the sum of estimated intermediate row counts.
	Cost float64
	// Exhaustive is false when the plan came from the greedy fallback.
	Exhaustive bool
}

// Planner computes a traversal order for a connected component.
type Planner interface {
	PlanOrder(cc *ConnectedComponent) (*TraversalPlan, error)
}

// Fallback selects what a planner does once MaxStates is exceeded.
type Fallback int

const (
	// FallbackGreedy switches to a greedy heuristic.
	FallbackGreedy Fallback = iota
	// FallbackReject fails with ErrPlanSearchSpaceExceeded.
	FallbackReject
)

// ParseFallback maps "greedy" and "reject" to a Fallback.
func ParseFallback(s string) (Fallback, error) {
	switch s {
	case "", "greedy":
		return FallbackGreedy, nil
	case "reject":
		return FallbackReject, nil
	}
	return 0, fmt.Errorf("graphview: unknown planner fallback %q", s)
}

func (f Fallback) String() string {
	if f == FallbackReject {
		return "reject"
	}
	return "greedy"
}

// PlannerOptions configures CostPlanner.
type PlannerOptions struct {
	// MaxStates bounds the partial plans the exhaustive search may visit.
	// Default: 1000.
	MaxStates int
	// Fallback applies once MaxStates is exceeded. Default: FallbackGreedy.
	Fallback Fallback
	// Logger receives plan selection logs. Default: slog.Default().
	Logger *slog.Logger
}

// DefaultPlannerOptions returns the default planner configuration.
func DefaultPlannerOptions() PlannerOptions {
	return PlannerOptions{MaxStates: 1000, Fallback: FallbackGreedy}
}

// CostPlanner enumerates join orders exhaustively up to MaxStates and keeps
// the one with the smallest sum of estimated intermediate cardinalities.
// New scans are only started when no edge can be expanded, so cross
// products never precede a join.
type CostPlanner struct {
	opts PlannerOptions
	log  *slog.Logger
}

// NewCostPlanner creates a planner.
func NewCostPlanner(opts PlannerOptions) *CostPlanner {
	if opts.MaxStates <= 0 {
		opts.MaxStates = 1000
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &CostPlanner{opts: opts, log: logger}
}

// errStatesExhausted aborts the exhaustive search internally.
var errStatesExhausted = errors.New("states exhausted")

// planSearch is the working state of one PlanOrder call.
type planSearch struct {
	cc      *ConnectedComponent
	byID    map[string]*PatternNode
	visited map[string]bool
	used    []bool
	steps   []Step

	states    int
	maxStates int

	best     []Step
	bestCost float64
}

// PlanOrder implements Planner.
func (p *CostPlanner) PlanOrder(cc *ConnectedComponent) (*TraversalPlan, error) {
	byID, err := indexComponent(cc)
	if err != nil {
		return nil, err
	}

	s := &planSearch{
		cc:        cc,
		byID:      byID,
		visited:   make(map[string]bool, len(cc.Nodes)),
		used:      make([]bool, len(cc.Edges)),
		maxStates: p.opts.MaxStates,
		bestCost:  math.Inf(1),
	}

	exhaustive := true
	if err := s.exhaustive(1, 0); err != nil {
		if !errors.Is(err, errStatesExhausted) {
			return nil, err
		}
		if p.opts.Fallback == FallbackReject {
			p.log.Info("plan search rejected", "nodes", len(cc.Nodes), "edges", len(cc.Edges), "max_states", p.opts.MaxStates)
			return nil, ErrPlanSearchSpaceExceeded
		}
		exhaustive = false
		s.best, s.bestCost = s.greedy()
	}

	plan := &TraversalPlan{
		Steps:        s.best,
		Materialized: materialize(cc, s.best),
		Cost:         s.bestCost,
		Exhaustive:   exhaustive,
	}
	p.log.Info("traversal plan selected",
		"nodes", len(cc.Nodes),
		"edges", len(cc.Edges),
		"states", s.states,
		"exhaustive", exhaustive,
		"cost", plan.Cost,
	)
	return plan, nil
}

// exhaustive is a depth-first branch-and-bound over partial plans.
func (s *planSearch) exhaustive(rows, cost float64) error {
	s.states++
	if s.states > s.maxStates {
		return errStatesExhausted
	}
	if cost >= s.bestCost {
		return nil
	}
	if len(s.visited) == len(s.cc.Nodes) && s.allEdgesUsed() {
		s.best = append([]Step(nil), s.steps...)
		s.bestCost = cost
		return nil
	}

	expanded := false
	for i, e := range s.cc.Edges {
		if s.used[i] || !s.visited[e.Source] {
			continue
		}
		expanded = true
		next := s.edgeRows(rows, e)
		s.push(Step{Node: s.byID[e.Sink], Edge: e, EstRows: next}, i)
		err := s.exhaustive(next, cost+next)
		s.pop(i)
		if err != nil {
			return err
		}
	}
	if expanded {
		return nil
	}

	for _, n := range s.cc.Nodes {
		if s.visited[n.ID] {
			continue
		}
		next := rows * cardinality(n)
		s.push(Step{Node: n, EstRows: next}, -1)
		err := s.exhaustive(next, cost+next)
		s.pop(-1)
		if err != nil {
			return err
		}
	}
	return nil
}

// greedy builds one plan picking the cheapest next step each time.
func (s *planSearch) greedy() ([]Step, float64) {
	for k := range s.visited {
		delete(s.visited, k)
	}
	for i := range s.used {
		s.used[i] = false
	}
	s.steps = s.steps[:0]

	rows, cost := 1.0, 0.0
	for len(s.visited) < len(s.cc.Nodes) || !s.allEdgesUsed() {
		var (
			pick     Step
			pickEdge = -1
			found    bool
		)
		for i, e := range s.cc.Edges {
			if s.used[i] || !s.visited[e.Source] {
				continue
			}
			next := s.edgeRows(rows, e)
			if !found || next < pick.EstRows {
				pick, pickEdge, found = Step{Node: s.byID[e.Sink], Edge: e, EstRows: next}, i, true
			}
		}
		if !found {
			for _, n := range s.cc.Nodes {
				if s.visited[n.ID] {
					continue
				}
				next := rows * cardinality(n)
				if !found || next < pick.EstRows {
					pick, pickEdge, found = Step{Node: n, EstRows: next}, -1, true
				}
			}
		}
		s.push(pick, pickEdge)
		rows = pick.EstRows
		cost += rows
	}
	return append([]Step(nil), s.steps...), cost
}

// edgeRows estimates rows after traversing e. Expanding into a new node
// multiplies by the fanout; closing a cycle onto a visited node filters by
// the chance that an edge hits that particular entity.
func (s *planSearch) edgeRows(rows float64, e *PatternEdge) float64 {
	fanout := e.Fanout
	if fanout <= 0 {
		fanout = 1
	}
	if !s.visited[e.Sink] {
		return rows * fanout
	}
	sel := fanout / cardinality(s.byID[e.Sink])
	if sel > 1 {
		sel = 1
	}
	return rows * sel
}

func (s *planSearch) push(st Step, edge int) {
	s.steps = append(s.steps, st)
	if edge >= 0 {
		s.used[edge] = true
	}
	s.visited[st.Node.ID] = true
}

// pop undoes the last push.
func (s *planSearch) pop(edge int) {
	st := s.steps[len(s.steps)-1]
	s.steps = s.steps[:len(s.steps)-1]
	if edge >= 0 {
		s.used[edge] = false
	}
	// The node stays visited if an earlier step reached it.
	for _, prev := range s.steps {
		if prev.Node.ID == st.Node.ID {
			return
		}
	}
	delete(s.visited, st.Node.ID)
}

func (s *planSearch) allEdgesUsed() bool {
	for _, u := range s.used {
		if !u {
			return false
		}
	}
	return true
}

func cardinality(n *PatternNode) float64 {
	if n.Cardinality <= 0 {
		return 1
	}
	return n.Cardinality
}

// indexComponent validates cc and indexes its nodes by id.
func indexComponent(cc *ConnectedComponent) (map[string]*PatternNode, error) {
	if cc == nil || len(cc.Nodes) == 0 {
		return nil, fmt.Errorf("%w: no nodes", ErrInvalidComponent)
	}
	byID := make(map[string]*PatternNode, len(cc.Nodes))
	for _, n := range cc.Nodes {
		if n == nil || n.ID == "" {
			return nil, fmt.Errorf("%w: node without id", ErrInvalidComponent)
		}
		if _, dup := byID[n.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate node %q", ErrInvalidComponent, n.ID)
		}
		byID[n.ID] = n
	}
	edgeIDs := make(map[string]bool, len(cc.Edges))
	for _, e := range cc.Edges {
		if e == nil || e.ID == "" {
			return nil, fmt.Errorf("%w: edge without id", ErrInvalidComponent)
		}
		if edgeIDs[e.ID] {
			return nil, fmt.Errorf("%w: duplicate edge %q", ErrInvalidComponent, e.ID)
		}
		edgeIDs[e.ID] = true
		if byID[e.Source] == nil || byID[e.Sink] == nil {
			return nil, fmt.Errorf("%w: edge %q references an unknown node", ErrInvalidComponent, e.ID)
		}
	}
	for node, edges := range cc.Projected {
		if byID[node] == nil {
			return nil, fmt.Errorf("%w: projection references unknown node %q", ErrInvalidComponent, node)
		}
		for _, id := range edges {
			if !edgeIDs[id] {
				return nil, fmt.Errorf("%w: projection references unknown edge %q", ErrInvalidComponent, id)
			}
		}
	}
	return byID, nil
}

// materialize derives the edges every node must keep: the edges expanded
// from it plus those the projection reads. Edge order follows cc.Edges.
func materialize(cc *ConnectedComponent, steps []Step) map[string][]*PatternEdge {
	need := make(map[string]map[string]bool)
	mark := func(node, edge string) {
		if need[node] == nil {
			need[node] = make(map[string]bool)
		}
		need[node][edge] = true
	}
	for _, st := range steps {
		if st.Edge != nil {
			mark(st.Edge.Source, st.Edge.ID)
		}
	}
	for node, edges := range cc.Projected {
		for _, id := range edges {
			mark(node, id)
		}
	}

	out := make(map[string][]*PatternEdge, len(need))
	for _, n := range cc.Nodes {
		set := need[n.ID]
		if len(set) == 0 {
			continue
		}
		for _, e := range cc.Edges {
			if set[e.ID] {
				out[n.ID] = append(out[n.ID], e)
			}
		}
	}
	return out
}

// ValidatePlan checks plan against cc: every edge is traversed exactly once,
// always after its source node was visited and into its sink; every node is
// visited; Materialized holds exactly the edges each node must keep.
func ValidatePlan(cc *ConnectedComponent, plan *TraversalPlan) error {
	if _, err := indexComponent(cc); err != nil {
		return err
	}
	if plan == nil {
		return fmt.Errorf("%w: nil plan", ErrInvalidPlan)
	}

	visited := make(map[string]bool, len(cc.Nodes))
	traversed := make(map[string]int, len(cc.Edges))
	for i, st := range plan.Steps {
		if st.Node == nil {
			return fmt.Errorf("%w: step %d has no node", ErrInvalidPlan, i)
		}
		if st.Edge == nil {
			if visited[st.Node.ID] {
				return fmt.Errorf("%w: step %d rescans visited node %q", ErrInvalidPlan, i, st.Node.ID)
			}
			visited[st.Node.ID] = true
			continue
		}
		if !visited[st.Edge.Source] {
			return fmt.Errorf("%w: step %d traverses %q before visiting its source %q", ErrInvalidPlan, i, st.Edge.ID, st.Edge.Source)
		}
		if st.Node.ID != st.Edge.Sink {
			return fmt.Errorf("%w: step %d reaches %q through edge %q into %q", ErrInvalidPlan, i, st.Node.ID, st.Edge.ID, st.Edge.Sink)
		}
		traversed[st.Edge.ID]++
		visited[st.Node.ID] = true
	}

	for _, n := range cc.Nodes {
		if !visited[n.ID] {
			return fmt.Errorf("%w: node %q never visited", ErrInvalidPlan, n.ID)
		}
	}
	for _, e := range cc.Edges {
		if c := traversed[e.ID]; c != 1 {
			return fmt.Errorf("%w: edge %q traversed %d times", ErrInvalidPlan, e.ID, c)
		}
	}
	if len(traversed) != len(cc.Edges) {
		return fmt.Errorf("%w: plan traverses edges outside the component", ErrInvalidPlan)
	}

	want := materialize(cc, plan.Steps)
	if len(want) != len(plan.Materialized) {
		return fmt.Errorf("%w: materialized %d nodes, need %d", ErrInvalidPlan, len(plan.Materialized), len(want))
	}
	for node, edges := range want {
		got := plan.Materialized[node]
		if len(got) != len(edges) {
			return fmt.Errorf("%w: node %q materializes %d edges, need %d", ErrInvalidPlan, node, len(got), len(edges))
		}
		ids := make(map[string]bool, len(got))
		for _, e := range got {
			ids[e.ID] = true
		}
		for _, e := range edges {
			if !ids[e.ID] {
				return fmt.Errorf("%w: node %q does not materialize edge %q", ErrInvalidPlan, node, e.ID)
			}
		}
	}
	return nil
}
