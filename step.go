package graphview

import (
	"context"
	"strings"

	"github.com/tidwall/gjson"
)

// Step-operator record formats. The constant source handed to a step is
//
//	| node id | node adjacency | "" | "" | path |
//
// and every record it yields is
//
//	| node id | node adjacency | sink | next node id | next adjacency | path |
//
// so the last three columns of an output always describe the newest
// endpoint, which is what path search feeds back in.
const (
	stepSourceWidth = 5
	stepOutputWidth = 6
)

// AdjacencyStep is a one-hop traversal operator over decoded entities. For
// every edge token in the source node's adjacency it yields the sink node
// together with the sink's adjacency for the same edge name, extending the
// path column with the traversed token.
type AdjacencyStep struct {
	Index *EntityIndex
	// Edge names the adjacency list followed at every hop.
	Edge string
	// MaxHops stops expansion once a path holds this many edges. Zero means
	// unbounded; callers must then guarantee the graph has no reachable cycle.
	MaxHops int
	// Filter, when set, drops tokens it returns false for.
	Filter func(EdgeToken) bool
}

// Open implements StepOperator.
func (s *AdjacencyStep) Open(ctx context.Context, source Record) (RecordIterator, error) {
	if len(source) != stepSourceWidth {
		return nil, widthError(stepSourceWidth, len(source), "step source width")
	}
	if s.MaxHops > 0 {
		hops, err := PathLength(source[4])
		if err != nil {
			return nil, err
		}
		if hops >= s.MaxHops {
			return NewSliceIterator(nil), nil
		}
	}
	tokens, err := ParseAdjacency(source[1])
	if err != nil {
		return nil, err
	}
	return &adjacencyStepIterator{ctx: ctx, step: s, source: source, tokens: tokens, idx: -1}, nil
}

type adjacencyStepIterator struct {
	ctx    context.Context
	step   *AdjacencyStep
	source Record
	tokens AdjacencyList
	idx    int
	cur    Record
	err    error
}

func (it *adjacencyStepIterator) Next() bool {
	if it.err != nil {
		return false
	}
	for {
		it.idx++
		if it.idx >= len(it.tokens) {
			return false
		}
		if err := it.ctx.Err(); err != nil {
			it.err = err
			return false
		}
		tok := it.tokens[it.idx]
		if it.step.Filter != nil && !it.step.Filter(tok) {
			continue
		}

		next, ok := it.step.Index.Adjacency(tok.Sink(), it.step.Edge)
		if !ok {
			next = EmptyAdjacency
		}
		path, err := AppendPath(it.source[4], tok)
		if err != nil {
			it.err = err
			return false
		}
		it.cur = Record{it.source[0], it.source[1], tok.Sink(), tok.Sink(), next, path}
		return true
	}
}

func (it *adjacencyStepIterator) Record() Record { return it.cur }
func (it *adjacencyStepIterator) Err() error     { return it.err }
func (it *adjacencyStepIterator) Close()         {}

// AppendPath extends a path column (a JSON array of traversed edge tokens)
// with one more token. An empty path column is an empty path.
func AppendPath(path string, tok EdgeToken) (string, error) {
	t := strings.TrimSpace(path)
	if IsEmptyAdjacency(t) {
		return "[" + tok.Raw() + "]", nil
	}
	if !gjson.Valid(t) || !gjson.Parse(t).IsArray() {
		return "", malformed("path", path, errNotArray)
	}
	return t[:len(t)-1] + "," + tok.Raw() + "]", nil
}

// PathLength returns the number of edges recorded in a path column.
func PathLength(path string) (int, error) {
	t := strings.TrimSpace(path)
	if IsEmptyAdjacency(t) {
		return 0, nil
	}
	if !gjson.Valid(t) {
		return 0, malformed("path", path, nil)
	}
	arr := gjson.Parse(t)
	if !arr.IsArray() {
		return 0, malformed("path", path, errNotArray)
	}
	return len(arr.Array()), nil
}
