package graphview

import (
	"context"

	"github.com/emirpasic/gods/sets/linkedhashset"
	"github.com/tidwall/gjson"
)

// ApplyParams locates the columns a cross-apply works on. All positions
// refer to the engine's header.
type ApplyParams struct {
	// Adjacency is the column holding the encoded adjacency list. The sink
	// id of each expanded edge is written to Adjacency+1.
	Adjacency int
	// Destination is the id column of the node joined against edge sinks,
	// or NoDestination. When the record is also extended it is the offset
	// at which the new meta segment is inserted.
	Destination int
	// Source is the id column of the path's start node (path variant only).
	Source int
	// MetaLength is the width of the meta segment to insert, or NoExtension.
	MetaLength int
}

// joinActive reports whether the edge.sink = destination.id predicate
// applies. It only does when the record is not being extended.
func (p ApplyParams) joinActive() bool {
	return p.Destination != NoDestination && p.MetaLength == NoExtension
}

// Expansion accumulates the output of one or more cross-apply calls: every
// sink id seen, in first-seen order, and every produced record.
type Expansion struct {
	sinks   *linkedhashset.Set
	Records []Record
}

// NewExpansion returns an empty accumulator.
func NewExpansion() *Expansion {
	return &Expansion{sinks: linkedhashset.New()}
}

func (x *Expansion) addSink(id string) { x.sinks.Add(id) }

// Sinks returns the distinct sink ids seen so far.
func (x *Expansion) Sinks() []string {
	vals := x.sinks.Values()
	out := make([]string, len(vals))
	for i, v := range vals {
		out[i] = v.(string)
	}
	return out
}

// HasSink reports whether id was seen as a sink.
func (x *Expansion) HasSink(id string) bool { return x.sinks.Contains(id) }

// Empty reports that no edge matched: no sink was seen.
func (x *Expansion) Empty() bool { return x.sinks.Empty() }

// crossApplyEdge expands rec against the adjacency list at p.Adjacency.
func (e *Engine) crossApplyEdge(rec Record, p ApplyParams, out *Expansion) (int, error) {
	raw, err := rec.field(p.Adjacency)
	if err != nil {
		return 0, err
	}
	edges, err := e.cache.parse(raw)
	if err != nil {
		return 0, err
	}

	var dest string
	join := p.joinActive()
	if join {
		if dest, err = rec.field(p.Destination); err != nil {
			return 0, err
		}
	}

	emitted := 0
	for _, tok := range edges {
		if join && tok.Sink() != dest {
			continue
		}
		out.addSink(tok.Sink())

		res, err := ExtendRecord(rec, e.header.Len(), p.Destination, p.MetaLength)
		if err != nil {
			return emitted, err
		}
		if err := res.set(p.Adjacency+1, tok.Sink()); err != nil {
			return emitted, err
		}
		if err := e.copyEdgeProperties(res, tok); err != nil {
			return emitted, err
		}
		out.Records = append(out.Records, res)
		emitted++
	}
	return emitted, nil
}

// copyEdgeProperties writes every non-reserved token property that names a
// header column into that column.
func (e *Engine) copyEdgeProperties(res Record, tok EdgeToken) error {
	var err error
	tok.Properties(func(name string, v gjson.Result) bool {
		pos := e.header.IndexOf(name)
		if pos < 0 {
			return true
		}
		err = res.set(pos, v.String())
		return err == nil
	})
	return err
}

// crossApplyPath expands rec with every path the step operator discovers
// from the node at p.Source.
func (e *Engine) crossApplyPath(ctx context.Context, rec Record, step StepOperator, p ApplyParams, out *Expansion) (int, int, error) {
	src, err := rec.field(p.Source)
	if err != nil {
		return 0, 0, err
	}
	adj, err := rec.field(p.Adjacency)
	if err != nil {
		return 0, 0, err
	}

	// Seed: three placeholders, then the start node's id, adjacency and the
	// path accumulated so far.
	seed := Record{"", "", "", src, adj, rec.Last()}
	ps := &pathSearch{step: step, governor: e.governor}
	paths, err := ps.run(ctx, seed)
	if err != nil {
		return 0, 0, err
	}

	emitted := 0
	for _, path := range paths {
		edges, err := e.cache.parse(path.SinkReferences)
		if err != nil {
			return len(paths), emitted, err
		}
		for _, tok := range edges {
			out.addSink(tok.Sink())

			res, err := ExtendRecord(rec, e.header.Len(), p.Destination, p.MetaLength)
			if err != nil {
				return len(paths), emitted, err
			}
			if err := res.set(p.Adjacency, path.SinkReferences); err != nil {
				return len(paths), emitted, err
			}
			if err := res.set(p.Adjacency+1, tok.Sink()); err != nil {
				return len(paths), emitted, err
			}
			res[len(res)-1] = path.Record.Last()
			out.Records = append(out.Records, res)
			emitted++
		}
	}
	return len(paths), emitted, nil
}
