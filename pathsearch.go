package graphview

import (
	"container/list"
	"context"
)

// PathRecord is one discovered path: the record the step operator produced
// for it and the encoded adjacency list of the path's newest endpoint (the
// frontier nodes reachable by one more hop).
type PathRecord struct {
	Record         Record
	SinkReferences string
}

// pathSearch drives a step operator breadth-first until no new endpoints
// appear. It performs no cycle detection: termination relies on the step
// operator eventually yielding nothing for every frontier entry, which the
// pattern compiler guarantees by bounding path length.
type pathSearch struct {
	step     StepOperator
	governor *searchGovernor
}

// run returns every discovered path, the seed entry first.
//
// Errors from the step operator are returned exactly as the operator
// reported them.
func (ps *pathSearch) run(ctx context.Context, seed Record) ([]PathRecord, error) {
	if len(seed) < 3 {
		return nil, widthError(3, len(seed), "path seed is narrower than node id, adjacency and path")
	}
	seed = seed.Clone()
	first := PathRecord{Record: seed, SinkReferences: seed[len(seed)-2]}

	// all accumulates every path ever produced; frontier holds the ones
	// discovered but not yet expanded.
	all := []PathRecord{first}
	frontier := list.New()
	frontier.PushBack(first)

	for frontier.Len() > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		front := frontier.Front()
		frontier.Remove(front)
		start := front.Value.(PathRecord)

		// The last three columns hold the endpoint: id, adjacency, path.
		last := len(start.Record) - 3
		source := Record{start.Record[last], start.Record[last+1], "", "", start.Record[last+2]}

		it, err := ps.step.Open(ctx, source)
		if err != nil {
			return nil, err
		}
		for it.Next() {
			rec := it.Record()
			if rec == nil {
				continue
			}
			if len(rec) < 3 {
				it.Close()
				return nil, widthError(3, len(rec), "step output is narrower than node id, adjacency and path")
			}
			// Operators may reuse their output buffer between calls.
			rec = rec.Clone()
			sinks := rec[len(rec)-2]
			// Only paths that can still be extended are recorded.
			if IsEmptyAdjacency(sinks) {
				continue
			}
			p := PathRecord{Record: rec, SinkReferences: sinks}
			frontier.PushBack(p)
			all = append(all, p)
			if err := ps.governor.checkPathCount(len(all)); err != nil {
				it.Close()
				return nil, err
			}
		}
		err = it.Err()
		it.Close()
		if err != nil {
			return nil, err
		}
	}
	return all, nil
}
