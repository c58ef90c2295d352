package graphview

import (
	"context"

	"github.com/emirpasic/gods/maps/linkedhashmap"
	"github.com/tidwall/gjson"
)

// Entity is the decoder's normalized view of one graph node: the node id,
// its materialized adjacency lists keyed by edge name, and its projection
// fields.
//
// Projection[i] belongs to header column layout.ProjectionStart()+i.
type Entity struct {
	ID         string
	Adjacency  map[string]string
	Projection Record
}

// Materialize places the entity into a header-wide record: the id at the
// node offset, each encoded adjacency list in its edge column (sink columns
// blank), and the projection fields after the meta segment.
func (e Entity) Materialize(h *Header, layout NodeLayout) (Record, error) {
	if err := layout.Validate(h); err != nil {
		return nil, err
	}
	start := layout.ProjectionStart()
	if len(e.Projection) != h.Len()-start {
		return nil, widthError(h.Len()-start, len(e.Projection), "projection width differs from header")
	}

	rec := NewRecord(h.Len())
	rec[layout.Offset] = e.ID
	for _, ec := range layout.EdgeColumns(h) {
		adj, ok := e.Adjacency[ec.Name]
		if !ok {
			adj = EmptyAdjacency
		}
		rec[ec.Column] = adj
	}
	copy(rec[start:], e.Projection)
	return rec, nil
}

// entityBuilder accumulates one id's state during a single decode call.
type entityBuilder struct {
	id         string
	adjacency  map[string]*tokenSet
	projection Record // nil until the first item with this id is seen
}

// decoder turns a batch of raw items into entities. It holds no state
// between calls; every map it builds is owned by the call.
type decoder struct {
	header *Header
	idPath string
}

func (d decoder) decode(ctx context.Context, items []Item, layout NodeLayout) ([]Entity, error) {
	if err := layout.Validate(d.header); err != nil {
		return nil, err
	}

	edges := layout.EdgeColumns(d.header)
	start := layout.ProjectionStart()
	idColumn := FieldAlias(d.header.Column(layout.Offset))

	// id → *entityBuilder, in first-seen order.
	byID := linkedhashmap.New()

	for i, item := range items {
		if i%256 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		id, err := d.entityID(item, idColumn)
		if err != nil {
			return nil, err
		}

		var b *entityBuilder
		if v, found := byID.Get(id); found {
			b = v.(*entityBuilder)
		} else {
			b = &entityBuilder{id: id, adjacency: make(map[string]*tokenSet, len(edges))}
			byID.Put(id, b)
		}

		for _, ec := range edges {
			set, ok := b.adjacency[ec.Name]
			if !ok {
				set = newTokenSet()
				b.adjacency[ec.Name] = set
			}
			v, _ := item.Lookup(FieldAlias(d.header.Column(ec.Column)))
			if err := set.addValue(v); err != nil {
				return nil, err
			}
		}

		// First occurrence wins: later items with the same id only add edges.
		if b.projection == nil {
			b.projection = NewRecord(d.header.Len() - start)
			for pos := start; pos < d.header.Len(); pos++ {
				if v, ok := item.Lookup(FieldAlias(d.header.Column(pos))); ok {
					b.projection[pos-start] = v.String()
				}
			}
		}
	}

	out := make([]Entity, 0, byID.Size())
	it := byID.Iterator()
	for it.Next() {
		b := it.Value().(*entityBuilder)
		ent := Entity{
			ID:         b.id,
			Adjacency:  make(map[string]string, len(b.adjacency)),
			Projection: b.projection,
		}
		for name, set := range b.adjacency {
			ent.Adjacency[name] = set.list().String()
		}
		out = append(out, ent)
	}
	return out, nil
}

// entityID extracts the id from idPath, falling back to the field named
// after the node's id column.
func (d decoder) entityID(item Item, idColumn string) (string, error) {
	// A null id counts as absent.
	if d.idPath != "" {
		if v, ok := item.LookupPath(d.idPath); ok && v.Type != gjson.Null {
			return v.String(), nil
		}
	}
	if v, ok := item.Lookup(idColumn); ok && v.Type != gjson.Null {
		return v.String(), nil
	}
	return "", malformed("item", item.Raw(), errMissingID)
}

// EntityIndex keeps decoded entities addressable by id. Step operators use it
// to look up the adjacency of the node an edge leads to.
type EntityIndex struct {
	byID map[string]Entity
}

// NewEntityIndex indexes entities by id. When ids repeat across batches the
// first entity wins, matching the decoder's projection rule.
func NewEntityIndex(entities ...[]Entity) *EntityIndex {
	ix := &EntityIndex{byID: make(map[string]Entity)}
	for _, batch := range entities {
		for _, e := range batch {
			if _, dup := ix.byID[e.ID]; !dup {
				ix.byID[e.ID] = e
			}
		}
	}
	return ix
}

// Get returns the entity with the given id.
func (ix *EntityIndex) Get(id string) (Entity, bool) {
	e, ok := ix.byID[id]
	return e, ok
}

// Adjacency returns the encoded adjacency list of id for the named edge.
func (ix *EntityIndex) Adjacency(id, edge string) (string, bool) {
	e, ok := ix.byID[id]
	if !ok {
		return "", false
	}
	adj, ok := e.Adjacency[edge]
	return adj, ok
}

// Len returns the number of indexed entities.
func (ix *EntityIndex) Len() int { return len(ix.byID) }
