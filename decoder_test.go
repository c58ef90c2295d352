package graphview

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var knowsHeader = NewHeader("id", "adj_knows", "adj_knows_sink", "name")

var knowsLayout = NodeLayout{Offset: 0, MetaLength: 3}

func decodeRaw(t *testing.T, h *Header, layout NodeLayout, raw string) ([]Entity, error) {
	t.Helper()
	items, err := ParseItems([]byte(raw))
	require.NoError(t, err)
	return decoder{header: h, idPath: DefaultIDPath}.decode(context.Background(), items, layout)
}

func TestDecodeSingleItem(t *testing.T) {
	ents, err := decodeRaw(t, knowsHeader, knowsLayout,
		`[{"id":"1","adj_knows":[{"_sink":"2","_ID":"e1"}],"name":"Alice"}]`)
	require.NoError(t, err)

	want := []Entity{{
		ID:         "1",
		Adjacency:  map[string]string{"knows": `[{"_sink":"2","_ID":"e1"}]`},
		Projection: Record{"Alice"},
	}}
	if diff := cmp.Diff(want, ents); diff != "" {
		t.Fatalf("Decode mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeMergesDuplicateIDs(t *testing.T) {
	ents, err := decodeRaw(t, knowsHeader, knowsLayout, `[
		{"id":"1","adj_knows":[{"_sink":"2","_ID":"e1"}],"name":"Alice"},
		{"id":"3","name":"Carol"},
		{"id":"1","adj_knows":[{"_ID":"e1","_sink":"2"},{"_sink":"4","_ID":"e2"}],"name":"Alicia"}
	]`)
	require.NoError(t, err)
	require.Len(t, ents, 2)

	assert.Equal(t, "1", ents[0].ID, "first-seen order")
	assert.Equal(t, "3", ents[1].ID)

	assert.Equal(t, `[{"_sink":"2","_ID":"e1"},{"_sink":"4","_ID":"e2"}]`, ents[0].Adjacency["knows"],
		"duplicate tokens collapse, new ones are appended")
	assert.Equal(t, Record{"Alice"}, ents[0].Projection, "first projection wins")

	assert.Equal(t, EmptyAdjacency, ents[1].Adjacency["knows"])
	assert.Equal(t, Record{"Carol"}, ents[1].Projection)
}

func TestDecodeIsIdempotent(t *testing.T) {
	raw := `[
		{"id":"1","adj_knows":[{"_sink":"2"}],"name":"A"},
		{"id":"2","adj_knows":"[{\"_sink\":\"1\"}]","name":"B"},
		{"id":"1","name":"A2"}
	]`
	first, err := decodeRaw(t, knowsHeader, knowsLayout, raw)
	require.NoError(t, err)
	second, err := decodeRaw(t, knowsHeader, knowsLayout, raw)
	require.NoError(t, err)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("decode is not idempotent (-first +second):\n%s", diff)
	}
}

func TestDecodeIDPathAndAliases(t *testing.T) {
	h := NewHeader("n.id", "n.adj_follows", "n.adj_follows_sink", "n.name", "home city")
	ents, err := decodeRaw(t, h, NodeLayout{Offset: 0, MetaLength: 3}, `[
		{"_nodeid":{"id":"u1"},"n_adj_follows":[{"_sink":"u2"}],"n_name":"Ann","home_city":"Oslo"}
	]`)
	require.NoError(t, err)
	require.Len(t, ents, 1)
	assert.Equal(t, "u1", ents[0].ID)
	assert.Equal(t, Record{"Ann", "Oslo"}, ents[0].Projection)
	// The column prefix is only stripped when it leads the name.
	assert.Contains(t, ents[0].Adjacency, "n.adj_follows")
}

func TestDecodeNullIDFallsBack(t *testing.T) {
	ents, err := decodeRaw(t, knowsHeader, knowsLayout,
		`[{"_nodeid":{"id":null},"id":"z","name":"Zed"}]`)
	require.NoError(t, err)
	require.Len(t, ents, 1)
	assert.Equal(t, "z", ents[0].ID)

	_, err = decodeRaw(t, knowsHeader, knowsLayout, `[{"_nodeid":{"id":null},"id":null}]`)
	assert.ErrorIs(t, err, ErrMalformedEncoding)
}

func TestDecodeNoPartialSuccess(t *testing.T) {
	_, err := decodeRaw(t, knowsHeader, knowsLayout, `[
		{"id":"1","adj_knows":[{"_sink":"2"}]},
		{"id":"2","adj_knows":[{"no_sink":true}]}
	]`)
	assert.ErrorIs(t, err, ErrMalformedEncoding)

	_, err = decodeRaw(t, knowsHeader, knowsLayout, `[{"name":"anonymous"}]`)
	assert.ErrorIs(t, err, ErrMalformedEncoding)

	_, err = decodeRaw(t, knowsHeader, NodeLayout{Offset: 0, MetaLength: 4}, `[{"id":"1"}]`)
	assert.ErrorIs(t, err, ErrSchemaMismatch)
}

func TestDecodeHonorsCancellation(t *testing.T) {
	items, err := ParseItems([]byte(`[{"id":"1"}]`))
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = decoder{header: knowsHeader}.decode(ctx, items, knowsLayout)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEntityMaterialize(t *testing.T) {
	h := NewHeader("id", "adj_knows", "adj_knows_sink", "name", "path")
	ent := Entity{ID: "1", Adjacency: map[string]string{"knows": `[{"_sink":"2"}]`}, Projection: Record{"Alice", ""}}

	rec, err := ent.Materialize(h, knowsLayout)
	require.NoError(t, err)
	assert.Equal(t, Record{"1", `[{"_sink":"2"}]`, "", "Alice", ""}, rec)

	_, err = Entity{ID: "1", Projection: Record{"x"}}.Materialize(h, knowsLayout)
	assert.ErrorIs(t, err, ErrSchemaMismatch)
}

func TestEntityIndex(t *testing.T) {
	ix := NewEntityIndex(
		[]Entity{{ID: "1", Adjacency: map[string]string{"knows": "[]"}}},
		[]Entity{{ID: "1", Adjacency: map[string]string{"knows": `[{"_sink":"9"}]`}}, {ID: "2"}},
	)
	assert.Equal(t, 2, ix.Len())

	adj, ok := ix.Adjacency("1", "knows")
	require.True(t, ok)
	assert.Equal(t, "[]", adj, "first entity wins")

	_, ok = ix.Adjacency("2", "knows")
	assert.False(t, ok)
	_, ok = ix.Get("3")
	assert.False(t, ok)
}
