package docstore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"

	"github.com/mstrYoda/graphview"
)

// testStore opens a store in a temporary directory.
func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "items.db"), Options{NoSync: true})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func mustItems(t *testing.T, raw string) []graphview.Item {
	t.Helper()
	items, err := graphview.ParseItems([]byte(raw))
	require.NoError(t, err)
	return items
}

func TestPutLoadPreservesOrder(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "people", mustItems(t, `[{"n":"1"},{"n":"2"}]`)))
	require.NoError(t, s.Put(ctx, "people", mustItems(t, `{"n":"3"}`)))

	items, err := s.Load(ctx, "people")
	require.NoError(t, err)
	require.Len(t, items, 3)
	for i, want := range []string{"1", "2", "3"} {
		v, ok := items[i].Lookup("n")
		require.True(t, ok)
		assert.Equal(t, want, v.String())
	}

	n, err := s.Count("people")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "items.db")
	s, err := Open(path, Options{})
	require.NoError(t, err)
	require.NoError(t, s.Put(context.Background(), "a", mustItems(t, `[{"x":1}]`)))
	require.NoError(t, s.Close())

	s2, err := Open(path, Options{})
	require.NoError(t, err)
	defer s2.Close()

	items, err := s2.Load(context.Background(), "a")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.JSONEq(t, `{"x":1}`, items[0].Raw())
}

func TestCollections(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "zeta", mustItems(t, `[{"a":1}]`)))
	require.NoError(t, s.Put(ctx, "alpha", mustItems(t, `[{"a":1}]`)))

	names, err := s.Collections()
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "zeta"}, names)

	require.NoError(t, s.Drop(ctx, "zeta"))
	names, err = s.Collections()
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha"}, names)

	assert.ErrorIs(t, s.Drop(ctx, "zeta"), ErrCollectionNotFound)
}

func TestLoadUnknownCollection(t *testing.T) {
	s := testStore(t)
	_, err := s.Load(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrCollectionNotFound)

	_, err = s.Count("missing")
	assert.ErrorIs(t, err, ErrCollectionNotFound)

	assert.ErrorIs(t, s.Put(context.Background(), "", nil), ErrInvalidCollection)
}

func TestLoadDetectsCorruption(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "c", mustItems(t, `[{"id":"a"}]`)))

	// Flip one payload byte behind the store's back.
	require.NoError(t, s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(collectionPrefix + "c"))
		k, v := b.Cursor().First()
		bad := append([]byte(nil), v...)
		bad[2] ^= 0xff
		return b.Put(k, bad)
	}))

	_, err := s.Load(ctx, "c")
	require.Error(t, err)
	assert.True(t, errors.Is(err, graphview.ErrMalformedEncoding), "got %v", err)
}

func TestEnvelopeRoundTrip(t *testing.T) {
	data, err := encodeEnvelope(envelope{Raw: []byte(`{"k":"v"}`), StoredAt: 42})
	require.NoError(t, err)
	assert.Equal(t, itemMagicCRC, data[0])

	env, err := decodeEnvelope(data)
	require.NoError(t, err)
	assert.Equal(t, `{"k":"v"}`, string(env.Raw))
	assert.Equal(t, int64(42), env.StoredAt)

	_, err = decodeEnvelope(data[:3])
	assert.ErrorIs(t, err, graphview.ErrMalformedEncoding)
}

func TestWriteQueueFull(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "items.db"), Options{WriteQueueSize: 1})
	require.NoError(t, err)
	defer s.Close()

	// Hold the only slot.
	require.NoError(t, s.acquireWrite(context.Background()))
	defer s.releaseWrite()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err = s.Put(ctx, "c", mustItems(t, `[{"a":1}]`))
	assert.ErrorIs(t, err, ErrWriteQueueFull)
}
