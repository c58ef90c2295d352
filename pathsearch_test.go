package graphview

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	adj1to2 = `[{"_sink":"2"}]`
	adj2to3 = `[{"_sink":"3"}]`
	adj2to1 = `[{"_sink":"1"}]`
)

var chainHeader = NewHeader("id", "adj_knows", "adj_knows_sink", "name", "path")

// chainStep walks the acyclic graph 1 -> 2 -> 3.
func chainStep() *AdjacencyStep {
	ix := NewEntityIndex([]Entity{
		{ID: "1", Adjacency: map[string]string{"knows": adj1to2}},
		{ID: "2", Adjacency: map[string]string{"knows": adj2to3}},
		{ID: "3", Adjacency: map[string]string{"knows": EmptyAdjacency}},
	})
	return &AdjacencyStep{Index: ix, Edge: "knows"}
}

// cycleStep walks the cyclic graph 1 <-> 2.
func cycleStep(maxHops int) *AdjacencyStep {
	ix := NewEntityIndex([]Entity{
		{ID: "1", Adjacency: map[string]string{"knows": adj1to2}},
		{ID: "2", Adjacency: map[string]string{"knows": adj2to1}},
	})
	return &AdjacencyStep{Index: ix, Edge: "knows", MaxHops: maxHops}
}

func chainSeed() Record {
	return Record{"", "", "", "1", adj1to2, ""}
}

func runSearch(ctx context.Context, step StepOperator, maxPaths int, seed Record) ([]PathRecord, error) {
	ps := &pathSearch{step: step, governor: &searchGovernor{maxPaths: maxPaths}}
	return ps.run(ctx, seed)
}

func TestPathSearchChain(t *testing.T) {
	paths, err := runSearch(context.Background(), chainStep(), 0, chainSeed())
	require.NoError(t, err)
	require.Len(t, paths, 2)

	assert.Equal(t, chainSeed(), paths[0].Record, "seed comes first")
	assert.Equal(t, adj1to2, paths[0].SinkReferences)

	assert.Equal(t, Record{"1", adj1to2, "2", "2", adj2to3, `[{"_sink":"2"}]`}, paths[1].Record)
	assert.Equal(t, adj2to3, paths[1].SinkReferences)
}

func TestPathSearchTerminatesWithHopBound(t *testing.T) {
	const maxHops = 3
	paths, err := runSearch(context.Background(), cycleStep(maxHops), 0, chainSeed())
	require.NoError(t, err)
	require.Len(t, paths, maxHops+1)

	for _, p := range paths {
		n, err := PathLength(p.Record.Last())
		require.NoError(t, err)
		assert.LessOrEqual(t, n, maxHops)
	}
}

func TestPathSearchMaxPaths(t *testing.T) {
	_, err := runSearch(context.Background(), cycleStep(0), 5, chainSeed())
	assert.ErrorIs(t, err, ErrResultTooLarge)
}

func TestPathSearchCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := runSearch(ctx, cycleStep(0), 0, chainSeed())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFindPathsDefaultTimeout(t *testing.T) {
	opts := DefaultOptions()
	opts.DefaultTimeout = 20 * time.Millisecond
	opts.MaxPaths = 0
	e := testEngine(t, chainHeader, opts)

	// Never runs dry: every source yields one more extendable record.
	endless := StepFunc(func(_ context.Context, src Record) (RecordIterator, error) {
		return NewSliceIterator([]Record{{src[0], src[1], "x", "x", adj1to2, ""}}), nil
	})
	_, err := e.FindPaths(context.Background(), chainSeed(), endless)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPathSearchPropagatesStepErrors(t *testing.T) {
	e := testEngine(t, chainHeader)
	sentinel := errors.New("index unavailable")

	openFails := StepFunc(func(context.Context, Record) (RecordIterator, error) {
		return nil, sentinel
	})
	_, err := e.FindPaths(context.Background(), chainSeed(), openFails)
	assert.True(t, err == sentinel, "error must not be wrapped, got %v", err)

	upstream := &UpstreamOperatorError{Operator: "scan", Err: sentinel}
	iterFails := StepFunc(func(context.Context, Record) (RecordIterator, error) {
		return &failingIterator{err: upstream}, nil
	})
	_, err = e.FindPaths(context.Background(), chainSeed(), iterFails)
	assert.True(t, err == error(upstream), "error must not be wrapped, got %v", err)
	assert.ErrorIs(t, err, sentinel)
}

func TestPathSearchRecoversPanics(t *testing.T) {
	e := testEngine(t, chainHeader)
	boom := StepFunc(func(context.Context, Record) (RecordIterator, error) {
		panic("step exploded")
	})
	_, err := e.FindPaths(context.Background(), chainSeed(), boom)
	assert.ErrorIs(t, err, ErrQueryPanic)
	assert.Contains(t, err.Error(), "step exploded")
}

func TestPathSearchShapeErrors(t *testing.T) {
	_, err := runSearch(context.Background(), chainStep(), 0, Record{"1", adj1to2})
	assert.ErrorIs(t, err, ErrSchemaMismatch)

	narrow := StepFunc(func(context.Context, Record) (RecordIterator, error) {
		return NewSliceIterator([]Record{{"only"}}), nil
	})
	_, err = runSearch(context.Background(), narrow, 0, chainSeed())
	assert.ErrorIs(t, err, ErrSchemaMismatch)
}

// chainPoller is a polling-style operator over the chain graph. It emits a
// nil record before each real one.
type chainPoller struct {
	src     *ConstantSource
	step    *AdjacencyStep
	pending []Record
	resets  int
}

func (p *chainPoller) ResetState() {
	p.resets++
	p.pending = nil
	it, err := p.step.Open(context.Background(), p.src.Get())
	if err != nil {
		return
	}
	for it.Next() {
		p.pending = append(p.pending, nil, it.Record())
	}
}

func (p *chainPoller) HasMore() bool { return len(p.pending) > 0 }

func (p *chainPoller) Next() (Record, error) {
	r := p.pending[0]
	p.pending = p.pending[1:]
	return r, nil
}

func TestPollingAdapter(t *testing.T) {
	src := &ConstantSource{}
	poller := &chainPoller{src: src, step: chainStep()}

	viaPolling, err := runSearch(context.Background(), Polling(poller, src), 0, chainSeed())
	require.NoError(t, err)
	direct, err := runSearch(context.Background(), chainStep(), 0, chainSeed())
	require.NoError(t, err)

	assert.Equal(t, direct, viaPolling)
	assert.Equal(t, 2, poller.resets, "one reset per expanded path")
}

// bufferedPoller copies every row into one shared buffer, the way
// row-at-a-time operators recycle their output slot.
type bufferedPoller struct {
	src     *ConstantSource
	step    *AdjacencyStep
	pending []Record
	buf     Record
}

func (p *bufferedPoller) ResetState() {
	p.pending = nil
	it, err := p.step.Open(context.Background(), p.src.Get())
	if err != nil {
		return
	}
	for it.Next() {
		p.pending = append(p.pending, it.Record())
	}
}

func (p *bufferedPoller) HasMore() bool { return len(p.pending) > 0 }

func (p *bufferedPoller) Next() (Record, error) {
	r := p.pending[0]
	p.pending = p.pending[1:]
	if len(p.buf) != len(r) {
		p.buf = make(Record, len(r))
	}
	copy(p.buf, r)
	return p.buf, nil
}

func TestPathSearchCopiesReusedBuffers(t *testing.T) {
	src := &ConstantSource{}
	poller := &bufferedPoller{src: src, step: chainStep()}

	paths, err := runSearch(context.Background(), Polling(poller, src), 0, chainSeed())
	require.NoError(t, err)
	require.Len(t, paths, 2)
	assert.Equal(t, Record{"1", adj1to2, "2", "2", adj2to3, `[{"_sink":"2"}]`}, paths[1].Record,
		"later rows written into the buffer must not leak into recorded paths")
	assert.Equal(t, adj2to3, paths[1].SinkReferences)
}

func TestCrossApplyPathWithReusedBuffers(t *testing.T) {
	e := testEngine(t, chainHeader)
	src := &ConstantSource{}
	poller := &bufferedPoller{src: src, step: chainStep()}
	rec := Record{"1", adj1to2, "", "Alice", ""}

	out := NewExpansion()
	require.NoError(t, e.CrossApplyPath(context.Background(), rec, Polling(poller, src), noJoin, out))
	require.Len(t, out.Records, 2)
	assert.Equal(t, Record{"1", adj2to3, "3", "Alice", `[{"_sink":"2"}]`}, out.Records[1])
}

func TestAdjacencyStepFilterAndFormat(t *testing.T) {
	ix := NewEntityIndex([]Entity{{ID: "2", Adjacency: map[string]string{"knows": adj2to3}}})
	step := &AdjacencyStep{
		Index:  ix,
		Edge:   "knows",
		Filter: func(tok EdgeToken) bool { return tok.Sink() != "9" },
	}

	_, err := step.Open(context.Background(), Record{"1"})
	assert.ErrorIs(t, err, ErrSchemaMismatch)

	it, err := step.Open(context.Background(), Record{"1", `[{"_sink":"9"},{"_sink":"2"},{"_sink":"7"}]`, "", "", ""})
	require.NoError(t, err)
	defer it.Close()

	var got []Record
	for it.Next() {
		got = append(got, it.Record())
	}
	require.NoError(t, it.Err())
	assert.Equal(t, []Record{
		{"1", `[{"_sink":"9"},{"_sink":"2"},{"_sink":"7"}]`, "2", "2", adj2to3, `[{"_sink":"2"}]`},
		{"1", `[{"_sink":"9"},{"_sink":"2"},{"_sink":"7"}]`, "7", "7", EmptyAdjacency, `[{"_sink":"7"}]`},
	}, got)
}

func TestAppendPath(t *testing.T) {
	tok := mustToken(t, `{"_sink":"2"}`)
	p, err := AppendPath("", tok)
	require.NoError(t, err)
	assert.Equal(t, `[{"_sink":"2"}]`, p)

	p, err = AppendPath(p, mustToken(t, `{"_sink":"3"}`))
	require.NoError(t, err)
	assert.Equal(t, `[{"_sink":"2"},{"_sink":"3"}]`, p)

	n, err := PathLength(p)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = AppendPath(`{"a":1}`, tok)
	assert.ErrorIs(t, err, ErrMalformedEncoding)
	_, err = PathLength("nope")
	assert.ErrorIs(t, err, ErrMalformedEncoding)
}

type failingIterator struct{ err error }

func (it *failingIterator) Next() bool     { return false }
func (it *failingIterator) Record() Record { return nil }
func (it *failingIterator) Err() error     { return it.err }
func (it *failingIterator) Close()         {}
