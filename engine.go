package graphview

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/mstrYoda/graphview"

var errNilExpansion = errors.New("graphview: nil Expansion")

// Options configures an Engine.
type Options struct {
	// Logger receives engine logs. Default: slog.Default().
	Logger *slog.Logger
	// MaxPaths caps the path records one search may produce. 0 = unlimited.
	MaxPaths int
	// DefaultTimeout bounds path searches whose context has no deadline.
	// 0 = no default timeout.
	DefaultTimeout time.Duration
	// SlowSearchThreshold logs path searches slower than this. 0 disables.
	SlowSearchThreshold time.Duration
	// AdjacencyCacheSize is the number of parsed adjacency lists kept.
	// 0 selects the default, a negative value disables the cache.
	AdjacencyCacheSize int
	// IDPath is the gjson path of the entity id inside raw items.
	// Default: DefaultIDPath.
	IDPath string
	// Metrics, when set, receives engine counters.
	Metrics *Metrics
	// TracerProvider supplies the tracer for engine spans.
	// Default: otel.GetTracerProvider().
	TracerProvider trace.TracerProvider
}

// DefaultOptions returns sensible defaults for interactive query execution.
func DefaultOptions() Options {
	return Options{
		MaxPaths:            100_000,
		DefaultTimeout:      30 * time.Second,
		SlowSearchThreshold: 100 * time.Millisecond,
		AdjacencyCacheSize:  defaultAdjacencyCacheSize,
		IDPath:              DefaultIDPath,
	}
}

// Engine runs the graph-view operators for records described by one header.
// It is safe for concurrent use; every call owns its own working state.
type Engine struct {
	header   *Header
	opts     Options
	log      *slog.Logger
	dec      decoder
	cache    *adjacencyCache
	governor *searchGovernor
	metrics  *Metrics
	tracer   trace.Tracer
	slowLog  *slowSearchLog
}

// New creates an engine for records shaped by header.
func New(header *Header, opts Options) (*Engine, error) {
	if header == nil || header.Len() == 0 {
		return nil, widthError(1, 0, "engine header has no columns")
	}
	if opts.IDPath == "" {
		opts.IDPath = DefaultIDPath
	}
	if opts.AdjacencyCacheSize == 0 {
		opts.AdjacencyCacheSize = defaultAdjacencyCacheSize
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	tp := opts.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}

	e := &Engine{
		header:  header,
		opts:    opts,
		log:     logger,
		dec:     decoder{header: header, idPath: opts.IDPath},
		cache:   newAdjacencyCache(opts.AdjacencyCacheSize),
		metrics: opts.Metrics,
		tracer:  tp.Tracer(tracerName),
		slowLog: newSlowSearchLog(100),
		governor: &searchGovernor{
			maxPaths:       opts.MaxPaths,
			defaultTimeout: opts.DefaultTimeout,
		},
	}
	if e.metrics != nil {
		if err := e.metrics.bindCache(e.cache); err != nil {
			return nil, err
		}
	}

	e.log.Debug("engine created",
		"columns", header.Len(),
		"id_path", opts.IDPath,
		"max_paths", opts.MaxPaths,
		"cache_size", opts.AdjacencyCacheSize,
	)
	return e, nil
}

// Header returns the header the engine was built for.
func (e *Engine) Header() *Header { return e.header }

// CacheStats returns adjacency cache statistics.
func (e *Engine) CacheStats() CacheStats { return e.cache.stats() }

// Decode converts raw items into one Entity per distinct id, in first-seen
// order. The projection of an id comes from its first item; adjacency lists
// union the edges of every item with that id. Any malformed item fails the
// whole call.
func (e *Engine) Decode(ctx context.Context, items []Item, layout NodeLayout) (ents []Entity, err error) {
	ctx, span := e.tracer.Start(ctx, "Engine.Decode", trace.WithAttributes(
		attribute.Int("graphview.items", len(items)),
		attribute.Int("graphview.layout.offset", layout.Offset),
		attribute.Int("graphview.layout.meta_length", layout.MetaLength),
	))
	start := time.Now()
	defer func() { e.finish(span, opDecode, start, err) }()

	ents, err = safeExecuteResult(func() ([]Entity, error) {
		return e.dec.decode(ctx, items, layout)
	})
	if err != nil {
		return nil, err
	}

	if e.metrics != nil {
		e.metrics.EntitiesDecoded.Add(float64(len(ents)))
	}
	span.SetAttributes(attribute.Int("graphview.entities", len(ents)))
	e.log.Debug("items decoded", "items", len(items), "entities", len(ents))
	return ents, nil
}

// CrossApplyEdge expands rec by the adjacency list in column p.Adjacency:
// one output record per edge token, appended to out together with the
// token's sink id. When p.Destination is set and the record is not being
// extended, only edges whose sink equals rec[p.Destination] are kept.
func (e *Engine) CrossApplyEdge(ctx context.Context, rec Record, p ApplyParams, out *Expansion) (err error) {
	if out == nil {
		return errNilExpansion
	}
	_, span := e.tracer.Start(ctx, "Engine.CrossApplyEdge", trace.WithAttributes(
		attribute.Int("graphview.adjacency", p.Adjacency),
		attribute.Int("graphview.destination", p.Destination),
		attribute.Int("graphview.meta_length", p.MetaLength),
	))
	start := time.Now()
	defer func() { e.finish(span, opCrossApplyEdge, start, err) }()

	n, err := safeExecuteResult(func() (int, error) {
		return e.crossApplyEdge(rec, p, out)
	})
	if e.metrics != nil {
		e.metrics.RecordsEmitted.Add(float64(n))
	}
	span.SetAttributes(attribute.Int("graphview.records", n))
	return err
}

// CrossApplyPath expands rec by every path step discovers from the node in
// column p.Source. Each path contributes one output record per pending sink
// reference, carrying the path's sink list, the sink id and the path column.
// Step-operator errors are returned unchanged.
func (e *Engine) CrossApplyPath(ctx context.Context, rec Record, step StepOperator, p ApplyParams, out *Expansion) (err error) {
	if out == nil {
		return errNilExpansion
	}
	searchID := uuid.NewString()
	ctx, span := e.tracer.Start(ctx, "Engine.CrossApplyPath", trace.WithAttributes(
		attribute.String("graphview.search_id", searchID),
		attribute.Int("graphview.source", p.Source),
		attribute.Int("graphview.adjacency", p.Adjacency),
	))
	start := time.Now()
	defer func() { e.finish(span, opCrossApplyPath, start, err) }()

	ctx, cancel := e.governor.wrapContext(ctx)
	defer cancel()

	var paths, emitted int
	err = safeExecute(func() error {
		var runErr error
		paths, emitted, runErr = e.crossApplyPath(ctx, rec, step, p, out)
		return runErr
	})
	if e.metrics != nil {
		e.metrics.PathsFound.Add(float64(paths))
		e.metrics.RecordsEmitted.Add(float64(emitted))
	}
	span.SetAttributes(
		attribute.Int("graphview.paths", paths),
		attribute.Int("graphview.records", emitted),
	)
	e.slowSearchCheck(searchID, rec, time.Since(start), paths)
	e.log.Debug("path cross-apply finished",
		"search_id", searchID,
		"paths", paths,
		"records", emitted,
	)
	return err
}

// FindPaths runs a breadth-first path search from seed, returning every
// discovered path (the seed first). seed must end with the start node's id,
// adjacency and path columns. There is no cycle detection: step must stop
// yielding eventually. Step-operator errors are returned unchanged.
func (e *Engine) FindPaths(ctx context.Context, seed Record, step StepOperator) (paths []PathRecord, err error) {
	searchID := uuid.NewString()
	ctx, span := e.tracer.Start(ctx, "Engine.FindPaths", trace.WithAttributes(
		attribute.String("graphview.search_id", searchID),
		attribute.Int("graphview.seed_width", len(seed)),
	))
	start := time.Now()
	defer func() { e.finish(span, opFindPaths, start, err) }()

	ctx, cancel := e.governor.wrapContext(ctx)
	defer cancel()

	ps := &pathSearch{step: step, governor: e.governor}
	paths, err = safeExecuteResult(func() ([]PathRecord, error) {
		return ps.run(ctx, seed)
	})
	if err != nil {
		e.log.Debug("path search failed", "search_id", searchID, "error", err)
		return nil, err
	}

	if e.metrics != nil {
		e.metrics.PathsFound.Add(float64(len(paths)))
	}
	span.SetAttributes(attribute.Int("graphview.paths", len(paths)))
	e.slowSearchCheck(searchID, seed, time.Since(start), len(paths))
	e.log.Debug("path search finished", "search_id", searchID, "paths", len(paths))
	return paths, nil
}

// finish closes a call span and records its metrics.
func (e *Engine) finish(span trace.Span, op string, start time.Time, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
	e.metrics.observe(op, time.Since(start), err)
}
