package graphview

import (
	"fmt"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// Metrics holds operational counters for an Engine. Collectors are
// registered on the registry given to NewMetrics, so several engines can
// share one registry only if they share one Metrics.
type Metrics struct {
	registry *prometheus.Registry

	// Call counters, labelled by operation: decode, cross_apply_edge,
	// cross_apply_path, find_paths.
	Calls      *prometheus.CounterVec
	CallErrors *prometheus.CounterVec
	Duration   *prometheus.HistogramVec

	SlowSearches prometheus.Counter

	EntitiesDecoded prometheus.Counter
	RecordsEmitted  prometheus.Counter
	PathsFound      prometheus.Counter

	CacheHits   prometheus.CounterFunc
	CacheMisses prometheus.CounterFunc
}

// Operation labels.
const (
	opDecode         = "decode"
	opCrossApplyEdge = "cross_apply_edge"
	opCrossApplyPath = "cross_apply_path"
	opFindPaths      = "find_paths"
)

// NewMetrics creates the engine collectors and registers them on reg. A nil
// reg gets a fresh private registry.
func NewMetrics(reg *prometheus.Registry) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		registry: reg,
		Calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "graphview",
			Name:      "calls_total",
			Help:      "Total number of engine calls.",
		}, []string{"op"}),
		CallErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "graphview",
			Name:      "call_errors_total",
			Help:      "Total number of engine calls that returned an error.",
		}, []string{"op"}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "graphview",
			Name:      "call_duration_seconds",
			Help:      "Engine call latency.",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"op"}),
		SlowSearches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "graphview",
			Name:      "slow_searches_total",
			Help:      "Path searches exceeding SlowSearchThreshold.",
		}),
		EntitiesDecoded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "graphview",
			Name:      "entities_decoded_total",
			Help:      "Entities produced by Decode.",
		}),
		RecordsEmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "graphview",
			Name:      "records_emitted_total",
			Help:      "Records produced by cross-apply.",
		}),
		PathsFound: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "graphview",
			Name:      "paths_found_total",
			Help:      "Path records produced by path search, seeds included.",
		}),
	}
	for _, c := range []prometheus.Collector{
		m.Calls, m.CallErrors, m.Duration, m.SlowSearches,
		m.EntitiesDecoded, m.RecordsEmitted, m.PathsFound,
	} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("graphview: register metrics: %w", err)
		}
	}
	return m, nil
}

// bindCache exposes the adjacency cache counters. When several engines
// share one Metrics the first engine's cache is reported.
func (m *Metrics) bindCache(c *adjacencyCache) error {
	if m.CacheHits != nil {
		return nil
	}
	m.CacheHits = prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: "graphview",
		Name:      "adjacency_cache_hits_total",
		Help:      "Adjacency cache hits.",
	}, func() float64 { return float64(c.hits.Load()) })
	m.CacheMisses = prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: "graphview",
		Name:      "adjacency_cache_misses_total",
		Help:      "Adjacency cache misses.",
	}, func() float64 { return float64(c.misses.Load()) })
	for _, col := range []prometheus.Collector{m.CacheHits, m.CacheMisses} {
		if err := m.registry.Register(col); err != nil {
			return fmt.Errorf("graphview: register metrics: %w", err)
		}
	}
	return nil
}

// observe records one finished call.
func (m *Metrics) observe(op string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.Calls.WithLabelValues(op).Inc()
	m.Duration.WithLabelValues(op).Observe(d.Seconds())
	if err != nil {
		m.CallErrors.WithLabelValues(op).Inc()
	}
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// WritePrometheus writes all metrics in Prometheus text exposition format.
func (m *Metrics) WritePrometheus(w io.Writer) error {
	families, err := m.registry.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}
