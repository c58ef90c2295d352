package graphview

import (
	"sync"
	"time"
)

// SlowSearchEntry records a single slow path search.
type SlowSearchEntry struct {
	SearchID   string        `json:"search_id"`
	Seed       string        `json:"seed"`
	Duration   time.Duration `json:"-"`
	DurationMs float64       `json:"duration_ms"`
	Paths      int           `json:"paths"`
	Timestamp  time.Time     `json:"timestamp"`
}

// slowSearchLog is a bounded ring buffer of recent slow searches.
type slowSearchLog struct {
	mu      sync.Mutex
	entries []SlowSearchEntry
	pos     int
	cap     int
}

func newSlowSearchLog(capacity int) *slowSearchLog {
	if capacity <= 0 {
		capacity = 100
	}
	return &slowSearchLog{
		entries: make([]SlowSearchEntry, 0, capacity),
		cap:     capacity,
	}
}

func (l *slowSearchLog) add(e SlowSearchEntry) {
	l.mu.Lock()
	if len(l.entries) < l.cap {
		l.entries = append(l.entries, e)
	} else {
		l.entries[l.pos] = e
	}
	l.pos = (l.pos + 1) % l.cap
	l.mu.Unlock()
}

// recent returns up to the last n entries, newest first.
func (l *slowSearchLog) recent(n int) []SlowSearchEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	size := len(l.entries)
	if n <= 0 || n > size {
		n = size
	}
	result := make([]SlowSearchEntry, n)
	for i := 0; i < n; i++ {
		idx := (l.pos - 1 - i + size) % size
		result[i] = l.entries[idx]
	}
	return result
}

// slowSearchCheck logs a warning if a search exceeded the threshold.
// No-op if the threshold is zero or negative.
func (e *Engine) slowSearchCheck(searchID string, seed Record, duration time.Duration, paths int) {
	threshold := e.opts.SlowSearchThreshold
	if threshold <= 0 || duration < threshold {
		return
	}

	if e.metrics != nil {
		e.metrics.SlowSearches.Inc()
	}
	e.slowLog.add(SlowSearchEntry{
		SearchID:   searchID,
		Seed:       truncate(seed.String(), 500),
		Duration:   duration,
		DurationMs: float64(duration.Microseconds()) / 1000.0,
		Paths:      paths,
		Timestamp:  time.Now(),
	})

	e.log.Warn("slow path search detected",
		"search_id", searchID,
		"duration", duration.String(),
		"duration_ms", float64(duration.Microseconds())/1000.0,
		"paths", paths,
		"threshold", threshold.String(),
	)
}

// SlowSearches returns the most recent slow path searches (up to n), newest
// first.
func (e *Engine) SlowSearches(n int) []SlowSearchEntry {
	return e.slowLog.recent(n)
}
