package graphview

import (
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
)

// ---------------------------------------------------------------------------
// Adjacency cache: avoids re-parsing identical adjacency strings.
//
// Cross-apply and path search parse the same adjacency column over and over
// (every record derived from one entity carries the same list). The cache is
// a sharded LRU keyed by the raw string; shards are picked by xxhash so hot
// keys spread evenly. Parsed lists are immutable and shared between callers.
// ---------------------------------------------------------------------------

// CacheStats holds adjacency cache statistics.
type CacheStats struct {
	Entries  int    `json:"entries"`
	Capacity int    `json:"capacity"`
	Hits     uint64 `json:"hits"`
	Misses   uint64 `json:"misses"`
}

const (
	defaultAdjacencyCacheSize = 4096
	adjacencyCacheShards      = 16
	// Strings longer than this are parsed but never cached.
	maxCachedAdjacencyBytes = 64 * 1024
)

type adjacencyCache struct {
	shards   []adjacencyShard
	capacity int
	hits     atomic.Uint64
	misses   atomic.Uint64
}

type adjacencyShard struct {
	mu       sync.Mutex
	items    map[string]*adjacencyEntry
	head     *adjacencyEntry // most recently used
	tail     *adjacencyEntry // least recently used
	capacity int
}

type adjacencyEntry struct {
	key  string
	list AdjacencyList
	prev *adjacencyEntry
	next *adjacencyEntry
}

// newAdjacencyCache returns a cache holding about capacity lists. A
// capacity <= 0 disables caching; parse still works.
func newAdjacencyCache(capacity int) *adjacencyCache {
	c := &adjacencyCache{capacity: capacity}
	if capacity <= 0 {
		return c
	}
	perShard := capacity / adjacencyCacheShards
	if perShard < 1 {
		perShard = 1
	}
	c.shards = make([]adjacencyShard, adjacencyCacheShards)
	for i := range c.shards {
		c.shards[i] = adjacencyShard{items: make(map[string]*adjacencyEntry), capacity: perShard}
	}
	return c
}

// parse returns the decoded list for raw, from cache when possible.
// Malformed input is never cached.
func (c *adjacencyCache) parse(raw string) (AdjacencyList, error) {
	if IsEmptyAdjacency(raw) {
		return nil, nil
	}
	if c.capacity <= 0 || len(raw) > maxCachedAdjacencyBytes {
		return ParseAdjacency(raw)
	}

	s := &c.shards[xxhash.Sum64String(raw)%adjacencyCacheShards]
	s.mu.Lock()
	if e, ok := s.items[raw]; ok {
		s.moveToFront(e)
		s.mu.Unlock()
		c.hits.Add(1)
		return e.list, nil
	}
	s.mu.Unlock()
	c.misses.Add(1)

	list, err := ParseAdjacency(raw)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.items[raw]; ok {
		s.moveToFront(e)
		return e.list, nil
	}
	e := &adjacencyEntry{key: raw, list: list}
	s.items[raw] = e
	s.pushFront(e)
	if len(s.items) > s.capacity {
		s.evictLRU()
	}
	return list, nil
}

func (c *adjacencyCache) stats() CacheStats {
	st := CacheStats{Capacity: c.capacity, Hits: c.hits.Load(), Misses: c.misses.Load()}
	for i := range c.shards {
		s := &c.shards[i]
		s.mu.Lock()
		st.Entries += len(s.items)
		s.mu.Unlock()
	}
	return st
}

func (s *adjacencyShard) moveToFront(e *adjacencyEntry) {
	if s.head == e {
		return
	}
	s.removeEntry(e)
	s.pushFront(e)
}

func (s *adjacencyShard) pushFront(e *adjacencyEntry) {
	e.prev = nil
	e.next = s.head
	if s.head != nil {
		s.head.prev = e
	}
	s.head = e
	if s.tail == nil {
		s.tail = e
	}
}

func (s *adjacencyShard) removeEntry(e *adjacencyEntry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		s.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		s.tail = e.prev
	}
	e.prev = nil
	e.next = nil
}

func (s *adjacencyShard) evictLRU() {
	if s.tail == nil {
		return
	}
	victim := s.tail
	s.removeEntry(victim)
	delete(s.items, victim.key)
}
