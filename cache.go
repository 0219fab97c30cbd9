package dataagent

import (
	"container/list"
	"sort"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
)

// DefaultMaxCacheEntries bounds the number of retained tables per reader.
const DefaultMaxCacheEntries = 10

// CacheConfig configures one reader's table cache.
type CacheConfig struct {
	// MaxEntries is the entry-count bound; least-recently-used entries are
	// evicted beyond it. Zero means DefaultMaxCacheEntries.
	MaxEntries int
}

// CacheStats is a point-in-time snapshot of cache effectiveness.
type CacheStats struct {
	Hits        uint64
	Misses      uint64
	HitRate     float64
	EntryCount  int
	MemoryBytes int64
}

// cacheKey derives the normalized identifier for a (sheet, column-subset)
// request. Column names are sorted before composing the key so {B,A} and
// {A,B} are recognized as the identical request.
func cacheKey(sheet string, columns []string) string {
	if sheet == "" {
		sheet = "default"
	}
	if columns == nil {
		return sheet + ":full"
	}
	sorted := make([]string, len(columns))
	copy(sorted, columns)
	sort.Strings(sorted)
	return sheet + ":cols:" + strings.Join(sorted, ",")
}

// cacheEntry owns one retained table plus its staleness metadata. Entries
// are exclusively owned by the cache; callers only ever receive clones.
type cacheEntry struct {
	key   string
	table *Table
	fp    Fingerprint
	bytes int64
}

// tableCache is a per-source store of previously loaded column data with
// fingerprint staleness detection and LRU eviction. Safe for concurrent
// use.
type tableCache struct {
	mu         sync.Mutex
	maxEntries int
	entries    map[string]*list.Element // value: *cacheEntry
	order      *list.List               // front = least recently used
	hits       uint64
	misses     uint64
	logger     zerolog.Logger
}

func newTableCache(cfg CacheConfig, logger zerolog.Logger) *tableCache {
	maxEntries := cfg.MaxEntries
	if maxEntries <= 0 {
		maxEntries = DefaultMaxCacheEntries
	}
	return &tableCache{
		maxEntries: maxEntries,
		entries:    make(map[string]*list.Element),
		order:      list.New(),
		logger:     logger,
	}
}

// lookup serves a (sheet, columns) request from the cache if possible.
// It first probes the exact key; column-subset requests then try
// projecting from a fresh full-table entry, inserting the derived subset so
// the next identical request hits directly. The returned table is a clone,
// never the retained entry. Exactly one hit or one miss is recorded per
// call.
func (c *tableCache) lookup(sheet string, columns []string, fp Fingerprint) (*Table, bool) {
	key := cacheKey(sheet, columns)

	c.mu.Lock()
	defer c.mu.Unlock()

	if table, ok := c.getLocked(key, fp); ok {
		c.hits++
		c.logger.Debug().Str("key", key).Msg("cache hit")
		return table.Clone(), true
	}

	if columns != nil {
		if table, ok := c.subsetFromFullLocked(sheet, columns, fp); ok {
			c.hits++
			c.logger.Debug().Str("key", key).Msg("cache hit via full-table projection")
			return table.Clone(), true
		}
	}

	c.misses++
	c.logger.Debug().Str("key", key).Msg("cache miss")
	return nil, false
}

// getLocked returns the entry's table when present and fresh, updating
// recency. A fingerprint mismatch drops the stale entry so the next put
// replaces rather than refreshes it.
func (c *tableCache) getLocked(key string, fp Fingerprint) (*Table, bool) {
	elem, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	entry := elem.Value.(*cacheEntry)
	if entry.key != key {
		panic(&CacheInconsistencyError{Key: key, Reason: "index points at entry " + entry.key})
	}
	if !entry.fp.Equal(fp) {
		c.removeLocked(elem)
		c.logger.Debug().Str("key", key).Msg("cache entry stale, dropped")
		return nil, false
	}
	c.order.MoveToBack(elem)
	return entry.table, true
}

// subsetFromFullLocked projects the requested columns from a fresh
// "all columns" entry without re-reading the source. This is the dominant
// hit-rate mechanism: column-subset requests are almost always served from
// one canonical full load.
func (c *tableCache) subsetFromFullLocked(sheet string, columns []string, fp Fingerprint) (*Table, bool) {
	full, ok := c.getLocked(cacheKey(sheet, nil), fp)
	if !ok {
		return nil, false
	}
	subset, missing := full.project(columns)
	if missing != "" {
		// Requested column is absent from the full table; fall through to
		// ingestion, which reports the proper error.
		return nil, false
	}
	c.putLocked(cacheKey(sheet, columns), subset, fp)
	return subset, true
}

// put inserts or replaces an entry, evicting the least-recently-used entry
// beyond the configured bound.
func (c *tableCache) put(key string, table *Table, fp Fingerprint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.putLocked(key, table, fp)
}

func (c *tableCache) putLocked(key string, table *Table, fp Fingerprint) {
	// An entry without a fingerprint can never be validated against the file
	if fp.IsZero() {
		return
	}
	if elem, ok := c.entries[key]; ok {
		c.removeLocked(elem)
	}

	entry := &cacheEntry{key: key, table: table, fp: fp, bytes: table.byteSize()}
	c.entries[key] = c.order.PushBack(entry)

	for len(c.entries) > c.maxEntries {
		oldest := c.order.Front()
		if oldest == nil {
			break
		}
		evicted := oldest.Value.(*cacheEntry)
		c.removeLocked(oldest)
		c.logger.Debug().
			Str("key", evicted.key).
			Str("size", humanize.Bytes(uint64(evicted.bytes))).
			Msg("cache entry evicted")
	}
}

func (c *tableCache) removeLocked(elem *list.Element) {
	entry := elem.Value.(*cacheEntry)
	delete(c.entries, entry.key)
	c.order.Remove(elem)
}

// invalidateAll clears all entries and resets hit/miss counters.
func (c *tableCache) invalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*list.Element)
	c.order.Init()
	c.hits = 0
	c.misses = 0
	c.logger.Debug().Msg("cache invalidated")
}

// stats returns a snapshot of cache effectiveness.
func (c *tableCache) stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	var bytes int64
	for elem := c.order.Front(); elem != nil; elem = elem.Next() {
		bytes += elem.Value.(*cacheEntry).bytes
	}

	total := c.hits + c.misses
	rate := 0.0
	if total > 0 {
		rate = float64(c.hits) / float64(total)
	}
	return CacheStats{
		Hits:        c.hits,
		Misses:      c.misses,
		HitRate:     rate,
		EntryCount:  len(c.entries),
		MemoryBytes: bytes,
	}
}
