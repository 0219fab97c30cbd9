package dataagent

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Coordinator defaults.
const (
	// DefaultMaxReaders bounds the number of simultaneously retained readers.
	DefaultMaxReaders = 5
	// DefaultIdleTimeout marks a reader as idle for eviction ordering.
	DefaultIdleTimeout = 5 * time.Minute
	// DefaultEvictAfter drops a reader outright once it has been unused
	// this long.
	DefaultEvictAfter = 30 * time.Minute
)

// CoordinatorConfig configures a Coordinator. The zero value is usable.
type CoordinatorConfig struct {
	// MaxReaders bounds retained readers; least-recently-used readers are
	// evicted beyond it. Zero means DefaultMaxReaders.
	MaxReaders int
	// IdleTimeout is the age past which a reader counts as idle. Idle
	// readers are evicted before busy ones when the bound is exceeded.
	IdleTimeout time.Duration
	// EvictAfter is the age past which a reader is dropped regardless of
	// the reader bound.
	EvictAfter time.Duration
	// Cache configures the table cache of each reader this coordinator
	// creates.
	Cache CacheConfig
	// Logger receives debug events. Nil disables logging.
	Logger *zerolog.Logger
	// Metrics is passed through to every created reader.
	Metrics MetricCollector
}

type readerHandle struct {
	reader   *Reader
	lastUsed time.Time
}

// Coordinator hands out one Reader per file path, reusing live readers so
// their caches survive across calls. Paths are normalized to absolute form
// before lookup, so relative and absolute spellings of the same file share
// a reader. Safe for concurrent use.
type Coordinator struct {
	mu      sync.Mutex
	cfg     CoordinatorConfig
	logger  zerolog.Logger
	readers map[string]*readerHandle
	hits    uint64
	misses  uint64
}

// NewCoordinator creates a coordinator with the given configuration.
func NewCoordinator(cfg CoordinatorConfig) *Coordinator {
	if cfg.MaxReaders <= 0 {
		cfg.MaxReaders = DefaultMaxReaders
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.EvictAfter <= 0 {
		cfg.EvictAfter = DefaultEvictAfter
	}
	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}
	return &Coordinator{
		cfg:     cfg,
		logger:  logger,
		readers: make(map[string]*readerHandle),
	}
}

// Reader returns the live reader for a path, creating one on first use.
// Each call also opportunistically sweeps expired and surplus readers;
// there is no background goroutine to manage or leak.
func (c *Coordinator) Reader(path string) (*Reader, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if h, ok := c.readers[abs]; ok {
		h.lastUsed = now
		c.hits++
		c.sweepLocked(now)
		return h.reader, nil
	}

	reader, err := NewReader(abs, ReaderConfig{
		Cache:   c.cfg.Cache,
		Logger:  c.cfg.Logger,
		Metrics: c.cfg.Metrics,
	})
	if err != nil {
		return nil, err
	}
	c.misses++
	c.readers[abs] = &readerHandle{reader: reader, lastUsed: now}
	c.logger.Debug().Str("path", abs).Msg("reader created")
	c.sweepLocked(now)
	return reader, nil
}

// sweepLocked evicts readers unused past EvictAfter, then enforces the
// reader bound by dropping the least recently used, idle readers first.
// The reader touched by the current call has lastUsed == now and is never
// a candidate.
func (c *Coordinator) sweepLocked(now time.Time) {
	for path, h := range c.readers {
		if now.Sub(h.lastUsed) > c.cfg.EvictAfter {
			delete(c.readers, path)
			c.logger.Debug().Str("path", path).Msg("reader evicted after timeout")
		}
	}

	for len(c.readers) > c.cfg.MaxReaders {
		victim := ""
		var victimUsed time.Time
		victimIdle := false
		for path, h := range c.readers {
			idle := now.Sub(h.lastUsed) > c.cfg.IdleTimeout
			switch {
			case victim == "",
				idle && !victimIdle,
				idle == victimIdle && h.lastUsed.Before(victimUsed):
				victim = path
				victimUsed = h.lastUsed
				victimIdle = idle
			}
		}
		if victim == "" {
			return
		}
		delete(c.readers, victim)
		c.logger.Debug().Str("path", victim).Msg("reader evicted over limit")
	}
}

// Clear drops the reader for a path, discarding its caches. A missing
// path is a no-op.
func (c *Coordinator) Clear(path string) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.readers, abs)
}

// ClearAll drops every retained reader.
func (c *Coordinator) ClearAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.readers = make(map[string]*readerHandle)
}

// CoordinatorStats snapshots reader reuse plus the aggregated cache
// counters of every live reader.
type CoordinatorStats struct {
	Readers      uint64
	ReaderHits   uint64
	ReaderMisses uint64
	Cache        CacheStats
}

// Stats returns current coordinator and aggregated cache statistics.
func (c *Coordinator) Stats() CoordinatorStats {
	c.mu.Lock()
	handles := make([]*readerHandle, 0, len(c.readers))
	for _, h := range c.readers {
		handles = append(handles, h)
	}
	stats := CoordinatorStats{
		Readers:      uint64(len(c.readers)),
		ReaderHits:   c.hits,
		ReaderMisses: c.misses,
	}
	c.mu.Unlock()

	for _, h := range handles {
		cs := h.reader.CacheStats()
		stats.Cache.Hits += cs.Hits
		stats.Cache.Misses += cs.Misses
		stats.Cache.EntryCount += cs.EntryCount
		stats.Cache.MemoryBytes += cs.MemoryBytes
	}
	if total := stats.Cache.Hits + stats.Cache.Misses; total > 0 {
		stats.Cache.HitRate = float64(stats.Cache.Hits) / float64(total)
	}
	return stats
}

// PreloadMode selects how much of each file a preload touches.
type PreloadMode string

// Preload modes.
const (
	// PreloadMetadata reads sheet names, the row count, and a few preview
	// rows, then discards anything the warm-up cached.
	PreloadMetadata PreloadMode = "metadata"
	// PreloadFull loads the whole default sheet into the reader's cache.
	PreloadFull PreloadMode = "full"
)

// PreloadResult reports the outcome of preloading one file.
type PreloadResult struct {
	Path     string
	Mode     PreloadMode
	Sheets   []string
	Rows     int
	Duration time.Duration
	Err      error
}

// PreloadSummary reports a preload batch: one result per file plus the
// overall failure count.
type PreloadSummary struct {
	Files    []PreloadResult
	Failures int
}

// Preload warms readers for a batch of files. Metadata mode touches only
// sheet names, the row count, and a short preview, and clears the reader's
// cache afterwards so a truncated preview can never stand in for full
// data. Full mode loads each file's default sheet into the cache. One
// file's failure never aborts the batch; an unknown mode does.
func (c *Coordinator) Preload(paths []string, mode PreloadMode) (PreloadSummary, error) {
	if mode != PreloadMetadata && mode != PreloadFull {
		return PreloadSummary{}, fmt.Errorf("dataagent: unknown preload mode %q", mode)
	}
	summary := PreloadSummary{Files: make([]PreloadResult, 0, len(paths))}
	for _, path := range paths {
		start := time.Now()
		res := PreloadResult{Path: path, Mode: mode}
		res.Err = c.preloadOne(path, mode, &res)
		res.Duration = time.Since(start)
		if res.Err != nil {
			summary.Failures++
			c.logger.Warn().Str("path", path).Err(res.Err).Msg("preload failed")
		}
		summary.Files = append(summary.Files, res)
	}
	return summary, nil
}

func (c *Coordinator) preloadOne(path string, mode PreloadMode, res *PreloadResult) error {
	r, err := c.Reader(path)
	if err != nil {
		return err
	}

	switch mode {
	case PreloadFull:
		t, err := r.Read("", nil)
		if err != nil {
			return err
		}
		sheets, err := r.SheetNames()
		if err != nil {
			return err
		}
		res.Sheets = sheets
		res.Rows = t.RowCount()
		return nil
	case PreloadMetadata:
		sheets, err := r.SheetNames()
		if err != nil {
			return err
		}
		rows, err := r.RowCount("")
		if err != nil {
			return err
		}
		if _, err := r.ReadHead("", previewRows, nil); err != nil {
			return err
		}
		r.ClearCache()
		res.Sheets = sheets
		res.Rows = rows
		return nil
	default:
		return fmt.Errorf("dataagent: unknown preload mode %q", mode)
	}
}
