package dataagent

import (
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
)

// rowCountCacheSize bounds the per-reader row count cache. One entry per
// sheet is plenty; the bound only matters for workbooks with many sheets.
const rowCountCacheSize = 16

// ReaderConfig configures a Reader. The zero value is usable.
type ReaderConfig struct {
	Cache CacheConfig
	// Logger receives debug events. Nil disables logging.
	Logger *zerolog.Logger
	// Metrics receives one record per data operation. Nil disables metrics.
	Metrics MetricCollector
}

// Reader serves read and query operations for a single file, caching full
// and column-subset loads between calls. Safe for concurrent use; loads
// for the same file may run concurrently and the cache deduplicates their
// results by key.
type Reader struct {
	path    string
	logger  zerolog.Logger
	metrics MetricCollector
	cache   *tableCache

	rowCounts *lru.Cache[string, rowCountEntry]
	ingests   atomic.Int64
}

type rowCountEntry struct {
	count int
	fp    Fingerprint
}

// NewReader creates a reader for the given file path. The path's extension
// must name a supported format; the file itself is not opened until the
// first operation.
func NewReader(path string, cfg ReaderConfig) (*Reader, error) {
	if !isSupportedFile(path) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}

	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = cfg.Logger.With().Str("path", path).Logger()
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = nopCollector{}
	}

	rowCounts, err := lru.New[string, rowCountEntry](rowCountCacheSize)
	if err != nil {
		return nil, err
	}

	return &Reader{
		path:      path,
		logger:    logger,
		metrics:   metrics,
		cache:     newTableCache(cfg.Cache, logger),
		rowCounts: rowCounts,
	}, nil
}

// Path returns the file path this reader serves.
func (r *Reader) Path() string {
	return r.path
}

// Read loads the full table, or the named column subset, for a sheet.
// Results come from the cache when the file has not changed since the
// entry was stored.
func (r *Reader) Read(sheet string, columns []string) (*Table, error) {
	start := time.Now()
	t, hit, err := r.load(sheet, columns)
	if err != nil {
		return nil, err
	}
	r.observe("read", start, t.RowCount(), t.RowCount(), hit)
	return t, nil
}

// Query runs a validated filter/group/aggregate/order/limit pipeline over
// a sheet. The load goes through the cache; the pipeline itself never
// mutates cached data.
func (r *Reader) Query(sheet string, q *QueryDescriptor) (*Table, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	start := time.Now()
	t, hit, err := r.load(sheet, q.Columns)
	if err != nil {
		return nil, err
	}
	in := t.RowCount()
	out, err := q.run(t)
	if err != nil {
		return nil, err
	}
	r.observe("query", start, in, out.RowCount(), hit)
	return out, nil
}

// ReadHead loads the first n rows. Truncated loads never populate the
// cache: a head result stored under the full-table key would silently
// shrink every later full read.
func (r *Reader) ReadHead(sheet string, n int, columns []string) (*Table, error) {
	if n <= 0 {
		n = previewRows
	}
	start := time.Now()
	t, err := newIngestor(r.path, sheet).loadHead(n, columns)
	if err != nil {
		return nil, err
	}
	r.ingests.Add(1)
	r.observe("read_head", start, t.RowCount(), t.RowCount(), false)
	return t, nil
}

// ReadTail loads the last n rows. Like ReadHead, the result is never
// cached.
func (r *Reader) ReadTail(sheet string, n int, columns []string) (*Table, error) {
	if n <= 0 {
		n = previewRows
	}
	start := time.Now()
	t, err := newIngestor(r.path, sheet).loadTail(n, columns)
	if err != nil {
		return nil, err
	}
	r.ingests.Add(1)
	r.observe("read_tail", start, t.RowCount(), t.RowCount(), false)
	return t, nil
}

// ReadChunked returns a forward-only iterator over fixed-size row chunks.
// Chunked reads stream from the file and bypass the cache entirely.
func (r *Reader) ReadChunked(sheet string, chunkSize ChunkSize, columns []string) (*ChunkIterator, error) {
	if !chunkSize.IsValid() {
		chunkSize = NewChunkSize(0)
	}
	it, err := newIngestor(r.path, sheet).loadChunked(chunkSize.Int(), columns)
	if err != nil {
		return nil, err
	}
	r.ingests.Add(1)
	return it, nil
}

// ReadParallel splits the file into numChunks ranges, loads them on a
// bounded worker pool, and concatenates the parts in order. The result
// covers the whole file, so it does populate the cache.
func (r *Reader) ReadParallel(sheet string, numChunks int, columns []string) (*Table, error) {
	if numChunks <= 0 {
		numChunks = maxParallelWorkers
	}
	start := time.Now()

	fp, err := r.fingerprint()
	if err != nil {
		return nil, err
	}
	if t, ok := r.cache.lookup(sheet, columns, fp); ok {
		r.observe("read_parallel", start, t.RowCount(), t.RowCount(), true)
		return t, nil
	}

	in := newIngestor(r.path, sheet)
	total, err := in.rowCount()
	if err != nil {
		return nil, err
	}
	chunkSize := (total + numChunks - 1) / numChunks
	if chunkSize < MinChunkSize {
		chunkSize = MinChunkSize
	}
	parts, err := in.loadParallelChunks(chunkSize, numChunks, columns)
	if err != nil {
		return nil, err
	}
	t, err := concatTables(parts)
	if err != nil {
		return nil, err
	}
	r.ingests.Add(1)
	r.cache.put(cacheKey(sheet, columns), t, fp)
	r.observe("read_parallel", start, t.RowCount(), t.RowCount(), false)
	return t.Clone(), nil
}

// RowCount returns the number of data rows without materializing cell
// values, using format-specific fast paths. Counts are cached per sheet
// and invalidated by fingerprint like table entries.
func (r *Reader) RowCount(sheet string) (int, error) {
	fp, err := r.fingerprint()
	if err != nil {
		return 0, err
	}
	key := cacheKey(sheet, nil)
	if entry, ok := r.rowCounts.Get(key); ok && entry.fp.Equal(fp) {
		return entry.count, nil
	}
	count, err := newIngestor(r.path, sheet).rowCount()
	if err != nil {
		return 0, err
	}
	r.rowCounts.Add(key, rowCountEntry{count: count, fp: fp})
	return count, nil
}

// SheetNames lists the sheets of an XLSX workbook in file order. Non-XLSX
// formats return nil.
func (r *Reader) SheetNames() ([]string, error) {
	return newIngestor(r.path, "").sheetNames()
}

// ColumnStats summarizes one column of a file for Info. Numeric columns
// report min, max, and mean over the sampled rows; other columns report a
// distinct count and a few example values.
type ColumnStats struct {
	Name     string
	Type     string
	Min      *float64
	Max      *float64
	Mean     *float64
	Distinct int
	Examples []string
}

// Info is a schema and content summary of one sheet.
type Info struct {
	Path      string
	Name      string
	SizeBytes int64
	Size      string
	Sheets    []string
	Rows      int
	Columns   []ColumnStats
	// Sample holds the header row followed by the first preview rows, in
	// serialized form.
	Sample [][]Value
}

// Info summarizes a sheet: file size, sheet list, total rows, per-column
// type and statistics, and a small sample. Statistics are computed over at
// most sampleStatRows leading rows, so they are approximate for large
// files. The summary read is truncated and never populates the cache.
func (r *Reader) Info(sheet string, sampleRows int) (*Info, error) {
	if sampleRows <= 0 {
		sampleRows = previewRows
	}

	st, err := os.Stat(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, r.path)
		}
		return nil, err
	}

	sheets, err := r.SheetNames()
	if err != nil {
		return nil, err
	}
	rows, err := r.RowCount(sheet)
	if err != nil {
		return nil, err
	}

	statRows := sampleStatRows
	if sampleRows > statRows {
		statRows = sampleRows
	}
	head, err := newIngestor(r.path, sheet).loadHead(statRows, nil)
	if err != nil {
		return nil, err
	}
	r.ingests.Add(1)

	stats := make([]ColumnStats, 0, head.ColumnCount())
	for _, col := range head.cols {
		stats = append(stats, summarizeColumn(col))
	}

	sample := head.Rows()
	if len(sample) > sampleRows+1 {
		sample = sample[:sampleRows+1]
	}

	return &Info{
		Path:      r.path,
		Name:      tableFromFilePath(r.path),
		SizeBytes: st.Size(),
		Size:      humanize.Bytes(uint64(st.Size())),
		Sheets:    sheets,
		Rows:      rows,
		Columns:   stats,
		Sample:    sample,
	}, nil
}

// CacheStats returns a snapshot of this reader's cache counters.
func (r *Reader) CacheStats() CacheStats {
	return r.cache.stats()
}

// ClearCache drops every cached table and row count for this reader.
func (r *Reader) ClearCache() {
	r.cache.invalidateAll()
	r.rowCounts.Purge()
}

// IngestCount reports how many times this reader has read the underlying
// file. Tests use it to verify that cache hits avoid ingestion.
func (r *Reader) IngestCount() int64 {
	return r.ingests.Load()
}

// load serves a (sheet, columns) request, consulting the cache first. The
// returned table is always caller-owned.
func (r *Reader) load(sheet string, columns []string) (*Table, bool, error) {
	fp, err := r.fingerprint()
	if err != nil {
		return nil, false, err
	}
	if t, ok := r.cache.lookup(sheet, columns, fp); ok {
		return t, true, nil
	}
	t, err := newIngestor(r.path, sheet).loadFull(columns)
	if err != nil {
		return nil, false, err
	}
	r.ingests.Add(1)
	r.cache.put(cacheKey(sheet, columns), t, fp)
	return t.Clone(), false, nil
}

func (r *Reader) fingerprint() (Fingerprint, error) {
	fp, err := fingerprintOf(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Fingerprint{}, fmt.Errorf("%w: %s", ErrFileNotFound, r.path)
		}
		return Fingerprint{}, err
	}
	return fp, nil
}

func (r *Reader) observe(op string, start time.Time, in, out int, hit bool) {
	d := time.Since(start)
	r.metrics.Record(Metric{
		Operation:  op,
		InputRows:  in,
		OutputRows: out,
		Duration:   d,
		CacheHit:   hit,
	})
	r.logger.Debug().
		Str("op", op).
		Int("rows_in", in).
		Int("rows_out", out).
		Bool("cache_hit", hit).
		Dur("elapsed", d).
		Msg("operation complete")
}

// summarizeColumn builds the per-column statistics for Info.
func summarizeColumn(col Column) ColumnStats {
	cs := ColumnStats{Name: col.Name, Type: col.Type.String()}

	if col.Type == ColumnTypeNumber {
		var minV, maxV, sum float64
		n := 0
		for _, v := range col.Values {
			f, ok := toFloat(v)
			if v == nil || !ok {
				continue
			}
			if n == 0 || f < minV {
				minV = f
			}
			if n == 0 || f > maxV {
				maxV = f
			}
			sum += f
			n++
		}
		if n > 0 {
			mean := sum / float64(n)
			lo, hi := minV, maxV
			cs.Min, cs.Max, cs.Mean = &lo, &hi, &mean
		}
		return cs
	}

	const maxExamples = 3
	seen := make(map[string]bool)
	for _, v := range col.Values {
		if v == nil {
			continue
		}
		s := stringify(v)
		if !seen[s] {
			seen[s] = true
			if len(cs.Examples) < maxExamples {
				cs.Examples = append(cs.Examples, s)
			}
		}
	}
	cs.Distinct = len(seen)
	return cs
}
