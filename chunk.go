package dataagent

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
	"golang.org/x/sync/errgroup"
)

// ChunkIterator yields row-bounded tables from a single source in order.
// It is forward-only: once consumed it cannot be rewound, and re-iteration
// requires a new ingestion call. The consumer controls backpressure by
// pulling one chunk at a time.
type ChunkIterator struct {
	fetch  func() (*Table, error)
	close  func() error
	chunk  *Table
	err    error
	closed bool
}

// Next advances to the next chunk. It returns false when the source is
// exhausted or an error occurred; check Err afterwards.
func (it *ChunkIterator) Next() bool {
	if it.closed || it.err != nil {
		return false
	}
	chunk, err := it.fetch()
	if err != nil {
		if !errors.Is(err, io.EOF) {
			it.err = err
		}
		it.chunk = nil
		return false
	}
	it.chunk = chunk
	return true
}

// Chunk returns the current chunk.
func (it *ChunkIterator) Chunk() *Table {
	return it.chunk
}

// Err returns the first error encountered while iterating.
func (it *ChunkIterator) Err() error {
	return it.err
}

// Close releases the underlying file handles. It is safe to call more
// than once.
func (it *ChunkIterator) Close() error {
	if it.closed {
		return nil
	}
	it.closed = true
	if it.close != nil {
		return it.close()
	}
	return nil
}

// loadChunked returns a lazy sequence of row-bounded tables.
func (in *ingestor) loadChunked(chunkSize int, columns []string) (*ChunkIterator, error) {
	if chunkSize < MinChunkSize {
		return nil, in.fail(fmt.Sprintf("invalid chunk size %d", chunkSize), nil)
	}

	switch in.file.getFileType().baseType() {
	case FileTypeCSV, FileTypeTSV:
		return in.chunkDelimited(chunkSize, columns)
	case FileTypeXLSX:
		return in.chunkXLSX(chunkSize, columns)
	case FileTypeParquet:
		return in.chunkParquet(chunkSize, columns)
	default:
		return nil, in.fail("unsupported extension", ErrUnsupportedFormat)
	}
}

// chunkDelimited streams a CSV/TSV file keeping the reader open between
// pulls.
func (in *ingestor) chunkDelimited(chunkSize int, columns []string) (*ChunkIterator, error) {
	reader, closer, err := in.file.openReader()
	if err != nil {
		return nil, in.wrapOpenError(err)
	}

	csvReader := csv.NewReader(reader)
	csvReader.Comma = in.file.delimiter()
	csvReader.FieldsPerRecord = -1

	headRow, err := csvReader.Read()
	if err != nil {
		_ = closer() // Ignore close error during error handling
		if errors.Is(err, io.EOF) {
			return nil, in.fail("empty file", ErrEmptyData)
		}
		return nil, in.fail("malformed header", err)
	}
	if err := validateColumnNames(headRow); err != nil {
		_ = closer() // Ignore close error during error handling
		return nil, in.fail("invalid header", err)
	}

	head := newHeader(headRow)
	idx, subHead, err := in.selectIndices(head, columns)
	if err != nil {
		_ = closer() // Ignore close error during error handling
		return nil, err
	}

	name := tableFromFilePath(in.file.getPath())
	fetch := func() (*Table, error) {
		records := make([]Record, 0, chunkSize)
		for len(records) < chunkSize {
			raw, err := csvReader.Read()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				return nil, in.fail("malformed record", err)
			}
			records = append(records, selectFields(raw, idx))
		}
		if len(records) == 0 {
			return nil, io.EOF
		}
		return newTable(name, subHead, records), nil
	}

	return &ChunkIterator{fetch: fetch, close: closer}, nil
}

// chunkXLSX streams the selected sheet keeping the row iterator open
// between pulls.
func (in *ingestor) chunkXLSX(chunkSize int, columns []string) (*ChunkIterator, error) {
	xf, err := in.openXLSX()
	if err != nil {
		return nil, err
	}

	closeAll := func(iter *excelize.Rows) func() error {
		return func() error {
			if iter != nil {
				_ = iter.Close() // Ignore close error in cleanup
			}
			return xf.Close()
		}
	}

	sheetName, err := in.resolveSheet(xf)
	if err != nil {
		_ = xf.Close() // Ignore close error during error handling
		return nil, err
	}

	iter, err := xf.Rows(sheetName)
	if err != nil {
		_ = xf.Close() // Ignore close error during error handling
		return nil, in.fail(fmt.Sprintf("cannot iterate sheet %q", sheetName), err)
	}

	var (
		head    header
		idx     []int
		subHead header
		started bool
	)
	name := tableFromFilePath(in.file.getPath())

	fetch := func() (*Table, error) {
		records := make([]Record, 0, chunkSize)
		for len(records) < chunkSize {
			if !iter.Next() {
				break
			}
			raw, err := iter.Columns()
			if err != nil {
				return nil, in.fail(fmt.Sprintf("cannot read sheet %q", sheetName), err)
			}
			if !started {
				// Skip leading empty rows before the header
				if len(raw) == 0 {
					continue
				}
				if err := validateColumnNames(raw); err != nil {
					return nil, in.fail("invalid header", err)
				}
				head = newHeader(raw)
				idx, subHead, err = in.selectIndices(head, columns)
				if err != nil {
					return nil, err
				}
				started = true
				continue
			}
			records = append(records, selectFields(padRow(raw, len(head)), idx))
		}
		if len(records) == 0 {
			if !started {
				return nil, in.fail(fmt.Sprintf("sheet %q is empty", sheetName), ErrEmptyData)
			}
			return nil, io.EOF
		}
		return newTable(name, subHead, records), nil
	}

	return &ChunkIterator{fetch: fetch, close: closeAll(iter)}, nil
}

// chunkParquet decodes the parquet table once (the format needs random
// access) and serves it back in row-bounded slices.
func (in *ingestor) chunkParquet(chunkSize int, columns []string) (*ChunkIterator, error) {
	full, err := in.loadParquet(0, -1, columns)
	if err != nil {
		return nil, err
	}

	offset := 0
	fetch := func() (*Table, error) {
		if offset >= full.RowCount() {
			return nil, io.EOF
		}
		end := offset + chunkSize
		if end > full.RowCount() {
			end = full.RowCount()
		}
		idx := make([]int, 0, end-offset)
		for r := offset; r < end; r++ {
			idx = append(idx, r)
		}
		offset = end
		return full.selectRows(idx), nil
	}

	return &ChunkIterator{fetch: fetch}, nil
}

// loadParallelChunks partitions the source into numChunks contiguous row
// ranges of at most chunkSize rows each and loads them concurrently with a
// bounded worker pool. Chunks come back indexed by position, so the result
// order matches row order regardless of completion order.
func (in *ingestor) loadParallelChunks(chunkSize, numChunks int, columns []string) ([]*Table, error) {
	if chunkSize < MinChunkSize {
		return nil, in.fail(fmt.Sprintf("invalid chunk size %d", chunkSize), nil)
	}
	if numChunks < 1 {
		return nil, in.fail(fmt.Sprintf("invalid chunk count %d", numChunks), nil)
	}

	workers := numChunks
	if workers > maxParallelWorkers {
		workers = maxParallelWorkers
	}

	results := make([]*Table, numChunks)
	g := new(errgroup.Group)
	g.SetLimit(workers)

	for i := range numChunks {
		g.Go(func() error {
			chunk, err := in.loadRange(i*chunkSize, chunkSize, columns)
			if err != nil {
				return err
			}
			results[i] = chunk
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Ranges past the end of the file come back empty; drop them. A file
	// with no data rows still yields one empty chunk carrying the header.
	chunks := make([]*Table, 0, numChunks)
	for _, chunk := range results {
		if chunk != nil && chunk.RowCount() > 0 {
			chunks = append(chunks, chunk)
		}
	}
	if len(chunks) == 0 && results[0] != nil {
		chunks = append(chunks, results[0])
	}
	return chunks, nil
}
