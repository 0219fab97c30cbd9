package dataagent

import (
	"fmt"
	"strconv"
	"strings"
)

// Processing constants (rows-based)
const (
	// DefaultRowsPerChunk is the default number of rows per chunk
	DefaultRowsPerChunk = 1000
	// MinChunkSize is the minimum allowed rows per chunk
	MinChunkSize = 1
	// maxParallelWorkers bounds the worker pool used by parallel chunk loads
	maxParallelWorkers = 4
	// previewRows is the number of rows read by metadata preloads
	previewRows = 5
	// sampleStatRows bounds the sample used for per-column statistics
	sampleStatRows = 100
)

// File format delimiters
const (
	// csvDelimiter is the delimiter for CSV files
	csvDelimiter = ','
	// tsvDelimiter is the delimiter for TSV files
	tsvDelimiter = '\t'
)

// Value is a single cell value. A Value is always one of string, float64,
// time.Time, bool, or nil; ingestion and the query engine never produce
// anything else, so results serialize without format-specific types
// leaking out.
type Value = any

// header is the ordered list of column names of a raw file.
type header []string

// newHeader create new header.
func newHeader(h []string) header {
	return header(h)
}

// equal compare header.
func (h header) equal(h2 header) bool {
	if len(h) != len(h2) {
		return false
	}
	for i, v := range h {
		if v != h2[i] {
			return false
		}
	}
	return true
}

// Record represents one raw file row as a slice of string fields.
type Record []string

// newRecord create new record.
func newRecord(r []string) Record {
	return Record(r)
}

// ColumnType is the semantic type of a column.
type ColumnType int

const (
	// ColumnTypeString represents free-form text columns
	ColumnTypeString ColumnType = iota
	// ColumnTypeNumber represents numeric columns (integers and floats)
	ColumnTypeNumber
	// ColumnTypeDatetime represents date/time columns
	ColumnTypeDatetime
	// ColumnTypeBoolean represents boolean columns
	ColumnTypeBoolean
)

// String returns the caller-visible type name.
func (ct ColumnType) String() string {
	switch ct {
	case ColumnTypeNumber:
		return "number"
	case ColumnTypeDatetime:
		return "datetime"
	case ColumnTypeBoolean:
		return "boolean"
	default:
		return "string"
	}
}

// validateColumnNames checks for duplicate column names and returns error if found.
// Column name comparison is case-sensitive.
func validateColumnNames(columns []string) error {
	columnsSeen := make(map[string]bool)
	for _, col := range columns {
		trimmedCol := strings.TrimSpace(col)
		if columnsSeen[trimmedCol] {
			return fmt.Errorf("%w: %s", errDuplicateColumnName, col)
		}
		columnsSeen[trimmedCol] = true
	}
	return nil
}

// ChunkSize represents a chunk size with validation
type ChunkSize int

// NewChunkSize creates a new ChunkSize with validation
func NewChunkSize(size int) ChunkSize {
	if size < MinChunkSize {
		return ChunkSize(DefaultRowsPerChunk)
	}
	return ChunkSize(size)
}

// Int returns the int value of ChunkSize
func (cs ChunkSize) Int() int {
	return int(cs)
}

// String returns the string representation of ChunkSize
func (cs ChunkSize) String() string {
	return strconv.Itoa(int(cs))
}

// IsValid checks if the chunk size is valid
func (cs ChunkSize) IsValid() bool {
	return int(cs) >= MinChunkSize
}
