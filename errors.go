package dataagent

import (
	"errors"
	"fmt"
)

// Standard sentinel errors. The typed errors below wrap these so callers can
// branch with errors.Is without parsing messages.
var (
	// errDuplicateColumnName is returned when a file contains duplicate column names
	errDuplicateColumnName = errors.New("duplicate column name")

	// ErrEmptyData indicates that the data source contains no records
	ErrEmptyData = errors.New("dataagent: empty data source")

	// ErrUnsupportedFormat indicates an unsupported file format
	ErrUnsupportedFormat = errors.New("dataagent: unsupported file format")

	// ErrFileNotFound indicates file not found
	ErrFileNotFound = errors.New("dataagent: file not found")

	// ErrUnknownSheet indicates a sheet selector that does not exist in the source
	ErrUnknownSheet = errors.New("dataagent: unknown sheet")

	// ErrUnknownColumn indicates a column name that does not exist in the source
	ErrUnknownColumn = errors.New("dataagent: unknown column")
)

// IngestionError reports a failure to load data from a source file:
// bad path, unreadable format, or unknown sheet/columns.
type IngestionError struct {
	Path   string
	Sheet  string
	Reason string
	Err    error
}

// Error implements the error interface.
func (e *IngestionError) Error() string {
	msg := fmt.Sprintf("dataagent: ingestion failed for %s", e.Path)
	if e.Sheet != "" {
		msg += fmt.Sprintf(" (sheet %q)", e.Sheet)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the wrapped cause.
func (e *IngestionError) Unwrap() error {
	return e.Err
}

func newIngestionError(path, sheet, reason string, err error) *IngestionError {
	return &IngestionError{Path: path, Sheet: sheet, Reason: reason, Err: err}
}

// QueryError reports an invalid query descriptor or a clause referencing
// data that does not exist. Clause names the part of the descriptor at
// fault ("usecols", "filter", "group_by", "aggregate", "order_by").
type QueryError struct {
	Column string
	Clause string
	Reason string
}

// Error implements the error interface.
func (e *QueryError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("dataagent: invalid query (%s): %s: column %q", e.Clause, e.Reason, e.Column)
	}
	return fmt.Sprintf("dataagent: invalid query (%s): %s", e.Clause, e.Reason)
}

func newQueryError(clause, column, reason string) *QueryError {
	return &QueryError{Clause: clause, Column: column, Reason: reason}
}

// CacheInconsistencyError reports an internal cache invariant violation.
// It should never surface under correct operation and is fatal if it does.
type CacheInconsistencyError struct {
	Key    string
	Reason string
}

// Error implements the error interface.
func (e *CacheInconsistencyError) Error() string {
	return fmt.Sprintf("dataagent: cache inconsistency for key %q: %s", e.Key, e.Reason)
}
