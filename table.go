package dataagent

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// Column is a named, typed sequence of values. Every value matches the
// column's declared type or is nil.
type Column struct {
	Name   string
	Type   ColumnType
	Values []Value
}

// Table is an in-memory columnar dataset. All columns have equal length.
// Column order is significant for display but not for identity.
type Table struct {
	name   string
	cols   []Column
	byName map[string]int
}

// newTable builds a typed table from a raw header and string records,
// inferring one semantic type per column.
func newTable(name string, header header, records []Record) *Table {
	types := inferColumnTypes(header, records)

	cols := make([]Column, len(header))
	for i, colName := range header {
		values := make([]Value, len(records))
		for r, record := range records {
			if i < len(record) {
				values[r] = convertValue(record[i], types[i])
			}
		}
		cols[i] = Column{Name: colName, Type: types[i], Values: values}
	}
	return newTableFromColumns(name, cols)
}

// newTableFromColumns builds a table from already-typed columns.
func newTableFromColumns(name string, cols []Column) *Table {
	byName := make(map[string]int, len(cols))
	for i, c := range cols {
		byName[c.Name] = i
	}
	return &Table{name: name, cols: cols, byName: byName}
}

// Name returns the table name derived from the source file path.
func (t *Table) Name() string {
	return t.name
}

// RowCount returns the number of rows.
func (t *Table) RowCount() int {
	if len(t.cols) == 0 {
		return 0
	}
	return len(t.cols[0].Values)
}

// ColumnCount returns the number of columns.
func (t *Table) ColumnCount() int {
	return len(t.cols)
}

// ColumnNames returns the column names in display order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.cols))
	for i, c := range t.cols {
		names[i] = c.Name
	}
	return names
}

// ColumnTypes returns the semantic type of each column keyed by name.
func (t *Table) ColumnTypes() map[string]ColumnType {
	types := make(map[string]ColumnType, len(t.cols))
	for _, c := range t.cols {
		types[c.Name] = c.Type
	}
	return types
}

// columnIndex returns the position of a named column.
func (t *Table) columnIndex(name string) (int, bool) {
	i, ok := t.byName[name]
	return i, ok
}

// column returns the named column, or nil if absent.
func (t *Table) column(name string) *Column {
	if i, ok := t.byName[name]; ok {
		return &t.cols[i]
	}
	return nil
}

// project returns a new table restricted to the named columns, in the
// requested order. The second return value names the first unknown column,
// if any; callers wrap it into the error type of their layer.
func (t *Table) project(names []string) (*Table, string) {
	cols := make([]Column, 0, len(names))
	for _, name := range names {
		i, ok := t.byName[name]
		if !ok {
			return nil, name
		}
		cols = append(cols, t.cols[i])
	}
	return newTableFromColumns(t.name, cols), ""
}

// Clone returns an independent copy of the table. Cache entries are handed
// to callers only through Clone so a retained entry is never aliased.
func (t *Table) Clone() *Table {
	cols := make([]Column, len(t.cols))
	for i, c := range t.cols {
		values := make([]Value, len(c.Values))
		copy(values, c.Values)
		cols[i] = Column{Name: c.Name, Type: c.Type, Values: values}
	}
	return newTableFromColumns(t.name, cols)
}

// selectRows returns a new table keeping only the rows whose index appears
// in idx, in idx order.
func (t *Table) selectRows(idx []int) *Table {
	cols := make([]Column, len(t.cols))
	for i, c := range t.cols {
		values := make([]Value, len(idx))
		for j, r := range idx {
			values[j] = c.Values[r]
		}
		cols[i] = Column{Name: c.Name, Type: c.Type, Values: values}
	}
	return newTableFromColumns(t.name, cols)
}

// row returns one row as a value slice.
func (t *Table) row(r int) []Value {
	row := make([]Value, len(t.cols))
	for i, c := range t.cols {
		row[i] = c.Values[r]
	}
	return row
}

// Rows returns the table in row-major form: the header as the first row,
// then one slice per data row. Datetimes are emitted as ISO-8601 strings so
// output is composed only of string, number, boolean, and null values.
func (t *Table) Rows() [][]Value {
	rows := make([][]Value, 0, t.RowCount()+1)

	head := make([]Value, len(t.cols))
	for i, c := range t.cols {
		head[i] = c.Name
	}
	rows = append(rows, head)

	for r := range t.RowCount() {
		row := make([]Value, len(t.cols))
		for i, c := range t.cols {
			row[i] = serializeValue(c.Values[r])
		}
		rows = append(rows, row)
	}
	return rows
}

// serializeValue maps a cell value onto the caller-visible encoding.
func serializeValue(v Value) Value {
	if ts, ok := v.(time.Time); ok {
		return ts.Format(time.RFC3339)
	}
	return v
}

// byteSize estimates the memory held by the table, for cache accounting.
func (t *Table) byteSize() int64 {
	var size int64
	for _, c := range t.cols {
		size += int64(len(c.Name))
		for _, v := range c.Values {
			switch val := v.(type) {
			case string:
				size += int64(len(val)) + 16
			case nil:
				size += 8
			default:
				size += 24
			}
		}
	}
	return size
}

// concatTables appends tables with identical headers in order. Used to
// reassemble parallel chunk loads.
func concatTables(parts []*Table) (*Table, error) {
	var base *Table
	for _, p := range parts {
		if p == nil {
			continue
		}
		if base == nil {
			base = p.Clone()
			continue
		}
		if p.RowCount() == 0 {
			continue
		}
		if !newHeader(p.ColumnNames()).equal(newHeader(base.ColumnNames())) {
			return nil, fmt.Errorf("dataagent: mismatched chunk columns: %v != %v", p.ColumnNames(), base.ColumnNames())
		}
		for i := range base.cols {
			base.cols[i].Values = append(base.cols[i].Values, p.cols[i].Values...)
		}
	}
	if base == nil {
		return nil, ErrEmptyData
	}
	return base, nil
}

// tableFromFilePath creates table name from file path
func tableFromFilePath(filePath string) string {
	fileName := filepath.Base(filePath)
	// Remove compression extensions first
	for _, ext := range []string{extGZ, extBZ2, extXZ, extZSTD} {
		if strings.HasSuffix(fileName, ext) {
			fileName = strings.TrimSuffix(fileName, ext)
			break
		}
	}
	// Then remove the file type extension
	return strings.TrimSuffix(fileName, filepath.Ext(fileName))
}
