package dataagent

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/apache/arrow/go/v18/arrow"
	"github.com/apache/arrow/go/v18/arrow/array"
	"github.com/apache/arrow/go/v18/arrow/memory"
	pqfile "github.com/apache/arrow/go/v18/parquet/file"
	"github.com/apache/arrow/go/v18/parquet/pqarrow"
	"github.com/xuri/excelize/v2"
)

// ingestor loads one source file into Table form. It is pure with respect
// to caching: every load hits the file, and the caller decides what to
// retain.
type ingestor struct {
	file  *file
	sheet string
}

// newIngestor creates an ingestor for a path and optional sheet selector.
// The sheet selector only applies to XLSX sources; other formats ignore it.
func newIngestor(path, sheet string) *ingestor {
	return &ingestor{file: newFile(path), sheet: sheet}
}

func (in *ingestor) fail(reason string, cause error) error {
	return newIngestionError(in.file.getPath(), in.sheet, reason, cause)
}

// loadFull reads the entire source, optionally restricted to columns.
func (in *ingestor) loadFull(columns []string) (*Table, error) {
	return in.loadRange(0, -1, columns)
}

// loadHead reads the first n rows without materializing the full table
// where the format allows streaming.
func (in *ingestor) loadHead(n int, columns []string) (*Table, error) {
	if n < 0 {
		n = 0
	}
	return in.loadRange(0, n, columns)
}

// loadTail reads the last n rows. Tail needs the total row count first,
// which uses the row-count fast path rather than a full column load.
func (in *ingestor) loadTail(n int, columns []string) (*Table, error) {
	total, err := in.rowCount()
	if err != nil {
		return nil, err
	}
	offset := total - n
	if offset < 0 {
		offset = 0
	}
	return in.loadRange(offset, n, columns)
}

// loadRange reads up to limit rows starting at row offset (0-based, header
// excluded). limit < 0 means all remaining rows.
func (in *ingestor) loadRange(offset, limit int, columns []string) (*Table, error) {
	switch in.file.getFileType().baseType() {
	case FileTypeCSV, FileTypeTSV:
		return in.scanDelimited(offset, limit, columns)
	case FileTypeXLSX:
		return in.scanXLSX(offset, limit, columns)
	case FileTypeParquet:
		return in.loadParquet(offset, limit, columns)
	default:
		return nil, in.fail("unsupported extension", ErrUnsupportedFormat)
	}
}

// rowCount returns the total data row count using the cheapest method for
// the format, without loading column data.
func (in *ingestor) rowCount() (int, error) {
	switch {
	case in.file.isDelimited():
		return in.countDelimitedRows()
	case in.file.isXLSX():
		return in.countXLSXRows()
	case in.file.isParquet():
		pq, err := in.openParquet()
		if err != nil {
			return 0, err
		}
		defer pq.Close()
		return int(pq.NumRows()), nil
	default:
		return 0, in.fail("unsupported extension", ErrUnsupportedFormat)
	}
}

// sheetNames lists sub-tables of the source. Only XLSX sources have sheets.
func (in *ingestor) sheetNames() ([]string, error) {
	if !in.file.isXLSX() {
		return nil, nil
	}
	xf, err := in.openXLSX()
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = xf.Close() // Ignore close error
	}()
	return xf.GetSheetList(), nil
}

// selectIndices resolves a column subset against a header, preserving the
// requested order. Unknown columns are an ingestion error.
func (in *ingestor) selectIndices(head header, columns []string) ([]int, header, error) {
	if columns == nil {
		idx := make([]int, len(head))
		for i := range head {
			idx[i] = i
		}
		return idx, head, nil
	}

	byName := make(map[string]int, len(head))
	for i, name := range head {
		byName[name] = i
	}

	idx := make([]int, 0, len(columns))
	sub := make(header, 0, len(columns))
	for _, name := range columns {
		i, ok := byName[name]
		if !ok {
			return nil, nil, in.fail(fmt.Sprintf("column %q not found", name), ErrUnknownColumn)
		}
		idx = append(idx, i)
		sub = append(sub, name)
	}
	return idx, sub, nil
}

// scanDelimited streams a CSV/TSV file, honoring offset/limit so head reads
// stop early instead of reading the whole file.
func (in *ingestor) scanDelimited(offset, limit int, columns []string) (*Table, error) {
	reader, closer, err := in.file.openReader()
	if err != nil {
		return nil, in.wrapOpenError(err)
	}
	defer func() {
		_ = closer() // Ignore close error
	}()

	csvReader := csv.NewReader(reader)
	csvReader.Comma = in.file.delimiter()
	csvReader.FieldsPerRecord = -1

	headRow, err := csvReader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, in.fail("empty file", ErrEmptyData)
		}
		return nil, in.fail("malformed header", err)
	}
	if err := validateColumnNames(headRow); err != nil {
		return nil, in.fail("invalid header", err)
	}

	head := newHeader(headRow)
	idx, subHead, err := in.selectIndices(head, columns)
	if err != nil {
		return nil, err
	}

	var records []Record
	row := 0
	for {
		raw, err := csvReader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, in.fail("malformed record", err)
		}
		if row < offset {
			row++
			continue
		}
		if limit >= 0 && len(records) >= limit {
			break
		}
		records = append(records, selectFields(raw, idx))
		row++
	}

	return newTable(tableFromFilePath(in.file.getPath()), subHead, records), nil
}

// countDelimitedRows counts data rows without keeping any of them.
func (in *ingestor) countDelimitedRows() (int, error) {
	reader, closer, err := in.file.openReader()
	if err != nil {
		return 0, in.wrapOpenError(err)
	}
	defer func() {
		_ = closer() // Ignore close error
	}()

	csvReader := csv.NewReader(reader)
	csvReader.Comma = in.file.delimiter()
	csvReader.FieldsPerRecord = -1
	csvReader.ReuseRecord = true

	count := -1 // Header does not count
	for {
		if _, err := csvReader.Read(); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return 0, in.fail("malformed record", err)
		}
		count++
	}
	if count < 0 {
		return 0, in.fail("empty file", ErrEmptyData)
	}
	return count, nil
}

// openXLSX opens the workbook, mapping open failures to ingestion errors.
func (in *ingestor) openXLSX() (*excelize.File, error) {
	xf, err := excelize.OpenFile(in.file.getPath())
	if err != nil {
		return nil, in.wrapOpenError(err)
	}
	return xf, nil
}

// resolveSheet picks the requested sheet, or the first one when no selector
// was given.
func (in *ingestor) resolveSheet(xf *excelize.File) (string, error) {
	sheets := xf.GetSheetList()
	if len(sheets) == 0 {
		return "", in.fail("no sheets in workbook", ErrEmptyData)
	}
	if in.sheet == "" {
		return sheets[0], nil
	}
	for _, name := range sheets {
		if name == in.sheet {
			return name, nil
		}
	}
	return "", in.fail(fmt.Sprintf("sheet %q not found", in.sheet), ErrUnknownSheet)
}

// scanXLSX streams the selected sheet through the excelize row iterator so
// head reads do not materialize the whole sheet.
func (in *ingestor) scanXLSX(offset, limit int, columns []string) (*Table, error) {
	xf, err := in.openXLSX()
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = xf.Close() // Ignore close error
	}()

	sheetName, err := in.resolveSheet(xf)
	if err != nil {
		return nil, err
	}

	iter, err := xf.Rows(sheetName)
	if err != nil {
		return nil, in.fail(fmt.Sprintf("cannot iterate sheet %q", sheetName), err)
	}
	defer func() {
		_ = iter.Close() // Ignore close error
	}()

	var (
		head    header
		idx     []int
		subHead header
		records []Record
		first   = true
		row     = 0
	)

	for iter.Next() {
		raw, err := iter.Columns()
		if err != nil {
			return nil, in.fail(fmt.Sprintf("cannot read sheet %q", sheetName), err)
		}
		if first {
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
			first = false
			continue
		}
		if row < offset {
			row++
			continue
		}
		if limit >= 0 && len(records) >= limit {
			break
		}
		records = append(records, selectFields(padRow(raw, len(head)), idx))
		row++
	}

	if first {
		return nil, in.fail(fmt.Sprintf("sheet %q is empty", sheetName), ErrEmptyData)
	}

	return newTable(tableFromFilePath(in.file.getPath()), subHead, records), nil
}

// countXLSXRows counts data rows by walking the iterator without reading
// cell values.
func (in *ingestor) countXLSXRows() (int, error) {
	xf, err := in.openXLSX()
	if err != nil {
		return 0, err
	}
	defer func() {
		_ = xf.Close() // Ignore close error
	}()

	sheetName, err := in.resolveSheet(xf)
	if err != nil {
		return 0, err
	}

	iter, err := xf.Rows(sheetName)
	if err != nil {
		return 0, in.fail(fmt.Sprintf("cannot iterate sheet %q", sheetName), err)
	}
	defer func() {
		_ = iter.Close() // Ignore close error
	}()

	seenHeader := false
	count := 0
	for iter.Next() {
		if !seenHeader {
			raw, err := iter.Columns()
			if err != nil {
				return 0, in.fail(fmt.Sprintf("cannot read sheet %q", sheetName), err)
			}
			// Skip leading empty rows before the header, like scanXLSX does
			if len(raw) == 0 {
				continue
			}
			seenHeader = true
			continue
		}
		count++
	}
	if !seenHeader {
		return 0, in.fail(fmt.Sprintf("sheet %q is empty", sheetName), ErrEmptyData)
	}
	return count, nil
}

// openParquet opens the parquet file for metadata or data access.
func (in *ingestor) openParquet() (*pqfile.Reader, error) {
	pq, err := pqfile.OpenParquetFile(in.file.getPath(), false)
	if err != nil {
		return nil, in.wrapOpenError(err)
	}
	return pq, nil
}

// loadParquet reads a parquet file through the arrow reader. Parquet needs
// random access, so offset/limit slice the decoded table.
func (in *ingestor) loadParquet(offset, limit int, columns []string) (*Table, error) {
	pq, err := in.openParquet()
	if err != nil {
		return nil, err
	}
	defer pq.Close()

	arrowReader, err := pqarrow.NewFileReader(pq, pqarrow.ArrowReadProperties{}, memory.DefaultAllocator)
	if err != nil {
		return nil, in.fail("cannot create arrow reader", err)
	}

	tbl, err := arrowReader.ReadTable(context.Background())
	if err != nil {
		return nil, in.fail("cannot read parquet table", err)
	}
	defer tbl.Release()

	schema := tbl.Schema()
	byName := make(map[string]int, schema.NumFields())
	for i := range schema.NumFields() {
		byName[schema.Field(i).Name] = i
	}

	fields := make([]int, 0)
	if columns == nil {
		for i := range schema.NumFields() {
			fields = append(fields, i)
		}
	} else {
		for _, name := range columns {
			i, ok := byName[name]
			if !ok {
				return nil, in.fail(fmt.Sprintf("column %q not found", name), ErrUnknownColumn)
			}
			fields = append(fields, i)
		}
	}

	total := int(tbl.NumRows())
	if offset > total {
		offset = total
	}
	end := total
	if limit >= 0 && offset+limit < total {
		end = offset + limit
	}

	cols := make([]Column, 0, len(fields))
	for _, fi := range fields {
		field := schema.Field(fi)
		values := make([]Value, 0, end-offset)
		row := 0
		for _, chunk := range tbl.Column(fi).Data().Chunks() {
			for i := 0; i < chunk.Len(); i++ {
				if row >= offset && row < end {
					values = append(values, extractArrowValue(chunk, i))
				}
				row++
			}
		}
		cols = append(cols, Column{
			Name:   field.Name,
			Type:   arrowColumnType(field.Type),
			Values: values,
		})
	}

	return newTableFromColumns(tableFromFilePath(in.file.getPath()), cols), nil
}

// wrapOpenError classifies open failures into the ingestion taxonomy.
func (in *ingestor) wrapOpenError(err error) error {
	if errors.Is(err, os.ErrNotExist) {
		return in.fail("file does not exist", ErrFileNotFound)
	}
	return in.fail("cannot open file", err)
}

// arrowColumnType maps an arrow field type onto the semantic column types.
func arrowColumnType(dt arrow.DataType) ColumnType {
	switch dt.ID() {
	case arrow.BOOL:
		return ColumnTypeBoolean
	case arrow.INT8, arrow.INT16, arrow.INT32, arrow.INT64,
		arrow.UINT8, arrow.UINT16, arrow.UINT32, arrow.UINT64,
		arrow.FLOAT32, arrow.FLOAT64:
		return ColumnTypeNumber
	case arrow.TIMESTAMP, arrow.DATE32, arrow.DATE64:
		return ColumnTypeDatetime
	default:
		return ColumnTypeString
	}
}

// extractArrowValue converts one arrow cell into a Value.
func extractArrowValue(arr arrow.Array, i int) Value {
	if arr.IsNull(i) {
		return nil
	}
	switch a := arr.(type) {
	case *array.Boolean:
		return a.Value(i)
	case *array.Int8:
		return float64(a.Value(i))
	case *array.Int16:
		return float64(a.Value(i))
	case *array.Int32:
		return float64(a.Value(i))
	case *array.Int64:
		return float64(a.Value(i))
	case *array.Uint8:
		return float64(a.Value(i))
	case *array.Uint16:
		return float64(a.Value(i))
	case *array.Uint32:
		return float64(a.Value(i))
	case *array.Uint64:
		return float64(a.Value(i))
	case *array.Float32:
		return float64(a.Value(i))
	case *array.Float64:
		return a.Value(i)
	case *array.String:
		return a.Value(i)
	case *array.LargeString:
		return a.Value(i)
	case *array.Timestamp:
		if ts, ok := a.DataType().(*arrow.TimestampType); ok {
			return a.Value(i).ToTime(ts.Unit)
		}
		return a.ValueStr(i)
	case *array.Date32:
		return a.Value(i).ToTime()
	case *array.Date64:
		return a.Value(i).ToTime()
	default:
		return arr.ValueStr(i)
	}
}

// selectFields picks fields from a raw row by index, padding short rows.
func selectFields(raw []string, idx []int) Record {
	out := make([]string, len(idx))
	for j, i := range idx {
		if i < len(raw) {
			out[j] = raw[i]
		}
	}
	return newRecord(out)
}

// padRow extends a row with empty fields up to width.
func padRow(raw []string, width int) []string {
	if len(raw) >= width {
		return raw
	}
	padded := make([]string, width)
	copy(padded, raw)
	return padded
}
