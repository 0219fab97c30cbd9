package dataagent

import (
	"errors"
	"testing"
	"time"
)

func testTable(t *testing.T) *Table {
	t.Helper()
	return newTable("orders", newHeader([]string{"id", "region", "amount", "when"}), []Record{
		{"1", "west", "100", "2024-01-01"},
		{"2", "east", "250.5", "2024-01-02"},
		{"3", "west", "", "2024-01-03"},
	})
}

func TestNewTable_Inference(t *testing.T) {
	t.Parallel()

	tbl := testTable(t)
	if tbl.RowCount() != 3 {
		t.Fatalf("expected 3 rows, got %d", tbl.RowCount())
	}
	if tbl.ColumnCount() != 4 {
		t.Fatalf("expected 4 columns, got %d", tbl.ColumnCount())
	}

	types := tbl.ColumnTypes()
	if types["id"] != ColumnTypeNumber {
		t.Errorf("id should be number, got %v", types["id"])
	}
	if types["region"] != ColumnTypeString {
		t.Errorf("region should be string, got %v", types["region"])
	}
	if types["amount"] != ColumnTypeNumber {
		t.Errorf("amount should be number, got %v", types["amount"])
	}
	if types["when"] != ColumnTypeDatetime {
		t.Errorf("when should be datetime, got %v", types["when"])
	}

	if v := tbl.column("amount").Values[2]; v != nil {
		t.Errorf("empty cell should be nil, got %v", v)
	}
}

func TestTable_Project(t *testing.T) {
	t.Parallel()

	tbl := testTable(t)

	sub, missing := tbl.project([]string{"amount", "region"})
	if missing != "" {
		t.Fatalf("unexpected missing column %q", missing)
	}
	got := sub.ColumnNames()
	if len(got) != 2 || got[0] != "amount" || got[1] != "region" {
		t.Errorf("projection order not preserved: %v", got)
	}
	if sub.RowCount() != tbl.RowCount() {
		t.Errorf("projection changed row count: %d", sub.RowCount())
	}

	if _, missing := tbl.project([]string{"region", "nope"}); missing != "nope" {
		t.Errorf("expected missing column nope, got %q", missing)
	}
}

func TestTable_CloneIsIndependent(t *testing.T) {
	t.Parallel()

	tbl := testTable(t)
	clone := tbl.Clone()
	clone.cols[0].Values[0] = 99.0

	if tbl.cols[0].Values[0] != 1.0 {
		t.Errorf("mutating a clone leaked into the original: %v", tbl.cols[0].Values[0])
	}
}

func TestTable_SelectRows(t *testing.T) {
	t.Parallel()

	tbl := testTable(t)
	sub := tbl.selectRows([]int{2, 0})
	if sub.RowCount() != 2 {
		t.Fatalf("expected 2 rows, got %d", sub.RowCount())
	}
	if sub.column("id").Values[0] != 3.0 || sub.column("id").Values[1] != 1.0 {
		t.Errorf("row order not preserved: %v", sub.column("id").Values)
	}
}

func TestTable_RowsSerialization(t *testing.T) {
	t.Parallel()

	tbl := testTable(t)
	rows := tbl.Rows()
	if len(rows) != 4 {
		t.Fatalf("expected header plus 3 rows, got %d", len(rows))
	}
	if rows[0][0] != "id" || rows[0][3] != "when" {
		t.Errorf("header row wrong: %v", rows[0])
	}

	when, ok := rows[1][3].(string)
	if !ok {
		t.Fatalf("datetime should serialize to string, got %T", rows[1][3])
	}
	if _, err := time.Parse(time.RFC3339, when); err != nil {
		t.Errorf("datetime not RFC3339: %q", when)
	}
	if rows[3][2] != nil {
		t.Errorf("null cell should stay null, got %v", rows[3][2])
	}
}

func TestConcatTables(t *testing.T) {
	t.Parallel()

	a := newTable("t", newHeader([]string{"x"}), []Record{{"1"}, {"2"}})
	b := newTable("t", newHeader([]string{"x"}), []Record{{"3"}})

	got, err := concatTables([]*Table{a, b})
	if err != nil {
		t.Fatal(err)
	}
	if got.RowCount() != 3 {
		t.Errorf("expected 3 rows, got %d", got.RowCount())
	}
	// Source parts must stay untouched.
	if a.RowCount() != 2 {
		t.Errorf("concat mutated its input: %d rows", a.RowCount())
	}

	mismatched := newTable("t", newHeader([]string{"x", "y"}), []Record{{"1", "2"}})
	if _, err := concatTables([]*Table{a, mismatched}); err == nil {
		t.Error("expected error for mismatched columns")
	}

	renamed := newTable("t", newHeader([]string{"z"}), []Record{{"9"}})
	if _, err := concatTables([]*Table{a, renamed}); err == nil {
		t.Error("expected error for mismatched column names")
	}

	if _, err := concatTables(nil); !errors.Is(err, ErrEmptyData) {
		t.Errorf("expected ErrEmptyData, got %v", err)
	}
}

func TestTableFromFilePath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		path     string
		expected string
	}{
		{path: "/data/sales.csv", expected: "sales"},
		{path: "sales.csv.gz", expected: "sales"},
		{path: "report.xlsx", expected: "report"},
		{path: "/tmp/metrics.parquet", expected: "metrics"},
	}

	for _, tt := range tests {
		if got := tableFromFilePath(tt.path); got != tt.expected {
			t.Errorf("tableFromFilePath(%q) = %q, want %q", tt.path, got, tt.expected)
		}
	}
}

func TestValidateColumnNames(t *testing.T) {
	t.Parallel()

	if err := validateColumnNames([]string{"a", "b"}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := validateColumnNames([]string{"a", "a"}); err == nil {
		t.Error("expected duplicate column error")
	}
}
