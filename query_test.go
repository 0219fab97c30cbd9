package dataagent

import (
	"errors"
	"reflect"
	"testing"
)

func queryTable(t *testing.T) *Table {
	t.Helper()
	return newTable("sales", newHeader([]string{"region", "product", "amount", "sold_at"}), []Record{
		{"west", "widget", "100", "2024-01-01"},
		{"east", "gadget", "250", "2024-01-02"},
		{"west", "gadget", "50", "2024-01-03"},
		{"south", "widget", "", "2024-01-04"},
		{"east", "widget", "250", "2024-01-05"},
	})
}

func TestQueryDescriptor_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		query   QueryDescriptor
		wantErr bool
	}{
		{
			name:  "empty descriptor",
			query: QueryDescriptor{},
		},
		{
			name: "valid filter",
			query: QueryDescriptor{
				Filters: []Filter{{Column: "a", Operator: OpEqual, Value: "x"}},
			},
		},
		{
			name: "unknown operator",
			query: QueryDescriptor{
				Filters: []Filter{{Column: "a", Operator: "like", Value: "x"}},
			},
			wantErr: true,
		},
		{
			name: "in without values",
			query: QueryDescriptor{
				Filters: []Filter{{Column: "a", Operator: OpIn}},
			},
			wantErr: true,
		},
		{
			name: "invalid regex pattern",
			query: QueryDescriptor{
				Filters: []Filter{{Column: "a", Operator: OpRegex, Value: "("}},
			},
			wantErr: true,
		},
		{
			name: "valid aggregation",
			query: QueryDescriptor{
				GroupBy: "a", Aggregation: AggSum, AggregateColumn: "b",
			},
		},
		{
			name:    "aggregation without group_by",
			query:   QueryDescriptor{Aggregation: AggSum, AggregateColumn: "b"},
			wantErr: true,
		},
		{
			name:    "unknown aggregation",
			query:   QueryDescriptor{GroupBy: "a", Aggregation: "total"},
			wantErr: true,
		},
		{
			name:    "sum without target column",
			query:   QueryDescriptor{GroupBy: "a", Aggregation: AggSum},
			wantErr: true,
		},
		{
			name:  "count without target column",
			query: QueryDescriptor{GroupBy: "a", Aggregation: AggCount},
		},
		{
			name: "rolling_avg without window",
			query: QueryDescriptor{
				GroupBy: "a", Aggregation: AggRollingAvg, AggregateColumn: "b",
			},
			wantErr: true,
		},
		{
			name: "rolling_avg with window",
			query: QueryDescriptor{
				GroupBy: "a", Aggregation: AggRollingAvg, AggregateColumn: "b", Window: 3,
			},
		},
		{
			name: "window on non-rolling aggregation",
			query: QueryDescriptor{
				GroupBy: "a", Aggregation: AggSum, AggregateColumn: "b", Window: 3,
			},
			wantErr: true,
		},
		{
			name:    "unknown sort order",
			query:   QueryDescriptor{OrderBy: "a", Order: "up"},
			wantErr: true,
		},
		{
			name:    "negative limit",
			query:   QueryDescriptor{Limit: -1},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := tt.query.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				var qerr *QueryError
				if !errors.As(err, &qerr) {
					t.Errorf("expected *QueryError, got %T", err)
				}
			}
		})
	}
}

func TestFilters(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		filters  []Filter
		wantRows int
	}{
		{
			name:     "equal",
			filters:  []Filter{{Column: "region", Operator: OpEqual, Value: "west"}},
			wantRows: 2,
		},
		{
			name:     "not equal keeps nulls",
			filters:  []Filter{{Column: "amount", Operator: OpNotEqual, Value: 250.0}},
			wantRows: 3,
		},
		{
			name:     "greater than skips nulls",
			filters:  []Filter{{Column: "amount", Operator: OpGreater, Value: 50.0}},
			wantRows: 3,
		},
		{
			name:     "less or equal",
			filters:  []Filter{{Column: "amount", Operator: OpLessEqual, Value: 100.0}},
			wantRows: 2,
		},
		{
			name:     "numeric operand as string",
			filters:  []Filter{{Column: "amount", Operator: OpGreaterEqual, Value: "250"}},
			wantRows: 2,
		},
		{
			name:     "contains",
			filters:  []Filter{{Column: "product", Operator: OpContains, Value: "get"}},
			wantRows: 5,
		},
		{
			name:     "starts_with",
			filters:  []Filter{{Column: "product", Operator: OpStartsWith, Value: "gad"}},
			wantRows: 2,
		},
		{
			name:     "ends_with",
			filters:  []Filter{{Column: "region", Operator: OpEndsWith, Value: "st"}},
			wantRows: 4,
		},
		{
			name:     "regex",
			filters:  []Filter{{Column: "region", Operator: OpRegex, Value: "^(east|south)$"}},
			wantRows: 3,
		},
		{
			name:     "in",
			filters:  []Filter{{Column: "region", Operator: OpIn, Values: []Value{"east", "south"}}},
			wantRows: 3,
		},
		{
			name:     "not_in",
			filters:  []Filter{{Column: "region", Operator: OpNotIn, Values: []Value{"west"}}},
			wantRows: 3,
		},
		{
			name:     "is_null",
			filters:  []Filter{{Column: "amount", Operator: OpIsNull}},
			wantRows: 1,
		},
		{
			name:     "is_not_null",
			filters:  []Filter{{Column: "amount", Operator: OpIsNotNull}},
			wantRows: 4,
		},
		{
			name:     "datetime comparison against string operand",
			filters:  []Filter{{Column: "sold_at", Operator: OpGreater, Value: "2024-01-03"}},
			wantRows: 2,
		},
		{
			name: "filters combine with AND",
			filters: []Filter{
				{Column: "region", Operator: OpEqual, Value: "east"},
				{Column: "product", Operator: OpEqual, Value: "widget"},
			},
			wantRows: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			q := &QueryDescriptor{Filters: tt.filters}
			if err := q.Validate(); err != nil {
				t.Fatal(err)
			}
			got, err := q.run(queryTable(t))
			if err != nil {
				t.Fatal(err)
			}
			if got.RowCount() != tt.wantRows {
				t.Errorf("expected %d rows, got %d", tt.wantRows, got.RowCount())
			}
		})
	}
}

func TestFilters_ClauseOrderIndependence(t *testing.T) {
	t.Parallel()

	regionClause := Filter{Column: "region", Operator: OpEqual, Value: "east"}
	amountClause := Filter{Column: "amount", Operator: OpGreater, Value: 100}

	forward, err := applyFilters(queryTable(t), []Filter{regionClause, amountClause})
	if err != nil {
		t.Fatal(err)
	}
	reversed, err := applyFilters(queryTable(t), []Filter{amountClause, regionClause})
	if err != nil {
		t.Fatal(err)
	}

	if forward.RowCount() != 2 {
		t.Fatalf("expected 2 rows, got %d", forward.RowCount())
	}
	if !reflect.DeepEqual(forward.Rows(), reversed.Rows()) {
		t.Errorf("clause order changed the result set: %v vs %v", forward.Rows(), reversed.Rows())
	}
}

func TestQuery_UnknownColumnErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		query      QueryDescriptor
		wantClause string
	}{
		{
			name:       "usecols",
			query:      QueryDescriptor{Columns: []string{"region", "nope"}},
			wantClause: "usecols",
		},
		{
			name: "filter",
			query: QueryDescriptor{
				Filters: []Filter{{Column: "nope", Operator: OpEqual, Value: "x"}},
			},
			wantClause: "filter",
		},
		{
			name: "group_by",
			query: QueryDescriptor{
				GroupBy: "nope", Aggregation: AggCount,
			},
			wantClause: "group_by",
		},
		{
			name: "aggregate column",
			query: QueryDescriptor{
				GroupBy: "region", Aggregation: AggSum, AggregateColumn: "nope",
			},
			wantClause: "aggregate",
		},
		{
			name:       "order_by",
			query:      QueryDescriptor{OrderBy: "nope"},
			wantClause: "order_by",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := tt.query.run(queryTable(t))
			var qerr *QueryError
			if !errors.As(err, &qerr) {
				t.Fatalf("expected *QueryError, got %v", err)
			}
			if qerr.Clause != tt.wantClause {
				t.Errorf("expected clause %q, got %q", tt.wantClause, qerr.Clause)
			}
		})
	}
}

func TestQuery_OrderAndLimit(t *testing.T) {
	t.Parallel()

	q := &QueryDescriptor{OrderBy: "amount", Order: SortDesc, Limit: 2}
	got, err := q.run(queryTable(t))
	if err != nil {
		t.Fatal(err)
	}
	if got.RowCount() != 2 {
		t.Fatalf("expected 2 rows, got %d", got.RowCount())
	}

	amounts := got.column("amount").Values
	if amounts[0] != 250.0 || amounts[1] != 250.0 {
		t.Errorf("expected the two 250 rows first, got %v", amounts)
	}
	// Stable sort keeps the original relative order of tied rows.
	regions := got.column("region").Values
	if regions[0] != "east" || regions[1] != "east" {
		t.Errorf("tie order not stable: %v", regions)
	}
	products := got.column("product").Values
	if products[0] != "gadget" || products[1] != "widget" {
		t.Errorf("tie order not stable: %v", products)
	}
}

func TestQuery_NullsSortLast(t *testing.T) {
	t.Parallel()

	for _, order := range []SortOrder{SortAsc, SortDesc} {
		q := &QueryDescriptor{OrderBy: "amount", Order: order}
		got, err := q.run(queryTable(t))
		if err != nil {
			t.Fatal(err)
		}
		amounts := got.column("amount").Values
		if amounts[len(amounts)-1] != nil {
			t.Errorf("order %s: null should sort last, got %v", order, amounts)
		}
	}
}

func TestQuery_Usecols(t *testing.T) {
	t.Parallel()

	q := &QueryDescriptor{
		Columns: []string{"amount", "region"},
		Filters: []Filter{{Column: "region", Operator: OpEqual, Value: "west"}},
	}
	got, err := q.run(queryTable(t))
	if err != nil {
		t.Fatal(err)
	}
	names := got.ColumnNames()
	if len(names) != 2 || names[0] != "amount" || names[1] != "region" {
		t.Errorf("unexpected columns: %v", names)
	}
	if got.RowCount() != 2 {
		t.Errorf("expected 2 rows, got %d", got.RowCount())
	}
}

func TestQuery_DoesNotMutateInput(t *testing.T) {
	t.Parallel()

	tbl := queryTable(t)
	q := &QueryDescriptor{
		Filters: []Filter{{Column: "region", Operator: OpEqual, Value: "west"}},
		OrderBy: "amount",
		Order:   SortDesc,
	}
	if _, err := q.run(tbl); err != nil {
		t.Fatal(err)
	}
	if tbl.RowCount() != 5 {
		t.Errorf("query mutated its input table: %d rows", tbl.RowCount())
	}
	if tbl.column("region").Values[0] != "west" {
		t.Errorf("query reordered its input table")
	}
}
