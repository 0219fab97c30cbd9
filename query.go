package dataagent

import (
	"fmt"
	"regexp"
)

// FilterOperator identifies a filter clause operator.
type FilterOperator string

// Supported filter operators.
const (
	OpEqual        FilterOperator = "="
	OpNotEqual     FilterOperator = "!="
	OpGreater      FilterOperator = ">"
	OpLess         FilterOperator = "<"
	OpGreaterEqual FilterOperator = ">="
	OpLessEqual    FilterOperator = "<="
	OpContains     FilterOperator = "contains"
	OpStartsWith   FilterOperator = "starts_with"
	OpEndsWith     FilterOperator = "ends_with"
	OpRegex        FilterOperator = "regex"
	OpIn           FilterOperator = "in"
	OpNotIn        FilterOperator = "not_in"
	OpIsNull       FilterOperator = "is_null"
	OpIsNotNull    FilterOperator = "is_not_null"
)

var validOperators = map[FilterOperator]bool{
	OpEqual: true, OpNotEqual: true, OpGreater: true, OpLess: true,
	OpGreaterEqual: true, OpLessEqual: true, OpContains: true,
	OpStartsWith: true, OpEndsWith: true, OpRegex: true,
	OpIn: true, OpNotIn: true, OpIsNull: true, OpIsNotNull: true,
}

// Filter is one clause of (column, operator, value). All clauses in a
// descriptor are combined with logical AND.
type Filter struct {
	Column   string
	Operator FilterOperator
	// Value is the comparison operand for scalar operators.
	Value Value
	// Values is the candidate list for in / not_in.
	Values []Value
}

// Aggregation identifies an aggregation function.
type Aggregation string

// Supported aggregation kinds.
const (
	AggSum          Aggregation = "sum"
	AggAvg          Aggregation = "avg"
	AggCount        Aggregation = "count"
	AggMin          Aggregation = "min"
	AggMax          Aggregation = "max"
	AggMedian       Aggregation = "median"
	AggStd          Aggregation = "std"
	AggVar          Aggregation = "var"
	AggFirst        Aggregation = "first"
	AggLast         Aggregation = "last"
	AggNUnique      Aggregation = "nunique"
	AggMode         Aggregation = "mode"
	AggPercentile25 Aggregation = "percentile25"
	AggPercentile75 Aggregation = "percentile75"
	AggPercentile90 Aggregation = "percentile90"
	AggCumSum       Aggregation = "cumsum"
	AggCumMax       Aggregation = "cummax"
	AggCumMin       Aggregation = "cummin"
	AggRollingAvg   Aggregation = "rolling_avg"
)

var validAggregations = map[Aggregation]bool{
	AggSum: true, AggAvg: true, AggCount: true, AggMin: true, AggMax: true,
	AggMedian: true, AggStd: true, AggVar: true, AggFirst: true,
	AggLast: true, AggNUnique: true, AggMode: true,
	AggPercentile25: true, AggPercentile75: true, AggPercentile90: true,
	AggCumSum: true, AggCumMax: true, AggCumMin: true, AggRollingAvg: true,
}

// isCountLike reports whether the aggregation may omit its target column.
func (a Aggregation) isCountLike() bool {
	return a == AggCount || a == AggNUnique
}

// isRunning reports whether the aggregation emits one value per original
// row instead of collapsing each group to a single row.
func (a Aggregation) isRunning() bool {
	switch a {
	case AggCumSum, AggCumMax, AggCumMin, AggRollingAvg:
		return true
	default:
		return false
	}
}

// SortOrder is the direction of an order-by clause.
type SortOrder string

// Sort directions.
const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// QueryDescriptor specifies a filter/group/aggregate/order/limit pipeline
// over a table. Validation happens eagerly at the boundary: unknown
// operator or aggregation names are rejected before execution begins.
type QueryDescriptor struct {
	// Columns restricts the load and the pipeline to a column subset.
	Columns []string
	// Filters are applied left to right, combined with AND.
	Filters []Filter
	// GroupBy partitions rows by exact value equality; null is its own group.
	GroupBy string
	// Aggregation is required when GroupBy is set.
	Aggregation Aggregation
	// AggregateColumn feeds the aggregation; optional for count-like kinds.
	AggregateColumn string
	// Window is the row window for rolling_avg.
	Window int
	// OrderBy sorts the result by the named column.
	OrderBy string
	// Order is asc (default) or desc.
	Order SortOrder
	// Limit truncates the result after ordering. Zero means no limit.
	Limit int
}

// Validate rejects malformed descriptors before any data is touched.
func (q *QueryDescriptor) Validate() error {
	for _, f := range q.Filters {
		if !validOperators[f.Operator] {
			return newQueryError("filter", f.Column, fmt.Sprintf("unknown operator %q", f.Operator))
		}
		switch f.Operator {
		case OpIn, OpNotIn:
			if len(f.Values) == 0 {
				return newQueryError("filter", f.Column, fmt.Sprintf("%s requires a value list", f.Operator))
			}
		case OpRegex:
			pattern := stringify(f.Value)
			if _, err := regexp.Compile(pattern); err != nil {
				return newQueryError("filter", f.Column, fmt.Sprintf("invalid pattern %q", pattern))
			}
		}
	}

	if q.GroupBy == "" {
		if q.Aggregation != "" {
			return newQueryError("aggregate", "", "aggregation requires group_by")
		}
	} else {
		if !validAggregations[q.Aggregation] {
			return newQueryError("aggregate", "", fmt.Sprintf("unknown aggregation %q", q.Aggregation))
		}
		if q.AggregateColumn == "" && !q.Aggregation.isCountLike() {
			return newQueryError("aggregate", "", fmt.Sprintf("aggregation %q requires an aggregate column", q.Aggregation))
		}
		if q.Aggregation == AggRollingAvg && q.Window < 1 {
			return newQueryError("aggregate", "", "rolling_avg requires a positive window")
		}
		if q.Aggregation != AggRollingAvg && q.Window != 0 {
			return newQueryError("aggregate", "", fmt.Sprintf("window is only valid for rolling_avg, not %q", q.Aggregation))
		}
	}

	if q.Order != "" && q.Order != SortAsc && q.Order != SortDesc {
		return newQueryError("order_by", q.OrderBy, fmt.Sprintf("unknown sort order %q", q.Order))
	}
	if q.Limit < 0 {
		return newQueryError("limit", "", "limit must not be negative")
	}
	return nil
}

// run executes the pipeline over a table: project, filter, group and
// aggregate, order, limit. Pure: the input table is never modified, and no
// partial result is returned on error.
func (q *QueryDescriptor) run(t *Table) (*Table, error) {
	if q.Columns != nil {
		projected, missing := t.project(q.Columns)
		if missing != "" {
			return nil, newQueryError("usecols", missing, "column not found")
		}
		t = projected
	}

	t, err := applyFilters(t, q.Filters)
	if err != nil {
		return nil, err
	}

	if q.GroupBy != "" {
		t, err = groupAggregate(t, q)
		if err != nil {
			return nil, err
		}
	}

	if q.OrderBy != "" {
		t, err = sortTable(t, q.OrderBy, q.Order == SortDesc)
		if err != nil {
			return nil, err
		}
	}

	if q.Limit > 0 && t.RowCount() > q.Limit {
		idx := make([]int, q.Limit)
		for i := range idx {
			idx[i] = i
		}
		t = t.selectRows(idx)
	}

	return t, nil
}
