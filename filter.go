package dataagent

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// applyFilters keeps only the rows matched by every filter in order. Nil or
// empty filters return the input table unchanged.
func applyFilters(t *Table, filters []Filter) (*Table, error) {
	if len(filters) == 0 {
		return t, nil
	}

	keep := make([]bool, t.RowCount())
	for i := range keep {
		keep[i] = true
	}

	for _, f := range filters {
		idx, ok := t.columnIndex(f.Column)
		if !ok {
			return nil, newQueryError("filter", f.Column, "column not found")
		}
		match, err := buildMatcher(f)
		if err != nil {
			return nil, err
		}
		values := t.cols[idx].Values
		for r := range keep {
			if keep[r] {
				keep[r] = match(values[r])
			}
		}
	}

	rows := make([]int, 0, t.RowCount())
	for r, k := range keep {
		if k {
			rows = append(rows, r)
		}
	}
	return t.selectRows(rows), nil
}

// buildMatcher compiles a filter into a per-cell predicate. Null cells
// match only is_null and not_in.
func buildMatcher(f Filter) (func(Value) bool, error) {
	switch f.Operator {
	case OpIsNull:
		return func(v Value) bool { return v == nil }, nil
	case OpIsNotNull:
		return func(v Value) bool { return v != nil }, nil
	case OpEqual:
		return func(v Value) bool { return v != nil && valuesEqual(v, f.Value) }, nil
	case OpNotEqual:
		return func(v Value) bool { return !valuesEqual(v, f.Value) }, nil
	case OpGreater, OpLess, OpGreaterEqual, OpLessEqual:
		op := f.Operator
		return func(v Value) bool {
			if v == nil {
				return false
			}
			cmp, ok := compareTyped(v, f.Value)
			if !ok {
				return false
			}
			switch op {
			case OpGreater:
				return cmp > 0
			case OpLess:
				return cmp < 0
			case OpGreaterEqual:
				return cmp >= 0
			default:
				return cmp <= 0
			}
		}, nil
	case OpContains:
		needle := stringify(f.Value)
		return func(v Value) bool { return v != nil && strings.Contains(stringify(v), needle) }, nil
	case OpStartsWith:
		prefix := stringify(f.Value)
		return func(v Value) bool { return v != nil && strings.HasPrefix(stringify(v), prefix) }, nil
	case OpEndsWith:
		suffix := stringify(f.Value)
		return func(v Value) bool { return v != nil && strings.HasSuffix(stringify(v), suffix) }, nil
	case OpRegex:
		pattern := stringify(f.Value)
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, newQueryError("filter", f.Column, "invalid pattern "+strconv.Quote(pattern))
		}
		return func(v Value) bool { return v != nil && re.MatchString(stringify(v)) }, nil
	case OpIn:
		candidates := f.Values
		return func(v Value) bool {
			if v == nil {
				return false
			}
			for _, c := range candidates {
				if valuesEqual(v, c) {
					return true
				}
			}
			return false
		}, nil
	case OpNotIn:
		candidates := f.Values
		return func(v Value) bool {
			if v == nil {
				return true
			}
			for _, c := range candidates {
				if valuesEqual(v, c) {
					return false
				}
			}
			return true
		}, nil
	default:
		return nil, newQueryError("filter", f.Column, "unknown operator "+strconv.Quote(string(f.Operator)))
	}
}

// stringify renders a cell value the same way serializeValue does, minus
// the nil guard callers handle themselves.
func stringify(v Value) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		return x.Format(time.RFC3339)
	default:
		return ""
	}
}

// toFloat coerces a value to float64. Numeric strings coerce so that
// operands supplied as text still compare against number columns.
func toFloat(v Value) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// toTime coerces a value to time.Time, parsing strings with the same
// patterns column inference accepts.
func toTime(v Value) (time.Time, bool) {
	switch x := v.(type) {
	case time.Time:
		return x, true
	case string:
		return parseDatetime(strings.TrimSpace(x))
	default:
		return time.Time{}, false
	}
}

// valuesEqual compares two values after type coercion. Two nils are equal;
// nil never equals a concrete value.
func valuesEqual(a, b Value) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			return fa == fb
		}
	}
	if ta, ok := a.(time.Time); ok {
		if tb, ok := toTime(b); ok {
			return ta.Equal(tb)
		}
	}
	if ba, ok := a.(bool); ok {
		if bb, ok := b.(bool); ok {
			return ba == bb
		}
	}
	return stringify(a) == stringify(b)
}

// compareTyped orders two values: numeric when both coerce to numbers,
// chronological when the cell holds a datetime, lexicographic otherwise.
// The second return is false when no ordering applies.
func compareTyped(a, b Value) (int, bool) {
	if a == nil || b == nil {
		return 0, false
	}
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			switch {
			case fa < fb:
				return -1, true
			case fa > fb:
				return 1, true
			default:
				return 0, true
			}
		}
	}
	if ta, ok := a.(time.Time); ok {
		if tb, ok := toTime(b); ok {
			return ta.Compare(tb), true
		}
	}
	return strings.Compare(stringify(a), stringify(b)), true
}

// sortTable returns a copy of the table ordered by the named column. The
// sort is stable and null cells always sort last regardless of direction.
func sortTable(t *Table, column string, desc bool) (*Table, error) {
	idx, ok := t.columnIndex(column)
	if !ok {
		return nil, newQueryError("order_by", column, "column not found")
	}

	values := t.cols[idx].Values
	order := make([]int, t.RowCount())
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		a, b := values[order[i]], values[order[j]]
		if a == nil || b == nil {
			return b == nil && a != nil
		}
		cmp, ok := compareTyped(a, b)
		if !ok {
			return false
		}
		if desc {
			return cmp > 0
		}
		return cmp < 0
	})
	return t.selectRows(order), nil
}
