package dataagent

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// group is one partition of rows sharing a group-by value. Groups keep
// their first-seen order so results are deterministic.
type group struct {
	key  Value
	rows []int
}

// groupKeyOf canonicalizes a cell into a map key. The type prefix keeps
// the number 1 and the string "1" in separate groups.
func groupKeyOf(v Value) string {
	switch x := v.(type) {
	case nil:
		return "z"
	case float64:
		return "n:" + fmt.Sprintf("%v", x)
	case bool:
		return "b:" + fmt.Sprintf("%v", x)
	case time.Time:
		return "t:" + x.Format(time.RFC3339Nano)
	default:
		return "s:" + stringify(v)
	}
}

// groupAggregate partitions the table by the group-by column and applies
// the descriptor's aggregation to each partition. Collapsed kinds emit one
// row per group; running kinds emit one value per input row.
func groupAggregate(t *Table, q *QueryDescriptor) (*Table, error) {
	gidx, ok := t.columnIndex(q.GroupBy)
	if !ok {
		return nil, newQueryError("group_by", q.GroupBy, "column not found")
	}

	tidx := -1
	if q.AggregateColumn != "" {
		tidx, ok = t.columnIndex(q.AggregateColumn)
		if !ok {
			return nil, newQueryError("aggregate", q.AggregateColumn, "column not found")
		}
	}
	if tidx < 0 && !q.Aggregation.isCountLike() {
		return nil, newQueryError("aggregate", "", fmt.Sprintf("aggregation %q requires an aggregate column", q.Aggregation))
	}

	keys := t.cols[gidx].Values
	byKey := make(map[string]*group)
	var groups []*group
	for r, v := range keys {
		k := groupKeyOf(v)
		g := byKey[k]
		if g == nil {
			g = &group{key: v}
			byKey[k] = g
			groups = append(groups, g)
		}
		g.rows = append(g.rows, r)
	}

	valueName := string(q.Aggregation)
	if q.AggregateColumn != "" {
		valueName = q.AggregateColumn
	}

	if q.Aggregation.isRunning() {
		return runningAggregate(t, q, groups, gidx, tidx, valueName)
	}

	var target []Value
	if tidx >= 0 {
		target = t.cols[tidx].Values
	}

	results := make([]Value, len(groups))
	keyOut := make([]Value, len(groups))
	for i, g := range groups {
		keyOut[i] = g.key
		v, err := collapseGroup(q.Aggregation, g.rows, target)
		if err != nil {
			return nil, err
		}
		results[i] = v
	}

	valueType := ColumnTypeNumber
	switch q.Aggregation {
	case AggMin, AggMax, AggFirst, AggLast, AggMode:
		valueType = t.cols[tidx].Type
	}

	return newTableFromColumns(t.name, []Column{
		{Name: q.GroupBy, Type: t.cols[gidx].Type, Values: keyOut},
		{Name: valueName, Type: valueType, Values: results},
	}), nil
}

// collapseGroup reduces one group's target values to a single scalar.
// target is nil only for count-like kinds without an aggregate column, in
// which case the result is the group's row count.
func collapseGroup(agg Aggregation, rows []int, target []Value) (Value, error) {
	if target == nil {
		return float64(len(rows)), nil
	}

	switch agg {
	case AggCount:
		n := 0
		for _, r := range rows {
			if target[r] != nil {
				n++
			}
		}
		return float64(n), nil
	case AggNUnique:
		seen := make(map[string]bool)
		for _, r := range rows {
			if target[r] != nil {
				seen[groupKeyOf(target[r])] = true
			}
		}
		return float64(len(seen)), nil
	case AggFirst:
		return target[rows[0]], nil
	case AggLast:
		return target[rows[len(rows)-1]], nil
	case AggMin, AggMax:
		var best Value
		for _, r := range rows {
			v := target[r]
			if v == nil {
				continue
			}
			if best == nil {
				best = v
				continue
			}
			cmp, ok := compareTyped(v, best)
			if ok && ((agg == AggMin && cmp < 0) || (agg == AggMax && cmp > 0)) {
				best = v
			}
		}
		return best, nil
	case AggMode:
		counts := make(map[string]int)
		var order []Value
		for _, r := range rows {
			v := target[r]
			if v == nil {
				continue
			}
			k := groupKeyOf(v)
			if counts[k] == 0 {
				order = append(order, v)
			}
			counts[k]++
		}
		// Ties resolve to the first-seen value.
		var best Value
		bestCount := 0
		for _, v := range order {
			if c := counts[groupKeyOf(v)]; c > bestCount {
				bestCount = c
				best = v
			}
		}
		return best, nil
	}

	nums, err := numericValues(agg, rows, target)
	if err != nil {
		return nil, err
	}
	if len(nums) == 0 {
		return nil, nil
	}

	switch agg {
	case AggSum:
		s := 0.0
		for _, n := range nums {
			s += n
		}
		return s, nil
	case AggAvg:
		s := 0.0
		for _, n := range nums {
			s += n
		}
		return s / float64(len(nums)), nil
	case AggMedian:
		return percentile(nums, 50), nil
	case AggPercentile25:
		return percentile(nums, 25), nil
	case AggPercentile75:
		return percentile(nums, 75), nil
	case AggPercentile90:
		return percentile(nums, 90), nil
	case AggStd:
		v := sampleVariance(nums)
		if v == nil {
			return nil, nil
		}
		return math.Sqrt(v.(float64)), nil
	case AggVar:
		return sampleVariance(nums), nil
	default:
		return nil, newQueryError("aggregate", "", fmt.Sprintf("unknown aggregation %q", agg))
	}
}

// runningAggregate emits one value per input row, carrying per-group state
// in row order. Null cells emit null and do not advance the state.
func runningAggregate(t *Table, q *QueryDescriptor, groups []*group, gidx, tidx int, valueName string) (*Table, error) {
	target := t.cols[tidx].Values
	out := make([]Value, t.RowCount())

	for _, g := range groups {
		var sum float64
		var best Value
		var window []float64
		for _, r := range g.rows {
			v := target[r]
			if v == nil {
				out[r] = nil
				continue
			}
			n, ok := toFloat(v)
			if !ok {
				return nil, newQueryError("aggregate", q.AggregateColumn, fmt.Sprintf("aggregation %q requires a numeric column", q.Aggregation))
			}
			switch q.Aggregation {
			case AggCumSum:
				sum += n
				out[r] = sum
			case AggCumMax:
				if best == nil || n > best.(float64) {
					best = n
				}
				out[r] = best
			case AggCumMin:
				if best == nil || n < best.(float64) {
					best = n
				}
				out[r] = best
			case AggRollingAvg:
				window = append(window, n)
				if len(window) > q.Window {
					window = window[1:]
				}
				s := 0.0
				for _, w := range window {
					s += w
				}
				out[r] = s / float64(len(window))
			}
		}
	}

	return newTableFromColumns(t.name, []Column{
		{Name: q.GroupBy, Type: t.cols[gidx].Type, Values: append([]Value(nil), t.cols[gidx].Values...)},
		{Name: valueName, Type: ColumnTypeNumber, Values: out},
	}), nil
}

// numericValues extracts the non-null target values of a group as floats.
// A non-null value that is not numeric is an error.
func numericValues(agg Aggregation, rows []int, target []Value) ([]float64, error) {
	nums := make([]float64, 0, len(rows))
	for _, r := range rows {
		v := target[r]
		if v == nil {
			continue
		}
		n, ok := toFloat(v)
		if !ok {
			return nil, newQueryError("aggregate", "", fmt.Sprintf("aggregation %q requires a numeric column", agg))
		}
		nums = append(nums, n)
	}
	return nums, nil
}

// percentile computes the p-th percentile with linear interpolation
// between the two nearest ranks. nums must be non-empty; it is not
// modified.
func percentile(nums []float64, p float64) float64 {
	sorted := append([]float64(nil), nums...)
	sort.Float64s(sorted)
	if len(sorted) == 1 {
		return sorted[0]
	}
	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}

// sampleVariance returns the n-1 variance, or nil when fewer than two
// samples exist.
func sampleVariance(nums []float64) Value {
	if len(nums) < 2 {
		return nil
	}
	mean := 0.0
	for _, n := range nums {
		mean += n
	}
	mean /= float64(len(nums))
	ss := 0.0
	for _, n := range nums {
		d := n - mean
		ss += d * d
	}
	return ss / float64(len(nums)-1)
}
