package dataagent

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Common datetime patterns to detect
var datetimePatterns = []struct {
	pattern *regexp.Regexp
	formats []string // Multiple formats for the same pattern
}{
	// ISO8601 formats with timezone
	{
		regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(\.\d+)?(Z|[+-]\d{2}:\d{2})$`),
		[]string{time.RFC3339, time.RFC3339Nano},
	},
	// ISO8601 formats without timezone
	{
		regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(\.\d+)?$`),
		[]string{"2006-01-02T15:04:05", "2006-01-02T15:04:05.000"},
	},
	// ISO8601 date and time with space
	{
		regexp.MustCompile(`^\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}(\.\d+)?$`),
		[]string{"2006-01-02 15:04:05", "2006-01-02 15:04:05.000"},
	},
	// ISO8601 date only
	{
		regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`),
		[]string{"2006-01-02"},
	},
	// US formats
	{
		regexp.MustCompile(`^\d{1,2}/\d{1,2}/\d{4} \d{1,2}:\d{2}:\d{2}( (AM|PM))?$`),
		[]string{"1/2/2006 15:04:05", "1/2/2006 3:04:05 PM", "01/02/2006 15:04:05"},
	},
	{
		regexp.MustCompile(`^\d{1,2}/\d{1,2}/\d{4}$`),
		[]string{"1/2/2006", "01/02/2006"},
	},
	// European formats
	{
		regexp.MustCompile(`^\d{1,2}\.\d{1,2}\.\d{4} \d{1,2}:\d{2}:\d{2}$`),
		[]string{"2.1.2006 15:04:05", "02.01.2006 15:04:05"},
	},
	{
		regexp.MustCompile(`^\d{1,2}\.\d{1,2}\.\d{4}$`),
		[]string{"2.1.2006", "02.01.2006"},
	},
}

// parseDatetime parses a string into a time.Time if it matches one of the
// known datetime layouts.
func parseDatetime(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}

	for _, dp := range datetimePatterns {
		if dp.pattern.MatchString(value) {
			// Try each format for this pattern
			for _, format := range dp.formats {
				if t, err := time.Parse(format, value); err == nil {
					return t, true
				}
			}
		}
	}

	return time.Time{}, false
}

// isDatetime checks if a string value represents a datetime
func isDatetime(value string) bool {
	_, ok := parseDatetime(value)
	return ok
}

// isBoolean checks if a string value is an explicit boolean spelling.
// Numeric 0/1 deliberately do not count; those stay numbers.
func isBoolean(value string) bool {
	switch strings.TrimSpace(value) {
	case "true", "false", "True", "False", "TRUE", "FALSE":
		return true
	default:
		return false
	}
}

// parseBoolean converts an explicit boolean spelling into a bool.
func parseBoolean(value string) (bool, bool) {
	switch strings.TrimSpace(value) {
	case "true", "True", "TRUE":
		return true, true
	case "false", "False", "FALSE":
		return false, true
	default:
		return false, false
	}
}

// inferColumnType assigns one semantic type to a column from its raw string
// values. Precedence: boolean, then number, then datetime, then string.
// Mixed or unresolvable columns fall back to string; that is not an error.
func inferColumnType(values []string) ColumnType {
	if len(values) == 0 {
		return ColumnTypeString
	}

	hasBoolean := false
	hasNumber := false
	hasDatetime := false
	hasText := false

	for _, value := range values {
		// Skip empty values for type inference
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}

		if isBoolean(value) {
			hasBoolean = true
			continue
		}

		if _, err := strconv.ParseFloat(value, 64); err == nil {
			hasNumber = true
			continue
		}

		if isDatetime(value) {
			hasDatetime = true
			continue
		}

		// If any value is text, the whole column is text
		hasText = true
		break
	}

	if hasText {
		return ColumnTypeString
	}
	if hasBoolean && !hasNumber && !hasDatetime {
		return ColumnTypeBoolean
	}
	if hasNumber && !hasBoolean && !hasDatetime {
		return ColumnTypeNumber
	}
	if hasDatetime && !hasBoolean && !hasNumber {
		return ColumnTypeDatetime
	}

	// Mixed categories, or no values at all
	return ColumnTypeString
}

// convertValue converts a raw string field into the typed Value for its
// column. Empty strings become nil. A value that does not fit the resolved
// type (possible when types were inferred from a partial row set) also
// becomes nil, preserving the column-type invariant.
func convertValue(raw string, ct ColumnType) Value {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil
	}

	switch ct {
	case ColumnTypeNumber:
		if f, err := strconv.ParseFloat(trimmed, 64); err == nil {
			return f
		}
		return nil
	case ColumnTypeBoolean:
		if b, ok := parseBoolean(trimmed); ok {
			return b
		}
		return nil
	case ColumnTypeDatetime:
		if t, ok := parseDatetime(trimmed); ok {
			return t
		}
		return nil
	default:
		return raw
	}
}

// inferColumnTypes infers one type per column from header and raw records.
func inferColumnTypes(header header, records []Record) []ColumnType {
	columnCount := len(header)
	if columnCount == 0 {
		return nil
	}

	types := make([]ColumnType, columnCount)

	// If no records, all columns default to string
	if len(records) == 0 {
		return types
	}

	for i := range columnCount {
		var values []string
		for _, record := range records {
			if i < len(record) {
				values = append(values, record[i])
			}
		}
		types[i] = inferColumnType(values)
	}

	return types
}
