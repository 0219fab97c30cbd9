package dataagent

import (
	"testing"
	"time"
)

func TestInferColumnType(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		values   []string
		expected ColumnType
	}{
		{
			name:     "integers",
			values:   []string{"1", "2", "3"},
			expected: ColumnTypeNumber,
		},
		{
			name:     "floats",
			values:   []string{"1.5", "-2.25", "0"},
			expected: ColumnTypeNumber,
		},
		{
			name:     "booleans",
			values:   []string{"true", "False", "TRUE"},
			expected: ColumnTypeBoolean,
		},
		{
			name:     "zero and one stay numeric",
			values:   []string{"0", "1", "1"},
			expected: ColumnTypeNumber,
		},
		{
			name:     "ISO dates",
			values:   []string{"2024-01-15", "2024-02-20"},
			expected: ColumnTypeDatetime,
		},
		{
			name:     "ISO timestamps",
			values:   []string{"2024-01-15T10:30:00Z", "2024-02-20T08:00:00Z"},
			expected: ColumnTypeDatetime,
		},
		{
			name:     "text",
			values:   []string{"alpha", "beta"},
			expected: ColumnTypeString,
		},
		{
			name:     "mixed number and text falls back to string",
			values:   []string{"1", "two", "3"},
			expected: ColumnTypeString,
		},
		{
			name:     "mixed number and datetime falls back to string",
			values:   []string{"1", "2024-01-15"},
			expected: ColumnTypeString,
		},
		{
			name:     "empty values are skipped",
			values:   []string{"", "42", ""},
			expected: ColumnTypeNumber,
		},
		{
			name:     "all empty",
			values:   []string{"", ""},
			expected: ColumnTypeString,
		},
		{
			name:     "no values",
			values:   nil,
			expected: ColumnTypeString,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := inferColumnType(tt.values); got != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestParseDatetime(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		value string
		ok    bool
	}{
		{name: "RFC3339", value: "2024-06-01T12:00:00Z", ok: true},
		{name: "date only", value: "2024-06-01", ok: true},
		{name: "space separated", value: "2024-06-01 12:00:00", ok: true},
		{name: "US date", value: "6/1/2024", ok: true},
		{name: "European date", value: "1.6.2024", ok: true},
		{name: "plain number", value: "20240601", ok: false},
		{name: "text", value: "yesterday", ok: false},
		{name: "empty", value: "", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if _, ok := parseDatetime(tt.value); ok != tt.ok {
				t.Errorf("parseDatetime(%q) ok = %v, want %v", tt.value, ok, tt.ok)
			}
		})
	}
}

func TestParseBoolean(t *testing.T) {
	t.Parallel()

	tests := []struct {
		value    string
		expected bool
		ok       bool
	}{
		{value: "true", expected: true, ok: true},
		{value: "True", expected: true, ok: true},
		{value: "FALSE", expected: false, ok: true},
		{value: "1", ok: false},
		{value: "yes", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Parallel()

			got, ok := parseBoolean(tt.value)
			if ok != tt.ok || got != tt.expected {
				t.Errorf("parseBoolean(%q) = (%v, %v), want (%v, %v)", tt.value, got, ok, tt.expected, tt.ok)
			}
		})
	}
}

func TestConvertValue(t *testing.T) {
	t.Parallel()

	wantTime, _ := time.Parse("2006-01-02", "2024-06-01")

	tests := []struct {
		name     string
		raw      string
		ct       ColumnType
		expected Value
	}{
		{name: "number", raw: "42", ct: ColumnTypeNumber, expected: 42.0},
		{name: "negative float", raw: "-1.5", ct: ColumnTypeNumber, expected: -1.5},
		{name: "boolean", raw: "True", ct: ColumnTypeBoolean, expected: true},
		{name: "datetime", raw: "2024-06-01", ct: ColumnTypeDatetime, expected: wantTime},
		{name: "string", raw: "hello", ct: ColumnTypeString, expected: "hello"},
		{name: "empty is null", raw: "", ct: ColumnTypeNumber, expected: nil},
		{name: "unparseable number is null", raw: "abc", ct: ColumnTypeNumber, expected: nil},
		{name: "unparseable datetime is null", raw: "abc", ct: ColumnTypeDatetime, expected: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := convertValue(tt.raw, tt.ct)
			if wt, ok := tt.expected.(time.Time); ok {
				gt, ok := got.(time.Time)
				if !ok || !gt.Equal(wt) {
					t.Errorf("convertValue(%q) = %v, want %v", tt.raw, got, tt.expected)
				}
				return
			}
			if got != tt.expected {
				t.Errorf("convertValue(%q) = %v, want %v", tt.raw, got, tt.expected)
			}
		})
	}
}
