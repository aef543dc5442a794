package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/bulkimport/internal/tabular"
)

func TestFormatDecimalValue(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{"12,5", "12.50"},
		{"7", "7.00"},
		{"-3.456", "-3.46"},
		{" 0.1 ", "0.10"},
		{"abc", ""},
		{"1,2,3", ""},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatDecimalValue(tt.in), "input %q", tt.in)
	}
}

func TestToBoolean(t *testing.T) {
	for _, v := range []any{"1", "true", "TRUE ", "yes", true} {
		assert.True(t, ToBoolean(v), "input %v", v)
	}
	for _, v := range []any{"", "0", "false", " False", nil, false} {
		assert.False(t, ToBoolean(v), "input %v", v)
	}
}

func TestFormatter_FormatValue(t *testing.T) {
	f := Formatter{Location: time.UTC}

	tests := []struct {
		name string
		spec FormatSpec
		raw  any
		want any
	}{
		{"text from number", FormatSpec{Type: FormatText}, 42, "42"},
		{"number kept", FormatSpec{Type: FormatNumber}, "42", "42"},
		{"number invalid", FormatSpec{Type: FormatNumber}, "4x", ""},
		{"price", FormatSpec{Type: FormatPrice}, "9,99", "9.99"},
		{"checkbox", FormatSpec{Type: FormatCheckbox}, "0", false},
		{"date", FormatSpec{Type: FormatDate, DateFormat: "dd-MM-yyyy"}, "05-03-2024", "2024-03-05"},
		{"date without padding", FormatSpec{Type: FormatDate, DateFormat: "dd-MM-yyyy"}, "5-3-2024", "2024-03-05"},
		{"date with padded month only", FormatSpec{Type: FormatDate, DateFormat: "dd-MM-yyyy"}, "5-03-2024", "2024-03-05"},
		{"datetime without padding", FormatSpec{Type: FormatDateTime, DateFormat: "dd-MM-yyyy HH:mm"}, "5-3-2024 9:05", "2024-03-05 09:05:00"},
		{"compact date", FormatSpec{Type: FormatDate, DateFormat: "yyyyMMdd"}, "20240305", "2024-03-05"},
		{"datetime", FormatSpec{Type: FormatDateTime, DateFormat: "dd-MM-yyyy HH:mm"}, "05-03-2024 14:30", "2024-03-05 14:30:00"},
		{"time", FormatSpec{Type: FormatTime, DateFormat: "dd-MM-yyyy HH:mm"}, "05-03-2024 14:30", "14:30:00"},
		{"unknown type renders full timestamp", FormatSpec{Type: "stamp", DateFormat: "yyyy/MM/dd"}, "2024/03/05", "2024-03-05 00:00:00Z"},
		{"quoted literal", FormatSpec{Type: FormatDate, DateFormat: "yyyy-MM-dd'T'HH:mm"}, "2024-03-05T09:15", "2024-03-05"},
		{"date from time value", FormatSpec{Type: FormatDate}, time.Date(2023, 12, 31, 23, 0, 0, 0, time.UTC), "2023-12-31"},
		{"unparseable date", FormatSpec{Type: FormatDate, DateFormat: "dd-MM-yyyy"}, "31/12/2023", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, f.FormatValue(tt.spec, tt.raw))
		})
	}
}

func TestFormatter_FormatRow(t *testing.T) {
	f := Formatter{Location: time.UTC}
	mappings := []FieldMapping{
		{SourceKey: "total*", TargetField: "total"},
		{SourceKey: "paid", TargetField: "paid"},
		{SourceKey: "note", TargetField: "note"},
		{SourceKey: "empty", TargetField: "empty"},
	}
	specs := []FormatSpec{
		{SourceKey: "total*", Type: FormatDecimal},
		{SourceKey: "paid", Type: FormatCheckbox},
		{SourceKey: "empty", Type: FormatDecimal},
	}
	row := tabular.RowOf("total", "3", "paid", "1", "note", "as is", "empty", "")

	out := f.FormatRow(row, mappings, specs)

	total, _ := out.Get("total")
	assert.Equal(t, "3.00", total)
	assert.False(t, out.Has("total*"), "marker fallback writes back to the key it read")

	paid, _ := out.Get("paid")
	assert.Equal(t, true, paid)

	note, _ := out.Get("note")
	assert.Equal(t, "as is", note)

	empty, _ := out.Get("empty")
	assert.Equal(t, "", empty, "blank values are not formatted")

	orig, _ := row.Get("total")
	assert.Equal(t, "3", orig, "input row is not modified")
}

func TestGoLayout(t *testing.T) {
	tests := []struct {
		pattern, want string
	}{
		{"dd-MM-yyyy", "2-1-2006"},
		{"yyyy-MM-dd HH:mm:ss", "2006-1-2 15:4:5"},
		{"d MMM yy", "2 Jan 06"},
		{"hh:mm a", "3:4 PM"},
		{"HH:mm:ss.SSS", "15:4:5.000"},
		{"yyyy-MM-dd'T'HH:mmXXX", "2006-1-2T15:4Z07:00"},
		{"'at' HH", "at 15"},
	}
	for _, tt := range tests {
		t.Run(tt.pattern, func(t *testing.T) {
			assert.Equal(t, tt.want, goLayout(tt.pattern))
		})
	}
}

func TestParseDate_UsesLocation(t *testing.T) {
	loc := time.FixedZone("CEST", 2*60*60)

	got, ok := parseDate("01-07-2024 12:00", "dd-MM-yyyy HH:mm", loc)
	require.True(t, ok)
	assert.Equal(t, "2024-07-01 12:00:00+02:00", got.Format(canonicalLayout))

	got, ok = parseDate("1-7-2024 12:00", "dd-MM-yyyy HH:mm", time.UTC)
	require.True(t, ok)
	assert.Equal(t, "2024-07-01 12:00:00Z", got.Format(canonicalLayout))
}
