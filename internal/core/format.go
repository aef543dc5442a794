package core

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/JonMunkholm/bulkimport/internal/tabular"
)

// numericRegex matches a plain decimal number with optional sign and exponent.
var numericRegex = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?$`)

// Formatter converts raw cell values into store-acceptable values.
// Malformed values degrade to "" or nil; formatting never fails.
type Formatter struct {
	// Location is used to interpret dates without an offset (default: time.Local).
	Location *time.Location
}

// FormatRow returns a copy of row with every mapped, formatted column
// converted. The value is read from the mapping's source key, or its base key
// when the marked key is absent, and written back to the key it was read from.
func (f Formatter) FormatRow(row tabular.Row, mappings []FieldMapping, specs []FormatSpec) tabular.Row {
	out := row.Clone()
	done := make(map[string]bool, len(mappings))
	for _, fm := range mappings {
		if done[fm.SourceKey] {
			continue
		}
		done[fm.SourceKey] = true

		spec, ok := findSpec(specs, fm.SourceKey)
		if !ok {
			continue
		}
		key, raw, ok := lookupValue(out, fm.SourceKey)
		if !ok || isBlank(raw) {
			continue
		}
		out.Set(key, f.FormatValue(spec, raw))
	}
	return out
}

// FormatValue converts one raw value per spec.
func (f Formatter) FormatValue(spec FormatSpec, raw any) any {
	switch spec.Type {
	case FormatText:
		return stringify(raw)
	case FormatDecimal, FormatPrice:
		return FormatDecimalValue(raw)
	case FormatNumber:
		if _, ok := parseNumber(stringify(raw)); !ok {
			return ""
		}
		return raw
	case FormatCheckbox:
		return ToBoolean(raw)
	}

	pattern := spec.DateFormat
	if pattern == "" {
		pattern = DefaultDateFormat
	}
	t, ok := parseDate(raw, pattern, f.Location)
	if !ok {
		return nil
	}
	return renderDate(t, spec.Type)
}

// FormatDecimalValue renders a decimal with two fraction digits. The first
// comma is read as the decimal separator. Values that are not numbers
// become "".
func FormatDecimalValue(raw any) string {
	s := strings.Replace(strings.TrimSpace(stringify(raw)), ",", ".", 1)
	n, ok := parseNumber(s)
	if !ok {
		return ""
	}
	if !strings.Contains(s, ".") {
		return s + ".00"
	}
	return strconv.FormatFloat(n, 'f', 2, 64)
}

// ToBoolean converts checkbox values. "true"/"1" are true, "false"/"0"/""
// false, and any other non-empty value true.
func ToBoolean(raw any) bool {
	switch v := raw.(type) {
	case nil:
		return false
	case bool:
		return v
	}
	switch strings.ToLower(strings.TrimSpace(stringify(raw))) {
	case "true", "1":
		return true
	case "false", "0", "":
		return false
	}
	return true
}

func parseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if !numericRegex.MatchString(s) {
		return 0, false
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func findSpec(specs []FormatSpec, key string) (FormatSpec, bool) {
	for _, s := range specs {
		if s.SourceKey == key {
			return s, true
		}
	}
	return FormatSpec{}, false
}

// lookupValue reads key from row, falling back to the unmarked key when key
// carries the required marker and is absent or blank. It returns the key the
// value was found under.
func lookupValue(row tabular.Row, key string) (string, any, bool) {
	v, ok := row.Get(key)
	if ok && !isBlank(v) {
		return key, v, true
	}
	if isRequiredKey(key) {
		if bv, bok := row.Get(baseKey(key)); bok {
			return baseKey(key), bv, true
		}
	}
	return key, v, ok
}

func isBlank(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return x == ""
	}
	return false
}

// stringify renders scalars the way they appear in a source file.
func stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case json.Number:
		return x.String()
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		return x.Format(canonicalLayout)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return strings.Trim(string(b), `"`)
}
