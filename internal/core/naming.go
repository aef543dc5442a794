package core

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// requiredMarker suffixes a source key whose column must exist in the header.
const requiredMarker = "*"

// pathSeparator splits a relation target path into entity and field.
const pathSeparator = "."

// SnakeToCamel converts snake_case (or any separator-delimited name) to
// camelCase. An underscore followed by a digit is kept, so "line_2_total"
// becomes "line_2Total". Trailing separators are left as they are.
func SnakeToCamel(s string) string {
	rs := []rune(s)
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(rs); i++ {
		r := rs[i]
		if isWordRune(r) {
			b.WriteRune(r)
			continue
		}
		if r == '_' && i+1 < len(rs) && unicode.IsDigit(rs[i+1]) {
			b.WriteRune(r)
			continue
		}
		j := i
		for j < len(rs) && !isWordRune(rs[j]) {
			j++
		}
		if j == len(rs) {
			b.WriteString(string(rs[i:]))
			break
		}
		b.WriteRune(unicode.ToUpper(rs[j]))
		i = j
	}
	return b.String()
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// capitalize upper-cases the first rune.
func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if size == 0 {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

// baseKey strips the required marker.
func baseKey(key string) string {
	return strings.TrimSuffix(key, requiredMarker)
}

func isRequiredKey(key string) bool {
	return strings.HasSuffix(key, requiredMarker) && len(key) > len(requiredMarker)
}
