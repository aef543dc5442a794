package core

import (
	"strings"
	"sync"
	"time"
)

// Date patterns in import configurations use Unicode/date-fns tokens
// ("dd-MM-yyyy HH:mm"). goLayout translates them to Go reference layouts.

// canonicalLayout renders parsed dates as "yyyy-MM-dd HH:mm:ss±hh:mm", with
// "Z" for UTC.
const canonicalLayout = "2006-01-02 15:04:05Z07:00"

// dateTokens maps pattern tokens to Go layout elements, longest first.
// Layouts are only used for parsing, so two-letter numeric tokens map to the
// unpadded elements, which accept one or two digits.
var dateTokens = []struct {
	token  string
	layout string
}{
	{"yyyy", "2006"},
	{"yy", "06"},
	{"MMMM", "January"},
	{"MMM", "Jan"},
	{"MM", "1"},
	{"M", "1"},
	{"dd", "2"},
	{"d", "2"},
	{"EEEE", "Monday"},
	{"EEE", "Mon"},
	{"HH", "15"},
	{"H", "15"},
	{"hh", "3"},
	{"h", "3"},
	{"mm", "4"},
	{"m", "4"},
	{"ss", "5"},
	{"s", "5"},
	{"SSS", "000"},
	{"SS", "00"},
	{"S", "0"},
	{"a", "PM"},
	{"XXX", "Z07:00"},
	{"xxx", "-07:00"},
	{"X", "Z07"},
	{"x", "-07"},
}

var layoutCache sync.Map

// goLayout converts a date pattern to a Go time layout. Text in single quotes
// is literal; "''" is a literal quote. Unknown letters are kept as literals.
func goLayout(pattern string) string {
	if v, ok := layoutCache.Load(pattern); ok {
		return v.(string)
	}

	var b strings.Builder
	for i := 0; i < len(pattern); {
		c := pattern[i]
		if c == '\'' {
			if i+1 < len(pattern) && pattern[i+1] == '\'' {
				b.WriteByte('\'')
				i += 2
				continue
			}
			end := strings.IndexByte(pattern[i+1:], '\'')
			if end < 0 {
				b.WriteString(pattern[i+1:])
				break
			}
			b.WriteString(pattern[i+1 : i+1+end])
			i += end + 2
			continue
		}

		matched := false
		for _, t := range dateTokens {
			if strings.HasPrefix(pattern[i:], t.token) {
				// Go requires a separator before fractional seconds.
				if t.token[0] == 'S' && (i == 0 || (pattern[i-1] != '.' && pattern[i-1] != ',')) {
					b.WriteByte('.')
				}
				b.WriteString(t.layout)
				i += len(t.token)
				matched = true
				break
			}
		}
		if !matched {
			b.WriteByte(c)
			i++
		}
	}

	layout := b.String()
	layoutCache.Store(pattern, layout)
	return layout
}

// parseDate parses raw with the date pattern in loc. time.Time values are
// accepted as they are.
func parseDate(raw any, pattern string, loc *time.Location) (time.Time, bool) {
	switch v := raw.(type) {
	case time.Time:
		return v, !v.IsZero()
	case *time.Time:
		if v == nil {
			return time.Time{}, false
		}
		return *v, !v.IsZero()
	}
	s := strings.TrimSpace(stringify(raw))
	if s == "" {
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.Local
	}
	t, err := time.ParseInLocation(goLayout(pattern), s, loc)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// renderDate renders t canonically and selects the part the type asks for.
func renderDate(t time.Time, ft FormatType) string {
	full := t.Format(canonicalLayout)
	switch ft {
	case FormatTime:
		return full[11:19]
	case FormatDate:
		return full[:10]
	case FormatDateTime:
		return full[:19]
	}
	return full
}
