// Package tabular reads delimited-text and spreadsheet sources into rows and
// fetches the underlying bytes from http(s), s3 or local locators.
package tabular

import (
	"bytes"
	"encoding/json"
)

// Row maps source column names to raw scalar values (string, number, bool,
// time.Time or nil). Keys are unique and case-preserving. Column order is kept
// for display and logging only; nothing should depend on it for correctness.
type Row struct {
	keys   []string
	values map[string]any
}

// NewRow builds a row from parallel header and value slices.
// Extra values beyond the header are dropped; missing values become "".
func NewRow(header []string, values []string) Row {
	r := Row{
		keys:   make([]string, 0, len(header)),
		values: make(map[string]any, len(header)),
	}
	for i, h := range header {
		v := ""
		if i < len(values) {
			v = values[i]
		}
		r.Set(h, v)
	}
	return r
}

// RowOf builds a row from alternating key/value arguments. Handy in tests.
func RowOf(kv ...any) Row {
	var r Row
	for i := 0; i+1 < len(kv); i += 2 {
		k, _ := kv[i].(string)
		r.Set(k, kv[i+1])
	}
	return r
}

// Get returns the value stored under key.
func (r Row) Get(key string) (any, bool) {
	v, ok := r.values[key]
	return v, ok
}

// Has reports whether key is a column of the row.
func (r Row) Has(key string) bool {
	_, ok := r.values[key]
	return ok
}

// Set stores v under key, appending the key when it is new.
func (r *Row) Set(key string, v any) {
	if r.values == nil {
		r.values = make(map[string]any)
	}
	if _, ok := r.values[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.values[key] = v
}

// Keys returns the column names in source order.
func (r Row) Keys() []string {
	out := make([]string, len(r.keys))
	copy(out, r.keys)
	return out
}

// Len returns the number of columns.
func (r Row) Len() int { return len(r.keys) }

// Clone returns a deep copy of the row's key list and value map.
func (r Row) Clone() Row {
	c := Row{
		keys:   make([]string, len(r.keys)),
		values: make(map[string]any, len(r.values)),
	}
	copy(c.keys, r.keys)
	for k, v := range r.values {
		c.values[k] = v
	}
	return c
}

// MarshalJSON renders the row as a JSON object in column order.
func (r Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range r.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(r.values[k])
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
