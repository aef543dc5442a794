// Package store talks to the remote data store that imports are committed to.
// The store speaks a GraphQL dialect with list queries (all<Entity>), single
// record operations (one/create/update/delete<Entity>) and bulk mutations
// (createMany/upsertMany<Entity>).
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
)

// Client is the query/mutation transport used by the import pipeline.
// Transport failures are returned as errors; errors reported by the store
// itself are returned in Response.Errors.
type Client interface {
	Query(ctx context.Context, query string, vars map[string]any) (*Response, error)
	Mutate(ctx context.Context, mutation string, vars map[string]any) (*Response, error)
}

// Response is a decoded store reply.
type Response struct {
	Data   map[string]json.RawMessage `json:"data"`
	Errors []Error                    `json:"errors,omitempty"`
}

// Error is a single store-reported error.
type Error struct {
	Message string         `json:"message"`
	Path    []any          `json:"path,omitempty"`
	Extra   map[string]any `json:"extensions,omitempty"`
}

// HasErrors reports whether the store returned any errors.
func (r *Response) HasErrors() bool {
	return r != nil && len(r.Errors) > 0
}

// ErrorSummary joins the store error messages, truncated to max bytes.
func (r *Response) ErrorSummary(max int) string {
	if r == nil || len(r.Errors) == 0 {
		return ""
	}
	msgs := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		msgs = append(msgs, e.Message)
	}
	return Truncate(strings.Join(msgs, "; "), max)
}

// Field decodes the named top-level data field into v.
// A missing or null field leaves v untouched and returns false.
func (r *Response) Field(name string, v any) (bool, error) {
	if r == nil || r.Data == nil {
		return false, nil
	}
	raw, ok := r.Data[name]
	if !ok || len(raw) == 0 || string(raw) == "null" {
		return false, nil
	}
	return true, decodeUseNumber(raw, v)
}

// Truncate shortens s to at most max bytes, marking the cut with "...".
func Truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}

func decodeUseNumber(raw []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	return dec.Decode(v)
}
