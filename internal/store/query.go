package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"
)

// ErrInvalidDocument is returned when a generated document does not parse.
var ErrInvalidDocument = errors.New("invalid store document")

// Filter is a where-clause value rendered as a GraphQL input literal.
// Maps render as objects (keys sorted), slices as lists, strings quoted.
type Filter map[string]any

// Eq returns {field: {eq: value}}.
func Eq(field string, value any) Filter {
	return Filter{field: map[string]any{"eq": value}}
}

// In returns {field: {in: [values...]}}.
func In(field string, values []string) Filter {
	list := make([]any, len(values))
	for i, v := range values {
		list[i] = v
	}
	return Filter{field: map[string]any{"in": list}}
}

// AnyEq returns {_or: [{field: {eq: v}}, ...]}.
func AnyEq(field string, values []string) Filter {
	clauses := make([]any, len(values))
	for i, v := range values {
		clauses[i] = map[string]any(Eq(field, v))
	}
	return Filter{"_or": clauses}
}

// ListQuery names a paginated all<Entity> query.
type ListQuery struct {
	Entity string
	Fields []string
	Where  Filter
}

// Operation is the top-level data field the query returns.
func (q ListQuery) Operation() string { return "all" + q.Entity }

// Document renders the query. Pagination is passed as $skip/$take variables.
func (q ListQuery) Document() (string, error) {
	var b strings.Builder
	b.WriteString("query($skip: Int, $take: Int) {\n  ")
	b.WriteString(q.Operation())
	b.WriteString("(skip: $skip, take: $take")
	if len(q.Where) > 0 {
		b.WriteString(", where: ")
		writeLiteral(&b, map[string]any(q.Where))
	}
	b.WriteString(") {\n    results { ")
	b.WriteString(strings.Join(selection(q.Fields), " "))
	b.WriteString(" }\n    totalCount\n  }\n}")
	return checked(b.String())
}

// OneQuery renders one<Entity>(where: ...) { fields }.
func OneQuery(entity string, where Filter, fields []string) (string, error) {
	var b strings.Builder
	b.WriteString("query {\n  one")
	b.WriteString(entity)
	b.WriteString("(where: ")
	writeLiteral(&b, map[string]any(where))
	b.WriteString(") { ")
	b.WriteString(strings.Join(selection(fields), " "))
	b.WriteString(" }\n}")
	return checked(b.String())
}

// Input types are schema specific, so mutation variables are left undeclared
// and bound by name on the store side.

// CreateOneMutation renders create<Entity>(input: $input) { id }.
func CreateOneMutation(entity string) (string, error) {
	return checked(fmt.Sprintf("mutation {\n  create%s(input: $input) { id }\n}", entity))
}

// UpdateOneMutation renders update<Entity>(id: $id, input: $input) { id }.
func UpdateOneMutation(entity string) (string, error) {
	return checked(fmt.Sprintf("mutation {\n  update%s(id: $id, input: $input) { id }\n}", entity))
}

// DeleteOneMutation renders delete<Entity>(id: $id) { id }.
func DeleteOneMutation(entity string) (string, error) {
	return checked(fmt.Sprintf("mutation {\n  delete%s(id: $id) { id }\n}", entity))
}

// CreateManyMutation renders createMany<Entity>(input: $input) { id }.
func CreateManyMutation(entity string) (string, error) {
	return checked(fmt.Sprintf("mutation {\n  createMany%s(input: $input) { id }\n}", entity))
}

// UpsertManyMutation renders upsertMany<Entity>(input: $input) { id }.
func UpsertManyMutation(entity string) (string, error) {
	return checked(fmt.Sprintf("mutation {\n  upsertMany%s(input: $input) { id }\n}", entity))
}

// selection puts id first and drops duplicates.
func selection(fields []string) []string {
	out := []string{"id"}
	seen := map[string]bool{"id": true}
	for _, f := range fields {
		if f == "" || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	return out
}

func writeLiteral(b *strings.Builder, v any) {
	switch x := v.(type) {
	case nil:
		b.WriteString("null")
	case Filter:
		writeLiteral(b, map[string]any(x))
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString("{ ")
		for i, k := range keys {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(k)
			b.WriteString(": ")
			writeLiteral(b, x[k])
		}
		b.WriteString(" }")
	case []any:
		b.WriteByte('[')
		for i, e := range x {
			if i > 0 {
				b.WriteString(", ")
			}
			writeLiteral(b, e)
		}
		b.WriteByte(']')
	case string:
		// JSON string escapes are valid GraphQL string escapes.
		q, _ := json.Marshal(x)
		b.Write(q)
	case bool:
		if x {
			b.WriteString("true")
		} else {
			b.WriteString("false")
		}
	case int, int32, int64, float64, json.Number:
		fmt.Fprint(b, x)
	default:
		q, _ := json.Marshal(fmt.Sprint(x))
		b.Write(q)
	}
}

// checked parses doc so malformed entity or field names fail before a round trip.
func checked(doc string) (string, error) {
	if _, err := parser.ParseQuery(&ast.Source{Name: "import", Input: doc}); err != nil {
		return "", fmt.Errorf("%w: %s", ErrInvalidDocument, err.Error())
	}
	return doc, nil
}
