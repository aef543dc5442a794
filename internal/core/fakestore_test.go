package core

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"

	"github.com/JonMunkholm/bulkimport/internal/store"
)

// memStore is an in-memory store.Client that interprets the documents the
// query builders produce.
type memStore struct {
	mu      sync.Mutex
	records map[string][]Record // entity -> records
	nextID  int

	// failOps makes the named operations return a store error.
	failOps map[string]string

	// failAt makes only the n-th call (1-based) of an operation fail.
	failAt map[string]int

	// totals overrides totalCount reported for all<Entity>.
	totals map[string]int

	calls []memCall
}

type memCall struct {
	Op   string
	Vars map[string]any
}

func newMemStore() *memStore {
	return &memStore{
		records: make(map[string][]Record),
		failOps: make(map[string]string),
		failAt:  make(map[string]int),
		totals:  make(map[string]int),
	}
}

// seed adds records to entity, assigning ids when missing.
func (m *memStore) seed(entity string, recs ...Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range recs {
		r = copyRecord(r)
		if _, ok := r["id"]; !ok {
			m.nextID++
			r["id"] = strconv.Itoa(m.nextID)
		}
		m.records[entity] = append(m.records[entity], r)
	}
}

func (m *memStore) all(entity string) []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Record(nil), m.records[entity]...)
}

// opCalls returns the calls of operations starting with prefix.
func (m *memStore) opCalls(prefix string) []memCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []memCall
	for _, c := range m.calls {
		if strings.HasPrefix(c.Op, prefix) {
			out = append(out, c)
		}
	}
	return out
}

func (m *memStore) countLocked(op string) int {
	n := 0
	for _, c := range m.calls {
		if c.Op == op {
			n++
		}
	}
	return n
}

func (m *memStore) mutationCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if !strings.HasPrefix(c.Op, "all") && !strings.HasPrefix(c.Op, "one") {
			n++
		}
	}
	return n
}

func (m *memStore) Query(ctx context.Context, query string, vars map[string]any) (*store.Response, error) {
	return m.handle(query, vars)
}

func (m *memStore) Mutate(ctx context.Context, mutation string, vars map[string]any) (*store.Response, error) {
	return m.handle(mutation, vars)
}

func (m *memStore) handle(doc string, vars map[string]any) (*store.Response, error) {
	qd, err := parser.ParseQuery(&ast.Source{Input: doc})
	if err != nil {
		return nil, err
	}
	field := qd.Operations[0].SelectionSet[0].(*ast.Field)
	op := field.Name

	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, memCall{Op: op, Vars: vars})

	if msg, ok := m.failOps[op]; ok {
		return &store.Response{Errors: []store.Error{{Message: msg}}}, nil
	}
	if n, ok := m.failAt[op]; ok && n == m.countLocked(op) {
		return &store.Response{Errors: []store.Error{{Message: "injected failure"}}}, nil
	}

	var where map[string]any
	if arg := field.Arguments.ForName("where"); arg != nil {
		v, err := arg.Value.Value(nil)
		if err != nil {
			return nil, err
		}
		where, _ = v.(map[string]any)
	}

	var data any
	switch {
	case strings.HasPrefix(op, "all"):
		entity := strings.TrimPrefix(op, "all")
		matched := m.filter(entity, where)
		total := len(matched)
		if t, ok := m.totals[entity]; ok {
			total = t
		}
		skip, take := toInt(vars["skip"]), toInt(vars["take"])
		page := []Record{}
		if skip < len(matched) {
			page = matched[skip:min(skip+take, len(matched))]
		}
		data = map[string]any{"results": page, "totalCount": total}

	case strings.HasPrefix(op, "one"):
		if matched := m.filter(strings.TrimPrefix(op, "one"), where); len(matched) > 0 {
			data = matched[0]
		}

	case strings.HasPrefix(op, "createMany"):
		entity := strings.TrimPrefix(op, "createMany")
		var ids []Record
		for _, in := range vars["input"].([]Record) {
			ids = append(ids, Record{"id": m.insert(entity, in)})
		}
		data = ids

	case strings.HasPrefix(op, "upsertMany"):
		entity := strings.TrimPrefix(op, "upsertMany")
		var ids []Record
		for _, in := range vars["input"].([]Record) {
			id := stringify(in["id"])
			if !m.update(entity, id, in) {
				id = m.insert(entity, in)
			}
			ids = append(ids, Record{"id": id})
		}
		data = ids

	case strings.HasPrefix(op, "create"):
		data = Record{"id": m.insert(strings.TrimPrefix(op, "create"), vars["input"].(Record))}

	case strings.HasPrefix(op, "update"):
		id := stringify(vars["id"])
		if !m.update(strings.TrimPrefix(op, "update"), id, vars["input"].(Record)) {
			return &store.Response{Errors: []store.Error{{Message: "record not found"}}}, nil
		}
		data = Record{"id": id}

	case strings.HasPrefix(op, "delete"):
		entity := strings.TrimPrefix(op, "delete")
		id := stringify(vars["id"])
		recs := m.records[entity]
		for i, r := range recs {
			if stringify(r["id"]) == id {
				m.records[entity] = append(recs[:i:i], recs[i+1:]...)
				break
			}
		}
		data = Record{"id": id}

	default:
		return nil, fmt.Errorf("memStore: unsupported operation %q", op)
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &store.Response{Data: map[string]json.RawMessage{op: raw}}, nil
}

func (m *memStore) insert(entity string, in Record) string {
	m.nextID++
	id := strconv.Itoa(m.nextID)
	r := copyRecord(in)
	r["id"] = id
	m.records[entity] = append(m.records[entity], r)
	return id
}

func (m *memStore) update(entity, id string, in Record) bool {
	for _, r := range m.records[entity] {
		if stringify(r["id"]) == id {
			for k, v := range in {
				if k != "id" {
					r[k] = v
				}
			}
			return true
		}
	}
	return false
}

func (m *memStore) filter(entity string, where map[string]any) []Record {
	var out []Record
	for _, r := range m.records[entity] {
		if matches(r, where) {
			out = append(out, r)
		}
	}
	return out
}

func matches(r Record, where map[string]any) bool {
	for field, cond := range where {
		if field == "_or" {
			hit := false
			for _, c := range cond.([]any) {
				if matches(r, c.(map[string]any)) {
					hit = true
					break
				}
			}
			if !hit {
				return false
			}
			continue
		}
		ops := cond.(map[string]any)
		got := stringify(r[field])
		if eq, ok := ops["eq"]; ok && got != stringify(eq) {
			return false
		}
		if in, ok := ops["in"]; ok {
			found := false
			for _, v := range in.([]any) {
				if stringify(v) == got {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		}
	}
	return true
}

func toInt(v any) int {
	switch x := v.(type) {
	case int:
		return x
	case int64:
		return int(x)
	}
	return 0
}
