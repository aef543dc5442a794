package core

import (
	"context"
	"log/slog"

	"github.com/JonMunkholm/bulkimport/internal/store"
	"github.com/JonMunkholm/bulkimport/internal/tabular"
)

// LookupRecord is a related record's id and the value it is looked up by.
type LookupRecord struct {
	ID          any
	LookupValue any
}

// RelationLookupIndex holds the related records found for one relation
// mapping in one batch.
type RelationLookupIndex struct {
	RelationKey string
	Numeric     bool
	Records     []LookupRecord
}

// Find returns the id of the first record whose lookup value equals v.
// Numeric relations compare as numbers, others as strings.
func (ix *RelationLookupIndex) Find(v any) (any, bool) {
	if ix == nil || isBlank(v) {
		return nil, false
	}
	want := stringify(v)
	wantNum, wantIsNum := parseNumber(want)
	for _, r := range ix.Records {
		got := stringify(r.LookupValue)
		if ix.Numeric && wantIsNum {
			if n, ok := parseNumber(got); ok && n == wantNum {
				return r.ID, true
			}
			continue
		}
		if got == want {
			return r.ID, true
		}
	}
	return nil, false
}

// RelationResolver looks up related records for relation mappings.
type RelationResolver struct {
	Paginator Paginator
	Logger    *slog.Logger
}

// Resolve runs one paginated lookup per relation mapping for the batch,
// sequentially and in mapping order. Relations without any lookup values in
// the batch get an empty index without a query.
func (r RelationResolver) Resolve(ctx context.Context, relations []FieldMapping, rows []tabular.Row) (map[string]*RelationLookupIndex, error) {
	out := make(map[string]*RelationLookupIndex, len(relations))
	for _, fm := range relations {
		ix := &RelationLookupIndex{RelationKey: fm.RelationKey(), Numeric: fm.CompareType.IsNumeric()}
		out[ix.RelationKey] = ix

		values := distinctValues(rows, fm.SourceKey)
		if len(values) == 0 {
			continue
		}

		q := store.ListQuery{
			Entity: fm.RelatedEntity,
			Fields: []string{fm.RelatedField},
			Where:  valueFilter(fm.RelatedField, values, ix.Numeric),
		}
		records, err := r.Paginator.FetchAll(ctx, q)
		if err != nil {
			return nil, err
		}
		for _, rec := range records {
			ix.Records = append(ix.Records, LookupRecord{ID: rec["id"], LookupValue: rec[fm.RelatedField]})
		}
		if r.Logger != nil {
			r.Logger.Debug("relation resolved",
				"relation", fm.RelatedLookupKey,
				"values", len(values),
				"matches", len(ix.Records),
			)
		}
	}
	return out, nil
}

// distinctValues collects the non-blank values of key across rows in first
// seen order.
func distinctValues(rows []tabular.Row, key string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, row := range rows {
		_, v, ok := lookupValue(row, key)
		if !ok || isBlank(v) {
			continue
		}
		s := stringify(v)
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// valueFilter matches field against values: an _or of eq clauses for numeric
// fields, an in clause otherwise.
func valueFilter(field string, values []string, numeric bool) store.Filter {
	if numeric {
		return store.AnyEq(field, values)
	}
	return store.In(field, values)
}
