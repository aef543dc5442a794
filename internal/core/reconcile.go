package core

import (
	"context"

	"github.com/JonMunkholm/bulkimport/internal/store"
	"github.com/JonMunkholm/bulkimport/internal/tabular"
)

// DefaultValue is a static field value set on every create and update object.
type DefaultValue struct {
	Field string `json:"field" yaml:"field" validate:"required"`
	Value any    `json:"value" yaml:"value"`
}

// ReconciledPayload is the outcome of reconciling one batch.
type ReconciledPayload struct {
	Create  []Record
	Update  []Record
	Skipped int
}

// Dedup configures create-vs-update matching on a unique key.
type Dedup struct {
	// Key is the primary mapping of the unique column.
	Key FieldMapping

	// Numeric matches existing records with eq clauses instead of in.
	Numeric bool
}

// Reconciler turns formatted rows into create and update payloads.
type Reconciler struct {
	Mappings *Mappings
	Defaults []DefaultValue

	// Dedup is nil when deduplication is disabled.
	Dedup *Dedup
}

// NewDedup resolves the unique column against the primary mappings.
func NewDedup(m *Mappings, column string, uniqueType FormatType) (*Dedup, error) {
	if column == "" {
		return nil, configError("deduplicate", "deduplication is enabled but no unique column is configured")
	}
	fm, ok := m.Unique(column)
	if !ok {
		return nil, configError("deduplicate", "unique column %q is not part of the property mappings", column)
	}
	if fm.IsRelation {
		return nil, configError("deduplicate", "unique column %q maps to a relation", column)
	}
	numeric := uniqueType.IsNumeric()
	if uniqueType == "" {
		if spec, ok := m.Format(fm.SourceKey); ok {
			numeric = spec.Type.IsNumeric()
		}
	}
	return &Dedup{Key: fm, Numeric: numeric}, nil
}

// FetchExisting loads the records whose unique field matches a unique value
// of the batch, selecting id and every plain target field.
func (d *Dedup) FetchExisting(ctx context.Context, p Paginator, entity string, m *Mappings, rows []tabular.Row) ([]Record, error) {
	values := distinctValues(rows, d.Key.SourceKey)
	if len(values) == 0 {
		return nil, nil
	}
	return p.FetchAll(ctx, store.ListQuery{
		Entity: entity,
		Fields: m.PlainTargetFields(),
		Where:  valueFilter(d.Key.TargetField, values, d.Numeric),
	})
}

// Reconcile classifies every row. It is pure: the same rows, indices and
// existing records always produce the same payload.
func (r Reconciler) Reconcile(rows []tabular.Row, relations map[string]*RelationLookupIndex, existing []Record) ReconciledPayload {
	var out ReconciledPayload

	var byKey map[string]Record
	if r.Dedup != nil {
		byKey = make(map[string]Record, len(existing))
		for _, rec := range existing {
			k := stringify(rec[r.Dedup.Key.TargetField])
			if _, dup := byKey[k]; !dup {
				byKey[k] = rec
			}
		}
	}

	primary := r.Mappings.primary
	update := r.Mappings.update
	for _, row := range rows {
		createObj := r.build(row, primary, relations)

		if r.Dedup == nil {
			out.Create = append(out.Create, createObj)
			continue
		}

		_, key, _ := lookupValue(row, r.Dedup.Key.SourceKey)
		if k, isStr := key.(string); isStr && k == "" {
			out.Skipped++
			continue
		}
		match, ok := byKey[stringify(key)]
		if !ok || key == nil {
			out.Create = append(out.Create, createObj)
			continue
		}

		var updateObj Record
		if len(update) > 0 {
			updateObj = r.build(row, update, relations)
		} else {
			updateObj = copyRecord(createObj)
		}
		updateObj["id"] = match["id"]
		out.Update = append(out.Update, updateObj)
	}
	return out
}

// build applies defaults, relations and plain mappings to one row.
func (r Reconciler) build(row tabular.Row, mappings []FieldMapping, relations map[string]*RelationLookupIndex) Record {
	obj := make(Record, len(mappings)+len(r.Defaults))
	for _, d := range r.Defaults {
		obj[SnakeToCamel(d.Field)] = d.Value
	}
	for _, fm := range mappings {
		_, v, ok := lookupValue(row, fm.SourceKey)
		if fm.IsRelation {
			ref := Record{}
			if id, hit := relations[fm.RelationKey()].Find(v); hit {
				ref["id"] = id
			}
			obj[fm.TargetField] = ref
			continue
		}
		if !ok {
			v = nil
		}
		obj[fm.TargetField] = v
	}
	return obj
}

func copyRecord(r Record) Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}
