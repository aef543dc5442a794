package core

import (
	"context"
	"encoding/json"

	"github.com/JonMunkholm/bulkimport/internal/store"
)

// maxErrorSummary bounds store error text carried in errors and logs.
const maxErrorSummary = 2000

// Executor issues mutations against the store.
type Executor struct {
	Client store.Client
}

// CreateMany submits all payloads in one createMany call. Identifier fields
// are stripped from copies of the payloads first. Returns the created ids.
func (e Executor) CreateMany(ctx context.Context, entity string, payloads []Record) ([]string, error) {
	if len(payloads) == 0 {
		return nil, nil
	}
	doc, err := store.CreateManyMutation(entity)
	if err != nil {
		return nil, configError("createMany", "%v", err)
	}
	input := make([]Record, len(payloads))
	for i, p := range payloads {
		input[i] = withoutID(p)
	}
	return e.mutateMany(ctx, "createMany"+entity, doc, input)
}

// UpdateMany submits all payloads in one upsertMany call. Every payload must
// carry the id of the record it updates.
func (e Executor) UpdateMany(ctx context.Context, entity string, payloads []Record) ([]string, error) {
	if len(payloads) == 0 {
		return nil, nil
	}
	doc, err := store.UpsertManyMutation(entity)
	if err != nil {
		return nil, configError("upsertMany", "%v", err)
	}
	return e.mutateMany(ctx, "upsertMany"+entity, doc, payloads)
}

func (e Executor) mutateMany(ctx context.Context, op, doc string, input []Record) ([]string, error) {
	resp, err := e.Client.Mutate(ctx, doc, map[string]any{"input": input})
	if err != nil {
		return nil, storeError(op, "mutation failed", err)
	}
	if resp.HasErrors() {
		return nil, storeError(op, resp.ErrorSummary(maxErrorSummary), nil)
	}
	var created []Record
	if _, err := resp.Field(op, &created); err != nil {
		return nil, storeError(op, "decode result", err)
	}
	ids := make([]string, 0, len(created))
	for _, r := range created {
		ids = append(ids, stringify(r["id"]))
	}
	return ids, nil
}

// One fetches a single record matching where, or nil when none matches.
func (e Executor) One(ctx context.Context, entity string, where store.Filter, fields []string) (Record, error) {
	doc, err := store.OneQuery(entity, where, fields)
	if err != nil {
		return nil, configError("one"+entity, "%v", err)
	}
	resp, err := e.Client.Query(ctx, doc, nil)
	if err != nil {
		return nil, storeError("one"+entity, "query failed", err)
	}
	if resp.HasErrors() {
		return nil, storeError("one"+entity, resp.ErrorSummary(maxErrorSummary), nil)
	}
	var rec Record
	ok, err := resp.Field("one"+entity, &rec)
	if err != nil {
		return nil, storeError("one"+entity, "decode result", err)
	}
	if !ok {
		return nil, nil
	}
	return rec, nil
}

// CreateOne creates a single record and returns its id.
func (e Executor) CreateOne(ctx context.Context, entity string, input Record) (string, error) {
	doc, err := store.CreateOneMutation(entity)
	if err != nil {
		return "", configError("create"+entity, "%v", err)
	}
	return e.mutateOne(ctx, "create"+entity, doc, map[string]any{"input": input})
}

// UpdateOne updates fields of the record with the given id.
func (e Executor) UpdateOne(ctx context.Context, entity, id string, input Record) error {
	doc, err := store.UpdateOneMutation(entity)
	if err != nil {
		return configError("update"+entity, "%v", err)
	}
	_, err = e.mutateOne(ctx, "update"+entity, doc, map[string]any{"id": idValue(id), "input": input})
	return err
}

// DeleteOne deletes the record with the given id.
func (e Executor) DeleteOne(ctx context.Context, entity, id string) error {
	doc, err := store.DeleteOneMutation(entity)
	if err != nil {
		return configError("delete"+entity, "%v", err)
	}
	_, err = e.mutateOne(ctx, "delete"+entity, doc, map[string]any{"id": idValue(id)})
	return err
}

func (e Executor) mutateOne(ctx context.Context, op, doc string, vars map[string]any) (string, error) {
	resp, err := e.Client.Mutate(ctx, doc, vars)
	if err != nil {
		return "", storeError(op, "mutation failed", err)
	}
	if resp.HasErrors() {
		return "", storeError(op, resp.ErrorSummary(maxErrorSummary), nil)
	}
	var rec Record
	if _, err := resp.Field(op, &rec); err != nil {
		return "", storeError(op, "decode result", err)
	}
	return stringify(rec["id"]), nil
}

// withoutID returns a shallow copy of r without its id field.
func withoutID(r Record) Record {
	out := make(Record, len(r))
	for k, v := range r {
		if k == "id" {
			continue
		}
		out[k] = v
	}
	return out
}

// idValue sends numeric ids as numbers and anything else as a string.
func idValue(id string) any {
	if _, ok := parseNumber(id); ok {
		return json.Number(id)
	}
	return id
}
