package core

import (
	"context"
	"iter"

	"github.com/JonMunkholm/bulkimport/internal/store"
)

// Default ceilings and page size.
const (
	DefaultPageSize      = 200
	DefaultLookupCeiling = 20000
	DefaultRowCeiling    = 50000
)

// Record is one store record decoded with json.Number for numbers.
type Record map[string]any

// Page is one page of a paginated list query.
type Page struct {
	Offset     int
	TotalCount int
	Records    []Record
}

type listResult struct {
	Results    []Record `json:"results"`
	TotalCount int      `json:"totalCount"`
}

// Paginator walks all<Entity> list queries page by page.
type Paginator struct {
	Client   store.Client
	PageSize int
	Ceiling  int
}

// Pages returns a lazy sequence over the pages of q. Each call of the returned
// sequence starts again from offset zero. Iteration stops after an empty page
// or once the offset passes the reported total count. A total count above the
// ceiling yields an OversizedResultError before any records.
func (p Paginator) Pages(ctx context.Context, q store.ListQuery) iter.Seq2[Page, error] {
	return func(yield func(Page, error) bool) {
		doc, err := q.Document()
		if err != nil {
			yield(Page{}, configError("build "+q.Operation(), "%v", err))
			return
		}
		take := p.PageSize
		if take <= 0 {
			take = DefaultPageSize
		}
		ceiling := p.Ceiling
		if ceiling <= 0 {
			ceiling = DefaultLookupCeiling
		}

		for skip := 0; ; {
			if err := ctx.Err(); err != nil {
				yield(Page{}, err)
				return
			}
			resp, err := p.Client.Query(ctx, doc, map[string]any{"skip": skip, "take": take})
			if err != nil {
				yield(Page{}, storeError(q.Operation(), "query failed", err))
				return
			}
			if resp.HasErrors() {
				yield(Page{}, storeError(q.Operation(), resp.ErrorSummary(maxErrorSummary), nil))
				return
			}

			var res listResult
			if _, err := resp.Field(q.Operation(), &res); err != nil {
				yield(Page{}, storeError(q.Operation(), "decode results", err))
				return
			}
			if res.TotalCount > ceiling {
				yield(Page{}, oversizedError(q.Operation(),
					"the number of records to process is too large (%d > %d); enable batching or lower the batch size",
					res.TotalCount, ceiling))
				return
			}
			if len(res.Results) == 0 {
				return
			}
			if !yield(Page{Offset: skip, TotalCount: res.TotalCount, Records: res.Results}, nil) {
				return
			}

			skip += take
			if skip > res.TotalCount {
				return
			}
		}
	}
}

// FetchAll collects every record of q.
func (p Paginator) FetchAll(ctx context.Context, q store.ListQuery) ([]Record, error) {
	var all []Record
	for page, err := range p.Pages(ctx, q) {
		if err != nil {
			return nil, err
		}
		all = append(all, page.Records...)
	}
	return all, nil
}
