package core

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/JonMunkholm/bulkimport/internal/store"
	"github.com/JonMunkholm/bulkimport/internal/tabular"
)

// Limits bounds store queries and non-batched runs.
type Limits struct {
	PageSize      int
	LookupCeiling int
	RowCeiling    int
}

func (l Limits) withDefaults() Limits {
	if l.PageSize <= 0 {
		l.PageSize = DefaultPageSize
	}
	if l.LookupCeiling <= 0 {
		l.LookupCeiling = DefaultLookupCeiling
	}
	if l.RowCeiling <= 0 {
		l.RowCeiling = DefaultRowCeiling
	}
	return l
}

// Result summarizes one invocation.
type Result struct {
	RunID            string          `json:"run_id,omitempty"`
	Message          string          `json:"message"`
	State            CheckpointState `json:"state,omitempty"`
	Rows             int             `json:"rows"`
	Created          int             `json:"created"`
	Updated          int             `json:"updated"`
	Skipped          int             `json:"skipped"`
	Batched          bool            `json:"batched"`
	BatchesTotal     int             `json:"batches_total,omitempty"`
	BatchesProcessed int             `json:"batches_processed,omitempty"`
	ResumedFrom      int             `json:"resumed_from,omitempty"`
}

// Pipeline runs the compile, format, resolve, reconcile and commit steps for
// a job. Batches run strictly one after another.
type Pipeline struct {
	Client      store.Client
	Checkpoints CheckpointStore
	Formatter   Formatter
	Limits      Limits
	Logger      *slog.Logger
}

// run is the per-invocation state.
type run struct {
	p          *Pipeline
	job        *Job
	mappings   *Mappings
	formatKeys []FieldMapping
	resolver   RelationResolver
	reconciler Reconciler
	exec       Executor
	paginator  Paginator
	logger     *slog.Logger
	progress   slog.Level
}

// Run imports rows according to job.
func (p *Pipeline) Run(ctx context.Context, job *Job, rows []tabular.Row) (*Result, error) {
	r, err := p.prepare(job)
	if err != nil {
		return nil, err
	}
	if job.ValidateRequiredColumns {
		if err := ValidateRequiredColumns(rows, r.mappings); err != nil {
			return nil, err
		}
	}
	if !job.Batching.Enabled {
		return r.runAll(ctx, rows)
	}
	return r.runBatched(ctx, rows)
}

func (p *Pipeline) prepare(job *Job) (*run, error) {
	m, err := CompileColumns(job.Mappings, job.UpdateMappings)
	if err != nil {
		return nil, err
	}

	limits := p.Limits.withDefaults()
	logger := p.Logger
	if logger == nil {
		logger = slog.Default().With("entity", job.Entity, "source", redactLocator(job.Source.URL))
	}

	paginator := Paginator{Client: p.Client, PageSize: limits.PageSize, Ceiling: limits.LookupCeiling}
	r := &run{
		p:          p,
		job:        job,
		mappings:   m,
		formatKeys: append(m.Primary(), m.Update()...),
		resolver:   RelationResolver{Paginator: paginator, Logger: logger},
		reconciler: Reconciler{Mappings: m, Defaults: job.Defaults},
		exec:       Executor{Client: p.Client},
		paginator:  paginator,
		logger:     logger,
		progress:   slog.LevelDebug,
	}
	if job.Logging {
		r.progress = slog.LevelInfo
	}
	if job.Deduplicate.Enabled {
		d, err := NewDedup(m, job.Deduplicate.UniqueColumn, FormatType(strings.ToLower(job.Deduplicate.UniqueType)))
		if err != nil {
			return nil, err
		}
		r.reconciler.Dedup = d
	}
	return r, nil
}

// runAll commits every row in one pass.
func (r *run) runAll(ctx context.Context, rows []tabular.Row) (*Result, error) {
	limits := r.p.Limits.withDefaults()
	if len(rows) > limits.RowCeiling {
		return nil, oversizedError("import", "the number of records to import is too large (%d > %d); enable batching",
			len(rows), limits.RowCeiling)
	}

	res := &Result{Rows: len(rows)}
	if err := r.processBatch(ctx, 0, 0, rows, res); err != nil {
		return nil, err
	}
	res.Message = fmt.Sprintf("Records created: %d, records updated: %d", res.Created, res.Updated)
	return res, nil
}

// runBatched resumes from the checkpoint and commits the remaining batches.
func (r *run) runBatched(ctx context.Context, rows []tabular.Row) (*Result, error) {
	if r.p.Checkpoints == nil {
		return nil, configError("batching", "batching is enabled but no checkpoint store is configured")
	}
	size := r.job.Batching.Size
	batches := Split(rows, size)

	cursor, err := openCursor(ctx, r.p.Checkpoints, r.job.CheckpointKey(), size, r.logger)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Rows:         len(rows),
		Batched:      true,
		BatchesTotal: len(batches),
		ResumedFrom:  cursor.next(),
	}
	for i := cursor.next(); i < len(batches); i++ {
		first := 0
		if size > 0 {
			first = i * size
		}
		if err := r.processBatch(ctx, i+1, first, batches[i], res); err != nil {
			return nil, fmt.Errorf("batch %d of %d: %w", i+1, len(batches), err)
		}
		if err := cursor.advance(ctx, i); err != nil {
			return nil, fmt.Errorf("advance checkpoint after batch %d: %w", i+1, err)
		}
		res.BatchesProcessed++
	}
	if err := cursor.complete(ctx); err != nil {
		return nil, fmt.Errorf("delete checkpoint: %w", err)
	}

	res.State = StateCompleted
	res.Message = fmt.Sprintf("Finished processing %d import lines.", len(rows))
	return res, nil
}

// processBatch formats, resolves, reconciles and commits one batch. number is
// 1-based for logs; first is the row index of the batch's first row.
func (r *run) processBatch(ctx context.Context, number, first int, rows []tabular.Row, res *Result) error {
	start := time.Now()

	formatted := make([]tabular.Row, len(rows))
	for i, row := range rows {
		formatted[i] = r.p.Formatter.FormatRow(row, r.formatKeys, r.mappings.formats)
	}

	relations, err := r.resolver.Resolve(ctx, r.mappings.Relations(), formatted)
	if err != nil {
		return err
	}

	var existing []Record
	if d := r.reconciler.Dedup; d != nil {
		existing, err = d.FetchExisting(ctx, r.paginator, r.job.Entity, r.mappings, formatted)
		if err != nil {
			return err
		}
	}

	payload := r.reconciler.Reconcile(formatted, relations, existing)

	created, err := r.exec.CreateMany(ctx, r.job.Entity, payload.Create)
	if err != nil {
		r.logFailure(err)
		return err
	}
	res.Created += len(created)

	updated, err := r.exec.UpdateMany(ctx, r.job.Entity, payload.Update)
	if err != nil {
		r.logFailure(err)
		return err
	}
	res.Updated += len(updated)
	res.Skipped += payload.Skipped

	if number > 0 {
		r.logger.Log(ctx, r.progress, fmt.Sprintf("Finished batch %d (import lines: %d to %d)", number, first, first+len(rows)-1),
			"new", len(created),
			"updated", len(updated),
			"skipped", payload.Skipped,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	} else {
		r.logger.Log(ctx, r.progress, "import committed",
			"new", len(created),
			"updated", len(updated),
			"skipped", payload.Skipped,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
	return nil
}

func (r *run) logFailure(err error) {
	r.logger.Error("store mutation failed", "error", store.Truncate(err.Error(), maxErrorSummary))
}

// ValidateRequiredColumns fails when there are no rows or when the header
// lacks a required-marked column under both its marked and unmarked name.
func ValidateRequiredColumns(rows []tabular.Row, m *Mappings) error {
	if len(rows) == 0 {
		return configError("validate columns", "no import lines found")
	}
	header := rows[0]
	var missing []string
	for _, key := range m.RequiredKeys() {
		if !header.Has(key) && !header.Has(baseKey(key)) {
			missing = append(missing, baseKey(key))
		}
	}
	if len(missing) > 0 {
		return configError("validate columns", "missing required column(s): %s", strings.Join(missing, ", "))
	}
	return nil
}

// redactLocator drops query strings, which may hold signed tokens.
func redactLocator(s string) string {
	if i := strings.IndexByte(s, '?'); i >= 0 {
		return s[:i]
	}
	return s
}
