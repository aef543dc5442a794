package core

import (
	"context"
	"errors"

	db "github.com/JonMunkholm/bulkimport/internal/database"
	"github.com/jackc/pgx/v5"
)

// DefaultHistoryLimit is the default number of runs returned by List.
const DefaultHistoryLimit = 50

// MaxHistoryLimit caps List.
const MaxHistoryLimit = 500

// ErrRunNotFound is returned by Get for an unknown run id.
var ErrRunNotFound = errors.New("run not found")

// HistoryStore keeps run records in PostgreSQL.
type HistoryStore struct {
	q *db.Queries
}

// NewHistoryStore creates a history store on a pool or transaction.
func NewHistoryStore(conn db.DBTX) *HistoryStore {
	return &HistoryStore{q: db.New(conn)}
}

// RecordRun implements HistoryRecorder.
func (h *HistoryStore) RecordRun(ctx context.Context, rec RunRecord) error {
	return h.q.InsertRun(ctx, runToParams(rec))
}

// HistoryOptions filters List.
type HistoryOptions struct {
	Entity string
	Limit  int
}

// List returns the most recent runs first.
func (h *HistoryStore) List(ctx context.Context, opts HistoryOptions) ([]RunRecord, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	limit = min(limit, MaxHistoryLimit)

	rows, err := h.q.ListRuns(ctx, db.ListRunsParams{
		Entity: ToPgText(opts.Entity),
		Limit:  int32(limit),
	})
	if err != nil {
		return nil, err
	}
	out := make([]RunRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, runFromRow(r))
	}
	return out, nil
}

// Get returns one run.
func (h *HistoryStore) Get(ctx context.Context, id string) (*RunRecord, error) {
	pgID := ToPgUUID(id)
	if !pgID.Valid {
		return nil, ErrRunNotFound
	}
	row, err := h.q.GetRun(ctx, pgID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, err
	}
	rec := runFromRow(row)
	return &rec, nil
}

// Purge deletes runs that finished more than days ago.
func (h *HistoryStore) Purge(ctx context.Context, days int) (int64, error) {
	return h.q.PurgeRuns(ctx, int32(days))
}

func runToParams(rec RunRecord) db.InsertRunParams {
	return db.InsertRunParams{
		ID:               ToPgUUID(rec.ID),
		Entity:           rec.Entity,
		Source:           rec.Source,
		Status:           string(rec.Status),
		Message:          ToPgText(rec.Message),
		Rows:             int32(rec.Rows),
		Created:          int32(rec.Created),
		Updated:          int32(rec.Updated),
		Skipped:          int32(rec.Skipped),
		BatchesTotal:     ToPgInt4(rec.BatchesTotal),
		BatchesProcessed: ToPgInt4(rec.BatchesProcessed),
		ErrorCode:        ToPgText(rec.ErrorCode),
		Error:            ToPgText(rec.Error),
		StartedAt:        ToPgTimestamptz(rec.StartedAt),
		FinishedAt:       ToPgTimestamptz(rec.FinishedAt),
	}
}

func runFromRow(r db.ImportRun) RunRecord {
	return RunRecord{
		ID:               PgUUIDToString(r.ID),
		Entity:           r.Entity,
		Source:           r.Source,
		Status:           RunStatus(r.Status),
		Message:          PgTextToString(r.Message),
		Rows:             int(r.Rows),
		Created:          int(r.Created),
		Updated:          int(r.Updated),
		Skipped:          int(r.Skipped),
		BatchesTotal:     PgInt4ToInt(r.BatchesTotal),
		BatchesProcessed: PgInt4ToInt(r.BatchesProcessed),
		ErrorCode:        PgTextToString(r.ErrorCode),
		Error:            PgTextToString(r.Error),
		StartedAt:        PgTimestamptzToTime(r.StartedAt),
		FinishedAt:       PgTimestamptzToTime(r.FinishedAt),
	}
}
