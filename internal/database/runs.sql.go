package database

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const getRun = `-- name: GetRun :one
SELECT id, entity, source, status, message, rows, created, updated, skipped,
       batches_total, batches_processed, error_code, error, started_at, finished_at
FROM import_runs
WHERE id = $1
`

func (q *Queries) GetRun(ctx context.Context, id pgtype.UUID) (ImportRun, error) {
	row := q.db.QueryRow(ctx, getRun, id)
	var i ImportRun
	err := row.Scan(
		&i.ID,
		&i.Entity,
		&i.Source,
		&i.Status,
		&i.Message,
		&i.Rows,
		&i.Created,
		&i.Updated,
		&i.Skipped,
		&i.BatchesTotal,
		&i.BatchesProcessed,
		&i.ErrorCode,
		&i.Error,
		&i.StartedAt,
		&i.FinishedAt,
	)
	return i, err
}

const insertRun = `-- name: InsertRun :exec
INSERT INTO import_runs (
    id, entity, source, status, message, rows, created, updated, skipped,
    batches_total, batches_processed, error_code, error, started_at, finished_at
) VALUES (
    $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15
)
`

type InsertRunParams struct {
	ID               pgtype.UUID        `json:"id"`
	Entity           string             `json:"entity"`
	Source           string             `json:"source"`
	Status           string             `json:"status"`
	Message          pgtype.Text        `json:"message"`
	Rows             int32              `json:"rows"`
	Created          int32              `json:"created"`
	Updated          int32              `json:"updated"`
	Skipped          int32              `json:"skipped"`
	BatchesTotal     pgtype.Int4        `json:"batches_total"`
	BatchesProcessed pgtype.Int4        `json:"batches_processed"`
	ErrorCode        pgtype.Text        `json:"error_code"`
	Error            pgtype.Text        `json:"error"`
	StartedAt        pgtype.Timestamptz `json:"started_at"`
	FinishedAt       pgtype.Timestamptz `json:"finished_at"`
}

func (q *Queries) InsertRun(ctx context.Context, arg InsertRunParams) error {
	_, err := q.db.Exec(ctx, insertRun,
		arg.ID,
		arg.Entity,
		arg.Source,
		arg.Status,
		arg.Message,
		arg.Rows,
		arg.Created,
		arg.Updated,
		arg.Skipped,
		arg.BatchesTotal,
		arg.BatchesProcessed,
		arg.ErrorCode,
		arg.Error,
		arg.StartedAt,
		arg.FinishedAt,
	)
	return err
}

const listRuns = `-- name: ListRuns :many
SELECT id, entity, source, status, message, rows, created, updated, skipped,
       batches_total, batches_processed, error_code, error, started_at, finished_at
FROM import_runs
WHERE ($1::text IS NULL OR entity = $1)
ORDER BY finished_at DESC
LIMIT $2
`

type ListRunsParams struct {
	Entity pgtype.Text `json:"entity"`
	Limit  int32       `json:"limit"`
}

func (q *Queries) ListRuns(ctx context.Context, arg ListRunsParams) ([]ImportRun, error) {
	rows, err := q.db.Query(ctx, listRuns, arg.Entity, arg.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ImportRun
	for rows.Next() {
		var i ImportRun
		if err := rows.Scan(
			&i.ID,
			&i.Entity,
			&i.Source,
			&i.Status,
			&i.Message,
			&i.Rows,
			&i.Created,
			&i.Updated,
			&i.Skipped,
			&i.BatchesTotal,
			&i.BatchesProcessed,
			&i.ErrorCode,
			&i.Error,
			&i.StartedAt,
			&i.FinishedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const purgeRuns = `-- name: PurgeRuns :execrows
DELETE FROM import_runs
WHERE finished_at < now() - make_interval(days => $1::int)
`

func (q *Queries) PurgeRuns(ctx context.Context, days int32) (int64, error) {
	result, err := q.db.Exec(ctx, purgeRuns, days)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const resetRuns = `-- name: ResetRuns :execrows
DELETE FROM import_runs
`

func (q *Queries) ResetRuns(ctx context.Context) (int64, error) {
	result, err := q.db.Exec(ctx, resetRuns)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}
