package database

import (
	"context"
)

const deleteCheckpoint = `-- name: DeleteCheckpoint :execrows
DELETE FROM import_checkpoints
WHERE entity = $1 AND source = $2
`

type DeleteCheckpointParams struct {
	Entity string `json:"entity"`
	Source string `json:"source"`
}

func (q *Queries) DeleteCheckpoint(ctx context.Context, arg DeleteCheckpointParams) (int64, error) {
	result, err := q.db.Exec(ctx, deleteCheckpoint, arg.Entity, arg.Source)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const getCheckpoint = `-- name: GetCheckpoint :one
SELECT id, entity, source, next_batch_offset, batch_size, created_at, updated_at
FROM import_checkpoints
WHERE entity = $1 AND source = $2
`

type GetCheckpointParams struct {
	Entity string `json:"entity"`
	Source string `json:"source"`
}

func (q *Queries) GetCheckpoint(ctx context.Context, arg GetCheckpointParams) (ImportCheckpoint, error) {
	row := q.db.QueryRow(ctx, getCheckpoint, arg.Entity, arg.Source)
	var i ImportCheckpoint
	err := row.Scan(
		&i.ID,
		&i.Entity,
		&i.Source,
		&i.NextBatchOffset,
		&i.BatchSize,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const listCheckpoints = `-- name: ListCheckpoints :many
SELECT id, entity, source, next_batch_offset, batch_size, created_at, updated_at
FROM import_checkpoints
ORDER BY updated_at DESC
`

func (q *Queries) ListCheckpoints(ctx context.Context) ([]ImportCheckpoint, error) {
	rows, err := q.db.Query(ctx, listCheckpoints)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ImportCheckpoint
	for rows.Next() {
		var i ImportCheckpoint
		if err := rows.Scan(
			&i.ID,
			&i.Entity,
			&i.Source,
			&i.NextBatchOffset,
			&i.BatchSize,
			&i.CreatedAt,
			&i.UpdatedAt,
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

const upsertCheckpoint = `-- name: UpsertCheckpoint :one
INSERT INTO import_checkpoints (entity, source, next_batch_offset, batch_size)
VALUES ($1, $2, $3, $4)
ON CONFLICT (entity, source) DO UPDATE
SET next_batch_offset = EXCLUDED.next_batch_offset,
    batch_size = EXCLUDED.batch_size,
    updated_at = now()
RETURNING id, entity, source, next_batch_offset, batch_size, created_at, updated_at
`

type UpsertCheckpointParams struct {
	Entity          string `json:"entity"`
	Source          string `json:"source"`
	NextBatchOffset int32  `json:"next_batch_offset"`
	BatchSize       int32  `json:"batch_size"`
}

func (q *Queries) UpsertCheckpoint(ctx context.Context, arg UpsertCheckpointParams) (ImportCheckpoint, error) {
	row := q.db.QueryRow(ctx, upsertCheckpoint,
		arg.Entity,
		arg.Source,
		arg.NextBatchOffset,
		arg.BatchSize,
	)
	var i ImportCheckpoint
	err := row.Scan(
		&i.ID,
		&i.Entity,
		&i.Source,
		&i.NextBatchOffset,
		&i.BatchSize,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const resetCheckpoints = `-- name: ResetCheckpoints :execrows
DELETE FROM import_checkpoints
`

func (q *Queries) ResetCheckpoints(ctx context.Context) (int64, error) {
	result, err := q.db.Exec(ctx, resetCheckpoints)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}
