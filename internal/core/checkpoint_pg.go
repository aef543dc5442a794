package core

import (
	"context"
	"errors"
	"strconv"

	db "github.com/JonMunkholm/bulkimport/internal/database"
	"github.com/jackc/pgx/v5"
)

// PostgresCheckpoints keeps checkpoints in the import_checkpoints table,
// keyed by entity and source.
type PostgresCheckpoints struct {
	q *db.Queries
}

// NewPostgresCheckpoints creates a checkpoint store on a pool.
func NewPostgresCheckpoints(conn db.DBTX) *PostgresCheckpoints {
	return &PostgresCheckpoints{q: db.New(conn)}
}

// Load implements CheckpointStore.
func (p *PostgresCheckpoints) Load(ctx context.Context, key CheckpointKey) (*Checkpoint, error) {
	row, err := p.q.GetCheckpoint(ctx, db.GetCheckpointParams{Entity: key.Entity, Source: key.Source})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return checkpointFromRow(row), nil
}

// Save implements CheckpointStore.
func (p *PostgresCheckpoints) Save(ctx context.Context, cp *Checkpoint) error {
	row, err := p.q.UpsertCheckpoint(ctx, db.UpsertCheckpointParams{
		Entity:          cp.Key.Entity,
		Source:          cp.Key.Source,
		NextBatchOffset: int32(cp.NextBatchOffset),
		BatchSize:       int32(cp.BatchSize),
	})
	if err != nil {
		return err
	}
	cp.ID = strconv.FormatInt(row.ID, 10)
	cp.UpdatedAt = PgTimestamptzToTime(row.UpdatedAt)
	return nil
}

// Delete implements CheckpointStore.
func (p *PostgresCheckpoints) Delete(ctx context.Context, cp *Checkpoint) error {
	if cp == nil {
		return nil
	}
	_, err := p.q.DeleteCheckpoint(ctx, db.DeleteCheckpointParams{Entity: cp.Key.Entity, Source: cp.Key.Source})
	return err
}

func checkpointFromRow(row db.ImportCheckpoint) *Checkpoint {
	return &Checkpoint{
		Key:             CheckpointKey{Entity: row.Entity, Source: row.Source},
		ID:              strconv.FormatInt(row.ID, 10),
		NextBatchOffset: int(row.NextBatchOffset),
		BatchSize:       int(row.BatchSize),
		UpdatedAt:       PgTimestamptzToTime(row.UpdatedAt),
	}
}
