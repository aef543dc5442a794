// Package admin provides administrative operations on the import database.
package admin

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	db "github.com/JonMunkholm/bulkimport/internal/database"
)

// ResetTimeout is the maximum duration for database reset operations.
const ResetTimeout = 30 * time.Second

// ResetDbs clears the tables owned by the import service.
type ResetDbs struct {
	DB *db.Queries
}

type dbResetFn func(ctx context.Context) (int64, error)

// ResetAll deletes every stored checkpoint and run record. Batched imports
// in progress start over from their first batch afterwards.
// This is a destructive operation - use with caution.
func (r *ResetDbs) ResetAll(ctx context.Context) (map[string]int64, error) {
	return r.runResets(ctx, map[string]dbResetFn{
		"import_checkpoints": r.DB.ResetCheckpoints,
		"import_runs":        r.DB.ResetRuns,
	})
}

// ResetCheckpoints deletes every stored checkpoint and keeps run history.
func (r *ResetDbs) ResetCheckpoints(ctx context.Context) (map[string]int64, error) {
	return r.runResets(ctx, map[string]dbResetFn{
		"import_checkpoints": r.DB.ResetCheckpoints,
	})
}

func (r *ResetDbs) runResets(ctx context.Context, resets map[string]dbResetFn) (map[string]int64, error) {
	ctx, cancel := context.WithTimeout(ctx, ResetTimeout)
	defer cancel()

	deleted := make(map[string]int64, len(resets))
	for table, reset := range resets {
		n, err := reset(ctx)
		if err != nil {
			return deleted, fmt.Errorf("reset %s: %w", table, err)
		}
		deleted[table] = n
		slog.Info("table reset", "table", table, "rows", n)
	}
	return deleted, nil
}
