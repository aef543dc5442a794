package core

import (
	"context"
	"log/slog"
)

// Split cuts items into consecutive batches of size; the last batch may be
// shorter. A non-positive size yields a single batch holding everything.
func Split[T any](items []T, size int) [][]T {
	if size <= 0 || size >= len(items) {
		if len(items) == 0 {
			return nil
		}
		return [][]T{items}
	}
	out := make([][]T, 0, (len(items)+size-1)/size)
	for i := 0; i < len(items); i += size {
		end := min(i+size, len(items))
		out = append(out, items[i:end:end])
	}
	return out
}

// CheckpointState is the batch state of a source.
type CheckpointState string

const (
	StateNotStarted CheckpointState = "not_started"
	StateInProgress CheckpointState = "in_progress"
	StateCompleted  CheckpointState = "completed"
)

// batchCursor drives the checkpoint of one batched run.
type batchCursor struct {
	store  CheckpointStore
	cp     *Checkpoint
	logger *slog.Logger
}

// openCursor loads the checkpoint for key, creating it at offset 0 when absent.
func openCursor(ctx context.Context, cs CheckpointStore, key CheckpointKey, batchSize int, logger *slog.Logger) (*batchCursor, error) {
	cp, err := cs.Load(ctx, key)
	if err != nil {
		return nil, err
	}
	if cp == nil {
		cp = &Checkpoint{Key: key, BatchSize: batchSize}
		if err := cs.Save(ctx, cp); err != nil {
			return nil, err
		}
		logger.Info("checkpoint created", "source", key.Source)
	} else {
		if cp.BatchSize > 0 && cp.BatchSize != batchSize {
			logger.Warn("checkpoint was written with a different batch size; resuming at stored batch index",
				"stored_batch_size", cp.BatchSize,
				"batch_size", batchSize,
				"offset", cp.NextBatchOffset,
			)
		}
		logger.Info("resuming from checkpoint", "source", key.Source, "offset", cp.NextBatchOffset)
	}
	if cp.NextBatchOffset < 0 {
		cp.NextBatchOffset = 0
	}
	return &batchCursor{store: cs, cp: cp, logger: logger}, nil
}

// next is the index of the first unprocessed batch.
func (c *batchCursor) next() int { return c.cp.NextBatchOffset }

// advance records that batch i committed.
func (c *batchCursor) advance(ctx context.Context, i int) error {
	c.cp.NextBatchOffset = i + 1
	return c.store.Save(ctx, c.cp)
}

// complete deletes the checkpoint.
func (c *batchCursor) complete(ctx context.Context) error {
	if err := c.store.Delete(ctx, c.cp); err != nil {
		return err
	}
	c.logger.Info("checkpoint deleted", "source", c.cp.Key.Source)
	return nil
}
