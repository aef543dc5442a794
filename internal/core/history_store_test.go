package core

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	db "github.com/JonMunkholm/bulkimport/internal/database"
	"github.com/jackc/pgx/v5/pgtype"
)

func TestNewRunRecord(t *testing.T) {
	job := &Job{Entity: "Order", Source: SourceSpec{URL: "https://files.example.com/o.csv?sig=abc"}}
	started := time.Now().Add(-time.Second)

	ok := newRunRecord("id-1", job, started, &Result{Rows: 4, Created: 3, Updated: 1, BatchesTotal: 2, BatchesProcessed: 2}, nil)
	assert.Equal(t, RunSucceeded, ok.Status)
	assert.Equal(t, "https://files.example.com/o.csv", ok.Source)
	assert.Equal(t, 3, ok.Created)
	assert.Equal(t, 2, ok.BatchesProcessed)
	assert.Positive(t, ok.Duration())

	failed := newRunRecord("id-2", job, started, nil, storeError("createManyOrder", "boom", nil))
	assert.Equal(t, RunFailed, failed.Status)
	assert.Equal(t, "STORE001", failed.ErrorCode)
	assert.Equal(t, "createManyOrder: boom", failed.Error)
	assert.Zero(t, failed.Rows)
}

func TestRunRowConversion(t *testing.T) {
	started := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	rec := RunRecord{
		ID:         "6f1c2f43-51a6-4c7d-8d1e-3d2bb2d5c9a1",
		Entity:     "Contact",
		Source:     "s3://imports/contacts.csv",
		Status:     RunFailed,
		Rows:       10,
		ErrorCode:  "SRC002",
		Error:      "invalid csv",
		StartedAt:  started,
		FinishedAt: started.Add(time.Minute),
	}

	params := runToParams(rec)
	assert.False(t, params.Message.Valid, "empty message is stored as NULL")
	assert.False(t, params.BatchesTotal.Valid, "non-batched runs store NULL batch counts")
	require.True(t, params.ID.Valid)

	// InsertRunParams and ImportRun share their columns.
	back := runFromRow(db.ImportRun(params))
	assert.Equal(t, rec, back)
}

func TestHistoryStore_GetRejectsMalformedID(t *testing.T) {
	h := NewHistoryStore(nil)
	_, err := h.Get(t.Context(), "not-a-uuid")
	assert.True(t, errors.Is(err, ErrRunNotFound))
}

func TestCheckpointFromRow(t *testing.T) {
	updated := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	cp := checkpointFromRow(db.ImportCheckpoint{
		ID:              9,
		Entity:          "Order",
		Source:          "s3://imports/orders.csv",
		NextBatchOffset: 2,
		BatchSize:       100,
		UpdatedAt:       pgtype.Timestamptz{Time: updated, Valid: true},
	})

	assert.Equal(t, &Checkpoint{
		Key:             CheckpointKey{Entity: "Order", Source: "s3://imports/orders.csv"},
		ID:              "9",
		NextBatchOffset: 2,
		BatchSize:       100,
		UpdatedAt:       updated,
	}, cp)
}
