package database

import (
	"github.com/jackc/pgx/v5/pgtype"
)

type ImportCheckpoint struct {
	ID              int64              `json:"id"`
	Entity          string             `json:"entity"`
	Source          string             `json:"source"`
	NextBatchOffset int32              `json:"next_batch_offset"`
	BatchSize       int32              `json:"batch_size"`
	CreatedAt       pgtype.Timestamptz `json:"created_at"`
	UpdatedAt       pgtype.Timestamptz `json:"updated_at"`
}

type ImportRun struct {
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
