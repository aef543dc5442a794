package core

import (
	"context"
	"time"

	"github.com/JonMunkholm/bulkimport/internal/store"
)

// RunStatus is the outcome of a recorded run.
type RunStatus string

const (
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
)

// RunRecord is one entry of the run history.
type RunRecord struct {
	ID               string    `json:"id"`
	Entity           string    `json:"entity"`
	Source           string    `json:"source"`
	Status           RunStatus `json:"status"`
	Message          string    `json:"message,omitempty"`
	Rows             int       `json:"rows"`
	Created          int       `json:"created"`
	Updated          int       `json:"updated"`
	Skipped          int       `json:"skipped"`
	BatchesTotal     int       `json:"batches_total,omitempty"`
	BatchesProcessed int       `json:"batches_processed,omitempty"`
	ErrorCode        string    `json:"error_code,omitempty"`
	Error            string    `json:"error,omitempty"`
	StartedAt        time.Time `json:"started_at"`
	FinishedAt       time.Time `json:"finished_at"`
}

// Duration is the wall time of the run.
func (r RunRecord) Duration() time.Duration { return r.FinishedAt.Sub(r.StartedAt) }

// HistoryRecorder persists run records.
type HistoryRecorder interface {
	RecordRun(ctx context.Context, rec RunRecord) error
}

// newRunRecord builds the history entry for a finished run. Source is stored
// without its query string.
func newRunRecord(id string, job *Job, started time.Time, res *Result, err error) RunRecord {
	rec := RunRecord{
		ID:         id,
		Entity:     job.Entity,
		Source:     redactLocator(job.Source.URL),
		Status:     RunSucceeded,
		StartedAt:  started,
		FinishedAt: time.Now(),
	}
	if res != nil {
		rec.Message = res.Message
		rec.Rows = res.Rows
		rec.Created = res.Created
		rec.Updated = res.Updated
		rec.Skipped = res.Skipped
		rec.BatchesTotal = res.BatchesTotal
		rec.BatchesProcessed = res.BatchesProcessed
	}
	if err != nil {
		rec.Status = RunFailed
		rec.ErrorCode = MapError(err).Code
		rec.Error = store.Truncate(err.Error(), maxErrorSummary)
	}
	return rec
}
