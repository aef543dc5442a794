package core

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"time"

	"github.com/JonMunkholm/bulkimport/internal/lock"
	"github.com/JonMunkholm/bulkimport/internal/logging"
	"github.com/JonMunkholm/bulkimport/internal/store"
	"github.com/JonMunkholm/bulkimport/internal/tabular"
	"github.com/google/uuid"
)

// historyTimeout bounds writing a run record after the run's own context may
// already be done.
const historyTimeout = 5 * time.Second

// ServiceOptions configures a Service. Fetcher and Client are required.
type ServiceOptions struct {
	Fetcher tabular.Fetcher
	Client  store.Client

	// Checkpoints overrides where batch checkpoints live. Nil keeps them as
	// records of the job's batch entity in the target store.
	Checkpoints CheckpointStore

	// Limiter caps concurrent runs (default: DefaultMaxConcurrentRuns).
	Limiter *RunLimiter

	// Locker is taken after the in-process guard, e.g. a Redis lease.
	Locker lock.Locker

	// History receives a record of every run when set.
	History HistoryRecorder

	Limits         Limits
	Location       *time.Location
	MaxSourceBytes int64

	// RunTimeout bounds one run; 0 for none.
	RunTimeout time.Duration
}

// Service is the entry point for callers. It serializes runs per source,
// bounds concurrent runs, loads the source and runs the pipeline.
type Service struct {
	fetcher     tabular.Fetcher
	client      store.Client
	checkpoints CheckpointStore
	limiter     *RunLimiter
	guard       *lock.Local
	locker      lock.Locker
	history     HistoryRecorder
	formatter   Formatter
	limits      Limits
	maxBytes    int64
	runTimeout  time.Duration
}

// NewService creates a Service.
func NewService(opts ServiceOptions) (*Service, error) {
	if opts.Fetcher == nil {
		return nil, errors.New("service: fetcher is required")
	}
	if opts.Client == nil {
		return nil, errors.New("service: store client is required")
	}

	limiter := opts.Limiter
	if limiter == nil {
		limiter = NewRunLimiter(DefaultMaxConcurrentRuns, DefaultMaxWaitTime)
	}

	guard := lock.NewLocal()
	var locker lock.Locker = guard
	if opts.Locker != nil {
		locker = lock.Chain{guard, opts.Locker}
	}

	return &Service{
		fetcher:     opts.Fetcher,
		client:      opts.Client,
		checkpoints: opts.Checkpoints,
		limiter:     limiter,
		guard:       guard,
		locker:      locker,
		history:     opts.History,
		formatter:   Formatter{Location: opts.Location},
		limits:      opts.Limits,
		maxBytes:    opts.MaxSourceBytes,
		runTimeout:  opts.RunTimeout,
	}, nil
}

// Run imports the job's source. Only one run per source identity may be in
// progress; a second one fails with lock.ErrLocked.
func (s *Service) Run(ctx context.Context, job *Job) (*Result, error) {
	if err := job.Validate(); err != nil {
		return nil, err
	}

	release, err := s.limiter.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	unlock, err := s.locker.TryLock(ctx, lockKey(job))
	if err != nil {
		return nil, err
	}
	defer unlock()

	runID := uuid.NewString()
	logger := logging.WithRun(ctx, runID, job.Entity, redactLocator(job.Source.URL))

	if s.runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.runTimeout)
		defer cancel()
	}

	started := time.Now()
	logger.Info("import started", "batched", job.Batching.Enabled, "batch_size", job.Batching.Size)

	res, err := s.run(ctx, job, logger)
	s.recordRun(ctx, newRunRecord(runID, job, started, res, err), logger)

	if err != nil {
		msg := MapError(err)
		logger.Error("import failed",
			"error", err,
			"code", msg.Code,
			"duration_ms", time.Since(started).Milliseconds(),
		)
		return nil, err
	}

	res.RunID = runID
	logger.Info("import finished",
		"rows", res.Rows,
		"created", res.Created,
		"updated", res.Updated,
		"skipped", res.Skipped,
		"duration_ms", time.Since(started).Milliseconds(),
	)
	return res, nil
}

func (s *Service) run(ctx context.Context, job *Job, logger *slog.Logger) (*Result, error) {
	rows, err := tabular.Load(ctx, s.fetcher, tabular.Source{
		Locator:  job.Source.URL,
		Format:   job.Source.Format,
		Sheet:    job.Source.Sheet,
		MaxBytes: s.maxBytes,
	})
	if err != nil {
		if errors.Is(err, tabular.ErrSourceTooLarge) {
			return nil, &Error{Kind: KindOversizedResult, Op: "load source", Err: err}
		}
		return nil, sourceError("load source", err)
	}
	logger.Debug("source loaded", "rows", len(rows))

	p := &Pipeline{
		Client:      s.client,
		Checkpoints: s.checkpointStore(job),
		Formatter:   s.formatter,
		Limits:      s.limits,
		Logger:      logger,
	}
	return p.Run(ctx, job, rows)
}

func (s *Service) recordRun(ctx context.Context, rec RunRecord, logger *slog.Logger) {
	if s.history == nil {
		return
	}
	hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), historyTimeout)
	defer cancel()
	if err := s.history.RecordRun(hctx, rec); err != nil {
		logger.Warn("failed to record run history", "error", err)
	}
}

// CheckpointStatus is the batch progress of a source.
type CheckpointStatus struct {
	Entity          string          `json:"entity"`
	Source          string          `json:"source"`
	State           CheckpointState `json:"state"`
	NextBatchOffset int             `json:"next_batch_offset"`
	BatchSize       int             `json:"batch_size,omitempty"`
	UpdatedAt       *time.Time      `json:"updated_at,omitempty"`
	Running         bool            `json:"running"`
}

// Status reports the checkpoint of the job's source. A finished run deletes
// its checkpoint, so a completed source reads as not started.
func (s *Service) Status(ctx context.Context, job *Job) (*CheckpointStatus, error) {
	if err := job.Validate(); err != nil {
		return nil, err
	}
	cs := s.checkpointStore(job)
	cp, err := cs.Load(ctx, job.CheckpointKey())
	if err != nil {
		return nil, err
	}

	st := &CheckpointStatus{
		Entity:  job.Entity,
		Source:  redactLocator(job.Source.URL),
		State:   StateNotStarted,
		Running: s.isRunning(lockKey(job)),
	}
	if cp != nil {
		st.State = StateInProgress
		st.NextBatchOffset = cp.NextBatchOffset
		st.BatchSize = cp.BatchSize
		if !cp.UpdatedAt.IsZero() {
			t := cp.UpdatedAt
			st.UpdatedAt = &t
		}
	}
	return st, nil
}

// Reset deletes the checkpoint of the job's source so the next run starts at
// the first batch. It fails with lock.ErrLocked while the source is running.
func (s *Service) Reset(ctx context.Context, job *Job) (bool, error) {
	if err := job.Validate(); err != nil {
		return false, err
	}
	unlock, err := s.locker.TryLock(ctx, lockKey(job))
	if err != nil {
		return false, err
	}
	defer unlock()

	cs := s.checkpointStore(job)
	cp, err := cs.Load(ctx, job.CheckpointKey())
	if err != nil || cp == nil {
		return false, err
	}
	if err := cs.Delete(ctx, cp); err != nil {
		return false, err
	}
	logging.FromContext(ctx).Info("checkpoint reset",
		"entity", job.Entity,
		"source", redactLocator(job.Source.URL),
		"offset", cp.NextBatchOffset,
	)
	return true, nil
}

// RunningStatus is a snapshot of in-flight runs.
type RunningStatus struct {
	Limiter RunLimiterStatus `json:"limiter"`
	Sources []string         `json:"sources"`
}

// Running reports the limiter state and the sources being imported by this
// process.
func (s *Service) Running() RunningStatus {
	keys := s.guard.Running()
	sources := make([]string, len(keys))
	for i, k := range keys {
		sources[i] = redactLocator(k)
	}
	return RunningStatus{Limiter: s.limiter.Status(), Sources: sources}
}

// WaitForRuns blocks until in-flight runs finish or ctx is done.
func (s *Service) WaitForRuns(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}

func (s *Service) checkpointStore(job *Job) CheckpointStore {
	if s.checkpoints != nil {
		return s.checkpoints
	}
	return RemoteCheckpoints{Exec: Executor{Client: s.client}, Model: job.Batching.Model}
}

func (s *Service) isRunning(key string) bool {
	return slices.Contains(s.guard.Running(), key)
}

// lockKey is the source identity runs are serialized on.
func lockKey(job *Job) string {
	return job.Source.URL
}
