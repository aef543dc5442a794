package core

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/bulkimport/internal/lock"
	"github.com/JonMunkholm/bulkimport/internal/tabular"
)

const contactsCSV = "email,name\nann@example.com,Ann\nbob@example.com,Bob\ncid@example.com,Cid\n"

type stubFetcher struct {
	mu    sync.Mutex
	body  string
	err   error
	calls int
}

func (f *stubFetcher) Fetch(_ context.Context, _ string) (*tabular.Object, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &tabular.Object{
		Body:        io.NopCloser(strings.NewReader(f.body)),
		Size:        int64(len(f.body)),
		ContentType: "text/csv",
	}, nil
}

type memHistory struct {
	mu   sync.Mutex
	runs []RunRecord
}

func (h *memHistory) RecordRun(_ context.Context, rec RunRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.runs = append(h.runs, rec)
	return nil
}

func newTestService(t *testing.T, fetcher tabular.Fetcher, ms *memStore, opts ServiceOptions) (*Service, *memHistory) {
	t.Helper()
	hist := &memHistory{}
	opts.Fetcher = fetcher
	opts.Client = ms
	opts.History = hist
	svc, err := NewService(opts)
	require.NoError(t, err)
	return svc, hist
}

func TestNewService_RequiresDependencies(t *testing.T) {
	_, err := NewService(ServiceOptions{Client: newMemStore()})
	assert.Error(t, err)
	_, err = NewService(ServiceOptions{Fetcher: &stubFetcher{}})
	assert.Error(t, err)
}

func TestService_Run(t *testing.T) {
	ms := newMemStore()
	svc, hist := newTestService(t, &stubFetcher{body: contactsCSV}, ms, ServiceOptions{})

	res, err := svc.Run(context.Background(), contactJob())
	require.NoError(t, err)

	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, 3, res.Rows)
	assert.Equal(t, 3, res.Created)
	assert.Len(t, ms.all("Contact"), 3)

	require.Len(t, hist.runs, 1)
	rec := hist.runs[0]
	assert.Equal(t, res.RunID, rec.ID)
	assert.Equal(t, RunSucceeded, rec.Status)
	assert.Equal(t, 3, rec.Created)
	assert.Empty(t, rec.ErrorCode)
	assert.False(t, rec.FinishedAt.Before(rec.StartedAt))

	assert.Empty(t, svc.Running().Sources, "lock is released after the run")
	assert.Equal(t, 0, svc.Running().Limiter.Active)
}

func TestService_RunBatchedUsesStoreCheckpoints(t *testing.T) {
	ms := newMemStore()
	svc, _ := newTestService(t, &stubFetcher{body: contactsCSV}, ms, ServiceOptions{})
	job := contactJob()
	job.Batching = BatchingSpec{Enabled: true, Size: 2}

	res, err := svc.Run(context.Background(), job)
	require.NoError(t, err)

	assert.Equal(t, StateCompleted, res.State)
	assert.Equal(t, 2, res.BatchesProcessed)
	assert.Len(t, ms.opCalls("createImportBatch"), 1)
	assert.Len(t, ms.opCalls("updateImportBatch"), 2)
	assert.Empty(t, ms.all("ImportBatch"), "checkpoint record is deleted when the run completes")
}

func TestService_RunLocked(t *testing.T) {
	ms := newMemStore()
	fetcher := &stubFetcher{body: contactsCSV}
	svc, hist := newTestService(t, fetcher, ms, ServiceOptions{})

	release, err := svc.guard.TryLock(context.Background(), contactsSource)
	require.NoError(t, err)
	defer release()

	_, err = svc.Run(context.Background(), contactJob())
	require.ErrorIs(t, err, lock.ErrLocked)
	assert.Equal(t, "RUN001", MapError(err).Code)
	assert.Equal(t, 0, fetcher.calls)
	assert.Empty(t, hist.runs, "rejected runs are not recorded")

	assert.Equal(t, []string{contactsSource}, svc.Running().Sources)
}

func TestService_RunExternalLocker(t *testing.T) {
	ms := newMemStore()
	svc, _ := newTestService(t, &stubFetcher{body: contactsCSV}, ms, ServiceOptions{Locker: denyLocker{}})

	_, err := svc.Run(context.Background(), contactJob())
	require.ErrorIs(t, err, lock.ErrLocked)
	assert.Empty(t, svc.Running().Sources, "in-process guard is released when a later lock fails")
}

type denyLocker struct{}

func (denyLocker) TryLock(context.Context, string) (func(), error) { return nil, lock.ErrLocked }

func TestService_RunSourceErrors(t *testing.T) {
	tests := []struct {
		name     string
		fetcher  *stubFetcher
		maxBytes int64
		wantErr  error
		wantCode string
	}{
		{
			name:     "unsupported locator",
			fetcher:  &stubFetcher{err: fmt.Errorf("%w: ftp", tabular.ErrUnsupportedLocator)},
			wantErr:  ErrSourceUnavailable,
			wantCode: "SRC005",
		},
		{
			name:     "too large",
			fetcher:  &stubFetcher{body: contactsCSV},
			maxBytes: 10,
			wantErr:  ErrOversizedResult,
			wantCode: "SIZE001",
		},
		{
			name:     "empty file",
			fetcher:  &stubFetcher{body: ""},
			wantErr:  ErrSourceUnavailable,
			wantCode: "SRC004",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ms := newMemStore()
			svc, hist := newTestService(t, tt.fetcher, ms, ServiceOptions{MaxSourceBytes: tt.maxBytes})

			_, err := svc.Run(context.Background(), contactJob())
			require.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, tt.wantCode, MapError(err).Code)
			assert.Empty(t, ms.calls)

			require.Len(t, hist.runs, 1)
			assert.Equal(t, RunFailed, hist.runs[0].Status)
			assert.Equal(t, tt.wantCode, hist.runs[0].ErrorCode)
			assert.NotEmpty(t, hist.runs[0].Error)
		})
	}
}

func TestService_RunInvalidJob(t *testing.T) {
	fetcher := &stubFetcher{body: contactsCSV}
	svc, hist := newTestService(t, fetcher, newMemStore(), ServiceOptions{})

	_, err := svc.Run(context.Background(), &Job{Entity: "Contact"})
	assert.ErrorIs(t, err, ErrConfiguration)
	assert.Equal(t, 0, fetcher.calls)
	assert.Empty(t, hist.runs)
}

func TestService_StatusAndReset(t *testing.T) {
	ctx := context.Background()
	cps := NewMemoryCheckpoints()
	svc, _ := newTestService(t, &stubFetcher{body: contactsCSV}, newMemStore(), ServiceOptions{Checkpoints: cps})
	job := contactJob()
	job.Source.URL = contactsSource + "?token=secret"

	st, err := svc.Status(ctx, job)
	require.NoError(t, err)
	assert.Equal(t, StateNotStarted, st.State)
	assert.Equal(t, contactsSource, st.Source, "query string is redacted")
	assert.Nil(t, st.UpdatedAt)

	require.NoError(t, cps.Save(ctx, &Checkpoint{Key: job.CheckpointKey(), NextBatchOffset: 2, BatchSize: 50}))

	st, err = svc.Status(ctx, job)
	require.NoError(t, err)
	assert.Equal(t, StateInProgress, st.State)
	assert.Equal(t, 2, st.NextBatchOffset)
	assert.Equal(t, 50, st.BatchSize)
	assert.NotNil(t, st.UpdatedAt)
	assert.False(t, st.Running)

	release, err := svc.guard.TryLock(ctx, job.Source.URL)
	require.NoError(t, err)
	st, err = svc.Status(ctx, job)
	require.NoError(t, err)
	assert.True(t, st.Running)
	_, err = svc.Reset(ctx, job)
	assert.ErrorIs(t, err, lock.ErrLocked)
	release()

	reset, err := svc.Reset(ctx, job)
	require.NoError(t, err)
	assert.True(t, reset)
	assert.Equal(t, 0, cps.Len())

	reset, err = svc.Reset(ctx, job)
	require.NoError(t, err)
	assert.False(t, reset, "nothing to reset")
}

func TestService_ConcurrentRunsSameSource(t *testing.T) {
	ms := newMemStore()
	block := make(chan struct{})
	fetcher := &blockingFetcher{body: contactsCSV, started: make(chan struct{}), release: block}
	svc, _ := newTestService(t, fetcher, ms, ServiceOptions{})

	errc := make(chan error, 1)
	go func() {
		_, err := svc.Run(context.Background(), contactJob())
		errc <- err
	}()
	<-fetcher.started

	_, err := svc.Run(context.Background(), contactJob())
	assert.ErrorIs(t, err, lock.ErrLocked)

	close(block)
	require.NoError(t, <-errc)
	assert.Len(t, ms.all("Contact"), 3)
}

type blockingFetcher struct {
	body    string
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (f *blockingFetcher) Fetch(ctx context.Context, _ string) (*tabular.Object, error) {
	f.once.Do(func() { close(f.started) })
	select {
	case <-f.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return &tabular.Object{Body: io.NopCloser(strings.NewReader(f.body)), Size: -1}, nil
}
