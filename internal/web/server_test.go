package web

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/bulkimport/internal/config"
	"github.com/JonMunkholm/bulkimport/internal/core"
	"github.com/JonMunkholm/bulkimport/internal/lock"
	"github.com/JonMunkholm/bulkimport/internal/tabular"
)

const contactJobJSON = `{
	"entity": "Contact",
	"source": {"url": "https://files.example.com/contacts.csv"},
	"mappings": [{"sourceColumn": "email", "targetPath": "email"}]
}`

const contactJobYAML = `
entity: Contact
source:
  url: https://files.example.com/contacts.csv
mappings:
  - sourceColumn: email
    targetPath: email
`

type fakeImporter struct {
	mu       sync.Mutex
	jobs     []*core.Job
	runErr   error
	resetErr error
	reset    bool
}

func (f *fakeImporter) Run(_ context.Context, job *core.Job) (*core.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs = append(f.jobs, job)
	if f.runErr != nil {
		return nil, f.runErr
	}
	return &core.Result{RunID: "run-1", Message: "Records created: 2, records updated: 0", Rows: 2, Created: 2}, nil
}

func (f *fakeImporter) Status(_ context.Context, job *core.Job) (*core.CheckpointStatus, error) {
	return &core.CheckpointStatus{
		Entity:          job.Entity,
		Source:          job.Source.URL,
		State:           core.StateInProgress,
		NextBatchOffset: 3,
		BatchSize:       100,
	}, nil
}

func (f *fakeImporter) Reset(context.Context, *core.Job) (bool, error) {
	return f.reset, f.resetErr
}

func (f *fakeImporter) Running() core.RunningStatus {
	return core.RunningStatus{
		Limiter: core.RunLimiterStatus{Active: 1, Available: 2, MaxConcurrent: 3},
		Sources: []string{"https://files.example.com/contacts.csv"},
	}
}

type fakeHistory struct {
	runs []core.RunRecord
	opts core.HistoryOptions
}

func (h *fakeHistory) List(_ context.Context, opts core.HistoryOptions) ([]core.RunRecord, error) {
	h.opts = opts
	return h.runs, nil
}

func (h *fakeHistory) Get(_ context.Context, id string) (*core.RunRecord, error) {
	for i := range h.runs {
		if h.runs[i].ID == id {
			return &h.runs[i], nil
		}
	}
	return nil, core.ErrRunNotFound
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Port: 8080, MaxBodyBytes: 1 << 20},
	}
}

func newTestServer(t *testing.T, imp Importer, hist RunHistory, cfg *config.Config) *Server {
	t.Helper()
	s := NewServer(imp, hist, cfg)
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })
	return s
}

func do(s *Server, method, path, contentType, body string, header ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, &fakeImporter{}, nil, testConfig())

	rec := do(s, http.MethodGet, "/healthz", "", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
}

func TestRunImport(t *testing.T) {
	imp := &fakeImporter{}
	s := newTestServer(t, imp, nil, testConfig())

	rec := do(s, http.MethodPost, "/api/imports", "application/json", contactJobJSON)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res core.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, "run-1", res.RunID)
	assert.Equal(t, 2, res.Created)

	require.Len(t, imp.jobs, 1)
	assert.Equal(t, "Contact", imp.jobs[0].Entity)
}

func TestRunImport_YAML(t *testing.T) {
	imp := &fakeImporter{}
	s := newTestServer(t, imp, nil, testConfig())

	rec := do(s, http.MethodPost, "/api/imports", "application/yaml; charset=utf-8", contactJobYAML)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Len(t, imp.jobs, 1)
	assert.Equal(t, "https://files.example.com/contacts.csv", imp.jobs[0].Source.URL)
}

func TestRunImport_InvalidJob(t *testing.T) {
	imp := &fakeImporter{}
	s := newTestServer(t, imp, nil, testConfig())

	rec := do(s, http.MethodPost, "/api/imports", "application/json", `{"entity": "Contact"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "CFG001", decodeError(t, rec).Code)
	assert.Empty(t, imp.jobs)
}

func TestRunImport_BodyTooLarge(t *testing.T) {
	cfg := testConfig()
	cfg.Server.MaxBodyBytes = 16
	imp := &fakeImporter{}
	s := newTestServer(t, imp, nil, cfg)

	rec := do(s, http.MethodPost, "/api/imports", "application/json", contactJobJSON)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, "REQ001", decodeError(t, rec).Code)
	assert.Empty(t, imp.jobs)
}

func TestRunImport_ErrorStatus(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"locked", fmt.Errorf("run: %w", lock.ErrLocked), http.StatusConflict, "RUN001"},
		{"busy", core.ErrTooManyRuns, http.StatusServiceUnavailable, "RUN002"},
		{"store", &core.Error{Kind: core.KindStoreMutation, Op: "createMany", Message: "rejected"}, http.StatusBadGateway, "STORE001"},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError, "ERR000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, &fakeImporter{runErr: tt.err}, nil, testConfig())

			rec := do(s, http.MethodPost, "/api/imports", "application/json", contactJobJSON)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantCode, decodeError(t, rec).Code)
		})
	}
}

func TestRunImport_TooManyRunsSetsRetryAfter(t *testing.T) {
	s := newTestServer(t, &fakeImporter{runErr: core.ErrTooManyRuns}, nil, testConfig())

	rec := do(s, http.MethodPost, "/api/imports", "application/json", contactJobJSON)

	assert.Equal(t, "5", rec.Header().Get("Retry-After"))
}

func TestImportStatusAndReset(t *testing.T) {
	imp := &fakeImporter{reset: true}
	s := newTestServer(t, imp, nil, testConfig())

	rec := do(s, http.MethodPost, "/api/imports/status", "application/json", contactJobJSON)
	require.Equal(t, http.StatusOK, rec.Code)
	var st core.CheckpointStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, core.StateInProgress, st.State)
	assert.Equal(t, 3, st.NextBatchOffset)

	rec = do(s, http.MethodPost, "/api/imports/reset", "application/json", contactJobJSON)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"reset":true}`, rec.Body.String())

	imp.resetErr = lock.ErrLocked
	rec = do(s, http.MethodPost, "/api/imports/reset", "application/json", contactJobJSON)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestRunning(t *testing.T) {
	s := newTestServer(t, &fakeImporter{}, nil, testConfig())

	rec := do(s, http.MethodGet, "/api/imports/running", "", "")

	require.Equal(t, http.StatusOK, rec.Code)
	var st core.RunningStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, 3, st.Limiter.MaxConcurrent)
	assert.Equal(t, []string{"https://files.example.com/contacts.csv"}, st.Sources)
}

func TestHistory(t *testing.T) {
	started := time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)
	hist := &fakeHistory{runs: []core.RunRecord{{
		ID:         "0b7e0d8e-1c4f-4f7e-9d55-8f0e4c1d2a3b",
		Entity:     "Contact",
		Source:     "https://files.example.com/contacts.csv",
		Status:     core.RunSucceeded,
		Rows:       2,
		Created:    2,
		StartedAt:  started,
		FinishedAt: started.Add(1500 * time.Millisecond),
	}}}
	s := newTestServer(t, &fakeImporter{}, hist, testConfig())

	t.Run("list", func(t *testing.T) {
		rec := do(s, http.MethodGet, "/api/imports/history?entity=Contact&limit=5", "", "")
		require.Equal(t, http.StatusOK, rec.Code)

		var body struct {
			Runs  []core.RunRecord `json:"runs"`
			Count int              `json:"count"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, 1, body.Count)
		assert.Equal(t, core.HistoryOptions{Entity: "Contact", Limit: 5}, hist.opts)
	})

	t.Run("entry", func(t *testing.T) {
		rec := do(s, http.MethodGet, "/api/imports/history/0b7e0d8e-1c4f-4f7e-9d55-8f0e4c1d2a3b", "", "")
		require.Equal(t, http.StatusOK, rec.Code)
		var run core.RunRecord
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))
		assert.Equal(t, core.RunSucceeded, run.Status)
	})

	t.Run("unknown entry", func(t *testing.T) {
		rec := do(s, http.MethodGet, "/api/imports/history/nope", "", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "HIST001", decodeError(t, rec).Code)
	})

	t.Run("export", func(t *testing.T) {
		rec := do(s, http.MethodGet, "/api/imports/history/export", "", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
		assert.Equal(t, core.MaxHistoryLimit, hist.opts.Limit)

		records, err := csv.NewReader(rec.Body).ReadAll()
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, "id", records[0][0])
		assert.Equal(t, "succeeded", records[1][3])
		assert.Equal(t, "1500", records[1][11])
	})
}

func TestHistory_Disabled(t *testing.T) {
	s := newTestServer(t, &fakeImporter{}, nil, testConfig())

	for _, path := range []string{"/api/imports/history", "/api/imports/history/x", "/api/imports/history/export"} {
		rec := do(s, http.MethodGet, path, "", "")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, path)
		assert.Equal(t, "HIST002", decodeError(t, rec).Code, path)
	}
}

func TestAPIKeyRequired(t *testing.T) {
	cfg := testConfig()
	cfg.Security = config.SecurityConfig{RequireAPIKey: true, APIKeys: []string{"k1", "k2"}}
	s := newTestServer(t, &fakeImporter{}, nil, cfg)

	assert.Equal(t, http.StatusUnauthorized, do(s, http.MethodGet, "/api/imports/running", "", "").Code)
	assert.Equal(t, http.StatusForbidden, do(s, http.MethodGet, "/api/imports/running", "", "", "X-API-Key", "bad").Code)
	assert.Equal(t, http.StatusOK, do(s, http.MethodGet, "/api/imports/running", "", "", "X-API-Key", "k2").Code)
	assert.Equal(t, http.StatusOK, do(s, http.MethodGet, "/api/imports/running", "", "", "Authorization", "Bearer k1").Code)
	assert.Equal(t, http.StatusOK, do(s, http.MethodGet, "/healthz", "", "").Code, "health checks skip auth")
}

func TestRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.Rate = config.RateLimitConfig{Enabled: true, RequestsPerMinute: 2, ImportLimit: 1}

	t.Run("general", func(t *testing.T) {
		s := newTestServer(t, &fakeImporter{}, nil, cfg)

		assert.Equal(t, http.StatusOK, do(s, http.MethodGet, "/healthz", "", "").Code)
		assert.Equal(t, http.StatusOK, do(s, http.MethodGet, "/healthz", "", "").Code)

		rec := do(s, http.MethodGet, "/healthz", "", "")
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.Equal(t, "RATE001", decodeError(t, rec).Code)
		assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	})

	t.Run("imports", func(t *testing.T) {
		s := newTestServer(t, &fakeImporter{}, nil, cfg)

		assert.Equal(t, http.StatusOK, do(s, http.MethodPost, "/api/imports", "application/json", contactJobJSON).Code)
		assert.Equal(t, http.StatusTooManyRequests, do(s, http.MethodPost, "/api/imports", "application/json", contactJobJSON).Code)
	})
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"body too large", &http.MaxBytesError{Limit: 10}, http.StatusRequestEntityTooLarge},
		{"locked", lock.ErrLocked, http.StatusConflict},
		{"busy", core.ErrTooManyRuns, http.StatusServiceUnavailable},
		{"run not found", core.ErrRunNotFound, http.StatusNotFound},
		{"timeout", fmt.Errorf("run: %w", context.DeadlineExceeded), http.StatusGatewayTimeout},
		{"configuration", &core.Error{Kind: core.KindConfiguration, Message: "entity is required"}, http.StatusBadRequest},
		{"invalid mapping", &core.InvalidMappingError{SourceKey: "a", TargetPath: "a.b.c"}, http.StatusBadRequest},
		{"oversized lookup", &core.Error{Kind: core.KindOversizedResult, Message: "20001 > 20000"}, http.StatusUnprocessableEntity},
		{"source too large", &core.Error{Kind: core.KindOversizedResult, Err: tabular.ErrSourceTooLarge}, http.StatusRequestEntityTooLarge},
		{"source unavailable", &core.Error{Kind: core.KindSourceUnavailable, Err: errors.New("404")}, http.StatusBadGateway},
		{"store", &core.Error{Kind: core.KindStoreMutation, Message: "rejected"}, http.StatusBadGateway},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}
