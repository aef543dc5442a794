package web

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/bulkimport/internal/core"
	"github.com/JonMunkholm/bulkimport/internal/logging"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleRunImport runs the posted job to completion and returns its result.
// The run is bound to the request context, so a client that disconnects
// cancels the import; batched imports resume from their checkpoint.
func (s *Server) handleRunImport(w http.ResponseWriter, r *http.Request) {
	job := s.readJob(w, r)
	if job == nil {
		return
	}

	res, err := s.importer.Run(r.Context(), job)
	if err != nil {
		respondError(w, r, err, 0)
		return
	}

	logging.FromContext(r.Context()).Info("import finished via api",
		"run_id", res.RunID,
		"entity", job.Entity,
		"created", res.Created,
		"updated", res.Updated,
	)
	writeJSON(w, http.StatusOK, res)
}

// handleImportStatus reports the checkpoint of the posted job's source.
func (s *Server) handleImportStatus(w http.ResponseWriter, r *http.Request) {
	job := s.readJob(w, r)
	if job == nil {
		return
	}

	st, err := s.importer.Status(r.Context(), job)
	if err != nil {
		respondError(w, r, err, 0)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// handleResetImport deletes the checkpoint of the posted job's source so the
// next run starts from the first batch.
func (s *Server) handleResetImport(w http.ResponseWriter, r *http.Request) {
	job := s.readJob(w, r)
	if job == nil {
		return
	}

	reset, err := s.importer.Reset(r.Context(), job)
	if err != nil {
		respondError(w, r, err, 0)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"reset": reset})
}

func (s *Server) handleRunning(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.importer.Running())
}

// handleHistory lists recorded runs, newest first.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		respondErrorJSON(w, historyDisabledMessage, http.StatusServiceUnavailable)
		return
	}

	runs, err := s.history.List(r.Context(), core.HistoryOptions{
		Entity: r.URL.Query().Get("entity"),
		Limit:  parseIntParam(r, "limit", core.DefaultHistoryLimit),
	})
	if err != nil {
		respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs, "count": len(runs)})
}

// handleHistoryEntry returns one recorded run.
func (s *Server) handleHistoryEntry(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		respondErrorJSON(w, historyDisabledMessage, http.StatusServiceUnavailable)
		return
	}

	run, err := s.history.Get(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		respondError(w, r, err, 0)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// handleHistoryExport writes recorded runs as a CSV attachment.
func (s *Server) handleHistoryExport(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		respondErrorJSON(w, historyDisabledMessage, http.StatusServiceUnavailable)
		return
	}

	runs, err := s.history.List(r.Context(), core.HistoryOptions{
		Entity: r.URL.Query().Get("entity"),
		Limit:  parseIntParam(r, "limit", core.MaxHistoryLimit),
	})
	if err != nil {
		respondError(w, r, err, http.StatusInternalServerError)
		return
	}

	filename := fmt.Sprintf("import_runs_%s.csv", time.Now().Format("20060102_150405"))
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))

	cw := csv.NewWriter(w)
	_ = cw.Write([]string{
		"id", "entity", "source", "status", "rows", "created", "updated", "skipped",
		"error_code", "error", "started_at", "duration_ms",
	})
	for _, run := range runs {
		_ = cw.Write([]string{
			run.ID,
			run.Entity,
			run.Source,
			string(run.Status),
			strconv.Itoa(run.Rows),
			strconv.Itoa(run.Created),
			strconv.Itoa(run.Updated),
			strconv.Itoa(run.Skipped),
			run.ErrorCode,
			run.Error,
			run.StartedAt.Format(time.RFC3339),
			strconv.FormatInt(run.Duration().Milliseconds(), 10),
		})
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		logging.FromContext(r.Context()).Error("history export failed", "error", err)
	}
}
