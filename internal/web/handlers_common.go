package web

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/JonMunkholm/bulkimport/internal/core"
)

// parseIntParam parses an integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil || i < 1 {
		return defaultVal
	}
	return i
}

// jobFormat picks the job decoder from the request content type. JSON is the
// default; any YAML media type selects YAML.
func jobFormat(r *http.Request) string {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return "json"
	}
	if strings.Contains(mediaType, "yaml") {
		return "yaml"
	}
	return "json"
}

// readJob decodes and validates the job in the request body. On failure it
// writes the error response and returns nil.
func (s *Server) readJob(w http.ResponseWriter, r *http.Request) *core.Job {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Server.MaxBodyBytes)
	data, err := io.ReadAll(r.Body)
	if err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			respondErrorJSON(w, bodyTooLargeMessage, http.StatusRequestEntityTooLarge)
			return nil
		}
		respondError(w, r, err, http.StatusBadRequest)
		return nil
	}

	job, err := core.ParseJob(data, jobFormat(r))
	if err != nil {
		respondError(w, r, err, http.StatusBadRequest)
		return nil
	}
	return job
}
