package web

// errors.go provides unified error response handling for the web layer.
//
// Every error is logged with its technical detail and the request ID, then
// returned to the client as a JSON body carrying the code from core.MapError.
// statusFor picks the HTTP status from the error kind.

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/bulkimport/internal/core"
	"github.com/JonMunkholm/bulkimport/internal/lock"
	"github.com/JonMunkholm/bulkimport/internal/tabular"
)

// ErrorResponse represents the JSON structure for API error responses.
// Includes both machine-readable (Code) and human-readable (Message, Action) fields.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

var (
	rateLimitedMessage = core.UserMessage{
		Message: "Too many requests",
		Action:  "Please wait a moment before trying again",
		Code:    "RATE001",
	}
	historyDisabledMessage = core.UserMessage{
		Message: "Run history is not available",
		Action:  "Configure DATABASE_URL to record import runs",
		Code:    "HIST002",
	}
	bodyTooLargeMessage = core.UserMessage{
		Message: "The request body is too large",
		Action:  "Send a smaller job definition",
		Code:    "REQ001",
	}
)

// respondError logs err with request context and writes the mapped user
// message. A status of 0 derives the status from the error.
func respondError(w http.ResponseWriter, r *http.Request, err error, statusCode int) {
	if statusCode == 0 {
		statusCode = statusFor(err)
	}
	userMsg := core.MapError(err)

	// Get request ID for correlation
	requestID := middleware.GetReqID(r.Context())

	level := slog.LevelError
	if statusCode < http.StatusInternalServerError {
		level = slog.LevelWarn
	}
	slog.Log(r.Context(), level, "request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", statusCode,
		"error", err.Error(),
		"code", userMsg.Code,
		"request_id", requestID,
	)

	if errors.Is(err, core.ErrTooManyRuns) {
		w.Header().Set("Retry-After", "5")
	}
	respondErrorJSON(w, userMsg, statusCode)
}

// respondErrorJSON writes a JSON error response.
func respondErrorJSON(w http.ResponseWriter, msg core.UserMessage, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(ErrorResponse{
		Error:   msg.Message,
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
	}); err != nil {
		slog.Error("json encode error", "error", err)
	}
}

// statusFor maps an error to an HTTP status code.
func statusFor(err error) int {
	var maxBytes *http.MaxBytesError
	switch {
	case errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, lock.ErrLocked):
		return http.StatusConflict
	case errors.Is(err, core.ErrTooManyRuns):
		return http.StatusServiceUnavailable
	case errors.Is(err, core.ErrRunNotFound):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}

	switch core.KindOf(err) {
	case core.KindConfiguration:
		return http.StatusBadRequest
	case core.KindOversizedResult:
		if errors.Is(err, tabular.ErrSourceTooLarge) {
			return http.StatusRequestEntityTooLarge
		}
		return http.StatusUnprocessableEntity
	case core.KindSourceUnavailable, core.KindStoreMutation:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
