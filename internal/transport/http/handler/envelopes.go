package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/authbridge/verification-api/internal/domain"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// Error codes surfaced in the response envelope.
const (
	CodeValidation   = "VALIDATION_ERROR"
	CodeUnauthorized = "UNAUTHORIZED"
	CodeForbidden    = "FORBIDDEN"
	CodeNotFound     = "NOT_FOUND"
	CodeConflict     = "CONFLICT"
	CodeRateLimited  = "RATE_LIMITED"
	CodeInternal     = "INTERNAL_ERROR"
)

// ErrorInfo is the error half of the response envelope.
type ErrorInfo struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// Meta carries request correlation data on every error response.
type Meta struct {
	RequestID string `json:"requestId"`
	Timestamp string `json:"timestamp"`
}

// ErrorEnvelope is the wire shape of all error responses.
type ErrorEnvelope struct {
	Error ErrorInfo `json:"error"`
	Meta  Meta      `json:"meta"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, msg string) {
	writeJSON(w, status, ErrorEnvelope{
		Error: ErrorInfo{Code: code, Message: msg},
		Meta: Meta{
			RequestID: chimiddleware.GetReqID(r.Context()),
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		},
	})
}

// httpError maps a service error onto HTTP status + envelope. Internal errors
// get a generic message; the detail stays in the server log keyed by request id.
func httpError(w http.ResponseWriter, r *http.Request, err error) {
	var rle *domain.RateLimitError
	switch {
	case errors.As(err, &rle):
		w.Header().Set("Retry-After", strconv.Itoa(rle.RetryAfter))
		writeError(w, r, http.StatusTooManyRequests, CodeRateLimited, err.Error())
	case errors.Is(err, domain.ErrBadRequest):
		writeError(w, r, http.StatusBadRequest, CodeValidation, err.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		writeError(w, r, http.StatusUnauthorized, CodeUnauthorized, err.Error())
	case errors.Is(err, domain.ErrForbidden):
		writeError(w, r, http.StatusForbidden, CodeForbidden, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, r, http.StatusNotFound, CodeNotFound, err.Error())
	case errors.Is(err, domain.ErrConflict):
		writeError(w, r, http.StatusConflict, CodeConflict, err.Error())
	default:
		slog.Error("request failed", "request_id", chimiddleware.GetReqID(r.Context()), "err", err)
		writeError(w, r, http.StatusInternalServerError, CodeInternal, "internal server error")
	}
}
