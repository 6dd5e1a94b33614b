// Package handler exposes the domain stores as a JSON HTTP API.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/dukerupert/larder/internal/apperr"
	"github.com/dukerupert/larder/internal/backup"
)

const (
	maxBodyBytes = 1 << 20
	dateLayout   = "2006-01-02"
)

type errorBody struct {
	Error  string             `json:"error"`
	Fields []apperr.FieldError `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	var remote *apperr.RemoteError
	switch {
	case errors.Is(err, apperr.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperr.ErrPredefinedImmutable):
		return http.StatusForbidden
	case errors.Is(err, apperr.ErrAuthRequired):
		return http.StatusUnauthorized
	case errors.As(err, &remote) && remote.Status >= 400 && remote.Status < 500:
		return remote.Status
	case errors.Is(err, apperr.ErrNetwork), errors.As(err, &remote):
		return http.StatusBadGateway
	case errors.Is(err, backup.ErrNotConfigured):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError writes err with its mapped status. Server errors are logged
// and their detail hidden from the client.
func writeError(w http.ResponseWriter, logger *slog.Logger, msg string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError && status != http.StatusBadGateway && status != http.StatusServiceUnavailable {
		logger.Error(msg, "error", err)
		writeJSON(w, status, errorBody{Error: msg})
		return
	}

	body := errorBody{Error: err.Error()}
	var verr *apperr.ValidationError
	if errors.As(err, &verr) {
		body.Fields = verr.Fields
	}
	writeJSON(w, status, body)
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: msg})
}

// decode reads a JSON request body into v. It writes a 400 and returns
// false on failure.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		badRequest(w, "invalid JSON")
		return false
	}
	return true
}

type reorderRequest struct {
	From int `json:"from"`
	To   int `json:"to"`
}

type nameRequest struct {
	Name string `json:"name"`
}

// parseDate reads a yyyy-mm-dd query parameter in local time.
func parseDate(r *http.Request, key string) (time.Time, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return time.Time{}, apperr.Invalid(key, "is required")
	}
	t, err := time.ParseInLocation(dateLayout, v, time.Local)
	if err != nil {
		return time.Time{}, apperr.Invalid(key, "must be a date (yyyy-mm-dd)")
	}
	return t, nil
}

func queryInt(r *http.Request, key string, def int) int {
	n, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return def
	}
	return n
}
