package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-ledger/internal/db"
	"github.com/ukydev/fleet-ledger/internal/ledger"
	"github.com/ukydev/fleet-ledger/internal/middleware"
)

const maxBodyBytes = 1 << 20

// ErrorResponse is the body of every failed ledger request.
type ErrorResponse struct {
	Error     string `json:"error"`
	Kind      string `json:"kind"`
	Field     string `json:"field,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// errorKind maps an error to its HTTP status and a stable kind name.
func errorKind(err error) (int, string) {
	switch {
	case errors.Is(err, ledger.ErrValidation), errors.Is(err, db.ErrInvalidQuery), errors.Is(err, errBadRequest):
		return http.StatusBadRequest, "validation"
	case errors.Is(err, ledger.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, ledger.ErrTripClosed):
		return http.StatusConflict, "trip_closed"
	case errors.Is(err, ledger.ErrInvalidTransition):
		return http.StatusConflict, "invalid_transition"
	case errors.Is(err, ledger.ErrRateUnavailable):
		return http.StatusServiceUnavailable, "rate_unavailable"
	case errors.Is(err, db.ErrWrite):
		return http.StatusInternalServerError, "write_error"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

var errBadRequest = errors.New("bad request")

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError reports err to the client. Server-side failures are logged; the
// client only sees a generic message for them.
func writeError(w http.ResponseWriter, r *http.Request, logger log.FieldLogger, err error) {
	status, kind := errorKind(err)
	resp := ErrorResponse{
		Error:     err.Error(),
		Kind:      kind,
		RequestID: middleware.RequestIDFromContext(r.Context()),
	}
	var vErr *ledger.ValidationError
	if errors.As(err, &vErr) {
		resp.Field = vErr.Field
	}
	if status >= http.StatusInternalServerError {
		logger.WithError(err).WithFields(log.Fields{
			"request_id": resp.RequestID,
			"path":       r.URL.Path,
		}).Error("Request failed")
		if status == http.StatusInternalServerError {
			resp.Error = "internal error"
		}
	}
	writeJSON(w, status, resp)
}

func decodeJSON(r *http.Request, v any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return badRequest("failed to read request body")
	}
	if len(body) > maxBodyBytes {
		return badRequest("request body too large")
	}
	if err := json.Unmarshal(body, v); err != nil {
		return badRequest("invalid JSON: %v", err)
	}
	return nil
}

// parseTime accepts RFC 3339 timestamps and plain dates, the latter taken as
// midnight in loc.
func parseTime(value string, loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02", value, loc); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("%q is neither RFC 3339 nor YYYY-MM-DD", value)
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, badRequest("%s must be an integer", key)
	}
	return n, nil
}
