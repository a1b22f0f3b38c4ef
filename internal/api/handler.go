// Package api provides the HTTP surface of the chat bridge.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/chatbridge/chatbridge/internal/bridge"
	"github.com/chatbridge/chatbridge/internal/config"
	"github.com/chatbridge/chatbridge/internal/domain"
	"github.com/chatbridge/chatbridge/internal/maintenance"
	"github.com/chatbridge/chatbridge/internal/metrics"
	"github.com/chatbridge/chatbridge/internal/ratelimit"
	"github.com/chatbridge/chatbridge/internal/session"
	"github.com/chatbridge/chatbridge/internal/store"
)

// Handler carries the dependencies shared by all endpoints.
type Handler struct {
	repo     store.Repository
	bridge   *bridge.Bridge
	sessions *session.Manager
	governor *ratelimit.Governor
	burst    *ratelimit.BurstPool
	sweeper  *maintenance.Sweeper
	cfg      *config.Config
}

// NewHandler creates a Handler with common dependencies.
func NewHandler(repo store.Repository, br *bridge.Bridge, sm *session.Manager,
	gov *ratelimit.Governor, burst *ratelimit.BurstPool,
	sweeper *maintenance.Sweeper, cfg *config.Config) *Handler {
	return &Handler{
		repo:     repo,
		bridge:   br,
		sessions: sm,
		governor: gov,
		burst:    burst,
		sweeper:  sweeper,
		cfg:      cfg,
	}
}

// envelope is the wire format shared by every endpoint.
type envelope struct {
	Success    bool        `json:"success"`
	Data       interface{} `json:"data,omitempty"`
	Message    string      `json:"message,omitempty"`
	Error      string      `json:"error,omitempty"`
	RetryAfter int         `json:"retry_after,omitempty"`
}

// Success writes a success envelope with the given payload.
func Success(w http.ResponseWriter, status int, data interface{}, message string) {
	writeJSON(w, status, envelope{Success: true, Data: data, Message: message})
}

// Fail writes an error envelope.
func Fail(w http.ResponseWriter, status int, errMsg string) {
	writeJSON(w, status, envelope{Success: false, Error: errMsg})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"success":false,"error":"failed to encode response"}`, http.StatusInternalServerError)
	}
}

// FailErr maps a component error onto exactly one taxonomy kind and
// writes the matching status. Unknown errors count as storage failure.
func FailErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidIdentifier):
		Fail(w, http.StatusBadRequest, "Invalid session ID")
	case errors.Is(err, domain.ErrInvalidMessage):
		Fail(w, http.StatusBadRequest, "Invalid message")
	case errors.Is(err, domain.ErrSessionInvalid):
		Fail(w, http.StatusBadRequest, "Invalid or expired session")
	case errors.Is(err, domain.ErrUnauthorized):
		Fail(w, http.StatusUnauthorized, "Unauthorized")
	case errors.Is(err, domain.ErrRateLimited):
		Fail(w, http.StatusTooManyRequests, "Rate limit exceeded")
	case errors.Is(err, domain.ErrStorageUnavailable):
		Fail(w, http.StatusInternalServerError, "Internal server error")
	default:
		Fail(w, http.StatusInternalServerError, "Internal server error")
	}
}

// statusClass reduces an HTTP status to its metric label.
func statusClass(status int) string {
	switch {
	case status < 300:
		return "2xx"
	case status < 400:
		return "3xx"
	case status < 500:
		return "4xx"
	default:
		return "5xx"
	}
}

// statusRecorder captures the final status for metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (h *Handler) instrumented(endpoint string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r)
		metrics.RequestsTotal.WithLabelValues(endpoint, statusClass(rec.status)).Inc()
	}
}

// parseSince reads an optional RFC 3339 `since` watermark.
func parseSince(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		t, err = time.Parse(time.RFC3339, raw)
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// parseTimestamp reads an optional client-supplied timestamp; anything
// unparseable falls back to server time.
func parseTimestamp(raw string) *time.Time {
	if raw == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		if t, err = time.Parse(time.RFC3339, raw); err != nil {
			return nil
		}
	}
	return &t
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}
