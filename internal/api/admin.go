package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/chatbridge/chatbridge/internal/bridge"
	"github.com/chatbridge/chatbridge/internal/domain"
	"github.com/chatbridge/chatbridge/internal/identity"
)

// GetSessions lists sessions with message/response counts, most
// recently active first. active=true (the default) restricts to
// sessions inside the sliding window.
func (h *Handler) GetSessions(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	if limit > bridge.MaxInboxLimit {
		limit = bridge.MaxInboxLimit
	}
	if limit <= 0 {
		limit = 50
	}
	offset := queryInt(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}
	activeOnly := r.URL.Query().Get("active") != "false"
	cutoff := time.Now().Add(-h.sessions.Timeout())

	sessions, err := h.repo.ListSessions(r.Context(), limit, offset, activeOnly, cutoff)
	if err != nil {
		FailErr(w, err)
		return
	}
	total, err := h.repo.CountSessions(r.Context(), activeOnly, cutoff)
	if err != nil {
		FailErr(w, err)
		return
	}
	if sessions == nil {
		sessions = []domain.SessionSummary{}
	}

	Success(w, http.StatusOK, map[string]interface{}{
		"sessions": sessions,
		"pagination": map[string]interface{}{
			"total":    total,
			"limit":    limit,
			"offset":   offset,
			"has_more": int64(offset+limit) < total,
		},
	}, "")
}

// GetSessionMessages returns the full transcript for one session.
func (h *Handler) GetSessionMessages(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		Fail(w, http.StatusBadRequest, "Session ID required")
		return
	}
	if !identity.ValidSessionID(sessionID) {
		Fail(w, http.StatusBadRequest, "Invalid session ID")
		return
	}

	sess, err := h.repo.GetSession(r.Context(), sessionID)
	if err != nil {
		FailErr(w, err)
		return
	}
	if sess == nil {
		Fail(w, http.StatusNotFound, "Session not found")
		return
	}

	messages, responses, err := h.bridge.SessionTranscript(r.Context(), sessionID)
	if err != nil {
		FailErr(w, err)
		return
	}
	if messages == nil {
		messages = []domain.Message{}
	}
	if responses == nil {
		responses = []domain.Response{}
	}

	Success(w, http.StatusOK, map[string]interface{}{
		"session":     sess,
		"ttl_seconds": int(sess.TTLRemaining(h.sessions.Timeout(), time.Now()).Seconds()),
		"messages":    messages,
		"responses":   responses,
	}, "Session messages retrieved")
}

// PostCleanup runs an eager expiry sweep.
func (h *Handler) PostCleanup(w http.ResponseWriter, r *http.Request) {
	count, err := h.sweeper.Sweep(r.Context())
	if err != nil {
		FailErr(w, err)
		return
	}

	slog.Info("manual cleanup performed", "cleaned_count", count)
	Success(w, http.StatusOK, map[string]interface{}{
		"cleaned_count": count,
	}, fmt.Sprintf("Cleaned up %d inactive sessions", count))
}

// PostClearData wipes all messages, responses and sessions.
func (h *Handler) PostClearData(w http.ResponseWriter, r *http.Request) {
	if err := h.repo.ClearAll(r.Context()); err != nil {
		FailErr(w, err)
		return
	}

	slog.Warn("all data cleared by admin", "ip", identity.IPFromRequest(r))
	Success(w, http.StatusOK, nil, "All data cleared successfully")
}
