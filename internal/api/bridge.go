package api

import (
	"encoding/json"
	"net/http"

	"github.com/chatbridge/chatbridge/internal/domain"
	"github.com/chatbridge/chatbridge/internal/identity"
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes mounts every bridge and admin endpoint under /api/v1.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/messages", h.instrumented("messages",
			h.governed("messages", h.PostMessage)))
		r.Get("/responses", h.instrumented("responses",
			h.governed("responses", h.GetResponses)))

		r.Get("/inbox", h.instrumented("inbox",
			h.requireKey(h.cfg.APIKey, "API",
				h.governed("inbox", h.GetInbox))))
		r.Post("/outbox", h.instrumented("outbox",
			h.requireKey(h.cfg.APIKey, "API",
				h.governed("outbox", h.PostOutbox))))

		r.Get("/sessions", h.instrumented("sessions",
			h.requireKey(h.cfg.AdminKey, "admin",
				h.governed("sessions", h.GetSessions))))
		r.Get("/session_messages", h.instrumented("session_messages",
			h.requireKey(h.cfg.AdminKey, "admin",
				h.governed("session_messages", h.GetSessionMessages))))
		r.Post("/cleanup", h.instrumented("cleanup",
			h.requireKey(h.cfg.AdminKey, "admin", h.PostCleanup)))
		r.Post("/clear_data", h.instrumented("clear_data",
			h.requireKey(h.cfg.AdminKey, "admin", h.PostClearData)))
	})
}

type messageRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp,omitempty"`
}

// PostMessage accepts a widget message, auto-creating the session and
// reporting the UID assignment back to the widget.
func (h *Handler) PostMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Fail(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.SessionID == "" || req.Message == "" {
		Fail(w, http.StatusBadRequest, "Missing required fields")
		return
	}
	if !identity.ValidSessionID(req.SessionID) {
		Fail(w, http.StatusBadRequest, "Invalid session ID")
		return
	}

	result, err := h.bridge.EnqueueMessage(r.Context(),
		req.SessionID, req.Message, parseTimestamp(req.Timestamp),
		identity.IPFromRequest(r))
	if err != nil {
		FailErr(w, err)
		return
	}

	Success(w, http.StatusOK, map[string]interface{}{
		"message_id":  result.MessageID,
		"session_id":  req.SessionID,
		"timestamp":   result.Timestamp,
		"uid":         result.UID,
		"is_new_user": result.IsNewUser,
	}, "Message received")
}

// GetInbox drains unprocessed messages for the agent consumer.
func (h *Handler) GetInbox(w http.ResponseWriter, r *http.Request) {
	since, err := parseSince(r.URL.Query().Get("since"))
	if err != nil {
		Fail(w, http.StatusBadRequest, "Invalid since parameter")
		return
	}
	limit := queryInt(r, "limit", 0)
	offset := queryInt(r, "offset", 0)

	page, err := h.bridge.DrainInbox(r.Context(), limit, offset, since)
	if err != nil {
		FailErr(w, err)
		return
	}

	messages := page.Messages
	if messages == nil {
		messages = []domain.Message{}
	}
	Success(w, http.StatusOK, map[string]interface{}{
		"messages": messages,
		"pagination": map[string]interface{}{
			"total":    page.Total,
			"limit":    page.Limit,
			"offset":   page.Offset,
			"has_more": page.HasMore,
		},
	}, "")
}

type outboxRequest struct {
	SessionID string `json:"session_id"`
	Response  string `json:"response"`
	MessageID int64  `json:"message_id,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

// PostOutbox stores an agent reply for a live session.
func (h *Handler) PostOutbox(w http.ResponseWriter, r *http.Request) {
	var req outboxRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Fail(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.SessionID == "" || req.Response == "" {
		Fail(w, http.StatusBadRequest, "Missing required fields")
		return
	}
	if !identity.ValidSessionID(req.SessionID) {
		Fail(w, http.StatusBadRequest, "Invalid session ID")
		return
	}

	ts := parseTimestamp(req.Timestamp)
	responseID, err := h.bridge.EnqueueResponse(r.Context(),
		req.SessionID, req.Response, req.MessageID, ts)
	if err != nil {
		FailErr(w, err)
		return
	}

	Success(w, http.StatusOK, map[string]interface{}{
		"response_id": responseID,
		"session_id":  req.SessionID,
	}, "Response sent successfully")
}

// GetResponses returns a session's replies after the given watermark.
// Repeatable read: no side effects on the returned rows.
func (h *Handler) GetResponses(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		Fail(w, http.StatusBadRequest, "Missing session_id parameter")
		return
	}
	if !identity.ValidSessionID(sessionID) {
		Fail(w, http.StatusBadRequest, "Invalid session ID")
		return
	}
	since, err := parseSince(r.URL.Query().Get("since"))
	if err != nil {
		Fail(w, http.StatusBadRequest, "Invalid since parameter")
		return
	}

	responses, err := h.bridge.DrainResponses(r.Context(),
		sessionID, since, identity.IPFromRequest(r))
	if err != nil {
		FailErr(w, err)
		return
	}
	if responses == nil {
		responses = []domain.Response{}
	}

	Success(w, http.StatusOK, map[string]interface{}{
		"session_id": sessionID,
		"responses":  responses,
	}, "")
}
