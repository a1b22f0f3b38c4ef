package domain

import (
	"time"
)

// Message is a widget-to-agent message awaiting pickup through the
// inbox. Processed flips false to true exactly once, when the message
// is returned by an inbox drain.
type Message struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"session_id"`
	Body      string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	UID       string    `json:"uid,omitempty"`
	Processed bool      `json:"-"`
}

// Response is an agent-to-widget reply. Responses carry no processed
// flag: the widget reads them repeatedly, narrowing with a client-side
// `since` watermark.
type Response struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"session_id"`
	Body      string    `json:"response"`
	Timestamp time.Time `json:"timestamp"`
	MessageID int64     `json:"message_id,omitempty"`
}

// InboxPage is one drained batch of unprocessed messages together with
// pagination metadata for the agent consumer.
type InboxPage struct {
	Messages []Message `json:"messages"`
	Total    int64     `json:"total"`
	Limit    int       `json:"limit"`
	Offset   int       `json:"offset"`
	HasMore  bool      `json:"has_more"`
}
