// Package domain contains core domain types for the chat bridge.
package domain

import (
	"time"
)

// Session represents a widget conversation context with a sliding
// expiry window. The session ID is chosen by the client; the UID is
// assigned by the server at most once and never changes afterwards.
type Session struct {
	SessionID  string    `json:"session_id"`
	UID        string    `json:"uid,omitempty"`
	IPAddress  string    `json:"ip_address,omitempty"`
	Metadata   string    `json:"metadata,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	LastActive time.Time `json:"last_active"`
}

// HasUID returns true if the session has been assigned a UID.
func (s *Session) HasUID() bool {
	return s.UID != ""
}

// Expired reports whether the session's sliding window has lapsed at
// the given instant.
func (s *Session) Expired(timeout time.Duration, now time.Time) bool {
	return now.Sub(s.LastActive) > timeout
}

// TTLRemaining returns the time until the session expires, or 0 if it
// has already expired.
func (s *Session) TTLRemaining(timeout time.Duration, now time.Time) time.Duration {
	ttl := s.LastActive.Add(timeout).Sub(now)
	if ttl < 0 {
		return 0
	}
	return ttl
}

// SessionSummary is the admin listing view of a session, aggregated
// with its message and response counts.
type SessionSummary struct {
	SessionID     string    `json:"session_id"`
	UID           string    `json:"uid,omitempty"`
	IPAddress     string    `json:"ip_address,omitempty"`
	Metadata      string    `json:"metadata,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	LastActive    time.Time `json:"last_active"`
	MessageCount  int64     `json:"message_count"`
	ResponseCount int64     `json:"response_count"`
}
