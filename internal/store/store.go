// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/chatbridge/chatbridge/internal/domain"
)

// Repository defines the persistence contract for sessions, messages,
// responses and rate counters. It is the only cross-request shared
// state in the system.
type Repository interface {
	// GetSession retrieves a session by its client-supplied ID.
	// Returns (nil, nil) if no such session exists.
	GetSession(ctx context.Context, sessionID string) (*domain.Session, error)

	// InsertSession creates a session row if none exists. Inserting an
	// existing session ID is a no-op.
	InsertSession(ctx context.Context, sessionID, ipAddress string, now time.Time) error

	// TouchSession advances last_active for the sliding expiry window.
	TouchSession(ctx context.Context, sessionID string, now time.Time) error

	// DeleteSession removes a single session row.
	DeleteSession(ctx context.Context, sessionID string) error

	// SetSessionUID persists a UID and first-seen IP, only if the
	// session has no UID yet. Returns true if the update took effect.
	SetSessionUID(ctx context.Context, sessionID, uid, ipAddress string) (bool, error)

	// DeleteExpiredSessions removes sessions whose last_active is
	// before the cutoff and returns the count removed.
	DeleteExpiredSessions(ctx context.Context, cutoff time.Time) (int64, error)

	// ListSessions returns session summaries with message/response
	// counts, most recently active first. When activeOnly is set, only
	// sessions with last_active after the cutoff are included.
	ListSessions(ctx context.Context, limit, offset int, activeOnly bool, activeCutoff time.Time) ([]domain.SessionSummary, error)

	// CountSessions returns the total matching a ListSessions filter.
	CountSessions(ctx context.Context, activeOnly bool, activeCutoff time.Time) (int64, error)

	// InsertMessage appends a widget message to the inbox queue.
	InsertMessage(ctx context.Context, sessionID, body string, ts time.Time) (int64, error)

	// DrainInbox atomically selects a bounded batch of unprocessed
	// messages (oldest first, optionally after since), marks them
	// processed, and returns the batch plus the total unprocessed
	// count under the same filter. Two concurrent drains never return
	// the same message.
	DrainInbox(ctx context.Context, limit, offset int, since *time.Time) ([]domain.Message, int64, error)

	// ListSessionMessages returns every message for one session in
	// timestamp order, regardless of processed state.
	ListSessionMessages(ctx context.Context, sessionID string) ([]domain.Message, error)

	// InsertResponse appends an agent reply for a session. messageID
	// of 0 means no back-reference.
	InsertResponse(ctx context.Context, sessionID, body string, messageID int64, ts time.Time) (int64, error)

	// ListResponses returns all responses for a session with timestamp
	// strictly after since (all of them when since is nil), ascending.
	// The read has no side effects.
	ListResponses(ctx context.Context, sessionID string, since *time.Time) ([]domain.Response, error)

	// AdmitRate performs one fixed-window admission check for the
	// (ip, endpoint) pair as a single isolated unit: purges counters
	// whose window started before windowStart, compares the pair's
	// accumulated count against endpointLimit and the IP's total
	// against globalLimit, and increments on admission.
	AdmitRate(ctx context.Context, ipAddress, endpoint string, endpointLimit, globalLimit int, windowStart, now time.Time) (bool, error)

	// ClearAll wipes all responses, messages and sessions. Rate
	// counters are left in place so a wipe cannot reset admission.
	ClearAll(ctx context.Context) error

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
