// Package bridge owns the message/response queue between the widget
// and the agent: inbox enqueue/drain, outbox enqueue, response reads.
package bridge

import (
	"context"
	"fmt"
	"time"

	"github.com/chatbridge/chatbridge/internal/domain"
	"github.com/chatbridge/chatbridge/internal/identity"
	"github.com/chatbridge/chatbridge/internal/metrics"
	"github.com/chatbridge/chatbridge/internal/session"
	"github.com/chatbridge/chatbridge/internal/store"
)

const (
	// DefaultInboxLimit applies when the agent omits a limit.
	DefaultInboxLimit = 50
	// MaxInboxLimit is the hard cap on one drained batch.
	MaxInboxLimit = 100
)

// Bridge coordinates the queues on top of the session manager (for
// liveness) and the repository (for durability).
type Bridge struct {
	repo            store.Repository
	sessions        *session.Manager
	maxMessageBytes int
}

// New creates a message bridge.
func New(repo store.Repository, sessions *session.Manager, maxMessageBytes int) *Bridge {
	return &Bridge{repo: repo, sessions: sessions, maxMessageBytes: maxMessageBytes}
}

// EnqueueResult reports a stored message together with the UID
// assignment outcome the caller surfaces to the client.
type EnqueueResult struct {
	MessageID int64
	UID       string
	IsNewUser bool
	Timestamp time.Time
}

// EnqueueMessage stores a widget message, auto-vivifying the session
// on first contact and assigning its UID as a side effect. A nil
// timestamp means server now.
func (b *Bridge) EnqueueMessage(ctx context.Context, sessionID, body string, ts *time.Time, ipAddress string) (*EnqueueResult, error) {
	sanitized, err := b.validBody(body)
	if err != nil {
		return nil, err
	}

	if _, err := b.sessions.GetOrCreate(ctx, sessionID, ipAddress); err != nil {
		return nil, err
	}

	uid, isNew, err := b.sessions.AssignUID(ctx, sessionID, ipAddress)
	if err != nil {
		return nil, err
	}

	when := time.Now()
	if ts != nil {
		when = *ts
	}

	id, err := b.repo.InsertMessage(ctx, sessionID, sanitized, when)
	if err != nil {
		return nil, fmt.Errorf("enqueue message: %w", err)
	}
	metrics.MessagesEnqueued.Inc()

	return &EnqueueResult{MessageID: id, UID: uid, IsNewUser: isNew, Timestamp: when}, nil
}

// DrainInbox hands a batch of unprocessed messages to the agent and
// marks them delivered in the same operation. Limits are clamped to
// [1, MaxInboxLimit]; a zero limit selects the default.
func (b *Bridge) DrainInbox(ctx context.Context, limit, offset int, since *time.Time) (*domain.InboxPage, error) {
	if limit <= 0 {
		limit = DefaultInboxLimit
	}
	if limit > MaxInboxLimit {
		limit = MaxInboxLimit
	}
	if offset < 0 {
		offset = 0
	}

	messages, total, err := b.repo.DrainInbox(ctx, limit, offset, since)
	if err != nil {
		return nil, fmt.Errorf("drain inbox: %w", err)
	}
	metrics.MessagesDrained.Add(float64(len(messages)))

	return &domain.InboxPage{
		Messages: messages,
		Total:    total,
		Limit:    limit,
		Offset:   offset,
		HasMore:  int64(offset+limit) < total,
	}, nil
}

// EnqueueResponse stores an agent reply for a session. The session
// must currently be live: responses never resurrect a dead session.
// messageID is an unvalidated soft back-reference; 0 means none.
func (b *Bridge) EnqueueResponse(ctx context.Context, sessionID, body string, messageID int64, ts *time.Time) (int64, error) {
	sanitized, err := b.validBody(body)
	if err != nil {
		return 0, err
	}

	active, err := b.sessions.IsActive(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	if !active {
		return 0, domain.ErrSessionInvalid
	}

	when := time.Now()
	if ts != nil {
		when = *ts
	}

	id, err := b.repo.InsertResponse(ctx, sessionID, sanitized, messageID, when)
	if err != nil {
		return 0, fmt.Errorf("enqueue response: %w", err)
	}
	metrics.ResponsesEnqueued.Inc()
	return id, nil
}

// DrainResponses returns a session's responses with timestamp strictly
// after since (all when nil), ascending. The read is repeatable and
// auto-vivifies unknown sessions, mirroring the widget's resilience to
// page reloads.
func (b *Bridge) DrainResponses(ctx context.Context, sessionID string, since *time.Time, ipAddress string) ([]domain.Response, error) {
	if _, err := b.sessions.GetOrCreate(ctx, sessionID, ipAddress); err != nil {
		return nil, err
	}

	responses, err := b.repo.ListResponses(ctx, sessionID, since)
	if err != nil {
		return nil, fmt.Errorf("list responses: %w", err)
	}
	return responses, nil
}

// SessionTranscript returns every message and response for one session
// for the admin view. The session row itself may already be gone.
func (b *Bridge) SessionTranscript(ctx context.Context, sessionID string) ([]domain.Message, []domain.Response, error) {
	if !identity.ValidSessionID(sessionID) {
		return nil, nil, domain.ErrInvalidIdentifier
	}
	messages, err := b.repo.ListSessionMessages(ctx, sessionID)
	if err != nil {
		return nil, nil, fmt.Errorf("list session messages: %w", err)
	}
	responses, err := b.repo.ListResponses(ctx, sessionID, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("list session responses: %w", err)
	}
	return messages, responses, nil
}

func (b *Bridge) validBody(body string) (string, error) {
	sanitized := Sanitize(body)
	if len(sanitized) < 1 || len(sanitized) > b.maxMessageBytes {
		return "", domain.ErrInvalidMessage
	}
	return sanitized, nil
}
