// Package session owns the session lifecycle: creation, liveness with
// sliding expiry, UID assignment and bulk expiry.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/chatbridge/chatbridge/internal/domain"
	"github.com/chatbridge/chatbridge/internal/identity"
	"github.com/chatbridge/chatbridge/internal/store"
)

// Manager coordinates session state through the repository. It holds
// no in-memory session state; every request observes the store.
type Manager struct {
	repo    store.Repository
	timeout time.Duration
}

// NewManager creates a session manager with the given sliding-expiry
// timeout.
func NewManager(repo store.Repository, timeout time.Duration) *Manager {
	return &Manager{repo: repo, timeout: timeout}
}

// Timeout returns the configured sliding-expiry window.
func (m *Manager) Timeout() time.Duration {
	return m.timeout
}

// Create inserts a session if none exists and returns the stored row.
// Creating an existing session is idempotent and leaves it unchanged.
func (m *Manager) Create(ctx context.Context, sessionID, ipAddress string) (*domain.Session, error) {
	if !identity.ValidSessionID(sessionID) {
		return nil, domain.ErrInvalidIdentifier
	}

	if err := m.repo.InsertSession(ctx, sessionID, ipAddress, time.Now()); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	sess, err := m.repo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("read created session: %w", err)
	}
	if sess == nil {
		// Deleted between insert and read; callers treat this as a
		// dead session.
		return nil, domain.ErrSessionInvalid
	}
	return sess, nil
}

// IsActive reports whether the session is live. A live session has its
// last_active advanced (sliding keep-alive); an expired one is deleted
// before false is returned, so IsActive is a write for concurrency
// purposes. Malformed IDs yield false with ErrInvalidIdentifier.
func (m *Manager) IsActive(ctx context.Context, sessionID string) (bool, error) {
	if !identity.ValidSessionID(sessionID) {
		return false, domain.ErrInvalidIdentifier
	}

	sess, err := m.repo.GetSession(ctx, sessionID)
	if err != nil {
		return false, fmt.Errorf("check session: %w", err)
	}
	if sess == nil {
		return false, nil
	}

	now := time.Now()
	if sess.Expired(m.timeout, now) {
		if err := m.repo.DeleteSession(ctx, sessionID); err != nil {
			return false, fmt.Errorf("delete expired session: %w", err)
		}
		slog.Info("session expired", "session_id", sessionID)
		return false, nil
	}

	if err := m.repo.TouchSession(ctx, sessionID, now); err != nil {
		return false, fmt.Errorf("refresh session: %w", err)
	}
	return true, nil
}

// GetOrCreate ensures a live session exists for the ID, creating one
// when missing or expired. This backs the widget's tolerance for page
// reloads and lost cookies.
func (m *Manager) GetOrCreate(ctx context.Context, sessionID, ipAddress string) (*domain.Session, error) {
	active, err := m.IsActive(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if active {
		sess, err := m.repo.GetSession(ctx, sessionID)
		if err != nil {
			return nil, fmt.Errorf("read session: %w", err)
		}
		if sess != nil {
			return sess, nil
		}
	}
	return m.Create(ctx, sessionID, ipAddress)
}

// AssignUID returns the session's UID, generating and persisting one
// on first call. The UID is immutable once set: concurrent assigns
// resolve to whichever write landed first.
func (m *Manager) AssignUID(ctx context.Context, sessionID, ipAddress string) (string, bool, error) {
	sess, err := m.repo.GetSession(ctx, sessionID)
	if err != nil {
		return "", false, fmt.Errorf("read session: %w", err)
	}
	if sess == nil {
		return "", false, domain.ErrSessionInvalid
	}
	if sess.HasUID() {
		return sess.UID, false, nil
	}

	uid, err := identity.NewUID()
	if err != nil {
		return "", false, fmt.Errorf("assign uid: %w", err)
	}
	set, err := m.repo.SetSessionUID(ctx, sessionID, uid, ipAddress)
	if err != nil {
		return "", false, fmt.Errorf("persist uid: %w", err)
	}
	if !set {
		// Lost the race; the winner's UID is authoritative.
		sess, err = m.repo.GetSession(ctx, sessionID)
		if err != nil {
			return "", false, fmt.Errorf("reread session uid: %w", err)
		}
		if sess == nil || !sess.HasUID() {
			return "", false, domain.ErrSessionInvalid
		}
		return sess.UID, false, nil
	}
	return uid, true, nil
}

// ExpireInactive deletes every session whose sliding window has lapsed
// and returns the count removed. Idempotent and safe to run
// concurrently with itself and with IsActive.
func (m *Manager) ExpireInactive(ctx context.Context) (int64, error) {
	cutoff := time.Now().Add(-m.timeout)
	count, err := m.repo.DeleteExpiredSessions(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("expire inactive sessions: %w", err)
	}
	if count > 0 {
		slog.Info("expired inactive sessions", "count", count)
	}
	return count, nil
}
