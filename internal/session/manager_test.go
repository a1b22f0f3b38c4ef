package session

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/chatbridge/chatbridge/internal/domain"
	"github.com/chatbridge/chatbridge/internal/store"
)

func newTestManager(t *testing.T, timeout time.Duration) (*Manager, store.Repository) {
	t.Helper()
	repo, err := store.NewSQLite(filepath.Join(t.TempDir(), "bridge.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return NewManager(repo, timeout), repo
}

func TestCreateIdempotent(t *testing.T) {
	m, _ := newTestManager(t, 30*time.Minute)
	ctx := context.Background()

	first, err := m.Create(ctx, "abc123", "203.0.113.7")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	second, err := m.Create(ctx, "abc123", "198.51.100.1")
	if err != nil {
		t.Fatalf("second Create failed: %v", err)
	}
	if !second.CreatedAt.Equal(first.CreatedAt) {
		t.Error("re-create changed CreatedAt")
	}
}

func TestCreateRejectsMalformedID(t *testing.T) {
	m, _ := newTestManager(t, 30*time.Minute)

	_, err := m.Create(context.Background(), "bad id!", "")
	if !errors.Is(err, domain.ErrInvalidIdentifier) {
		t.Errorf("err = %v, want ErrInvalidIdentifier", err)
	}
}

func TestIsActiveSlidingExpiry(t *testing.T) {
	m, repo := newTestManager(t, 30*time.Minute)
	ctx := context.Background()

	active, err := m.IsActive(ctx, "missing")
	if err != nil {
		t.Fatalf("IsActive on missing session: %v", err)
	}
	if active {
		t.Error("missing session reported active")
	}

	if _, err := m.Create(ctx, "abc123", ""); err != nil {
		t.Fatal(err)
	}
	active, err = m.IsActive(ctx, "abc123")
	if err != nil || !active {
		t.Fatalf("IsActive = %v, %v; want true, nil", active, err)
	}

	// The liveness check itself slides the window forward.
	before, _ := repo.GetSession(ctx, "abc123")
	time.Sleep(1100 * time.Millisecond)
	if _, err := m.IsActive(ctx, "abc123"); err != nil {
		t.Fatal(err)
	}
	after, _ := repo.GetSession(ctx, "abc123")
	if !after.LastActive.After(before.LastActive) {
		t.Error("IsActive did not advance last_active")
	}
}

func TestIsActiveDeletesExpired(t *testing.T) {
	m, repo := newTestManager(t, 30*time.Minute)
	ctx := context.Background()

	stale := time.Now().Add(-time.Hour)
	if err := repo.InsertSession(ctx, "abc123", "", stale); err != nil {
		t.Fatal(err)
	}

	active, err := m.IsActive(ctx, "abc123")
	if err != nil {
		t.Fatalf("IsActive failed: %v", err)
	}
	if active {
		t.Error("expired session reported active")
	}
	sess, err := repo.GetSession(ctx, "abc123")
	if err != nil {
		t.Fatal(err)
	}
	if sess != nil {
		t.Error("expired session row was not deleted")
	}
}

func TestIsActiveRejectsMalformedID(t *testing.T) {
	m, _ := newTestManager(t, 30*time.Minute)

	active, err := m.IsActive(context.Background(), "no spaces allowed")
	if active {
		t.Error("malformed ID reported active")
	}
	if !errors.Is(err, domain.ErrInvalidIdentifier) {
		t.Errorf("err = %v, want ErrInvalidIdentifier", err)
	}
}

func TestAssignUIDIdempotent(t *testing.T) {
	m, _ := newTestManager(t, 30*time.Minute)
	ctx := context.Background()

	if _, err := m.Create(ctx, "abc123", ""); err != nil {
		t.Fatal(err)
	}

	uid, isNew, err := m.AssignUID(ctx, "abc123", "203.0.113.7")
	if err != nil {
		t.Fatalf("AssignUID failed: %v", err)
	}
	if !isNew {
		t.Error("first assignment not reported as new")
	}
	if len(uid) != 16 {
		t.Errorf("uid %q is not 16 chars", uid)
	}

	again, isNew, err := m.AssignUID(ctx, "abc123", "")
	if err != nil {
		t.Fatalf("second AssignUID failed: %v", err)
	}
	if isNew {
		t.Error("second assignment reported as new")
	}
	if again != uid {
		t.Errorf("second assignment returned %q, want %q", again, uid)
	}
}

func TestAssignUIDMissingSession(t *testing.T) {
	m, _ := newTestManager(t, 30*time.Minute)

	_, _, err := m.AssignUID(context.Background(), "abc123", "")
	if !errors.Is(err, domain.ErrSessionInvalid) {
		t.Errorf("err = %v, want ErrSessionInvalid", err)
	}
}

func TestUIDNotResurrectedAfterExpiry(t *testing.T) {
	m, repo := newTestManager(t, 30*time.Minute)
	ctx := context.Background()

	if _, err := m.Create(ctx, "abc123", ""); err != nil {
		t.Fatal(err)
	}
	oldUID, _, err := m.AssignUID(ctx, "abc123", "")
	if err != nil {
		t.Fatal(err)
	}

	// Force expiry, then revive the same session ID.
	if err := repo.TouchSession(ctx, "abc123", time.Now().Add(time.Hour)); err != nil {
		t.Fatal(err)
	}
	if err := repo.DeleteSession(ctx, "abc123"); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Create(ctx, "abc123", ""); err != nil {
		t.Fatal(err)
	}

	newUID, isNew, err := m.AssignUID(ctx, "abc123", "")
	if err != nil {
		t.Fatal(err)
	}
	if !isNew {
		t.Error("revived session reused a uid")
	}
	if newUID == oldUID {
		t.Error("revived session got the expired session's uid")
	}
}

func TestGetOrCreate(t *testing.T) {
	m, repo := newTestManager(t, 30*time.Minute)
	ctx := context.Background()

	created, err := m.GetOrCreate(ctx, "abc123", "203.0.113.7")
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}
	if created == nil {
		t.Fatal("GetOrCreate returned nil session")
	}

	got, err := m.GetOrCreate(ctx, "abc123", "")
	if err != nil {
		t.Fatalf("second GetOrCreate failed: %v", err)
	}
	if !got.CreatedAt.Equal(created.CreatedAt) {
		t.Error("GetOrCreate recreated a live session")
	}

	// An expired session is replaced by a fresh one.
	stale := time.Now().Add(-time.Hour)
	if err := repo.InsertSession(ctx, "old", "", stale); err != nil {
		t.Fatal(err)
	}
	fresh, err := m.GetOrCreate(ctx, "old", "")
	if err != nil {
		t.Fatalf("GetOrCreate on expired session failed: %v", err)
	}
	if fresh.Expired(m.Timeout(), time.Now()) {
		t.Error("GetOrCreate returned an expired session")
	}
}

func TestExpireInactive(t *testing.T) {
	m, repo := newTestManager(t, 30*time.Minute)
	ctx := context.Background()

	now := time.Now()
	if err := repo.InsertSession(ctx, "stale1", "", now.Add(-time.Hour)); err != nil {
		t.Fatal(err)
	}
	if err := repo.InsertSession(ctx, "stale2", "", now.Add(-45*time.Minute)); err != nil {
		t.Fatal(err)
	}
	if err := repo.InsertSession(ctx, "live", "", now); err != nil {
		t.Fatal(err)
	}

	count, err := m.ExpireInactive(ctx)
	if err != nil {
		t.Fatalf("ExpireInactive failed: %v", err)
	}
	if count != 2 {
		t.Errorf("expired %d sessions, want 2", count)
	}

	// A second sweep finds nothing.
	count, err = m.ExpireInactive(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Errorf("second sweep expired %d sessions, want 0", count)
	}
}
