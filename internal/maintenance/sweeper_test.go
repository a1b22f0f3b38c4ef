package maintenance

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/chatbridge/chatbridge/internal/session"
	"github.com/chatbridge/chatbridge/internal/store"
)

func newTestSessions(t *testing.T) (*session.Manager, store.Repository) {
	t.Helper()
	repo, err := store.NewSQLite(filepath.Join(t.TempDir(), "bridge.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return session.NewManager(repo, 30*time.Minute), repo
}

func seedStaleSession(t *testing.T, repo store.Repository, id string) {
	t.Helper()
	if err := repo.InsertSession(context.Background(), id, "", time.Now().Add(-time.Hour)); err != nil {
		t.Fatal(err)
	}
}

func TestSweep(t *testing.T) {
	sessions, repo := newTestSessions(t)
	seedStaleSession(t, repo, "stale1")
	seedStaleSession(t, repo, "stale2")
	if err := repo.InsertSession(context.Background(), "live", "", time.Now()); err != nil {
		t.Fatal(err)
	}

	s := NewSweeper(sessions, 0.1, nil)
	count, err := s.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if count != 2 {
		t.Errorf("swept %d sessions, want 2", count)
	}

	sess, err := repo.GetSession(context.Background(), "live")
	if err != nil {
		t.Fatal(err)
	}
	if sess == nil {
		t.Error("live session was swept")
	}
}

func TestMaybeSweepProbabilityGate(t *testing.T) {
	ctx := context.Background()

	t.Run("below threshold sweeps", func(t *testing.T) {
		sessions, repo := newTestSessions(t)
		seedStaleSession(t, repo, "stale1")

		s := NewSweeper(sessions, 0.1, func() float64 { return 0.05 })
		s.MaybeSweep(ctx)

		sess, err := repo.GetSession(ctx, "stale1")
		if err != nil {
			t.Fatal(err)
		}
		if sess != nil {
			t.Error("roll below probability did not sweep")
		}
	})

	t.Run("above threshold skips", func(t *testing.T) {
		sessions, repo := newTestSessions(t)
		seedStaleSession(t, repo, "stale1")

		s := NewSweeper(sessions, 0.1, func() float64 { return 0.95 })
		s.MaybeSweep(ctx)

		sess, err := repo.GetSession(ctx, "stale1")
		if err != nil {
			t.Fatal(err)
		}
		if sess == nil {
			t.Error("roll above probability swept anyway")
		}
	})

	t.Run("zero probability never sweeps", func(t *testing.T) {
		sessions, repo := newTestSessions(t)
		seedStaleSession(t, repo, "stale1")

		s := NewSweeper(sessions, 0, func() float64 { return 0 })
		s.MaybeSweep(ctx)

		sess, err := repo.GetSession(ctx, "stale1")
		if err != nil {
			t.Fatal(err)
		}
		if sess == nil {
			t.Error("zero probability swept")
		}
	})
}

func TestStartStopsOnCancel(t *testing.T) {
	sessions, repo := newTestSessions(t)
	seedStaleSession(t, repo, "stale1")

	ctx, cancel := context.WithCancel(context.Background())
	s := NewSweeper(sessions, 0, nil)
	s.Start(ctx, 10*time.Millisecond)

	deadline := time.After(2 * time.Second)
	for {
		sess, err := repo.GetSession(context.Background(), "stale1")
		if err != nil {
			t.Fatal(err)
		}
		if sess == nil {
			break
		}
		select {
		case <-deadline:
			t.Fatal("background sweep never ran")
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()
}
