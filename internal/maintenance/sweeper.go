// Package maintenance runs session expiry sweeps: a background ticker
// plus a probabilistic inline policy piggybacked on API requests.
package maintenance

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"github.com/chatbridge/chatbridge/internal/metrics"
	"github.com/chatbridge/chatbridge/internal/session"
)

// Sweeper deletes expired sessions. Sweeps are idempotent and cheap,
// so overlapping runs (ticker, inline, admin cleanup) are safe.
type Sweeper struct {
	sessions    *session.Manager
	probability float64
	randFloat   func() float64
}

// NewSweeper creates a sweeper that also runs inline with the given
// per-request probability. randFloat is the randomness source; nil
// selects math/rand. Tests inject a deterministic source.
func NewSweeper(sessions *session.Manager, probability float64, randFloat func() float64) *Sweeper {
	if randFloat == nil {
		randFloat = rand.Float64
	}
	return &Sweeper{sessions: sessions, probability: probability, randFloat: randFloat}
}

// Sweep expires inactive sessions now and returns the count removed.
func (s *Sweeper) Sweep(ctx context.Context) (int64, error) {
	count, err := s.sessions.ExpireInactive(ctx)
	if err != nil {
		return 0, err
	}
	metrics.SessionsExpired.Add(float64(count))
	return count, nil
}

// MaybeSweep runs a sweep with the configured probability. Errors are
// logged, not surfaced: inline maintenance must never fail a request.
func (s *Sweeper) MaybeSweep(ctx context.Context) {
	if s.probability <= 0 || s.randFloat() >= s.probability {
		return
	}
	if _, err := s.Sweep(ctx); err != nil {
		slog.Warn("inline session sweep failed", "error", err)
	}
}

// Start launches the background sweep loop. It stops when ctx is
// cancelled.
func (s *Sweeper) Start(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		slog.Info("session sweeper started", "interval", interval)
		for {
			select {
			case <-ctx.Done():
				slog.Info("session sweeper stopped")
				return
			case <-ticker.C:
				if _, err := s.Sweep(ctx); err != nil {
					slog.Error("background session sweep failed", "error", err)
				}
			}
		}
	}()
}
