// Package ratelimit provides per-client admission control: a
// persistent fixed-window governor backed by the store, fronted by an
// in-process burst limiter.
package ratelimit

import (
	"context"
	"log/slog"
	"time"

	"github.com/chatbridge/chatbridge/internal/config"
	"github.com/chatbridge/chatbridge/internal/store"
)

// Governor is a synchronous yes/no admission oracle for one
// (client IP, endpoint) pair per fixed window. It never blocks or
// sleeps; on store failure it fails open so a rate-limiting outage
// cannot take down the service.
type Governor struct {
	repo store.Repository
	cfg  *config.Config
}

// NewGovernor creates a governor using the configured window and
// per-endpoint limits.
func NewGovernor(repo store.Repository, cfg *config.Config) *Governor {
	return &Governor{repo: repo, cfg: cfg}
}

// Admit decides whether one more request from ip to endpoint fits in
// the current window. Counters older than the window are purged and do
// not count. An admitted request is recorded before Admit returns.
func (g *Governor) Admit(ctx context.Context, ip, endpoint string) bool {
	now := time.Now()
	windowStart := now.Add(-g.cfg.RateLimit.Window)

	allowed, err := g.repo.AdmitRate(ctx, ip, endpoint,
		g.cfg.EndpointLimit(endpoint), g.cfg.RateLimit.GlobalMax,
		windowStart, now)
	if err != nil {
		// Degraded mode: admission substrate down, fail open.
		slog.Error("rate governor store failure, failing open",
			"ip", ip, "endpoint", endpoint, "error", err)
		return true
	}
	if !allowed {
		slog.Warn("rate limit exceeded",
			"ip", ip, "endpoint", endpoint,
			"limit", g.cfg.EndpointLimit(endpoint))
	}
	return allowed
}

// RetryAfter is the hint advertised to denied callers: the full window
// length.
func (g *Governor) RetryAfter() time.Duration {
	return g.cfg.RateLimit.Window
}
