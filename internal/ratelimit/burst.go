package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// maxBurstEntries caps the per-IP limiter map.
	maxBurstEntries = 10000
	// burstIdleAfter is how long an IP must stay quiet before its
	// limiter is eligible for pruning.
	burstIdleAfter = 10 * time.Minute
)

// BurstPool keeps one token-bucket limiter per client IP. It smooths
// short request bursts before they reach the persistent window
// counters; the governor remains the authoritative limit.
type BurstPool struct {
	mu    sync.Mutex
	m     map[string]*burstEntry
	rps   float64
	burst int
}

type burstEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewBurstPool creates a pool admitting rps requests per second with
// the given burst size per key.
func NewBurstPool(rps float64, burst int) *BurstPool {
	if rps <= 0 {
		rps = 25
	}
	if burst <= 0 {
		burst = 50
	}
	return &BurstPool{
		m:     make(map[string]*burstEntry),
		rps:   rps,
		burst: burst,
	}
}

func (p *BurstPool) get(key string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	if e, ok := p.m[key]; ok {
		e.lastSeen = now
		return e.limiter
	}
	if len(p.m) >= maxBurstEntries {
		p.prune(now)
	}
	e := &burstEntry{
		limiter:  rate.NewLimiter(rate.Limit(p.rps), p.burst),
		lastSeen: now,
	}
	p.m[key] = e
	return e.limiter
}

// prune drops limiters idle past burstIdleAfter. If every entry is
// still fresh the map is reset wholesale; the persistent governor
// still bounds anything that slips through with a full bucket.
func (p *BurstPool) prune(now time.Time) {
	cutoff := now.Add(-burstIdleAfter)
	for k, e := range p.m {
		if e.lastSeen.Before(cutoff) {
			delete(p.m, k)
		}
	}
	if len(p.m) >= maxBurstEntries {
		p.m = make(map[string]*burstEntry)
	}
}

// Allow reports whether one more request for key fits the bucket.
func (p *BurstPool) Allow(key string) bool {
	return p.get(key).Allow()
}

// RetryAfter is the time one token takes to refill at the configured
// rate.
func (p *BurstPool) RetryAfter() time.Duration {
	return time.Duration(float64(time.Second) / p.rps)
}
