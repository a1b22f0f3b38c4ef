package api

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/chatbridge/chatbridge/internal/identity"
	"github.com/chatbridge/chatbridge/internal/metrics"
)

const bearerPrefix = "Bearer "

// bearerToken extracts the credential from the Authorization header.
func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, bearerPrefix) {
		return ""
	}
	return auth[len(bearerPrefix):]
}

func keyMatches(supplied, expected string) bool {
	return expected != "" &&
		subtle.ConstantTimeCompare([]byte(supplied), []byte(expected)) == 1
}

// requireKey gates a handler behind one static bearer secret.
func (h *Handler) requireKey(expected, tier string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !keyMatches(bearerToken(r), expected) {
			slog.Warn("unauthorized access attempt",
				"tier", tier,
				"ip", identity.IPFromRequest(r),
				"path", r.URL.Path)
			Fail(w, http.StatusUnauthorized, "Invalid or missing "+tier+" key")
			return
		}
		next(w, r)
	}
}

// governed applies burst limiting and the persistent window governor
// to an endpoint, and piggybacks the probabilistic session sweep.
func (h *Handler) governed(endpoint string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.sweeper.MaybeSweep(r.Context())

		ip := identity.IPFromRequest(r)
		if !h.burst.Allow(ip) {
			h.denyRate(w, endpoint, h.burst.RetryAfter())
			return
		}
		if !h.governor.Admit(r.Context(), ip, endpoint) {
			h.denyRate(w, endpoint, h.governor.RetryAfter())
			return
		}
		next(w, r)
	}
}

// denyRate writes the 429 envelope with a Retry-After hint scaled to
// whichever limiter denied: one token refill for the burst pool, the
// full window for the governor.
func (h *Handler) denyRate(w http.ResponseWriter, endpoint string, retryAfter time.Duration) {
	metrics.RateLimited.WithLabelValues(endpoint).Inc()
	retry := int(retryAfter.Seconds())
	if retry < 1 {
		retry = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(retry))
	writeJSON(w, http.StatusTooManyRequests, envelope{
		Success:    false,
		Error:      "Rate limit exceeded",
		RetryAfter: retry,
	})
}
