// Package identity provides session identifier validation and UID
// generation primitives.
package identity

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net"
	"net/http"
	"regexp"
)

const (
	// MaxSessionIDLength bounds the client-supplied session token.
	MaxSessionIDLength = 64
	// UIDLength is the fixed length of a server-issued UID.
	UIDLength = 16
)

var sessionIDPattern = regexp.MustCompile(fmt.Sprintf(`^[A-Za-z0-9_-]{1,%d}$`, MaxSessionIDLength))

// ValidSessionID reports whether id satisfies the charset and length
// rule for client-supplied session tokens.
func ValidSessionID(id string) bool {
	return sessionIDPattern.MatchString(id)
}

// NewUID generates a 16-character lowercase-hex identifier from 8
// bytes of cryptographic randomness.
func NewUID() (string, error) {
	buf := make([]byte, UIDLength/2)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate uid: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// IPFromRequest returns a normalized client IP. Proxy headers are
// already folded into RemoteAddr by the router's RealIP middleware.
func IPFromRequest(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
