package identity

import (
	"encoding/hex"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestValidSessionID(t *testing.T) {
	tests := []struct {
		name string
		id   string
		want bool
	}{
		{"simple", "abc123", true},
		{"with underscore and dash", "sess_01-a", true},
		{"single char", "x", true},
		{"max length", strings.Repeat("a", 64), true},
		{"empty", "", false},
		{"too long", strings.Repeat("a", 65), false},
		{"space", "ab c", false},
		{"dot", "a.b", false},
		{"slash", "a/b", false},
		{"unicode", "sessão", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidSessionID(tt.id); got != tt.want {
				t.Errorf("ValidSessionID(%q) = %v, want %v", tt.id, got, tt.want)
			}
		})
	}
}

func TestNewUID(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		uid, err := NewUID()
		if err != nil {
			t.Fatalf("NewUID failed: %v", err)
		}
		if len(uid) != UIDLength {
			t.Fatalf("uid %q has length %d, want %d", uid, len(uid), UIDLength)
		}
		if _, err := hex.DecodeString(uid); err != nil {
			t.Fatalf("uid %q is not hex: %v", uid, err)
		}
		if uid != strings.ToLower(uid) {
			t.Fatalf("uid %q is not lowercase", uid)
		}
		if seen[uid] {
			t.Fatalf("NewUID produced duplicate %q", uid)
		}
		seen[uid] = true
	}
}

func TestIPFromRequest(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "203.0.113.7:4411"
	if got := IPFromRequest(r); got != "203.0.113.7" {
		t.Errorf("IPFromRequest = %q, want 203.0.113.7", got)
	}

	r.RemoteAddr = "203.0.113.8"
	if got := IPFromRequest(r); got != "203.0.113.8" {
		t.Errorf("IPFromRequest without port = %q, want 203.0.113.8", got)
	}
}
