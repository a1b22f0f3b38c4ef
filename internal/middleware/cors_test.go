package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func runCORS(origins []string, method, origin string) (*httptest.ResponseRecorder, bool) {
	called := false
	h := CORS(origins)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	r := httptest.NewRequest(method, "/api/v1/messages", nil)
	if origin != "" {
		r.Header.Set("Origin", origin)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w, called
}

func TestCORSWildcard(t *testing.T) {
	w, called := runCORS([]string{"*"}, "POST", "https://example.com")
	if !called {
		t.Fatal("handler not invoked")
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://example.com" {
		t.Errorf("Allow-Origin = %q, want the requesting origin", got)
	}
	// Wildcard origins never get credentials.
	if w.Header().Get("Access-Control-Allow-Credentials") != "" {
		t.Error("credentials allowed for wildcard origin")
	}
}

func TestCORSExplicitOrigin(t *testing.T) {
	origins := []string{"https://trusted.example"}

	w, _ := runCORS(origins, "POST", "https://trusted.example")
	if w.Header().Get("Access-Control-Allow-Origin") != "https://trusted.example" {
		t.Error("trusted origin not echoed")
	}
	if w.Header().Get("Access-Control-Allow-Credentials") != "true" {
		t.Error("credentials missing for explicit origin")
	}

	w, called := runCORS(origins, "POST", "https://evil.example")
	if w.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Error("untrusted origin got CORS headers")
	}
	if !called {
		t.Error("untrusted origin blocked instead of just unheadered")
	}
}

func TestCORSPreflight(t *testing.T) {
	w, called := runCORS([]string{"*"}, "OPTIONS", "https://example.com")
	if called {
		t.Error("preflight reached the handler")
	}
	if w.Code != http.StatusOK {
		t.Errorf("preflight status = %d, want 200", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Methods") == "" {
		t.Error("preflight missing Allow-Methods")
	}
}
