package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func setRequiredKeys(t *testing.T) {
	t.Helper()
	t.Setenv("CHAT_API_KEY", "client-secret")
	t.Setenv("CHAT_ADMIN_KEY", "admin-secret")
}

func TestLoadDefaults(t *testing.T) {
	setRequiredKeys(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Port != "8080" {
		t.Errorf("Port = %q, want 8080", cfg.Port)
	}
	if cfg.SessionTimeout != 30*time.Minute {
		t.Errorf("SessionTimeout = %v, want 30m", cfg.SessionTimeout)
	}
	if cfg.MaxMessageBytes != 10000 {
		t.Errorf("MaxMessageBytes = %d, want 10000", cfg.MaxMessageBytes)
	}
	if cfg.RateLimit.Window != time.Hour {
		t.Errorf("RateLimit.Window = %v, want 1h", cfg.RateLimit.Window)
	}
	if got := cfg.EndpointLimit("messages"); got != 50 {
		t.Errorf("EndpointLimit(messages) = %d, want 50", got)
	}
	if got := cfg.EndpointLimit("unknown"); got != 100 {
		t.Errorf("EndpointLimit(unknown) = %d, want default 100", got)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	setRequiredKeys(t)
	t.Setenv("PORT", "9090")
	t.Setenv("SESSION_TIMEOUT", "60")
	t.Setenv("RATE_LIMIT_WINDOW", "120")
	t.Setenv("CLEANUP_PROBABILITY", "0.5")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Port != "9090" {
		t.Errorf("Port = %q, want 9090", cfg.Port)
	}
	if cfg.SessionTimeout != time.Minute {
		t.Errorf("SessionTimeout = %v, want 1m", cfg.SessionTimeout)
	}
	if cfg.RateLimit.Window != 2*time.Minute {
		t.Errorf("RateLimit.Window = %v, want 2m", cfg.RateLimit.Window)
	}
	if cfg.CleanupProbability != 0.5 {
		t.Errorf("CleanupProbability = %v, want 0.5", cfg.CleanupProbability)
	}
}

func TestLoadYAMLFile(t *testing.T) {
	setRequiredKeys(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
port: "7070"
session_timeout_seconds: 900
rate_limit:
  window_seconds: 300
  endpoint_limits:
    messages: 5
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	t.Setenv("CHATBRIDGE_CONFIG", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Port != "7070" {
		t.Errorf("Port = %q, want 7070 from yaml", cfg.Port)
	}
	if cfg.SessionTimeout != 15*time.Minute {
		t.Errorf("SessionTimeout = %v, want 15m from yaml", cfg.SessionTimeout)
	}
	if cfg.RateLimit.Window != 5*time.Minute {
		t.Errorf("RateLimit.Window = %v, want 5m from yaml", cfg.RateLimit.Window)
	}
	if got := cfg.EndpointLimit("messages"); got != 5 {
		t.Errorf("EndpointLimit(messages) = %d, want 5 from yaml", got)
	}
	// Untouched endpoints keep their defaults.
	if got := cfg.EndpointLimit("inbox"); got != 120 {
		t.Errorf("EndpointLimit(inbox) = %d, want 120", got)
	}
}

func TestEnvWinsOverFile(t *testing.T) {
	setRequiredKeys(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("port: \"7070\"\n"), 0644); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	t.Setenv("CHATBRIDGE_CONFIG", path)
	t.Setenv("PORT", "9191")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Port != "9191" {
		t.Errorf("Port = %q, want env value 9191", cfg.Port)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing api key", func(c *Config) { c.APIKey = "" }},
		{"missing admin key", func(c *Config) { c.AdminKey = "" }},
		{"identical keys", func(c *Config) { c.AdminKey = c.APIKey }},
		{"zero timeout", func(c *Config) { c.SessionTimeout = 0 }},
		{"zero message bytes", func(c *Config) { c.MaxMessageBytes = 0 }},
		{"probability out of range", func(c *Config) { c.CleanupProbability = 1.5 }},
		{"zero window", func(c *Config) { c.RateLimit.Window = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequiredKeys(t)
			cfg, err := Load()
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}
