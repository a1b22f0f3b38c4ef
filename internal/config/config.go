// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration. It is constructed once
// at process start and passed into component constructors; core logic
// never reads ambient global state.
type Config struct {
	Port   string
	DBPath string

	// APIKey authenticates the agent consumer (inbox/outbox).
	// AdminKey authenticates administrative operations.
	APIKey   string
	AdminKey string

	SessionTimeout  time.Duration
	MaxMessageBytes int

	RateLimit RateLimitConfig

	// CleanupProbability is the chance (0..1) that a request also runs
	// an inline expired-session sweep.
	CleanupProbability float64
	// SweepInterval drives the background maintenance worker.
	SweepInterval time.Duration

	AllowedOrigins []string
}

// RateLimitConfig controls the request governor.
type RateLimitConfig struct {
	Window time.Duration
	// GlobalMax bounds total admitted requests per IP across all
	// endpoints within one window.
	GlobalMax int
	// EndpointDefault applies to endpoints absent from EndpointLimits.
	EndpointDefault int
	EndpointLimits  map[string]int
	// BurstRPS/BurstSize configure the in-process per-IP limiter that
	// sits in front of the persistent window counters.
	BurstRPS  float64
	BurstSize int
}

// fileConfig is the optional YAML overlay, read before environment
// variables are applied.
type fileConfig struct {
	Port               string        `yaml:"port"`
	DBPath             string        `yaml:"db_path"`
	APIKey             string        `yaml:"api_key"`
	AdminKey           string        `yaml:"admin_key"`
	SessionTimeoutSecs int           `yaml:"session_timeout_seconds"`
	MaxMessageBytes    int           `yaml:"max_message_bytes"`
	CleanupProbability *float64      `yaml:"cleanup_probability"`
	SweepIntervalSecs  int           `yaml:"sweep_interval_seconds"`
	AllowedOrigins     []string      `yaml:"allowed_origins"`
	RateLimit          fileRateLimit `yaml:"rate_limit"`
}

type fileRateLimit struct {
	WindowSecs      int            `yaml:"window_seconds"`
	GlobalMax       int            `yaml:"global_max"`
	EndpointDefault int            `yaml:"endpoint_default"`
	EndpointLimits  map[string]int `yaml:"endpoint_limits"`
	BurstRPS        float64        `yaml:"burst_rps"`
	BurstSize       int            `yaml:"burst_size"`
}

// Load reads configuration from the optional YAML file named by
// CHATBRIDGE_CONFIG, then from environment variables. Environment
// values win over file values.
func Load() (*Config, error) {
	cfg := &Config{
		Port:            "8080",
		DBPath:          "./data/chatbridge.db",
		SessionTimeout:  30 * time.Minute,
		MaxMessageBytes: 10000,
		RateLimit: RateLimitConfig{
			Window:          time.Hour,
			GlobalMax:       1000,
			EndpointDefault: 100,
			EndpointLimits: map[string]int{
				"messages":  50,
				"responses": 200,
				"inbox":     120,
				"outbox":    200,
				"sessions":  20,
			},
			BurstRPS:  25,
			BurstSize: 50,
		},
		CleanupProbability: 0.1,
		SweepInterval:      5 * time.Minute,
		AllowedOrigins:     []string{"*"},
	}

	if path := os.Getenv("CHATBRIDGE_CONFIG"); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse yaml: %w", err)
	}

	if fc.Port != "" {
		c.Port = fc.Port
	}
	if fc.DBPath != "" {
		c.DBPath = fc.DBPath
	}
	if fc.APIKey != "" {
		c.APIKey = fc.APIKey
	}
	if fc.AdminKey != "" {
		c.AdminKey = fc.AdminKey
	}
	if fc.SessionTimeoutSecs > 0 {
		c.SessionTimeout = time.Duration(fc.SessionTimeoutSecs) * time.Second
	}
	if fc.MaxMessageBytes > 0 {
		c.MaxMessageBytes = fc.MaxMessageBytes
	}
	if fc.CleanupProbability != nil {
		c.CleanupProbability = *fc.CleanupProbability
	}
	if fc.SweepIntervalSecs > 0 {
		c.SweepInterval = time.Duration(fc.SweepIntervalSecs) * time.Second
	}
	if len(fc.AllowedOrigins) > 0 {
		c.AllowedOrigins = fc.AllowedOrigins
	}
	if fc.RateLimit.WindowSecs > 0 {
		c.RateLimit.Window = time.Duration(fc.RateLimit.WindowSecs) * time.Second
	}
	if fc.RateLimit.GlobalMax > 0 {
		c.RateLimit.GlobalMax = fc.RateLimit.GlobalMax
	}
	if fc.RateLimit.EndpointDefault > 0 {
		c.RateLimit.EndpointDefault = fc.RateLimit.EndpointDefault
	}
	for endpoint, limit := range fc.RateLimit.EndpointLimits {
		c.RateLimit.EndpointLimits[endpoint] = limit
	}
	if fc.RateLimit.BurstRPS > 0 {
		c.RateLimit.BurstRPS = fc.RateLimit.BurstRPS
	}
	if fc.RateLimit.BurstSize > 0 {
		c.RateLimit.BurstSize = fc.RateLimit.BurstSize
	}

	return nil
}

func (c *Config) applyEnv() {
	c.Port = getEnv("PORT", c.Port)
	c.DBPath = getEnv("DB_PATH", c.DBPath)
	c.APIKey = getEnv("CHAT_API_KEY", c.APIKey)
	c.AdminKey = getEnv("CHAT_ADMIN_KEY", c.AdminKey)
	c.SessionTimeout = getEnvSeconds("SESSION_TIMEOUT", c.SessionTimeout)
	c.MaxMessageBytes = getEnvInt("MAX_MESSAGE_BYTES", c.MaxMessageBytes)
	c.CleanupProbability = getEnvFloat("CLEANUP_PROBABILITY", c.CleanupProbability)
	c.SweepInterval = getEnvSeconds("SWEEP_INTERVAL", c.SweepInterval)
	c.RateLimit.Window = getEnvSeconds("RATE_LIMIT_WINDOW", c.RateLimit.Window)
	c.RateLimit.GlobalMax = getEnvInt("RATE_LIMIT_GLOBAL_MAX", c.RateLimit.GlobalMax)
	c.RateLimit.EndpointDefault = getEnvInt("RATE_LIMIT_ENDPOINT_MAX", c.RateLimit.EndpointDefault)

	if origins := getEnv("ALLOWED_ORIGINS", ""); origins != "" {
		c.AllowedOrigins = nil
		for _, p := range strings.Split(origins, ",") {
			if p = strings.TrimSpace(p); p != "" {
				c.AllowedOrigins = append(c.AllowedOrigins, p)
			}
		}
	}
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.APIKey == "" {
		return fmt.Errorf("CHAT_API_KEY must be set")
	}
	if c.AdminKey == "" {
		return fmt.Errorf("CHAT_ADMIN_KEY must be set")
	}
	if c.APIKey == c.AdminKey {
		return fmt.Errorf("CHAT_API_KEY and CHAT_ADMIN_KEY must differ")
	}
	if c.SessionTimeout <= 0 {
		return fmt.Errorf("SESSION_TIMEOUT must be > 0")
	}
	if c.MaxMessageBytes <= 0 {
		return fmt.Errorf("MAX_MESSAGE_BYTES must be > 0")
	}
	if c.CleanupProbability < 0 || c.CleanupProbability > 1 {
		return fmt.Errorf("CLEANUP_PROBABILITY must be in [0, 1]")
	}
	if c.RateLimit.Window <= 0 {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be > 0")
	}
	if c.RateLimit.GlobalMax <= 0 || c.RateLimit.EndpointDefault <= 0 {
		return fmt.Errorf("rate limit maxima must be > 0")
	}
	return nil
}

// EndpointLimit returns the per-window admission limit for an endpoint,
// falling back to the configured default.
func (c *Config) EndpointLimit(endpoint string) int {
	if limit, ok := c.RateLimit.EndpointLimits[endpoint]; ok {
		return limit
	}
	return c.RateLimit.EndpointDefault
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}

func getEnvSeconds(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || n <= 0 {
		return fallback
	}
	return time.Duration(n) * time.Second
}
