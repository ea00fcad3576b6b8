package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// setEnv unsets every variable read by Config (restored after the test), then applies vars
func setEnv(t *testing.T, vars map[string]string) {
	t.Helper()
	for _, key := range []string{
		"ENVIRONMENT", "LOG_LEVEL", "API_BASE_URL", "REQUEST_TIMEOUT",
		"AUTO_ATTACH_TOKEN", "CLEAR_SESSION_ON_UNAUTHORIZED",
		"SESSION_STORE", "SESSION_FILE", "SESSION_NAMESPACE", "REDIS_URL",
		"RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
	for k, v := range vars {
		t.Setenv(k, v)
	}
}

func TestNewConfig_Defaults(t *testing.T) {
	t.Chdir(t.TempDir()) // no .env file
	setEnv(t, map[string]string{"SESSION_FILE": "/tmp/portal-test/session.json"})

	cfg, err := NewConfig()
	if err != nil {
		t.Fatalf("NewConfig() error = %v", err)
	}

	if cfg.Environment != "dev" {
		t.Errorf("Environment = %q, want dev", cfg.Environment)
	}
	if cfg.APIBaseURL != "http://localhost:8080/api/v1" {
		t.Errorf("APIBaseURL = %q", cfg.APIBaseURL)
	}
	if cfg.RequestTimeout != DefaultRequestTimeout {
		t.Errorf("RequestTimeout = %v, want %v", cfg.RequestTimeout, DefaultRequestTimeout)
	}
	if cfg.AutoAttachToken {
		t.Error("AutoAttachToken = true, want off by default")
	}
	if !cfg.ClearSessionOnUnauthorized {
		t.Error("ClearSessionOnUnauthorized = false, want on by default")
	}
	if cfg.SessionStore != "file" {
		t.Errorf("SessionStore = %q, want file", cfg.SessionStore)
	}
	if cfg.RateLimitRPS != 0 || cfg.RateLimitBurst != 1 {
		t.Errorf("rate limit = %v/%d, want disabled", cfg.RateLimitRPS, cfg.RateLimitBurst)
	}
}

func TestNewConfig_FromEnvironment(t *testing.T) {
	t.Chdir(t.TempDir())
	setEnv(t, map[string]string{
		"ENVIRONMENT":                   "prod",
		"LOG_LEVEL":                     "warn",
		"API_BASE_URL":                  "https://portal.example.org/api/v2",
		"REQUEST_TIMEOUT":               "5s",
		"AUTO_ATTACH_TOKEN":             "true",
		"CLEAR_SESSION_ON_UNAUTHORIZED": "false",
		"SESSION_STORE":                 "redis",
		"REDIS_URL":                     "redis://localhost:6379/0",
		"SESSION_NAMESPACE":             "frontend",
		"RATE_LIMIT_RPS":                "2.5",
		"RATE_LIMIT_BURST":              "5",
	})

	cfg, err := NewConfig()
	if err != nil {
		t.Fatalf("NewConfig() error = %v", err)
	}

	if cfg.Environment != "prod" || cfg.LogLevel != "warn" {
		t.Errorf("Environment/LogLevel = %q/%q", cfg.Environment, cfg.LogLevel)
	}
	if cfg.APIBaseURL != "https://portal.example.org/api/v2" {
		t.Errorf("APIBaseURL = %q", cfg.APIBaseURL)
	}
	if cfg.RequestTimeout != 5*time.Second {
		t.Errorf("RequestTimeout = %v", cfg.RequestTimeout)
	}
	if !cfg.AutoAttachToken || cfg.ClearSessionOnUnauthorized {
		t.Errorf("AutoAttachToken/ClearSessionOnUnauthorized = %v/%v", cfg.AutoAttachToken, cfg.ClearSessionOnUnauthorized)
	}
	if cfg.SessionFile != "" {
		t.Errorf("SessionFile = %q, want unset for the redis store", cfg.SessionFile)
	}
	if cfg.RateLimitRPS != 2.5 || cfg.RateLimitBurst != 5 {
		t.Errorf("rate limit = %v/%d", cfg.RateLimitRPS, cfg.RateLimitBurst)
	}
}

func TestNewConfig_Invalid(t *testing.T) {
	tests := []struct {
		name      string
		vars      map[string]string
		wantField string
	}{
		{
			name:      "unknown environment",
			vars:      map[string]string{"ENVIRONMENT": "qa"},
			wantField: "Environment",
		},
		{
			name:      "bad base url",
			vars:      map[string]string{"API_BASE_URL": "not a url"},
			wantField: "APIBaseURL",
		},
		{
			name:      "unknown session store",
			vars:      map[string]string{"SESSION_STORE": "cookie"},
			wantField: "SessionStore",
		},
		{
			name:      "redis without url",
			vars:      map[string]string{"SESSION_STORE": "redis"},
			wantField: "RedisURL",
		},
		{
			name:      "negative rate",
			vars:      map[string]string{"RATE_LIMIT_RPS": "-1"},
			wantField: "RateLimitRPS",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Chdir(t.TempDir())
			setEnv(t, tt.vars)

			_, err := NewConfig()
			if err == nil {
				t.Fatal("NewConfig() error = nil")
			}
			if !strings.Contains(err.Error(), tt.wantField) {
				t.Errorf("error %q does not name %s", err, tt.wantField)
			}
		})
	}
}

func TestNewConfig_DotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	setEnv(t, map[string]string{"SESSION_STORE": "memory"})
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("REQUEST_TIMEOUT=12s\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := NewConfig()
	if err != nil {
		t.Fatalf("NewConfig() error = %v", err)
	}
	if cfg.RequestTimeout != 12*time.Second {
		t.Errorf("RequestTimeout = %v, want value from .env", cfg.RequestTimeout)
	}
}
