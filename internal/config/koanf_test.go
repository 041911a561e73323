// SOP App - Offline-First Operations Sync Agent
// Copyright 2026 Conquer Design Group
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/conquerdesigngroup/sop-app

package config

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/conquerdesigngroup/sop-app-sub000/internal/logging"
)

func init() {
	logging.SetLogger(logging.NewTestLogger(io.Discard))
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const minimalYAML = `
app:
  origin: https://sop.example.com
remote:
  url: https://api.example.com/data
`

// TestDefaultConfig verifies that defaultConfig() returns proper defaults
func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.App.Name != "sop-app" {
		t.Errorf("App.Name = %q, want sop-app", cfg.App.Name)
	}
	if cfg.Server.Port != 8420 {
		t.Errorf("Server.Port = %d, want 8420", cfg.Server.Port)
	}
	if cfg.Sync.DrainPolicy != "halt" || cfg.Sync.ConflictPolicy != "last-writer-wins" {
		t.Errorf("Sync policies = %q/%q", cfg.Sync.DrainPolicy, cfg.Sync.ConflictPolicy)
	}
	if cfg.Sync.RetryBase != 2*time.Second || cfg.Sync.MaxBackoff != 5*time.Minute {
		t.Errorf("Sync backoff = %v..%v", cfg.Sync.RetryBase, cfg.Sync.MaxBackoff)
	}
	if cfg.Queue.MaxEntries != 10000 {
		t.Errorf("Queue.MaxEntries = %d, want 10000", cfg.Queue.MaxEntries)
	}
	if !cfg.Connectivity.StartOnline {
		t.Error("Connectivity.StartOnline should default to true")
	}
	if cfg.Update.Interval != time.Minute {
		t.Errorf("Update.Interval = %v, want 1m", cfg.Update.Interval)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want info", cfg.Logging.Level)
	}

	// Defaults alone are incomplete: origin and remote must be configured.
	if err := cfg.Validate(); err == nil {
		t.Error("defaults without origin validated")
	}
}

// TestEnvTransformFunc verifies environment variable name transformations
func TestEnvTransformFunc(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"APP_ORIGIN", "app.origin"},
		{"HTTP_PORT", "server.port"},
		{"STORE_PATH", "store.path"},
		{"SYNC_DRAIN_POLICY", "sync.drain_policy"},
		{"REMOTE_URL", "remote.url"},
		{"CACHE_BYPASS_PREFIXES", "cache.bypass_prefixes"},
		{"UPDATE_INTERVAL", "update.interval"},
		{"DISABLE_RATE_LIMIT", "security.rate_limit_disabled"},
		{"LOG_FILE", "logging.file.path"},
		{"log_level", "logging.level"},

		// Unmapped variables are ignored
		{"PATH", ""},
		{"HOME", ""},
		{"SYNC_UNKNOWN", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := envTransformFunc(tt.input); got != tt.expected {
				t.Errorf("envTransformFunc(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestLoadFile_YAMLAndDerivedValues(t *testing.T) {
	path := writeConfig(t, minimalYAML+`
sync:
  drain_policy: skip-entity
  retry_base: 500ms
cache:
  bypass_prefixes: ["/api/", "/auth/"]
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Sync.DrainPolicy != "skip-entity" {
		t.Errorf("DrainPolicy = %q", cfg.Sync.DrainPolicy)
	}
	if cfg.Sync.RetryBase != 500*time.Millisecond {
		t.Errorf("RetryBase = %v", cfg.Sync.RetryBase)
	}
	if cfg.Sync.MaxBackoff != 5*time.Minute {
		t.Errorf("MaxBackoff default lost: %v", cfg.Sync.MaxBackoff)
	}
	if got := strings.Join(cfg.Cache.BypassPrefixes, ","); got != "/api/,/auth/" {
		t.Errorf("BypassPrefixes = %q", got)
	}
	if cfg.Update.VersionURL != "https://sop.example.com/version.json" {
		t.Errorf("VersionURL = %q", cfg.Update.VersionURL)
	}
	if cfg.Server.ListenAddr() != "127.0.0.1:8420" {
		t.Errorf("ListenAddr = %q", cfg.Server.ListenAddr())
	}
}

func TestLoadFile_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, minimalYAML+`
server:
  port: 9000
`)
	t.Setenv("HTTP_PORT", "9100")
	t.Setenv("CORS_ORIGINS", "https://a.example.com, https://b.example.com")
	t.Setenv("REMOTE_BREAKER_FAILURES", "7")
	t.Setenv("UPDATE_INTERVAL", "0s")

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Server.Port != 9100 {
		t.Errorf("Port = %d, want env value 9100", cfg.Server.Port)
	}
	if len(cfg.Security.CORSOrigins) != 2 || cfg.Security.CORSOrigins[1] != "https://b.example.com" {
		t.Errorf("CORSOrigins = %v", cfg.Security.CORSOrigins)
	}
	if cfg.Remote.BreakerFailures != 7 {
		t.Errorf("BreakerFailures = %d", cfg.Remote.BreakerFailures)
	}
	if cfg.Update.Interval != 0 {
		t.Errorf("Update.Interval = %v, want disabled", cfg.Update.Interval)
	}
}

func TestLoadFile_Errors(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("missing explicit file loaded")
	}

	path := writeConfig(t, "app: [unclosed")
	if _, err := LoadFile(path); err == nil {
		t.Error("malformed YAML loaded")
	}

	path = writeConfig(t, minimalYAML+`
sync:
  drain_policy: retry-forever
`)
	_, err := LoadFile(path)
	if err == nil || !strings.Contains(err.Error(), "SYNC_DRAIN_POLICY") {
		t.Errorf("invalid policy error = %v", err)
	}
}

func TestFindConfigFile_EnvVar(t *testing.T) {
	path := writeConfig(t, minimalYAML)
	t.Setenv(ConfigPathEnvVar, path)
	if got := FindConfigFile(); got != path {
		t.Errorf("FindConfigFile = %q, want %q", got, path)
	}
}

func TestWatchLogLevel(t *testing.T) {
	prev := logging.GetLevel()
	defer zerolog.SetGlobalLevel(prev)
	logging.SetLevelString("info")

	path := writeConfig(t, minimalYAML)
	stop, err := WatchLogLevel(path)
	if err != nil {
		t.Fatalf("WatchLogLevel: %v", err)
	}
	defer func() { _ = stop() }()

	if err := os.WriteFile(path, []byte(minimalYAML+"logging:\n  level: debug\n"), 0o600); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for logging.GetLevel() != zerolog.DebugLevel {
		if time.Now().After(deadline) {
			t.Fatalf("log level = %v after config change, want debug", logging.GetLevel())
		}
		time.Sleep(20 * time.Millisecond)
	}
}
