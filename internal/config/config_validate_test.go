// SOP App - Offline-First Operations Sync Agent
// Copyright 2026 Conquer Design Group
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/conquerdesigngroup/sop-app

package config

import (
	"strings"
	"testing"
	"time"
)

func validConfig() *Config {
	cfg := defaultConfig()
	cfg.App.Origin = "https://sop.example.com"
	cfg.Remote.URL = "https://api.example.com/data"
	cfg.applyDerived()
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"in-memory store needs no path", func(c *Config) { c.Store.InMemory = true; c.Store.Path = "" }, ""},
		{"uppercase app name", func(c *Config) { c.App.Name = "SOP" }, "APP_NAME"},
		{"origin with path", func(c *Config) { c.App.Origin = "https://sop.example.com/app" }, "APP_ORIGIN"},
		{"origin scheme", func(c *Config) { c.App.Origin = "ftp://sop.example.com" }, "APP_ORIGIN"},
		{"unknown environment", func(c *Config) { c.App.Environment = "staging" }, "ENVIRONMENT"},
		{"port out of range", func(c *Config) { c.Server.Port = 70000 }, "HTTP_PORT"},
		{"zero body limit", func(c *Config) { c.Server.MaxBodyBytes = 0 }, "HTTP_MAX_BODY_BYTES"},
		{"store path missing", func(c *Config) { c.Store.Path = "" }, "STORE_PATH"},
		{"negative queue cap", func(c *Config) { c.Queue.MaxEntries = -1 }, "QUEUE_MAX_ENTRIES"},
		{"unknown conflict policy", func(c *Config) { c.Sync.ConflictPolicy = "merge" }, "SYNC_CONFLICT_POLICY"},
		{"backoff below base", func(c *Config) { c.Sync.MaxBackoff = time.Second }, "SYNC_MAX_BACKOFF"},
		{"remote missing", func(c *Config) { c.Remote.URL = "" }, "REMOTE_URL"},
		{"remote with path is fine", func(c *Config) { c.Remote.URL = "http://10.0.0.5:8080/v2/data" }, ""},
		{"zero breaker failures", func(c *Config) { c.Remote.BreakerFailures = 0 }, "REMOTE_BREAKER_FAILURES"},
		{"shared badger path", func(c *Config) { c.Cache.Path = c.Store.Path }, "CACHE_PATH"},
		{"relative offline document", func(c *Config) { c.Cache.OfflineDocument = "offline.html" }, "CACHE_OFFLINE_DOCUMENT"},
		{"relative bypass prefix", func(c *Config) { c.Cache.BypassPrefixes = []string{"api/"} }, "CACHE_BYPASS_PREFIXES"},
		{"bad version url", func(c *Config) { c.Update.VersionURL = "version.json" }, "UPDATE_VERSION_URL"},
		{"wildcard cors in development", func(c *Config) { c.Security.CORSOrigins = []string{"*"} }, ""},
		{"wildcard cors in production", func(c *Config) {
			c.App.Environment = "production"
			c.Security.CORSOrigins = []string{"*"}
		}, "CORS_ORIGINS"},
		{"rate limit off skips limits", func(c *Config) {
			c.Security.RateLimitDisabled = true
			c.Security.RateLimitReqs = 0
		}, ""},
		{"zero rate limit", func(c *Config) { c.Security.RateLimitReqs = 0 }, "RATE_LIMIT_REQUESTS"},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }, "LOG_LEVEL"},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "LOG_FORMAT"},
		{"log file without size", func(c *Config) {
			c.Logging.File.Path = "/var/log/sop-agent.log"
			c.Logging.File.MaxSizeMB = 0
		}, "LOG_FILE_MAX_SIZE_MB"},
		{"supervisor threshold", func(c *Config) { c.Supervisor.FailureThreshold = 0 }, "supervisor"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want error mentioning %s", err, tt.wantErr)
			}
		})
	}
}
