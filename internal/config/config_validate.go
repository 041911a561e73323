// SOP App - Offline-First Operations Sync Agent
// Copyright 2026 Conquer Design Group
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/conquerdesigngroup/sop-app

package config

import (
	"fmt"
	"regexp"
	"strings"
)

// appNamePattern keeps cache names ({name}-v{version}) URL and key safe.
var appNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{0,62}$`)

// Validate checks that required configuration is present and valid
func (c *Config) Validate() error {
	validators := []func() error{
		c.validateApp,
		c.validateServer,
		c.validateStore,
		c.validateSync,
		c.validateRemote,
		c.validateConnectivity,
		c.validateCache,
		c.validateUpdate,
		c.validateSecurity,
		c.validateLogging,
		c.validateSupervisor,
	}
	for _, v := range validators {
		if err := v(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateApp() error {
	if !appNamePattern.MatchString(c.App.Name) {
		return fmt.Errorf("APP_NAME must be lowercase letters, digits and dashes, got %q", c.App.Name)
	}
	if c.App.Origin == "" {
		return fmt.Errorf("APP_ORIGIN is required")
	}
	if err := validateHTTPURL(c.App.Origin, "APP_ORIGIN", true); err != nil {
		return err
	}
	switch c.App.Environment {
	case "development", "production":
		return nil
	default:
		return fmt.Errorf("ENVIRONMENT must be development or production, got %q", c.App.Environment)
	}
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.ReadTimeout <= 0 || c.Server.WriteTimeout <= 0 || c.Server.IdleTimeout <= 0 {
		return fmt.Errorf("server timeouts must be positive")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("HTTP_SHUTDOWN_TIMEOUT must be positive")
	}
	if c.Server.MaxBodyBytes <= 0 {
		return fmt.Errorf("HTTP_MAX_BODY_BYTES must be positive")
	}
	return nil
}

func (c *Config) validateStore() error {
	if !c.Store.InMemory && c.Store.Path == "" {
		return fmt.Errorf("STORE_PATH is required unless STORE_IN_MEMORY=true")
	}
	if c.Store.ConflictRetries < 0 {
		return fmt.Errorf("STORE_CONFLICT_RETRIES must be >= 0")
	}
	if c.Queue.MaxEntries < 0 {
		return fmt.Errorf("QUEUE_MAX_ENTRIES must be >= 0 (0 disables the cap)")
	}
	return nil
}

func (c *Config) validateSync() error {
	switch c.Sync.DrainPolicy {
	case "halt", "skip-entity":
	default:
		return fmt.Errorf("SYNC_DRAIN_POLICY must be halt or skip-entity, got %q", c.Sync.DrainPolicy)
	}
	switch c.Sync.ConflictPolicy {
	case "last-writer-wins", "reject":
	default:
		return fmt.Errorf("SYNC_CONFLICT_POLICY must be last-writer-wins or reject, got %q", c.Sync.ConflictPolicy)
	}
	if c.Sync.ReplayRate < 0 {
		return fmt.Errorf("SYNC_REPLAY_RATE must be >= 0 (0 disables pacing)")
	}
	if c.Sync.RetryBase <= 0 {
		return fmt.Errorf("SYNC_RETRY_BASE must be positive")
	}
	if c.Sync.MaxBackoff < c.Sync.RetryBase {
		return fmt.Errorf("SYNC_MAX_BACKOFF (%v) must not be below SYNC_RETRY_BASE (%v)", c.Sync.MaxBackoff, c.Sync.RetryBase)
	}
	if c.Sync.DrainTimeout <= 0 {
		return fmt.Errorf("SYNC_DRAIN_TIMEOUT must be positive")
	}
	return nil
}

func (c *Config) validateRemote() error {
	if c.Remote.URL == "" {
		return fmt.Errorf("REMOTE_URL is required")
	}
	if err := validateHTTPURL(c.Remote.URL, "REMOTE_URL", false); err != nil {
		return err
	}
	if c.Remote.Timeout <= 0 {
		return fmt.Errorf("REMOTE_TIMEOUT must be positive")
	}
	if c.Remote.BreakerFailures < 1 {
		return fmt.Errorf("REMOTE_BREAKER_FAILURES must be at least 1")
	}
	if c.Remote.BreakerOpenTimeout <= 0 {
		return fmt.Errorf("REMOTE_BREAKER_OPEN_TIMEOUT must be positive")
	}
	return nil
}

func (c *Config) validateConnectivity() error {
	if c.Connectivity.ProbeInterval < 0 || c.Connectivity.ProbeTimeout < 0 {
		return fmt.Errorf("connectivity probe durations must be >= 0")
	}
	return nil
}

func (c *Config) validateCache() error {
	if !c.Cache.InMemory && c.Cache.Path == "" {
		return fmt.Errorf("CACHE_PATH is required unless CACHE_IN_MEMORY=true")
	}
	if !c.Cache.InMemory && !c.Store.InMemory && c.Cache.Path == c.Store.Path {
		return fmt.Errorf("CACHE_PATH and STORE_PATH must differ")
	}
	if c.Cache.OfflineDocument != "" && !strings.HasPrefix(c.Cache.OfflineDocument, "/") {
		return fmt.Errorf("CACHE_OFFLINE_DOCUMENT must be an absolute path, got %q", c.Cache.OfflineDocument)
	}
	for _, p := range c.Cache.BypassPrefixes {
		if !strings.HasPrefix(p, "/") {
			return fmt.Errorf("CACHE_BYPASS_PREFIXES entries must start with /, got %q", p)
		}
	}
	if c.Cache.InstallConcurrency < 1 {
		return fmt.Errorf("CACHE_INSTALL_CONCURRENCY must be at least 1")
	}
	if c.Cache.FetchTimeout <= 0 {
		return fmt.Errorf("CACHE_FETCH_TIMEOUT must be positive")
	}
	if c.Cache.MaxBodyBytes <= 0 {
		return fmt.Errorf("CACHE_MAX_BODY_BYTES must be positive")
	}
	return nil
}

func (c *Config) validateUpdate() error {
	if err := validateHTTPURL(c.Update.VersionURL, "UPDATE_VERSION_URL", false); err != nil {
		return err
	}
	if c.Update.Interval < 0 {
		return fmt.Errorf("UPDATE_INTERVAL must be >= 0 (0 disables polling)")
	}
	if c.Update.Timeout <= 0 {
		return fmt.Errorf("UPDATE_TIMEOUT must be positive")
	}
	return nil
}

func (c *Config) validateSecurity() error {
	for _, origin := range c.Security.CORSOrigins {
		if origin == "*" {
			if c.App.IsProduction() {
				return fmt.Errorf("CORS_ORIGINS must not contain * in production")
			}
			continue
		}
		if err := validateHTTPURL(origin, "CORS_ORIGINS", true); err != nil {
			return err
		}
	}
	if c.Security.RateLimitDisabled {
		return nil
	}
	if c.Security.RateLimitReqs <= 0 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS must be positive (set DISABLE_RATE_LIMIT=true to disable)")
	}
	if c.Security.RateLimitWindow <= 0 {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch strings.ToLower(c.Logging.Level) {
	case "trace", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("LOG_LEVEL must be trace, debug, info, warn or error, got %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or console, got %q", c.Logging.Format)
	}
	if c.Logging.File.Path != "" && c.Logging.File.MaxSizeMB <= 0 {
		return fmt.Errorf("LOG_FILE_MAX_SIZE_MB must be positive when LOG_FILE is set")
	}
	return nil
}

func (c *Config) validateSupervisor() error {
	if c.Supervisor.FailureThreshold <= 0 || c.Supervisor.FailureDecay <= 0 {
		return fmt.Errorf("supervisor failure threshold and decay must be positive")
	}
	if c.Supervisor.FailureBackoff <= 0 || c.Supervisor.ShutdownTimeout <= 0 {
		return fmt.Errorf("supervisor backoff and shutdown timeout must be positive")
	}
	return nil
}
