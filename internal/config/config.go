// SOP App - Offline-First Operations Sync Agent
// Copyright 2026 Conquer Design Group
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/conquerdesigngroup/sop-app

package config

import "time"

// Config holds the agent configuration.
//
// Loading order (koanf v2):
//  1. Defaults
//  2. Optional YAML file (CONFIG_PATH or one of DefaultConfigPaths)
//  3. Environment variables listed in envMappings
//
// Config is immutable after LoadWithKoanf and safe for concurrent reads.
// The log level is the one setting that may change at runtime, through
// WatchLogLevel.
type Config struct {
	App          AppConfig          `koanf:"app"`
	Server       ServerConfig       `koanf:"server"`
	Store        StoreConfig        `koanf:"store"`
	Queue        QueueConfig        `koanf:"queue"`
	Sync         SyncConfig         `koanf:"sync"`
	Remote       RemoteConfig       `koanf:"remote"`
	Connectivity ConnectivityConfig `koanf:"connectivity"`
	Cache        CacheConfig        `koanf:"cache"`
	Update       UpdateConfig       `koanf:"update"`
	Security     SecurityConfig     `koanf:"security"`
	Logging      LoggingConfig      `koanf:"logging"`
	Supervisor   SupervisorConfig   `koanf:"supervisor"`
}

// AppConfig identifies the web app the agent serves.
type AppConfig struct {
	// Name prefixes cache names: {name}-v{version}.
	// Default: sop-app
	Name string `koanf:"name"`

	// Origin is the absolute URL of the web app, e.g. https://sop.example.com.
	// Required.
	Origin string `koanf:"origin"`

	// Environment is development or production.
	Environment string `koanf:"environment"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	IdleTimeout     time.Duration `koanf:"idle_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`

	// MaxBodyBytes caps API request bodies.
	MaxBodyBytes int64 `koanf:"max_body_bytes"`
}

// StoreConfig configures the local record store.
type StoreConfig struct {
	Path       string `koanf:"path"`
	InMemory   bool   `koanf:"in_memory"`
	SyncWrites bool   `koanf:"sync_writes"`

	// ConflictRetries bounds retries of a transaction that hit a write conflict.
	ConflictRetries int `koanf:"conflict_retries"`

	// GCInterval is how often value log garbage collection runs.
	GCInterval time.Duration `koanf:"gc_interval"`
}

// QueueConfig configures the pending-change queue.
type QueueConfig struct {
	// MaxEntries caps the queue; 0 disables the cap.
	MaxEntries int `koanf:"max_entries"`
}

// SyncConfig configures the connectivity sync driver.
type SyncConfig struct {
	// DrainPolicy is halt or skip-entity.
	DrainPolicy string `koanf:"drain_policy"`

	// ConflictPolicy is last-writer-wins or reject.
	ConflictPolicy string `koanf:"conflict_policy"`

	Coalesce         bool          `koanf:"coalesce"`
	ReplayRate       float64       `koanf:"replay_rate"`
	ReplayBurst      int           `koanf:"replay_burst"`
	RetryBase        time.Duration `koanf:"retry_base"`
	MaxBackoff       time.Duration `koanf:"max_backoff"`
	DrainTimeout     time.Duration `koanf:"drain_timeout"`
	AppliedCacheSize int           `koanf:"applied_cache_size"`
	AppliedCacheTTL  time.Duration `koanf:"applied_cache_ttl"`
}

// RemoteConfig configures the client of the remote data service.
type RemoteConfig struct {
	// URL is the base URL of the remote data service. Required.
	URL     string        `koanf:"url"`
	Timeout time.Duration `koanf:"timeout"`

	// Circuit breaker settings.
	BreakerFailures    uint32        `koanf:"breaker_failures"`
	BreakerOpenTimeout time.Duration `koanf:"breaker_open_timeout"`
}

// ConnectivityConfig configures the online/offline monitor.
type ConnectivityConfig struct {
	// StartOnline is the assumed state before the first probe.
	StartOnline bool `koanf:"start_online"`

	// ProbeInterval is how often the remote is pinged; 0 disables probing.
	ProbeInterval time.Duration `koanf:"probe_interval"`
	ProbeTimeout  time.Duration `koanf:"probe_timeout"`
}

// CacheConfig configures the cache controller and its storage.
type CacheConfig struct {
	Path     string `koanf:"path"`
	InMemory bool   `koanf:"in_memory"`

	// OfflineDocument is served for navigations that miss every cache
	// while the origin is unreachable. Empty disables it.
	OfflineDocument string `koanf:"offline_document"`

	// BypassPrefixes are never cached.
	BypassPrefixes []string `koanf:"bypass_prefixes"`

	InstallConcurrency    int           `koanf:"install_concurrency"`
	FetchTimeout          time.Duration `koanf:"fetch_timeout"`
	MaxBodyBytes          int64         `koanf:"max_body_bytes"`
	ForwardForeignOrigins bool          `koanf:"forward_foreign_origins"`
	GCInterval            time.Duration `koanf:"gc_interval"`
}

// UpdateConfig configures the release poller.
type UpdateConfig struct {
	// VersionURL serves the release document. Default: {app.origin}/version.json
	VersionURL string `koanf:"version_url"`

	// Interval between checks; 0 disables polling.
	Interval time.Duration `koanf:"interval"`
	Timeout  time.Duration `koanf:"timeout"`
}

// SecurityConfig configures CORS and rate limiting of the API.
type SecurityConfig struct {
	CORSOrigins       []string      `koanf:"cors_origins"`
	RateLimitReqs     int           `koanf:"rate_limit_reqs"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
}

// LoggingConfig configures zerolog output.
type LoggingConfig struct {
	// Level is the minimum log level: trace, debug, info, warn, error.
	// Default: info
	Level string `koanf:"level"`

	// Format is json or console.
	// Default: json
	Format string `koanf:"format"`

	// Caller includes caller file and line number in logs.
	Caller bool `koanf:"caller"`

	// File enables a rotating log file next to stderr output.
	File LogFileConfig `koanf:"file"`
}

// LogFileConfig configures log rotation. An empty Path disables the file.
type LogFileConfig struct {
	Path       string `koanf:"path"`
	MaxSizeMB  int    `koanf:"max_size_mb"`
	MaxBackups int    `koanf:"max_backups"`
	MaxAgeDays int    `koanf:"max_age_days"`
	Compress   bool   `koanf:"compress"`
}

// SupervisorConfig configures the suture tree.
type SupervisorConfig struct {
	FailureThreshold float64       `koanf:"failure_threshold"`
	FailureDecay     float64       `koanf:"failure_decay"`
	FailureBackoff   time.Duration `koanf:"failure_backoff"`
	ShutdownTimeout  time.Duration `koanf:"shutdown_timeout"`
}

// ListenAddr returns host:port for the HTTP server.
func (c *ServerConfig) ListenAddr() string {
	return joinHostPort(c.Host, c.Port)
}

// IsProduction reports whether the agent runs in production mode.
func (c *AppConfig) IsProduction() bool {
	return c.Environment == "production"
}
