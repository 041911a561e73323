// SOP App - Offline-First Operations Sync Agent
// Copyright 2026 Conquer Design Group
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/conquerdesigngroup/sop-app

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/conquerdesigngroup/sop-app-sub000/internal/logging"
)

// DefaultConfigPaths lists the paths where config files are searched in order of priority.
// The first file found will be used.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/sop-agent/config.yaml",
	"/etc/sop-agent/config.yml",
}

// ConfigPathEnvVar is the environment variable that can override the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config struct with all default values.
// These defaults are applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Name:        "sop-app",
			Origin:      "",
			Environment: "development",
		},
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            8420,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    5 * time.Minute, // a manual drain answers when it finishes
			IdleTimeout:     2 * time.Minute,
			ShutdownTimeout: 15 * time.Second,
			MaxBodyBytes:    1 << 20,
		},
		Store: StoreConfig{
			Path:            "/data/store",
			InMemory:        false,
			SyncWrites:      true,
			ConflictRetries: 5,
			GCInterval:      10 * time.Minute,
		},
		Queue: QueueConfig{
			MaxEntries: 10000,
		},
		Sync: SyncConfig{
			DrainPolicy:      "halt",
			ConflictPolicy:   "last-writer-wins",
			Coalesce:         false,
			ReplayRate:       20,
			ReplayBurst:      5,
			RetryBase:        2 * time.Second,
			MaxBackoff:       5 * time.Minute,
			DrainTimeout:     5 * time.Minute,
			AppliedCacheSize: 10000,
			AppliedCacheTTL:  24 * time.Hour,
		},
		Remote: RemoteConfig{
			URL:                "",
			Timeout:            10 * time.Second,
			BreakerFailures:    3,
			BreakerOpenTimeout: 30 * time.Second,
		},
		Connectivity: ConnectivityConfig{
			StartOnline:   true,
			ProbeInterval: 30 * time.Second,
			ProbeTimeout:  5 * time.Second,
		},
		Cache: CacheConfig{
			Path:                  "/data/webcache",
			InMemory:              false,
			OfflineDocument:       "/offline.html",
			BypassPrefixes:        []string{"/api/", "/ws", "/metrics"},
			InstallConcurrency:    6,
			FetchTimeout:          15 * time.Second,
			MaxBodyBytes:          10 << 20,
			ForwardForeignOrigins: false,
			GCInterval:            30 * time.Minute,
		},
		Update: UpdateConfig{
			VersionURL: "", // derived from app.origin
			Interval:   60 * time.Second,
			Timeout:    30 * time.Second,
		},
		Security: SecurityConfig{
			CORSOrigins:       []string{},
			RateLimitReqs:     300,
			RateLimitWindow:   time.Minute,
			RateLimitDisabled: false,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
			File: LogFileConfig{
				MaxSizeMB:  100,
				MaxBackups: 5,
				MaxAgeDays: 30,
				Compress:   true,
			},
		},
		Supervisor: SupervisorConfig{
			FailureThreshold: 5.0,
			FailureDecay:     30.0,
			FailureBackoff:   15 * time.Second,
			ShutdownTimeout:  10 * time.Second,
		},
	}
}

// LoadWithKoanf loads configuration using Koanf v2 with layered sources:
//  1. Defaults: Built-in defaults
//  2. Config File: Optional YAML config file (if exists)
//  3. Environment Variables: Override any mapped setting
func LoadWithKoanf() (*Config, error) {
	return LoadFile(findConfigFile())
}

// LoadFile is LoadWithKoanf with an explicit config file. An empty path
// skips the file layer.
func LoadFile(configPath string) (*Config, error) {
	k := koanf.New(".")

	// Layer 1: Load defaults from struct
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Layer 2: Load config file (optional)
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Layer 3: Load environment variables (highest priority)
	// REMOTE_URL -> remote.url, SYNC_DRAIN_POLICY -> sync.drain_policy
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	cfg.applyDerived()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// applyDerived fills settings whose defaults depend on other settings.
func (c *Config) applyDerived() {
	if c.Update.VersionURL == "" && c.App.Origin != "" {
		c.Update.VersionURL = strings.TrimRight(c.App.Origin, "/") + "/version.json"
	}
}

// findConfigFile searches for a config file in the default paths.
// Returns the path to the first file found, or empty string if none found.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// FindConfigFile returns the config file LoadWithKoanf would read, or "".
func FindConfigFile() string {
	return findConfigFile()
}

// sliceConfigPaths defines which config paths should be parsed as comma-separated slices
var sliceConfigPaths = []string{
	"security.cors_origins",
	"cache.bypass_prefixes",
}

// processSliceFields converts comma-separated string values to slices for known slice fields.
// Env vars arrive as strings while the config expects slices.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}

// envMappings maps environment variable names (lowercased) to koanf paths.
// Unlisted variables are ignored.
var envMappings = map[string]string{
	"app_name":    "app.name",
	"app_origin":  "app.origin",
	"environment": "app.environment",

	"http_host":             "server.host",
	"http_port":             "server.port",
	"http_read_timeout":     "server.read_timeout",
	"http_write_timeout":    "server.write_timeout",
	"http_idle_timeout":     "server.idle_timeout",
	"http_shutdown_timeout": "server.shutdown_timeout",
	"http_max_body_bytes":   "server.max_body_bytes",

	"store_path":             "store.path",
	"store_in_memory":        "store.in_memory",
	"store_sync_writes":      "store.sync_writes",
	"store_conflict_retries": "store.conflict_retries",
	"store_gc_interval":      "store.gc_interval",

	"queue_max_entries": "queue.max_entries",

	"sync_drain_policy":       "sync.drain_policy",
	"sync_conflict_policy":    "sync.conflict_policy",
	"sync_coalesce":           "sync.coalesce",
	"sync_replay_rate":        "sync.replay_rate",
	"sync_replay_burst":       "sync.replay_burst",
	"sync_retry_base":         "sync.retry_base",
	"sync_max_backoff":        "sync.max_backoff",
	"sync_drain_timeout":      "sync.drain_timeout",
	"sync_applied_cache_size": "sync.applied_cache_size",
	"sync_applied_cache_ttl":  "sync.applied_cache_ttl",

	"remote_url":                  "remote.url",
	"remote_timeout":              "remote.timeout",
	"remote_breaker_failures":     "remote.breaker_failures",
	"remote_breaker_open_timeout": "remote.breaker_open_timeout",

	"connectivity_start_online":   "connectivity.start_online",
	"connectivity_probe_interval": "connectivity.probe_interval",
	"connectivity_probe_timeout":  "connectivity.probe_timeout",

	"cache_path":                    "cache.path",
	"cache_in_memory":               "cache.in_memory",
	"cache_offline_document":        "cache.offline_document",
	"cache_bypass_prefixes":         "cache.bypass_prefixes",
	"cache_install_concurrency":     "cache.install_concurrency",
	"cache_fetch_timeout":           "cache.fetch_timeout",
	"cache_max_body_bytes":          "cache.max_body_bytes",
	"cache_forward_foreign_origins": "cache.forward_foreign_origins",
	"cache_gc_interval":             "cache.gc_interval",

	"update_version_url": "update.version_url",
	"update_interval":    "update.interval",
	"update_timeout":     "update.timeout",

	"cors_origins":        "security.cors_origins",
	"rate_limit_requests": "security.rate_limit_reqs",
	"rate_limit_window":   "security.rate_limit_window",
	"disable_rate_limit":  "security.rate_limit_disabled",

	"log_level":            "logging.level",
	"log_format":           "logging.format",
	"log_caller":           "logging.caller",
	"log_file":             "logging.file.path",
	"log_file_max_size_mb": "logging.file.max_size_mb",
	"log_file_max_backups": "logging.file.max_backups",
	"log_file_max_age":     "logging.file.max_age_days",
	"log_file_compress":    "logging.file.compress",

	"supervisor_failure_threshold": "supervisor.failure_threshold",
	"supervisor_failure_decay":     "supervisor.failure_decay",
	"supervisor_failure_backoff":   "supervisor.failure_backoff",
	"supervisor_shutdown_timeout":  "supervisor.shutdown_timeout",
}

// envTransformFunc transforms environment variable names to koanf config paths.
// Unmapped keys return "" so unrelated variables never reach the config.
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}

// WatchConfigFile calls callback whenever the file at path changes. The
// returned stop function ends the watch.
func WatchConfigFile(path string, callback func()) (stop func() error, err error) {
	provider := file.Provider(path)
	err = provider.Watch(func(event interface{}, err error) {
		if err != nil {
			logging.Warn().Err(err).Str("path", path).Msg("Config watch error")
			return
		}
		callback()
	})
	if err != nil {
		return nil, fmt.Errorf("watch %s: %w", path, err)
	}
	return provider.Unwatch, nil
}

// WatchLogLevel reloads path on every change and applies its logging.level.
// Other settings need a restart; a reload that fails validation is ignored.
func WatchLogLevel(path string) (stop func() error, err error) {
	return WatchConfigFile(path, func() {
		cfg, err := LoadFile(path)
		if err != nil {
			logging.Warn().Err(err).Str("path", path).Msg("Config reload failed; keeping current log level")
			return
		}
		if cfg.Logging.Level == logging.GetLevel().String() {
			return
		}
		logging.SetLevelString(cfg.Logging.Level)
		logging.Info().Str("level", cfg.Logging.Level).Msg("Log level changed")
	})
}
