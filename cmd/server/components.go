// SOP App - Offline-First Operations Sync Agent
// Copyright 2026 Conquer Design Group
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/conquerdesigngroup/sop-app

package main

import (
	"os"

	"github.com/conquerdesigngroup/sop-app-sub000/internal/api"
	"github.com/conquerdesigngroup/sop-app-sub000/internal/config"
	"github.com/conquerdesigngroup/sop-app-sub000/internal/logging"
	"github.com/conquerdesigngroup/sop-app-sub000/internal/queue"
	"github.com/conquerdesigngroup/sop-app-sub000/internal/remote"
	"github.com/conquerdesigngroup/sop-app-sub000/internal/storage"
	"github.com/conquerdesigngroup/sop-app-sub000/internal/store"
	"github.com/conquerdesigngroup/sop-app-sub000/internal/supervisor"
	syncpkg "github.com/conquerdesigngroup/sop-app-sub000/internal/sync"
	"github.com/conquerdesigngroup/sop-app-sub000/internal/update"
	"github.com/conquerdesigngroup/sop-app-sub000/internal/webcache"
)

// Conversions from the loaded configuration to component configs.

func loggingConfig(c config.LoggingConfig) logging.Config {
	return logging.Config{
		Level:     c.Level,
		Format:    c.Format,
		Caller:    c.Caller,
		Timestamp: true,
		Output:    os.Stderr,
		File: logging.FileConfig{
			Path:       c.File.Path,
			MaxSizeMB:  c.File.MaxSizeMB,
			MaxBackups: c.File.MaxBackups,
			MaxAgeDays: c.File.MaxAgeDays,
			Compress:   c.File.Compress,
		},
	}
}

func storeConfig(c config.StoreConfig) store.Config {
	sc := store.DefaultConfig(c.Path)
	if c.InMemory {
		sc.Storage = storage.InMemoryConfig()
	}
	sc.Storage.SyncWrites = c.SyncWrites
	if c.ConflictRetries > 0 {
		sc.ConflictRetries = c.ConflictRetries
	}
	return sc
}

func cacheStorageConfig(c config.CacheConfig) storage.Config {
	if c.InMemory {
		return storage.InMemoryConfig()
	}
	return storage.DefaultConfig(c.Path)
}

func queueConfig(c config.QueueConfig) queue.Config {
	return queue.Config{MaxEntries: c.MaxEntries}
}

func syncConfig(c config.SyncConfig) syncpkg.Config {
	return syncpkg.Config{
		DrainPolicy:          syncpkg.DrainPolicy(c.DrainPolicy),
		ConflictPolicy:       syncpkg.ConflictPolicy(c.ConflictPolicy),
		CoalesceBeforeReplay: c.Coalesce,
		ReplayRate:           c.ReplayRate,
		ReplayBurst:          c.ReplayBurst,
		RetryBase:            c.RetryBase,
		MaxBackoff:           c.MaxBackoff,
		DrainTimeout:         c.DrainTimeout,
		AppliedCacheSize:     c.AppliedCacheSize,
		AppliedCacheTTL:      c.AppliedCacheTTL,
	}
}

func remoteConfig(c config.RemoteConfig) remote.Config {
	rc := remote.DefaultConfig(c.URL)
	if c.Timeout > 0 {
		rc.Timeout = c.Timeout
	}
	if c.BreakerFailures > 0 {
		rc.FailureThreshold = c.BreakerFailures
	}
	if c.BreakerOpenTimeout > 0 {
		rc.OpenTimeout = c.BreakerOpenTimeout
	}
	return rc
}

func webcacheConfig(app config.AppConfig, c config.CacheConfig) webcache.Config {
	wc := webcache.DefaultConfig(app.Origin)
	wc.AppName = app.Name
	wc.OfflineDocument = c.OfflineDocument
	wc.BypassPrefixes = c.BypassPrefixes
	wc.ForwardForeignOrigins = c.ForwardForeignOrigins
	if c.InstallConcurrency > 0 {
		wc.InstallConcurrency = c.InstallConcurrency
	}
	if c.FetchTimeout > 0 {
		wc.FetchTimeout = c.FetchTimeout
	}
	if c.MaxBodyBytes > 0 {
		wc.MaxBodyBytes = c.MaxBodyBytes
	}
	return wc
}

func updateConfig(c config.UpdateConfig) update.Config {
	uc := update.DefaultConfig(c.VersionURL)
	uc.Interval = c.Interval
	if c.Timeout > 0 {
		uc.Timeout = c.Timeout
	}
	return uc
}

func middlewareConfig(c config.SecurityConfig) *api.ChiMiddlewareConfig {
	mc := api.DefaultChiMiddlewareConfig()
	if len(c.CORSOrigins) > 0 {
		mc.CORSAllowedOrigins = c.CORSOrigins
	}
	if c.RateLimitReqs > 0 {
		mc.RateLimitRequests = c.RateLimitReqs
	}
	if c.RateLimitWindow > 0 {
		mc.RateLimitWindow = c.RateLimitWindow
	}
	mc.RateLimitDisabled = c.RateLimitDisabled
	return mc
}

func handlerConfig(cfg *config.Config) api.HandlerConfig {
	hc := api.DefaultHandlerConfig()
	if cfg.Server.MaxBodyBytes > 0 {
		hc.MaxBodyBytes = cfg.Server.MaxBodyBytes
	}
	hc.AllowedOrigins = append([]string{cfg.App.Origin}, cfg.Security.CORSOrigins...)
	return hc
}

func treeConfig(c config.SupervisorConfig) supervisor.TreeConfig {
	tc := supervisor.DefaultTreeConfig()
	if c.FailureThreshold > 0 {
		tc.FailureThreshold = c.FailureThreshold
	}
	if c.FailureDecay > 0 {
		tc.FailureDecay = c.FailureDecay
	}
	if c.FailureBackoff > 0 {
		tc.FailureBackoff = c.FailureBackoff
	}
	if c.ShutdownTimeout > 0 {
		tc.ShutdownTimeout = c.ShutdownTimeout
	}
	return tc
}
