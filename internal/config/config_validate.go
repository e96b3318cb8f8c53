// Tastesync - Personalization and Recommendation Sync Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tastesync

package config

import (
	"fmt"
	"net/url"
	"strings"
)

// MaxPageSize is the largest page the backend serves.
const MaxPageSize = 100

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateBackend(); err != nil {
		return err
	}
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validateSync(); err != nil {
		return err
	}
	if err := c.validateFeed(); err != nil {
		return err
	}
	if err := c.validateDiagnostics(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateBackend() error {
	if c.Backend.URL == "" {
		return fmt.Errorf("backend.url is required")
	}
	u, err := url.Parse(c.Backend.URL)
	if err != nil {
		return fmt.Errorf("backend.url is invalid: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("backend.url must use http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("backend.url must include a host")
	}
	if c.Backend.Timeout <= 0 {
		return fmt.Errorf("backend.timeout must be positive, got %v", c.Backend.Timeout)
	}
	if c.Backend.MaxRetries < 0 {
		return fmt.Errorf("backend.max_retries must not be negative, got %d", c.Backend.MaxRetries)
	}
	if c.Backend.RateLimit < 0 {
		return fmt.Errorf("backend.rate_limit must not be negative, got %v", c.Backend.RateLimit)
	}
	if c.Backend.RateLimit > 0 && c.Backend.RateBurst < 1 {
		return fmt.Errorf("backend.rate_burst must be at least 1 when rate limiting is enabled")
	}
	cb := c.Backend.CircuitBreaker
	if cb.Enabled && (cb.FailureRatio <= 0 || cb.FailureRatio > 1) {
		return fmt.Errorf("backend.circuit_breaker.failure_ratio must be in (0, 1], got %v", cb.FailureRatio)
	}
	return nil
}

func (c *Config) validateStorage() error {
	if !c.Storage.InMemory && c.Storage.Path == "" {
		return fmt.Errorf("storage.path is required unless storage.in_memory is set")
	}
	return nil
}

func (c *Config) validateSync() error {
	if c.Sync.RefreshDelay < 0 || c.Sync.ChatRefreshDelay < 0 {
		return fmt.Errorf("sync refresh delays must not be negative")
	}
	if c.Sync.RefreshTimeout <= 0 {
		return fmt.Errorf("sync.refresh_timeout must be positive, got %v", c.Sync.RefreshTimeout)
	}
	switch c.Sync.ResetScope {
	case ResetScopeAll, ResetScopeDevice:
	default:
		return fmt.Errorf("sync.reset_scope must be %q or %q, got %q", ResetScopeAll, ResetScopeDevice, c.Sync.ResetScope)
	}
	return nil
}

func (c *Config) validateFeed() error {
	if c.Feed.PageSize < 1 || c.Feed.PageSize > MaxPageSize {
		return fmt.Errorf("feed.page_size must be between 1 and %d, got %d", MaxPageSize, c.Feed.PageSize)
	}
	if c.Feed.PageCacheSize < 0 {
		return fmt.Errorf("feed.page_cache_size must not be negative, got %d", c.Feed.PageCacheSize)
	}
	return nil
}

func (c *Config) validateDiagnostics() error {
	d := c.Diagnostics
	if d.Enabled && d.Addr == "" {
		return fmt.Errorf("diagnostics.addr is required when diagnostics are enabled")
	}
	if d.RequestsPerMinute < 0 {
		return fmt.Errorf("diagnostics.requests_per_minute must not be negative, got %d", d.RequestsPerMinute)
	}
	if d.HealthInterval < 0 {
		return fmt.Errorf("diagnostics.health_interval must not be negative, got %v", d.HealthInterval)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch strings.ToLower(c.Logging.Level) {
	case "trace", "debug", "info", "warn", "warning", "error", "disabled", "off":
	default:
		return fmt.Errorf("logging.level %q is not a valid level", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format)
	}
	return nil
}
