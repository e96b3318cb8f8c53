// Tastesync - Personalization and Recommendation Sync Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tastesync

// Package config loads Tastesync configuration from defaults, an optional
// YAML file and environment variables, in that order of precedence.
package config

import "time"

// Reset scopes accepted by SyncConfig.ResetScope.
const (
	// ResetScopeAll deletes every conversation the backend holds.
	ResetScopeAll = "all"
	// ResetScopeDevice deletes only the conversations of this device and session.
	ResetScopeDevice = "device"
)

// Config is the complete client configuration.
type Config struct {
	Backend     BackendConfig     `koanf:"backend"`
	Storage     StorageConfig     `koanf:"storage"`
	Sync        SyncConfig        `koanf:"sync"`
	Feed        FeedConfig        `koanf:"feed"`
	Chat        ChatConfig        `koanf:"chat"`
	Logging     LoggingConfig     `koanf:"logging"`
	Diagnostics DiagnosticsConfig `koanf:"diagnostics"`
	Supervisor  SupervisorConfig  `koanf:"supervisor"`
}

// BackendConfig holds settings for the recommendation backend HTTP API.
type BackendConfig struct {
	// URL is the API base URL including the /api prefix.
	URL string `koanf:"url"`

	// Timeout bounds every backend call.
	Timeout time.Duration `koanf:"timeout"`

	// MaxRetries is the number of retries after an HTTP 429.
	MaxRetries     int           `koanf:"max_retries"`
	RetryBaseDelay time.Duration `koanf:"retry_base_delay"`

	// RateLimit is the sustained outbound requests per second; 0 disables limiting.
	RateLimit float64 `koanf:"rate_limit"`
	RateBurst int     `koanf:"rate_burst"`

	CircuitBreaker CircuitBreakerConfig `koanf:"circuit_breaker"`
}

// CircuitBreakerConfig configures the gobreaker wrapper around the backend client.
type CircuitBreakerConfig struct {
	Enabled      bool          `koanf:"enabled"`
	MaxRequests  uint32        `koanf:"max_requests"`
	Interval     time.Duration `koanf:"interval"`
	Timeout      time.Duration `koanf:"timeout"`
	MinRequests  uint32        `koanf:"min_requests"`
	FailureRatio float64       `koanf:"failure_ratio"`
}

// StorageConfig configures the durable local key-value store.
type StorageConfig struct {
	Path       string `koanf:"path"`
	InMemory   bool   `koanf:"in_memory"`
	SyncWrites bool   `koanf:"sync_writes"`
}

// SyncConfig configures refresh orchestration and reset policy.
type SyncConfig struct {
	// RefreshDelay is the debounce window after a session is adopted.
	RefreshDelay time.Duration `koanf:"refresh_delay"`

	// ChatRefreshDelay is the debounce window after a message exchange.
	ChatRefreshDelay time.Duration `koanf:"chat_refresh_delay"`

	// RefreshTimeout bounds one refresh execution.
	RefreshTimeout time.Duration `koanf:"refresh_timeout"`

	// ResetScope selects the remote delete used by a full reset: "all" or "device".
	ResetScope string `koanf:"reset_scope"`

	// RotateDeviceToken discards the device token on full reset.
	RotateDeviceToken bool `koanf:"rotate_device_token"`
}

// FeedConfig configures the ranked recommendation feed.
type FeedConfig struct {
	PageSize      int           `koanf:"page_size"`
	PageCacheSize int           `koanf:"page_cache_size"`
	PageCacheTTL  time.Duration `koanf:"page_cache_ttl"`

	// VerifyRanking checks every page against the ranking contract and logs violations.
	VerifyRanking bool `koanf:"verify_ranking"`
}

// ChatConfig holds conversation texts and history limits.
type ChatConfig struct {
	Greeting     string `koanf:"greeting"`
	ErrorNotice  string `koanf:"error_notice"`
	HistoryLimit int    `koanf:"history_limit"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// DiagnosticsConfig configures the local metrics and health listener.
type DiagnosticsConfig struct {
	Enabled bool   `koanf:"enabled"`
	Addr    string `koanf:"addr"`

	// RequestsPerMinute limits requests per client IP; 0 disables limiting.
	RequestsPerMinute int `koanf:"requests_per_minute"`

	// HealthInterval is the period of the backend health probe; 0 disables it.
	HealthInterval time.Duration `koanf:"health_interval"`
}

// SupervisorConfig configures the suture supervisor tree.
type SupervisorConfig struct {
	FailureThreshold float64       `koanf:"failure_threshold"`
	FailureDecay     float64       `koanf:"failure_decay"`
	FailureBackoff   time.Duration `koanf:"failure_backoff"`
	ShutdownTimeout  time.Duration `koanf:"shutdown_timeout"`
}
