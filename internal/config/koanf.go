// Tastesync - Personalization and Recommendation Sync Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tastesync

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths searched for a config file, in priority order.
var DefaultConfigPaths = []string{
	"tastesync.yaml",
	"tastesync.yml",
	"/etc/tastesync/config.yaml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "TASTESYNC_CONFIG"

// Defaults mirrored from the web client this tool replaces.
const (
	DefaultBackendURL  = "http://localhost:5000/api"
	DefaultGreeting    = "Halo! Saya siap membantu Anda mencari rekomendasi restoran di Lombok. Silakan ceritakan preferensi makanan Anda."
	DefaultErrorNotice = "Maaf, terjadi kesalahan. Silakan coba lagi."
)

// Default returns the built-in configuration without file or env layers.
func Default() *Config {
	return defaultConfig()
}

// defaultConfig returns the built-in defaults, applied before file and env layers.
func defaultConfig() *Config {
	return &Config{
		Backend: BackendConfig{
			URL:            DefaultBackendURL,
			Timeout:        10 * time.Second,
			MaxRetries:     3,
			RetryBaseDelay: time.Second,
			RateLimit:      10,
			RateBurst:      5,
			CircuitBreaker: CircuitBreakerConfig{
				Enabled:      true,
				MaxRequests:  3,
				Interval:     time.Minute,
				Timeout:      30 * time.Second,
				MinRequests:  5,
				FailureRatio: 0.6,
			},
		},
		Storage: StorageConfig{
			Path:       defaultStoragePath(),
			InMemory:   false,
			SyncWrites: true,
		},
		Sync: SyncConfig{
			RefreshDelay:      500 * time.Millisecond,
			ChatRefreshDelay:  time.Second,
			RefreshTimeout:    15 * time.Second,
			ResetScope:        ResetScopeAll,
			RotateDeviceToken: true,
		},
		Feed: FeedConfig{
			PageSize:      20,
			PageCacheSize: 16,
			PageCacheTTL:  2 * time.Minute,
			VerifyRanking: true,
		},
		Chat: ChatConfig{
			Greeting:     DefaultGreeting,
			ErrorNotice:  DefaultErrorNotice,
			HistoryLimit: 50,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Diagnostics: DiagnosticsConfig{
			Enabled:           false,
			Addr:              "127.0.0.1:9464",
			RequestsPerMinute: 120,
			HealthInterval:    30 * time.Second,
		},
		Supervisor: SupervisorConfig{
			FailureThreshold: 5,
			FailureDecay:     30,
			FailureBackoff:   15 * time.Second,
			ShutdownTimeout:  10 * time.Second,
		},
	}
}

func defaultStoragePath() string {
	dir, err := os.UserConfigDir()
	if err != nil || dir == "" {
		return filepath.Join(".tastesync", "state")
	}
	return filepath.Join(dir, "tastesync", "state")
}

// Load builds the configuration from defaults, the given YAML file (or the
// first file found in DefaultConfigPaths when path is empty) and environment
// variables, then validates it.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path == "" {
		path = findConfigFile()
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// findConfigFile returns the first existing config file, or "".
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

// envMappings maps environment variable names (lower-cased) to koanf paths.
var envMappings = map[string]string{
	"tastesync_backend_url":         "backend.url",
	"tastesync_backend_timeout":     "backend.timeout",
	"tastesync_backend_max_retries": "backend.max_retries",
	"tastesync_backend_rate_limit":  "backend.rate_limit",
	"tastesync_circuit_breaker":     "backend.circuit_breaker.enabled",

	"tastesync_storage_path":      "storage.path",
	"tastesync_storage_in_memory": "storage.in_memory",

	"tastesync_refresh_delay":       "sync.refresh_delay",
	"tastesync_chat_refresh_delay":  "sync.chat_refresh_delay",
	"tastesync_reset_scope":         "sync.reset_scope",
	"tastesync_rotate_device_token": "sync.rotate_device_token",

	"tastesync_page_size":      "feed.page_size",
	"tastesync_verify_ranking": "feed.verify_ranking",

	"tastesync_diagnostics":      "diagnostics.enabled",
	"tastesync_diagnostics_addr": "diagnostics.addr",
	"tastesync_health_interval":  "diagnostics.health_interval",

	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

// envTransformFunc maps known environment variables to config paths.
// Unmapped variables return "" and are skipped.
//
//   - TASTESYNC_BACKEND_URL -> backend.url
//   - TASTESYNC_RESET_SCOPE -> sync.reset_scope
//   - LOG_LEVEL -> logging.level
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}
