// Tastesync - Personalization and Recommendation Sync Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tastesync

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Backend.URL != DefaultBackendURL {
		t.Errorf("Backend.URL = %q, want %q", cfg.Backend.URL, DefaultBackendURL)
	}
	if cfg.Backend.Timeout != 10*time.Second {
		t.Errorf("Backend.Timeout = %v, want 10s", cfg.Backend.Timeout)
	}
	if cfg.Sync.RefreshDelay != 500*time.Millisecond {
		t.Errorf("Sync.RefreshDelay = %v, want 500ms", cfg.Sync.RefreshDelay)
	}
	if cfg.Sync.ChatRefreshDelay != time.Second {
		t.Errorf("Sync.ChatRefreshDelay = %v, want 1s", cfg.Sync.ChatRefreshDelay)
	}
	if cfg.Feed.PageSize != 20 {
		t.Errorf("Feed.PageSize = %d, want 20", cfg.Feed.PageSize)
	}
	if cfg.Sync.ResetScope != ResetScopeAll {
		t.Errorf("Sync.ResetScope = %q, want %q", cfg.Sync.ResetScope, ResetScopeAll)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate, got %v", err)
	}
}

func TestEnvTransformFunc(t *testing.T) {
	t.Parallel()

	tests := []struct {
		env  string
		want string
	}{
		{"TASTESYNC_BACKEND_URL", "backend.url"},
		{"TASTESYNC_RESET_SCOPE", "sync.reset_scope"},
		{"TASTESYNC_PAGE_SIZE", "feed.page_size"},
		{"LOG_LEVEL", "logging.level"},
		{"HOME", ""},
		{"PATH", ""},
	}

	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			t.Parallel()
			if got := envTransformFunc(tt.env); got != tt.want {
				t.Errorf("envTransformFunc(%q) = %q, want %q", tt.env, got, tt.want)
			}
		})
	}
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	t.Setenv(ConfigPathEnvVar, "")
	t.Setenv("TASTESYNC_BACKEND_URL", "https://api.example.test/api")
	t.Setenv("TASTESYNC_BACKEND_TIMEOUT", "3s")
	t.Setenv("TASTESYNC_RESET_SCOPE", "device")
	t.Setenv("TASTESYNC_STORAGE_IN_MEMORY", "true")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatalf("Load() with missing explicit file should fail, got %+v", cfg)
	}

	cfg, err = Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Backend.URL != "https://api.example.test/api" {
		t.Errorf("Backend.URL = %q", cfg.Backend.URL)
	}
	if cfg.Backend.Timeout != 3*time.Second {
		t.Errorf("Backend.Timeout = %v, want 3s", cfg.Backend.Timeout)
	}
	if cfg.Sync.ResetScope != ResetScopeDevice {
		t.Errorf("Sync.ResetScope = %q, want device", cfg.Sync.ResetScope)
	}
	if !cfg.Storage.InMemory {
		t.Error("Storage.InMemory = false, want true")
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
}

func TestLoadConfigFileAndEnvPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tastesync.yaml")
	content := `
backend:
  url: http://file.example.test/api
  timeout: 7s
feed:
  page_size: 50
sync:
  refresh_delay: 250ms
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("TASTESYNC_PAGE_SIZE", "30")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Backend.URL != "http://file.example.test/api" {
		t.Errorf("Backend.URL = %q, want file value", cfg.Backend.URL)
	}
	if cfg.Backend.Timeout != 7*time.Second {
		t.Errorf("Backend.Timeout = %v, want 7s", cfg.Backend.Timeout)
	}
	if cfg.Sync.RefreshDelay != 250*time.Millisecond {
		t.Errorf("Sync.RefreshDelay = %v, want 250ms", cfg.Sync.RefreshDelay)
	}
	if cfg.Feed.PageSize != 30 {
		t.Errorf("Feed.PageSize = %d, want env value 30", cfg.Feed.PageSize)
	}
	if cfg.Chat.Greeting != DefaultGreeting {
		t.Errorf("Chat.Greeting = %q, want default", cfg.Chat.Greeting)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"empty url", func(c *Config) { c.Backend.URL = "" }, "backend.url is required"},
		{"bad scheme", func(c *Config) { c.Backend.URL = "ftp://x/api" }, "http or https"},
		{"zero timeout", func(c *Config) { c.Backend.Timeout = 0 }, "backend.timeout"},
		{"page size too large", func(c *Config) { c.Feed.PageSize = 101 }, "feed.page_size"},
		{"page size zero", func(c *Config) { c.Feed.PageSize = 0 }, "feed.page_size"},
		{"bad reset scope", func(c *Config) { c.Sync.ResetScope = "everything" }, "sync.reset_scope"},
		{"no storage path", func(c *Config) { c.Storage.Path = "" }, "storage.path"},
		{"in memory without path", func(c *Config) { c.Storage.Path = ""; c.Storage.InMemory = true }, ""},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"bad failure ratio", func(c *Config) { c.Backend.CircuitBreaker.FailureRatio = 1.5 }, "failure_ratio"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			switch {
			case tt.wantErr == "" && err != nil:
				t.Errorf("Validate() = %v, want nil", err)
			case tt.wantErr != "" && err == nil:
				t.Errorf("Validate() = nil, want error containing %q", tt.wantErr)
			case tt.wantErr != "" && !strings.Contains(err.Error(), tt.wantErr):
				t.Errorf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}
