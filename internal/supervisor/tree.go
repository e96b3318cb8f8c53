// Tastesync - Personalization and Recommendation Sync Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tastesync

package supervisor

import (
	"context"
	"log/slog"
	"time"

	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"

	"github.com/tomtom215/tastesync/internal/config"
	"github.com/tomtom215/tastesync/internal/metrics"
)

// TreeConfig holds supervisor tree configuration. Zero fields take the
// values of DefaultTreeConfig.
type TreeConfig struct {
	// FailureThreshold is the number of failures before entering backoff.
	FailureThreshold float64

	// FailureDecay is the rate at which failures decay in seconds.
	FailureDecay float64

	// FailureBackoff is the wait once the threshold is exceeded.
	FailureBackoff time.Duration

	// ShutdownTimeout bounds how long a service may take to stop.
	ShutdownTimeout time.Duration
}

// DefaultTreeConfig returns suture's built-in defaults.
func DefaultTreeConfig() TreeConfig {
	return TreeConfig{
		FailureThreshold: 5.0,
		FailureDecay:     30.0,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  10 * time.Second,
	}
}

// TreeConfigFrom converts the supervisor section of the configuration.
func TreeConfigFrom(cfg config.SupervisorConfig) TreeConfig {
	return TreeConfig{
		FailureThreshold: cfg.FailureThreshold,
		FailureDecay:     cfg.FailureDecay,
		FailureBackoff:   cfg.FailureBackoff,
		ShutdownTimeout:  cfg.ShutdownTimeout,
	}
}

func (c TreeConfig) withDefaults() TreeConfig {
	d := DefaultTreeConfig()
	if c.FailureThreshold == 0 {
		c.FailureThreshold = d.FailureThreshold
	}
	if c.FailureDecay == 0 {
		c.FailureDecay = d.FailureDecay
	}
	if c.FailureBackoff == 0 {
		c.FailureBackoff = d.FailureBackoff
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = d.ShutdownTimeout
	}
	return c
}

func (c TreeConfig) spec(hook suture.EventHook) suture.Spec {
	return suture.Spec{
		EventHook:        hook,
		FailureThreshold: c.FailureThreshold,
		FailureDecay:     c.FailureDecay,
		FailureBackoff:   c.FailureBackoff,
		Timeout:          c.ShutdownTimeout,
	}
}

// SupervisorTree is the process supervision tree of the client.
//
// The tree has two layers:
//   - sync: the refresh orchestrator and the backend health probe
//   - diagnostics: the metrics and health HTTP listener (if enabled)
//
// A crash of the diagnostics listener never interrupts refreshes. Every
// service termination is logged and counted in
// tastesync_service_failures_total.
type SupervisorTree struct {
	root        *suture.Supervisor
	sync        *suture.Supervisor
	diagnostics *suture.Supervisor
	config      TreeConfig
}

// NewSupervisorTree builds the tree. Services are added with AddSyncService
// and AddDiagnosticsService before Serve.
func NewSupervisorTree(logger *slog.Logger, cfg TreeConfig) (*SupervisorTree, error) {
	cfg = cfg.withDefaults()

	// MustHook has a pointer receiver.
	logHook := (&sutureslog.Handler{Logger: logger}).MustHook()
	hook := func(e suture.Event) {
		if term, ok := e.(suture.EventServiceTerminate); ok {
			metrics.ServiceFailures.WithLabelValues(term.ServiceName).Inc()
		}
		logHook(e)
	}

	t := &SupervisorTree{
		root: suture.New("tastesync", cfg.spec(hook)),
		// Children inherit the root's EventHook when added.
		sync:        suture.New("sync-layer", cfg.spec(nil)),
		diagnostics: suture.New("diagnostics-layer", cfg.spec(nil)),
		config:      cfg,
	}
	t.root.Add(t.sync)
	t.root.Add(t.diagnostics)
	return t, nil
}

// AddSyncService adds a service to the sync layer.
func (t *SupervisorTree) AddSyncService(svc suture.Service) suture.ServiceToken {
	return t.sync.Add(svc)
}

// AddDiagnosticsService adds a service to the diagnostics layer.
func (t *SupervisorTree) AddDiagnosticsService(svc suture.Service) suture.ServiceToken {
	return t.diagnostics.Add(svc)
}

// Serve runs the tree until ctx is canceled.
func (t *SupervisorTree) Serve(ctx context.Context) error {
	return t.root.Serve(ctx)
}

// ServeBackground runs the tree in a goroutine. The channel receives the
// tree's error (or nil) and is closed when it stops.
func (t *SupervisorTree) ServeBackground(ctx context.Context) <-chan error {
	return t.root.ServeBackground(ctx)
}

// UnstoppedServiceReport lists services that did not stop within the
// shutdown timeout.
func (t *SupervisorTree) UnstoppedServiceReport() ([]suture.UnstoppedService, error) {
	return t.root.UnstoppedServiceReport()
}
