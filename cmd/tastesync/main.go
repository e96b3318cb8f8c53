// Tastesync - Personalization and Recommendation Sync Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tastesync

// Package main is the entry point for the Tastesync client.
//
// Tastesync keeps a visitor's chat history, taste profile and ranked
// restaurant feed in sync with the Lombok recommendation backend. It runs
// as an interactive terminal client: every line typed is sent to the
// chatbot, and slash commands browse the feed.
//
// # Startup
//
// The client initializes components in the following order:
//
//  1. Configuration: defaults, config file and TASTESYNC_* environment (Koanf v2)
//  2. Storage: BadgerDB key-value store for identity and chat history
//  3. Backend: HTTP client with rate limiting, retries and a circuit breaker
//  4. Events: in-process Watermill bus for lifecycle notifications
//  5. Session: identity, history, preferences, feed and refresh orchestrator
//  6. Supervisor tree: orchestrator, health probe and diagnostics listener
//
// # Commands
//
//	/recs [page]      show a page of the ranked feed
//	/next, /prev      move through the feed
//	/filter <query>   restrict the feed to a search query (empty clears)
//	/top              top-tier restaurants
//	/prefs            learned preferences
//	/history          the local conversation
//	/sessions         backend sessions of this device
//	/categories       browse categories
//	/trending         trending restaurants
//	/health           backend health
//	/refresh          refresh preferences and feed now
//	/reset            delete all history remotely and locally
//	/quit             exit
//
// # Signal Handling
//
// SIGINT and SIGTERM cancel the root context. Pending refreshes are
// dropped, the supervisor tree stops and queued history writes are
// flushed before the store closes.
//
// # Example Usage
//
//	export TASTESYNC_BACKEND_URL=http://localhost:8000/api
//	./tastesync -config config.yaml
//
// One-shot reset without the prompt:
//
//	./tastesync -reset
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tomtom215/tastesync/internal/backend"
	"github.com/tomtom215/tastesync/internal/config"
	"github.com/tomtom215/tastesync/internal/diagnostics"
	"github.com/tomtom215/tastesync/internal/events"
	"github.com/tomtom215/tastesync/internal/logging"
	"github.com/tomtom215/tastesync/internal/session"
	"github.com/tomtom215/tastesync/internal/storage"
	"github.com/tomtom215/tastesync/internal/supervisor"
	"github.com/tomtom215/tastesync/internal/supervisor/services"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to config file (default: search standard locations)")
		resetOnly  = flag.Bool("reset", false, "run a full reset and exit")
		once       = flag.String("once", "", "send one message, print the reply and exit")
		page       = flag.Int("page", 0, "print this feed page after startup")
		query      = flag.String("query", "", "feed search query applied at startup")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "tastesync: %v\n", err)
		os.Exit(1)
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
		Service:   "tastesync",
		Output:    os.Stderr,
	})
	logging.Info().Str("backend", cfg.Backend.URL).Msg("Starting Tastesync")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, options{resetOnly: *resetOnly, once: *once, page: *page, query: *query}); err != nil {
		logging.Error().Err(err).Msg("Tastesync stopped with error")
		stop()
		os.Exit(1)
	}
	logging.Info().Msg("Tastesync stopped gracefully")
}

type options struct {
	resetOnly bool
	once      string
	page      int
	query     string
}

func run(ctx context.Context, cfg *config.Config, opts options) error {
	kv, err := storage.Open(storage.Config{
		Path:       cfg.Storage.Path,
		InMemory:   cfg.Storage.InMemory,
		SyncWrites: cfg.Storage.SyncWrites,
	})
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer func() {
		if err := kv.Close(); err != nil {
			logging.Error().Err(err).Msg("Failed to close storage")
		}
	}()

	logger := logging.WithComponent("client")
	bus := events.NewBus(logger)
	defer func() {
		if err := bus.Close(); err != nil {
			logging.Error().Err(err).Msg("Failed to close event bus")
		}
	}()

	api := backend.New(&cfg.Backend)
	sess := session.New(cfg, kv, api, bus, logger)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := sess.Close(closeCtx); err != nil {
			logging.Error().Err(err).Msg("Failed to close session")
		}
	}()

	res, err := sess.Init(ctx)
	if err != nil {
		return err
	}

	r := newREPL(sess, os.Stdout)
	if opts.resetOnly {
		r.handle(ctx, "/reset")
		return nil
	}
	if opts.once != "" {
		r.handle(ctx, opts.once)
		return nil
	}

	tree, err := buildTree(ctx, cfg, sess, api)
	if err != nil {
		return err
	}
	treeCtx, cancelTree := context.WithCancel(ctx)
	errCh := tree.ServeBackground(treeCtx)

	if err := r.watch(treeCtx, bus); err != nil {
		logging.Warn().Err(err).Msg("Feed notifications unavailable")
	}

	r.greet(res)
	if opts.query != "" {
		r.handle(ctx, "/filter "+opts.query)
	}
	if opts.page > 0 {
		r.handle(ctx, fmt.Sprintf("/recs %d", opts.page))
	}
	r.loop(ctx, os.Stdin)

	cancelTree()
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop")
	}
	return nil
}

// buildTree assembles the supervisor tree around the session.
func buildTree(ctx context.Context, cfg *config.Config, sess *session.Session, api backend.API) (*supervisor.SupervisorTree, error) {
	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfigFrom(cfg.Supervisor))
	if err != nil {
		return nil, fmt.Errorf("create supervisor tree: %w", err)
	}
	tree.AddSyncService(sess.Orchestrator)

	var ready func() bool
	if cfg.Diagnostics.HealthInterval > 0 {
		probe := services.NewHealthProbeService(api, cfg.Diagnostics.HealthInterval, cfg.Backend.Timeout, logging.WithComponent("health"))
		tree.AddSyncService(probe)
		ready = probe.Healthy
	}

	if cfg.Diagnostics.Enabled {
		server := &http.Server{
			Handler: diagnostics.NewRouter(diagnostics.Options{
				Ready:             ready,
				State:             func() any { return sess.State(ctx) },
				RequestsPerMinute: cfg.Diagnostics.RequestsPerMinute,
			}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		tree.AddDiagnosticsService(services.NewHTTPServerService("diagnostics-server", cfg.Diagnostics.Addr,
			server, cfg.Supervisor.ShutdownTimeout, logging.WithComponent("diagnostics")))
	}
	return tree, nil
}
