// Tastesync - Personalization and Recommendation Sync Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tastesync

/*
Package supervisor provides process supervision for Tastesync using suture v4.

The tree isolates the background work of the client:

	RootSupervisor ("tastesync")
	├── SyncSupervisor ("sync-layer")
	│   ├── sync-orchestrator (debounced preference and feed refreshes)
	│   └── health-probe (if diagnostics.health_interval > 0)
	└── DiagnosticsSupervisor ("diagnostics-layer")
	    └── diagnostics-server (if diagnostics.enabled)

Crashed services restart with suture's backoff; a failing diagnostics
listener does not stop refreshes. Supervisor events are logged through
sutureslog on top of the zerolog-backed slog handler.

# Usage

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfigFrom(cfg.Supervisor))
	if err != nil {
	    return err
	}
	tree.AddSyncService(orch)
	errCh := tree.ServeBackground(ctx)

See Also:
  - internal/supervisor/services: suture wrappers for HTTP and health probing
  - internal/orchestrator: the refresh orchestrator service
*/
package supervisor
