// Tastesync - Personalization and Recommendation Sync Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tastesync

/*
Package services provides suture.Service wrappers for Tastesync components.

Each wrapper implements the suture v4 Service interface:

	type Service interface {
	    Serve(ctx context.Context) error
	}

and identifies itself through fmt.Stringer for supervisor log events.

# Available Services

HTTP Server (HTTPServerService):
  - Binds the listener inside Serve so port conflicts are retried by suture
  - Shuts *http.Server down gracefully when the context ends
  - Reports the bound address through Addr (useful with port 0)
  - Used for the diagnostics listener

Health Probe (HealthProbeService):
  - Calls the backend health endpoint on a fixed interval
  - Publishes the result to the tastesync_backend_healthy gauge
  - Logs only transitions between healthy and unhealthy

The sync orchestrator implements suture.Service itself and needs no wrapper.
*/
package services
