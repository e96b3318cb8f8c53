// Tastesync - Personalization and Recommendation Sync Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tastesync

/*
Package middleware provides HTTP middleware for the diagnostics listener.

  - RequestID: reuses or generates X-Request-ID and seeds the logging
    correlation id of the request context
  - PrometheusMetrics: counts requests and observes latency per chi route
    pattern, so unmatched paths do not create new label values

Both have the func(http.Handler) http.Handler shape expected by chi.Router.Use.
*/
package middleware
