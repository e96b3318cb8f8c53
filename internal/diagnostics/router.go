// Tastesync - Personalization and Recommendation Sync Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tastesync

// Package diagnostics serves the local metrics and health listener.
//
//	GET /healthz  liveness, always 200
//	GET /readyz   200 while the backend probe is healthy, 503 otherwise
//	GET /state    JSON snapshot of the client session
//	GET /metrics  Prometheus exposition
package diagnostics

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/tastesync/internal/logging"
	"github.com/tomtom215/tastesync/internal/middleware"
)

// Options configures the router. Nil funcs disable what they back.
type Options struct {
	// Ready reports backend readiness for /readyz. Nil means always ready.
	Ready func() bool

	// State returns the value served by /state. Nil disables the route.
	State func() any

	// RequestsPerMinute limits requests per client IP; 0 disables limiting.
	RequestsPerMinute int
}

type statusBody struct {
	Status string    `json:"status"`
	Time   time.Time `json:"time"`
}

// NewRouter builds the diagnostics handler.
func NewRouter(opts Options) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.PrometheusMetrics)
	if opts.RequestsPerMinute > 0 {
		r.Use(httprate.LimitByIP(opts.RequestsPerMinute, time.Minute))
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, statusBody{Status: "ok", Time: time.Now().UTC()})
	})

	r.Get("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		if opts.Ready != nil && !opts.Ready() {
			writeJSON(w, http.StatusServiceUnavailable, statusBody{Status: "backend_unhealthy", Time: time.Now().UTC()})
			return
		}
		writeJSON(w, http.StatusOK, statusBody{Status: "ready", Time: time.Now().UTC()})
	})

	if opts.State != nil {
		r.Get("/state", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, opts.State())
		})
	}

	r.Handle("/metrics", promhttp.Handler())
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		logging.Error().Err(err).Msg("diagnostics: marshal response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}
