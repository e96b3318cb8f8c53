// Tastesync - Personalization and Recommendation Sync Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tastesync

// Package metrics holds the Prometheus instruments of the sync client.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels shared by several counters.
const (
	OutcomeSuccess    = "success"
	OutcomeNetwork    = "network_failure"
	OutcomeRejected   = "backend_rejection"
	OutcomeValidation = "validation_failure"
	OutcomeSuperseded = "superseded"
)

var (
	// Backend client
	BackendRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tastesync_backend_request_duration_seconds",
			Help:    "Duration of backend API calls in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	BackendRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tastesync_backend_requests_total",
			Help: "Total backend API calls by outcome",
		},
		[]string{"operation", "outcome"},
	)

	BackendRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tastesync_backend_retries_total",
			Help: "Retries after HTTP 429 responses",
		},
		[]string{"operation"},
	)

	// Circuit breaker
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tastesync_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tastesync_circuit_breaker_requests_total",
			Help: "Requests through the circuit breaker",
		},
		[]string{"name", "result"}, // success, failure, rejected
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tastesync_circuit_breaker_state_transitions_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	BackendHealthy = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tastesync_backend_healthy",
			Help: "Result of the last backend health probe (1 = healthy)",
		},
	)

	// Freshness
	StaleResponsesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tastesync_stale_responses_dropped_total",
			Help: "Responses ignored because a newer request superseded them",
		},
		[]string{"component"}, // preferences, feed
	)

	// Orchestration
	RefreshesScheduled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tastesync_refreshes_scheduled_total",
			Help: "Refresh schedule requests by reason",
		},
		[]string{"reason"},
	)

	RefreshesCollapsed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tastesync_refreshes_collapsed_total",
			Help: "Schedule requests folded into an already pending refresh",
		},
	)

	RefreshExecutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tastesync_refresh_executions_total",
			Help: "Refresh executions by outcome",
		},
		[]string{"outcome"},
	)

	RefreshDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tastesync_refresh_duration_seconds",
			Help:    "Duration of a combined preferences and feed refresh",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Conversation
	ChatTurns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tastesync_chat_turns_total",
			Help: "Conversational turns by outcome",
		},
		[]string{"outcome"},
	)

	ResetsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tastesync_resets_total",
			Help: "Full reset attempts by outcome",
		},
		[]string{"outcome"}, // success, remote_failure, local_failure
	)

	// Feed
	RankingViolations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tastesync_ranking_contract_violations_total",
			Help: "Feed pages that broke the ranking contract",
		},
		[]string{"kind"},
	)

	FeedPageCache = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tastesync_feed_page_cache_total",
			Help: "Feed page cache lookups",
		},
		[]string{"result"}, // hit, miss
	)

	// Diagnostics listener
	DiagnosticsRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tastesync_diagnostics_requests_total",
			Help: "Requests served by the diagnostics listener",
		},
		[]string{"path", "status"},
	)

	DiagnosticsRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tastesync_diagnostics_request_duration_seconds",
			Help:    "Diagnostics request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path"},
	)

	// Supervision
	ServiceFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tastesync_service_failures_total",
			Help: "Supervised service terminations by service name",
		},
		[]string{"service"},
	)

	// Local storage
	StorageWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tastesync_storage_writes_total",
			Help: "Durable storage writes by key and outcome",
		},
		[]string{"key", "outcome"},
	)
)

// RecordBackendRequest records the duration and outcome of one backend call.
func RecordBackendRequest(operation, outcome string, duration time.Duration) {
	BackendRequestDuration.WithLabelValues(operation).Observe(duration.Seconds())
	BackendRequestsTotal.WithLabelValues(operation, outcome).Inc()
}

// RecordDiagnosticsRequest records one request served by the diagnostics listener.
func RecordDiagnosticsRequest(path, status string, duration time.Duration) {
	DiagnosticsRequests.WithLabelValues(path, status).Inc()
	DiagnosticsRequestDuration.WithLabelValues(path).Observe(duration.Seconds())
}

// RecordRefresh records one refresh execution.
func RecordRefresh(duration time.Duration, err error) {
	RefreshDuration.Observe(duration.Seconds())
	if err != nil {
		RefreshExecutions.WithLabelValues("failure").Inc()
		return
	}
	RefreshExecutions.WithLabelValues(OutcomeSuccess).Inc()
}

// RecordStorageWrite records one durable write.
func RecordStorageWrite(key string, err error) {
	if err != nil {
		StorageWrites.WithLabelValues(key, "failure").Inc()
		return
	}
	StorageWrites.WithLabelValues(key, OutcomeSuccess).Inc()
}
