// Tastesync - Personalization and Recommendation Sync Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tastesync

package services

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/tastesync/internal/metrics"
	"github.com/tomtom215/tastesync/internal/models"
)

// HealthChecker is the backend health endpoint.
type HealthChecker interface {
	Health(ctx context.Context) (*models.HealthStatus, error)
}

// HealthProbeService polls the backend health endpoint for supervision.
type HealthProbeService struct {
	checker  HealthChecker
	interval time.Duration
	timeout  time.Duration
	logger   zerolog.Logger
	name     string

	healthy atomic.Bool
	probed  atomic.Bool
}

// NewHealthProbeService creates a probe that runs every interval. Each probe
// is bounded by timeout.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewHealthProbeService(checker HealthChecker, interval, timeout time.Duration, logger zerolog.Logger) *HealthProbeService {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HealthProbeService{
		checker:  checker,
		interval: interval,
		timeout:  timeout,
		logger:   logger.With().Str("service", "health-probe").Logger(),
		name:     "health-probe",
	}
}

// Serve implements suture.Service. It probes once at start, then on every tick.
func (s *HealthProbeService) Serve(ctx context.Context) error {
	s.logger.Debug().Dur("interval", s.interval).Msg("health probe starting")
	s.Probe(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.Probe(ctx)
		}
	}
}

// Probe runs one health check and records its result.
func (s *HealthProbeService) Probe(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	status, err := s.checker.Health(probeCtx)
	healthy := err == nil && status != nil && status.Healthy()

	if healthy {
		metrics.BackendHealthy.Set(1)
	} else {
		metrics.BackendHealthy.Set(0)
	}

	was := s.healthy.Swap(healthy)
	first := !s.probed.Swap(true)
	switch {
	case healthy && (first || !was):
		s.logger.Info().Msg("backend is healthy")
	case !healthy && (first || was):
		evt := s.logger.Warn()
		if err != nil {
			evt = evt.Err(err)
		} else if status != nil {
			evt = evt.Str("status", status.Status).Str("message", status.Message)
		}
		evt.Msg("backend is unhealthy")
	}
	return healthy
}

// Healthy reports the result of the last probe. It is false before the first.
func (s *HealthProbeService) Healthy() bool {
	return s.healthy.Load()
}

// String returns the service name for logging.
func (s *HealthProbeService) String() string {
	return s.name
}
