// Tastesync - Personalization and Recommendation Sync Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tastesync

/*
Package backend is the HTTP client of the restaurant recommendation backend.

Every endpoint answers with the envelope {success, data?, error?}; the client
branches on success before decoding data and returns typed errors:

  - NetworkError (ErrNetwork): no response, a timeout, or an open circuit
  - RejectionError (ErrRejected): non-2xx status or success=false
  - validation failure (ErrValidation): the request was malformed and was
    never sent

Client Features:
  - Per-call timeout from configuration
  - Outbound rate limiting with golang.org/x/time/rate
  - Automatic HTTP 429 handling with exponential backoff and Retry-After
  - Request validation with go-playground/validator before dispatch
  - Prometheus metrics per operation and outcome

CircuitBreakerClient wraps Client with sony/gobreaker. Only transport failures
and server-side rejections count against the circuit.
*/
package backend

import (
	"context"

	"github.com/tomtom215/tastesync/internal/config"
	"github.com/tomtom215/tastesync/internal/models"
)

// API is the backend contract used by the sync components.
//
// All methods are safe for concurrent use.
type API interface {
	// Chat
	SendMessage(ctx context.Context, req models.SendMessageRequest) (*models.SendMessageResult, error)
	GetSessionHistory(ctx context.Context, sessionID string, opts models.HistoryOptions) (*models.SessionHistory, error)
	GetDeviceHistory(ctx context.Context, deviceToken string) (*models.DeviceHistory, error)
	ResetHistory(ctx context.Context, id models.Identity) (*models.ResetResult, error)
	ResetAll(ctx context.Context) (*models.ResetResult, error)

	// Personalization
	GetPreferences(ctx context.Context, id models.Identity) (*models.PreferenceSummary, error)
	GetPreferenceSummary(ctx context.Context) (*models.AggregateSummary, error)

	// Recommendations
	GetRankedRecommendations(ctx context.Context, q models.RankedQuery) (*models.RankedPage, error)
	GetTopTier(ctx context.Context, id models.Identity, query string) (*models.TopTierResult, error)
	GetCategories(ctx context.Context) (*models.CategoryList, error)
	GetTrending(ctx context.Context, limit int) (*models.TrendingResult, error)

	Health(ctx context.Context) (*models.HealthStatus, error)
}

// New returns the backend client described by cfg, wrapped in a circuit
// breaker when cfg.CircuitBreaker.Enabled is set.
func New(cfg *config.BackendConfig) API {
	if cfg.CircuitBreaker.Enabled {
		return NewCircuitBreakerClient(cfg)
	}
	return NewClient(cfg)
}

var (
	_ API = (*Client)(nil)
	_ API = (*CircuitBreakerClient)(nil)
)
