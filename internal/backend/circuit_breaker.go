// Tastesync - Personalization and Recommendation Sync Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tastesync

package backend

import (
	"context"
	"errors"
	"fmt"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/tastesync/internal/config"
	"github.com/tomtom215/tastesync/internal/logging"
	"github.com/tomtom215/tastesync/internal/metrics"
	"github.com/tomtom215/tastesync/internal/models"
)

// breakerName labels the circuit in logs and metrics.
const breakerName = "recommendation-backend"

// CircuitBreakerClient wraps Client with the circuit breaker pattern so that
// an unavailable backend fails fast instead of stacking up timeouts.
//
// The breaker uses real time (via sony/gobreaker) for its interval and
// timeout. Tests drive it with failure counts, not clocks.
type CircuitBreakerClient struct {
	client *Client
	cb     *gobreaker.CircuitBreaker[interface{}]
	name   string
}

// NewCircuitBreakerClient creates a backend client with circuit breaker
// protection. The circuit opens when the failure ratio reaches
// cfg.CircuitBreaker.FailureRatio over at least MinRequests requests.
func NewCircuitBreakerClient(cfg *config.BackendConfig) *CircuitBreakerClient {
	return newCircuitBreakerClient(NewClient(cfg), cfg.CircuitBreaker)
}

// WrapWithCircuitBreaker adds circuit breaker protection to an existing client.
func WrapWithCircuitBreaker(client *Client, cfg config.CircuitBreakerConfig) *CircuitBreakerClient {
	return newCircuitBreakerClient(client, cfg)
}

func newCircuitBreakerClient(client *Client, cfg config.CircuitBreakerConfig) *CircuitBreakerClient {
	metrics.CircuitBreakerState.WithLabelValues(breakerName).Set(0)

	minRequests := cfg.MinRequests
	ratio := cfg.FailureRatio
	if ratio <= 0 {
		ratio = 0.6
	}

	cb := gobreaker.NewCircuitBreaker[interface{}](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,

		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < minRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			shouldTrip := failureRatio >= ratio
			if shouldTrip {
				logging.Warn().Uint32("failures", counts.TotalFailures).Float64("failure_rate", failureRatio*100).Msg("[CIRCUIT BREAKER] Opening circuit")
			}
			return shouldTrip
		},

		IsSuccessful: func(err error) bool {
			return !breakerFailure(err)
		},

		OnStateChange: func(name string, from, to gobreaker.State) {
			fromStr := stateToString(from)
			toStr := stateToString(to)
			logging.Info().Str("from", fromStr).Str("to", toStr).Msg("[CIRCUIT BREAKER] State transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, fromStr, toStr).Inc()
		},
	})

	return &CircuitBreakerClient{
		client: client,
		cb:     cb,
		name:   breakerName,
	}
}

// State returns the current breaker state.
func (cbc *CircuitBreakerClient) State() string {
	return stateToString(cbc.cb.State())
}

// execute wraps a backend call with circuit breaker protection.
func (cbc *CircuitBreakerClient) execute(op string, fn func() (interface{}, error)) (interface{}, error) {
	result, err := cbc.cb.Execute(fn)
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.CircuitBreakerRequests.WithLabelValues(cbc.name, "rejected").Inc()
			metrics.RecordBackendRequest(op, metrics.OutcomeNetwork, 0)
			logging.Warn().Str("op", op).Err(err).Msg("[CIRCUIT BREAKER] Request rejected")
			return nil, wrapBreaker(op, err)
		}
		metrics.CircuitBreakerRequests.WithLabelValues(cbc.name, "failure").Inc()
		return nil, err
	}
	metrics.CircuitBreakerRequests.WithLabelValues(cbc.name, "success").Inc()
	return result, nil
}

// castResult safely type-casts the circuit breaker result.
func castResult[T any](result interface{}, err error) (*T, error) {
	if err != nil {
		return nil, err
	}
	typed, ok := result.(*T)
	if !ok {
		return nil, fmt.Errorf("circuit breaker: unexpected result type %T", result)
	}
	return typed, nil
}

// stateToFloat converts circuit breaker state to numeric value for metrics.
func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

// stateToString converts circuit breaker state to string for logging.
func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// SendMessage posts one chat message with circuit breaker protection.
func (cbc *CircuitBreakerClient) SendMessage(ctx context.Context, req models.SendMessageRequest) (*models.SendMessageResult, error) {
	return castResult[models.SendMessageResult](cbc.execute(OpSendMessage, func() (interface{}, error) {
		return cbc.client.SendMessage(ctx, req)
	}))
}

// GetSessionHistory fetches a session history with circuit breaker protection.
func (cbc *CircuitBreakerClient) GetSessionHistory(ctx context.Context, sessionID string, opts models.HistoryOptions) (*models.SessionHistory, error) {
	return castResult[models.SessionHistory](cbc.execute(OpSessionHistory, func() (interface{}, error) {
		return cbc.client.GetSessionHistory(ctx, sessionID, opts)
	}))
}

// GetDeviceHistory lists device sessions with circuit breaker protection.
func (cbc *CircuitBreakerClient) GetDeviceHistory(ctx context.Context, deviceToken string) (*models.DeviceHistory, error) {
	return castResult[models.DeviceHistory](cbc.execute(OpDeviceHistory, func() (interface{}, error) {
		return cbc.client.GetDeviceHistory(ctx, deviceToken)
	}))
}

// ResetHistory deletes device conversations with circuit breaker protection.
func (cbc *CircuitBreakerClient) ResetHistory(ctx context.Context, id models.Identity) (*models.ResetResult, error) {
	return castResult[models.ResetResult](cbc.execute(OpResetHistory, func() (interface{}, error) {
		return cbc.client.ResetHistory(ctx, id)
	}))
}

// ResetAll deletes every conversation with circuit breaker protection.
func (cbc *CircuitBreakerClient) ResetAll(ctx context.Context) (*models.ResetResult, error) {
	return castResult[models.ResetResult](cbc.execute(OpResetAll, func() (interface{}, error) {
		return cbc.client.ResetAll(ctx)
	}))
}

// GetPreferences fetches visitor preferences with circuit breaker protection.
func (cbc *CircuitBreakerClient) GetPreferences(ctx context.Context, id models.Identity) (*models.PreferenceSummary, error) {
	return castResult[models.PreferenceSummary](cbc.execute(OpPreferences, func() (interface{}, error) {
		return cbc.client.GetPreferences(ctx, id)
	}))
}

// GetPreferenceSummary fetches global statistics with circuit breaker protection.
func (cbc *CircuitBreakerClient) GetPreferenceSummary(ctx context.Context) (*models.AggregateSummary, error) {
	return castResult[models.AggregateSummary](cbc.execute(OpPreferenceSummary, func() (interface{}, error) {
		return cbc.client.GetPreferenceSummary(ctx)
	}))
}

// GetRankedRecommendations fetches a ranked page with circuit breaker protection.
func (cbc *CircuitBreakerClient) GetRankedRecommendations(ctx context.Context, q models.RankedQuery) (*models.RankedPage, error) {
	return castResult[models.RankedPage](cbc.execute(OpRanked, func() (interface{}, error) {
		return cbc.client.GetRankedRecommendations(ctx, q)
	}))
}

// GetTopTier fetches the top tier with circuit breaker protection.
func (cbc *CircuitBreakerClient) GetTopTier(ctx context.Context, id models.Identity, query string) (*models.TopTierResult, error) {
	return castResult[models.TopTierResult](cbc.execute(OpTopTier, func() (interface{}, error) {
		return cbc.client.GetTopTier(ctx, id, query)
	}))
}

// GetCategories fetches categories with circuit breaker protection.
func (cbc *CircuitBreakerClient) GetCategories(ctx context.Context) (*models.CategoryList, error) {
	return castResult[models.CategoryList](cbc.execute(OpCategories, func() (interface{}, error) {
		return cbc.client.GetCategories(ctx)
	}))
}

// GetTrending fetches trending restaurants with circuit breaker protection.
func (cbc *CircuitBreakerClient) GetTrending(ctx context.Context, limit int) (*models.TrendingResult, error) {
	return castResult[models.TrendingResult](cbc.execute(OpTrending, func() (interface{}, error) {
		return cbc.client.GetTrending(ctx, limit)
	}))
}

// Health checks liveness with circuit breaker protection.
func (cbc *CircuitBreakerClient) Health(ctx context.Context) (*models.HealthStatus, error) {
	return castResult[models.HealthStatus](cbc.execute(OpHealth, func() (interface{}, error) {
		return cbc.client.Health(ctx)
	}))
}
