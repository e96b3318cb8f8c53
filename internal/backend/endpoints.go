// Tastesync - Personalization and Recommendation Sync Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tastesync

package backend

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/tastesync/internal/models"
)

// Operation names used in errors, logs and metrics.
const (
	OpSendMessage       = "send_message"
	OpSessionHistory    = "session_history"
	OpDeviceHistory     = "device_history"
	OpResetHistory      = "reset_history"
	OpResetAll          = "reset_all"
	OpPreferences       = "preferences"
	OpPreferenceSummary = "preference_summary"
	OpRanked            = "ranked_recommendations"
	OpTopTier           = "top_tier"
	OpCategories        = "categories"
	OpTrending          = "trending"
	OpHealth            = "health"
)

// historyQuery validates the path and query of a session history request.
type historyQuery struct {
	SessionID string `json:"session_id" validate:"notblank,opaqueid"`
	models.HistoryOptions
}

// deviceQuery validates a device-scoped request.
type deviceQuery struct {
	DeviceToken string `json:"device_token" validate:"notblank,opaqueid"`
}

// topTierQuery validates a top-tier request.
type topTierQuery struct {
	models.Identity
	Query string `json:"query" validate:"max=500"`
}

// trendingQuery validates a trending request.
type trendingQuery struct {
	Limit int `json:"limit" validate:"gte=0,lte=100"`
}

// resetBody is the body of DELETE /chat/reset.
type resetBody struct {
	DeviceToken string `json:"device_token,omitempty"`
	SessionID   string `json:"session_id,omitempty"`
}

// validated runs validation and records a failed call without dispatching.
func (c *Client) validated(ctx context.Context, op string, req interface{}) error {
	if err := validateRequest(op, req); err != nil {
		return c.finish(ctx, op, time.Now(), err)
	}
	return nil
}

// SendMessage posts one chat message.
func (c *Client) SendMessage(ctx context.Context, req models.SendMessageRequest) (*models.SendMessageResult, error) {
	if err := c.validated(ctx, OpSendMessage, req); err != nil {
		return nil, err
	}
	req.Message = strings.TrimSpace(req.Message)
	r := newAPIRequest(OpSendMessage, http.MethodPost, "/chat").withBody(req)
	return executeAPIRequest[models.SendMessageResult](ctx, c, r)
}

// GetSessionHistory fetches the stored exchanges of a session.
func (c *Client) GetSessionHistory(ctx context.Context, sessionID string, opts models.HistoryOptions) (*models.SessionHistory, error) {
	if err := c.validated(ctx, OpSessionHistory, historyQuery{SessionID: sessionID, HistoryOptions: opts}); err != nil {
		return nil, err
	}
	r := newAPIRequest(OpSessionHistory, http.MethodGet, "/chat/history/"+url.PathEscape(sessionID)).
		addIntParam("limit", opts.Limit).
		addIntParam("offset", opts.Offset)
	return executeAPIRequest[models.SessionHistory](ctx, c, r)
}

// GetDeviceHistory lists the past sessions of a device.
func (c *Client) GetDeviceHistory(ctx context.Context, deviceToken string) (*models.DeviceHistory, error) {
	if err := c.validated(ctx, OpDeviceHistory, deviceQuery{DeviceToken: deviceToken}); err != nil {
		return nil, err
	}
	r := newAPIRequest(OpDeviceHistory, http.MethodGet, "/chat/history/device/"+url.PathEscape(deviceToken))
	return executeAPIRequest[models.DeviceHistory](ctx, c, r)
}

// ResetHistory deletes the conversations of one device or session.
func (c *Client) ResetHistory(ctx context.Context, id models.Identity) (*models.ResetResult, error) {
	if err := c.validated(ctx, OpResetHistory, id); err != nil {
		return nil, err
	}
	r := newAPIRequest(OpResetHistory, http.MethodDelete, "/chat/reset").
		withBody(resetBody{DeviceToken: id.DeviceToken, SessionID: id.SessionID})
	return executeAPIRequest[models.ResetResult](ctx, c, r)
}

// ResetAll deletes every conversation the backend holds.
func (c *Client) ResetAll(ctx context.Context) (*models.ResetResult, error) {
	r := newAPIRequest(OpResetAll, http.MethodDelete, "/chat/reset-all")
	return executeAPIRequest[models.ResetResult](ctx, c, r)
}

// GetPreferences fetches the preference aggregate of a visitor. The raw
// payload is kept on the result.
func (c *Client) GetPreferences(ctx context.Context, id models.Identity) (*models.PreferenceSummary, error) {
	if err := c.validated(ctx, OpPreferences, id); err != nil {
		return nil, err
	}
	start := time.Now()
	r := newAPIRequest(OpPreferences, http.MethodGet, "/user-preferences").addIdentity(id)
	env, err := c.fetchEnvelope(ctx, r)
	if err != nil {
		return nil, c.finish(ctx, OpPreferences, start, err)
	}
	out, err := decodeEnvelope[models.PreferenceSummary](OpPreferences, env)
	if err != nil {
		return nil, c.finish(ctx, OpPreferences, start, err)
	}
	out.Raw = append(json.RawMessage(nil), env.Data...)
	out.FetchedAt = time.Now()
	return out, c.finish(ctx, OpPreferences, start, nil)
}

// GetPreferenceSummary fetches global statistics over every visitor.
func (c *Client) GetPreferenceSummary(ctx context.Context) (*models.AggregateSummary, error) {
	r := newAPIRequest(OpPreferenceSummary, http.MethodGet, "/user-preferences/summary")
	return executeAPIRequest[models.AggregateSummary](ctx, c, r)
}

// GetRankedRecommendations fetches one page of the full ranking.
func (c *Client) GetRankedRecommendations(ctx context.Context, q models.RankedQuery) (*models.RankedPage, error) {
	if err := c.validated(ctx, OpRanked, q); err != nil {
		return nil, err
	}
	r := newAPIRequest(OpRanked, http.MethodGet, "/recommendations/all-ranked").
		addParam("device_token", q.DeviceToken).
		addParam("session_id", q.SessionID).
		addIntParam("page", q.Page).
		addIntParam("limit", q.Limit).
		addParam("query", strings.TrimSpace(q.Query))
	return executeAPIRequest[models.RankedPage](ctx, c, r)
}

// GetTopTier fetches the top-tier items of the ranking.
func (c *Client) GetTopTier(ctx context.Context, id models.Identity, query string) (*models.TopTierResult, error) {
	if err := c.validated(ctx, OpTopTier, topTierQuery{Identity: id, Query: query}); err != nil {
		return nil, err
	}
	r := newAPIRequest(OpTopTier, http.MethodGet, "/recommendations/top5").
		addIdentity(id).
		addParam("query", strings.TrimSpace(query))
	return executeAPIRequest[models.TopTierResult](ctx, c, r)
}

// GetCategories fetches the browsable categories.
func (c *Client) GetCategories(ctx context.Context) (*models.CategoryList, error) {
	r := newAPIRequest(OpCategories, http.MethodGet, "/recommendations/categories")
	return executeAPIRequest[models.CategoryList](ctx, c, r)
}

// GetTrending fetches the most popular restaurants.
func (c *Client) GetTrending(ctx context.Context, limit int) (*models.TrendingResult, error) {
	if err := c.validated(ctx, OpTrending, trendingQuery{Limit: limit}); err != nil {
		return nil, err
	}
	r := newAPIRequest(OpTrending, http.MethodGet, "/recommendations/trending").addIntParam("limit", limit)
	return executeAPIRequest[models.TrendingResult](ctx, c, r)
}

// Health checks backend liveness. The health endpoint is not enveloped.
func (c *Client) Health(ctx context.Context) (*models.HealthStatus, error) {
	start := time.Now()
	r := newAPIRequest(OpHealth, http.MethodGet, "/health")
	status, body, err := c.doRequestWithRateLimit(ctx, r)
	if err != nil {
		return nil, c.finish(ctx, OpHealth, start, err)
	}

	var out models.HealthStatus
	if err := json.Unmarshal(body, &out); err != nil || status != http.StatusOK {
		msg := readBodyForError(body)
		if err == nil && out.Message != "" {
			msg = out.Message
		}
		return nil, c.finish(ctx, OpHealth, start, &RejectionError{Op: OpHealth, StatusCode: status, Message: msg})
	}
	return &out, c.finish(ctx, OpHealth, start, nil)
}
