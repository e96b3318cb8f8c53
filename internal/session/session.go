// Tastesync - Personalization and Recommendation Sync Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tastesync

// Package session wires the sync components of one client together.
//
// A Session owns no global state: storage, backend and event publisher are
// injected, and every component is built from them in New. Init loads the
// identity and history and runs the first refresh; Close flushes pending
// history writes.
package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/tomtom215/tastesync/internal/backend"
	"github.com/tomtom215/tastesync/internal/chathistory"
	"github.com/tomtom215/tastesync/internal/config"
	"github.com/tomtom215/tastesync/internal/conversation"
	"github.com/tomtom215/tastesync/internal/events"
	"github.com/tomtom215/tastesync/internal/feed"
	"github.com/tomtom215/tastesync/internal/identity"
	"github.com/tomtom215/tastesync/internal/models"
	"github.com/tomtom215/tastesync/internal/orchestrator"
	"github.com/tomtom215/tastesync/internal/preferences"
	"github.com/tomtom215/tastesync/internal/storage"
)

// Session is one client: identity, history, preferences, feed and the
// orchestrator that keeps them fresh.
type Session struct {
	API          backend.API
	Identity     *identity.Store
	History      *chathistory.Store
	Preferences  *preferences.Cache
	Feed         *feed.Feed
	Orchestrator *orchestrator.Orchestrator
	Conversation *conversation.Service

	logger zerolog.Logger
}

// InitResult describes what Init found.
type InitResult struct {
	Identity models.Identity
	History  chathistory.LoadResult

	// RefreshErr is the error of the first refresh. Init does not fail on it.
	RefreshErr error
}

// State is a point-in-time summary of the session for diagnostics.
type State struct {
	DeviceToken       string `json:"device_token"`
	SessionID         string `json:"session_id,omitempty"`
	Messages          int    `json:"messages"`
	PreferencesLoaded bool   `json:"preferences_loaded"`
	FeedPage          int    `json:"feed_page"`
	FeedTotalPages    int    `json:"feed_total_pages"`
	FeedMode          string `json:"feed_mode"`
	FeedStale         bool   `json:"feed_stale"`
	FeedViolations    int    `json:"feed_violations"`
	FeedQuery         string `json:"feed_query,omitempty"`
	Sending           bool   `json:"sending"`
}

// New builds a session over kv and api. Nothing is read or fetched until Init.
func New(cfg *config.Config, kv storage.Store, api backend.API, publisher events.Publisher, logger zerolog.Logger) *Session {
	s := &Session{
		API:    api,
		logger: logger.With().Str("component", "session").Logger(),
	}
	s.Identity = identity.New(kv, publisher, logger)
	s.History = chathistory.New(kv, api, publisher, chathistory.Config{
		Greeting:     cfg.Chat.Greeting,
		HistoryLimit: cfg.Chat.HistoryLimit,
	}, logger)
	s.Preferences = preferences.New(api, publisher, logger)
	s.Feed = feed.New(api, publisher, feed.Config{
		PageSize:      cfg.Feed.PageSize,
		PageCacheSize: cfg.Feed.PageCacheSize,
		PageCacheTTL:  cfg.Feed.PageCacheTTL,
		VerifyRanking: cfg.Feed.VerifyRanking,
	}, logger)
	s.Orchestrator = orchestrator.New(orchestrator.Components{
		Identity:    s.Identity,
		Preferences: s.Preferences,
		Feed:        s.Feed,
		History:     s.History,
		Remote:      api,
		Publisher:   publisher,
	}, cfg.Sync, logger)
	s.Identity.SetRefresher(s.Orchestrator)
	s.Conversation = conversation.New(s.History, s.Identity, api, s.Orchestrator, cfg.Chat.ErrorNotice, logger)
	return s
}

// Init loads the identity, fills the chat history and runs the first
// refresh. Only storage failures are returned as errors.
func (s *Session) Init(ctx context.Context) (*InitResult, error) {
	if err := s.Identity.Load(ctx); err != nil {
		return nil, fmt.Errorf("load identity: %w", err)
	}
	id, err := s.Identity.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("load identity: %w", err)
	}

	res := &InitResult{Identity: id}
	if res.History, err = s.History.LoadInitial(ctx, id.SessionID); err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	res.RefreshErr = s.Orchestrator.RefreshNow(ctx, orchestrator.ReasonStartup)
	if res.RefreshErr != nil {
		s.logger.Warn().Err(res.RefreshErr).Msg("Initial refresh failed, showing saved data")
	}

	s.logger.Info().
		Str("session_id", id.SessionID).
		Str("history_source", res.History.Source).
		Int("messages", res.History.Count).
		Msg("Session initialized")
	return res, nil
}

// Send runs one chat turn.
func (s *Session) Send(ctx context.Context, text string) (*conversation.Turn, error) {
	return s.Conversation.Send(ctx, text)
}

// FetchPage loads page of the feed with the current filters.
func (s *Session) FetchPage(ctx context.Context, page int) (*models.RankedPage, error) {
	id, err := s.Identity.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return s.Feed.FetchPage(ctx, page, id, s.Feed.State().Filters)
}

// NextPage loads the page after the current one.
func (s *Session) NextPage(ctx context.Context) (*models.RankedPage, error) {
	id, err := s.Identity.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return s.Feed.Next(ctx, id)
}

// PrevPage loads the page before the current one.
func (s *Session) PrevPage(ctx context.Context) (*models.RankedPage, error) {
	id, err := s.Identity.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return s.Feed.Prev(ctx, id)
}

// Filter restricts the feed to query and loads page 1.
func (s *Session) Filter(ctx context.Context, query string) (*models.RankedPage, error) {
	id, err := s.Identity.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return s.Feed.SetFilters(ctx, id, feed.Filters{Query: query})
}

// TopTier returns the top-ranked restaurants for the current identity.
func (s *Session) TopTier(ctx context.Context) (*models.TopTierResult, error) {
	id, err := s.Identity.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return s.Feed.TopTier(ctx, id)
}

// Sessions lists the backend sessions of this device.
func (s *Session) Sessions(ctx context.Context) (*models.DeviceHistory, error) {
	token, err := s.Identity.DeviceToken(ctx)
	if err != nil {
		return nil, err
	}
	return s.History.FetchDeviceHistory(ctx, token)
}

// Refresh refreshes preferences and the feed now.
func (s *Session) Refresh(ctx context.Context) error {
	return s.Orchestrator.RefreshNow(ctx, orchestrator.ReasonManual)
}

// Reset deletes the visitor's data remotely, then locally.
func (s *Session) Reset(ctx context.Context) (*orchestrator.ResetOutcome, error) {
	return s.Orchestrator.FullReset(ctx)
}

// State summarizes the session. It never calls the backend.
func (s *Session) State(ctx context.Context) State {
	st := State{
		SessionID:         s.Identity.SessionID(),
		Messages:          s.History.Len(),
		PreferencesLoaded: s.Preferences.Current() != nil,
		Sending:           s.Conversation.Sending(),
	}
	if id, err := s.Identity.Snapshot(ctx); err == nil {
		st.DeviceToken = id.DeviceToken
	}
	fs := s.Feed.State()
	st.FeedPage = s.Feed.CurrentPage()
	st.FeedMode = string(fs.Mode())
	st.FeedStale = fs.Stale
	st.FeedViolations = len(fs.Violations)
	st.FeedQuery = fs.Filters.Query
	if fs.Page != nil {
		st.FeedTotalPages = fs.Page.Pagination.TotalPages
	}
	return st
}

// Close cancels pending refreshes and flushes the chat history.
func (s *Session) Close(ctx context.Context) error {
	s.Orchestrator.CancelPending()
	s.Feed.Cancel()
	if err := s.History.Close(ctx); err != nil && !errors.Is(err, chathistory.ErrClosed) {
		return fmt.Errorf("close history: %w", err)
	}
	return nil
}
