// Tastesync - Personalization and Recommendation Sync Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tastesync

// Package preferences caches the last preference summary the backend
// computed for this visitor.
//
// Refreshes are last-request-wins: every request takes a sequence number and
// a response is applied only when no newer request has been issued since.
// Snapshots are replaced wholesale, never merged.
package preferences

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/tomtom215/tastesync/internal/backend"
	"github.com/tomtom215/tastesync/internal/events"
	"github.com/tomtom215/tastesync/internal/metrics"
	"github.com/tomtom215/tastesync/internal/models"
)

// ErrSuperseded is returned for a response overtaken by a newer request or by Clear.
var ErrSuperseded = errors.New("preferences: response superseded")

// Remote is the part of the backend API the cache uses.
type Remote interface {
	GetPreferences(ctx context.Context, id models.Identity) (*models.PreferenceSummary, error)
	GetPreferenceSummary(ctx context.Context) (*models.AggregateSummary, error)
}

// Cache is the preference component.
type Cache struct {
	remote    Remote
	publisher events.Publisher
	logger    zerolog.Logger

	mu      sync.RWMutex
	seq     uint64
	applied uint64
	current *models.PreferenceSummary
}

// New creates an empty cache.
func New(remote Remote, publisher events.Publisher, logger zerolog.Logger) *Cache {
	return &Cache{
		remote:    remote,
		publisher: events.OrDiscard(publisher),
		logger:    logger.With().Str("component", "preferences").Logger(),
	}
}

// Refresh fetches the summary for id and applies it unless a newer request
// was applied first. On failure the previous snapshot is kept.
func (c *Cache) Refresh(ctx context.Context, id models.Identity) (*models.PreferenceSummary, error) {
	if err := backend.Validate(backend.OpPreferences, id); err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.seq++
	seq := c.seq
	c.mu.Unlock()

	summary, err := c.remote.GetPreferences(ctx, id)

	c.mu.Lock()
	if seq <= c.applied {
		c.mu.Unlock()
		metrics.StaleResponsesDropped.WithLabelValues("preferences").Inc()
		c.logger.Debug().Uint64("seq", seq).Msg("Dropping superseded preference response")
		return nil, ErrSuperseded
	}
	if err != nil {
		c.mu.Unlock()
		return nil, fmt.Errorf("refresh preferences: %w", err)
	}
	c.applied = seq
	c.current = summary
	c.mu.Unlock()

	c.logger.Debug().
		Uint64("seq", seq).
		Int("total_conversations", summary.TotalConversations).
		Msg("Preferences updated")

	if err := c.publisher.Publish(ctx, events.TopicPreferencesUpdated, events.PreferencesUpdated{
		TotalConversations: summary.TotalConversations,
		Empty:              summary.Empty(),
	}); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to publish preference update")
	}
	return summary, nil
}

// Current returns the last applied snapshot, or nil.
func (c *Cache) Current() *models.PreferenceSummary {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

// Clear drops the snapshot. Responses of requests issued before Clear are ignored.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	c.applied = c.seq
	c.current = nil
}

// Summary returns the backend-wide aggregate. It is not personalized and not cached.
func (c *Cache) Summary(ctx context.Context) (*models.AggregateSummary, error) {
	return c.remote.GetPreferenceSummary(ctx)
}
