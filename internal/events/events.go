// Tastesync - Personalization and Recommendation Sync Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tastesync

// Package events carries named lifecycle notifications from the sync
// components to presentation layers over an in-process watermill bus.
//
// Events are notifications, not commands: a component never waits for a
// subscriber, and a missing subscriber loses nothing but the notification.
package events

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// Topics published by the sync components.
const (
	TopicSessionAdopted     = "session.adopted"
	TopicHistoryChanged     = "history.changed"
	TopicPreferencesUpdated = "preferences.updated"
	TopicFeedUpdated        = "feed.updated"
	TopicResetCompleted     = "reset.completed"
)

// Event is the envelope of every published notification.
type Event struct {
	ID            string          `json:"id"`
	Topic         string          `json:"topic"`
	OccurredAt    time.Time       `json:"occurred_at"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Data          json.RawMessage `json:"data,omitempty"`
}

// Decode unmarshals the event data into v.
func (e Event) Decode(v any) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("event %s has no data", e.Topic)
	}
	return json.Unmarshal(e.Data, v)
}

// newEvent wraps payload for topic.
func newEvent(topic, correlationID string, payload any) (Event, error) {
	evt := Event{
		ID:            uuid.NewString(),
		Topic:         topic,
		OccurredAt:    time.Now().UTC(),
		CorrelationID: correlationID,
	}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return Event{}, fmt.Errorf("encode %s payload: %w", topic, err)
		}
		evt.Data = data
	}
	return evt, nil
}

// SessionAdopted is published when the client starts using a session id.
type SessionAdopted struct {
	SessionID string `json:"session_id"`
	Previous  string `json:"previous,omitempty"`
}

// HistoryChanged is published when the message log is loaded or cleared.
type HistoryChanged struct {
	Count  int    `json:"count"`
	Source string `json:"source"`
}

// PreferencesUpdated is published when a new preference snapshot is applied.
type PreferencesUpdated struct {
	TotalConversations int  `json:"total_conversations"`
	Empty              bool `json:"empty"`
}

// FeedUpdated is published after every feed fetch, successful or not.
type FeedUpdated struct {
	Page         int    `json:"page"`
	TotalPages   int    `json:"total_pages"`
	TotalItems   int    `json:"total_items"`
	Mode         string `json:"mode"`
	Personalized bool   `json:"personalized"`
	Stale        bool   `json:"stale"`
	Error        string `json:"error,omitempty"`
	Violations   int    `json:"violations,omitempty"`
}

// ResetCompleted is published after a full reset cleared local state.
type ResetCompleted struct {
	Scope        string `json:"scope"`
	DeletedCount int    `json:"deleted_count"`
	TokenRotated bool   `json:"token_rotated"`
}

// Publisher publishes lifecycle notifications.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) error
}

type discard struct{}

func (discard) Publish(context.Context, string, any) error { return nil }

// Discard is a Publisher that drops every event.
var Discard Publisher = discard{}

// OrDiscard returns p, or Discard when p is nil.
func OrDiscard(p Publisher) Publisher {
	if p == nil {
		return Discard
	}
	return p
}
