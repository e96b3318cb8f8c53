// Tastesync - Personalization and Recommendation Sync Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tastesync

package models

import (
	"time"

	"github.com/goccy/go-json"
)

// FrequencyEntry is one ranked preference value.
type FrequencyEntry struct {
	Name       string  `json:"name"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

// PriceShare is the weight of one price bracket.
type PriceShare struct {
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

// ActivityPoint is the number of conversations on one day.
type ActivityPoint struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// SearchEntry is a recent user query.
type SearchEntry struct {
	Query     string    `json:"query"`
	Timestamp Timestamp `json:"timestamp"`
}

// PreferenceHighlights names the dominant value of each dimension.
type PreferenceHighlights struct {
	MostSearchedCuisine string `json:"most_searched_cuisine,omitempty"`
	MostVisitedLocation string `json:"most_visited_location,omitempty"`
	FavoriteMood        string `json:"favorite_mood,omitempty"`
}

// PreferenceSummary is the backend aggregate of a visitor's preferences.
// It is an immutable snapshot: a refresh replaces it wholesale.
type PreferenceSummary struct {
	TotalConversations int                   `json:"total_conversations"`
	PreferredCuisines  []FrequencyEntry      `json:"preferred_cuisines"`
	PreferredLocations []FrequencyEntry      `json:"preferred_locations"`
	PreferredMoods     []FrequencyEntry      `json:"preferred_moods"`
	PricePreferences   map[string]PriceShare `json:"price_preferences"`
	ActivityTimeline   []ActivityPoint       `json:"activity_timeline"`
	TopSearches        []SearchEntry         `json:"top_searches"`
	Summary            PreferenceHighlights  `json:"summary"`

	// Raw is the payload as received, for fields this client does not model.
	Raw json.RawMessage `json:"-"`

	// FetchedAt is the local time the snapshot was received.
	FetchedAt time.Time `json:"-"`
}

// Empty reports whether the backend has no signal for the visitor yet.
func (p *PreferenceSummary) Empty() bool {
	return p == nil || p.TotalConversations == 0
}

// AggregateSummary is the data payload of GET /user-preferences/summary:
// statistics over every visitor, not personalized.
type AggregateSummary struct {
	TotalSessions         int     `json:"total_sessions"`
	TotalConversations    int     `json:"total_conversations"`
	TopCuisine            string  `json:"top_cuisine,omitempty"`
	TopLocation           string  `json:"top_location,omitempty"`
	AvgMessagesPerSession float64 `json:"avg_messages_per_session"`
}
