// Tastesync - Personalization and Recommendation Sync Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tastesync

package backendtest

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/tomtom215/tastesync/internal/models"
	"github.com/tomtom215/tastesync/internal/recommend"
)

// priceWords maps price vocabulary to a price bracket.
var priceWords = map[string]string{
	"murah":    "$",
	"hemat":    "$",
	"sedang":   "$$",
	"mahal":    "$$$",
	"mewah":    "$$$",
	"romantis": "$$$",
}

// vocabulary is the entity vocabulary extracted from the catalog.
type vocabulary struct {
	cuisines  []string
	locations []string
	moods     []string
}

func (s *Server) vocabulary() vocabulary {
	var v vocabulary
	seen := make(map[string]bool)
	add := func(list *[]string, kind, term string) {
		key := kind + ":" + strings.ToLower(term)
		if term != "" && !seen[key] {
			seen[key] = true
			*list = append(*list, term)
		}
	}
	for _, item := range s.engine.RankAll("", recommend.Profile{}) {
		add(&v.locations, "loc", item.Location)
		for _, c := range strings.Split(item.Cuisine, ",") {
			add(&v.cuisines, "cui", strings.TrimSpace(c))
		}
	}
	for _, m := range []string{"pantai", "romantis", "santai", "keluarga", "pedas", "sunset", "sarapan"} {
		add(&v.moods, "mood", m)
	}
	return v
}

// summarize aggregates the stored exchanges matching device and session.
// Empty filters match everything.
func (s *Server) summarize(device, session string) *models.PreferenceSummary {
	vocab := s.vocabulary()

	s.mu.Lock()
	var matched []record
	for _, rec := range s.records {
		if device != "" && rec.deviceToken != device {
			continue
		}
		if session != "" && rec.sessionID != session {
			continue
		}
		matched = append(matched, rec)
	}
	now := s.now()
	s.mu.Unlock()

	out := &models.PreferenceSummary{
		TotalConversations: len(matched),
		PreferredCuisines:  []models.FrequencyEntry{},
		PreferredLocations: []models.FrequencyEntry{},
		PreferredMoods:     []models.FrequencyEntry{},
		PricePreferences:   map[string]models.PriceShare{},
		ActivityTimeline:   []models.ActivityPoint{},
		TopSearches:        []models.SearchEntry{},
	}
	if len(matched) == 0 {
		return out
	}

	cuisines := make(map[string]int)
	locations := make(map[string]int)
	moods := make(map[string]int)
	prices := make(map[string]int)
	for _, rec := range matched {
		msg := strings.ToLower(rec.userMessage)
		countTerms(msg, vocab.cuisines, cuisines)
		countTerms(msg, vocab.locations, locations)
		countTerms(msg, vocab.moods, moods)
		for word, bracket := range priceWords {
			if strings.Contains(msg, word) {
				prices[bracket]++
			}
		}
	}

	total := len(matched)
	out.PreferredCuisines = frequencies(cuisines, total)
	out.PreferredLocations = frequencies(locations, total)
	out.PreferredMoods = frequencies(moods, total)
	for bracket, n := range prices {
		out.PricePreferences[bracket] = models.PriceShare{Count: n, Percentage: percent(n, total)}
	}

	today := now.Truncate(24 * time.Hour)
	for i := 6; i >= 0; i-- {
		day := today.AddDate(0, 0, -i)
		n := 0
		for _, rec := range matched {
			if rec.timestamp.Truncate(24 * time.Hour).Equal(day) {
				n++
			}
		}
		out.ActivityTimeline = append(out.ActivityTimeline, models.ActivityPoint{Date: day.Format("2006-01-02"), Count: n})
	}

	for i := len(matched) - 1; i >= 0 && len(out.TopSearches) < 10; i-- {
		out.TopSearches = append(out.TopSearches, models.SearchEntry{
			Query:     matched[i].userMessage,
			Timestamp: models.Timestamp{Time: matched[i].timestamp},
		})
	}

	if len(out.PreferredCuisines) > 0 {
		out.Summary.MostSearchedCuisine = out.PreferredCuisines[0].Name
	}
	if len(out.PreferredLocations) > 0 {
		out.Summary.MostVisitedLocation = out.PreferredLocations[0].Name
	}
	if len(out.PreferredMoods) > 0 {
		out.Summary.FavoriteMood = out.PreferredMoods[0].Name
	}
	return out
}

func countTerms(msg string, terms []string, into map[string]int) {
	for _, t := range terms {
		if strings.Contains(msg, strings.ToLower(t)) {
			into[t]++
		}
	}
}

func frequencies(counts map[string]int, total int) []models.FrequencyEntry {
	out := make([]models.FrequencyEntry, 0, len(counts))
	for name, n := range counts {
		out = append(out, models.FrequencyEntry{Name: name, Count: n, Percentage: percent(n, total)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Name < out[j].Name
	})
	if len(out) > 5 {
		out = out[:5]
	}
	return out
}

func percent(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(n)/float64(total)*1000) / 10
}
