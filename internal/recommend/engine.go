// Tastesync - Personalization and Recommendation Sync Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tastesync

package recommend

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/rs/zerolog"

	"github.com/tomtom215/tastesync/internal/models"
)

// Restaurant is one catalog entry the Engine can rank.
type Restaurant struct {
	ID          models.ItemID
	Name        string
	Location    string
	Cuisines    []string
	Rating      float64
	ReviewCount int
	PriceRange  string
	ImageURL    string
	Description string
	Address     string
	Keywords    []string
}

// Category derives the browsing category from the cuisines.
func (r *Restaurant) Category() string {
	has := func(names ...string) bool {
		for _, c := range r.Cuisines {
			for _, n := range names {
				if strings.EqualFold(c, n) {
					return true
				}
			}
		}
		return false
	}
	switch {
	case has("italian", "pizza", "pasta"):
		return "italian"
	case has("mexican", "tacos"):
		return "mexican"
	case has("asian", "indonesian", "chinese", "japanese", "thai", "seafood"):
		return "asian"
	case has("bar", "cafe", "coffee"):
		return "cafe"
	case has("healthy", "vegetarian", "vegan"):
		return "healthy"
	default:
		return "international"
	}
}

// Profile is the preference signal used to personalize a ranking.
type Profile struct {
	Cuisines  []string
	Locations []string
}

// Empty reports whether the profile carries no signal.
func (p Profile) Empty() bool {
	return len(p.Cuisines) == 0 && len(p.Locations) == 0
}

// ProfileFromSummary builds a Profile from the top entries of a summary.
func ProfileFromSummary(s *models.PreferenceSummary, n int) Profile {
	var p Profile
	if s.Empty() {
		return p
	}
	for i, e := range s.PreferredCuisines {
		if i >= n {
			break
		}
		p.Cuisines = append(p.Cuisines, e.Name)
	}
	for i, e := range s.PreferredLocations {
		if i >= n {
			break
		}
		p.Locations = append(p.Locations, e.Name)
	}
	return p
}

// document is the term vector of one restaurant.
type document struct {
	terms map[string]float64
	norm  float64
}

// Engine scores a fixed catalog against free-text queries and preference
// profiles using cosine similarity over term frequencies. It is safe for
// concurrent use.
type Engine struct {
	logger zerolog.Logger

	mu          sync.RWMutex
	restaurants []Restaurant
	documents   []document
}

// NewEngine creates an Engine over catalog.
func NewEngine(catalog []Restaurant, logger zerolog.Logger) *Engine {
	e := &Engine{logger: logger.With().Str("component", "recommend").Logger()}
	e.Load(catalog)
	return e
}

// Load replaces the catalog.
func (e *Engine) Load(catalog []Restaurant) {
	docs := make([]document, len(catalog))
	for i := range catalog {
		docs[i] = newDocument(restaurantText(&catalog[i]))
	}

	e.mu.Lock()
	e.restaurants = append([]Restaurant(nil), catalog...)
	e.documents = docs
	e.mu.Unlock()

	e.logger.Debug().Int("restaurants", len(catalog)).Msg("Catalog loaded")
}

// Len returns the catalog size.
func (e *Engine) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.restaurants)
}

// RankAll scores every restaurant for query and profile and returns the full
// ranking with ranks and top-tier flags assigned.
func (e *Engine) RankAll(query string, profile Profile) []models.RecommendationItem {
	e.mu.RLock()
	defer e.mu.RUnlock()

	q := strings.TrimSpace(query)
	if !profile.Empty() {
		q += " " + strings.Join(profile.Cuisines, " ") + " " + strings.Join(profile.Locations, " ")
	}
	qdoc := newDocument(q)

	items := make([]models.RecommendationItem, len(e.restaurants))
	for i := range e.restaurants {
		r := &e.restaurants[i]
		score := cosine(qdoc, e.documents[i])
		features := matchingFeatures(r, query, profile)
		items[i] = models.RecommendationItem{
			ID:               r.ID,
			SimilarityScore:  math.Round(score*10000) / 10000,
			Name:             r.Name,
			Location:         r.Location,
			Cuisine:          strings.Join(firstN(r.Cuisines, 3), ", "),
			Rating:           r.Rating,
			ReviewCount:      r.ReviewCount,
			PriceRange:       r.PriceRange,
			ImageURL:         r.ImageURL,
			Description:      r.Description,
			Address:          r.Address,
			MatchingFeatures: features,
			Explanation:      explain(r, features),
		}
	}
	return Rank(items)
}

// Categories counts restaurants per category, largest first.
func (e *Engine) Categories() []models.Category {
	e.mu.RLock()
	defer e.mu.RUnlock()

	counts := make(map[string]int)
	for i := range e.restaurants {
		counts[e.restaurants[i].Category()]++
	}
	out := make([]models.Category, 0, len(counts))
	for key, n := range counts {
		out = append(out, models.Category{Key: key, Label: categoryLabel(key), Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Key < out[j].Key
	})
	return out
}

// Trending returns the limit restaurants with the highest popularity,
// rating weighted by the log of the review count.
func (e *Engine) Trending(limit int) []models.RecommendationItem {
	items := e.RankAll("", Profile{})
	sort.SliceStable(items, func(i, j int) bool {
		return popularity(&items[i]) > popularity(&items[j])
	})
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}

func popularity(item *models.RecommendationItem) float64 {
	return item.Rating * math.Log1p(float64(item.ReviewCount))
}

func categoryLabel(key string) string {
	switch key {
	case "asian":
		return "Asian & Indonesian"
	case "cafe":
		return "Cafe & Bar"
	case "healthy":
		return "Healthy"
	case "italian":
		return "Italian"
	case "mexican":
		return "Mexican"
	default:
		return "International"
	}
}

func restaurantText(r *Restaurant) string {
	parts := []string{r.Name, r.Location, r.Description}
	parts = append(parts, r.Cuisines...)
	parts = append(parts, r.Keywords...)
	return strings.Join(parts, " ")
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func newDocument(text string) document {
	d := document{terms: make(map[string]float64)}
	for _, tok := range tokenize(text) {
		if len(tok) < 2 {
			continue
		}
		d.terms[tok]++
	}
	for _, w := range d.terms {
		d.norm += w * w
	}
	d.norm = math.Sqrt(d.norm)
	return d
}

func cosine(a, b document) float64 {
	if a.norm == 0 || b.norm == 0 {
		return 0
	}
	small, large := a, b
	if len(small.terms) > len(large.terms) {
		small, large = large, small
	}
	var dot float64
	for t, w := range small.terms {
		dot += w * large.terms[t]
	}
	return dot / (a.norm * b.norm)
}

// matchingFeatures lists the query and profile terms the restaurant matches.
func matchingFeatures(r *Restaurant, query string, profile Profile) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(s string) {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}

	terms := tokenize(query)
	locations := append(append([]string(nil), terms...), profile.Locations...)
	cuisines := append(append([]string(nil), terms...), profile.Cuisines...)

	for _, loc := range locations {
		if loc != "" && strings.Contains(strings.ToLower(r.Location), strings.ToLower(loc)) {
			add("Lokasi: " + r.Location)
		}
	}
	for _, c := range cuisines {
		for _, rc := range r.Cuisines {
			if strings.EqualFold(rc, c) {
				add("Jenis masakan: " + rc)
			}
		}
	}
	for _, t := range terms {
		for _, kw := range r.Keywords {
			if strings.EqualFold(kw, t) {
				add("Suasana: " + kw)
			}
		}
	}
	return out
}

func explain(r *Restaurant, features []string) string {
	if len(features) == 0 {
		return fmt.Sprintf("Direkomendasikan berdasarkan rating tinggi (%.1f/5.0)", r.Rating)
	}
	s := "Cocok karena: " + strings.Join(firstN(features, 3), ", ")
	if len(features) > 3 {
		s += fmt.Sprintf(" dan %d kecocokan lainnya", len(features)-3)
	}
	return s
}

func firstN(s []string, n int) []string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
