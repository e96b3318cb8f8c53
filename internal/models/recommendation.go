// Tastesync - Personalization and Recommendation Sync Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tastesync

package models

import (
	"bytes"
	"strconv"

	"github.com/goccy/go-json"
)

// TopTierSize is the number of globally highest-ranked items flagged as top tier.
const TopTierSize = 5

// ItemID is a recommendation item identifier. The backend sends numbers for
// catalog items and strings for mock data; both decode to the same form.
type ItemID string

// UnmarshalJSON accepts a JSON number or string.
func (id *ItemID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ItemID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*id = ItemID(n.String())
	return nil
}

// MarshalJSON writes numeric ids as numbers.
func (id ItemID) MarshalJSON() ([]byte, error) {
	if _, err := strconv.ParseInt(string(id), 10, 64); err == nil {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

// RecommendationItem is one ranked restaurant.
type RecommendationItem struct {
	ID ItemID `json:"id"`

	// Rank is 1-based within the full ranking, not the page.
	Rank int `json:"rank"`

	// SimilarityScore is the primary ranking key, descending.
	SimilarityScore float64 `json:"similarity_score"`

	// IsTopTier marks the TopTierSize globally highest-ranked items.
	IsTopTier bool `json:"is_top5"`

	Name             string   `json:"name"`
	Location         string   `json:"location,omitempty"`
	Cuisine          string   `json:"cuisine,omitempty"`
	Rating           float64  `json:"rating"`
	ReviewCount      int      `json:"review_count"`
	PriceRange       string   `json:"price_range,omitempty"`
	ImageURL         string   `json:"image_url,omitempty"`
	Description      string   `json:"description,omitempty"`
	Address          string   `json:"address,omitempty"`
	MatchingFeatures []string `json:"matching_features,omitempty"`
	Explanation      string   `json:"explanation,omitempty"`
}

// Pagination describes where a page sits in the full ranking.
type Pagination struct {
	CurrentPage  int  `json:"current_page"`
	TotalPages   int  `json:"total_pages"`
	TotalItems   int  `json:"total_items"`
	ItemsPerPage int  `json:"items_per_page"`
	HasNext      bool `json:"has_next"`
	HasPrev      bool `json:"has_prev"`
}

// NewPagination computes the pagination of page within totalItems items
// split into pages of perPage. page is clamped into [1, totalPages]; an empty
// ranking is reported as page 1 of 0.
func NewPagination(page, perPage, totalItems int) Pagination {
	if perPage < 1 {
		perPage = 1
	}
	totalPages := (totalItems + perPage - 1) / perPage
	p := Pagination{
		CurrentPage:  page,
		TotalPages:   totalPages,
		TotalItems:   totalItems,
		ItemsPerPage: perPage,
	}
	return p.Normalize()
}

// Normalize clamps CurrentPage and recomputes HasNext and HasPrev so that
// HasNext == (CurrentPage < TotalPages) and HasPrev == (CurrentPage > 1).
func (p Pagination) Normalize() Pagination {
	if p.TotalPages < 0 {
		p.TotalPages = 0
	}
	if p.CurrentPage > p.TotalPages {
		p.CurrentPage = p.TotalPages
	}
	if p.CurrentPage < 1 {
		p.CurrentPage = 1
	}
	p.HasNext = p.CurrentPage < p.TotalPages
	p.HasPrev = p.CurrentPage > 1 && p.TotalPages > 0
	return p
}

// Consistent reports whether the flags agree with the page numbers.
func (p Pagination) Consistent() bool {
	return p == p.Normalize()
}

// RankedQuery is the request of GET /recommendations/all-ranked.
type RankedQuery struct {
	DeviceToken string `json:"device_token" validate:"required,opaqueid"`
	SessionID   string `json:"session_id,omitempty" validate:"opaqueid"`
	Page        int    `json:"page" validate:"min=1"`
	Limit       int    `json:"limit" validate:"min=1,max=100"`
	Query       string `json:"query,omitempty" validate:"max=500"`
}

// RankedPage is the data payload of GET /recommendations/all-ranked.
type RankedPage struct {
	Restaurants  []RecommendationItem `json:"restaurants"`
	Pagination   Pagination           `json:"pagination"`
	Query        string               `json:"query"`
	Personalized bool                 `json:"personalized"`
	Algorithm    string               `json:"algorithm,omitempty"`
	TieBreaker   string               `json:"tie_breaker,omitempty"`
}

// TopTierResult is the data payload of GET /recommendations/top5.
type TopTierResult struct {
	Restaurants  []RecommendationItem `json:"restaurants"`
	Query        string               `json:"query"`
	Personalized bool                 `json:"personalized"`
}

// Category is one browsable restaurant category.
type Category struct {
	Key   string `json:"key"`
	Label string `json:"label"`
	Count int    `json:"count"`
}

// CategoryList is the data payload of GET /recommendations/categories.
type CategoryList struct {
	Categories []Category `json:"categories"`
}

// TrendingResult is the data payload of GET /recommendations/trending.
type TrendingResult struct {
	Restaurants []RecommendationItem `json:"restaurants"`
	Period      string               `json:"period,omitempty"`
	BasedOn     string               `json:"based_on,omitempty"`
}
