// Tastesync - Personalization and Recommendation Sync Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tastesync

package recommend

import (
	"testing"

	"github.com/tomtom215/tastesync/internal/models"
)

func item(id string, score, rating float64, reviews int) models.RecommendationItem {
	return models.RecommendationItem{
		ID:              models.ItemID(id),
		SimilarityScore: score,
		Rating:          rating,
		ReviewCount:     reviews,
	}
}

func ids(items []models.RecommendationItem) []string {
	out := make([]string, len(items))
	for i := range items {
		out[i] = string(items[i].ID)
	}
	return out
}

func TestCompare(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		a, b models.RecommendationItem
		want bool
	}{
		{"higher score wins", item("a", 0.9, 3.0, 1), item("b", 0.8, 5.0, 999), true},
		{"lower score loses", item("a", 0.7, 5.0, 999), item("b", 0.8, 3.0, 1), false},
		{"rating breaks score tie", item("a", 0.5, 4.6, 10), item("b", 0.5, 4.5, 999), true},
		{"reviews break rating tie", item("a", 0.5, 4.5, 20), item("b", 0.5, 4.5, 10), true},
		{"full tie is not ahead", item("a", 0.5, 4.5, 10), item("b", 0.5, 4.5, 10), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Compare(&tt.a, &tt.b); got != tt.want {
				t.Errorf("Compare() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRankIsStableAndAssignsTopTier(t *testing.T) {
	t.Parallel()

	items := []models.RecommendationItem{
		item("x", 0.1, 4.0, 5),
		item("tie1", 0.5, 4.5, 10),
		item("best", 0.9, 4.0, 5),
		item("tie2", 0.5, 4.5, 10),
		item("y", 0.2, 4.0, 5),
		item("z", 0.05, 4.0, 5),
		item("w", 0.0, 5.0, 100),
	}

	ranked := Rank(items)
	want := []string{"best", "tie1", "tie2", "y", "x", "z", "w"}
	got := ids(ranked)
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Rank order = %v, want %v", got, want)
		}
	}

	for i := range ranked {
		if ranked[i].Rank != i+1 {
			t.Errorf("item %s rank = %d, want %d", ranked[i].ID, ranked[i].Rank, i+1)
		}
		if wantTop := i < models.TopTierSize; ranked[i].IsTopTier != wantTop {
			t.Errorf("item %s IsTopTier = %v, want %v", ranked[i].ID, ranked[i].IsTopTier, wantTop)
		}
	}
}

func TestPaginate(t *testing.T) {
	t.Parallel()

	ranked := make([]models.RecommendationItem, 45)
	for i := range ranked {
		ranked[i] = item(string(rune('a'+i%26))+string(rune('a'+i/26)), float64(100-i), 4, 1)
	}
	ranked = Rank(ranked)

	tests := []struct {
		name        string
		page, limit int
		wantLen     int
		wantPage    int
		wantPages   int
		wantNext    bool
		wantPrev    bool
	}{
		{"first page", 1, 20, 20, 1, 3, true, false},
		{"middle page", 2, 20, 20, 2, 3, true, true},
		{"partial last page", 3, 20, 5, 3, 3, false, true},
		{"past the end", 7, 20, 0, 7, 3, false, true},
		{"zero page", 0, 20, 20, 1, 3, true, false},
		{"limit clamped high", 1, 500, 45, 1, 1, false, false},
		{"limit clamped low", 1, 0, 1, 1, 45, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			items, p := Paginate(ranked, tt.page, tt.limit)
			if len(items) != tt.wantLen {
				t.Errorf("len = %d, want %d", len(items), tt.wantLen)
			}
			if p.CurrentPage != tt.wantPage || p.TotalPages != tt.wantPages {
				t.Errorf("page %d/%d, want %d/%d", p.CurrentPage, p.TotalPages, tt.wantPage, tt.wantPages)
			}
			if p.HasNext != tt.wantNext || p.HasPrev != tt.wantPrev {
				t.Errorf("hasNext=%v hasPrev=%v, want %v %v", p.HasNext, p.HasPrev, tt.wantNext, tt.wantPrev)
			}
			if p.TotalItems != 45 {
				t.Errorf("TotalItems = %d, want 45", p.TotalItems)
			}
		})
	}
}

func TestTopTierNeverLeaksPastFirstPage(t *testing.T) {
	t.Parallel()

	engine := NewEngine(DemoCatalog(), testLogger())
	ranked := engine.RankAll("seafood pantai", Profile{})

	for limit := models.TopTierSize; limit <= 12; limit++ {
		pages := (len(ranked) + limit - 1) / limit
		for page := 2; page <= pages; page++ {
			items, _ := Paginate(ranked, page, limit)
			for i := range items {
				if items[i].IsTopTier {
					t.Fatalf("limit %d page %d: item %s is top tier", limit, page, items[i].ID)
				}
			}
		}
	}

	top := TopTier(ranked)
	if len(top) != models.TopTierSize {
		t.Fatalf("TopTier len = %d, want %d", len(top), models.TopTierSize)
	}
	for i := range top {
		if !top[i].IsTopTier || top[i].Rank != i+1 {
			t.Errorf("TopTier[%d] = rank %d top=%v", i, top[i].Rank, top[i].IsTopTier)
		}
	}
}

func TestVerifyPage(t *testing.T) {
	t.Parallel()

	good := func() *models.RankedPage {
		ranked := Rank([]models.RecommendationItem{
			item("1", 0.9, 4, 1), item("2", 0.8, 4, 1), item("3", 0.7, 4, 1),
			item("4", 0.6, 4, 1), item("5", 0.5, 4, 1), item("6", 0.4, 4, 1),
			item("7", 0.3, 4, 1), item("8", 0.2, 4, 1),
		})
		items, p := Paginate(ranked, 2, 3)
		return &models.RankedPage{Restaurants: items, Pagination: p}
	}

	tests := []struct {
		name     string
		mutate   func(p *models.RankedPage)
		wantKind string
	}{
		{"valid page", func(*models.RankedPage) {}, ""},
		{"out of order", func(p *models.RankedPage) {
			p.Restaurants[0], p.Restaurants[1] = p.Restaurants[1], p.Restaurants[0]
		}, ViolationOrder},
		{"wrong rank", func(p *models.RankedPage) { p.Restaurants[2].Rank = 9 }, ViolationRank},
		{"top tier leak", func(p *models.RankedPage) { p.Restaurants[2].IsTopTier = true }, ViolationTopTier},
		{"missing top tier", func(p *models.RankedPage) { p.Restaurants[0].IsTopTier = false }, ViolationTopTier},
		{"inconsistent flags", func(p *models.RankedPage) { p.Pagination.HasNext = false }, ViolationPagination},
		{"oversized page", func(p *models.RankedPage) {
			p.Restaurants = append(p.Restaurants, p.Restaurants[2])
		}, ViolationPageSize},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			page := good()
			tt.mutate(page)
			violations := VerifyPage(page)
			if tt.wantKind == "" {
				if len(violations) != 0 {
					t.Errorf("VerifyPage() = %v, want none", violations)
				}
				return
			}
			found := false
			for _, v := range violations {
				if v.Kind == tt.wantKind {
					found = true
				}
			}
			if !found {
				t.Errorf("VerifyPage() = %v, want a %s violation", violations, tt.wantKind)
			}
		})
	}

	if got := VerifyPage(nil); got != nil {
		t.Errorf("VerifyPage(nil) = %v, want nil", got)
	}
}
