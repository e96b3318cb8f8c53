// Tastesync - Personalization and Recommendation Sync Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tastesync

package recommend

import (
	"fmt"
	"sort"

	"github.com/tomtom215/tastesync/internal/models"
)

// Algorithm and TieBreaker name the ranking the backend reports.
const (
	Algorithm  = "cosine_similarity"
	TieBreaker = "rating_and_review_count"
)

// Violation kinds reported by VerifyPage.
const (
	ViolationOrder      = "order"
	ViolationRank       = "rank"
	ViolationTopTier    = "top_tier"
	ViolationPagination = "pagination"
	ViolationPageSize   = "page_size"
)

// Compare reports whether a ranks strictly ahead of b.
func Compare(a, b *models.RecommendationItem) bool {
	if a.SimilarityScore != b.SimilarityScore {
		return a.SimilarityScore > b.SimilarityScore
	}
	if a.Rating != b.Rating {
		return a.Rating > b.Rating
	}
	return a.ReviewCount > b.ReviewCount
}

// Rank sorts items in place and assigns Rank and IsTopTier.
// Items equal on every key keep their input order.
func Rank(items []models.RecommendationItem) []models.RecommendationItem {
	sort.SliceStable(items, func(i, j int) bool {
		return Compare(&items[i], &items[j])
	})
	for i := range items {
		items[i].Rank = i + 1
		items[i].IsTopTier = i < models.TopTierSize
	}
	return items
}

// Paginate slices one page out of a ranked list.
//
// page below 1 is treated as 1 and limit is clamped into [1, 100]. A page past
// the end yields no items but keeps the requested page number, which is what
// the backend does; callers normalize it.
func Paginate(ranked []models.RecommendationItem, page, limit int) ([]models.RecommendationItem, models.Pagination) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 1
	}
	if limit > 100 {
		limit = 100
	}

	total := len(ranked)
	totalPages := (total + limit - 1) / limit

	start := (page - 1) * limit
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}

	out := make([]models.RecommendationItem, end-start)
	copy(out, ranked[start:end])

	return out, models.Pagination{
		CurrentPage:  page,
		TotalPages:   totalPages,
		TotalItems:   total,
		ItemsPerPage: limit,
		HasNext:      page < totalPages,
		HasPrev:      page > 1,
	}
}

// TopTier returns the first models.TopTierSize items of a ranked list.
func TopTier(ranked []models.RecommendationItem) []models.RecommendationItem {
	n := models.TopTierSize
	if len(ranked) < n {
		n = len(ranked)
	}
	out := make([]models.RecommendationItem, n)
	copy(out, ranked[:n])
	return out
}

// Violation is one breach of the ranking contract found in a page.
type Violation struct {
	Kind   string
	Index  int
	Detail string
}

func (v Violation) String() string {
	return fmt.Sprintf("%s at %d: %s", v.Kind, v.Index, v.Detail)
}

// VerifyPage checks a backend page against the ranking contract:
// descending order, contiguous global ranks, top-tier flags consistent with
// rank, a page no larger than items_per_page, and consistent pagination flags.
func VerifyPage(page *models.RankedPage) []Violation {
	if page == nil {
		return nil
	}
	var out []Violation
	items := page.Restaurants
	p := page.Pagination

	if p.ItemsPerPage > 0 && len(items) > p.ItemsPerPage {
		out = append(out, Violation{
			Kind:   ViolationPageSize,
			Index:  len(items),
			Detail: fmt.Sprintf("%d items on a page of %d", len(items), p.ItemsPerPage),
		})
	}

	if p.HasNext != (p.CurrentPage < p.TotalPages) || p.HasPrev != (p.CurrentPage > 1) {
		out = append(out, Violation{
			Kind:   ViolationPagination,
			Detail: fmt.Sprintf("page %d/%d has_next=%v has_prev=%v", p.CurrentPage, p.TotalPages, p.HasNext, p.HasPrev),
		})
	}

	firstRank := 0
	if p.CurrentPage > 0 && p.ItemsPerPage > 0 {
		firstRank = (p.CurrentPage-1)*p.ItemsPerPage + 1
	}

	for i := range items {
		item := &items[i]
		if i > 0 && Compare(item, &items[i-1]) {
			out = append(out, Violation{
				Kind:   ViolationOrder,
				Index:  i,
				Detail: fmt.Sprintf("item %s ranks ahead of its predecessor %s", item.ID, items[i-1].ID),
			})
		}
		if item.Rank > 0 {
			if firstRank > 0 && item.Rank != firstRank+i {
				out = append(out, Violation{
					Kind:   ViolationRank,
					Index:  i,
					Detail: fmt.Sprintf("rank %d, want %d", item.Rank, firstRank+i),
				})
			}
			if wantTop := item.Rank <= models.TopTierSize; item.IsTopTier != wantTop {
				out = append(out, Violation{
					Kind:   ViolationTopTier,
					Index:  i,
					Detail: fmt.Sprintf("rank %d is_top5=%v", item.Rank, item.IsTopTier),
				})
			}
		}
	}
	return out
}
