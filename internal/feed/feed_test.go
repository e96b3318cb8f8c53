// Tastesync - Personalization and Recommendation Sync Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tastesync

package feed

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"github.com/tomtom215/tastesync/internal/backend"
	"github.com/tomtom215/tastesync/internal/backend/backendtest"
	"github.com/tomtom215/tastesync/internal/config"
	"github.com/tomtom215/tastesync/internal/events"
	"github.com/tomtom215/tastesync/internal/metrics"
	"github.com/tomtom215/tastesync/internal/models"
	"github.com/tomtom215/tastesync/internal/recommend"
)

var visitor = models.Identity{DeviceToken: "web_feedtest"}

func testConfig() Config {
	return Config{PageSize: 10, PageCacheSize: 8, PageCacheTTL: time.Minute, VerifyRanking: true}
}

func newBackendFeed(t *testing.T) (*Feed, *backendtest.Server, *events.Recorder) {
	t.Helper()
	srv := backendtest.New()
	t.Cleanup(srv.Close)
	api := backend.NewClient(&config.BackendConfig{URL: srv.URL(), Timeout: 2 * time.Second})
	rec := &events.Recorder{}
	return New(api, rec, testConfig(), zerolog.New(io.Discard)), srv, rec
}

func TestPaginationWalk(t *testing.T) {
	t.Parallel()
	f, srv, rec := newBackendFeed(t)
	ctx := context.Background()

	// before totals are known the first request is page 1
	page, err := f.FetchPage(ctx, 5, visitor, Filters{})
	if err != nil {
		t.Fatalf("FetchPage() error = %v", err)
	}
	want := models.Pagination{CurrentPage: 1, TotalPages: 3, TotalItems: 24, ItemsPerPage: 10, HasNext: true}
	if page.Pagination != want {
		t.Fatalf("Pagination = %+v, want %+v", page.Pagination, want)
	}

	for _, wantPage := range []int{2, 3} {
		page, err = f.Next(ctx, visitor)
		if err != nil {
			t.Fatalf("Next() error = %v", err)
		}
		if page.Pagination.CurrentPage != wantPage {
			t.Errorf("Next() page = %d, want %d", page.Pagination.CurrentPage, wantPage)
		}
	}
	if len(page.Restaurants) != 4 || page.Pagination.HasNext || !page.Pagination.HasPrev {
		t.Errorf("last page = %d items %+v", len(page.Restaurants), page.Pagination)
	}

	calls := srv.Calls(backendtest.RouteRanked)
	if _, err := f.Next(ctx, visitor); err != nil {
		t.Fatalf("Next() at the end error = %v", err)
	}
	if srv.Calls(backendtest.RouteRanked) != calls {
		t.Error("Next() at the last page should not call the backend")
	}

	// page 2 was cached on the way forward
	page, err = f.Prev(ctx, visitor)
	if err != nil {
		t.Fatalf("Prev() error = %v", err)
	}
	if page.Pagination.CurrentPage != 2 || srv.Calls(backendtest.RouteRanked) != calls {
		t.Errorf("Prev() page = %d with %d calls, want page 2 from cache", page.Pagination.CurrentPage, srv.Calls(backendtest.RouteRanked)-calls)
	}

	// once totals are known out-of-range pages are clamped
	page, err = f.FetchPage(ctx, 99, visitor, Filters{})
	if err != nil || page.Pagination.CurrentPage != 3 {
		t.Errorf("FetchPage(99) = %v, %v, want page 3", page, err)
	}
	page, err = f.FetchPage(ctx, -1, visitor, Filters{})
	if err != nil || page.Pagination.CurrentPage != 1 {
		t.Errorf("FetchPage(-1) = %v, %v, want page 1", page, err)
	}

	st := f.State()
	if !st.Page.Pagination.Consistent() || len(st.Violations) != 0 {
		t.Errorf("State() = %+v", st)
	}
	if rec.Count(events.TopicFeedUpdated) == 0 {
		t.Error("expected feed.updated events")
	}
}

func TestTopTierOnlyOnFirstPage(t *testing.T) {
	t.Parallel()
	f, _, _ := newBackendFeed(t)
	ctx := context.Background()

	first, err := f.FetchPage(ctx, 1, visitor, Filters{})
	if err != nil {
		t.Fatalf("FetchPage() error = %v", err)
	}
	for i, item := range first.Restaurants {
		if item.IsTopTier != (i < models.TopTierSize) || item.Rank != i+1 {
			t.Errorf("item %d rank=%d top=%v", i, item.Rank, item.IsTopTier)
		}
	}

	second, err := f.Next(ctx, visitor)
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	for _, item := range second.Restaurants {
		if item.IsTopTier {
			t.Errorf("item rank %d on page 2 flagged top tier", item.Rank)
		}
	}

	top, err := f.TopTier(ctx, visitor)
	if err != nil {
		t.Fatalf("TopTier() error = %v", err)
	}
	if len(top.Restaurants) != models.TopTierSize || top.Restaurants[0].ID != first.Restaurants[0].ID {
		t.Errorf("TopTier() = %d items, first %v", len(top.Restaurants), top.Restaurants[0].ID)
	}
}

func TestFilterChangeResetsPage(t *testing.T) {
	t.Parallel()
	f, _, _ := newBackendFeed(t)
	ctx := context.Background()

	if _, err := f.FetchPage(ctx, 1, visitor, Filters{}); err != nil {
		t.Fatalf("FetchPage() error = %v", err)
	}
	if _, err := f.Next(ctx, visitor); err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if f.CurrentPage() != 2 {
		t.Fatalf("CurrentPage() = %d, want 2", f.CurrentPage())
	}

	page, err := f.FetchPage(ctx, 2, visitor, Filters{Query: "seafood pantai"})
	if err != nil {
		t.Fatalf("FetchPage() with filter error = %v", err)
	}
	if page.Pagination.CurrentPage != 1 || f.CurrentPage() != 1 {
		t.Errorf("page after filter change = %d, want 1", page.Pagination.CurrentPage)
	}
	if page.Query != "seafood pantai" || f.State().Filters.Query != "seafood pantai" {
		t.Errorf("query = %q, want the new filter", page.Query)
	}
	if len(page.Restaurants) == 0 || page.Restaurants[0].SimilarityScore <= 0 {
		t.Errorf("filtered ranking should score matches, got %+v", page.Restaurants)
	}
}

func TestStaleWhileRevalidate(t *testing.T) {
	t.Parallel()
	f, srv, _ := newBackendFeed(t)
	ctx := context.Background()

	loaded, err := f.FetchPage(ctx, 1, visitor, Filters{})
	if err != nil {
		t.Fatalf("FetchPage() error = %v", err)
	}

	// every attempt fails, so transport-level retries of the GET fail too
	srv.FailAlways(backendtest.RouteRanked, backendtest.Failure{Drop: true})
	if _, err := f.Refresh(ctx, visitor); !backend.IsNetwork(err) {
		t.Fatalf("Refresh() error = %v, want network failure", err)
	}

	st := f.State()
	if st.Page != loaded || !st.Stale || !backend.IsNetwork(st.LastErr) || st.Failed() {
		t.Errorf("State() = %+v, want the old page marked stale", st)
	}

	srv.Recover(backendtest.RouteRanked)

	if _, err := f.Refresh(ctx, visitor); err != nil {
		t.Fatalf("Refresh() after recovery error = %v", err)
	}
	if st := f.State(); st.Stale || st.LastErr != nil {
		t.Errorf("State() after recovery = %+v", st)
	}
}

func TestFailedNextKeepsPosition(t *testing.T) {
	t.Parallel()
	f, srv, _ := newBackendFeed(t)
	ctx := context.Background()

	if _, err := f.FetchPage(ctx, 1, visitor, Filters{}); err != nil {
		t.Fatalf("FetchPage() error = %v", err)
	}

	srv.FailNext(backendtest.RouteRanked, backendtest.Failure{Status: http.StatusInternalServerError, Message: "db down"})
	if _, err := f.Next(ctx, visitor); !backend.IsRejected(err) {
		t.Fatalf("Next() error = %v, want rejection", err)
	}
	st := f.State()
	if st.Page.Pagination.CurrentPage != 1 || !st.Stale || st.RequestedPage != 2 {
		t.Errorf("State() after failed Next = page %d stale %v requested %d, want page 1 stale requested 2",
			st.Page.Pagination.CurrentPage, st.Stale, st.RequestedPage)
	}
	if f.CurrentPage() != 1 {
		t.Errorf("CurrentPage() = %d, want the page shown (1)", f.CurrentPage())
	}

	page, err := f.Next(ctx, visitor)
	if err != nil {
		t.Fatalf("Next() retry error = %v", err)
	}
	if page.Pagination.CurrentPage != 2 {
		t.Errorf("Next() retry landed on page %d, want 2", page.Pagination.CurrentPage)
	}

	srv.FailNext(backendtest.RouteRanked, backendtest.Failure{Status: http.StatusInternalServerError, Message: "db down"})
	if _, err := f.Prev(ctx, visitor); err == nil {
		t.Fatal("Prev() error = nil, want failure")
	}
	page, err = f.Prev(ctx, visitor)
	if err != nil || page.Pagination.CurrentPage != 1 {
		t.Errorf("Prev() retry = %v, %v, want page 1", page, err)
	}
}

func TestFailedFilterChangeKeepsPage(t *testing.T) {
	t.Parallel()
	f, srv, _ := newBackendFeed(t)
	ctx := context.Background()

	loaded, err := f.FetchPage(ctx, 1, visitor, Filters{})
	if err != nil {
		t.Fatalf("FetchPage() error = %v", err)
	}
	if _, err := f.Next(ctx, visitor); err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	second := f.State().Page

	calls := srv.Calls(backendtest.RouteRanked)
	srv.FailNext(backendtest.RouteRanked, backendtest.Failure{Status: http.StatusServiceUnavailable, Message: "sibuk"})
	if _, err := f.SetFilters(ctx, visitor, Filters{Query: "pizza"}); !backend.IsRejected(err) {
		t.Fatalf("SetFilters() error = %v, want rejection", err)
	}

	st := f.State()
	if st.Page != second || !st.Stale || st.Failed() {
		t.Errorf("State() = page-nil %v stale %v failed %v, want the old page marked stale",
			st.Page == nil, st.Stale, st.Failed())
	}
	if st.Filters.Query != "pizza" {
		t.Errorf("Filters.Query = %q, want the new filter kept for retry", st.Filters.Query)
	}

	// a retry uses the new filter from page 1, even via Next
	page, err := f.Next(ctx, visitor)
	if err != nil {
		t.Fatalf("Next() retry error = %v", err)
	}
	if page.Query != "pizza" || page.Pagination.CurrentPage != 1 {
		t.Errorf("retry = query %q page %d, want pizza page 1", page.Query, page.Pagination.CurrentPage)
	}

	// the page cache was purged by the filter change
	if _, err := f.FetchPage(ctx, 1, visitor, Filters{}); err != nil {
		t.Fatalf("FetchPage() error = %v", err)
	}
	if got := srv.Calls(backendtest.RouteRanked) - calls; got != 3 {
		t.Errorf("ranked calls = %d, want 3 with no cache hit for the old filter", got)
	}
	if f.State().Page == loaded {
		t.Error("page 1 was served from a purged cache")
	}
}

func TestFailureWithoutPage(t *testing.T) {
	t.Parallel()
	f, srv, rec := newBackendFeed(t)

	srv.FailNext(backendtest.RouteRanked, backendtest.Failure{Status: 500, Message: "Terjadi kesalahan"})
	if _, err := f.FetchPage(context.Background(), 1, visitor, Filters{}); !backend.IsRejected(err) {
		t.Fatalf("FetchPage() error = %v, want rejection", err)
	}

	st := f.State()
	if !st.Failed() || st.Stale || st.Mode() != ModeEmpty {
		t.Errorf("State() = %+v, want the error state", st)
	}

	evts := rec.Events(events.TopicFeedUpdated)
	var last events.FeedUpdated
	if err := evts[len(evts)-1].Decode(&last); err != nil || last.Error != "Terjadi kesalahan" {
		t.Errorf("last feed event = %+v, %v", last, err)
	}
}

func TestPersonalizedMode(t *testing.T) {
	t.Parallel()
	f, srv, _ := newBackendFeed(t)
	ctx := context.Background()

	if _, err := f.FetchPage(ctx, 1, visitor, Filters{}); err != nil {
		t.Fatalf("FetchPage() error = %v", err)
	}
	if f.State().Mode() != ModePopular {
		t.Errorf("Mode() = %s, want popular for a new visitor", f.State().Mode())
	}

	id := models.Identity{DeviceToken: visitor.DeviceToken, SessionID: "sess-1"}
	srv.Seed("sess-1", visitor.DeviceToken, [2]string{"mau makan Mexican di Kuta", "ok"})

	page, err := f.Refresh(ctx, id)
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if !page.Personalized || f.State().Mode() != ModePersonalized {
		t.Errorf("Mode() = %s, want personalized", f.State().Mode())
	}
}

// gatedRemote serves ranked pages from a fixed list, each call waiting for
// its own gate.
type gatedRemote struct {
	ranked []models.RecommendationItem

	mu      sync.Mutex
	calls   int
	started chan int
	gates   map[int]chan error
	mutate  func(*models.RankedPage)
}

func newGatedRemote() *gatedRemote {
	return &gatedRemote{
		ranked:  recommend.Rank(recommend.NewEngine(recommend.DemoCatalog(), zerolog.New(io.Discard)).RankAll("", recommend.Profile{})),
		started: make(chan int, 8),
		gates:   make(map[int]chan error),
	}
}

func (g *gatedRemote) gate(n int) chan error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.gates[n] == nil {
		g.gates[n] = make(chan error, 1)
	}
	return g.gates[n]
}

func (g *gatedRemote) GetRankedRecommendations(ctx context.Context, q models.RankedQuery) (*models.RankedPage, error) {
	g.mu.Lock()
	g.calls++
	n := g.calls
	g.mu.Unlock()

	ch := g.gate(n)
	g.started <- n
	if err := <-ch; err != nil {
		return nil, err
	}
	items, p := recommend.Paginate(g.ranked, q.Page, q.Limit)
	page := &models.RankedPage{Restaurants: items, Pagination: p, Query: q.Query}
	if g.mutate != nil {
		g.mutate(page)
	}
	return page, nil
}

func (g *gatedRemote) GetTopTier(context.Context, models.Identity, string) (*models.TopTierResult, error) {
	return &models.TopTierResult{Restaurants: recommend.TopTier(g.ranked)}, nil
}

func (g *gatedRemote) GetCategories(context.Context) (*models.CategoryList, error) {
	return &models.CategoryList{}, nil
}

func (g *gatedRemote) GetTrending(context.Context, int) (*models.TrendingResult, error) {
	return &models.TrendingResult{}, nil
}

func waitStarted(t *testing.T, g *gatedRemote) {
	t.Helper()
	select {
	case <-g.started:
	case <-time.After(2 * time.Second):
		t.Fatal("fetch never started")
	}
}

func TestOutOfOrderResponses(t *testing.T) {
	t.Parallel()
	remote := newGatedRemote()
	f := New(remote, nil, testConfig(), zerolog.New(io.Discard))
	ctx := context.Background()

	older := make(chan error, 1)
	go func() {
		_, err := f.FetchPage(ctx, 1, visitor, Filters{Query: "a"})
		older <- err
	}()
	waitStarted(t, remote)

	newer := make(chan error, 1)
	go func() {
		_, err := f.FetchPage(ctx, 1, visitor, Filters{Query: "b"})
		newer <- err
	}()
	waitStarted(t, remote)

	remote.gate(2) <- nil
	if err := <-newer; err != nil {
		t.Fatalf("newer FetchPage() error = %v", err)
	}
	remote.gate(1) <- nil
	if err := <-older; !errors.Is(err, ErrSuperseded) {
		t.Fatalf("older FetchPage() error = %v, want ErrSuperseded", err)
	}

	if st := f.State(); st.Page.Query != "b" || st.Filters.Query != "b" {
		t.Errorf("State() shows query %q, want b", st.Page.Query)
	}
}

func TestCancelIgnoresInFlight(t *testing.T) {
	t.Parallel()
	remote := newGatedRemote()
	f := New(remote, nil, testConfig(), zerolog.New(io.Discard))

	done := make(chan error, 1)
	go func() {
		_, err := f.FetchPage(context.Background(), 1, visitor, Filters{})
		done <- err
	}()
	waitStarted(t, remote)
	if !f.State().Loading {
		t.Error("Loading should be set while a fetch is in flight")
	}

	f.Cancel()
	remote.gate(1) <- nil

	if err := <-done; !errors.Is(err, ErrSuperseded) {
		t.Errorf("FetchPage() error = %v, want ErrSuperseded", err)
	}
	if st := f.State(); st.Page != nil || st.Loading {
		t.Errorf("State() = %+v, want untouched after Cancel", st)
	}
}

func TestContractViolationsAreReportedNotFixed(t *testing.T) {
	t.Parallel()
	remote := newGatedRemote()
	remote.mutate = func(p *models.RankedPage) {
		p.Restaurants[0], p.Restaurants[1] = p.Restaurants[1], p.Restaurants[0]
	}
	f := New(remote, nil, testConfig(), zerolog.New(io.Discard))

	before := testutil.ToFloat64(metrics.RankingViolations.WithLabelValues(recommend.ViolationRank))
	remote.gate(1) <- nil
	page, err := f.FetchPage(context.Background(), 1, visitor, Filters{})
	<-remote.started
	if err != nil {
		t.Fatalf("FetchPage() error = %v", err)
	}

	if page.Restaurants[0].Rank != 2 {
		t.Errorf("first item rank = %d, the feed must not re-sort", page.Restaurants[0].Rank)
	}
	if len(f.State().Violations) == 0 {
		t.Error("expected contract violations")
	}
	if got := testutil.ToFloat64(metrics.RankingViolations.WithLabelValues(recommend.ViolationRank)); got <= before {
		t.Errorf("rank violations metric = %v, want > %v", got, before)
	}
}

func TestClear(t *testing.T) {
	t.Parallel()
	f, srv, _ := newBackendFeed(t)
	ctx := context.Background()

	if _, err := f.FetchPage(ctx, 1, visitor, Filters{Query: "kopi"}); err != nil {
		t.Fatalf("FetchPage() error = %v", err)
	}
	f.Clear()

	st := f.State()
	if st.Page != nil || st.Filters.Query != "" || st.RequestedPage != 1 || st.Mode() != ModeEmpty {
		t.Errorf("State() after Clear = %+v", st)
	}

	calls := srv.Calls(backendtest.RouteRanked)
	if _, err := f.FetchPage(ctx, 1, visitor, Filters{Query: "kopi"}); err != nil {
		t.Fatalf("FetchPage() error = %v", err)
	}
	if srv.Calls(backendtest.RouteRanked) != calls+1 {
		t.Error("Clear should purge the page cache")
	}
}

func TestMetadataPassThrough(t *testing.T) {
	t.Parallel()
	f, _, _ := newBackendFeed(t)
	ctx := context.Background()

	cats, err := f.Categories(ctx)
	if err != nil {
		t.Fatalf("Categories() error = %v", err)
	}
	if len(cats.Categories) == 0 || cats.Categories[0].Key != "all" {
		t.Errorf("Categories() = %+v", cats)
	}

	trending, err := f.Trending(ctx, 3)
	if err != nil {
		t.Fatalf("Trending() error = %v", err)
	}
	if len(trending.Restaurants) != 3 || trending.Period != "7_days" {
		t.Errorf("Trending() = %+v", trending)
	}
}
