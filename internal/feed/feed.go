// Tastesync - Personalization and Recommendation Sync Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tastesync

// Package feed implements the paginated, ranked recommendation feed.
//
// The backend owns the ranking; the feed never re-sorts. Pages are checked
// against the ranking contract and violations are logged and counted.
//
// Every fetch takes a sequence number and only the newest fetch may change
// state. When a fetch fails after a page was shown, that page stays visible
// and is marked stale.
package feed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/tastesync/internal/backend"
	"github.com/tomtom215/tastesync/internal/cache"
	"github.com/tomtom215/tastesync/internal/events"
	"github.com/tomtom215/tastesync/internal/metrics"
	"github.com/tomtom215/tastesync/internal/models"
	"github.com/tomtom215/tastesync/internal/recommend"
)

// ErrSuperseded is returned for a response overtaken by a newer fetch or by Cancel.
var ErrSuperseded = errors.New("feed: response superseded")

// Mode is the indicator shown next to the feed.
type Mode string

const (
	ModePersonalized Mode = "personalized"
	ModePopular      Mode = "popular"
	ModeEmpty        Mode = "empty"
)

// Remote is the part of the backend API the feed uses.
type Remote interface {
	GetRankedRecommendations(ctx context.Context, q models.RankedQuery) (*models.RankedPage, error)
	GetTopTier(ctx context.Context, id models.Identity, query string) (*models.TopTierResult, error)
	GetCategories(ctx context.Context) (*models.CategoryList, error)
	GetTrending(ctx context.Context, limit int) (*models.TrendingResult, error)
}

// Filters narrow the ranking.
type Filters struct {
	Query string
}

// Config configures page size, the page cache and contract checks.
type Config struct {
	PageSize      int
	PageCacheSize int
	PageCacheTTL  time.Duration
	VerifyRanking bool
}

// State is a snapshot of the feed.
type State struct {
	// Page is the last page shown, nil until one loaded.
	Page *models.RankedPage

	// RequestedPage is the page of the newest fetch. After a failed fetch
	// it differs from the page shown.
	RequestedPage int

	Filters Filters
	Loading bool

	// Stale is set when the newest fetch failed and Page is older data.
	Stale   bool
	LastErr error

	// Violations lists the ranking contract breaches of Page.
	Violations []recommend.Violation
}

// Mode maps the page to the indicator mode.
func (s State) Mode() Mode {
	switch {
	case s.Page == nil || len(s.Page.Restaurants) == 0:
		return ModeEmpty
	case s.Page.Personalized:
		return ModePersonalized
	default:
		return ModePopular
	}
}

// Failed reports whether the feed has nothing to show because of an error.
func (s State) Failed() bool {
	return s.Page == nil && s.LastErr != nil
}

// pageKey identifies a cached page within one ranking generation.
type pageKey struct {
	generation uint64
	identity   models.Identity
	query      string
	page       int
}

// Feed is the recommendation feed component.
type Feed struct {
	remote    Remote
	publisher events.Publisher
	logger    zerolog.Logger
	cfg       Config
	pages     *cache.LRU[pageKey, *models.RankedPage]

	mu         sync.Mutex
	seq        uint64
	generation uint64
	state      State
	// shown holds the filters Page was fetched with.
	shown Filters
}

// New creates an empty feed.
func New(remote Remote, publisher events.Publisher, cfg Config, logger zerolog.Logger) *Feed {
	if cfg.PageSize < 1 {
		cfg.PageSize = 20
	}
	if cfg.PageSize > 100 {
		cfg.PageSize = 100
	}
	return &Feed{
		remote:    remote,
		publisher: events.OrDiscard(publisher),
		logger:    logger.With().Str("component", "feed").Logger(),
		cfg:       cfg,
		pages:     cache.NewLRU[pageKey, *models.RankedPage](cfg.PageCacheSize, cfg.PageCacheTTL),
		state:     State{RequestedPage: 1},
	}
}

// FetchPage loads page for id. A change of filters restarts at page 1.
// Once totals are known the page is clamped to [1, TotalPages]; before that
// page 1 is fetched.
func (f *Feed) FetchPage(ctx context.Context, page int, id models.Identity, filters Filters) (*models.RankedPage, error) {
	return f.fetch(ctx, page, id, filters, true)
}

// Next loads the page after the current one. At the last page it returns
// the current page without a request.
func (f *Feed) Next(ctx context.Context, id models.Identity) (*models.RankedPage, error) {
	f.mu.Lock()
	page, ok := f.shownPageLocked()
	filters := f.state.Filters
	if ok && !f.state.Page.Pagination.HasNext {
		shown := f.state.Page
		f.mu.Unlock()
		return shown, nil
	}
	f.mu.Unlock()
	return f.fetch(ctx, page+1, id, filters, true)
}

// Prev loads the page before the current one. At page 1 it returns the
// current page without a request.
func (f *Feed) Prev(ctx context.Context, id models.Identity) (*models.RankedPage, error) {
	f.mu.Lock()
	page, ok := f.shownPageLocked()
	filters := f.state.Filters
	if ok && !f.state.Page.Pagination.HasPrev {
		shown := f.state.Page
		f.mu.Unlock()
		return shown, nil
	}
	f.mu.Unlock()
	return f.fetch(ctx, page-1, id, filters, true)
}

// Refresh reloads the current page from the backend, dropping cached pages.
func (f *Feed) Refresh(ctx context.Context, id models.Identity) (*models.RankedPage, error) {
	f.mu.Lock()
	f.invalidate()
	page, _ := f.shownPageLocked()
	filters := f.state.Filters
	f.mu.Unlock()
	return f.fetch(ctx, page, id, filters, false)
}

// SetFilters changes the filters and loads page 1.
func (f *Feed) SetFilters(ctx context.Context, id models.Identity, filters Filters) (*models.RankedPage, error) {
	return f.fetch(ctx, 1, id, filters, true)
}

// Cancel makes every in-flight fetch ignorable. Transports are not aborted.
func (f *Feed) Cancel() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	f.state.Loading = false
}

// Clear returns the feed to its initial state.
func (f *Feed) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	f.invalidate()
	f.state = State{RequestedPage: 1}
	f.shown = Filters{}
}

// State returns a snapshot of the feed.
func (f *Feed) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	st := f.state
	st.Violations = append([]recommend.Violation(nil), f.state.Violations...)
	return st
}

// CurrentPage returns the number of the page shown, or the requested page
// while none is.
func (f *Feed) CurrentPage() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	page, _ := f.shownPageLocked()
	return page
}

// shownPageLocked returns the page navigation counts from: the page shown,
// if it matches the current filters, else the requested page. Caller holds mu.
func (f *Feed) shownPageLocked() (int, bool) {
	if f.state.Page == nil || f.shown != f.state.Filters {
		return f.state.RequestedPage, false
	}
	if p := f.state.Page.Pagination.CurrentPage; p >= 1 {
		return p, true
	}
	return 1, true
}

// invalidate starts a new ranking generation. Caller holds mu.
func (f *Feed) invalidate() {
	f.generation++
	f.pages.Clear()
}

// clamp fits page into the known totals of the current filters.
// Caller holds mu.
func (f *Feed) clamp(page int) int {
	if f.state.Page == nil || f.shown != f.state.Filters {
		return 1
	}
	total := f.state.Page.Pagination.TotalPages
	if page > total {
		page = total
	}
	if page < 1 {
		page = 1
	}
	return page
}

func (f *Feed) fetch(ctx context.Context, page int, id models.Identity, filters Filters, useCache bool) (*models.RankedPage, error) {
	q := models.RankedQuery{
		DeviceToken: id.DeviceToken,
		SessionID:   id.SessionID,
		Limit:       f.cfg.PageSize,
		Query:       filters.Query,
	}

	f.mu.Lock()
	// The old page stays visible until page 1 of the new filters arrives.
	if filters != f.state.Filters {
		f.state.Filters = filters
		f.invalidate()
	}
	q.Page = f.clamp(page)

	if err := backend.Validate(backend.OpRanked, q); err != nil {
		f.mu.Unlock()
		return nil, err
	}

	f.seq++
	seq := f.seq
	f.state.RequestedPage = q.Page
	key := pageKey{generation: f.generation, identity: id, query: q.Query, page: q.Page}

	if useCache {
		if cached, ok := f.pages.Get(key); ok {
			metrics.FeedPageCache.WithLabelValues("hit").Inc()
			f.applyLocked(cached, filters)
			st := f.state
			f.mu.Unlock()
			f.publish(ctx, st)
			return cached, nil
		}
		metrics.FeedPageCache.WithLabelValues("miss").Inc()
	}
	f.state.Loading = true
	f.mu.Unlock()

	result, err := f.remote.GetRankedRecommendations(ctx, q)

	f.mu.Lock()
	if seq != f.seq {
		f.mu.Unlock()
		metrics.StaleResponsesDropped.WithLabelValues("feed").Inc()
		f.logger.Debug().Uint64("seq", seq).Int("page", q.Page).Msg("Dropping superseded feed response")
		return nil, ErrSuperseded
	}
	f.state.Loading = false
	if err != nil {
		f.state.LastErr = err
		f.state.Stale = f.state.Page != nil
		st := f.state
		f.mu.Unlock()

		f.logger.Warn().Err(err).Int("page", q.Page).Bool("stale", st.Stale).Msg("Feed fetch failed")
		f.publish(ctx, st)
		return nil, fmt.Errorf("fetch feed page %d: %w", q.Page, err)
	}

	f.applyLocked(result, filters)
	f.pages.Add(key, result)
	st := f.state
	f.mu.Unlock()

	f.publish(ctx, st)
	return result, nil
}

// applyLocked shows page and checks it against the ranking contract.
// Caller holds mu.
func (f *Feed) applyLocked(page *models.RankedPage, filters Filters) {
	f.state.Page = page
	f.shown = filters
	f.state.RequestedPage = page.Pagination.CurrentPage
	if f.state.RequestedPage < 1 {
		f.state.RequestedPage = 1
	}
	f.state.Loading = false
	f.state.Stale = false
	f.state.LastErr = nil
	f.state.Violations = nil

	if !f.cfg.VerifyRanking {
		return
	}
	violations := recommend.VerifyPage(page)
	for _, v := range violations {
		metrics.RankingViolations.WithLabelValues(v.Kind).Inc()
		f.logger.Warn().
			Str("kind", v.Kind).
			Int("index", v.Index).
			Str("detail", v.Detail).
			Int("page", page.Pagination.CurrentPage).
			Msg("Ranking contract violation")
	}
	f.state.Violations = violations
}

func (f *Feed) publish(ctx context.Context, st State) {
	evt := events.FeedUpdated{
		Mode:       string(st.Mode()),
		Stale:      st.Stale,
		Violations: len(st.Violations),
	}
	if st.Page != nil {
		evt.Page = st.Page.Pagination.CurrentPage
		evt.TotalPages = st.Page.Pagination.TotalPages
		evt.TotalItems = st.Page.Pagination.TotalItems
		evt.Personalized = st.Page.Personalized
	}
	if st.LastErr != nil {
		evt.Error = backend.UserMessage(st.LastErr)
	}
	if err := f.publisher.Publish(ctx, events.TopicFeedUpdated, evt); err != nil {
		f.logger.Warn().Err(err).Msg("Failed to publish feed update")
	}
}

// TopTier returns the globally highest-ranked items for id.
func (f *Feed) TopTier(ctx context.Context, id models.Identity) (*models.TopTierResult, error) {
	f.mu.Lock()
	query := f.state.Filters.Query
	f.mu.Unlock()
	return f.remote.GetTopTier(ctx, id, query)
}

// Categories returns the category metadata used to build query filters.
func (f *Feed) Categories(ctx context.Context) (*models.CategoryList, error) {
	return f.remote.GetCategories(ctx)
}

// Trending returns the most popular restaurants regardless of identity.
func (f *Feed) Trending(ctx context.Context, limit int) (*models.TrendingResult, error) {
	return f.remote.GetTrending(ctx, limit)
}
