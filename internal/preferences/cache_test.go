// Tastesync - Personalization and Recommendation Sync Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tastesync

package preferences

import (
	"context"
	"errors"
	"io"
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
)

// gatedRemote answers each GetPreferences call only when its gate is released.
type gatedRemote struct {
	mu      sync.Mutex
	calls   int
	started chan int
	gates   map[int]chan result
}

type result struct {
	summary *models.PreferenceSummary
	err     error
}

func newGatedRemote() *gatedRemote {
	return &gatedRemote{started: make(chan int, 8), gates: make(map[int]chan result)}
}

func (g *gatedRemote) gate(n int) chan result {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.gates[n] == nil {
		g.gates[n] = make(chan result, 1)
	}
	return g.gates[n]
}

func (g *gatedRemote) GetPreferences(ctx context.Context, _ models.Identity) (*models.PreferenceSummary, error) {
	g.mu.Lock()
	g.calls++
	n := g.calls
	g.mu.Unlock()

	ch := g.gate(n)
	g.started <- n
	select {
	case r := <-ch:
		return r.summary, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (g *gatedRemote) GetPreferenceSummary(context.Context) (*models.AggregateSummary, error) {
	return &models.AggregateSummary{TotalSessions: 1}, nil
}

func waitStarted(t *testing.T, g *gatedRemote) int {
	t.Helper()
	select {
	case n := <-g.started:
		return n
	case <-time.After(2 * time.Second):
		t.Fatal("request never started")
		return 0
	}
}

var visitor = models.Identity{DeviceToken: "web_0123456789abcdef0123456789abcdef"}

func TestRefreshLastRequestWins(t *testing.T) {
	t.Parallel()
	remote := newGatedRemote()
	cache := New(remote, nil, zerolog.New(io.Discard))
	ctx := context.Background()

	type outcome struct {
		summary *models.PreferenceSummary
		err     error
	}
	first := make(chan outcome, 1)
	second := make(chan outcome, 1)

	go func() {
		s, err := cache.Refresh(ctx, visitor)
		first <- outcome{s, err}
	}()
	waitStarted(t, remote)
	go func() {
		s, err := cache.Refresh(ctx, visitor)
		second <- outcome{s, err}
	}()
	waitStarted(t, remote)

	dropped := testutil.ToFloat64(metrics.StaleResponsesDropped.WithLabelValues("preferences"))

	// the newer request answers first
	remote.gate(2) <- result{summary: &models.PreferenceSummary{TotalConversations: 2}}
	if got := <-second; got.err != nil || got.summary.TotalConversations != 2 {
		t.Fatalf("second Refresh() = %+v", got)
	}
	remote.gate(1) <- result{summary: &models.PreferenceSummary{TotalConversations: 1}}
	if got := <-first; !errors.Is(got.err, ErrSuperseded) {
		t.Fatalf("first Refresh() error = %v, want ErrSuperseded", got.err)
	}

	if cur := cache.Current(); cur == nil || cur.TotalConversations != 2 {
		t.Errorf("Current() = %+v, want the newer snapshot", cur)
	}
	if got := testutil.ToFloat64(metrics.StaleResponsesDropped.WithLabelValues("preferences")); got < dropped+1 {
		t.Errorf("stale responses dropped = %v, want at least %v", got, dropped+1)
	}
}

func TestRefreshInOrderAppliesBoth(t *testing.T) {
	t.Parallel()
	remote := newGatedRemote()
	cache := New(remote, nil, zerolog.New(io.Discard))
	ctx := context.Background()

	done := make(chan error, 2)
	go func() { _, err := cache.Refresh(ctx, visitor); done <- err }()
	waitStarted(t, remote)
	go func() { _, err := cache.Refresh(ctx, visitor); done <- err }()
	waitStarted(t, remote)

	remote.gate(1) <- result{summary: &models.PreferenceSummary{TotalConversations: 1}}
	if err := <-done; err != nil {
		t.Fatalf("first Refresh() error = %v", err)
	}
	remote.gate(2) <- result{summary: &models.PreferenceSummary{TotalConversations: 2}}
	if err := <-done; err != nil {
		t.Fatalf("second Refresh() error = %v", err)
	}
	if cur := cache.Current(); cur.TotalConversations != 2 {
		t.Errorf("Current().TotalConversations = %d, want 2", cur.TotalConversations)
	}
}

func TestClearInvalidatesInFlight(t *testing.T) {
	t.Parallel()
	remote := newGatedRemote()
	cache := New(remote, nil, zerolog.New(io.Discard))

	done := make(chan error, 1)
	go func() { _, err := cache.Refresh(context.Background(), visitor); done <- err }()
	waitStarted(t, remote)

	cache.Clear()
	remote.gate(1) <- result{summary: &models.PreferenceSummary{TotalConversations: 5}}

	if err := <-done; !errors.Is(err, ErrSuperseded) {
		t.Errorf("Refresh() error = %v, want ErrSuperseded", err)
	}
	if cache.Current() != nil {
		t.Error("Current() should stay nil after Clear")
	}
}

func TestRefreshAgainstBackend(t *testing.T) {
	t.Parallel()
	srv := backendtest.New()
	t.Cleanup(srv.Close)
	api := backend.NewClient(&config.BackendConfig{URL: srv.URL(), Timeout: 2 * time.Second})

	rec := &events.Recorder{}
	cache := New(api, rec, zerolog.New(io.Discard))
	ctx := context.Background()

	id := models.Identity{DeviceToken: "web_a", SessionID: "sess-1"}
	srv.Seed("sess-1", "web_a", [2]string{"cari seafood di Senggigi", "ok"})

	summary, err := cache.Refresh(ctx, id)
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if summary.Empty() || len(summary.Raw) == 0 || summary.FetchedAt.IsZero() {
		t.Errorf("Refresh() = %+v, want a populated snapshot", summary)
	}
	if rec.Count(events.TopicPreferencesUpdated) != 1 {
		t.Errorf("preferences.updated events = %d, want 1", rec.Count(events.TopicPreferencesUpdated))
	}

	// failures keep the previous snapshot
	srv.FailAlways(backendtest.RoutePreferences, backendtest.Failure{Drop: true})
	if _, err := cache.Refresh(ctx, id); !backend.IsNetwork(err) {
		t.Fatalf("Refresh() error = %v, want network failure", err)
	}
	if cache.Current() != summary {
		t.Error("Current() changed after a failed refresh")
	}
	srv.Recover(backendtest.RoutePreferences)

	// an empty identity is rejected before dispatch
	calls := srv.Calls(backendtest.RoutePreferences)
	if _, err := cache.Refresh(ctx, models.Identity{}); !backend.IsValidation(err) {
		t.Errorf("Refresh(empty) error = %v, want validation failure", err)
	}
	if srv.Calls(backendtest.RoutePreferences) != calls {
		t.Error("an invalid identity must not reach the backend")
	}

	agg, err := cache.Summary(ctx)
	if err != nil {
		t.Fatalf("Summary() error = %v", err)
	}
	if agg.TotalConversations != 1 {
		t.Errorf("Summary().TotalConversations = %d, want 1", agg.TotalConversations)
	}
}
