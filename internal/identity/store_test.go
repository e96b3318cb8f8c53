// Tastesync - Personalization and Recommendation Sync Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tastesync

package identity

import (
	"context"
	"errors"
	"io"
	"regexp"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/tomtom215/tastesync/internal/events"
	"github.com/tomtom215/tastesync/internal/storage"
)

var tokenPattern = regexp.MustCompile(`^web_[0-9a-f]{32}$`)

type countingRefresher struct {
	mu      sync.Mutex
	reasons []string
}

func (r *countingRefresher) ScheduleRefresh(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reasons = append(r.reasons, reason)
}

func (r *countingRefresher) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.reasons)
}

// failingStore rejects batches so atomic writes can be tested.
type failingStore struct {
	storage.Store
}

func (failingStore) Apply(context.Context, *storage.Batch) error {
	return errors.New("disk full")
}

func newMemStore(t *testing.T) storage.Store {
	t.Helper()
	s, err := storage.OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestDeviceTokenIsIdempotent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	kv := newMemStore(t)

	first := New(kv, nil, zerolog.New(io.Discard))
	token, err := first.DeviceToken(ctx)
	if err != nil {
		t.Fatalf("DeviceToken() error = %v", err)
	}
	if !tokenPattern.MatchString(token) {
		t.Errorf("DeviceToken() = %q, want web_ + 32 hex", token)
	}

	for i := 0; i < 3; i++ {
		again, err := first.DeviceToken(ctx)
		if err != nil || again != token {
			t.Errorf("DeviceToken() call %d = %q, %v, want %q", i, again, err, token)
		}
	}

	// a restart reads the persisted token
	second := New(kv, nil, zerolog.New(io.Discard))
	reloaded, err := second.DeviceToken(ctx)
	if err != nil || reloaded != token {
		t.Errorf("DeviceToken() after restart = %q, %v, want %q", reloaded, err, token)
	}
}

func TestDeviceTokenConcurrentFirstUse(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := New(newMemStore(t), nil, zerolog.New(io.Discard))

	tokens := make([]string, 8)
	var wg sync.WaitGroup
	for i := range tokens {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tokens[i], _ = s.DeviceToken(ctx)
		}(i)
	}
	wg.Wait()

	for i, tok := range tokens {
		if tok != tokens[0] {
			t.Errorf("tokens[%d] = %q, want %q", i, tok, tokens[0])
		}
	}
}

func TestAdoptSession(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	kv := newMemStore(t)
	rec := &events.Recorder{}
	refresher := &countingRefresher{}

	s := New(kv, rec, zerolog.New(io.Discard))
	s.SetRefresher(refresher)

	if s.SessionID() != "" {
		t.Fatalf("SessionID() = %q before adoption, want empty", s.SessionID())
	}
	if err := s.AdoptSession(ctx, "sess-1"); err != nil {
		t.Fatalf("AdoptSession() error = %v", err)
	}
	if err := s.AdoptSession(ctx, "sess-1"); err != nil {
		t.Fatalf("AdoptSession() repeat error = %v", err)
	}

	if s.SessionID() != "sess-1" {
		t.Errorf("SessionID() = %q, want sess-1", s.SessionID())
	}
	if refresher.count() != 1 {
		t.Errorf("refreshes scheduled = %d, want 1", refresher.count())
	}
	if rec.Count(events.TopicSessionAdopted) != 1 {
		t.Errorf("session.adopted events = %d, want 1", rec.Count(events.TopicSessionAdopted))
	}

	got, err := storage.GetString(ctx, kv, storage.KeySessionID)
	if err != nil || got != "sess-1" {
		t.Errorf("persisted session = %q, %v, want sess-1", got, err)
	}

	if err := s.AdoptSession(ctx, ""); err == nil {
		t.Error("AdoptSession(\"\") should fail")
	}
}

func TestResetIdentity(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		rotate bool
	}{
		{"rotate token", true},
		{"keep token", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			kv := newMemStore(t)
			s := New(kv, nil, zerolog.New(io.Discard))

			before, _ := s.DeviceToken(ctx)
			_ = s.AdoptSession(ctx, "sess-1")

			if err := s.ResetIdentity(ctx, tt.rotate); err != nil {
				t.Fatalf("ResetIdentity() error = %v", err)
			}

			snap, err := New(kv, nil, zerolog.New(io.Discard)).Snapshot(ctx)
			if err != nil {
				t.Fatalf("Snapshot() error = %v", err)
			}
			if snap.SessionID != "" {
				t.Errorf("SessionID = %q after reset, want empty", snap.SessionID)
			}
			if rotated := snap.DeviceToken != before; rotated != tt.rotate {
				t.Errorf("token rotated = %v, want %v", rotated, tt.rotate)
			}
			if !tokenPattern.MatchString(snap.DeviceToken) {
				t.Errorf("DeviceToken = %q, want web_ + 32 hex", snap.DeviceToken)
			}
		})
	}
}

func TestResetIdentityFailureKeepsState(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	kv := newMemStore(t)

	s := New(kv, nil, zerolog.New(io.Discard))
	token, _ := s.DeviceToken(ctx)
	_ = s.AdoptSession(ctx, "sess-1")

	broken := New(failingStore{Store: kv}, nil, zerolog.New(io.Discard))
	if err := broken.ResetIdentity(ctx, true); err == nil {
		t.Fatal("ResetIdentity() should fail when the batch fails")
	}

	snap, err := broken.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if snap.DeviceToken != token || snap.SessionID != "sess-1" {
		t.Errorf("Snapshot() = %+v, want unchanged identity", snap)
	}
}
