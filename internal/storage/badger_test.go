// Tastesync - Personalization and Recommendation Sync Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tastesync

package storage

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *BadgerStore {
	t.Helper()
	s, err := OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestGetMissingKey(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	if _, err := s.Get(context.Background(), KeySessionID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
	got, err := GetString(context.Background(), s, KeySessionID)
	if err != nil || got != "" {
		t.Errorf("GetString() = %q, %v; want empty, nil", got, err)
	}
}

func TestPutReplacesWholeValue(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Put(ctx, KeyChatHistory, []byte(`[1,2,3]`)); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := s.Put(ctx, KeyChatHistory, []byte(`[4]`)); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	got, err := s.Get(ctx, KeyChatHistory)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !bytes.Equal(got, []byte(`[4]`)) {
		t.Errorf("Get() = %s, want [4]", got)
	}
}

func TestApplyBatch(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Put(ctx, KeySessionID, []byte("s1")); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	b := (&Batch{}).Put(KeyDeviceToken, []byte("web_new")).Delete(KeySessionID)
	if err := s.Apply(ctx, b); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	if tok, _ := GetString(ctx, s, KeyDeviceToken); tok != "web_new" {
		t.Errorf("device token = %q, want web_new", tok)
	}
	if _, err := s.Get(ctx, KeySessionID); !errors.Is(err, ErrNotFound) {
		t.Errorf("session id still present: %v", err)
	}
}

func TestDeleteAbsentKeyIsNoop(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	if err := s.Delete(context.Background(), KeyChatHistory, "never-written"); err != nil {
		t.Errorf("Delete() error = %v", err)
	}
}

func TestJSONHelpers(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	type record struct {
		Text string `json:"text"`
	}
	in := []record{{"halo"}, {"pizza di Kuta"}}
	if err := PutJSON(ctx, s, KeyChatHistory, in); err != nil {
		t.Fatalf("PutJSON() error = %v", err)
	}
	var out []record
	if err := GetJSON(ctx, s, KeyChatHistory, &out); err != nil {
		t.Fatalf("GetJSON() error = %v", err)
	}
	if len(out) != 2 || out[1].Text != "pizza di Kuta" {
		t.Errorf("GetJSON() = %+v", out)
	}
}

func TestClosedStore(t *testing.T) {
	t.Parallel()
	s, err := OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if err := s.Put(context.Background(), KeySessionID, []byte("x")); !errors.Is(err, ErrClosed) {
		t.Errorf("Put() after Close error = %v, want ErrClosed", err)
	}
}

func TestCancelledContext(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := s.Get(ctx, KeySessionID); !errors.Is(err, context.Canceled) {
		t.Errorf("Get() error = %v, want context.Canceled", err)
	}
}

func TestPersistsAcrossReopen(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "state")
	ctx := context.Background()

	s, err := Open(Config{Path: path})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := s.Put(ctx, KeyDeviceToken, []byte("web_abc")); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	s, err = Open(Config{Path: path})
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer s.Close()
	if tok, _ := GetString(ctx, s, KeyDeviceToken); tok != "web_abc" {
		t.Errorf("device token after reopen = %q, want web_abc", tok)
	}
}

func TestOpenRequiresPath(t *testing.T) {
	t.Parallel()
	if _, err := Open(Config{}); err == nil {
		t.Error("Open() without path should fail")
	}
}
