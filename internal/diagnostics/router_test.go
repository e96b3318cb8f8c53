// Tastesync - Personalization and Recommendation Sync Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tastesync

package diagnostics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/goccy/go-json"

	"github.com/tomtom215/tastesync/internal/middleware"
)

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.RemoteAddr = "127.0.0.1:50000"
	h.ServeHTTP(rec, req)
	return rec
}

func TestReadiness(t *testing.T) {
	t.Parallel()
	var ready atomic.Bool
	h := NewRouter(Options{Ready: ready.Load})

	tests := []struct {
		ready      bool
		wantCode   int
		wantStatus string
	}{
		{false, http.StatusServiceUnavailable, "backend_unhealthy"},
		{true, http.StatusOK, "ready"},
	}
	for _, tt := range tests {
		ready.Store(tt.ready)
		rec := get(t, h, "/readyz")
		if rec.Code != tt.wantCode {
			t.Errorf("ready=%v: status = %d, want %d", tt.ready, rec.Code, tt.wantCode)
		}
		var body statusBody
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("Unmarshal() error = %v", err)
		}
		if body.Status != tt.wantStatus {
			t.Errorf("ready=%v: body status = %q, want %q", tt.ready, body.Status, tt.wantStatus)
		}
	}
}

func TestLivenessAndRequestID(t *testing.T) {
	t.Parallel()
	rec := get(t, NewRouter(Options{}), "/healthz")
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if rec.Header().Get(middleware.RequestIDHeader) == "" {
		t.Error("missing X-Request-ID")
	}
}

func TestStateRoute(t *testing.T) {
	t.Parallel()
	if rec := get(t, NewRouter(Options{}), "/state"); rec.Code != http.StatusNotFound {
		t.Errorf("/state without State func = %d, want 404", rec.Code)
	}

	h := NewRouter(Options{State: func() any {
		return map[string]any{"session_id": "s1", "messages": 3}
	}})
	rec := get(t, h, "/state")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if body["session_id"] != "s1" {
		t.Errorf("session_id = %v, want s1", body["session_id"])
	}
}

func TestMetricsExposition(t *testing.T) {
	t.Parallel()
	h := NewRouter(Options{})
	_ = get(t, h, "/healthz")
	rec := get(t, h, "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "tastesync_diagnostics_requests_total") {
		t.Error("metrics output lacks tastesync_diagnostics_requests_total")
	}
}

func TestRateLimit(t *testing.T) {
	t.Parallel()
	h := NewRouter(Options{RequestsPerMinute: 2})
	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		codes = append(codes, get(t, h, "/healthz").Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Errorf("status codes = %v, want [200 200 429]", codes)
	}
}
