// Tastesync - Personalization and Recommendation Sync Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tastesync

// Package backendtest provides an in-process recommendation backend for tests
// and local runs. It implements the full HTTP contract of the real backend on
// a chi router, ranks with recommend.Engine, and supports failure injection,
// per-call latency and call counting.
package backendtest

import (
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/tastesync/internal/logging"
	"github.com/tomtom215/tastesync/internal/models"
	"github.com/tomtom215/tastesync/internal/recommend"
)

// Route names used for failure injection, delays and call counts.
const (
	RouteChat              = "chat"
	RouteSessionHistory    = "session_history"
	RouteDeviceHistory     = "device_history"
	RouteReset             = "reset"
	RouteResetAll          = "reset_all"
	RoutePreferences       = "preferences"
	RoutePreferenceSummary = "preference_summary"
	RouteRanked            = "all_ranked"
	RouteTopTier           = "top5"
	RouteCategories        = "categories"
	RouteTrending          = "trending"
	RouteHealth            = "health"
)

// DefaultGreeting is the bot message returned when a session is opened.
const DefaultGreeting = "Halo! Saya asisten rekomendasi restoran Lombok. Mau makan apa hari ini?"

// naiveLayout is the timestamp layout the backend writes: UTC without offset.
const naiveLayout = "2006-01-02T15:04:05.999999"

// Failure describes an injected error.
type Failure struct {
	// Status is the HTTP status of the rejection. Ignored when Drop is set.
	Status int

	// Message is the envelope error text.
	Message string

	// Drop closes the connection without a response. net/http may retry
	// an idempotent request once on a new connection, so drops on GET routes
	// belong with FailAlways.
	Drop bool
}

// record is one stored exchange.
type record struct {
	sessionID   string
	deviceToken string
	userMessage string
	botResponse string
	timestamp   time.Time
}

// Server is a fake recommendation backend.
type Server struct {
	srv    *httptest.Server
	engine *recommend.Engine

	// Reply produces the bot answer to a user message.
	Reply func(message string) string

	mu       sync.Mutex
	records  []record
	sessions map[string]string // session_id -> device_token
	queued   map[string][]Failure
	sticky   map[string]Failure
	delays   map[string][]time.Duration
	calls    map[string]int
	now      func() time.Time
}

// New starts a fake backend over the demo catalog.
func New() *Server {
	return NewWithCatalog(recommend.DemoCatalog())
}

// NewWithCatalog starts a fake backend over catalog.
func NewWithCatalog(catalog []recommend.Restaurant) *Server {
	s := &Server{
		engine:   recommend.NewEngine(catalog, logging.Logger()),
		sessions: make(map[string]string),
		queued:   make(map[string][]Failure),
		sticky:   make(map[string]Failure),
		delays:   make(map[string][]time.Duration),
		calls:    make(map[string]int),
		now:      func() time.Time { return time.Now().UTC() },
	}
	s.Reply = func(message string) string {
		return "Berikut rekomendasi untuk \"" + message + "\"."
	}
	s.srv = httptest.NewServer(s.routes())
	return s
}

// URL returns the API base URL, including the /api prefix.
func (s *Server) URL() string {
	return s.srv.URL + "/api"
}

// Close shuts the server down.
func (s *Server) Close() {
	s.srv.CloseClientConnections()
	s.srv.Close()
}

// Engine returns the ranking engine.
func (s *Server) Engine() *recommend.Engine {
	return s.engine
}

// FailNext makes the next call to route fail with f.
func (s *Server) FailNext(route string, f Failure) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queued[route] = append(s.queued[route], f)
}

// FailAlways makes every call to route fail with f until Recover.
func (s *Server) FailAlways(route string, f Failure) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sticky[route] = f
}

// Recover clears injected failures of route.
func (s *Server) Recover(route string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sticky, route)
	delete(s.queued, route)
}

// Delay queues response latencies for route: the n-th call waits delays[n].
func (s *Server) Delay(route string, delays ...time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays[route] = append(s.delays[route], delays...)
}

// Calls returns how many requests route has received.
func (s *Server) Calls(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[route]
}

// Seed stores exchanges for a session as if they had been chatted.
func (s *Server) Seed(sessionID, deviceToken string, exchanges ...[2]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sessionID] = deviceToken
	for _, ex := range exchanges {
		s.records = append(s.records, record{
			sessionID:   sessionID,
			deviceToken: deviceToken,
			userMessage: ex[0],
			botResponse: ex[1],
			timestamp:   s.tick(),
		})
	}
}

// RecordCount returns the number of stored exchanges.
func (s *Server) RecordCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// HasSession reports whether the backend knows sessionID.
func (s *Server) HasSession(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sessions[sessionID]
	return ok
}

// tick returns a strictly increasing timestamp. Caller holds mu.
func (s *Server) tick() time.Time {
	t := s.now()
	if n := len(s.records); n > 0 && !t.After(s.records[n-1].timestamp) {
		t = s.records[n-1].timestamp.Add(time.Microsecond)
	}
	return t
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handle(RouteHealth, s.health))

		r.Post("/chat", s.handle(RouteChat, s.chat))
		r.Get("/chat/history/device/{deviceToken}", s.handle(RouteDeviceHistory, s.deviceHistory))
		r.Get("/chat/history/{sessionID}", s.handle(RouteSessionHistory, s.sessionHistory))
		r.Delete("/chat/reset", s.handle(RouteReset, s.reset))
		r.Delete("/chat/reset-all", s.handle(RouteResetAll, s.resetAll))

		r.Get("/user-preferences", s.handle(RoutePreferences, s.preferences))
		r.Get("/user-preferences/summary", s.handle(RoutePreferenceSummary, s.preferenceSummary))

		r.Get("/recommendations/all-ranked", s.handle(RouteRanked, s.allRanked))
		r.Get("/recommendations/top5", s.handle(RouteTopTier, s.topTier))
		r.Get("/recommendations/categories", s.handle(RouteCategories, s.categories))
		r.Get("/recommendations/trending", s.handle(RouteTrending, s.trending))
	})
	return r
}

// handle counts the call, applies queued latency and injected failures,
// then runs h.
func (s *Server) handle(route string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.calls[route]++
		var delay time.Duration
		if q := s.delays[route]; len(q) > 0 {
			delay, s.delays[route] = q[0], q[1:]
		}
		failure, failing := s.sticky[route]
		if q := s.queued[route]; len(q) > 0 {
			failure, failing = q[0], true
			s.queued[route] = q[1:]
		}
		s.mu.Unlock()

		if delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-r.Context().Done():
				timer.Stop()
				return
			}
		}

		if failing {
			if failure.Drop {
				dropConnection(w)
				return
			}
			status := failure.Status
			if status == 0 {
				status = http.StatusInternalServerError
			}
			writeJSON(w, status, models.Failure(failure.Message))
			return
		}
		h(w, r)
	}
}

func dropConnection(w http.ResponseWriter) {
	hj, ok := w.(http.Hijacker)
	if !ok {
		panic(http.ErrAbortHandler)
	}
	conn, _, err := hj.Hijack()
	if err != nil {
		panic(http.ErrAbortHandler)
	}
	_ = conn.Close()
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		logging.Error().Err(err).Msg("backendtest: marshal response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeData(w http.ResponseWriter, data interface{}) {
	env, err := models.Success(data)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, models.Failure(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, env)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, models.Failure(message))
}

func intParam(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"message": "Lombok restaurant recommendation API is running",
	})
}

type wireChatResult struct {
	BotResponse  string `json:"bot_response"`
	SessionID    string `json:"session_id"`
	Timestamp    string `json:"timestamp"`
	IsNewSession bool   `json:"is_new_session"`
}

// chat opens a session when none is given and answers with the greeting
// only; the message itself is not processed in that case.
func (s *Server) chat(w http.ResponseWriter, r *http.Request) {
	var req models.SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Request body harus berupa JSON")
		return
	}
	message := strings.TrimSpace(req.Message)
	if message == "" {
		writeError(w, http.StatusBadRequest, "Message tidak boleh kosong")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if req.SessionID == "" {
		id := uuid.NewString()
		s.sessions[id] = req.DeviceToken
		writeData(w, wireChatResult{
			BotResponse:  DefaultGreeting,
			SessionID:    id,
			Timestamp:    s.now().Format(naiveLayout),
			IsNewSession: true,
		})
		return
	}

	if _, ok := s.sessions[req.SessionID]; !ok {
		s.sessions[req.SessionID] = req.DeviceToken
	}
	rec := record{
		sessionID:   req.SessionID,
		deviceToken: req.DeviceToken,
		userMessage: message,
		botResponse: s.Reply(message),
		timestamp:   s.tick(),
	}
	s.records = append(s.records, rec)

	writeData(w, wireChatResult{
		BotResponse: rec.botResponse,
		SessionID:   rec.sessionID,
		Timestamp:   rec.timestamp.Format(naiveLayout),
	})
}

type wireRecord struct {
	UserMessage string `json:"user_message"`
	BotResponse string `json:"bot_response"`
	Timestamp   string `json:"timestamp"`
}

func (s *Server) sessionHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	limit := intParam(r, "limit", 0)
	offset := intParam(r, "offset", 0)

	s.mu.Lock()
	var out []wireRecord
	for _, rec := range s.records {
		if rec.sessionID == sessionID {
			out = append(out, wireRecord{
				UserMessage: rec.userMessage,
				BotResponse: rec.botResponse,
				Timestamp:   rec.timestamp.Format(naiveLayout),
			})
		}
	}
	s.mu.Unlock()

	if offset > 0 {
		if offset > len(out) {
			offset = len(out)
		}
		out = out[offset:]
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	if out == nil {
		out = []wireRecord{}
	}

	writeData(w, map[string]interface{}{
		"session_id":    sessionID,
		"message_count": len(out),
		"messages":      out,
	})
}

func (s *Server) deviceHistory(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "deviceToken")

	s.mu.Lock()
	counts := make(map[string]int)
	last := make(map[string]time.Time)
	for id, dev := range s.sessions {
		if _, seen := counts[id]; !seen && dev == token {
			counts[id] = 0
		}
	}
	for _, rec := range s.records {
		if rec.deviceToken == token {
			counts[rec.sessionID]++
			if rec.timestamp.After(last[rec.sessionID]) {
				last[rec.sessionID] = rec.timestamp
			}
		}
	}
	s.mu.Unlock()

	sessions := make([]map[string]interface{}, 0, len(counts))
	ids := make([]string, 0, len(counts))
	for id := range counts {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return last[ids[i]].After(last[ids[j]]) })
	for _, id := range ids {
		entry := map[string]interface{}{
			"session_id":    id,
			"message_count": counts[id],
			"last_activity": nil,
		}
		if t, ok := last[id]; ok {
			entry["last_activity"] = t.Format(naiveLayout)
		}
		sessions = append(sessions, entry)
	}

	writeData(w, map[string]interface{}{
		"device_token": token,
		"sessions":     sessions,
	})
}

type resetRequest struct {
	DeviceToken string `json:"device_token"`
	SessionID   string `json:"session_id"`
}

func (s *Server) reset(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || (req.DeviceToken == "" && req.SessionID == "") {
		writeError(w, http.StatusBadRequest, "device_token atau session_id diperlukan")
		return
	}

	s.mu.Lock()
	kept := s.records[:0]
	deleted := 0
	for _, rec := range s.records {
		if (req.SessionID != "" && rec.sessionID == req.SessionID) || (req.DeviceToken != "" && rec.deviceToken == req.DeviceToken) {
			deleted++
			continue
		}
		kept = append(kept, rec)
	}
	s.records = kept
	for id, dev := range s.sessions {
		if id == req.SessionID || (req.DeviceToken != "" && dev == req.DeviceToken) {
			delete(s.sessions, id)
		}
	}
	s.mu.Unlock()

	writeData(w, models.ResetResult{DeletedCount: deleted})
}

func (s *Server) resetAll(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	deleted := len(s.records)
	s.records = nil
	s.sessions = make(map[string]string)
	s.mu.Unlock()

	writeData(w, models.ResetResult{DeletedCount: deleted})
}

func (s *Server) preferences(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	writeData(w, s.summarize(q.Get("device_token"), q.Get("session_id")))
}

func (s *Server) preferenceSummary(w http.ResponseWriter, _ *http.Request) {
	all := s.summarize("", "")

	s.mu.Lock()
	sessions := make(map[string]bool)
	for _, rec := range s.records {
		sessions[rec.sessionID] = true
	}
	s.mu.Unlock()

	out := models.AggregateSummary{
		TotalSessions:      len(sessions),
		TotalConversations: all.TotalConversations,
		TopCuisine:         all.Summary.MostSearchedCuisine,
		TopLocation:        all.Summary.MostVisitedLocation,
	}
	if len(sessions) > 0 {
		avg := float64(all.TotalConversations) / float64(len(sessions))
		out.AvgMessagesPerSession = float64(int(avg*10+0.5)) / 10
	}
	writeData(w, out)
}

func (s *Server) identityProfile(r *http.Request) recommend.Profile {
	q := r.URL.Query()
	device, session := q.Get("device_token"), q.Get("session_id")
	if device == "" && session == "" {
		return recommend.Profile{}
	}
	return recommend.ProfileFromSummary(s.summarize(device, session), 3)
}

func (s *Server) allRanked(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("query"))
	page := intParam(r, "page", 1)
	limit := intParam(r, "limit", 20)

	profile := s.identityProfile(r)
	ranked := s.engine.RankAll(query, profile)
	items, pagination := recommend.Paginate(ranked, page, limit)

	writeData(w, models.RankedPage{
		Restaurants:  items,
		Pagination:   pagination,
		Query:        query,
		Personalized: !profile.Empty(),
		Algorithm:    recommend.Algorithm,
		TieBreaker:   recommend.TieBreaker,
	})
}

func (s *Server) topTier(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("query"))
	profile := s.identityProfile(r)
	writeData(w, models.TopTierResult{
		Restaurants:  recommend.TopTier(s.engine.RankAll(query, profile)),
		Query:        query,
		Personalized: !profile.Empty(),
	})
}

func (s *Server) categories(w http.ResponseWriter, _ *http.Request) {
	cats := s.engine.Categories()
	out := make([]models.Category, 0, len(cats)+1)
	out = append(out, models.Category{Key: "all", Label: "Semua", Count: s.engine.Len()})
	out = append(out, cats...)
	writeData(w, models.CategoryList{Categories: out})
}

func (s *Server) trending(w http.ResponseWriter, r *http.Request) {
	limit := intParam(r, "limit", 5)
	writeData(w, models.TrendingResult{
		Restaurants: s.engine.Trending(limit),
		Period:      "7_days",
		BasedOn:     "popularity and ratings",
	})
}
