// Tastesync - Personalization and Recommendation Sync Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tastesync

// Package chathistory keeps the ordered conversation log, merges it with the
// backend copy on startup and persists it to local storage.
//
// # Ordering
//
// Messages are kept in the order they were sent or received and are never
// reordered. Remote history is expanded record by record, user line first.
//
// # Persistence
//
// Appends update memory synchronously. A background writer persists the whole
// sequence; bursts of appends collapse into one write. Flush waits for the
// writer to catch up.
package chathistory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tomtom215/tastesync/internal/events"
	"github.com/tomtom215/tastesync/internal/models"
	"github.com/tomtom215/tastesync/internal/storage"
)

// Load sources reported by LoadInitial.
const (
	SourceLocal    = "local"
	SourceRemote   = "remote"
	SourceGreeting = "greeting"
)

// ErrClosed is returned after Close.
var ErrClosed = errors.New("chathistory: store closed")

// Remote is the part of the backend API the history store uses.
type Remote interface {
	GetSessionHistory(ctx context.Context, sessionID string, opts models.HistoryOptions) (*models.SessionHistory, error)
	GetDeviceHistory(ctx context.Context, deviceToken string) (*models.DeviceHistory, error)
	ResetHistory(ctx context.Context, id models.Identity) (*models.ResetResult, error)
}

// Config holds the texts and limits of the store.
type Config struct {
	Greeting     string
	HistoryLimit int
}

// LoadResult describes where the initial conversation came from.
type LoadResult struct {
	Source string
	Count  int

	// RemoteErr is set when the remote fetch failed and the greeting was used instead.
	RemoteErr error
}

// Store is the chat history component.
type Store struct {
	kv        storage.Store
	remote    Remote
	publisher events.Publisher
	logger    zerolog.Logger
	cfg       Config
	now       func() time.Time

	mu        sync.Mutex
	messages  []Message
	version   uint64
	persisted uint64
	writeErr  error
	written   chan struct{}
	closed    bool

	// writeMu serializes durable writes so an older snapshot never lands
	// after a newer one.
	writeMu sync.Mutex

	dirty  chan struct{}
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a history store and starts its background writer.
func New(kv storage.Store, remote Remote, publisher events.Publisher, cfg Config, logger zerolog.Logger) *Store {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Store{
		kv:        kv,
		remote:    remote,
		publisher: events.OrDiscard(publisher),
		logger:    logger.With().Str("component", "chathistory").Logger(),
		cfg:       cfg,
		now:       time.Now,
		written:   make(chan struct{}),
		dirty:     make(chan struct{}, 1),
		cancel:    cancel,
	}
	s.wg.Add(1)
	go s.run(ctx)
	return s
}

// LoadInitial fills the log: from the local cache when it has messages,
// otherwise from the backend when a session is known, otherwise with a
// single greeting. A failed remote fetch is not fatal.
func (s *Store) LoadInitial(ctx context.Context, sessionID string) (LoadResult, error) {
	local, err := s.readLocal(ctx)
	if err != nil {
		return LoadResult{}, err
	}
	if len(local) > 0 {
		s.replace(local, false)
		return s.loaded(ctx, LoadResult{Source: SourceLocal, Count: len(local)}), nil
	}

	var remoteErr error
	if sessionID != "" && s.remote != nil {
		var msgs []Message
		msgs, remoteErr = s.fetchRemote(ctx, sessionID)
		if remoteErr == nil && len(msgs) > 0 {
			s.replace(msgs, true)
			return s.loaded(ctx, LoadResult{Source: SourceRemote, Count: len(msgs)}), nil
		}
		if remoteErr != nil {
			s.logger.Warn().Err(remoteErr).Str("session_id", sessionID).Msg("Remote history unavailable, starting with greeting")
		}
	}

	s.replace([]Message{NewLocalMessage(s.cfg.Greeting, s.now())}, true)
	return s.loaded(ctx, LoadResult{Source: SourceGreeting, Count: 1, RemoteErr: remoteErr}), nil
}

func (s *Store) loaded(ctx context.Context, res LoadResult) LoadResult {
	s.logger.Debug().Str("source", res.Source).Int("count", res.Count).Msg("History loaded")
	s.publish(ctx, res.Count, res.Source)
	return res
}

func (s *Store) readLocal(ctx context.Context) ([]Message, error) {
	var msgs []Message
	err := storage.GetJSON(ctx, s.kv, storage.KeyChatHistory, &msgs)
	switch {
	case err == nil:
		return msgs, nil
	case errors.Is(err, storage.ErrNotFound):
		return nil, nil
	case errors.Is(err, storage.ErrClosed), errors.Is(err, context.Canceled):
		return nil, err
	default:
		// an undecodable cache is discarded, the backend copy still exists
		s.logger.Warn().Err(err).Msg("Ignoring unreadable local history")
		return nil, nil
	}
}

func (s *Store) fetchRemote(ctx context.Context, sessionID string) ([]Message, error) {
	hist, err := s.remote.GetSessionHistory(ctx, sessionID, models.HistoryOptions{Limit: s.cfg.HistoryLimit})
	if err != nil {
		return nil, fmt.Errorf("fetch session history: %w", err)
	}
	return ExpandRecords(hist.Messages), nil
}

// replace swaps the whole sequence, optionally scheduling a write.
func (s *Store) replace(msgs []Message, persist bool) {
	s.mu.Lock()
	s.messages = msgs
	s.version++
	if !persist {
		s.persisted = s.version
	}
	s.mu.Unlock()
	if persist {
		s.kick()
	}
}

// Append adds msg at the end of the log. Missing id and timestamp are filled in.
func (s *Store) Append(msg Message) Message {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = s.now()
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}

	s.mu.Lock()
	s.messages = append(s.messages, msg)
	s.version++
	s.mu.Unlock()

	s.kick()
	return msg
}

// MarkSynced confirms every pending message matching pred and returns how
// many changed.
func (s *Store) MarkSynced(pred func(Message) bool) int {
	return s.resolve(StatusConfirmed, pred)
}

// Confirm resolves the pending message id as confirmed.
func (s *Store) Confirm(id string) bool {
	return s.resolve(StatusConfirmed, func(m Message) bool { return m.ID == id }) > 0
}

// Fail resolves the pending message id as failed.
func (s *Store) Fail(id string) bool {
	return s.resolve(StatusFailed, func(m Message) bool { return m.ID == id }) > 0
}

func (s *Store) resolve(status Status, pred func(Message) bool) int {
	now := s.now()
	s.mu.Lock()
	changed := 0
	for i := range s.messages {
		if s.messages[i].Status == StatusPending && pred(s.messages[i]) {
			s.messages[i].Status = status
			s.messages[i].ResolvedAt = now
			changed++
		}
	}
	if changed > 0 {
		s.version++
	}
	s.mu.Unlock()

	if changed > 0 {
		s.kick()
	}
	return changed
}

// Messages returns a copy of the log.
func (s *Store) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Len returns the number of messages.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

// Clear empties the log and deletes the local copy. The backend is not told.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	s.messages = nil
	s.version++
	s.mu.Unlock()

	if err := s.persist(ctx); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	s.publish(ctx, 0, "clear")
	return nil
}

// ClearEverywhere deletes the conversation on the backend, then locally.
// When the backend call fails local state is left as it was.
func (s *Store) ClearEverywhere(ctx context.Context, id models.Identity) (*models.ResetResult, error) {
	res, err := s.remote.ResetHistory(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("reset remote history: %w", err)
	}
	if err := s.Clear(ctx); err != nil {
		return res, err
	}
	return res, nil
}

// FetchDeviceHistory lists the past sessions of a device.
func (s *Store) FetchDeviceHistory(ctx context.Context, deviceToken string) (*models.DeviceHistory, error) {
	return s.remote.GetDeviceHistory(ctx, deviceToken)
}

func (s *Store) publish(ctx context.Context, count int, source string) {
	if err := s.publisher.Publish(ctx, events.TopicHistoryChanged, events.HistoryChanged{
		Count:  count,
		Source: source,
	}); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to publish history change")
	}
}
