// Tastesync - Personalization and Recommendation Sync Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tastesync

// Package identity owns the durable anonymous device token and the id of
// the current backend session.
//
// The device token is created lazily on first use and survives restarts; it
// only changes on ResetIdentity. The session id is empty until the backend
// assigns one, and any id the backend returns is adopted as-is.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tomtom215/tastesync/internal/events"
	"github.com/tomtom215/tastesync/internal/logging"
	"github.com/tomtom215/tastesync/internal/metrics"
	"github.com/tomtom215/tastesync/internal/models"
	"github.com/tomtom215/tastesync/internal/storage"
)

// TokenPrefix marks tokens minted by this client.
const TokenPrefix = "web_"

// ReasonSessionAdopted is the refresh reason passed to the Refresher.
const ReasonSessionAdopted = "session_adopted"

// Refresher is notified when the session changes. ScheduleRefresh must not block.
type Refresher interface {
	ScheduleRefresh(reason string)
}

// Store is the identity component.
type Store struct {
	store     storage.Store
	publisher events.Publisher
	logger    zerolog.Logger

	mu          sync.Mutex
	loaded      bool
	deviceToken string
	sessionID   string
	refresher   Refresher
}

// New creates an identity store over s. Nothing is read until first use.
func New(s storage.Store, publisher events.Publisher, logger zerolog.Logger) *Store {
	return &Store{
		store:     s,
		publisher: events.OrDiscard(publisher),
		logger:    logger.With().Str("component", "identity").Logger(),
	}
}

// SetRefresher installs the component notified on session adoption.
func (s *Store) SetRefresher(r Refresher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refresher = r
}

// NewDeviceToken mints a token: the prefix followed by the 32 hex digits of a
// random version 4 UUID.
func NewDeviceToken() string {
	return TokenPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// load reads both keys once. Caller holds mu.
func (s *Store) load(ctx context.Context) error {
	if s.loaded {
		return nil
	}
	token, err := storage.GetString(ctx, s.store, storage.KeyDeviceToken)
	if err != nil {
		return fmt.Errorf("load device token: %w", err)
	}
	session, err := storage.GetString(ctx, s.store, storage.KeySessionID)
	if err != nil {
		return fmt.Errorf("load session id: %w", err)
	}
	s.deviceToken = token
	s.sessionID = session
	s.loaded = true
	return nil
}

// Load reads the persisted identity without creating a token.
func (s *Store) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx)
}

// DeviceToken returns the device token, creating and persisting one on
// first use. Repeated calls return the same value.
func (s *Store) DeviceToken(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ensureToken(ctx)
}

// ensureToken returns the token, minting it if needed. Caller holds mu.
func (s *Store) ensureToken(ctx context.Context) (string, error) {
	if err := s.load(ctx); err != nil {
		return "", err
	}
	if s.deviceToken != "" {
		return s.deviceToken, nil
	}

	token := NewDeviceToken()
	err := s.store.Put(ctx, storage.KeyDeviceToken, []byte(token))
	metrics.RecordStorageWrite(storage.KeyDeviceToken, err)
	if err != nil {
		return "", fmt.Errorf("persist device token: %w", err)
	}
	s.deviceToken = token
	s.logger.Info().Str("device_token", logging.Token(token)).Msg("Created device token")
	return token, nil
}

// SessionID returns the current session id, or "" when none is known.
func (s *Store) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

// AdoptSession makes id the current session. When the id changes it is
// persisted, a refresh is scheduled and TopicSessionAdopted is published.
func (s *Store) AdoptSession(ctx context.Context, id string) error {
	if id == "" {
		return errors.New("adopt session: empty session id")
	}

	s.mu.Lock()
	if err := s.load(ctx); err != nil {
		s.mu.Unlock()
		return err
	}
	previous := s.sessionID
	if previous == id {
		s.mu.Unlock()
		return nil
	}
	err := s.store.Put(ctx, storage.KeySessionID, []byte(id))
	metrics.RecordStorageWrite(storage.KeySessionID, err)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("persist session id: %w", err)
	}
	s.sessionID = id
	refresher := s.refresher
	s.mu.Unlock()

	s.logger.Info().Str("session_id", id).Str("previous", previous).Msg("Adopted session")

	if refresher != nil {
		refresher.ScheduleRefresh(ReasonSessionAdopted)
	}
	if err := s.publisher.Publish(ctx, events.TopicSessionAdopted, events.SessionAdopted{
		SessionID: id,
		Previous:  previous,
	}); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to publish session adoption")
	}
	return nil
}

// ResetIdentity clears the session id. With rotate set the device token is
// replaced by a fresh one; both keys are written in one batch.
func (s *Store) ResetIdentity(ctx context.Context, rotate bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.load(ctx); err != nil {
		return err
	}

	batch := (&storage.Batch{}).Delete(storage.KeySessionID)
	token := s.deviceToken
	if rotate || token == "" {
		token = NewDeviceToken()
		batch.Put(storage.KeyDeviceToken, []byte(token))
	}
	err := s.store.Apply(ctx, batch)
	metrics.RecordStorageWrite(storage.KeySessionID, err)
	if err != nil {
		return fmt.Errorf("reset identity: %w", err)
	}

	s.deviceToken = token
	s.sessionID = ""
	s.logger.Info().Bool("rotated", rotate).Msg("Identity reset")
	return nil
}

// Snapshot returns the identity sent with personalization calls. A device
// token is created if none exists yet.
func (s *Store) Snapshot(ctx context.Context) (models.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	token, err := s.ensureToken(ctx)
	if err != nil {
		return models.Identity{}, err
	}
	return models.Identity{DeviceToken: token, SessionID: s.sessionID}, nil
}
