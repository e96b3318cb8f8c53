// Tastesync - Personalization and Recommendation Sync Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tastesync

package chathistory

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/tomtom215/tastesync/internal/metrics"
	"github.com/tomtom215/tastesync/internal/storage"
)

// kick wakes the writer. Pending wake-ups collapse into one.
func (s *Store) kick() {
	select {
	case s.dirty <- struct{}{}:
	default:
	}
}

// run is the background writer loop.
func (s *Store) run(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.dirty:
			if err := s.persist(context.Background()); err != nil {
				s.logger.Error().Err(err).Msg("Failed to persist chat history")
			}
		}
	}
}

// persist writes the current sequence if it changed since the last write.
// An empty sequence deletes the key.
func (s *Store) persist(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	if s.persisted == s.version {
		s.mu.Unlock()
		return nil
	}
	version := s.version
	snapshot := make([]Message, len(s.messages))
	copy(snapshot, s.messages)
	s.mu.Unlock()

	err := s.write(ctx, snapshot)
	metrics.RecordStorageWrite(storage.KeyChatHistory, err)

	s.mu.Lock()
	s.writeErr = err
	if err == nil && version > s.persisted {
		s.persisted = version
	}
	close(s.written)
	s.written = make(chan struct{})
	s.mu.Unlock()
	return err
}

func (s *Store) write(ctx context.Context, msgs []Message) error {
	if len(msgs) == 0 {
		return s.kv.Delete(ctx, storage.KeyChatHistory)
	}
	data, err := json.Marshal(msgs)
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	return s.kv.Put(ctx, storage.KeyChatHistory, data)
}

// Flush waits until every change made before the call is persisted.
func (s *Store) Flush(ctx context.Context) error {
	s.mu.Lock()
	target := s.version
	s.mu.Unlock()

	for {
		s.mu.Lock()
		if s.persisted >= target {
			s.mu.Unlock()
			return nil
		}
		if s.closed {
			s.mu.Unlock()
			return ErrClosed
		}
		lastErr := s.writeErr
		ch := s.written
		s.mu.Unlock()

		if lastErr != nil {
			// retry inline so a failing store surfaces to the caller
			return s.persist(ctx)
		}

		s.kick()
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close flushes pending changes and stops the writer.
func (s *Store) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()

	err := s.persist(ctx)

	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return err
}
