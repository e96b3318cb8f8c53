// Tastesync - Personalization and Recommendation Sync Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tastesync

package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"

	"github.com/tomtom215/tastesync/internal/logging"
	"github.com/tomtom215/tastesync/internal/metrics"
)

// keyPrefix namespaces client state inside the database.
const keyPrefix = "tastesync:"

// Config configures a BadgerStore.
type Config struct {
	// Path is the database directory. Ignored when InMemory is set.
	Path string

	// InMemory keeps everything in memory; nothing survives Close.
	InMemory bool

	// SyncWrites fsyncs every commit.
	SyncWrites bool

	// CloseTimeout bounds Close. Default: 10s
	CloseTimeout time.Duration
}

// BadgerStore implements Store on BadgerDB.
type BadgerStore struct {
	db     *badger.DB
	config Config

	mu     sync.RWMutex
	closed bool
}

// Open opens (or creates) the store described by cfg.
func Open(cfg Config) (*BadgerStore, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	if cfg.CloseTimeout == 0 {
		cfg.CloseTimeout = 10 * time.Second
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(cfg.Path)
		opts.SyncWrites = cfg.SyncWrites
	}
	opts.Compression = options.Snappy
	// The client state is a handful of small keys.
	opts.MemTableSize = 16 << 20
	opts.ValueLogFileSize = 16 << 20
	opts.NumCompactors = 2
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open BadgerDB: %w", err)
	}

	logging.Debug().
		Str("path", cfg.Path).
		Bool("in_memory", cfg.InMemory).
		Bool("sync_writes", cfg.SyncWrites).
		Msg("Local store opened")

	return &BadgerStore{db: db, config: cfg}, nil
}

// OpenInMemory opens a throwaway in-memory store, for tests and -ephemeral runs.
func OpenInMemory() (*BadgerStore, error) {
	return Open(Config{InMemory: true})
}

func (s *BadgerStore) checkOpen(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

// Get returns the value of key or ErrNotFound.
func (s *BadgerStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := s.checkOpen(ctx); err != nil {
		return nil, err
	}

	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyPrefix + key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return value, nil
}

// Put replaces the value of key.
func (s *BadgerStore) Put(ctx context.Context, key string, value []byte) error {
	return s.Apply(ctx, (&Batch{}).Put(key, value))
}

// Delete removes keys.
func (s *BadgerStore) Delete(ctx context.Context, keys ...string) error {
	b := &Batch{}
	for _, k := range keys {
		b.Delete(k)
	}
	return s.Apply(ctx, b)
}

// Apply commits the batch in a single read-write transaction.
func (s *BadgerStore) Apply(ctx context.Context, b *Batch) error {
	if b == nil || b.Len() == 0 {
		return nil
	}
	if err := s.checkOpen(ctx); err != nil {
		return err
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		for _, o := range b.ops {
			key := []byte(keyPrefix + o.key)
			if o.delete {
				if err := txn.Delete(key); err != nil {
					return fmt.Errorf("delete %s: %w", o.key, err)
				}
				continue
			}
			if err := txn.SetEntry(badger.NewEntry(key, o.value)); err != nil {
				return fmt.Errorf("put %s: %w", o.key, err)
			}
		}
		return nil
	})

	for _, o := range b.ops {
		metrics.RecordStorageWrite(o.key, err)
	}
	return err
}

// Close closes the database, giving up after the configured timeout.
func (s *BadgerStore) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	done := make(chan error, 1)
	go func() {
		done <- s.db.Close()
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("close BadgerDB: %w", err)
		}
		return nil
	case <-time.After(s.config.CloseTimeout):
		logging.Warn().Dur("timeout", s.config.CloseTimeout).Msg("BadgerDB close timed out")
		return fmt.Errorf("badger close timeout after %v", s.config.CloseTimeout)
	}
}
