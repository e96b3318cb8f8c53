// Tastesync - Personalization and Recommendation Sync Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tastesync

// Package storage is the durable local key-value store shared by the
// identity and chat history components.
//
// Writers replace whole values; there are no partial-field updates. Changes
// spanning several keys go through Apply so readers never observe half of them.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/goccy/go-json"
)

// Keys of the persisted client state.
const (
	KeyDeviceToken = "device_token"
	KeySessionID   = "session_id"
	KeyChatHistory = "chat_history"
)

var (
	// ErrNotFound is returned by Get for an absent key.
	ErrNotFound = errors.New("storage: key not found")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("storage: store closed")
)

// Store is a durable key-value store with whole-value semantics.
type Store interface {
	// Get returns the value of key or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put replaces the value of key.
	Put(ctx context.Context, key string, value []byte) error

	// Delete removes keys; absent keys are ignored.
	Delete(ctx context.Context, keys ...string) error

	// Apply commits every operation of b atomically.
	Apply(ctx context.Context, b *Batch) error

	// Close releases the store.
	Close() error
}

// Batch collects puts and deletes to apply in one transaction.
type Batch struct {
	ops []op
}

type op struct {
	key    string
	value  []byte
	delete bool
}

// Put queues a whole-value replace.
func (b *Batch) Put(key string, value []byte) *Batch {
	b.ops = append(b.ops, op{key: key, value: value})
	return b
}

// Delete queues a removal.
func (b *Batch) Delete(key string) *Batch {
	b.ops = append(b.ops, op{key: key, delete: true})
	return b
}

// Len returns the number of queued operations.
func (b *Batch) Len() int {
	return len(b.ops)
}

// GetJSON decodes the JSON value of key into v.
func GetJSON(ctx context.Context, s Store, key string, v any) error {
	data, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

// PutJSON replaces the value of key with the JSON encoding of v.
func PutJSON(ctx context.Context, s Store, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.Put(ctx, key, data)
}

// GetString returns the value of key as a string, or "" when absent.
func GetString(ctx context.Context, s Store, key string) (string, error) {
	data, err := s.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return string(data), nil
}
