// Tastesync - Personalization and Recommendation Sync Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tastesync

// Package models defines the identity, chat, preference and recommendation
// types exchanged with the recommendation backend.
package models

// Identity is a snapshot of the visitor identity sent with personalization calls.
// At least one of the two fields must be set.
type Identity struct {
	// DeviceToken is the durable anonymous identifier of this client.
	DeviceToken string `json:"device_token,omitempty" validate:"required_without=SessionID,opaqueid"`

	// SessionID identifies the current conversation; empty until the backend assigns one.
	SessionID string `json:"session_id,omitempty" validate:"required_without=DeviceToken,opaqueid"`
}

// IsZero reports whether neither identifier is set.
func (i Identity) IsZero() bool {
	return i.DeviceToken == "" && i.SessionID == ""
}

// HasSession reports whether a session id is known.
func (i Identity) HasSession() bool {
	return i.SessionID != ""
}
