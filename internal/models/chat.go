// Tastesync - Personalization and Recommendation Sync Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tastesync

package models

// MaxMessageLength bounds a single chat message.
const MaxMessageLength = 2000

// SendMessageRequest is the body of POST /chat.
type SendMessageRequest struct {
	Message     string `json:"message" validate:"notblank,max=2000"`
	SessionID   string `json:"session_id,omitempty" validate:"opaqueid"`
	DeviceToken string `json:"device_token,omitempty" validate:"opaqueid"`
}

// SendMessageResult is the data payload of POST /chat.
type SendMessageResult struct {
	// BotResponse is the assistant reply.
	BotResponse string `json:"bot_response"`

	// SessionID is the session the exchange belongs to; it may differ from
	// the one sent when the backend created or replaced the session.
	SessionID string `json:"session_id"`

	// Timestamp is the backend time of the exchange.
	Timestamp Timestamp `json:"timestamp"`

	// IsNewSession is set when the backend opened a session for this request
	// instead of processing the message.
	IsNewSession bool `json:"is_new_session"`
}

// HistoryRecord is one stored exchange: an optional user line and an
// optional assistant line sharing one timestamp.
type HistoryRecord struct {
	UserMessage string    `json:"user_message,omitempty"`
	BotResponse string    `json:"bot_response,omitempty"`
	Timestamp   Timestamp `json:"timestamp"`
}

// SessionHistory is the data payload of GET /chat/history/{session_id}.
type SessionHistory struct {
	SessionID    string          `json:"session_id"`
	MessageCount int             `json:"message_count"`
	Messages     []HistoryRecord `json:"messages"`
}

// HistoryOptions paginates a session history request. Zero values are omitted.
type HistoryOptions struct {
	Limit  int `json:"limit,omitempty" validate:"gte=0,lte=1000"`
	Offset int `json:"offset,omitempty" validate:"gte=0"`
}

// DeviceSession summarizes one past session of a device.
type DeviceSession struct {
	SessionID    string    `json:"session_id"`
	MessageCount int       `json:"message_count"`
	LastActivity Timestamp `json:"last_activity"`
}

// DeviceHistory is the data payload of GET /chat/history/device/{device_token}.
type DeviceHistory struct {
	DeviceToken string          `json:"device_token"`
	Sessions    []DeviceSession `json:"sessions"`
}

// ResetResult is the data payload of the reset endpoints.
type ResetResult struct {
	DeletedCount int `json:"deleted_count"`
}

// HealthStatus is the body of GET /health. The health endpoint is not enveloped.
type HealthStatus struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// Healthy reports whether the backend declared itself healthy.
func (h HealthStatus) Healthy() bool {
	return h.Status == "healthy" || h.Status == "ok"
}
