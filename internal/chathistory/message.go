// Tastesync - Personalization and Recommendation Sync Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tastesync

package chathistory

import (
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/tastesync/internal/models"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Status is the delivery state of a message.
//
// User messages start pending and resolve exactly once to confirmed or failed.
// Messages the client synthesizes itself (greetings, error notices) are local.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusFailed    Status = "failed"
	StatusLocal     Status = "local"
)

// Message is one line of the conversation.
type Message struct {
	ID         string
	Role       Role
	Text       string
	Timestamp  time.Time
	Status     Status
	ResolvedAt time.Time
}

// Synced reports whether the backend acknowledged the message.
func (m Message) Synced() bool {
	return m.Status == StatusConfirmed
}

// messageJSON is the persisted layout. The synced flag is kept next to the
// status so older readers of the cache still understand it.
type messageJSON struct {
	ID         string     `json:"id"`
	Role       Role       `json:"role"`
	Text       string     `json:"text"`
	Timestamp  time.Time  `json:"timestamp"`
	Synced     bool       `json:"synced"`
	Status     Status     `json:"status,omitempty"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (m Message) MarshalJSON() ([]byte, error) {
	out := messageJSON{
		ID:        m.ID,
		Role:      m.Role,
		Text:      m.Text,
		Timestamp: m.Timestamp.UTC(),
		Synced:    m.Synced(),
		Status:    m.Status,
	}
	if !m.ResolvedAt.IsZero() {
		resolved := m.ResolvedAt.UTC()
		out.ResolvedAt = &resolved
	}
	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler. Entries written without a status
// derive it from the synced flag.
func (m *Message) UnmarshalJSON(data []byte) error {
	var in messageJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	status := in.Status
	if status == "" {
		status = StatusLocal
		if in.Synced {
			status = StatusConfirmed
		}
	}
	*m = Message{
		ID:        in.ID,
		Role:      in.Role,
		Text:      in.Text,
		Timestamp: in.Timestamp,
		Status:    status,
	}
	if in.ResolvedAt != nil {
		m.ResolvedAt = *in.ResolvedAt
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}

// NewUserMessage returns an optimistic user message awaiting confirmation.
func NewUserMessage(text string, now time.Time) Message {
	return Message{ID: uuid.NewString(), Role: RoleUser, Text: text, Timestamp: now, Status: StatusPending}
}

// NewAssistantMessage returns a backend-acknowledged assistant reply.
func NewAssistantMessage(text string, ts time.Time) Message {
	return Message{ID: uuid.NewString(), Role: RoleAssistant, Text: text, Timestamp: ts, Status: StatusConfirmed}
}

// NewLocalMessage returns an assistant line the client made up itself.
func NewLocalMessage(text string, now time.Time) Message {
	return Message{ID: uuid.NewString(), Role: RoleAssistant, Text: text, Timestamp: now, Status: StatusLocal}
}

// ExpandRecords turns backend exchanges into messages: for every record the
// user line, then the assistant line, both confirmed with the record time.
// Record order is kept and empty lines are skipped.
func ExpandRecords(records []models.HistoryRecord) []Message {
	out := make([]Message, 0, len(records)*2)
	for _, rec := range records {
		ts := rec.Timestamp.Time
		if rec.UserMessage != "" {
			out = append(out, Message{
				ID: uuid.NewString(), Role: RoleUser, Text: rec.UserMessage,
				Timestamp: ts, Status: StatusConfirmed,
			})
		}
		if rec.BotResponse != "" {
			out = append(out, NewAssistantMessage(rec.BotResponse, ts))
		}
	}
	return out
}
