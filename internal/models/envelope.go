// Tastesync - Personalization and Recommendation Sync Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tastesync

package models

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/goccy/go-json"
)

// ErrEnvelopeFailed is returned by DecodeData when the envelope reports success=false.
var ErrEnvelopeFailed = errors.New("backend reported failure")

// Envelope is the uniform response wrapper of every backend endpoint:
//
//	{"success": true, "data": {...}}
//	{"success": false, "error": "Message tidak boleh kosong"}
//
// Data stays raw until Success has been checked.
type Envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   json.RawMessage `json:"error,omitempty"`
	Message string          `json:"message,omitempty"`
}

// ErrorMessage extracts a human-readable error from a failed envelope.
// The error field may be a string or an object with a message field.
func (e *Envelope) ErrorMessage() string {
	raw := bytes.TrimSpace(e.Error)
	if len(raw) > 0 && !bytes.Equal(raw, []byte("null")) {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil && s != "" {
			return s
		}
		var obj struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(raw, &obj); err == nil && obj.Message != "" {
			return obj.Message
		}
		return string(raw)
	}
	if e.Message != "" {
		return e.Message
	}
	return "unknown backend error"
}

// DecodeData decodes the data payload of a successful envelope into T.
func DecodeData[T any](e *Envelope) (*T, error) {
	if !e.Success {
		return nil, fmt.Errorf("%w: %s", ErrEnvelopeFailed, e.ErrorMessage())
	}
	var out T
	if len(e.Data) == 0 || bytes.Equal(e.Data, []byte("null")) {
		return &out, nil
	}
	if err := json.Unmarshal(e.Data, &out); err != nil {
		return nil, fmt.Errorf("decode envelope data: %w", err)
	}
	return &out, nil
}

// Success builds a successful envelope around data.
func Success(data any) (*Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &Envelope{Success: true, Data: raw}, nil
}

// Failure builds a failed envelope carrying message.
func Failure(message string) *Envelope {
	raw, _ := json.Marshal(message)
	return &Envelope{Success: false, Error: raw}
}
