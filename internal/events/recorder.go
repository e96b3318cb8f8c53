// Tastesync - Personalization and Recommendation Sync Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tastesync

package events

import (
	"context"
	"sync"
)

// Recorder is a Publisher that keeps every event in memory.
// It is meant for tests of the publishing components.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Publish records the event.
func (r *Recorder) Publish(_ context.Context, topic string, payload any) error {
	evt, err := newEvent(topic, "", payload)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.events = append(r.events, evt)
	r.mu.Unlock()
	return nil
}

// Events returns the recorded events of topic, or all events when topic is empty.
func (r *Recorder) Events(topic string) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, evt := range r.events {
		if topic == "" || evt.Topic == topic {
			out = append(out, evt)
		}
	}
	return out
}

// Count returns the number of recorded events of topic.
func (r *Recorder) Count(topic string) int {
	return len(r.Events(topic))
}
