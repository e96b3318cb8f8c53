// Tastesync - Personalization and Recommendation Sync Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tastesync

package orchestrator

import (
	"sync"
	"time"
)

// Debouncer runs fn once after the last of a burst of Schedule calls.
// Rescheduling cancels the pending timer and starts a new one.
type Debouncer struct {
	fn func()

	mu    sync.Mutex
	timer *time.Timer
	gen   uint64
}

// NewDebouncer returns a debouncer for fn. fn runs on a timer goroutine.
func NewDebouncer(fn func()) *Debouncer {
	return &Debouncer{fn: fn}
}

// Schedule (re)starts the timer. It reports whether a pending run was
// replaced.
func (d *Debouncer) Schedule(delay time.Duration) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	replaced := d.stopLocked()
	d.gen++
	gen := d.gen
	d.timer = time.AfterFunc(delay, func() { d.fire(gen) })
	return replaced
}

// Cancel drops the pending run, if any, and reports whether there was one.
func (d *Debouncer) Cancel() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.gen++
	return d.stopLocked()
}

// Pending reports whether a run is scheduled.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}

// stopLocked stops the timer. Caller holds mu.
func (d *Debouncer) stopLocked() bool {
	if d.timer == nil {
		return false
	}
	d.timer.Stop()
	d.timer = nil
	return true
}

func (d *Debouncer) fire(gen uint64) {
	d.mu.Lock()
	// a timer that fired while being replaced is obsolete
	if gen != d.gen {
		d.mu.Unlock()
		return
	}
	d.timer = nil
	d.mu.Unlock()

	d.fn()
}
