// Tastesync - Personalization and Recommendation Sync Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tastesync

package orchestrator

import (
	"errors"
	"fmt"
)

// ErrPartialReset matches a reset that stopped before clearing local state.
var ErrPartialReset = errors.New("reset incomplete")

// PartialResetError reports a full reset whose remote delete failed. Local
// state was not touched, so the reset can be retried as is.
type PartialResetError struct {
	Scope string
	Err   error
}

func (e *PartialResetError) Error() string {
	return fmt.Sprintf("%v: remote %s delete failed, local data kept: %v", ErrPartialReset, e.Scope, e.Err)
}

// Unwrap exposes both ErrPartialReset and the backend error.
func (e *PartialResetError) Unwrap() []error {
	return []error{ErrPartialReset, e.Err}
}
