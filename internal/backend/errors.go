// Tastesync - Personalization and Recommendation Sync Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tastesync

package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/tastesync/internal/metrics"
	"github.com/tomtom215/tastesync/internal/validation"
)

// Sentinel errors. Every error returned by a Client matches exactly one of
// them with errors.Is. A canceled caller context surfaces as a NetworkError
// that also matches context.Canceled.
var (
	// ErrNetwork covers transport failures, timeouts and an open circuit.
	ErrNetwork = errors.New("backend unreachable")

	// ErrValidation is returned before dispatch when a request is malformed.
	ErrValidation = errors.New("invalid request")

	// ErrRejected is returned when the backend answered with an error.
	ErrRejected = errors.New("backend rejected request")
)

// NetworkError is a failure to obtain any response from the backend.
type NetworkError struct {
	Op      string
	Timeout bool
	Err     error
}

func (e *NetworkError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("%s: backend timed out: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: backend unreachable: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// Is matches ErrNetwork.
func (e *NetworkError) Is(target error) bool { return target == ErrNetwork }

// RejectionError is a backend answer that reports failure, either through a
// non-2xx status or success=false in the envelope.
type RejectionError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("%s: backend rejected request (status %d): %s", e.Op, e.StatusCode, e.Message)
}

// Is matches ErrRejected.
func (e *RejectionError) Is(target error) bool { return target == ErrRejected }

// ServerSide reports whether the rejection came from a backend fault rather
// than from the request.
func (e *RejectionError) ServerSide() bool {
	return e.StatusCode >= http.StatusInternalServerError || e.StatusCode == http.StatusTooManyRequests
}

// validationError wraps a failed request validation so that it matches both
// ErrValidation and *validation.RequestValidationError.
type validationError struct {
	op  string
	err *validation.RequestValidationError
}

func (e *validationError) Error() string {
	return fmt.Sprintf("%s: %v: %v", e.op, ErrValidation, e.err)
}

func (e *validationError) Unwrap() []error { return []error{ErrValidation, e.err} }

// validateRequest runs struct validation on req.
func validateRequest(op string, req interface{}) error {
	if verr := validation.ValidateStruct(req); verr != nil {
		return &validationError{op: op, err: verr}
	}
	return nil
}

// Validate checks req the way the endpoint op does before dispatch, so
// callers can reject a request before taking a sequence number.
func Validate(op string, req interface{}) error {
	return validateRequest(op, req)
}

// IsNetwork reports whether err is a NetworkFailure.
func IsNetwork(err error) bool { return errors.Is(err, ErrNetwork) }

// IsRejected reports whether err is a BackendRejection.
func IsRejected(err error) bool { return errors.Is(err, ErrRejected) }

// IsValidation reports whether err is a ValidationFailure.
func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }

// Outcome maps err to the metrics outcome label.
func Outcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeSuccess
	case IsValidation(err):
		return metrics.OutcomeValidation
	case IsRejected(err):
		return metrics.OutcomeRejected
	default:
		return metrics.OutcomeNetwork
	}
}

// UserMessage returns the text shown to a visitor for err. Rejections carry
// the backend's own message.
func UserMessage(err error) string {
	var rej *RejectionError
	var verr *validation.RequestValidationError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &rej):
		return rej.Message
	case errors.As(err, &verr):
		return verr.Error()
	case errors.Is(err, context.Canceled):
		return "request canceled"
	default:
		return "the recommendation service is unreachable, showing saved data"
	}
}

// wrapTransport converts a transport-level failure into a NetworkError.
func wrapTransport(op string, err error) error {
	if err == nil {
		return nil
	}
	var nerr *NetworkError
	if errors.As(err, &nerr) {
		return err
	}
	timeout := errors.Is(err, context.DeadlineExceeded)
	var te interface{ Timeout() bool }
	if errors.As(err, &te) && te.Timeout() {
		timeout = true
	}
	return &NetworkError{Op: op, Timeout: timeout, Err: err}
}

// breakerFailure reports whether err should count against the circuit.
// Validation failures and client-side rejections do not.
func breakerFailure(err error) bool {
	if err == nil || IsValidation(err) || errors.Is(err, context.Canceled) {
		return false
	}
	var rej *RejectionError
	if errors.As(err, &rej) {
		return rej.ServerSide()
	}
	return true
}

// wrapBreaker maps gobreaker rejections to NetworkError.
func wrapBreaker(op string, err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return &NetworkError{Op: op, Err: err}
	}
	return err
}
