// Tastesync - Personalization and Recommendation Sync Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tastesync

// Package orchestrator keeps preferences and the recommendation feed in
// step with the conversation.
//
// Lifecycle events call ScheduleRefresh; calls within the debounce window
// collapse into one execution, which reads the identity at run time and
// refreshes preferences and the current feed page concurrently. Executions
// run inside Serve, the supervised service loop.
//
// FullReset deletes the backend data first and only then clears local state,
// so a failed reset leaves the client exactly as it was.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/tastesync/internal/config"
	"github.com/tomtom215/tastesync/internal/events"
	"github.com/tomtom215/tastesync/internal/feed"
	"github.com/tomtom215/tastesync/internal/identity"
	"github.com/tomtom215/tastesync/internal/logging"
	"github.com/tomtom215/tastesync/internal/metrics"
	"github.com/tomtom215/tastesync/internal/models"
	"github.com/tomtom215/tastesync/internal/preferences"
)

// Refresh reasons.
const (
	ReasonSessionAdopted   = identity.ReasonSessionAdopted
	ReasonMessageExchanged = "message_exchanged"
	ReasonManual           = "manual"
	ReasonStartup          = "startup"
)

// Identity is the identity component as seen by the orchestrator.
type Identity interface {
	Snapshot(ctx context.Context) (models.Identity, error)
	ResetIdentity(ctx context.Context, rotate bool) error
}

// Preferences is the preference component as seen by the orchestrator.
type Preferences interface {
	Refresh(ctx context.Context, id models.Identity) (*models.PreferenceSummary, error)
	Clear()
}

// Feed is the recommendation feed as seen by the orchestrator.
type Feed interface {
	Refresh(ctx context.Context, id models.Identity) (*models.RankedPage, error)
	Cancel()
	Clear()
}

// History is the chat history as seen by the orchestrator.
type History interface {
	Clear(ctx context.Context) error
}

// Resetter performs the remote bulk deletes.
type Resetter interface {
	ResetAll(ctx context.Context) (*models.ResetResult, error)
	ResetHistory(ctx context.Context, id models.Identity) (*models.ResetResult, error)
}

// Components groups the collaborators of an Orchestrator.
type Components struct {
	Identity    Identity
	Preferences Preferences
	Feed        Feed
	History     History
	Remote      Resetter
	Publisher   events.Publisher
}

// ResetOutcome describes a completed full reset.
type ResetOutcome struct {
	Scope        string
	DeletedCount int
	TokenRotated bool
}

// Orchestrator is the sync orchestrator.
type Orchestrator struct {
	c         Components
	cfg       config.SyncConfig
	publisher events.Publisher
	logger    zerolog.Logger
	debouncer *Debouncer

	// runs holds at most one queued execution
	runs chan string

	mu      sync.Mutex
	reason  string
	resetMu sync.Mutex
}

// New creates an orchestrator. Nothing runs until Serve is started.
func New(c Components, cfg config.SyncConfig, logger zerolog.Logger) *Orchestrator {
	o := &Orchestrator{
		c:         c,
		cfg:       cfg,
		publisher: events.OrDiscard(c.Publisher),
		logger:    logger.With().Str("component", "orchestrator").Logger(),
		runs:      make(chan string, 1),
	}
	o.debouncer = NewDebouncer(o.enqueue)
	return o
}

// ScheduleRefresh schedules a refresh after the delay configured for reason.
func (o *Orchestrator) ScheduleRefresh(reason string) {
	delay := o.cfg.RefreshDelay
	if reason == ReasonMessageExchanged {
		delay = o.cfg.ChatRefreshDelay
	}
	o.ScheduleRefreshAfter(delay, reason)
}

// ScheduleRefreshAfter schedules a refresh after delay. A refresh already
// pending is replaced; only the last reason is reported.
func (o *Orchestrator) ScheduleRefreshAfter(delay time.Duration, reason string) {
	o.mu.Lock()
	o.reason = reason
	o.mu.Unlock()

	metrics.RefreshesScheduled.WithLabelValues(reason).Inc()
	if o.debouncer.Schedule(delay) {
		metrics.RefreshesCollapsed.Inc()
	}
	o.logger.Debug().Str("reason", reason).Dur("delay", delay).Msg("Refresh scheduled")
}

// CancelPending drops a scheduled refresh that has not started.
func (o *Orchestrator) CancelPending() {
	o.debouncer.Cancel()
	select {
	case <-o.runs:
	default:
	}
}

// enqueue hands a due refresh to Serve. A refresh already queued absorbs it.
func (o *Orchestrator) enqueue() {
	o.mu.Lock()
	reason := o.reason
	o.mu.Unlock()

	select {
	case o.runs <- reason:
	default:
		metrics.RefreshesCollapsed.Inc()
	}
}

// Serve implements suture.Service: it executes due refreshes until ctx ends.
func (o *Orchestrator) Serve(ctx context.Context) error {
	o.logger.Info().Msg("Sync orchestrator running")
	for {
		select {
		case <-ctx.Done():
			o.logger.Info().Msg("Sync orchestrator shutting down")
			return ctx.Err()
		case reason := <-o.runs:
			if err := o.RefreshNow(ctx, reason); err != nil {
				o.logger.Warn().Err(err).Str("reason", reason).Msg("Refresh failed")
			}
		}
	}
}

// String returns the service name for logging.
func (o *Orchestrator) String() string {
	return "sync-orchestrator"
}

// RefreshNow refreshes preferences and the current feed page concurrently
// with the identity as it is now. Superseded results are not errors.
func (o *Orchestrator) RefreshNow(ctx context.Context, reason string) error {
	ctx = logging.ContextWithOperation(logging.ContextWithNewCorrelationID(ctx), "refresh")
	ctx = logging.ContextWithLogger(ctx, o.logger)
	if o.cfg.RefreshTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.RefreshTimeout)
		defer cancel()
	}
	start := time.Now()

	id, err := o.c.Identity.Snapshot(ctx)
	if err != nil {
		metrics.RecordRefresh(time.Since(start), err)
		return fmt.Errorf("refresh: read identity: %w", err)
	}

	var (
		wg              sync.WaitGroup
		prefErr, feedEr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		if _, err := o.c.Preferences.Refresh(ctx, id); err != nil && !errors.Is(err, preferences.ErrSuperseded) {
			prefErr = err
		}
	}()
	go func() {
		defer wg.Done()
		if _, err := o.c.Feed.Refresh(ctx, id); err != nil && !errors.Is(err, feed.ErrSuperseded) {
			feedEr = err
		}
	}()
	wg.Wait()

	err = errors.Join(prefErr, feedEr)
	metrics.RecordRefresh(time.Since(start), err)

	logging.Ctx(ctx).Debug().
		Str("reason", reason).
		Str("session_id", id.SessionID).
		Dur("duration", time.Since(start)).
		AnErr("error", err).
		Msg("Refresh executed")
	return err
}

// FullReset deletes the backend data in the configured scope, then clears
// history, preferences, feed and identity. When the backend call fails it
// returns a *PartialResetError and local state is untouched.
func (o *Orchestrator) FullReset(ctx context.Context) (*ResetOutcome, error) {
	o.resetMu.Lock()
	defer o.resetMu.Unlock()
	ctx = logging.ContextWithOperation(logging.ContextWithNewCorrelationID(ctx), "reset")
	ctx = logging.ContextWithLogger(ctx, o.logger)
	log := logging.Ctx(ctx)

	scope := o.cfg.ResetScope
	if scope == "" {
		scope = config.ResetScopeAll
	}

	var (
		res *models.ResetResult
		err error
	)
	switch scope {
	case config.ResetScopeDevice:
		var id models.Identity
		id, err = o.c.Identity.Snapshot(ctx)
		if err == nil {
			res, err = o.c.Remote.ResetHistory(ctx, id)
		}
	default:
		res, err = o.c.Remote.ResetAll(ctx)
	}
	if err != nil {
		metrics.ResetsTotal.WithLabelValues("remote_failure").Inc()
		log.Warn().Err(err).Str("scope", scope).Msg("Reset aborted, remote data kept")
		return nil, &PartialResetError{Scope: scope, Err: err}
	}

	o.CancelPending()
	o.c.Feed.Cancel()

	var localErrs []error
	if err := o.c.History.Clear(ctx); err != nil {
		localErrs = append(localErrs, err)
	}
	o.c.Preferences.Clear()
	o.c.Feed.Clear()
	if err := o.c.Identity.ResetIdentity(ctx, o.cfg.RotateDeviceToken); err != nil {
		localErrs = append(localErrs, err)
	}
	if err := errors.Join(localErrs...); err != nil {
		metrics.ResetsTotal.WithLabelValues("local_failure").Inc()
		return nil, fmt.Errorf("reset local state: %w", err)
	}

	outcome := &ResetOutcome{
		Scope:        scope,
		DeletedCount: res.DeletedCount,
		TokenRotated: o.cfg.RotateDeviceToken,
	}
	metrics.ResetsTotal.WithLabelValues(metrics.OutcomeSuccess).Inc()
	log.Info().
		Str("scope", scope).
		Int("deleted", outcome.DeletedCount).
		Bool("token_rotated", outcome.TokenRotated).
		Msg("Full reset completed")

	if err := o.publisher.Publish(ctx, events.TopicResetCompleted, events.ResetCompleted{
		Scope:        outcome.Scope,
		DeletedCount: outcome.DeletedCount,
		TokenRotated: outcome.TokenRotated,
	}); err != nil {
		log.Warn().Err(err).Msg("Failed to publish reset completion")
	}
	return outcome, nil
}
