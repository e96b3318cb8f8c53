// Tastesync - Personalization and Recommendation Sync Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tastesync

// Package conversation runs one chat turn at a time against the backend.
//
// A turn appends the visitor's message as pending before the request is
// sent. A reply confirms it and appends the assistant line; a failure marks
// it failed and appends a local notice. Only one turn may be in flight.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/tastesync/internal/backend"
	"github.com/tomtom215/tastesync/internal/chathistory"
	"github.com/tomtom215/tastesync/internal/metrics"
	"github.com/tomtom215/tastesync/internal/models"
)

// ErrTurnInProgress is returned by Send while another turn is in flight.
var ErrTurnInProgress = errors.New("conversation: a message is already being sent")

// ReasonMessageExchanged is the refresh reason of a completed turn.
const ReasonMessageExchanged = "message_exchanged"

// History is the part of the chat history a turn writes to.
type History interface {
	Append(msg chathistory.Message) chathistory.Message
	Confirm(id string) bool
	Fail(id string) bool
}

// Identity supplies and updates the identity sent with a turn.
type Identity interface {
	Snapshot(ctx context.Context) (models.Identity, error)
	AdoptSession(ctx context.Context, sessionID string) error
}

// Sender delivers a message to the assistant.
type Sender interface {
	SendMessage(ctx context.Context, req models.SendMessageRequest) (*models.SendMessageResult, error)
}

// Refresher is told when personalization data may have changed.
type Refresher interface {
	ScheduleRefresh(reason string)
}

// Turn is the outcome of a successful Send.
type Turn struct {
	User       chathistory.Message
	Replies    []chathistory.Message
	SessionID  string
	NewSession bool
}

// Service is the conversation turn state machine.
type Service struct {
	history   History
	identity  Identity
	sender    Sender
	refresher Refresher
	notice    string
	logger    zerolog.Logger
	now       func() time.Time

	sending atomic.Bool
}

// New creates a conversation service. notice is the assistant line shown
// when a turn fails.
func New(history History, identity Identity, sender Sender, refresher Refresher, notice string, logger zerolog.Logger) *Service {
	return &Service{
		history:   history,
		identity:  identity,
		sender:    sender,
		refresher: refresher,
		notice:    notice,
		logger:    logger.With().Str("component", "conversation").Logger(),
		now:       time.Now,
	}
}

// Sending reports whether a turn is in flight.
func (s *Service) Sending() bool {
	return s.sending.Load()
}

// Send runs one turn. Blank text fails validation and nothing is recorded.
// When the backend opens a new session instead of answering, its greeting
// is recorded, the session adopted and the message sent once more.
func (s *Service) Send(ctx context.Context, text string) (*Turn, error) {
	text = strings.TrimSpace(text)
	if err := backend.Validate(backend.OpSendMessage, models.SendMessageRequest{Message: text}); err != nil {
		metrics.ChatTurns.WithLabelValues(metrics.OutcomeValidation).Inc()
		return nil, err
	}
	if !s.sending.CompareAndSwap(false, true) {
		return nil, ErrTurnInProgress
	}
	defer s.sending.Store(false)

	user := s.history.Append(chathistory.NewUserMessage(text, s.now()))

	turn, err := s.exchange(ctx, user)
	metrics.ChatTurns.WithLabelValues(backend.Outcome(err)).Inc()
	if err != nil {
		s.history.Fail(user.ID)
		s.history.Append(chathistory.NewLocalMessage(s.noticeFor(err), s.now()))
		s.logger.Warn().Err(err).Msg("Chat turn failed")
		return nil, err
	}

	s.history.Confirm(user.ID)
	turn.User = user
	if s.refresher != nil {
		s.refresher.ScheduleRefresh(ReasonMessageExchanged)
	}
	s.logger.Debug().
		Str("session_id", turn.SessionID).
		Bool("new_session", turn.NewSession).
		Msg("Chat turn completed")
	return turn, nil
}

func (s *Service) exchange(ctx context.Context, user chathistory.Message) (*Turn, error) {
	turn := &Turn{}
	for attempt := 0; attempt < 2; attempt++ {
		id, err := s.identity.Snapshot(ctx)
		if err != nil {
			return nil, fmt.Errorf("read identity: %w", err)
		}
		res, err := s.sender.SendMessage(ctx, models.SendMessageRequest{
			Message:     user.Text,
			SessionID:   id.SessionID,
			DeviceToken: id.DeviceToken,
		})
		if err != nil {
			return nil, err
		}

		if res.SessionID != "" && res.SessionID != id.SessionID {
			if err := s.identity.AdoptSession(ctx, res.SessionID); err != nil {
				return nil, fmt.Errorf("adopt session: %w", err)
			}
		}
		turn.SessionID = res.SessionID
		reply := s.history.Append(chathistory.NewAssistantMessage(res.BotResponse, s.replyTime(res)))
		turn.Replies = append(turn.Replies, reply)

		if !res.IsNewSession {
			return turn, nil
		}
		// the backend only greeted; the message itself is still unanswered
		turn.NewSession = true
	}
	return turn, nil
}

func (s *Service) replyTime(res *models.SendMessageResult) time.Time {
	if res.Timestamp.IsZero() {
		return s.now()
	}
	return res.Timestamp.Time
}

// noticeFor returns the assistant line shown for a failed turn.
func (s *Service) noticeFor(err error) string {
	if backend.IsRejected(err) {
		if msg := backend.UserMessage(err); msg != "" {
			return msg
		}
	}
	return s.notice
}
