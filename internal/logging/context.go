// Tastesync - Personalization and Recommendation Sync Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tastesync

package logging

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type contextKey int

const (
	correlationKey contextKey = iota
	operationKey
	loggerKey
)

// GenerateCorrelationID returns the first 8 characters of a random UUID.
func GenerateCorrelationID() string {
	return uuid.NewString()[:8]
}

// ContextWithCorrelationID tags ctx with id. Every log line written through
// Ctx and every published event carries it.
func ContextWithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey, id)
}

// ContextWithNewCorrelationID tags ctx with a fresh correlation ID unless it
// already has one, so nested operations keep the outer ID.
func ContextWithNewCorrelationID(ctx context.Context) context.Context {
	if CorrelationIDFromContext(ctx) != "" {
		return ctx
	}
	return ContextWithCorrelationID(ctx, GenerateCorrelationID())
}

// CorrelationIDFromContext returns the correlation ID, or "".
func CorrelationIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(correlationKey).(string)
	return id
}

// ContextWithOperation names the user-visible operation ctx belongs to:
// "chat", "refresh", "reset" or a prompt command.
func ContextWithOperation(ctx context.Context, op string) context.Context {
	return context.WithValue(ctx, operationKey, op)
}

// OperationFromContext returns the operation name, or "".
func OperationFromContext(ctx context.Context) string {
	op, _ := ctx.Value(operationKey).(string)
	return op
}

// ContextWithLogger stores a logger in ctx for Ctx to use.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func ContextWithLogger(ctx context.Context, logger zerolog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// Ctx returns the logger of ctx (or the global one) with the correlation ID
// and operation attached.
//
//	logging.Ctx(ctx).Info().Int("page", 2).Msg("feed page loaded")
func Ctx(ctx context.Context) *zerolog.Logger {
	logger, ok := ctx.Value(loggerKey).(zerolog.Logger)
	if !ok {
		logger = Logger()
	}
	id, op := CorrelationIDFromContext(ctx), OperationFromContext(ctx)
	if id == "" && op == "" {
		return &logger
	}
	zctx := logger.With()
	if id != "" {
		zctx = zctx.Str("correlation_id", id)
	}
	if op != "" {
		zctx = zctx.Str("operation", op)
	}
	logger = zctx.Logger()
	return &logger
}

// WithComponent derives a logger with a component field from the global one.
//
//	log := logging.WithComponent("feed")
func WithComponent(component string) zerolog.Logger {
	return Logger().With().Str("component", component).Logger()
}
