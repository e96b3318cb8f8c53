// Tastesync - Personalization and Recommendation Sync Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tastesync

package logging

import (
	"context"
	"log/slog"

	"github.com/rs/zerolog"
)

// SlogHandler implements slog.Handler on top of zerolog. The supervisor tree
// logs through it so restarts and backoff show up in the same stream as
// everything else.
//
// Attributes added with WithAttrs are rendered into the child logger once;
// prefix holds the dotted group path for attributes added later.
type SlogHandler struct {
	logger zerolog.Logger
	prefix string
}

// NewSlogHandlerWithLogger wraps logger.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func NewSlogHandlerWithLogger(logger zerolog.Logger) *SlogHandler {
	return &SlogHandler{logger: logger}
}

// NewSlogLogger creates an slog.Logger backed by the global logger, tagged
// with component "supervisor".
//
//	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), cfg)
func NewSlogLogger() *slog.Logger {
	return slog.New(NewSlogHandlerWithLogger(WithComponent("supervisor")))
}

// Enabled reports whether records at level would be written.
func (h *SlogHandler) Enabled(_ context.Context, level slog.Level) bool {
	zl := zerologLevel(level)
	return zl >= h.logger.GetLevel() && zl >= zerolog.GlobalLevel()
}

// Handle writes the record as one zerolog event.
//
//nolint:gocritic // slog.Record is passed by value per slog.Handler interface
func (h *SlogHandler) Handle(_ context.Context, record slog.Record) error {
	event := h.logger.WithLevel(zerologLevel(record.Level))
	if event == nil {
		return nil
	}
	record.Attrs(func(attr slog.Attr) bool {
		appendAttr(eventSink{event}, h.prefix, attr)
		return true
	})
	event.Msg(record.Message)
	return nil
}

// WithAttrs returns a handler whose logger carries attrs.
func (h *SlogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	zctx := h.logger.With()
	sink := contextSink{&zctx}
	for _, attr := range attrs {
		appendAttr(sink, h.prefix, attr)
	}
	return &SlogHandler{logger: zctx.Logger(), prefix: h.prefix}
}

// WithGroup returns a handler that prefixes later attribute keys with name.
func (h *SlogHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &SlogHandler{logger: h.logger, prefix: h.prefix + name + "."}
}

// fieldSink is the common surface of zerolog.Event and zerolog.Context used
// to write attributes.
type fieldSink interface {
	putString(key, v string)
	putInt64(key string, v int64)
	putUint64(key string, v uint64)
	putFloat64(key string, v float64)
	putBool(key string, v bool)
	putAny(key string, v any)
}

type eventSink struct{ e *zerolog.Event }

func (s eventSink) putString(k, v string) { s.e.Str(k, v) }
func (s eventSink) putInt64(k string, v int64) { s.e.Int64(k, v) }
func (s eventSink) putUint64(k string, v uint64) { s.e.Uint64(k, v) }
func (s eventSink) putFloat64(k string, v float64) { s.e.Float64(k, v) }
func (s eventSink) putBool(k string, v bool) { s.e.Bool(k, v) }
func (s eventSink) putAny(k string, v any) { s.e.Interface(k, v) }

type contextSink struct{ c *zerolog.Context }

func (s contextSink) putString(k, v string) { *s.c = s.c.Str(k, v) }
func (s contextSink) putInt64(k string, v int64) { *s.c = s.c.Int64(k, v) }
func (s contextSink) putUint64(k string, v uint64) { *s.c = s.c.Uint64(k, v) }
func (s contextSink) putFloat64(k string, v float64) { *s.c = s.c.Float64(k, v) }
func (s contextSink) putBool(k string, v bool) { *s.c = s.c.Bool(k, v) }
func (s contextSink) putAny(k string, v any) { *s.c = s.c.Interface(k, v) }

func appendAttr(sink fieldSink, prefix string, attr slog.Attr) {
	attr.Value = attr.Value.Resolve()
	if attr.Equal(slog.Attr{}) {
		return
	}
	key := prefix + attr.Key

	v := attr.Value
	switch v.Kind() {
	case slog.KindString:
		sink.putString(key, v.String())
	case slog.KindInt64:
		sink.putInt64(key, v.Int64())
	case slog.KindUint64:
		sink.putUint64(key, v.Uint64())
	case slog.KindFloat64:
		sink.putFloat64(key, v.Float64())
	case slog.KindBool:
		sink.putBool(key, v.Bool())
	case slog.KindDuration:
		sink.putString(key, v.Duration().String())
	case slog.KindTime:
		sink.putString(key, v.Time().Format(zerolog.TimeFieldFormat))
	case slog.KindGroup:
		nested := prefix
		if attr.Key != "" {
			nested = key + "."
		}
		for _, ga := range v.Group() {
			appendAttr(sink, nested, ga)
		}
	default:
		if err, ok := v.Any().(error); ok {
			sink.putString(key, err.Error())
			return
		}
		sink.putAny(key, v.Any())
	}
}

func zerologLevel(level slog.Level) zerolog.Level {
	switch {
	case level >= slog.LevelError:
		return zerolog.ErrorLevel
	case level >= slog.LevelWarn:
		return zerolog.WarnLevel
	case level >= slog.LevelInfo:
		return zerolog.InfoLevel
	default:
		return zerolog.DebugLevel
	}
}
