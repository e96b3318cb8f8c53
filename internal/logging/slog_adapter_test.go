// Tastesync - Personalization and Recommendation Sync Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tastesync

package logging

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestSlogHandlerWritesThroughZerolog(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	slogger := slog.New(NewSlogHandlerWithLogger(NewTestLogger(&buf)))

	slogger.Warn("service restarted",
		slog.String("service", "orchestrator"),
		slog.Int("attempt", 2),
		slog.Any("err", errors.New("boom")),
	)

	out := buf.String()
	for _, want := range []string{
		`"level":"warn"`,
		`"service":"orchestrator"`,
		`"attempt":2`,
		`"err":"boom"`,
		`"message":"service restarted"`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q missing %s", out, want)
		}
	}
}

func TestSlogHandlerGroups(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	slogger := slog.New(NewSlogHandlerWithLogger(NewTestLogger(&buf))).
		WithGroup("supervisor").
		With(slog.String("name", "tastesync"))

	slogger.Info("started", slog.Group("backoff", slog.Int("count", 1)))

	out := buf.String()
	if !strings.Contains(out, `"supervisor.name":"tastesync"`) {
		t.Errorf("grouped attr missing: %s", out)
	}
	if !strings.Contains(out, `"supervisor.backoff.count":1`) {
		t.Errorf("nested group attr missing: %s", out)
	}
}
