// Tastesync - Personalization and Recommendation Sync Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tastesync

package services

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// HTTPServer is the part of *http.Server the service drives.
type HTTPServer interface {
	Serve(l net.Listener) error
	Shutdown(ctx context.Context) error
}

// HTTPServerService runs an HTTP server on addr as a supervised service.
//
// The listener is bound inside Serve, so a port conflict fails the service
// and suture retries it with backoff. When ctx ends the server is shut down
// with shutdownTimeout to drain connections.
//
//	server := &http.Server{Handler: diagnostics.NewRouter(opts)}
//	svc := services.NewHTTPServerService("diagnostics-server", "127.0.0.1:9464", server, 10*time.Second, logger)
//	tree.AddDiagnosticsService(svc)
type HTTPServerService struct {
	name            string
	addr            string
	server          HTTPServer
	shutdownTimeout time.Duration
	logger          zerolog.Logger

	mu    sync.Mutex
	bound string
}

// NewHTTPServerService creates the service. An empty name becomes
// "http-server"; a non-positive timeout becomes 10s.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewHTTPServerService(name, addr string, server HTTPServer, shutdownTimeout time.Duration, logger zerolog.Logger) *HTTPServerService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	if name == "" {
		name = "http-server"
	}
	return &HTTPServerService{
		name:            name,
		addr:            addr,
		server:          server,
		shutdownTimeout: shutdownTimeout,
		logger:          logger.With().Str("service", name).Logger(),
	}
}

// Addr returns the bound address while the server is listening, else "".
// With port 0 in the configured address this is where the port shows up.
func (h *HTTPServerService) Addr() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.bound
}

func (h *HTTPServerService) setBound(addr string) {
	h.mu.Lock()
	h.bound = addr
	h.mu.Unlock()
}

// Serve implements suture.Service. It returns ctx.Err() after a clean
// shutdown and a wrapped error when binding, serving or shutdown fails.
func (h *HTTPServerService) Serve(ctx context.Context) error {
	ln, err := (&net.ListenConfig{}).Listen(ctx, "tcp", h.addr)
	if err != nil {
		return fmt.Errorf("%s listen on %s: %w", h.name, h.addr, err)
	}
	h.setBound(ln.Addr().String())
	defer h.setBound("")
	h.logger.Info().Str("addr", ln.Addr().String()).Msg("Listening")

	errCh := make(chan error, 1)
	go func() {
		err := h.server.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("%s failed: %w", h.name, err)
		}
		return nil

	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), h.shutdownTimeout)
		defer cancel()
		if err := h.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("%s shutdown failed: %w", h.name, err)
		}
		<-errCh
		h.logger.Info().Msg("Stopped")
		return ctx.Err()
	}
}

// String implements fmt.Stringer for suture's logs.
func (h *HTTPServerService) String() string {
	return h.name
}
