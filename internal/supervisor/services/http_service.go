// Daybook - Offline-First Sync Client for the Daybook Mood Journal
// Copyright 2026 A. Velikov (avelikov)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avelikov/daybook

// Package services provides suture.Service adapters for components
// that do not implement Serve(ctx) themselves.
package services

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/avelikov/daybook/internal/logging"
)

// HTTPServer abstracts *http.Server for testability.
type HTTPServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// HTTPService adapts an HTTP server to suture's Serve(ctx) contract.
// ListenAndServe blocks until the server stops, so the service runs it
// in a goroutine and triggers Shutdown when the context is canceled.
type HTTPService struct {
	server          HTTPServer
	name            string
	shutdownTimeout time.Duration
}

// NewHTTPService wraps server as a suture service. name appears in
// supervisor logs and String().
func NewHTTPService(server HTTPServer, name string, shutdownTimeout time.Duration) *HTTPService {
	if shutdownTimeout == 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &HTTPService{
		server:          server,
		name:            name,
		shutdownTimeout: shutdownTimeout,
	}
}

// Serve runs the HTTP server until ctx is canceled. ErrServerClosed is
// the normal shutdown signal and is not reported as a failure.
func (s *HTTPService) Serve(ctx context.Context) error {
	errChan := make(chan error, 1)

	go func() {
		errChan <- s.server.ListenAndServe()
	}()

	logging.Info().Str("service", s.name).Msg("HTTP server started")

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()

		if err := s.server.Shutdown(shutdownCtx); err != nil {
			logging.Warn().Err(err).Str("service", s.name).Msg("HTTP server shutdown error")
			return err
		}
		// Reap the ListenAndServe error to avoid leaking the goroutine.
		<-errChan
		logging.Info().Str("service", s.name).Msg("HTTP server stopped")
		return ctx.Err()

	case err := <-errChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error().Err(err).Str("service", s.name).Msg("HTTP server failed")
			return err
		}
		return nil
	}
}

func (s *HTTPService) String() string {
	return s.name
}
