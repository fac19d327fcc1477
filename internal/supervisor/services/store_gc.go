// Daybook - Offline-First Sync Client for the Daybook Mood Journal
// Copyright 2026 A. Velikov (avelikov)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avelikov/daybook

package services

import (
	"context"
	"time"

	"github.com/avelikov/daybook/internal/logging"
	"github.com/avelikov/daybook/internal/store"
)

// StoreGCService runs the durable store's value-log garbage collection
// on a fixed interval. Badger never reclaims value-log space on its
// own; something has to call RunGC periodically.
type StoreGCService struct {
	store *store.Store
}

// NewStoreGCService creates a GC service for the given store.
func NewStoreGCService(st *store.Store) *StoreGCService {
	return &StoreGCService{store: st}
}

// Serve ticks at the store's configured GC interval until ctx is
// canceled. GC errors are logged and swallowed; a failed GC cycle is
// not worth a supervisor restart.
func (s *StoreGCService) Serve(ctx context.Context) error {
	interval := s.store.GCInterval()
	if interval <= 0 {
		interval = 10 * time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logging.Debug().Dur("interval", interval).Msg("store GC loop started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.store.RunGC(); err != nil {
				logging.Debug().Err(err).Msg("store GC cycle skipped")
			}
		}
	}
}

func (s *StoreGCService) String() string {
	return "store-gc"
}
