// Daybook - Offline-First Sync Client for the Daybook Mood Journal
// Copyright 2026 A. Velikov (avelikov)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avelikov/daybook

// Package store implements the local durable store: a BadgerDB database
// holding four independent record sets under key prefixes.
//
//   - entry:<day>   cached full entries, keyed by calendar day
//   - month:<key>   cached month projections, keyed by YYYY-MM
//   - outbox:<day>  queued writes awaiting server acknowledgment
//   - resp:<url>    raw GET responses cached by the gateway
//
// The store is a cache plus outbox; the journal server remains the sole
// system of record. Read misses are not errors: lookups return (nil, nil)
// when a key is absent. All per-key operations are atomic Badger
// transactions, so concurrent saves to the same day resolve to whichever
// write lands last.
package store

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/avelikov/daybook/internal/logging"
)

// Key prefixes for the record sets.
const (
	prefixEntry    = "entry:"
	prefixMonth    = "month:"
	prefixOutbox   = "outbox:"
	prefixResponse = "resp:"
)

// outboxSeqKey is the Badger sequence used to order outbox records.
const outboxSeqKey = "seq:outbox"

// Errors.
var (
	// ErrClosed is returned for any operation on a closed store.
	ErrClosed = errors.New("store is closed")
)

// Store is the Badger-backed durable store shared by the data-access layer,
// the sync agent, and the gateway's response cache.
type Store struct {
	db     *badger.DB
	seq    *badger.Sequence
	config Config

	mu     sync.RWMutex
	closed bool
}

// Open creates or opens the store at the configured path.
func Open(cfg Config) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid store config: %w", err)
	}
	cfg = cfg.withDefaults()

	opts := badger.DefaultOptions(cfg.Path)
	opts.SyncWrites = cfg.SyncWrites
	opts.InMemory = cfg.InMemory
	if cfg.InMemory {
		opts.Dir = ""
		opts.ValueDir = ""
	}
	// Badger's own logger is noisy at INFO; route nothing through it.
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open BadgerDB: %w", err)
	}

	seq, err := db.GetSequence([]byte(outboxSeqKey), 64)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open outbox sequence: %w", err)
	}

	s := &Store{db: db, seq: seq, config: cfg}

	logging.Info().
		Str("path", cfg.Path).
		Bool("in_memory", cfg.InMemory).
		Bool("sync_writes", cfg.SyncWrites).
		Msg("durable store opened")
	return s, nil
}

// checkOpen returns ErrClosed if Close has been called.
func (s *Store) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

// ClearAll wipes every record set. Used on sign-out.
func (s *Store) ClearAll() error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	for _, prefix := range []string{prefixEntry, prefixMonth, prefixOutbox, prefixResponse} {
		if err := s.db.DropPrefix([]byte(prefix)); err != nil {
			return fmt.Errorf("drop %q records: %w", prefix, err)
		}
	}
	logging.Info().Msg("durable store cleared")
	return nil
}

// Stats describes the store for the gateway's status endpoint.
type Stats struct {
	// PendingWrites is the number of queued outbox records.
	PendingWrites int64

	// DBSizeBytes is the estimated on-disk size (LSM plus value log).
	DBSizeBytes int64
}

// Stats counts outbox records and reports database size.
func (s *Store) Stats() Stats {
	if err := s.checkOpen(); err != nil {
		return Stats{}
	}

	var pending int64
	if err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(prefixOutbox)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			pending++
		}
		return nil
	}); err != nil {
		logging.Warn().Err(err).Msg("store stats failed to count outbox")
	}

	lsm, vlog := s.db.Size()
	return Stats{PendingWrites: pending, DBSizeBytes: lsm + vlog}
}

// RunGC triggers Badger value-log garbage collection until no further
// rewrite is possible. Called periodically by the supervised GC service.
func (s *Store) RunGC() error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if s.config.InMemory {
		return nil
	}
	for {
		err := s.db.RunValueLogGC(s.config.GCRatio)
		if errors.Is(err, badger.ErrNoRewrite) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("run GC: %w", err)
		}
	}
}

// GCInterval exposes the configured GC cadence for the supervised service.
func (s *Store) GCInterval() time.Duration {
	return s.config.GCInterval
}

// Close releases the outbox sequence and shuts Badger down, bounded by the
// configured CloseTimeout to avoid hanging shutdown.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	timeout := s.config.CloseTimeout
	s.mu.Unlock()

	if err := s.seq.Release(); err != nil {
		logging.Warn().Err(err).Msg("release outbox sequence failed")
	}

	done := make(chan error, 1)
	go func() {
		done <- s.db.Close()
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("close BadgerDB: %w", err)
		}
		logging.Info().Msg("durable store closed")
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("badgerdb close timeout after %v", timeout)
	}
}
