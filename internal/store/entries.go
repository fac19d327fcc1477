// Daybook - Offline-First Sync Client for the Daybook Mood Journal
// Copyright 2026 A. Velikov (avelikov)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avelikov/daybook

package store

import (
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/avelikov/daybook/internal/models"
)

// StoredEntry is a cached entry plus the time it was written locally.
type StoredEntry struct {
	Entry    *models.Entry `json:"entry"`
	StoredAt time.Time     `json:"stored_at"`
}

// MonthSnapshot is a cached month projection plus its local write time.
// Old snapshots are still served when offline; StoredAt lets callers judge
// how old.
type MonthSnapshot struct {
	Entries  []models.MonthEntry `json:"entries"`
	StoredAt time.Time           `json:"stored_at"`
}

// PutEntry upserts the cached entry for its day, stamped with the current
// time. Callers treat persistence as best effort: a storage error is worth
// logging but must not fail the save that triggered it.
func (s *Store) PutEntry(entry *models.Entry) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if entry == nil || entry.Date.IsZero() {
		return fmt.Errorf("entry with a valid date is required")
	}

	rec := StoredEntry{Entry: entry, StoredAt: time.Now().UTC()}
	data, err := json.Marshal(&rec)
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}

	key := []byte(prefixEntry + entry.Date.String())
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, data)
	})
	if err != nil {
		return fmt.Errorf("put entry: %w", err)
	}
	return nil
}

// GetEntry returns the cached entry for a day, or (nil, nil) when absent.
func (s *Store) GetEntry(day models.Day) (*StoredEntry, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	var rec StoredEntry
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(prefixEntry + day.String()))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get entry: %w", err)
	}
	return &rec, nil
}

// PutMonth upserts the cached projection for a month, stamped with the
// current time.
func (s *Store) PutMonth(ref models.MonthRef, entries []models.MonthEntry) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	rec := MonthSnapshot{Entries: entries, StoredAt: time.Now().UTC()}
	data, err := json.Marshal(&rec)
	if err != nil {
		return fmt.Errorf("marshal month snapshot: %w", err)
	}

	key := []byte(prefixMonth + ref.Key())
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, data)
	})
	if err != nil {
		return fmt.Errorf("put month snapshot: %w", err)
	}
	return nil
}

// GetMonth returns the cached projection for a month, or (nil, nil) when
// absent.
func (s *Store) GetMonth(ref models.MonthRef) (*MonthSnapshot, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	var rec MonthSnapshot
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(prefixMonth + ref.Key()))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get month snapshot: %w", err)
	}
	return &rec, nil
}
