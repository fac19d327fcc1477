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
)

// CachedResponse is a raw GET response cached by the gateway, keyed by the
// full request URL (path plus query). It is the fallback served when the
// journal server cannot be reached and the data layer has nothing better.
type CachedResponse struct {
	URL         string    `json:"url"`
	Status      int       `json:"status"`
	ContentType string    `json:"content_type"`
	Body        []byte    `json:"body"`
	StoredAt    time.Time `json:"stored_at"`
}

// PutResponse caches a GET response body under its exact URL, stamped with
// the current time. Only successful responses are worth caching; callers
// filter on status before storing.
func (s *Store) PutResponse(url string, status int, contentType string, body []byte) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	rec := CachedResponse{
		URL:         url,
		Status:      status,
		ContentType: contentType,
		Body:        body,
		StoredAt:    time.Now().UTC(),
	}
	data, err := json.Marshal(&rec)
	if err != nil {
		return fmt.Errorf("marshal cached response: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(prefixResponse+url), data)
	})
	if err != nil {
		return fmt.Errorf("put cached response: %w", err)
	}
	return nil
}

// GetResponse returns the most recently cached response for the exact URL,
// or (nil, nil) when none exists.
func (s *Store) GetResponse(url string) (*CachedResponse, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	var rec CachedResponse
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(prefixResponse + url))
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
		return nil, fmt.Errorf("get cached response: %w", err)
	}
	return &rec, nil
}
