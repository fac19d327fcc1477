// Daybook - Offline-First Sync Client for the Daybook Mood Journal
// Copyright 2026 A. Velikov (avelikov)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avelikov/daybook

package store

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/avelikov/daybook/internal/logging"
	"github.com/avelikov/daybook/internal/metrics"
	"github.com/avelikov/daybook/internal/models"
)

// Operation classifies a queued write.
type Operation string

// Queued write operations. Both land on the same upsert endpoint; the
// distinction is informational.
const (
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
)

// PendingWrite is one outbox record: a save that has not yet been
// acknowledged by the server. The outbox holds at most one record per day;
// a newer save for the same day replaces the payload (last-write-wins) but
// keeps the original sequence number, so replay order stays stable.
type PendingWrite struct {
	Date       models.Day          `json:"date"`
	Payload    models.EntryPayload `json:"payload"`
	Operation  Operation           `json:"operation"`
	Seq        uint64              `json:"seq"`
	Attempts   int                 `json:"attempts"`
	LastError  string              `json:"last_error,omitempty"`
	EnqueuedAt time.Time           `json:"enqueued_at"`

	// Revision counts payload replacements for the day. The replay path
	// removes a record only at the revision it read, so a save queued
	// while that replay was in flight is never deleted with it.
	Revision uint64 `json:"revision"`
}

// EnqueueWrite queues a write for its day, replacing any existing record
// for the same day. The attempt counter and last error reset on
// replacement: the record now represents a different payload.
func (s *Store) EnqueueWrite(day models.Day, payload models.EntryPayload, op Operation) (*PendingWrite, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	key := []byte(prefixOutbox + day.String())
	rec := PendingWrite{
		Date:       day,
		Payload:    payload,
		Operation:  op,
		EnqueuedAt: time.Now().UTC(),
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		switch {
		case err == nil:
			// Replacement: keep the original slot in the replay order.
			var prev PendingWrite
			if verr := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &prev)
			}); verr == nil {
				rec.Seq = prev.Seq
				rec.EnqueuedAt = prev.EnqueuedAt
				rec.Revision = prev.Revision + 1
			}
		case errors.Is(err, badger.ErrKeyNotFound):
			next, serr := s.seq.Next()
			if serr != nil {
				return fmt.Errorf("next outbox seq: %w", serr)
			}
			rec.Seq = next
			rec.Revision = 1
		default:
			return fmt.Errorf("get outbox record: %w", err)
		}

		data, merr := json.Marshal(&rec)
		if merr != nil {
			return fmt.Errorf("marshal outbox record: %w", merr)
		}
		return txn.Set(key, data)
	})
	if err != nil {
		return nil, fmt.Errorf("enqueue write: %w", err)
	}

	metrics.QueuedWrites.Inc()
	metrics.OutboxDepth.Set(float64(s.Stats().PendingWrites))
	return &rec, nil
}

// GetPendingWrite returns the queued write for a day, or (nil, nil) when
// none is queued.
func (s *Store) GetPendingWrite(day models.Day) (*PendingWrite, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	var rec PendingWrite
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(prefixOutbox + day.String()))
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
		return nil, fmt.Errorf("get outbox record: %w", err)
	}
	return &rec, nil
}

// ListPending returns every queued write in enqueue order (sequence
// ascending). The snapshot-isolated view guarantees no partial reads while
// the agent and the data layer write concurrently.
func (s *Store) ListPending() ([]*PendingWrite, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	var records []*PendingWrite
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(prefixOutbox)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			var rec PendingWrite
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				logging.Warn().Err(err).Str("key", string(item.Key())).Msg("skipping malformed outbox record")
				continue
			}
			records = append(records, &rec)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("iterate outbox: %w", err)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].Seq < records[j].Seq
	})
	return records, nil
}

// RemovePending deletes the queued write for a day. Removing an absent
// record is not an error; the replay may have raced a sign-out wipe.
func (s *Store) RemovePending(day models.Day) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete([]byte(prefixOutbox + day.String()))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("remove outbox record: %w", err)
	}

	metrics.OutboxDepth.Set(float64(s.Stats().PendingWrites))
	return nil
}

// RemovePendingRevision deletes the queued write for a day only if the
// stored record is still at the given revision. It reports whether the
// record was removed; false means a newer payload was queued for the day
// in the meantime and stays in the outbox.
func (s *Store) RemovePendingRevision(day models.Day, revision uint64) (bool, error) {
	if err := s.checkOpen(); err != nil {
		return false, err
	}

	removed := false
	key := []byte(prefixOutbox + day.String())
	err := s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("get outbox record: %w", err)
		}

		var rec PendingWrite
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		}); err != nil {
			return fmt.Errorf("unmarshal outbox record: %w", err)
		}
		if rec.Revision != revision {
			return nil
		}
		if err := txn.Delete(key); err != nil {
			return fmt.Errorf("delete outbox record: %w", err)
		}
		removed = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("remove outbox record: %w", err)
	}

	metrics.OutboxDepth.Set(float64(s.Stats().PendingWrites))
	return removed, nil
}

// MarkAttempt records a failed replay attempt on a queued write so the
// next pass and the status endpoint can see what happened.
func (s *Store) MarkAttempt(day models.Day, attemptErr string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	key := []byte(prefixOutbox + day.String())
	err := s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("get outbox record: %w", err)
		}

		var rec PendingWrite
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		}); err != nil {
			return fmt.Errorf("unmarshal outbox record: %w", err)
		}

		rec.Attempts++
		rec.LastError = attemptErr

		data, err := json.Marshal(&rec)
		if err != nil {
			return fmt.Errorf("marshal outbox record: %w", err)
		}
		return txn.Set(key, data)
	})
	if err != nil {
		return fmt.Errorf("mark attempt: %w", err)
	}
	return nil
}
