// Daybook - Offline-First Sync Client for the Daybook Mood Journal
// Copyright 2026 A. Velikov (avelikov)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avelikov/daybook

// Package data is the read/write layer the gateway talks to. It composes
// the remote client, the durable store and the optimistic tracker into
// network-first reads with an offline fallback, and an optimistic save
// path that fails over to the outbox when the server is unreachable.
package data

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/avelikov/daybook/internal/logging"
	"github.com/avelikov/daybook/internal/metrics"
	"github.com/avelikov/daybook/internal/models"
	"github.com/avelikov/daybook/internal/remote"
	"github.com/avelikov/daybook/internal/store"
	"github.com/avelikov/daybook/internal/validation"
)

// ErrNoOfflineData is returned when the server is unreachable and the
// durable store holds nothing for the request.
var ErrNoOfflineData = errors.New("server unreachable and no offline data")

// DefaultMemoTTL is how long a successful read result is served from
// memory before the next caller goes back to the network. It doubles as
// the deduplication window for bursts of identical reads.
const DefaultMemoTTL = 5 * time.Second

// MonthResult is a month listing plus its provenance.
type MonthResult struct {
	Entries    []models.MonthEntry
	Pagination models.Pagination

	// Stale is set when the result came from the durable store because
	// the server could not be reached. StoredAt then says how old it is.
	Stale    bool
	StoredAt time.Time
}

// EntryResult is a single entry plus its provenance.
type EntryResult struct {
	Entry    *models.Entry
	Stale    bool
	StoredAt time.Time
}

// SaveResult reports how a save landed. Queued means the server was
// unreachable and the write sits in the outbox awaiting replay; Entry is
// then the locally-materialized version rather than the server's.
type SaveResult struct {
	Entry  *models.Entry
	Queued bool
}

type memoRecord struct {
	value    interface{}
	storedAt time.Time
}

type inflightCall struct {
	done  chan struct{}
	value interface{}
	err   error
}

// Accessor serves reads and writes with the layering described above.
// Construct one per session with NewAccessor; it is safe for concurrent
// use.
type Accessor struct {
	remote  remote.Interface
	store   *store.Store
	tracker *Tracker
	memoTTL time.Duration

	mu       sync.Mutex
	memo     map[string]memoRecord
	inflight map[string]*inflightCall

	// now is swapped in tests to control memo expiry.
	now func() time.Time
}

// AccessorOptions tunes the in-memory read cache.
type AccessorOptions struct {
	// MemoTTL overrides DefaultMemoTTL when positive.
	MemoTTL time.Duration
}

// NewAccessor wires an Accessor over the given remote client, durable
// store and tracker.
func NewAccessor(rc remote.Interface, st *store.Store, tr *Tracker, opts AccessorOptions) *Accessor {
	ttl := opts.MemoTTL
	if ttl <= 0 {
		ttl = DefaultMemoTTL
	}
	return &Accessor{
		remote:   rc,
		store:    st,
		tracker:  tr,
		memoTTL:  ttl,
		memo:     make(map[string]memoRecord),
		inflight: make(map[string]*inflightCall),
		now:      time.Now,
	}
}

// Tracker exposes the optimistic tracker so the gateway can clear it on
// sign-out and the sync agent can drop confirmed moods.
func (a *Accessor) Tracker() *Tracker {
	return a.tracker
}

// memoized runs fn at most once per key per TTL window. Concurrent
// callers for the same key share a single in-flight call; a completed
// result is served from memory until it ages out. Errors are never
// memoized, so a failed read retries on the next call.
func (a *Accessor) memoized(key string, fn func() (interface{}, error)) (interface{}, error) {
	a.mu.Lock()
	if rec, ok := a.memo[key]; ok && a.now().Sub(rec.storedAt) <= a.memoTTL {
		a.mu.Unlock()
		metrics.CacheHits.WithLabelValues("memory").Inc()
		return rec.value, nil
	}
	if call, ok := a.inflight[key]; ok {
		a.mu.Unlock()
		<-call.done
		return call.value, call.err
	}
	call := &inflightCall{done: make(chan struct{})}
	a.inflight[key] = call
	a.mu.Unlock()

	call.value, call.err = fn()
	close(call.done)

	a.mu.Lock()
	delete(a.inflight, key)
	if call.err == nil {
		a.memo[key] = memoRecord{value: call.value, storedAt: a.now()}
	}
	a.mu.Unlock()
	return call.value, call.err
}

func monthKey(ref models.MonthRef, page, limit int) string {
	return fmt.Sprintf("month:%s:p%d:l%d", ref.Key(), page, limit)
}

func entryKey(day models.Day) string {
	return "entry:" + day.String()
}

// Reset drops every memoized read. Called on sign-out, alongside the
// durable store wipe.
func (a *Accessor) Reset() {
	a.mu.Lock()
	a.memo = make(map[string]memoRecord)
	a.mu.Unlock()
}

// Invalidate drops all memoized reads for the month, so the next caller
// goes back to the network (or the durable store, if still offline).
func (a *Accessor) Invalidate(ref models.MonthRef) {
	prefix := "month:" + ref.Key()
	a.mu.Lock()
	for key := range a.memo {
		if strings.HasPrefix(key, prefix) {
			delete(a.memo, key)
		}
	}
	a.mu.Unlock()
}

// InvalidateDay drops the memoized entry for the day and every memoized
// listing of its month.
func (a *Accessor) InvalidateDay(day models.Day) {
	a.mu.Lock()
	delete(a.memo, entryKey(day))
	a.mu.Unlock()
	a.Invalidate(day.Month())
}

// FetchMonth returns the month's {date, mood} listing, network-first.
// When the server cannot be reached the durable snapshot is served with
// Stale set; pagination is ignored on that path since the snapshot is
// whole. Fresh optimistic moods overlay the result either way. With
// neither network nor snapshot the error wraps ErrNoOfflineData.
func (a *Accessor) FetchMonth(ctx context.Context, ref models.MonthRef, page, limit int) (*MonthResult, error) {
	value, err := a.memoized(monthKey(ref, page, limit), func() (interface{}, error) {
		return a.fetchMonth(ctx, ref, page, limit)
	})
	if err != nil {
		return nil, err
	}
	return value.(*MonthResult), nil
}

func (a *Accessor) fetchMonth(ctx context.Context, ref models.MonthRef, page, limit int) (*MonthResult, error) {
	metrics.CacheMisses.Inc()

	mp, err := a.remote.FetchMonth(ctx, ref, page, limit)
	if err == nil {
		if page <= 1 {
			if perr := a.store.PutMonth(ref, mp.Entries); perr != nil {
				logging.Warn().Err(perr).Str("month", ref.Key()).Msg("persisting month snapshot failed")
			}
		}
		return &MonthResult{
			Entries:    a.tracker.MergeCalendar(ref, mp.Entries),
			Pagination: mp.Pagination,
		}, nil
	}
	if _, ok := remote.AsAPIError(err); ok {
		// The server answered. Its verdict stands; no fallback.
		return nil, err
	}

	snap, serr := a.store.GetMonth(ref)
	if serr != nil {
		return nil, serr
	}
	if snap == nil {
		return nil, fmt.Errorf("%w: month %s (%v)", ErrNoOfflineData, ref.Key(), err)
	}
	logging.Debug().Str("month", ref.Key()).Time("stored_at", snap.StoredAt).
		Msg("serving month from durable store")
	metrics.CacheHits.WithLabelValues("durable").Inc()
	metrics.StaleReads.Inc()
	return &MonthResult{
		Entries:  a.tracker.MergeCalendar(ref, snap.Entries),
		Stale:    true,
		StoredAt: snap.StoredAt,
	}, nil
}

// FetchEntry returns the full entry for a day, network-first with the
// same durable fallback as FetchMonth. A server 404 means "no entry for
// this day" and yields (nil, nil); it is an answer, not a failure.
func (a *Accessor) FetchEntry(ctx context.Context, day models.Day) (*EntryResult, error) {
	value, err := a.memoized(entryKey(day), func() (interface{}, error) {
		return a.fetchEntry(ctx, day)
	})
	if err != nil {
		return nil, err
	}
	if value == nil {
		return nil, nil
	}
	return value.(*EntryResult), nil
}

func (a *Accessor) fetchEntry(ctx context.Context, day models.Day) (interface{}, error) {
	metrics.CacheMisses.Inc()

	entry, err := a.remote.FetchEntry(ctx, day)
	if err == nil {
		if perr := a.store.PutEntry(entry); perr != nil {
			logging.Warn().Err(perr).Str("date", day.String()).Msg("persisting entry failed")
		}
		return &EntryResult{Entry: entry}, nil
	}
	if remote.IsNotFound(err) {
		// Returning a typed nil keeps the memoized(...) contract: the
		// "no entry" answer is memoized like any other.
		return (*EntryResult)(nil), nil
	}
	if _, ok := remote.AsAPIError(err); ok {
		return nil, err
	}

	cached, serr := a.store.GetEntry(day)
	if serr != nil {
		return nil, serr
	}
	if cached == nil {
		return nil, fmt.Errorf("%w: entry %s (%v)", ErrNoOfflineData, day, err)
	}
	metrics.CacheHits.WithLabelValues("durable").Inc()
	metrics.StaleReads.Inc()
	return &EntryResult{Entry: cached.Entry, Stale: true, StoredAt: cached.StoredAt}, nil
}

// Revalidate drops the month's memoized reads and fetches it again.
// The sync agent calls this after a drain pass so the durable snapshot
// reflects the server's reconciled calendar.
func (a *Accessor) Revalidate(ctx context.Context, ref models.MonthRef) (*MonthResult, error) {
	a.Invalidate(ref)
	return a.FetchMonth(ctx, ref, 0, 0)
}

// SaveEntry saves a day's entry optimistically:
//
//  1. the payload is sanitized and validated locally,
//  2. the mood lands in the tracker so calendars update immediately,
//  3. the entry is written through to the durable store and the month
//     snapshot is patched,
//  4. the server save is attempted,
//  5. on success the server's copy overwrites the local one and the
//     optimistic mood is cleared; on a network failure the write is
//     enqueued to the outbox and the result reports Queued.
//
// A server rejection (validation, auth) is returned as-is and is never
// queued: retrying a payload the server already refused cannot succeed.
func (a *Accessor) SaveEntry(ctx context.Context, day models.Day, payload models.EntryPayload) (*SaveResult, error) {
	payload.Sanitize()
	if err := validation.ValidateStruct(&payload); err != nil {
		return nil, err
	}

	op := store.OpCreate
	if existing, err := a.store.GetEntry(day); err == nil && existing != nil {
		op = store.OpUpdate
	}

	a.tracker.StoreMood(day, payload.Mood)

	local := payload.Entry(day)
	if err := a.store.PutEntry(local); err != nil {
		logging.Warn().Err(err).Str("date", day.String()).Msg("durable write-through failed")
	}
	a.patchMonth(day, payload.Mood)

	saved, err := a.remote.SaveEntry(ctx, day, payload)
	if err == nil {
		if perr := a.store.PutEntry(saved); perr != nil {
			logging.Warn().Err(perr).Str("date", day.String()).Msg("persisting confirmed entry failed")
		}
		a.patchMonth(day, saved.Mood)
		// A confirmed save supersedes any write still queued for the day.
		if rerr := a.store.RemovePending(day); rerr != nil {
			logging.Warn().Err(rerr).Str("date", day.String()).Msg("dropping superseded outbox write failed")
		}
		a.tracker.ClearMood(day)
		a.InvalidateDay(day)
		return &SaveResult{Entry: saved}, nil
	}
	if _, ok := remote.AsAPIError(err); ok {
		return nil, err
	}

	if _, qerr := a.store.EnqueueWrite(day, payload, op); qerr != nil {
		return nil, fmt.Errorf("queueing write after network failure: %w", qerr)
	}
	logging.Info().Str("date", day.String()).Str("operation", string(op)).
		Msg("server unreachable, write queued for replay")
	a.InvalidateDay(day)
	return &SaveResult{Entry: local, Queued: true}, nil
}

// patchMonth updates the durable month snapshot for the day's month, if
// one exists. Absence is fine: the next online month fetch writes a
// fresh snapshot anyway.
func (a *Accessor) patchMonth(day models.Day, mood models.Mood) {
	ref := day.Month()
	snap, err := a.store.GetMonth(ref)
	if err != nil || snap == nil {
		return
	}
	patched := models.PatchMonthEntries(snap.Entries, day, mood)
	if perr := a.store.PutMonth(ref, patched); perr != nil {
		logging.Warn().Err(perr).Str("month", ref.Key()).Msg("patching month snapshot failed")
	}
}
