// Daybook - Offline-First Sync Client for the Daybook Mood Journal
// Copyright 2026 A. Velikov (avelikov)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avelikov/daybook

package data

import (
	"sync"
	"time"

	"github.com/avelikov/daybook/internal/models"
)

// DefaultMoodFreshness is how long an optimistic mood is trusted before
// the server copy is considered authoritative again. A save that has not
// been confirmed within this window is either queued in the outbox (and
// will refresh the overlay when it lands) or lost, and in both cases the
// calendar should stop showing it.
const DefaultMoodFreshness = 5 * time.Minute

type moodRecord struct {
	mood     models.Mood
	storedAt time.Time
}

// Tracker holds per-session optimistic mood state: the mood a user just
// saved, shown immediately while the server round trip is still in
// flight or queued. It lives in memory only and dies with the process,
// which is the point: the durable store keeps confirmed state, the
// tracker keeps hope.
//
// Expiry is lazy. Records are dropped on read once they age past the
// freshness window; nothing ticks in the background.
type Tracker struct {
	mu        sync.Mutex
	moods     map[string]moodRecord
	freshness time.Duration

	// now is swapped in tests to control the clock.
	now func() time.Time
}

// NewTracker creates an empty tracker with the default freshness window.
func NewTracker() *Tracker {
	return &Tracker{
		moods:     make(map[string]moodRecord),
		freshness: DefaultMoodFreshness,
		now:       time.Now,
	}
}

// StoreMood records an optimistic mood for the day, restarting its
// freshness window.
func (tr *Tracker) StoreMood(day models.Day, mood models.Mood) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.moods[day.String()] = moodRecord{mood: mood, storedAt: tr.now()}
}

// Mood returns the optimistic mood for the day, if one is still fresh.
// A stale record is removed on the way out.
func (tr *Tracker) Mood(day models.Day) (models.Mood, bool) {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	rec, ok := tr.moods[day.String()]
	if !ok {
		return "", false
	}
	if tr.now().Sub(rec.storedAt) > tr.freshness {
		delete(tr.moods, day.String())
		return "", false
	}
	return rec.mood, true
}

// ClearMood drops the optimistic mood for the day. Called once the
// server has confirmed the write and the durable store holds the
// authoritative copy.
func (tr *Tracker) ClearMood(day models.Day) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	delete(tr.moods, day.String())
}

// Clear drops all optimistic state. Called on sign-out.
func (tr *Tracker) Clear() {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.moods = make(map[string]moodRecord)
}

// MergeCalendar overlays fresh optimistic moods onto a server-provided
// month listing. For days present in both, the overlay wins; days the
// overlay knows about but the server does not (entries created while
// offline) are added. The result is de-duplicated by date and sorted
// date-ascending. The input slice is not modified.
func (tr *Tracker) MergeCalendar(ref models.MonthRef, server []models.MonthEntry) []models.MonthEntry {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	now := tr.now()
	fresh := make(map[string]models.Mood)
	for key, rec := range tr.moods {
		if now.Sub(rec.storedAt) > tr.freshness {
			delete(tr.moods, key)
			continue
		}
		fresh[key] = rec.mood
	}

	merged := make([]models.MonthEntry, 0, len(server)+len(fresh))
	for _, e := range server {
		if mood, ok := fresh[e.Date.String()]; ok {
			merged = append(merged, models.MonthEntry{Date: e.Date, Mood: mood})
			delete(fresh, e.Date.String())
			continue
		}
		merged = append(merged, e)
	}
	for key, mood := range fresh {
		day, err := models.ParseDay(key)
		if err != nil || !ref.Contains(day) {
			continue
		}
		merged = append(merged, models.MonthEntry{Date: day, Mood: mood})
	}
	models.SortMonthEntries(merged)
	return merged
}
