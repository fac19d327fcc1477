// Daybook - Offline-First Sync Client for the Daybook Mood Journal
// Copyright 2026 A. Velikov (avelikov)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avelikov/daybook

package data

import (
	"testing"
	"time"

	"github.com/avelikov/daybook/internal/models"
)

func day(t *testing.T, s string) models.Day {
	t.Helper()
	d, err := models.ParseDay(s)
	if err != nil {
		t.Fatalf("parse day %q: %v", s, err)
	}
	return d
}

func TestTrackerFreshnessWindow(t *testing.T) {
	base := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	tr := NewTracker()
	tr.now = func() time.Time { return base }

	d := day(t, "2024-03-10")
	tr.StoreMood(d, models.MoodGood)

	// Three minutes later the optimistic mood still applies.
	tr.now = func() time.Time { return base.Add(3 * time.Minute) }
	if mood, ok := tr.Mood(d); !ok || mood != models.MoodGood {
		t.Fatalf("Mood at 3m = (%q, %v), want (good, true)", mood, ok)
	}

	// Six minutes later the window has lapsed and the record is gone.
	tr.now = func() time.Time { return base.Add(6 * time.Minute) }
	if mood, ok := tr.Mood(d); ok {
		t.Fatalf("Mood at 6m = (%q, %v), want absent", mood, ok)
	}
	// Lazy expiry removed the record, so rewinding the clock does not
	// resurrect it.
	tr.now = func() time.Time { return base }
	if _, ok := tr.Mood(d); ok {
		t.Fatal("expired record came back")
	}
}

func TestTrackerStoreMoodRestartsWindow(t *testing.T) {
	base := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	tr := NewTracker()
	tr.now = func() time.Time { return base }

	d := day(t, "2024-03-10")
	tr.StoreMood(d, models.MoodBad)

	tr.now = func() time.Time { return base.Add(4 * time.Minute) }
	tr.StoreMood(d, models.MoodExcellent)

	tr.now = func() time.Time { return base.Add(8 * time.Minute) }
	if mood, ok := tr.Mood(d); !ok || mood != models.MoodExcellent {
		t.Fatalf("Mood = (%q, %v), want (excellent, true): second save restarts the window", mood, ok)
	}
}

func TestTrackerClear(t *testing.T) {
	tr := NewTracker()
	d1 := day(t, "2024-03-10")
	d2 := day(t, "2024-03-11")
	tr.StoreMood(d1, models.MoodGood)
	tr.StoreMood(d2, models.MoodBad)

	tr.ClearMood(d1)
	if _, ok := tr.Mood(d1); ok {
		t.Error("ClearMood left the record")
	}
	if _, ok := tr.Mood(d2); !ok {
		t.Error("ClearMood removed an unrelated record")
	}

	tr.Clear()
	if _, ok := tr.Mood(d2); ok {
		t.Error("Clear left a record")
	}
}

func TestMergeCalendar(t *testing.T) {
	base := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	tr := NewTracker()
	tr.now = func() time.Time { return base }

	ref := models.MonthRef{Year: 2024, Month: time.March}
	server := []models.MonthEntry{
		{Date: day(t, "2024-03-01"), Mood: models.MoodGood},
		{Date: day(t, "2024-03-03"), Mood: models.MoodBad},
	}

	// Overlay wins for 03-03, adds the offline-created 03-02, and the
	// April record stays out of a March calendar.
	tr.StoreMood(day(t, "2024-03-03"), models.MoodNeutral)
	tr.StoreMood(day(t, "2024-03-02"), models.MoodExcellent)
	tr.StoreMood(day(t, "2024-04-01"), models.MoodTerrible)

	merged := tr.MergeCalendar(ref, server)

	want := []models.MonthEntry{
		{Date: day(t, "2024-03-01"), Mood: models.MoodGood},
		{Date: day(t, "2024-03-02"), Mood: models.MoodExcellent},
		{Date: day(t, "2024-03-03"), Mood: models.MoodNeutral},
	}
	if len(merged) != len(want) {
		t.Fatalf("merged = %+v, want %+v", merged, want)
	}
	for i := range want {
		if !merged[i].Date.Equal(want[i].Date) || merged[i].Mood != want[i].Mood {
			t.Errorf("merged[%d] = %+v, want %+v", i, merged[i], want[i])
		}
	}

	// Server input must not be modified in place.
	if server[1].Mood != models.MoodBad {
		t.Error("MergeCalendar mutated its input")
	}
}

func TestMergeCalendarSkipsStaleOverlay(t *testing.T) {
	base := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	tr := NewTracker()
	tr.now = func() time.Time { return base }

	ref := models.MonthRef{Year: 2024, Month: time.March}
	tr.StoreMood(day(t, "2024-03-05"), models.MoodGood)

	tr.now = func() time.Time { return base.Add(10 * time.Minute) }
	merged := tr.MergeCalendar(ref, nil)
	if len(merged) != 0 {
		t.Fatalf("stale overlay leaked into calendar: %+v", merged)
	}
}
