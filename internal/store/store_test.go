// Daybook - Offline-First Sync Client for the Daybook Mood Journal
// Copyright 2026 A. Velikov (avelikov)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avelikov/daybook

package store

import (
	"testing"

	"github.com/avelikov/daybook/internal/models"
)

// openTestStore returns an in-memory store closed at test end.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Config{InMemory: true})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("close store: %v", err)
		}
	})
	return s
}

func day(t *testing.T, s string) models.Day {
	t.Helper()
	d, err := models.ParseDay(s)
	if err != nil {
		t.Fatalf("parse day %s: %v", s, err)
	}
	return d
}

func TestEntryRoundTrip(t *testing.T) {
	s := openTestStore(t)

	entry := &models.Entry{
		Date:  day(t, "2024-01-05"),
		Mood:  models.MoodGood,
		Title: "a day",
		Text:  "some text",
		Tags:  []string{"one", "one", "two"},
		Todos: []models.Todo{{ID: "td-1", Text: "walk", Completed: true}},
	}
	if err := s.PutEntry(entry); err != nil {
		t.Fatalf("put entry: %v", err)
	}

	got, err := s.GetEntry(entry.Date)
	if err != nil {
		t.Fatalf("get entry: %v", err)
	}
	if got == nil {
		t.Fatal("expected stored entry, got nil")
	}
	if got.StoredAt.IsZero() {
		t.Error("expected StoredAt stamp")
	}
	e := got.Entry
	if !e.Date.Equal(entry.Date) || e.Mood != entry.Mood || e.Title != entry.Title || e.Text != entry.Text {
		t.Errorf("entry fields changed in round trip: %+v", e)
	}
	if len(e.Tags) != 3 || e.Tags[0] != "one" || e.Tags[1] != "one" {
		t.Errorf("tags changed in round trip (duplicates must survive): %v", e.Tags)
	}
	if len(e.Todos) != 1 || e.Todos[0].ID != "td-1" || !e.Todos[0].Completed {
		t.Errorf("todos changed in round trip: %v", e.Todos)
	}
}

func TestEntryMissIsNotAnError(t *testing.T) {
	s := openTestStore(t)

	got, err := s.GetEntry(day(t, "2030-01-01"))
	if err != nil {
		t.Fatalf("unexpected error on miss: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil on miss, got %+v", got)
	}
}

func TestEntryUpsertOverwrites(t *testing.T) {
	s := openTestStore(t)
	d := day(t, "2024-01-05")

	if err := s.PutEntry(&models.Entry{Date: d, Mood: models.MoodBad}); err != nil {
		t.Fatalf("first put: %v", err)
	}
	if err := s.PutEntry(&models.Entry{Date: d, Mood: models.MoodExcellent, Text: "better"}); err != nil {
		t.Fatalf("second put: %v", err)
	}

	got, err := s.GetEntry(d)
	if err != nil {
		t.Fatalf("get entry: %v", err)
	}
	if got.Entry.Mood != models.MoodExcellent || got.Entry.Text != "better" {
		t.Errorf("expected second payload to win, got %+v", got.Entry)
	}
}

func TestMonthRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ref := models.MonthRef{Year: 2024, Month: 3}

	entries := []models.MonthEntry{
		{Date: day(t, "2024-03-01"), Mood: models.MoodGood},
		{Date: day(t, "2024-03-03"), Mood: models.MoodBad},
	}
	if err := s.PutMonth(ref, entries); err != nil {
		t.Fatalf("put month: %v", err)
	}

	got, err := s.GetMonth(ref)
	if err != nil {
		t.Fatalf("get month: %v", err)
	}
	if got == nil {
		t.Fatal("expected snapshot, got nil")
	}
	if len(got.Entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(got.Entries))
	}
	if got.StoredAt.IsZero() {
		t.Error("expected StoredAt stamp")
	}

	// A different month is a miss.
	other, err := s.GetMonth(models.MonthRef{Year: 2024, Month: 4})
	if err != nil {
		t.Fatalf("get other month: %v", err)
	}
	if other != nil {
		t.Errorf("expected nil for uncached month, got %+v", other)
	}
}

func TestResponseCacheRoundTrip(t *testing.T) {
	s := openTestStore(t)
	url := "/api/entries/2024-03?page=1&limit=31"

	if err := s.PutResponse(url, 200, "application/json", []byte(`{"entries":[]}`)); err != nil {
		t.Fatalf("put response: %v", err)
	}

	got, err := s.GetResponse(url)
	if err != nil {
		t.Fatalf("get response: %v", err)
	}
	if got == nil {
		t.Fatal("expected cached response")
	}
	if got.Status != 200 || string(got.Body) != `{"entries":[]}` {
		t.Errorf("unexpected cached response: %+v", got)
	}

	// Exact-URL keying: a different query string is a different key.
	miss, err := s.GetResponse("/api/entries/2024-03?page=2&limit=31")
	if err != nil {
		t.Fatalf("get response: %v", err)
	}
	if miss != nil {
		t.Error("expected miss for different query string")
	}
}

func TestClearAll(t *testing.T) {
	s := openTestStore(t)
	d := day(t, "2024-03-02")

	if err := s.PutEntry(&models.Entry{Date: d, Mood: models.MoodGood}); err != nil {
		t.Fatal(err)
	}
	if err := s.PutMonth(d.Month(), []models.MonthEntry{{Date: d, Mood: models.MoodGood}}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.EnqueueWrite(d, models.EntryPayload{Mood: models.MoodGood}, OpUpdate); err != nil {
		t.Fatal(err)
	}
	if err := s.PutResponse("/api/entry/2024-03-02", 200, "application/json", []byte("{}")); err != nil {
		t.Fatal(err)
	}

	if err := s.ClearAll(); err != nil {
		t.Fatalf("clear all: %v", err)
	}

	if got, _ := s.GetEntry(d); got != nil {
		t.Error("expected entries cleared")
	}
	if got, _ := s.GetMonth(d.Month()); got != nil {
		t.Error("expected month cache cleared")
	}
	if pending, _ := s.ListPending(); len(pending) != 0 {
		t.Errorf("expected outbox cleared, got %d records", len(pending))
	}
	if got, _ := s.GetResponse("/api/entry/2024-03-02"); got != nil {
		t.Error("expected response cache cleared")
	}
}

func TestClosedStoreErrors(t *testing.T) {
	s, err := Open(Config{InMemory: true})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close store: %v", err)
	}

	if err := s.PutEntry(&models.Entry{Date: day(t, "2024-03-02"), Mood: models.MoodGood}); err != ErrClosed {
		t.Errorf("expected ErrClosed, got %v", err)
	}
	if _, err := s.ListPending(); err != ErrClosed {
		t.Errorf("expected ErrClosed, got %v", err)
	}
	// Double close is a no-op.
	if err := s.Close(); err != nil {
		t.Errorf("second close: %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := Config{}
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for missing path")
	}
	cfg = Config{InMemory: true}
	if err := cfg.Validate(); err != nil {
		t.Errorf("in-memory config should not need a path: %v", err)
	}
	cfg = Config{Path: "/tmp/x", GCRatio: 1.5}
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for GC ratio > 1")
	}
}
