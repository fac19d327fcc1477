// Daybook - Offline-First Sync Client for the Daybook Mood Journal
// Copyright 2026 A. Velikov (avelikov)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avelikov/daybook

package models

import (
	"fmt"
	"sort"
	"time"
)

// MonthRef identifies one calendar month.
type MonthRef struct {
	Year  int
	Month time.Month
}

// ParseMonthKey parses a YYYY-MM month key.
func ParseMonthKey(s string) (MonthRef, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return MonthRef{}, fmt.Errorf("invalid month key %q: %w", s, err)
	}
	return MonthRef{Year: t.Year(), Month: t.Month()}, nil
}

// Key returns the canonical YYYY-MM key (zero-padded month). This is the
// key format for the durable month cache and the server's month endpoint.
func (m MonthRef) Key() string {
	return fmt.Sprintf("%04d-%02d", m.Year, int(m.Month))
}

// String returns the same form as Key.
func (m MonthRef) String() string {
	return m.Key()
}

// IsZero reports whether the ref is the zero value.
func (m MonthRef) IsZero() bool {
	return m.Year == 0 && m.Month == 0
}

// Contains reports whether the day falls inside this month.
func (m MonthRef) Contains(d Day) bool {
	return d.t.Year() == m.Year && d.t.Month() == m.Month
}

// MonthEntry is one cell of the calendar projection: the day and the mood
// recorded for it. It is the only per-entry data the calendar view needs.
type MonthEntry struct {
	Date Day  `json:"date"`
	Mood Mood `json:"mood"`
}

// Pagination mirrors the server's month-list pagination block.
type Pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
}

// MonthPage is the server's month-list response shape.
type MonthPage struct {
	Entries    []MonthEntry `json:"entries"`
	Pagination Pagination   `json:"pagination"`
}

// SortMonthEntries orders entries by date ascending, in place.
func SortMonthEntries(entries []MonthEntry) {
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Date.Before(entries[j].Date)
	})
}

// PatchMonthEntries returns entries with the given day's mood replaced if a
// matching date exists, or appended otherwise, re-sorted by date ascending.
// This keeps a cached calendar month consistent after a save without a full
// re-fetch.
func PatchMonthEntries(entries []MonthEntry, day Day, mood Mood) []MonthEntry {
	patched := make([]MonthEntry, 0, len(entries)+1)
	replaced := false
	for _, e := range entries {
		if e.Date.Equal(day) {
			patched = append(patched, MonthEntry{Date: day, Mood: mood})
			replaced = true
			continue
		}
		patched = append(patched, e)
	}
	if !replaced {
		patched = append(patched, MonthEntry{Date: day, Mood: mood})
	}
	SortMonthEntries(patched)
	return patched
}
