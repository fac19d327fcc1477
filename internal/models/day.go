// Daybook - Offline-First Sync Client for the Daybook Mood Journal
// Copyright 2026 A. Velikov (avelikov)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avelikov/daybook

// Package models defines the journal data model shared by every Daybook
// component: calendar days, moods, entries, and month projections.
package models

import (
	"fmt"
	"time"
)

// dayFormat is the wire and storage form of a calendar day.
const dayFormat = "2006-01-02"

// Day is a single calendar day, normalized to UTC midnight. The journal
// server keys entries by (user, day); Daybook keys every local record set
// the same way. The zero Day is invalid.
type Day struct {
	t time.Time
}

// ParseDay parses a day in YYYY-MM-DD form.
func ParseDay(s string) (Day, error) {
	t, err := time.Parse(dayFormat, s)
	if err != nil {
		return Day{}, fmt.Errorf("invalid day %q: %w", s, err)
	}
	return DayOf(t), nil
}

// DayOf truncates an arbitrary timestamp to its UTC calendar day.
func DayOf(t time.Time) Day {
	t = t.UTC()
	return Day{t: time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)}
}

// String returns the YYYY-MM-DD form.
func (d Day) String() string {
	return d.t.Format(dayFormat)
}

// Time returns the underlying UTC-midnight timestamp.
func (d Day) Time() time.Time {
	return d.t
}

// IsZero reports whether the day is the zero value.
func (d Day) IsZero() bool {
	return d.t.IsZero()
}

// Before reports whether d is earlier than other.
func (d Day) Before(other Day) bool {
	return d.t.Before(other.t)
}

// Equal reports whether two days name the same calendar day.
func (d Day) Equal(other Day) bool {
	return d.t.Equal(other.t)
}

// Month returns the month the day belongs to.
func (d Day) Month() MonthRef {
	return MonthRef{Year: d.t.Year(), Month: d.t.Month()}
}

// MarshalJSON encodes the day as a YYYY-MM-DD string.
func (d Day) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

// UnmarshalJSON accepts either a bare YYYY-MM-DD string or a full RFC 3339
// timestamp. The server stores days as UTC-midnight timestamps and some
// responses render them in full; both collapse to the same Day.
func (d *Day) UnmarshalJSON(data []byte) error {
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return fmt.Errorf("invalid day literal %s", data)
	}
	s := string(data[1 : len(data)-1])
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		*d = DayOf(t)
		return nil
	}
	day, err := ParseDay(s)
	if err != nil {
		return err
	}
	*d = day
	return nil
}
