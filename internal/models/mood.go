// Daybook - Offline-First Sync Client for the Daybook Mood Journal
// Copyright 2026 A. Velikov (avelikov)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avelikov/daybook

package models

import "fmt"

// Mood is the fixed five-value mood scale. The server rejects anything
// outside this set, so Daybook validates before queueing a write.
type Mood string

// The mood scale, best to worst.
const (
	MoodExcellent Mood = "excellent"
	MoodGood      Mood = "good"
	MoodNeutral   Mood = "neutral"
	MoodBad       Mood = "bad"
	MoodTerrible  Mood = "terrible"
)

// Moods lists all valid moods.
var Moods = []Mood{MoodExcellent, MoodGood, MoodNeutral, MoodBad, MoodTerrible}

// Valid reports whether the mood is one of the five known values.
func (m Mood) Valid() bool {
	switch m {
	case MoodExcellent, MoodGood, MoodNeutral, MoodBad, MoodTerrible:
		return true
	}
	return false
}

// String returns the wire form.
func (m Mood) String() string {
	return string(m)
}

// ParseMood validates a raw mood string.
func ParseMood(s string) (Mood, error) {
	m := Mood(s)
	if !m.Valid() {
		return "", fmt.Errorf("invalid mood %q", s)
	}
	return m, nil
}
