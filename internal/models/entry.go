// Daybook - Offline-First Sync Client for the Daybook Mood Journal
// Copyright 2026 A. Velikov (avelikov)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avelikov/daybook

package models

import (
	"strings"

	"github.com/google/uuid"
)

// Todo is one checklist item inside an entry. IDs are generated on the
// client and opaque to the server.
type Todo struct {
	ID        string `json:"id" validate:"required"`
	Text      string `json:"text" validate:"required"`
	Completed bool   `json:"completed"`
}

// NewTodo creates an uncompleted todo with a fresh ID.
func NewTodo(text string) Todo {
	return Todo{ID: uuid.New().String(), Text: text}
}

// Entry is one journal record for a single calendar day, as the server
// returns it. Saves to an existing day overwrite in place; there is no
// history.
type Entry struct {
	Date  Day      `json:"date"`
	Mood  Mood     `json:"mood"`
	Title string   `json:"title,omitempty"`
	Text  string   `json:"text,omitempty"`
	Tags  []string `json:"tags,omitempty"`
	Todos []Todo   `json:"todos,omitempty"`
}

// MonthEntry projects the entry down to its calendar cell.
func (e *Entry) MonthEntry() MonthEntry {
	return MonthEntry{Date: e.Date, Mood: e.Mood}
}

// EntryPayload is the outbound save body for POST /api/entry/{date}.
// Validation tags mirror the server's schema: mood is required and must be
// on the scale, tags must be non-empty strings (duplicates are allowed and
// order is preserved), todos need an id and text.
type EntryPayload struct {
	Mood  Mood     `json:"mood" validate:"required,oneof=excellent good neutral bad terrible"`
	Title string   `json:"title,omitempty" validate:"omitempty,max=200"`
	Text  string   `json:"text,omitempty" validate:"omitempty,max=10000"`
	Tags  []string `json:"tags,omitempty" validate:"omitempty,dive,min=1,max=100"`
	Todos []Todo   `json:"todos,omitempty" validate:"omitempty,dive"`
}

// Sanitize trims surrounding whitespace from the free-text fields and tags
// and drops tags that trim to nothing. Runs before validation so that a
// tag of pure whitespace is rejected as empty rather than accepted.
func (p *EntryPayload) Sanitize() {
	p.Title = strings.TrimSpace(p.Title)
	p.Text = strings.TrimSpace(p.Text)
	if len(p.Tags) > 0 {
		tags := p.Tags[:0]
		for _, tag := range p.Tags {
			if trimmed := strings.TrimSpace(tag); trimmed != "" {
				tags = append(tags, trimmed)
			}
		}
		p.Tags = tags
	}
	for i := range p.Todos {
		p.Todos[i].Text = strings.TrimSpace(p.Todos[i].Text)
	}
}

// Entry materializes the payload as a full entry for the given day. Used
// for the optimistic cache state before the server's authoritative response
// arrives.
func (p *EntryPayload) Entry(day Day) *Entry {
	return &Entry{
		Date:  day,
		Mood:  p.Mood,
		Title: p.Title,
		Text:  p.Text,
		Tags:  p.Tags,
		Todos: p.Todos,
	}
}
