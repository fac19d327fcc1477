// Daybook - Offline-First Sync Client for the Daybook Mood Journal
// Copyright 2026 A. Velikov (avelikov)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avelikov/daybook

package store

import (
	"fmt"
	"time"
)

// Config holds durable-store configuration.
type Config struct {
	// Path is the BadgerDB directory. Ignored when InMemory is set.
	Path string

	// InMemory runs Badger without disk persistence. Test use only.
	InMemory bool

	// SyncWrites forces fsync on every write. The store is a cache plus
	// outbox, not the system of record, so this defaults to off; enable it
	// when losing a queued write on power failure is unacceptable.
	SyncWrites bool

	// GCRatio is the Badger value-log GC threshold. Default: 0.5
	GCRatio float64

	// GCInterval is how often the supervised GC service runs. Default: 10m
	GCInterval time.Duration

	// CloseTimeout bounds how long Close waits for Badger. Default: 30s
	CloseTimeout time.Duration
}

// DefaultConfig returns production defaults rooted at the given path.
func DefaultConfig(path string) Config {
	return Config{
		Path:         path,
		GCRatio:      0.5,
		GCInterval:   10 * time.Minute,
		CloseTimeout: 30 * time.Second,
	}
}

// Validate checks the configuration for usable values.
func (c *Config) Validate() error {
	if !c.InMemory && c.Path == "" {
		return fmt.Errorf("store path is required")
	}
	if c.GCRatio < 0 || c.GCRatio > 1 {
		return fmt.Errorf("GC ratio must be in [0, 1], got %v", c.GCRatio)
	}
	return nil
}

// withDefaults fills zero values with defaults.
func (c Config) withDefaults() Config {
	if c.GCRatio == 0 {
		c.GCRatio = 0.5
	}
	if c.GCInterval == 0 {
		c.GCInterval = 10 * time.Minute
	}
	if c.CloseTimeout == 0 {
		c.CloseTimeout = 30 * time.Second
	}
	return c
}
