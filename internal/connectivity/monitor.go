// Daybook - Offline-First Sync Client for the Daybook Mood Journal
// Copyright 2026 A. Velikov (avelikov)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avelikov/daybook

// Package connectivity watches whether the journal server is reachable.
// The monitor probes the server's health endpoint on an interval and
// publishes online/offline transitions; the sync agent drains the outbox
// on every offline-to-online edge.
package connectivity

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/avelikov/daybook/internal/logging"
	"github.com/avelikov/daybook/internal/metrics"
	"github.com/avelikov/daybook/internal/remote"
)

// Monitor tracks server reachability via periodic health probes.
type Monitor struct {
	remote remote.Interface
	config MonitorConfig

	// limiter paces on-demand probes so a burst of gateway requests
	// cannot hammer the health endpoint.
	limiter *rate.Limiter

	// Runtime state
	mu       sync.RWMutex
	running  bool
	online   bool
	probed   bool
	subs     []chan bool
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// MonitorConfig configures probing behavior.
type MonitorConfig struct {
	// Interval is how often to probe the health endpoint.
	Interval time.Duration

	// ProbeTimeout bounds a single probe.
	ProbeTimeout time.Duration
}

// DefaultMonitorConfig returns production defaults.
func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		Interval:     30 * time.Second,
		ProbeTimeout: 5 * time.Second,
	}
}

// NewMonitor creates a monitor over the given client. Until the first
// probe completes the state reads as offline.
func NewMonitor(rc remote.Interface, config MonitorConfig) *Monitor {
	if config.Interval <= 0 {
		config.Interval = 30 * time.Second
	}
	if config.ProbeTimeout <= 0 {
		config.ProbeTimeout = 5 * time.Second
	}
	return &Monitor{
		remote:   rc,
		config:   config,
		limiter:  rate.NewLimiter(rate.Every(config.Interval/2), 1),
		stopChan: make(chan struct{}),
	}
}

// Online reports the last observed reachability.
func (m *Monitor) Online() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.online
}

// Probed reports whether at least one probe has completed, so status
// consumers can distinguish "offline" from "not checked yet".
func (m *Monitor) Probed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.probed
}

// Subscribe returns a channel receiving the new state on every
// online/offline transition. The channel is buffered and sends are
// non-blocking; a slow consumer misses intermediate flaps but always
// observes a recent state.
func (m *Monitor) Subscribe() <-chan bool {
	ch := make(chan bool, 1)
	m.mu.Lock()
	m.subs = append(m.subs, ch)
	m.mu.Unlock()
	return ch
}

// Start begins the probe loop.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = true
	m.stopChan = make(chan struct{})
	m.mu.Unlock()

	logging.Info().Dur("interval", m.config.Interval).Msg("Starting connectivity monitor")

	m.wg.Add(1)
	go m.probeLoop(ctx)

	return nil
}

// Serve implements suture.Service for supervisor integration.
func (m *Monitor) Serve(ctx context.Context) error {
	if err := m.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	m.Stop()
	return ctx.Err()
}

// Stop gracefully stops the probe loop.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	close(m.stopChan)
	m.mu.Unlock()

	m.wg.Wait()
	logging.Info().Msg("[connectivity] Monitor stopped")
}

// IsRunning returns whether the probe loop is active.
func (m *Monitor) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

// CheckNow runs an immediate probe, subject to rate limiting. Callers
// use it when they have fresh evidence the state changed, like a request
// that just failed at the transport. Returns the current state either
// way.
func (m *Monitor) CheckNow(ctx context.Context) bool {
	if m.limiter.Allow() {
		m.probe(ctx)
	}
	return m.Online()
}

func (m *Monitor) probeLoop(ctx context.Context) {
	defer m.wg.Done()

	m.probe(ctx)

	ticker := time.NewTicker(m.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopChan:
			return
		case <-ticker.C:
			m.probe(ctx)
		}
	}
}

// probe pings the server once and records the resulting state. A server
// that answers with an error status is still reachable; only transport
// failures count as offline.
func (m *Monitor) probe(ctx context.Context) {
	probeCtx, cancel := context.WithTimeout(ctx, m.config.ProbeTimeout)
	defer cancel()

	err := m.remote.Ping(probeCtx)
	online := err == nil || !remote.IsNetworkFailure(err)
	m.setState(online)
}

func (m *Monitor) setState(online bool) {
	m.mu.Lock()
	changed := !m.probed || online != m.online
	m.online = online
	m.probed = true
	subs := m.subs
	m.mu.Unlock()

	if online {
		metrics.Online.Set(1)
	} else {
		metrics.Online.Set(0)
	}
	if !changed {
		return
	}

	logging.Info().Bool("online", online).Msg("[connectivity] Server reachability changed")
	for _, ch := range subs {
		select {
		case ch <- online:
		default:
			// Drop the stale value so the subscriber sees the newest state.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- online:
			default:
			}
		}
	}
}
