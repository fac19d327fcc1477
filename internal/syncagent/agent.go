// Daybook - Offline-First Sync Client for the Daybook Mood Journal
// Copyright 2026 A. Velikov (avelikov)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avelikov/daybook

// Package syncagent drains the outbox: writes queued while the server
// was unreachable are replayed in their original order once it comes
// back. One agent runs per process, triggered by reconnect transitions
// from the connectivity monitor and by explicit kicks from the gateway.
package syncagent

import (
	"context"
	"sync"
	"time"

	"github.com/avelikov/daybook/internal/data"
	"github.com/avelikov/daybook/internal/logging"
	"github.com/avelikov/daybook/internal/metrics"
	"github.com/avelikov/daybook/internal/models"
	"github.com/avelikov/daybook/internal/remote"
	"github.com/avelikov/daybook/internal/store"
)

// ReplayOutcome classifies a single replay attempt.
type ReplayOutcome string

const (
	// ReplayOK: the server accepted the write; it left the outbox.
	ReplayOK ReplayOutcome = "ok"

	// ReplayRetryable: the write stayed queued for a later pass.
	ReplayRetryable ReplayOutcome = "retryable"

	// ReplayPoison: the server rejected the payload itself; the write
	// was removed because retrying it can never succeed.
	ReplayPoison ReplayOutcome = "poison"
)

// ReplayResult is handed to the replay hook after every attempt.
type ReplayResult struct {
	Date     models.Day
	Outcome  ReplayOutcome
	Attempts int
	Err      error
}

// AgentConfig configures the sync agent.
type AgentConfig struct {
	// RequestTimeout bounds each individual replay request.
	RequestTimeout time.Duration

	// Online gates drain passes. When set and returning false, a
	// trigger is ignored instead of burning an attempt against a server
	// known to be down. Nil means always try.
	Online func() bool

	// OnReplay, when set, observes every replay attempt. The gateway
	// uses it to surface dropped writes on the status endpoint.
	OnReplay func(ReplayResult)
}

// DefaultAgentConfig returns production defaults.
func DefaultAgentConfig() AgentConfig {
	return AgentConfig{RequestTimeout: 15 * time.Second}
}

// Agent replays queued writes strictly in enqueue order, one at a time,
// awaiting each response before sending the next. A retryable failure
// ends the pass so order is preserved; the next trigger starts over from
// the oldest record.
type Agent struct {
	store       *store.Store
	remote      remote.Interface
	accessor    *data.Accessor
	config      AgentConfig
	transitions <-chan bool
	kickChan    chan struct{}

	// Runtime state
	mu       sync.RWMutex
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewAgent creates an agent over the shared store and remote client.
// transitions is the connectivity monitor's subscription channel; it may
// be nil, in which case only kicks trigger drains.
func NewAgent(st *store.Store, rc remote.Interface, acc *data.Accessor, transitions <-chan bool, config AgentConfig) *Agent {
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = 15 * time.Second
	}
	return &Agent{
		store:       st,
		remote:      rc,
		accessor:    acc,
		config:      config,
		transitions: transitions,
		kickChan:    make(chan struct{}, 1),
		stopChan:    make(chan struct{}),
	}
}

// Kick requests a drain pass. Non-blocking; kicks while a pass is
// already pending coalesce into one.
func (a *Agent) Kick() {
	select {
	case a.kickChan <- struct{}{}:
	default:
	}
}

// Start begins the trigger loop.
func (a *Agent) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return nil
	}
	a.running = true
	a.stopChan = make(chan struct{})
	a.mu.Unlock()

	logging.Info().Msg("Starting sync agent")

	a.wg.Add(1)
	go a.triggerLoop(ctx)

	// Writes may have been queued before this process started.
	a.Kick()

	return nil
}

// Serve implements suture.Service for supervisor integration.
func (a *Agent) Serve(ctx context.Context) error {
	if err := a.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	a.Stop()
	return ctx.Err()
}

// Stop gracefully stops the trigger loop. An in-flight drain pass
// finishes its current request first.
func (a *Agent) Stop() {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return
	}
	a.running = false
	close(a.stopChan)
	a.mu.Unlock()

	a.wg.Wait()
	logging.Info().Msg("[syncagent] Agent stopped")
}

// IsRunning returns whether the trigger loop is active.
func (a *Agent) IsRunning() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.running
}

func (a *Agent) triggerLoop(ctx context.Context) {
	defer a.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-a.stopChan:
			return
		case <-a.kickChan:
			a.Drain(ctx)
		case online, ok := <-a.transitions:
			if !ok {
				a.transitions = nil
				continue
			}
			if online {
				a.Drain(ctx)
			}
		}
	}
}

// Drain replays every queued write in enqueue order until the outbox is
// empty or a retryable failure ends the pass. Safe to call directly;
// tests and the gateway's synchronous sync endpoint do.
func (a *Agent) Drain(ctx context.Context) {
	if a.config.Online != nil && !a.config.Online() {
		logging.Debug().Msg("[syncagent] Drain skipped, server offline")
		return
	}

	pending, err := a.store.ListPending()
	if err != nil {
		logging.Error().Err(err).Msg("[syncagent] Listing outbox failed")
		return
	}
	if len(pending) == 0 {
		return
	}

	logging.Info().Int("pending", len(pending)).Msg("[syncagent] Draining outbox")

	months := make(map[string]models.MonthRef)
	for _, w := range pending {
		select {
		case <-ctx.Done():
			return
		case <-a.stopChan:
			return
		default:
		}
		ok := a.replay(ctx, w)
		months[w.Date.Month().Key()] = w.Date.Month()
		if !ok {
			return
		}
	}

	// The pass emptied the outbox. Refetch the touched months so the
	// durable snapshots hold the server's reconciled calendar before the
	// next offline stretch.
	if a.accessor != nil {
		for _, ref := range months {
			if _, err := a.accessor.Revalidate(ctx, ref); err != nil {
				logging.Debug().Err(err).Str("month", ref.Key()).Msg("[syncagent] Post-drain revalidation failed")
			}
		}
	}
}

// replay sends one queued write. It returns false when the pass should
// stop: replaying newer writes past a failed older one would reorder
// the user's edits on the server.
func (a *Agent) replay(ctx context.Context, w *store.PendingWrite) bool {
	reqCtx, cancel := context.WithTimeout(ctx, a.config.RequestTimeout)
	_, err := a.remote.SaveEntry(reqCtx, w.Date, w.Payload)
	cancel()

	if err == nil {
		a.finish(w, ReplayOK, nil)
		return true
	}

	if apiErr, ok := remote.AsAPIError(err); ok && apiErr.Validation() {
		// The server understood the request and rejected the payload.
		// It would reject it identically forever, so the record is
		// dropped rather than wedging the queue behind it.
		logging.Error().Err(err).Str("date", w.Date.String()).Int("attempts", w.Attempts+1).
			Msg("[syncagent] Queued write rejected by server, dropping")
		a.finish(w, ReplayPoison, err)
		return true
	}

	// Transport failure, auth lapse or server error: the write stays
	// queued and the pass ends.
	if merr := a.store.MarkAttempt(w.Date, err.Error()); merr != nil {
		logging.Warn().Err(merr).Str("date", w.Date.String()).Msg("[syncagent] Recording attempt failed")
	}
	logging.Warn().Err(err).Str("date", w.Date.String()).Int("attempts", w.Attempts+1).
		Msg("[syncagent] Replay failed, write stays queued")
	metrics.ReplayResults.WithLabelValues(string(ReplayRetryable)).Inc()
	a.notify(ReplayResult{Date: w.Date, Outcome: ReplayRetryable, Attempts: w.Attempts + 1, Err: err})
	return false
}

// finish resolves the record and reconciles local read state for both
// terminal outcomes. Removal is conditional on the revision this pass
// read: a save queued for the same day while the replay was in flight
// replaced the record, and that newer payload must survive to the next
// pass rather than be deleted alongside the one that was sent.
func (a *Agent) finish(w *store.PendingWrite, outcome ReplayOutcome, err error) {
	removed, rerr := a.store.RemovePendingRevision(w.Date, w.Revision)
	if rerr != nil {
		logging.Warn().Err(rerr).Str("date", w.Date.String()).Msg("[syncagent] Removing outbox record failed")
	}
	if !removed && rerr == nil {
		// Replaced mid-replay (the newer write owns the optimistic state
		// now) or wiped by a sign-out; either way, hands off.
		logging.Info().Str("date", w.Date.String()).
			Msg("[syncagent] Outbox record changed during replay, leaving it untouched")
	} else if a.accessor != nil {
		a.accessor.Tracker().ClearMood(w.Date)
		a.accessor.InvalidateDay(w.Date)
	}
	if outcome == ReplayOK {
		logging.Info().Str("date", w.Date.String()).Msg("[syncagent] Queued write confirmed")
	}
	metrics.ReplayResults.WithLabelValues(string(outcome)).Inc()
	a.notify(ReplayResult{Date: w.Date, Outcome: outcome, Attempts: w.Attempts + 1, Err: err})
}

func (a *Agent) notify(res ReplayResult) {
	if a.config.OnReplay != nil {
		a.config.OnReplay(res)
	}
}
