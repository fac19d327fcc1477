// Daybook - Offline-First Sync Client for the Daybook Mood Journal
// Copyright 2026 A. Velikov (avelikov)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avelikov/daybook

package connectivity

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/avelikov/daybook/internal/models"
	"github.com/avelikov/daybook/internal/remote"
)

// pingOnly implements remote.Interface; only Ping matters here.
type pingOnly struct {
	mu  sync.Mutex
	err error
}

func (p *pingOnly) setErr(err error) {
	p.mu.Lock()
	p.err = err
	p.mu.Unlock()
}

func (p *pingOnly) Ping(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func (p *pingOnly) SignIn(ctx context.Context, username, password string) error { return nil }
func (p *pingOnly) SignOut(ctx context.Context) error                          { return nil }

func (p *pingOnly) FetchMonth(ctx context.Context, ref models.MonthRef, page, limit int) (*models.MonthPage, error) {
	return nil, nil
}

func (p *pingOnly) FetchEntry(ctx context.Context, day models.Day) (*models.Entry, error) {
	return nil, nil
}

func (p *pingOnly) SaveEntry(ctx context.Context, day models.Day, payload models.EntryPayload) (*models.Entry, error) {
	return nil, nil
}

func TestMonitorStateFromProbe(t *testing.T) {
	rc := &pingOnly{}
	m := NewMonitor(rc, DefaultMonitorConfig())

	if m.Online() || m.Probed() {
		t.Error("monitor should start offline and unprobed")
	}

	m.probe(context.Background())
	if !m.Online() || !m.Probed() {
		t.Error("successful probe should mark online")
	}

	rc.setErr(errors.New("dial tcp: connection refused"))
	m.probe(context.Background())
	if m.Online() {
		t.Error("transport failure should mark offline")
	}

	// A server that answers, even with an error status, is reachable.
	rc.setErr(&remote.APIError{Status: 503, Message: "maintenance"})
	m.probe(context.Background())
	if !m.Online() {
		t.Error("an answering server should count as online")
	}
}

func TestMonitorPublishesTransitions(t *testing.T) {
	rc := &pingOnly{err: errors.New("unreachable")}
	m := NewMonitor(rc, DefaultMonitorConfig())
	ch := m.Subscribe()

	m.probe(context.Background())
	select {
	case online := <-ch:
		if online {
			t.Error("first transition should be offline")
		}
	case <-time.After(time.Second):
		t.Fatal("no transition published for the first probe")
	}

	// Same state again: no new transition.
	m.probe(context.Background())
	select {
	case v := <-ch:
		t.Errorf("unexpected transition %v for an unchanged state", v)
	default:
	}

	rc.setErr(nil)
	m.probe(context.Background())
	select {
	case online := <-ch:
		if !online {
			t.Error("expected online transition")
		}
	case <-time.After(time.Second):
		t.Fatal("no transition published on reconnect")
	}
}

func TestMonitorSlowSubscriberSeesNewestState(t *testing.T) {
	rc := &pingOnly{}
	m := NewMonitor(rc, DefaultMonitorConfig())
	ch := m.Subscribe()

	// Three flaps without the subscriber reading. The buffered channel
	// should end up holding the newest state, not the oldest.
	m.probe(context.Background())
	rc.setErr(errors.New("down"))
	m.probe(context.Background())
	rc.setErr(nil)
	m.probe(context.Background())

	select {
	case online := <-ch:
		if !online {
			t.Error("subscriber should observe the newest state")
		}
	default:
		t.Fatal("no state available to the subscriber")
	}
}

func TestMonitorStartStop(t *testing.T) {
	rc := &pingOnly{}
	m := NewMonitor(rc, MonitorConfig{Interval: 10 * time.Millisecond, ProbeTimeout: time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := m.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if !m.IsRunning() {
		t.Error("monitor not running after Start")
	}

	deadline := time.After(time.Second)
	for !m.Probed() {
		select {
		case <-deadline:
			t.Fatal("probe loop never probed")
		case <-time.After(time.Millisecond):
		}
	}

	m.Stop()
	if m.IsRunning() {
		t.Error("monitor still running after Stop")
	}
	m.Stop() // second stop is a no-op
}
