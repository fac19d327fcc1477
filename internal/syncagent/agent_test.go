// Daybook - Offline-First Sync Client for the Daybook Mood Journal
// Copyright 2026 A. Velikov (avelikov)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avelikov/daybook

package syncagent

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/avelikov/daybook/internal/data"
	"github.com/avelikov/daybook/internal/models"
	"github.com/avelikov/daybook/internal/remote"
	"github.com/avelikov/daybook/internal/store"
)

// replayServer records the order of replayed saves and fails scripted
// dates with a scripted error.
type replayServer struct {
	mu           sync.Mutex
	saved        []string
	failWith     map[string]error
	monthFetches []string

	// onSave, when set, runs at the start of SaveEntry. Tests use it to
	// interleave local activity with an in-flight replay.
	onSave func(models.Day)
}

func newReplayServer() *replayServer {
	return &replayServer{failWith: make(map[string]error)}
}

func (r *replayServer) savedDates() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.saved...)
}

func (r *replayServer) SaveEntry(ctx context.Context, d models.Day, payload models.EntryPayload) (*models.Entry, error) {
	if r.onSave != nil {
		r.onSave(d)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err, ok := r.failWith[d.String()]; ok {
		return nil, err
	}
	r.saved = append(r.saved, d.String())
	return payload.Entry(d), nil
}

func (r *replayServer) SignIn(ctx context.Context, username, password string) error { return nil }
func (r *replayServer) SignOut(ctx context.Context) error                          { return nil }
func (r *replayServer) Ping(ctx context.Context) error                             { return nil }

func (r *replayServer) FetchMonth(ctx context.Context, ref models.MonthRef, page, limit int) (*models.MonthPage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.monthFetches = append(r.monthFetches, ref.Key())
	return &models.MonthPage{}, nil
}

func (r *replayServer) fetchedMonths() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.monthFetches...)
}

func (r *replayServer) FetchEntry(ctx context.Context, d models.Day) (*models.Entry, error) {
	return nil, &remote.APIError{Status: 404, Message: "entry not found"}
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for !cond() {
		select {
		case <-deadline:
			t.Fatal("condition not reached in time")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func day(t *testing.T, s string) models.Day {
	t.Helper()
	d, err := models.ParseDay(s)
	if err != nil {
		t.Fatalf("parse day %q: %v", s, err)
	}
	return d
}

func newTestAgent(t *testing.T, rc remote.Interface, config AgentConfig) (*Agent, *store.Store, *data.Tracker) {
	t.Helper()
	st, err := store.Open(store.Config{InMemory: true})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	tracker := data.NewTracker()
	acc := data.NewAccessor(rc, st, tracker, data.AccessorOptions{})
	return NewAgent(st, rc, acc, nil, config), st, tracker
}

func enqueue(t *testing.T, st *store.Store, d models.Day, mood models.Mood) {
	t.Helper()
	if _, err := st.EnqueueWrite(d, models.EntryPayload{Mood: mood}, store.OpCreate); err != nil {
		t.Fatalf("enqueue %s: %v", d, err)
	}
}

func TestDrainReplaysInEnqueueOrder(t *testing.T) {
	rc := newReplayServer()
	agent, st, tracker := newTestAgent(t, rc, DefaultAgentConfig())

	// Enqueue order deliberately differs from date order.
	enqueue(t, st, day(t, "2024-03-05"), models.MoodGood)
	enqueue(t, st, day(t, "2024-03-01"), models.MoodBad)
	enqueue(t, st, day(t, "2024-03-09"), models.MoodNeutral)
	tracker.StoreMood(day(t, "2024-03-05"), models.MoodGood)

	agent.Drain(context.Background())

	want := []string{"2024-03-05", "2024-03-01", "2024-03-09"}
	got := rc.savedDates()
	if len(got) != len(want) {
		t.Fatalf("replayed %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("replayed %v, want %v", got, want)
		}
	}

	if pending, _ := st.ListPending(); len(pending) != 0 {
		t.Errorf("outbox not empty after drain: %+v", pending)
	}
	if _, ok := tracker.Mood(day(t, "2024-03-05")); ok {
		t.Error("confirmed replay left its optimistic mood")
	}
}

func TestSaveDuringReplayStaysQueued(t *testing.T) {
	rc := newReplayServer()
	agent, st, tracker := newTestAgent(t, rc, DefaultAgentConfig())
	d := day(t, "2024-03-02")

	enqueue(t, st, d, models.MoodBad)

	// The user saves again while the older payload is on the wire. The
	// replacement must survive the replay's bookkeeping.
	rc.onSave = func(models.Day) {
		rc.onSave = nil
		if _, err := st.EnqueueWrite(d, models.EntryPayload{Mood: models.MoodGood}, store.OpUpdate); err != nil {
			t.Errorf("mid-replay enqueue: %v", err)
		}
		tracker.StoreMood(d, models.MoodGood)
	}

	agent.Drain(context.Background())

	if got := rc.savedDates(); len(got) != 1 || got[0] != "2024-03-02" {
		t.Fatalf("replayed %v, want the older payload once", got)
	}

	pending, err := st.ListPending()
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("outbox has %d records after replay, want the newer write kept", len(pending))
	}
	if pending[0].Payload.Mood != models.MoodGood {
		t.Errorf("queued payload = %+v, want the mid-replay replacement", pending[0].Payload)
	}
	if mood, ok := tracker.Mood(d); !ok || mood != models.MoodGood {
		t.Errorf("optimistic mood = %v, %v; the newer write's mood must survive", mood, ok)
	}
}

func TestDrainRevalidatesTouchedMonths(t *testing.T) {
	rc := newReplayServer()
	agent, st, _ := newTestAgent(t, rc, DefaultAgentConfig())

	enqueue(t, st, day(t, "2024-03-05"), models.MoodGood)
	enqueue(t, st, day(t, "2024-04-01"), models.MoodBad)

	agent.Drain(context.Background())

	fetched := rc.fetchedMonths()
	if len(fetched) != 2 {
		t.Fatalf("post-drain month fetches = %v, want both touched months", fetched)
	}
	seen := map[string]bool{}
	for _, key := range fetched {
		seen[key] = true
	}
	if !seen["2024-03"] || !seen["2024-04"] {
		t.Errorf("post-drain month fetches = %v, want 2024-03 and 2024-04", fetched)
	}
}

func TestDrainSkipsRevalidationAfterFailedPass(t *testing.T) {
	rc := newReplayServer()
	rc.failWith["2024-03-05"] = errors.New("dial tcp: connection refused")
	agent, st, _ := newTestAgent(t, rc, DefaultAgentConfig())

	enqueue(t, st, day(t, "2024-03-05"), models.MoodGood)

	agent.Drain(context.Background())

	if fetched := rc.fetchedMonths(); len(fetched) != 0 {
		t.Errorf("post-drain month fetches = %v, want none after a failed pass", fetched)
	}
}

func TestDrainStopsAtRetryableFailure(t *testing.T) {
	rc := newReplayServer()
	rc.failWith["2024-03-01"] = errors.New("connection reset")
	agent, st, _ := newTestAgent(t, rc, DefaultAgentConfig())

	enqueue(t, st, day(t, "2024-03-01"), models.MoodGood)
	enqueue(t, st, day(t, "2024-03-02"), models.MoodBad)

	agent.Drain(context.Background())

	if got := rc.savedDates(); len(got) != 0 {
		t.Errorf("newer write replayed past a failed older one: %v", got)
	}

	pending, _ := st.ListPending()
	if len(pending) != 2 {
		t.Fatalf("pending = %+v, want both writes still queued", pending)
	}
	if pending[0].Attempts != 1 || pending[0].LastError == "" {
		t.Errorf("failed write not marked: %+v", pending[0])
	}
	if pending[1].Attempts != 0 {
		t.Errorf("untried write marked: %+v", pending[1])
	}
}

func TestDrainDropsPoisonAndContinues(t *testing.T) {
	rc := newReplayServer()
	rc.failWith["2024-03-01"] = &remote.APIError{Status: 400, Message: "mood is invalid"}

	var results []ReplayResult
	config := DefaultAgentConfig()
	config.OnReplay = func(res ReplayResult) { results = append(results, res) }
	agent, st, _ := newTestAgent(t, rc, config)

	enqueue(t, st, day(t, "2024-03-01"), models.MoodGood)
	enqueue(t, st, day(t, "2024-03-02"), models.MoodBad)

	agent.Drain(context.Background())

	if got := rc.savedDates(); len(got) != 1 || got[0] != "2024-03-02" {
		t.Fatalf("replayed %v, want the write behind the poison one", got)
	}
	if pending, _ := st.ListPending(); len(pending) != 0 {
		t.Errorf("poison record still queued: %+v", pending)
	}

	if len(results) != 2 {
		t.Fatalf("results = %+v, want poison then ok", results)
	}
	if results[0].Outcome != ReplayPoison || results[0].Date.String() != "2024-03-01" {
		t.Errorf("results[0] = %+v", results[0])
	}
	if results[1].Outcome != ReplayOK {
		t.Errorf("results[1] = %+v", results[1])
	}
}

func TestAuthFailureIsRetryableNotPoison(t *testing.T) {
	rc := newReplayServer()
	rc.failWith["2024-03-01"] = &remote.APIError{Status: 401, Message: "session expired"}
	agent, st, _ := newTestAgent(t, rc, DefaultAgentConfig())

	enqueue(t, st, day(t, "2024-03-01"), models.MoodGood)

	agent.Drain(context.Background())

	// The write survives: once the user signs back in it will succeed.
	pending, _ := st.ListPending()
	if len(pending) != 1 || pending[0].Attempts != 1 {
		t.Fatalf("pending = %+v, want the write kept with one attempt", pending)
	}
}

func TestDrainRespectsOnlineGate(t *testing.T) {
	rc := newReplayServer()
	config := DefaultAgentConfig()
	config.Online = func() bool { return false }
	agent, st, _ := newTestAgent(t, rc, config)

	enqueue(t, st, day(t, "2024-03-01"), models.MoodGood)
	agent.Drain(context.Background())

	if got := rc.savedDates(); len(got) != 0 {
		t.Errorf("drain ran against a known-offline server: %v", got)
	}
	if pending, _ := st.ListPending(); len(pending) != 1 || pending[0].Attempts != 0 {
		t.Errorf("pending = %+v, want untouched write", pending)
	}
}

func TestKickTriggersDrain(t *testing.T) {
	rc := newReplayServer()
	agent, st, _ := newTestAgent(t, rc, DefaultAgentConfig())

	enqueue(t, st, day(t, "2024-03-01"), models.MoodGood)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := agent.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer agent.Stop()

	// Start issues an initial kick for writes queued before boot.
	waitFor(t, func() bool {
		pending, _ := st.ListPending()
		return len(pending) == 0
	})
}

func TestOnlineTransitionTriggersDrain(t *testing.T) {
	rc := newReplayServer()
	st, err := store.Open(store.Config{InMemory: true})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	transitions := make(chan bool, 1)
	acc := data.NewAccessor(rc, st, data.NewTracker(), data.AccessorOptions{})
	agent := NewAgent(st, rc, acc, transitions, DefaultAgentConfig())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := agent.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer agent.Stop()

	enqueue(t, st, day(t, "2024-03-01"), models.MoodGood)

	transitions <- true
	waitFor(t, func() bool {
		pending, _ := st.ListPending()
		return len(pending) == 0
	})
}
