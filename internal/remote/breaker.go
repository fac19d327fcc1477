// Daybook - Offline-First Sync Client for the Daybook Mood Journal
// Copyright 2026 A. Velikov (avelikov)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avelikov/daybook

package remote

import (
	"context"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/avelikov/daybook/internal/logging"
	"github.com/avelikov/daybook/internal/metrics"
	"github.com/avelikov/daybook/internal/models"
)

// BreakerClient wraps a remote client with a circuit breaker so that a
// dead or struggling server stops costing a full transport timeout per
// call. An open circuit fails fast, and the rejection is a network
// failure by classification, so reads fall back to the durable store and
// writes queue exactly as they would on a refused connection.
//
// APIError responses do not count as breaker failures: the server
// answered, it is healthy, it just did not like the request.
type BreakerClient struct {
	inner Interface
	cb    *gobreaker.CircuitBreaker[interface{}]
}

// BreakerSettings configures the circuit breaker.
type BreakerSettings struct {
	// MaxRequests allowed through while half-open. Default: 2
	MaxRequests uint32

	// Interval resets failure counts while closed. Default: 1m
	Interval time.Duration

	// Timeout before an open circuit goes half-open. Default: 30s
	Timeout time.Duration

	// ConsecutiveFailures before the circuit opens. Default: 5
	ConsecutiveFailures uint32
}

// NewBreakerClient wraps inner with a circuit breaker.
func NewBreakerClient(inner Interface, settings BreakerSettings) *BreakerClient {
	if settings.MaxRequests == 0 {
		settings.MaxRequests = 2
	}
	if settings.Interval == 0 {
		settings.Interval = time.Minute
	}
	if settings.Timeout == 0 {
		settings.Timeout = 30 * time.Second
	}
	if settings.ConsecutiveFailures == 0 {
		settings.ConsecutiveFailures = 5
	}

	cb := gobreaker.NewCircuitBreaker[interface{}](gobreaker.Settings{
		Name:        "journal-server",
		MaxRequests: settings.MaxRequests,
		Interval:    settings.Interval,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= settings.ConsecutiveFailures
		},
		IsSuccessful: func(err error) bool {
			// Only transport failures open the circuit.
			return err == nil || !IsNetworkFailure(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().
				Str("breaker", name).
				Str("from", stateString(from)).
				Str("to", stateString(to)).
				Msg("circuit breaker state change")
			metrics.BreakerState.Set(stateValue(to))
		},
	})

	return &BreakerClient{inner: inner, cb: cb}
}

// State returns the current breaker state for the status endpoint.
func (b *BreakerClient) State() string {
	return stateString(b.cb.State())
}

func stateString(s gobreaker.State) string {
	switch s {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

// execute runs fn through the breaker. Breaker rejections
// (gobreaker.ErrOpenState, ErrTooManyRequests) surface as plain errors,
// which classify as network failures.
func (b *BreakerClient) execute(fn func() (interface{}, error)) (interface{}, error) {
	return b.cb.Execute(fn)
}

// SignIn implements Interface.
func (b *BreakerClient) SignIn(ctx context.Context, username, password string) error {
	_, err := b.execute(func() (interface{}, error) {
		return nil, b.inner.SignIn(ctx, username, password)
	})
	return err
}

// SignOut implements Interface.
func (b *BreakerClient) SignOut(ctx context.Context) error {
	_, err := b.execute(func() (interface{}, error) {
		return nil, b.inner.SignOut(ctx)
	})
	return err
}

// FetchMonth implements Interface.
func (b *BreakerClient) FetchMonth(ctx context.Context, ref models.MonthRef, page, limit int) (*models.MonthPage, error) {
	out, err := b.execute(func() (interface{}, error) {
		return b.inner.FetchMonth(ctx, ref, page, limit)
	})
	if err != nil {
		return nil, err
	}
	return out.(*models.MonthPage), nil
}

// FetchEntry implements Interface.
func (b *BreakerClient) FetchEntry(ctx context.Context, day models.Day) (*models.Entry, error) {
	out, err := b.execute(func() (interface{}, error) {
		return b.inner.FetchEntry(ctx, day)
	})
	if err != nil {
		return nil, err
	}
	return out.(*models.Entry), nil
}

// SaveEntry implements Interface.
func (b *BreakerClient) SaveEntry(ctx context.Context, day models.Day, payload models.EntryPayload) (*models.Entry, error) {
	out, err := b.execute(func() (interface{}, error) {
		return b.inner.SaveEntry(ctx, day, payload)
	})
	if err != nil {
		return nil, err
	}
	return out.(*models.Entry), nil
}

// Ping implements Interface.
func (b *BreakerClient) Ping(ctx context.Context) error {
	_, err := b.execute(func() (interface{}, error) {
		return nil, b.inner.Ping(ctx)
	})
	return err
}
