// Daybook - Offline-First Sync Client for the Daybook Mood Journal
// Copyright 2026 A. Velikov (avelikov)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avelikov/daybook

// Package metrics holds the Prometheus instrumentation for Daybook:
// read-cache efficiency, remote request outcomes, outbox depth and replay
// results. The gateway exposes everything on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Read-side cache metrics.

	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "daybook_cache_hits_total",
			Help: "Read requests served from a cache layer",
		},
		[]string{"layer"}, // "memory", "durable"
	)

	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "daybook_cache_misses_total",
			Help: "Read requests that reached the network",
		},
	)

	StaleReads = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "daybook_stale_reads_total",
			Help: "Reads served from the durable store after a network failure",
		},
	)

	// Remote client metrics.

	RemoteRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "daybook_remote_requests_total",
			Help: "Requests issued to the journal server",
		},
		[]string{"operation", "outcome"}, // outcome: "ok", "api_error", "network_error"
	)

	RemoteRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "daybook_remote_request_duration_seconds",
			Help:    "Duration of requests to the journal server",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	BreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "daybook_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
	)

	// Outbox and replay metrics.

	OutboxDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "daybook_outbox_pending_writes",
			Help: "Writes queued locally and not yet acknowledged by the server",
		},
	)

	QueuedWrites = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "daybook_queued_writes_total",
			Help: "Writes that failed over to the outbox",
		},
	)

	ReplayResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "daybook_replay_results_total",
			Help: "Outbox replay attempts by result",
		},
		[]string{"result"}, // "ok", "retryable", "poison"
	)

	// Online tracks the last observed connectivity state (1=online, 0=offline).
	Online = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "daybook_online",
			Help: "Whether the journal server was reachable at the last probe",
		},
	)
)
