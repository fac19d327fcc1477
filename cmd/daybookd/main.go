// Daybook - Offline-First Sync Client for the Daybook Mood Journal
// Copyright 2026 A. Velikov (avelikov)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avelikov/daybook

// Package main is the entry point for the daybookd sync client.
//
// daybookd sits between the Daybook journal UI and the journal server.
// The UI talks to daybookd's local HTTP gateway as if it were the
// server; daybookd forwards calls upstream when the network allows it
// and serves the durable local copy when it does not. Writes made
// offline are queued in an outbox and replayed in order once the
// server is reachable again.
//
// # Application Architecture
//
// The process initializes components in the following order:
//
//  1. Configuration: layered load from defaults, YAML file, and
//     DAYBOOK_* environment variables (Koanf v2)
//  2. Durable store: BadgerDB holding entries, month snapshots, the
//     write outbox, and a URL-keyed response cache
//  3. Remote client: cookie-session HTTP client for the journal
//     server, wrapped in a circuit breaker
//  4. Data layer: tracker plus accessor implementing the
//     network-first, fall-back-to-store read path
//  5. Connectivity monitor: periodic reachability probes publishing
//     online/offline transitions
//  6. Sync agent: in-order outbox replay, triggered by online
//     transitions and explicit kicks
//  7. Gateway: the local chi HTTP server the UI talks to
//
// Everything long-running is supervised by a suture tree; a crashing
// component restarts without taking the rest of the process down.
//
// # Configuration
//
// Configuration is loaded via Koanf v2 with layered sources (highest
// priority wins):
//   - Environment variables (DAYBOOK_SERVER_URL, DAYBOOK_STORE_PATH, ...)
//   - Config file (daybook.yaml, or the path in DAYBOOK_CONFIG)
//   - Built-in defaults
//
// # Signal Handling
//
// daybookd shuts down gracefully on SIGINT and SIGTERM: the gateway
// stops accepting connections, in-flight requests drain, and the store
// closes cleanly so queued writes survive the restart.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/avelikov/daybook/internal/config"
	"github.com/avelikov/daybook/internal/connectivity"
	"github.com/avelikov/daybook/internal/data"
	"github.com/avelikov/daybook/internal/gateway"
	"github.com/avelikov/daybook/internal/logging"
	"github.com/avelikov/daybook/internal/remote"
	"github.com/avelikov/daybook/internal/store"
	"github.com/avelikov/daybook/internal/supervisor"
	"github.com/avelikov/daybook/internal/supervisor/services"
	"github.com/avelikov/daybook/internal/syncagent"
)

func main() {
	configPath := flag.String("config", "", "path to config file (overrides DAYBOOK_CONFIG)")
	flag.Parse()

	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.LoadFile(*configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		// Config errors are reported through the default logger; the
		// configured one does not exist yet.
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("server_url", cfg.Server.URL).
		Str("store_path", cfg.Store.Path).
		Str("listen", cfg.Gateway.Listen).
		Msg("Starting daybookd")

	// Durable store first: without it there is nothing to serve.
	st, err := store.Open(store.Config{
		Path:       cfg.Store.Path,
		SyncWrites: cfg.Store.SyncWrites,
		GCInterval: cfg.Store.GCInterval,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open durable store")
	}
	defer func() {
		if err := st.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing durable store")
		}
	}()

	client, err := remote.New(remote.Options{
		BaseURL:     cfg.Server.URL,
		Timeout:     cfg.Server.Timeout,
		BearerToken: cfg.Server.BearerToken,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create remote client")
	}
	breaker := remote.NewBreakerClient(client, remote.BreakerSettings{})

	tracker := data.NewTracker()
	accessor := data.NewAccessor(breaker, st, tracker, data.AccessorOptions{
		MemoTTL: cfg.Cache.MemoTTL,
	})

	monitorCfg := connectivity.DefaultMonitorConfig()
	if cfg.Server.ProbeInterval > 0 {
		monitorCfg.Interval = cfg.Server.ProbeInterval
	}
	monitor := connectivity.NewMonitor(breaker, monitorCfg)

	gw := gateway.New(gateway.Config{
		Listen:          cfg.Gateway.Listen,
		CORSOrigins:     cfg.Gateway.CORSOrigins,
		RateLimitReqs:   cfg.Gateway.RateLimitReqs,
		RateLimitWindow: cfg.Gateway.RateLimitWindow,
		Timeout:         cfg.Gateway.Timeout,
	}, accessor, st, breaker, monitor, nil, breaker)

	agent := syncagent.NewAgent(st, breaker, accessor, monitor.Subscribe(), syncagent.AgentConfig{
		RequestTimeout: cfg.Sync.RequestTimeout,
		Online:         monitor.Online,
		OnReplay:       gw.RecordReplay,
	})
	gw.SetAgent(agent)

	server := &http.Server{
		Addr:         cfg.Gateway.Listen,
		Handler:      gw.Router(),
		ReadTimeout:  cfg.Gateway.Timeout,
		WriteTimeout: cfg.Gateway.Timeout,
		IdleTimeout:  60 * time.Second,
	}

	// Bridge zerolog to slog for sutureslog.
	slogLogger := slog.New(logging.NewSlogHandler())

	tree, err := supervisor.NewTree(slogLogger, supervisor.DefaultTreeConfig())
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create supervisor tree")
	}

	tree.AddStorageService(services.NewStoreGCService(st))
	tree.AddSyncService(monitor)
	tree.AddSyncService(agent)
	tree.AddGatewayService(services.NewHTTPService(server, "gateway-http", 10*time.Second))
	logging.Info().Str("addr", server.Addr).Msg("Gateway HTTP service added to supervisor tree")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	logging.Info().Msg("daybookd stopped gracefully")
}
