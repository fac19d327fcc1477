// Daybook - Offline-First Sync Client for the Daybook Mood Journal
// Copyright 2026 A. Velikov (avelikov)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avelikov/daybook

// Package gateway is the local HTTP surface the journal UI talks to
// instead of the remote server. It mirrors the server's API shape and
// routes every call through the offline-aware layers: reads fall back
// to the durable store, writes fail over to the outbox, and responses
// served from local state carry an X-Daybook-Stale header.
package gateway

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/avelikov/daybook/internal/connectivity"
	"github.com/avelikov/daybook/internal/data"
	"github.com/avelikov/daybook/internal/logging"
	"github.com/avelikov/daybook/internal/models"
	"github.com/avelikov/daybook/internal/remote"
	"github.com/avelikov/daybook/internal/store"
	"github.com/avelikov/daybook/internal/syncagent"
	"github.com/avelikov/daybook/internal/validation"
)

// StaleHeader marks responses served from local state because the
// server could not be reached. The UI shows an "offline copy" hint
// when it sees it.
const StaleHeader = "X-Daybook-Stale"

// Config configures the gateway's HTTP server.
type Config struct {
	// Listen is the bind address.
	Listen string

	// CORSOrigins lists allowed origins.
	CORSOrigins []string

	// RateLimitReqs per RateLimitWindow per client IP. Zero disables.
	RateLimitReqs   int
	RateLimitWindow time.Duration

	// Timeout bounds request handling.
	Timeout time.Duration
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		Listen:          "127.0.0.1:8320",
		CORSOrigins:     []string{"*"},
		RateLimitReqs:   300,
		RateLimitWindow: time.Minute,
		Timeout:         60 * time.Second,
	}
}

// BreakerState reports the remote client's circuit state for the
// status endpoint. remote.BreakerClient satisfies it.
type BreakerState interface {
	State() string
}

// Gateway holds the handler dependencies.
type Gateway struct {
	config   Config
	accessor *data.Accessor
	store    *store.Store
	remote   remote.Interface
	monitor  *connectivity.Monitor
	agent    *syncagent.Agent
	breaker  BreakerState

	// lastReplays keeps the most recent replay outcomes for the status
	// endpoint, newest first.
	replayMu    sync.Mutex
	lastReplays []syncagent.ReplayResult
}

// replayHistory bounds the status endpoint's replay list.
const replayHistory = 20

// New creates a Gateway. breaker may be nil when the remote client is
// not breaker-wrapped (tests).
func New(config Config, acc *data.Accessor, st *store.Store, rc remote.Interface, mon *connectivity.Monitor, agent *syncagent.Agent, breaker BreakerState) *Gateway {
	if config.Listen == "" {
		config.Listen = "127.0.0.1:8320"
	}
	if config.Timeout <= 0 {
		config.Timeout = 60 * time.Second
	}
	return &Gateway{
		config:   config,
		accessor: acc,
		store:    st,
		remote:   rc,
		monitor:  mon,
		agent:    agent,
		breaker:  breaker,
	}
}

// SetAgent wires the sync agent after construction. The agent's replay
// hook points back at the gateway, so one of the two has to be created
// first; the gateway wins and receives the agent here.
func (g *Gateway) SetAgent(agent *syncagent.Agent) {
	g.agent = agent
}

// RecordReplay is wired as the sync agent's replay hook. Poison
// outcomes in particular must reach the user somehow; the status
// endpoint is where the UI finds them.
func (g *Gateway) RecordReplay(res syncagent.ReplayResult) {
	g.replayMu.Lock()
	defer g.replayMu.Unlock()
	g.lastReplays = append([]syncagent.ReplayResult{res}, g.lastReplays...)
	if len(g.lastReplays) > replayHistory {
		g.lastReplays = g.lastReplays[:replayHistory]
	}
}

// Router builds the chi router with the full middleware stack.
func (g *Gateway) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(requestLogging)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(g.config.Timeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   g.config.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		ExposedHeaders:   []string{StaleHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Route("/api", func(r chi.Router) {
		if g.config.RateLimitReqs > 0 {
			r.Use(httprate.Limit(
				g.config.RateLimitReqs,
				g.config.RateLimitWindow,
				httprate.WithKeyFuncs(httprate.KeyByIP),
			))
		}

		r.Post("/signin", g.handleSignIn)
		r.Post("/signout", g.handleSignOut)
		r.Get("/entries/{month}", g.handleMonth)
		r.Get("/entry/{date}", g.handleGetEntry)
		r.Post("/entry/{date}", g.handleSaveEntry)
		r.Post("/sync", g.handleSync)
		r.Get("/status", g.handleStatus)
	})

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return r
}

// requestLogging attaches a correlation ID to the request context and
// logs the request on completion.
func requestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := logging.ContextWithNewCorrelationID(r.Context())
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r.WithContext(ctx))

		logging.Ctx(ctx).Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("request handled")
	})
}

type signInRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

func (g *Gateway) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validation.ValidateStruct(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := g.remote.SignIn(r.Context(), req.Username, req.Password); err != nil {
		g.writeRemoteError(w, r.Context(), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// handleSignOut ends the session and wipes all local state. The wipe is
// unconditional: a sign-out that fails upstream must still leave no
// journal data on this machine.
func (g *Gateway) handleSignOut(w http.ResponseWriter, r *http.Request) {
	if err := g.remote.SignOut(r.Context()); err != nil {
		logging.Ctx(r.Context()).Warn().Err(err).Msg("server sign-out failed, wiping local state anyway")
	}

	if err := g.store.ClearAll(); err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("local wipe failed")
		writeError(w, http.StatusInternalServerError, "failed to clear local data")
		return
	}
	g.accessor.Tracker().Clear()
	g.accessor.Reset()

	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (g *Gateway) handleMonth(w http.ResponseWriter, r *http.Request) {
	ref, err := models.ParseMonthKey(chi.URLParam(r, "month"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid month, want YYYY-MM")
		return
	}
	page := queryInt(r, "page")
	limit := queryInt(r, "limit")

	res, err := g.accessor.FetchMonth(r.Context(), ref, page, limit)
	if err != nil {
		if errors.Is(err, data.ErrNoOfflineData) {
			g.serveCachedResponse(w, r, err)
			return
		}
		g.writeRemoteError(w, r.Context(), err)
		return
	}

	if res.Stale {
		w.Header().Set(StaleHeader, "true")
	}
	body := models.MonthPage{Entries: res.Entries, Pagination: res.Pagination}
	g.writeCacheableJSON(w, r, http.StatusOK, body, res.Stale)
}

func (g *Gateway) handleGetEntry(w http.ResponseWriter, r *http.Request) {
	day, err := models.ParseDay(chi.URLParam(r, "date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date, want YYYY-MM-DD")
		return
	}

	res, err := g.accessor.FetchEntry(r.Context(), day)
	if err != nil {
		if errors.Is(err, data.ErrNoOfflineData) {
			g.serveCachedResponse(w, r, err)
			return
		}
		g.writeRemoteError(w, r.Context(), err)
		return
	}
	if res == nil || res.Entry == nil {
		writeError(w, http.StatusNotFound, "no entry for this day")
		return
	}

	if res.Stale {
		w.Header().Set(StaleHeader, "true")
	}
	g.writeCacheableJSON(w, r, http.StatusOK, res.Entry, res.Stale)
}

func (g *Gateway) handleSaveEntry(w http.ResponseWriter, r *http.Request) {
	day, err := models.ParseDay(chi.URLParam(r, "date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date, want YYYY-MM-DD")
		return
	}

	var payload models.EntryPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	res, err := g.accessor.SaveEntry(r.Context(), day, payload)
	if err != nil {
		var verr *validation.Error
		if errors.As(err, &verr) {
			writeError(w, http.StatusBadRequest, verr.Error())
			return
		}
		g.writeRemoteError(w, r.Context(), err)
		return
	}

	if res.Queued {
		writeJSON(w, http.StatusAccepted, map[string]interface{}{
			"queued": true,
			"date":   day.String(),
		})
		return
	}
	writeJSON(w, http.StatusOK, res.Entry)
}

func (g *Gateway) handleSync(w http.ResponseWriter, r *http.Request) {
	if g.agent == nil {
		writeError(w, http.StatusServiceUnavailable, "sync agent not running")
		return
	}
	g.agent.Kick()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "sync requested"})
}

type statusResponse struct {
	Online        bool           `json:"online"`
	Probed        bool           `json:"probed"`
	PendingWrites int            `json:"pending_writes"`
	Breaker       string         `json:"breaker,omitempty"`
	LastReplays   []replayStatus `json:"last_replays,omitempty"`
	Store         storeStatus    `json:"store"`
}

type replayStatus struct {
	Date     string `json:"date"`
	Outcome  string `json:"outcome"`
	Attempts int    `json:"attempts"`
	Error    string `json:"error,omitempty"`
}

type storeStatus struct {
	SizeBytes int64 `json:"size_bytes"`
}

func (g *Gateway) handleStatus(w http.ResponseWriter, r *http.Request) {
	stats := g.store.Stats()

	resp := statusResponse{
		PendingWrites: int(stats.PendingWrites),
		Store:         storeStatus{SizeBytes: stats.DBSizeBytes},
	}
	if g.monitor != nil {
		resp.Online = g.monitor.Online()
		resp.Probed = g.monitor.Probed()
	}
	if g.breaker != nil {
		resp.Breaker = g.breaker.State()
	}

	g.replayMu.Lock()
	for _, res := range g.lastReplays {
		rs := replayStatus{
			Date:     res.Date.String(),
			Outcome:  string(res.Outcome),
			Attempts: res.Attempts,
		}
		if res.Err != nil {
			rs.Error = res.Err.Error()
		}
		resp.LastReplays = append(resp.LastReplays, rs)
	}
	g.replayMu.Unlock()

	writeJSON(w, http.StatusOK, resp)
}

// writeCacheableJSON writes the response and, for fresh results, also
// stores the rendered body keyed by the request URL. That copy is the
// last-resort fallback when both the network and the structured caches
// come up empty, such as after a version upgrade changed key layouts.
func (g *Gateway) writeCacheableJSON(w http.ResponseWriter, r *http.Request, status int, v interface{}, stale bool) {
	body, err := json.Marshal(v)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to encode response")
		return
	}
	if !stale {
		if perr := g.store.PutResponse(r.URL.RequestURI(), status, "application/json", body); perr != nil {
			logging.Ctx(r.Context()).Warn().Err(perr).Msg("caching response failed")
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// serveCachedResponse serves the URL-keyed response cache when the
// structured offline path had nothing.
func (g *Gateway) serveCachedResponse(w http.ResponseWriter, r *http.Request, cause error) {
	cached, err := g.store.GetResponse(r.URL.RequestURI())
	if err != nil || cached == nil {
		writeError(w, http.StatusServiceUnavailable, "server unreachable and no offline data")
		return
	}
	logging.Ctx(r.Context()).Debug().Err(cause).Str("url", r.URL.RequestURI()).
		Msg("serving url-keyed cached response")
	w.Header().Set("Content-Type", cached.ContentType)
	w.Header().Set(StaleHeader, "true")
	w.WriteHeader(cached.Status)
	_, _ = w.Write(cached.Body)
}

// writeRemoteError forwards a server verdict with its original status,
// and maps everything else to 503: from the UI's point of view a dead
// upstream and an open breaker look the same.
func (g *Gateway) writeRemoteError(w http.ResponseWriter, ctx context.Context, err error) {
	if apiErr, ok := remote.AsAPIError(err); ok {
		writeError(w, apiErr.Status, apiErr.Message)
		return
	}
	logging.Ctx(ctx).Warn().Err(err).Msg("upstream unavailable")
	writeError(w, http.StatusServiceUnavailable, "server unreachable")
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Warn().Err(err).Msg("writing response failed")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func queryInt(r *http.Request, key string) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
