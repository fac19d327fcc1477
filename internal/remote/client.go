// Daybook - Offline-First Sync Client for the Daybook Mood Journal
// Copyright 2026 A. Velikov (avelikov)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avelikov/daybook

// Package remote implements the HTTP client for the Daybook journal
// server. It owns the session cookie, normalizes non-2xx responses into
// typed *APIError values, and keeps transport failures distinguishable
// from server responses so the offline layers upstream can classify them.
package remote

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"github.com/avelikov/daybook/internal/metrics"
	"github.com/avelikov/daybook/internal/models"
)

// maxErrorBodySize limits how much of an error response body is read when
// extracting a message, preventing unbounded allocation on hostile bodies.
const maxErrorBodySize = 64 * 1024

// Interface is the server API surface the rest of Daybook consumes. The
// concrete Client implements it for production; tests substitute fakes,
// and BreakerClient wraps it with a circuit breaker.
type Interface interface {
	// SignIn establishes a session; the cookie is kept in the client's jar.
	SignIn(ctx context.Context, username, password string) error

	// SignOut tears the session down server-side.
	SignOut(ctx context.Context) error

	// FetchMonth returns one page of the month's calendar projection.
	FetchMonth(ctx context.Context, ref models.MonthRef, page, limit int) (*models.MonthPage, error)

	// FetchEntry returns the full entry for a day. A day with no entry is
	// a 404 *APIError, not a nil result; the data layer decides what an
	// absent entry means.
	FetchEntry(ctx context.Context, day models.Day) (*models.Entry, error)

	// SaveEntry upserts the entry for a day and returns the server's
	// authoritative (possibly normalized) version.
	SaveEntry(ctx context.Context, day models.Day, payload models.EntryPayload) (*models.Entry, error)

	// Ping checks reachability. Used by the connectivity monitor.
	Ping(ctx context.Context) error
}

// Options configures a Client.
type Options struct {
	// BaseURL is the journal server root, e.g. "https://journal.example.com".
	BaseURL string

	// Timeout bounds each request. Zero means the transport default;
	// the application layer imposes no timeout of its own.
	Timeout time.Duration

	// BearerToken, when set, is sent as an Authorization header in
	// addition to the cookie. Kept for older header-auth flows.
	BearerToken string

	// HTTPClient overrides the underlying client. Tests use this; when
	// set, Timeout is ignored.
	HTTPClient *http.Client
}

// Client talks to the journal server over its REST API. Session state is a
// single opaque cookie held in the jar; the client never inspects it.
//
// Thread safety: safe for concurrent use, as each call builds its own
// request and the jar is internally synchronized.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
}

// New creates a Client with a fresh cookie jar.
func New(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("server base URL is required")
	}
	base, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid server base URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("server base URL must be http or https, got %q", base.Scheme)
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("create cookie jar: %w", err)
		}
		httpClient = &http.Client{
			Jar:     jar,
			Timeout: opts.Timeout,
		}
	} else if httpClient.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("create cookie jar: %w", err)
		}
		httpClient.Jar = jar
	}

	return &Client{
		baseURL: opts.BaseURL,
		token:   opts.BearerToken,
		client:  httpClient,
	}, nil
}

// errorBody is the server's error response shape. Express-style servers in
// the wild use either field name, so both are read.
type errorBody struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

// do performs one request and decodes a 2xx JSON body into out (skipped
// when out is nil). Non-2xx responses become *APIError; anything that kept
// the request from completing is returned wrapped.
func (c *Client) do(ctx context.Context, operation, method, path string, body, out interface{}) error {
	start := time.Now()
	defer func() {
		metrics.RemoteRequestDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	}()

	var reqBody io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		metrics.RemoteRequests.WithLabelValues(operation, "network_error").Inc()
		return fmt.Errorf("request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.RemoteRequests.WithLabelValues(operation, "api_error").Inc()
		return newAPIError(resp)
	}

	metrics.RemoteRequests.WithLabelValues(operation, "ok").Inc()
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// newAPIError builds an *APIError from a non-2xx response, extracting a
// human message from the body when one is present.
func newAPIError(resp *http.Response) *APIError {
	message := "request failed"

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
	if err == nil && len(data) > 0 {
		var body errorBody
		if jerr := json.Unmarshal(data, &body); jerr == nil {
			switch {
			case body.Message != "":
				message = body.Message
			case body.Error != "":
				message = body.Error
			}
		}
	}

	return &APIError{Status: resp.StatusCode, Message: message}
}

// SignIn establishes a session. The server answers with a Set-Cookie the
// jar retains for every subsequent call.
func (c *Client) SignIn(ctx context.Context, username, password string) error {
	body := map[string]string{"username": username, "password": password}
	return c.do(ctx, "signin", http.MethodPost, "/api/signin", body, nil)
}

// SignOut clears the server-side session.
func (c *Client) SignOut(ctx context.Context) error {
	return c.do(ctx, "signout", http.MethodPost, "/api/signout", nil, nil)
}

// FetchMonth returns one page of {date, mood} pairs for the month.
func (c *Client) FetchMonth(ctx context.Context, ref models.MonthRef, page, limit int) (*models.MonthPage, error) {
	path := "/api/entries/" + ref.Key()
	query := url.Values{}
	if page > 0 {
		query.Set("page", strconv.Itoa(page))
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	if len(query) > 0 {
		path += "?" + query.Encode()
	}

	var out models.MonthPage
	if err := c.do(ctx, "fetch_month", http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// FetchEntry returns the full entry for a day.
func (c *Client) FetchEntry(ctx context.Context, day models.Day) (*models.Entry, error) {
	var out models.Entry
	if err := c.do(ctx, "fetch_entry", http.MethodGet, "/api/entry/"+day.String(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SaveEntry upserts the day's entry and returns the server's version,
// which may differ from the payload (the server normalizes fields).
func (c *Client) SaveEntry(ctx context.Context, day models.Day, payload models.EntryPayload) (*models.Entry, error) {
	var out models.Entry
	if err := c.do(ctx, "save_entry", http.MethodPost, "/api/entry/"+day.String(), &payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Ping checks server reachability with the cheapest available call.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, "ping", http.MethodGet, "/api/health", nil, nil)
}
