// Daybook - Offline-First Sync Client for the Daybook Mood Journal
// Copyright 2026 A. Velikov (avelikov)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avelikov/daybook

package remote

import (
	"errors"
	"fmt"
	"net/http"
)

// APIError is a well-formed non-2xx response from the journal server: the
// server was reached and answered. Anything else (DNS failure, refused
// connection, timeout, open circuit breaker) is a network failure and is
// returned as an ordinary wrapped error, distinguishable with errors.As.
//
// The distinction drives the whole offline design: an APIError must never
// trigger cache fallback or outbox queueing, a network failure always may.
type APIError struct {
	// Status is the HTTP status code.
	Status int

	// Message is extracted from the response body ("message" then "error"
	// field), with a generic fallback when the body is unusable.
	Message string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

// NotFound reports a well-formed 404.
func (e *APIError) NotFound() bool {
	return e.Status == http.StatusNotFound
}

// Unauthorized reports a 401.
func (e *APIError) Unauthorized() bool {
	return e.Status == http.StatusUnauthorized
}

// Validation reports a 4xx the server will answer the same way on every
// retry (malformed payload and the like). 401 is excluded: a session can
// be renewed. 408 and 429 are excluded: both are worth retrying.
func (e *APIError) Validation() bool {
	if e.Status == http.StatusUnauthorized ||
		e.Status == http.StatusRequestTimeout ||
		e.Status == http.StatusTooManyRequests {
		return false
	}
	return e.Status >= 400 && e.Status < 500
}

// AsAPIError unwraps err to an *APIError if one is present.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// IsNotFound reports whether err is a well-formed 404 response.
func IsNotFound(err error) bool {
	apiErr, ok := AsAPIError(err)
	return ok && apiErr.NotFound()
}

// IsUnauthorized reports whether err is a 401 response.
func IsUnauthorized(err error) bool {
	apiErr, ok := AsAPIError(err)
	return ok && apiErr.Unauthorized()
}

// IsNetworkFailure reports whether err represents a failure to reach the
// server at all, as opposed to a response the server produced.
func IsNetworkFailure(err error) bool {
	if err == nil {
		return false
	}
	_, isAPI := AsAPIError(err)
	return !isAPI
}
