package coda

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

var (
	// ErrInvalidAPIKey is returned when the API rejects the bearer token (HTTP 401).
	ErrInvalidAPIKey = errors.New("invalid API key")

	// ErrSessionRequired is returned when the web session cookies are missing
	// or expired and the dashboard redirects to sign-in.
	ErrSessionRequired = errors.New("browser session required")

	// ErrWorkspaceNameNotFound is returned when the dashboard page carries no header title.
	ErrWorkspaceNameNotFound = errors.New("workspace name not found")
)

// APIError is a non-2xx response other than 401.
type APIError struct {
	StatusCode int
	Message    string
	Method     string
	Path       string

	retryAfter time.Duration
}

// Error implements the error interface.
func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("coda api: %s %s: %d %s", e.Method, e.Path, e.StatusCode, msg)
}

// Temporary reports whether retrying the request may succeed.
func (e *APIError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
}

// IsNotFound reports whether err is an APIError with status 404.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// errorBody is the JSON error payload returned by the API.
type errorBody struct {
	StatusCode    int    `json:"statusCode"`
	StatusMessage string `json:"statusMessage"`
	Message       string `json:"message"`
}
