package api

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// RateLimitError is returned when the server responds 429 and retries are
// exhausted (or the request is not idempotent).
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
	}
	return "rate limited"
}

// AuthError is returned when authentication fails against the base API.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed: %s", e.Reason)
}

// CircuitBreakerError is returned when the circuit breaker is open and
// rejecting requests without hitting the network.
type CircuitBreakerError struct{}

func (e *CircuitBreakerError) Error() string {
	return "circuit breaker open: too many recent failures, backing off"
}

// NotRunningError is returned when a workspace operation is attempted on a
// conversation without a live runtime. It is raised before any network
// call to the runtime.
type NotRunningError struct {
	ConversationID string
	Status         string
}

func (e *NotRunningError) Error() string {
	status := e.Status
	if status == "" {
		status = "not running"
	}
	return fmt.Sprintf("conversation %s has no active runtime (status: %s)", e.ConversationID, status)
}

// SessionKeyExpiredError is returned when a runtime endpoint rejects the
// session key (401). Waking the conversation mints a new key.
type SessionKeyExpiredError struct {
	ConversationID string
}

func (e *SessionKeyExpiredError) Error() string {
	return fmt.Sprintf("runtime rejected the session key for conversation %s (expired?)", e.ConversationID)
}

// IsRateLimitError reports whether err is a rate limit error.
func IsRateLimitError(err error) bool {
	var rateLimitErr *RateLimitError
	return errors.As(err, &rateLimitErr)
}

// IsAuthError reports whether err is an authentication error.
func IsAuthError(err error) bool {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 401 || apiErr.StatusCode == 403
	}
	return false
}

// IsNotFoundError reports whether err represents a missing resource.
func IsNotFoundError(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == 404 {
			return true
		}
		return strings.Contains(strings.ToLower(apiErr.Body), "not found")
	}
	return false
}

// IsNotRunningError reports whether err is a missing-runtime error.
func IsNotRunningError(err error) bool {
	var nre *NotRunningError
	return errors.As(err, &nre)
}
