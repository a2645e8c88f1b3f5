package client

import (
	"fmt"
	"time"
)

// NetworkError wraps a transport-level failure. Callers may retry.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error during %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// AuthError covers a 401 response or a failed credential exchange.
// Not retryable without new credentials.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed: %s", e.Reason)
}

// PaymentRequiredError is a 402 from the backend (billing issue).
type PaymentRequiredError struct {
	Body string
}

func (e *PaymentRequiredError) Error() string {
	return "payment required - billing issue"
}

// BackendError carries the status code and raw body of any other
// non-2xx response so callers can diagnose the failure.
type BackendError struct {
	Status int
	Body   string
}

func (e *BackendError) Error() string {
	body := e.Body
	if body == "" {
		body = "no error details"
	}
	return fmt.Sprintf("API error %d: %s", e.Status, body)
}

// NotFoundError means a single-entity lookup returned an empty result set.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// ResolutionError means a derived identifier could not be obtained
// through any known field name. It always names the field that failed.
type ResolutionError struct {
	Field string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("could not resolve %s through any known field", e.Field)
}

// StreamTimeoutError means no event arrived within the configured
// budget. Distinct from a backend-reported run error.
type StreamTimeoutError struct {
	After time.Duration
}

func (e *StreamTimeoutError) Error() string {
	return fmt.Sprintf("no stream event within %s", e.After)
}
