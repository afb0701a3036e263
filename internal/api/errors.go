package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// Class buckets API failures by how the sync scheduler should react.
type Class string

const (
	// ClassTransient failures (timeouts, rate limits, server errors)
	// are retried with backoff.
	ClassTransient Class = "transient"
	// ClassRejected failures (validation, conflict, not-found) surface
	// immediately and are never retried.
	ClassRejected Class = "rejected"
	// ClassUnauthorized suspends background scheduling until the
	// token is replaced.
	ClassUnauthorized Class = "unauthorized"
	// ClassCancelled results are silently discarded.
	ClassCancelled Class = "cancelled"
)

// Error is a remote API failure with its HTTP status and, for rate
// limits, the server-requested retry delay.
type Error struct {
	Status     int
	Message    string
	RetryAfter time.Duration
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("asana: HTTP %d", e.Status)
	}
	return fmt.Sprintf("asana: HTTP %d: %s", e.Status, e.Message)
}

// Sentinel errors for the common failure modes.
var (
	ErrUnauthorized = errors.New("asana: invalid or expired token")
	ErrNotFound     = errors.New("asana: resource not found")
	ErrRateLimited  = errors.New("asana: rate limited")
)

func (e *Error) Unwrap() error {
	switch e.Status {
	case 401, 403:
		return ErrUnauthorized
	case 404:
		return ErrNotFound
	case 429:
		return ErrRateLimited
	}
	return nil
}

// Classify maps an error from the client into a scheduler class.
func Classify(err error) Class {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.Canceled):
		return ClassCancelled
	case errors.Is(err, ErrUnauthorized):
		return ClassUnauthorized
	case errors.Is(err, ErrRateLimited):
		return ClassTransient
	case errors.Is(err, ErrNotFound):
		return ClassRejected
	case errors.Is(err, context.DeadlineExceeded):
		return ClassTransient
	}

	var apiErr *Error
	if errors.As(err, &apiErr) {
		if apiErr.Status >= 500 {
			return ClassTransient
		}
		return ClassRejected
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return ClassTransient
	}

	// Anything else (connection refused, DNS) is worth a retry.
	return ClassTransient
}

// RetryAfter extracts the server-requested delay from a rate-limit
// error, or zero if none was given.
func RetryAfter(err error) time.Duration {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.RetryAfter
	}
	return 0
}
