package client

import (
	"errors"
	"fmt"
)

// ErrorClass represents a classification of upstream failures.
type ErrorClass string

const (
	// ErrorClassRateLimit represents 429 responses.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents failures where no response arrived
	// (timeout, DNS, connection refused).
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassNotFound represents 404 responses.
	ErrorClassNotFound ErrorClass = "not_found"

	// ErrorClassServer represents 5xx responses.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassUnknown represents everything else.
	ErrorClassUnknown ErrorClass = "unknown"
)

// Sentinel errors. Every *APIError matches exactly one of the first five
// through errors.Is.
var (
	// ErrRateLimited is returned once rate-limit retries are exhausted.
	ErrRateLimited = errors.New("rate limited")

	// ErrNetworkUnavailable is returned once network retries are exhausted.
	ErrNetworkUnavailable = errors.New("network unavailable")

	// ErrNotFound is returned when the resource does not exist upstream.
	ErrNotFound = errors.New("not found")

	// ErrUpstreamServer is returned for upstream 5xx responses.
	ErrUpstreamServer = errors.New("upstream server error")

	// ErrUnknown is returned for any unclassified failure.
	ErrUnknown = errors.New("unknown error")

	// ErrContextCancelled is returned when the caller's context ends the request.
	ErrContextCancelled = errors.New("context cancelled")
)

// Retryable reports whether failures of this class are retried with backoff.
func (c ErrorClass) Retryable() bool {
	switch c {
	case ErrorClassRateLimit, ErrorClassNetwork:
		return true
	default:
		// 404, 5xx and unclassified failures are surfaced immediately
		return false
	}
}

// Sentinel returns the sentinel error for the class.
func (c ErrorClass) Sentinel() error {
	switch c {
	case ErrorClassRateLimit:
		return ErrRateLimited
	case ErrorClassNetwork:
		return ErrNetworkUnavailable
	case ErrorClassNotFound:
		return ErrNotFound
	case ErrorClassServer:
		return ErrUpstreamServer
	default:
		return ErrUnknown
	}
}

// APIError is a classified dispatch failure with additional context.
type APIError struct {
	Class      ErrorClass
	StatusCode int // 0 when no response arrived
	Endpoint   string
	Message    string
	Attempts   int
	Err        error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	msg := fmt.Sprintf("catalog %s error", e.Class)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Endpoint != "" {
		msg += " on " + e.Endpoint
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Attempts > 1 {
		msg += fmt.Sprintf(" after %d attempts", e.Attempts)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *APIError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel of the error's class.
func (e *APIError) Is(target error) bool {
	return target == e.Class.Sentinel()
}

// Retryable reports whether the class is one that is retried. An APIError
// of a retryable class has already exhausted its retries.
func (e *APIError) Retryable() bool {
	return e.Class.Retryable()
}

// UserMessage returns a message suitable for display. Exhausted retryable
// failures explain that the service is temporarily unavailable so the caller
// can offer a manual retry.
func (e *APIError) UserMessage() string {
	switch e.Class {
	case ErrorClassRateLimit:
		return "Too many requests, please wait a moment and retry."
	case ErrorClassNetwork:
		return "The catalog service is waking up, please retry in a moment."
	case ErrorClassNotFound:
		return "Resource not found."
	case ErrorClassServer:
		return "Server error, please try again later."
	default:
		if e.Message != "" {
			return e.Message
		}
		return "An error occurred."
	}
}

// StatusError is returned by a Transport when the upstream answered with a
// non-2xx status.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("upstream status %d", e.StatusCode)
	}
	return fmt.Sprintf("upstream status %d: %s", e.StatusCode, e.Message)
}

// NetworkError is returned by a Transport when no response arrived.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network failure: %v", e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// Classify maps a transport error to its class.
func Classify(err error) ErrorClass {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return classifyStatus(statusErr.StatusCode)
	}

	var netErr *NetworkError
	if errors.As(err, &netErr) {
		return ErrorClassNetwork
	}

	return ErrorClassUnknown
}

func classifyStatus(status int) ErrorClass {
	switch {
	case status == 429:
		return ErrorClassRateLimit
	case status == 404:
		return ErrorClassNotFound
	case status >= 500:
		return ErrorClassServer
	default:
		return ErrorClassUnknown
	}
}
