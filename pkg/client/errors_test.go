package client

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorClass
	}{
		{name: "429", err: &StatusError{StatusCode: 429}, want: ErrorClassRateLimit},
		{name: "404", err: &StatusError{StatusCode: 404}, want: ErrorClassNotFound},
		{name: "500", err: &StatusError{StatusCode: 500}, want: ErrorClassServer},
		{name: "502", err: &StatusError{StatusCode: 502}, want: ErrorClassServer},
		{name: "503", err: &StatusError{StatusCode: 503}, want: ErrorClassServer},
		{name: "400", err: &StatusError{StatusCode: 400}, want: ErrorClassUnknown},
		{name: "401", err: &StatusError{StatusCode: 401}, want: ErrorClassUnknown},
		{name: "network", err: &NetworkError{Err: errors.New("connection refused")}, want: ErrorClassNetwork},
		{name: "wrapped network", err: fmt.Errorf("fetch: %w", &NetworkError{Err: errors.New("timeout")}), want: ErrorClassNetwork},
		{name: "plain error", err: errors.New("invalid JSON"), want: ErrorClassUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestErrorClass_Retryable(t *testing.T) {
	tests := []struct {
		class ErrorClass
		want  bool
	}{
		{ErrorClassRateLimit, true},
		{ErrorClassNetwork, true},
		{ErrorClassNotFound, false},
		{ErrorClassServer, false},
		{ErrorClassUnknown, false},
		{"", false},
	}

	for _, tt := range tests {
		if got := tt.class.Retryable(); got != tt.want {
			t.Errorf("%q.Retryable() = %v, want %v", tt.class, got, tt.want)
		}
	}
}

func TestAPIError_Is(t *testing.T) {
	sentinels := []error{ErrRateLimited, ErrNetworkUnavailable, ErrNotFound, ErrUpstreamServer, ErrUnknown}

	tests := []struct {
		class ErrorClass
		want  error
	}{
		{ErrorClassRateLimit, ErrRateLimited},
		{ErrorClassNetwork, ErrNetworkUnavailable},
		{ErrorClassNotFound, ErrNotFound},
		{ErrorClassServer, ErrUpstreamServer},
		{ErrorClassUnknown, ErrUnknown},
	}

	for _, tt := range tests {
		t.Run(string(tt.class), func(t *testing.T) {
			err := fmt.Errorf("movie details: %w", &APIError{Class: tt.class})
			for _, s := range sentinels {
				if got := errors.Is(err, s); got != (s == tt.want) {
					t.Errorf("errors.Is(%v) = %v", s, got)
				}
			}
		})
	}
}

func TestAPIError_Unwrap(t *testing.T) {
	cause := &StatusError{StatusCode: 404, Message: "The resource you requested could not be found."}
	err := &APIError{Class: ErrorClassNotFound, StatusCode: 404, Err: cause}

	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatal("errors.As should find the StatusError")
	}
	if statusErr.StatusCode != 404 {
		t.Errorf("StatusCode = %d", statusErr.StatusCode)
	}
}

func TestAPIError_Error(t *testing.T) {
	err := &APIError{
		Class:      ErrorClassRateLimit,
		StatusCode: 429,
		Endpoint:   "/tmdb/movie/550",
		Message:    "Rate limit exceeded",
		Attempts:   3,
	}

	msg := err.Error()
	for _, want := range []string{"rate_limit", "429", "/tmdb/movie/550", "Rate limit exceeded", "3 attempts"} {
		if !strings.Contains(msg, want) {
			t.Errorf("Error() = %q, missing %q", msg, want)
		}
	}

	netErr := &APIError{Class: ErrorClassNetwork, Err: errors.New("dial tcp: connection refused")}
	if strings.Contains(netErr.Error(), "status") {
		t.Errorf("Error() without status code = %q", netErr.Error())
	}
}

func TestAPIError_UserMessage(t *testing.T) {
	tests := []struct {
		name string
		err  *APIError
		want string
	}{
		{name: "rate limit", err: &APIError{Class: ErrorClassRateLimit}, want: "Too many requests, please wait a moment and retry."},
		{name: "network", err: &APIError{Class: ErrorClassNetwork}, want: "The catalog service is waking up, please retry in a moment."},
		{name: "not found", err: &APIError{Class: ErrorClassNotFound}, want: "Resource not found."},
		{name: "server", err: &APIError{Class: ErrorClassServer}, want: "Server error, please try again later."},
		{name: "unknown with message", err: &APIError{Class: ErrorClassUnknown, Message: "Invalid API key"}, want: "Invalid API key"},
		{name: "unknown bare", err: &APIError{Class: ErrorClassUnknown}, want: "An error occurred."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.UserMessage(); got != tt.want {
				t.Errorf("UserMessage() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestStatusError_Error(t *testing.T) {
	if got := (&StatusError{StatusCode: 500}).Error(); got != "upstream status 500" {
		t.Errorf("Error() = %q", got)
	}
	if got := (&StatusError{StatusCode: 404, Message: "nope"}).Error(); got != "upstream status 404: nope" {
		t.Errorf("Error() = %q", got)
	}
}
