package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/sall0568/cinescope-client/pkg/cache"
)

const (
	// DefaultTimeout is the fixed per-call transport timeout.
	DefaultTimeout = 15 * time.Second

	// maxBodySize caps how much of a response body is read.
	maxBodySize = 10 << 20
)

// Transport performs one upstream call. Implementations return a
// *StatusError for non-2xx answers and a *NetworkError when no response
// arrived; a caller context error is returned as is.
type Transport interface {
	Fetch(ctx context.Context, endpoint string, params cache.Params) (json.RawMessage, error)
}

// TransportFunc adapts a function to the Transport interface.
type TransportFunc func(ctx context.Context, endpoint string, params cache.Params) (json.RawMessage, error)

// Fetch calls f.
func (f TransportFunc) Fetch(ctx context.Context, endpoint string, params cache.Params) (json.RawMessage, error) {
	return f(ctx, endpoint, params)
}

// HTTPTransport is a Transport over net/http with a fixed timeout.
type HTTPTransport struct {
	baseURL    string
	httpClient *http.Client
	userAgent  string
	logger     zerolog.Logger
}

// NewHTTPTransport creates a transport rooted at baseURL.
// A non-positive timeout falls back to DefaultTimeout.
func NewHTTPTransport(baseURL string, timeout time.Duration, logger zerolog.Logger) (*HTTPTransport, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}

	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base url must be http or https (got %q)", baseURL)
	}

	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &HTTPTransport{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		userAgent:  "cinescope-client/1.0",
		logger:     logger,
	}, nil
}

// BaseURL returns the base URL without a trailing slash.
func (t *HTTPTransport) BaseURL() string {
	return t.baseURL
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (t *HTTPTransport) SetHTTPClient(client *http.Client) {
	t.httpClient = client
}

// SetUserAgent overrides the User-Agent header.
func (t *HTTPTransport) SetUserAgent(userAgent string) {
	t.userAgent = userAgent
}

// Fetch performs a GET of endpoint with params as the query string.
func (t *HTTPTransport) Fetch(ctx context.Context, endpoint string, params cache.Params) (json.RawMessage, error) {
	target := t.baseURL + "/" + strings.TrimLeft(endpoint, "/")
	if len(params) > 0 {
		target += "?" + params.Values().Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	if t.userAgent != "" {
		req.Header.Set("User-Agent", t.userAgent)
	}

	t.logger.Debug().Str("endpoint", endpoint).Msg("Upstream request")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		// The caller gave up; that is not an upstream failure.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &NetworkError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &NetworkError{Err: fmt.Errorf("read body: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{
			StatusCode: resp.StatusCode,
			Message:    errorMessage(body, resp.Status),
		}
	}

	if !json.Valid(body) {
		return nil, errors.New("upstream returned invalid JSON")
	}

	return json.RawMessage(body), nil
}

// errorMessage extracts the best available message from an error body.
func errorMessage(body []byte, fallback string) string {
	var payload struct {
		Message       string `json:"message"`
		StatusMessage string `json:"status_message"`
		Error         string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		switch {
		case payload.Message != "":
			return payload.Message
		case payload.StatusMessage != "":
			return payload.StatusMessage
		case payload.Error != "":
			return payload.Error
		}
	}
	return fallback
}

var _ Transport = (*HTTPTransport)(nil)
