// Package testutil provides testing utilities for the catalog client.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"time"
)

// MockResponse defines the behavior for a mock upstream response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockUpstream is a configurable stand-in for the metadata proxy.
//
// Responses are registered per path. A path can hold a sequence of responses
// which are served in order; the last one repeats once the sequence is used up.
type MockUpstream struct {
	server *httptest.Server
	mu     sync.RWMutex

	sequences map[string][]MockResponse
	served    map[string]int

	requestCount int
	pathCounts   map[string]int
	lastQuery    url.Values
	healthStatus int
	healthCount  int
}

// NewMockUpstream starts a mock server. /health answers 200 unless changed
// with SetHealthStatus.
func NewMockUpstream() *MockUpstream {
	mock := &MockUpstream{
		sequences:    make(map[string][]MockResponse),
		served:       make(map[string]int),
		pathCounts:   make(map[string]int),
		healthStatus: http.StatusOK,
	}

	mock.server = httptest.NewServer(http.HandlerFunc(mock.handle))
	return mock
}

// URL returns the server root URL.
func (m *MockUpstream) URL() string {
	return m.server.URL
}

// BaseURL returns the API base URL with the /api prefix the proxy uses.
func (m *MockUpstream) BaseURL() string {
	return m.server.URL + "/api"
}

// Close shuts down the mock server.
func (m *MockUpstream) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockUpstream) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount = 0
	m.healthCount = 0
	m.pathCounts = make(map[string]int)
	m.served = make(map[string]int)
	m.lastQuery = nil
}

// SetResponse configures a single repeating response for path.
func (m *MockUpstream) SetResponse(path string, resp MockResponse) {
	m.SetSequence(path, resp)
}

// SetSequence configures responses served in order for path.
func (m *MockUpstream) SetSequence(path string, responses ...MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sequences[path] = responses
	m.served[path] = 0
}

// SetHealthStatus changes the /health status code.
func (m *MockUpstream) SetHealthStatus(status int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.healthStatus = status
}

// RequestCount returns the number of API requests (health checks excluded).
func (m *MockUpstream) RequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.requestCount
}

// PathCount returns the number of requests made to path.
func (m *MockUpstream) PathCount(path string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pathCounts[path]
}

// HealthCount returns the number of /health requests.
func (m *MockUpstream) HealthCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.healthCount
}

// LastQuery returns the query of the most recent API request.
func (m *MockUpstream) LastQuery() url.Values {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastQuery
}

func (m *MockUpstream) handle(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/health" {
		m.mu.Lock()
		m.healthCount++
		status := m.healthStatus
		m.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"status":    http.StatusText(status),
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
		return
	}

	m.mu.Lock()
	m.requestCount++
	m.pathCounts[r.URL.Path]++
	m.lastQuery = r.URL.Query()

	responses, exists := m.sequences[r.URL.Path]
	var resp MockResponse
	if exists && len(responses) > 0 {
		idx := m.served[r.URL.Path]
		if idx >= len(responses) {
			idx = len(responses) - 1
		}
		resp = responses[idx]
		m.served[r.URL.Path]++
	}
	m.mu.Unlock()

	if !exists {
		writeJSON(w, http.StatusNotFound, map[string]any{
			"error":   "Route not found",
			"path":    r.URL.Path,
			"message": fmt.Sprintf("no mock response for %s", r.URL.Path),
		})
		return
	}

	if resp.Delay > 0 {
		time.Sleep(resp.Delay)
	}

	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}
	if w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
	}

	w.WriteHeader(resp.StatusCode)
	if resp.Body != "" {
		_, _ = w.Write([]byte(resp.Body))
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// NewOKResponse creates a standard 200 OK JSON response.
func NewOKResponse(body string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       body,
	}
}

// NewRateLimitResponse creates a 429 Too Many Requests response.
func NewRateLimitResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"error": "Too many requests", "message": "Rate limit exceeded"}`,
		Headers:    map[string]string{"Retry-After": "3"},
	}
}

// NewNotFoundResponse creates a 404 response shaped like the proxy's.
func NewNotFoundResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusNotFound,
		Body:       `{"error": "TMDB API error", "message": "The resource you requested could not be found.", "code": 404}`,
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"error": "Internal server error"}`,
	}
}

// NewUnavailableResponse creates the 503 the proxy returns when TMDB is silent.
func NewUnavailableResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusServiceUnavailable,
		Body:       `{"error": "Service unavailable", "message": "TMDB is not responding"}`,
	}
}
