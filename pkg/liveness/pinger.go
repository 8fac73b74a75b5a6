// Package liveness keeps the backing proxy warm with periodic, fire-and-forget
// health pings so that user requests do not pay its cold-start latency.
//
// A Pinger shares no state with the cache or the dispatcher. Ping failures are
// logged and counted, never retried and never returned to anyone.
package liveness

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/sall0568/cinescope-client/pkg/schedule"
)

// JobName is the scheduler job name of the repeating ping.
const JobName = "liveness-ping"

var (
	pingsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_liveness_pings_total",
		Help: "Total liveness pings by result",
	}, []string{"result"}) // result: ok, unhealthy, error

	pingDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "catalog_liveness_ping_duration_seconds",
		Help:    "Liveness ping round-trip time in seconds",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
	})
)

// Config holds the pinger configuration.
type Config struct {
	// BaseURL is the API base URL; only its scheme and host are used.
	BaseURL string

	// Interval between pings.
	Interval time.Duration

	// Timeout of a single ping.
	Timeout time.Duration

	// Path pinged on the bare host.
	Path string
}

// DefaultConfig returns the default pinger configuration for baseURL.
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:  baseURL,
		Interval: 10 * time.Minute,
		Timeout:  10 * time.Second,
		Path:     "/health",
	}
}

// Pinger periodically calls the health endpoint of the proxy host.
type Pinger struct {
	healthURL  string
	interval   time.Duration
	timeout    time.Duration
	httpClient *http.Client
	scheduler  schedule.Scheduler
	logger     zerolog.Logger

	mu  sync.Mutex
	job schedule.Job
}

// New creates a pinger. It does not ping until Start is called.
func New(cfg Config, scheduler schedule.Scheduler, logger zerolog.Logger) (*Pinger, error) {
	if scheduler == nil {
		return nil, fmt.Errorf("scheduler is required")
	}

	healthURL, err := HealthURL(cfg.BaseURL, cfg.Path)
	if err != nil {
		return nil, err
	}

	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("interval must be > 0 (got %s)", cfg.Interval)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	return &Pinger{
		healthURL:  healthURL,
		interval:   cfg.Interval,
		timeout:    cfg.Timeout,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		scheduler:  scheduler,
		logger:     logger.With().Str("component", "liveness").Logger(),
	}, nil
}

// HealthURL derives "<scheme>://<host><path>" from an API base URL, dropping
// any path prefix such as /api.
func HealthURL(baseURL, path string) (string, error) {
	if baseURL == "" {
		return "", fmt.Errorf("base url is required")
	}

	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("base url must be absolute (got %q)", baseURL)
	}

	if path == "" {
		path = "/health"
	}
	if path[0] != '/' {
		path = "/" + path
	}

	return (&url.URL{Scheme: u.Scheme, Host: u.Host, Path: path}).String(), nil
}

// URL returns the pinged URL.
func (p *Pinger) URL() string {
	return p.healthURL
}

// Interval returns the ping interval.
func (p *Pinger) Interval() time.Duration {
	return p.interval
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (p *Pinger) SetHTTPClient(client *http.Client) {
	p.httpClient = client
}

// Start registers the repeating ping. Calling Start twice is a no-op.
func (p *Pinger) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.job != nil {
		return nil
	}

	job, err := p.scheduler.Every(JobName, p.interval, func(ctx context.Context) {
		p.PingOnce(ctx)
	})
	if err != nil {
		return fmt.Errorf("schedule liveness ping: %w", err)
	}
	p.job = job

	p.logger.Info().
		Str("url", p.healthURL).
		Dur("interval", p.interval).
		Msg("Liveness pinger started")
	return nil
}

// Stop removes the repeating ping. It is safe to call more than once.
func (p *Pinger) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.job == nil {
		return
	}
	p.job.Cancel()
	p.job = nil
	p.logger.Info().Msg("Liveness pinger stopped")
}

// Running reports whether the repeating ping is registered.
func (p *Pinger) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.job != nil
}

// PingOnce performs a single ping and reports whether the host answered 2xx.
// It never returns an error.
func (p *Pinger) PingOnce(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	defer func() {
		pingDuration.Observe(time.Since(start).Seconds())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.healthURL, nil)
	if err != nil {
		pingsTotal.WithLabelValues("error").Inc()
		p.logger.Warn().Err(err).Msg("Cannot build liveness ping")
		return false
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		pingsTotal.WithLabelValues("error").Inc()
		p.logger.Warn().Err(err).Str("url", p.healthURL).Msg("Liveness ping failed")
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		pingsTotal.WithLabelValues("unhealthy").Inc()
		p.logger.Warn().Int("status", resp.StatusCode).Str("url", p.healthURL).Msg("Liveness ping unhealthy")
		return false
	}

	pingsTotal.WithLabelValues("ok").Inc()
	p.logger.Debug().Dur("elapsed", time.Since(start)).Msg("Liveness ping ok")
	return true
}
