// Package client provides the request dispatcher of the catalog client:
// cache lookup, throttled upstream calls and a retry state machine with
// linear per-class backoff.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/sall0568/cinescope-client/pkg/cache"
	"github.com/sall0568/cinescope-client/pkg/clock"
	"github.com/sall0568/cinescope-client/pkg/throttle"
)

// Prometheus metrics for dispatcher operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_requests_total",
		Help: "Total dispatched catalog requests by outcome",
	}, []string{"outcome"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "catalog_request_duration_seconds",
		Help:    "Dispatched request duration in seconds by outcome, backoff included",
		Buckets: []float64{0.01, 0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"outcome"})

	upstreamErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_upstream_errors_total",
		Help: "Total failed upstream attempts by class",
	}, []string{"class"})

	coalescedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "catalog_requests_coalesced_total",
		Help: "Total requests that shared an in-flight upstream call",
	})
)

// Dispatcher is the single entry point for upstream data.
type Dispatcher struct {
	transport Transport
	store     cache.Store
	throttle  *throttle.Throttle
	clock     clock.Clock
	retry     RetryPolicy
	coalesce  bool
	group     singleflight.Group
	logger    zerolog.Logger
}

// Config holds the dispatcher configuration.
type Config struct {
	// Transport performs upstream calls (REQUIRED)
	Transport Transport

	// Store caches successful responses. Nil means a fresh MemoryStore with
	// the default TTL.
	Store cache.Store

	// Throttle serializes upstream attempts. Nil means no throttling.
	Throttle *throttle.Throttle

	// Clock drives backoff waits. Nil means the real clock.
	Clock clock.Clock

	// Retry policy for rate-limit and network failures
	Retry RetryPolicy

	// CoalesceInFlight shares one upstream call between concurrent callers
	// of the same uncached key. Off by default: concurrent identical misses
	// each reach the network.
	CoalesceInFlight bool

	Logger zerolog.Logger
}

// DefaultConfig returns the default configuration around transport.
func DefaultConfig(transport Transport) Config {
	return Config{
		Transport: transport,
		Retry:     DefaultRetryPolicy(),
		Logger:    zerolog.Nop(),
	}
}

// New creates a new dispatcher.
func New(cfg Config) (*Dispatcher, error) {
	if cfg.Transport == nil {
		return nil, fmt.Errorf("transport is required")
	}

	if err := cfg.Retry.validate(); err != nil {
		return nil, err
	}

	clk := clock.OrReal(cfg.Clock)

	store := cfg.Store
	if store == nil {
		store = cache.NewMemoryStore(cache.DefaultTTL, cache.WithClock(clk), cache.WithLogger(cfg.Logger))
	}

	return &Dispatcher{
		transport: cfg.Transport,
		store:     store,
		throttle:  cfg.Throttle,
		clock:     clk,
		retry:     cfg.Retry,
		coalesce:  cfg.CoalesceInFlight,
		logger:    cfg.Logger.With().Str("component", "dispatcher").Logger(),
	}, nil
}

// Request describes one logical call.
type Request struct {
	Endpoint string
	Params   cache.Params

	// Cacheable requests are served from and written to the store.
	Cacheable bool

	// MaxRetries overrides the dispatcher policy when >= 0.
	MaxRetries int
}

// RequestOption customizes a Request built by Dispatcher.Request.
type RequestOption func(*Request)

// NoCache bypasses the store for both lookup and write.
func NoCache() RequestOption {
	return func(r *Request) {
		r.Cacheable = false
	}
}

// WithMaxRetries overrides the number of retries for one request.
func WithMaxRetries(n int) RequestOption {
	return func(r *Request) {
		r.MaxRetries = n
	}
}

// NewRequest returns a cacheable request using the dispatcher's retry policy.
func NewRequest(endpoint string, params cache.Params, opts ...RequestOption) Request {
	req := Request{
		Endpoint:   endpoint,
		Params:     params,
		Cacheable:  true,
		MaxRetries: -1,
	}
	for _, opt := range opts {
		opt(&req)
	}
	return req
}

// Request fetches endpoint with params. See Do.
func (d *Dispatcher) Request(ctx context.Context, endpoint string, params cache.Params, opts ...RequestOption) (json.RawMessage, error) {
	return d.Do(ctx, NewRequest(endpoint, params, opts...))
}

// Do dispatches req:
//
//  1. a cacheable request whose signature is in the store returns the stored
//     value without touching the transport;
//  2. otherwise the transport is called, through the throttle when one is
//     configured, until it succeeds or the retry machine fails;
//  3. a cacheable success is written to the store before it is returned.
//
// Errors are *APIError values matching one of the package sentinels, or
// ErrContextCancelled when ctx ends the call.
func (d *Dispatcher) Do(ctx context.Context, req Request) (json.RawMessage, error) {
	key := cache.Signature(req.Endpoint, req.Params)
	start := d.clock.Now()

	if req.Cacheable {
		if value, ok := d.store.Get(ctx, key); ok {
			requestsTotal.WithLabelValues("cache_hit").Inc()
			d.logger.Debug().Str("key", key).Msg("Served from cache")
			return value, nil
		}
	}

	var (
		value json.RawMessage
		err   error
	)
	if d.coalesce && req.Cacheable {
		value, err = d.coalesced(ctx, key, req)
	} else {
		value, err = d.fetch(ctx, key, req)
	}

	outcome := outcomeOf(err)
	requestsTotal.WithLabelValues(outcome).Inc()
	requestDuration.WithLabelValues(outcome).Observe(d.clock.Now().Sub(start).Seconds())

	return value, err
}

func (d *Dispatcher) coalesced(ctx context.Context, key string, req Request) (json.RawMessage, error) {
	// The shared call is detached from every caller; each caller waits on
	// its own ctx.
	detached := context.WithoutCancel(ctx)
	ch := d.group.DoChan(key, func() (any, error) {
		return d.fetch(detached, key, req)
	})

	select {
	case res := <-ch:
		if res.Shared {
			coalescedTotal.Inc()
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(json.RawMessage), nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", ErrContextCancelled, ctx.Err())
	}
}

// fetch runs the retry machine for one request.
func (d *Dispatcher) fetch(ctx context.Context, key string, req Request) (json.RawMessage, error) {
	policy := d.retry
	if req.MaxRetries >= 0 {
		policy.MaxRetries = req.MaxRetries
	}

	logger := d.logger.With().
		Str("request_id", uuid.NewString()).
		Str("endpoint", req.Endpoint).
		Logger()

	machine := newRetryMachine(policy)
	var lastErr error

	for {
		state := machine.begin()

		value, err := d.attempt(ctx, req)
		if err != nil && isContextError(ctx, err) {
			logger.Debug().Int("attempt", state.Attempt).Msg("Request cancelled")
			return nil, fmt.Errorf("%w: %w", ErrContextCancelled, ctx.Err())
		}

		class := ErrorClass("")
		if err != nil {
			class = Classify(err)
			upstreamErrorsTotal.WithLabelValues(string(class)).Inc()
			lastErr = err
		}

		state = machine.observe(class, err)
		switch state.Phase {
		case phaseSucceeded:
			if req.Cacheable {
				d.store.Set(ctx, key, value)
			}
			if state.Attempt > 1 {
				logger.Info().Int("attempt", state.Attempt).Msg("Request succeeded after retry")
			}
			return value, nil

		case phaseBackoff:
			retriesTotal.WithLabelValues(string(state.Class)).Inc()
			retryBackoffSeconds.WithLabelValues(string(state.Class)).Observe(state.Wait.Seconds())
			logger.Warn().
				Err(err).
				Int("attempt", state.Attempt).
				Str("error_class", string(state.Class)).
				Dur("backoff", state.Wait).
				Msg("Retrying request after backoff")

			if err := d.clock.Sleep(ctx, state.Wait); err != nil {
				logger.Warn().Int("attempt", state.Attempt).Msg("Context cancelled during retry backoff")
				return nil, fmt.Errorf("%w: %w", ErrContextCancelled, err)
			}

		case phaseFailed:
			apiErr := newAPIError(req.Endpoint, state, lastErr)
			if state.Class.Retryable() {
				retryExhaustedTotal.WithLabelValues(string(state.Class)).Inc()
				logger.Warn().
					Str("error_class", string(state.Class)).
					Int("attempts", state.Attempt).
					Msg("Retry attempts exhausted")
			} else {
				logger.Warn().
					Err(lastErr).
					Str("error_class", string(state.Class)).
					Msg("Request failed")
			}
			return nil, apiErr

		default:
			return nil, fmt.Errorf("dispatch: unexpected retry state %s", state)
		}
	}
}

// attempt performs one transport call, through the throttle when configured.
// Backoff waits happen outside, so a caller backing off does not hold the queue.
func (d *Dispatcher) attempt(ctx context.Context, req Request) (json.RawMessage, error) {
	call := func(ctx context.Context) (json.RawMessage, error) {
		return d.transport.Fetch(ctx, req.Endpoint, req.Params)
	}
	if d.throttle == nil {
		return call(ctx)
	}
	return throttle.Do(ctx, d.throttle, call)
}

// Store returns the dispatcher's cache store.
func (d *Dispatcher) Store() cache.Store {
	return d.store
}

// Clear invalidates every cached response.
func (d *Dispatcher) Clear(ctx context.Context) {
	d.store.Clear(ctx)
}

// Policy returns the default retry policy.
func (d *Dispatcher) Policy() RetryPolicy {
	return d.retry
}

func newAPIError(endpoint string, state retryState, err error) *APIError {
	apiErr := &APIError{
		Class:    state.Class,
		Endpoint: endpoint,
		Attempts: state.Attempt,
		Err:      err,
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		apiErr.StatusCode = statusErr.StatusCode
		apiErr.Message = statusErr.Message
	}
	return apiErr
}

func isContextError(ctx context.Context, err error) bool {
	if ctx.Err() == nil {
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func outcomeOf(err error) string {
	if err == nil {
		return "success"
	}
	if errors.Is(err, ErrContextCancelled) {
		return "cancelled"
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return string(apiErr.Class)
	}
	return string(ErrorClassUnknown)
}
