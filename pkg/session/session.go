// Package session wires the catalog client together and owns its lifecycle.
//
// A Session builds the cache store, throttle, dispatcher, scheduler, liveness
// pinger and metadata client from a config.Config. Background jobs only run
// between Start and Close.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/sall0568/cinescope-client/pkg/cache"
	"github.com/sall0568/cinescope-client/pkg/client"
	"github.com/sall0568/cinescope-client/pkg/clock"
	"github.com/sall0568/cinescope-client/pkg/config"
	"github.com/sall0568/cinescope-client/pkg/liveness"
	"github.com/sall0568/cinescope-client/pkg/metadata"
	"github.com/sall0568/cinescope-client/pkg/schedule"
	"github.com/sall0568/cinescope-client/pkg/throttle"
)

// ErrClosed is returned by Start after Close.
var ErrClosed = errors.New("session closed")

// Option customizes how a Session is built.
type Option func(*options)

type options struct {
	scheduler schedule.Scheduler
	clock     clock.Clock
	transport client.Transport
	redis     *redis.Client
}

// WithScheduler runs background jobs on s instead of a cron scheduler.
// The caller keeps ownership of s: Close cancels the session's jobs but does
// not stop it.
func WithScheduler(s schedule.Scheduler) Option {
	return func(o *options) { o.scheduler = s }
}

// WithClock sets the time source for TTLs, throttle spacing and backoff.
func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithTransport replaces the HTTP transport.
func WithTransport(t client.Transport) Option {
	return func(o *options) { o.transport = t }
}

// WithRedisClient uses an existing client for the redis backend. The caller
// keeps ownership of it.
func WithRedisClient(rc *redis.Client) Option {
	return func(o *options) { o.redis = rc }
}

// Session is a fully wired catalog client.
type Session struct {
	cfg    config.Config
	logger zerolog.Logger

	clock      clock.Clock
	store      cache.Store
	redis      *redis.Client
	ownsRedis  bool
	throttle   *throttle.Throttle
	dispatcher *client.Dispatcher
	scheduler  schedule.Scheduler
	ownsSched  bool
	cleanupJob schedule.Job
	pinger     *liveness.Pinger
	catalog    *metadata.Client

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	started bool
	closed  bool
}

// New builds a session from cfg. Nothing runs in the background until Start.
func New(cfg config.Config, logger zerolog.Logger, opts ...Option) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	s := &Session{
		cfg:    cfg,
		logger: logger.With().Str("component", "session").Logger(),
		clock:  clock.OrReal(o.clock),
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	if err := s.buildStore(o.redis, logger); err != nil {
		s.cancel()
		return nil, err
	}

	transport := o.transport
	if transport == nil {
		ht, err := client.NewHTTPTransport(cfg.API.BaseURL, cfg.API.Timeout, logger)
		if err != nil {
			s.abort()
			return nil, fmt.Errorf("create transport: %w", err)
		}
		if cfg.API.UserAgent != "" {
			ht.SetUserAgent(cfg.API.UserAgent)
		}
		transport = ht
	}

	s.throttle = throttle.New(cfg.Throttle.Spacing, s.clock, logger.With().Str("component", "throttle").Logger())

	dispatcher, err := client.New(client.Config{
		Transport: transport,
		Store:     s.store,
		Throttle:  s.throttle,
		Clock:     s.clock,
		Retry: client.RetryPolicy{
			MaxRetries:    cfg.Retry.MaxRetries,
			RateLimitStep: cfg.Retry.RateLimitStep,
			NetworkStep:   cfg.Retry.NetworkStep,
		},
		CoalesceInFlight: cfg.Retry.Coalesce,
		Logger:           logger,
	})
	if err != nil {
		s.abort()
		return nil, fmt.Errorf("create dispatcher: %w", err)
	}
	s.dispatcher = dispatcher

	s.scheduler = o.scheduler
	if s.scheduler == nil {
		s.scheduler = schedule.NewCronScheduler(logger)
		s.ownsSched = true
	}

	job, err := cache.ScheduleCleanup(s.scheduler, s.store, cfg.Cache.CleanupInterval, s.logger)
	if err != nil {
		s.abort()
		return nil, fmt.Errorf("schedule cache cleanup: %w", err)
	}
	s.cleanupJob = job

	if cfg.Liveness.Enabled {
		pinger, err := liveness.New(liveness.Config{
			BaseURL:  cfg.API.BaseURL,
			Interval: cfg.Liveness.Interval,
			Timeout:  cfg.Liveness.Timeout,
			Path:     cfg.Liveness.Path,
		}, s.scheduler, logger)
		if err != nil {
			s.abort()
			return nil, fmt.Errorf("create liveness pinger: %w", err)
		}
		s.pinger = pinger
	}

	s.catalog = metadata.New(dispatcher, metadata.Options{Language: cfg.API.Language})

	s.logger.Info().
		Str("base_url", cfg.API.BaseURL).
		Str("cache_backend", cfg.Cache.Backend).
		Dur("ttl", cfg.Cache.TTL).
		Dur("spacing", cfg.Throttle.Spacing).
		Int("max_retries", cfg.Retry.MaxRetries).
		Bool("liveness", cfg.Liveness.Enabled).
		Msg("Session created")

	return s, nil
}

func (s *Session) buildStore(rc *redis.Client, logger zerolog.Logger) error {
	storeOpts := []cache.Option{
		cache.WithClock(s.clock),
		cache.WithLogger(logger.With().Str("component", "cache").Logger()),
	}

	switch s.cfg.Cache.Backend {
	case config.BackendRedis:
		if rc == nil {
			rc = redis.NewClient(&redis.Options{
				Addr:     s.cfg.Redis.Addr,
				Password: s.cfg.Redis.Password,
				DB:       s.cfg.Redis.DB,
			})
			s.ownsRedis = true
		}
		s.redis = rc
		if s.cfg.Cache.KeyPrefix != "" {
			storeOpts = append(storeOpts, cache.WithKeyPrefix(s.cfg.Cache.KeyPrefix))
		}
		s.store = cache.NewRedisStore(rc, s.cfg.Cache.TTL, storeOpts...)
	case config.BackendMemory:
		s.store = cache.NewMemoryStore(s.cfg.Cache.TTL, storeOpts...)
	default:
		return fmt.Errorf("%w: unknown cache backend %q", config.ErrInvalidConfig, s.cfg.Cache.Backend)
	}
	return nil
}

// Start starts the scheduler and the liveness pinger. With liveness warmup
// enabled the host is pinged once right away. Start is idempotent.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if s.started {
		return nil
	}

	if s.redis != nil {
		if err := s.redis.Ping(s.ctx).Err(); err != nil {
			// The store treats redis failures as misses; keep going.
			s.logger.Warn().Err(err).Str("addr", s.cfg.Redis.Addr).Msg("Redis not reachable, caching degraded")
		}
	}

	if s.pinger != nil {
		if err := s.pinger.Start(); err != nil {
			return err
		}
		if s.cfg.Liveness.Warmup {
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				s.pinger.PingOnce(s.ctx)
			}()
		}
	}

	s.scheduler.Start()
	s.started = true
	s.logger.Info().Msg("Session started")
	return nil
}

// Close stops background jobs, drains the throttle and releases the cache.
// It is safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	if s.pinger != nil {
		s.pinger.Stop()
	}
	s.release()
	s.wg.Wait()

	err := s.closeRedis()
	s.logger.Info().Msg("Session closed")
	return err
}

// release stops background work and drops cached entries.
func (s *Session) release() {
	s.cancel()
	if s.cleanupJob != nil {
		s.cleanupJob.Cancel()
	}
	if s.ownsSched && s.scheduler != nil {
		s.scheduler.Stop()
	}
	if s.throttle != nil {
		s.throttle.Close()
	}
	if mem, ok := s.store.(*cache.MemoryStore); ok {
		mem.Clear(context.Background())
	}
}

// abort undoes a partially built session.
func (s *Session) abort() {
	s.release()
	_ = s.closeRedis()
}

func (s *Session) closeRedis() error {
	if !s.ownsRedis || s.redis == nil {
		return nil
	}
	if err := s.redis.Close(); err != nil {
		return fmt.Errorf("close redis: %w", err)
	}
	return nil
}

// Config returns the configuration the session was built from.
func (s *Session) Config() config.Config { return s.cfg }

// Catalog returns the typed metadata client.
func (s *Session) Catalog() *metadata.Client { return s.catalog }

// Dispatcher returns the request dispatcher.
func (s *Session) Dispatcher() *client.Dispatcher { return s.dispatcher }

// Store returns the response cache.
func (s *Session) Store() cache.Store { return s.store }

// Throttle returns the request throttle.
func (s *Session) Throttle() *throttle.Throttle { return s.throttle }

// Scheduler returns the scheduler running the background jobs.
func (s *Session) Scheduler() schedule.Scheduler { return s.scheduler }

// Pinger returns the liveness pinger, or nil when liveness is disabled.
func (s *Session) Pinger() *liveness.Pinger { return s.pinger }

// Running reports whether Start was called and Close was not.
func (s *Session) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started && !s.closed
}
