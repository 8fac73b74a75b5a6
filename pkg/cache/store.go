package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/sall0568/cinescope-client/pkg/clock"
	"github.com/sall0568/cinescope-client/pkg/schedule"
)

const (
	// DefaultTTL is how long a stored response stays fresh.
	DefaultTTL = 10 * time.Minute

	// DefaultCleanupInterval is how often expired entries are swept.
	DefaultCleanupInterval = 5 * time.Minute

	// JobName names the sweep job registered by ScheduleCleanup.
	JobName = "cache-cleanup"
)

// Store is a time-boxed key/value store keyed by request signature.
//
// Stores never return domain errors: backend failures are logged and
// reported as misses.
type Store interface {
	// Get returns the value iff present and not expired. An expired entry is
	// evicted as a side effect.
	Get(ctx context.Context, key string) (json.RawMessage, bool)

	// Set inserts or overwrites the entry for key with a fresh TTL.
	Set(ctx context.Context, key string, value json.RawMessage)

	// Clear removes every entry.
	Clear(ctx context.Context)

	// Cleanup evicts every expired entry and returns how many were removed.
	Cleanup(ctx context.Context) int

	// Stats reports the current contents.
	Stats(ctx context.Context) Stats
}

// Stats describes the store contents.
type Stats struct {
	Size int      `json:"size"`
	Keys []string `json:"keys"`
}

// Option configures a store.
type Option func(*options)

type options struct {
	clock  clock.Clock
	logger zerolog.Logger
	prefix string
}

func defaultOptions() options {
	return options{
		clock:  clock.Real{},
		logger: zerolog.Nop(),
		prefix: "catalog:cache:",
	}
}

// WithClock sets the time source used for TTL decisions.
func WithClock(c clock.Clock) Option {
	return func(o *options) {
		o.clock = clock.OrReal(c)
	}
}

// WithLogger sets the store logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithKeyPrefix sets the namespace used by RedisStore. Ignored by MemoryStore.
func WithKeyPrefix(prefix string) Option {
	return func(o *options) {
		o.prefix = prefix
	}
}

// ScheduleCleanup registers the eager sweep of store as a repeating job.
// The sweep is independent of request traffic.
func ScheduleCleanup(s schedule.Scheduler, store Store, interval time.Duration, logger zerolog.Logger) (schedule.Job, error) {
	return s.Every(JobName, interval, func(ctx context.Context) {
		if cleaned := store.Cleanup(ctx); cleaned > 0 {
			logger.Info().Int("cleaned", cleaned).Msg("Cleaned expired cache entries")
		}
	})
}
