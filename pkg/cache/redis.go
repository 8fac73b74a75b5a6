package cache

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/sall0568/cinescope-client/pkg/clock"
)

// scanBatch is the COUNT hint passed to SCAN.
const scanBatch = 100

// compareAndDelete removes KEYS[1] only while it still holds ARGV[1], so an
// entry rewritten by a concurrent Set survives an eviction decided on the
// bytes read before it.
var compareAndDelete = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisStore is a Store shared between processes through Redis.
//
// Entries are written with a Redis TTL equal to the store TTL, and ExpiresAt
// is still checked on read so that the store clock stays authoritative.
// Redis failures are logged, counted and reported as misses.
type RedisStore struct {
	redis  *redis.Client
	ttl    time.Duration
	prefix string
	clock  clock.Clock
	logger zerolog.Logger
}

// NewRedisStore creates a store on top of redisClient.
func NewRedisStore(redisClient *redis.Client, ttl time.Duration, opts ...Option) *RedisStore {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	if ttl <= 0 {
		ttl = DefaultTTL
	}

	return &RedisStore{
		redis:  redisClient,
		ttl:    ttl,
		prefix: o.prefix,
		clock:  o.clock,
		logger: o.logger,
	}
}

// TTL returns the lifetime applied to every entry.
func (r *RedisStore) TTL() time.Duration {
	return r.ttl
}

func (r *RedisStore) redisKey(key string) string {
	return r.prefix + key
}

// Get returns the cached value for key.
func (r *RedisStore) Get(ctx context.Context, key string) (json.RawMessage, bool) {
	data, err := r.redis.Get(ctx, r.redisKey(key)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			CacheErrors.WithLabelValues(layerRedis, "get").Inc()
			r.logger.Warn().Err(err).Str("key", key).Msg("Redis get failed")
		}
		CacheMisses.WithLabelValues(layerRedis).Inc()
		return nil, false
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		CacheErrors.WithLabelValues(layerRedis, "decode").Inc()
		r.logger.Warn().Err(err).Str("key", key).Msg("Dropping corrupt cache entry")
		r.delete(ctx, key, data, "corrupt")
		CacheMisses.WithLabelValues(layerRedis).Inc()
		return nil, false
	}

	if entry.ExpiredAt(r.clock.Now()) {
		r.delete(ctx, key, data, "expired_read")
		CacheMisses.WithLabelValues(layerRedis).Inc()
		return nil, false
	}

	CacheHits.WithLabelValues(layerRedis).Inc()
	return entry.Value, true
}

// Set stores value under key with the store TTL.
func (r *RedisStore) Set(ctx context.Context, key string, value json.RawMessage) {
	entry := newEntry(key, value, r.clock.Now(), r.ttl)

	data, err := json.Marshal(entry)
	if err != nil {
		CacheErrors.WithLabelValues(layerRedis, "encode").Inc()
		r.logger.Warn().Err(err).Str("key", key).Msg("Cannot encode cache entry")
		return
	}

	if err := r.redis.Set(ctx, r.redisKey(key), data, r.ttl).Err(); err != nil {
		CacheErrors.WithLabelValues(layerRedis, "set").Inc()
		r.logger.Warn().Err(err).Str("key", key).Msg("Redis set failed")
	}
}

// Clear removes every entry under the store prefix.
func (r *RedisStore) Clear(ctx context.Context) {
	keys, err := r.scan(ctx)
	if err != nil {
		return
	}

	if len(keys) > 0 {
		if err := r.redis.Del(ctx, keys...).Err(); err != nil {
			CacheErrors.WithLabelValues(layerRedis, "delete").Inc()
			r.logger.Warn().Err(err).Msg("Redis clear failed")
			return
		}
	}

	CacheEvictions.WithLabelValues(layerRedis, "clear").Add(float64(len(keys)))
	r.logger.Info().Int("entries", len(keys)).Msg("Cache cleared")
}

// Cleanup evicts entries whose ExpiresAt lies strictly before now.
func (r *RedisStore) Cleanup(ctx context.Context) int {
	keys, err := r.scan(ctx)
	if err != nil || len(keys) == 0 {
		return 0
	}

	values, err := r.redis.MGet(ctx, keys...).Result()
	if err != nil {
		CacheErrors.WithLabelValues(layerRedis, "get").Inc()
		r.logger.Warn().Err(err).Msg("Redis sweep read failed")
		return 0
	}

	now := r.clock.Now()
	removed := 0
	for i, raw := range values {
		s, ok := raw.(string)
		if !ok {
			continue
		}
		var entry Entry
		if err := json.Unmarshal([]byte(s), &entry); err == nil && !entry.ExpiresAt.Before(now) {
			continue
		}
		deleted, err := r.compareDelete(ctx, keys[i], []byte(s))
		if err != nil {
			r.logger.Warn().Err(err).Str("key", keys[i]).Msg("Redis sweep delete failed")
			continue
		}
		if deleted {
			removed++
		}
	}

	if removed > 0 {
		CacheEvictions.WithLabelValues(layerRedis, "sweep").Add(float64(removed))
	}
	return removed
}

// Stats returns the keys under the store prefix, prefix stripped, sorted.
func (r *RedisStore) Stats(ctx context.Context) Stats {
	keys, err := r.scan(ctx)
	if err != nil {
		return Stats{Keys: []string{}}
	}

	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, strings.TrimPrefix(k, r.prefix))
	}
	sort.Strings(out)

	CacheEntries.WithLabelValues(layerRedis).Set(float64(len(out)))
	return Stats{Size: len(out), Keys: out}
}

// delete evicts key if it still holds seen.
func (r *RedisStore) delete(ctx context.Context, key string, seen []byte, reason string) {
	deleted, err := r.compareDelete(ctx, r.redisKey(key), seen)
	if err != nil || !deleted {
		return
	}
	CacheEvictions.WithLabelValues(layerRedis, reason).Inc()
}

// compareDelete deletes the raw redis key when its value equals seen and
// reports whether it did.
func (r *RedisStore) compareDelete(ctx context.Context, redisKey string, seen []byte) (bool, error) {
	n, err := compareAndDelete.Run(ctx, r.redis, []string{redisKey}, seen).Int()
	if err != nil {
		CacheErrors.WithLabelValues(layerRedis, "delete").Inc()
		return false, err
	}
	return n == 1, nil
}

func (r *RedisStore) scan(ctx context.Context) ([]string, error) {
	var (
		keys   []string
		cursor uint64
	)
	for {
		batch, next, err := r.redis.Scan(ctx, cursor, r.prefix+"*", scanBatch).Result()
		if err != nil {
			CacheErrors.WithLabelValues(layerRedis, "scan").Inc()
			r.logger.Warn().Err(err).Msg("Redis scan failed")
			return nil, err
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			return keys, nil
		}
	}
}

var _ Store = (*RedisStore)(nil)
