// Package cache provides the time-boxed response cache used by the catalog
// dispatcher.
//
// Entries are keyed by a canonical request signature and expire a fixed TTL
// after they were stored. Expired entries are never returned: they are evicted
// on the first read after expiry and also swept on a fixed interval so that
// entries written but never read again do not accumulate.
//
// # Basic Usage
//
//	store := cache.NewMemoryStore(cache.DefaultTTL)
//
//	key := cache.Signature("/tmdb/search/movie", cache.Params{
//		"query": "dune",
//		"page":  1,
//	})
//	// key == "/tmdb/search/movie?page=1&query=dune"
//
//	if value, ok := store.Get(ctx, key); ok {
//		// cache hit
//	}
//	store.Set(ctx, key, body)
//
// # Eager Sweep
//
//	job, err := cache.ScheduleCleanup(scheduler, store, cache.DefaultCleanupInterval, logger)
//	defer job.Cancel()
//
// # Backends
//
// MemoryStore keeps entries in process and is the default. RedisStore keeps
// JSON-encoded entries in Redis so several gateway replicas can share one
// cache; it applies the same expiry rules against the injected clock.
//
// # Metrics
//
//   - catalog_cache_hits_total{layer} - Cache hits
//   - catalog_cache_misses_total{layer} - Cache misses
//   - catalog_cache_evictions_total{layer,reason} - Lazy and swept evictions
//   - catalog_cache_entries{layer} - Entries held by the memory store
//   - catalog_cache_errors_total{layer,operation} - Backend errors
package cache
