package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	layerMemory = "memory"
	layerRedis  = "redis"
)

var (
	// CacheHits tracks cache hits by layer
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_cache_hits_total",
			Help: "Total number of catalog cache hits",
		},
		[]string{"layer"},
	)

	// CacheMisses tracks cache misses by layer, expired reads included
	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_cache_misses_total",
			Help: "Total number of catalog cache misses",
		},
		[]string{"layer"},
	)

	// CacheEvictions tracks removed entries by layer and reason
	CacheEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_cache_evictions_total",
			Help: "Total number of evicted cache entries",
		},
		[]string{"layer", "reason"}, // "expired_read", "sweep", "clear"
	)

	// CacheEntries tracks the number of entries held in memory
	CacheEntries = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "catalog_cache_entries",
			Help: "Current number of cache entries",
		},
		[]string{"layer"},
	)

	// CacheErrors tracks backend errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"layer", "operation"}, // "get", "set", "delete", "scan"
	)
)
