package cache

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/sall0568/cinescope-client/pkg/clock"
)

// MemoryStore is an in-process Store. It is safe for concurrent use.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	ttl     time.Duration
	clock   clock.Clock
	logger  zerolog.Logger
}

// NewMemoryStore creates an empty store whose entries live for ttl.
// A non-positive ttl falls back to DefaultTTL.
func NewMemoryStore(ttl time.Duration, opts ...Option) *MemoryStore {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	if ttl <= 0 {
		ttl = DefaultTTL
	}

	return &MemoryStore{
		entries: make(map[string]*Entry),
		ttl:     ttl,
		clock:   o.clock,
		logger:  o.logger,
	}
}

// TTL returns the lifetime applied to every entry.
func (m *MemoryStore) TTL() time.Duration {
	return m.ttl
}

// Get returns the cached value for key.
func (m *MemoryStore) Get(_ context.Context, key string) (json.RawMessage, bool) {
	m.mu.RLock()
	entry, ok := m.entries[key]
	m.mu.RUnlock()

	if !ok {
		CacheMisses.WithLabelValues(layerMemory).Inc()
		return nil, false
	}

	if entry.ExpiredAt(m.clock.Now()) {
		m.mu.Lock()
		// Only drop the entry we looked at; a concurrent Set may have replaced it.
		if current, ok := m.entries[key]; ok && current == entry {
			delete(m.entries, key)
			CacheEvictions.WithLabelValues(layerMemory, "expired_read").Inc()
		}
		CacheEntries.WithLabelValues(layerMemory).Set(float64(len(m.entries)))
		m.mu.Unlock()

		CacheMisses.WithLabelValues(layerMemory).Inc()
		m.logger.Debug().Str("key", key).Msg("Cache entry expired")
		return nil, false
	}

	CacheHits.WithLabelValues(layerMemory).Inc()
	m.logger.Debug().Str("key", key).Msg("Cache hit")
	return entry.Value, true
}

// Set stores value under key, overwriting any previous entry.
func (m *MemoryStore) Set(_ context.Context, key string, value json.RawMessage) {
	entry := newEntry(key, value, m.clock.Now(), m.ttl)

	m.mu.Lock()
	m.entries[key] = entry
	CacheEntries.WithLabelValues(layerMemory).Set(float64(len(m.entries)))
	m.mu.Unlock()

	m.logger.Debug().Str("key", key).Dur("ttl", m.ttl).Msg("Cache set")
}

// Clear removes every entry.
func (m *MemoryStore) Clear(_ context.Context) {
	m.mu.Lock()
	cleared := len(m.entries)
	m.entries = make(map[string]*Entry)
	CacheEntries.WithLabelValues(layerMemory).Set(0)
	m.mu.Unlock()

	CacheEvictions.WithLabelValues(layerMemory, "clear").Add(float64(cleared))
	m.logger.Info().Int("entries", cleared).Msg("Cache cleared")
}

// Cleanup evicts every entry whose expiry lies strictly in the past.
func (m *MemoryStore) Cleanup(_ context.Context) int {
	now := m.clock.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	cleaned := 0
	for key, entry := range m.entries {
		if entry.ExpiresAt.Before(now) {
			delete(m.entries, key)
			cleaned++
		}
	}

	CacheEntries.WithLabelValues(layerMemory).Set(float64(len(m.entries)))
	CacheEvictions.WithLabelValues(layerMemory, "sweep").Add(float64(cleaned))
	return cleaned
}

// Stats returns the number of entries and their keys in sorted order.
func (m *MemoryStore) Stats(_ context.Context) Stats {
	m.mu.RLock()
	keys := make([]string, 0, len(m.entries))
	for key := range m.entries {
		keys = append(keys, key)
	}
	m.mu.RUnlock()

	sort.Strings(keys)
	return Stats{Size: len(keys), Keys: keys}
}

// Len returns the number of entries, expired ones included.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

var _ Store = (*MemoryStore)(nil)
