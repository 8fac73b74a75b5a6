package cache

import (
	"encoding/json"
	"time"
)

// Entry is a cached response body.
type Entry struct {
	// Key is the canonical request signature
	Key string `json:"key"`

	// Value is the decoded response body, kept as raw JSON
	Value json.RawMessage `json:"value"`

	// StoredAt is when the entry was written
	StoredAt time.Time `json:"stored_at"`

	// ExpiresAt is StoredAt plus the store TTL
	ExpiresAt time.Time `json:"expires_at"`
}

func newEntry(key string, value json.RawMessage, now time.Time, ttl time.Duration) *Entry {
	return &Entry{
		Key:       key,
		Value:     value,
		StoredAt:  now,
		ExpiresAt: now.Add(ttl),
	}
}

// ExpiredAt reports whether the entry must no longer be served at now.
// An entry is still fresh at exactly ExpiresAt.
func (e *Entry) ExpiredAt(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

// TTLAt returns the time left before expiry, or 0 if already expired.
func (e *Entry) TTLAt(now time.Time) time.Duration {
	ttl := e.ExpiresAt.Sub(now)
	if ttl < 0 {
		return 0
	}
	return ttl
}
