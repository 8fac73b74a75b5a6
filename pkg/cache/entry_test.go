package cache

import (
	"testing"
	"time"
)

func TestEntry_ExpiredAt(t *testing.T) {
	stored := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	entry := newEntry("k", []byte(`{}`), stored, 10*time.Minute)

	tests := []struct {
		name string
		now  time.Time
		want bool
	}{
		{name: "at store time", now: stored, want: false},
		{name: "mid life", now: stored.Add(5 * time.Minute), want: false},
		{name: "exactly at expiry", now: stored.Add(10 * time.Minute), want: false},
		{name: "just after expiry", now: stored.Add(10*time.Minute + time.Nanosecond), want: true},
		{name: "long after expiry", now: stored.Add(time.Hour), want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := entry.ExpiredAt(tt.now); got != tt.want {
				t.Errorf("ExpiredAt() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEntry_TTLAt(t *testing.T) {
	stored := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	entry := newEntry("k", nil, stored, 10*time.Minute)

	tests := []struct {
		name string
		now  time.Time
		want time.Duration
	}{
		{name: "full ttl", now: stored, want: 10 * time.Minute},
		{name: "partially elapsed", now: stored.Add(4 * time.Minute), want: 6 * time.Minute},
		{name: "already expired", now: stored.Add(11 * time.Minute), want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := entry.TTLAt(tt.now); got != tt.want {
				t.Errorf("TTLAt() = %v, want %v", got, tt.want)
			}
		})
	}
}
