package throttle

import "time"

// Stats is a snapshot of the throttle queue.
type Stats struct {
	// QueueLength is the number of items waiting to run.
	QueueLength int `json:"queue_length"`

	// TotalRequests is the number of items that have run, failed ones included.
	TotalRequests uint64 `json:"total_requests"`

	// Processing is true while an item is running or waiting for its slot.
	Processing bool `json:"processing"`

	// LastStart is when the most recent item started. Zero before the first one.
	LastStart time.Time `json:"last_start"`
}

// Idle returns true when nothing is queued or running.
func (s Stats) Idle() bool {
	return s.QueueLength == 0 && !s.Processing
}

// NextSlot returns the earliest time the next item may start.
func (s Stats) NextSlot(spacing time.Duration) time.Time {
	if s.LastStart.IsZero() {
		return time.Time{}
	}
	return s.LastStart.Add(spacing)
}
