package client

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for retry operations.
var (
	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_retries_total",
		Help: "Total number of retry attempts by error class",
	}, []string{"error_class"})

	retryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "catalog_retry_backoff_seconds",
		Help:    "Backoff duration for retries by error class",
		Buckets: []float64{1, 3, 5, 6, 9, 10, 15, 20, 30},
	}, []string{"error_class"})

	retryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by error class",
	}, []string{"error_class"})
)

// RetryPolicy holds the retry configuration.
//
// Backoff is linear in the 1-based attempt index: the wait after attempt n is
// n*RateLimitStep for rate limiting and n*NetworkStep for network failures.
type RetryPolicy struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int

	// RateLimitStep is the backoff unit after a 429.
	RateLimitStep time.Duration

	// NetworkStep is the backoff unit after a network failure.
	NetworkStep time.Duration
}

// DefaultRetryPolicy returns the default retry configuration.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:    2,
		RateLimitStep: 3 * time.Second,
		NetworkStep:   5 * time.Second,
	}
}

// MaxAttempts returns the total number of transport calls allowed.
func (p RetryPolicy) MaxAttempts() int {
	if p.MaxRetries < 0 {
		return 1
	}
	return p.MaxRetries + 1
}

// Backoff returns the wait after a failed attempt of the given class.
// Classes that are not retried have no backoff.
func (p RetryPolicy) Backoff(class ErrorClass, attempt int) time.Duration {
	switch class {
	case ErrorClassRateLimit:
		return time.Duration(attempt) * p.RateLimitStep
	case ErrorClassNetwork:
		return time.Duration(attempt) * p.NetworkStep
	default:
		return 0
	}
}

func (p RetryPolicy) validate() error {
	if p.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be >= 0 (got %d)", p.MaxRetries)
	}
	if p.RateLimitStep < 0 || p.NetworkStep < 0 {
		return fmt.Errorf("backoff steps must be >= 0")
	}
	return nil
}

// retryPhase is the phase of a retryMachine.
type retryPhase int

const (
	phaseIdle retryPhase = iota
	phaseAttempting
	phaseBackoff
	phaseSucceeded
	phaseFailed
)

func (p retryPhase) String() string {
	switch p {
	case phaseIdle:
		return "idle"
	case phaseAttempting:
		return "attempting"
	case phaseBackoff:
		return "backoff"
	case phaseSucceeded:
		return "succeeded"
	case phaseFailed:
		return "failed"
	default:
		return "invalid"
	}
}

// retryState is one state of the retry machine. Attempt is meaningful for
// Attempting, Backoff and the terminal states; Wait only for Backoff.
type retryState struct {
	Phase   retryPhase
	Attempt int
	Wait    time.Duration
	Class   ErrorClass
}

func (s retryState) String() string {
	switch s.Phase {
	case phaseAttempting:
		return fmt.Sprintf("attempting(%d)", s.Attempt)
	case phaseBackoff:
		return fmt.Sprintf("backoff(%d, %s)", s.Attempt, s.Wait)
	default:
		return s.Phase.String()
	}
}

// retryMachine drives a single dispatch:
//
//	Idle -> Attempting(1)
//	Attempting(n) -> Succeeded                      on success
//	Attempting(n) -> Backoff(n)                     on a retryable failure with attempts left
//	Attempting(n) -> Failed                         otherwise
//	Backoff(n)    -> Attempting(n+1)
//
// It performs no I/O and never sleeps; the caller executes the transitions.
type retryMachine struct {
	policy RetryPolicy
	state  retryState
}

func newRetryMachine(policy RetryPolicy) *retryMachine {
	return &retryMachine{policy: policy, state: retryState{Phase: phaseIdle}}
}

// begin moves Idle or Backoff(n) to the next Attempting state.
func (m *retryMachine) begin() retryState {
	switch m.state.Phase {
	case phaseIdle:
		m.state = retryState{Phase: phaseAttempting, Attempt: 1}
	case phaseBackoff:
		m.state = retryState{Phase: phaseAttempting, Attempt: m.state.Attempt + 1}
	default:
		panic(fmt.Sprintf("retry: begin from %s", m.state))
	}
	return m.state
}

// observe records the outcome of the current attempt.
func (m *retryMachine) observe(class ErrorClass, err error) retryState {
	if m.state.Phase != phaseAttempting {
		panic(fmt.Sprintf("retry: observe from %s", m.state))
	}

	attempt := m.state.Attempt
	switch {
	case err == nil:
		m.state = retryState{Phase: phaseSucceeded, Attempt: attempt}
	case class.Retryable() && attempt < m.policy.MaxAttempts():
		m.state = retryState{
			Phase:   phaseBackoff,
			Attempt: attempt,
			Wait:    m.policy.Backoff(class, attempt),
			Class:   class,
		}
	default:
		m.state = retryState{Phase: phaseFailed, Attempt: attempt, Class: class}
	}
	return m.state
}

// current returns the current state.
func (m *retryMachine) current() retryState {
	return m.state
}
