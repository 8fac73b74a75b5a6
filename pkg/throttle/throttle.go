// Package throttle serializes upstream calls through a single FIFO queue and
// keeps a minimum spacing between the start of consecutive calls.
//
// Bursts of work (several list pages, a details page with its credits and
// videos) are turned into a steady trickle so the upstream metadata service
// does not answer with 429.
package throttle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/sall0568/cinescope-client/pkg/clock"
)

// DefaultSpacing is the minimum time between the start of two calls.
const DefaultSpacing = 200 * time.Millisecond

// ErrClosed is returned for work submitted to, or still queued in, a closed throttle.
var ErrClosed = errors.New("throttle closed")

// Work is a unit of throttled work.
type Work func(ctx context.Context) (any, error)

// Result is the outcome of one Work item.
type Result struct {
	Value any
	Err   error
}

type item struct {
	ctx      context.Context
	work     Work
	result   chan Result
	enqueued time.Time
}

// Throttle runs submitted work one item at a time, in submission order.
type Throttle struct {
	spacing time.Duration
	clock   clock.Clock
	logger  zerolog.Logger

	mu         sync.Mutex
	queue      []*item
	processing bool
	closed     bool
	total      uint64
	lastStart  time.Time

	wake   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a throttle and starts its worker.
// A negative spacing is treated as zero; a nil clock means the real clock.
func New(spacing time.Duration, c clock.Clock, logger zerolog.Logger) *Throttle {
	if spacing < 0 {
		spacing = 0
	}

	ctx, cancel := context.WithCancel(context.Background())
	t := &Throttle{
		spacing: spacing,
		clock:   clock.OrReal(c),
		logger:  logger,
		wake:    make(chan struct{}, 1),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	go t.run()
	return t
}

// Spacing returns the configured minimum start-to-start spacing.
func (t *Throttle) Spacing() time.Duration {
	return t.spacing
}

// Submit appends work to the queue and returns a channel that receives its
// result exactly once. It never blocks.
func (t *Throttle) Submit(ctx context.Context, work Work) <-chan Result {
	result := make(chan Result, 1)

	if work == nil {
		result <- Result{Err: errors.New("throttle: nil work")}
		return result
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		result <- Result{Err: ErrClosed}
		return result
	}
	t.queue = append(t.queue, &item{
		ctx:      ctx,
		work:     work,
		result:   result,
		enqueued: t.clock.Now(),
	})
	queued := len(t.queue)
	t.mu.Unlock()

	throttleQueueLength.Set(float64(queued))

	select {
	case t.wake <- struct{}{}:
	default:
	}

	return result
}

// Enqueue submits work and waits for its result. If ctx ends first, Enqueue
// returns ctx.Err(); the item is then skipped when its turn comes, or runs to
// completion if it had already started.
func (t *Throttle) Enqueue(ctx context.Context, work Work) (any, error) {
	result := t.Submit(ctx, work)

	select {
	case r := <-result:
		return r.Value, r.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Do is the typed form of Enqueue.
func Do[T any](ctx context.Context, t *Throttle, work func(ctx context.Context) (T, error)) (T, error) {
	v, err := t.Enqueue(ctx, func(ctx context.Context) (any, error) {
		return work(ctx)
	})

	var zero T
	if err != nil {
		if typed, ok := v.(T); ok {
			return typed, err
		}
		return zero, err
	}

	typed, ok := v.(T)
	if !ok && v != nil {
		return zero, fmt.Errorf("throttle: unexpected result type %T", v)
	}
	return typed, nil
}

// Stats returns a snapshot of the queue.
func (t *Throttle) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()

	return Stats{
		QueueLength:   len(t.queue),
		TotalRequests: t.total,
		Processing:    t.processing,
		LastStart:     t.lastStart,
	}
}

// Close stops the worker and fails every queued item with ErrClosed.
// An item already running is allowed to finish. Close is idempotent.
func (t *Throttle) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		<-t.done
		return
	}
	t.closed = true
	pending := t.queue
	t.queue = nil
	t.mu.Unlock()

	t.cancel()
	for _, it := range pending {
		it.result <- Result{Err: ErrClosed}
		throttleExecutedTotal.WithLabelValues("dropped").Inc()
	}
	throttleQueueLength.Set(0)

	<-t.done
	t.logger.Debug().Int("dropped", len(pending)).Msg("Throttle closed")
}

func (t *Throttle) run() {
	defer close(t.done)

	for {
		it := t.next()
		if it == nil {
			return
		}
		t.process(it)
	}
}

// next pops the head of the queue, blocking until an item arrives or the
// throttle is closed.
func (t *Throttle) next() *item {
	for {
		t.mu.Lock()
		if t.closed {
			t.mu.Unlock()
			return nil
		}
		if len(t.queue) > 0 {
			it := t.queue[0]
			t.queue[0] = nil
			t.queue = t.queue[1:]
			t.processing = true
			queued := len(t.queue)
			t.mu.Unlock()

			throttleQueueLength.Set(float64(queued))
			return it
		}
		t.mu.Unlock()

		select {
		case <-t.wake:
		case <-t.ctx.Done():
			return nil
		}
	}
}

func (t *Throttle) process(it *item) {
	defer t.finish()

	if err := it.ctx.Err(); err != nil {
		it.result <- Result{Err: err}
		throttleExecutedTotal.WithLabelValues("dropped").Inc()
		return
	}

	if wait := t.waitFor(); wait > 0 {
		if err := t.clock.Sleep(t.ctx, wait); err != nil {
			it.result <- Result{Err: ErrClosed}
			throttleExecutedTotal.WithLabelValues("dropped").Inc()
			return
		}
		// The caller may have given up while we waited for the slot.
		if err := it.ctx.Err(); err != nil {
			it.result <- Result{Err: err}
			throttleExecutedTotal.WithLabelValues("dropped").Inc()
			return
		}
	}

	start := t.clock.Now()
	t.mu.Lock()
	t.lastStart = start
	t.total++
	t.mu.Unlock()

	throttleWaitSeconds.Observe(start.Sub(it.enqueued).Seconds())

	value, err := t.execute(it)
	if err != nil {
		throttleExecutedTotal.WithLabelValues("error").Inc()
		t.logger.Debug().Err(err).Msg("Throttled call failed")
	} else {
		throttleExecutedTotal.WithLabelValues("success").Inc()
	}
	it.result <- Result{Value: value, Err: err}
}

// execute runs the work, turning a panic into an error so one bad item
// cannot stop the queue.
func (t *Throttle) execute(it *item) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error().Interface("panic", r).Msg("Recovered panic in throttled call")
			value, err = nil, fmt.Errorf("throttle: work panicked: %v", r)
		}
	}()
	return it.work(it.ctx)
}

func (t *Throttle) waitFor() time.Duration {
	t.mu.Lock()
	last := t.lastStart
	t.mu.Unlock()

	if last.IsZero() {
		return 0
	}
	return last.Add(t.spacing).Sub(t.clock.Now())
}

func (t *Throttle) finish() {
	t.mu.Lock()
	t.processing = false
	t.mu.Unlock()
}
