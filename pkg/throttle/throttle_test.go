package throttle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sall0568/cinescope-client/internal/testutil"
)

func newFakeThrottle(t *testing.T, spacing time.Duration) (*Throttle, *testutil.FakeClock) {
	t.Helper()
	clk := testutil.NewFakeClock(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	th := New(spacing, clk, zerolog.Nop())
	t.Cleanup(th.Close)
	return th, clk
}

func TestNew_NegativeSpacing(t *testing.T) {
	th := New(-time.Second, nil, zerolog.Nop())
	defer th.Close()
	assert.Equal(t, time.Duration(0), th.Spacing())
}

func TestThrottle_Spacing(t *testing.T) {
	th, clk := newFakeThrottle(t, DefaultSpacing)
	ctx := context.Background()

	var (
		mu     sync.Mutex
		starts []time.Time
	)
	record := func(ctx context.Context) (any, error) {
		mu.Lock()
		starts = append(starts, clk.Now())
		mu.Unlock()
		return nil, nil
	}

	results := make([]<-chan Result, 0, 4)
	for i := 0; i < 4; i++ {
		results = append(results, th.Submit(ctx, record))
	}
	for _, r := range results {
		require.NoError(t, (<-r).Err)
	}

	require.Len(t, starts, 4)
	for i := 1; i < len(starts); i++ {
		gap := starts[i].Sub(starts[i-1])
		assert.GreaterOrEqual(t, gap, DefaultSpacing, "gap %d", i)
	}
	assert.Equal(t, []time.Duration{
		DefaultSpacing, DefaultSpacing, DefaultSpacing,
	}, clk.Sleeps())
}

func TestThrottle_NoWaitAfterIdle(t *testing.T) {
	th, clk := newFakeThrottle(t, DefaultSpacing)
	ctx := context.Background()

	noop := func(ctx context.Context) (any, error) { return nil, nil }

	_, err := th.Enqueue(ctx, noop)
	require.NoError(t, err)

	clk.Advance(time.Second)

	_, err = th.Enqueue(ctx, noop)
	require.NoError(t, err)
	assert.Empty(t, clk.Sleeps(), "no wait once the spacing has already elapsed")
}

func TestThrottle_FIFO(t *testing.T) {
	th := New(time.Millisecond, nil, zerolog.Nop())
	defer th.Close()
	ctx := context.Background()

	var (
		mu    sync.Mutex
		order []int
	)

	results := make([]<-chan Result, 0, 10)
	for i := 0; i < 10; i++ {
		i := i
		results = append(results, th.Submit(ctx, func(ctx context.Context) (any, error) {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			return i, nil
		}))
	}

	for i, r := range results {
		res := <-r
		require.NoError(t, res.Err)
		assert.Equal(t, i, res.Value)
	}
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, order)
}

func TestThrottle_OneAtATime(t *testing.T) {
	th := New(0, nil, zerolog.Nop())
	defer th.Close()
	ctx := context.Background()

	var (
		mu      sync.Mutex
		running int
		maxSeen int
	)
	work := func(ctx context.Context) (any, error) {
		mu.Lock()
		running++
		if running > maxSeen {
			maxSeen = running
		}
		mu.Unlock()

		time.Sleep(2 * time.Millisecond)

		mu.Lock()
		running--
		mu.Unlock()
		return nil, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = th.Enqueue(ctx, work)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxSeen)
}

func TestThrottle_FailureIsolation(t *testing.T) {
	th, _ := newFakeThrottle(t, DefaultSpacing)
	ctx := context.Background()

	boom := errors.New("boom")

	r1 := th.Submit(ctx, func(ctx context.Context) (any, error) { return "first", nil })
	r2 := th.Submit(ctx, func(ctx context.Context) (any, error) { return nil, boom })
	r3 := th.Submit(ctx, func(ctx context.Context) (any, error) { panic("kaboom") })
	r4 := th.Submit(ctx, func(ctx context.Context) (any, error) { return "last", nil })

	res := <-r1
	assert.NoError(t, res.Err)
	assert.Equal(t, "first", res.Value)

	res = <-r2
	assert.ErrorIs(t, res.Err, boom)

	res = <-r3
	require.Error(t, res.Err)
	assert.Contains(t, res.Err.Error(), "kaboom")

	res = <-r4
	assert.NoError(t, res.Err)
	assert.Equal(t, "last", res.Value)

	stats := th.Stats()
	assert.Equal(t, uint64(4), stats.TotalRequests)
}

func TestThrottle_CancelledItemIsSkipped(t *testing.T) {
	th := New(0, nil, zerolog.Nop())
	defer th.Close()

	started := make(chan struct{})
	release := make(chan struct{})

	first := th.Submit(context.Background(), func(ctx context.Context) (any, error) {
		close(started)
		<-release
		return nil, nil
	})
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	ran := false
	second := th.Submit(ctx, func(ctx context.Context) (any, error) {
		ran = true
		return nil, nil
	})
	cancel()
	close(release)

	require.NoError(t, (<-first).Err)
	assert.ErrorIs(t, (<-second).Err, context.Canceled)
	assert.False(t, ran)
}

func TestThrottle_EnqueueHonoursContext(t *testing.T) {
	th := New(0, nil, zerolog.Nop())
	defer th.Close()

	release := make(chan struct{})
	defer close(release)

	th.Submit(context.Background(), func(ctx context.Context) (any, error) {
		<-release
		return nil, nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := th.Enqueue(ctx, func(ctx context.Context) (any, error) { return nil, nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestThrottle_Close(t *testing.T) {
	th := New(0, nil, zerolog.Nop())

	started := make(chan struct{})
	release := make(chan struct{})

	running := th.Submit(context.Background(), func(ctx context.Context) (any, error) {
		close(started)
		<-release
		return "done", nil
	})
	<-started

	queued1 := th.Submit(context.Background(), func(ctx context.Context) (any, error) { return nil, nil })
	queued2 := th.Submit(context.Background(), func(ctx context.Context) (any, error) { return nil, nil })

	closed := make(chan struct{})
	go func() {
		th.Close()
		close(closed)
	}()

	assert.ErrorIs(t, (<-queued1).Err, ErrClosed)
	assert.ErrorIs(t, (<-queued2).Err, ErrClosed)

	close(release)
	res := <-running
	assert.NoError(t, res.Err)
	assert.Equal(t, "done", res.Value)
	<-closed

	// Submitting after Close fails immediately; Close is idempotent.
	assert.ErrorIs(t, (<-th.Submit(context.Background(), func(ctx context.Context) (any, error) { return nil, nil })).Err, ErrClosed)
	th.Close()
}

func TestThrottle_Stats(t *testing.T) {
	th := New(0, nil, zerolog.Nop())
	defer th.Close()

	assert.True(t, th.Stats().Idle())

	started := make(chan struct{})
	release := make(chan struct{})
	first := th.Submit(context.Background(), func(ctx context.Context) (any, error) {
		close(started)
		<-release
		return nil, nil
	})
	<-started
	second := th.Submit(context.Background(), func(ctx context.Context) (any, error) { return nil, nil })

	stats := th.Stats()
	assert.True(t, stats.Processing)
	assert.Equal(t, 1, stats.QueueLength)
	assert.False(t, stats.Idle())

	close(release)
	<-first
	<-second

	require.Eventually(t, func() bool { return th.Stats().Idle() }, time.Second, time.Millisecond)
	assert.Equal(t, uint64(2), th.Stats().TotalRequests)
}

func TestStats_NextSlot(t *testing.T) {
	assert.True(t, Stats{}.NextSlot(DefaultSpacing).IsZero())

	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s := Stats{LastStart: start}
	assert.Equal(t, start.Add(200*time.Millisecond), s.NextSlot(DefaultSpacing))
}

func TestDo(t *testing.T) {
	th, _ := newFakeThrottle(t, DefaultSpacing)
	ctx := context.Background()

	n, err := Do(ctx, th, func(ctx context.Context) (int, error) { return 42, nil })
	require.NoError(t, err)
	assert.Equal(t, 42, n)

	boom := errors.New("boom")
	s, err := Do(ctx, th, func(ctx context.Context) (string, error) { return "", boom })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, "", s)

	var nilSlice []byte
	b, err := Do(ctx, th, func(ctx context.Context) ([]byte, error) { return nilSlice, nil })
	require.NoError(t, err)
	assert.Nil(t, b)
}
