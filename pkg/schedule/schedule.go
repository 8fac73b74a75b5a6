// Package schedule runs background jobs (cache sweeps, liveness pings) at a
// fixed interval behind a small interface, so the jobs themselves can be
// driven by hand in tests.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

var jobRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "catalog_scheduled_job_runs_total",
	Help: "Total scheduled job runs by job name",
}, []string{"job"})

// MinInterval is the smallest interval the cron-backed scheduler honours.
const MinInterval = time.Second

// ErrInvalidJob is returned when a job cannot be registered.
var ErrInvalidJob = errors.New("invalid job")

// Task is the unit of work run on every tick. The context is cancelled when
// the scheduler stops.
type Task func(ctx context.Context)

// Job is a handle on a registered repeating task.
type Job interface {
	// Cancel removes the job; it will not fire again.
	Cancel()
}

// Scheduler registers repeating tasks.
type Scheduler interface {
	Every(name string, interval time.Duration, task Task) (Job, error)
	Start()
	Stop()
}

// CronScheduler is the production Scheduler backed by robfig/cron.
type CronScheduler struct {
	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
	logger zerolog.Logger

	mu      sync.Mutex
	running bool
}

// NewCronScheduler creates a stopped scheduler.
func NewCronScheduler(logger zerolog.Logger) *CronScheduler {
	logger = logger.With().Str("component", "scheduler").Logger()
	cl := cronLogger{logger: logger}

	ctx, cancel := context.WithCancel(context.Background())

	return &CronScheduler{
		cron:   cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl))),
		ctx:    ctx,
		cancel: cancel,
		logger: logger,
	}
}

// Every registers task to run every interval once the scheduler is started.
func (s *CronScheduler) Every(name string, interval time.Duration, task Task) (Job, error) {
	if task == nil {
		return nil, fmt.Errorf("%w: %s: task is nil", ErrInvalidJob, name)
	}
	if interval < MinInterval {
		return nil, fmt.Errorf("%w: %s: interval %v below %v", ErrInvalidJob, name, interval, MinInterval)
	}

	id := s.cron.Schedule(cron.Every(interval), cron.FuncJob(func() {
		jobRunsTotal.WithLabelValues(name).Inc()
		s.logger.Debug().Str("job", name).Msg("Running scheduled job")
		task(s.ctx)
	}))

	s.logger.Info().
		Str("job", name).
		Dur("interval", interval).
		Msg("Scheduled job registered")

	return &cronJob{scheduler: s, id: id, name: name}, nil
}

// Start begins firing registered jobs. It is a no-op when already running.
func (s *CronScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}
	s.running = true
	s.cron.Start()
}

// Stop cancels the task context and waits for running jobs to return.
func (s *CronScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancel()
	if !s.running {
		return
	}
	s.running = false
	<-s.cron.Stop().Done()
}

// Len returns the number of registered jobs.
func (s *CronScheduler) Len() int {
	return len(s.cron.Entries())
}

type cronJob struct {
	scheduler *CronScheduler
	id        cron.EntryID
	name      string
	once      sync.Once
}

func (j *cronJob) Cancel() {
	j.once.Do(func() {
		j.scheduler.cron.Remove(j.id)
		j.scheduler.logger.Debug().Str("job", j.name).Msg("Scheduled job cancelled")
	})
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
