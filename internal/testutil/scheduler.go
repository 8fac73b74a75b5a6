package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sall0568/cinescope-client/pkg/schedule"
)

// ManualScheduler is a schedule.Scheduler whose jobs only run when fired.
type ManualScheduler struct {
	mu      sync.Mutex
	jobs    map[int]*manualJob
	nextID  int
	started bool
	stopped bool
}

type manualJob struct {
	owner    *ManualScheduler
	id       int
	name     string
	interval time.Duration
	task     schedule.Task
}

// NewManualScheduler creates an empty scheduler.
func NewManualScheduler() *ManualScheduler {
	return &ManualScheduler{jobs: make(map[int]*manualJob)}
}

// Every registers task under name.
func (s *ManualScheduler) Every(name string, interval time.Duration, task schedule.Task) (schedule.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	job := &manualJob{owner: s, id: s.nextID, name: name, interval: interval, task: task}
	s.jobs[job.id] = job
	return job, nil
}

// Start marks the scheduler as started.
func (s *ManualScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = true
}

// Stop marks the scheduler as stopped.
func (s *ManualScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = false
	s.stopped = true
}

// Started reports whether Start was called and Stop was not.
func (s *ManualScheduler) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// Stopped reports whether Stop was called.
func (s *ManualScheduler) Stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// Fire runs every job registered under name synchronously and returns how
// many ran.
func (s *ManualScheduler) Fire(ctx context.Context, name string) int {
	s.mu.Lock()
	var due []*manualJob
	for _, job := range s.jobs {
		if job.name == name {
			due = append(due, job)
		}
	}
	s.mu.Unlock()

	for _, job := range due {
		job.task(ctx)
	}
	return len(due)
}

// Jobs returns the names of registered jobs, sorted.
func (s *ManualScheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.jobs))
	for _, job := range s.jobs {
		names = append(names, job.name)
	}
	sort.Strings(names)
	return names
}

// Interval returns the interval of the first job registered under name.
func (s *ManualScheduler) Interval(name string) (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, job := range s.jobs {
		if job.name == name {
			return job.interval, true
		}
	}
	return 0, false
}

func (j *manualJob) Cancel() {
	j.owner.mu.Lock()
	defer j.owner.mu.Unlock()
	delete(j.owner.jobs, j.id)
}

var _ schedule.Scheduler = (*ManualScheduler)(nil)
