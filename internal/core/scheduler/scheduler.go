// Package scheduler owns all network activity. Reads become refresh
// jobs that are coalesced, prioritized, and retried; writes become
// per-entity edit intents that submit in order. Results land in the
// entity store, never directly in the UI.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/kestreldev/kestrel/internal/api"
	"github.com/kestreldev/kestrel/internal/core/entity"
	"github.com/kestreldev/kestrel/internal/core/eventbus"
	"github.com/kestreldev/kestrel/internal/core/logging"
	"github.com/kestreldev/kestrel/internal/core/store"
)

// Client is the remote API surface the scheduler drives.
type Client interface {
	Fetch(ctx context.Context, scope api.Scope, pageToken string) (api.Page, error)
	UpdateTask(ctx context.Context, gid string, update entity.TaskUpdate) (*entity.Task, error)
	CreateComment(ctx context.Context, taskGID, text string) (*entity.Comment, error)
}

// State is a job's lifecycle position.
type State string

const (
	StateQueued    State = "queued"
	StateInFlight  State = "in-flight"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// Priority orders jobs. Foreground jobs always dispatch before
// background jobs.
type Priority int

const (
	Background Priority = iota
	Foreground
)

// Job is a scheduled refresh for one scope.
type Job struct {
	ID       uint64
	Scope    api.Scope
	Priority Priority

	state  State
	err    error
	cancel context.CancelFunc
}

// Options configures a Scheduler.
type Options struct {
	Client Client
	Store  *store.Store
	Bus    *eventbus.EventBus

	MaxConcurrent  int
	RetryAttempts  int
	BackoffBase    time.Duration
	RequestTimeout time.Duration

	// Now and Sleep inject time for tests.
	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
}

// Scheduler dispatches refresh jobs and edit intents against the
// remote API. All methods are safe for concurrent use once Run is
// started.
type Scheduler struct {
	opts Options

	mu        sync.Mutex
	fg        []*Job
	bg        []*Job
	byKey     map[string]*Job
	nextID    uint64
	suspended bool
	ctx       context.Context

	editMu sync.Mutex
	edits  map[string]*editQueue

	wake chan struct{}
	sem  *semaphore.Weighted
	log  zerolog.Logger
}

// New creates a Scheduler. Call Run to start dispatching.
func New(opts Options) *Scheduler {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 4
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = 500 * time.Millisecond
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepCtx
	}
	return &Scheduler{
		opts:  opts,
		byKey: make(map[string]*Job),
		edits: make(map[string]*editQueue),
		wake:  make(chan struct{}, 1),
		sem:   semaphore.NewWeighted(int64(opts.MaxConcurrent)),
		log:   logging.Component("scheduler"),
	}
}

// Run dispatches jobs until ctx is cancelled. Blocks; run in a
// goroutine.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	for {
		job := s.next()
		if job == nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-s.wake:
				continue
			}
		}

		if err := s.sem.Acquire(ctx, 1); err != nil {
			return err
		}
		go func(j *Job) {
			defer s.sem.Release(1)
			s.run(ctx, j)
			s.finish(j)
		}(job)
	}
}

// Refresh schedules a fetch for the scope. Requests for a scope that
// is already queued or in flight coalesce onto the existing job; a
// foreground request promotes a queued background job. Returns the
// job's id.
func (s *Scheduler) Refresh(scope api.Scope, priority Priority) uint64 {
	key := scope.Key()

	s.mu.Lock()
	if existing, ok := s.byKey[key]; ok {
		if priority == Foreground && existing.Priority == Background && existing.state == StateQueued {
			existing.Priority = Foreground
			s.bg = removeJob(s.bg, existing)
			s.fg = append(s.fg, existing)
		}
		id := existing.ID
		s.mu.Unlock()
		s.signal()
		return id
	}

	s.nextID++
	job := &Job{ID: s.nextID, Scope: scope, Priority: priority, state: StateQueued}
	s.byKey[key] = job
	if priority == Foreground {
		s.fg = append(s.fg, job)
	} else {
		s.bg = append(s.bg, job)
	}
	s.mu.Unlock()

	s.publishStatus(job, nil)
	s.signal()
	return job.ID
}

// Cancel aborts the job for the scope, queued or in flight. In-flight
// cancellations discard their results silently.
func (s *Scheduler) Cancel(scope api.Scope) {
	key := scope.Key()

	s.mu.Lock()
	job, ok := s.byKey[key]
	if !ok {
		s.mu.Unlock()
		return
	}
	switch job.state {
	case StateQueued:
		s.fg = removeJob(s.fg, job)
		s.bg = removeJob(s.bg, job)
		delete(s.byKey, key)
		job.state = StateCancelled
		s.mu.Unlock()
		s.publishStatus(job, nil)
	case StateInFlight:
		cancel := job.cancel
		s.mu.Unlock()
		if cancel != nil {
			cancel()
		}
	default:
		s.mu.Unlock()
	}
}

// Suspend stops dispatching background jobs. Foreground jobs still
// run, so a user-initiated retry can surface the underlying error.
func (s *Scheduler) Suspend() {
	s.mu.Lock()
	s.suspended = true
	s.mu.Unlock()
}

// Resume re-enables background dispatch, typically after the API token
// was replaced.
func (s *Scheduler) Resume() {
	s.mu.Lock()
	s.suspended = false
	s.mu.Unlock()
	s.signal()
}

// Pending returns the number of queued and in-flight jobs.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byKey)
}

func (s *Scheduler) next() *Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	var job *Job
	switch {
	case len(s.fg) > 0:
		job, s.fg = s.fg[0], s.fg[1:]
	case len(s.bg) > 0 && !s.suspended:
		job, s.bg = s.bg[0], s.bg[1:]
	default:
		return nil
	}
	job.state = StateInFlight
	return job
}

// run executes one job: fetch every page of the scope, applying each
// page to the store as it lands, retrying transient failures with
// exponential backoff.
func (s *Scheduler) run(ctx context.Context, job *Job) {
	jobCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	job.cancel = cancel
	s.mu.Unlock()
	s.publishStatus(job, nil)

	var lastErr error
	for attempt := 0; attempt <= s.opts.RetryAttempts; attempt++ {
		err := s.fetchAll(jobCtx, job.Scope)
		if err == nil {
			s.setState(job, StateCompleted, nil)
			return
		}
		lastErr = err

		switch api.Classify(err) {
		case api.ClassCancelled:
			s.setState(job, StateCancelled, nil)
			return
		case api.ClassUnauthorized:
			s.Suspend()
			if s.opts.Bus != nil {
				s.opts.Bus.PublishAuthExpired(eventbus.AuthExpiredPayload{})
			}
			s.setState(job, StateFailed, err)
			return
		case api.ClassRejected:
			s.setState(job, StateFailed, err)
			return
		}

		if attempt == s.opts.RetryAttempts {
			break
		}
		delay := s.backoff(attempt, err)
		s.log.Debug().
			Uint64("job", job.ID).
			Int("attempt", attempt+1).
			Dur("delay", delay).
			Err(err).
			Msg("retrying after transient failure")
		if err := s.opts.Sleep(jobCtx, delay); err != nil {
			s.setState(job, StateCancelled, nil)
			return
		}
	}
	s.setState(job, StateFailed, lastErr)
}

// fetchAll walks the scope's pages. Each page is applied immediately
// so large lists render progressively. The context is re-checked
// before every store writeback: a cancelled job must not mutate state.
func (s *Scheduler) fetchAll(ctx context.Context, scope api.Scope) error {
	pageToken := ""
	for {
		reqCtx, cancel := context.WithTimeout(ctx, s.opts.RequestTimeout)
		page, err := s.opts.Client.Fetch(reqCtx, scope, pageToken)
		cancel()
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		s.opts.Store.PutBatch(page.Entities, s.opts.Now())
		if page.NextPage == "" {
			return nil
		}
		pageToken = page.NextPage
	}
}

// backoff doubles the base delay per attempt. A server-supplied
// Retry-After always wins.
func (s *Scheduler) backoff(attempt int, err error) time.Duration {
	if ra := api.RetryAfter(err); ra > 0 {
		return ra
	}
	return s.opts.BackoffBase * (1 << attempt)
}

func (s *Scheduler) setState(job *Job, state State, err error) {
	s.mu.Lock()
	job.state = state
	job.err = err
	s.mu.Unlock()
	s.publishStatus(job, err)
}

func (s *Scheduler) finish(job *Job) {
	s.mu.Lock()
	if s.byKey[job.Scope.Key()] == job {
		delete(s.byKey, job.Scope.Key())
	}
	s.mu.Unlock()
	s.signal()
}

func (s *Scheduler) publishStatus(job *Job, err error) {
	if s.opts.Bus == nil {
		return
	}
	s.mu.Lock()
	state := job.state
	s.mu.Unlock()
	s.opts.Bus.PublishJobStatusChanged(eventbus.JobStatusChangedPayload{
		JobID:    job.ID,
		Kind:     job.Scope.Kind,
		TargetID: job.Scope.Target(),
		State:    string(state),
		Err:      err,
		Class:    classOf(err),
	})
}

func classOf(err error) string {
	if err == nil {
		return ""
	}
	return string(api.Classify(err))
}

func (s *Scheduler) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func removeJob(jobs []*Job, target *Job) []*Job {
	for i, j := range jobs {
		if j == target {
			return append(jobs[:i], jobs[i+1:]...)
		}
	}
	return jobs
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
