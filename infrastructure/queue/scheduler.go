package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/R3E-Network/resolution-engine/infrastructure/logging"
)

// Handler executes one job. It must be idempotent: a job may be retried
// after a partial failure, and may in rare cases run more than once if the
// process crashes between a successful Handler call and the store Delete
// that follows it.
type Handler func(ctx context.Context, job Job) error

// SchedulerMetrics is the subset of *metrics.Metrics the scheduler reports
// against. A nil SchedulerMetrics disables reporting.
type SchedulerMetrics interface {
	RecordJobEnqueued(queue, jobType string)
	RecordJobRun(queue, jobType, outcome string, duration time.Duration)
	SetQueueDepth(queue string, depth int)
}

// ErrQueueNotRegistered is returned by Enqueue for an unknown queue name.
var ErrQueueNotRegistered = errors.New("queue: not registered")

type queueState struct {
	jobs    map[string]*Job
	handler Handler
	sem     chan struct{}
}

// Scheduler is the in-process Job Scheduler. Its registry is a
// mutex-guarded map so scan/remove/cancellation-by-predicate are simple,
// synchronous, network-free operations — required for I-L2, which must
// complete before handleDisputeDetected returns. A Store mirrors every
// {delayed, waiting} job to Postgres so the registry can be rehydrated
// after a restart.
type Scheduler struct {
	mu      sync.Mutex
	queues  map[string]*queueState
	store   *Store
	log     *logging.Logger
	metrics SchedulerMetrics

	pollInterval time.Duration
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	running      bool
}

// NewScheduler constructs a Scheduler. store may be nil, in which case jobs
// are in-memory only (used in tests). metrics may be nil to disable
// reporting.
func NewScheduler(store *Store, log *logging.Logger, pollInterval time.Duration, metrics SchedulerMetrics) *Scheduler {
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	return &Scheduler{
		queues:       make(map[string]*queueState),
		store:        store,
		log:          log,
		metrics:      metrics,
		pollInterval: pollInterval,
	}
}

// RegisterQueue declares a named queue, its handler, and its worker pool
// size. It must be called before Start.
func (s *Scheduler) RegisterQueue(queue string, concurrency int, handler Handler) {
	if concurrency <= 0 {
		concurrency = 1
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queues[queue] = &queueState{
		jobs:    make(map[string]*Job),
		handler: handler,
		sem:     make(chan struct{}, concurrency),
	}
}

// Start rehydrates pending jobs from the store (if any) and begins the
// polling loop that promotes due delayed jobs and dispatches waiting ones.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()

	if s.store != nil {
		pending, err := s.store.LoadPending(runCtx)
		if err != nil {
			return err
		}
		s.mu.Lock()
		for i := range pending {
			j := pending[i]
			qs, ok := s.queues[j.Queue]
			if !ok {
				continue
			}
			qs.jobs[j.ID] = &j
		}
		s.mu.Unlock()
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				s.tick(runCtx)
			}
		}
	}()

	if s.log != nil {
		s.log.WithContext(runCtx).Info("job scheduler started")
	}
	return nil
}

// Stop drains the polling loop and waits for it to exit.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	cancel := s.cancel
	s.running = false
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.wg.Wait()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// Enqueue schedules a new job on queue, to run after opts.Delay.
func (s *Scheduler) Enqueue(ctx context.Context, queue, jobType string, payload []byte, opts EnqueueOptions) (Job, error) {
	opts = opts.withDefaults()

	s.mu.Lock()
	qs, ok := s.queues[queue]
	s.mu.Unlock()
	if !ok {
		return Job{}, ErrQueueNotRegistered
	}

	now := time.Now()
	j := Job{
		ID:          uuid.NewString(),
		Queue:       queue,
		Type:        jobType,
		Payload:     append([]byte(nil), payload...),
		RunAt:       now.Add(opts.Delay),
		Attempts:    0,
		MaxAttempts: opts.MaxAttempts,
		BackoffBase: opts.BackoffBase,
		State:       StateWaiting,
		CreatedAt:   now,
	}
	if opts.Delay > 0 {
		j.State = StateDelayed
	}

	if s.store != nil {
		if err := s.store.Put(ctx, j); err != nil {
			return Job{}, err
		}
	}

	s.mu.Lock()
	qs.jobs[j.ID] = &j
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.RecordJobEnqueued(queue, jobType)
	}

	return j, nil
}

// Scan returns a snapshot of every job on queue whose state is in states.
func (s *Scheduler) Scan(queue string, states ...State) []Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	qs, ok := s.queues[queue]
	if !ok {
		return nil
	}
	allowed := make(map[State]bool, len(states))
	for _, st := range states {
		allowed[st] = true
	}
	var matched []Job
	for _, j := range qs.jobs {
		if allowed[j.State] {
			matched = append(matched, *j)
		}
	}
	return matched
}

// Remove deletes a job by id, succeeding only while it is delayed or
// waiting. It reports false for any job already active, completed, or
// failed, or not found.
func (s *Scheduler) Remove(ctx context.Context, queue, jobID string) bool {
	s.mu.Lock()
	qs, ok := s.queues[queue]
	if !ok {
		s.mu.Unlock()
		return false
	}
	j, ok := qs.jobs[jobID]
	if !ok || (j.State != StateDelayed && j.State != StateWaiting) {
		s.mu.Unlock()
		return false
	}
	delete(qs.jobs, jobID)
	s.mu.Unlock()

	if s.store != nil {
		_ = s.store.Delete(ctx, jobID)
	}
	return true
}

// CancelByPredicate implements the scheduler's cancellation-by-predicate
// pattern: scan({delayed,waiting}).filter(predicate).forEach(remove). It
// runs synchronously and returns the number of jobs removed, so callers
// enforcing a must-complete-before-return invariant (I-L2) can rely on it.
func (s *Scheduler) CancelByPredicate(ctx context.Context, queue string, predicate func(Job) bool) int {
	candidates := s.Scan(queue, StateDelayed, StateWaiting)
	removed := 0
	for _, j := range candidates {
		if !predicate(j) {
			continue
		}
		if s.Remove(ctx, queue, j.ID) {
			removed++
		}
	}
	return removed
}

func (s *Scheduler) tick(ctx context.Context) {
	s.mu.Lock()
	now := time.Now()
	type dispatchable struct {
		queue string
		qs    *queueState
		job   *Job
	}
	var due []dispatchable
	for qname, qs := range s.queues {
		for _, j := range qs.jobs {
			if j.State == StateDelayed && !j.RunAt.After(now) {
				j.State = StateWaiting
			}
			if j.State == StateWaiting {
				due = append(due, dispatchable{queue: qname, qs: qs, job: j})
			}
		}
		if s.metrics != nil {
			s.metrics.SetQueueDepth(qname, len(qs.jobs))
		}
	}
	s.mu.Unlock()

	for _, d := range due {
		select {
		case d.qs.sem <- struct{}{}:
		default:
			continue // pool saturated, retry next tick
		}
		s.mu.Lock()
		d.job.State = StateActive
		s.mu.Unlock()

		go s.run(ctx, d.queue, d.qs, d.job)
	}
}

func (s *Scheduler) run(ctx context.Context, queue string, qs *queueState, j *Job) {
	defer func() { <-qs.sem }()

	start := time.Now()
	err := qs.handler(ctx, *j)

	if s.metrics != nil {
		outcome := "success"
		if err != nil {
			outcome = "failure"
		}
		s.metrics.RecordJobRun(queue, j.Type, outcome, time.Since(start))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err == nil {
		delete(qs.jobs, j.ID)
		if s.store != nil {
			_ = s.store.Delete(ctx, j.ID)
		}
		return
	}

	j.Attempts++
	j.LastError = err.Error()
	if j.Attempts >= j.MaxAttempts {
		j.State = StateFailed
		delete(qs.jobs, j.ID)
		if s.log != nil {
			s.log.WithContext(ctx).WithError(err).Warnf("job %s on %s exhausted retries", j.ID, queue)
		}
		if s.store != nil {
			_ = s.store.Put(ctx, *j)
		}
		return
	}

	j.State = StateDelayed
	j.RunAt = time.Now().Add(nextBackoff(j.BackoffBase, j.Attempts))
	if s.store != nil {
		_ = s.store.Put(ctx, *j)
	}
}
