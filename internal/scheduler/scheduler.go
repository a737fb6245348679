package scheduler

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/dwgbatch/dwgbatch/internal/scheduler/output"
	"github.com/google/uuid"
)

const (
	// MinParallel and MaxParallel bound the concurrency cap. The upper
	// bound matches what a workstation copes with when every slot is a
	// full console-tool process.
	MinParallel = 1
	MaxParallel = 12

	// eventBufferSize is the capacity of the events channel. Sized so
	// bursts of output from a full set of slots don't stall the runners
	// while the consumer catches up.
	eventBufferSize = 256
)

// task is a submitted job waiting for a slot.
type task struct {
	id  string
	job Job
}

// Scheduler admits submitted Jobs in FIFO order up to the concurrency
// cap, supervises their processes, and republishes lifecycle and output
// events on the Events channel.
//
// Queue state is only ever mutated under the Scheduler's own mutex;
// runners report back through callbacks that take it. The events channel
// is buffered, but a consumer that stops draining it eventually stalls
// the whole scheduler.
type Scheduler struct {
	// NOTE: completed and captures grow unbounded over the lifetime of a
	// Scheduler. A batch session is finite, so everything fits in memory;
	// a long-lived embedding would want eviction once results are read.
	mu          sync.Mutex
	maxParallel int
	pending     []*task
	running     map[string]*runner
	completed   map[string]JobResult
	captures    map[string]*output.Capture
	batchOpen   bool

	events chan Event
}

// New creates a Scheduler with the given concurrency cap. The cap must be
// in [MinParallel, MaxParallel].
func New(maxParallel int) (*Scheduler, error) {
	if maxParallel < MinParallel || maxParallel > MaxParallel {
		return nil, ErrMaxParallelRange
	}

	return &Scheduler{
		maxParallel: maxParallel,
		running:     make(map[string]*runner),
		completed:   make(map[string]JobResult),
		captures:    make(map[string]*output.Capture),
		events:      make(chan Event, eventBufferSize),
	}, nil
}

// Events returns the channel on which all scheduler events are delivered.
// The consumer must drain it for the duration of a batch.
func (s *Scheduler) Events() <-chan Event {
	return s.events
}

// SetMaxParallel updates the concurrency cap. Raising the cap admits
// pending jobs immediately; lowering it never pre-empts running jobs, the
// surplus slots just drain off as jobs finish.
func (s *Scheduler) SetMaxParallel(n int) error {
	if n < MinParallel || n > MaxParallel {
		return ErrMaxParallelRange
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.maxParallel = n
	s.admit()

	return nil
}

// Submit appends jobs to the pending queue in the given order and starts
// as many as free slots allow. It returns the assigned job ids, in the
// same order, without waiting for execution.
//
// Submission is all-or-nothing: if any job has no program, ErrNoProgram
// is returned and nothing is enqueued.
func (s *Scheduler) Submit(jobs ...Job) ([]string, error) {
	for _, job := range jobs {
		if job.Program == "" {
			return nil, fmt.Errorf("job %q: %w", job.DisplayName, ErrNoProgram)
		}
	}

	ids := make([]string, 0, len(jobs))

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, job := range jobs {
		id := uuid.NewString()
		s.pending = append(s.pending, &task{id: id, job: job})
		ids = append(ids, id)
	}

	if len(jobs) > 0 {
		s.batchOpen = true
	}

	s.admit()

	return ids, nil
}

// CancelAll drops every pending job and requests termination of every
// running one. It returns immediately; the JobFinished events for killed
// jobs arrive as their termination is observed, followed by QueueDrained.
// Safe to call at any point and idempotent.
func (s *Scheduler) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending = nil

	for _, r := range s.running {
		r.terminate()
	}

	s.checkDrained()
}

// Result returns the terminal result of the job with the given id,
// ErrJobNotFinished if it is still pending or running, or ErrJobNotFound
// if the scheduler has never seen it.
func (s *Scheduler) Result(id string) (JobResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if result, ok := s.completed[id]; ok {
		return result, nil
	}

	if s.isKnown(id) {
		return JobResult{}, ErrJobNotFinished
	}

	return JobResult{}, ErrJobNotFound
}

// Status returns the current RunState of the job with the given id.
// Pending jobs report RunStateNotStarted.
func (s *Scheduler) Status(id string) (RunState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r, ok := s.running[id]; ok {
		return r.state.Load(), nil
	}

	if result, ok := s.completed[id]; ok {
		return result.State, nil
	}

	if s.isPending(id) {
		return RunStateNotStarted, nil
	}

	return RunStateUnknown, ErrJobNotFound
}

// OutputReader returns an io.ReadCloser replaying the job's full
// sanitized output from the beginning, blocking for new output while the
// job still runs. ErrJobNotStarted is returned while the job is waiting
// for a slot.
func (s *Scheduler) OutputReader(id string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if capture, ok := s.captures[id]; ok {
		return capture.Subscribe(), nil
	}

	if s.isPending(id) {
		return nil, ErrJobNotStarted
	}

	return nil, ErrJobNotFound
}

// admit pops the head of the pending queue into a free slot until either
// runs out, then checks for queue drain. Callers must hold s.mu.
func (s *Scheduler) admit() {
	for len(s.pending) > 0 && len(s.running) < s.maxParallel {
		t := s.pending[0]
		s.pending = s.pending[1:]

		s.start(t)
	}

	s.checkDrained()
}

// start launches the task's process. A launch failure becomes an
// immediate JobFinished with no preceding JobStarted; the task never
// occupies a slot. Callers must hold s.mu.
func (s *Scheduler) start(t *task) {
	r := newRunner(t.id, t.job)
	s.captures[t.id] = r.capture

	attemptedAt := time.Now()

	if err := r.launch(); err != nil {
		result := JobResult{
			JobID:       t.id,
			DisplayName: t.job.DisplayName,
			State:       RunStateFinished,
			ExitCode:    -1,
			LaunchErr:   err,
			StartedAt:   attemptedAt,
			FinishedAt:  time.Now(),
		}

		s.completed[t.id] = result
		s.emit(JobFinished{Result: result})

		return
	}

	s.running[t.id] = r

	s.emit(JobStarted{JobID: t.id, DisplayName: t.job.DisplayName})

	// Stream goroutines start only after JobStarted is on the channel, so
	// per-job event ordering holds.
	r.supervise(s.emit, s.finish)
}

// finish records a terminal result, frees the slot, and re-runs
// admission. Called from each runner's wait goroutine.
func (s *Scheduler) finish(result JobResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.running, result.JobID)
	s.completed[result.JobID] = result

	s.emit(JobFinished{Result: result})

	s.admit()
}

// checkDrained emits QueueDrained when an open batch has no work left.
// Callers must hold s.mu.
func (s *Scheduler) checkDrained() {
	if s.batchOpen && len(s.pending) == 0 && len(s.running) == 0 {
		s.batchOpen = false
		s.emit(QueueDrained{})
	}
}

func (s *Scheduler) emit(e Event) {
	s.events <- e
}

func (s *Scheduler) isPending(id string) bool {
	for _, t := range s.pending {
		if t.id == id {
			return true
		}
	}

	return false
}

func (s *Scheduler) isKnown(id string) bool {
	if _, ok := s.running[id]; ok {
		return true
	}

	return s.isPending(id)
}
