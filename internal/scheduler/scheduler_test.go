package scheduler_test

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/dwgbatch/dwgbatch/internal/scheduler"
)

const drainTimeout = 30 * time.Second

func newTestScheduler(t *testing.T, maxParallel int) *scheduler.Scheduler {
	t.Helper()

	s, err := scheduler.New(maxParallel)
	if err != nil {
		t.Fatalf("expected not to receive error: got '%v'", err)
	}

	return s
}

func shellJob(name, commands string) scheduler.Job {
	return scheduler.Job{
		DisplayName: name,
		Program:     "/bin/sh",
		Args:        []string{"-c", commands},
	}
}

// drainUntilQueueDrained reads events until the first QueueDrained and
// returns everything received, QueueDrained included.
func drainUntilQueueDrained(
	t *testing.T,
	s *scheduler.Scheduler,
) []scheduler.Event {
	t.Helper()

	var events []scheduler.Event

	timeout := time.After(drainTimeout)

	for {
		select {
		case ev := <-s.Events():
			events = append(events, ev)

			if _, ok := ev.(scheduler.QueueDrained); ok {
				return events
			}
		case <-timeout:
			t.Fatalf("timed out waiting for queue to drain")
		}
	}
}

func startedOrder(events []scheduler.Event) []string {
	var names []string

	for _, ev := range events {
		if started, ok := ev.(scheduler.JobStarted); ok {
			names = append(names, started.DisplayName)
		}
	}

	return names
}

func finishedResults(events []scheduler.Event) map[string]scheduler.JobResult {
	results := make(map[string]scheduler.JobResult)

	for _, ev := range events {
		if finished, ok := ev.(scheduler.JobFinished); ok {
			results[finished.Result.JobID] = finished.Result
		}
	}

	return results
}

func TestSchedulerValidation(t *testing.T) {
	t.Parallel()

	t.Run("Test cap out of range", func(t *testing.T) {
		t.Parallel()

		for _, n := range []int{-1, 0, scheduler.MaxParallel + 1} {
			if _, err := scheduler.New(n); !errors.Is(
				err,
				scheduler.ErrMaxParallelRange,
			) {
				t.Errorf(
					"expected ErrMaxParallelRange for cap %d: got '%v'",
					n,
					err,
				)
			}
		}
	})

	t.Run("Test reconfigure out of range", func(t *testing.T) {
		t.Parallel()

		s := newTestScheduler(t, 2)

		if err := s.SetMaxParallel(scheduler.MaxParallel + 1); !errors.Is(
			err,
			scheduler.ErrMaxParallelRange,
		) {
			t.Errorf("expected ErrMaxParallelRange: got '%v'", err)
		}
	})

	t.Run("Test job without program", func(t *testing.T) {
		t.Parallel()

		s := newTestScheduler(t, 2)

		if _, err := s.Submit(scheduler.Job{DisplayName: "empty"}); !errors.Is(
			err,
			scheduler.ErrNoProgram,
		) {
			t.Errorf("expected ErrNoProgram: got '%v'", err)
		}
	})
}

func TestSchedulerBoundedFIFOAdmission(t *testing.T) {
	t.Parallel()

	const maxParallel = 2

	s := newTestScheduler(t, maxParallel)

	jobs := []scheduler.Job{
		shellJob("a", "sleep 0.2"),
		shellJob("b", "sleep 0.2"),
		shellJob("c", "sleep 0.2"),
		shellJob("d", "sleep 0.2"),
		shellJob("e", "sleep 0.2"),
	}

	ids, err := s.Submit(jobs...)
	if err != nil {
		t.Fatalf("expected not to receive error: got '%v'", err)
	}

	if len(ids) != len(jobs) {
		t.Fatalf("expected one id per job: got %d, want %d", len(ids), len(jobs))
	}

	events := drainUntilQueueDrained(t, s)

	// The running set must never exceed the cap at any point in the event
	// stream.
	var inFlight, peak int

	for _, ev := range events {
		switch ev.(type) {
		case scheduler.JobStarted:
			inFlight++

			if inFlight > peak {
				peak = inFlight
			}
		case scheduler.JobFinished:
			inFlight--
		}
	}

	if peak > maxParallel {
		t.Errorf("expected in-flight peak <= %d: got %d", maxParallel, peak)
	}

	gotOrder := strings.Join(startedOrder(events), "")
	if gotOrder != "abcde" {
		t.Errorf("expected FIFO admission order: got '%s', want 'abcde'", gotOrder)
	}

	results := finishedResults(events)
	if len(results) != len(jobs) {
		t.Fatalf(
			"expected one finish per job: got %d, want %d",
			len(results),
			len(jobs),
		)
	}

	for _, id := range ids {
		result, ok := results[id]
		if !ok {
			t.Errorf("expected job '%s' to finish", id)
			continue
		}

		if !result.Succeeded() {
			t.Errorf(
				"expected job '%s' to succeed: got state '%s', exit code %d",
				id,
				result.State,
				result.ExitCode,
			)
		}
	}
}

func TestSchedulerEventOrderingPerJob(t *testing.T) {
	t.Parallel()

	s := newTestScheduler(t, 3)

	ids, err := s.Submit(
		shellJob("one", "echo one"),
		shellJob("two", "echo two"),
		shellJob("three", "echo three"),
	)
	if err != nil {
		t.Fatalf("expected not to receive error: got '%v'", err)
	}

	events := drainUntilQueueDrained(t, s)

	for _, id := range ids {
		started, finished := -1, -1
		lastOutput := -1
		startedCount, finishedCount := 0, 0

		for i, ev := range events {
			switch e := ev.(type) {
			case scheduler.JobStarted:
				if e.JobID == id {
					started = i
					startedCount++
				}
			case scheduler.OutputLine:
				if e.JobID == id {
					lastOutput = i
				}
			case scheduler.JobFinished:
				if e.Result.JobID == id {
					finished = i
					finishedCount++
				}
			}
		}

		if startedCount != 1 || finishedCount != 1 {
			t.Errorf(
				"expected exactly one start and finish for '%s': got %d and %d",
				id,
				startedCount,
				finishedCount,
			)
		}

		if !(started < finished) {
			t.Errorf(
				"expected start before finish for '%s': got %d and %d",
				id,
				started,
				finished,
			)
		}

		if lastOutput >= 0 && !(started < lastOutput && lastOutput < finished) {
			t.Errorf(
				"expected output between start and finish for '%s': got %d, %d, %d",
				id,
				started,
				lastOutput,
				finished,
			)
		}
	}

	if _, ok := events[len(events)-1].(scheduler.QueueDrained); !ok {
		t.Errorf("expected QueueDrained to be the final event")
	}
}

func TestSchedulerLaunchFailure(t *testing.T) {
	t.Parallel()

	s := newTestScheduler(t, 1)

	ids, err := s.Submit(
		scheduler.Job{
			DisplayName: "missing",
			Program:     "/definitely/not/a/real/executable",
		},
		shellJob("survivor", "echo still here"),
	)
	if err != nil {
		t.Fatalf("expected not to receive error: got '%v'", err)
	}

	events := drainUntilQueueDrained(t, s)

	// The broken job must not emit JobStarted.
	for _, ev := range events {
		if started, ok := ev.(scheduler.JobStarted); ok &&
			started.JobID == ids[0] {
			t.Errorf("expected no JobStarted for launch failure")
		}
	}

	results := finishedResults(events)

	broken, ok := results[ids[0]]
	if !ok {
		t.Fatalf("expected a finish for the launch failure")
	}

	if broken.LaunchErr == nil {
		t.Errorf("expected a launch error on the result")
	}

	if broken.ExitCode != -1 {
		t.Errorf("expected exit code: got '%d', want '-1'", broken.ExitCode)
	}

	if broken.Succeeded() {
		t.Errorf("expected launch failure not to count as success")
	}

	// The next pending job must still be admitted and succeed.
	survivor, ok := results[ids[1]]
	if !ok {
		t.Fatalf("expected the remaining job to finish")
	}

	if !survivor.Succeeded() {
		t.Errorf(
			"expected the remaining job to succeed: got state '%s'",
			survivor.State,
		)
	}
}

func TestSchedulerCancelAll(t *testing.T) {
	t.Parallel()

	s := newTestScheduler(t, 2)

	ids, err := s.Submit(
		shellJob("r1", "sleep 30"),
		shellJob("r2", "sleep 30"),
		shellJob("p1", "echo never"),
		shellJob("p2", "echo never"),
		shellJob("p3", "echo never"),
	)
	if err != nil {
		t.Fatalf("expected not to receive error: got '%v'", err)
	}

	// Wait for both slots to fill before cancelling.
	var events []scheduler.Event

	timeout := time.After(drainTimeout)

	for started := 0; started < 2; {
		select {
		case ev := <-s.Events():
			events = append(events, ev)

			if _, ok := ev.(scheduler.JobStarted); ok {
				started++
			}
		case <-timeout:
			t.Fatalf("timed out waiting for running slots to fill")
		}
	}

	s.CancelAll()
	// Idempotent.
	s.CancelAll()

	events = append(events, drainUntilQueueDrained(t, s)...)

	results := finishedResults(events)

	for _, id := range ids[:2] {
		result, ok := results[id]
		if !ok {
			t.Fatalf("expected a finish for running job '%s'", id)
		}

		if !result.Killed() {
			t.Errorf(
				"expected running job '%s' to be killed: got state '%s'",
				id,
				result.State,
			)
		}
	}

	for _, id := range ids[2:] {
		if _, ok := results[id]; ok {
			t.Errorf("expected pending job '%s' to be dropped", id)
		}

		if _, err := s.Result(id); !errors.Is(err, scheduler.ErrJobNotFound) {
			t.Errorf("expected ErrJobNotFound for dropped job: got '%v'", err)
		}
	}

	if got := startedOrder(events); len(got) != 2 {
		t.Errorf("expected only the running jobs to start: got %v", got)
	}
}

func TestSchedulerDrainsWhenEveryJobFails(t *testing.T) {
	t.Parallel()

	s := newTestScheduler(t, 2)

	ids, err := s.Submit(
		shellJob("f1", "exit 3"),
		shellJob("f2", "exit 4"),
		shellJob("f3", "exit 5"),
	)
	if err != nil {
		t.Fatalf("expected not to receive error: got '%v'", err)
	}

	events := drainUntilQueueDrained(t, s)

	results := finishedResults(events)

	wantCodes := []int{3, 4, 5}

	for i, id := range ids {
		result, ok := results[id]
		if !ok {
			t.Fatalf("expected a finish for job '%s'", id)
		}

		if result.State != scheduler.RunStateCrashed {
			t.Errorf(
				"expected state: got '%s', want '%s'",
				result.State,
				scheduler.RunStateCrashed,
			)
		}

		if result.ExitCode != wantCodes[i] {
			t.Errorf(
				"expected exit code: got '%d', want '%d'",
				result.ExitCode,
				wantCodes[i],
			)
		}
	}
}

func TestSchedulerSanitizedTaggedOutput(t *testing.T) {
	t.Parallel()

	s := newTestScheduler(t, 1)

	_, err := s.Submit(shellJob(
		"noisy",
		`printf '\033[31mred alert\033[0m\n'; printf 'plain trouble\n' >&2`,
	))
	if err != nil {
		t.Fatalf("expected not to receive error: got '%v'", err)
	}

	events := drainUntilQueueDrained(t, s)

	lines := make(map[scheduler.Stream][]string)

	for _, ev := range events {
		if line, ok := ev.(scheduler.OutputLine); ok {
			lines[line.Stream] = append(lines[line.Stream], line.Text)
		}
	}

	wantStdout := []string{"red alert"}
	if got := lines[scheduler.StreamStdout]; !equalLines(got, wantStdout) {
		t.Errorf("expected stdout lines: got %v, want %v", got, wantStdout)
	}

	wantStderr := []string{"plain trouble"}
	if got := lines[scheduler.StreamStderr]; !equalLines(got, wantStderr) {
		t.Errorf("expected stderr lines: got %v, want %v", got, wantStderr)
	}
}

func TestSchedulerOversizedLineStillDrains(t *testing.T) {
	t.Parallel()

	s := newTestScheduler(t, 1)

	// A single 2 MiB line blows past the scanner's limit; the job must
	// still run to completion and release its slot.
	ids, err := s.Submit(shellJob(
		"firehose",
		`head -c 2097152 /dev/zero | tr "\0" "x"; echo; echo done`,
	))
	if err != nil {
		t.Fatalf("expected not to receive error: got '%v'", err)
	}

	events := drainUntilQueueDrained(t, s)

	results := finishedResults(events)

	result, ok := results[ids[0]]
	if !ok {
		t.Fatalf("expected a finish for the oversized-output job")
	}

	if !result.Succeeded() {
		t.Errorf(
			"expected success despite oversized output: got state '%s', exit code %d",
			result.State,
			result.ExitCode,
		)
	}

	// The truncation leaves a single annotation line on the stream.
	var annotated bool

	for _, ev := range events {
		if line, ok := ev.(scheduler.OutputLine); ok &&
			strings.Contains(line.Text, "dropped") {
			annotated = true
		}
	}

	if !annotated {
		t.Errorf("expected an annotation line for the dropped stream")
	}
}

func TestSchedulerLogSinkAndOutputReplay(t *testing.T) {
	t.Parallel()

	s := newTestScheduler(t, 1)

	var sink bytes.Buffer

	job := shellJob("logged", "echo first; echo second")
	job.LogSink = &sink

	ids, err := s.Submit(job)
	if err != nil {
		t.Fatalf("expected not to receive error: got '%v'", err)
	}

	drainUntilQueueDrained(t, s)

	want := "first\nsecond\n"

	if got := sink.String(); got != want {
		t.Errorf("expected log sink contents: got '%s', want '%s'", got, want)
	}

	// A subscriber arriving after completion still gets the full output.
	replay, err := s.OutputReader(ids[0])
	if err != nil {
		t.Fatalf("expected not to receive error: got '%v'", err)
	}

	got, err := io.ReadAll(replay)
	replay.Close()

	if err != nil {
		t.Fatalf("expected not to receive error: got '%v'", err)
	}

	if string(got) != want {
		t.Errorf("expected replayed output: got '%s', want '%s'", got, want)
	}
}

func TestSchedulerRaisingCapAdmitsPending(t *testing.T) {
	t.Parallel()

	s := newTestScheduler(t, 1)

	_, err := s.Submit(
		shellJob("long", "sleep 30"),
		shellJob("queued", "echo go"),
	)
	if err != nil {
		t.Fatalf("expected not to receive error: got '%v'", err)
	}

	if err := s.SetMaxParallel(2); err != nil {
		t.Fatalf("expected not to receive error: got '%v'", err)
	}

	// With the cap raised, the queued job runs to completion while the
	// first still occupies its slot.
	timeout := time.After(drainTimeout)

	for {
		select {
		case ev := <-s.Events():
			if finished, ok := ev.(scheduler.JobFinished); ok {
				if finished.Result.DisplayName != "queued" {
					t.Fatalf(
						"expected the queued job to finish first: got '%s'",
						finished.Result.DisplayName,
					)
				}

				s.CancelAll()
				drainUntilQueueDrained(t, s)

				return
			}
		case <-timeout:
			t.Fatalf("timed out waiting for the queued job to finish")
		}
	}
}

func TestSchedulerResultAndStatus(t *testing.T) {
	t.Parallel()

	s := newTestScheduler(t, 1)

	ids, err := s.Submit(shellJob("done", "true"))
	if err != nil {
		t.Fatalf("expected not to receive error: got '%v'", err)
	}

	drainUntilQueueDrained(t, s)

	result, err := s.Result(ids[0])
	if err != nil {
		t.Fatalf("expected not to receive error: got '%v'", err)
	}

	if !result.Succeeded() {
		t.Errorf("expected success: got state '%s'", result.State)
	}

	if result.Duration() < 0 {
		t.Errorf("expected non-negative duration: got '%v'", result.Duration())
	}

	state, err := s.Status(ids[0])
	if err != nil {
		t.Fatalf("expected not to receive error: got '%v'", err)
	}

	if state != scheduler.RunStateFinished {
		t.Errorf(
			"expected state: got '%s', want '%s'",
			state,
			scheduler.RunStateFinished,
		)
	}

	if _, err := s.Result("nope"); !errors.Is(err, scheduler.ErrJobNotFound) {
		t.Errorf("expected ErrJobNotFound: got '%v'", err)
	}

	if _, err := s.Status("nope"); !errors.Is(err, scheduler.ErrJobNotFound) {
		t.Errorf("expected ErrJobNotFound: got '%v'", err)
	}
}

func equalLines(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}

	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}

	return true
}
