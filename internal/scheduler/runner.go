package scheduler

import (
	"bufio"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dwgbatch/dwgbatch/internal/scheduler/output"
)

// maxLineBytes bounds a single output line. The console tool is line
// oriented; anything longer than this is truncated by the scanner and the
// rest of that stream is dropped.
const maxLineBytes = 1024 * 1024

// runner owns the lifecycle of a single external process for one job:
// launch, per-stream line capture, sanitization, completion detection and
// forced termination. It communicates with the Scheduler only through the
// emit and onExit callbacks handed to supervise.
type runner struct {
	id     string
	job    Job
	state  atomicRunState
	killed atomic.Bool

	cmd     *exec.Cmd
	stdout  io.ReadCloser
	stderr  io.ReadCloser
	capture *output.Capture
	sinkMu  sync.Mutex

	startedAt time.Time
}

func newRunner(id string, job Job) *runner {
	cmd := exec.Command(job.Program, job.Args...)
	cmd.Dir = job.Dir

	r := &runner{
		id:      id,
		job:     job,
		cmd:     cmd,
		capture: output.NewCapture(),
	}

	r.state.Store(RunStateNotStarted)

	return r
}

// launch starts the external process. A failure to launch (missing or
// non-runnable executable) is returned synchronously and leaves the
// runner in the terminal RunStateFinished, since no process ever ran.
func (r *runner) launch() error {
	if !r.state.CompareAndSwap(RunStateNotStarted, RunStateLaunching) {
		return newInvalidTransitionError(r.state.Load(), RunStateLaunching)
	}

	stdout, err := r.cmd.StdoutPipe()
	if err != nil {
		return r.failLaunch(fmt.Errorf("create stdout pipe: %w", err))
	}

	stderr, err := r.cmd.StderrPipe()
	if err != nil {
		return r.failLaunch(fmt.Errorf("create stderr pipe: %w", err))
	}

	if err := r.cmd.Start(); err != nil {
		return r.failLaunch(fmt.Errorf("start process: %w", err))
	}

	r.stdout = stdout
	r.stderr = stderr
	r.startedAt = time.Now()
	r.state.Store(RunStateRunning)

	return nil
}

func (r *runner) failLaunch(err error) error {
	r.state.Store(RunStateFinished)
	r.capture.Close()

	return err
}

// supervise streams both output pipes concurrently and reports the final
// JobResult through onExit once the process has exited and both streams
// are drained. It must be called exactly once, after a successful launch.
func (r *runner) supervise(emit func(Event), onExit func(JobResult)) {
	var wg sync.WaitGroup

	wg.Add(2)

	go func() {
		defer wg.Done()
		r.drain(StreamStdout, r.stdout, emit)
	}()

	go func() {
		defer wg.Done()
		r.drain(StreamStderr, r.stderr, emit)
	}()

	go func() {
		// Both pipes must be fully read before Wait, which closes them.
		wg.Wait()

		// The exit status is captured in ProcessState; a non-zero exit
		// surfaces in the result, not as an error.
		r.cmd.Wait()

		exitCode := r.cmd.ProcessState.ExitCode()

		// A clean exit wins over the killed flag: a kill request that
		// lands in the window after the process already exited with code
		// zero must not relabel a successful job.
		switch {
		case exitCode == 0:
			r.state.Store(RunStateFinished)
		case r.killed.Load():
			r.state.Store(RunStateKilled)
		default:
			r.state.Store(RunStateCrashed)
		}

		r.capture.Close()

		onExit(JobResult{
			JobID:       r.id,
			DisplayName: r.job.DisplayName,
			State:       r.state.Load(),
			ExitCode:    exitCode,
			StartedAt:   r.startedAt,
			FinishedAt:  time.Now(),
		})
	}()
}

// drain reads src line by line, sanitizes each line, and fans it out to
// the capture buffer, the job's log sink, and the event stream. Lines
// that are empty after sanitization are suppressed.
func (r *runner) drain(stream Stream, src io.Reader, emit func(Event)) {
	scanner := bufio.NewScanner(src)
	scanner.Buffer(make([]byte, 0, bufio.MaxScanTokenSize), maxLineBytes)

	for scanner.Scan() {
		line := SanitizeLine(scanner.Text())
		if line == "" {
			continue
		}

		r.record(line)

		emit(OutputLine{
			JobID:       r.id,
			DisplayName: r.job.DisplayName,
			Text:        line,
			Stream:      stream,
		})
	}

	if err := scanner.Err(); err != nil {
		// A pathological line (e.g. exceeding maxLineBytes) stops the
		// scanner, but the pipe must still be consumed to exhaustion:
		// a process that keeps writing into a full pipe buffer never
		// exits, which would wedge the slot and the whole queue. The
		// rest of this stream is dropped, annotated with a single line.
		line := fmt.Sprintf("[%s dropped: %v]", stream, err)

		r.record(line)

		emit(OutputLine{
			JobID:       r.id,
			DisplayName: r.job.DisplayName,
			Text:        line,
			Stream:      stream,
		})

		io.Copy(io.Discard, src)
	}
}

// record appends a sanitized line to the capture buffer and, if attached,
// the job's log sink. Both streams funnel through here, so writes are
// serialized.
func (r *runner) record(line string) {
	r.sinkMu.Lock()
	defer r.sinkMu.Unlock()

	fmt.Fprintln(r.capture, line)

	if r.job.LogSink != nil {
		// A failing sink must not fail the job; the line is still carried
		// on the event stream.
		fmt.Fprintln(r.job.LogSink, line)
	}
}

// terminate requests best-effort immediate termination of the process.
// It is a no-op on a runner that is not running, so it is safe to call at
// any point in the lifecycle, including on an already-exited process.
func (r *runner) terminate() {
	if r.state.Load() != RunStateRunning {
		return
	}

	r.killed.Store(true)

	if r.cmd.Process != nil {
		// Kill on a process that exited between the state check and here
		// returns an error we don't care about.
		r.cmd.Process.Kill()
	}
}
