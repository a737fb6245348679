package scheduler

import (
	"io"
	"time"
)

// Job describes one external-process invocation for one drawing. The
// program, args and working directory are expected to be fully resolved
// by the caller; the scheduler performs no path construction or escaping.
//
// A Job is copied on submission and never mutated by the scheduler.
type Job struct {
	// DisplayName is a human-readable label carried on events. It is not
	// interpreted by the scheduler.
	DisplayName string

	// Program is the path of the executable to run. Its existence is not
	// checked until launch time.
	Program string

	// Args are the arguments passed to the program.
	Args []string

	// Dir is the working directory for the process. Empty means the
	// calling process' working directory.
	Dir string

	// LogSink, if non-nil, receives every sanitized output line of the
	// job, one line per Write group, in addition to the OutputLine events.
	LogSink io.Writer
}

// JobResult is the immutable terminal outcome of a job. It is created
// only when the job's process terminates (normally, by error, or by
// forced termination) or when the launch itself fails.
type JobResult struct {
	JobID       string
	DisplayName string

	// State is the terminal RunState: RunStateFinished, RunStateCrashed,
	// or RunStateKilled. Launch failures report RunStateFinished with a
	// non-nil LaunchErr, since no process ever ran.
	State RunState

	// ExitCode is the process exit code, or -1 if the process was killed
	// by a signal or never launched.
	ExitCode int

	// LaunchErr is non-nil when the program could not be started at all,
	// e.g. the executable is missing or not runnable.
	LaunchErr error

	StartedAt  time.Time
	FinishedAt time.Time
}

// Succeeded returns whether the job ran to completion with exit code
// zero.
func (r JobResult) Succeeded() bool {
	return r.LaunchErr == nil && r.State == RunStateFinished && r.ExitCode == 0
}

// Killed returns whether the job was terminated on request rather than
// exiting on its own.
func (r JobResult) Killed() bool {
	return r.State == RunStateKilled
}

// Duration returns the wall-clock time between launch and termination.
func (r JobResult) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
