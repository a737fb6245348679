package scheduler

import (
	"errors"
	"fmt"
)

var (
	// ErrMaxParallelRange is returned when configuring a concurrency cap
	// outside the accepted range.
	ErrMaxParallelRange = fmt.Errorf(
		"max parallel must be between %d and %d",
		MinParallel,
		MaxParallel,
	)

	// ErrNoProgram is returned when submitting a Job with no resolvable
	// program to run.
	ErrNoProgram = errors.New("job has no program to run")

	// ErrJobNotFound is returned when querying a job id the scheduler has
	// never seen, or one that was dropped from the pending queue by
	// CancelAll before ever starting.
	ErrJobNotFound = errors.New("job not found")

	// ErrJobNotFinished is returned when requesting the result of a job
	// that has not reached a terminal state yet.
	ErrJobNotFinished = errors.New("job not finished")

	// ErrJobNotStarted is returned when requesting captured output for a
	// job that is still waiting for a slot.
	ErrJobNotStarted = errors.New("job not started")
)

// InvalidTransitionError is returned when attempting an invalid runner
// state transition.
type InvalidTransitionError struct {
	from RunState
	to   RunState
}

func (e InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot go from %s to %s", e.from, e.to)
}

func newInvalidTransitionError(from, to RunState) InvalidTransitionError {
	return InvalidTransitionError{from, to}
}
