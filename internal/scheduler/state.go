package scheduler

import "sync/atomic"

type RunState int

const (
	// RunStateUnknown indicates the state of the runner is unknown. It's
	// used as the zero value for functions that return a (possibly absent)
	// RunState.
	RunStateUnknown RunState = iota

	// RunStateNotStarted indicates the job has been admitted and a runner
	// configured, but the process has not been launched yet.
	RunStateNotStarted

	// RunStateLaunching indicates the process is in the process of being
	// launched, e.g. pipes are being wired up and the executable resolved.
	RunStateLaunching

	// RunStateRunning indicates the process has started and is producing
	// output. The runner can be terminated.
	RunStateRunning

	// RunStateFinished indicates the process exited on its own with exit
	// code zero, or the launch itself failed before a process existed.
	RunStateFinished

	// RunStateCrashed indicates the process exited on its own with a
	// non-zero exit code.
	RunStateCrashed

	// RunStateKilled indicates the process was terminated on request.
	RunStateKilled
)

// NOTE: This slice needs to be kept in sync with any changes to the
// RunState values.
var runStates = []string{
	"Unknown",
	"NotStarted",
	"Launching",
	"Running",
	"Finished",
	"Crashed",
	"Killed",
}

// String implements the Stringer interface for RunState and returns a
// string representation of the RunState by using the int value to index
// into a slice.
func (s RunState) String() string {
	if int(s) < 0 || int(s) >= len(runStates) {
		return runStates[0]
	}

	return runStates[s]
}

// Terminal returns whether the state is terminal. There are no
// transitions out of a terminal state.
func (s RunState) Terminal() bool {
	return s == RunStateFinished || s == RunStateCrashed || s == RunStateKilled
}

// atomicRunState is a wrapper around an atomic.Int32 to provide atomic
// operations on a RunState, so runner state transitions can be validated
// with CompareAndSwap instead of explicit locking.
type atomicRunState struct {
	v atomic.Int32
}

// Load atomically loads the RunState value.
func (a *atomicRunState) Load() RunState {
	return RunState(a.v.Load())
}

// Store atomically stores the RunState value.
func (a *atomicRunState) Store(s RunState) {
	a.v.Store(int32(s))
}

// CompareAndSwap performs an atomic compare-and-swap operation with an
// old and new RunState.
func (a *atomicRunState) CompareAndSwap(o, n RunState) bool {
	return a.v.CompareAndSwap(int32(o), int32(n))
}
