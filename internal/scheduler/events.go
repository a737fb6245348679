package scheduler

// Stream identifies which output stream of the process a line was read
// from, so consumers can de-interleave output from concurrent jobs.
type Stream string

const (
	StreamStdout Stream = "stdout"
	StreamStderr Stream = "stderr"
)

// Event is the interface implemented by all scheduler events. For any
// single job, a JobStarted event strictly precedes all of its OutputLine
// events, which strictly precede its JobFinished event. No ordering is
// guaranteed across jobs.
type Event interface {
	event()
}

// JobStarted is emitted exactly once per job that reaches the running
// state. Jobs that fail to launch emit JobFinished without a preceding
// JobStarted.
type JobStarted struct {
	JobID       string
	DisplayName string
}

// OutputLine is emitted per complete sanitized line of process output.
// Partial lines are buffered until a line terminator arrives or the
// process exits.
type OutputLine struct {
	JobID       string
	DisplayName string
	Text        string
	Stream      Stream
}

// JobFinished is emitted exactly once per submitted job that was admitted,
// whether it finished normally, crashed, failed to launch, or was killed.
type JobFinished struct {
	Result JobResult
}

// QueueDrained is emitted once per submitted batch, after the last
// JobFinished of that batch, when no jobs remain pending or running.
type QueueDrained struct{}

func (JobStarted) event()   {}
func (OutputLine) event()   {}
func (JobFinished) event()  {}
func (QueueDrained) event() {}
