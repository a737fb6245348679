// Package output provides buffered capture of sanitized job output with
// concurrent replay. Multiple clients can subscribe to a Capture and each
// receive the complete output from the beginning, including clients that
// subscribe after the job has finished.
package output

import (
	"io"
	"sync"
)

// initialBufferCapacity is the starting size for the capture buffer.
// 4KB seems like a reasonable default for console-tool output.
const initialBufferCapacity = 4096

// Capture accumulates job output written to it and hands it out to
// subscribed readers. The internal buffer grows indefinitely to
// accommodate new output.
type Capture struct {
	// NOTE: the buffer grows indefinitely with no upper bound. The
	// assumption is that one job's console output fits in memory. If that
	// stops holding, flush segments to disk and reconstruct them for new
	// subscribers.
	buffer []byte

	done chan struct{}
	mu   sync.Mutex
	cond sync.Cond
}

// NewCapture creates an empty Capture ready to accept writes.
func NewCapture() *Capture {
	c := &Capture{
		buffer: make([]byte, 0, initialBufferCapacity),
		done:   make(chan struct{}),
	}

	c.cond.L = &c.mu

	return c
}

// Write appends p to the capture buffer and wakes any blocked readers.
// It implements io.Writer. Writing to a closed Capture returns
// io.ErrClosedPipe.
func (c *Capture) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.isDone() {
		return 0, io.ErrClosedPipe
	}

	c.buffer = append(c.buffer, p...)

	c.cond.Broadcast()

	return len(p), nil
}

// Close marks the Capture as complete. Readers drain whatever is buffered
// and then receive io.EOF. Close is idempotent.
func (c *Capture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.isDone() {
		close(c.done)
	}

	c.cond.Broadcast()

	return nil
}

// Subscribe returns an io.ReadCloser that reads the captured output from
// the beginning. Close cancels the subscription.
func (c *Capture) Subscribe() io.ReadCloser {
	return &reader{c: c}
}

// Done returns a channel that is closed when the Capture has been closed,
// i.e. no further output will arrive.
func (c *Capture) Done() <-chan struct{} {
	return c.done
}

func (c *Capture) isDone() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}
