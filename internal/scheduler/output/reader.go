package output

import (
	"io"
	"sync/atomic"
)

// reader reads data from a Capture, internally tracking its position in
// the buffer and blocking for new data as it arrives. It implements the
// io.ReadCloser interface. Safe for concurrent use.
type reader struct {
	position int
	closed   atomic.Bool

	c *Capture
}

// Read performs a blocking read of data from the Capture's buffer. When
// there's no more data left and no more coming, it returns io.EOF.
func (r *reader) Read(p []byte) (n int, err error) {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()

	// If we've read all buffered data but the job hasn't finished, wait.
	// Broadcast is called on 'close' and 'more data available'.
	for r.position >= len(r.c.buffer) && !r.isFinished() {
		r.c.cond.Wait()
	}

	if r.isFinished() {
		return 0, io.EOF
	}

	available := len(r.c.buffer) - r.position
	amountToCopy := min(available, len(p))

	n = copy(p, r.c.buffer[r.position:r.position+amountToCopy])

	r.position += n

	return n, nil
}

// Close is used by a client to 'unsubscribe'. It marks the reader as
// closed and notifies any waiting reads that they can stop waiting.
func (r *reader) Close() error {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()

	r.closed.Store(true)

	r.c.cond.Broadcast()

	return nil
}

func (r *reader) isFinished() bool {
	// We're finished if the reader is closed, or the Capture is closed and
	// we've read all the data.
	return r.closed.Load() || (r.c.isDone() && r.position >= len(r.c.buffer))
}
