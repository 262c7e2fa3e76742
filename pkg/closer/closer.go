// Package closer provides a once-only shutdown signal shared by the status
// server and every supervised goroutine that needs to know the process is
// stopping.
package closer

import "sync"

// Closer broadcasts a single shutdown signal to any number of readers.
type Closer struct {
	once   sync.Once
	doneCh chan struct{}
}

// NewCloser constructs a Closer in the open state.
func NewCloser() *Closer {
	return &Closer{doneCh: make(chan struct{})}
}

// Done returns a channel that is closed once Close has been called.
func (c *Closer) Done() <-chan struct{} {
	return c.doneCh
}

// Close signals shutdown. Safe to call multiple times or concurrently.
func (c *Closer) Close() {
	c.once.Do(func() {
		close(c.doneCh)
	})
}
