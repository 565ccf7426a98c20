package scheduler

import "sync/atomic"

// Control carries the external pause/resume/stop requests into the loop.
// Requests are latched flags polled at the loop's checkpoints; a stop request
// is observed at the next iteration boundary, never mid-invocation.
type Control struct {
	paused   atomic.Bool
	stopping atomic.Bool
}

// NewControl returns a Control with no requests latched.
func NewControl() *Control {
	return &Control{}
}

// Pause requests that the loop hold after the current iteration completes.
func (c *Control) Pause() {
	c.paused.Store(true)
}

// Resume clears a pause request.
func (c *Control) Resume() {
	c.paused.Store(false)
}

// RequestStop latches a graceful termination request.
func (c *Control) RequestStop() {
	c.stopping.Store(true)
}

// Paused reports whether a pause request is in effect.
func (c *Control) Paused() bool {
	return c.paused.Load()
}

// Stopping reports whether a termination request has been latched.
func (c *Control) Stopping() bool {
	return c.stopping.Load()
}
