package store

import (
	"sync"
	"time"
)

// Coalescer collapses bursts of triggers into one deferred call. The session
// uses it to schedule a single REST re-fetch shortly after a run of deltas
// instead of re-fetching per event.
type Coalescer struct {
	mu     sync.Mutex
	window time.Duration
	fn     func()
	timer  *time.Timer
	closed bool
}

// NewCoalescer returns a coalescer that invokes fn once per quiet window.
func NewCoalescer(window time.Duration, fn func()) *Coalescer {
	return &Coalescer{window: window, fn: fn}
}

// Trigger (re)arms the window. fn fires once the window elapses without
// another trigger.
func (c *Coalescer) Trigger() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	if c.timer != nil {
		c.timer.Stop()
	}
	c.timer = time.AfterFunc(c.window, c.fn)
}

// Stop cancels any pending call. Safe to call multiple times.
func (c *Coalescer) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}
