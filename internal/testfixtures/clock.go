package testfixtures

import (
	"sync"
	"time"
)

// ManualClock is a time source that only moves when a test moves it. Services
// take their clock as a now func, so tests hand them NowFunc.
type ManualClock struct {
	mu      sync.Mutex
	current time.Time
}

// NewManualClock starts the clock at the supplied instant, or at the shared
// ReferenceTime when start is the zero value.
func NewManualClock(start time.Time) *ManualClock {
	if start.IsZero() {
		start = ReferenceTime()
	}
	return &ManualClock{current: start}
}

// Now returns the instant the clock currently points at.
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// NowFunc adapts the clock to the now func the services expect. A nil clock
// falls back to the real time.Now.
func (c *ManualClock) NowFunc() func() time.Time {
	if c == nil {
		return time.Now
	}
	return c.Now
}

// Set points the clock at t.
func (c *ManualClock) Set(t time.Time) {
	c.mu.Lock()
	c.current = t
	c.mu.Unlock()
}

// Advance moves the clock forward by d and returns the new instant.
func (c *ManualClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	c.current = c.current.Add(d)
	updated := c.current
	c.mu.Unlock()
	return updated
}
