// Package timeutil provides a testable abstraction over time operations.
// Capture sessions wait real minutes for SRAM decay between rounds; the mock
// clock lets tests drive those waits instantly.
package timeutil

import (
	"sync"
	"time"
)

// Clock provides an abstraction over the time operations the capture loop
// uses.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After waits for the duration to elapse and then sends the current time.
	After(d time.Duration) <-chan time.Time
}

// RealClock implements Clock using the standard time package.
type RealClock struct{}

func (RealClock) Now() time.Time {
	return time.Now()
}

func (RealClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}

// MockClock is a manually controlled clock for testing.
type MockClock struct {
	mu      sync.Mutex
	now     time.Time
	waiters []*mockWaiter
}

type mockWaiter struct {
	deadline time.Time
	ch       chan time.Time
	fired    bool
}

// NewMockClock creates a MockClock set to the given time.
func NewMockClock(t time.Time) *MockClock {
	return &MockClock{now: t}
}

// Now returns the mocked current time.
func (c *MockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set sets the mock clock to a specific time without firing waiters.
func (c *MockClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// After returns a channel that receives the mocked time once the clock has
// been advanced past the deadline. Non-positive durations fire immediately.
func (c *MockClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan time.Time, 1)
	if d <= 0 {
		ch <- c.now
		return ch
	}
	c.waiters = append(c.waiters, &mockWaiter{deadline: c.now.Add(d), ch: ch})
	return ch
}

// Advance moves the clock forward and fires any waiters whose deadline has
// passed.
func (c *MockClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
	for _, w := range c.waiters {
		if !w.fired && !c.now.Before(w.deadline) {
			w.fired = true
			w.ch <- c.now
		}
	}
}

// Waiters reports how many After calls have not fired yet.
func (c *MockClock) Waiters() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	pending := 0
	for _, w := range c.waiters {
		if !w.fired {
			pending++
		}
	}
	return pending
}
