package session

import (
	"sync"
	"time"
)

// Clock drives the per-second countdown of a timed attempt. Remaining time
// is always recomputed from the deadline captured at Start, never by
// decrementing a counter, so coalesced or late ticks (a suspended host, a
// backgrounded process) cannot make the countdown drift.
//
// The final tick delivers onTick(0) followed by onExpire, at most once.
// Stop is idempotent and prevents any further callback from being
// scheduled; a callback already being delivered on the ticker goroutine
// may still land after Stop returns, which is why exactly-once finalize
// is enforced by the session's state gate rather than by the clock.
type Clock struct {
	mu       sync.Mutex
	now      func() time.Time
	interval time.Duration
	deadline time.Time
	stopCh   chan struct{}
	running  bool
	stopped  bool
}

// ClockOption customizes a Clock. Used by tests to compress time.
type ClockOption func(*Clock)

// WithTickInterval overrides the one-second tick cadence.
func WithTickInterval(d time.Duration) ClockOption {
	return func(c *Clock) { c.interval = d }
}

// WithNowFunc overrides the time source.
func WithNowFunc(now func() time.Time) ClockOption {
	return func(c *Clock) { c.now = now }
}

// NewClock returns a stopped clock ticking once per second.
func NewClock(opts ...ClockOption) *Clock {
	c := &Clock{
		now:      time.Now,
		interval: time.Second,
		stopCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start begins the countdown. onTick receives the clamped remaining
// duration on every tick; onExpire fires once when it reaches zero.
func (c *Clock) Start(duration time.Duration, onTick func(remaining time.Duration), onExpire func()) error {
	c.mu.Lock()
	if c.running || c.stopped {
		c.mu.Unlock()
		return ErrClockRunning
	}
	c.running = true
	c.deadline = c.now().Add(duration)
	c.mu.Unlock()

	go c.run(onTick, onExpire)
	return nil
}

func (c *Clock) run(onTick func(time.Duration), onExpire func()) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.mu.Lock()
			if c.stopped {
				c.mu.Unlock()
				return
			}
			remaining := c.deadline.Sub(c.now())
			if remaining < 0 {
				remaining = 0
			}
			expired := remaining == 0
			if expired {
				c.stopped = true
			}
			c.mu.Unlock()

			// Callbacks run outside the lock so they may call Stop.
			if onTick != nil {
				onTick(remaining)
			}
			if expired {
				if onExpire != nil {
					onExpire()
				}
				return
			}
		}
	}
}

// Remaining reports the clamped time left on the countdown.
func (c *Clock) Remaining() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return 0
	}
	remaining := c.deadline.Sub(c.now())
	if remaining < 0 {
		remaining = 0
	}
	return remaining
}

// Stop halts the countdown. Idempotent and safe to call from any state,
// including after expiry.
func (c *Clock) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}
	c.stopped = true
	close(c.stopCh)
}
