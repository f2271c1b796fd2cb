package session

import (
	"sync"
	"testing"
	"time"
)

// fakeTime is an adjustable time source for compressing countdowns.
type fakeTime struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeTime() *fakeTime {
	return &fakeTime{t: time.Now()}
}

func (f *fakeTime) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeTime) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.t = f.t.Add(d)
}

func TestClockTicksMonotonicallyToExpiry(t *testing.T) {
	c := NewClock(WithTickInterval(5 * time.Millisecond))

	var mu sync.Mutex
	var ticks []time.Duration
	expired := make(chan struct{})
	expirations := 0

	err := c.Start(60*time.Millisecond, func(remaining time.Duration) {
		mu.Lock()
		ticks = append(ticks, remaining)
		mu.Unlock()
	}, func() {
		expirations++
		close(expired)
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	select {
	case <-expired:
	case <-time.After(2 * time.Second):
		t.Fatal("clock never expired")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(ticks) == 0 {
		t.Fatal("no ticks delivered")
	}
	for i := 1; i < len(ticks); i++ {
		if ticks[i] > ticks[i-1] {
			t.Fatalf("remaining increased: %v -> %v", ticks[i-1], ticks[i])
		}
	}
	for _, r := range ticks {
		if r < 0 {
			t.Fatalf("remaining went negative: %v", r)
		}
	}
	if ticks[len(ticks)-1] != 0 {
		t.Fatalf("final tick was %v, want 0", ticks[len(ticks)-1])
	}
	if expirations != 1 {
		t.Fatalf("expirations = %d, want 1", expirations)
	}
}

func TestClockRecomputesFromDeadline(t *testing.T) {
	// Remaining must be derived from the captured deadline, so a burst of
	// missing ticks (suspended host) still expires the countdown.
	ft := newFakeTime()
	c := NewClock(WithTickInterval(time.Millisecond), WithNowFunc(ft.Now))

	expired := make(chan struct{})
	if err := c.Start(10*time.Minute, nil, func() { close(expired) }); err != nil {
		t.Fatalf("Start: %v", err)
	}

	ft.Advance(11 * time.Minute)

	select {
	case <-expired:
	case <-time.After(2 * time.Second):
		t.Fatal("clock did not expire after time jumped past the deadline")
	}
}

func TestClockStopPreventsExpiry(t *testing.T) {
	c := NewClock(WithTickInterval(5 * time.Millisecond))

	expired := make(chan struct{})
	if err := c.Start(150*time.Millisecond, nil, func() { close(expired) }); err != nil {
		t.Fatalf("Start: %v", err)
	}
	c.Stop()
	c.Stop() // idempotent

	select {
	case <-expired:
		t.Fatal("onExpire fired after Stop")
	case <-time.After(300 * time.Millisecond):
	}
}

func TestClockStartTwice(t *testing.T) {
	c := NewClock(WithTickInterval(time.Millisecond))
	defer c.Stop()

	if err := c.Start(time.Minute, nil, nil); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	if err := c.Start(time.Minute, nil, nil); err != ErrClockRunning {
		t.Fatalf("second Start = %v, want ErrClockRunning", err)
	}
}

func TestClockRemaining(t *testing.T) {
	ft := newFakeTime()
	c := NewClock(WithTickInterval(time.Millisecond), WithNowFunc(ft.Now))
	defer c.Stop()

	if got := c.Remaining(); got != 0 {
		t.Fatalf("Remaining before Start = %v, want 0", got)
	}
	if err := c.Start(10*time.Minute, nil, nil); err != nil {
		t.Fatalf("Start: %v", err)
	}

	ft.Advance(4 * time.Minute)
	if got := c.Remaining(); got != 6*time.Minute {
		t.Fatalf("Remaining = %v, want 6m", got)
	}

	ft.Advance(10 * time.Minute)
	if got := c.Remaining(); got != 0 {
		t.Fatalf("Remaining past deadline = %v, want 0", got)
	}
}
