// Package clock abstracts time reads so grace periods and timeouts stay
// deterministic under test.
package clock

import (
	"context"
	"sync"
	"time"
)

// Clock is the time source injected into every component that sleeps,
// applies a settle delay, or arms a timeout.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
	// Sleep blocks for d or until ctx is cancelled, returning ctx.Err()
	// in the latter case.
	Sleep(ctx context.Context, d time.Duration) error
}

type systemClock struct{}

// System returns the wall clock.
func System() Clock {
	return systemClock{}
}

func (systemClock) Now() time.Time {
	return time.Now()
}

func (systemClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}

func (systemClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Fake is a manually-advanced clock. Sleeps return immediately and are
// recorded; timers armed through After fire only once Advance moves the
// fake time past their deadline.
type Fake struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
	timers []*fakeTimer
}

type fakeTimer struct {
	deadline time.Time
	ch       chan time.Time
}

// NewFake creates a fake clock starting at start.
func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fake) After(d time.Duration) <-chan time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()

	timer := &fakeTimer{deadline: f.now.Add(d), ch: make(chan time.Time, 1)}
	if d <= 0 {
		timer.ch <- f.now
		return timer.ch
	}
	f.timers = append(f.timers, timer)
	return timer.ch
}

func (f *Fake) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	f.mu.Lock()
	f.sleeps = append(f.sleeps, d)
	f.now = f.now.Add(d)
	f.fireDueLocked()
	f.mu.Unlock()
	return nil
}

// Advance moves the fake time forward and fires every timer whose
// deadline has passed.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.now = f.now.Add(d)
	f.fireDueLocked()
}

// Sleeps returns every duration slept through this clock, in call order.
func (f *Fake) Sleeps() []time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()

	sleeps := make([]time.Duration, len(f.sleeps))
	copy(sleeps, f.sleeps)
	return sleeps
}

func (f *Fake) fireDueLocked() {
	remaining := f.timers[:0]
	for _, timer := range f.timers {
		if !timer.deadline.After(f.now) {
			timer.ch <- f.now
			continue
		}
		remaining = append(remaining, timer)
	}
	f.timers = remaining
}
