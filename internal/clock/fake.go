package clock

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Fake is a manually advanced clock for deterministic tests.
// Timers fire only when Advance moves the clock past their deadline.
type Fake struct {
	mu      sync.Mutex
	now     time.Time
	timers  []*fakeTimer
	changed chan struct{}
}

// NewFake creates a fake clock starting at start.
// Params: initial time.
// Returns: fake clock.
func NewFake(start time.Time) *Fake {
	return &Fake{now: start, changed: make(chan struct{})}
}

// Now returns the simulated time.
func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// NewTimer registers a timer; non-positive durations fire immediately.
// Params: wait duration.
// Returns: simulated timer.
func (f *Fake) NewTimer(d time.Duration) Timer {
	f.mu.Lock()
	defer f.mu.Unlock()

	timer := &fakeTimer{clock: f, deadline: f.now.Add(d), ch: make(chan time.Time, 1)}
	if d <= 0 {
		timer.ch <- f.now
		return timer
	}
	f.timers = append(f.timers, timer)
	f.notifyLocked()
	return timer
}

// Advance moves the clock forward and fires every timer whose deadline has passed, earliest first.
// Params: duration to move.
// Returns: none.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.now = f.now.Add(d)
	sort.SliceStable(f.timers, func(i, j int) bool {
		return f.timers[i].deadline.Before(f.timers[j].deadline)
	})
	pending := f.timers[:0]
	for _, timer := range f.timers {
		if timer.deadline.After(f.now) {
			pending = append(pending, timer)
			continue
		}
		timer.ch <- f.now
	}
	f.timers = pending
	f.notifyLocked()
}

// Pending reports how many timers are waiting to fire.
func (f *Fake) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.timers)
}

// BlockUntil waits until at least n timers are pending.
// Params: context bounding the wait and expected timer count.
// Returns: context error when the count is not reached in time.
func (f *Fake) BlockUntil(ctx context.Context, n int) error {
	for {
		f.mu.Lock()
		if len(f.timers) >= n {
			f.mu.Unlock()
			return nil
		}
		changed := f.changed
		f.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-changed:
		}
	}
}

func (f *Fake) notifyLocked() {
	close(f.changed)
	f.changed = make(chan struct{})
}

func (f *Fake) stop(target *fakeTimer) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, timer := range f.timers {
		if timer == target {
			f.timers = append(f.timers[:i], f.timers[i+1:]...)
			f.notifyLocked()
			return true
		}
	}
	return false
}

type fakeTimer struct {
	clock    *Fake
	deadline time.Time
	ch       chan time.Time
}

func (t *fakeTimer) C() <-chan time.Time { return t.ch }

func (t *fakeTimer) Stop() bool { return t.clock.stop(t) }
