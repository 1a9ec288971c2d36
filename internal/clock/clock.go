package clock

import (
	"context"
	"time"
)

// Clock provides time and timers so polling, repeat and backoff waits can be simulated in tests.
// Params: none.
// Returns: current time and timer factory.
type Clock interface {
	Now() time.Time
	NewTimer(d time.Duration) Timer
}

// Timer is the subset of time.Timer used by waiting code.
type Timer interface {
	C() <-chan time.Time
	Stop() bool
}

// RealClock reads the system clock and creates runtime timers.
type RealClock struct{}

// Now returns current UTC time.
// Params: none.
// Returns: current UTC timestamp.
func (RealClock) Now() time.Time {
	return time.Now().UTC()
}

// NewTimer starts a runtime timer firing after d.
// Params: wait duration.
// Returns: timer wrapper.
func (RealClock) NewTimer(d time.Duration) Timer {
	return realTimer{timer: time.NewTimer(d)}
}

type realTimer struct {
	timer *time.Timer
}

func (t realTimer) C() <-chan time.Time { return t.timer.C }

func (t realTimer) Stop() bool { return t.timer.Stop() }

// Sleep blocks for d on clk or until ctx is done.
// Params: context, clock, and wait duration.
// Returns: context error when cancelled before the timer fired.
func Sleep(ctx context.Context, clk Clock, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	timer := clk.NewTimer(d)
	select {
	case <-ctx.Done():
		timer.Stop()
		return ctx.Err()
	case <-timer.C():
		return nil
	}
}
