// Package clock provides the injectable current-time source and timer
// scheduler the core depends on (§6), so policy TTL behavior and the
// snapshot writer's interval can be exercised deterministically in tests
// instead of sleeping on the wall clock. The pattern generalizes the
// injectable nowFunc already used by the circuitbreaker package.
package clock

import "time"

// Clock is the current-time source consumed by the core.
type Clock interface {
	Now() time.Time
}

// Timer is a cancellable one-shot timer handle.
type Timer interface {
	// Stop cancels the timer. It returns true if the cancellation happened
	// before the timer fired, false if the timer had already fired or was
	// already stopped. Stop is idempotent: calling it twice is safe.
	Stop() bool
}

// Scheduler schedules one-shot timers. Implementations must be safe for
// concurrent use.
type Scheduler interface {
	Clock
	// AfterFunc schedules fn to run after d elapses, returning a handle
	// that can cancel the timer before it fires.
	AfterFunc(d time.Duration, fn func()) Timer
}

// System is the real wall-clock Scheduler, backed by the time package.
type System struct{}

// Now returns the current wall-clock time.
func (System) Now() time.Time { return time.Now() }

// AfterFunc schedules fn on a standard time.Timer.
func (System) AfterFunc(d time.Duration, fn func()) Timer {
	return &systemTimer{timer: time.AfterFunc(d, fn)}
}

type systemTimer struct {
	timer *time.Timer
}

func (t *systemTimer) Stop() bool {
	return t.timer.Stop()
}
