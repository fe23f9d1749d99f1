// Package scheduler provides the clocks that drive simulated time. The
// virtual clock single steps a priority queue of callbacks for tests and
// replays, the real clock dispatches callbacks from wall clock timers. Both
// run callbacks one at a time.
package scheduler

import (
	"sync"
	"time"
)

// Timer represents a scheduled callback that can be cancelled.
type Timer interface {
	Stop() bool
}

// Scheduler represents the behavior required to schedule callbacks against
// a clock.
type Scheduler interface {
	Now() time.Time
	AfterFunc(d time.Duration, fn func()) Timer
}

// =============================================================================

// locked wraps a scheduler so every callback runs holding a lock.
type locked struct {
	Scheduler
	mu sync.Locker
}

// Locked returns a scheduler whose callbacks run while holding mu. It lets
// an owner keep timer callbacks atomic with respect to its own mutators.
func Locked(s Scheduler, mu sync.Locker) Scheduler {
	return locked{Scheduler: s, mu: mu}
}

// AfterFunc schedules fn to run with the lock held.
func (l locked) AfterFunc(d time.Duration, fn func()) Timer {
	return l.Scheduler.AfterFunc(d, func() {
		l.mu.Lock()
		defer l.mu.Unlock()

		fn()
	})
}
