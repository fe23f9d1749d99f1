package scheduler

import (
	"sync"
	"sync/atomic"
	"time"
)

// Real schedules callbacks on the wall clock. Timers only hand callbacks to
// a single dispatcher goroutine so two callbacks never run at the same time.
type Real struct {
	tasks    chan *realTimer
	shut     chan struct{}
	shutOnce sync.Once
	wg       sync.WaitGroup
}

// NewReal constructs a wall clock scheduler and starts its dispatcher.
func NewReal() *Real {
	r := Real{
		tasks: make(chan *realTimer, 64),
		shut:  make(chan struct{}),
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.dispatch()
	}()

	return &r
}

// Now returns the wall clock time.
func (r *Real) Now() time.Time {
	return time.Now()
}

// AfterFunc schedules fn to run on the dispatcher after d.
func (r *Real) AfterFunc(d time.Duration, fn func()) Timer {
	rt := realTimer{fn: fn}
	rt.timer = time.AfterFunc(d, func() {
		select {
		case r.tasks <- &rt:
		case <-r.shut:
		}
	})

	return &rt
}

// Shutdown stops the dispatcher and waits for the running callback to
// return. Callbacks not yet dispatched are dropped.
func (r *Real) Shutdown() {
	r.shutOnce.Do(func() {
		close(r.shut)
	})
	r.wg.Wait()
}

func (r *Real) dispatch() {
	for {
		select {
		case rt := <-r.tasks:
			if rt.stopped.Load() {
				continue
			}
			rt.fn()

		case <-r.shut:
			return
		}
	}
}

// =============================================================================

// realTimer carries a stopped flag so a callback that already left its
// timer but has not been dispatched is still cancelled.
type realTimer struct {
	timer   *time.Timer
	fn      func()
	stopped atomic.Bool
}

// Stop cancels the callback. It reports false if the callback already ran
// or was already stopped.
func (rt *realTimer) Stop() bool {
	if rt.stopped.Swap(true) {
		return false
	}
	return rt.timer.Stop()
}
