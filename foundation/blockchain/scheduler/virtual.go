package scheduler

import (
	"container/heap"
	"sync"
	"time"
)

// Virtual is a deterministic clock. Time only moves when Step or Advance is
// called and callbacks fire in time order, ties in the order scheduled.
type Virtual struct {
	mu    sync.Mutex
	now   time.Time
	seq   uint64
	queue eventQueue
}

// NewVirtual constructs a virtual clock starting at start.
func NewVirtual(start time.Time) *Virtual {
	return &Virtual{now: start}
}

// Now returns the current simulated time.
func (v *Virtual) Now() time.Time {
	v.mu.Lock()
	defer v.mu.Unlock()

	return v.now
}

// AfterFunc schedules fn to run once the clock reaches now plus d.
func (v *Virtual) AfterFunc(d time.Duration, fn func()) Timer {
	v.mu.Lock()
	defer v.mu.Unlock()

	if d < 0 {
		d = 0
	}

	v.seq++
	e := event{
		at:    v.now.Add(d),
		seq:   v.seq,
		fn:    fn,
		clock: v,
	}
	heap.Push(&v.queue, &e)

	return &e
}

// Pending returns the number of callbacks waiting to fire.
func (v *Virtual) Pending() int {
	v.mu.Lock()
	defer v.mu.Unlock()

	return len(v.queue)
}

// Next returns the fire time of the earliest callback.
func (v *Virtual) Next() (time.Time, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if len(v.queue) == 0 {
		return time.Time{}, false
	}

	return v.queue[0].at, true
}

// Step moves the clock to the earliest callback and runs it. It reports
// false when nothing is scheduled.
func (v *Virtual) Step() bool {
	v.mu.Lock()
	if len(v.queue) == 0 {
		v.mu.Unlock()
		return false
	}

	e := heap.Pop(&v.queue).(*event)
	if e.at.After(v.now) {
		v.now = e.at
	}
	v.mu.Unlock()

	e.fn()
	return true
}

// Advance moves the clock forward by d running every callback that falls
// inside the window, including callbacks scheduled by those callbacks. It
// returns the number of callbacks run.
func (v *Virtual) Advance(d time.Duration) int {
	v.mu.Lock()
	target := v.now.Add(d)
	v.mu.Unlock()

	var n int
	for {
		v.mu.Lock()
		if len(v.queue) == 0 || v.queue[0].at.After(target) {
			if target.After(v.now) {
				v.now = target
			}
			v.mu.Unlock()
			return n
		}

		e := heap.Pop(&v.queue).(*event)
		if e.at.After(v.now) {
			v.now = e.at
		}
		v.mu.Unlock()

		e.fn()
		n++
	}
}

// =============================================================================

// event is a scheduled callback. An index of -1 means it is no longer in
// the queue.
type event struct {
	at    time.Time
	seq   uint64
	fn    func()
	index int
	clock *Virtual
}

// Stop removes the callback if it has not fired.
func (e *event) Stop() bool {
	e.clock.mu.Lock()
	defer e.clock.mu.Unlock()

	if e.index < 0 {
		return false
	}

	heap.Remove(&e.clock.queue, e.index)
	return true
}

// eventQueue implements heap.Interface ordered by fire time then sequence.
type eventQueue []*event

func (q eventQueue) Len() int {
	return len(q)
}

func (q eventQueue) Less(i, j int) bool {
	if !q[i].at.Equal(q[j].at) {
		return q[i].at.Before(q[j].at)
	}
	return q[i].seq < q[j].seq
}

func (q eventQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *eventQueue) Push(x any) {
	e := x.(*event)
	e.index = len(*q)
	*q = append(*q, e)
}

func (q *eventQueue) Pop() any {
	old := *q
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*q = old[:n-1]
	return e
}
