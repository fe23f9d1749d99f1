package scheduler_test

import (
	"sync"
	"testing"
	"time"

	"github.com/ardanlabs/blocksim/foundation/blockchain/scheduler"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

var start = time.UnixMilli(1_700_000_000_000)

func TestVirtualOrder(t *testing.T) {
	t.Log("Given the need to fire callbacks in time order.")
	{
		t.Logf("\tTest 0:\tWhen scheduling out of order with ties.")
		{
			v := scheduler.NewVirtual(start)

			var got []string
			record := func(name string) func() {
				return func() { got = append(got, name) }
			}

			v.AfterFunc(3*time.Second, record("c"))
			v.AfterFunc(time.Second, record("a1"))
			v.AfterFunc(time.Second, record("a2"))
			v.AfterFunc(2*time.Second, record("b"))

			if n := v.Advance(2 * time.Second); n != 3 {
				t.Fatalf("\t%s\tTest 0:\tShould run 3 callbacks, ran %d.", failed, n)
			}
			if !v.Now().Equal(start.Add(2 * time.Second)) {
				t.Fatalf("\t%s\tTest 0:\tShould move the clock to the window end : %v", failed, v.Now())
			}
			t.Logf("\t%s\tTest 0:\tShould run callbacks inside the window.", success)

			if !v.Step() || v.Step() {
				t.Fatalf("\t%s\tTest 0:\tShould step the last callback only once.", failed)
			}

			exp := []string{"a1", "a2", "b", "c"}
			for i := range exp {
				if got[i] != exp[i] {
					t.Fatalf("\t%s\tTest 0:\tShould fire in order, got %v.", failed, got)
				}
			}
			t.Logf("\t%s\tTest 0:\tShould fire in time order, ties in scheduling order.", success)
		}

		t.Logf("\tTest 1:\tWhen callbacks schedule more callbacks.")
		{
			v := scheduler.NewVirtual(start)

			var ticks int
			var tick func()
			tick = func() {
				ticks++
				v.AfterFunc(time.Second, tick)
			}
			v.AfterFunc(time.Second, tick)

			v.Advance(10 * time.Second)
			if ticks != 10 {
				t.Fatalf("\t%s\tTest 1:\tShould tick 10 times, got %d.", failed, ticks)
			}
			if v.Pending() != 1 {
				t.Fatalf("\t%s\tTest 1:\tShould hold the next tick, got %d.", failed, v.Pending())
			}
			t.Logf("\t%s\tTest 1:\tShould run chained callbacks inside the window.", success)
		}
	}
}

func TestVirtualStop(t *testing.T) {
	v := scheduler.NewVirtual(start)

	var fired bool
	tm := v.AfterFunc(time.Second, func() { fired = true })
	v.AfterFunc(2*time.Second, func() {})

	if !tm.Stop() {
		t.Fatalf("Should stop a pending timer.")
	}
	if tm.Stop() {
		t.Fatalf("Should not stop a timer twice.")
	}

	v.Advance(5 * time.Second)
	if fired {
		t.Fatalf("Should not run a stopped callback.")
	}

	late := v.AfterFunc(0, func() {})
	v.Step()
	if late.Stop() {
		t.Fatalf("Should not stop a timer that already fired.")
	}

	if _, ok := v.Next(); ok {
		t.Fatalf("Should have nothing scheduled.")
	}
}

func TestLocked(t *testing.T) {
	v := scheduler.NewVirtual(start)

	var mu sync.Mutex
	s := scheduler.Locked(v, &mu)

	var held bool
	s.AfterFunc(time.Second, func() {
		held = !mu.TryLock()
	})

	v.Advance(time.Second)
	if !held {
		t.Fatalf("Should run the callback holding the lock.")
	}

	if !mu.TryLock() {
		t.Fatalf("Should release the lock after the callback.")
	}
	mu.Unlock()
}

func TestReal(t *testing.T) {
	r := scheduler.NewReal()
	defer r.Shutdown()

	done := make(chan struct{})
	r.AfterFunc(time.Millisecond, func() { close(done) })

	stopped := make(chan struct{})
	tm := r.AfterFunc(50*time.Millisecond, func() { close(stopped) })
	if !tm.Stop() {
		t.Fatalf("Should stop a pending timer.")
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Should run the callback.")
	}

	select {
	case <-stopped:
		t.Fatalf("Should not run a stopped callback.")
	case <-time.After(100 * time.Millisecond):
	}
}
