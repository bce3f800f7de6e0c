// Package sched provides the delayed single-shot callback primitive the fan
// coordinators run on, with a wall-clock implementation and a manual clock
// for tests.
package sched

import (
	"sync"
	"time"

	"github.com/sweeney/fan-controller/internal/logic"
)

var (
	_ logic.Scheduler = (*Real)(nil)
	_ logic.Scheduler = (*Fake)(nil)
)

// Real schedules callbacks on the wall clock using time.AfterFunc.
// Callbacks run on their own goroutine.
type Real struct {
	mu     sync.Mutex
	next   logic.Handle
	timers map[logic.Handle]*time.Timer
}

// NewReal creates a wall-clock scheduler.
func NewReal() *Real {
	return &Real{timers: make(map[logic.Handle]*time.Timer)}
}

// After schedules fn to run once after d.
func (r *Real) After(d time.Duration, fn func()) logic.Handle {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.next++
	h := r.next
	r.timers[h] = time.AfterFunc(d, func() {
		r.mu.Lock()
		_, ok := r.timers[h]
		delete(r.timers, h)
		r.mu.Unlock()
		if ok {
			fn()
		}
	})
	return h
}

// Cancel stops h. Fired, cancelled and unknown handles are ignored.
func (r *Real) Cancel(h logic.Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if t, ok := r.timers[h]; ok {
		t.Stop()
		delete(r.timers, h)
	}
}

// Now returns the wall-clock time.
func (r *Real) Now() time.Time {
	return time.Now()
}

// Pending returns the number of callbacks not yet fired or cancelled.
func (r *Real) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.timers)
}
