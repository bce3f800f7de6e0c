package sched

import (
	"sync"
	"time"

	"github.com/sweeney/fan-controller/internal/logic"
)

type fakeTimer struct {
	at time.Time
	fn func()
}

// Fake is a manually advanced scheduler for tests. Callbacks run
// synchronously inside Advance, without any Fake lock held.
type Fake struct {
	mu      sync.Mutex
	now     time.Time
	next    logic.Handle
	pending map[logic.Handle]fakeTimer
	// Fired counts callbacks that have run.
	Fired int
}

// NewFake creates a Fake whose clock starts at start.
func NewFake(start time.Time) *Fake {
	return &Fake{
		now:     start,
		pending: make(map[logic.Handle]fakeTimer),
	}
}

// After schedules fn at Now()+d.
func (f *Fake) After(d time.Duration, fn func()) logic.Handle {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.next++
	f.pending[f.next] = fakeTimer{at: f.now.Add(d), fn: fn}
	return f.next
}

// Cancel removes h if it is still pending.
func (f *Fake) Cancel(h logic.Handle) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.pending, h)
}

// Now returns the fake clock's time.
func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Pending returns the number of callbacks waiting to fire.
func (f *Fake) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pending)
}

// Advance moves the clock forward by d, firing every callback that falls due
// in deadline order. Callbacks scheduled while advancing fire too if they are
// due before the new time.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	target := f.now.Add(d)
	f.mu.Unlock()

	for {
		f.mu.Lock()
		h, t, ok := f.earliest(target)
		if !ok {
			f.now = target
			f.mu.Unlock()
			return
		}
		delete(f.pending, h)
		f.now = t.at
		f.Fired++
		f.mu.Unlock()

		t.fn()
	}
}

// earliest returns the next due timer. Ties fire in scheduling order.
// Caller must hold f.mu.
func (f *Fake) earliest(target time.Time) (logic.Handle, fakeTimer, bool) {
	var (
		best  logic.Handle
		bestT fakeTimer
		found bool
	)
	for h, t := range f.pending {
		if t.at.After(target) {
			continue
		}
		if !found || t.at.Before(bestT.at) || (t.at.Equal(bestT.at) && h < best) {
			best, bestT, found = h, t, true
		}
	}
	return best, bestT, found
}
