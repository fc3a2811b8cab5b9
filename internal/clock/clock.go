// Package clock provides the wall clock and one-shot timers used by the
// reminder and poll managers.
//
// Production code uses Real(), which is a thin wrapper over time.AfterFunc.
// Tests use Manual, which only fires timers when Advance is called.
package clock

import (
	"sort"
	"sync"
	"time"
)

// Timer is a cancellable handle for a scheduled callback.
type Timer interface {
	// Stop prevents the callback from running. It returns true if the call
	// stopped the timer, false if the callback already started or the timer
	// was already stopped.
	Stop() bool
}

// Clock is the time source for scheduling.
//
// AfterFunc fires fn once, on its own goroutine, after at least d has
// elapsed. Timers are independent: there is no ordering guarantee between
// two timers with the same deadline.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, fn func()) Timer
}

// Real returns the process wall clock.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, fn func()) Timer {
	if d < 0 {
		d = 0
	}
	return time.AfterFunc(d, fn)
}

// Manual is a deterministic clock for tests. Time only moves on Advance or
// Set, and due callbacks run synchronously on the caller's goroutine in
// deadline order.
type Manual struct {
	mu     sync.Mutex
	now    time.Time
	seq    uint64
	timers map[uint64]*manualTimer
}

type manualTimer struct {
	m   *Manual
	id  uint64
	at  time.Time
	fn  func()
	seq uint64
}

// NewManual returns a manual clock starting at start.
func NewManual(start time.Time) *Manual {
	return &Manual{now: start, timers: map[uint64]*manualTimer{}}
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *Manual) AfterFunc(d time.Duration, fn func()) Timer {
	if d < 0 {
		d = 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	t := &manualTimer{m: m, id: m.seq, at: m.now.Add(d), fn: fn, seq: m.seq}
	m.timers[t.id] = t
	return t
}

func (t *manualTimer) Stop() bool {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	if _, ok := t.m.timers[t.id]; !ok {
		return false
	}
	delete(t.m.timers, t.id)
	return true
}

// Advance moves the clock forward by d and runs every callback that became due.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	m.now = m.now.Add(d)
	due := m.collectDueLocked()
	m.mu.Unlock()

	for _, t := range due {
		if t.fn != nil {
			t.fn()
		}
	}
}

// Set moves the clock to at (never backwards) and runs due callbacks.
func (m *Manual) Set(at time.Time) {
	m.mu.Lock()
	if at.After(m.now) {
		m.now = at
	}
	due := m.collectDueLocked()
	m.mu.Unlock()

	for _, t := range due {
		if t.fn != nil {
			t.fn()
		}
	}
}

// Pending reports how many timers are scheduled and not yet fired or stopped.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.timers)
}

func (m *Manual) collectDueLocked() []*manualTimer {
	var due []*manualTimer
	for id, t := range m.timers {
		if !t.at.After(m.now) {
			due = append(due, t)
			delete(m.timers, id)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if !due[i].at.Equal(due[j].at) {
			return due[i].at.Before(due[j].at)
		}
		return due[i].seq < due[j].seq
	})
	return due
}
