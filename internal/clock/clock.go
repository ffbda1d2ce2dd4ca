package clock

import (
	"sync"
	"time"
)

// Scheduler is the timer seam for every component that delays work: turn and
// ready countdowns, the heartbeat probe, reconnect backoff, the disconnect
// ticker, and roll animations all go through it so tests can drive time.
type Scheduler interface {
	Now() time.Time
	AfterFunc(d time.Duration, fn func()) Timer
}

// Timer is a cancellable pending callback. Stop reports whether the callback
// was prevented from running.
type Timer interface {
	Stop() bool
}

// System schedules on the real clock.
type System struct{}

func (System) Now() time.Time { return time.Now() }

func (System) AfterFunc(d time.Duration, fn func()) Timer {
	return sysTimer{time.AfterFunc(d, fn)}
}

type sysTimer struct{ t *time.Timer }

func (s sysTimer) Stop() bool { return s.t.Stop() }

// Fake is a manually advanced scheduler for tests. Callbacks fire
// synchronously inside Advance, in due-time order (registration order on ties).
type Fake struct {
	mu      sync.Mutex
	now     time.Time
	seq     int
	pending []*fakeTimer
}

type fakeTimer struct {
	f       *Fake
	due     time.Time
	seq     int
	fn      func()
	stopped bool
	fired   bool
}

func NewFake() *Fake {
	return &Fake{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fake) AfterFunc(d time.Duration, fn func()) Timer {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	t := &fakeTimer{f: f, due: f.now.Add(d), seq: f.seq, fn: fn}
	f.pending = append(f.pending, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.f.mu.Lock()
	defer t.f.mu.Unlock()
	if t.fired || t.stopped {
		return false
	}
	t.stopped = true
	return true
}

// Advance moves the clock forward by d, firing every callback that comes due.
// A callback may schedule further timers; those fire too if they come due
// within the same window.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	target := f.now.Add(d)
	for {
		next := f.earliestLocked(target)
		if next == nil {
			break
		}
		if next.due.After(f.now) {
			f.now = next.due
		}
		next.fired = true
		fn := next.fn
		f.mu.Unlock()
		fn()
		f.mu.Lock()
	}
	f.now = target
	f.mu.Unlock()
}

func (f *Fake) earliestLocked(limit time.Time) *fakeTimer {
	var best *fakeTimer
	for _, t := range f.pending {
		if t.fired || t.stopped || t.due.After(limit) {
			continue
		}
		if best == nil || t.due.Before(best.due) || (t.due.Equal(best.due) && t.seq < best.seq) {
			best = t
		}
	}
	return best
}
