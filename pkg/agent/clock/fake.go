package clock

import "time"

// Fake is a manually-advanced Clock for tests. Advance fires any pending
// AfterFunc callbacks whose deadline has passed, in the order they were
// scheduled.
type Fake struct {
	now     time.Time
	pending []*fakeTimer
}

type fakeTimer struct {
	deadline time.Time
	f        func()
	fired    bool
	stopped  bool
}

func (t *fakeTimer) Stop() bool {
	already := t.stopped || t.fired
	t.stopped = true
	return !already
}

// NewFake returns a Fake clock starting at now.
func NewFake(now time.Time) *Fake {
	return &Fake{now: now}
}

func (f *Fake) Now() time.Time { return f.now }

func (f *Fake) AfterFunc(d time.Duration, cb func()) Timer {
	t := &fakeTimer{deadline: f.now.Add(d), f: cb}
	f.pending = append(f.pending, t)
	return t
}

// Advance moves the clock forward by d, firing every pending timer whose
// deadline has been reached, in schedule order.
func (f *Fake) Advance(d time.Duration) {
	f.now = f.now.Add(d)
	for _, t := range f.pending {
		if !t.stopped && !t.fired && !t.deadline.After(f.now) {
			t.fired = true
			t.f()
		}
	}
}
