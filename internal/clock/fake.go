package clock

import (
	"sort"
	"sync"
	"time"
)

// Fake is a manually-advanced Clock for tests. It is safe for concurrent use.
type Fake struct {
	mu      sync.Mutex
	now     time.Time
	timers  []*fakeTimer
	nextSeq int
}

// NewFake starts a Fake clock at the given instant.
func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fake) After(d time.Duration) Timer {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.nextSeq++
	t := &fakeTimer{
		owner:  f,
		fireAt: f.now.Add(d),
		c:      make(chan time.Time, 1),
		active: true,
		seq:    f.nextSeq,
	}
	f.timers = append(f.timers, t)
	return t
}

// Advance moves the clock forward by d, firing any timers whose deadline
// has been reached, in deadline order (ties broken by registration order).
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	now := f.now

	due := make([]*fakeTimer, 0, len(f.timers))
	remaining := f.timers[:0]
	for _, t := range f.timers {
		if t.active && !t.fireAt.After(now) {
			due = append(due, t)
			continue
		}
		remaining = append(remaining, t)
	}
	f.timers = remaining
	sort.Slice(due, func(i, j int) bool {
		if due[i].fireAt.Equal(due[j].fireAt) {
			return due[i].seq < due[j].seq
		}
		return due[i].fireAt.Before(due[j].fireAt)
	})
	f.mu.Unlock()

	for _, t := range due {
		t.mu.Lock()
		if t.active {
			t.active = false
			select {
			case t.c <- now:
			default:
			}
		}
		t.mu.Unlock()
	}
}

type fakeTimer struct {
	owner  *Fake
	mu     sync.Mutex
	fireAt time.Time
	c      chan time.Time
	active bool
	seq    int
}

func (t *fakeTimer) C() <-chan time.Time { return t.c }

func (t *fakeTimer) Stop() bool {
	t.mu.Lock()
	wasActive := t.active
	t.active = false
	t.mu.Unlock()
	return wasActive
}

func (t *fakeTimer) Reset(d time.Duration) bool {
	t.owner.mu.Lock()
	defer t.owner.mu.Unlock()

	t.mu.Lock()
	wasActive := t.active
	t.active = true
	t.fireAt = t.owner.now.Add(d)
	t.mu.Unlock()

	for _, existing := range t.owner.timers {
		if existing == t {
			return wasActive
		}
	}
	t.owner.nextSeq++
	t.seq = t.owner.nextSeq
	t.owner.timers = append(t.owner.timers, t)
	return wasActive
}
