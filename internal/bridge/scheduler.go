package bridge

import (
	"sort"
	"sync"
	"time"
)

// Scheduler runs a function once after a delay.
type Scheduler interface {
	AfterFunc(d time.Duration, fn func()) Task
}

// Task is a handle to a scheduled function.
type Task interface {
	// Cancel stops the task. It returns false if the task already ran or was cancelled.
	Cancel() bool
}

// RealScheduler schedules on the runtime timer.
type RealScheduler struct{}

// AfterFunc schedules fn on its own goroutine after d.
func (RealScheduler) AfterFunc(d time.Duration, fn func()) Task {
	return realTask{time.AfterFunc(d, fn)}
}

type realTask struct{ t *time.Timer }

func (r realTask) Cancel() bool { return r.t.Stop() }

// FakeScheduler is a manually advanced scheduler for tests.
// Due tasks run synchronously inside Advance, in due order.
type FakeScheduler struct {
	mu    sync.Mutex
	now   time.Time
	tasks []*fakeTask
}

type fakeTask struct {
	s       *FakeScheduler
	at      time.Time
	fn      func()
	stopped bool
}

// NewFakeScheduler creates a FakeScheduler whose clock starts at now.
func NewFakeScheduler(now time.Time) *FakeScheduler {
	return &FakeScheduler{now: now}
}

// AfterFunc records fn to run once the clock passes now+d.
func (s *FakeScheduler) AfterFunc(d time.Duration, fn func()) Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := &fakeTask{s: s, at: s.now.Add(d), fn: fn}
	s.tasks = append(s.tasks, t)
	return t
}

// Cancel removes the task if it has not run yet.
func (t *fakeTask) Cancel() bool {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	if t.stopped {
		return false
	}
	t.stopped = true
	return true
}

// Now returns the fake clock.
func (s *FakeScheduler) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

// Pending returns the number of tasks that have not run or been cancelled.
func (s *FakeScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, t := range s.tasks {
		if !t.stopped {
			n++
		}
	}
	return n
}

// Advance moves the clock forward by d and runs every task that became due.
func (s *FakeScheduler) Advance(d time.Duration) {
	s.mu.Lock()
	s.now = s.now.Add(d)

	var due []*fakeTask
	var keep []*fakeTask
	for _, t := range s.tasks {
		switch {
		case t.stopped:
		case !t.at.After(s.now):
			t.stopped = true
			due = append(due, t)
		default:
			keep = append(keep, t)
		}
	}
	s.tasks = keep
	s.mu.Unlock()

	sort.SliceStable(due, func(i, j int) bool { return due[i].at.Before(due[j].at) })
	for _, t := range due {
		t.fn()
	}
}
