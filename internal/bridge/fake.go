package bridge

import (
	"sync"
	"time"

	"github.com/namuen/sensor-bot/internal/logic"
)

// FakeSink records notifications for testing.
type FakeSink struct {
	mu       sync.Mutex
	sent     []logic.Event
	attempts int
	notify   chan struct{}

	// SendError, if set, is returned by Send and the event is not recorded.
	SendError error
}

// NewFakeSink creates an empty FakeSink.
func NewFakeSink() *FakeSink {
	return &FakeSink{notify: make(chan struct{}, 1)}
}

// Send records ev.
func (f *FakeSink) Send(channelID string, ev logic.Event) error {
	f.mu.Lock()
	defer func() {
		f.mu.Unlock()
		select {
		case f.notify <- struct{}{}:
		default:
		}
	}()

	f.attempts++
	if f.SendError != nil {
		return f.SendError
	}
	ev.ChannelID = channelID
	f.sent = append(f.sent, ev)
	return nil
}

// Sent returns a copy of the recorded events.
func (f *FakeSink) Sent() []logic.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]logic.Event, len(f.sent))
	copy(out, f.sent)
	return out
}

// SetSendError changes the error returned by Send.
func (f *FakeSink) SetSendError(err error) {
	f.mu.Lock()
	f.SendError = err
	f.mu.Unlock()
}

// Attempts returns how many times Send was called, including failures.
func (f *FakeSink) Attempts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts
}

// WaitAttempts blocks until Send was called at least n times or timeout elapses.
func (f *FakeSink) WaitAttempts(n int, timeout time.Duration) int {
	deadline := time.After(timeout)
	for {
		if got := f.Attempts(); got >= n {
			return got
		}
		select {
		case <-f.notify:
		case <-deadline:
			return f.Attempts()
		}
	}
}

// WaitFor blocks until at least n events were recorded or timeout elapses,
// and returns what was recorded.
func (f *FakeSink) WaitFor(n int, timeout time.Duration) []logic.Event {
	deadline := time.After(timeout)
	for {
		if got := f.Sent(); len(got) >= n {
			return got
		}
		select {
		case <-f.notify:
		case <-deadline:
			return f.Sent()
		}
	}
}
