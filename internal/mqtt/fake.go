package mqtt

import (
	"sync"
	"time"
)

// FakeClient records published system events and lets tests inject
// sensor messages as if they came from the broker.
type FakeClient struct {
	mu sync.Mutex

	// Topics used to decode injected messages.
	Topics Topics

	// Handler receives decoded readings from Deliver.
	Handler Handler

	// Now stamps injected readings; defaults to time.Now.
	Now func() time.Time

	// SystemEvents contains all system events that were published.
	SystemEvents []SystemEvent

	// SystemPayloads contains the JSON payloads for system events.
	SystemPayloads [][]byte

	// PublishSystemError, if set, will be returned by PublishSystem.
	PublishSystemError error

	// Closed tracks if Close was called.
	Closed bool

	// Connected controls the return value of IsConnected.
	Connected bool
}

// NewFakeClient creates a FakeClient for testing.
func NewFakeClient(topics Topics, handler Handler) *FakeClient {
	return &FakeClient{Topics: topics, Handler: handler, Now: time.Now}
}

// Deliver decodes a raw message and hands it to Handler.
// Returns false if the topic is not one of the sensor topics.
func (f *FakeClient) Deliver(topic string, payload []byte) bool {
	r, ok := Decode(f.Topics, topic, payload, f.Now())
	if !ok {
		return false
	}
	f.Handler(r)
	return true
}

// PublishSystem records the system event.
func (f *FakeClient) PublishSystem(event SystemEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.PublishSystemError != nil {
		return f.PublishSystemError
	}

	f.SystemEvents = append(f.SystemEvents, event)

	payload, err := FormatSystemPayload(event)
	if err != nil {
		return err
	}
	f.SystemPayloads = append(f.SystemPayloads, payload)

	return nil
}

// IsConnected reports whether the fake client is "connected".
func (f *FakeClient) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Connected
}

// Close marks the client as closed.
func (f *FakeClient) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

// Events returns a copy of the recorded system events.
func (f *FakeClient) Events() []SystemEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]SystemEvent(nil), f.SystemEvents...)
}
