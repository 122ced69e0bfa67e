// Package mqtt subscribes to the sensor topics and publishes bot lifecycle
// events, with an abstraction for testing.
package mqtt

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/namuen/sensor-bot/internal/logic"
)

// Default sensor topics published by the ESP32 node.
const (
	DefaultTopicTemperature = "aiot/namuen/temp"
	DefaultTopicHumidity    = "aiot/namuen/hum"
)

// TopicSystem is the MQTT topic for bot lifecycle events.
const TopicSystem = "aiot/namuen/bot/system"

// Topics names the two subscribed sensor topics.
type Topics struct {
	Temperature string
	Humidity    string
}

// DefaultTopics returns the topics used when none are configured.
func DefaultTopics() Topics {
	return Topics{Temperature: DefaultTopicTemperature, Humidity: DefaultTopicHumidity}
}

// Kind maps a topic name to the sensor kind it carries.
func (t Topics) Kind(topic string) (logic.Kind, bool) {
	switch topic {
	case t.Temperature:
		return logic.KindTemperature, true
	case t.Humidity:
		return logic.KindHumidity, true
	}
	return "", false
}

// List returns both topics in subscription order.
func (t Topics) List() []string {
	return []string{t.Temperature, t.Humidity}
}

// Handler receives decoded readings. It is called from the MQTT client's
// goroutine and must not block.
type Handler func(logic.Reading)

// Client is the ingress side of the bridge.
type Client interface {
	// PublishSystem sends a bot lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// IsConnected reports whether the broker connection is up.
	IsConnected() bool

	// Close disconnects from the broker.
	Close() error
}

// decimalPattern is a plain base-10 number. ParseFloat alone also takes hex
// floats, digit separators and inf/nan spellings.
var decimalPattern = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?$`)

// ParsePayload decodes a base-10 float. Anything else yields NaN.
func ParsePayload(payload []byte) float64 {
	text := strings.TrimSpace(string(payload))
	if !decimalPattern.MatchString(text) {
		return math.NaN()
	}
	v, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return math.NaN()
	}
	return v
}

// Decode turns a raw message into a Reading stamped with now.
// ok is false for topics other than the two sensor topics.
func Decode(topics Topics, topic string, payload []byte, now time.Time) (r logic.Reading, ok bool) {
	kind, ok := topics.Kind(topic)
	if !ok {
		return logic.Reading{}, false
	}
	return logic.Reading{Kind: kind, Value: ParsePayload(payload), Time: now}, true
}

// SystemEvent represents a bot lifecycle event (e.g., startup, shutdown, offline).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "OFFLINE"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// WillPayload is the OFFLINE message the broker publishes for us after an
// unclean disconnect. It is registered at connect time, so it carries no
// timestamp.
func WillPayload() ([]byte, error) {
	return FormatSystemPayload(SystemEvent{Event: "OFFLINE"})
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp,omitempty"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
// A zero Timestamp is left out of the payload.
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Event:  event.Event,
			Reason: event.Reason,
		},
	}
	if !event.Timestamp.IsZero() {
		payload.System.Timestamp = event.Timestamp.UTC().Format(time.RFC3339)
	}
	return json.Marshal(payload)
}
