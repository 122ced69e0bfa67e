// Package logic contains the pure alerting and log-coalescing logic for sensor readings.
// This package has NO external dependencies (no MQTT, Discord, OS, timers or time.Sleep).
// Time is always injectable via time.Time parameters.
package logic

import (
	"math"
	"time"
)

// Kind identifies which sensor stream a reading came from.
type Kind string

const (
	KindTemperature Kind = "TEMPERATURE"
	KindHumidity    Kind = "HUMIDITY"
)

// Fixed timing policy.
const (
	// LogDelay is how long a log emission is deferred to coalesce a
	// temperature/humidity pair published as two messages.
	LogDelay = 1 * time.Second

	// SustainedDuration is how long temperature must stay above threshold
	// before the fire-risk alert is raised.
	SustainedDuration = 10 * time.Minute
)

// DefaultThreshold is the temperature threshold used until one is configured.
const DefaultThreshold = 30.0

// EventType represents a notification to be delivered.
type EventType string

const (
	EventOverThreshold EventType = "OVER_THRESHOLD"
	EventSustainedHigh EventType = "SUSTAINED_HIGH"
	EventLog           EventType = "LOG"
)

// Reading is a single decoded sensor message.
type Reading struct {
	Kind  Kind
	Value float64 // NaN when the payload could not be decoded
	Time  time.Time
}

// Valid reports whether the reading carries a usable number.
func (r Reading) Valid() bool {
	return !math.IsNaN(r.Value)
}

// Value is a latest-value slot. Set is false until the first reading arrives.
type Value struct {
	V   float64
	Set bool
}

// Config is the subset of bot configuration the monitor reads on every event.
// An empty channel ID means the destination is not configured.
type Config struct {
	LogChannelID   string
	AlertChannelID string
	TempThreshold  float64
}

// Event represents a notification to be delivered to a channel.
type Event struct {
	Timestamp   time.Time
	Type        EventType
	ChannelID   string
	Temperature Value
	Humidity    Value
	Threshold   float64
	// Elapsed is the excursion duration (SUSTAINED_HIGH only).
	Elapsed time.Duration
}

// AlertState tracks the current excursion above threshold.
type AlertState struct {
	// Time the excursion started; zero when no excursion is in progress
	HighTempStart time.Time
	// OVER_THRESHOLD has been emitted for this excursion
	AlertSent bool
	// SUSTAINED_HIGH has been emitted for this excursion
	FireAlertSent bool
}

// InExcursion reports whether temperature is currently being tracked above threshold.
func (a AlertState) InExcursion() bool {
	return !a.HighTempStart.IsZero()
}

// Snapshot is the status projection of the latest readings.
type Snapshot struct {
	Temperature float64
	Humidity    float64
	AsOf        time.Time
}

// EventCounts tracks readings and emitted events since startup.
type EventCounts struct {
	Temperature   int
	Humidity      int
	Invalid       int
	OverThreshold int
	SustainedHigh int
	Logs          int
}
