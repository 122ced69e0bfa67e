// Package status provides a thread-safe status tracker for the sensor-bot daemon.
// It is written by the bridge loop and read by HTTP handlers and lifecycle events.
package status

import (
	"sync"
	"time"

	"github.com/namuen/sensor-bot/internal/logic"
)

// Config contains daemon configuration for display.
type Config struct {
	Broker           string
	TopicTemperature string
	TopicHumidity    string
	HTTPAddr         string
	TimeZone         string
	ConfigPath       string
}

// BotConfig mirrors the persisted bot configuration.
type BotConfig struct {
	LogChannelID   string
	AlertChannelID string
	TempThreshold  float64
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Temperature      logic.Value
	Humidity         logic.Value
	LastUpdate       time.Time
	Alert            logic.AlertState
	LogPending       bool
	Counts           logic.EventCounts
	Bot              BotConfig
	StartTime        time.Time
	Now              time.Time
	MQTTConnected    bool
	DiscordConnected bool
	Config           Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
	now  func() time.Time
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
		now: time.Now,
	}
}

// Update copies the monitor state. Called from the bridge loop after every change.
func (t *Tracker) Update(m *logic.Monitor) {
	temp, hum, last := m.Latest()
	alert := m.Alert()
	pending := m.LogPending()
	counts := m.Counts()

	t.mu.Lock()
	t.snap.Temperature = temp
	t.snap.Humidity = hum
	t.snap.LastUpdate = last
	t.snap.Alert = alert
	t.snap.LogPending = pending
	t.snap.Counts = counts
	t.mu.Unlock()
}

// SetBotConfig sets the persisted bot configuration for display.
func (t *Tracker) SetBotConfig(cfg BotConfig) {
	t.mu.Lock()
	t.snap.Bot = cfg
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetDiscordConnected sets the Discord gateway connection status.
func (t *Tracker) SetDiscordConnected(connected bool) {
	t.mu.Lock()
	t.snap.DiscordConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = t.now()
	return s
}
