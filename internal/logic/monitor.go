package logic

import "time"

// Monitor tracks the latest readings, the alert latches and the log debounce flag.
// It is not safe for concurrent use; callers serialize Process, FlushLog and Status.
type Monitor struct {
	temp       Value
	hum        Value
	lastUpdate time.Time

	alert AlertState

	logPending   bool
	logTriggered time.Time

	counts EventCounts
}

// NewMonitor creates a Monitor with no readings, no excursion and both latches cleared.
func NewMonitor() *Monitor {
	return &Monitor{}
}

// Process takes a new reading and returns any alert events that should be sent now.
// scheduleLog is true when the caller must arrange for FlushLog to run after LogDelay.
func (m *Monitor) Process(r Reading, cfg Config) (events []Event, scheduleLog bool) {
	switch r.Kind {
	case KindTemperature:
		m.temp = Value{V: r.Value, Set: true}
		m.counts.Temperature++
	case KindHumidity:
		m.hum = Value{V: r.Value, Set: true}
		m.counts.Humidity++
	default:
		return nil, false
	}
	m.lastUpdate = r.Time

	if !r.Valid() {
		m.counts.Invalid++
	}

	// NaN must not move the latches in either direction.
	if r.Kind == KindTemperature && r.Valid() {
		if r.Value > cfg.TempThreshold {
			if cfg.AlertChannelID != "" {
				events = m.processHigh(r, cfg)
			}
		} else {
			m.alert = AlertState{}
		}
	}

	if cfg.LogChannelID != "" && !m.logPending {
		m.logPending = true
		m.logTriggered = r.Time
		scheduleLog = true
	}

	return events, scheduleLog
}

// processHigh handles a temperature above threshold with an alert channel configured.
func (m *Monitor) processHigh(r Reading, cfg Config) []Event {
	var events []Event

	if !m.alert.AlertSent {
		events = append(events, m.event(EventOverThreshold, r.Time, cfg.AlertChannelID, cfg.TempThreshold))
		m.alert.AlertSent = true
		m.counts.OverThreshold++
	}

	if m.alert.HighTempStart.IsZero() {
		m.alert.HighTempStart = r.Time
		return events
	}

	elapsed := r.Time.Sub(m.alert.HighTempStart)
	if elapsed >= SustainedDuration && !m.alert.FireAlertSent {
		e := m.event(EventSustainedHigh, r.Time, cfg.AlertChannelID, cfg.TempThreshold)
		e.Elapsed = elapsed
		events = append(events, e)
		m.alert.FireAlertSent = true
		m.counts.SustainedHigh++
	}

	return events
}

// FlushLog runs the deferred log emission. It always clears the pending flag.
// Values are read at flush time; the log channel is resolved from cfg at flush time.
// Returns nil if no log channel is configured or nothing has been received yet.
func (m *Monitor) FlushLog(cfg Config) *Event {
	m.logPending = false

	if cfg.LogChannelID == "" {
		return nil
	}
	if !m.temp.Set && !m.hum.Set {
		return nil
	}

	e := m.event(EventLog, m.logTriggered, cfg.LogChannelID, cfg.TempThreshold)
	m.counts.Logs++
	return &e
}

func (m *Monitor) event(t EventType, ts time.Time, channelID string, threshold float64) Event {
	return Event{
		Timestamp:   ts,
		Type:        t,
		ChannelID:   channelID,
		Temperature: m.temp,
		Humidity:    m.hum,
		Threshold:   threshold,
	}
}

// Status returns the latest readings. ok is false until both temperature
// and humidity have been received at least once.
func (m *Monitor) Status() (snap Snapshot, ok bool) {
	if !m.temp.Set || !m.hum.Set {
		return Snapshot{}, false
	}
	return Snapshot{
		Temperature: m.temp.V,
		Humidity:    m.hum.V,
		AsOf:        m.lastUpdate,
	}, true
}

// Latest returns the raw latest-value slots and the last update time.
func (m *Monitor) Latest() (temp, hum Value, lastUpdate time.Time) {
	return m.temp, m.hum, m.lastUpdate
}

// Alert returns a copy of the current alert state.
func (m *Monitor) Alert() AlertState {
	return m.alert
}

// LogPending reports whether a log emission is scheduled and not yet flushed.
func (m *Monitor) LogPending() bool {
	return m.logPending
}

// Counts returns a snapshot of the event counters.
func (m *Monitor) Counts() EventCounts {
	return m.counts
}
