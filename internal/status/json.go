package status

import (
	"encoding/json"
	"math"
	"time"

	"github.com/namuen/sensor-bot/internal/logic"
)

// Reading states reported in JSON.
const (
	ReadingOK      = "OK"
	ReadingInvalid = "INVALID"
	ReadingUnknown = "UNKNOWN"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string        `json:"event,omitempty"`
	Reason        string        `json:"reason,omitempty"`
	Temperature   ReadingJSON   `json:"temperature"`
	Humidity      ReadingJSON   `json:"humidity"`
	LastUpdate    string        `json:"last_update,omitempty"`
	Alert         AlertJSON     `json:"alert"`
	LogPending    bool          `json:"log_pending"`
	UptimeSeconds int64         `json:"uptime_seconds"`
	StartTime     string        `json:"start_time"`
	Timestamp     string        `json:"timestamp"`
	MQTT          MQTTStatus    `json:"mqtt"`
	Discord       DiscordStatus `json:"discord"`
	Counts        CountsJSON    `json:"event_counts"`
	Bot           BotJSON       `json:"bot"`
	Config        ConfigJSON    `json:"config"`
}

// ReadingJSON is a latest-value slot. Value is null unless State is OK.
type ReadingJSON struct {
	Value *float64 `json:"value"`
	State string   `json:"state"`
}

// AlertJSON reports the excursion latches.
type AlertJSON struct {
	InExcursion    bool   `json:"in_excursion"`
	ExcursionStart string `json:"excursion_start,omitempty"`
	AlertSent      bool   `json:"alert_sent"`
	FireAlertSent  bool   `json:"fire_alert_sent"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// DiscordStatus reports the gateway connection state.
type DiscordStatus struct {
	Connected bool `json:"connected"`
}

// CountsJSON is the JSON representation of event counts.
type CountsJSON struct {
	Temperature   int `json:"temperature"`
	Humidity      int `json:"humidity"`
	Invalid       int `json:"invalid"`
	OverThreshold int `json:"over_threshold"`
	SustainedHigh int `json:"sustained_high"`
	Logs          int `json:"logs"`
}

// BotJSON is the JSON representation of the persisted bot config.
type BotJSON struct {
	LogChannelID   string  `json:"log_channel_id"`
	AlertChannelID string  `json:"alert_channel_id"`
	TempThreshold  float64 `json:"temp_threshold"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	Broker           string `json:"broker"`
	TopicTemperature string `json:"topic_temperature"`
	TopicHumidity    string `json:"topic_humidity"`
	HTTPAddr         string `json:"http_addr"`
	TimeZone         string `json:"time_zone"`
	ConfigPath       string `json:"config_path"`
}

func readingJSON(v logic.Value) ReadingJSON {
	if !v.Set {
		return ReadingJSON{State: ReadingUnknown}
	}
	if math.IsNaN(v.V) || math.IsInf(v.V, 0) {
		return ReadingJSON{State: ReadingInvalid}
	}
	val := v.V
	return ReadingJSON{Value: &val, State: ReadingOK}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func buildInner(snap Snapshot) StatusInner {
	return StatusInner{
		Temperature: readingJSON(snap.Temperature),
		Humidity:    readingJSON(snap.Humidity),
		LastUpdate:  formatTime(snap.LastUpdate),
		Alert: AlertJSON{
			InExcursion:    snap.Alert.InExcursion(),
			ExcursionStart: formatTime(snap.Alert.HighTempStart),
			AlertSent:      snap.Alert.AlertSent,
			FireAlertSent:  snap.Alert.FireAlertSent,
		},
		LogPending:    snap.LogPending,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Discord:       DiscordStatus{Connected: snap.DiscordConnected},
		Counts: CountsJSON{
			Temperature:   snap.Counts.Temperature,
			Humidity:      snap.Counts.Humidity,
			Invalid:       snap.Counts.Invalid,
			OverThreshold: snap.Counts.OverThreshold,
			SustainedHigh: snap.Counts.SustainedHigh,
			Logs:          snap.Counts.Logs,
		},
		Bot: BotJSON{
			LogChannelID:   snap.Bot.LogChannelID,
			AlertChannelID: snap.Bot.AlertChannelID,
			TempThreshold:  snap.Bot.TempThreshold,
		},
		Config: ConfigJSON{
			Broker:           snap.Config.Broker,
			TopicTemperature: snap.Config.TopicTemperature,
			TopicHumidity:    snap.Config.TopicHumidity,
			HTTPAddr:         snap.Config.HTTPAddr,
			TimeZone:         snap.Config.TimeZone,
			ConfigPath:       snap.Config.ConfigPath,
		},
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
