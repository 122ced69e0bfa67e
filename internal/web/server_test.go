package web

import (
	"encoding/json"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/namuen/sensor-bot/internal/logic"
	"github.com/namuen/sensor-bot/internal/status"
)

var start = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T) (*httptest.Server, *status.Tracker) {
	t.Helper()
	cfg := status.Config{
		Broker:           "tcp://broker.local:1883",
		TopicTemperature: "aiot/namuen/temp",
		TopicHumidity:    "aiot/namuen/hum",
		HTTPAddr:         ":8080",
		TimeZone:         "UTC",
		ConfigPath:       "./config.json",
	}
	tr := status.NewTracker(start, cfg)
	srv := New(":0", tr)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, tr
}

func getJSON(t *testing.T, url string) status.StatusJSON {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()

	var sj status.StatusJSON
	if err := json.NewDecoder(resp.Body).Decode(&sj); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	return sj
}

func getBody(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, string(body)
}

func TestJSONEndpoint(t *testing.T) {
	ts, tr := newTestServer(t)

	m := logic.NewMonitor()
	cfg := logic.Config{AlertChannelID: "alerts", TempThreshold: 30}
	m.Process(logic.Reading{Kind: logic.KindTemperature, Value: 33, Time: start.Add(time.Minute)}, cfg)
	m.Process(logic.Reading{Kind: logic.KindHumidity, Value: 58, Time: start.Add(time.Minute)}, cfg)
	tr.Update(m)
	tr.SetMQTTConnected(true)
	tr.SetBotConfig(status.BotConfig{AlertChannelID: "alerts", TempThreshold: 30})

	resp, err := http.Get(ts.URL + "/index.json")
	if err != nil {
		t.Fatalf("GET /index.json: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: got %q, want application/json", ct)
	}

	var sj status.StatusJSON
	if err := json.NewDecoder(resp.Body).Decode(&sj); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}

	if sj.Status.Temperature.Value == nil || *sj.Status.Temperature.Value != 33 {
		t.Errorf("Temperature: got %+v, want 33", sj.Status.Temperature)
	}
	if sj.Status.Humidity.State != status.ReadingOK {
		t.Errorf("Humidity.State: got %q, want OK", sj.Status.Humidity.State)
	}
	if !sj.Status.Alert.InExcursion || !sj.Status.Alert.AlertSent {
		t.Errorf("Alert: got %+v", sj.Status.Alert)
	}
	if !sj.Status.MQTT.Connected {
		t.Error("expected MQTT.Connected=true")
	}
	if sj.Status.MQTT.Broker != "tcp://broker.local:1883" {
		t.Errorf("MQTT.Broker: got %q", sj.Status.MQTT.Broker)
	}
	if sj.Status.Counts.OverThreshold != 1 {
		t.Errorf("Counts.OverThreshold: got %d, want 1", sj.Status.Counts.OverThreshold)
	}
	if sj.Status.Bot.AlertChannelID != "alerts" {
		t.Errorf("Bot.AlertChannelID: got %q", sj.Status.Bot.AlertChannelID)
	}
	if sj.Status.Config.TopicTemperature != "aiot/namuen/temp" {
		t.Errorf("Config.TopicTemperature: got %q", sj.Status.Config.TopicTemperature)
	}
}

func TestJSONUnknownBeforeFirstReading(t *testing.T) {
	ts, _ := newTestServer(t)

	sj := getJSON(t, ts.URL+"/index.json")
	if sj.Status.Temperature.State != status.ReadingUnknown {
		t.Errorf("Temperature.State: got %q, want UNKNOWN", sj.Status.Temperature.State)
	}
	if sj.Status.Humidity.State != status.ReadingUnknown {
		t.Errorf("Humidity.State: got %q, want UNKNOWN", sj.Status.Humidity.State)
	}
	if sj.Status.LastUpdate != "" {
		t.Errorf("LastUpdate: got %q, want empty", sj.Status.LastUpdate)
	}
}

func TestHTMLEndpointRoot(t *testing.T) {
	ts, tr := newTestServer(t)

	m := logic.NewMonitor()
	m.Process(logic.Reading{Kind: logic.KindTemperature, Value: 27.5, Time: start}, logic.Config{TempThreshold: 30})
	m.Process(logic.Reading{Kind: logic.KindHumidity, Value: math.NaN(), Time: start}, logic.Config{TempThreshold: 30})
	tr.Update(m)

	resp, err := http.Get(ts.URL + "/")
	if err != nil {
		t.Fatalf("GET /: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
	ct := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type: got %q, want text/html", ct)
	}

	body, _ := io.ReadAll(resp.Body)
	page := string(body)
	if !strings.Contains(page, "27.5 °C") {
		t.Error("page should show the temperature")
	}
	if !strings.Contains(page, ">invalid<") {
		t.Error("page should mark the NaN humidity as invalid")
	}
	if !strings.Contains(page, "not set") {
		t.Error("page should show unset channels")
	}
}

func TestHTMLEndpointIndexHTML(t *testing.T) {
	ts, _ := newTestServer(t)

	code, body := getBody(t, ts.URL+"/index.html")
	if code != 200 {
		t.Errorf("status: got %d, want 200", code)
	}
	if !strings.Contains(body, "never") {
		t.Error("page should say no update yet")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ts, _ := newTestServer(t)

	code, body := getBody(t, ts.URL+"/metrics")
	if code != 200 {
		t.Errorf("status: got %d, want 200", code)
	}
	if !strings.Contains(body, "go_goroutines") {
		t.Error("expected Go runtime metrics in exposition")
	}
}

func TestNotFoundForUnknownPath(t *testing.T) {
	ts, _ := newTestServer(t)

	code, _ := getBody(t, ts.URL+"/nonexistent")
	if code != 404 {
		t.Errorf("status: got %d, want 404", code)
	}
}

func TestStateChangesReflectedInResponse(t *testing.T) {
	ts, tr := newTestServer(t)

	sj1 := getJSON(t, ts.URL+"/index.json")
	if sj1.Status.Discord.Connected {
		t.Error("expected Discord disconnected initially")
	}

	tr.SetDiscordConnected(true)
	tr.SetBotConfig(status.BotConfig{TempThreshold: 42})

	sj2 := getJSON(t, ts.URL+"/index.json")
	if !sj2.Status.Discord.Connected {
		t.Error("expected Discord connected after update")
	}
	if sj2.Status.Bot.TempThreshold != 42 {
		t.Errorf("Bot.TempThreshold: got %v, want 42", sj2.Status.Bot.TempThreshold)
	}
}
