package web

import (
	"fmt"
	"html/template"
	"io"
	"math"
	"strconv"
	"time"

	"github.com/namuen/sensor-bot/internal/logic"
	"github.com/namuen/sensor-bot/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		if days > 0 {
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		}
		if h > 0 {
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		}
		if m > 0 {
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
	"reading": func(v logic.Value, unit string) string {
		switch {
		case !v.Set:
			return "-"
		case math.IsNaN(v.V):
			return "invalid"
		}
		return strconv.FormatFloat(v.V, 'f', -1, 64) + " " + unit
	},
	"readingClass": func(v logic.Value) string {
		switch {
		case !v.Set:
			return "unknown"
		case math.IsNaN(v.V):
			return "invalid"
		}
		return "ok"
	},
	"number": func(v float64) string {
		return strconv.FormatFloat(v, 'f', -1, 64)
	},
	"orUnset": func(s string) string {
		if s == "" {
			return "not set"
		}
		return s
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="refresh" content="30">
<title>Sensor Bot</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.ok { font-weight: bold; }
.invalid { color: red; }
.unknown { color: orange; }
.high { color: red; font-weight: bold; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>Sensor Bot</h1>

<h2>Readings</h2>
<table>
<tr><th>Temperature</th><td id="temp" class="{{readingClass .Temperature}}">{{reading .Temperature "°C"}}</td></tr>
<tr><th>Humidity</th><td id="hum" class="{{readingClass .Humidity}}">{{reading .Humidity "%"}}</td></tr>
<tr><th>Last update</th><td>{{if .LastUpdate.IsZero}}never{{else}}{{(.LastUpdate.In .Location).Format "2006-01-02 15:04:05 MST"}}{{end}}</td></tr>
</table>

<h2>Alerting</h2>
<table>
<tr><th>Threshold</th><td>{{number .Bot.TempThreshold}}°C</td></tr>
<tr><th>Above threshold</th><td class="{{if .Alert.InExcursion}}high{{end}}">{{if .Alert.InExcursion}}since {{(.Alert.HighTempStart.In .Location).Format "15:04:05"}}{{else}}no{{end}}</td></tr>
<tr><th>Alert sent</th><td>{{if .Alert.AlertSent}}yes{{else}}no{{end}}</td></tr>
<tr><th>Fire alert sent</th><td>{{if .Alert.FireAlertSent}}yes{{else}}no{{end}}</td></tr>
<tr><th>Log pending</th><td>{{if .LogPending}}yes{{else}}no{{end}}</td></tr>
<tr><th>Log channel</th><td>{{orUnset .Bot.LogChannelID}}</td></tr>
<tr><th>Alert channel</th><td>{{orUnset .Bot.AlertChannelID}}</td></tr>
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
<tr><th>Topics</th><td>{{.Config.TopicTemperature}}, {{.Config.TopicHumidity}}</td></tr>
<tr><th>Discord</th><td class="{{if .DiscordConnected}}connected{{else}}disconnected{{end}}">{{if .DiscordConnected}}connected{{else}}disconnected{{end}}</td></tr>
</table>

<h2>Event Counts</h2>
<table>
<tr><th>Temperature readings</th><td>{{.Counts.Temperature}}</td></tr>
<tr><th>Humidity readings</th><td>{{.Counts.Humidity}}</td></tr>
<tr><th>Invalid readings</th><td>{{.Counts.Invalid}}</td></tr>
<tr><th>Over threshold</th><td>{{.Counts.OverThreshold}}</td></tr>
<tr><th>Sustained high</th><td>{{.Counts.SustainedHigh}}</td></tr>
<tr><th>Logs</th><td>{{.Counts.Logs}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Time zone</th><td>{{.Config.TimeZone}}</td></tr>
<tr><th>Config file</th><td>{{.Config.ConfigPath}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a> · <a href="/metrics">metrics</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) error {
	loc, err := time.LoadLocation(snap.Config.TimeZone)
	if err != nil {
		loc = time.UTC
	}
	data := struct {
		status.Snapshot
		Uptime   time.Duration
		Location *time.Location
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
		Location: loc,
	}
	return indexTmpl.Execute(w, data)
}
