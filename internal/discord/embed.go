package discord

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/namuen/sensor-bot/internal/bridge"
	"github.com/namuen/sensor-bot/internal/logic"
)

// Embed colors.
const (
	ColorOverThreshold = 0xff0000
	ColorSustainedHigh = 0xff6600
	ColorLog           = 0x3498db
	ColorStatus        = 0x2ecc71
)

// TimeLayout is the medium date-time format shown in embed footers.
const TimeLayout = "Jan 2, 2006, 3:04 PM"

// placeholder is shown for a reading that has not arrived yet.
const placeholder = "-"

// Formatter renders events and command replies as Discord messages.
type Formatter struct {
	Location *time.Location
}

// NewFormatter returns a Formatter for loc, or UTC if loc is nil.
func NewFormatter(loc *time.Location) Formatter {
	if loc == nil {
		loc = time.UTC
	}
	return Formatter{Location: loc}
}

func (f Formatter) clock(t time.Time) string {
	loc := f.Location
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(TimeLayout)
}

// FormatNumber prints v the shortest way that round-trips: 35, 27.5, -4.25.
func FormatNumber(v float64) string {
	if math.IsNaN(v) {
		return "NaN"
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func reading(v logic.Value, unit string) string {
	if !v.Set {
		return placeholder
	}
	return FormatNumber(v.V) + " " + unit
}

// Event builds the embed for a notification.
func (f Formatter) Event(ev logic.Event) *discordgo.MessageEmbed {
	e := &discordgo.MessageEmbed{
		Timestamp: ev.Timestamp.UTC().Format(time.RFC3339),
	}

	switch ev.Type {
	case logic.EventOverThreshold:
		e.Color = ColorOverThreshold
		e.Title = "🚨 Temperature too high!"
		e.Description = fmt.Sprintf("Current temperature **%s°C** is above the configured threshold (**%s°C**)",
			FormatNumber(ev.Temperature.V), FormatNumber(ev.Threshold))
		e.Footer = &discordgo.MessageEmbedFooter{Text: "Alerted at: " + f.clock(ev.Timestamp)}

	case logic.EventSustainedHigh:
		e.Color = ColorSustainedHigh
		e.Title = "🔥 Fire risk warning!"
		e.Description = fmt.Sprintf("Temperature has stayed above %s°C for **%d minutes**\nPossible fire risk, check the area immediately!",
			FormatNumber(ev.Threshold), int(logic.SustainedDuration.Minutes()))
		e.Footer = &discordgo.MessageEmbedFooter{Text: "Alerted at: " + f.clock(ev.Timestamp)}

	case logic.EventLog:
		e.Color = ColorLog
		e.Title = "📡 ESP32 sensor log"
		e.Fields = readingFields(ev.Temperature, ev.Humidity)
		e.Footer = &discordgo.MessageEmbedFooter{Text: "Updated: " + f.clock(ev.Timestamp)}

	default:
		e.Title = string(ev.Type)
	}

	return e
}

// Status builds the embed for the status command.
func (f Formatter) Status(s logic.Snapshot) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Color:     ColorStatus,
		Title:     "📊 Latest status",
		Fields:    readingFields(logic.Value{V: s.Temperature, Set: true}, logic.Value{V: s.Humidity, Set: true}),
		Footer:    &discordgo.MessageEmbedFooter{Text: "Updated: " + f.clock(s.AsOf)},
		Timestamp: s.AsOf.UTC().Format(time.RFC3339),
	}
}

func readingFields(temp, hum logic.Value) []*discordgo.MessageEmbedField {
	return []*discordgo.MessageEmbedField{
		{Name: "🌡 Temperature", Value: reading(temp, "°C"), Inline: true},
		{Name: "💧 Humidity", Value: reading(hum, "%"), Inline: true},
	}
}

// Reply renders a command result as an interaction response.
func (f Formatter) Reply(r bridge.Reply) *discordgo.InteractionResponseData {
	switch r.Command {
	case bridge.CmdStatus:
		if !r.HasData {
			return &discordgo.InteractionResponseData{Content: "❌ No data received from the ESP32 yet"}
		}
		return &discordgo.InteractionResponseData{Embeds: []*discordgo.MessageEmbed{f.Status(r.Snapshot)}}
	case bridge.CmdSetLogChannel:
		return &discordgo.InteractionResponseData{Content: fmt.Sprintf("✅ **Log** channel set to <#%s>", r.ChannelID)}
	case bridge.CmdSetAlertChannel:
		return &discordgo.InteractionResponseData{Content: fmt.Sprintf("✅ **Alert** channel set to <#%s>", r.ChannelID)}
	case bridge.CmdSetThreshold:
		return &discordgo.InteractionResponseData{Content: fmt.Sprintf("✅ Temperature alert threshold set to **%s°C**", FormatNumber(r.Threshold))}
	}
	return ErrorReply("Unknown command")
}

// ErrorReply is an ephemeral error message visible only to the invoking user.
func ErrorReply(msg string) *discordgo.InteractionResponseData {
	return &discordgo.InteractionResponseData{
		Content: "❌ " + msg,
		Flags:   discordgo.MessageFlagsEphemeral,
	}
}
