package discord

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/bwmarrin/discordgo"

	"github.com/namuen/sensor-bot/internal/bridge"
)

// OptionTemperature is the integer argument of setthreshold.
const OptionTemperature = "temperature"

var (
	errMissingOption = errors.New("missing option")
	errBadOption     = errors.New("option is not an integer")
)

// adminOnly hides a command from members without the Administrator permission.
var adminOnly int64 = discordgo.PermissionAdministrator

// Commands returns the slash commands registered for the guild.
func Commands() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{
			Name:        string(bridge.CmdStatus),
			Description: "Show the latest temperature and humidity",
		},
		{
			Name:                     string(bridge.CmdSetLogChannel),
			Description:              "Use this channel for sensor logs",
			DefaultMemberPermissions: &adminOnly,
		},
		{
			Name:                     string(bridge.CmdSetAlertChannel),
			Description:              "Use this channel for high temperature alerts",
			DefaultMemberPermissions: &adminOnly,
		},
		{
			Name:                     string(bridge.CmdSetThreshold),
			Description:              "Set the temperature alert threshold",
			DefaultMemberPermissions: &adminOnly,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        OptionTemperature,
					Description: "Temperature (°C)",
					Required:    true,
				},
			},
		},
	}
}

// ParseCommand converts slash command data into a bridge command.
// channelID is the channel the command was invoked in.
func ParseCommand(data discordgo.ApplicationCommandInteractionData, channelID string) (bridge.Command, error) {
	cmd := bridge.Command{Name: bridge.CommandName(data.Name), ChannelID: channelID}

	if cmd.Name == bridge.CmdSetThreshold {
		v, err := intOption(data.Options, OptionTemperature)
		if err != nil {
			return bridge.Command{}, err
		}
		cmd.Threshold = v
	}
	return cmd, nil
}

// intOption reads an integer option. Gateway payloads decode numbers as float64.
func intOption(opts []*discordgo.ApplicationCommandInteractionDataOption, name string) (int64, error) {
	for _, o := range opts {
		if o == nil || o.Name != name {
			continue
		}
		switch v := o.Value.(type) {
		case float64:
			if v != math.Trunc(v) {
				return 0, fmt.Errorf("%s: %w", name, errBadOption)
			}
			return int64(v), nil
		case int64:
			return v, nil
		case int:
			return int64(v), nil
		case json.Number:
			n, err := v.Int64()
			if err != nil {
				return 0, fmt.Errorf("%s: %w", name, errBadOption)
			}
			return n, nil
		default:
			return 0, fmt.Errorf("%s: %w", name, errBadOption)
		}
	}
	return 0, fmt.Errorf("%s: %w", name, errMissingOption)
}
