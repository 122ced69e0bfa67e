package discord

import (
	"errors"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/namuen/sensor-bot/internal/logic"
)

// ErrNoChannel is returned when asked to send without a destination.
var ErrNoChannel = errors.New("no channel configured")

// MessageSender is the part of a discordgo session used to post embeds.
type MessageSender interface {
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Sender posts notifications as embeds.
type Sender struct {
	client MessageSender
	format Formatter
}

// NewSender creates a Sender posting through client.
func NewSender(client MessageSender, format Formatter) *Sender {
	return &Sender{client: client, format: format}
}

// Send posts ev to channelID.
func (s *Sender) Send(channelID string, ev logic.Event) error {
	if channelID == "" {
		return ErrNoChannel
	}
	if _, err := s.client.ChannelMessageSendEmbed(channelID, s.format.Event(ev)); err != nil {
		return fmt.Errorf("send %s to %s: %w", ev.Type, channelID, err)
	}
	return nil
}
