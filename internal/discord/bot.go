// Package discord is the chat surface of the bot: slash commands in, embeds out.
package discord

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"github.com/namuen/sensor-bot/internal/bridge"
	"github.com/namuen/sensor-bot/internal/logger"
)

// commandTimeout keeps replies inside the interaction acknowledgement window.
const commandTimeout = 2500 * time.Millisecond

// Dispatcher runs a command against the bot state.
type Dispatcher interface {
	Dispatch(ctx context.Context, cmd bridge.Command) (bridge.Reply, error)
}

// Options configures a Bot.
type Options struct {
	Token   string
	AppID   string
	GuildID string
	Format  Formatter

	// OnConnection is called with the gateway connection state. Optional.
	OnConnection func(connected bool)
}

// Bot owns the gateway session.
type Bot struct {
	session    *discordgo.Session
	appID      string
	guildID    string
	dispatcher Dispatcher
	format     Formatter
	onConn     func(bool)
	log        zerolog.Logger
}

// New creates a Bot. It does not connect until Open.
func New(o Options) (*Bot, error) {
	if o.Token == "" {
		return nil, errors.New("discord token is required")
	}
	if o.AppID == "" || o.GuildID == "" {
		return nil, errors.New("discord application id and guild id are required")
	}

	s, err := discordgo.New("Bot " + o.Token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	s.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMessages

	b := &Bot{
		session:    s,
		appID:      o.AppID,
		guildID:    o.GuildID,
		format:     o.Format,
		onConn:     o.OnConnection,
		log:        logger.WithComponent("discord"),
	}

	s.AddHandler(b.onReady)
	s.AddHandler(b.onDisconnect)
	s.AddHandler(b.onResumed)
	s.AddHandler(b.onInteraction)

	return b, nil
}

// Sender returns a notification sink posting through this bot's session.
func (b *Bot) Sender() *Sender {
	return NewSender(b.session, b.format)
}

// Open connects to the gateway and registers the slash commands for the guild.
// Commands are routed to d from then on.
func (b *Bot) Open(d Dispatcher) error {
	b.dispatcher = d
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("open discord session: %w", err)
	}

	cmds, err := b.session.ApplicationCommandBulkOverwrite(b.appID, b.guildID, Commands())
	if err != nil {
		return fmt.Errorf("register commands: %w", err)
	}
	b.log.Info().Int("count", len(cmds)).Str("guild", b.guildID).Msg("slash commands registered")
	return nil
}

// Close disconnects from the gateway.
func (b *Bot) Close() error {
	b.setConnected(false)
	return b.session.Close()
}

func (b *Bot) setConnected(v bool) {
	if b.onConn != nil {
		b.onConn(v)
	}
}

func (b *Bot) onReady(_ *discordgo.Session, r *discordgo.Ready) {
	name := ""
	if r.User != nil {
		name = r.User.Username
	}
	b.log.Info().Str("user", name).Msg("discord ready")
	b.setConnected(true)
}

func (b *Bot) onDisconnect(_ *discordgo.Session, _ *discordgo.Disconnect) {
	b.log.Warn().Msg("discord gateway disconnected")
	b.setConnected(false)
}

func (b *Bot) onResumed(_ *discordgo.Session, _ *discordgo.Resumed) {
	b.log.Info().Msg("discord gateway resumed")
	b.setConnected(true)
}

func (b *Bot) onInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	data := b.handle(ctx, i)
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: data,
	})
	if err != nil {
		b.log.Error().Err(err).Str("command", i.ApplicationCommandData().Name).Msg("interaction reply failed")
	}
}

// handle runs the command carried by i and renders the reply.
func (b *Bot) handle(ctx context.Context, i *discordgo.InteractionCreate) *discordgo.InteractionResponseData {
	data := i.ApplicationCommandData()

	cmd, err := ParseCommand(data, i.ChannelID)
	if err != nil {
		b.log.Warn().Err(err).Str("command", data.Name).Msg("bad command arguments")
		return ErrorReply("Invalid arguments")
	}

	log := b.log.With().Str("command", data.Name).Str("channel", i.ChannelID).Logger()
	if u := interactionUser(i); u != nil {
		log = log.With().Str("user", u.Username).Logger()
	}

	reply, err := b.dispatcher.Dispatch(ctx, cmd)
	switch {
	case errors.Is(err, bridge.ErrUnknownCommand):
		log.Warn().Msg("unknown command")
		return ErrorReply("Unknown command")
	case err != nil:
		log.Error().Err(err).Msg("command failed")
		return ErrorReply("The bot is busy, try again")
	}

	log.Info().Msg("command handled")
	return b.format.Reply(reply)
}

func interactionUser(i *discordgo.InteractionCreate) *discordgo.User {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User
	}
	return i.User
}
