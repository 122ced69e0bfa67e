// Package bridge connects sensor readings and chat commands to the monitor.
// A single goroutine (Run) owns the monitor and all bot configuration changes;
// every other goroutine talks to it through one ordered input queue.
package bridge

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/namuen/sensor-bot/internal/logger"
	"github.com/namuen/sensor-bot/internal/logic"
	"github.com/namuen/sensor-bot/internal/metrics"
	"github.com/namuen/sensor-bot/internal/status"
	"github.com/namuen/sensor-bot/internal/store"
)

// Queue sizes.
const (
	DefaultQueueSize  = 256
	DefaultOutboxSize = 64
)

// drainTimeout bounds how long Run waits for queued notifications on shutdown.
const drainTimeout = 5 * time.Second

// Sink delivers a notification to a chat channel.
type Sink interface {
	Send(channelID string, ev logic.Event) error
}

// ConfigStore is the persisted bot configuration.
type ConfigStore interface {
	Config() store.Config
	SetLogChannel(channelID string) error
	SetAlertChannel(channelID string) error
	SetThreshold(celsius float64) error
}

// Options configures a Loop. Store, Sink and Scheduler are required.
type Options struct {
	Store     ConfigStore
	Sink      Sink
	Scheduler Scheduler

	// Tracker is optional.
	Tracker *status.Tracker

	QueueSize  int
	OutboxSize int
}

type inputKind int

const (
	inputReading inputKind = iota
	inputFlush
	inputCommand
)

type input struct {
	kind    inputKind
	reading logic.Reading
	cmd     Command
	reply   chan Reply
}

// Loop serializes readings, log flushes and commands.
type Loop struct {
	monitor *logic.Monitor
	store   ConfigStore
	sink    Sink
	sched   Scheduler
	tracker *status.Tracker

	in      chan input
	outbox  chan logic.Event
	stop    chan struct{}
	pending Task

	log zerolog.Logger
}

// New creates a Loop. Nothing is processed until Run is called.
func New(o Options) *Loop {
	if o.QueueSize <= 0 {
		o.QueueSize = DefaultQueueSize
	}
	if o.OutboxSize <= 0 {
		o.OutboxSize = DefaultOutboxSize
	}
	return &Loop{
		monitor: logic.NewMonitor(),
		store:   o.Store,
		sink:    o.Sink,
		sched:   o.Scheduler,
		tracker: o.Tracker,
		in:      make(chan input, o.QueueSize),
		outbox:  make(chan logic.Event, o.OutboxSize),
		stop:    make(chan struct{}),
		log:     logger.WithComponent("bridge"),
	}
}

// Submit enqueues a reading without blocking. It returns false and drops the
// reading when the queue is full.
func (l *Loop) Submit(r logic.Reading) bool {
	select {
	case l.in <- input{kind: inputReading, reading: r}:
		return true
	default:
		metrics.ReadingsDropped.Inc()
		l.log.Warn().Str("kind", string(r.Kind)).Msg("input queue full, reading dropped")
		return false
	}
}

// Dispatch runs cmd on the loop goroutine and waits for its reply.
func (l *Loop) Dispatch(ctx context.Context, cmd Command) (Reply, error) {
	reply := make(chan Reply, 1)
	select {
	case l.in <- input{kind: inputCommand, cmd: cmd, reply: reply}:
	case <-l.stop:
		return Reply{}, ErrStopped
	case <-ctx.Done():
		return Reply{}, ctx.Err()
	}

	select {
	case r := <-reply:
		if r.Command == "" {
			return r, fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Name)
		}
		return r, nil
	case <-l.stop:
		return Reply{}, ErrStopped
	case <-ctx.Done():
		return Reply{}, ctx.Err()
	}
}

// Run processes input until ctx is cancelled. Notifications are handed to the
// sink on a separate goroutine so a slow send never holds up readings.
func (l *Loop) Run(ctx context.Context) error {
	cfg := l.store.Config()
	metrics.Threshold.Set(cfg.TempThreshold)
	l.publishConfig(cfg)

	done := make(chan struct{})
	go func() {
		defer close(done)
		l.deliver()
	}()

	l.log.Info().Msg("bridge loop started")

	for {
		select {
		case <-ctx.Done():
			close(l.stop)
			if l.pending != nil {
				l.pending.Cancel()
				l.pending = nil
			}
			close(l.outbox)
			select {
			case <-done:
			case <-time.After(drainTimeout):
				l.log.Warn().Msg("timed out waiting for notifications to drain")
			}
			l.log.Info().Msg("bridge loop stopped")
			return nil

		case in := <-l.in:
			switch in.kind {
			case inputReading:
				l.handleReading(in.reading)
				l.refreshTracker()
			case inputFlush:
				l.handleFlush()
				l.refreshTracker()
			case inputCommand:
				r := l.handleCommand(in.cmd)
				l.refreshTracker()
				in.reply <- r
			}
		}
	}
}

func (l *Loop) handleReading(r logic.Reading) {
	cfg := l.store.Config().Logic()
	events, scheduleLog := l.monitor.Process(r, cfg)

	state := "valid"
	if !r.Valid() {
		state = "invalid"
		l.log.Warn().Str("kind", string(r.Kind)).Msg("unparsable reading")
	} else {
		metrics.LatestValue.WithLabelValues(string(r.Kind)).Set(r.Value)
	}
	metrics.ReadingsTotal.WithLabelValues(string(r.Kind), state).Inc()

	l.log.Debug().
		Str("kind", string(r.Kind)).
		Float64("value", r.Value).
		Bool("valid", r.Valid()).
		Msg("reading")

	for _, ev := range events {
		l.log.Info().
			Str("type", string(ev.Type)).
			Str("channel", ev.ChannelID).
			Float64("temperature", ev.Temperature.V).
			Float64("threshold", ev.Threshold).
			Dur("elapsed", ev.Elapsed).
			Msg("alert")
		l.enqueue(ev)
	}

	if scheduleLog {
		l.pending = l.sched.AfterFunc(logic.LogDelay, func() {
			select {
			case l.in <- input{kind: inputFlush}:
			case <-l.stop:
			}
		})
	}

	if l.monitor.Alert().InExcursion() {
		metrics.Excursion.Set(1)
	} else {
		metrics.Excursion.Set(0)
	}
}

func (l *Loop) handleFlush() {
	l.pending = nil
	ev := l.monitor.FlushLog(l.store.Config().Logic())
	if ev == nil {
		return
	}
	l.enqueue(*ev)
}

func (l *Loop) handleCommand(cmd Command) Reply {
	r := Reply{Command: cmd.Name}

	switch cmd.Name {
	case CmdStatus:
		r.Snapshot, r.HasData = l.monitor.Status()

	case CmdSetLogChannel:
		r.ChannelID = cmd.ChannelID
		r.SaveErr = l.store.SetLogChannel(cmd.ChannelID)

	case CmdSetAlertChannel:
		r.ChannelID = cmd.ChannelID
		r.SaveErr = l.store.SetAlertChannel(cmd.ChannelID)

	case CmdSetThreshold:
		r.Threshold = float64(cmd.Threshold)
		r.SaveErr = l.store.SetThreshold(r.Threshold)

	default:
		l.log.Warn().Str("command", string(cmd.Name)).Msg("unknown command")
		return Reply{}
	}

	metrics.CommandsTotal.WithLabelValues(string(cmd.Name)).Inc()

	if cmd.Name != CmdStatus {
		cfg := l.store.Config()
		metrics.Threshold.Set(cfg.TempThreshold)
		l.publishConfig(cfg)

		ev := l.log.Info()
		if r.SaveErr != nil {
			metrics.ConfigSaveErrors.Inc()
			ev = l.log.Error().Err(r.SaveErr)
		}
		ev.Str("command", string(cmd.Name)).
			Str("log_channel", cfg.LogChannelID).
			Str("alert_channel", cfg.AlertChannelID).
			Float64("threshold", cfg.TempThreshold).
			Msg("config changed")
	}

	return r
}

// enqueue hands ev to the delivery goroutine, dropping it if the outbox is full.
func (l *Loop) enqueue(ev logic.Event) {
	select {
	case l.outbox <- ev:
	default:
		metrics.NotificationsTotal.WithLabelValues(string(ev.Type), "dropped").Inc()
		l.log.Warn().Str("type", string(ev.Type)).Msg("outbox full, notification dropped")
	}
}

// deliver sends queued notifications in order until the outbox is closed.
// Failures are logged and counted; there is no retry.
func (l *Loop) deliver() {
	for ev := range l.outbox {
		if err := l.sink.Send(ev.ChannelID, ev); err != nil {
			metrics.NotificationsTotal.WithLabelValues(string(ev.Type), "failed").Inc()
			l.log.Error().Err(err).
				Str("type", string(ev.Type)).
				Str("channel", ev.ChannelID).
				Msg("send failed")
			continue
		}
		metrics.NotificationsTotal.WithLabelValues(string(ev.Type), "sent").Inc()
	}
}

func (l *Loop) refreshTracker() {
	if l.tracker == nil {
		return
	}
	l.tracker.Update(l.monitor)
}

func (l *Loop) publishConfig(cfg store.Config) {
	if l.tracker == nil {
		return
	}
	l.tracker.SetBotConfig(status.BotConfig{
		LogChannelID:   cfg.LogChannelID,
		AlertChannelID: cfg.AlertChannelID,
		TempThreshold:  cfg.TempThreshold,
	})
}
