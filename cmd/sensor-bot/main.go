// Command sensor-bot relays ESP32 temperature and humidity readings from MQTT
// to Discord channels and answers slash commands about them.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"

	"github.com/namuen/sensor-bot/internal/bridge"
	"github.com/namuen/sensor-bot/internal/discord"
	"github.com/namuen/sensor-bot/internal/logger"
	"github.com/namuen/sensor-bot/internal/logic"
	"github.com/namuen/sensor-bot/internal/mqtt"
	"github.com/namuen/sensor-bot/internal/status"
	"github.com/namuen/sensor-bot/internal/store"
	"github.com/namuen/sensor-bot/internal/web"
)

// Environment variable names.
const (
	envDiscordToken = "DISCORD_TOKEN"
	envClientID     = "CLIENT_ID"
	envGuildID      = "GUILD_ID"
	envMQTTServer   = "MQTT_SERVER"
	envMQTTUser     = "MQTT_USER"
	envMQTTPass     = "MQTT_PASS"
)

// settings is everything run needs, gathered from flags and the environment.
type settings struct {
	Token   string
	AppID   string
	GuildID string

	Broker   string
	MQTTUser string
	MQTTPass string
	Topics   mqtt.Topics

	ConfigPath string
	HTTPAddr   string
	TimeZone   string
}

func main() {
	dotenvErr := godotenv.Load()

	configPath := flag.String("config", store.DefaultPath, "Bot config file (.json, .yaml or .yml)")
	broker := flag.String("broker", "", "MQTT broker URL (overrides "+envMQTTServer+")")
	topicTemp := flag.String("topic-temp", mqtt.DefaultTopicTemperature, "MQTT topic carrying temperature")
	topicHum := flag.String("topic-hum", mqtt.DefaultTopicHumidity, "MQTT topic carrying humidity")
	httpAddr := flag.String("http", ":8080", "HTTP status address (empty to disable)")
	tz := flag.String("tz", "Asia/Bangkok", "Time zone for timestamps shown in Discord")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", "json", `Log format ("json" or "console")`)

	flag.Parse()

	logger.Init(*logLevel, *logFormat)
	log := logger.WithComponent("main")
	if dotenvErr != nil && !errors.Is(dotenvErr, os.ErrNotExist) {
		log.Warn().Err(dotenvErr).Msg("could not load .env")
	}

	s := settingsFromEnv(os.Getenv)
	if *broker != "" {
		s.Broker = *broker
	}
	s.Topics = mqtt.Topics{Temperature: *topicTemp, Humidity: *topicHum}
	s.ConfigPath = *configPath
	s.HTTPAddr = *httpAddr
	s.TimeZone = *tz

	if err := run(s); err != nil {
		log.Fatal().Err(err).Msg("fatal")
	}
}

func settingsFromEnv(getenv func(string) string) settings {
	return settings{
		Token:    getenv(envDiscordToken),
		AppID:    getenv(envClientID),
		GuildID:  getenv(envGuildID),
		Broker:   getenv(envMQTTServer),
		MQTTUser: getenv(envMQTTUser),
		MQTTPass: getenv(envMQTTPass),
		Topics:   mqtt.DefaultTopics(),
	}
}

func run(s settings) error {
	log := logger.WithComponent("main")

	loc, err := time.LoadLocation(s.TimeZone)
	if err != nil {
		return fmt.Errorf("load time zone %q: %w", s.TimeZone, err)
	}
	if s.Token == "" {
		return fmt.Errorf("%s is not set", envDiscordToken)
	}

	st, err := store.Open(s.ConfigPath)
	if err != nil {
		log.Warn().Err(err).Str("path", st.Path()).Msg("could not write default config, continuing in memory")
	}

	// Initialize status tracker (before STARTUP so snapshot is available)
	tracker := status.NewTracker(time.Now(), status.Config{
		Broker:           s.Broker,
		TopicTemperature: s.Topics.Temperature,
		TopicHumidity:    s.Topics.Humidity,
		HTTPAddr:         s.HTTPAddr,
		TimeZone:         loc.String(),
		ConfigPath:       st.Path(),
	})

	bot, err := discord.New(discord.Options{
		Token:        s.Token,
		AppID:        s.AppID,
		GuildID:      s.GuildID,
		Format:       discord.NewFormatter(loc),
		OnConnection: tracker.SetDiscordConnected,
	})
	if err != nil {
		return err
	}

	loop := bridge.New(bridge.Options{
		Store:     st,
		Sink:      bot.Sender(),
		Scheduler: bridge.RealScheduler{},
		Tracker:   tracker,
	})

	client, err := mqtt.NewRealClient(mqtt.Options{
		Broker:       s.Broker,
		Username:     s.MQTTUser,
		Password:     s.MQTTPass,
		Topics:       s.Topics,
		OnConnection: tracker.SetMQTTConnected,
	}, func(r logic.Reading) { loop.Submit(r) })
	if err != nil {
		return fmt.Errorf("init mqtt: %w", err)
	}
	defer client.Close()

	// Start HTTP status server
	if s.HTTPAddr != "" {
		srv := web.New(s.HTTPAddr, tracker)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error().Err(err).Msg("http server error")
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Info().Str("addr", s.HTTPAddr).Msg("http status server listening")
	}

	if err := bot.Open(loop); err != nil {
		return err
	}
	defer bot.Close()

	log.Info().
		Str("broker", s.Broker).
		Strs("topics", s.Topics.List()).
		Str("tz", loc.String()).
		Str("config", st.Path()).
		Msg("started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return runLoop(loop, client, tracker, time.Now, sigCh)
}

// runLoop publishes STARTUP, runs the bridge until a signal arrives and then
// publishes SHUTDOWN.
func runLoop(loop *bridge.Loop, client mqtt.Client, tracker *status.Tracker, now func() time.Time, sig <-chan os.Signal) error {
	log := logger.WithComponent("main")

	publishLifecycle(client, tracker, now, "STARTUP", "")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- loop.Run(ctx)
	}()

	var runErr error
	select {
	case s := <-sig:
		log.Info().Str("signal", s.String()).Msg("shutting down")
		cancel()
		runErr = <-errCh
		publishLifecycle(client, tracker, now, "SHUTDOWN", signalName(s))
	case runErr = <-errCh:
		publishLifecycle(client, tracker, now, "SHUTDOWN", "ERROR")
	}
	return runErr
}

func publishLifecycle(client mqtt.Client, tracker *status.Tracker, now func() time.Time, event, reason string) {
	log := logger.WithComponent("main")

	ev := mqtt.SystemEvent{
		Timestamp: now(),
		Event:     event,
		Reason:    reason,
		Retained:  true,
	}
	if tracker != nil {
		tracker.SetMQTTConnected(client.IsConnected())
		ev.RawPayload = status.FormatStatusEvent(tracker.Snapshot(), event, reason)
	}
	if err := client.PublishSystem(ev); err != nil {
		log.Error().Err(err).Str("event", event).Msg("failed to publish lifecycle event")
		return
	}
	log.Info().Str("event", event).Msg("published lifecycle event")
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	}
	return "UNKNOWN"
}
