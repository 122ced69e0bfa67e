package bridge

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/namuen/sensor-bot/internal/logic"
	"github.com/namuen/sensor-bot/internal/status"
	"github.com/namuen/sensor-bot/internal/store"
)

var t0 = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

const waitTimeout = 2 * time.Second

type memStore struct {
	mu      sync.Mutex
	cfg     store.Config
	saveErr error
	saves   int
}

func newMemStore(cfg store.Config) *memStore {
	return &memStore{cfg: cfg}
}

func (m *memStore) Config() store.Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg
}

func (m *memStore) update(fn func(*store.Config)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(&m.cfg)
	m.saves++
	return m.saveErr
}

func (m *memStore) SetLogChannel(id string) error {
	return m.update(func(c *store.Config) { c.LogChannelID = id })
}

func (m *memStore) SetAlertChannel(id string) error {
	return m.update(func(c *store.Config) { c.AlertChannelID = id })
}

func (m *memStore) SetThreshold(v float64) error {
	return m.update(func(c *store.Config) { c.TempThreshold = v })
}

type harness struct {
	loop  *Loop
	sink  *FakeSink
	sched *FakeScheduler
	store *memStore
	stop  func()
}

func start(t *testing.T, cfg store.Config, tracker *status.Tracker) *harness {
	t.Helper()
	h := &harness{
		sink:  NewFakeSink(),
		sched: NewFakeScheduler(t0),
		store: newMemStore(cfg),
	}
	h.loop = New(Options{Store: h.store, Sink: h.sink, Scheduler: h.sched, Tracker: tracker})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := h.loop.Run(ctx); err != nil {
			t.Errorf("Run: %v", err)
		}
	}()
	var once sync.Once
	h.stop = func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}
	t.Cleanup(h.stop)
	return h
}

func (h *harness) submit(t *testing.T, kind logic.Kind, v float64, at time.Time) {
	t.Helper()
	if !h.loop.Submit(logic.Reading{Kind: kind, Value: v, Time: at}) {
		t.Fatalf("Submit(%s=%v) dropped", kind, v)
	}
}

// sync waits until everything queued before it has been processed.
func (h *harness) sync(t *testing.T) Reply {
	t.Helper()
	return h.dispatch(t, Command{Name: CmdStatus})
}

func (h *harness) dispatch(t *testing.T, cmd Command) Reply {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	r, err := h.loop.Dispatch(ctx, cmd)
	if err != nil {
		t.Fatalf("Dispatch(%s): %v", cmd.Name, err)
	}
	return r
}

func channels(logID, alertID string) store.Config {
	return store.Config{LogChannelID: logID, AlertChannelID: alertID, TempThreshold: 30}
}

func TestLogCoalescesPair(t *testing.T) {
	h := start(t, channels("logs", ""), nil)

	h.submit(t, logic.KindTemperature, 27.5, t0)
	h.submit(t, logic.KindHumidity, 61, t0.Add(200*time.Millisecond))
	h.sync(t)

	if n := h.sched.Pending(); n != 1 {
		t.Fatalf("pending flushes: got %d, want 1", n)
	}

	h.sched.Advance(999 * time.Millisecond)
	h.sync(t)
	if n := len(h.sink.Sent()); n != 0 {
		t.Fatalf("expected no log before delay, got %d", n)
	}

	h.sched.Advance(time.Millisecond)
	h.sync(t)

	got := h.sink.WaitFor(1, waitTimeout)
	if len(got) != 1 {
		t.Fatalf("expected 1 log, got %d", len(got))
	}
	e := got[0]
	if e.Type != logic.EventLog || e.ChannelID != "logs" {
		t.Errorf("event: got %s to %q", e.Type, e.ChannelID)
	}
	if e.Temperature.V != 27.5 || e.Humidity.V != 61 {
		t.Errorf("values: got temp=%+v hum=%+v", e.Temperature, e.Humidity)
	}

	if extra := h.sink.WaitFor(2, 50*time.Millisecond); len(extra) != 1 {
		t.Errorf("expected a single log, got %d", len(extra))
	}
}

func TestLogRearmsAfterFlush(t *testing.T) {
	h := start(t, channels("logs", ""), nil)

	h.submit(t, logic.KindTemperature, 25, t0)
	h.sync(t)
	h.sched.Advance(logic.LogDelay)
	h.sync(t)

	h.submit(t, logic.KindTemperature, 26, t0.Add(5*time.Second))
	h.sync(t)
	h.sched.Advance(logic.LogDelay)
	h.sync(t)

	got := h.sink.WaitFor(2, waitTimeout)
	if len(got) != 2 {
		t.Fatalf("expected 2 logs, got %d", len(got))
	}
	if got[1].Temperature.V != 26 {
		t.Errorf("second log temperature: got %v, want 26", got[1].Temperature.V)
	}
}

func TestOverThresholdAndReset(t *testing.T) {
	h := start(t, channels("", "alerts"), nil)

	h.submit(t, logic.KindTemperature, 35, t0)
	h.submit(t, logic.KindTemperature, 36, t0.Add(time.Minute))
	h.submit(t, logic.KindTemperature, 25, t0.Add(2*time.Minute))
	h.submit(t, logic.KindTemperature, 35, t0.Add(3*time.Minute))
	h.sync(t)

	got := h.sink.WaitFor(2, waitTimeout)
	if len(got) != 2 {
		t.Fatalf("expected 2 alerts, got %d", len(got))
	}
	for i, e := range got {
		if e.Type != logic.EventOverThreshold || e.ChannelID != "alerts" {
			t.Errorf("alert %d: got %s to %q", i, e.Type, e.ChannelID)
		}
	}
	if h.sched.Pending() != 0 {
		t.Error("no log should be scheduled without a log channel")
	}
}

func TestSustainedHighOrdering(t *testing.T) {
	h := start(t, channels("", "alerts"), nil)

	for i := 0; i < 10; i++ {
		h.submit(t, logic.KindTemperature, 35, t0.Add(time.Duration(i)*2*time.Minute))
	}
	h.sync(t)

	got := h.sink.WaitFor(2, waitTimeout)
	if len(got) != 2 {
		t.Fatalf("expected 2 alerts, got %d", len(got))
	}
	if got[0].Type != logic.EventOverThreshold || got[1].Type != logic.EventSustainedHigh {
		t.Errorf("order: got %s, %s", got[0].Type, got[1].Type)
	}
	if got[1].Elapsed != 10*time.Minute {
		t.Errorf("Elapsed: got %v, want 10m", got[1].Elapsed)
	}
}

func TestNoChannelsNoNotifications(t *testing.T) {
	h := start(t, channels("", ""), nil)

	h.submit(t, logic.KindTemperature, 99, t0)
	r := h.sync(t)
	if r.HasData {
		t.Error("status should report no data with only temperature")
	}

	h.submit(t, logic.KindHumidity, 40, t0.Add(time.Second))
	r = h.sync(t)
	if !r.HasData || r.Snapshot.Temperature != 99 || r.Snapshot.Humidity != 40 {
		t.Errorf("status: got %+v", r)
	}

	if got := h.sink.WaitFor(1, 50*time.Millisecond); len(got) != 0 {
		t.Errorf("expected no notifications, got %d", len(got))
	}
}

func TestSetThresholdAppliesToNextReading(t *testing.T) {
	h := start(t, channels("", "alerts"), nil)

	h.submit(t, logic.KindTemperature, 28, t0)
	r := h.dispatch(t, Command{Name: CmdSetThreshold, Threshold: 25})
	if r.Threshold != 25 || r.SaveErr != nil {
		t.Errorf("reply: got %+v", r)
	}
	if got := h.store.Config().TempThreshold; got != 25 {
		t.Errorf("stored threshold: got %v, want 25", got)
	}

	h.submit(t, logic.KindTemperature, 28, t0.Add(time.Second))
	h.sync(t)

	got := h.sink.WaitFor(1, waitTimeout)
	if len(got) != 1 || got[0].Threshold != 25 {
		t.Fatalf("expected one alert at threshold 25, got %+v", got)
	}
}

func TestSetChannelsUseInvokingChannel(t *testing.T) {
	h := start(t, channels("", ""), nil)

	r := h.dispatch(t, Command{Name: CmdSetLogChannel, ChannelID: "c-log"})
	if r.Command != CmdSetLogChannel || r.ChannelID != "c-log" {
		t.Errorf("log reply: got %+v", r)
	}
	r = h.dispatch(t, Command{Name: CmdSetAlertChannel, ChannelID: "c-alert"})
	if r.ChannelID != "c-alert" {
		t.Errorf("alert reply: got %+v", r)
	}

	cfg := h.store.Config()
	if cfg.LogChannelID != "c-log" || cfg.AlertChannelID != "c-alert" {
		t.Errorf("stored config: got %+v", cfg)
	}

	h.submit(t, logic.KindTemperature, 31, t0)
	h.sync(t)
	h.sched.Advance(logic.LogDelay)
	h.sync(t)

	got := h.sink.WaitFor(2, waitTimeout)
	if len(got) != 2 {
		t.Fatalf("expected alert and log, got %d", len(got))
	}
	if got[0].ChannelID != "c-alert" || got[1].ChannelID != "c-log" {
		t.Errorf("channels: got %q, %q", got[0].ChannelID, got[1].ChannelID)
	}
}

func TestSaveErrorKeepsChange(t *testing.T) {
	h := start(t, channels("", ""), nil)
	h.store.mu.Lock()
	h.store.saveErr = errors.New("disk full")
	h.store.mu.Unlock()

	r := h.dispatch(t, Command{Name: CmdSetAlertChannel, ChannelID: "a"})
	if r.SaveErr == nil {
		t.Error("expected SaveErr in reply")
	}
	if h.store.Config().AlertChannelID != "a" {
		t.Error("in-memory change should stand after a failed save")
	}
}

func TestUnknownCommand(t *testing.T) {
	h := start(t, channels("", ""), nil)

	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	_, err := h.loop.Dispatch(ctx, Command{Name: "reboot"})
	if !errors.Is(err, ErrUnknownCommand) {
		t.Errorf("got %v, want ErrUnknownCommand", err)
	}
	h.store.mu.Lock()
	saves := h.store.saves
	h.store.mu.Unlock()
	if saves != 0 {
		t.Errorf("unknown command must not touch config, saves=%d", saves)
	}
}

func TestSendFailureDoesNotStopDelivery(t *testing.T) {
	h := start(t, channels("", "alerts"), nil)
	h.sink.SetSendError(errors.New("discord down"))

	h.submit(t, logic.KindTemperature, 35, t0)
	h.sync(t)
	if n := h.sink.WaitAttempts(1, waitTimeout); n != 1 {
		t.Fatalf("send attempts: got %d, want 1", n)
	}
	h.sink.SetSendError(nil)

	h.submit(t, logic.KindTemperature, 35, t0.Add(10*time.Minute))
	h.sync(t)

	got := h.sink.WaitFor(1, waitTimeout)
	if len(got) != 1 || got[0].Type != logic.EventSustainedHigh {
		t.Fatalf("expected SUSTAINED_HIGH after failed OVER_THRESHOLD, got %+v", got)
	}
}

func TestInvalidReadingKeepsExcursion(t *testing.T) {
	tr := status.NewTracker(t0, status.Config{})
	h := start(t, channels("", "alerts"), tr)

	h.submit(t, logic.KindTemperature, 35, t0)
	h.loop.Submit(logic.Reading{Kind: logic.KindTemperature, Value: math.NaN(), Time: t0.Add(time.Minute)})
	h.sync(t)

	snap := tr.Snapshot()
	if !snap.Alert.InExcursion() || !snap.Alert.AlertSent {
		t.Errorf("alert state after NaN: got %+v", snap.Alert)
	}
	if snap.Counts.Invalid != 1 {
		t.Errorf("Counts.Invalid: got %d, want 1", snap.Counts.Invalid)
	}
}

func TestTrackerReflectsConfig(t *testing.T) {
	tr := status.NewTracker(t0, status.Config{})
	h := start(t, channels("l", ""), tr)

	h.sync(t)
	if got := tr.Snapshot().Bot.LogChannelID; got != "l" {
		t.Errorf("initial Bot.LogChannelID: got %q", got)
	}

	h.dispatch(t, Command{Name: CmdSetThreshold, Threshold: 42})
	if got := tr.Snapshot().Bot.TempThreshold; got != 42 {
		t.Errorf("Bot.TempThreshold: got %v, want 42", got)
	}
}

func TestSubmitDropsWhenFull(t *testing.T) {
	l := New(Options{Store: newMemStore(channels("", "")), Sink: NewFakeSink(), Scheduler: NewFakeScheduler(t0), QueueSize: 1})

	r := logic.Reading{Kind: logic.KindHumidity, Value: 50, Time: t0}
	if !l.Submit(r) {
		t.Fatal("first submit should be accepted")
	}
	if l.Submit(r) {
		t.Error("second submit should be dropped when queue is full")
	}
}

func TestShutdownCancelsPendingFlush(t *testing.T) {
	h := start(t, channels("logs", ""), nil)

	h.submit(t, logic.KindTemperature, 25, t0)
	h.sync(t)
	if h.sched.Pending() != 1 {
		t.Fatalf("expected a pending flush")
	}

	h.stop()

	if n := h.sched.Pending(); n != 0 {
		t.Errorf("pending flushes after shutdown: got %d, want 0", n)
	}

	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	if _, err := h.loop.Dispatch(ctx, Command{Name: CmdStatus}); !errors.Is(err, ErrStopped) {
		t.Errorf("Dispatch after stop: got %v, want ErrStopped", err)
	}
}
