package internal

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/sweeney/fan-controller/internal/config"
	"github.com/sweeney/fan-controller/internal/logic"
	"github.com/sweeney/fan-controller/internal/mqtt"
	"github.com/sweeney/fan-controller/internal/sched"
	"github.com/sweeney/fan-controller/internal/state"
	"github.com/sweeney/fan-controller/internal/status"
)

// homeAssistant publishes each command and then reports the new state the
// way mqtt_statestream would, so the coordinator sees its own commands.
type homeAssistant struct {
	dispatch *mqtt.Dispatcher
	store    *state.Store
}

func (h homeAssistant) SetActuator(point string, on bool) error {
	if err := h.dispatch.SetActuator(point, on); err != nil {
		return err
	}
	value := logic.StateOff
	if on {
		value = logic.StateOn
	}
	h.store.Set(point, value)
	return nil
}

type house struct {
	store *state.Store
	clock *sched.Fake
	pub   *mqtt.FakePublisher
	log   *zap.SugaredLogger
	logs  *observer.ObservedLogs
}

func newHouse(initial map[string]string) *house {
	h := &house{
		store: state.NewStore(),
		clock: sched.NewFake(time.Date(2026, 1, 1, 18, 0, 0, 0, time.UTC)),
		pub:   mqtt.NewFakePublisher(),
	}
	core, logs := observer.New(zap.InfoLevel)
	h.log, h.logs = zap.New(core).Sugar(), logs
	for point, value := range initial {
		h.store.Set(point, value)
	}
	return h
}

func (h *house) fan(t *testing.T, name string, args map[string]any) *logic.Coordinator {
	t.Helper()
	f, err := config.DecodeFan(name, args)
	require.NoError(t, err)

	c, err := logic.NewCoordinator(f.Logic(), logic.Deps{
		States:    h.store,
		Scheduler: h.clock,
		Actuator:  homeAssistant{dispatch: mqtt.NewDispatcher(h.pub), store: h.store},
		Notifier:  mqtt.NewNotifier(h.pub, h.log, f.HALogging),
	})
	require.NoError(t, err)
	c.Start(h.store)
	t.Cleanup(c.Stop)
	return c
}

// messages returns the routine coordinator messages that were logged.
func (h *house) messages() []string {
	entries := h.logs.FilterLevelExact(zap.InfoLevel).All()
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Message)
	}
	return out
}

func bathroomArgs() map[string]any {
	return map[string]any{
		"light":    "light.bathroom",
		"fan":      "switch.bathroom_fan",
		"motion":   "binary_sensor.bathroom_motion",
		"humidity": "sensor.bathroom_humidity",
		"presence": "group.family",
	}
}

func TestIntegrationShowerEvening(t *testing.T) {
	h := newHouse(map[string]string{
		"light.bathroom":           "on",
		"switch.bathroom_fan":      "off",
		"sensor.bathroom_humidity": "48",
		"group.family":             "home",
	})
	c := h.fan(t, "bathroom", bathroomArgs())

	for i := 0; i < 4; i++ {
		require.False(t, c.Sample())
		h.clock.Advance(logic.SampleInterval)
	}

	h.store.Set("sensor.bathroom_humidity", "57.5")
	require.True(t, c.Sample(), "shower steam")
	require.True(t, c.IsLive(logic.SlotBackup))

	h.clock.Advance(10 * time.Minute)
	h.store.Set("light.bathroom", "off")
	require.True(t, c.IsLive(logic.SlotPrimary))
	require.False(t, c.IsLive(logic.SlotBackup))

	h.clock.Advance(logic.DefaultPrimaryDelay)

	assert.Equal(t, []mqtt.Command{
		{Point: "switch.bathroom_fan", On: true},
		{Point: "switch.bathroom_fan", On: false},
	}, h.pub.CommandsSnapshot())
	assert.Equal(t, []string{
		"Internal trend sensor triggered, turning on fan",
		"Detected light shutdown, starting fan timer",
		"Turning off fan from main timer",
	}, h.messages())
	assert.Zero(t, h.clock.Pending())

	counts := c.Snapshot().Counts
	assert.Equal(t, logic.Counts{FanOn: 1, PrimaryOff: 1, TrendTriggers: 1}, counts)
}

func TestIntegrationForgottenFanUsesBackup(t *testing.T) {
	h := newHouse(map[string]string{"light.bathroom": "on", "switch.bathroom_fan": "off"})
	c := h.fan(t, "bathroom", map[string]any{"light": "light.bathroom", "fan": "switch.bathroom_fan"})

	h.store.Set("switch.bathroom_fan", "on")
	require.True(t, c.IsLive(logic.SlotBackup))

	h.clock.Advance(logic.BackupDelay - time.Second)
	assert.Empty(t, h.pub.Commands)

	h.clock.Advance(time.Second)
	assert.Equal(t, []mqtt.Command{{Point: "switch.bathroom_fan", On: false}}, h.pub.CommandsSnapshot())
	assert.Equal(t, []string{"Detected manual fan activation", "Turning off fan from backup timer"}, h.messages())
	assert.Empty(t, h.pub.Notifications, "routine messages are not notifications")
}

func TestIntegrationBrokerLateRetainedStates(t *testing.T) {
	h := newHouse(nil)
	c := h.fan(t, "bathroom", bathroomArgs())
	require.False(t, c.Sample(), "no humidity yet")

	h.store.Set("switch.bathroom_fan", "on")
	h.store.Set("light.bathroom", "off")
	h.store.Set("sensor.bathroom_humidity", "55")
	h.store.Set("group.family", "home")
	require.True(t, c.IsLive(logic.SlotPrimary))

	h.clock.Advance(logic.DefaultPrimaryDelay)
	assert.Equal(t, []mqtt.Command{{Point: "switch.bathroom_fan", On: false}}, h.pub.CommandsSnapshot())

	for i := 0; i < logic.WindowSize; i++ {
		require.False(t, c.Sample(), "steady humidity is not a rise")
	}
	assert.Len(t, h.pub.Commands, 1)
}

func TestIntegrationMotionKeepsFanRunning(t *testing.T) {
	h := newHouse(map[string]string{
		"light.bathroom":                "off",
		"switch.bathroom_fan":           "on",
		"binary_sensor.bathroom_motion": "off",
	})
	c := h.fan(t, "bathroom", map[string]any{
		"light":  "light.bathroom",
		"fan":    "switch.bathroom_fan",
		"motion": "binary_sensor.bathroom_motion",
	})
	require.True(t, c.IsLive(logic.SlotPrimary), "startup reconciliation")

	h.clock.Advance(5 * time.Minute)
	h.store.Set("binary_sensor.bathroom_motion", "on")
	assert.False(t, c.IsLive(logic.SlotPrimary))
	assert.True(t, c.IsLive(logic.SlotBackup))

	h.clock.Advance(20 * time.Minute)
	h.store.Set("binary_sensor.bathroom_motion", "off")
	assert.True(t, c.IsLive(logic.SlotMotion))

	h.clock.Advance(logic.MotionDelay)
	assert.True(t, c.IsLive(logic.SlotPrimary))
	assert.False(t, c.IsLive(logic.SlotBackup))
	assert.Empty(t, h.pub.Commands)

	h.clock.Advance(logic.DefaultPrimaryDelay)
	assert.Equal(t, []mqtt.Command{{Point: "switch.bathroom_fan", On: false}}, h.pub.CommandsSnapshot())
	assert.Zero(t, h.clock.Pending())
}

func TestIntegrationAwayBlocksTrend(t *testing.T) {
	h := newHouse(map[string]string{
		"light.bathroom":           "off",
		"switch.bathroom_fan":      "off",
		"sensor.bathroom_humidity": "50",
		"group.family":             "not_home",
	})
	c := h.fan(t, "bathroom", bathroomArgs())

	h.store.Set("sensor.bathroom_humidity", "70")
	assert.True(t, c.Sample(), "rise is still detected")
	assert.Empty(t, h.pub.Commands, "nobody home")
	assert.Zero(t, c.Snapshot().Counts.TrendTriggers)
}

func TestIntegrationPublishFailureDoesNotCrash(t *testing.T) {
	h := newHouse(map[string]string{"light.bathroom": "off", "switch.bathroom_fan": "on"})
	c := h.fan(t, "bathroom", map[string]any{"light": "light.bathroom", "fan": "switch.bathroom_fan"})
	h.pub.PublishError = errors.New("broker gone")

	assert.NotPanics(t, func() { h.clock.Advance(logic.DefaultPrimaryDelay) })

	snap := c.Snapshot()
	assert.Equal(t, 1, snap.Counts.CommandErrors)
	assert.Equal(t, 1, snap.Counts.PrimaryOff)
	assert.Equal(t, "on", snap.Fan, "fan never reported off")
	assert.Empty(t, h.pub.Notifications, "notifications fail too")
	assert.Equal(t, 1, h.logs.FilterMessage("Switching switch.bathroom_fan off failed: broker gone").Len())
}

func TestIntegrationFansAreIndependent(t *testing.T) {
	h := newHouse(map[string]string{
		"light.bathroom":      "on",
		"switch.bathroom_fan": "on",
		"light.ensuite":       "on",
		"switch.ensuite_fan":  "on",
	})
	bath := h.fan(t, "bathroom", map[string]any{"light": "light.bathroom", "fan": "switch.bathroom_fan", "delay": 120})
	ensuite := h.fan(t, "ensuite", map[string]any{"light": "light.ensuite", "fan": "switch.ensuite_fan"})

	h.store.Set("light.bathroom", "off")
	assert.True(t, bath.IsLive(logic.SlotPrimary))
	assert.False(t, ensuite.IsLive(logic.SlotPrimary))

	h.clock.Advance(2 * time.Minute)
	assert.Equal(t, []mqtt.Command{{Point: "switch.bathroom_fan", On: false}}, h.pub.CommandsSnapshot())

	got, _ := h.store.Get("switch.ensuite_fan")
	assert.Equal(t, "on", got)
}

func TestIntegrationLogMirrorAndStatus(t *testing.T) {
	h := newHouse(map[string]string{"light.bathroom": "on", "switch.bathroom_fan": "on"})
	args := map[string]any{"light": "light.bathroom", "fan": "switch.bathroom_fan", "halogging": "true"}
	c := h.fan(t, "bathroom", args)

	h.store.Set("light.bathroom", "off")

	require.Len(t, h.pub.Logs, 1)
	assert.Equal(t, "bathroom", h.pub.Logs[0].Source)
	assert.Equal(t, "Detected light shutdown, starting fan timer", h.pub.Logs[0].Message)

	tracker := status.NewTracker(h.clock.Now(), status.Config{})
	payload, changed := tracker.UpdateFan(c.Snapshot())
	require.True(t, changed)
	require.NoError(t, h.pub.PublishStatus("bathroom", payload))

	var doc status.FanJSON
	require.NoError(t, json.Unmarshal(h.pub.Statuses[0].Payload, &doc))
	assert.Equal(t, "off", doc.Light)
	assert.True(t, doc.Timers["primary"].Live)
	assert.Equal(t, h.clock.Now().Add(logic.DefaultPrimaryDelay).UTC().Format(time.RFC3339), doc.Timers["primary"].Deadline)
}
