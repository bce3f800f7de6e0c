package logic

import (
	"fmt"
	"sync"
	"time"
)

// Coordinator decides when one fan is switched off. It owns the primary,
// backup and motion slots and reacts to light, fan and motion transitions,
// timer fires, and humidity trend ticks.
//
// All handlers are serialized by a single mutex. Commands and notifications
// produced by a handler run after the mutex is released, so an actuator that
// echoes the new fan state synchronously can re-enter the coordinator.
type Coordinator struct {
	cfg    FanConfig
	states StateReader
	sched  Scheduler
	act    Actuator
	notify Notifier

	mu          sync.Mutex
	slots       *Slots
	trend       *TrendDetector
	counts      Counts
	pending     []func()
	unsubscribe []func()
}

// NewCoordinator validates cfg and creates a coordinator with empty slots.
// When a humidity point is configured and already has a reading, the trend
// detector is primed with it; otherwise the first sampled reading primes it.
func NewCoordinator(cfg FanConfig, deps Deps) (*Coordinator, error) {
	if cfg.Light == "" {
		return nil, fmt.Errorf("%s: %w: light", cfg.Name, ErrMissingPoint)
	}
	if cfg.Fan == "" {
		return nil, fmt.Errorf("%s: %w: fan", cfg.Name, ErrMissingPoint)
	}
	if deps.States == nil || deps.Scheduler == nil || deps.Actuator == nil || deps.Notifier == nil {
		return nil, fmt.Errorf("%s: %w", cfg.Name, ErrMissingDependency)
	}
	if cfg.PrimaryDelay <= 0 {
		cfg.PrimaryDelay = DefaultPrimaryDelay
	}

	c := &Coordinator{
		cfg:    cfg,
		states: deps.States,
		sched:  deps.Scheduler,
		act:    deps.Actuator,
		notify: deps.Notifier,
		slots:  NewSlots(deps.Scheduler),
	}
	if cfg.Humidity != "" {
		if raw, ok := c.states.Get(cfg.Humidity); ok {
			c.trend = NewTrendDetector(ParseReading(raw), WindowSize)
		}
	}
	return c, nil
}

// Config returns the coordinator's configuration with defaults applied.
func (c *Coordinator) Config() FanConfig {
	return c.cfg
}

// Start subscribes to the configured entities and reconciles timers with the
// current device state: a fan left running with the light off gets a primary
// countdown, as continuous operation would have produced.
func (c *Coordinator) Start(sub Subscriber) {
	c.mu.Lock()
	c.unsubscribe = append(c.unsubscribe,
		sub.Subscribe(c.cfg.Light, c.LightChanged),
		sub.Subscribe(c.cfg.Fan, c.FanChanged),
	)
	if c.cfg.Motion != "" {
		c.unsubscribe = append(c.unsubscribe, sub.Subscribe(c.cfg.Motion, c.MotionChanged))
	}
	c.mu.Unlock()

	c.do(c.reconcile)
}

// reconcile starts the primary countdown for a fan running with the light
// off. It runs at Start and again when the light or fan is first observed,
// since the mirror may still be empty at Start.
func (c *Coordinator) reconcile() {
	light, _ := c.states.Get(c.cfg.Light)
	if !c.fanOn() || light != StateOff || c.slots.IsLive(SlotPrimary) {
		return
	}
	c.logf("Startup: Fan is on and the light is off. Starting fan shutdown timer")
	c.slots.Cancel(SlotBackup)
	c.restart(SlotPrimary)
}

// Stop unsubscribes and cancels every live slot.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	unsub := c.unsubscribe
	c.unsubscribe = nil
	c.slots.CancelAll()
	c.mu.Unlock()

	for _, fn := range unsub {
		fn()
	}
}

// LightChanged handles a light transition.
func (c *Coordinator) LightChanged(_, from, to string) {
	c.do(func() {
		if from == "" {
			c.reconcile()
			return
		}
		if !c.fanOn() {
			return
		}
		switch {
		case from == StateOn && to == StateOff:
			// Motion already handed off to the primary countdown.
			if c.slots.IsLive(SlotPrimary) {
				return
			}
			c.slots.Cancel(SlotBackup)
			c.restart(SlotPrimary)
			c.logf("Detected light shutdown, starting fan timer")
		case from == StateOff && to == StateOn:
			c.slots.Cancel(SlotPrimary)
			c.restart(SlotBackup)
			c.slots.Cancel(SlotMotion)
		}
	})
}

// MotionChanged handles a motion sensor transition.
func (c *Coordinator) MotionChanged(_, from, to string) {
	c.do(func() {
		if !c.fanOn() {
			return
		}
		switch {
		case from == StateOn && to == StateOff:
			c.restart(SlotMotion)
		case from == StateOff && to == StateOn:
			c.slots.Cancel(SlotMotion)
			c.slots.Cancel(SlotPrimary)
			c.restart(SlotBackup)
		}
	})
}

// FanChanged handles a fan transition, including ones caused by this
// coordinator's own commands.
func (c *Coordinator) FanChanged(_, from, to string) {
	c.do(func() {
		switch {
		case from == "":
			c.reconcile()
		case from == StateOff && to == StateOn:
			if c.slots.IsLive(SlotBackup) {
				return
			}
			c.logf("Detected manual fan activation")
			c.restart(SlotBackup)
		case from == StateOn && to == StateOff:
			c.slots.Cancel(SlotBackup)
			c.slots.Cancel(SlotPrimary)
			// Motion too: a pending motion fire would restart primary for a fan
			// that is already off.
			c.slots.Cancel(SlotMotion)
		}
	})
}

// Sample runs one humidity tick. It reports whether the reading was a rapid
// rise. Without a humidity point it does nothing. Until the point has been
// observed ticks are skipped, and the first observed reading primes the
// detector instead of being compared.
func (c *Coordinator) Sample() bool {
	if c.cfg.Humidity == "" {
		return false
	}
	var rise bool
	c.do(func() {
		raw, ok := c.states.Get(c.cfg.Humidity)
		if c.trend == nil {
			if ok {
				c.trend = NewTrendDetector(ParseReading(raw), WindowSize)
			}
			return
		}
		rise = c.trend.Ingest(ParseReading(raw))
		if rise {
			c.humidityRise()
		}
	})
	return rise
}

// Snapshot returns a copy of the coordinator's current state.
func (c *Coordinator) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Snapshot{
		Name:   c.cfg.Name,
		Slots:  c.slots.snapshot(),
		Counts: c.counts,
	}
	s.Light, _ = c.states.Get(c.cfg.Light)
	s.Fan, _ = c.states.Get(c.cfg.Fan)
	if c.cfg.Motion != "" {
		s.Motion, _ = c.states.Get(c.cfg.Motion)
	}
	if c.cfg.Presence != "" {
		s.Presence, _ = c.states.Get(c.cfg.Presence)
	}
	s.TrendEnabled = c.cfg.Humidity != ""
	if c.trend != nil {
		s.Humidity = c.trend.Last()
		s.HumidityAverage = c.trend.Average()
	}
	return s
}

// IsLive reports whether slot has a pending callback.
func (c *Coordinator) IsLive(slot Slot) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.slots.IsLive(slot)
}

func (c *Coordinator) humidityRise() {
	fan, _ := c.states.Get(c.cfg.Fan)
	if fan != StateOff {
		return
	}
	if c.cfg.Presence != "" {
		if p, _ := c.states.Get(c.cfg.Presence); p != StateHome {
			return
		}
	}
	c.logf("Internal trend sensor triggered, turning on fan")
	c.counts.TrendTriggers++
	c.counts.FanOn++
	c.command(true)
	c.restart(SlotBackup)
	c.slots.Cancel(SlotPrimary)
}

func (c *Coordinator) fired(slot Slot, gen uint64) {
	c.do(func() {
		if !c.slots.Claim(slot, gen) {
			return
		}
		switch slot {
		case SlotPrimary:
			c.logf("Turning off fan from main timer")
			c.slots.Cancel(SlotBackup)
			c.counts.PrimaryOff++
			c.command(false)
		case SlotBackup:
			c.logf("Turning off fan from backup timer")
			c.slots.Cancel(SlotPrimary)
			c.counts.BackupOff++
			c.command(false)
		case SlotMotion:
			c.logf("Motion timer triggered, starting fan shutdown timer")
			c.restart(SlotPrimary)
			c.slots.Cancel(SlotBackup)
		}
	})
}

func (c *Coordinator) restart(slot Slot) {
	c.slots.Restart(slot, c.delay(slot), c.fired)
}

func (c *Coordinator) delay(slot Slot) time.Duration {
	switch slot {
	case SlotBackup:
		return BackupDelay
	case SlotMotion:
		return MotionDelay
	}
	return c.cfg.PrimaryDelay
}

func (c *Coordinator) fanOn() bool {
	fan, _ := c.states.Get(c.cfg.Fan)
	return fan == StateOn
}

// do runs fn under the mutex, then the effects fn queued.
func (c *Coordinator) do(fn func()) {
	c.mu.Lock()
	fn()
	effects := c.pending
	c.pending = nil
	c.mu.Unlock()

	for _, e := range effects {
		e()
	}
}

func (c *Coordinator) command(on bool) {
	c.pending = append(c.pending, func() {
		err := c.act.SetActuator(c.cfg.Fan, on)
		if err == nil {
			return
		}
		c.mu.Lock()
		c.counts.CommandErrors++
		c.mu.Unlock()
		c.notify.Notify(fmt.Sprintf("Switching %s %s failed: %v", c.cfg.Fan, onOff(on), err), c.cfg.Name)
	})
}

func (c *Coordinator) logf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	c.pending = append(c.pending, func() {
		c.notify.Log(msg, c.cfg.Name)
	})
}

func onOff(on bool) string {
	if on {
		return StateOn
	}
	return StateOff
}
