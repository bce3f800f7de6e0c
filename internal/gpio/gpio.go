// Package gpio drives fan relays wired to GPIO output lines.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

import (
	"fmt"
	"sync"

	"github.com/sweeney/fan-controller/internal/logic"
)

// Relay switches a single output line.
type Relay interface {
	// Set drives the line active (on) or inactive.
	Set(on bool) error

	// Close releases GPIO resources.
	Close() error
}

// StateWriter receives the fan state after the relay has switched.
type StateWriter interface {
	Set(point, value string)
}

// Actuator drives a fan through its relay. A relay has no state topic, so
// after every successful switch the new state is written to the store, and
// the coordinator sees the transition as if Home Assistant had reported it.
type Actuator struct {
	point  string
	relay  Relay
	states StateWriter

	mu sync.Mutex
}

var _ logic.Actuator = (*Actuator)(nil)

// NewActuator creates an Actuator for the fan entity point.
func NewActuator(point string, relay Relay, states StateWriter) *Actuator {
	return &Actuator{point: point, relay: relay, states: states}
}

// SetActuator switches the relay and reports the new state.
func (a *Actuator) SetActuator(point string, on bool) error {
	if point != a.point {
		return fmt.Errorf("gpio: relay drives %s, not %s", a.point, point)
	}

	a.mu.Lock()
	err := a.relay.Set(on)
	a.mu.Unlock()
	if err != nil {
		return fmt.Errorf("gpio: switch %s: %w", point, err)
	}

	value := logic.StateOff
	if on {
		value = logic.StateOn
	}
	a.states.Set(point, value)
	return nil
}

// Reset switches the relay off and records the fan as off.
func (a *Actuator) Reset() error {
	return a.SetActuator(a.point, false)
}

// Close releases the relay.
func (a *Actuator) Close() error {
	return a.relay.Close()
}
