// Package logic contains pure business logic for bathroom fan control.
// This package has NO external dependencies (no MQTT, GPIO, OS, or time.Sleep).
// Time and delayed callbacks are always injected through a Scheduler.
package logic

import (
	"errors"
	"time"
)

// Entity states as mirrored from the home automation platform.
const (
	StateOn   = "on"
	StateOff  = "off"
	StateHome = "home"
)

const (
	// DefaultPrimaryDelay is the normal shutoff delay when none is configured.
	DefaultPrimaryDelay = 600 * time.Second
	// BackupDelay is the safety ceiling on how long the fan may run.
	BackupDelay = 3600 * time.Second
	// MotionDelay is the grace period after motion stops.
	MotionDelay = 600 * time.Second
	// SampleInterval is the humidity sampling cadence. 60 samples = 15 minutes.
	SampleInterval = 15 * time.Second
	// WindowSize is the number of humidity samples averaged.
	WindowSize = 60
	// RiseThreshold is how far above the rolling average a sample must be
	// to count as a rapid humidity rise.
	RiseThreshold = 5.0
)

var (
	// ErrMissingPoint is returned when a required entity is not configured.
	ErrMissingPoint = errors.New("required point not configured")
	// ErrMissingDependency is returned when a collaborator is nil.
	ErrMissingDependency = errors.New("missing dependency")
)

// Handle identifies a scheduled callback. The zero Handle is never issued.
type Handle uint64

// Scheduler runs single-shot callbacks after a delay.
type Scheduler interface {
	// After schedules fn to run once after d and returns its handle.
	After(d time.Duration, fn func()) Handle
	// Cancel stops a pending callback. Unknown or already fired handles are a no-op.
	Cancel(h Handle)
	// Now returns the scheduler's current time.
	Now() time.Time
}

// StateReader reads the last known value of an entity.
type StateReader interface {
	Get(point string) (string, bool)
}

// Subscriber delivers entity state changes. The returned func unsubscribes.
type Subscriber interface {
	Subscribe(point string, fn func(point, old, new string)) func()
}

// Actuator switches a device on or off.
type Actuator interface {
	SetActuator(point string, on bool) error
}

// Notifier delivers human readable messages. Delivery is fire-and-forget.
type Notifier interface {
	// Log records a routine decision such as a timer starting or firing.
	Log(message, title string)
	// Notify alerts a person. Only failures that leave a fan in the wrong
	// state are reported this way.
	Notify(message, title string)
}

// FanConfig binds one coordinator to its entities.
// Motion, Presence and Humidity are optional.
type FanConfig struct {
	Name         string
	Light        string
	Fan          string
	Motion       string
	Presence     string
	Humidity     string
	PrimaryDelay time.Duration
}

// Deps are the platform collaborators a Coordinator drives.
type Deps struct {
	States    StateReader
	Scheduler Scheduler
	Actuator  Actuator
	Notifier  Notifier
}

// Counts tracks the decisions a coordinator has made since startup.
type Counts struct {
	FanOn         int
	PrimaryOff    int
	BackupOff     int
	TrendTriggers int
	CommandErrors int
}

// SlotSnapshot is the state of one timer slot.
type SlotSnapshot struct {
	Slot     Slot
	Live     bool
	Deadline time.Time
}

// Snapshot is a point-in-time view of a coordinator.
type Snapshot struct {
	Name            string
	Light           string
	Fan             string
	Motion          string
	Presence        string
	TrendEnabled    bool
	Humidity        float64
	HumidityAverage float64
	Slots           []SlotSnapshot
	Counts          Counts
}
