// Package status provides a thread-safe status tracker for the fan-controller daemon.
// It is read by the HTTP handlers and the heartbeat publisher.
package status

import (
	"sort"
	"sync"
	"time"

	"github.com/sweeney/fan-controller/internal/logic"
)

// Config contains daemon configuration for display.
type Config struct {
	SampleMs    int64
	HeartbeatMs int64
	Broker      string
	StatePrefix string
	TopicPrefix string
	HTTPPort    string
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type and safe to use after the lock is released.
type Snapshot struct {
	Fans          []logic.Snapshot // sorted by name
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Fan returns the snapshot of the named fan.
func (s Snapshot) Fan(name string) (logic.Snapshot, bool) {
	for _, f := range s.Fans {
		if f.Name == name {
			return f, true
		}
	}
	return logic.Snapshot{}, false
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu        sync.RWMutex
	snap      Snapshot
	fans      map[string]logic.Snapshot
	published map[string][]byte
	now       func() time.Time
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
		fans:      make(map[string]logic.Snapshot),
		published: make(map[string][]byte),
		now:       time.Now,
	}
}

// UpdateFan stores the latest snapshot of a fan and returns its status
// document. changed is false when the document is identical to the one
// returned by the previous call for the same fan.
func (t *Tracker) UpdateFan(fan logic.Snapshot) (payload []byte, changed bool) {
	payload = FormatFanJSON(fan)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.fans[fan.Name] = fan
	prev, seen := t.published[fan.Name]
	if seen && string(prev) == string(payload) {
		return payload, false
	}
	t.published[fan.Name] = payload
	return payload, true
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	s.Fans = make([]logic.Snapshot, 0, len(t.fans))
	for _, f := range t.fans {
		s.Fans = append(s.Fans, f)
	}
	t.mu.RUnlock()

	sort.Slice(s.Fans, func(i, j int) bool { return s.Fans[i].Name < s.Fans[j].Name })
	s.Now = t.now()
	return s
}
