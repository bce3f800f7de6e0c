package status

import (
	"encoding/json"
	"time"

	"github.com/sweeney/fan-controller/internal/logic"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string     `json:"event,omitempty"`
	Reason        string     `json:"reason,omitempty"`
	UptimeSeconds int64      `json:"uptime_seconds"`
	StartTime     string     `json:"start_time"`
	Timestamp     string     `json:"timestamp"`
	MQTT          MQTTStatus `json:"mqtt"`
	Fans          []FanJSON  `json:"fans"`
	Config        ConfigJSON `json:"config"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// FanJSON is the JSON representation of one fan, also published as the
// fan's retained status document.
type FanJSON struct {
	Name     string              `json:"name"`
	Light    string              `json:"light"`
	Fan      string              `json:"fan"`
	Motion   string              `json:"motion,omitempty"`
	Presence string              `json:"presence,omitempty"`
	Humidity *HumidityJSON       `json:"humidity,omitempty"`
	Timers   map[string]TimerJSON `json:"timers"`
	Counts   CountsJSON          `json:"counts"`
}

// HumidityJSON reports the trend detector's view.
type HumidityJSON struct {
	Last    float64 `json:"last"`
	Average float64 `json:"average"`
}

// TimerJSON reports one timer slot.
type TimerJSON struct {
	Live     bool   `json:"live"`
	Deadline string `json:"deadline,omitempty"`
}

// CountsJSON is the JSON representation of coordinator counters.
type CountsJSON struct {
	FanOn         int `json:"fan_on"`
	PrimaryOff    int `json:"primary_off"`
	BackupOff     int `json:"backup_off"`
	TrendTriggers int `json:"trend_triggers"`
	CommandErrors int `json:"command_errors"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	SampleMs    int64  `json:"sample_ms"`
	HeartbeatMs int64  `json:"heartbeat_ms"`
	Broker      string `json:"broker"`
	StatePrefix string `json:"state_prefix"`
	TopicPrefix string `json:"topic_prefix"`
	HTTPPort    string `json:"http_port"`
}

func unknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

func buildFan(f logic.Snapshot) FanJSON {
	out := FanJSON{
		Name:     f.Name,
		Light:    unknown(f.Light),
		Fan:      unknown(f.Fan),
		Motion:   f.Motion,
		Presence: f.Presence,
		Timers:   make(map[string]TimerJSON, len(f.Slots)),
		Counts: CountsJSON{
			FanOn:         f.Counts.FanOn,
			PrimaryOff:    f.Counts.PrimaryOff,
			BackupOff:     f.Counts.BackupOff,
			TrendTriggers: f.Counts.TrendTriggers,
			CommandErrors: f.Counts.CommandErrors,
		},
	}
	if f.TrendEnabled {
		out.Humidity = &HumidityJSON{Last: f.Humidity, Average: f.HumidityAverage}
	}
	for _, s := range f.Slots {
		tj := TimerJSON{Live: s.Live}
		if s.Live {
			tj.Deadline = s.Deadline.UTC().Format(time.RFC3339)
		}
		out.Timers[s.Slot.String()] = tj
	}
	return out
}

func buildInner(snap Snapshot) StatusInner {
	fans := make([]FanJSON, 0, len(snap.Fans))
	for _, f := range snap.Fans {
		fans = append(fans, buildFan(f))
	}

	return StatusInner{
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Fans:          fans,
		Config: ConfigJSON{
			SampleMs:    snap.Config.SampleMs,
			HeartbeatMs: snap.Config.HeartbeatMs,
			Broker:      snap.Config.Broker,
			StatePrefix: snap.Config.StatePrefix,
			TopicPrefix: snap.Config.TopicPrefix,
			HTTPPort:    snap.Config.HTTPPort,
		},
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}

// FormatFanJSON returns the retained status document of one fan.
func FormatFanJSON(f logic.Snapshot) []byte {
	data, _ := json.Marshal(buildFan(f))
	return data
}
