// Package mqtt connects the fan coordinators to Home Assistant over MQTT:
// entity states come in from mqtt_statestream topics, and commands,
// notifications, status and lifecycle events go out.
package mqtt

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Publisher publishes fan-controller messages to the broker.
// Publish failures are returned but must never crash the process.
type Publisher interface {
	// PublishCommand switches point on or off.
	PublishCommand(point string, on bool) error
	// PublishNotification delivers a human readable message.
	PublishNotification(n Notification) error
	// PublishLog mirrors a message to the log sensor.
	PublishLog(line LogLine) error
	// PublishLogAttributes publishes the log sensor's attributes.
	PublishLogAttributes(attrs LogAttributes) error
	// PublishStatus publishes a fan's retained status document.
	PublishStatus(fan string, payload []byte) error
	// PublishSystem sends a system lifecycle event.
	PublishSystem(event SystemEvent) error
	// PublishDiscovery publishes a Home Assistant discovery config.
	PublishDiscovery(cfg DiscoveryConfig) error
	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// StateWriter receives entity states read from the broker.
type StateWriter interface {
	Set(point, value string)
}

// Topics derives every topic the controller uses.
type Topics struct {
	// State is the mqtt_statestream base topic, e.g. "homeassistant".
	State string
	// Prefix is the controller's own base topic, e.g. "fan-controller".
	Prefix string
	// Discovery is the Home Assistant discovery prefix; empty disables discovery.
	Discovery string
}

// StateFilter is the subscription covering every mirrored entity state.
func (t Topics) StateFilter() string {
	return t.State + "/+/+/state"
}

// PointFromTopic maps "<state>/light/bathroom/state" to "light.bathroom".
func (t Topics) PointFromTopic(topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, t.State+"/")
	if !ok {
		return "", false
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 3 || parts[2] != "state" || parts[0] == "" || parts[1] == "" {
		return "", false
	}
	return parts[0] + "." + parts[1], true
}

// StateTopic is the statestream topic for point.
func (t Topics) StateTopic(point string) (string, error) {
	domain, object, err := SplitPoint(point)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/%s/%s/state", t.State, domain, object), nil
}

// Command is the command topic for point.
func (t Topics) Command(point string) (string, error) {
	domain, object, err := SplitPoint(point)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/%s/%s/set", t.Prefix, domain, object), nil
}

// Notify is the notification topic.
func (t Topics) Notify() string {
	return t.Prefix + "/notify"
}

// LogState is the state topic of the log sensor.
func (t Topics) LogState() string {
	return t.Prefix + "/adlog/state"
}

// LogAttributes is the attributes topic of the log sensor.
func (t Topics) LogAttributes() string {
	return t.Prefix + "/adlog/attributes"
}

// Status is the retained status topic for a fan.
func (t Topics) Status(fan string) string {
	return t.Prefix + "/" + SafeObjectID(fan) + "/status"
}

// System is the topic for lifecycle events.
func (t Topics) System() string {
	return t.Prefix + "/system"
}

// SplitPoint splits "light.bathroom" into its domain and object ID.
func SplitPoint(point string) (domain, object string, err error) {
	domain, object, ok := strings.Cut(point, ".")
	if !ok || domain == "" || object == "" || strings.ContainsAny(point, "/+#") {
		return "", "", fmt.Errorf("invalid entity id %q", point)
	}
	return domain, object, nil
}

// DecodeState normalizes a statestream payload. Home Assistant may publish
// the state JSON-quoted; surrounding quotes and whitespace are stripped.
func DecodeState(payload []byte) string {
	s := strings.TrimSpace(string(payload))
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		var unquoted string
		if err := json.Unmarshal([]byte(s), &unquoted); err == nil {
			return unquoted
		}
	}
	return s
}

// CommandPayload is the body sent on a command topic.
func CommandPayload(on bool) []byte {
	if on {
		return []byte("ON")
	}
	return []byte("OFF")
}

// Notification is a message for humans.
type Notification struct {
	Timestamp time.Time
	Title     string
	Message   string
}

// NotificationPayload is the JSON body of a notification.
type NotificationPayload struct {
	Notification NotificationInner `json:"notification"`
}

// NotificationInner contains the notification details.
type NotificationInner struct {
	Timestamp string `json:"timestamp"`
	Title     string `json:"title"`
	Message   string `json:"message"`
}

// FormatNotification creates the JSON payload for a notification.
func FormatNotification(n Notification) ([]byte, error) {
	return json.Marshal(NotificationPayload{
		Notification: NotificationInner{
			Timestamp: n.Timestamp.UTC().Format(time.RFC3339),
			Title:     n.Title,
			Message:   n.Message,
		},
	})
}

// LogLine is a message mirrored to the log sensor.
type LogLine struct {
	Timestamp time.Time
	Source    string
	Message   string
}

// FormatLogLine renders "[source] message  (15:04:05)" in local time.
func FormatLogLine(l LogLine) string {
	return fmt.Sprintf("[%s] %s  (%s)", l.Source, l.Message, l.Timestamp.Format("15:04:05"))
}

// LogAttributes are the attributes published alongside the log sensor state.
type LogAttributes struct {
	Source       string `json:"source"`
	Icon         string `json:"icon"`
	FriendlyName string `json:"friendly_name"`
}

// DefaultLogAttributes describes the log sensor.
func DefaultLogAttributes() LogAttributes {
	return LogAttributes{
		Source:       "fan-controller",
		Icon:         "mdi:google-cardboard",
		FriendlyName: "Fan Controller Log",
	}
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}
	return json.Marshal(SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	})
}

// WillPayload is the retained last-will message published by the broker
// when the controller disappears.
func WillPayload() []byte {
	data, _ := json.Marshal(SystemPayload{System: SystemPayloadInner{Event: "OFFLINE", Reason: "LWT"}})
	return data
}
