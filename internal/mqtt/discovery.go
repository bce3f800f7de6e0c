package mqtt

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var nonAlphanumeric = regexp.MustCompile(`[^a-zA-Z0-9_]`)

// DiscoveryConfig holds a single Home Assistant MQTT discovery payload.
type DiscoveryConfig struct {
	Topic   string // Full MQTT topic (homeassistant/...)
	Payload []byte // JSON-encoded config
	Retain  bool
}

// HADevice is the "device" block in discovery payloads.
type HADevice struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Model        string   `json:"model,omitempty"`
	Manufacturer string   `json:"manufacturer,omitempty"`
}

// SensorConfig is the discovery payload for a sensor entity.
type SensorConfig struct {
	Name                string   `json:"name"`
	ObjectID            string   `json:"object_id"`
	UniqueID            string   `json:"unique_id"`
	StateTopic          string   `json:"state_topic"`
	ValueTemplate       string   `json:"value_template,omitempty"`
	JSONAttributesTopic string   `json:"json_attributes_topic,omitempty"`
	AvailabilityTopic   string   `json:"availability_topic,omitempty"`
	AvailabilityTmpl    string   `json:"availability_template,omitempty"`
	Icon                string   `json:"icon,omitempty"`
	Device              HADevice `json:"device"`
}

// SafeObjectID sanitizes a string for use as an object_id: lowercased,
// anything outside [a-z0-9_] replaced by underscore, outer underscores trimmed.
func SafeObjectID(s string) string {
	s = strings.ToLower(s)
	s = nonAlphanumeric.ReplaceAllString(s, "_")
	s = strings.Trim(s, "_")
	if s == "" {
		return "unknown"
	}
	return s
}

func controllerDevice(t Topics) HADevice {
	return HADevice{
		Identifiers:  []string{"fan_controller_" + SafeObjectID(t.Prefix)},
		Name:         "Fan Controller",
		Model:        "fan-controller",
		Manufacturer: "sweeney",
	}
}

// availability marks entities unavailable once the broker publishes the
// last will on the system topic.
func availability(t Topics, c *SensorConfig) {
	c.AvailabilityTopic = t.System()
	c.AvailabilityTmpl = `{{ 'offline' if value_json.system is defined and value_json.system.event == 'OFFLINE' else 'online' }}`
}

func discovery(t Topics, object string, cfg SensorConfig) (DiscoveryConfig, error) {
	payload, err := json.Marshal(cfg)
	if err != nil {
		return DiscoveryConfig{}, fmt.Errorf("discovery %s: %w", object, err)
	}
	return DiscoveryConfig{
		Topic:   fmt.Sprintf("%s/sensor/fan_controller_%s/config", t.Discovery, object),
		Payload: payload,
		Retain:  true,
	}, nil
}

// BuildLogDiscovery describes the log sensor that mirrors controller messages.
func BuildLogDiscovery(t Topics) (DiscoveryConfig, error) {
	attrs := DefaultLogAttributes()
	cfg := SensorConfig{
		Name:                attrs.FriendlyName,
		ObjectID:            "fan_controller_adlog",
		UniqueID:            "fan_controller_adlog",
		StateTopic:          t.LogState(),
		JSONAttributesTopic: t.LogAttributes(),
		Icon:                attrs.Icon,
		Device:              controllerDevice(t),
	}
	availability(t, &cfg)
	return discovery(t, "adlog", cfg)
}

// BuildFanDiscovery describes the status sensor of one fan. Its state is the
// fan's switch state and the full status document is exposed as attributes.
func BuildFanDiscovery(t Topics, fan string) (DiscoveryConfig, error) {
	obj := SafeObjectID(fan)
	cfg := SensorConfig{
		Name:                fan + " fan",
		ObjectID:            "fan_controller_" + obj,
		UniqueID:            "fan_controller_" + obj,
		StateTopic:          t.Status(fan),
		ValueTemplate:       "{{ value_json.fan }}",
		JSONAttributesTopic: t.Status(fan),
		Icon:                "mdi:fan",
		Device:              controllerDevice(t),
	}
	availability(t, &cfg)
	return discovery(t, obj, cfg)
}
