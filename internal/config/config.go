// Package config loads the fan-controller YAML file. Global settings are
// decoded with yaml.v3; each fan's arguments are kept loosely typed and
// decoded separately so one bad fan does not stop the others.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"github.com/sweeney/fan-controller/internal/logic"
)

const (
	// DefaultConfigFilename is used when no --config flag is given.
	DefaultConfigFilename = "fan-controller.yaml"
	// DefaultClientID is the MQTT client ID.
	DefaultClientID = "fan-controller"
	// DefaultStatePrefix is the Home Assistant mqtt_statestream base topic.
	DefaultStatePrefix = "homeassistant"
	// DefaultTopicPrefix is the base topic for commands and events.
	DefaultTopicPrefix = "fan-controller"
	// DefaultDiscoveryPrefix is the Home Assistant discovery base topic.
	DefaultDiscoveryPrefix = "homeassistant"
	// DefaultHTTPAddr is the status page address.
	DefaultHTTPAddr = ":8080"
	// DefaultHeartbeat is the heartbeat interval.
	DefaultHeartbeat = 15 * time.Minute
	// DefaultBufferSize is the number of messages kept while disconnected.
	DefaultBufferSize = 100
)

var (
	errBrokerRequired = errors.New("broker must be provided")
	errNoFans         = errors.New("no fans configured")
	errSampleInterval = errors.New("sample_interval must be positive")
	errHeartbeat      = errors.New("heartbeat must not be negative")
)

// Config holds daemon settings.
type Config struct {
	// Broker is the MQTT broker URL, e.g. tcp://192.168.1.200:1883.
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	// StatePrefix is where Home Assistant mirrors entity states.
	StatePrefix string `yaml:"state_prefix"`
	// TopicPrefix is where commands, notifications and system events go.
	TopicPrefix     string `yaml:"topic_prefix"`
	Discovery       bool   `yaml:"discovery"`
	DiscoveryPrefix string `yaml:"discovery_prefix"`
	// HTTP is the status page address; empty disables it.
	HTTP           string        `yaml:"http"`
	Heartbeat      time.Duration `yaml:"heartbeat"`
	SampleInterval time.Duration `yaml:"sample_interval"`
	BufferSize     int           `yaml:"buffer_size"`
	LogLevel       string        `yaml:"log_level"`
	// Fans maps a fan name to its raw arguments. See DecodeFan.
	Fans map[string]map[string]any `yaml:"fans"`
}

// Default returns a Config with every optional field set.
func Default() Config {
	return Config{
		ClientID:        DefaultClientID,
		StatePrefix:     DefaultStatePrefix,
		TopicPrefix:     DefaultTopicPrefix,
		Discovery:       true,
		DiscoveryPrefix: DefaultDiscoveryPrefix,
		HTTP:            DefaultHTTPAddr,
		Heartbeat:       DefaultHeartbeat,
		SampleInterval:  logic.SampleInterval,
		BufferSize:      DefaultBufferSize,
		LogLevel:        "info",
	}
}

// Load reads and validates the file at path. Fan arguments are not decoded.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	return Parse(contents)
}

// Parse decodes YAML contents over the defaults and validates the result.
func Parse(contents []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(contents, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks global settings.
func Validate(cfg *Config) error {
	if cfg.Broker == "" {
		return errBrokerRequired
	}
	u, err := url.Parse(cfg.Broker)
	if err != nil || u.Host == "" {
		return fmt.Errorf("invalid broker %q", cfg.Broker)
	}
	switch u.Scheme {
	case "tcp", "mqtt", "ssl", "tls", "mqtts", "ws", "wss":
	default:
		return fmt.Errorf("invalid broker scheme %q", u.Scheme)
	}
	if cfg.SampleInterval <= 0 {
		return errSampleInterval
	}
	if cfg.Heartbeat < 0 {
		return errHeartbeat
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultBufferSize
	}
	if len(cfg.Fans) == 0 {
		return errNoFans
	}
	return nil
}

// FanNames returns the configured fan names in sorted order.
func (c *Config) FanNames() []string {
	names := make([]string, 0, len(c.Fans))
	for name := range c.Fans {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Fan holds one fan's decoded arguments.
type Fan struct {
	Name     string `mapstructure:"-"`
	Light    string `mapstructure:"light"`
	Fan      string `mapstructure:"fan"`
	Motion   string `mapstructure:"motion"`
	Presence string `mapstructure:"presence"`
	Humidity string `mapstructure:"humidity"`
	// Delay is the primary shutoff delay in seconds.
	Delay int `mapstructure:"delay"`
	// HALogging mirrors notifications to the sensor.adlog entity.
	HALogging bool `mapstructure:"halogging"`
	// RelayPin, when set, drives the fan from a GPIO line instead of MQTT.
	RelayPin  *int   `mapstructure:"relay_pin"`
	RelayChip string `mapstructure:"relay_chip"`
}

// DecodeFan decodes raw fan arguments. Values are weakly typed ("600" is a
// valid delay) and unknown keys are rejected. Required points are checked by
// the coordinator, not here.
func DecodeFan(name string, args map[string]any) (Fan, error) {
	f := Fan{Name: name}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		ErrorUnused:      true,
		WeaklyTypedInput: true,
		Result:           &f,
	})
	if err != nil {
		return Fan{}, fmt.Errorf("fan %s: %w", name, err)
	}
	if err := dec.Decode(args); err != nil {
		return Fan{}, fmt.Errorf("fan %s: %w", name, err)
	}
	if f.Delay < 0 {
		return Fan{}, fmt.Errorf("fan %s: delay must not be negative", name)
	}
	if f.RelayChip == "" {
		f.RelayChip = "gpiochip0"
	}
	return f, nil
}

// Logic converts the arguments into a coordinator configuration.
func (f Fan) Logic() logic.FanConfig {
	return logic.FanConfig{
		Name:         f.Name,
		Light:        f.Light,
		Fan:          f.Fan,
		Motion:       f.Motion,
		Presence:     f.Presence,
		Humidity:     f.Humidity,
		PrimaryDelay: time.Duration(f.Delay) * time.Second,
	}
}
