package mqtt

import "sync"

// Command is a recorded PublishCommand call.
type Command struct {
	Point string
	On    bool
}

// Status is a recorded PublishStatus call.
type Status struct {
	Fan     string
	Payload []byte
}

// FakePublisher records published messages for test assertions.
type FakePublisher struct {
	mu sync.Mutex

	// Commands contains every command that was published.
	Commands []Command

	// Notifications contains every notification that was published.
	Notifications []Notification

	// Logs contains every log line mirrored to the log sensor.
	Logs []LogLine

	// LogAttributes contains every attributes document that was published.
	LogAttributes []LogAttributes

	// Statuses contains every fan status document that was published.
	Statuses []Status

	// SystemEvents contains all system events that were published.
	SystemEvents []SystemEvent

	// SystemPayloads contains the JSON payloads for system events.
	SystemPayloads [][]byte

	// Discovery contains every discovery config that was published.
	Discovery []DiscoveryConfig

	// PublishError, if set, is returned by every publish except PublishSystem.
	PublishError error

	// PublishSystemError, if set, will be returned by PublishSystem.
	PublishSystemError error

	// Closed tracks if Close was called.
	Closed bool

	// Connected controls the return value of IsConnected.
	Connected bool
}

// NewFakePublisher creates a FakePublisher for testing.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{}
}

// PublishCommand records the command.
func (f *FakePublisher) PublishCommand(point string, on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}
	if _, _, err := SplitPoint(point); err != nil {
		return err
	}
	f.Commands = append(f.Commands, Command{Point: point, On: on})
	return nil
}

// PublishNotification records the notification.
func (f *FakePublisher) PublishNotification(n Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}
	f.Notifications = append(f.Notifications, n)
	return nil
}

// PublishLog records the log line.
func (f *FakePublisher) PublishLog(line LogLine) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}
	f.Logs = append(f.Logs, line)
	return nil
}

// PublishLogAttributes records the attributes.
func (f *FakePublisher) PublishLogAttributes(attrs LogAttributes) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}
	f.LogAttributes = append(f.LogAttributes, attrs)
	return nil
}

// PublishStatus records the status document.
func (f *FakePublisher) PublishStatus(fan string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}
	f.Statuses = append(f.Statuses, Status{Fan: fan, Payload: payload})
	return nil
}

// PublishSystem records the system event.
func (f *FakePublisher) PublishSystem(event SystemEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishSystemError != nil {
		return f.PublishSystemError
	}

	f.SystemEvents = append(f.SystemEvents, event)

	payload, err := FormatSystemPayload(event)
	if err != nil {
		return err
	}
	f.SystemPayloads = append(f.SystemPayloads, payload)

	return nil
}

// PublishDiscovery records the discovery config.
func (f *FakePublisher) PublishDiscovery(cfg DiscoveryConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}
	f.Discovery = append(f.Discovery, cfg)
	return nil
}

// Close marks the publisher as closed.
func (f *FakePublisher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

// IsConnected reports whether the fake publisher is "connected".
func (f *FakePublisher) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Connected
}

// SetConnected changes the value reported by IsConnected.
func (f *FakePublisher) SetConnected(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Connected = v
}

// SystemEventNames returns the Event field of each recorded system event.
func (f *FakePublisher) SystemEventNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.SystemEvents))
	for i, e := range f.SystemEvents {
		out[i] = e.Event
	}
	return out
}

// CommandsSnapshot returns a copy of the recorded commands.
func (f *FakePublisher) CommandsSnapshot() []Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Command(nil), f.Commands...)
}

// Reset clears recorded messages.
func (f *FakePublisher) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Commands = nil
	f.Notifications = nil
	f.Logs = nil
	f.LogAttributes = nil
	f.Statuses = nil
	f.SystemEvents = nil
	f.SystemPayloads = nil
	f.Discovery = nil
	f.Closed = false
	f.PublishError = nil
	f.PublishSystemError = nil
	f.Connected = false
}
