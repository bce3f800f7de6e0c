package mqtt

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

const (
	publishTimeout = 5 * time.Second
	retryInterval  = 5 * time.Second
)

// Options configures a RealClient.
type Options struct {
	Broker     string
	ClientID   string
	Username   string
	Password   string
	Topics     Topics
	BufferSize int
}

// RealClient mirrors entity states from an actual MQTT broker and publishes
// to it. It connects in the background and keeps retrying; messages published
// while disconnected are buffered and replayed on reconnect.
type RealClient struct {
	client paho.Client
	topics Topics
	sink   StateWriter
	log    *zap.SugaredLogger

	mu  sync.Mutex
	buf *ringBuffer
}

// NewRealClient creates a client that writes mirrored states into sink.
// Call Connect to start.
func NewRealClient(opts Options, sink StateWriter, log *zap.SugaredLogger) *RealClient {
	c := &RealClient{
		topics: opts.Topics,
		sink:   sink,
		log:    log,
		buf:    newRingBuffer(opts.BufferSize),
	}

	po := paho.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(retryInterval).
		SetWill(opts.Topics.System(), string(WillPayload()), 1, true).
		SetOnConnectHandler(c.onConnect).
		SetConnectionLostHandler(c.onConnectionLost)
	if opts.Username != "" {
		po.SetUsername(opts.Username)
		po.SetPassword(opts.Password)
	}

	c.client = paho.NewClient(po)
	return c
}

// Connect starts connecting. It does not wait for the broker.
func (c *RealClient) Connect() {
	token := c.client.Connect()
	go func() {
		token.Wait()
		if err := token.Error(); err != nil {
			c.log.Errorw("mqtt connect failed", "error", err)
		}
	}()
}

// IsConnected reports whether the connection is currently up.
func (c *RealClient) IsConnected() bool {
	return c.client.IsConnectionOpen()
}

func (c *RealClient) onConnect(client paho.Client) {
	c.log.Infow("mqtt connected", "state_filter", c.topics.StateFilter())

	token := client.Subscribe(c.topics.StateFilter(), 1, c.handleState)
	go func() {
		if !token.WaitTimeout(publishTimeout) {
			c.log.Warnw("mqtt subscribe timeout", "topic", c.topics.StateFilter())
			return
		}
		if err := token.Error(); err != nil {
			c.log.Errorw("mqtt subscribe failed", "topic", c.topics.StateFilter(), "error", err)
		}
	}()

	c.mu.Lock()
	pending := c.buf.drainAll()
	c.mu.Unlock()
	if len(pending) > 0 {
		c.log.Infow("replaying buffered messages", "count", len(pending))
	}
	for _, m := range pending {
		c.send(m)
	}
}

func (c *RealClient) onConnectionLost(_ paho.Client, err error) {
	c.log.Warnw("mqtt connection lost", "error", err)
}

// handleState runs on paho's router goroutine. Handlers are ordered, so state
// changes for one entity are applied in the order they were published.
func (c *RealClient) handleState(_ paho.Client, msg paho.Message) {
	point, ok := c.topics.PointFromTopic(msg.Topic())
	if !ok {
		return
	}
	c.sink.Set(point, DecodeState(msg.Payload()))
}

// PublishCommand publishes ON/OFF to the command topic of point.
func (c *RealClient) PublishCommand(point string, on bool) error {
	topic, err := c.topics.Command(point)
	if err != nil {
		return err
	}
	return c.publish(bufferedMsg{topic: topic, payload: CommandPayload(on), qos: 1})
}

// PublishNotification publishes a notification.
func (c *RealClient) PublishNotification(n Notification) error {
	payload, err := FormatNotification(n)
	if err != nil {
		return fmt.Errorf("format notification: %w", err)
	}
	return c.publish(bufferedMsg{topic: c.topics.Notify(), payload: payload})
}

// PublishLog publishes a log line as the log sensor's retained state.
func (c *RealClient) PublishLog(line LogLine) error {
	return c.publish(bufferedMsg{topic: c.topics.LogState(), payload: []byte(FormatLogLine(line)), retained: true})
}

// PublishStatus publishes a fan's retained status document.
func (c *RealClient) PublishStatus(fan string, payload []byte) error {
	return c.publish(bufferedMsg{topic: c.topics.Status(fan), payload: payload, retained: true})
}

// PublishSystem publishes a lifecycle event with QoS 1.
func (c *RealClient) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	return c.publish(bufferedMsg{topic: c.topics.System(), payload: payload, qos: 1, retained: event.Retained})
}

// PublishDiscovery publishes a retained discovery config.
func (c *RealClient) PublishDiscovery(cfg DiscoveryConfig) error {
	return c.publish(bufferedMsg{topic: cfg.Topic, payload: cfg.Payload, qos: 1, retained: cfg.Retain})
}

// PublishLogAttributes publishes the log sensor's retained attributes.
func (c *RealClient) PublishLogAttributes(attrs LogAttributes) error {
	payload, err := json.Marshal(attrs)
	if err != nil {
		return fmt.Errorf("format log attributes: %w", err)
	}
	return c.publish(bufferedMsg{topic: c.topics.LogAttributes(), payload: payload, retained: true})
}

// Close disconnects from the broker, allowing in-flight messages a second.
func (c *RealClient) Close() error {
	c.client.Disconnect(1000)
	return nil
}

// publish sends m, or buffers it while the connection is down.
func (c *RealClient) publish(m bufferedMsg) error {
	c.mu.Lock()
	if !c.client.IsConnectionOpen() {
		if c.buf.push(m) {
			c.log.Warnw("mqtt buffer full, dropping oldest", "capacity", c.buf.capacity)
		}
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	c.send(m)
	return nil
}

// send publishes without blocking the caller: tokens are awaited on their own
// goroutine so a publish from inside a message handler cannot stall paho.
func (c *RealClient) send(m bufferedMsg) {
	token := c.client.Publish(m.topic, m.qos, m.retained, m.payload)
	go func() {
		if !token.WaitTimeout(publishTimeout) {
			c.log.Warnw("mqtt publish timeout", "topic", m.topic)
			return
		}
		if err := token.Error(); err != nil {
			c.log.Errorw("mqtt publish failed", "topic", m.topic, "error", err)
		}
	}()
}
