package mqtt

import (
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/fan-controller/internal/logic"
)

// Dispatcher switches fans by publishing to their command topics.
type Dispatcher struct {
	pub Publisher
}

var _ logic.Actuator = (*Dispatcher)(nil)

// NewDispatcher creates a Dispatcher publishing through pub.
func NewDispatcher(pub Publisher) *Dispatcher {
	return &Dispatcher{pub: pub}
}

// SetActuator publishes ON or OFF for point.
func (d *Dispatcher) SetActuator(point string, on bool) error {
	return d.pub.PublishCommand(point, on)
}

// Notifier delivers coordinator messages. Routine messages go to the log and,
// with halogging, to the log sensor. Alerts are also published as
// notifications.
type Notifier struct {
	pub       Publisher
	log       *zap.SugaredLogger
	halogging bool
	now       func() time.Time
}

var _ logic.Notifier = (*Notifier)(nil)

// NewNotifier creates a Notifier. halogging enables the log sensor mirror.
func NewNotifier(pub Publisher, log *zap.SugaredLogger, halogging bool) *Notifier {
	return &Notifier{pub: pub, log: log, halogging: halogging, now: time.Now}
}

// Log records a routine message.
func (n *Notifier) Log(message, title string) {
	n.log.Infow(message, "fan", title)
	n.mirror(n.now(), message, title)
}

// Notify never fails; publish errors are logged.
func (n *Notifier) Notify(message, title string) {
	ts := n.now()
	n.log.Warnw(message, "fan", title)

	if err := n.pub.PublishNotification(Notification{Timestamp: ts, Title: title, Message: message}); err != nil {
		n.log.Warnw("notification publish failed", "fan", title, "error", err)
	}
	n.mirror(ts, message, title)
}

func (n *Notifier) mirror(ts time.Time, message, title string) {
	if !n.halogging {
		return
	}
	if err := n.pub.PublishLog(LogLine{Timestamp: ts, Source: title, Message: message}); err != nil {
		n.log.Warnw("log mirror publish failed", "fan", title, "error", err)
	}
}
