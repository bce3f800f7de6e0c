package main

import (
	"os"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/fan-controller/internal/logic"
	"github.com/sweeney/fan-controller/internal/mqtt"
	"github.com/sweeney/fan-controller/internal/status"
)

type loop struct {
	fans      []*logic.Coordinator
	publisher mqtt.Publisher
	conn      mqtt.ConnectionStatus
	tracker   *status.Tracker
	now       func() time.Time
	sample    <-chan time.Time
	heartbeat <-chan time.Time // nil disables heartbeats
	sig       <-chan os.Signal
	log       *zap.SugaredLogger
}

func runLoop(l loop) error {
	for {
		select {
		case s := <-l.sig:
			l.log.Infow("shutting down", "signal", s)
			for _, f := range l.fans {
				f.Stop()
			}
			l.refresh()

			reason := signalName(s)
			event := mqtt.SystemEvent{
				Timestamp:  l.now(),
				Event:      "SHUTDOWN",
				Reason:     reason,
				Retained:   true,
				RawPayload: status.FormatStatusEvent(l.tracker.Snapshot(), "SHUTDOWN", reason),
			}
			if err := l.publisher.PublishSystem(event); err != nil {
				l.log.Errorw("failed to publish shutdown event", "error", err)
			} else {
				l.log.Infow("published shutdown event")
			}
			return nil

		case <-l.sample:
			for _, f := range l.fans {
				if f.Sample() {
					l.log.Debugw("humidity rise", "fan", f.Config().Name)
				}
			}
			l.refresh()

		case <-l.heartbeat:
			l.refresh()
			snap := l.tracker.Snapshot()
			l.log.Infow("heartbeat", "uptime", snap.Uptime().Truncate(time.Second), "mqtt", snap.MQTTConnected)

			event := mqtt.SystemEvent{
				Timestamp:  snap.Now,
				Event:      "HEARTBEAT",
				RawPayload: status.FormatStatusEvent(snap, "HEARTBEAT", ""),
			}
			if err := l.publisher.PublishSystem(event); err != nil {
				l.log.Warnw("heartbeat publish error", "error", err)
			}
		}
	}
}

// refresh updates the tracker and republishes any fan whose status changed.
func (l loop) refresh() {
	if l.conn != nil {
		l.tracker.SetMQTTConnected(l.conn.IsConnected())
	}
	for _, f := range l.fans {
		snap := f.Snapshot()
		payload, changed := l.tracker.UpdateFan(snap)
		if !changed {
			continue
		}
		if err := l.publisher.PublishStatus(snap.Name, payload); err != nil {
			l.log.Warnw("status publish error", "fan", snap.Name, "error", err)
		}
	}
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	default:
		return "UNKNOWN"
	}
}
