package main

import (
	"io"

	"github.com/sweeney/fan-controller/internal/config"
	"github.com/sweeney/fan-controller/internal/gpio"
	"github.com/sweeney/fan-controller/internal/logger"
	"github.com/sweeney/fan-controller/internal/logic"
	"github.com/sweeney/fan-controller/internal/mqtt"
	"github.com/sweeney/fan-controller/internal/state"
)

type relayOpener func(chip string, pin int) (gpio.Relay, error)

func openRelay(chip string, pin int) (gpio.Relay, error) {
	return gpio.NewRealRelay(chip, pin)
}

// buildFans creates a coordinator per configured fan. A fan that fails to
// decode, lacks required points or cannot claim its relay is logged and
// skipped; the others still run.
func buildFans(cfg *config.Config, store *state.Store, scheduler logic.Scheduler, pub mqtt.Publisher, open relayOpener) ([]*logic.Coordinator, []io.Closer) {
	log := logger.Named("main")

	var (
		fans    []*logic.Coordinator
		closers []io.Closer
	)
	for _, name := range cfg.FanNames() {
		f, err := config.DecodeFan(name, cfg.Fans[name])
		if err != nil {
			log.Errorw("fan skipped", "fan", name, "error", err)
			continue
		}

		var (
			actuator logic.Actuator = mqtt.NewDispatcher(pub)
			relay    *gpio.Actuator
		)
		if f.RelayPin != nil {
			r, err := open(f.RelayChip, *f.RelayPin)
			if err != nil {
				log.Errorw("fan skipped", "fan", name, "error", err)
				continue
			}
			relay = gpio.NewActuator(f.Fan, r, store)
			if err := relay.Reset(); err != nil {
				log.Warnw("relay reset failed", "fan", name, "error", err)
			}
			actuator = relay
		}

		coord, err := logic.NewCoordinator(f.Logic(), logic.Deps{
			States:    store,
			Scheduler: scheduler,
			Actuator:  actuator,
			Notifier:  mqtt.NewNotifier(pub, logger.Named(name), f.HALogging),
		})
		if err != nil {
			log.Errorw("fan skipped", "fan", name, "error", err)
			if relay != nil {
				_ = relay.Close()
			}
			continue
		}
		if relay != nil {
			closers = append(closers, relay)
		}

		lc := coord.Config()
		log.Infow("fan configured", "fan", name, "light", lc.Light, "fan_entity", lc.Fan,
			"motion", lc.Motion, "humidity", lc.Humidity, "delay", lc.PrimaryDelay, "gpio", relay != nil)
		fans = append(fans, coord)
	}
	return fans, closers
}
