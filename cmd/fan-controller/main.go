// Command fan-controller runs bathroom extractor fans from their lights,
// motion sensors and humidity trend, talking to Home Assistant over MQTT.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sweeney/fan-controller/internal/config"
	"github.com/sweeney/fan-controller/internal/logger"
	"github.com/sweeney/fan-controller/internal/logic"
	"github.com/sweeney/fan-controller/internal/mqtt"
	"github.com/sweeney/fan-controller/internal/sched"
	"github.com/sweeney/fan-controller/internal/state"
	"github.com/sweeney/fan-controller/internal/status"
	"github.com/sweeney/fan-controller/internal/web"
)

const (
	// connectWait bounds how long startup waits for the broker before the
	// coordinators start against whatever state has arrived.
	connectWait = 10 * time.Second
	// settleDelay gives retained statestream messages time to land.
	settleDelay = 2 * time.Second
)

var (
	configPath string
	logLevel   string
	printState bool

	rootCmd = &cobra.Command{
		Use:   "fan-controller",
		Short: "Switch extractor fans from lights, motion and humidity.",
		Long: `Runs one coordinator per configured fan. A fan left running after its
light goes off is switched off by a timer, a rising humidity trend turns it
on, and motion in the room restarts the countdown.

Entity states are read from Home Assistant's mqtt_statestream topics and fans
are switched through command topics or a GPIO relay.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if printState {
				return printFans(cmd.OutOrStdout(), cfg)
			}
			return run(cfg)
		},
	}
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error); overrides the config file")
	rootCmd.Flags().BoolVar(&printState, "print-state", false, "print the configured fans and exit")
}

func run(cfg *config.Config) error {
	defer logger.Sync()
	log := logger.Named("main")

	levelName := cfg.LogLevel
	if logLevel != "" {
		levelName = logLevel
	}
	level, ok := logger.ParseLogLevel(levelName)
	if !ok {
		log.Warnw("unknown log level, using info", "level", levelName)
	}
	logger.SetLevel(level)

	topics := mqtt.Topics{State: cfg.StatePrefix, Prefix: cfg.TopicPrefix}
	if cfg.Discovery {
		topics.Discovery = cfg.DiscoveryPrefix
	}

	store := state.NewStore()
	client := mqtt.NewRealClient(mqtt.Options{
		Broker:     cfg.Broker,
		ClientID:   cfg.ClientID,
		Username:   cfg.Username,
		Password:   cfg.Password,
		Topics:     topics,
		BufferSize: cfg.BufferSize,
	}, store, logger.Named("mqtt"))
	defer client.Close()

	client.Connect()
	if waitConnected(client, connectWait) {
		time.Sleep(settleDelay)
	} else {
		log.Warnw("broker not reachable yet, starting with unknown states", "broker", cfg.Broker)
	}

	fans, closers := buildFans(cfg, store, sched.NewReal(), client, openRelay)
	defer func() {
		for _, c := range closers {
			if err := c.Close(); err != nil {
				log.Warnw("close relay", "error", err)
			}
		}
	}()
	if len(fans) == 0 {
		return errors.New("no fans could be started")
	}

	tracker := status.NewTracker(time.Now(), status.Config{
		SampleMs:    cfg.SampleInterval.Milliseconds(),
		HeartbeatMs: cfg.Heartbeat.Milliseconds(),
		Broker:      cfg.Broker,
		StatePrefix: cfg.StatePrefix,
		TopicPrefix: cfg.TopicPrefix,
		HTTPPort:    cfg.HTTP,
	})

	sample := time.NewTicker(cfg.SampleInterval)
	defer sample.Stop()

	var heartbeat <-chan time.Time
	if cfg.Heartbeat > 0 {
		hb := time.NewTicker(cfg.Heartbeat)
		defer hb.Stop()
		heartbeat = hb.C
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	l := loop{
		fans:      fans,
		publisher: client,
		conn:      client,
		tracker:   tracker,
		now:       time.Now,
		sample:    sample.C,
		heartbeat: heartbeat,
		sig:       sigCh,
		log:       log,
	}

	publishDiscovery(client, topics, fans, log)
	startup(l, store)

	if cfg.HTTP != "" {
		srv := web.New(cfg.HTTP, tracker)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Errorw("http server error", "error", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Infow("http status server listening", "addr", cfg.HTTP)
	}

	log.Infow("started", "fans", len(fans), "broker", cfg.Broker, "sample", cfg.SampleInterval, "heartbeat", cfg.Heartbeat)
	return runLoop(l)
}

func waitConnected(c mqtt.ConnectionStatus, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for !c.IsConnected() {
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(100 * time.Millisecond)
	}
	return true
}

// publishDiscovery announces the log sensor and one status sensor per fan.
func publishDiscovery(pub mqtt.Publisher, topics mqtt.Topics, fans []*logic.Coordinator, log *zap.SugaredLogger) {
	if err := pub.PublishLogAttributes(mqtt.DefaultLogAttributes()); err != nil {
		log.Warnw("publish log attributes", "error", err)
	}
	if topics.Discovery == "" {
		return
	}

	configs := make([]mqtt.DiscoveryConfig, 0, len(fans)+1)
	if cfg, err := mqtt.BuildLogDiscovery(topics); err == nil {
		configs = append(configs, cfg)
	}
	for _, f := range fans {
		cfg, err := mqtt.BuildFanDiscovery(topics, f.Config().Name)
		if err != nil {
			log.Warnw("build discovery", "fan", f.Config().Name, "error", err)
			continue
		}
		configs = append(configs, cfg)
	}
	for _, cfg := range configs {
		if err := pub.PublishDiscovery(cfg); err != nil {
			log.Warnw("publish discovery", "topic", cfg.Topic, "error", err)
		}
	}
}

// startup publishes each fan's status and the retained STARTUP event, then
// subscribes every coordinator and lets it reconcile against the mirrored state.
func startup(l loop, sub logic.Subscriber) {
	l.refresh()
	snap := l.tracker.Snapshot()
	event := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}
	if err := l.publisher.PublishSystem(event); err != nil {
		l.log.Errorw("failed to publish startup event", "error", err)
	} else {
		l.log.Infow("published startup event")
	}

	for _, f := range l.fans {
		f.Start(sub)
	}
}

func printFans(w io.Writer, cfg *config.Config) error {
	for _, name := range cfg.FanNames() {
		f, err := config.DecodeFan(name, cfg.Fans[name])
		if err != nil {
			fmt.Fprintf(w, "%s: skipped: %v\n", name, err)
			continue
		}
		lc := f.Logic()
		if lc.Light == "" || lc.Fan == "" {
			fmt.Fprintf(w, "%s: skipped: light and fan are required\n", name)
			continue
		}
		delay := lc.PrimaryDelay
		if delay <= 0 {
			delay = logic.DefaultPrimaryDelay
		}
		actuator := "mqtt"
		if f.RelayPin != nil {
			actuator = fmt.Sprintf("gpio %s/%d", f.RelayChip, *f.RelayPin)
		}
		fmt.Fprintf(w, "%s: light=%s fan=%s motion=%s presence=%s humidity=%s delay=%v actuator=%s halogging=%t\n",
			name, lc.Light, lc.Fan, orNone(lc.Motion), orNone(lc.Presence), orNone(lc.Humidity), delay, actuator, f.HALogging)
	}
	return nil
}

func orNone(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
