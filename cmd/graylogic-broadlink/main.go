// Gray Logic Broadlink Bridge
//
// Drives Broadlink RM-series IR/RF blasters on behalf of Gray Logic Core:
//   - Discovers devices on the local network and tracks their liveness
//   - Sends IR/RF codes and timed code sequences
//   - Runs IR and RF learning sessions
//
// Commands arrive over MQTT; see internal/bridges/broadlink for topics.
// An optional local HTTP/WebSocket API (internal/api) exposes the same
// operations to LAN tools.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nerrad567/gray-logic-broadlink/internal/api"
	"github.com/nerrad567/gray-logic-broadlink/internal/broadlink"
	bridge "github.com/nerrad567/gray-logic-broadlink/internal/bridges/broadlink"
	"github.com/nerrad567/gray-logic-broadlink/internal/device"
	"github.com/nerrad567/gray-logic-broadlink/internal/dispatch"
	"github.com/nerrad567/gray-logic-broadlink/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-broadlink/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-broadlink/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-broadlink/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-broadlink/internal/learning"
	"github.com/nerrad567/gray-logic-broadlink/internal/ping"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run wires the bridge together and blocks until ctx is canceled.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting Gray Logic Broadlink bridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetLogger(log.Component("mqtt"))
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	// Telemetry is optional; a nil interface keeps the bridge from writing.
	var telemetry bridge.Telemetry
	if cfg.InfluxDB.Enabled {
		influxClient, connErr := influxdb.Connect(cfg.InfluxDB)
		if connErr != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", connErr)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetDefaultTags(map[string]string{"site": cfg.Site.ID})
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		telemetry = influxClient
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	bl := cfg.Broadlink

	monitor := device.NewMonitor(monitorConfig(bl.Liveness), ping.New(bl.Liveness.PrivilegedPing))
	monitor.SetLogger(log.Component("liveness"))
	monitor.SetInterest(bridge.InterestFilter(bl.AllowList()))

	transportOpts := broadlink.Options{
		Timeout: bl.Transport.Timeout,
		Logger:  log.Component("transport"),
	}

	registry := device.NewRegistry(broadlink.Factory(transportOpts, bridge.HostTypes(bl.Hosts)))
	registry.SetLogger(log.Component("registry"))
	registry.SetWatcher(monitor)

	dispatcher := dispatch.New(registry, bl.Dispatch.DefaultTimeout)
	dispatcher.SetLogger(log.Component("dispatch"))
	dispatcher.SetFallback(broadlink.NewDirectSender(transportOpts))

	lcfg := learningConfig(bl.Learning)
	irLearner := learning.NewIR(registry, lcfg)
	irLearner.SetLogger(log.Component("learning"))
	rfLearner := learning.NewRF(registry, lcfg)
	rfLearner.SetLogger(log.Component("learning"))

	// The hub exists before the bridge so events flow from the first
	// announcement. A nil interface keeps the bridge from emitting.
	var (
		hub    *api.Hub
		events bridge.EventSink
	)
	if cfg.API.Enabled {
		hub = api.NewHub(cfg.WebSocket, log.Component("websocket"))
		go hub.Run(ctx)
		events = hub
	}

	b, err := bridge.NewBridge(bridge.Options{
		BridgeID:       bl.BridgeID,
		Version:        version,
		HealthInterval: bl.HealthInterval,
		QoS:            byte(cfg.MQTT.QoS), //nolint:gosec // validated to 0..2
		MQTT:           mqttClient,
		Registry:       registry,
		Monitor:        monitor,
		Dispatcher:     dispatcher,
		IRLearner:      irLearner,
		RFLearner:      rfLearner,
		Telemetry:      telemetry,
		Events:         events,
		Logger:         log.Component("bridge"),
	})
	if err != nil {
		return fmt.Errorf("creating bridge: %w", err)
	}
	if err := b.Start(ctx); err != nil {
		return fmt.Errorf("starting bridge: %w", err)
	}
	defer b.Stop()

	if err := monitor.Start(ctx); err != nil {
		return fmt.Errorf("starting liveness monitor: %w", err)
	}
	defer monitor.Stop()

	n, err := bridge.RegisterHosts(registry, bl.Hosts)
	if err != nil {
		return fmt.Errorf("registering hosts: %w", err)
	}
	log.Info("static hosts registered", "count", n)

	if bl.Discovery.Enabled {
		discoverer := bridge.NewDiscoverer(bridge.DiscovererConfig{
			Registry: registry,
			Options: broadlink.DiscoverOptions{
				LocalIP:   bl.Discovery.LocalIP,
				Broadcast: bl.Discovery.Broadcast,
				Timeout:   bl.Discovery.Timeout,
				Logger:    log.Component("discovery"),
			},
			Transport: transportOpts,
			Interval:  bl.Discovery.Interval,
			Logger:    log.Component("discovery"),
		})
		discoverer.Start(ctx)
		defer discoverer.Stop()
		log.Info("discovery started", "interval", bl.Discovery.Interval)
	}

	if cfg.API.Enabled {
		apiServer, apiErr := api.New(api.Deps{
			Config:     cfg.API,
			WS:         cfg.WebSocket,
			Security:   cfg.Security,
			Logger:     log.Component("api"),
			Registry:   registry,
			Dispatcher: dispatcher,
			Learner:    b,
			Hub:        hub,
			Version:    version,
		})
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if err := apiServer.Start(ctx); err != nil {
			return fmt.Errorf("starting API server: %w", err)
		}
		defer func() {
			if closeErr := apiServer.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	} else {
		log.Info("HTTP API disabled")
	}

	log.Info("Gray Logic Broadlink bridge started", "devices", registry.Len())

	<-ctx.Done()
	log.Info("shutdown signal received, stopping")

	return nil
}

// monitorConfig maps liveness settings onto the monitor.
func monitorConfig(c config.LivenessConfig) device.MonitorConfig {
	return device.MonitorConfig{
		ProbeInterval:     c.ProbeInterval,
		ProbeTimeout:      c.ProbeTimeout,
		MaxRetries:        c.MaxRetries,
		KeepaliveInterval: c.KeepaliveInterval,
	}
}

// learningConfig maps learning settings onto the controllers. A configured
// lock_pause of 0 disables the pause.
func learningConfig(c config.LearningConfig) learning.Config {
	pause := c.LockPause
	if pause == 0 {
		pause = -1
	}
	return learning.Config{
		PollInterval:   c.PollInterval,
		IRTimeout:      c.IRTimeout,
		SweepTimeout:   c.SweepTimeout,
		CaptureTimeout: c.CaptureTimeout,
		LockPause:      pause,
		Debug:          c.Debug,
	}
}

// getConfigPath returns the configuration file path.
// Uses GRAYLOGIC_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("GRAYLOGIC_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
