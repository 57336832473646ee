// wolhub is a WebSocket relay hub for Wake-on-LAN device control.
//
// Devices (server agents, smart lights) and dashboards connect over one
// WebSocket endpoint. The hub tracks device presence with a disconnect
// grace window, relays commands from dashboards to devices, keeps a
// canonical state row per device kind, and pushes notifications to
// registered mobile observers on presence transitions.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/mihai-mura/wolhub/migrations"

	"github.com/mihai-mura/wolhub/internal/api"
	"github.com/mihai-mura/wolhub/internal/infrastructure/config"
	"github.com/mihai-mura/wolhub/internal/infrastructure/database"
	"github.com/mihai-mura/wolhub/internal/infrastructure/influxdb"
	"github.com/mihai-mura/wolhub/internal/infrastructure/logging"
	"github.com/mihai-mura/wolhub/internal/infrastructure/mqtt"
	"github.com/mihai-mura/wolhub/internal/notify"
	"github.com/mihai-mura/wolhub/internal/relay"
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

// run is the actual application logic, separated from main for
// testability.
func run(ctx context.Context) error { //nolint:gocognit // linear startup sequence with per-component defers
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting wolhub",
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

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)

	// Open database and migrate
	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database ready", "path", cfg.Database.Path)

	// Push notification service (optional)
	var notifier *notify.Service
	if cfg.Notifications.Enabled {
		gateway := notify.NewGateway(
			cfg.Notifications.Endpoint,
			time.Duration(cfg.Notifications.Timeout)*time.Second,
		)
		tokenRepo := notify.NewSQLiteRepository(db.DB)
		notifier = notify.NewService(gateway, tokenRepo, log)
		defer notifier.Close()
		log.Info("push notifications enabled", "endpoint", cfg.Notifications.Endpoint)
	} else {
		log.Info("push notifications disabled")
	}

	// MQTT state mirror (optional)
	var mqttClient *mqtt.Client
	var mirror *stateMirror
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log)
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT connected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
		log.Info("MQTT state mirror enabled",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		mirror = &stateMirror{client: mqttClient, log: log}
	} else {
		log.Info("MQTT state mirror disabled")
	}

	// InfluxDB telemetry sink (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB telemetry sink enabled",
			"url", cfg.InfluxDB.URL,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB telemetry sink disabled")
	}

	// Relay core. Optional collaborators stay nil interfaces when their
	// integration is disabled.
	opts := relay.Options{
		GracePeriod: time.Duration(cfg.Relay.GracePeriod) * time.Second,
		Logger:      log,
	}
	if notifier != nil {
		opts.Notifier = notifier
		opts.Tokens = notifier
	}
	if mirror != nil {
		opts.StatePublisher = mirror
	}
	if influxClient != nil {
		opts.TelemetryWriter = influxClient
	}

	core := relay.NewCore(opts)
	defer core.Close()
	log.Info("relay core initialised", "grace_period_s", cfg.Relay.GracePeriod)

	// Bridge MQTT commands into the relay so broker clients can control
	// devices without a socket.
	if mqttClient != nil {
		if subErr := subscribeCommands(mqttClient, core, log); subErr != nil {
			log.Warn("failed to subscribe to MQTT command topics", "error", subErr)
		}
	}

	// HTTP + WebSocket server
	var apiNotifier api.Notifier
	if notifier != nil {
		apiNotifier = notifier
	}
	server, err := api.New(api.Deps{
		Config:   cfg.API,
		WS:       cfg.WebSocket,
		Logger:   log,
		Core:     core,
		Notifier: apiNotifier,
		Version:  version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := server.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	if err := healthCheck(ctx, db, mqttClient, influxClient, server); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	return nil
}

// getConfigPath returns the configuration file path. Uses the
// WOLHUB_CONFIG environment variable if set, otherwise the default.
func getConfigPath() string {
	if path := os.Getenv("WOLHUB_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client, server *api.Server) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	if err := server.HealthCheck(ctx); err != nil {
		return fmt.Errorf("api: %w", err)
	}
	return nil
}

// subscribeCommands routes commands published on wolhub/command/+ into
// the relay core, mirroring the dashboard command path.
func subscribeCommands(client *mqtt.Client, core *relay.Core, log *logging.Logger) error {
	topics := mqtt.Topics{}
	return client.Subscribe(topics.AllDeviceCommands(), 1, func(topic string, payload []byte) error {
		kind, ok := topics.CommandKind(topic)
		if !ok {
			return nil
		}
		sent := core.BroadcastCommand(kind, payload)
		log.Debug("MQTT command relayed", "kind", kind, "recipients", sent)
		return nil
	})
}

// stateMirror adapts the MQTT client to the relay's StatePublisher
// contract. Publishing happens on its own goroutine; the relay holds its
// handler lock while calling PublishDeviceState and must not block on
// broker acks.
type stateMirror struct {
	client *mqtt.Client
	log    *logging.Logger
}

// PublishDeviceState mirrors one device state row onto its retained topic.
func (m *stateMirror) PublishDeviceState(kind string, payload []byte) {
	go func() {
		topic := mqtt.Topics{}.DeviceState(kind)
		if err := m.client.PublishRetained(topic, payload); err != nil {
			m.log.Warn("failed to mirror device state", "kind", kind, "error", err)
		}
	}()
}
