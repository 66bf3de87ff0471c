// Gray Logic Access Node - entry controller
//
// This is the main entry point for the access node. The node watches an
// entry with a BLE proximity sensor, verifies paired phones against a PIN
// typed on the keypad, drives the lock, and records every outcome to a
// hash-chained audit log:
//   - Offline-first operation (the control loop never waits on the API)
//   - MQTT for the BLE gateway, keypad, lock and alerts
//   - Tamper-evident audit chain validated in the background
//
// Run accessctl to inspect the chain offline.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/joho/godotenv"

	_ "github.com/nerrad567/gray-logic-access/migrations"

	"github.com/nerrad567/gray-logic-access/internal/access"
	"github.com/nerrad567/gray-logic-access/internal/api"
	"github.com/nerrad567/gray-logic-access/internal/audit"
	"github.com/nerrad567/gray-logic-access/internal/auth"
	"github.com/nerrad567/gray-logic-access/internal/chain"
	"github.com/nerrad567/gray-logic-access/internal/credential"
	"github.com/nerrad567/gray-logic-access/internal/gateway"
	"github.com/nerrad567/gray-logic-access/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-access/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-access/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-access/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-access/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-access/internal/link"
	"github.com/nerrad567/gray-logic-access/internal/peripheral"
	"github.com/nerrad567/gray-logic-access/internal/sensor"
	"github.com/nerrad567/gray-logic-access/internal/threshold"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/accessnode.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Gray Logic Access Node",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	if err := loadDotEnv(); err != nil {
		return err
	}

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
		"site", cfg.Site.ID,
	)

	// Open database
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
	log.Info("database connected", "path", cfg.Database.Path)

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Credentials
	directory, err := openDirectory(ctx, cfg, db, log)
	if err != nil {
		return err
	}

	// Thresholds
	store, err := openThresholds(ctx, cfg, db, log)
	if err != nil {
		return err
	}

	// Audit chain
	ledger, err := chain.Open(cfg.Chain.Path)
	if err != nil {
		return fmt.Errorf("opening audit chain: %w", err)
	}
	ledger.SetLogger(log.Component("chain"))
	if n, validateErr := ledger.Validate(); validateErr != nil {
		// A broken chain is reported, never repaired: the node keeps running
		// so the operator can inspect it.
		log.Error("audit chain failed validation", "error", validateErr)
	} else {
		log.Info("audit chain valid", "path", cfg.Chain.Path, "blocks", n)
	}

	// Connect to MQTT broker
	mqttClient, err := mqtt.Connect(ctx, cfg.MQTT)
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
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(ctx, cfg.InfluxDB, cfg.Site.ID)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
	} else {
		log.Info("InfluxDB disabled")
	}

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	// BLE gateway (optional)
	supervisor, err := startGateway(ctx, cfg, log)
	if err != nil {
		return err
	}
	if supervisor != nil {
		defer func() {
			log.Info("stopping BLE gateway")
			supervisor.Stop()
		}()
	}

	// Peripherals
	topics := mqtt.Topics{Node: cfg.Site.ID}
	bus, err := startRadio(cfg, mqttClient, topics, log)
	if err != nil {
		return err
	}

	keypad := peripheral.NewMQTTKeypad(0)
	keypad.SetLogger(log.Component("keypad"))
	if subErr := keypad.Subscribe(mqttClient, topics.Keypad()); subErr != nil {
		return fmt.Errorf("subscribing to keypad: %w", subErr)
	}

	lock := peripheral.NewMQTTLock(mqttClient, topics.LockCommand())
	lock.SetLogger(log.Component("lock"))

	alerter := peripheral.NewAlerter(mqttClient, topics.Alert())
	alerter.SetLogger(log.Component("alert"))
	alerter.Start(ctx)
	defer alerter.Stop()

	// Control loop
	deps := access.Deps{
		Radio:       bus.radio,
		Links:       bus.bus,
		Keypad:      keypad,
		Lock:        lock,
		Ledger:      ledger,
		Credentials: directory,
		Classifier:  sensor.NewClassifier(store, sensor.Baseline{X: cfg.Sensor.Baseline.X, Y: cfg.Sensor.Baseline.Y, Z: cfg.Sensor.Baseline.Z}),
		Logger:      log.Component("access"),
	}
	if influxClient != nil {
		deps.Telemetry = influxClient
	}
	orchestrator, err := access.New(deps, access.TimingsFromConfig(cfg.Node))
	if err != nil {
		return fmt.Errorf("creating control loop: %w", err)
	}

	reporter := peripheral.NewStateReporter(mqttClient, topics.State(), orchestrator)
	reporter.SetLogger(log.Component("state"))
	reporter.Start(ctx)
	defer reporter.Stop()
	orchestrator.AddObserver(alerter)
	orchestrator.AddObserver(reporter)

	// Operator journal
	journal := audit.NewJournal(audit.NewSQLiteRepository(db.DB), audit.DefaultJournalSize)
	journal.SetLogger(log.Component("journal"))
	journal.Start(ctx)
	defer func() {
		log.Info("flushing operator journal")
		journal.Stop()
	}()

	// Operator API
	authenticator := auth.NewAuthenticator(auth.Operator{
		Username:     cfg.Security.Operator.Username,
		PasswordHash: cfg.Security.Operator.PasswordHash,
		TOTPSecret:   cfg.Security.Operator.TOTPSecret,
	}, cfg.Security.JWT.Secret, cfg.GetAccessTokenTTL())
	if cfg.Security.Operator.PasswordHash == "" {
		log.Warn("operator password not configured, API login disabled")
	}

	validator := chain.NewValidator(ledger, cfg.GetValidateInterval())
	validator.SetLogger(log.Component("validator"))

	apiDeps := api.Deps{
		Config:      cfg.API,
		WS:          cfg.WebSocket,
		RateLimit:   cfg.Security.RateLimit,
		Logger:      log.Component("api"),
		State:       orchestrator,
		Chain:       ledger,
		Validator:   validator,
		Credentials: directory,
		Thresholds:  store,
		Auth:        authenticator,
		Journal:     journal,
		MQTT:        mqttClient,
		Links:       bus.bus,
		Version:     version,
	}
	if supervisor != nil {
		apiDeps.Gateway = supervisor
	}
	apiServer, err := api.New(apiDeps)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	orchestrator.AddObserver(apiServer)
	validator.OnResult(apiServer.ChainValidated)

	validator.Start(ctx)
	defer validator.Stop()

	if watcher := startThresholdWatcher(ctx, cfg, store, log); watcher != nil {
		defer watcher.Stop()
	}

	publisher := threshold.NewPublisher(store, mqttClient, topics.Thresholds())
	publisher.SetLogger(log.Component("thresholds"))
	publisher.OnChange(apiServer.ThresholdsChanged)

	if err := apiServer.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		publisher.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		reporter.Publish()
		if runErr := orchestrator.Run(ctx); runErr != nil && !errors.Is(runErr, context.Canceled) {
			log.Error("control loop exited", "error", runErr)
		}
	}()

	log.Info("initialisation complete, waiting for shutdown signal",
		"credentials", directory.Len(),
		"sensor_peer", cfg.Node.SensorPeer,
	)

	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")
	wg.Wait()

	log.Info("Gray Logic Access Node stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses GRAYLOGIC_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("GRAYLOGIC_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// loadDotEnv reads a .env file from the working directory into the process
// environment. A missing file is not an error.
func loadDotEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading .env: %w", err)
	}
	return nil
}

// openDirectory loads credentials and applies the configured seeds.
func openDirectory(ctx context.Context, cfg *config.Config, db *database.DB, log *logging.Logger) (*credential.Directory, error) {
	directory := credential.NewDirectory(credential.NewSQLiteRepository(db.DB))
	directory.SetLogger(log.Component("credentials"))
	if err := directory.Load(ctx); err != nil {
		return nil, fmt.Errorf("loading credentials: %w", err)
	}

	seeds := make([]credential.Credential, 0, len(cfg.Credentials))
	for _, c := range cfg.Credentials {
		seeds = append(seeds, credential.Credential{Alias: c.Alias, MAC: c.MAC, Passcode: c.Passcode})
	}
	added, err := directory.Seed(ctx, seeds)
	if err != nil {
		return nil, fmt.Errorf("seeding credentials: %w", err)
	}
	log.Info("credential directory initialised", "credentials", directory.Len(), "seeded", added)
	return directory, nil
}

// openThresholds builds the threshold store with config values as defaults
// and overlays anything an operator saved.
func openThresholds(ctx context.Context, cfg *config.Config, db *database.DB, log *logging.Logger) (*threshold.Store, error) {
	store, err := threshold.NewStore(threshold.NewSQLiteRepository(db.DB), map[threshold.Kind]string{
		threshold.Ultrasonic:   cfg.Sensor.UltrasonicThreshold,
		threshold.Magnetometer: cfg.Sensor.MagnetometerThreshold,
	})
	if err != nil {
		return nil, fmt.Errorf("creating threshold store: %w", err)
	}
	store.SetLogger(log.Component("thresholds"))
	if err := store.Load(ctx); err != nil {
		return nil, fmt.Errorf("loading thresholds: %w", err)
	}
	log.Info("thresholds loaded", "values", store.All())
	return store, nil
}

// startThresholdWatcher follows the threshold file when one is configured.
// A watcher that cannot start is logged and skipped.
func startThresholdWatcher(ctx context.Context, cfg *config.Config, store *threshold.Store, log *logging.Logger) *threshold.Watcher {
	if cfg.Sensor.ThresholdFile == "" {
		return nil
	}
	watcher := threshold.NewWatcher(store, cfg.Sensor.ThresholdFile)
	watcher.SetLogger(log.Component("thresholds"))
	if err := watcher.Start(ctx); err != nil {
		log.Warn("threshold file watcher failed to start", "path", cfg.Sensor.ThresholdFile, "error", err)
		return nil
	}
	return watcher
}

// startGateway launches the BLE gateway when the node manages it.
func startGateway(ctx context.Context, cfg *config.Config, log *logging.Logger) (*gateway.Supervisor, error) {
	if !cfg.Gateway.Managed {
		log.Info("BLE gateway not managed by this node")
		return nil, nil
	}
	supervisor := gateway.New(gateway.ConfigFrom(cfg.Gateway))
	supervisor.SetLogger(log.Component("gateway"))
	if err := supervisor.Start(ctx); err != nil {
		return nil, fmt.Errorf("starting BLE gateway: %w", err)
	}
	return supervisor, nil
}

// radioLink pairs the gateway driver with the bus it reports to.
type radioLink struct {
	radio *link.MQTTRadio
	bus   *link.Bus
}

// startRadio subscribes to the BLE gateway topics for both roles.
func startRadio(cfg *config.Config, client *mqtt.Client, topics mqtt.Topics, log *logging.Logger) (radioLink, error) {
	bus := link.NewBus(cfg.Node.QueueSize)
	bus.SetLogger(log.Component("link"))

	radio := link.NewMQTTRadio(client, topics, bus)
	radio.SetLogger(log.Component("radio"))
	if err := radio.Start(); err != nil {
		return radioLink{}, fmt.Errorf("starting BLE gateway link: %w", err)
	}
	return radioLink{radio: radio, bus: bus}, nil
}

// healthCheck verifies all infrastructure connections are healthy.
// influxClient may be nil if disabled.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	return nil
}
