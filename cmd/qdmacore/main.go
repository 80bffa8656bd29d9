// qdmacore - DMA device lifecycle daemon
//
// This is the main entry point for the qdmacore daemon. It attaches the
// configured bus devices, drives them through the open/online lifecycle,
// and keeps supporting services running until shutdown:
//   - SQLite inventory of attached devices and their history
//   - MQTT-backed mailbox channel between controlling and subordinate peers
//   - InfluxDB lifecycle telemetry (optional)
//   - Read-only admin HTTP API (optional)
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/opendma/qdma-core/migrations"

	"github.com/opendma/qdma-core/internal/api"
	"github.com/opendma/qdma-core/internal/device"
	"github.com/opendma/qdma-core/internal/devinit"
	"github.com/opendma/qdma-core/internal/infrastructure/config"
	"github.com/opendma/qdma-core/internal/infrastructure/database"
	"github.com/opendma/qdma-core/internal/infrastructure/influxdb"
	"github.com/opendma/qdma-core/internal/infrastructure/logging"
	"github.com/opendma/qdma-core/internal/infrastructure/mqtt"
	"github.com/opendma/qdma-core/internal/inventory"
	"github.com/opendma/qdma-core/internal/mailbox"
	"github.com/opendma/qdma-core/internal/pci"
	"github.com/opendma/qdma-core/internal/sriov"
	"github.com/opendma/qdma-core/internal/telemetry"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// moduleName is the owner string devices are claimed under.
const moduleName = "qdmacore"

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting qdmacore",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open inventory database
	db, err := database.Open(database.Config{
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

	// Run migrations
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	store := inventory.New(db, log)

	// Connect to MQTT broker (optional: without it the mailbox channel is
	// disabled and peers never hear about this daemon's devices)
	var mqttClient *mqtt.Client
	var mbox *mailbox.Mailbox
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
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		mqttClient.SetLogger(log)
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})

		// #nosec G115 -- QoS validated to 0..2 by config.Validate
		mbox = mailbox.New(mqttClient, byte(cfg.MQTT.QoS), log)
		mbox.SetPeerHandler(func(bdf uint32, payload []byte) {
			log.Info("mailbox message", "bdf", fmt.Sprintf("%05x", bdf), "bytes", len(payload))
		})
	} else {
		log.Info("MQTT disabled, mailbox channel inactive")
	}

	// Connect to InfluxDB (optional)
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

	// Assemble the lifecycle manager
	mgr, err := buildManager(cfg, store, mbox, influxClient, log)
	if err != nil {
		return err
	}
	log.Info("lifecycle manager ready", "role", mgr.Role())

	// Attach configured bus devices
	attached, err := attachDevices(cfg, mgr, log)
	if err != nil {
		return err
	}
	defer func() {
		// Close in reverse attach order
		for i := len(attached) - 1; i >= 0; i-- {
			log.Info("detaching device", "address", attached[i].busDev.Address().String())
			mgr.Close(attached[i].busDev, attached[i].hndl)
		}
	}()
	log.Info("bus devices attached", "count", len(attached))

	// Start admin API server (optional)
	if cfg.API.Enabled {
		apiServer, apiErr := api.New(api.Deps{
			Config:    cfg.API,
			Logger:    log,
			Registry:  mgr.Registry(),
			Role:      mgr.Role(),
			Inventory: store,
			Version:   version,
		})
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if apiErr := apiServer.Start(ctx); apiErr != nil {
			return fmt.Errorf("starting API server: %w", apiErr)
		}
		defer func() {
			if closeErr := apiServer.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
		log.Info("API server started",
			"address", fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port),
		)
	} else {
		log.Info("API server disabled")
	}

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls will run in reverse order:
	// 1. API server (if enabled)
	// 2. Attached devices
	// 3. InfluxDB (if enabled)
	// 4. MQTT
	// 5. Database

	log.Info("qdmacore stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses QDMACORE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("QDMACORE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// buildManager wires the lifecycle collaborators for the configured role.
//
// Parameters:
//   - cfg: Application configuration
//   - store: Inventory recorder
//   - mbox: Mailbox channel (nil when MQTT is disabled)
//   - influxClient: Telemetry sink (nil when disabled)
//   - log: Logger instance
//
// Returns:
//   - *device.Manager: Assembled manager
//   - error: If the subordinate role is configured without a mailbox
func buildManager(cfg *config.Config, store *inventory.Store, mbox *mailbox.Mailbox, influxClient *influxdb.Client, log *logging.Logger) (*device.Manager, error) {
	role := device.Role(cfg.Bus.Role)

	recorders := []device.Recorder{store}
	if influxClient != nil {
		recorders = append(recorders, telemetry.NewRecorder(influxClient))
	}

	var virt device.VirtStrategy
	switch role {
	case device.RoleSubordinate:
		// A subordinate daemon is only useful if it can announce itself
		if mbox == nil {
			return nil, fmt.Errorf("subordinate role requires mqtt.enabled")
		}
		virt = sriov.NewSubordinate(mbox, log)
	default:
		virt = sriov.NewControlling(log)
	}

	mgrCfg := device.ManagerConfig{
		Role:     role,
		Init:     devinit.New(log),
		Virt:     virt,
		Recorder: device.MultiRecorder(recorders...),
	}
	if mbox != nil {
		mgrCfg.Mailbox = mbox
	}

	mgr := device.NewManager(mgrCfg)
	mgr.SetLogger(log)
	return mgr, nil
}

// attachedDevice pairs an open bus device with its lifecycle handle for
// shutdown.
type attachedDevice struct {
	busDev pci.Device
	hndl   device.Handle
}

// attachDevices constructs the simulated bus from configuration and opens
// each device through the lifecycle manager.
//
// A device that fails to open aborts startup: a misconfigured address or
// a function that does not identify as a DMA device is an operator error,
// not a runtime condition to limp through.
func attachDevices(cfg *config.Config, mgr *device.Manager, log *logging.Logger) ([]attachedDevice, error) {
	attached := make([]attachedDevice, 0, len(cfg.Bus.Devices))

	for _, devCfg := range cfg.Bus.Devices {
		busDev, err := newSimBusDevice(devCfg)
		if err != nil {
			return unwindAttached(mgr, attached), err
		}

		conf := &device.Config{
			BusDev:   busDev,
			QSetsMax: cfg.Bus.QSetsMax,
			VFMax:    cfg.Bus.VFMax,
		}
		hndl, err := mgr.Open(moduleName, conf)
		if err != nil {
			return unwindAttached(mgr, attached), fmt.Errorf("opening device %s: %w", devCfg.Address, err)
		}

		log.Info("device attached",
			"address", devCfg.Address,
			"name", conf.Name,
			"bdf", fmt.Sprintf("%05x", conf.BDF),
		)
		attached = append(attached, attachedDevice{busDev: busDev, hndl: hndl})
	}

	return attached, nil
}

// unwindAttached closes already-opened devices after a startup failure and
// returns nil for the caller to propagate its error with.
func unwindAttached(mgr *device.Manager, attached []attachedDevice) []attachedDevice {
	for i := len(attached) - 1; i >= 0; i-- {
		mgr.Close(attached[i].busDev, attached[i].hndl)
	}
	return nil
}

// Simulated device register layout: the identification word and the
// function capability word the open sequence reads.
const (
	simIdentWord   = 0x1fd30001
	simFuncCapWord = 0x3 | 1<<8 // MM + ST, one MM channel
)

// newSimBusDevice constructs one simulated bus device from configuration
// and seeds the registers that identify it as a DMA function.
func newSimBusDevice(devCfg config.BusDeviceConfig) (*pci.SimDevice, error) {
	addr, err := pci.ParseAddress(devCfg.Address)
	if err != nil {
		return nil, fmt.Errorf("parsing device address %q: %w", devCfg.Address, err)
	}

	barSizes := devCfg.BarSizes
	if len(barSizes) == 0 {
		barSizes = []int{4096}
	}

	busDev := pci.NewSimDevice(pci.SimConfig{
		Addr:     addr,
		Vendor:   devCfg.Vendor,
		Device:   devCfg.Device,
		BarSizes: barSizes,
	})
	busDev.Program32(0, 0, simIdentWord)
	busDev.Program32(0, 0x10, simFuncCapWord)
	return busDev, nil
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - mqttClient: MQTT client to check (may be nil if disabled)
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
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

	return nil
}
