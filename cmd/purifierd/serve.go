package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	_ "github.com/nerrad567/gray-logic-purifier/migrations"

	"github.com/nerrad567/gray-logic-purifier/internal/api"
	"github.com/nerrad567/gray-logic-purifier/internal/audit"
	"github.com/nerrad567/gray-logic-purifier/internal/coordinator"
	"github.com/nerrad567/gray-logic-purifier/internal/device"
	"github.com/nerrad567/gray-logic-purifier/internal/health"
	"github.com/nerrad567/gray-logic-purifier/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-purifier/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-purifier/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-purifier/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-purifier/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-purifier/internal/link/memlink"
	"github.com/nerrad567/gray-logic-purifier/internal/link/mqttlink"
	"github.com/nerrad567/gray-logic-purifier/internal/orchestrator"
	"github.com/nerrad567/gray-logic-purifier/internal/services"
)

// serveOptions are the flags of the serve command.
type serveOptions struct {
	simulate         bool
	simulateInterval time.Duration
}

var serveOpts serveOptions

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the coordinator service",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), getConfigPath(), serveOpts)
		},
	}
	cmd.Flags().BoolVar(&serveOpts.simulate, "simulate", false, "use simulated devices instead of the MQTT link")
	cmd.Flags().DurationVar(&serveOpts.simulateInterval, "simulate-interval", 10*time.Second, "delta interval of simulated devices")
	return cmd
}

// run is the service logic, separated from the command for testability.
// It returns nil on clean shutdown.
func run(ctx context.Context, path string, opts serveOptions) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting purifier coordinator",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", path)

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database ready", "path", cfg.Database.Path)

	registry := device.NewRegistry(device.NewSQLiteRepository(db.DB))
	registry.SetLogger(log.Component("registry"))
	if refreshErr := registry.RefreshCache(ctx); refreshErr != nil {
		return fmt.Errorf("loading entry registry: %w", refreshErr)
	}
	seeded, err := seedDevices(ctx, registry, cfg.Devices)
	if err != nil {
		return err
	}
	log.Info("entry registry initialised", "entries", registry.GetDeviceCount(), "seeded", seeded)

	serviceLog := audit.NewSQLiteRepository(db.DB)

	// Device links: MQTT in production, simulated devices otherwise.
	var (
		mqttClient *mqtt.Client
		links      orchestrator.LinkFactory
	)
	if opts.simulate {
		sim := newSimulator(ctx, opts.simulateInterval)
		links = sim.link
		log.Warn("running with simulated devices", "interval", opts.simulateInterval)
	} else {
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
		links = mqttLinks(mqttClient, log)
	}

	influxClient, err := connectInflux(ctx, cfg.InfluxDB, log)
	if err != nil {
		return err
	}
	if influxClient != nil {
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
	}

	orch := orchestrator.New(registry, links, orchestrator.Options{
		Coordinator: coordinator.Options{
			ConnectTimeout:  cfg.Coordinator.ConnectTimeoutDuration(),
			StalenessWindow: cfg.Coordinator.StalenessDuration(),
			BackoffBase:     cfg.Coordinator.BackoffBaseDuration(),
			BackoffMax:      cfg.Coordinator.BackoffMaxDuration(),
			WriteTimeout:    cfg.Coordinator.WriteTimeoutDuration(),
		},
		SetupTimeout:    cfg.Coordinator.ConnectTimeoutDuration(),
		PersistDebounce: cfg.Coordinator.PersistDebounceDuration(),
		Logger:          log.Component("orchestrator"),
	})
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		log.Info("shutting down coordinators")
		orch.Shutdown(shutdownCtx)
	}()

	executor := services.NewExecutor(services.Options{
		Recorder: serviceLog,
		Logger:   log.Component("services"),
	})

	reporter := health.NewReporter(healthConfig(cfg, orch, mqttClient, influxClient))
	reporter.SetLogger(log.Component("health"))

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		coordinator.NewCollector(orch.Coordinators),
	)

	deps := api.Deps{
		Config:       cfg.API,
		WS:           cfg.WebSocket,
		Security:     cfg.Security,
		Logger:       log.Component("api"),
		Registry:     registry,
		Orchestrator: orch,
		Executor:     executor,
		ServiceLog:   serviceLog,
		Health:       reporter,
		Gatherer:     promReg,
		DB:           db,
		Version:      version,
	}
	if mqttClient != nil {
		deps.MQTT = mqttClient
	}
	server, err := api.New(deps)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	// A device that does not answer stays stored and can be reloaded later.
	loaded, setupErr := orch.SetupAll(ctx)
	if setupErr != nil {
		log.Warn("some entries failed to load", "error", setupErr)
	}
	log.Info("entries loaded", "loaded", loaded, "stored", registry.GetDeviceCount())

	reporter.Start(ctx)
	defer reporter.Stop()

	if startErr := server.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	// Deferred calls run in reverse order: API server, health reporter,
	// coordinators, InfluxDB, MQTT, database.
	log.Info("shutdown signal received, cleaning up")
	return nil
}

// openDatabase opens the SQLite store and applies pending migrations.
func openDatabase(ctx context.Context, cfg *config.Config) (*database.DB, error) {
	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return db, nil
}

// seedDevices stores the configured devices that are not stored yet,
// matching by ID when given and by host otherwise.
func seedDevices(ctx context.Context, registry *device.Registry, seeds []config.DeviceConfig) (int, error) {
	created := 0
	for _, s := range seeds {
		if s.ID != "" {
			if _, err := registry.GetDevice(ctx, s.ID); err == nil {
				continue
			}
		} else if _, err := registry.GetDeviceByHost(ctx, s.Host); err == nil {
			continue
		}

		name := s.Name
		if name == "" {
			name = s.Host
		}
		dev := &device.Device{ID: s.ID, Name: name, Host: s.Host, Model: s.Model, MAC: s.MAC}
		if err := registry.CreateDevice(ctx, dev); err != nil {
			if errors.Is(err, device.ErrDeviceExists) {
				continue
			}
			return created, fmt.Errorf("seeding device %q: %w", s.Host, err)
		}
		created++
	}
	return created, nil
}

// mqttLinks builds one MQTT link per entry host.
func mqttLinks(client *mqtt.Client, log *logging.Logger) orchestrator.LinkFactory {
	return func(entry *device.Device) (coordinator.DeviceLink, error) {
		l := mqttlink.New(client, client.Topics(), entry.Host, client.QoS())
		l.SetLogger(log.Component("link").With("host", entry.Host))
		return l, nil
	}
}

// simulator hands out one simulated device per host. Devices outlive
// reloads so a reconnect sees the same state.
type simulator struct {
	ctx      context.Context
	interval time.Duration

	mu      sync.Mutex
	devices map[string]*memlink.Device
}

func newSimulator(ctx context.Context, interval time.Duration) *simulator {
	return &simulator{ctx: ctx, interval: interval, devices: make(map[string]*memlink.Device)}
}

func (s *simulator) link(entry *device.Device) (coordinator.DeviceLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.devices[entry.Host]
	if !ok {
		d = memlink.New(nil)
		s.devices[entry.Host] = d
		go d.Simulate(s.ctx, s.interval)
	}
	return d, nil
}

// connectInflux connects the optional telemetry sink. It returns nil when
// disabled.
func connectInflux(ctx context.Context, cfg config.InfluxDBConfig, log *logging.Logger) (*influxdb.Client, error) {
	if !cfg.Enabled {
		log.Info("InfluxDB disabled")
		return nil, nil
	}
	client, err := influxdb.Connect(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to InfluxDB: %w", err)
	}
	client.SetOnError(func(err error) {
		log.Error("InfluxDB write error", "error", err)
	})
	log.Info("InfluxDB connected",
		"url", cfg.URL,
		"org", cfg.Org,
		"bucket", cfg.Bucket,
	)
	return client, nil
}

// healthConfig builds the reporter config. Nil clients are left out so the
// interfaces stay nil.
func healthConfig(cfg *config.Config, orch *orchestrator.Orchestrator, mqttClient *mqtt.Client, influxClient *influxdb.Client) health.Config {
	hc := health.Config{
		InitialDelay:         cfg.Health.InitialDelayDuration(),
		Interval:             cfg.Health.IntervalDuration(),
		FilterWarningPercent: cfg.Health.FilterWarningPercent,
		Version:              version,
		Source:               orch,
	}
	if mqttClient != nil {
		hc.Publisher = mqttClient
		hc.Topics = mqttClient.Topics()
	}
	if influxClient != nil {
		hc.Points = influxClient
	}
	return hc
}

// healthCheck verifies the infrastructure connections. Nil clients are
// skipped.
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
