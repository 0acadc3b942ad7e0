package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/storefront-telemetry/internal/api"
	"github.com/nerrad567/storefront-telemetry/internal/broadcast"
	"github.com/nerrad567/storefront-telemetry/internal/device"
	"github.com/nerrad567/storefront-telemetry/internal/infrastructure/config"
	"github.com/nerrad567/storefront-telemetry/internal/infrastructure/database"
	"github.com/nerrad567/storefront-telemetry/internal/infrastructure/influxdb"
	"github.com/nerrad567/storefront-telemetry/internal/infrastructure/logging"
	"github.com/nerrad567/storefront-telemetry/internal/infrastructure/mongodb"
	"github.com/nerrad567/storefront-telemetry/internal/infrastructure/mqtt"
	"github.com/nerrad567/storefront-telemetry/internal/ingestion"
	"github.com/nerrad567/storefront-telemetry/internal/inventory"
	"github.com/nerrad567/storefront-telemetry/internal/presence"
	"github.com/nerrad567/storefront-telemetry/internal/reading"
	"github.com/nerrad567/storefront-telemetry/migrations"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the telemetry core until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}
}

// run wires every component and blocks until ctx is cancelled. Deferred
// closes run in reverse order of startup.
func run(ctx context.Context, cfg *config.Config) error {
	log := logging.New(cfg.Logging, version)
	log.Info("starting storefront telemetry",
		"version", version,
		"commit", commit,
		"build_date", date,
		"service_id", cfg.Service.ID,
	)

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
	if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database ready", "path", cfg.Database.Path)

	checks := map[string]api.HealthChecker{"database": db}

	readings, closeReadings, err := openReadings(ctx, cfg, db, log)
	if err != nil {
		return err
	}
	defer closeReadings()
	if hc, ok := readings.(api.HealthChecker); ok {
		checks["mongodb"] = hc
	}

	registry := device.NewRegistry(device.NewSQLiteRepository(db.DB))
	registry.SetLogger(log.Component("device"))
	if refreshErr := registry.RefreshCache(ctx); refreshErr != nil {
		return fmt.Errorf("loading device registry: %w", refreshErr)
	}
	log.Info("device registry initialised", "devices", registry.GetDeviceCount())

	items := inventory.NewSQLiteStore(db.DB)
	reconciler := inventory.NewReconciler(items, inventory.Config{
		DeadBand:          cfg.Inventory.DeadBand,
		DefaultUnitWeight: cfg.Inventory.DefaultUnitWeight,
	})
	reconciler.SetLogger(log.Component("inventory"))

	hub := broadcast.NewHub(broadcast.Config{
		BufferSize: cfg.Broadcast.BufferSize,
		Overflow:   broadcast.OverflowPolicy(cfg.Broadcast.Overflow),
	})
	hub.SetLogger(log.Component("broadcast"))
	defer hub.Close()

	deps := ingestion.Deps{
		Devices:          registry,
		Readings:         readings,
		Reconciler:       reconciler,
		Publisher:        hub,
		Logger:           log.Component("ingestion"),
		OperationTimeout: cfg.GetOperationTimeout(),
	}

	if cfg.InfluxDB.Enabled {
		influxClient, influxErr := influxdb.Connect(cfg.InfluxDB)
		if influxErr != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", influxErr)
		}
		defer func() {
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
			st := influxClient.Stats()
			log.Info("InfluxDB connection closed", "points_queued", st.Queued, "write_failures", st.Failed)
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		deps.Points = influxClient
		checks["influxdb"] = influxClient
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	pipeline := ingestion.New(deps)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)

	// abort stops the background goroutines before a startup error is
	// returned and the deferred closes run.
	abort := func(err error) error {
		cancel()
		_ = g.Wait()
		return err
	}

	if cfg.MQTT.Enabled {
		mqttClient, mqttErr := mqtt.Connect(cfg.MQTT)
		if mqttErr != nil {
			return fmt.Errorf("connecting to MQTT: %w", mqttErr)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log.Component("mqtt"))
		mqttClient.SetOnConnect(func() { log.Info("MQTT connected") })
		mqttClient.SetOnDisconnect(func(err error) { log.Warn("MQTT disconnected", "error", err) })
		checks["mqtt"] = mqttClient

		qos := byte(cfg.MQTT.QoS)
		subscriber := ingestion.NewSubscriber(pipeline, mqttClient, cfg.Ingestion.Topic, qos)
		subscriber.SetLogger(log.Component("ingestion"))
		if startErr := subscriber.Start(gctx); startErr != nil {
			return fmt.Errorf("starting MQTT ingestion: %w", startErr)
		}
		defer func() {
			if stopErr := subscriber.Stop(); stopErr != nil {
				log.Warn("error stopping MQTT ingestion", "error", stopErr)
			}
		}()
		log.Info("MQTT ingestion started",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"topic", cfg.Ingestion.Topic,
		)

		if cfg.MQTT.MirrorEvents {
			mirror := broadcast.NewMirror(hub, mqttClient, mqtt.Topics{}.EventPrefix(), qos)
			g.Go(func() error {
				mirror.Run(gctx)
				return nil
			})
		}
	} else {
		log.Info("MQTT disabled, accepting readings over HTTP only")
	}

	if cfg.Presence.Enabled {
		sweeper := presence.NewSweeper(registry, hub, cfg.GetOfflineAfter(), cfg.GetSweepInterval())
		sweeper.SetLogger(log.Component("presence"))
		g.Go(func() error { return sweeper.Run(gctx) })
	}

	server, err := api.New(api.Deps{
		Config:   cfg.API,
		WS:       cfg.WebSocket,
		Logger:   log.Component("api"),
		Registry: registry,
		Ingester: pipeline,
		Readings: readings,
		Items:    items,
		Hub:      hub,
		Checks:   checks,
		Version:  version,
	})
	if err != nil {
		return abort(fmt.Errorf("creating API server: %w", err))
	}
	if startErr := server.Start(gctx); startErr != nil {
		return abort(fmt.Errorf("starting API server: %w", startErr))
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	log.Info("initialisation complete, waiting for shutdown signal")

	g.Go(func() error {
		<-gctx.Done()
		return nil
	})
	if waitErr := g.Wait(); waitErr != nil {
		return waitErr
	}

	stats := pipeline.Stats()
	log.Info("storefront telemetry stopped",
		"accepted", stats.Accepted,
		"rejected", stats.Rejected,
		"alerts", stats.Alerts,
	)
	return nil
}

// openReadings selects the readings store. SQLite is the default;
// MongoDB is used when enabled.
func openReadings(ctx context.Context, cfg *config.Config, db *database.DB, log *logging.Logger) (reading.Repository, func(), error) {
	if !cfg.MongoDB.Enabled {
		return reading.NewSQLiteRepository(db.DB), func() {}, nil
	}

	client, err := mongodb.Connect(ctx, cfg.MongoDB)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to MongoDB: %w", err)
	}
	closeFn := func() {
		log.Info("closing MongoDB connection")
		if closeErr := client.Close(); closeErr != nil {
			log.Error("error closing MongoDB", "error", closeErr)
		}
	}

	repo := reading.NewMongoRepository(client.Collection())
	if err := repo.EnsureIndexes(ctx); err != nil {
		closeFn()
		return nil, nil, fmt.Errorf("creating reading indexes: %w", err)
	}
	log.Info("MongoDB readings store ready",
		"database", cfg.MongoDB.Database,
		"collection", cfg.MongoDB.Collection,
	)
	return &mongoReadings{MongoRepository: repo, client: client}, closeFn, nil
}

// mongoReadings reports the MongoDB connection on /health.
type mongoReadings struct {
	*reading.MongoRepository
	client *mongodb.Client
}

func (m *mongoReadings) HealthCheck(ctx context.Context) error {
	return m.client.HealthCheck(ctx)
}
