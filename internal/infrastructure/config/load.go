package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix starts every environment override, e.g. STOREFRONT_API_PORT.
const EnvPrefix = "STOREFRONT_"

// Load layers configuration in this order, later winning:
//
//  1. built-in defaults
//  2. the YAML file at path
//  3. a .env file in the working directory, if present
//  4. STOREFRONT_* environment variables
//
// The result is validated before it is returned.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Service:  ServiceConfig{ID: "storefront-telemetry-001", Name: "Storefront Telemetry"},
		Database: DatabaseConfig{Path: "./data/telemetry.db", WALMode: true, BusyTimeout: 5},
		MongoDB: MongoDBConfig{
			URI:            "mongodb://localhost:27017",
			Database:       "storefront",
			Collection:     "readings",
			ConnectTimeout: 10,
		},
		MQTT: MQTTConfig{
			Broker:    MQTTBrokerConfig{Host: "localhost", Port: 1883, ClientID: "storefront-telemetry"},
			QoS:       1,
			Reconnect: MQTTReconnectConfig{InitialDelay: 1, MaxDelay: 60},
		},
		API: APIConfig{
			Host:     "0.0.0.0",
			Port:     8080,
			Timeouts: APITimeoutConfig{Read: 30, Write: 30, Idle: 60},
		},
		WebSocket: WebSocketConfig{Path: "/ws", MaxMessageSize: 8192, PingInterval: 30, PongTimeout: 10},
		Logging:   LoggingConfig{Level: "info", Format: "json", Output: "stdout"},
		Ingestion: IngestionConfig{OperationTimeout: 2000, Topic: "storefront/telemetry/+"},
		Inventory: InventoryConfig{DeadBand: 5, DefaultUnitWeight: 1},
		Broadcast: BroadcastConfig{BufferSize: 256, Overflow: "drop_oldest"},
		Presence:  PresenceConfig{Enabled: true, OfflineAfter: 300, SweepInterval: 30},
	}
}

// envBinding ties one variable, named without the prefix, to a field.
type envBinding struct {
	name string
	set  func(v string) error
}

func envString(name string, dst *string) envBinding {
	return envBinding{name, func(v string) error { *dst = v; return nil }}
}

func envInt(name string, dst *int) envBinding {
	return envBinding{name, func(v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*dst = n
		return nil
	}}
}

func envBool(name string, dst *bool) envBinding {
	return envBinding{name, func(v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		*dst = b
		return nil
	}}
}

func envBindings(cfg *Config) []envBinding {
	return []envBinding{
		envString("DATABASE_PATH", &cfg.Database.Path),
		envBool("MONGODB_ENABLED", &cfg.MongoDB.Enabled),
		envString("MONGODB_URI", &cfg.MongoDB.URI),
		envBool("MQTT_ENABLED", &cfg.MQTT.Enabled),
		envString("MQTT_HOST", &cfg.MQTT.Broker.Host),
		envInt("MQTT_PORT", &cfg.MQTT.Broker.Port),
		envString("MQTT_USERNAME", &cfg.MQTT.Auth.Username),
		envString("MQTT_PASSWORD", &cfg.MQTT.Auth.Password),
		envString("API_HOST", &cfg.API.Host),
		envInt("API_PORT", &cfg.API.Port),
		envBool("INFLUXDB_ENABLED", &cfg.InfluxDB.Enabled),
		envString("INFLUXDB_URL", &cfg.InfluxDB.URL),
		envString("INFLUXDB_TOKEN", &cfg.InfluxDB.Token),
		envString("LOG_LEVEL", &cfg.Logging.Level),
	}
}

// applyEnvOverrides copies every set, non-empty STOREFRONT_* variable
// into cfg. A value that does not parse is an error rather than being
// silently ignored.
func applyEnvOverrides(cfg *Config) error {
	var errs []error
	for _, b := range envBindings(cfg) {
		v := os.Getenv(EnvPrefix + b.name)
		if v == "" {
			continue
		}
		if err := b.set(v); err != nil {
			errs = append(errs, fmt.Errorf("%s%s=%q: %w", EnvPrefix, b.name, v, err))
		}
	}
	return errors.Join(errs...)
}

// Validate reports every problem at once, joined with errors.Join.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, msg string) {
		if !ok {
			errs = append(errs, errors.New(msg))
		}
	}

	check(c.Service.ID != "", "service.id is required")
	check(c.Database.Path != "", "database.path is required")
	check(!c.MongoDB.Enabled || c.MongoDB.URI != "", "mongodb.uri is required when mongodb is enabled")
	check(c.MQTT.QoS >= 0 && c.MQTT.QoS <= 2, "mqtt.qos must be 0, 1 or 2")
	check(c.API.Port >= 1 && c.API.Port <= 65535, "api.port must be between 1 and 65535")
	check(c.Ingestion.OperationTimeout > 0, "ingestion.operation_timeout_ms must be positive")
	check(c.Inventory.DeadBand >= 0, "inventory.dead_band must not be negative")
	check(c.Broadcast.BufferSize >= 1, "broadcast.buffer_size must be at least 1")
	check(c.Broadcast.Overflow == "drop_oldest" || c.Broadcast.Overflow == "disconnect",
		`broadcast.overflow must be "drop_oldest" or "disconnect"`)
	check(!c.Presence.Enabled || (c.Presence.OfflineAfter > 0 && c.Presence.SweepInterval > 0),
		"presence.offline_after and presence.sweep_interval must be positive")

	return errors.Join(errs...)
}
