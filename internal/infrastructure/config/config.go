package config

import "time"

// Config mirrors config.yaml. See Load for how values are layered.
type Config struct {
	Service   ServiceConfig   `yaml:"service"`
	Database  DatabaseConfig  `yaml:"database"`
	MongoDB   MongoDBConfig   `yaml:"mongodb"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Ingestion IngestionConfig `yaml:"ingestion"`
	Inventory InventoryConfig `yaml:"inventory"`
	Broadcast BroadcastConfig `yaml:"broadcast"`
	Presence  PresenceConfig  `yaml:"presence"`
}

// ServiceConfig identifies this deployment.
type ServiceConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// DatabaseConfig contains SQLite database settings.
// SQLite holds devices, catalog stock records, stock movements and,
// unless MongoDB is enabled, readings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MongoDBConfig configures the optional document store for readings.
type MongoDBConfig struct {
	Enabled    bool   `yaml:"enabled"`
	URI        string `yaml:"uri"`
	Database   string `yaml:"database"`
	Collection string `yaml:"collection"`
	// ConnectTimeout is in seconds.
	ConnectTimeout int `yaml:"connect_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
	// MirrorEvents republishes broadcast events to storefront/events/<kind>.
	MirrorEvents bool `yaml:"mirror_events"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings (seconds).
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// APITimeoutConfig holds the http.Server timeouts in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

func (t APITimeoutConfig) ReadTimeout() time.Duration  { return seconds(t.Read) }
func (t APITimeoutConfig) WriteTimeout() time.Duration { return seconds(t.Write) }
func (t APITimeoutConfig) IdleTimeout() time.Duration  { return seconds(t.Idle) }

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// IngestionConfig controls the reading pipeline.
type IngestionConfig struct {
	// OperationTimeout bounds every persistence and reconciliation call (milliseconds).
	OperationTimeout int `yaml:"operation_timeout_ms"`
	// Topic is the MQTT topic filter devices publish raw submissions to.
	Topic string `yaml:"topic"`
}

// InventoryConfig controls reconciliation from weight and RFID signals.
type InventoryConfig struct {
	// DeadBand is the stock difference a weight estimate must exceed
	// before it overwrites the stock record.
	DeadBand int `yaml:"dead_band"`
	// DefaultUnitWeight is used when a catalog item has no unit weight.
	DefaultUnitWeight float64 `yaml:"default_unit_weight"`
}

// BroadcastConfig controls the real-time event hub.
type BroadcastConfig struct {
	BufferSize int `yaml:"buffer_size"`
	// Overflow is "drop_oldest" or "disconnect".
	Overflow string `yaml:"overflow"`
}

// PresenceConfig controls the offline sweep.
type PresenceConfig struct {
	Enabled bool `yaml:"enabled"`
	// OfflineAfter is the silence window in seconds.
	OfflineAfter int `yaml:"offline_after"`
	// SweepInterval is in seconds.
	SweepInterval int `yaml:"sweep_interval"`
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

// GetOperationTimeout returns the per-call ingestion deadline.
func (c *Config) GetOperationTimeout() time.Duration {
	return time.Duration(c.Ingestion.OperationTimeout) * time.Millisecond
}

// GetOfflineAfter returns the presence silence window.
func (c *Config) GetOfflineAfter() time.Duration { return seconds(c.Presence.OfflineAfter) }

// GetSweepInterval returns how often the presence sweep runs.
func (c *Config) GetSweepInterval() time.Duration { return seconds(c.Presence.SweepInterval) }
