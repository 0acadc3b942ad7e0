// Package config loads config.yaml for the telemetry core.
//
// Secrets (MQTT password, InfluxDB token, a MongoDB URI with credentials)
// belong in the environment or a git-ignored .env file, not in the YAML:
//
//	STOREFRONT_MQTT_PASSWORD=...
//	STOREFRONT_INFLUXDB_TOKEN=...
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    return err
//	}
//	log := logging.New(cfg.Logging, version)
package config
