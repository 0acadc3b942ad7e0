// Package logging provides structured logging for the telemetry core.
//
// It wraps the standard log/slog package so every component logs the same
// way: JSON in production, text in development, level filtering, and the
// service/version attributes on every record.
//
// Logging is configured via the logging section of config.yaml:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Usage:
//
//	logger := logging.New(cfg.Logging, version)
//	logger.Info("reading accepted", "device_id", id)
//	logger.Error("persist failed", "error", err)
//
// Never log credentials such as the MQTT password or InfluxDB token.
package logging
