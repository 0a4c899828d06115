// Package logging provides structured logging for the Broadlink bridge.
//
// It wraps log/slog so every component logs with the same default
// fields (service, version) and honours the configured level.
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, version)
//	log := logger.Component("dispatch")
//	log.Info("command sent", "device", "192.168.1.50", "attempted", 3)
//
// Never log MQTT passwords or InfluxDB tokens.
package logging
