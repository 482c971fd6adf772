// Package logging provides structured logging for the EtherNet/IP bridge.
//
// This package wraps Go's standard log/slog package so every component
// logs with the same handler, level and default fields.
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
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Component("supervisor").Info("bridge started", "device", addr)
//
// String values logged under keys containing password, token, secret or
// authorization are replaced with config.RedactedSecret.
package logging
