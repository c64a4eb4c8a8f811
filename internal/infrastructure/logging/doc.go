// Package logging provides structured logging for the purifier service.
//
// It wraps log/slog so every package logs the same way:
//
//   - JSON output for production, text output for development
//   - service and version fields on every entry
//   - level filtering (debug, info, warn, error)
//
// Configuration:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Usage:
//
//	logger := logging.New(cfg.Logging, version)
//	coordLogger := logger.Component("coordinator").With("entry_id", id)
//	coordLogger.Warn("device link lost", "error", err)
//
// Never log secrets, tokens or MQTT passwords.
package logging
